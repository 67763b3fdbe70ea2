package goAdmin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/identity/redisidp"
	"github.com/MrEthical07/goAdmin/jwt"
	"github.com/MrEthical07/goAdmin/password"
	"github.com/MrEthical07/goAdmin/profile/redisstore"
	"github.com/MrEthical07/goAdmin/reconcile"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const operatorSecret = "correct horse battery"

type recordingNavigator struct {
	mu    sync.Mutex
	dests []goAdmin.Destination
}

func (n *recordingNavigator) Navigate(_ context.Context, dest goAdmin.Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dests = append(n.dests, dest)
}

func (n *recordingNavigator) sawLogin() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, d := range n.dests {
		if d.Kind == goAdmin.DestinationLogin {
			return true
		}
	}
	return false
}

// afterDeleteStore runs hook after every successful profile delete.
type afterDeleteStore struct {
	*redisstore.Store
	hook func()
}

func (s afterDeleteStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.Store.DeleteByID(ctx, id); err != nil {
		return err
	}
	if s.hook != nil {
		s.hook()
	}
	return nil
}

type stack struct {
	panel    *goAdmin.Panel
	store    *redisstore.Store
	identity *redisidp.Provider
	ledger   *reconcile.Ledger
	nav      *recordingNavigator
	idRedis  *miniredis.Miniredis
	operator goAdmin.Principal
}

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newStack(t *testing.T, afterProfileDelete func(*stack)) *stack {
	t.Helper()
	ctx := context.Background()
	_, storeRedis := newRedisClient(t)
	idMR, idRedis := newRedisClient(t)

	identity, err := redisidp.New(idRedis, redisidp.Config{
		Prefix:       "it:id",
		SessionTTL:   time.Hour,
		PollInterval: 20 * time.Millisecond,
		Password: password.Config{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Tokens: jwt.Config{
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
			Issuer:        "goadmin-it",
		},
	}, nil)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	t.Cleanup(identity.Close)

	s := &stack{
		store:    redisstore.New(storeRedis, "it:prof"),
		identity: identity,
		ledger:   reconcile.NewLedger(storeRedis, "it:rec"),
		nav:      &recordingNavigator{},
		idRedis:  idMR,
	}

	s.operator, err = identity.Register(ctx, "ops@example.com", operatorSecret)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, rec := range []goAdmin.AccountRecord{
		{ID: "viewer-1", DisplayName: "Viewer", Email: "viewer@example.com", Role: "viewer"},
		{ID: s.operator.ID, DisplayName: "Ops", Email: s.operator.Email, Role: "admin"},
	} {
		if err := s.store.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if _, err := identity.SignIn(ctx, "ops@example.com", operatorSecret); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	profiles := afterDeleteStore{Store: s.store}
	if afterProfileDelete != nil {
		profiles.hook = func() { afterProfileDelete(s) }
	}

	cfg := goAdmin.DefaultConfig()
	cfg.Gate.MaxFailedAttempts = 3
	panel, err := goAdmin.New().
		WithConfig(cfg).
		WithRedis(storeRedis).
		WithProfileStore(profiles).
		WithIdentityProvider(identity).
		WithNavigator(s.nav).
		WithOrphanRecorder(s.ledger).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(panel.Close)
	if err := panel.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.panel = panel
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSelfDeletionAgainstRedisBackends(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	if got := len(s.panel.Accounts()); got != 2 {
		t.Fatalf("expected 2 cached accounts, got %d", got)
	}
	if err := s.panel.RequestDelete(ctx, "viewer-1"); !errors.Is(err, goAdmin.ErrWrongPrincipal) {
		t.Fatalf("expected ErrWrongPrincipal for another account, got %v", err)
	}
	if err := s.panel.RequestDelete(ctx, s.operator.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if _, err := s.panel.SubmitCredential(ctx, "not it"); !errors.Is(err, goAdmin.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	res, err := s.panel.SubmitCredential(ctx, operatorSecret)
	if err != nil {
		t.Fatalf("SubmitCredential: %v", err)
	}
	if res.Delete == nil || !res.Delete.SignedOut {
		t.Fatalf("unexpected delete result %+v", res.Delete)
	}

	records, err := s.store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != "viewer-1" {
		t.Fatalf("expected only viewer left in store, got %+v", records)
	}
	if err := s.identity.ValidateCredential(ctx, "ops@example.com", operatorSecret); !errors.Is(err, goAdmin.ErrInvalidCredential) {
		t.Fatalf("expected identity gone, got %v", err)
	}
	waitFor(t, "login navigation", s.nav.sawLogin)
	waitFor(t, "signed out display", func() bool {
		return s.panel.DisplayState() == goAdmin.DisplaySignedOut
	})
}

func TestOrphanRecordedInLedger(t *testing.T) {
	s := newStack(t, func(s *stack) {
		s.idRedis.SetError("LOADING redis is loading the dataset")
	})
	ctx := context.Background()

	if err := s.panel.RequestDelete(ctx, s.operator.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	_, err := s.panel.SubmitCredential(ctx, operatorSecret)

	var idErr *goAdmin.IdentityDeleteError
	if !errors.As(err, &idErr) || !idErr.Orphaned {
		t.Fatalf("expected orphaned identity delete error, got %v", err)
	}
	if idErr.IncidentID == "" {
		t.Fatal("expected incident id from ledger")
	}

	incidents, err := s.ledger.List(ctx)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("expected one open incident, got %d", len(incidents))
	}
	inc := incidents[0]
	if inc.ID != idErr.IncidentID || inc.TargetID != s.operator.ID || inc.Email != s.operator.Email || inc.Resolved() {
		t.Fatalf("unexpected incident %+v", inc)
	}

	s.idRedis.SetError("")
	if err := s.ledger.Resolve(ctx, inc.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if open, _ := s.ledger.List(ctx); len(open) != 0 {
		t.Fatalf("expected no open incidents after resolve, got %d", len(open))
	}
}
