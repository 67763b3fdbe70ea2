package goAdmin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testOperatorID    = "u-op"
	testOperatorEmail = "op@example.com"
	testSecret        = "correct horse"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeStore struct {
	mu        sync.Mutex
	records   []AccountRecord
	listErr   error
	deleteErr error
	deleted   []string
	lists     int

	// listGate, when set, blocks ListAll until it is closed.
	listGate chan struct{}
	// listEntered receives once per ListAll call when set.
	listEntered chan struct{}
	// onDelete runs inside DeleteByID after the record is removed.
	onDelete func()
}

func newFakeStore(records ...AccountRecord) *fakeStore {
	return &fakeStore{records: records}
}

func (s *fakeStore) ListAll(ctx context.Context) ([]AccountRecord, error) {
	s.mu.Lock()
	s.lists++
	gate, entered := s.listGate, s.listEntered
	snapshot := append([]AccountRecord(nil), s.records...)
	err := s.listErr
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *fakeStore) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.deleteErr != nil {
		err := s.deleteErr
		s.mu.Unlock()
		return err
	}
	s.deleted = append(s.deleted, id)
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	hook := s.onDelete
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (s *fakeStore) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *fakeStore) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

type fakeIdentity struct {
	mu           sync.Mutex
	principal    Principal
	present      bool
	secret       string
	principalErr error
	validateErr  error
	deleteErr    error
	signOutErr   error
	subscribeErr error
	validations  int
	deletions    int
	signOuts     int
	listeners    map[int]func(bool)
	nextID       int

	// onValidate runs inside ValidateCredential before the secret check.
	onValidate func()
	// onDelete runs inside DeleteCurrentPrincipal before the error check.
	onDelete func()
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		principal: Principal{ID: testOperatorID, Email: testOperatorEmail},
		present:   true,
		secret:    testSecret,
		listeners: map[int]func(bool){},
	}
}

func (f *fakeIdentity) CurrentPrincipal(context.Context) (Principal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.principalErr != nil {
		return Principal{}, false, f.principalErr
	}
	if !f.present {
		return Principal{}, false, nil
	}
	return f.principal, true, nil
}

func (f *fakeIdentity) ValidateCredential(_ context.Context, email, secret string) error {
	f.mu.Lock()
	f.validations++
	hook := f.onValidate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.validateErr != nil {
		return f.validateErr
	}
	if email != f.principal.Email || secret != f.secret {
		return ErrInvalidCredential
	}
	return nil
}

func (f *fakeIdentity) DeleteCurrentPrincipal(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	hook := f.onDelete
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletions++
	return nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.mu.Lock()
	f.signOuts++
	err := f.signOutErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.setPresent(false)
	return nil
}

func (f *fakeIdentity) OnSessionChange(fn func(bool)) (func(), error) {
	f.mu.Lock()
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return nil, err
	}
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	present := f.present
	f.mu.Unlock()

	fn(present)
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}, nil
}

// setPresent changes presence and notifies listeners outside the lock.
func (f *fakeIdentity) setPresent(present bool) {
	f.mu.Lock()
	f.present = present
	listeners := make([]func(bool), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(present)
	}
}

func (f *fakeIdentity) setPrincipal(p Principal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.principal = p
}

func (f *fakeIdentity) counts() (validations, deletions, signOuts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validations, f.deletions, f.signOuts
}

func (f *fakeIdentity) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type recordingNavigator struct {
	mu    sync.Mutex
	dests []Destination
}

func (n *recordingNavigator) Navigate(_ context.Context, dest Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dests = append(n.dests, dest)
}

func (n *recordingNavigator) destinations() []Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Destination(nil), n.dests...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []OrphanReport
	err     error
}

func (r *fakeRecorder) RecordOrphan(_ context.Context, report OrphanReport) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.reports = append(r.reports, report)
	return "inc-" + report.TargetID, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testPanel struct {
	*Panel
	store    *fakeStore
	identity *fakeIdentity
	nav      *recordingNavigator
	orphans  *fakeRecorder
	clock    *fakeClock
	audit    *ChannelSink
}

type panelSetup struct {
	mutateConfig func(*Config)
	redis        redis.UniversalClient
	noStart      bool
	before       func(*testPanel)
}

type panelOption func(*panelSetup)

func withConfig(mutate func(*Config)) panelOption {
	return func(s *panelSetup) { s.mutateConfig = mutate }
}

func withRedis(client redis.UniversalClient) panelOption {
	return func(s *panelSetup) { s.redis = client }
}

func withoutStart() panelOption {
	return func(s *panelSetup) { s.noStart = true }
}

// beforeStart adjusts the fakes between Build and Start.
func beforeStart(fn func(*testPanel)) panelOption {
	return func(s *panelSetup) { s.before = fn }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	return cfg
}

func defaultRecords() []AccountRecord {
	return []AccountRecord{
		{ID: "u-a", DisplayName: "Ada", Email: "ada@example.com", Role: "viewer"},
		{ID: testOperatorID, DisplayName: "Operator", Email: testOperatorEmail, Role: "admin"},
		{ID: "u-b", DisplayName: "Bea", Email: "bea@example.com", Role: "editor"},
	}
}

// newTestPanel builds a panel over fakes and starts it unless withoutStart
// is given. The initial load has completed when it returns.
func newTestPanel(t *testing.T, opts ...panelOption) *testPanel {
	t.Helper()
	setup := panelSetup{}
	for _, opt := range opts {
		opt(&setup)
	}

	tp := &testPanel{
		store:    newFakeStore(defaultRecords()...),
		identity: newFakeIdentity(),
		nav:      &recordingNavigator{},
		orphans:  &fakeRecorder{},
		clock:    newFakeClock(),
		audit:    NewChannelSink(256),
	}

	cfg := testConfig()
	if setup.mutateConfig != nil {
		setup.mutateConfig(&cfg)
	}

	b := New().
		WithConfig(cfg).
		WithProfileStore(tp.store).
		WithIdentityProvider(tp.identity).
		WithNavigator(tp.nav).
		WithOrphanRecorder(tp.orphans).
		WithAuditSink(tp.audit)
	if setup.redis != nil {
		b.WithRedis(setup.redis)
	}

	panel, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	panel.now = tp.clock.Now
	tp.Panel = panel
	t.Cleanup(panel.Close)

	if setup.before != nil {
		setup.before(tp)
	}
	if setup.noStart {
		return tp
	}
	if err := panel.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return tp
}

// auditEvents closes the panel, draining the dispatcher, and returns what
// reached the sink.
func (tp *testPanel) auditEvents() []AuditEvent {
	tp.Panel.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-tp.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func findEvent(events []AuditEvent, eventType string) (AuditEvent, bool) {
	for _, ev := range events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return AuditEvent{}, false
}

var errBackend = errors.New("backend exploded")
