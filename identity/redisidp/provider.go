// Package redisidp is a self-hosted goAdmin.IdentityProvider backed by Redis.
//
// Principals are stored as hashes with an Argon2id credential hash and an
// email index. Signing in creates a session record (package session) and a
// signed token (package jwt); the Provider holds that token as the ambient
// session of the process. Revocations published by any process on the
// session store's channel end the ambient session here too.
package redisidp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/internal/rate"
	"github.com/MrEthical07/goAdmin/internal/sessionhub"
	"github.com/MrEthical07/goAdmin/jwt"
	"github.com/MrEthical07/goAdmin/password"
	"github.com/MrEthical07/goAdmin/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrEmailTaken is returned by Register for an email already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotSignedIn is returned by operations that need the ambient session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const registerScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], "id", ARGV[1], "email", ARGV[2], "secret_hash", ARGV[3], "created_at", ARGV[4])
return 1
`

const deletePrincipalScript = `
local email = redis.call("HGET", KEYS[1], "email")
if not email then
  return 0
end
redis.call("DEL", KEYS[1])
local idx = ARGV[1] .. email
if redis.call("GET", idx) == ARGV[2] then
  redis.call("DEL", idx)
end
return 1
`

var (
	registerLua        = redis.NewScript(registerScript)
	deletePrincipalLua = redis.NewScript(deletePrincipalScript)
)

// Config configures a Provider.
type Config struct {
	Prefix       string        // key namespace, default "gaid"
	SessionTTL   time.Duration // default 12h
	PollInterval time.Duration // expiry check while listeners exist, default 30s
	Password     password.Config
	Tokens       jwt.Config // TTL is overridden by SessionTTL

	// SignInMaxAttempts > 0 throttles SignIn per email, and per client IP
	// when ThrottleIP is set. The window is SignInCooldown, default 15m.
	SignInMaxAttempts int
	SignInCooldown    time.Duration
	ThrottleIP        bool
}

// Provider implements goAdmin.IdentityProvider. One Provider carries at most
// one ambient session.
type Provider struct {
	redis    redis.UniversalClient
	prefix   string
	ttl      time.Duration
	poll     time.Duration
	hasher   *password.Hasher
	tokens   *jwt.Manager
	sessions *session.Store
	throttle *rate.Limiter
	hub      *sessionhub.Hub
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	token string

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New builds a Provider. logger may be nil.
func New(client redis.UniversalClient, cfg Config, logger *slog.Logger) (*Provider, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "gaid"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DefaultConfig()
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	cfg.Tokens.TTL = cfg.SessionTTL
	tokens, err := jwt.NewManager(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("token config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Provider{
		redis:    client,
		prefix:   cfg.Prefix,
		ttl:      cfg.SessionTTL,
		poll:     cfg.PollInterval,
		hasher:   hasher,
		tokens:   tokens,
		sessions: session.NewStore(client, cfg.Prefix+":sess"),
		logger:   logger,
		now:      time.Now,
	}
	if cfg.SignInMaxAttempts > 0 {
		if cfg.SignInCooldown <= 0 {
			cfg.SignInCooldown = 15 * time.Minute
		}
		p.throttle = rate.New(client, rate.Config{
			Prefix:           cfg.Prefix + ":rl",
			MaxAttempts:      cfg.SignInMaxAttempts,
			Cooldown:         cfg.SignInCooldown,
			EnableIPThrottle: cfg.ThrottleIP,
		})
	}
	p.hub = sessionhub.New(false, p.startWatch, p.stopWatch)
	return p, nil
}

func (p *Provider) principalKey(id string) string {
	return p.prefix + ":p:" + id
}

func (p *Provider) emailKeyPrefix() string {
	return p.prefix + ":email:"
}

func (p *Provider) emailKey(email string) string {
	return p.emailKeyPrefix() + normalizeEmail(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a principal and returns it. It does not sign in.
func (p *Provider) Register(ctx context.Context, email, secret string) (goAdmin.Principal, error) {
	email = normalizeEmail(email)
	if email == "" {
		return goAdmin.Principal{}, errors.New("email required")
	}
	hash, err := p.hasher.Hash(secret)
	if err != nil {
		return goAdmin.Principal{}, err
	}

	id := uuid.NewString()
	created, err := registerLua.Run(ctx, p.redis,
		[]string{p.emailKey(email), p.principalKey(id)},
		id, email, hash, p.now().UTC().Format(time.RFC3339),
	).Int64()
	if err != nil {
		return goAdmin.Principal{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return goAdmin.Principal{}, ErrEmailTaken
	}
	return goAdmin.Principal{ID: id, Email: email}, nil
}

// SignIn validates the credential, opens a session and makes it the ambient
// session, replacing any previous one.
//
// With a sign-in budget configured, repeated failures for an email (or the
// caller's goAdmin.ClientIP) yield goAdmin.ErrSignInThrottled until the
// window ends.
func (p *Provider) SignIn(ctx context.Context, email, secret string) (goAdmin.Principal, error) {
	email = normalizeEmail(email)
	ip := goAdmin.ClientIP(ctx)
	if err := p.throttle.Check(ctx, email, ip); err != nil {
		return goAdmin.Principal{}, mapThrottleError(err)
	}

	principal, err := p.verify(ctx, email, secret)
	if err != nil {
		if errors.Is(err, goAdmin.ErrInvalidCredential) {
			if limErr := p.throttle.RecordFailure(ctx, email, ip); limErr != nil && !errors.Is(limErr, rate.ErrRateLimited) {
				p.logger.Warn("redisidp: sign-in failure not counted", "error", limErr)
			}
		}
		return goAdmin.Principal{}, err
	}
	if err := p.throttle.Reset(ctx, email, ip); err != nil {
		p.logger.Warn("redisidp: sign-in throttle reset failed", "error", err)
	}

	now := p.now()
	sess := &session.Session{
		SessionID: uuid.NewString(),
		UserID:    principal.ID,
		Email:     principal.Email,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(p.ttl).Unix(),
	}
	if err := p.sessions.Save(ctx, sess); err != nil {
		return goAdmin.Principal{}, err
	}
	token, err := p.tokens.Issue(sess.UserID, sess.SessionID)
	if err != nil {
		return goAdmin.Principal{}, err
	}

	p.mu.Lock()
	previous := p.token
	p.token = token
	p.mu.Unlock()

	if previous != "" {
		p.revokeToken(ctx, previous)
	}
	p.hub.Set(true)
	return principal, nil
}

// Resume adopts an existing session token, for shells that persist it.
func (p *Provider) Resume(ctx context.Context, token string) (goAdmin.Principal, error) {
	principal, ok, err := p.resolve(ctx, token)
	if err != nil {
		return goAdmin.Principal{}, err
	}
	if !ok {
		return goAdmin.Principal{}, ErrNotSignedIn
	}
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	p.hub.Set(true)
	return principal, nil
}

// Token returns the ambient session token, empty when signed out.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// CurrentPrincipal resolves the ambient session. An expired or revoked
// session ends it locally and reports no principal.
func (p *Provider) CurrentPrincipal(ctx context.Context) (goAdmin.Principal, bool, error) {
	token := p.Token()
	if token == "" {
		return goAdmin.Principal{}, false, nil
	}
	principal, ok, err := p.resolve(ctx, token)
	if err != nil {
		return goAdmin.Principal{}, false, err
	}
	if !ok {
		p.endLocal(token)
		return goAdmin.Principal{}, false, nil
	}
	return principal, true, nil
}

// ValidateCredential checks secret against the stored hash for email.
// Unknown emails and wrong secrets both yield goAdmin.ErrInvalidCredential.
func (p *Provider) ValidateCredential(ctx context.Context, email, secret string) error {
	_, err := p.verify(ctx, email, secret)
	return err
}

// DeleteCurrentPrincipal removes the signed-in principal and revokes all of
// its sessions. Revocation failures are logged; the principal is gone.
func (p *Provider) DeleteCurrentPrincipal(ctx context.Context) error {
	principal, ok, err := p.CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotSignedIn
	}

	if _, err := deletePrincipalLua.Run(ctx, p.redis,
		[]string{p.principalKey(principal.ID)},
		p.emailKeyPrefix(), principal.ID,
	).Int64(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := p.sessions.DeleteAllForUser(ctx, principal.ID); err != nil {
		p.logger.Warn("redisidp: session revocation after delete failed", "principal_id", principal.ID, "error", err)
	}
	return nil
}

// SignOut ends the ambient session. Signing out twice is not an error.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = ""
	p.mu.Unlock()

	if token == "" {
		p.hub.Set(false)
		return nil
	}

	var err error
	if claims, parseErr := p.tokens.Parse(token); parseErr == nil {
		err = p.sessions.Delete(ctx, claims.UID, claims.SID)
	}
	p.hub.Set(false)
	return err
}

// OnSessionChange registers fn with the provider's session hub. The first
// listener starts the revocation watcher; the last unsubscribe stops it.
func (p *Provider) OnSessionChange(fn func(present bool)) (func(), error) {
	if _, _, err := p.CurrentPrincipal(context.Background()); err != nil {
		p.logger.Warn("redisidp: initial session check failed", "error", err)
	}
	return p.hub.Subscribe(fn)
}

func (p *Provider) verify(ctx context.Context, email, secret string) (goAdmin.Principal, error) {
	email = normalizeEmail(email)
	if email == "" || secret == "" {
		return goAdmin.Principal{}, goAdmin.ErrInvalidCredential
	}

	id, err := p.redis.Get(ctx, p.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return goAdmin.Principal{}, goAdmin.ErrInvalidCredential
		}
		return goAdmin.Principal{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	hash, err := p.redis.HGet(ctx, p.principalKey(id), "secret_hash").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return goAdmin.Principal{}, goAdmin.ErrInvalidCredential
		}
		return goAdmin.Principal{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := p.hasher.Verify(secret, hash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return goAdmin.Principal{}, goAdmin.ErrInvalidCredential
		}
		return goAdmin.Principal{}, err
	}
	return goAdmin.Principal{ID: id, Email: email}, nil
}

// resolve maps a token to its principal. ok is false for invalid, expired or
// revoked tokens and for principals that no longer exist.
func (p *Provider) resolve(ctx context.Context, token string) (goAdmin.Principal, bool, error) {
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return goAdmin.Principal{}, false, nil
	}
	sess, err := p.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return goAdmin.Principal{}, false, nil
		}
		return goAdmin.Principal{}, false, err
	}
	if sess.UserID != claims.UID {
		return goAdmin.Principal{}, false, nil
	}
	return goAdmin.Principal{ID: sess.UserID, Email: sess.Email}, true, nil
}

func (p *Provider) revokeToken(ctx context.Context, token string) {
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return
	}
	if err := p.sessions.Delete(ctx, claims.UID, claims.SID); err != nil {
		p.logger.Warn("redisidp: previous session not revoked", "session_id", claims.SID, "error", err)
	}
}

func mapThrottleError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return goAdmin.ErrSignInThrottled
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// endLocal drops token if it is still the ambient one.
func (p *Provider) endLocal(token string) {
	p.mu.Lock()
	if p.token != token {
		p.mu.Unlock()
		return
	}
	p.token = ""
	p.mu.Unlock()
	p.hub.Set(false)
}

// ambientSID returns the session id of the ambient token.
func (p *Provider) ambientSID() (string, string) {
	token := p.Token()
	if token == "" {
		return "", ""
	}
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return token, ""
	}
	return token, claims.SID
}
