// Package kratosidp adapts an Ory Kratos deployment to goAdmin.IdentityProvider
// using the native (token based) self-service flows.
//
// The ambient session is a Kratos session token held by the Provider.
// Credential validation runs a refresh login flow against that session so
// Kratos itself decides whether the secret is right. Identity deletion goes
// through the admin API.
package kratosidp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/internal/sessionhub"
	kratos "github.com/ory/kratos-client-go"
)

var (
	// ErrKratosUnavailable wraps transport failures and unexpected statuses.
	ErrKratosUnavailable = errors.New("kratos unavailable")
	// ErrNotSignedIn is returned by operations that need the ambient session.
	ErrNotSignedIn = errors.New("not signed in")
)

// Config points the Provider at Kratos.
type Config struct {
	PublicURL    string
	AdminURL     string
	Timeout      time.Duration // per request, default 5s
	PollInterval time.Duration // session check while listeners exist, default 30s
}

// Provider implements goAdmin.IdentityProvider against Kratos.
type Provider struct {
	public *kratos.APIClient
	admin  *kratos.APIClient
	poll   time.Duration
	hub    *sessionhub.Hub
	logger *slog.Logger

	mu    sync.Mutex
	token string

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func newAPIClient(baseURL string, httpClient *http.Client) *kratos.APIClient {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: baseURL},
	}
	configuration.HTTPClient = httpClient
	return kratos.NewAPIClient(configuration)
}

// New builds a Provider. logger may be nil.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.PublicURL == "" || cfg.AdminURL == "" {
		return nil, errors.New("kratos public and admin URLs are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	p := &Provider{
		public: newAPIClient(cfg.PublicURL, httpClient),
		admin:  newAPIClient(cfg.AdminURL, httpClient),
		poll:   cfg.PollInterval,
		logger: logger,
	}
	p.hub = sessionhub.New(false, p.startWatch, p.stopWatch)
	return p, nil
}

// SignIn runs a native login flow and adopts the issued session token.
func (p *Provider) SignIn(ctx context.Context, email, secret string) (goAdmin.Principal, error) {
	flow, resp, err := p.public.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return goAdmin.Principal{}, unavailable("create login flow", resp, err)
	}

	login, resp, err := p.submitPassword(ctx, flow.Id, "", email, secret)
	if err != nil {
		return goAdmin.Principal{}, mapLoginError(resp, err)
	}
	if login.SessionToken == nil || *login.SessionToken == "" {
		return goAdmin.Principal{}, fmt.Errorf("%w: login returned no session token", ErrKratosUnavailable)
	}

	principal, ok := principalFromSession(&login.Session)
	if !ok {
		return goAdmin.Principal{}, fmt.Errorf("%w: login session has no identity", ErrKratosUnavailable)
	}

	p.mu.Lock()
	p.token = *login.SessionToken
	p.mu.Unlock()
	p.hub.Set(true)
	return principal, nil
}

// Resume adopts an existing Kratos session token.
func (p *Provider) Resume(ctx context.Context, token string) (goAdmin.Principal, error) {
	principal, ok, err := p.whoami(ctx, token)
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

func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// CurrentPrincipal asks Kratos who owns the ambient session token. A 401 or
// 403 ends the session locally.
func (p *Provider) CurrentPrincipal(ctx context.Context) (goAdmin.Principal, bool, error) {
	token := p.Token()
	if token == "" {
		return goAdmin.Principal{}, false, nil
	}
	principal, ok, err := p.whoami(ctx, token)
	if err != nil {
		return goAdmin.Principal{}, false, err
	}
	if !ok {
		p.endLocal(token)
		return goAdmin.Principal{}, false, nil
	}
	return principal, true, nil
}

// ValidateCredential runs a refresh login flow bound to the ambient session.
// Kratos answers a wrong password with 400, mapped to
// goAdmin.ErrInvalidCredential.
func (p *Provider) ValidateCredential(ctx context.Context, email, secret string) error {
	token := p.Token()
	if token == "" {
		return ErrNotSignedIn
	}
	if email == "" || secret == "" {
		return goAdmin.ErrInvalidCredential
	}

	flow, resp, err := p.public.FrontendAPI.CreateNativeLoginFlow(ctx).
		Refresh(true).
		XSessionToken(token).
		Execute()
	if err != nil {
		return unavailable("create refresh flow", resp, err)
	}

	_, resp, err = p.submitPassword(ctx, flow.Id, token, email, secret)
	if err != nil {
		return mapLoginError(resp, err)
	}
	return nil
}

// DeleteCurrentPrincipal deletes the identity behind the ambient session
// through the admin API. A 404 counts as deleted.
func (p *Provider) DeleteCurrentPrincipal(ctx context.Context) error {
	principal, ok, err := p.CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotSignedIn
	}

	resp, err := p.admin.IdentityAPI.DeleteIdentity(ctx, principal.ID).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return unavailable("delete identity", resp, err)
	}
	return nil
}

// SignOut revokes the ambient session token. A token Kratos no longer
// knows is treated as signed out.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = ""
	p.mu.Unlock()
	defer p.hub.Set(false)

	if token == "" {
		return nil
	}

	resp, err := p.public.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return nil
			}
		}
		return unavailable("logout", resp, err)
	}
	return nil
}

// OnSessionChange registers fn with the provider's session hub. While any
// listener is registered the session is polled every PollInterval.
func (p *Provider) OnSessionChange(fn func(present bool)) (func(), error) {
	if _, _, err := p.CurrentPrincipal(context.Background()); err != nil {
		p.logger.Warn("kratosidp: initial session check failed", "error", err)
	}
	return p.hub.Subscribe(fn)
}

// Close stops the session poller.
func (p *Provider) Close() {
	p.stopWatch()
}

func (p *Provider) submitPassword(ctx context.Context, flowID, token, email, secret string) (*kratos.SuccessfulNativeLogin, *http.Response, error) {
	body := kratos.UpdateLoginFlowWithPasswordMethod{
		Identifier: email,
		Method:     "password",
		Password:   secret,
	}
	req := p.public.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flowID).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body))
	if token != "" {
		req = req.XSessionToken(token)
	}
	return req.Execute()
}

func (p *Provider) whoami(ctx context.Context, token string) (goAdmin.Principal, bool, error) {
	sess, resp, err := p.public.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return goAdmin.Principal{}, false, nil
		}
		return goAdmin.Principal{}, false, unavailable("whoami", resp, err)
	}
	if sess.Active != nil && !*sess.Active {
		return goAdmin.Principal{}, false, nil
	}
	principal, ok := principalFromSession(sess)
	return principal, ok, nil
}

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

func principalFromSession(sess *kratos.Session) (goAdmin.Principal, bool) {
	if sess == nil || sess.Identity == nil || sess.Identity.Id == "" {
		return goAdmin.Principal{}, false
	}
	email := ""
	if traits, ok := sess.Identity.Traits.(map[string]interface{}); ok {
		if v, ok := traits["email"].(string); ok {
			email = v
		}
	}
	return goAdmin.Principal{ID: sess.Identity.Id, Email: email}, true
}

func mapLoginError(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusBadRequest {
		return goAdmin.ErrInvalidCredential
	}
	return unavailable("submit login flow", resp, err)
}

func unavailable(op string, resp *http.Response, err error) error {
	if resp != nil {
		return fmt.Errorf("%w: %s: status %d: %v", ErrKratosUnavailable, op, resp.StatusCode, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrKratosUnavailable, op, err)
}
