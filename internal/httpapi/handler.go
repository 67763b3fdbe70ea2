package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/go-chi/chi/v5"
)

// Panel is the subset of *goAdmin.Panel the handlers drive.
type Panel interface {
	Load(ctx context.Context) ([]goAdmin.AccountRecord, error)
	Accounts() []goAdmin.AccountRecord
	DisplayState() goAdmin.DisplayState
	Edit(ctx context.Context, id string) error
	RequestDelete(ctx context.Context, targetID string) error
	SubmitCredential(ctx context.Context, secret string) (goAdmin.SubmitResult, error)
	CancelReauth(ctx context.Context) error
	GateState() goAdmin.GateState
	Pending() (goAdmin.PendingDeletion, bool)
	Challenge() (goAdmin.ReauthChallenge, bool)
	DeleteInFlight() bool
	SessionPresent() bool
}

// Authenticator establishes and ends the ambient session. Both identity
// adapters implement it.
type Authenticator interface {
	SignIn(ctx context.Context, email, secret string) (goAdmin.Principal, error)
	SignOut(ctx context.Context) error
}

type signInRequest struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	Secret string `json:"secret" validate:"required,max=1024"`
}

// An empty secret is passed through; the gate rejects it itself.
type reauthRequest struct {
	Secret string `json:"secret" validate:"max=1024"`
}

type accountsResponse struct {
	State    string                  `json:"state"`
	Accounts []goAdmin.AccountRecord `json:"accounts"`
}

type pendingResponse struct {
	TargetID    string `json:"targetId"`
	RequestedAt string `json:"requestedAt"`
	Attempts    int    `json:"attempts"`
}

type stateResponse struct {
	Display        string           `json:"display"`
	Gate           string           `json:"gate"`
	SessionPresent bool             `json:"sessionPresent"`
	Deleting       bool             `json:"deleting"`
	Pending        *pendingResponse `json:"pending"`
	Redirect       string           `json:"redirect,omitempty"`
}

type submitResponse struct {
	Outcome   string `json:"outcome"`
	Gate      string `json:"gate"`
	TargetID  string `json:"targetId,omitempty"`
	SignedOut bool   `json:"signedOut"`
	Redirect  string `json:"redirect,omitempty"`
}

// PanelHandler serves the panel endpoints.
type PanelHandler struct {
	panel    Panel
	auth     Authenticator
	nav      *Navigator
	validate *requestValidator
	logger   *slog.Logger
}

func NewPanelHandler(panel Panel, auth Authenticator, nav *Navigator, logger *slog.Logger) *PanelHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if nav == nil {
		nav = NewNavigator()
	}
	return &PanelHandler{
		panel:    panel,
		auth:     auth,
		nav:      nav,
		validate: newRequestValidator(),
		logger:   logger,
	}
}

// SignIn handles POST /session.
func (h *PanelHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	if h.auth == nil {
		fail(w, http.StatusNotImplemented, "NOT_SUPPORTED", "Sign-in is not available", requestID)
		return
	}

	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	principal, err := h.auth.SignIn(r.Context(), req.Email, req.Secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.nav.Take()

	// The session hub has already told the panel; this is the mount-time load.
	if _, err := h.panel.Load(r.Context()); err != nil {
		h.logger.Warn("directory load after sign-in failed", "error", err, "requestId", requestID)
	}
	success(w, http.StatusOK, map[string]string{"id": principal.ID, "email": principal.Email}, requestID)
}

// SignOut handles DELETE /session.
func (h *PanelHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	if h.auth == nil {
		fail(w, http.StatusNotImplemented, "NOT_SUPPORTED", "Sign-out is not available", requestID)
		return
	}
	if err := h.auth.SignOut(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccounts handles GET /accounts and serves the cache.
func (h *PanelHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	success(w, http.StatusOK, accountsResponse{
		State:    h.panel.DisplayState().String(),
		Accounts: h.panel.Accounts(),
	}, getRequestID(r.Context()))
}

// Reload handles POST /accounts/reload.
func (h *PanelHandler) Reload(w http.ResponseWriter, r *http.Request) {
	records, err := h.panel.Load(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, accountsResponse{
		State:    h.panel.DisplayState().String(),
		Accounts: records,
	}, getRequestID(r.Context()))
}

// Edit handles GET /accounts/{id}/edit.
func (h *PanelHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	if err := h.panel.Edit(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	dest, _ := h.nav.Take()
	success(w, http.StatusOK, map[string]string{"redirect": dest.Path()}, getRequestID(r.Context()))
}

// RequestDelete handles POST /accounts/{id}/delete.
func (h *PanelHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	if err := h.panel.RequestDelete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	success(w, http.StatusAccepted, h.state(), getRequestID(r.Context()))
}

// SubmitReauth handles POST /reauth.
func (h *PanelHandler) SubmitReauth(w http.ResponseWriter, r *http.Request) {
	var req reauthRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.panel.SubmitCredential(r.Context(), req.Secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := submitResponse{
		Outcome: result.Outcome.String(),
		Gate:    result.State.String(),
	}
	if result.Delete != nil {
		resp.TargetID = result.Delete.TargetID
		resp.SignedOut = result.Delete.SignedOut
	}
	if dest, ok := h.nav.Take(); ok {
		resp.Redirect = dest.Path()
	}
	success(w, http.StatusOK, resp, getRequestID(r.Context()))
}

// CancelReauth handles DELETE /reauth.
func (h *PanelHandler) CancelReauth(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.CancelReauth(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// State handles GET /state.
func (h *PanelHandler) State(w http.ResponseWriter, r *http.Request) {
	st := h.state()
	if dest, ok := h.nav.Take(); ok {
		st.Redirect = dest.Path()
	}
	success(w, http.StatusOK, st, getRequestID(r.Context()))
}

func (h *PanelHandler) state() stateResponse {
	st := stateResponse{
		Display:        h.panel.DisplayState().String(),
		Gate:           h.panel.GateState().String(),
		SessionPresent: h.panel.SessionPresent(),
		Deleting:       h.panel.DeleteInFlight(),
	}
	if pending, ok := h.panel.Pending(); ok {
		st.Pending = &pendingResponse{
			TargetID:    pending.TargetID,
			RequestedAt: pending.RequestedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if challenge, ok := h.panel.Challenge(); ok {
			st.Pending.Attempts = challenge.Attempts
		}
	}
	return st
}

func (h *PanelHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	requestID := getRequestID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		fail(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return false
	}
	if fieldErrors := h.validate.fieldErrors(dst); len(fieldErrors) > 0 {
		failWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return false
	}
	return true
}

func (h *PanelHandler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := h.validate.accountID(id); err != nil {
		fail(w, http.StatusBadRequest, "INVALID_ID", "Account id is invalid", getRequestID(r.Context()))
		return "", false
	}
	return id, true
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Checked in order: the first match wins.
var errorMappings = []errorMapping{
	{goAdmin.ErrReauthRateLimited, http.StatusTooManyRequests, "REAUTH_RATE_LIMITED", "Too many failed attempts, try again later"},
	{goAdmin.ErrSignInThrottled, http.StatusTooManyRequests, "SIGN_IN_THROTTLED", "Too many failed sign-in attempts, try again later"},
	{goAdmin.ErrInvalidCredential, http.StatusUnauthorized, "INVALID_CREDENTIAL", "The credential was not accepted"},
	{goAdmin.ErrSessionAbsent, http.StatusUnauthorized, "SESSION_ABSENT", "No active session"},
	{goAdmin.ErrNoPrincipal, http.StatusUnauthorized, "NO_PRINCIPAL", "No user is signed in"},
	{goAdmin.ErrWrongPrincipal, http.StatusForbidden, "WRONG_PRINCIPAL", "No user signed in or wrong user"},
	{goAdmin.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found"},
	{goAdmin.ErrDeletionPending, http.StatusConflict, "DELETION_PENDING", "Another deletion is awaiting reauthentication"},
	{goAdmin.ErrNoPendingDeletion, http.StatusConflict, "NO_PENDING_DELETION", "No deletion is awaiting reauthentication"},
	{goAdmin.ErrGateBusy, http.StatusConflict, "GATE_BUSY", "A deletion is in progress"},
	{goAdmin.ErrChallengeExpired, http.StatusGone, "CHALLENGE_EXPIRED", "The reauthentication challenge expired"},
	{goAdmin.ErrProfileDelete, http.StatusBadGateway, "PROFILE_DELETE_FAILED", "The profile could not be deleted"},
	{goAdmin.ErrIdentityDelete, http.StatusBadGateway, "IDENTITY_DELETE_FAILED", "The profile was deleted but the identity was not"},
	{goAdmin.ErrFetchFailed, http.StatusBadGateway, "FETCH_FAILED", "The account directory could not be loaded"},
	{goAdmin.ErrReauthUnavailable, http.StatusServiceUnavailable, "REAUTH_UNAVAILABLE", "The identity provider is unavailable"},
	{goAdmin.ErrPanelNotReady, http.StatusServiceUnavailable, "PANEL_NOT_READY", "The panel is not running"},
}

func (h *PanelHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := getRequestID(r.Context())
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		var idErr *goAdmin.IdentityDeleteError
		if errors.As(err, &idErr) {
			failWithDetails(w, m.status, m.code, m.message, map[string]any{
				"targetId":   idErr.TargetID,
				"orphaned":   idErr.Orphaned,
				"incidentId": idErr.IncidentID,
			}, requestID)
			return
		}
		fail(w, m.status, m.code, m.message, requestID)
		return
	}

	h.logger.Error("unhandled panel error", "error", err, "requestId", requestID)
	fail(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", requestID)
}
