package goAdmin

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed is returned by Load when the profile store could not list accounts.
	ErrFetchFailed = errors.New("account directory fetch failed")
	// ErrInvalidCredential is returned when the identity provider rejects the offered secret.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrWrongPrincipal is returned when the deletion target is not the signed-in principal.
	ErrWrongPrincipal = errors.New("no user signed in or wrong user")
	// ErrProfileDelete is returned when the profile-store delete (phase one) fails.
	ErrProfileDelete = errors.New("profile delete failed")
	// ErrIdentityDelete is matched by every *IdentityDeleteError.
	ErrIdentityDelete = errors.New("identity delete failed")
	// ErrReauthUnavailable is returned when credential validation failed for a non-credential reason.
	ErrReauthUnavailable = errors.New("reauthentication backend unavailable")
	// ErrReauthRateLimited is returned when the operator exhausted the reauthentication attempt budget.
	ErrReauthRateLimited = errors.New("reauthentication rate limited")
	// ErrDeletionPending is returned when a delete is requested while another one awaits reauthentication.
	ErrDeletionPending = errors.New("a deletion is already pending")
	// ErrNoPendingDeletion is returned by gate input when no challenge is open.
	ErrNoPendingDeletion = errors.New("no pending deletion")
	// ErrGateBusy is returned while a credential check or deletion is in flight.
	ErrGateBusy = errors.New("reauthentication gate busy")
	// ErrChallengeExpired is returned when the open challenge outlived Gate.ChallengeTTL.
	ErrChallengeExpired = errors.New("reauthentication challenge expired")
	// ErrSessionAbsent is returned once the ambient session has ended.
	ErrSessionAbsent = errors.New("session absent")
	// ErrNoPrincipal is returned when the identity provider reports no signed-in principal.
	ErrNoPrincipal = errors.New("no signed-in principal")
	// ErrAccountNotFound is returned when an id is not present in the cached directory.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSignOutFailed marks a sign-out failure after a completed deletion.
	ErrSignOutFailed = errors.New("sign out failed")
	// ErrSignInThrottled is returned by identity providers that refuse sign-in after repeated failures.
	ErrSignInThrottled = errors.New("sign-in throttled")
	// ErrAlreadyStarted is returned by a second Panel.Start.
	ErrAlreadyStarted = errors.New("panel already started")
	// ErrPanelNotReady is returned when a Panel was not built through Builder.Build.
	ErrPanelNotReady = errors.New("panel not initialized")
)

// IdentityDeleteError reports a phase-two failure of the deletion workflow.
//
// Orphaned is true whenever the profile record was already removed, which is
// always the case when this error is produced by the orchestrator. Such a
// failure is not retried by the panel and needs reconciliation; IncidentID
// names the persisted incident when an OrphanRecorder is configured.
type IdentityDeleteError struct {
	TargetID   string
	Orphaned   bool
	IncidentID string
	Err        error
}

func (e *IdentityDeleteError) Error() string {
	if e == nil {
		return ErrIdentityDelete.Error()
	}
	msg := fmt.Sprintf("%s: target=%s orphaned=%t", ErrIdentityDelete.Error(), e.TargetID, e.Orphaned)
	if e.IncidentID != "" {
		msg += " incident=" + e.IncidentID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IdentityDeleteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrIdentityDelete.
func (e *IdentityDeleteError) Is(target error) bool {
	return target == ErrIdentityDelete
}

// IsOrphaned reports whether err carries an orphaned IdentityDeleteError.
func IsOrphaned(err error) bool {
	var idErr *IdentityDeleteError
	return errors.As(err, &idErr) && idErr.Orphaned
}
