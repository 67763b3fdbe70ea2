package goAdmin

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventDirectoryLoad        = "directory_load"
	auditEventReauthChallenge      = "reauth_challenge"
	auditEventReauthSuccess        = "reauth_success"
	auditEventReauthFailure        = "reauth_failure"
	auditEventReauthCancelled      = "reauth_cancelled"
	auditEventReauthRateLimited    = "reauth_rate_limited"
	auditEventWrongPrincipal       = "wrong_principal"
	auditEventAccountDeleted       = "account_deleted"
	auditEventAccountDeleteFailure = "account_delete_failure"
	auditEventAccountOrphaned      = "account_orphaned"
	auditEventSessionLost          = "session_lost"
	auditEventSignOutFailure       = "sign_out_failure"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrFetchFailed       AuditErrorCode = "fetch_failed"
	auditErrInvalidCredential AuditErrorCode = "invalid_credential"
	auditErrWrongPrincipal    AuditErrorCode = "wrong_principal"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrChallengeExpired  AuditErrorCode = "challenge_expired"
	auditErrProfileDelete     AuditErrorCode = "profile_delete_failed"
	auditErrIdentityDelete    AuditErrorCode = "identity_delete_failed"
	auditErrOrphaned          AuditErrorCode = "orphaned"
	auditErrSignOut           AuditErrorCode = "sign_out_failed"
	auditErrNoPrincipal       AuditErrorCode = "no_principal"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (p *Panel) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	targetID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if p == nil || p.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		TargetID:    targetID,
		RequestID:   requestIDFromContext(ctx),
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	p.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case IsOrphaned(err):
		return auditErrOrphaned
	case errors.Is(err, ErrIdentityDelete):
		return auditErrIdentityDelete
	case errors.Is(err, ErrProfileDelete):
		return auditErrProfileDelete
	case errors.Is(err, ErrFetchFailed):
		return auditErrFetchFailed
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrWrongPrincipal):
		return auditErrWrongPrincipal
	case errors.Is(err, ErrReauthRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrSignOutFailed):
		return auditErrSignOut
	case errors.Is(err, ErrNoPrincipal):
		return auditErrNoPrincipal
	case errors.Is(err, ErrReauthUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
