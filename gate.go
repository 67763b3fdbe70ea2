package goAdmin

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goAdmin/internal/limiters"
)

// RequestDelete opens a reauthentication challenge for targetID.
//
// The target must be cached and must be the signed-in principal; any other
// target is rejected with ErrWrongPrincipal before a credential is ever
// requested. While a challenge is already open the outcome follows
// Config.Gate.PendingPolicy. While a credential check or deletion is running
// every request fails with ErrGateBusy.
func (p *Panel) RequestDelete(ctx context.Context, targetID string) error {
	ctx = contextOrBackground(ctx)
	if err := p.ready(); err != nil {
		return err
	}

	principal, principalErr := p.currentPrincipal(ctx)

	p.mu.Lock()
	if err := p.interactiveLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.gate == GateVerifying {
		p.mu.Unlock()
		return ErrGateBusy
	}
	if p.gate == GateChallenged && p.config.Gate.PendingPolicy == PendingReject {
		p.mu.Unlock()
		return ErrDeletionPending
	}
	if p.indexLocked(targetID) < 0 {
		p.mu.Unlock()
		return ErrAccountNotFound
	}
	if principalErr != nil {
		p.mu.Unlock()
		return principalErr
	}

	var replaced string
	if p.pending != nil {
		replaced = p.pending.TargetID
	}

	if principal.ID != targetID {
		p.resetGateLocked()
		p.mu.Unlock()

		p.metricInc(MetricWrongPrincipal)
		p.emitAudit(ctx, auditEventWrongPrincipal, false, principal.ID, targetID, ErrWrongPrincipal, func() map[string]string {
			return map[string]string{
				"stage": "request",
			}
		})
		return ErrWrongPrincipal
	}

	now := p.now()
	p.pending = &PendingDeletion{TargetID: targetID, RequestedAt: now}
	p.challenge = &ReauthChallenge{
		TargetID:    targetID,
		PrincipalID: principal.ID,
		IssuedAt:    now,
	}
	p.gate = GateChallenged
	p.mu.Unlock()

	p.metricInc(MetricReauthChallenged)
	p.emitAudit(ctx, auditEventReauthChallenge, true, principal.ID, targetID, nil, func() map[string]string {
		if replaced == "" {
			return nil
		}
		return map[string]string{
			"replaced_target": replaced,
		}
	})
	return nil
}

// SubmitCredential answers the open challenge with secret.
//
// The secret is validated against the signed-in principal, never against the
// deletion target; the two are re-checked for equality first. A wrong secret
// or an unreachable identity provider leaves the gate Challenged with the
// pending deletion intact. Acceptance runs the deletion and resets the gate
// to Idle whatever the deletion outcome; the deletion error, if any, is
// returned.
func (p *Panel) SubmitCredential(ctx context.Context, secret string) (SubmitResult, error) {
	ctx = contextOrBackground(ctx)
	if err := p.ready(); err != nil {
		return SubmitResult{}, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return SubmitResult{State: GateIdle}, ErrPanelNotReady
	}
	switch p.gate {
	case GateVerifying:
		p.mu.Unlock()
		return SubmitResult{State: GateVerifying}, ErrGateBusy
	case GateIdle:
		p.mu.Unlock()
		return SubmitResult{State: GateIdle}, ErrNoPendingDeletion
	}
	if err := p.interactiveLocked(); err != nil {
		p.mu.Unlock()
		return SubmitResult{State: p.gate}, err
	}
	challenge := *p.challenge
	if ttl := p.config.Gate.ChallengeTTL; ttl > 0 && p.now().Sub(challenge.IssuedAt) > ttl {
		p.resetGateLocked()
		p.mu.Unlock()

		p.metricInc(MetricReauthExpired)
		p.emitAudit(ctx, auditEventReauthFailure, false, challenge.PrincipalID, challenge.TargetID, ErrChallengeExpired, nil)
		return SubmitResult{Outcome: OutcomeRejected, State: GateIdle}, ErrChallengeExpired
	}
	p.gate = GateVerifying
	p.mu.Unlock()

	principal, err := p.currentPrincipal(ctx)
	if err != nil {
		if errors.Is(err, ErrNoPrincipal) {
			return p.rejectWrongPrincipal(ctx, challenge, "", err)
		}
		return p.backToChallenged(ctx, challenge, err), err
	}
	if principal.ID != challenge.TargetID {
		return p.rejectWrongPrincipal(ctx, challenge, principal.ID, ErrWrongPrincipal)
	}

	if secret == "" {
		p.metricInc(MetricReauthInvalid)
		return p.backToChallenged(ctx, challenge, ErrInvalidCredential), ErrInvalidCredential
	}

	if err := p.limiter.Check(ctx, principal.ID); err != nil {
		mapped := mapReauthLimiterError(err)
		if errors.Is(mapped, ErrReauthRateLimited) {
			p.metricInc(MetricReauthRateLimited)
			p.emitAudit(ctx, auditEventReauthRateLimited, false, principal.ID, challenge.TargetID, mapped, nil)
		}
		return p.backToChallenged(ctx, challenge, mapped), mapped
	}

	verifyCtx, cancel := context.WithTimeout(ctx, p.config.Gate.VerifyTimeout)
	err = p.identity.ValidateCredential(verifyCtx, principal.Email, secret)
	cancel()
	secret = ""
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			p.metricInc(MetricReauthInvalid)
			if limErr := p.limiter.RecordFailure(ctx, principal.ID); limErr != nil && !errors.Is(limErr, limiters.ErrReauthRateLimited) {
				p.logger.Warn("goAdmin: reauth failure not counted", "principal_id", principal.ID, "error", limErr)
			}
			return p.backToChallenged(ctx, challenge, ErrInvalidCredential), ErrInvalidCredential
		}
		mapped := errors.Join(ErrReauthUnavailable, err)
		p.metricInc(MetricReauthUnavailable)
		return p.backToChallenged(ctx, challenge, mapped), mapped
	}

	if err := p.limiter.Reset(ctx, principal.ID); err != nil {
		p.logger.Warn("goAdmin: reauth limiter reset failed", "principal_id", principal.ID, "error", err)
	}

	p.mu.Lock()
	if !p.sessionPresent || p.closed {
		p.resetGateLocked()
		p.mu.Unlock()
		return SubmitResult{Outcome: OutcomeRejected, State: GateIdle}, ErrSessionAbsent
	}
	intent := *p.pending
	p.deleting = true
	p.mu.Unlock()

	p.metricInc(MetricReauthSuccess)
	p.emitAudit(ctx, auditEventReauthSuccess, true, principal.ID, intent.TargetID, nil, func() map[string]string {
		return map[string]string{
			"attempts": strconv.Itoa(challenge.Attempts + 1),
		}
	})

	result, deleteErr := p.deleteAccount(ctx, intent, principal)

	p.mu.Lock()
	p.deleting = false
	p.resetGateLocked()
	p.mu.Unlock()

	return SubmitResult{Outcome: OutcomeVerified, State: GateIdle, Delete: result}, deleteErr
}

// CancelReauth discards the pending deletion.
func (p *Panel) CancelReauth(ctx context.Context) error {
	ctx = contextOrBackground(ctx)
	if err := p.ready(); err != nil {
		return err
	}

	p.mu.Lock()
	switch p.gate {
	case GateVerifying:
		p.mu.Unlock()
		return ErrGateBusy
	case GateIdle:
		p.mu.Unlock()
		return ErrNoPendingDeletion
	}
	challenge := *p.challenge
	p.resetGateLocked()
	p.mu.Unlock()

	p.metricInc(MetricReauthCancelled)
	p.emitAudit(ctx, auditEventReauthCancelled, true, challenge.PrincipalID, challenge.TargetID, nil, nil)
	return nil
}

// backToChallenged restores the challenge after a recoverable failure and
// reports the resulting state. If the session ended meanwhile the gate goes
// Idle instead.
func (p *Panel) backToChallenged(ctx context.Context, challenge ReauthChallenge, cause error) SubmitResult {
	p.mu.Lock()
	state := GateChallenged
	if !p.sessionPresent || p.closed {
		p.resetGateLocked()
		state = GateIdle
	} else {
		p.gate = GateChallenged
		if p.challenge != nil {
			p.challenge.Attempts++
			challenge = *p.challenge
		}
	}
	p.mu.Unlock()

	p.emitAudit(ctx, auditEventReauthFailure, false, challenge.PrincipalID, challenge.TargetID, cause, func() map[string]string {
		return map[string]string{
			"attempts": strconv.Itoa(challenge.Attempts),
		}
	})
	return SubmitResult{Outcome: OutcomeNone, State: state}
}

func (p *Panel) rejectWrongPrincipal(ctx context.Context, challenge ReauthChallenge, principalID string, cause error) (SubmitResult, error) {
	p.mu.Lock()
	p.resetGateLocked()
	p.mu.Unlock()

	p.metricInc(MetricWrongPrincipal)
	p.emitAudit(ctx, auditEventWrongPrincipal, false, principalID, challenge.TargetID, cause, func() map[string]string {
		return map[string]string{
			"stage": "submit",
		}
	})
	return SubmitResult{Outcome: OutcomeRejected, State: GateIdle}, cause
}

// currentPrincipal reads the signed-in principal. Absence maps to
// ErrNoPrincipal; lookup failures map to ErrReauthUnavailable.
func (p *Panel) currentPrincipal(ctx context.Context) (Principal, error) {
	principal, ok, err := p.identity.CurrentPrincipal(ctx)
	if err != nil {
		return Principal{}, errors.Join(ErrReauthUnavailable, err)
	}
	if !ok || principal.ID == "" {
		return Principal{}, ErrNoPrincipal
	}
	return principal, nil
}

func mapReauthLimiterError(err error) error {
	switch {
	case errors.Is(err, limiters.ErrReauthRateLimited):
		return ErrReauthRateLimited
	default:
		return errors.Join(ErrReauthUnavailable, err)
	}
}
