package goAdmin

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// deleteAccount runs the verified deletion: profile record first, identity
// second, then cache filtering and sign-out. Store calls are detached from
// ctx cancellation and bounded by Deletion.StoreTimeout instead; an issued
// delete is never abandoned halfway.
func (p *Panel) deleteAccount(ctx context.Context, intent PendingDeletion, verified Principal) (*DeleteResult, error) {
	start := p.now()
	defer p.observeSince(MetricDeleteLatency, start)

	storeCtx := p.background(ctx)
	targetID := intent.TargetID

	if err := p.withStoreTimeout(storeCtx, func(c context.Context) error {
		return p.profiles.DeleteByID(c, targetID)
	}); err != nil {
		err = errors.Join(ErrProfileDelete, err)
		p.metricInc(MetricProfileDeleteFailure)
		p.emitAudit(ctx, auditEventAccountDeleteFailure, false, verified.ID, targetID, err, func() map[string]string {
			return map[string]string{
				"phase": "profile",
			}
		})
		p.logger.Warn("goAdmin: profile delete failed", "target_id", targetID, "error", err)
		return nil, err
	}

	// The profile record is gone from here on. Every failure below leaves an
	// identity without a profile.
	principal, err := p.currentPrincipal(storeCtx)
	if err == nil && principal.ID != targetID {
		err = ErrWrongPrincipal
	}
	if err == nil {
		err = p.withStoreTimeout(storeCtx, func(c context.Context) error {
			return p.identity.DeleteCurrentPrincipal(c)
		})
	}
	if err != nil {
		return nil, p.reportOrphan(ctx, storeCtx, targetID, verified, err)
	}

	p.mu.Lock()
	p.removeAccountLocked(targetID)
	p.mu.Unlock()

	p.metricInc(MetricAccountDeleted)
	p.emitAudit(ctx, auditEventAccountDeleted, true, verified.ID, targetID, nil, nil)

	result := &DeleteResult{TargetID: targetID, SignedOut: true}
	if err := p.withStoreTimeout(storeCtx, p.identity.SignOut); err != nil {
		result.SignedOut = false
		result.SignOutErr = errors.Join(ErrSignOutFailed, err)
		p.metricInc(MetricSignOutFailure)
		p.emitAudit(ctx, auditEventSignOutFailure, false, verified.ID, targetID, result.SignOutErr, nil)
		p.logger.Warn("goAdmin: sign out after deletion failed", "target_id", targetID, "error", err)
	}
	return result, nil
}

// reportOrphan records a phase-two failure. The returned error is always an
// orphaned *IdentityDeleteError; ledger failures are logged, not returned.
func (p *Panel) reportOrphan(ctx, storeCtx context.Context, targetID string, verified Principal, cause error) error {
	idErr := &IdentityDeleteError{
		TargetID: targetID,
		Orphaned: true,
		Err:      cause,
	}

	if p.orphans != nil {
		report := OrphanReport{
			TargetID:   targetID,
			Email:      verified.Email,
			DetectedAt: p.now().UTC(),
			Cause:      cause.Error(),
		}
		var incidentID string
		err := p.withStoreTimeout(storeCtx, func(c context.Context) error {
			var recErr error
			incidentID, recErr = p.orphans.RecordOrphan(c, report)
			return recErr
		})
		if err != nil {
			p.logger.Error("goAdmin: orphan incident not recorded", "target_id", targetID, "error", err)
		} else {
			idErr.IncidentID = incidentID
		}
	}

	p.metricInc(MetricIdentityDeleteFailure)
	p.metricInc(MetricOrphanDetected)
	p.emitAudit(ctx, auditEventAccountOrphaned, false, verified.ID, targetID, idErr, func() map[string]string {
		meta := map[string]string{
			"phase": "identity",
		}
		if idErr.IncidentID != "" {
			meta["incident_id"] = idErr.IncidentID
		}
		return meta
	})
	p.logger.Error("goAdmin: identity delete failed after profile delete",
		"target_id", targetID,
		"incident_id", idErr.IncidentID,
		"error", cause,
	)
	return idErr
}

func (p *Panel) withStoreTimeout(ctx context.Context, fn func(context.Context) error) error {
	timeout := p.config.Deletion.StoreTimeout
	if timeout <= 0 {
		return fn(ctx)
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(c); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("store call exceeded %s: %w", timeout.Round(time.Millisecond), err)
		}
		return err
	}
	return nil
}
