package goAdmin

import (
	"context"
	"fmt"
)

// Start subscribes the session monitor and, when a session is present,
// performs the initial directory load. It may be called once per Panel.
//
// A failed initial load is returned (matching ErrFetchFailed) but leaves the
// Panel started; the shell retries with Load.
func (p *Panel) Start(ctx context.Context) error {
	ctx = contextOrBackground(ctx)
	if err := p.ready(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelNotReady
	}
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.mu.Unlock()

	unsubscribe, err := p.identity.OnSessionChange(p.handleSessionChange)
	if err != nil {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
		return fmt.Errorf("subscribe session changes: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		unsubscribe()
		return ErrPanelNotReady
	}
	p.unsubscribe = unsubscribe
	present := p.sessionPresent
	p.mu.Unlock()

	if !present {
		return nil
	}
	_, err = p.Load(ctx)
	return err
}

// handleSessionChange is the monitor callback. Repeated observations of the
// same presence are dropped so downstream effects run once per transition.
func (p *Panel) handleSessionChange(present bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.sessionObserved && p.sessionPresent == present {
		p.mu.Unlock()
		return
	}
	p.sessionObserved = true
	p.sessionPresent = present

	var discarded string
	if !present && p.gate == GateChallenged {
		// A verifying gate finishes on its own; an open prompt has nobody
		// left to answer it.
		discarded = p.pending.TargetID
		p.resetGateLocked()
	}
	p.mu.Unlock()

	if present {
		return
	}

	ctx := context.Background()
	p.metricInc(MetricSessionLost)
	p.emitAudit(ctx, auditEventSessionLost, true, "", discarded, nil, nil)
	p.navigator.Navigate(ctx, Destination{Kind: DestinationLogin})
}
