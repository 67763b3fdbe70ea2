package goAdmin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goAdmin/internal/limiters"
)

// Panel is the account directory panel: a cached directory, a session
// monitor, a reauthentication gate and the deletion orchestrator behind it.
//
// Panel methods are safe for concurrent use. Build one with [Builder.Build],
// call [Panel.Start] once, and [Panel.Close] when the UI shell goes away.
type Panel struct {
	config    Config
	profiles  ProfileStore
	identity  IdentityProvider
	navigator Navigator
	orphans   OrphanRecorder
	limiter   *limiters.ReauthLimiter
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex

	// directory
	accounts      []AccountRecord
	lastLoad      DisplayState
	loadsInFlight int
	deleteGen     uint64
	tombstones    map[string]uint64

	// session monitor
	started         bool
	closed          bool
	sessionObserved bool
	sessionPresent  bool
	unsubscribe     func()

	// gate
	gate      GateState
	pending   *PendingDeletion
	challenge *ReauthChallenge
	deleting  bool
}

// Close cancels the session subscription and drains the audit dispatcher.
// It is safe to call more than once.
func (p *Panel) Close() {
	if p == nil {
		return
	}

	p.mu.Lock()
	p.closed = true
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if p.audit != nil {
		p.audit.Close()
	}
}

// GateState reports the resting state of the reauthentication gate.
func (p *Panel) GateState() GateState {
	if p == nil {
		return GateIdle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate
}

// Pending returns the deletion awaiting reauthentication, if any.
func (p *Panel) Pending() (PendingDeletion, bool) {
	if p == nil {
		return PendingDeletion{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return PendingDeletion{}, false
	}
	return *p.pending, true
}

// Challenge returns the open reauthentication challenge, if any.
func (p *Panel) Challenge() (ReauthChallenge, bool) {
	if p == nil {
		return ReauthChallenge{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.challenge == nil {
		return ReauthChallenge{}, false
	}
	return *p.challenge, true
}

// DeleteInFlight reports whether the orchestrator is running. Shells disable
// their delete actions while it is true.
func (p *Panel) DeleteInFlight() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleting
}

// SessionPresent reports the last session observation.
func (p *Panel) SessionPresent() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionPresent
}

func (p *Panel) AuditDropped() uint64 {
	if p == nil || p.audit == nil {
		return 0
	}
	return p.audit.Dropped()
}

func (p *Panel) MetricsSnapshot() MetricsSnapshot {
	if p == nil || p.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return p.metrics.Snapshot()
}

func (p *Panel) metricInc(id MetricID) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.Inc(id)
}

func (p *Panel) observeSince(id MetricID, start time.Time) {
	if p == nil || p.metrics == nil || !p.metrics.LatencyEnabled() {
		return
	}
	p.metrics.Observe(id, p.now().Sub(start))
}

// interactiveLocked reports why the gate may not take operator input.
func (p *Panel) interactiveLocked() error {
	if p.closed {
		return ErrPanelNotReady
	}
	if !p.sessionPresent {
		return ErrSessionAbsent
	}
	return nil
}

func (p *Panel) resetGateLocked() {
	p.gate = GateIdle
	p.pending = nil
	p.challenge = nil
}

func (p *Panel) ready() error {
	if p == nil || p.profiles == nil || p.identity == nil || p.now == nil {
		return ErrPanelNotReady
	}
	return nil
}

func (p *Panel) background(ctx context.Context) context.Context {
	return context.WithoutCancel(contextOrBackground(ctx))
}
