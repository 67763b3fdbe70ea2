package goAdmin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	store := newFakeStore(defaultRecords()...)
	identity := newFakeIdentity()

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	panel, err := New().
		WithConfig(cfg).
		WithProfileStore(store).
		WithIdentityProvider(identity).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := panel.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = panel.RequestDelete(context.Background(), "u-a")
	panel.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEventCarriesRequestContext(t *testing.T) {
	tp := newTestPanel(t)
	ctx := WithRequestID(WithClientIP(context.Background(), "203.0.113.7"), "req-42")

	if err := tp.RequestDelete(ctx, testOperatorID); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}

	ev, ok := findEvent(tp.auditEvents(), auditEventReauthChallenge)
	if !ok {
		t.Fatal("expected reauth_challenge audit event")
	}
	if ev.RequestID != "req-42" || ev.IP != "203.0.113.7" {
		t.Fatalf("expected request context copied, got %+v", ev)
	}
	if ev.PrincipalID != testOperatorID || ev.TargetID != testOperatorID || !ev.Success {
		t.Fatalf("unexpected event fields %+v", ev)
	}
	if ev.Timestamp.IsZero() || ev.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", ev.Timestamp)
	}
}

func TestAuditEventsNeverCarrySecrets(t *testing.T) {
	tp := newTestPanel(t)
	ctx := context.Background()
	openChallenge(t, tp)

	const wrong = "hunter2-wrong"
	_, _ = tp.SubmitCredential(ctx, wrong)
	_, _ = tp.SubmitCredential(ctx, testSecret)

	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	for _, ev := range tp.auditEvents() {
		sink.Emit(ctx, ev)
	}
	out := buf.String()
	if out == "" {
		t.Fatal("expected audit output")
	}
	if strings.Contains(out, wrong) || strings.Contains(out, testSecret) {
		t.Fatalf("audit output leaked a secret: %s", out)
	}
}

func TestAuditDispatcherCloseFlushesQueue(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e"})
	}
	dispatcher.Close()

	if got := sink.Count(); got != 10 {
		t.Fatalf("expected 10 delivered events after Close, got %d", got)
	}
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "late"})
	if got := sink.Count(); got != 10 {
		t.Fatalf("expected emit after Close ignored, got %d", got)
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   auditEventAccountDeleted,
		PrincipalID: "u1",
		TargetID:    "u1",
		Success:     true,
	})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventSessionLost})

	out := buf.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected two JSON lines, got %q", out)
	}
	if !strings.Contains(out, `"event_type":"account_deleted"`) {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !strings.Contains(out, `"principal_id":"u1"`) {
		t.Fatal("expected JSON log line to contain principal id")
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	if got := sink.Count(); got != 1 {
		t.Fatalf("expected buffered event drained on close, got %d", got)
	}
}

func TestAuditErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: nil, want: ""},
		{err: &IdentityDeleteError{TargetID: "u1", Orphaned: true}, want: auditErrOrphaned},
		{err: &IdentityDeleteError{TargetID: "u1"}, want: auditErrIdentityDelete},
		{err: errors.Join(ErrProfileDelete, errBackend), want: auditErrProfileDelete},
		{err: errors.Join(ErrFetchFailed, errBackend), want: auditErrFetchFailed},
		{err: ErrInvalidCredential, want: auditErrInvalidCredential},
		{err: fmt.Errorf("submit: %w", ErrWrongPrincipal), want: auditErrWrongPrincipal},
		{err: ErrReauthRateLimited, want: auditErrRateLimited},
		{err: ErrChallengeExpired, want: auditErrChallengeExpired},
		{err: errors.Join(ErrSignOutFailed, errBackend), want: auditErrSignOut},
		{err: ErrNoPrincipal, want: auditErrNoPrincipal},
		{err: errors.Join(ErrReauthUnavailable, errBackend), want: auditErrUnavailable},
		{err: errBackend, want: auditErrInternal},
	}

	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
