package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, cfg)
}

func TestLimiterEmailBudget(t *testing.T) {
	_, l := newTestLimiter(t, Config{Prefix: "t", MaxAttempts: 2, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.RecordFailure(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("first failure: %v", err)
	}
	if err := l.Check(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("check after one failure: %v", err)
	}
	if err := l.RecordFailure(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on last failure, got %v", err)
	}
	if err := l.Check(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "b@example.com", ""); err != nil {
		t.Fatalf("other email must be unaffected, got %v", err)
	}

	n, err := l.Attempts(ctx, "a@example.com")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 attempts, got %d err=%v", n, err)
	}
}

func TestLimiterIPBudgetSpansEmails(t *testing.T) {
	_, l := newTestLimiter(t, Config{Prefix: "t", MaxAttempts: 2, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a@example.com", "198.51.100.1")
	_ = l.RecordFailure(ctx, "b@example.com", "198.51.100.1")

	if err := l.Check(ctx, "c@example.com", "198.51.100.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget spent, got %v", err)
	}
	if err := l.Check(ctx, "c@example.com", "198.51.100.2"); err != nil {
		t.Fatalf("other IP must be unaffected, got %v", err)
	}
}

func TestLimiterResetAndExpiry(t *testing.T) {
	mr, l := newTestLimiter(t, Config{Prefix: "t", MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a@example.com", "")
	if err := l.Reset(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Check(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected budget restored, got %v", err)
	}

	_ = l.RecordFailure(ctx, "a@example.com", "")
	mr.FastForward(61 * time.Second)
	if err := l.Check(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected window expired, got %v", err)
	}
}

func TestLimiterResetClearsIPCounter(t *testing.T) {
	mr, l := newTestLimiter(t, Config{Prefix: "t", MaxAttempts: 3, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a@example.com", "203.0.113.7")
	_ = l.RecordFailure(ctx, "a@example.com", "203.0.113.7")
	if !mr.Exists("t:sii:203.0.113.7") {
		t.Fatal("expected IP counter recorded")
	}
	if err := l.Reset(ctx, "a@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if mr.Exists("t:si:a@example.com") || mr.Exists("t:sii:203.0.113.7") {
		t.Fatal("expected email and IP counters cleared")
	}
}

func TestLimiterRedisFailure(t *testing.T) {
	mr, l := newTestLimiter(t, Config{Prefix: "t", MaxAttempts: 3, Cooldown: time.Minute})
	mr.SetError("LOADING redis is loading the dataset")

	if err := l.Check(context.Background(), "a@example.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.RecordFailure(context.Background(), "a@example.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
