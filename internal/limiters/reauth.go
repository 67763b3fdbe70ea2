package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultReauthMaxAttempts = 5
	defaultReauthCooldown    = 15 * time.Minute
)

var (
	ErrReauthRateLimited = errors.New("reauth rate limited")
	ErrReauthUnavailable = errors.New("reauth limiter unavailable")
)

// ReauthLimiterConfig holds the failure budget for step-up challenges.
type ReauthLimiterConfig struct {
	Prefix      string
	MaxAttempts int
	Cooldown    time.Duration
}

// ReauthLimiter counts failed reauthentication attempts per principal. The
// window starts at the first failure and is not extended by later ones.
type ReauthLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewReauthLimiter creates a reauthentication limiter. Zero-value fields in
// cfg fall back to 5 attempts / 15m.
func NewReauthLimiter(redisClient redis.UniversalClient, cfg ReauthLimiterConfig) *ReauthLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultReauthMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultReauthCooldown
	}
	return &ReauthLimiter{
		redis:       redisClient,
		prefix:      cfg.Prefix,
		maxAttempts: int64(max),
		cooldown:    cd,
	}
}

func (l *ReauthLimiter) key(principalID string) string {
	return l.prefix + ":reauth:" + principalID
}

// Check returns ErrReauthRateLimited once the budget is spent.
func (l *ReauthLimiter) Check(ctx context.Context, principalID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(principalID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrReauthUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrReauthRateLimited
	}
	return nil
}

// RecordFailure counts one rejected credential. The returned error is
// ErrReauthRateLimited when this failure spent the last attempt.
func (l *ReauthLimiter) RecordFailure(ctx context.Context, principalID string) error {
	if l == nil {
		return nil
	}
	key := l.key(principalID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReauthUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrReauthUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrReauthRateLimited
	}
	return nil
}

// Reset clears the counter after a successful reauthentication.
func (l *ReauthLimiter) Reset(ctx context.Context, principalID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrReauthUnavailable, err)
	}
	return nil
}
