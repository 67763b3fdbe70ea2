// Package reconcile persists orphan incidents: profile records that were
// deleted while the matching identity survived. Operators list open
// incidents and resolve them once the identity has been removed by hand.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrIncidentNotFound is returned by Resolve for unknown ids.
	ErrIncidentNotFound = errors.New("incident not found")
)

// Incident is one recorded orphan.
type Incident struct {
	ID         string
	TargetID   string
	Email      string
	Cause      string
	DetectedAt time.Time
	ResolvedAt time.Time
}

// Resolved reports whether an operator closed the incident.
func (i Incident) Resolved() bool {
	return !i.ResolvedAt.IsZero()
}

const resolveScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "resolved_at", ARGV[2])
redis.call("ZREM", KEYS[2], ARGV[1])
return 1
`

var resolveLua = redis.NewScript(resolveScript)

// Ledger implements goAdmin.OrphanRecorder on Redis.
//
//	{prefix}:orphan:{id}  hash per incident
//	{prefix}:orphans      open incident ids scored by detection time (ms)
type Ledger struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewLedger(client redis.UniversalClient, prefix string) *Ledger {
	if prefix == "" {
		prefix = "gar"
	}
	return &Ledger{redis: client, prefix: prefix, now: time.Now}
}

func (l *Ledger) incidentKey(id string) string {
	return l.prefix + ":orphan:" + id
}

func (l *Ledger) openKey() string {
	return l.prefix + ":orphans"
}

// RecordOrphan stores report and returns the new incident id.
func (l *Ledger) RecordOrphan(ctx context.Context, report goAdmin.OrphanReport) (string, error) {
	id := uuid.NewString()
	detected := report.DetectedAt
	if detected.IsZero() {
		detected = l.now()
	}

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.incidentKey(id),
			"target_id", report.TargetID,
			"email", report.Email,
			"cause", report.Cause,
			"detected_at", detected.UnixMilli(),
		)
		pipe.ZAdd(ctx, l.openKey(), redis.Z{Score: float64(detected.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: record orphan: %v", ErrRedisUnavailable, err)
	}
	return id, nil
}

// List returns open incidents, oldest first.
func (l *Ledger) List(ctx context.Context) ([]Incident, error) {
	ids, err := l.redis.ZRange(ctx, l.openKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list orphans: %v", ErrRedisUnavailable, err)
	}
	incidents := make([]Incident, 0, len(ids))
	for _, id := range ids {
		inc, err := l.Get(ctx, id)
		if errors.Is(err, ErrIncidentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// Get loads one incident, open or resolved.
func (l *Ledger) Get(ctx context.Context, id string) (Incident, error) {
	fields, err := l.redis.HGetAll(ctx, l.incidentKey(id)).Result()
	if err != nil {
		return Incident{}, fmt.Errorf("%w: get orphan: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return Incident{}, ErrIncidentNotFound
	}
	return Incident{
		ID:         id,
		TargetID:   fields["target_id"],
		Email:      fields["email"],
		Cause:      fields["cause"],
		DetectedAt: parseMillis(fields["detected_at"]),
		ResolvedAt: parseMillis(fields["resolved_at"]),
	}, nil
}

// Resolve marks an incident closed and drops it from the open list.
func (l *Ledger) Resolve(ctx context.Context, id string) error {
	n, err := resolveLua.Run(ctx, l.redis,
		[]string{l.incidentKey(id), l.openKey()},
		id, l.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: resolve orphan: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

func parseMillis(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
