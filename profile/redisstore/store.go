// Package redisstore is a goAdmin.ProfileStore kept in Redis.
//
// Layout under the configured prefix:
//
//	{prefix}:acct:{id}  hash with display_name, email, role
//	{prefix}:accts      sorted set of ids, scored by insertion sequence
//	{prefix}:seq        insertion sequence counter
//
// ListAll returns records in insertion order.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const putScript = `
if redis.call("ZSCORE", KEYS[2], ARGV[1]) == false then
  local seq = redis.call("INCR", KEYS[3])
  redis.call("ZADD", KEYS[2], seq, ARGV[1])
end
redis.call("HSET", KEYS[1], "display_name", ARGV[2], "email", ARGV[3], "role", ARGV[4])
return 1
`

const deleteScript = `
redis.call("ZREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var (
	putLua    = redis.NewScript(putScript)
	deleteLua = redis.NewScript(deleteScript)
)

// Store implements goAdmin.ProfileStore.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gap"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + ":accts"
}

func (s *Store) seqKey() string {
	return s.prefix + ":seq"
}

// Put creates or overwrites a record. A new id is appended to the listing
// order; an existing one keeps its place.
func (s *Store) Put(ctx context.Context, rec goAdmin.AccountRecord) error {
	if rec.ID == "" {
		return errors.New("account id required")
	}
	err := putLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.ID), s.indexKey(), s.seqKey()},
		rec.ID, rec.DisplayName, rec.Email, rec.Role,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrRedisUnavailable, rec.ID, err)
	}
	return nil
}

// ListAll reads the index and every record in one pipeline. Ids whose hash
// vanished between the two reads are skipped.
//
//	Performance: 2 round trips (ZRANGE, pipelined HGETALL).
func (s *Store) ListAll(ctx context.Context) ([]goAdmin.AccountRecord, error) {
	ids, err := s.redis.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing accounts: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []goAdmin.AccountRecord{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: reading accounts: %v", ErrRedisUnavailable, err)
	}

	records := make([]goAdmin.AccountRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: reading account %s: %v", ErrRedisUnavailable, ids[i], err)
		}
		if len(fields) == 0 {
			continue
		}
		records = append(records, goAdmin.AccountRecord{
			ID:          ids[i],
			DisplayName: fields["display_name"],
			Email:       fields["email"],
			Role:        fields["role"],
		})
	}
	return records, nil
}

// DeleteByID removes the record and its index entry. Deleting a missing id
// is not an error.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := deleteLua.Run(ctx, s.redis, []string{s.recordKey(id), s.indexKey()}, id).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrRedisUnavailable, id, err)
	}
	return nil
}
