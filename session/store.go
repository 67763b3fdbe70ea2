package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by Get for missing or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps every Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store keeps one key per session plus a per-user index set:
//
//	{prefix}:s:{sid}   encoded Session, TTL = session lifetime
//	{prefix}:u:{uid}   set of sids
//	{prefix}:revoked   pub/sub channel carrying revoked sids
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gas"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// RevocationChannel is the pub/sub channel Delete publishes on.
func (s *Store) RevocationChannel() string {
	return s.prefix + ":revoked"
}

// Save persists sess until its ExpiresAt.
//
//	Performance: 1 MULTI/EXEC (SET + SADD + EXPIRE).
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	userKey := s.userKey(sess.UserID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session. Missing, corrupt and expired records all report
// ErrNotFound; corrupt ones are additionally joined with ErrCorrupt.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrNotFound, err)
	}
	sess.SessionID = sessionID
	if sess.ExpiresAt <= s.now().Unix() {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes one session and publishes its id when it existed. Deleting
// a missing session is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	existed, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.userKey(userID)}, sessionID).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if existed == 1 {
		return s.publish(ctx, sessionID)
	}
	return nil
}

// DeleteAllForUser removes every session of userID and publishes each id.
//
// Not atomic with concurrent Save: a session created between SMEMBERS and
// DEL survives until its own expiry.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, sid := range sessionIDs {
		keys = append(keys, s.key(sid))
	}
	keys = append(keys, userKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, sid := range sessionIDs {
		if err := s.publish(ctx, sid); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe opens a subscription on the revocation channel. The caller owns
// the returned PubSub and must Close it.
func (s *Store) Subscribe(ctx context.Context) *redis.PubSub {
	return s.redis.Subscribe(ctx, s.RevocationChannel())
}

func (s *Store) publish(ctx context.Context, sessionID string) error {
	if err := s.redis.Publish(ctx, s.RevocationChannel(), sessionID).Err(); err != nil {
		return fmt.Errorf("%w: publish revocation: %v", ErrRedisUnavailable, err)
	}
	return nil
}
