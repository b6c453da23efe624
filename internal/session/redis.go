package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces compose sessions in a shared Redis.
const DefaultKeyPrefix = "anonrelay:compose:"

// RedisStore keeps sessions in Redis so several bot replicas share them.
// Consume relies on GETDEL, which makes read-and-remove a single atomic
// command on the server.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. ttl <= 0 stores sessions without expiry.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

func (s *RedisStore) key(senderID int64) string {
	return s.prefix + senderKey(senderID)
}

// Open implements Store.
func (s *RedisStore) Open(ctx context.Context, senderID int64, p Pending) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(senderID), b, s.ttl).Err()
}

// Consume implements Store.
func (s *RedisStore) Consume(ctx context.Context, senderID int64) (Pending, bool, error) {
	b, err := s.client.GetDel(ctx, s.key(senderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pending{}, false, nil
	}
	if err != nil {
		return Pending{}, false, err
	}
	var p Pending
	if err := json.Unmarshal(b, &p); err != nil {
		return Pending{}, false, err
	}
	return p, true, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, senderID int64) error {
	return s.client.Del(ctx, s.key(senderID)).Err()
}
