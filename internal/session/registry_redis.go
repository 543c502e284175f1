package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const registryKeyPrefix = "mastery:session:"

// releaseScript deletes the key only while it still names the caller's
// session, so a late release cannot free a newer holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRegistry shares the single-session constraint across server
// instances. Holders expire after ttl so a crashed instance cannot lock a
// learner out forever.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry creates a registry on client. A non-positive ttl means
// holders never expire.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) (*RedisRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisRegistry{client: client, ttl: ttl}, nil
}

func (r *RedisRegistry) Acquire(ctx context.Context, learnerID, sessionID string) error {
	ok, err := r.client.SetNX(ctx, registryKey(learnerID), sessionID, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: learner %s", ErrSessionConflict, learnerID)
	}
	slog.Debug("session lock acquired", "learner_id", learnerID, "session_id", sessionID)
	return nil
}

func (r *RedisRegistry) Release(ctx context.Context, learnerID, sessionID string) error {
	if err := releaseScript.Run(ctx, r.client, []string{registryKey(learnerID)}, sessionID).Err(); err != nil {
		return fmt.Errorf("release session lock: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Holder(ctx context.Context, learnerID string) (string, bool, error) {
	holder, err := r.client.Get(ctx, registryKey(learnerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read session lock: %w", err)
	}
	return holder, true, nil
}

func registryKey(learnerID string) string {
	return registryKeyPrefix + learnerID
}
