package enrollment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLockTTL = 10 * time.Second

// Locker guards the check-then-insert of one (workflow, recipient) pair.
// Acquire reports false when another enrollment holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), acquired bool)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), bool) {
	return func() {}, true
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes SET NX locks with a TTL. When Redis is unreachable the
// lock is skipped and enrollment proceeds unguarded.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	return &RedisLocker{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "enrollment_lock"),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.WarnContext(ctx, "Failed to take enrollment lock, continuing without it", "key", key, "error", err)

		return func() {}, true
	}

	if !ok {
		return nil, false
	}

	return func() {
		err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
		if err != nil {
			l.logger.WarnContext(ctx, "Failed to release enrollment lock", "key", key, "error", err)
		}
	}, true
}
