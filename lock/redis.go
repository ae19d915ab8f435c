package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// delScript releases a lock key only if it still holds our token, so an
// expired-and-reacquired lock is never deleted by the previous holder.
var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

const (
	defaultTTL           = 30 * time.Second
	defaultRetryInterval = 50 * time.Millisecond
	defaultPrefix        = "ballast:lock:"
)

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long an acquired lock survives if its holder vanishes.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryInterval sets how often a blocked Acquire re-attempts SetNX.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithPrefix sets the key namespace. Default "ballast:lock:".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// Redis implements Locker across processes using SET NX with a per-guard
// token. The TTL bounds how long a crashed holder can wedge a resource.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedis returns a Redis locker. The caller owns the client lifecycle.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    defaultTTL,
		retry:  defaultRetryInterval,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire blocks until the resource lock is obtained or ctx is done.
func (r *Redis) Acquire(ctx context.Context, res Resource) (Guard, error) {
	key := r.prefix + string(res)
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("ballast/lock: acquire %q: %w", res, err)
		}
		if ok {
			return &redisGuard{client: r.client, key: key, token: token}, nil
		}

		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type redisGuard struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (g *redisGuard) Release(ctx context.Context) error {
	if err := delScript.Run(ctx, g.client, []string{g.key}, g.token).Err(); err != nil {
		return fmt.Errorf("ballast/lock: release %q: %w", g.key, err)
	}
	return nil
}
