package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 5 * time.Second
	lockRetry       = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ParticipantLocker provides per-participant mutual exclusion backed by Redis.
// Key format: lock:participant:<user_key>
type ParticipantLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	wait   time.Duration
	log    zerolog.Logger
}

// NewParticipantLocker creates a locker. ttl bounds how long a crashed holder
// can block others; wait bounds how long Lock retries before giving up.
func NewParticipantLocker(client redis.Cmdable, ttl, wait time.Duration, log zerolog.Logger) *ParticipantLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &ParticipantLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		log:    log.With().Str("component", "locker").Logger(),
	}
}

// Lock acquires the lock for userKey, retrying until the wait expires. It
// fails with domain.ErrLockTimeout when another holder keeps the lock.
func (l *ParticipantLocker) Lock(ctx context.Context, userKey string) (func(), error) {
	key := l.key(userKey)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock: %w: %w", domain.ErrStoreUnavailable, err)
		}
		if ok {
			return func() { l.release(ctx, key, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domain.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *ParticipantLocker) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		return
	}
	if n == 0 {
		l.log.Warn().Str("key", key).Msg("lock expired before release")
	}
}

func (l *ParticipantLocker) key(userKey string) string {
	return fmt.Sprintf("lock:participant:%s", userKey)
}
