package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// Locker hands out non-blocking, keyed mutual exclusion.
type Locker interface {
	// TryLock acquires key or returns ErrLocked. Calling unlock more than once is a no-op.
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// unlockScript deletes KEYS[1] only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const unlockTimeout = 5 * time.Second

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

const lockPrefix = "playlistvault:lock:"

// RedisLocker is a Locker shared by every process using the same Redis.
type RedisLocker struct {
	r   *Redis
	ttl time.Duration
}

// NewRedisLocker returns a Locker whose locks expire after ttl if never released.
func NewRedisLocker(r *Redis, ttl time.Duration) *RedisLocker {
	return &RedisLocker{r: r, ttl: ttl}
}

// TryLock implements Locker with SET NX EX under "playlistvault:lock:<key>".
// A lock whose holder dies is released by the TTL.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	full := lockPrefix + key
	token := randomToken()
	ok, err := l.r.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Unlock still runs after the caller's ctx is cancelled.
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer cancel()
			_ = unlockScript.Run(uctx, l.r.client, []string{full}, token).Err()
		})
	}, nil
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
