package briefings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive ownership of a key. TryLock never waits: ok is false when
// another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX so locks hold across processes
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "mediecho:lock:"}
}

// TryLock acquires key for ttl
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.New().String()
	fullKey := l.prefix + key

	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err(); err != nil {
			slog.Warn("Failed to release lock", "key", fullKey, "error", err)
		}
	}
	return unlock, true, nil
}

// LocalLocker implements Locker within a single process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock acquires key. The ttl is ignored; the lock is held until unlock.
func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// windowLockKey identifies the (user, window) tuple a generation owns
func windowLockKey(userID uint, w Window) string {
	return fmt.Sprintf("brief:%d:%d:%d", userID, w.Start.UnixMicro(), w.End.UnixMicro())
}
