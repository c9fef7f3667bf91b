package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ieap-grade-sync/pkg/errors"
)

// Locker guards one sync type against overlapping runs. Acquire fails with
// ErrSyncInProgress unless force is set, in which case the lock is taken over.
type Locker interface {
	Acquire(ctx context.Context, key string, force bool) (release func(), err error)
}

// releaseScript deletes the key only while it still holds our token, so a run
// whose lock expired cannot drop a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, force bool) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	if force {
		if err := l.client.Set(ctx, name, token, l.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to take over sync lock: %w", err)
		}
	} else {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", errors.ErrSyncInProgress, key)
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{name}, token).Err()
	}, nil
}

// LocalLocker is an in-process Locker for the CLI and tests.
type LocalLocker struct {
	mu   gosync.Mutex
	held map[string]string
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, force bool) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy && !force {
		return nil, fmt.Errorf("%w: %s", errors.ErrSyncInProgress, key)
	}
	token := uuid.NewString()
	l.held[key] = token
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == token {
			delete(l.held, key)
		}
	}, nil
}
