package repository

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionLock makes quote mutation single-writer per quote.
type SessionLock interface {
	// Acquire fails with ConcurrentModification when another writer holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// IdempotencyCache remembers which document a request id produced. The
// database unique index stays authoritative; the cache only short-circuits.
type IdempotencyCache interface {
	Get(ctx context.Context, requestID string) (string, error)
	Set(ctx context.Context, requestID, documentID string, ttl time.Duration) error
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisSessionLock implements SessionLock with SET NX and a token-checked release.
type RedisSessionLock struct {
	client *redis.Client
}

func NewRedisSessionLock(client *redis.Client) *RedisSessionLock {
	return &RedisSessionLock{client: client}
}

func (l *RedisSessionLock) lockKey(key string) string {
	return "lock:quote:" + key
}

func (l *RedisSessionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	k := l.lockKey(key)
	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if !ok {
		return nil, apperrors.ErrConcurrentModification.Withf("quote is being modified").WithDetail("quote_id", key)
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{k}, token).Err()
	}, nil
}

// RedisIdempotencyCache implements IdempotencyCache with plain string keys.
type RedisIdempotencyCache struct {
	client *redis.Client
}

func NewRedisIdempotencyCache(client *redis.Client) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client}
}

func (c *RedisIdempotencyCache) getIdemKey(key string) string {
	return "idem:sales:" + key
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, requestID string) (string, error) {
	val, err := c.client.Get(ctx, c.getIdemKey(requestID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisIdempotencyCache) Set(ctx context.Context, requestID, documentID string, ttl time.Duration) error {
	return c.client.Set(ctx, c.getIdemKey(requestID), documentID, ttl).Err()
}

// MemorySessionLock is the single-process SessionLock.
type MemorySessionLock struct {
	mu    sync.Mutex
	held  map[string]string
	until map[string]time.Time
}

func NewMemorySessionLock() *MemorySessionLock {
	return &MemorySessionLock{held: map[string]string{}, until: map[string]time.Time{}}
}

func (l *MemorySessionLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok && time.Now().Before(l.until[key]) {
		return nil, apperrors.ErrConcurrentModification.Withf("quote is being modified").WithDetail("quote_id", key)
	}
	token := uuid.NewString()
	l.held[key] = token
	l.until[key] = time.Now().Add(ttl)

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == token {
			delete(l.held, key)
			delete(l.until, key)
		}
		return nil
	}, nil
}

// MemoryIdempotencyCache is the single-process IdempotencyCache.
type MemoryIdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]string
	expires map[string]time.Time
}

func NewMemoryIdempotencyCache() *MemoryIdempotencyCache {
	return &MemoryIdempotencyCache{entries: map[string]string{}, expires: map[string]time.Time{}}
}

func (c *MemoryIdempotencyCache) Get(_ context.Context, requestID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expires[requestID]; ok && time.Now().After(exp) {
		delete(c.entries, requestID)
		delete(c.expires, requestID)
	}
	return c.entries[requestID], nil
}

func (c *MemoryIdempotencyCache) Set(_ context.Context, requestID, documentID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[requestID] = documentID
	c.expires[requestID] = time.Now().Add(ttl)
	return nil
}
