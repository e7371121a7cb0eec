package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL bounds how long a resolved permission set is served
const DefaultCacheTTL = 5 * time.Minute

// CacheKey identifies one user's permission set
type CacheKey struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

func (k CacheKey) String() string {
	return k.TenantID.String() + ":" + k.UserID.String()
}

// PermissionCache stores resolved permission sets.
//
// Every key carries a generation that Invalidate advances. A loader reads the
// generation before it queries the database and passes it to Set; a set
// computed before an invalidation is then never served afterwards.
type PermissionCache interface {
	Get(ctx context.Context, key CacheKey) (*PermissionSet, bool, error)
	Generation(ctx context.Context, key CacheKey) (uint64, error)
	Set(ctx context.Context, key CacheKey, generation uint64, set *PermissionSet) error
	Invalidate(ctx context.Context, keys ...CacheKey) error
}

// NoCache resolves every check against the database
type NoCache struct{}

func (NoCache) Get(context.Context, CacheKey) (*PermissionSet, bool, error) { return nil, false, nil }
func (NoCache) Generation(context.Context, CacheKey) (uint64, error)        { return 0, nil }
func (NoCache) Set(context.Context, CacheKey, uint64, *PermissionSet) error { return nil }
func (NoCache) Invalidate(context.Context, ...CacheKey) error               { return nil }

type lruEntry struct {
	generation uint64
	set        *PermissionSet
}

// LRUCache is an in-process PermissionCache with a size bound and TTL.
// Generations come from one counter and live in their own bounded LRU. When
// a generation is evicted the floor rises to it, so a key without a stored
// generation reports the floor and a load that read an older value can
// never be stored.
type LRUCache struct {
	mu          sync.Mutex
	entries     *lru.LRU[CacheKey, lruEntry]
	generations *lru.LRU[CacheKey, uint64]
	clock       uint64
	floor       uint64
}

// NewLRUCache creates an in-process cache holding up to size sets for ttl
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &LRUCache{entries: lru.NewLRU[CacheKey, lruEntry](size, nil, ttl)}
	// ttl 0 disables expiry, so evictions only happen inside Add under c.mu
	c.generations = lru.NewLRU[CacheKey, uint64](size, func(_ CacheKey, gen uint64) {
		c.floor = max(c.floor, gen)
	}, 0)
	return c
}

func (c *LRUCache) generation(key CacheKey) uint64 {
	if gen, ok := c.generations.Peek(key); ok {
		return gen
	}
	return c.floor
}

func (c *LRUCache) Get(_ context.Context, key CacheKey) (*PermissionSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok || entry.generation != c.generation(key) {
		return nil, false, nil
	}
	return entry.set, true, nil
}

func (c *LRUCache) Generation(_ context.Context, key CacheKey) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(key), nil
}

// Set stores set unless key was invalidated after generation was read
func (c *LRUCache) Set(_ context.Context, key CacheKey, generation uint64, set *PermissionSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation(key) {
		return nil
	}
	c.entries.Add(key, lruEntry{generation: generation, set: set})
	return nil
}

func (c *LRUCache) Invalidate(_ context.Context, keys ...CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.clock++
		c.generations.Add(key, c.clock)
		c.entries.Remove(key)
	}
	return nil
}

// RedisCache shares permission sets between replicas. The generation lives in
// its own key without expiry and each set is stored under a key suffixed with
// the generation it was computed at, so Invalidate is a single INCR.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "tenantguard:perm"}
}

func (c *RedisCache) generationKey(key CacheKey) string {
	return fmt.Sprintf("%s:gen:%s", c.prefix, key)
}

func (c *RedisCache) dataKey(key CacheKey, generation uint64) string {
	return fmt.Sprintf("%s:set:%s:%d", c.prefix, key, generation)
}

func (c *RedisCache) Generation(ctx context.Context, key CacheKey) (uint64, error) {
	raw, err := c.client.Get(ctx, c.generationKey(key)).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cache generation %q: %w", raw, err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, key CacheKey) (*PermissionSet, bool, error) {
	gen, err := c.Generation(ctx, key)
	if err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, c.dataKey(key, gen)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var set PermissionSet
	if err := json.Unmarshal(data, &set); err != nil {
		c.client.Del(ctx, c.dataKey(key, gen))
		return nil, false, fmt.Errorf("failed to unmarshal permission set: %w", err)
	}
	return &set, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key CacheKey, generation uint64, set *PermissionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal permission set: %w", err)
	}
	if err := c.client.Set(ctx, c.dataKey(key, generation), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, keys ...CacheKey) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, key := range keys {
		pipe.Incr(ctx, c.generationKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	return nil
}
