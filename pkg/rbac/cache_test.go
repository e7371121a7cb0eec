package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func sampleSet() *PermissionSet {
	roleID := uuid.New()
	set := newPermissionSet()
	set.RoleID = &roleID
	set.RoleGrants[uuid.New()] = true
	set.Overrides[uuid.New()] = false
	return set
}

func TestPermissionCaches(t *testing.T) {
	caches := map[string]func(t *testing.T) PermissionCache{
		"lru": func(t *testing.T) PermissionCache { return NewLRUCache(10, time.Minute) },
		"redis": func(t *testing.T) PermissionCache {
			c, _ := newRedisCache(t)
			return c
		},
	}

	for name, newCache := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := CacheKey{TenantID: uuid.New(), UserID: uuid.New()}

			t.Run("miss then hit", func(t *testing.T) {
				c := newCache(t)
				_, ok, err := c.Get(ctx, key)
				require.NoError(t, err)
				assert.False(t, ok)

				gen, err := c.Generation(ctx, key)
				require.NoError(t, err)
				set := sampleSet()
				require.NoError(t, c.Set(ctx, key, gen, set))

				got, ok, err := c.Get(ctx, key)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, set, got)
			})

			t.Run("invalidate drops the entry", func(t *testing.T) {
				c := newCache(t)
				gen, err := c.Generation(ctx, key)
				require.NoError(t, err)
				require.NoError(t, c.Set(ctx, key, gen, sampleSet()))
				require.NoError(t, c.Invalidate(ctx, key))

				_, ok, err := c.Get(ctx, key)
				require.NoError(t, err)
				assert.False(t, ok)

				next, err := c.Generation(ctx, key)
				require.NoError(t, err)
				assert.Greater(t, next, gen)
			})

			t.Run("set from before an invalidation is never served", func(t *testing.T) {
				c := newCache(t)
				stale, err := c.Generation(ctx, key)
				require.NoError(t, err)
				require.NoError(t, c.Invalidate(ctx, key))
				require.NoError(t, c.Set(ctx, key, stale, sampleSet()))

				_, ok, err := c.Get(ctx, key)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("keys are independent", func(t *testing.T) {
				c := newCache(t)
				other := CacheKey{TenantID: key.TenantID, UserID: uuid.New()}
				require.NoError(t, c.Set(ctx, other, 0, sampleSet()))
				require.NoError(t, c.Invalidate(ctx, key))

				_, ok, err := c.Get(ctx, other)
				require.NoError(t, err)
				assert.True(t, ok)
			})
		})
	}
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	key := CacheKey{TenantID: uuid.New(), UserID: uuid.New()}

	require.NoError(t, c.Set(ctx, key, 0, sampleSet()))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntries(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	key := CacheKey{TenantID: uuid.New(), UserID: uuid.New()}

	require.NoError(t, mr.Set(c.dataKey(key, 0), "{not json"))
	_, ok, err := c.Get(ctx, key)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(c.dataKey(key, 0)), "corrupt entries are removed")

	require.NoError(t, mr.Set(c.generationKey(key), "seven"))
	_, err = c.Generation(ctx, key)
	assert.Error(t, err)
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.Close()
	ctx := context.Background()
	key := CacheKey{TenantID: uuid.New(), UserID: uuid.New()}

	_, _, err := c.Get(ctx, key)
	assert.Error(t, err)
	assert.Error(t, c.Invalidate(ctx, key))
}

func TestLRUCache_GenerationsAreBounded(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2, time.Minute)
	key := CacheKey{TenantID: uuid.New(), UserID: uuid.New()}

	stale, err := c.Generation(ctx, key)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, key))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Invalidate(ctx, CacheKey{TenantID: key.TenantID, UserID: uuid.New()}))
	}
	assert.Equal(t, 2, c.generations.Len())

	// key's generation was evicted, yet a load that started before its
	// invalidation still cannot be stored
	require.NoError(t, c.Set(ctx, key, stale, sampleSet()))
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	current, err := c.Generation(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, current, stale)
	set := sampleSet()
	require.NoError(t, c.Set(ctx, key, current, set))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, set, got)
}

func TestResolver_RedisCacheOutageFallsBackToDatabase(t *testing.T) {
	f := newFixture(t)
	c, mr := newRedisCache(t)
	resolver := NewResolver(f.store, f.registry, WithCache(c))

	ctx := f.in(f.tenantA)
	user := f.createUser(t, ctx, "a@acme.test", systemRole(RoleViewer))
	read := NewPermission(ResourceTicket, ActionRead)

	require.NoError(t, resolver.AssertPermission(ctx, user.ID, read))
	mr.Close()
	assert.NoError(t, resolver.AssertPermission(ctx, user.ID, read))

	err := resolver.SetUserOverrides(ctx, user.ID, nil)
	assert.Error(t, err, "a write whose invalidation fails is reported")
}

func TestNoCache(t *testing.T) {
	ctx := context.Background()
	key := CacheKey{TenantID: uuid.New(), UserID: uuid.New()}
	var c NoCache

	require.NoError(t, c.Set(ctx, key, 0, sampleSet()))
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, key))
}
