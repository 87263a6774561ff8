package permissions

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	return cache, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	doc := DefaultsFor(RoleManager)
	require.NoError(t, cache.SetDocument(ctx, 1, Scope{}, doc, nil))

	got, ok := cache.GetDocument(ctx, 1, Scope{})
	require.True(t, ok)
	assert.Equal(t, doc, *got)

	_, ok = cache.GetDocument(ctx, 2, Scope{})
	assert.False(t, ok)
}

func TestCacheScopesAreSeparateKeys(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	orgID := int64(10)
	require.NoError(t, cache.SetDocument(ctx, 1, Scope{OrgID: &orgID}, DefaultsFor(RoleManager), nil))

	_, ok := cache.GetDocument(ctx, 1, Scope{})
	assert.False(t, ok)
	_, ok = cache.GetDocument(ctx, 1, Scope{OrgID: &orgID})
	assert.True(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.SetDocument(ctx, 1, Scope{}, DefaultsFor(RoleMember), nil))
	require.NoError(t, cache.Invalidate(ctx, 1, Scope{}))

	_, ok := cache.GetDocument(ctx, 1, Scope{})
	assert.False(t, ok)
}

func TestCacheInvalidateTemplateDropsDependents(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	tplID := int64(7)
	require.NoError(t, cache.SetDocument(ctx, 1, Scope{}, DefaultsFor(RoleMember), &tplID))
	require.NoError(t, cache.SetDocument(ctx, 2, Scope{}, DefaultsFor(RoleLead), &tplID))
	// User 3 was computed without the template and must survive.
	require.NoError(t, cache.SetDocument(ctx, 3, Scope{}, DefaultsFor(RoleManager), nil))

	require.NoError(t, cache.InvalidateTemplate(ctx, tplID))

	_, ok := cache.GetDocument(ctx, 1, Scope{})
	assert.False(t, ok)
	_, ok = cache.GetDocument(ctx, 2, Scope{})
	assert.False(t, ok)
	_, ok = cache.GetDocument(ctx, 3, Scope{})
	assert.True(t, ok)
}

func TestNilCacheIsInert(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	_, ok := cache.GetDocument(ctx, 1, Scope{})
	assert.False(t, ok)
	assert.NoError(t, cache.SetDocument(ctx, 1, Scope{}, Document{}, nil))
	assert.NoError(t, cache.Invalidate(ctx, 1, Scope{}))
	assert.NoError(t, cache.InvalidateTemplate(ctx, 1))
}
