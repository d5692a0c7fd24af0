package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", Entry{Kind: KindFound, Address: "a"}, time.Minute))

	e, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", e.Address)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_EvictsWhenFull(t *testing.T) {
	c := NewMemoryCache(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "soon", Entry{Kind: KindFound}, time.Minute))
	require.NoError(t, c.Set(ctx, "later", Entry{Kind: KindFound}, time.Hour))
	require.NoError(t, c.Set(ctx, "new", Entry{Kind: KindFound}, time.Hour))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "soon")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "later")
	assert.True(t, ok)
}

// fakeRedis implements redisKV over a map.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	rc := newFakeRedis()
	c := NewRedisCache(rc, "circlemap:geocode:")
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "search:東京駅")
	require.NoError(t, err)
	assert.False(t, ok)

	want := Entry{Kind: KindFound, Lat: 35.6812, Lon: 139.7671, Address: "東京駅"}
	require.NoError(t, c.Set(ctx, "search:東京駅", want, time.Hour))
	assert.Equal(t, time.Hour, rc.ttls["circlemap:geocode:search:東京駅"])

	got, ok, err := c.Get(ctx, "search:東京駅")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRedisCache_GetError(t *testing.T) {
	rc := newFakeRedis()
	rc.getErr = errors.New("connection reset")
	c := NewRedisCache(rc, "")

	_, ok, err := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection reset")
}

func TestRedisCache_RejectsGarbage(t *testing.T) {
	rc := newFakeRedis()
	rc.data["k"] = `{"kind":"weird"}`
	c := NewRedisCache(rc, "")

	_, ok, err := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestResolver_CacheReadFailureFallsThrough(t *testing.T) {
	rc := newFakeRedis()
	rc.getErr = errors.New("down")
	g := foundGeocoder()
	r := NewResolver(g, NewRedisCache(rc, ""))

	res, err := r.Resolve(context.Background(), "東京駅")
	require.NoError(t, err)
	assert.Equal(t, tokyoStation, res)
	assert.Equal(t, 1, g.searchCalls)
}
