package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type views struct {
	Total   int64 `json:"total"`
	Viewers int   `json:"viewers"`
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	_, err = m.Get(ctx, "forever")
	assert.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "forever"))
	_, err = m.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	for i := 0; i < 127; i++ {
		require.NoError(t, m.Set(ctx, string(rune('a'+i%26))+string(rune(i)), []byte("v"), time.Second))
	}
	now = now.Add(2 * time.Second)
	require.NoError(t, m.Set(ctx, "fresh", []byte("v"), time.Hour))
	assert.Equal(t, 1, m.Len())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Backend())

	var v views
	ok, err := GetJSON(ctx, c, "views:1", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, c, "views:1", views{Total: 10, Viewers: 2}, time.Minute))
	ok, err = GetJSON(ctx, c, "views:1", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, views{Total: 10, Viewers: 2}, v)

	require.NoError(t, c.Set(ctx, "bad", []byte("{"), time.Minute))
	_, err = GetJSON(ctx, c, "bad", &v)
	assert.Error(t, err)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not-a-redis-url")
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := New(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	require.NoError(t, c.Set(ctx, "test:key", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	require.NoError(t, c.Delete(ctx, "test:key"))
	_, err = c.Get(ctx, "test:key")
	assert.ErrorIs(t, err, ErrMiss)
}
