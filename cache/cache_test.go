package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_ExpiresWithoutAccess(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Config{Now: clock.Now})

	c.SetTTL("k", "v", 100*time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(150 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after TTL without access")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on read")
}

func TestCache_TouchOnReadKeepsAlive(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Config{Now: clock.Now})

	c.SetTTL("k", 42, 100*time.Millisecond)

	// Read every 60ms for well over the TTL.
	for i := 0; i < 20; i++ {
		clock.Advance(60 * time.Millisecond)
		v, ok := c.Get("k")
		require.Truef(t, ok, "read %d should hit", i)
		require.Equal(t, 42, v)
	}
}

func TestCache_RealClockExpiry(t *testing.T) {
	c := New[string](Config{})
	c.SetTTL("k", "v", 30*time.Millisecond)

	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Config{TTL: time.Second, Now: clock.Now})
	c.Set("k", "v")

	clock.Advance(900 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(1100 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_EvictsOldestAccess(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Config{Capacity: 3, TTL: time.Hour, Now: clock.Now})

	c.Set("a", 1)
	clock.Advance(time.Millisecond)
	c.Set("b", 2)
	clock.Advance(time.Millisecond)
	c.Set("c", 3)
	clock.Advance(time.Millisecond)

	// Touch "a" so "b" becomes the least recently accessed.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.Truef(t, ok, "%s should still be cached", k)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New[int](Config{Capacity: 2, TTL: time.Hour})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Zero(t, c.Stats().Evictions)
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New[string](Config{TTL: time.Hour})

	var calls atomic.Int32
	factory := func() (string, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "computed", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute("k", factory)
			assert.NoError(t, err)
			assert.Equal(t, "computed", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "factory should run once for concurrent callers")

	v, err := c.GetOrCompute("k", func() (string, error) {
		t.Fatal("factory must not run on hit")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
}

func TestCache_GetOrComputeErrorNotCached(t *testing.T) {
	c := New[int](Config{})
	errBoom := errors.New("boom")

	_, err := c.GetOrCompute("k", func() (int, error) { return 0, errBoom })
	require.ErrorIs(t, err, errBoom)

	_, ok := c.Get("k")
	assert.False(t, ok)

	v, err := c.GetOrCompute("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New[int](Config{TTL: time.Hour})
	c.Set(Key("room", 0x10, "list"), 1)
	c.Set(Key("room", 0x10, "children"), 2)
	c.Set(Key("room", 0x20, "list"), 3)
	c.Set("menu:visible", 4)

	n := c.InvalidatePrefix(Prefix("room", 0x10))
	assert.Equal(t, 2, n)

	_, ok := c.Get(Key("room", 0x20, "list"))
	assert.True(t, ok)
	_, ok = c.Get("menu:visible")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_StatsCountMisses(t *testing.T) {
	c := New[int](Config{})
	c.Get("missing")
	c.Set("k", 1)
	c.Get("k")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Hits)
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{"single", []any{"menu"}, "menu"},
		{"mixed", []any{"room", 16, "list"}, "room:16:list"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.parts...))
		})
	}
}
