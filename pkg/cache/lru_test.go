package cache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/cache"
)

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.now.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func TestLRU_Basic(t *testing.T) {
	t.Parallel()

	c := cache.New[string, int](3, 0)
	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("a", 10)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := cache.New[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_TTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := cache.New[string, int](10, 30*time.Second, cache.WithClock(clock.Now))
	c.Set("a", 1)

	clock.Advance(29 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry dropped on read")

	c.Set("b", 2)
	clock.Advance(20 * time.Second)
	c.Set("b", 3)
	clock.Advance(20 * time.Second)
	v, ok := c.Get("b")
	assert.True(t, ok, "Set resets the ttl")
	assert.Equal(t, 3, v)
}

func TestLRU_InvalidArguments(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { cache.New[string, int](0, time.Second) })
	assert.Panics(t, func() { cache.New[string, int](1, -time.Second) })
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.New[int, int](50, time.Minute)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				c.Set(g*1000+i, i)
				c.Get(g*1000 + i/2)
				if i%10 == 0 {
					c.Delete(g*1000 + i)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
