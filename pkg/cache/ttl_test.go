package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestTTLCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	c := NewTTLCache[string, int](time.Minute, WithClock(clock.now), WithCleanupInterval(0))
	defer c.Stop()

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.advance(30 * time.Second)
	age, ok := c.Age("a")
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, age)

	clock.advance(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Age("a")
	assert.False(t, ok)

	c.removeExpired()
	assert.Equal(t, 0, c.Size())
}

func TestTTLCacheSetWithTTLAndDelete(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewTTLCache[int, string](time.Second, WithClock(clock.now), WithCleanupInterval(0))
	defer c.Stop()

	c.SetWithTTL(7, "long", time.Hour)
	clock.advance(time.Minute)
	v, ok := c.Get(7)
	assert.True(t, ok)
	assert.Equal(t, "long", v)

	c.Delete(7)
	_, ok = c.Get(7)
	assert.False(t, ok)
}

func TestTTLCacheStopReleasesCleanupGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewTTLCache[string, int](time.Minute, WithCleanupInterval(time.Millisecond))
	c.Set("x", 1)
	c.Stop()
	c.Stop()
}
