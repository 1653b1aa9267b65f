// ABOUTME: Tests for the event ID seen-set
// ABOUTME: Covers TTL expiry, refresh, capacity eviction, sweeping, and first-sight races

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testCache returns a cache on a stubbed clock. Advance time by assigning
// through the returned pointer.
func testCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *time.Time) {
	t.Helper()
	c := New(ttl, maxSize)
	t.Cleanup(c.Close)

	now := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	clock := &now
	c.now = func() time.Time { return *clock }
	return c, clock
}

func TestCacheFirstSightWins(t *testing.T) {
	c, _ := testCache(t, time.Minute, 100)

	require.False(t, c.CheckAndMark("evt-1"), "first sighting must not read as duplicate")
	require.True(t, c.CheckAndMark("evt-1"))
	require.False(t, c.CheckAndMark("evt-2"))
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c, clock := testCache(t, time.Minute, 100)

	require.False(t, c.CheckAndMark("evt-1"))

	*clock = clock.Add(61 * time.Second)
	require.False(t, c.CheckAndMark("evt-1"), "expired key must read as new")
}

func TestCacheDuplicateSightingRefreshes(t *testing.T) {
	c, clock := testCache(t, time.Minute, 100)

	require.False(t, c.CheckAndMark("evt-1"))

	*clock = clock.Add(30 * time.Second)
	require.True(t, c.CheckAndMark("evt-1"))

	// 75s past the first sighting but only 45s past the refresh.
	*clock = clock.Add(45 * time.Second)
	require.True(t, c.CheckAndMark("evt-1"))
}

func TestCacheCheckDoesNotMark(t *testing.T) {
	c, _ := testCache(t, time.Minute, 100)

	require.False(t, c.Check("evt-1"))
	require.False(t, c.Check("evt-1"))
	require.False(t, c.CheckAndMark("evt-1"))
	require.True(t, c.Check("evt-1"))
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c, clock := testCache(t, time.Hour, 3)

	for i, key := range []string{"a", "b", "c"} {
		*clock = clock.Add(time.Duration(i) * time.Second)
		require.False(t, c.CheckAndMark(key))
	}

	require.False(t, c.CheckAndMark("d"))

	require.False(t, c.Check("a"), "oldest key should have been evicted")
	require.True(t, c.Check("b"))
	require.True(t, c.Check("c"))
	require.True(t, c.Check("d"))
	require.Equal(t, 3, c.Len())
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	c, clock := testCache(t, time.Minute, 100)

	for i := range 3 {
		require.False(t, c.CheckAndMark(fmt.Sprintf("evt-%d", i)))
	}
	require.Equal(t, 3, c.Len())

	*clock = clock.Add(2 * time.Minute)
	c.sweep()
	require.Zero(t, c.Len())
}

func TestCacheSweepKeepsLive(t *testing.T) {
	c, clock := testCache(t, time.Minute, 100)

	require.False(t, c.CheckAndMark("old"))
	*clock = clock.Add(50 * time.Second)
	require.False(t, c.CheckAndMark("fresh"))

	*clock = clock.Add(15 * time.Second)
	c.sweep()

	require.False(t, c.Check("old"))
	require.True(t, c.Check("fresh"))
}

func TestCacheConcurrentFirstSight(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	const goroutines = 100

	var wg sync.WaitGroup
	firsts := make(chan struct{}, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.CheckAndMark("contested") {
				firsts <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(firsts)

	require.Len(t, firsts, 1, "exactly one consumer should see the event first")
}

func TestCacheCloseIdempotent(t *testing.T) {
	c := New(time.Minute, 100)
	c.Close()
	c.Close()
}
