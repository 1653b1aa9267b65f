// ABOUTME: TTL-bounded seen-set for suppressing redelivered bus events
// ABOUTME: Keys are event IDs; capacity is capped with oldest-first eviction

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a key's last-seen time with its position in the age list.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks recently seen event IDs. The bus delivers at least once, so
// a consumer that folds events into aggregates checks here first to keep
// redeliveries from counting twice. Entries expire after a TTL and the
// oldest entry is evicted once the cache reaches capacity.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	age     *list.List // keys oldest-first
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool

	now func() time.Time // stubbed in tests
}

// New creates a cache holding keys for ttl, capped at maxSize entries.
// A background goroutine sweeps out expired entries; call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		age:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.sweepLoop()
	return c
}

// CheckAndMark reports whether key was already seen within the TTL, marking
// it as seen either way. The check and the mark are one critical section, so
// for concurrent deliveries of the same key exactly one caller gets false.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok && now.Sub(e.seenAt) < c.ttl {
		e.seenAt = now
		c.age.MoveToBack(e.element)
		return true
	}

	c.markLocked(key, now)
	return false
}

// Check reports whether key was seen within the TTL, without marking it.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && c.now().Sub(e.seenAt) < c.ttl
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) markLocked(key string, now time.Time) {
	if e, ok := c.seen[key]; ok {
		// Expired but not yet swept; refresh in place.
		e.seenAt = now
		c.age.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[key] = &entry{
		seenAt:  now,
		element: c.age.PushBack(key),
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.age.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.age.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired entry.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.age.Front(); e != nil; {
		next := e.Next()
		key, _ := e.Value.(string)
		if entry := c.seen[key]; entry != nil && now.Sub(entry.seenAt) >= c.ttl {
			c.age.Remove(e)
			delete(c.seen, key)
		}
		e = next
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
