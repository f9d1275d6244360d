// ABOUTME: Thread-safe TTL cache of idempotency keys scoped by sender
// ABOUTME: Shared by the REST Idempotency-Key header and realtime client_msg_id

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults for the send path.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 10000
)

type entry struct {
	claimedAt time.Time
	element   *list.Element
}

// Cache remembers claimed keys until they expire or are evicted.
// The oldest claim is evicted first once maxSize is reached.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*entry
	order   *list.List // keys, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		claims:  make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func scopedKey(scope, key string) string {
	return scope + "\x00" + key
}

// Claim records key for scope. It returns false if the key is already held
// and unexpired, meaning the caller is looking at a duplicate.
func (c *Cache) Claim(scope, key string) bool {
	k := scopedKey(scope, key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.claims[k]; ok {
		if now.Sub(e.claimedAt) < c.ttl {
			return false
		}
		// Expired: reclaim in place
		e.claimedAt = now
		c.order.MoveToBack(e.element)
		return true
	}

	if len(c.claims) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.claims[k] = &entry{claimedAt: now, element: c.order.PushBack(k)}
	return true
}

// Release forgets a claim so the same key can be used again.
func (c *Cache) Release(scope, key string) {
	k := scopedKey(scope, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.claims[k]; ok {
		c.order.Remove(e.element)
		delete(c.claims, k)
	}
}

// Len returns the number of tracked claims, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	k, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, k)
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

// sweep drops expired claims. Claims are ordered by time, so it stops at the
// first live one.
func (c *Cache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for front := c.order.Front(); front != nil; front = c.order.Front() {
		k, _ := front.Value.(string)
		if now.Sub(c.claims[k].claimedAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.claims, k)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
