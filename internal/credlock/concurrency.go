package credlock

import "sync"

// ConcurrencyLimiter caps in-flight requests per (apiKeyId, clientIP)
// pair, grounded on the teacher's credential.Manager.Acquire counting
// semaphore — the same shape, keyed differently.
type ConcurrencyLimiter struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// NewConcurrencyLimiter creates a limiter allowing up to `limit`
// concurrent requests per key. limit <= 0 means unlimited.
func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		sems:  make(map[string]chan struct{}),
		limit: limit,
	}
}

// TryAcquire attempts to reserve a slot for key without blocking. On
// success it returns a release func and true; on saturation it
// returns false.
func (c *ConcurrencyLimiter) TryAcquire(key string) (func(), bool) {
	if c.limit <= 0 || key == "" {
		return func() {}, true
	}
	sem := c.getSemaphore(key)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	default:
		return func() {}, false
	}
}

func (c *ConcurrencyLimiter) getSemaphore(key string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.sems[key]; ok {
		return ch
	}
	ch := make(chan struct{}, c.limit)
	c.sems[key] = ch
	return ch
}

// InUse reports the current occupancy for key, for metrics.
func (c *ConcurrencyLimiter) InUse(key string) int {
	c.mu.Lock()
	ch, ok := c.sems[key]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return len(ch)
}
