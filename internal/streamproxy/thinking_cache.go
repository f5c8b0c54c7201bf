package streamproxy

import (
	"sync"
	"time"
)

// thinkingSignatureTTL bounds how long a thinking-block signature is
// retained for a given message id before the sweep reclaims it.
const thinkingSignatureTTL = 15 * time.Minute

type signatureEntry struct {
	signature string
	expiresAt time.Time
}

// SignatureCache holds Claude thinking-block signatures keyed by
// message id so a later turn in the same conversation can echo the
// signature back to the upstream provider, generalized from the
// ticker-driven sweep shape in
// internal/credential/manager_recovery.go's StartAutoRecovery.
type SignatureCache struct {
	mu      sync.Mutex
	entries map[string]signatureEntry
	ticker  *time.Ticker
	stop    chan struct{}
}

// NewSignatureCache constructs an empty cache and starts its
// background sweep goroutine.
func NewSignatureCache() *SignatureCache {
	c := &SignatureCache{
		entries: make(map[string]signatureEntry),
		ticker:  time.NewTicker(thinkingSignatureTTL / 3),
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Put stores a thinking-block signature for messageID, refreshing its
// expiry.
func (c *SignatureCache) Put(messageID, signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[messageID] = signatureEntry{
		signature: signature,
		expiresAt: time.Now().Add(thinkingSignatureTTL),
	}
}

// Get returns the signature for messageID if present and unexpired.
func (c *SignatureCache) Get(messageID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[messageID]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.signature, true
}

// Stop halts the background sweep. Safe to call once.
func (c *SignatureCache) Stop() {
	close(c.stop)
}

func (c *SignatureCache) sweepLoop() {
	for {
		select {
		case <-c.stop:
			c.ticker.Stop()
			return
		case <-c.ticker.C:
			c.sweep()
		}
	}
}

func (c *SignatureCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}
