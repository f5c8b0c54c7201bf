// Package pricing implements the Usage Meter's cost cascade: a
// per-row database override takes precedence over an hourly-synced
// remote price list, which falls back to static defaults compiled
// into the binary. Grounded on the cache/TTL shape of
// internal/discovery.UpstreamModelDiscovery and the fsnotify+debounce
// reload pattern in internal/config/config_watcher.go.
package pricing

import (
	"context"
	"sync"
	"time"
)

// Rate is the per-million-token price for one model, in USD.
type Rate struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64 // multiplier 1.25x applied over InputPerMTok by default
	CacheReadPerMTok  float64 // multiplier 0.1x applied over InputPerMTok by default
}

const (
	CacheWriteMultiplier = 1.25
	CacheReadMultiplier  = 0.1
)

// Override looks up a per-credential-row or per-apiKey price override
// from the relational store; it is an external collaborator per the
// gateway's storage boundary, injected here rather than implemented.
type Override interface {
	Lookup(ctx context.Context, model string) (Rate, bool)
}

// RemoteFetcher fetches the full remote price list.
type RemoteFetcher interface {
	Fetch(ctx context.Context) (map[string]Rate, error)
}

const remoteSyncInterval = time.Hour

// Table resolves a Rate for a model through the three-level cascade.
type Table struct {
	override RemoteFetcher
	db       Override
	defaults map[string]Rate

	mu      sync.RWMutex
	remote  map[string]Rate
	fetched time.Time
	fetcher RemoteFetcher
}

// NewTable creates a pricing table seeded with static defaults. db and
// fetcher may be nil (no DB override / no remote sync configured).
func NewTable(defaults map[string]Rate, db Override, fetcher RemoteFetcher) *Table {
	return &Table{
		db:       db,
		defaults: defaults,
		fetcher:  fetcher,
	}
}

// Resolve returns the effective Rate for model: DB override, then the
// remote cache (refreshed at most once per hour), then static
// defaults. The second return value is false only when no level has
// any entry for model.
func (t *Table) Resolve(ctx context.Context, model string) (Rate, bool) {
	if t.db != nil {
		if rate, ok := t.db.Lookup(ctx, model); ok {
			return rate, true
		}
	}

	t.maybeSync(ctx)

	t.mu.RLock()
	rate, ok := t.remote[model]
	t.mu.RUnlock()
	if ok {
		return rate, true
	}

	rate, ok = t.defaults[model]
	return rate, ok
}

func (t *Table) maybeSync(ctx context.Context) {
	if t.fetcher == nil {
		return
	}
	t.mu.RLock()
	stale := time.Since(t.fetched) >= remoteSyncInterval
	t.mu.RUnlock()
	if !stale {
		return
	}

	fetched, err := t.fetcher.Fetch(ctx)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.remote = fetched
	t.fetched = time.Now()
	t.mu.Unlock()
}

// StartPeriodicSync forces a remote sync every hour regardless of
// read traffic, mirroring internal/discovery's cache-expiry shape.
func (t *Table) StartPeriodicSync(ctx context.Context) {
	if t.fetcher == nil {
		return
	}
	ticker := time.NewTicker(remoteSyncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.maybeSync(context.Background())
			}
		}
	}()
}

// CostUSD computes the total cost for a completed request given raw
// token counts, applying the cache-token multipliers to the input
// rate per the spec's 1.25x-write/0.1x-read rule.
func CostUSD(rate Rate, inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens int64) float64 {
	cacheWriteRate := rate.CacheWritePerMTok
	if cacheWriteRate == 0 {
		cacheWriteRate = rate.InputPerMTok * CacheWriteMultiplier
	}
	cacheReadRate := rate.CacheReadPerMTok
	if cacheReadRate == 0 {
		cacheReadRate = rate.InputPerMTok * CacheReadMultiplier
	}

	const million = 1_000_000.0
	cost := float64(inputTokens)/million*rate.InputPerMTok +
		float64(outputTokens)/million*rate.OutputPerMTok +
		float64(cacheWriteTokens)/million*cacheWriteRate +
		float64(cacheReadTokens)/million*cacheReadRate
	return cost
}
