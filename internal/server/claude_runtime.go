package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kestrel-oss/credrelay/internal/apikey"
	"github.com/kestrel-oss/credrelay/internal/credential"
	"github.com/kestrel-oss/credrelay/internal/credlock"
	"github.com/kestrel-oss/credrelay/internal/healthpool"
	"github.com/kestrel-oss/credrelay/internal/pricing"
	"github.com/kestrel-oss/credrelay/internal/refresher"
	"github.com/kestrel-oss/credrelay/internal/selector"
	"github.com/kestrel-oss/credrelay/internal/upstream"
	"github.com/kestrel-oss/credrelay/internal/usage"
)

// ClaudeRuntime bundles the Credential-Pool Runtime primitives the
// Claude-dialect handlers drive: health tracking, the hybrid
// selector, the FIFO credential lock, the OAuth refresher and pricing/
// limit bookkeeping. Kept separate from Dependencies so engines that
// don't mount the Claude surface never pay for it.
type ClaudeRuntime struct {
	Health      *healthpool.Tracker
	Selector    *selector.Selector
	Locks       *credlock.Table
	Refresher   *refresher.Refresher
	Pricing     *pricing.Table
	Limiter     *apikey.Limiter
	Usage       *usage.Tracker
	Concurrency *credlock.ConcurrencyLimiter
	PerMinute   *credlock.SlidingWindowLimiter
	Providers   *upstream.Manager
	KeyDefaults KeyDefaults
}

// KeyDefaults seeds the apikey.Key the runtime builds on the fly for
// each caller-supplied API key string, until a real per-key admin
// registry replaces this default. Zero fields mean "unlimited".
type KeyDefaults struct {
	DailyRequestLimit   int64
	MonthlyRequestLimit int64
	DailyCostLimitUSD   float64
	MonthlyCostLimitUSD float64
}

// NewClaudeRuntime wires a fresh runtime: refresh-ahead of 3 minutes,
// default OAuth protocols for every authMethod the spec names, and the
// teacher's Gemini Code Assist client registered as the Antigravity-
// fronting provider. disableLock plumbs the routing config's
// DisableCredentialLock escape hatch through to credlock.Table.
func NewClaudeRuntime(providers *upstream.Manager, disableLock bool, maxConcurrentPerKey, requestsPerMinutePerKey int, keyDefaults KeyDefaults) *ClaudeRuntime {
	health := healthpool.NewTracker()
	r := &ClaudeRuntime{
		Health:      health,
		Selector:    selector.New(health),
		Locks:       credlock.NewTable(disableLock),
		Refresher:   refresher.New(3 * time.Minute),
		Pricing:     pricing.NewTable(defaultPricingTable(), nil, nil),
		Limiter:     apikey.NewLimiter(),
		Usage:       usage.NewTracker(&usage.NoOpStorage{}),
		Concurrency: credlock.NewConcurrencyLimiter(maxConcurrentPerKey),
		PerMinute:   credlock.NewSlidingWindowLimiter(requestsPerMinutePerKey, time.Minute),
		Providers:   providers,
		KeyDefaults: keyDefaults,
	}
	refresher.RegisterDefaultProtocols(r.Refresher, http.DefaultClient)
	return r
}

// KeyFor builds the apikey.Key the Usage Meter and per-key ceilings
// use to identify raw, caller-supplied API key strings, since no
// admin-managed key registry is wired into the auth middleware yet.
func (r *ClaudeRuntime) KeyFor(rawKey string) *apikey.Key {
	return &apikey.Key{
		ID:                  rawKey,
		DailyRequestLimit:   r.KeyDefaults.DailyRequestLimit,
		MonthlyRequestLimit: r.KeyDefaults.MonthlyRequestLimit,
		DailyCostLimitUSD:   r.KeyDefaults.DailyCostLimitUSD,
		MonthlyCostLimitUSD: r.KeyDefaults.MonthlyCostLimitUSD,
	}
}

func defaultPricingTable() map[string]pricing.Rate {
	return map[string]pricing.Rate{
		"claude-3-5-sonnet": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
		"gemini-2.5-pro":    {InputPerMTok: 1.25, OutputPerMTok: 5.0},
	}
}

// RefreshIfDue adapts the Refresher to failover.RefreshIfNeeded's
// credential-id-keyed signature, looking the credential up by id
// before delegating to the underlying Refresher.
func (r *ClaudeRuntime) RefreshIfDue(credMgr *credential.Manager) func(ctx context.Context, credID string) error {
	return func(ctx context.Context, credID string) error {
		cred, ok := credMgr.GetCredentialByID(credID)
		if !ok {
			return nil
		}
		return r.Refresher.RefreshIfNeeded(ctx, cred)
	}
}
