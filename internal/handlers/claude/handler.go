// Package claude implements the Claude-compatible HTTP surface
// (/v1/messages and /gemini-antigravity/v1/messages), structured the
// way internal/handlers/openai splits a shared Handler across request
// building, dispatch and streaming files.
package claude

import (
	"time"

	"github.com/kestrel-oss/credrelay/internal/apikey"
	"github.com/kestrel-oss/credrelay/internal/credential"
	"github.com/kestrel-oss/credrelay/internal/credlock"
	"github.com/kestrel-oss/credrelay/internal/failover"
	"github.com/kestrel-oss/credrelay/internal/healthpool"
	"github.com/kestrel-oss/credrelay/internal/pricing"
	"github.com/kestrel-oss/credrelay/internal/selector"
	"github.com/kestrel-oss/credrelay/internal/streamproxy"
	"github.com/kestrel-oss/credrelay/internal/translator"
	"github.com/kestrel-oss/credrelay/internal/upstream"
	"github.com/kestrel-oss/credrelay/internal/usage"
)

// Handler aggregates the dependencies the Claude-dialect endpoints
// need: a credential pool, the failover executor driving it, the
// dialect proxy, and usage/pricing/limit bookkeeping.
type Handler struct {
	credMgr     *credential.Manager
	providers   *upstream.Manager
	executor    *failover.Executor
	refresh     failover.RefreshIfNeeded
	health      *healthpool.Tracker
	proxy       *streamproxy.Proxy
	pricer      *pricing.Table
	limiter     *apikey.Limiter
	usage       *usage.Tracker
	concurrency *credlock.ConcurrencyLimiter
	perMinute   *credlock.SlidingWindowLimiter
	keyFor      func(rawKey string) *apikey.Key
	strategy    selector.Strategy
}

// Deps bundles the constructor arguments for New; named fields keep
// the growing list of Credential-Pool Runtime collaborators readable
// at the call site in internal/server/routes_claude.go.
type Deps struct {
	CredMgr     *credential.Manager
	Providers   *upstream.Manager
	Health      *healthpool.Tracker
	Locks       *credlock.Table
	Sel         *selector.Selector
	Pricer      *pricing.Table
	Limiter     *apikey.Limiter
	Tracker     *usage.Tracker
	Concurrency *credlock.ConcurrencyLimiter
	PerMinute   *credlock.SlidingWindowLimiter
	// KeyFor resolves a raw caller-supplied API key string into the
	// apikey.Key the limiter enforces ceilings against.
	KeyFor func(rawKey string) *apikey.Key
	// Refresh may be nil to skip the refresh-ahead-of-dispatch step.
	Refresh failover.RefreshIfNeeded
}

// New constructs a Claude handler wired to the shared credential pool
// and routing primitives.
func New(d Deps) *Handler {
	return &Handler{
		credMgr:     d.CredMgr,
		providers:   d.Providers,
		executor:    &failover.Executor{Selector: d.Sel, Health: d.Health, Locks: d.Locks},
		refresh:     d.Refresh,
		health:      d.Health,
		proxy:       streamproxy.New(),
		pricer:      d.Pricer,
		limiter:     d.Limiter,
		usage:       d.Tracker,
		concurrency: d.Concurrency,
		perMinute:   d.PerMinute,
		keyFor:      d.KeyFor,
		strategy:    selector.StrategyHybrid,
	}
}

// Close releases background resources owned by the handler.
func (h *Handler) Close() {
	h.proxy.Close()
}

// candidates builds the selector candidate list from every credential
// usable for the given provider name, scoring each by its current
// remaining-quota fraction as reported in Credential.QuotaData.
func (h *Handler) candidates(provider string) []selector.Candidate {
	all := h.credMgr.GetAllCredentials()
	out := make([]selector.Candidate, 0, len(all))
	for _, cred := range all {
		if cred.Disabled {
			continue
		}
		if provider != "" && cred.Provider != provider {
			continue
		}
		frac, known, updatedAt := remainingQuota(cred)
		out = append(out, selector.Candidate{
			ID:                cred.ID,
			Provider:          cred.Provider,
			RemainingFraction: frac,
			QuotaKnown:        known,
			QuotaUpdatedAt:    updatedAt,
			LastUsed:          cred.LastSuccess,
		})
	}
	return out
}

// remainingQuota reads the Quota Tracker's last snapshot for cred,
// returning the fraction of quota remaining (1 - used/limit), whether
// a limit has ever been observed for it, and when that snapshot was
// taken (for the selector's staleness discount).
func remainingQuota(cred *credential.Credential) (fraction float64, known bool, updatedAt time.Time) {
	if cred.QuotaData == nil {
		return 0, false, time.Time{}
	}
	used, _ := cred.QuotaData["used"].(float64)
	limit, _ := cred.QuotaData["limit"].(float64)
	if limit <= 0 {
		return 0, false, time.Time{}
	}
	if ts, ok := cred.QuotaData["updatedAt"].(time.Time); ok {
		updatedAt = ts
	}
	ratio := used / limit
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio, true, updatedAt
}

// targetFormat resolves which translator.Format a given upstream
// provider name speaks on the wire, so the proxy knows which
// translation leg to run. The second return value is false when no
// translator leg exists for the provider yet, so callers can reject
// the request instead of silently mistranslating it through an
// unrelated dialect.
func targetFormat(provider string) (translator.Format, bool) {
	switch provider {
	case "openai-compatible", "openai":
		return translator.FormatOpenAI, true
	case "gemini", "antigravity":
		// Gemini Code Assist and Gemini Antigravity both speak the
		// Gemini generateContent/streamGenerateContent wire shape.
		return translator.FormatGemini, true
	case "anthropic":
		// The upstream already speaks the Anthropic Messages API: no
		// translation leg needed between the Claude dialect and itself.
		return translator.FormatClaude, true
	default:
		// kiro, orchids, warp, vertex and bedrock have no
		// translator.Format leg registered yet (see DESIGN.md); reject
		// rather than guess a dialect for them.
		return translator.FormatGeneric, false
	}
}
