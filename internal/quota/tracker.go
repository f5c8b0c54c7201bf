// Package quota implements the Credential-Pool Runtime's Quota Tracker
// leaf (spec.md §2 item 4): a periodic sweep that asks each upstream
// for its per-credential remaining quota and writes the result onto
// Credential.QuotaData, the same map internal/handlers/claude/handler.go's
// remainingQuota reads to build selector.Candidate.RemainingFraction.
package quota

import (
	"context"
	"time"

	"github.com/kestrel-oss/credrelay/internal/credential"
	log "github.com/sirupsen/logrus"
)

// Usage is one upstream's answer to "how much quota is left".
type Usage struct {
	Used  float64
	Limit float64
}

// Provider fetches the current usage limits for one credential. Only
// upstreams that expose a usage/limits endpoint implement this —
// Kiro/CodeWhisperer's getUsageLimits is the one named in spec.md.
type Provider interface {
	GetUsageLimits(ctx context.Context, cred *credential.Credential) (Usage, error)
}

// Tracker periodically refreshes QuotaData for every credential whose
// provider has a registered quota Provider.
type Tracker struct {
	providers map[string]Provider
	interval  time.Duration
}

// New builds a Tracker. interval defaults to 10 minutes, matching the
// teacher's other periodic-sweep defaults (credential refresh, auto-
// recovery) in order of magnitude.
func New(interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Tracker{providers: make(map[string]Provider), interval: interval}
}

// Register binds a quota Provider to the Credential.Provider value it
// answers for (e.g. "kiro").
func (t *Tracker) Register(provider string, p Provider) {
	if p == nil {
		return
	}
	t.providers[provider] = p
}

// RefreshOnce queries every credential in pool whose provider has a
// registered quota Provider and writes the result onto QuotaData as
// {"used", "limit", "updatedAt"}, leaving credentials for unregistered
// providers untouched (selector.quotaScore then treats them as
// quota-unknown, per spec.md's default).
func (t *Tracker) RefreshOnce(ctx context.Context, pool []*credential.Credential) {
	for _, cred := range pool {
		if cred == nil || cred.Disabled {
			continue
		}
		p, ok := t.providers[cred.Provider]
		if !ok {
			continue
		}
		usage, err := p.GetUsageLimits(ctx, cred)
		if err != nil {
			log.WithError(err).WithField("credential_id", cred.ID).Debug("quota refresh failed")
			continue
		}
		if usage.Limit <= 0 {
			continue
		}
		if cred.QuotaData == nil {
			cred.QuotaData = make(map[string]interface{})
		}
		cred.QuotaData["used"] = usage.Used
		cred.QuotaData["limit"] = usage.Limit
		cred.QuotaData["updatedAt"] = time.Now()
	}
}

// Start runs RefreshOnce every interval until ctx is cancelled,
// mirroring refresher.Refresher.StartPeriodicSweep's ticker shape.
func (t *Tracker) Start(ctx context.Context, pool func() []*credential.Credential) {
	ticker := time.NewTicker(t.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.RefreshOnce(ctx, pool())
			}
		}
	}()
}
