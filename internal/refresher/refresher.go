// Package refresher implements the Token Refresher: per-authMethod
// OAuth2 refresh dispatch with TOCTOU-safe singleflight coalescing and
// a periodic sweep, generalized from the teacher's single
// Google-flavored oauth.Manager.RefreshToken into a protocol registry
// keyed by Credential.AuthMethod.
package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-oss/credrelay/internal/credential"
	log "github.com/sirupsen/logrus"
)

// Protocol performs the actual token exchange for one authMethod.
// Implementations must mutate cred in place (AccessToken, RefreshToken,
// ExpiresAt) on success.
type Protocol func(ctx context.Context, cred *credential.Credential) error

// Refresher dispatches refreshes to the protocol registered for a
// credential's AuthMethod, deduplicating concurrent callers for the
// same credential id.
type Refresher struct {
	protocols map[string]Protocol
	inflight  *credential.InflightCoordinator
	aheadBy   time.Duration
}

// New creates a Refresher. aheadBy controls how long before expiry a
// credential is considered due for refresh (the teacher defaults this
// to 180s via Options.RefreshAheadSeconds).
func New(aheadBy time.Duration) *Refresher {
	if aheadBy <= 0 {
		aheadBy = 180 * time.Second
	}
	return &Refresher{
		protocols: make(map[string]Protocol),
		inflight:  credential.NewInflightCoordinator(),
		aheadBy:   aheadBy,
	}
}

// Register binds a Protocol to an authMethod ("social", "builder-id",
// "idc", "gemini-antigravity", "warp", ...).
func (r *Refresher) Register(authMethod string, p Protocol) {
	r.protocols[authMethod] = p
}

// Due reports whether cred is close enough to expiry to need a refresh.
func (r *Refresher) Due(cred *credential.Credential) bool {
	if cred.Type != "oauth" {
		return false
	}
	return time.Now().Add(r.aheadBy).After(cred.ExpiresAt)
}

// RefreshIfNeeded refreshes cred if it is due, coalescing concurrent
// callers for the same credential id into a single upstream call —
// the in-flight map entry is created synchronously with the check so
// no two callers can both observe "not yet refreshing" and proceed.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, cred *credential.Credential) error {
	if !r.Due(cred) {
		return nil
	}
	return r.inflight.Do(ctx, cred.ID, func(ctx context.Context) error {
		if !r.Due(cred) {
			return nil // another waiter already refreshed it
		}
		proto, ok := r.protocols[cred.AuthMethod]
		if !ok {
			return fmt.Errorf("refresher: no protocol registered for authMethod %q", cred.AuthMethod)
		}
		if err := proto(ctx, cred); err != nil {
			log.WithError(err).WithField("credential_id", cred.ID).Warn("token refresh failed")
			return err
		}
		log.WithField("credential_id", cred.ID).Info("token refreshed")
		return nil
	})
}

// StartPeriodicSweep refreshes all due credentials from pool every
// interval until ctx is cancelled, mirroring the teacher's
// Manager.StartPeriodicRefresh ticker shape.
func (r *Refresher) StartPeriodicSweep(ctx context.Context, interval time.Duration, pool func() []*credential.Credential) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, cred := range pool() {
					if cred == nil {
						continue
					}
					if err := r.RefreshIfNeeded(ctx, cred); err != nil {
						log.WithError(err).WithField("credential_id", cred.ID).Debug("periodic refresh skipped")
					}
				}
			}
		}
	}()
}
