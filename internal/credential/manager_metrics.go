package credential

import (
	"time"

	"github.com/kestrel-oss/credrelay/internal/healthpool"
	log "github.com/sirupsen/logrus"
)

// statusToErrorClass maps an upstream HTTP status code onto the closed
// healthpool.ErrorClass taxonomy the Health Tracker scores against,
// mirroring internal/failover's apierrors.Class mapping for callers
// (legacy OpenAI/Gemini routes, admin probes) that only have a raw
// status code rather than a classified apierrors.APIError.
func statusToErrorClass(statusCode int) healthpool.ErrorClass {
	switch {
	case statusCode == 401 || statusCode == 403:
		return healthpool.ErrorClassAuth
	case statusCode == 429:
		return healthpool.ErrorClassRateLimit
	case statusCode == 400:
		return healthpool.ErrorClassBadRequest
	case statusCode >= 500 && statusCode < 600:
		return healthpool.ErrorClassUnavailable
	default:
		return healthpool.ErrorClassTransient
	}
}

// mirrorHealthScore copies the shared Health Tracker's current score
// onto cred.HealthScore so legacy readers (admin UI, storage adapters)
// see the same number the selector uses instead of an independently
// computed value.
func (m *Manager) mirrorHealthScore(cred *Credential) {
	if m.health == nil || cred == nil {
		return
	}
	key := healthpool.Key{Provider: cred.Provider, CredentialID: cred.ID}
	snap := m.health.Snapshot(key)
	cred.mu.Lock()
	cred.HealthScore = float64(snap.Score)
	cred.LastScoreCalc = time.Now()
	cred.mu.Unlock()
}

// MarkSuccess marks a credential as successful and persists its state.
func (m *Manager) MarkSuccess(credID string) {
	var target *Credential
	m.mu.RLock()
	health := m.health
	for _, cred := range m.credentials {
		if cred.ID == credID {
			cred.MarkSuccess()
			target = cred
			break
		}
	}
	m.mu.RUnlock()

	if target != nil {
		if health != nil {
			health.RecordSuccess(healthpool.Key{Provider: target.Provider, CredentialID: target.ID})
		}
		m.mirrorHealthScore(target)
		m.persistCredentialState(target, false)
	}
}

// MarkFailure marks a credential as failed (enhanced with status code) and persists the outcome.
func (m *Manager) MarkFailure(credID string, reason string, statusCode int) {
	var target *Credential
	m.mu.RLock()
	health := m.health
	for _, cred := range m.credentials {
		if cred.ID == credID {
			cred.MarkFailureWithConfig(reason, statusCode, m.autoBan)
			cred.mu.RLock()
			weight := cred.FailureWeight
			autoBanned := cred.AutoBanned
			bannedReason := cred.BannedReason
			consecutive := cred.ConsecutiveFails
			cred.mu.RUnlock()
			target = cred

			if autoBanned {
				log.Warnf("Credential %s auto-banned: %s (status: %d, weight: %.2f)", credID, bannedReason, statusCode, weight)
			} else {
				log.Warnf("Credential %s failed: %s (status: %d, consecutive fails: %d, weight: %.2f)", credID, reason, statusCode, consecutive, weight)
			}
			break
		}
	}
	m.mu.RUnlock()

	if target != nil {
		if health != nil {
			health.RecordFailure(healthpool.Key{Provider: target.Provider, CredentialID: target.ID}, statusToErrorClass(statusCode))
		}
		m.mirrorHealthScore(target)
		m.persistCredentialState(target, true)
	}
}
