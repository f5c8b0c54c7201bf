// Package apikey implements the ApiKey entity: hashed-secret lookup
// (never compared as a literal string, unlike the teacher's
// middleware.MultiKeyAuth), per-key daily/monthly/total request and
// cost ceilings, and TTL expiry. Grounded on
// internal/middleware/unified_auth.go's key-extraction flow and
// internal/usage/tracker.go's counter-aggregation shape.
package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Key is one API key row.
type Key struct {
	ID           string
	Prefix       string // first chars shown to the operator, e.g. "sk-cr-ab12"
	SecretHash   string // bcrypt hash of the full secret
	CreatedAt    time.Time
	ExpiresAt    time.Time // zero means "never expires"
	Disabled     bool

	DailyRequestLimit   int64
	MonthlyRequestLimit int64
	TotalRequestLimit   int64
	DailyCostLimitUSD   float64
	MonthlyCostLimitUSD float64
	TotalCostLimitUSD   float64
}

// HashSecret produces the bcrypt hash stored alongside a Key.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether secret matches the key's stored hash.
func (k *Key) Verify(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(k.SecretHash), []byte(secret)) == nil
}

// LookupFingerprint derives a fast, non-secret index key (sha256) for
// O(1) row lookup prior to the bcrypt comparison — bcrypt alone is too
// slow to run against every stored key on every request.
func LookupFingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IsExpired reports whether the key's TTL has elapsed.
func (k *Key) IsExpired(now time.Time) bool {
	if k.ExpiresAt.IsZero() {
		return false
	}
	return now.After(k.ExpiresAt)
}

// IsUsable reports whether the key may currently authenticate a
// request (not disabled, not expired).
func (k *Key) IsUsable(now time.Time) bool {
	return !k.Disabled && !k.IsExpired(now)
}
