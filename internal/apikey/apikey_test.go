package apikey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashSecret("sk-cr-secret")
	require.NoError(t, err)
	key := &Key{SecretHash: hash}
	assert.True(t, key.Verify("sk-cr-secret"))
	assert.False(t, key.Verify("wrong"))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	k := &Key{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, k.IsExpired(now))
	k2 := &Key{}
	assert.False(t, k2.IsExpired(now))
}

func TestLimiterEnforcesDailyRequestCeiling(t *testing.T) {
	l := NewLimiter()
	key := &Key{ID: "k1", DailyRequestLimit: 2}
	now := time.Now()

	assert.True(t, l.Allow(key, now))
	l.Record(key, now, 0)
	assert.True(t, l.Allow(key, now))
	l.Record(key, now, 0)
	assert.False(t, l.Allow(key, now))
}

func TestLimiterEnforcesCostCeiling(t *testing.T) {
	l := NewLimiter()
	key := &Key{ID: "k2", TotalCostLimitUSD: 1.0}
	now := time.Now()

	l.Record(key, now, 0.6)
	assert.True(t, l.Allow(key, now))
	l.Record(key, now, 0.6)
	assert.False(t, l.Allow(key, now))
}

func TestLimiterRollsOverDailyWindow(t *testing.T) {
	l := NewLimiter()
	key := &Key{ID: "k3", DailyRequestLimit: 1}
	now := time.Now()
	l.Record(key, now, 0)
	assert.False(t, l.Allow(key, now))

	tomorrow := now.Add(25 * time.Hour)
	assert.True(t, l.Allow(key, tomorrow))
}
