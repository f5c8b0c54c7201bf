package selector

import (
	"testing"
	"time"

	"github.com/kestrel-oss/credrelay/internal/healthpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickHybridPrefersHealthier(t *testing.T) {
	h := healthpool.NewTracker()
	h.RecordFailure(healthpool.Key{Provider: "kiro", CredentialID: "bad"}, healthpool.ErrorClassTransient)
	h.RecordFailure(healthpool.Key{Provider: "kiro", CredentialID: "bad"}, healthpool.ErrorClassTransient)
	h.RecordSuccess(healthpool.Key{Provider: "kiro", CredentialID: "good"})

	sel := New(h)
	candidates := []Candidate{
		{ID: "bad", Provider: "kiro"},
		{ID: "good", Provider: "kiro"},
	}
	picked, log := sel.Pick(StrategyHybrid, candidates, "", nil, 0)
	require.NotNil(t, picked)
	assert.Equal(t, "good", picked.ID)
	assert.Equal(t, "hybrid", log.Reason)
}

func TestPickExcludesRateLimitedCredentials(t *testing.T) {
	h := healthpool.NewTracker()
	h.RecordFailure(healthpool.Key{Provider: "kiro", CredentialID: "paused"}, healthpool.ErrorClassRateLimit)

	sel := New(h)
	candidates := []Candidate{
		{ID: "paused", Provider: "kiro"},
		{ID: "ok", Provider: "kiro"},
	}
	picked, _ := sel.Pick(StrategyHybrid, candidates, "", nil, 0)
	require.NotNil(t, picked)
	assert.Equal(t, "ok", picked.ID)
}

func TestStickyHitsSameCredential(t *testing.T) {
	sel := New(healthpool.NewTracker())
	candidates := []Candidate{{ID: "a"}, {ID: "b"}}
	first, _ := sel.Pick(StrategySticky, candidates, "session-1", nil, time.Minute)
	require.NotNil(t, first)
	second, log := sel.Pick(StrategySticky, candidates, "session-1", nil, time.Minute)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "sticky", log.Reason)
}

func TestRoundRobinCyclesCandidates(t *testing.T) {
	sel := New(healthpool.NewTracker())
	candidates := []Candidate{{ID: "a"}, {ID: "b"}}
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		picked, _ := sel.Pick(StrategyRoundRobin, candidates, "", nil, 0)
		seen[picked.ID]++
	}
	assert.Equal(t, 2, seen["a"])
	assert.Equal(t, 2, seen["b"])
}

func TestPickReturnsNilWhenAllExcluded(t *testing.T) {
	sel := New(healthpool.NewTracker())
	candidates := []Candidate{{ID: "a"}}
	picked, log := sel.Pick(StrategyHybrid, candidates, "", map[string]bool{"a": true}, 0)
	assert.Nil(t, picked)
	assert.Nil(t, log)
}
