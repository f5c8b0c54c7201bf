package healthpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSuccessResetsBackoff(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c1"}

	tr.RecordFailure(key, ErrorClassRateLimit)
	snap := tr.Snapshot(key)
	assert.Equal(t, 0, snap.BackoffTier)
	assert.True(t, tr.IsPaused(key))

	tr.RecordSuccess(key)
	snap = tr.Snapshot(key)
	assert.Equal(t, 0, snap.BackoffTier)
	assert.False(t, tr.IsPaused(key))
}

func TestBackoffLadderEscalates(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c2"}

	for i := 0; i < len(backoffLadder)+2; i++ {
		tr.RecordFailure(key, ErrorClassRateLimit)
	}
	snap := tr.Snapshot(key)
	assert.Equal(t, len(backoffLadder)-1, snap.BackoffTier)
}

func TestInitialScoreIsSeventy(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c3"}
	assert.Equal(t, initialScore, tr.Snapshot(key).Score)
}

func TestRecordSuccessIncrementsScoreCappedAtMax(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c4"}
	tr.RecordSuccess(key)
	assert.Equal(t, initialScore+1, tr.Snapshot(key).Score)

	for i := 0; i < 100; i++ {
		tr.RecordSuccess(key)
	}
	assert.Equal(t, maxScore, tr.Snapshot(key).Score)
}

func TestAuthFailureCostsTwentyPoints(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c5"}
	tr.RecordFailure(key, ErrorClassAuth)
	assert.Equal(t, initialScore-authFailureCost, tr.Snapshot(key).Score)
}

func TestRateLimitFailureCostsTenPoints(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c6"}
	tr.RecordFailure(key, ErrorClassRateLimit)
	assert.Equal(t, initialScore-rateLimitCost, tr.Snapshot(key).Score)
}

func TestTransientFailureDoesNotPenalizeScore(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c7"}
	tr.RecordFailure(key, ErrorClassTransient)
	tr.RecordFailure(key, ErrorClassUnavailable)
	tr.RecordFailure(key, ErrorClassBadRequest)
	assert.Equal(t, initialScore, tr.Snapshot(key).Score)
}

func TestScoreFloorsAtZero(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c8"}
	for i := 0; i < 10; i++ {
		tr.RecordFailure(key, ErrorClassAuth)
	}
	assert.Equal(t, minScore, tr.Snapshot(key).Score)
}

func TestConsumeAdmissionDrainsAndRefillsBucket(t *testing.T) {
	tr := NewTracker()
	key := Key{Provider: "kiro", CredentialID: "c9"}

	for i := 0; i < int(bucketMax); i++ {
		assert.True(t, tr.ConsumeAdmission(key))
	}
	assert.False(t, tr.ConsumeAdmission(key))
}
