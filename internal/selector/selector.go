// Package selector implements the Selector component: hybrid
// weighted scoring, sticky-session routing, and round-robin fallback
// across a credential pool, generalized from the P2C sampling and
// sticky TTL map in the teacher's internal/upstream/strategy package.
package selector

import (
	"sync"
	"time"

	"github.com/kestrel-oss/credrelay/internal/healthpool"
)

// Strategy names the selection algorithm to apply.
type Strategy string

const (
	StrategyHybrid     Strategy = "hybrid"
	StrategySticky     Strategy = "sticky"
	StrategyRoundRobin Strategy = "round-robin"
)

// Spec weights for the hybrid scoring formula, all terms expressed on
// a 0-100 scale to match the Health Tracker's literal integer score:
//
//	score = w_h*Health + w_t*TokenAdmission + w_q*QuotaHeadroom + w_lru*RecencyRank
const (
	WeightHealth = 2.0
	WeightBucket = 5.0
	WeightQuota  = 3.0
	WeightLRU    = 0.1
)

const (
	// quotaCriticalFraction excludes a candidate outright: remaining
	// quota at or below 5% is treated as effectively exhausted.
	quotaCriticalFraction = 0.05
	// quotaLowFraction marks a candidate as "running low" without
	// excluding it, biasing the hybrid score away from it.
	quotaLowFraction = 0.20
	// quotaUnknownScore is the neutral quota score used when a
	// candidate's remaining fraction has never been observed.
	quotaUnknownScore = 50.0
	// quotaStaleAfter marks a quota reading as stale, discounting it
	// rather than trusting it at face value.
	quotaStaleAfter   = 5 * time.Minute
	quotaStalePenalty = 0.9
	quotaLowPenalty   = 0.5

	// unhealthyThreshold is the Health score floor below which a
	// candidate is only eligible when every other candidate is also
	// below it (spec.md §4.2's unhealthy-fallback rule).
	unhealthyThreshold = 50

	bucketMax = 50.0
)

// Candidate is a credential eligible for selection.
type Candidate struct {
	ID       string
	Provider string

	// RemainingFraction is the last observed fraction of quota left
	// (0-1), meaningful only when QuotaKnown is true.
	RemainingFraction float64
	QuotaKnown        bool
	QuotaUpdatedAt    time.Time

	LastUsed time.Time // for the LRU term; zero means "never used"
}

// PickLog records a routing decision for observability, mirroring the
// teacher's strategy.PickLog shape.
type PickLog struct {
	Time         time.Time
	CredentialID string
	Reason       string // sticky|hybrid|round-robin
	StickySource string
	Score        float64
}

// Selector picks a credential for a request using a configured
// strategy, consulting the health pool for scoring and admission.
type Selector struct {
	health *healthpool.Tracker

	mu         sync.Mutex
	sticky     map[string]stickyEntry
	rrIndex    int
	pickLogs   []PickLog
	pickLogCap int
}

type stickyEntry struct {
	credentialID string
	expires      time.Time
}

// New creates a Selector backed by the given health pool.
func New(health *healthpool.Tracker) *Selector {
	return &Selector{
		health:     health,
		sticky:     make(map[string]stickyEntry),
		pickLogCap: 200,
	}
}

// Pick selects a credential from candidates using strategy. stickyKey
// is the session/conversation key used by the sticky strategy (empty
// disables stickiness). excluded lists credential ids the Failover
// Executor has already tried and that must not be picked again.
//
// Admission is consulted only for the candidate actually dispatched:
// if the hybrid/round-robin pick is denied a token, it is added to a
// local, request-scoped deny set and the pick is retried against the
// remaining pool, bounded by the pool size.
func (s *Selector) Pick(strategy Strategy, candidates []Candidate, stickyKey string, excluded map[string]bool, stickyTTL time.Duration) (*Candidate, *PickLog) {
	pool := filterExcluded(candidates, excluded)
	if len(pool) == 0 {
		return nil, nil
	}

	if strategy == StrategySticky && stickyKey != "" {
		if id, ok := s.getSticky(stickyKey); ok {
			for i := range pool {
				if pool[i].ID == id {
					log := PickLog{Time: time.Now(), CredentialID: id, Reason: "sticky", StickySource: stickyKey}
					s.recordPick(log)
					return &pool[i], &log
				}
			}
		}
	}

	denied := make(map[string]bool)
	for attempt := 0; attempt < len(pool); attempt++ {
		eligible := s.applyExclusions(filterExcluded(pool, denied))
		if len(eligible) == 0 {
			return nil, nil
		}

		var picked *Candidate
		var score float64
		switch strategy {
		case StrategyRoundRobin:
			picked = s.pickRoundRobin(eligible)
		default:
			picked, score = s.pickHybrid(eligible)
		}
		if picked == nil {
			return nil, nil
		}

		if !s.tryAdmit(*picked) {
			denied[picked.ID] = true
			continue
		}

		if stickyKey != "" {
			ttl := stickyTTL
			if ttl <= 0 {
				ttl = 5 * time.Minute
			}
			s.setSticky(stickyKey, picked.ID, ttl)
		}

		log := PickLog{Time: time.Now(), CredentialID: picked.ID, Reason: string(strategy), Score: score}
		s.recordPick(log)
		return picked, &log
	}
	return nil, nil
}

// tryAdmit consumes one admission token for c, returning true if the
// pick may proceed. With no health tracker configured, admission is
// always granted.
func (s *Selector) tryAdmit(c Candidate) bool {
	if s.health == nil {
		return true
	}
	return s.health.ConsumeAdmission(healthpool.Key{Provider: c.Provider, CredentialID: c.ID})
}

// applyExclusions drops paused and critically-low-quota candidates,
// then narrows to healthy candidates (Health >= unhealthyThreshold)
// unless doing so would empty the pool — an unhealthy credential is
// only eligible when every other candidate is also unhealthy.
func (s *Selector) applyExclusions(pool []Candidate) []Candidate {
	any := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		key := healthpool.Key{Provider: c.Provider, CredentialID: c.ID}
		if s.health != nil && s.health.IsPaused(key) {
			continue
		}
		if c.QuotaKnown && c.RemainingFraction <= quotaCriticalFraction {
			continue
		}
		any = append(any, c)
	}

	if s.health == nil {
		return any
	}

	healthy := make([]Candidate, 0, len(any))
	for _, c := range any {
		key := healthpool.Key{Provider: c.Provider, CredentialID: c.ID}
		if s.health.Snapshot(key).Score >= unhealthyThreshold {
			healthy = append(healthy, c)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}
	return any
}

func filterExcluded(candidates []Candidate, excluded map[string]bool) []Candidate {
	if len(excluded) == 0 {
		return candidates
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !excluded[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Selector) pickRoundRobin(pool []Candidate) *Candidate {
	s.mu.Lock()
	idx := s.rrIndex % len(pool)
	s.rrIndex++
	s.mu.Unlock()
	return &pool[idx]
}

func (s *Selector) pickHybrid(pool []Candidate) (*Candidate, float64) {
	now := time.Now()
	var oldest, newest time.Time
	for _, c := range pool {
		if c.LastUsed.IsZero() {
			continue
		}
		if oldest.IsZero() || c.LastUsed.Before(oldest) {
			oldest = c.LastUsed
		}
		if c.LastUsed.After(newest) {
			newest = c.LastUsed
		}
	}

	var best *Candidate
	bestScore := -1.0
	for i := range pool {
		c := &pool[i]
		key := healthpool.Key{Provider: c.Provider, CredentialID: c.ID}

		health := 100.0
		bucket := bucketMax
		if s.health != nil {
			snap := s.health.Snapshot(key)
			health = float64(snap.Score)
			bucket = snap.BucketTokens
		}
		bucketScore := bucket / bucketMax * 100.0
		quota := quotaScore(*c, now)
		lru := lruRank(c.LastUsed, oldest, newest, now) * 100.0

		score := WeightHealth*health + WeightBucket*bucketScore + WeightQuota*quota + WeightLRU*lru
		if score > bestScore || (score == bestScore && (best == nil || c.ID < best.ID)) {
			bestScore = score
			best = c
		}
	}
	return best, bestScore
}

// quotaScore maps a candidate's remaining quota fraction to a 0-100
// score, discounting stale readings and credentials running low but
// not yet critical.
func quotaScore(c Candidate, now time.Time) float64 {
	if !c.QuotaKnown {
		return quotaUnknownScore
	}
	frac := c.RemainingFraction
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	score := 100.0 * frac
	if !c.QuotaUpdatedAt.IsZero() && now.Sub(c.QuotaUpdatedAt) > quotaStaleAfter {
		score *= quotaStalePenalty
	}
	if frac > quotaCriticalFraction && frac <= quotaLowFraction {
		score *= quotaLowPenalty
	}
	return score
}

// lruRank returns 1.0 for the least-recently-used candidate and
// approaches 0.0 for the most-recently-used, with never-used
// candidates ranked as maximally stale.
func lruRank(lastUsed, oldest, newest time.Time, now time.Time) float64 {
	if lastUsed.IsZero() {
		return 1.0
	}
	if newest.Equal(oldest) {
		return 0.5
	}
	span := newest.Sub(oldest)
	if span <= 0 {
		return 0.5
	}
	age := newest.Sub(lastUsed)
	rank := float64(age) / float64(span)
	if rank < 0 {
		rank = 0
	} else if rank > 1 {
		rank = 1
	}
	return rank
}

func (s *Selector) getSticky(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sticky[key]
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.credentialID, true
}

func (s *Selector) setSticky(key, credID string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sticky[key] = stickyEntry{credentialID: credID, expires: time.Now().Add(ttl)}
}

func (s *Selector) recordPick(log PickLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pickLogs = append(s.pickLogs, log)
	if len(s.pickLogs) > s.pickLogCap {
		s.pickLogs = s.pickLogs[len(s.pickLogs)-s.pickLogCap:]
	}
}

// RecentPicks returns up to n of the most recent routing decisions.
func (s *Selector) RecentPicks(n int) []PickLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.pickLogs) {
		n = len(s.pickLogs)
	}
	out := make([]PickLog, n)
	copy(out, s.pickLogs[len(s.pickLogs)-n:])
	return out
}

// StickyCount reports the number of active sticky-session entries.
func (s *Selector) StickyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sticky)
}
