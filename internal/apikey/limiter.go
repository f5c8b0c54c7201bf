package apikey

import (
	"sync"
	"time"
)

// Usage accumulates request counts and cost for one key across the
// three ceiling windows (daily/monthly/total).
type Usage struct {
	DayStart      time.Time
	DailyRequests int64
	DailyCostUSD  float64

	MonthStart      time.Time
	MonthlyRequests int64
	MonthlyCostUSD  float64

	TotalRequests int64
	TotalCostUSD  float64
}

// Limiter tracks per-key Usage and enforces the ceilings carried on
// each Key, entirely in memory — persistence is the responsibility of
// the relational store external collaborator, which periodically
// flushes these counters.
type Limiter struct {
	mu    sync.Mutex
	usage map[string]*Usage
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{usage: make(map[string]*Usage)}
}

// Allow reports whether key has headroom for one more request under
// every configured ceiling, without recording anything.
func (l *Limiter) Allow(key *Key, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.getUsageUnsafe(key.ID, now)

	if key.DailyRequestLimit > 0 && u.DailyRequests >= key.DailyRequestLimit {
		return false
	}
	if key.MonthlyRequestLimit > 0 && u.MonthlyRequests >= key.MonthlyRequestLimit {
		return false
	}
	if key.TotalRequestLimit > 0 && u.TotalRequests >= key.TotalRequestLimit {
		return false
	}
	if key.DailyCostLimitUSD > 0 && u.DailyCostUSD >= key.DailyCostLimitUSD {
		return false
	}
	if key.MonthlyCostLimitUSD > 0 && u.MonthlyCostUSD >= key.MonthlyCostLimitUSD {
		return false
	}
	if key.TotalCostLimitUSD > 0 && u.TotalCostUSD >= key.TotalCostLimitUSD {
		return false
	}
	return true
}

// Record adds one request and its cost to key's running totals,
// rolling the daily/monthly windows over as needed.
func (l *Limiter) Record(key *Key, now time.Time, costUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.getUsageUnsafe(key.ID, now)

	u.DailyRequests++
	u.DailyCostUSD += costUSD
	u.MonthlyRequests++
	u.MonthlyCostUSD += costUSD
	u.TotalRequests++
	u.TotalCostUSD += costUSD
}

func (l *Limiter) getUsageUnsafe(keyID string, now time.Time) *Usage {
	u, ok := l.usage[keyID]
	if !ok {
		u = &Usage{DayStart: startOfDay(now), MonthStart: startOfMonth(now)}
		l.usage[keyID] = u
	}
	if now.After(u.DayStart.Add(24 * time.Hour)) {
		u.DayStart = startOfDay(now)
		u.DailyRequests = 0
		u.DailyCostUSD = 0
	}
	if now.Year() != u.MonthStart.Year() || now.Month() != u.MonthStart.Month() {
		u.MonthStart = startOfMonth(now)
		u.MonthlyRequests = 0
		u.MonthlyCostUSD = 0
	}
	return u
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Snapshot returns a copy of key's current usage, for admin display.
func (l *Limiter) Snapshot(keyID string) (Usage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.usage[keyID]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}
