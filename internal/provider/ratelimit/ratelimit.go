package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-provider fixed-window request counter. Allow is a
// non-blocking check-and-reserve: callers skip a provider for the current
// attempt instead of waiting. Windows reset lazily when consulted past their
// boundary. Brief over-admission around a reset is acceptable; the failure
// mode is an extra HTTP call, not a correctness violation.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	budgets map[string]int
	states  map[string]*windowState
	now     func() time.Time
}

type windowState struct {
	count   int
	resetAt time.Time
}

// WindowSnapshot is one provider's current window for status reporting.
type WindowSnapshot struct {
	Used    int       `json:"used"`
	Budget  int       `json:"budget"`
	ResetAt time.Time `json:"reset_at"`
}

// NewLimiter builds a limiter from per-provider budgets (max requests per
// window). A provider with no budget entry, or a non-positive one, is
// unlimited.
func NewLimiter(budgets map[string]int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	b := make(map[string]int, len(budgets))
	for name, n := range budgets {
		b[name] = n
	}
	return &Limiter{
		window:  window,
		budgets: b,
		states:  make(map[string]*windowState, len(budgets)),
		now:     time.Now,
	}
}

// Allow reports whether the provider still has budget in the current window,
// reserving one request when it does.
func (l *Limiter) Allow(name string) bool {
	budget, limited := l.budgets[name]
	if !limited || budget <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.states[name]
	if !ok || !now.Before(st.resetAt) {
		st = &windowState{resetAt: now.Add(l.window)}
		l.states[name] = st
	}
	if st.count >= budget {
		return false
	}
	st.count++
	return true
}

// Snapshot returns the current window per limited provider.
func (l *Limiter) Snapshot() map[string]WindowSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[string]WindowSnapshot, len(l.budgets))
	for name, budget := range l.budgets {
		snap := WindowSnapshot{Budget: budget}
		if st, ok := l.states[name]; ok && now.Before(st.resetAt) {
			snap.Used = st.count
			snap.ResetAt = st.resetAt
		}
		out[name] = snap
	}
	return out
}
