package health

import (
	"sort"
	"sync"
	"time"
)

// DefaultCooldown is how long a failure keeps a provider deprioritized.
const DefaultCooldown = 5 * time.Minute

// Record is one provider's failure bookkeeping. It only influences ordering;
// a provider is never removed from rotation.
type Record struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitzero"`
}

// Tracker keeps per-provider health records and produces the preference
// order for failover: providers with a failure inside the cooldown window
// sort after all providers without one, ties broken by ascending consecutive
// failures, then by configured order. This is a soft circuit-breaker; one
// success puts a provider straight back in front.
type Tracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	order    []string
	records  map[string]*Record
	now      func() time.Time
}

func NewTracker(providers []string, cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	t := &Tracker{
		cooldown: cooldown,
		order:    append([]string(nil), providers...),
		records:  make(map[string]*Record, len(providers)),
		now:      time.Now,
	}
	for _, name := range providers {
		t.records[name] = &Record{}
	}
	return t
}

func (t *Tracker) RecordSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[name]; ok {
		r.ConsecutiveFailures = 0
	}
}

func (t *Tracker) RecordFailure(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[name]; ok {
		r.ConsecutiveFailures++
		r.LastFailureAt = t.now()
	}
}

// Ordered returns all configured providers in current preference order.
func (t *Tracker) Ordered() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	idx := make(map[string]int, len(t.order))
	for i, name := range t.order {
		idx[name] = i
	}

	out := append([]string(nil), t.order...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := t.records[out[i]], t.records[out[j]]
		ci, cj := t.inCooldown(ri, now), t.inCooldown(rj, now)
		if ci != cj {
			return !ci
		}
		if ri.ConsecutiveFailures != rj.ConsecutiveFailures {
			return ri.ConsecutiveFailures < rj.ConsecutiveFailures
		}
		return idx[out[i]] < idx[out[j]]
	})
	return out
}

func (t *Tracker) inCooldown(r *Record, now time.Time) bool {
	return !r.LastFailureAt.IsZero() && now.Sub(r.LastFailureAt) < t.cooldown
}

// Snapshot returns a copy of all records for status reporting.
func (t *Tracker) Snapshot() map[string]Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Record, len(t.records))
	for name, r := range t.records {
		out[name] = *r
	}
	return out
}
