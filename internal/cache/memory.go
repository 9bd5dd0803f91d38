package cache

import (
	"sync"
	"time"

	"quotecache/internal/quote"
)

type memoryEntry struct {
	q        quote.Quote
	cachedAt time.Time
}

// memoryTier is the fast in-process tier: TTL checked lazily on read, and a
// hard entry cap enforced by evicting the oldest-inserted entry first.
// Insertion order, not access order, keeps eviction bounded-cost.
type memoryTier struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
	order      []string
	now        func() time.Time
}

func newMemoryTier(ttl time.Duration, maxEntries int) *memoryTier {
	return &memoryTier{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
		now:        time.Now,
	}
}

func (m *memoryTier) get(symbol string) (quote.Quote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[symbol]
	if !ok {
		return quote.Quote{}, false
	}
	if m.now().Sub(e.cachedAt) >= m.ttl {
		m.remove(symbol)
		return quote.Quote{}, false
	}
	return e.q, true
}

func (m *memoryTier) put(symbol string, q quote.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[symbol]; exists {
		m.remove(symbol)
	}
	for m.maxEntries > 0 && len(m.entries) >= m.maxEntries && len(m.order) > 0 {
		m.remove(m.order[0])
	}
	m.entries[symbol] = memoryEntry{q: q, cachedAt: m.now()}
	m.order = append(m.order, symbol)
}

// remove must be called with the lock held.
func (m *memoryTier) remove(symbol string) {
	delete(m.entries, symbol)
	for i, s := range m.order {
		if s == symbol {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *memoryTier) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryTier) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	m.order = nil
}
