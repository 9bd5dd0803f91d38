package quote

import (
	"strings"
	"time"
)

// Source values used when a quote is served from a cache tier instead of a
// live provider.
const (
	SourceMemoryCache = "memory-cache"
	SourceSharedCache = "shared-cache"
)

// Quote is the canonical price snapshot for one symbol from one source at one
// time. Providers construct it on fetch; it is never mutated afterwards except
// for Source re-tagging on cache reads.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Volume        int64     `json:"volume,omitempty"`
	Source        string    `json:"source"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Valid reports whether the quote carries a usable price. A quote with a
// non-positive price must never be cached or returned to callers.
func (q Quote) Valid() bool {
	return q.Price > 0
}

// Age returns how long ago the quote was fetched, independent of any cache
// TTL bookkeeping.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// NormalizeSymbol converts a ticker to the canonical uppercase form.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols maps NormalizeSymbol over symbols, dropping empties and
// duplicates while preserving first-seen order.
func NormalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
