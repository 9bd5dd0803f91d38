package cache

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"quotecache/internal/quote"
)

// Options configures the two-tier quote cache.
type Options struct {
	MemoryTTL  time.Duration
	SharedTTL  time.Duration
	MaxEntries int
	Shared     SharedBackend // nil means no shared tier
}

// QuoteCache is the two-tier quote store. Reads check the fast in-process
// tier, then the shared tier; a shared hit backfills the fast tier. Writes go
// to the fast tier unconditionally and to the shared tier best-effort: the
// fast tier is always authoritative for this process, so a shared write
// failure is logged and swallowed.
type QuoteCache struct {
	memory    *memoryTier
	shared    SharedBackend
	sharedTTL time.Duration
}

func New(opts Options) *QuoteCache {
	shared := opts.Shared
	if shared == nil {
		shared = NoopBackend{}
	}
	return &QuoteCache{
		memory:    newMemoryTier(opts.MemoryTTL, opts.MaxEntries),
		shared:    shared,
		sharedTTL: opts.SharedTTL,
	}
}

func sharedKey(symbol string) string { return "quote:" + symbol }

// Get returns the cached quote for symbol, tagging Source with the tier that
// served it.
func (c *QuoteCache) Get(ctx context.Context, symbol string) (quote.Quote, bool) {
	if q, ok := c.memory.get(symbol); ok {
		q.Source = quote.SourceMemoryCache
		return q, true
	}

	raw, err := c.shared.Get(ctx, sharedKey(symbol))
	if err != nil {
		if err != ErrSharedMiss {
			log.WithError(err).WithField("symbol", symbol).Debug("shared cache read failed")
		}
		return quote.Quote{}, false
	}

	var q quote.Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil || !q.Valid() {
		// Undecodable or invalid shared entries are treated as misses.
		return quote.Quote{}, false
	}

	c.memory.put(symbol, q)
	q.Source = quote.SourceSharedCache
	return q, true
}

// Put stores a quote in both tiers. Invalid quotes are never stored.
func (c *QuoteCache) Put(ctx context.Context, symbol string, q quote.Quote) {
	if !q.Valid() {
		return
	}
	c.memory.put(symbol, q)

	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.shared.SetWithTTL(ctx, sharedKey(symbol), string(raw), c.sharedTTL); err != nil {
		log.WithError(err).WithField("symbol", symbol).Debug("shared cache write failed")
	}
}

// MemorySize reports the fast-tier entry count.
func (c *QuoteCache) MemorySize() int { return c.memory.size() }

// Flush empties the fast tier.
func (c *QuoteCache) Flush() { c.memory.flush() }
