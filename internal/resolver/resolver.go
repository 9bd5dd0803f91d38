package resolver

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"quotecache/internal/cache"
	"quotecache/internal/provider"
	"quotecache/internal/provider/health"
	"quotecache/internal/provider/ratelimit"
	"quotecache/internal/quote"
)

const (
	// DefaultFanOut bounds concurrent single-symbol resolutions in a batch.
	DefaultFanOut = 5
	// DefaultBatchPause separates fan-out waves so a rate-limited provider is
	// not hit in one burst.
	DefaultBatchPause = 200 * time.Millisecond
)

//go:generate mockgen -package=resolver_test -destination=mock_provider_test.go quotecache/internal/provider Provider

var errExhausted = errors.New("all providers exhausted")

// Options configures a Resolver.
type Options struct {
	FanOut     int
	BatchPause time.Duration
}

// Resolver satisfies symbols from the cache or, on miss, drives the failover
// sequence across providers in health order, respecting rate limits.
// "No price available right now" is a normal outcome, reported as ok=false,
// never as an error.
type Resolver struct {
	cache     *cache.QuoteCache
	providers map[string]provider.Provider
	health    *health.Tracker
	limits    *ratelimit.Limiter
	group     singleflight.Group

	fanOut     int
	batchPause time.Duration
}

func New(c *cache.QuoteCache, providers []provider.Provider, h *health.Tracker, l *ratelimit.Limiter, opts Options) *Resolver {
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	fanOut := opts.FanOut
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	pause := opts.BatchPause
	if pause < 0 {
		pause = DefaultBatchPause
	}
	return &Resolver{
		cache:      c,
		providers:  byName,
		health:     h,
		limits:     l,
		fanOut:     fanOut,
		batchPause: pause,
	}
}

// Resolve returns a quote for symbol from cache or live fetch. Concurrent
// resolves of the same symbol share one upstream fetch.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (quote.Quote, bool) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Quote{}, false
	}
	if q, ok := r.cache.Get(ctx, symbol); ok {
		return q, true
	}

	v, err, _ := r.group.Do(symbol, func() (any, error) {
		return r.fetch(ctx, symbol)
	})
	if err != nil {
		return quote.Quote{}, false
	}
	return v.(quote.Quote), true
}

func (r *Resolver) fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	for _, name := range r.health.Ordered() {
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		if !r.limits.Allow(name) {
			log.WithFields(log.Fields{"provider": name, "symbol": symbol}).
				Debug("provider rate-limited, skipping")
			continue
		}

		q, err := p.FetchQuote(ctx, symbol)
		if err != nil || !q.Valid() {
			r.health.RecordFailure(name)
			log.WithFields(log.Fields{"provider": name, "symbol": symbol}).
				WithError(err).Debug("provider fetch failed")
			continue
		}

		r.health.RecordSuccess(name)
		r.cache.Put(ctx, symbol, q)
		return q, nil
	}
	return quote.Quote{}, errExhausted
}

// ResolveBatch resolves symbols, partitioning into cached and uncached.
// Uncached symbols first go through batch-capable providers, then the
// remainder is resolved per symbol with bounded concurrency and a short pause
// between waves. Symbols that cannot be resolved are absent from the result.
func (r *Resolver) ResolveBatch(ctx context.Context, symbols []string) map[string]quote.Quote {
	out := make(map[string]quote.Quote)
	var missing []string
	for _, s := range quote.NormalizeSymbols(symbols) {
		if q, ok := r.cache.Get(ctx, s); ok {
			out[s] = q
		} else {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return out
	}

	missing = r.fetchBatch(ctx, missing, out)

	for start := 0; start < len(missing); start += r.fanOut {
		end := min(start+r.fanOut, len(missing))

		g, gctx := errgroup.WithContext(ctx)
		results := make([]quote.Quote, end-start)
		resolved := make([]bool, end-start)
		for i, s := range missing[start:end] {
			i, s := i, s
			g.Go(func() error {
				results[i], resolved[i] = r.Resolve(gctx, s)
				return nil
			})
		}
		_ = g.Wait()
		for i, s := range missing[start:end] {
			if resolved[i] {
				out[s] = results[i]
			}
		}

		if end < len(missing) && r.batchPause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(r.batchPause):
			}
		}
	}
	return out
}

// fetchBatch tries batch-capable providers in health order for the whole
// missing set and returns the symbols still unresolved.
func (r *Resolver) fetchBatch(ctx context.Context, symbols []string, out map[string]quote.Quote) []string {
	for _, name := range r.health.Ordered() {
		bp, ok := r.providers[name].(provider.BatchProvider)
		if !ok {
			continue
		}
		if !r.limits.Allow(name) {
			continue
		}

		got, err := bp.FetchQuotes(ctx, symbols)
		if err != nil {
			r.health.RecordFailure(name)
			log.WithField("provider", name).WithError(err).Debug("batch fetch failed")
			continue
		}
		r.health.RecordSuccess(name)

		var left []string
		for _, s := range symbols {
			q, ok := got[s]
			if !ok || !q.Valid() {
				left = append(left, s)
				continue
			}
			r.cache.Put(ctx, s, q)
			out[s] = q
		}
		symbols = left
		if len(symbols) == 0 {
			break
		}
	}
	return symbols
}
