package resolver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quotecache/internal/cache"
	"quotecache/internal/provider"
	"quotecache/internal/provider/health"
	"quotecache/internal/provider/ratelimit"
	"quotecache/internal/quote"
	"quotecache/internal/resolver"
)

type fixture struct {
	cache    *cache.QuoteCache
	health   *health.Tracker
	limits   *ratelimit.Limiter
	resolver *resolver.Resolver
}

func newFixture(budgets map[string]int, providers ...provider.Provider) *fixture {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	c := cache.New(cache.Options{
		MemoryTTL:  30 * time.Second,
		SharedTTL:  time.Minute,
		MaxEntries: 100,
	})
	h := health.NewTracker(names, 5*time.Minute)
	l := ratelimit.NewLimiter(budgets, time.Minute)
	return &fixture{
		cache:    c,
		health:   h,
		limits:   l,
		resolver: resolver.New(c, providers, h, l, resolver.Options{FanOut: 5, BatchPause: 0}),
	}
}

func namedMock(ctrl *gomock.Controller, name string) *MockProvider {
	m := NewMockProvider(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	return m
}

func TestResolve_FailoverToThirdProvider(t *testing.T) {
	ctrl := gomock.NewController(t)

	p1 := namedMock(ctrl, "p1")
	p2 := namedMock(ctrl, "p2")
	p3 := namedMock(ctrl, "p3")

	p1.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(quote.Quote{}, provider.Errorf("p1", "boom")).Times(1)
	p2.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(quote.Quote{}, provider.Errorf("p2", "boom")).Times(1)
	p3.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(quote.Quote{Symbol: "AAPL", Price: 190, Source: "p3"}, nil).Times(1)

	f := newFixture(nil, p1, p2, p3)
	q, ok := f.resolver.Resolve(context.Background(), "AAPL")
	require.True(t, ok)
	require.Equal(t, "p3", q.Source)
	require.Equal(t, 190.0, q.Price)

	snap := f.health.Snapshot()
	require.Equal(t, 1, snap["p1"].ConsecutiveFailures)
	require.Equal(t, 1, snap["p2"].ConsecutiveFailures)
	require.Equal(t, 0, snap["p3"].ConsecutiveFailures)
}

func TestResolve_NonPositivePriceIsAFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	p1 := namedMock(ctrl, "p1")
	p2 := namedMock(ctrl, "p2")

	// A nil error with an unusable price must still count as a failure.
	p1.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(quote.Quote{Symbol: "AAPL", Price: 0}, nil).Times(1)
	p2.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(quote.Quote{Symbol: "AAPL", Price: 190, Source: "p2"}, nil).Times(1)

	f := newFixture(nil, p1, p2)
	q, ok := f.resolver.Resolve(context.Background(), "AAPL")
	require.True(t, ok)
	require.Equal(t, "p2", q.Source)
	require.Equal(t, 1, f.health.Snapshot()["p1"].ConsecutiveFailures)
}

func TestResolve_AllProvidersExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)

	p1 := namedMock(ctrl, "p1")
	p1.EXPECT().FetchQuote(gomock.Any(), "ZZZZINVALID").
		Return(quote.Quote{}, provider.Errorf("p1", "unknown symbol")).Times(1)

	f := newFixture(nil, p1)
	_, ok := f.resolver.Resolve(context.Background(), "ZZZZINVALID")
	require.False(t, ok, "exhaustion is a recoverable no-data condition, not an error")
}

func TestResolve_CacheHitSkipsProviders(t *testing.T) {
	ctrl := gomock.NewController(t)

	p1 := namedMock(ctrl, "p1")
	// No FetchQuote expectation: any call would fail the test.

	f := newFixture(nil, p1)
	f.cache.Put(context.Background(), "AAPL", quote.Quote{Symbol: "AAPL", Price: 190, Source: "p1"})

	q, ok := f.resolver.Resolve(context.Background(), "aapl")
	require.True(t, ok)
	require.Equal(t, quote.SourceMemoryCache, q.Source)
}

func TestResolve_RateLimitedProviderSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)

	p1 := namedMock(ctrl, "p1")
	p2 := namedMock(ctrl, "p2")
	p2.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(quote.Quote{Symbol: "AAPL", Price: 190, Source: "p2"}, nil).Times(1)

	f := newFixture(map[string]int{"p1": 1}, p1, p2)
	require.True(t, f.limits.Allow("p1"), "consume p1's whole budget")

	q, ok := f.resolver.Resolve(context.Background(), "AAPL")
	require.True(t, ok)
	require.Equal(t, "p2", q.Source)

	// Skipping for rate limiting is not a failure.
	require.Equal(t, 0, f.health.Snapshot()["p1"].ConsecutiveFailures)
}

func TestResolveBatch_PartialSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)

	prices := map[string]float64{"AAPL": 190, "MSFT": 410, "NVDA": 880}
	p1 := namedMock(ctrl, "p1")
	p1.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, symbol string) (quote.Quote, error) {
			price, ok := prices[symbol]
			if !ok {
				return quote.Quote{}, provider.Errorf("p1", "unknown symbol %s", symbol)
			}
			return quote.Quote{Symbol: symbol, Price: price, Source: "p1"}, nil
		}).AnyTimes()

	f := newFixture(nil, p1)
	got := f.resolver.ResolveBatch(context.Background(),
		[]string{"AAPL", "BAD1", "MSFT", "BAD2", "NVDA"})

	require.Len(t, got, 3)
	require.Contains(t, got, "AAPL")
	require.Contains(t, got, "MSFT")
	require.Contains(t, got, "NVDA")
	require.NotContains(t, got, "BAD1")
	require.NotContains(t, got, "BAD2")
}

// fakeBatchProvider implements provider.BatchProvider in-process.
type fakeBatchProvider struct {
	name    string
	quotes  map[string]quote.Quote
	batches int
	singles int
}

func (f *fakeBatchProvider) Name() string { return f.name }

func (f *fakeBatchProvider) FetchQuote(_ context.Context, symbol string) (quote.Quote, error) {
	f.singles++
	q, ok := f.quotes[symbol]
	if !ok {
		return quote.Quote{}, provider.Errorf(f.name, "unknown symbol %s", symbol)
	}
	return q, nil
}

func (f *fakeBatchProvider) FetchQuotes(_ context.Context, symbols []string) (map[string]quote.Quote, error) {
	f.batches++
	out := make(map[string]quote.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func TestResolveBatch_PrefersBatchCapableProvider(t *testing.T) {
	p := &fakeBatchProvider{
		name: "batch",
		quotes: map[string]quote.Quote{
			"AAPL": {Symbol: "AAPL", Price: 190, Source: "batch"},
			"MSFT": {Symbol: "MSFT", Price: 410, Source: "batch"},
		},
	}

	f := newFixture(nil, p)
	got := f.resolver.ResolveBatch(context.Background(), []string{"AAPL", "MSFT"})

	require.Len(t, got, 2)
	require.Equal(t, 1, p.batches, "both symbols should ride one batch request")
	require.Equal(t, 0, p.singles)
}

func TestResolveBatch_CachedSymbolsNotRefetched(t *testing.T) {
	ctrl := gomock.NewController(t)

	p1 := namedMock(ctrl, "p1")
	p1.EXPECT().FetchQuote(gomock.Any(), "MSFT").
		Return(quote.Quote{Symbol: "MSFT", Price: 410, Source: "p1"}, nil).Times(1)

	f := newFixture(nil, p1)
	f.cache.Put(context.Background(), "AAPL", quote.Quote{Symbol: "AAPL", Price: 190, Source: "p1"})

	got := f.resolver.ResolveBatch(context.Background(), []string{"AAPL", "MSFT"})
	require.Len(t, got, 2)
	require.Equal(t, quote.SourceMemoryCache, got["AAPL"].Source)
}
