package service

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"quotecache/internal/cache"
	"quotecache/internal/config"
	"quotecache/internal/provider"
	"quotecache/internal/provider/health"
	"quotecache/internal/provider/ratelimit"
	"quotecache/internal/quote"
	"quotecache/internal/resolver"
	"quotecache/internal/scheduler"
	"quotecache/internal/session"
	"quotecache/internal/universe"
)

// Deps are the collaborators injected at construction. Shared, Portfolios and
// Recommendations are optional; absent ones degrade transparently.
type Deps struct {
	Providers       []provider.Provider
	Shared          cache.SharedBackend
	Portfolios      universe.PortfolioSource
	Recommendations universe.RecommendationSource
}

// ProviderStatus merges one provider's health and rate-limit snapshots.
type ProviderStatus struct {
	Health    health.Record            `json:"health"`
	RateLimit ratelimit.WindowSnapshot `json:"rate_limit"`
}

// StatusSnapshot is the service's externally visible state.
type StatusSnapshot struct {
	Session            session.State             `json:"session"`
	WatchedSymbols     int                       `json:"watched_symbols"`
	MemoryCacheSize    int                       `json:"memory_cache_size"`
	SharedCacheEnabled bool                      `json:"shared_cache_enabled"`
	SchedulerRunning   bool                      `json:"scheduler_running"`
	Providers          map[string]ProviderStatus `json:"providers"`
	Fetch              scheduler.Stats           `json:"fetch"`
}

// Service is the composition root of the market-data subsystem: one explicit
// object constructed at startup and handed to whoever needs it. It owns the
// background scheduler's lifecycle and exposes the on-demand read path, which
// goes through cache and resolver directly and never blocks on the scheduler.
type Service struct {
	cfg       config.Config
	cache     *cache.QuoteCache
	resolver  *resolver.Resolver
	universe  *universe.Tracker
	calendar  *session.Calendar
	scheduler *scheduler.Scheduler
	health    *health.Tracker
	limits    *ratelimit.Limiter
	shared    cache.SharedBackend

	sharedEnabled bool
	closeShared   sync.Once
}

// New wires the subsystem. The shared tier is probed once here: if its ping
// fails, the service degrades to the fast tier only and keeps the same
// interface.
func New(cfg config.Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shared := deps.Shared
	sharedEnabled := shared != nil
	if sharedEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := shared.Ping(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("shared cache unreachable, running on memory tier only")
			_ = shared.Close()
			shared = cache.NoopBackend{}
			sharedEnabled = false
		}
	} else {
		shared = cache.NoopBackend{}
	}

	calendar, err := session.NewCalendar(session.Config{
		Timezone:       cfg.Session.Timezone,
		PremarketStart: cfg.Session.PremarketStart,
		MarketOpen:     cfg.Session.MarketOpen,
		MarketClose:    cfg.Session.MarketClose,
		AfterHoursEnd:  cfg.Session.AfterHoursEnd,
		Holidays:       cfg.Session.Holidays,
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(deps.Providers))
	for _, p := range deps.Providers {
		names = append(names, p.Name())
	}
	healthTracker := health.NewTracker(names, health.DefaultCooldown)
	limiter := ratelimit.NewLimiter(providerBudgets(cfg, names), cfg.RateWindow())

	quoteCache := cache.New(cache.Options{
		MemoryTTL:  cfg.MemoryTTL(),
		SharedTTL:  cfg.SharedTTL(),
		MaxEntries: cfg.Cache.MemoryMaxEntries,
		Shared:     shared,
	})

	res := resolver.New(quoteCache, deps.Providers, healthTracker, limiter, resolver.Options{
		FanOut:     cfg.Fetch.FanOut,
		BatchPause: cfg.BatchPause(),
	})

	tracker := universe.NewTracker(cfg.Fetch.PrioritySymbols, deps.Portfolios, deps.Recommendations,
		cfg.Fetch.RecommendationDays)

	sched := scheduler.New(res, tracker, calendar, scheduler.Options{
		Intervals: map[session.State]time.Duration{
			session.Open:       time.Duration(cfg.Fetch.OpenIntervalSec) * time.Second,
			session.PreMarket:  time.Duration(cfg.Fetch.ExtendedIntervalSec) * time.Second,
			session.AfterHours: time.Duration(cfg.Fetch.ExtendedIntervalSec) * time.Second,
			session.Closed:     time.Duration(cfg.Fetch.ClosedIntervalSec) * time.Second,
		},
		RefreshEvery: cfg.Fetch.UniverseRefreshTicks,
		MaxBatch:     cfg.Fetch.MaxBatch,
		CycleTimeout: 3 * cfg.ProviderTimeout(),
	})

	return &Service{
		cfg:           cfg,
		cache:         quoteCache,
		resolver:      res,
		universe:      tracker,
		calendar:      calendar,
		scheduler:     sched,
		health:        healthTracker,
		limits:        limiter,
		shared:        shared,
		sharedEnabled: sharedEnabled,
	}, nil
}

// providerBudgets maps configured rate budgets onto the wired provider names.
func providerBudgets(cfg config.Config, names []string) map[string]int {
	configured := map[string]int{
		"finnhub":    cfg.Providers.Finnhub.RequestsPerWindow,
		"twelvedata": cfg.Providers.TwelveData.RequestsPerWindow,
		"fmp":        cfg.Providers.FMP.RequestsPerWindow,
	}
	out := make(map[string]int, len(names))
	for _, name := range names {
		if budget, ok := configured[name]; ok && budget > 0 {
			out[name] = budget
		}
	}
	return out
}

// Start launches background fetching.
func (s *Service) Start() {
	s.scheduler.Start()
}

// Stop halts background fetching, letting an in-flight cycle finish.
// Idempotent.
func (s *Service) Stop() {
	s.scheduler.Stop()
}

// Shutdown stops the scheduler, flushes the fast tier and closes the shared
// backend. Idempotent.
func (s *Service) Shutdown() {
	s.Stop()
	s.cache.Flush()
	s.closeShared.Do(func() {
		if err := s.shared.Close(); err != nil {
			log.WithError(err).Debug("shared cache close failed")
		}
	})
}

// GetPrice returns the current quote for symbol, from cache or live fetch.
// ok=false means no price is available right now.
func (s *Service) GetPrice(ctx context.Context, symbol string) (quote.Quote, bool) {
	return s.resolver.Resolve(ctx, symbol)
}

// GetPrices returns quotes for the given symbols; symbols that cannot be
// resolved are absent from the map.
func (s *Service) GetPrices(ctx context.Context, symbols []string) map[string]quote.Quote {
	return s.resolver.ResolveBatch(ctx, symbols)
}

// Status reports the current session state, cache sizes, provider health and
// rate-limit windows, and cumulative fetch statistics.
func (s *Service) Status() StatusSnapshot {
	providers := make(map[string]ProviderStatus)
	healthSnap := s.health.Snapshot()
	limitSnap := s.limits.Snapshot()
	for name, record := range healthSnap {
		providers[name] = ProviderStatus{
			Health:    record,
			RateLimit: limitSnap[name],
		}
	}

	return StatusSnapshot{
		Session:            s.calendar.StateAt(time.Now()),
		WatchedSymbols:     s.universe.Size(),
		MemoryCacheSize:    s.cache.MemorySize(),
		SharedCacheEnabled: s.sharedEnabled,
		SchedulerRunning:   s.scheduler.Running(),
		Providers:          providers,
		Fetch:              s.scheduler.Statistics(),
	}
}
