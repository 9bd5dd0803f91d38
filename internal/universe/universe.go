package universe

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"quotecache/internal/quote"
)

// PortfolioSource reports the distinct symbols held across all portfolios.
// Implemented outside this subsystem.
type PortfolioSource interface {
	DistinctSymbols(ctx context.Context) ([]string, error)
}

// RecommendationSource reports the distinct symbols from recommendations
// created since the given time. Implemented outside this subsystem.
type RecommendationSource interface {
	RecentSymbols(ctx context.Context, since time.Time) ([]string, error)
}

// Tracker maintains the working set of symbols worth pre-fetching: a fixed
// priority subset that is never evicted and always fetched first, plus a
// discovered subset refreshed from the portfolio and recommendation sources.
type Tracker struct {
	mu         sync.RWMutex
	priority   []string
	discovered []string

	portfolios      PortfolioSource
	recommendations RecommendationSource
	lookback        time.Duration
	now             func() time.Time
}

// NewTracker builds a tracker. Either source may be nil, meaning that
// collaborator does not exist in this deployment.
func NewTracker(priority []string, portfolios PortfolioSource, recommendations RecommendationSource, lookbackDays int) *Tracker {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	return &Tracker{
		priority:        quote.NormalizeSymbols(priority),
		portfolios:      portfolios,
		recommendations: recommendations,
		lookback:        time.Duration(lookbackDays) * 24 * time.Hour,
		now:             time.Now,
	}
}

// Refresh rebuilds the discovered subset from both collaborators. A failure
// to reach either one keeps the previous universe rather than shrinking it.
func (t *Tracker) Refresh(ctx context.Context) {
	var gathered []string

	if t.portfolios != nil {
		syms, err := t.portfolios.DistinctSymbols(ctx)
		if err != nil {
			log.WithError(err).Warn("portfolio symbol lookup failed, keeping previous universe")
			return
		}
		gathered = append(gathered, syms...)
	}
	if t.recommendations != nil {
		since := t.now().Add(-t.lookback)
		syms, err := t.recommendations.RecentSymbols(ctx, since)
		if err != nil {
			log.WithError(err).Warn("recommendation symbol lookup failed, keeping previous universe")
			return
		}
		gathered = append(gathered, syms...)
	}

	inPriority := make(map[string]struct{}, len(t.priority))
	for _, s := range t.priority {
		inPriority[s] = struct{}{}
	}
	discovered := make([]string, 0, len(gathered))
	for _, s := range quote.NormalizeSymbols(gathered) {
		if _, ok := inPriority[s]; ok {
			continue
		}
		discovered = append(discovered, s)
	}
	sort.Strings(discovered)

	t.mu.Lock()
	t.discovered = discovered
	t.mu.Unlock()

	log.WithFields(log.Fields{
		"priority":   len(t.priority),
		"discovered": len(discovered),
	}).Debug("symbol universe refreshed")
}

// SymbolsToFetch returns priority symbols first, then discovered symbols,
// truncated to maxBatch so important names are never starved by a large
// discovered set.
func (t *Tracker) SymbolsToFetch(maxBatch int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.priority)+len(t.discovered))
	out = append(out, t.priority...)
	out = append(out, t.discovered...)
	if maxBatch > 0 && len(out) > maxBatch {
		out = out[:maxBatch]
	}
	return out
}

// Size reports the current universe size.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.priority) + len(t.discovered)
}
