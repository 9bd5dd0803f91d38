package universe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePortfolios struct {
	symbols []string
	err     error
}

func (f *fakePortfolios) DistinctSymbols(context.Context) ([]string, error) {
	return f.symbols, f.err
}

type fakeRecommendations struct {
	symbols []string
	err     error
	since   time.Time
}

func (f *fakeRecommendations) RecentSymbols(_ context.Context, since time.Time) ([]string, error) {
	f.since = since
	return f.symbols, f.err
}

func TestRefresh_UnionsAndNormalizes(t *testing.T) {
	pf := &fakePortfolios{symbols: []string{"aapl", "nvda", "TSLA"}}
	rec := &fakeRecommendations{symbols: []string{"nvda", "amd"}}
	tr := NewTracker([]string{"SPY", "aapl"}, pf, rec, 7)

	tr.Refresh(context.Background())

	// Priority first, then discovered sorted; AAPL is already priority and
	// NVDA appears once.
	require.Equal(t, []string{"SPY", "AAPL", "AMD", "NVDA", "TSLA"}, tr.SymbolsToFetch(0))
	require.Equal(t, 5, tr.Size())
}

func TestRefresh_LookbackWindow(t *testing.T) {
	rec := &fakeRecommendations{}
	tr := NewTracker(nil, nil, rec, 7)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.Refresh(context.Background())
	require.Equal(t, now.Add(-7*24*time.Hour), rec.since)
}

func TestRefresh_CollaboratorFailureKeepsPreviousUniverse(t *testing.T) {
	pf := &fakePortfolios{symbols: []string{"NVDA"}}
	rec := &fakeRecommendations{symbols: []string{"AMD"}}
	tr := NewTracker([]string{"SPY"}, pf, rec, 7)

	tr.Refresh(context.Background())
	require.Equal(t, []string{"SPY", "AMD", "NVDA"}, tr.SymbolsToFetch(0))

	pf.err = errors.New("database down")
	pf.symbols = nil
	tr.Refresh(context.Background())
	require.Equal(t, []string{"SPY", "AMD", "NVDA"}, tr.SymbolsToFetch(0),
		"a failed refresh must not shrink the universe")
}

func TestSymbolsToFetch_PriorityNeverStarved(t *testing.T) {
	pf := &fakePortfolios{symbols: []string{"D1", "D2", "D3", "D4"}}
	tr := NewTracker([]string{"P1", "P2"}, pf, nil, 7)
	tr.Refresh(context.Background())

	got := tr.SymbolsToFetch(3)
	require.Equal(t, []string{"P1", "P2", "D1"}, got)
}

func TestSymbolsToFetch_NoSourcesMeansPriorityOnly(t *testing.T) {
	tr := NewTracker([]string{"SPY", "QQQ"}, nil, nil, 7)
	tr.Refresh(context.Background())
	require.Equal(t, []string{"SPY", "QQQ"}, tr.SymbolsToFetch(10))
}
