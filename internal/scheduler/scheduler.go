package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"quotecache/internal/quote"
	"quotecache/internal/session"
)

// batchResolver is the slice of the price resolver the scheduler needs.
type batchResolver interface {
	ResolveBatch(ctx context.Context, symbols []string) map[string]quote.Quote
}

// symbolUniverse is the slice of the universe tracker the scheduler needs.
type symbolUniverse interface {
	Refresh(ctx context.Context)
	SymbolsToFetch(maxBatch int) []string
}

// Stats are cumulative fetch statistics for status reporting.
type Stats struct {
	Cycles            uint64        `json:"cycles"`
	SymbolsRequested  uint64        `json:"symbols_requested"`
	SymbolsFetched    uint64        `json:"symbols_fetched"`
	SymbolsFailed     uint64        `json:"symbols_failed"`
	CycleErrors       uint64        `json:"cycle_errors"`
	LastCycleAt       time.Time     `json:"last_cycle_at,omitzero"`
	LastCycleDuration time.Duration `json:"last_cycle_duration_ns"`
	LastError         string        `json:"last_error,omitempty"`
}

// Options configures the background fetch loop.
type Options struct {
	Intervals    map[session.State]time.Duration
	RefreshEvery int           // refresh the universe every Nth tick
	MaxBatch     int           // symbols per fetch cycle
	CycleTimeout time.Duration // upper bound for one cycle's fetching
	Now          func() time.Time
}

// Scheduler drives the recurring background fetch cycle. The loop is
// self-rescheduling: each run arms the next timer with an interval computed
// from the current session state, so a slow cycle can never overlap with
// itself. A failed or panicking cycle is logged and counted; the next tick is
// always armed.
type Scheduler struct {
	resolver batchResolver
	universe symbolUniverse
	calendar *session.Calendar
	opts     Options

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticks   uint64
	stats   Stats
}

func New(r batchResolver, u symbolUniverse, cal *session.Calendar, opts Options) *Scheduler {
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = 10
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 45 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{resolver: r, universe: u, calendar: cal, opts: opts}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)
	log.Info("background fetch scheduler started")
}

// Stop cancels the armed timer and waits for any in-flight cycle to finish.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	log.Info("background fetch scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Statistics returns a copy of the cumulative fetch stats.
func (s *Scheduler) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		s.runCycle()

		state := s.calendar.StateAt(s.opts.Now())
		timer := time.NewTimer(s.interval(state))
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) interval(state session.State) time.Duration {
	if d, ok := s.opts.Intervals[state]; ok && d > 0 {
		return d
	}
	return time.Minute
}

func (s *Scheduler) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("fetch cycle panicked")
			s.mu.Lock()
			s.stats.CycleErrors++
			s.stats.LastError = fmt.Sprint(r)
			s.mu.Unlock()
		}
	}()

	start := s.opts.Now()

	s.mu.Lock()
	s.ticks++
	tick := s.ticks
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CycleTimeout)
	defer cancel()

	// First tick and every Nth thereafter.
	if tick%uint64(s.opts.RefreshEvery) == 1 || s.opts.RefreshEvery == 1 {
		s.universe.Refresh(ctx)
	}

	symbols := s.universe.SymbolsToFetch(s.opts.MaxBatch)
	got := s.resolver.ResolveBatch(ctx, symbols)
	elapsed := s.opts.Now().Sub(start)

	s.mu.Lock()
	s.stats.Cycles++
	s.stats.SymbolsRequested += uint64(len(symbols))
	s.stats.SymbolsFetched += uint64(len(got))
	s.stats.SymbolsFailed += uint64(len(symbols) - len(got))
	s.stats.LastCycleAt = start
	s.stats.LastCycleDuration = elapsed
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"requested": len(symbols),
		"fetched":   len(got),
		"duration":  elapsed,
	}).Debug("fetch cycle complete")
}
