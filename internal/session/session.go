package session

import (
	"fmt"
	"time"
)

// State is the market's current trading phase.
type State string

const (
	Open       State = "OPEN"
	PreMarket  State = "PREMARKET"
	AfterHours State = "AFTERHOURS"
	Closed     State = "CLOSED"
)

// Config describes one exchange's trading day. Times are "HH:MM" in the
// exchange's local timezone; Holidays are "2006-01-02" dates on which the
// market is closed regardless of time of day.
type Config struct {
	Timezone       string
	PremarketStart string
	MarketOpen     string
	MarketClose    string
	AfterHoursEnd  string
	Holidays       []string
}

// Calendar computes session state as a pure function of wall-clock time.
// Weekends and holidays are always CLOSED; on trading days the four
// boundaries partition the day into CLOSED / PREMARKET / OPEN / AFTERHOURS /
// CLOSED. The holiday table is data the calendar consults, not part of the
// state machine.
type Calendar struct {
	loc            *time.Location
	premarketStart int
	marketOpen     int
	marketClose    int
	afterHoursEnd  int
	holidays       map[string]struct{}
}

func NewCalendar(cfg Config) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(cfg.Holidays))}
	boundaries := []struct {
		name  string
		value string
		dst   *int
	}{
		{"premarket start", cfg.PremarketStart, &c.premarketStart},
		{"market open", cfg.MarketOpen, &c.marketOpen},
		{"market close", cfg.MarketClose, &c.marketClose},
		{"after-hours end", cfg.AfterHoursEnd, &c.afterHoursEnd},
	}
	for _, b := range boundaries {
		m, err := parseMinutes(b.value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", b.name, b.value, err)
		}
		*b.dst = m
	}
	if !(c.premarketStart < c.marketOpen && c.marketOpen < c.marketClose && c.marketClose < c.afterHoursEnd) {
		return nil, fmt.Errorf("session boundaries out of order: %s %s %s %s",
			cfg.PremarketStart, cfg.MarketOpen, cfg.MarketClose, cfg.AfterHoursEnd)
	}

	for _, h := range cfg.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}
		c.holidays[h] = struct{}{}
	}
	return c, nil
}

// StateAt returns the session state for the given instant.
func (c *Calendar) StateAt(t time.Time) State {
	lt := t.In(c.loc)

	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return Closed
	}
	if _, holiday := c.holidays[lt.Format("2006-01-02")]; holiday {
		return Closed
	}

	m := lt.Hour()*60 + lt.Minute()
	switch {
	case m < c.premarketStart:
		return Closed
	case m < c.marketOpen:
		return PreMarket
	case m < c.marketClose:
		return Open
	case m < c.afterHoursEnd:
		return AfterHours
	default:
		return Closed
	}
}

func parseMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
