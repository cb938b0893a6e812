// Package market_hours knows when the Korea Exchange is trading.
package market_hours

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/tokens"
)

// TradingWindow is one continuous session within a trading day
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// MarketStatus describes the exchange at a point in time
type MarketStatus struct {
	Exchange  string `json:"exchange"`
	Timezone  string `json:"timezone"`
	Open      bool   `json:"open"`
	Date      string `json:"date"`
	OpensAt   string `json:"opens_at,omitempty"`
	ClosesAt  string `json:"closes_at,omitempty"`
	IsHoliday bool   `json:"is_holiday"`
}

// MarketHoursService answers market-open questions for KRX
type MarketHoursService struct {
	exchange string
	loc      *time.Location
	window   TradingWindow
	holidays map[string]bool // YYYY-MM-DD in KST
	years    map[int]bool    // years with at least one known holiday
	log      zerolog.Logger

	mu     sync.Mutex
	warned map[int]bool
}

// KRX regular session
var krxWindow = TradingWindow{OpenHour: 9, OpenMinute: 0, CloseHour: 15, CloseMinute: 30}

// krxHolidays2026 are weekday closures of the Korea Exchange
var krxHolidays2026 = []string{
	"2026-01-01", // New Year's Day
	"2026-02-16", // Seollal
	"2026-02-17", // Seollal
	"2026-02-18", // Seollal
	"2026-03-02", // Independence Movement Day (substitute)
	"2026-05-01", // Labour Day
	"2026-05-05", // Children's Day
	"2026-05-25", // Buddha's Birthday (substitute)
	"2026-06-03", // Local elections
	"2026-08-17", // Liberation Day (substitute)
	"2026-09-24", // Chuseok
	"2026-09-25", // Chuseok
	"2026-10-05", // National Foundation Day (substitute)
	"2026-10-09", // Hangul Day
	"2026-12-25", // Christmas
	"2026-12-31", // Year-end closing
}

// NewMarketHoursService creates the KRX calendar. Extra holidays (YYYY-MM-DD)
// are added to the built-in list.
func NewMarketHoursService(log zerolog.Logger, extraHolidays ...string) *MarketHoursService {
	s := &MarketHoursService{
		exchange: "KRX",
		loc:      tokens.KST,
		window:   krxWindow,
		holidays: make(map[string]bool),
		years:    make(map[int]bool),
		log:      log.With().Str("component", "market_hours").Logger(),
		warned:   make(map[int]bool),
	}
	builtin := append([]string(nil), krxHolidays2026...)
	for _, d := range append(builtin, extraHolidays...) {
		day, err := time.ParseInLocation("2006-01-02", d, s.loc)
		if err != nil {
			s.log.Warn().Str("date", d).Msg("Ignoring malformed holiday")
			continue
		}
		s.holidays[d] = true
		s.years[day.Year()] = true
	}
	return s
}

// CoversYear reports whether the calendar knows any holidays in year
func (s *MarketHoursService) CoversYear(year int) bool {
	return s.years[year]
}

// warnUncovered logs once per year that holidays will be treated as trading days
func (s *MarketHoursService) warnUncovered(year int) {
	if s.years[year] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned[year] {
		return
	}
	s.warned[year] = true
	s.log.Warn().Int("year", year).
		Msg("KRX holiday calendar does not cover this year; set MARKET_HOLIDAYS")
}

// IsTradingDay reports whether t falls on a weekday that is not a holiday
func (s *MarketHoursService) IsTradingDay(t time.Time) bool {
	local := t.In(s.loc)
	s.warnUncovered(local.Year())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !s.holidays[local.Format("2006-01-02")]
}

// SessionBounds returns the open and close instants of the session on t's KST date
func (s *MarketHoursService) SessionBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	y, m, d := local.Date()
	open := time.Date(y, m, d, s.window.OpenHour, s.window.OpenMinute, 0, 0, s.loc)
	closeAt := time.Date(y, m, d, s.window.CloseHour, s.window.CloseMinute, 0, 0, s.loc)
	return open, closeAt
}

// IsOpen reports whether the regular session is running at t (close inclusive)
func (s *MarketHoursService) IsOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	open, closeAt := s.SessionBounds(t)
	return !t.Before(open) && !t.After(closeAt)
}

// GetMarketStatus describes the exchange at t
func (s *MarketHoursService) GetMarketStatus(t time.Time) MarketStatus {
	local := t.In(s.loc)
	status := MarketStatus{
		Exchange:  s.exchange,
		Timezone:  s.loc.String(),
		Date:      local.Format("2006-01-02"),
		Open:      s.IsOpen(t),
		IsHoliday: s.holidays[local.Format("2006-01-02")],
	}

	open, closeAt := s.SessionBounds(t)
	switch {
	case status.Open:
		status.ClosesAt = closeAt.Format(time.RFC3339)
	case s.IsTradingDay(t) && t.Before(open):
		status.OpensAt = open.Format(time.RFC3339)
	default:
		next := s.nextTradingDay(local)
		nextOpen, _ := s.SessionBounds(next)
		status.OpensAt = nextOpen.Format(time.RFC3339)
	}
	return status
}

func (s *MarketHoursService) nextTradingDay(t time.Time) time.Time {
	day := t.AddDate(0, 0, 1)
	for i := 0; i < 30 && !s.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// Holidays returns the configured holidays in order
func (s *MarketHoursService) Holidays() []string {
	out := make([]string, 0, len(s.holidays))
	for d := range s.holidays {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
