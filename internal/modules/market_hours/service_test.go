package market_hours

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/brokerwatch/internal/tokens"
)

func TestIsOpen(t *testing.T) {
	s := NewMarketHoursService(zerolog.Nop())
	kst := func(month time.Month, day, hour, min int) time.Time {
		return time.Date(2026, month, day, hour, min, 0, 0, tokens.KST)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"open bell", kst(3, 3, 9, 0), true},
		{"mid session", kst(3, 3, 12, 0), true},
		{"closing bell", kst(3, 3, 15, 30), true},
		{"after close", kst(3, 3, 15, 31), false},
		{"pre market", kst(3, 3, 8, 59), false},
		{"saturday", kst(3, 7, 10, 0), false},
		{"sunday", kst(3, 8, 10, 0), false},
		{"holiday", kst(3, 2, 10, 0), false},
		{"utc instant inside session", time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC), true},
		{"utc instant on a KST saturday", time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsOpen(tt.at))
		})
	}
}

func TestExtraHolidays(t *testing.T) {
	s := NewMarketHoursService(zerolog.Nop(), "2026-03-03", "not-a-date")

	assert.False(t, s.IsTradingDay(time.Date(2026, 3, 3, 10, 0, 0, 0, tokens.KST)))
	assert.NotContains(t, s.Holidays(), "not-a-date")
}

func TestGetMarketStatus_NextOpenSkipsClosures(t *testing.T) {
	s := NewMarketHoursService(zerolog.Nop())

	// Friday after close, Monday is a holiday
	status := s.GetMarketStatus(time.Date(2026, 2, 27, 16, 0, 0, 0, tokens.KST))
	assert.False(t, status.Open)
	assert.Equal(t, "2026-03-03T09:00:00+09:00", status.OpensAt)
}

func TestSessionBounds(t *testing.T) {
	s := NewMarketHoursService(zerolog.Nop())
	open, closeAt := s.SessionBounds(time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC))

	assert.Equal(t, "2026-03-03T09:00:00+09:00", open.Format(time.RFC3339))
	assert.Equal(t, "2026-03-03T15:30:00+09:00", closeAt.Format(time.RFC3339))
}

func TestUncoveredYearWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	s := NewMarketHoursService(zerolog.New(&buf), "2027-01-01")

	assert.True(t, s.CoversYear(2026))
	assert.True(t, s.CoversYear(2027))
	assert.False(t, s.CoversYear(2028))

	s.IsOpen(time.Date(2026, 3, 3, 10, 0, 0, 0, tokens.KST))
	s.IsOpen(time.Date(2027, 3, 3, 10, 0, 0, 0, tokens.KST))
	assert.Empty(t, buf.String())

	// Still answers from weekdays alone
	assert.True(t, s.IsOpen(time.Date(2028, 3, 3, 10, 0, 0, 0, tokens.KST)))
	s.IsOpen(time.Date(2028, 3, 6, 10, 0, 0, 0, tokens.KST))
	assert.Equal(t, 1, strings.Count(buf.String(), "does not cover this year"))
	assert.Contains(t, buf.String(), `"year":2028`)
}
