package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRefresh_NilExpiryAlwaysRefreshes(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, KST)
	for _, threshold := range []time.Duration{0, time.Minute, DefaultThreshold, 24 * time.Hour} {
		assert.True(t, ShouldRefresh(nil, now, threshold))
	}
}

func TestShouldRefresh_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, KST)

	testCases := []struct {
		name     string
		expiry   time.Time
		expected bool
	}{
		{"already expired", now.Add(-time.Second), true},
		{"expires exactly at threshold", now.Add(DefaultThreshold), true},
		{"expires one second inside threshold", now.Add(DefaultThreshold - time.Second), true},
		{"expires one second past threshold", now.Add(DefaultThreshold + time.Second), false},
		{"expires tomorrow", now.Add(24 * time.Hour), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expiry := tc.expiry
			assert.Equal(t, tc.expected, ShouldRefresh(&expiry, now, DefaultThreshold))
			assert.Equal(t, !tc.expected, Valid(&expiry, now, DefaultThreshold))
		})
	}
}

func TestShouldRefresh_ComparesInstantsAcrossZones(t *testing.T) {
	// 12:00 KST is 03:00 UTC
	expiry := time.Date(2026, 3, 2, 12, 0, 0, 0, KST)
	nowUTC := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)

	assert.False(t, ShouldRefresh(&expiry, nowUTC, DefaultThreshold))
	assert.True(t, ShouldRefresh(&expiry, nowUTC.Add(31*time.Minute), DefaultThreshold))
}

func TestParseKSTDateTime(t *testing.T) {
	parsed, err := ParseKSTDateTime("2026-03-03 09:15:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 15, 0, 0, time.UTC), parsed.UTC())

	_, err = ParseKSTDateTime("2026/03/03")
	assert.Error(t, err)
}

func TestExpiryFromSeconds(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(24*time.Hour), ExpiryFromSeconds(now, 86400))
}
