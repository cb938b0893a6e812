package snapshots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/brokerwatch/internal/domain"
)

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1, 2, 3}))
	assert.InDelta(t, 0.5, MaxDrawdown([]float64{100, 120, 60, 110, 90}), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0, 0}))
}

func TestComputeStats(t *testing.T) {
	base := time.Now()
	series := []domain.BalanceSnapshot{
		{RecordedAt: base, TotalAssets: 100, ProfitLossRate: 1},
		{RecordedAt: base.Add(time.Minute), TotalAssets: 80, ProfitLossRate: -1},
		{RecordedAt: base.Add(2 * time.Minute), TotalAssets: 120, ProfitLossRate: 3},
	}

	s := ComputeStats(series)
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 100.0, s.MeanAssets, 1e-9)
	assert.InDelta(t, 20.0, s.StdDevAssets, 1e-9)
	assert.Equal(t, 80.0, s.MinAssets)
	assert.Equal(t, 120.0, s.MaxAssets)
	assert.InDelta(t, 1.0, s.MeanPLRate, 1e-9)
	assert.Equal(t, 3.0, s.LatestPLRate)
	assert.InDelta(t, 20.0, s.MaxDrawdownPct, 1e-9)
	assert.True(t, s.To.After(s.From))
}

func TestComputeStats_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))
}
