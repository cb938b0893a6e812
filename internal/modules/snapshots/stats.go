package snapshots

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/brokerwatch/internal/domain"
)

// Stats summarizes a snapshot series
type Stats struct {
	Count          int       `json:"count"`
	From           time.Time `json:"from,omitempty"`
	To             time.Time `json:"to,omitempty"`
	MeanAssets     float64   `json:"mean_total_assets"`
	StdDevAssets   float64   `json:"stddev_total_assets"`
	MinAssets      float64   `json:"min_total_assets"`
	MaxAssets      float64   `json:"max_total_assets"`
	MeanPLRate     float64   `json:"mean_profit_loss_rate"`
	StdDevPLRate   float64   `json:"stddev_profit_loss_rate"`
	LatestPLRate   float64   `json:"latest_profit_loss_rate"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
}

// ComputeStats derives summary statistics from snapshots ordered oldest first
func ComputeStats(series []domain.BalanceSnapshot) Stats {
	if len(series) == 0 {
		return Stats{}
	}

	assets := make([]float64, len(series))
	rates := make([]float64, len(series))
	for i, s := range series {
		assets[i] = s.TotalAssets
		rates[i] = s.ProfitLossRate
	}

	out := Stats{
		Count:          len(series),
		From:           series[0].RecordedAt,
		To:             series[len(series)-1].RecordedAt,
		MinAssets:      floats.Min(assets),
		MaxAssets:      floats.Max(assets),
		LatestPLRate:   rates[len(rates)-1],
		MaxDrawdownPct: MaxDrawdown(assets) * 100,
	}
	out.MeanAssets = stat.Mean(assets, nil)
	out.MeanPLRate = stat.Mean(rates, nil)
	if len(series) > 1 {
		out.StdDevAssets = stat.StdDev(assets, nil)
		out.StdDevPLRate = stat.StdDev(rates, nil)
	}
	return out
}

// MaxDrawdown returns the largest peak-to-trough fall as a fraction of the peak
func MaxDrawdown(values []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
