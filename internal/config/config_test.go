package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv("BROKERWATCH_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.TokenRefreshThreshold)
	assert.Equal(t, 60*time.Second, cfg.Loops.TokenInterval)
	assert.Equal(t, 60*time.Second, cfg.Loops.BalanceInterval)
	assert.Equal(t, 20*time.Second, cfg.Loops.IntradayInterval)
	assert.True(t, cfg.Loops.IntradayEnabled)
	assert.Equal(t, "0 0 3 * * *", cfg.Loops.DailyTradesSchedule)
	assert.Equal(t, 7, cfg.Loops.DailyTradesWindowDays)
	assert.False(t, cfg.Backup.Enabled)
	assert.Empty(t, cfg.CORSAllowedOrigins)
	assert.DirExists(t, dir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BROKERWATCH_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("TOKEN_REFRESH_THRESHOLD", "10m")
	t.Setenv("BALANCE_CHECK_INTERVAL", "120")
	t.Setenv("INTRADAY_ENABLED", "false")
	t.Setenv("BROKER_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("LOOP_TICK", "not-a-duration")
	t.Setenv("MARKET_HOLIDAYS", "2026-11-19, 2026-12-30")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://dash.example.com, http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.TokenRefreshThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Loops.BalanceInterval)
	assert.False(t, cfg.Loops.IntradayEnabled)
	assert.Equal(t, 2.5, cfg.BrokerRequestsPerSecond)
	assert.Equal(t, 5*time.Second, cfg.Loops.Tick, "unparseable values fall back to the default")
	assert.Equal(t, []string{"2026-11-19", "2026-12-30"}, cfg.MarketHolidays)
	assert.Equal(t, []string{"https://dash.example.com", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
}

func TestValidate_Backup(t *testing.T) {
	t.Setenv("BROKERWATCH_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")

	t.Setenv("S3_BUCKET", "backups")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_SECRET_ACCESS_KEY")

	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Backup.Keep)
}

func TestValidate_BadValues(t *testing.T) {
	cfg := &Config{Port: 70000, Loops: LoopConfig{DailyTradesWindowDays: 0}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "TOKEN_REFRESH_THRESHOLD")
	assert.Contains(t, err.Error(), "DAILY_TRADES_WINDOW_DAYS")
}
