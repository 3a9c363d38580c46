package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"grid-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "strategy": {
    "symbol": "ETHUSDT",
    "mode": "Neutral",
    "lower_price": 3000,
    "upper_price": 3400,
    "grid_count": 10,
    "initial_capital": 10000,
    "fee_rate": 0.0004,
    "leverage": 3,
    "funding_rate": 0.0001,
    "slippage": {"model": "fixed", "rate": 0.0002}
  },
  "interval": "15m",
  "start_date": "2024-01-01",
  "end_date": "2024-01-31",
  "data": {"source": "binance", "cache_path": "cache"},
  "optimizer": {"workers": 4, "parameter_ranges": {"grid_count": [5, 10, 20]}},
  "log": {"level": "debug", "output": "both", "file": "logs/test.log"}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigJSON(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "config.json", sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Strategy.Symbol)
	assert.Equal(t, models.ModeNeutral, cfg.Strategy.Mode)
	assert.Equal(t, 10, cfg.Strategy.GridCount)
	assert.Equal(t, 3.0, cfg.Strategy.Leverage)
	assert.Equal(t, models.SlippageFixed, cfg.Strategy.Slippage.Model)
	assert.Equal(t, 0.0002, cfg.Strategy.Slippage.Rate)
	assert.Equal(t, 8.0, cfg.Strategy.FundingIntervalHours, "default")
	assert.Equal(t, models.ExecutionOrders, cfg.Strategy.ExecutionMode)
	assert.NoError(t, cfg.Strategy.Validate())

	assert.Equal(t, "15m", cfg.Interval)
	assert.Equal(t, "binance", cfg.Data.Source)
	assert.Equal(t, 5, cfg.Data.RateLimit)
	assert.Equal(t, 4, cfg.Optimizer.Workers)
	assert.Equal(t, "total_return", cfg.Optimizer.Metric)
	assert.Equal(t, []float64{5, 10, 20}, cfg.Optimizer.ParameterRanges["grid_count"])
	assert.Equal(t, "debug", cfg.LogConfig.Level)
	assert.Equal(t, 100, cfg.LogConfig.MaxSize)
}

func TestLoadConfigYAMLWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
strategy:
  symbol: BTCUSDT
  lower_price: 60000
  upper_price: 70000
  grid_count: 8
  initial_capital: 5000
interval: 1h
`)
	t.Setenv("GRIDBT_STRATEGY_GRID_COUNT", "24")
	t.Setenv("GRIDBT_DATA_CSV_PATH", "data/BTCUSDT.csv")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Strategy.Symbol)
	assert.Equal(t, 24, cfg.Strategy.GridCount)
	assert.Equal(t, "data/BTCUSDT.csv", cfg.Data.CSVPath)
	assert.Equal(t, models.ModeLong, cfg.Strategy.Mode)
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "bad.json", `{"interval": "7m"}`))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad_source.json", `{"data": {"source": "ftp"}}`))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	start, end, err := Window(&models.AppConfig{StartDate: "2024-01-01", EndDate: "2024-01-31"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = Window(&models.AppConfig{StartDate: "2024/01/01", EndDate: "2024-01-31"})
	assert.Error(t, err)
	_, _, err = Window(&models.AppConfig{})
	assert.Error(t, err)
}

func TestLoadSweep(t *testing.T) {
	path := writeFile(t, "sweep.yaml", `
metric: sharpe_ratio
workers: 8
parameter_ranges:
  grid_count: [5, 10]
  lower_price: [2900, 3000]
`)
	sweep, err := LoadSweep(path)
	require.NoError(t, err)
	assert.Equal(t, "sharpe_ratio", sweep.Metric)
	assert.Equal(t, 8, sweep.Workers)
	assert.Equal(t, []float64{2900, 3000}, sweep.ParameterRanges["lower_price"])

	merged := MergeSweep(models.OptimizerConfig{Workers: 2, Metric: "total_return"}, sweep)
	assert.Equal(t, 8, merged.Workers)
	assert.Equal(t, "sharpe_ratio", merged.Metric)
	assert.Len(t, merged.ParameterRanges, 2)
}

func TestLoadSweepRejectsUnknownFields(t *testing.T) {
	_, err := LoadSweep(writeFile(t, "sweep.yaml", "metric: total_return\nranges:\n  grid_count: [5]\n"))
	assert.Error(t, err)

	_, err = LoadSweep(writeFile(t, "empty.yaml", "metric: total_return\n"))
	assert.Error(t, err)

	_, err = LoadSweep(writeFile(t, "badmetric.yaml", "metric: calmar\nparameter_ranges:\n  grid_count: [5]\n"))
	assert.Error(t, err)
}
