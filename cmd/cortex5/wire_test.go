package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/backtest"
	"cortex5/internal/collector"
	"cortex5/internal/config"
	"cortex5/internal/fund"
	"cortex5/internal/model"
	"cortex5/internal/recorder"
	"cortex5/internal/sentiment"
	"cortex5/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Store.DataDir = filepath.Join(t.TempDir(), "bars")
	cfg.Database.SQLitePath = ""
	return cfg
}

func TestBuildFetcher(t *testing.T) {
	cfg := testConfig(t)
	st, err := buildStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.ParquetStore{}, st)

	cases := map[string]string{
		"yahoo":  "yahoo",
		"alpaca": "alpaca",
		"store":  "store",
		"mock":   "mock",
	}
	for provider, want := range cases {
		cfg.DataSource.Provider = provider
		f, err := buildFetcher(cfg, st)
		require.NoError(t, err, provider)
		assert.Equal(t, want, f.Name())
	}

	cfg.Store.Driver = "none"
	none, err := buildStore(cfg)
	require.NoError(t, err)
	assert.Nil(t, none)
	cfg.DataSource.Provider = "store"
	_, err = buildFetcher(cfg, none)
	assert.Error(t, err)
}

func TestBuildSentiment(t *testing.T) {
	cfg := testConfig(t)

	src, err := buildSentiment(cfg)
	require.NoError(t, err)
	assert.Equal(t, sentiment.Neutral{}, src)

	cfg.Sentiment.Provider = "constant"
	cfg.Sentiment.Constant = 0.7
	src, err = buildSentiment(cfg)
	require.NoError(t, err)
	assert.Equal(t, sentiment.Constant{Value: 0.7}, src)

	cfg.Sentiment.Constant = 1.5
	_, err = buildSentiment(cfg)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "sentiment.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,symbol,score\n2024-01-02,spy,0.4\n"), 0644))
	cfg.Sentiment.Provider = "csv"
	cfg.Sentiment.File = path
	src, err = buildSentiment(cfg)
	require.NoError(t, err)
	score, ok, err := src.Score(t.Context(), "SPY", time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, score, 1e-9)
}

func TestBuildRecorder(t *testing.T) {
	cfg := testConfig(t)
	rec := buildRecorder(cfg)
	assert.IsType(t, &recorder.NoopRecorder{}, rec)

	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "runs.db")
	rec = buildRecorder(cfg)
	defer rec.Close()
	assert.IsType(t, &recorder.SQLiteRecorder{}, rec)
}

func TestNewAppRunsMockBacktest(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataSource.Provider = "mock"
	cfg.Backtest.Symbols = []string{"spy", "qqq"}
	cfg.Backtest.Start = "2024-01-01"
	cfg.Backtest.End = "2024-06-30"

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &collector.MockFetcher{}, a.collector.Fetcher)

	bc, err := cfg.BacktestConfig()
	require.NoError(t, err)
	results, portfolio, err := a.service.Run(t.Context(), bc)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, portfolio)
	assert.Equal(t, backtest.AggregateSymbol, portfolio.Symbol)
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()
	rep := model.Report{
		Symbol:         "SPY",
		Status:         "COMPLETED",
		InitialCapital: 10000,
		EquityCurve: []model.EquityPoint{
			{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Equity: 10000, Cash: 10000},
		},
		PortfolioSummary: model.PortfolioSnapshot{Cash: 10000, Equity: 10000},
	}
	require.NoError(t, writeReports(dir, []model.Report{rep}))

	for _, name := range []string{"report.json", "spy_equity.csv", "spy_trades.csv", "spy_portfolio.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	snap, err := fund.LoadSnapshot(filepath.Join(dir, "spy_portfolio.json"))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10000.0, snap.Equity)
}
