package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/backtest"
	"cortex5/internal/model"
)

var day = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func sampleResult() *backtest.Result {
	pf := 2.5
	order := model.Order{Symbol: "AAPL", Side: model.SideSell, Quantity: 5, Price: 100, Time: day}
	return &backtest.Result{
		Symbol: "AAPL",
		Config: model.BacktestConfig{Symbols: []string{"AAPL"}, Interval: "1d", InitialCapital: 10000},
		State:  backtest.StateCompleted,
		Bars:   2,
		EquityCurve: []model.EquityPoint{
			{Time: day, Equity: 10000, Cash: 10000},
			{Time: day.AddDate(0, 0, 1), Equity: 10050.5, Cash: 9000, PositionValue: 1050.5},
		},
		Trades: []model.Trade{{
			Symbol: "AAPL", Side: "LONG", EntryDate: day, ExitDate: day.AddDate(0, 0, 1),
			EntryPrice: 100, ExitPrice: 110, Quantity: 10, PnL: 100, PnLPct: 0.1,
		}},
		Decisions: []model.Decision{
			model.Approve(order),
			model.Reject(order, model.ReasonCapital, "No open position in AAPL to sell"),
		},
		Metrics: model.Metrics{TotalReturn: 0.005, SharpeRatio: 1.2, MaxDrawdown: 0.01, ProfitFactor: &pf, FinalEquity: 10050.5},
	}
}

func TestBuildStableKeys(t *testing.T) {
	rep := Build(sampleResult())
	assert.Equal(t, "COMPLETED", rep.Status)
	assert.Equal(t, day, rep.Start)
	assert.Equal(t, day.AddDate(0, 0, 1), rep.End)
	require.Len(t, rep.Rejections, 1)
	assert.Equal(t, model.ReasonCapital, rep.Rejections[0].Reason)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{
		"symbol", "status", "initial_capital", "final_equity", "total_return", "cagr",
		"sharpe_ratio", "sortino_ratio", "max_drawdown", "max_drawdown_duration",
		"win_rate", "profit_factor", "var_95", "cvar_95", "equity_curve",
		"matched_trades", "fills", "rejections", "portfolio_summary",
	} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, 2.5, raw["profit_factor"])

	trade := raw["matched_trades"].([]any)[0].(map[string]any)
	for _, key := range []string{"entry_date", "exit_date", "entry_price", "exit_price", "quantity", "pnl", "pnl_pct", "side"} {
		assert.Contains(t, trade, key)
	}
	point := raw["equity_curve"].([]any)[0].(map[string]any)
	assert.Contains(t, point, "timestamp")
	assert.Contains(t, point, "equity")
}

func TestBuildEmptyListsAreArrays(t *testing.T) {
	rep := Build(&backtest.Result{Symbol: "X", State: backtest.StateCompleted})
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{}, raw["matched_trades"])
	assert.Equal(t, []any{}, raw["equity_curve"])
	assert.Nil(t, raw["profit_factor"])
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res := sampleResult()

	require.NoError(t, WriteJSON(filepath.Join(dir, "report.json"), []model.Report{Build(res)}))
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var reps []model.Report
	require.NoError(t, json.Unmarshal(data, &reps))
	require.Len(t, reps, 1)
	assert.Equal(t, "AAPL", reps[0].Symbol)
	assert.Equal(t, 10050.5, reps[0].FinalEquity)

	equityPath := filepath.Join(dir, "AAPL_equity.csv")
	require.NoError(t, WriteEquityCSV(equityPath, res.EquityCurve))
	rows := readCSV(t, equityPath)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "equity", "cash", "position_value"}, rows[0])
	assert.Equal(t, []string{"2024-02-02T00:00:00Z", "10050.500000", "9000.000000", "1050.500000"}, rows[2])

	tradesPath := filepath.Join(dir, "AAPL_trades.csv")
	require.NoError(t, WriteTradesCSV(tradesPath, res.Trades))
	rows = readCSV(t, tradesPath)
	require.Len(t, rows, 2)
	assert.Equal(t, "LONG", rows[1][1])
	assert.Equal(t, "10", rows[1][6])
	assert.Equal(t, "100.000000", rows[1][7])
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
