package model

import "time"

// BacktestConfig is the immutable input of a run request.
type BacktestConfig struct {
	Symbols        []string  `json:"symbols"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Interval       string    `json:"interval"`
	InitialCapital float64   `json:"initial_capital"`
}

// InRange reports whether t falls in the configured date range. A zero
// Start or End leaves that side open; End is inclusive by day.
func (c BacktestConfig) InRange(t time.Time) bool {
	if !c.Start.IsZero() && t.Before(c.Start) {
		return false
	}
	if !c.End.IsZero() && !DayOf(t).Before(DayOf(c.End).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time          time.Time `json:"timestamp"`
	Equity        float64   `json:"equity"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
}

// Metrics holds the performance analytics of a completed run.
type Metrics struct {
	TotalReturn         float64  `json:"total_return"`
	CAGR                float64  `json:"cagr"`
	Volatility          float64  `json:"volatility"`
	SharpeRatio         float64  `json:"sharpe_ratio"`
	SortinoRatio        float64  `json:"sortino_ratio"`
	MaxDrawdown         float64  `json:"max_drawdown"`
	MaxDrawdownDuration int      `json:"max_drawdown_duration"`
	WinRate             float64  `json:"win_rate"`
	ProfitFactor        *float64 `json:"profit_factor"` // nil when there are no losing trades
	VaR95               float64  `json:"var_95"`
	CVaR95              float64  `json:"cvar_95"`
	TotalTrades         int      `json:"total_trades"`
	WinningTrades       int      `json:"winning_trades"`
	LosingTrades        int      `json:"losing_trades"`
	AvgWin              float64  `json:"avg_win"`
	AvgLoss             float64  `json:"avg_loss"`
	BestTrade           float64  `json:"best_trade"`
	WorstTrade          float64  `json:"worst_trade"`
	FinalEquity         float64  `json:"final_equity"`
}

// Report is the serializable run result handed to hosts.
type Report struct {
	Symbol         string    `json:"symbol"`
	Status         string    `json:"status"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Interval       string    `json:"interval"`
	InitialCapital float64   `json:"initial_capital"`
	Bars           int       `json:"bars"`
	Metrics
	EquityCurve      []EquityPoint     `json:"equity_curve"`
	MatchedTrades    []Trade           `json:"matched_trades"`
	Fills            []Fill            `json:"fills"`
	Rejections       []Decision        `json:"rejections"`
	PortfolioSummary PortfolioSnapshot `json:"portfolio_summary"`
}
