package recorder

import (
	"errors"
	"time"

	"cortex5/internal/model"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = errors.New("run not found")

// Run sources.
const (
	SourceCLI      = "cli"
	SourceAPI      = "api"
	SourceSchedule = "schedule"
	SourceTelegram = "telegram"
)

// RunSummary is one row of the run history.
type RunSummary struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Source         string    `json:"source"`
	Symbol         string    `json:"symbol"`
	Status         string    `json:"status"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Interval       string    `json:"interval"`
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturn    float64   `json:"total_return"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	TotalTrades    int       `json:"total_trades"`
	RejectedOrders int       `json:"rejected_orders"`
	Error          string    `json:"error,omitempty"`
}

// RunDetail is a run with its trades and rejected orders.
type RunDetail struct {
	RunSummary
	Trades      []model.Trade       `json:"trades"`
	Rejections  []model.Decision    `json:"rejections"`
	EquityCurve []model.EquityPoint `json:"equity_curve"`
}

// Recorder persists backtest run history.
type Recorder interface {
	RecordRun(source string, rep *model.Report) (int64, error)
	RecordFailure(source, symbol string, cfg model.BacktestConfig, cause error) (int64, error)
	ListRuns(limit int) ([]RunSummary, error)
	GetRun(id int64) (*RunDetail, error)
	Close() error
}
