package api

import (
	"cortex5/internal/fund"
	"cortex5/internal/model"
)

// BacktestRequest is the body of POST /api/v1/backtests. Omitted fields
// fall back to the server configuration.
type BacktestRequest struct {
	Symbols        []string        `json:"symbols"`
	Start          string          `json:"start"`
	End            string          `json:"end"`
	Interval       string          `json:"interval"`
	InitialCapital float64         `json:"initial_capital"`
	Risk           *RiskOverride   `json:"risk,omitempty"`
	Sizing         *SizingOverride `json:"sizing,omitempty"`
	// Sentiment replaces the configured source with a constant score.
	Sentiment *float64 `json:"sentiment,omitempty"`
}

// RiskOverride replaces individual risk limits.
type RiskOverride struct {
	MaxPositionPct    *float64 `json:"max_position_pct,omitempty"`
	MaxVolatility     *float64 `json:"max_volatility,omitempty"`
	MinSentimentScore *float64 `json:"min_sentiment_score,omitempty"`
}

// SizingOverride selects another sizing policy.
type SizingOverride struct {
	Policy string `json:"policy"`
	fund.SizerParams
}

// BacktestResponse carries one report per symbol plus the combined
// portfolio when several symbols were run.
type BacktestResponse struct {
	RunIDs    []int64        `json:"run_ids"`
	Reports   []model.Report `json:"reports"`
	Portfolio *model.Report  `json:"portfolio,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
