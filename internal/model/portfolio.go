package model

import "time"

// Position is an open long holding of one instrument.
type Position struct {
	Symbol   string    `json:"symbol"`
	Quantity int64     `json:"quantity"`
	AvgCost  float64   `json:"avg_cost"`
	OpenedAt time.Time `json:"opened_at"`
}

// Fill is an executed order as applied to the ledger.
type Fill struct {
	Time       time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	CashAfter  float64   `json:"cash_after"`
}

// Trade is a closed (fully or partially) round trip.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   int64     `json:"quantity"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
}

// PortfolioSnapshot is an immutable view of the ledger at one bar.
type PortfolioSnapshot struct {
	Time          time.Time `json:"timestamp"`
	Cash          float64   `json:"cash"`
	Position      *Position `json:"position,omitempty"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"total_value"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// Held returns the open quantity, zero when flat.
func (s PortfolioSnapshot) Held() int64 {
	if s.Position == nil {
		return 0
	}
	return s.Position.Quantity
}
