package fund

import (
	"fmt"
	"time"

	"cortex5/internal/model"
)

// Costs are the execution frictions applied to every fill.
type Costs struct {
	// CommissionPct is charged on traded notional.
	CommissionPct float64 `json:"commission_pct" yaml:"commission_pct"`
	// SlippagePct moves the fill price against the order.
	SlippagePct float64 `json:"slippage_pct" yaml:"slippage_pct"`
}

// Validate checks the cost rates are non-negative and below 100%.
func (c Costs) Validate() error {
	if c.CommissionPct < 0 || c.CommissionPct >= 1 {
		return fmt.Errorf("commission_pct must be in [0,1), got %v", c.CommissionPct)
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		return fmt.Errorf("slippage_pct must be in [0,1), got %v", c.SlippagePct)
	}
	return nil
}

// Ledger tracks cash, the open position and realised P&L of one run.
// A Ledger belongs to a single run and is not safe for concurrent use.
type Ledger struct {
	symbol      string
	initial     float64
	costs       Costs
	cash        float64
	position    *model.Position
	realizedPnL float64
	fills       []model.Fill
	trades      []model.Trade
}

// NewLedger creates a flat ledger holding initialCapital in cash.
func NewLedger(symbol string, initialCapital float64, costs Costs) *Ledger {
	return &Ledger{
		symbol:  symbol,
		initial: initialCapital,
		costs:   costs,
		cash:    initialCapital,
	}
}

// FillPrice returns the execution price for an order at the given close.
func (l *Ledger) FillPrice(side model.Side, close float64) float64 {
	switch side {
	case model.SideBuy:
		return close * (1 + l.costs.SlippagePct)
	case model.SideSell:
		return close * (1 - l.costs.SlippagePct)
	}
	return close
}

// Commission returns the commission charged on qty shares at price.
func (l *Ledger) Commission(qty int64, price float64) float64 {
	return float64(qty) * price * l.costs.CommissionPct
}

// ApplyFill books an executed order. A SELL that reduces the position
// returns the closed Trade. Invariant violations leave the ledger
// untouched and return a *FillError.
func (l *Ledger) ApplyFill(side model.Side, qty int64, price float64, t time.Time) (*model.Trade, error) {
	fail := func(err error) (*model.Trade, error) {
		return nil, &FillError{
			Time: t, Symbol: l.symbol, Side: side, Quantity: qty, Price: price,
			Held: l.held(), Cash: l.cash, Err: err,
		}
	}
	if qty <= 0 || price <= 0 {
		return fail(ErrInvalidFill)
	}

	commission := l.Commission(qty, price)
	switch side {
	case model.SideBuy:
		cost := float64(qty)*price + commission
		if cost > l.cash {
			return fail(ErrInsufficientCash)
		}
		l.cash -= cost
		if l.position == nil {
			l.position = &model.Position{Symbol: l.symbol, OpenedAt: t}
		}
		// Commission is folded into the cost basis.
		basis := float64(l.position.Quantity)*l.position.AvgCost + cost
		l.position.Quantity += qty
		l.position.AvgCost = basis / float64(l.position.Quantity)
		l.record(side, qty, price, commission, t)
		return nil, nil

	case model.SideSell:
		if qty > l.held() {
			return fail(ErrInsufficientPosition)
		}
		pos := l.position
		proceeds := float64(qty)*price - commission
		pnl := float64(qty)*(price-pos.AvgCost) - commission
		l.cash += proceeds
		l.realizedPnL += pnl

		trade := model.Trade{
			Symbol:     l.symbol,
			Side:       "LONG",
			EntryDate:  pos.OpenedAt,
			ExitDate:   t,
			EntryPrice: pos.AvgCost,
			ExitPrice:  price,
			Quantity:   qty,
			PnL:        pnl,
			PnLPct:     pnl / (float64(qty) * pos.AvgCost),
		}
		l.trades = append(l.trades, trade)

		pos.Quantity -= qty
		if pos.Quantity == 0 {
			l.position = nil
		}
		l.record(side, qty, price, commission, t)
		return &trade, nil
	}
	return fail(fmt.Errorf("%w: unknown side %q", ErrInvalidFill, side))
}

func (l *Ledger) record(side model.Side, qty int64, price, commission float64, t time.Time) {
	l.fills = append(l.fills, model.Fill{
		Time:       t,
		Symbol:     l.symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		CashAfter:  l.cash,
	})
}

func (l *Ledger) held() int64 {
	if l.position == nil {
		return 0
	}
	return l.position.Quantity
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 { return l.cash }

// InitialCapital returns the starting cash.
func (l *Ledger) InitialCapital() float64 { return l.initial }

// Equity returns cash plus the position marked at mark.
func (l *Ledger) Equity(mark float64) float64 {
	return l.cash + float64(l.held())*mark
}

// Snapshot returns an immutable view of the ledger marked at mark.
func (l *Ledger) Snapshot(t time.Time, mark float64) model.PortfolioSnapshot {
	snap := model.PortfolioSnapshot{
		Time:        t,
		Cash:        l.cash,
		Equity:      l.cash,
		RealizedPnL: l.realizedPnL,
	}
	if l.position != nil {
		pos := *l.position
		snap.Position = &pos
		snap.PositionValue = float64(pos.Quantity) * mark
		snap.Equity += snap.PositionValue
		snap.UnrealizedPnL = float64(pos.Quantity) * (mark - pos.AvgCost)
	}
	return snap
}

// Fills returns a copy of every executed fill in order.
func (l *Ledger) Fills() []model.Fill {
	return append([]model.Fill(nil), l.fills...)
}

// Trades returns a copy of the closed trades in order.
func (l *Ledger) Trades() []model.Trade {
	return append([]model.Trade(nil), l.trades...)
}
