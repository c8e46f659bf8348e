// Package backtest replays historical bars through the indicator, signal,
// risk and ledger pipeline and produces an auditable result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"cortex5/internal/calculator"
	"cortex5/internal/collector"
	"cortex5/internal/fund"
	"cortex5/internal/metrics"
	"cortex5/internal/model"
	"cortex5/internal/risk"
	"cortex5/internal/strategy"
)

// State is the lifecycle stage of a Runner.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// ErrNotIdle is returned when Run is called on a runner that already ran.
var ErrNotIdle = errors.New("runner is not idle")

// Options configures every stage of a run.
type Options struct {
	Indicators calculator.Params
	Risk       risk.Config
	// Sizer defaults to a fixed fraction of equity equal to Risk.MaxPositionPct.
	Sizer    fund.Sizer
	Costs    fund.Costs
	Metrics  metrics.Options
	Observer Observer
	// Parallelism bounds RunAll; zero or less means one run per symbol at once.
	Parallelism int
}

// DefaultOptions returns the standard pipeline settings.
func DefaultOptions() Options {
	return Options{
		Indicators: calculator.DefaultParams(),
		Risk:       risk.DefaultConfig(),
	}
}

func (o Options) validate() error {
	if err := o.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if err := o.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := o.Costs.Validate(); err != nil {
		return fmt.Errorf("costs: %w", err)
	}
	return nil
}

// Result is the frozen outcome of a completed run.
type Result struct {
	Symbol      string
	Config      model.BacktestConfig
	State       State
	Bars        int
	EquityCurve []model.EquityPoint
	Fills       []model.Fill
	Trades      []model.Trade
	Decisions   []model.Decision
	Metrics     model.Metrics
	Portfolio   model.PortfolioSnapshot
}

// Rejections returns the decisions the risk gate turned down.
func (r *Result) Rejections() []model.Decision {
	var out []model.Decision
	for _, d := range r.Decisions {
		if !d.Approved() {
			out = append(out, d)
		}
	}
	return out
}

// Runner executes one backtest. It moves Idle -> Running -> Completed or
// Failed and cannot be reused.
type Runner struct {
	opts Options
	gate *risk.Gate

	mu    sync.Mutex
	state State
	err   error
}

// NewRunner creates an idle Runner.
func NewRunner(opts Options) *Runner {
	if opts.Sizer == nil {
		opts.Sizer = fund.FixedFraction{Fraction: opts.Risk.MaxPositionPct}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	// Commission counts toward the cash a BUY needs.
	opts.Risk.CommissionPct = opts.Costs.CommissionPct
	return &Runner{opts: opts, gate: risk.NewGate(opts.Risk), state: StateIdle}
}

// State returns the current lifecycle stage.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure cause once the runner is Failed.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Runner) transition(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

func (r *Runner) fail(err error) (*Result, error) {
	r.mu.Lock()
	r.state = StateFailed
	r.err = err
	r.mu.Unlock()
	return nil, err
}

// Run replays bars for symbol. Bars before cfg.Start only warm up the
// indicators; signals, fills and equity points are produced for bars inside
// the configured range. Every fill executes at the signal bar's close.
func (r *Runner) Run(ctx context.Context, cfg model.BacktestConfig, symbol string, bars []model.OHLCV, sentiment model.SentimentSeries) (*Result, error) {
	if !r.transition(StateIdle, StateRunning) {
		return nil, ErrNotIdle
	}
	if err := r.opts.validate(); err != nil {
		return r.fail(err)
	}
	if cfg.InitialCapital <= 0 {
		return r.fail(fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital))
	}
	if err := collector.ValidateBars(symbol, bars); err != nil {
		return r.fail(err)
	}
	inRange := 0
	for _, b := range bars {
		if cfg.InRange(b.Time) {
			inRange++
		}
	}
	if inRange == 0 {
		return r.fail(&collector.ValidationError{Symbol: symbol, Index: -1, Reason: "no bars inside the configured date range"})
	}

	ledger := fund.NewLedger(symbol, cfg.InitialCapital, r.opts.Costs)
	tracker := calculator.NewTracker(r.opts.Indicators)
	obs := r.opts.Observer

	curve := make([]model.EquityPoint, 0, inRange)
	var decisions []model.Decision
	prev := model.EmptyIndicatorSet()

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}
		curr := tracker.Update(bar)
		if !cfg.InRange(bar.Time) {
			prev = curr
			continue
		}

		why := strategy.Explain(prev, curr)
		prev = curr
		if side, ok := model.SideOf(why.Signal); ok {
			obs.OnEvent(Event{Kind: EventSignal, Symbol: symbol, Index: i, Time: bar.Time, Signal: why.Signal, Rationale: why})

			price := ledger.FillPrice(side, bar.Close)
			pre := ledger.Snapshot(bar.Time, bar.Close)
			order := model.Order{
				Symbol:   symbol,
				Side:     side,
				Quantity: r.opts.Sizer.Size(side, pre, price),
				Price:    price,
				Time:     bar.Time,
			}
			score, has := sentiment.At(bar.Time)
			mkt := model.MarketSnapshot{
				Time:         bar.Time,
				Price:        bar.Close,
				Volatility:   curr.Volatility,
				Sentiment:    score,
				HasSentiment: has,
			}

			decision := r.gate.Approve(order, pre, mkt)
			decisions = append(decisions, decision)
			if !decision.Approved() {
				obs.OnEvent(Event{Kind: EventRejected, Symbol: symbol, Index: i, Time: bar.Time, Signal: why.Signal, Decision: &decision})
			} else {
				obs.OnEvent(Event{Kind: EventApproved, Symbol: symbol, Index: i, Time: bar.Time, Signal: why.Signal, Decision: &decision})
				trade, err := ledger.ApplyFill(side, order.Quantity, order.Price, bar.Time)
				if err != nil {
					return r.fail(fmt.Errorf("bar %d: %w", i, err))
				}
				fills := ledger.Fills()
				fill := fills[len(fills)-1]
				obs.OnEvent(Event{Kind: EventFill, Symbol: symbol, Index: i, Time: bar.Time, Signal: why.Signal, Fill: &fill, Trade: trade})
			}
		}

		snap := ledger.Snapshot(bar.Time, bar.Close)
		curve = append(curve, model.EquityPoint{
			Time:          bar.Time,
			Equity:        snap.Equity,
			Cash:          snap.Cash,
			PositionValue: snap.PositionValue,
		})
	}

	last := bars[len(bars)-1]
	for i := len(bars) - 1; i >= 0; i-- {
		if cfg.InRange(bars[i].Time) {
			last = bars[i]
			break
		}
	}
	trades := ledger.Trades()
	res := &Result{
		Symbol:      symbol,
		Config:      cfg,
		State:       StateCompleted,
		Bars:        inRange,
		EquityCurve: curve,
		Fills:       ledger.Fills(),
		Trades:      trades,
		Decisions:   decisions,
		Metrics:     metrics.Compute(curve, trades, cfg.InitialCapital, r.opts.Metrics),
		Portfolio:   ledger.Snapshot(last.Time, last.Close),
	}
	r.transition(StateRunning, StateCompleted)
	log.Printf("[INFO] backtest %s completed: %d bars, %d fills, %d trades, return %.2f%%",
		symbol, res.Bars, len(res.Fills), len(res.Trades), res.Metrics.TotalReturn*100)
	return res, nil
}
