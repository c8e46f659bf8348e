package backtest

import (
	"sort"
	"strings"
	"time"

	"cortex5/internal/metrics"
	"cortex5/internal/model"
)

// AggregateSymbol names the combined result of several runs.
const AggregateSymbol = "PORTFOLIO"

// Aggregate combines independent runs into one portfolio view. Each
// run's equity is carried forward between its own points and counted at
// its initial capital before its first point.
func Aggregate(results []*Result, opts metrics.Options) *Result {
	if len(results) == 0 {
		return nil
	}

	var initial float64
	var symbols []string
	stamps := make(map[int64]time.Time)
	for _, r := range results {
		initial += r.Config.InitialCapital
		symbols = append(symbols, r.Symbol)
		for _, p := range r.EquityCurve {
			stamps[p.Time.UnixNano()] = p.Time
		}
	}
	times := make([]time.Time, 0, len(stamps))
	for _, t := range stamps {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	cursor := make([]int, len(results))
	curve := make([]model.EquityPoint, 0, len(times))
	for _, t := range times {
		pt := model.EquityPoint{Time: t}
		for i, r := range results {
			c := r.EquityCurve
			for cursor[i] < len(c) && !c[cursor[i]].Time.After(t) {
				cursor[i]++
			}
			if cursor[i] == 0 {
				pt.Equity += r.Config.InitialCapital
				pt.Cash += r.Config.InitialCapital
				continue
			}
			last := c[cursor[i]-1]
			pt.Equity += last.Equity
			pt.Cash += last.Cash
			pt.PositionValue += last.PositionValue
		}
		curve = append(curve, pt)
	}

	agg := &Result{
		Symbol:      AggregateSymbol,
		State:       StateCompleted,
		EquityCurve: curve,
	}
	agg.Config = results[0].Config
	agg.Config.Symbols = symbols
	agg.Config.InitialCapital = initial

	for _, r := range results {
		agg.Bars += r.Bars
		agg.Fills = append(agg.Fills, r.Fills...)
		agg.Trades = append(agg.Trades, r.Trades...)
		agg.Decisions = append(agg.Decisions, r.Decisions...)
		agg.Portfolio.Cash += r.Portfolio.Cash
		agg.Portfolio.PositionValue += r.Portfolio.PositionValue
		agg.Portfolio.Equity += r.Portfolio.Equity
		agg.Portfolio.RealizedPnL += r.Portfolio.RealizedPnL
		agg.Portfolio.UnrealizedPnL += r.Portfolio.UnrealizedPnL
		if r.Portfolio.Time.After(agg.Portfolio.Time) {
			agg.Portfolio.Time = r.Portfolio.Time
		}
	}
	sort.SliceStable(agg.Fills, func(i, j int) bool { return agg.Fills[i].Time.Before(agg.Fills[j].Time) })
	sort.SliceStable(agg.Trades, func(i, j int) bool { return agg.Trades[i].ExitDate.Before(agg.Trades[j].ExitDate) })
	sort.SliceStable(agg.Decisions, func(i, j int) bool { return agg.Decisions[i].Order.Time.Before(agg.Decisions[j].Order.Time) })

	agg.Metrics = metrics.Compute(curve, agg.Trades, initial, opts)
	return agg
}

// Label joins the symbols covered by a result for display.
func (r *Result) Label() string {
	if r.Symbol == AggregateSymbol && len(r.Config.Symbols) > 0 {
		return AggregateSymbol + " (" + strings.Join(r.Config.Symbols, ",") + ")"
	}
	return r.Symbol
}
