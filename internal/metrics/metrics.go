// Package metrics turns an equity curve and closed trades into
// performance analytics.
package metrics

import (
	"math"

	"cortex5/internal/model"
)

const (
	TradingDaysPerYear = 252
	DaysPerYear        = 365
	// VaRConfidence is the confidence level of var_95 and cvar_95.
	VaRConfidence = 0.95
	// flatStdev treats rounding noise on a constant series as zero variance.
	flatStdev = 1e-12
)

// Options tunes the risk-adjusted ratios.
type Options struct {
	// RiskFreeRate is an annual rate, de-annualised over 252 days.
	RiskFreeRate float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
}

// Compute derives the full metric set. Degenerate inputs (empty curve,
// zero variance, no trades) produce zeros rather than NaN or Inf.
func Compute(curve []model.EquityPoint, trades []model.Trade, initialCapital float64, opts Options) model.Metrics {
	var m model.Metrics
	if len(curve) == 0 || initialCapital <= 0 {
		m.FinalEquity = initialCapital
		fillTradeStats(&m, trades)
		return m
	}

	first, last := curve[0], curve[len(curve)-1]
	m.FinalEquity = last.Equity
	m.TotalReturn = last.Equity/initialCapital - 1
	m.CAGR = cagr(initialCapital, last.Equity, last.Time.Sub(first.Time).Hours()/24)

	returns := DailyReturns(curve)
	if len(returns) >= 2 {
		m.Volatility = stdev(returns) * math.Sqrt(TradingDaysPerYear)
	}
	m.SharpeRatio = sharpe(returns, opts.RiskFreeRate)
	m.SortinoRatio = sortino(returns, opts.RiskFreeRate)
	m.MaxDrawdown, m.MaxDrawdownDuration = drawdown(curve)
	m.VaR95, m.CVaR95 = valueAtRisk(returns, VaRConfidence)

	fillTradeStats(&m, trades)
	return m
}

func cagr(initial, final, days float64) float64 {
	if days <= 0 || final <= 0 {
		return 0
	}
	return math.Pow(final/initial, DaysPerYear/days) - 1
}

// DailyReturns resamples the curve to the last point of each UTC day and
// returns the simple returns between consecutive days.
func DailyReturns(curve []model.EquityPoint) []float64 {
	var daily []float64
	var lastDay int64 = math.MinInt64
	for _, p := range curve {
		d := model.DayOf(p.Time).Unix()
		if d == lastDay {
			daily[len(daily)-1] = p.Equity
			continue
		}
		daily = append(daily, p.Equity)
		lastDay = d
	}
	if len(daily) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		if daily[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, daily[i]/daily[i-1]-1)
	}
	return returns
}

func sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := excessReturns(returns, riskFree)
	sd := stdev(excess)
	if sd < flatStdev {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(TradingDaysPerYear)
}

func sortino(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := excessReturns(returns, riskFree)
	var downside []float64
	for _, r := range excess {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	sd := stdev(downside)
	if sd < flatStdev {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(TradingDaysPerYear)
}

func excessReturns(returns []float64, riskFree float64) []float64 {
	daily := riskFree / TradingDaysPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - daily
	}
	return out
}

// drawdown returns the deepest peak-to-trough decline as a fraction in
// [0,1] and the longest run of points spent below the running peak.
func drawdown(curve []model.EquityPoint) (float64, int) {
	peak := math.Inf(-1)
	maxDD := 0.0
	run, longest := 0, 0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 && p.Equity < peak {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return math.Min(maxDD, 1), longest
}

// valueAtRisk returns historical VaR and CVaR as positive loss fractions.
func valueAtRisk(returns []float64, confidence float64) (float64, float64) {
	if len(returns) < 2 {
		return 0, 0
	}
	v := math.Max(0, -quantile(returns, 1-confidence))
	var tail []float64
	for _, r := range returns {
		if r <= -v {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return v, v
	}
	return v, math.Max(0, -mean(tail))
}

func fillTradeStats(m *model.Metrics, trades []model.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}
	var grossWin, grossLoss float64
	m.BestTrade = math.Inf(-1)
	m.WorstTrade = math.Inf(1)
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			grossWin += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			grossLoss += -t.PnL
		}
		m.BestTrade = math.Max(m.BestTrade, t.PnL)
		m.WorstTrade = math.Min(m.WorstTrade, t.PnL)
	}
	m.WinRate = float64(m.WinningTrades) / float64(len(trades))
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -grossLoss / float64(m.LosingTrades)
		pf := grossWin / grossLoss
		m.ProfitFactor = &pf
	}
}
