package calculator

import (
	"errors"
	"math"

	"cortex5/internal/model"
)

// VolatilitySeries returns the sample standard deviation of simple returns
// over a trailing window of `window` returns. The first `window` entries
// are NaN.
func VolatilitySeries(prices []float64, window int) ([]float64, error) {
	if window <= 1 {
		return nil, errors.New("volatility window must be at least 2")
	}
	out := nanSeries(len(prices))
	returns := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		returns[i] = prices[i]/prices[i-1] - 1
	}
	for i := window; i < len(prices); i++ {
		out[i] = sampleStdev(returns[i-window+1 : i+1])
	}
	return out, nil
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|). The first
// bar of a series has no previous close and uses high-low.
func TrueRange(bar model.OHLCV, prevClose float64, hasPrev bool) float64 {
	tr := bar.High - bar.Low
	if !hasPrev {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}

// ATRSeries computes the average true range as an EMA of the true range.
// The first `period` entries are NaN.
func ATRSeries(bars []model.OHLCV, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	out := nanSeries(len(bars))
	e := newEMA(period)
	for i, b := range bars {
		var tr float64
		if i == 0 {
			tr = TrueRange(b, 0, false)
		} else {
			tr = TrueRange(b, bars[i-1].Close, true)
		}
		v := e.update(tr)
		if i >= period {
			out[i] = v
		}
	}
	return out, nil
}
