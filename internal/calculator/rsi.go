package calculator

import (
	"fmt"
	"math"
)

// RSIMethod selects how average gains and losses are smoothed.
type RSIMethod string

const (
	// RSISimple averages gains and losses over a rolling window.
	RSISimple RSIMethod = "simple"
	// RSIWilder seeds with a simple average, then applies Wilder smoothing.
	RSIWilder RSIMethod = "wilder"
)

// ParseRSIMethod maps a config value to an RSIMethod.
func ParseRSIMethod(s string) (RSIMethod, error) {
	switch RSIMethod(s) {
	case "", RSISimple:
		return RSISimple, nil
	case RSIWilder:
		return RSIWilder, nil
	default:
		return "", fmt.Errorf("unknown rsi method %q", s)
	}
}

// rsiFromAverages converts average gain and loss to RSI. A window without
// losses reads 100; a window without any movement reads a neutral 50.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// RSISeries computes the relative strength index over the given period.
// The first `period` entries are NaN.
func RSISeries(prices []float64, period int, method RSIMethod) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	out := nanSeries(len(prices))
	if len(prices) < period+1 {
		return out, nil
	}

	switch method {
	case RSIWilder:
		var avgGain, avgLoss float64
		for i := 1; i <= period; i++ {
			gain, loss := splitChange(prices[i] - prices[i-1])
			avgGain += gain
			avgLoss += loss
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)
		out[period] = rsiFromAverages(avgGain, avgLoss)

		for i := period + 1; i < len(prices); i++ {
			gain, loss := splitChange(prices[i] - prices[i-1])
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
			out[i] = rsiFromAverages(avgGain, avgLoss)
		}
	default:
		for i := period; i < len(prices); i++ {
			var sumGain, sumLoss float64
			for j := i - period + 1; j <= i; j++ {
				gain, loss := splitChange(prices[j] - prices[j-1])
				sumGain += gain
				sumLoss += loss
			}
			out[i] = rsiFromAverages(sumGain/float64(period), sumLoss/float64(period))
		}
	}
	return out, nil
}

// rsi is the incremental form of RSISeries.
type rsi struct {
	period int
	method RSIMethod
	prev   float64
	count  int // price changes seen

	gains, losses *window // simple method

	avgGain, avgLoss float64 // wilder method
}

func newRSI(period int, method RSIMethod) *rsi {
	r := &rsi{period: period, method: method}
	if method != RSIWilder {
		r.gains = newWindow(period)
		r.losses = newWindow(period)
	}
	return r
}

func (r *rsi) update(price float64, first bool) float64 {
	if first {
		r.prev = price
		return math.NaN()
	}
	gain, loss := splitChange(price - r.prev)
	r.prev = price
	r.count++

	if r.method != RSIWilder {
		r.gains.push(gain)
		r.losses.push(loss)
		if !r.gains.full() {
			return math.NaN()
		}
		return rsiFromAverages(r.gains.average(), r.losses.average())
	}

	switch {
	case r.count < r.period:
		r.avgGain += gain
		r.avgLoss += loss
		return math.NaN()
	case r.count == r.period:
		r.avgGain = (r.avgGain + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss + loss) / float64(r.period)
	default:
		r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}
	return rsiFromAverages(r.avgGain, r.avgLoss)
}
