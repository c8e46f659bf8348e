package calculator

import (
	"errors"
	"math"
)

// MACDResult holds the three MACD series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACDSeries computes MACD = EMA(fast) - EMA(slow), its signal line
// EMA(MACD, signal) and the histogram. Entries before `slow` bars of
// history are NaN.
func MACDSeries(prices []float64, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, errPeriod
	}
	if fast >= slow {
		return nil, errors.New("fast period must be shorter than slow period")
	}
	fastEMA, _ := EMASeries(prices, fast)
	slowEMA, _ := EMASeries(prices, slow)

	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig, _ := EMASeries(line, signal)

	res := &MACDResult{
		MACD:      nanSeries(len(prices)),
		Signal:    nanSeries(len(prices)),
		Histogram: nanSeries(len(prices)),
	}
	for i := slow - 1; i < len(prices); i++ {
		res.MACD[i] = line[i]
		res.Signal[i] = sig[i]
		res.Histogram[i] = line[i] - sig[i]
	}
	return res, nil
}

// macd is the incremental form of MACDSeries.
type macd struct {
	fast, slow, signal *ema
	minBars            int
	seen               int
}

func newMACD(fast, slow, signal int) *macd {
	return &macd{
		fast:    newEMA(fast),
		slow:    newEMA(slow),
		signal:  newEMA(signal),
		minBars: slow,
	}
}

func (m *macd) update(price float64) (line, signal, hist float64) {
	m.seen++
	line = m.fast.update(price) - m.slow.update(price)
	signal = m.signal.update(line)
	if m.seen < m.minBars {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return line, signal, line - signal
}
