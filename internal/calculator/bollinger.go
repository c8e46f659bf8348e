package calculator

import "math"

// BollingerResult holds the band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerSeries computes middle = SMA(period) and upper/lower =
// middle ± k × sample standard deviation over the same window.
func BollingerSeries(prices []float64, period int, k float64) (*BollingerResult, error) {
	if period <= 1 {
		return nil, errPeriod
	}
	middle, err := SMASeries(prices, period)
	if err != nil {
		return nil, err
	}
	res := &BollingerResult{
		Upper:  nanSeries(len(prices)),
		Middle: middle,
		Lower:  nanSeries(len(prices)),
	}
	for i := period - 1; i < len(prices); i++ {
		sd := sampleStdev(prices[i-period+1 : i+1])
		res.Upper[i] = middle[i] + k*sd
		res.Lower[i] = middle[i] - k*sd
	}
	return res, nil
}

func sampleStdev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
