package calculator

import (
	"errors"
	"math"
)

var errPeriod = errors.New("period must be positive")

// SMASeries computes the simple moving average of prices over the given
// period. Entries before the first full window are NaN.
func SMASeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	out := nanSeries(len(prices))
	for i := period - 1; i < len(prices); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		out[i] = sum / float64(period)
	}
	return out, nil
}

// EMASeries computes an exponential moving average with alpha = 2/(span+1),
// seeded with the first price and without bias adjustment.
func EMASeries(prices []float64, span int) ([]float64, error) {
	if span <= 0 {
		return nil, errPeriod
	}
	out := make([]float64, len(prices))
	e := newEMA(span)
	for i, p := range prices {
		out[i] = e.update(p)
	}
	return out, nil
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ema is an incremental exponential moving average.
type ema struct {
	alpha  float64
	value  float64
	seeded bool
}

func newEMA(span int) *ema {
	return &ema{alpha: 2.0 / (float64(span) + 1.0)}
}

func (e *ema) update(x float64) float64 {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return x
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}

// window is a fixed-size ring buffer keeping the running mean and the sum of
// squared deviations (M2), so both update in O(1) per sample.
type window struct {
	buf  []float64
	n    int
	head int
	mean float64
	m2   float64
	last float64
	run  int // consecutive identical samples ending at last
}

func newWindow(size int) *window {
	return &window{buf: make([]float64, size)}
}

func (w *window) push(x float64) {
	size := len(w.buf)
	if w.n > 0 && x == w.last {
		w.run++
	} else {
		w.run = 1
	}
	w.last = x
	if w.n < size {
		w.buf[w.head] = x
		w.head = (w.head + 1) % size
		w.n++
		delta := x - w.mean
		w.mean += delta / float64(w.n)
		w.m2 += delta * (x - w.mean)
	} else {
		old := w.buf[w.head]
		w.buf[w.head] = x
		w.head = (w.head + 1) % size
		oldMean := w.mean
		w.mean += (x - old) / float64(size)
		w.m2 += (x - old) * (x - w.mean + old - oldMean)
	}
	// A constant window must report its value and zero spread exactly,
	// not the rounding drift left behind by evicted samples.
	if w.run >= size {
		w.mean, w.m2 = x, 0
	}
	if w.m2 < 0 {
		w.m2 = 0
	}
}

func (w *window) full() bool { return w.n == len(w.buf) }

func (w *window) average() float64 {
	if !w.full() {
		return math.NaN()
	}
	return w.mean
}

// stdev is the sample standard deviation of a full window.
func (w *window) stdev() float64 {
	if !w.full() || w.n < 2 {
		return math.NaN()
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}
