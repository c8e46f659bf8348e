package collector

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"cortex5/internal/model"
	"cortex5/internal/store"
)

// MockFetcher returns deterministic synthetic data for development and
// testing. Bars is served verbatim when set.
type MockFetcher struct {
	Price float64
	Bars  []model.OHLCV
	Err   error
	Calls int

	mu sync.Mutex
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, _ string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Bars != nil {
		var out []model.OHLCV
		for _, b := range m.Bars {
			if (start.IsZero() || !b.Time.Before(start)) && (end.IsZero() || !b.Time.After(end)) {
				out = append(out, b)
			}
		}
		return out, nil
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	step := 24 * time.Hour
	switch interval {
	case IntervalWeekly:
		step = 7 * 24 * time.Hour
	case IntervalHourly:
		step = time.Hour
	}
	return generateMockBars(m.Price, model.DayOf(start), end, step), nil
}

// generateMockBars draws a gentle oscillation around a slow upward drift,
// skipping weekends for daily data.
func generateMockBars(basePrice float64, start, end time.Time, step time.Duration) []model.OHLCV {
	if basePrice <= 0 {
		basePrice = 100
	}
	var bars []model.OHLCV
	prev := basePrice
	i := 0
	for t := start; !t.After(end); t = t.Add(step) {
		if step == 24*time.Hour && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
			continue
		}
		p := basePrice * (1 + 0.05*math.Sin(float64(i)/8) + 0.0005*float64(i))
		bars = append(bars, model.OHLCV{
			Time:   t,
			Open:   prev,
			High:   math.Max(prev, p) * 1.002,
			Low:    math.Min(prev, p) * 0.998,
			Close:  p,
			Volume: 1000000,
		})
		prev = p
		i++
	}
	return bars
}

// StoreFetcher serves bars from a BarStore, aggregating daily bars into
// weeks when asked for weekly data.
type StoreFetcher struct {
	Store store.BarStore
}

func (f *StoreFetcher) Name() string { return "store" }

func (f *StoreFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	if interval == IntervalHourly {
		return nil, fmt.Errorf("store holds daily bars only, got interval %q", interval)
	}
	bars, err := f.Store.ReadBars(ctx, symbol, start, endOfDay(end))
	if err != nil {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: err}
	}
	if interval == IntervalWeekly {
		return aggregateDailyToWeekly(bars), nil
	}
	return bars, nil
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return model.DayOf(t).Add(24*time.Hour - time.Nanosecond)
}

// aggregateDailyToWeekly converts daily bars into ISO-week bars.
func aggregateDailyToWeekly(daily []model.OHLCV) []model.OHLCV {
	if len(daily) == 0 {
		return nil
	}
	var weekly []model.OHLCV
	week := daily[0]
	wy, ww := week.Time.ISOWeek()

	for _, d := range daily[1:] {
		y, w := d.Time.ISOWeek()
		if y != wy || w != ww {
			weekly = append(weekly, week)
			week = d
			wy, ww = y, w
			continue
		}
		week.High = math.Max(week.High, d.High)
		week.Low = math.Min(week.Low, d.Low)
		week.Close = d.Close
		week.Volume += d.Volume
	}
	return append(weekly, week)
}

// Collector loads validated bars, preferring the local cache and falling
// back to the remote fetcher.
type Collector struct {
	Fetcher Fetcher
	Cache   store.BarStore
	// MaxRetries and RetryBase tune FetchWithRetry.
	MaxRetries int
	RetryBase  time.Duration
	// MaxGap is the close-to-close move logged as suspicious.
	MaxGap float64
}

// NewCollector creates a Collector. cache may be nil.
func NewCollector(fetcher Fetcher, cache store.BarStore) *Collector {
	return &Collector{
		Fetcher:    fetcher,
		Cache:      cache,
		MaxRetries: 2,
		RetryBase:  time.Second,
		MaxGap:     DefaultMaxGap,
	}
}

// Load returns sanitised, validated bars of symbol in [start, end].
func (c *Collector) Load(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	if err := ValidateInterval(interval); err != nil {
		return nil, err
	}

	if c.Cache != nil && interval != IntervalHourly {
		cached := &StoreFetcher{Store: c.Cache}
		bars, err := cached.FetchBars(ctx, symbol, start, end, interval)
		if err != nil {
			log.Printf("[WARN] cache read for %s failed: %v", symbol, err)
		} else if covers(bars, start, end) {
			log.Printf("[INFO] loaded %d %s bars for %s from cache", len(bars), interval, symbol)
			return c.finish(symbol, bars)
		}
	}

	// Weekly bars are cached as daily data and aggregated on the way out.
	fetchInterval := interval
	if c.Cache != nil && interval == IntervalWeekly {
		fetchInterval = IntervalDaily
	}
	bars, err := FetchWithRetry(ctx, c.Fetcher, symbol, start, end, fetchInterval, c.MaxRetries, c.RetryBase)
	if err != nil {
		return nil, err
	}
	bars = SanitizeBars(bars)
	log.Printf("[INFO] fetched %d %s bars for %s from %s", len(bars), fetchInterval, symbol, c.Fetcher.Name())

	if c.Cache != nil && fetchInterval == IntervalDaily {
		if err := c.Cache.WriteBars(ctx, symbol, bars); err != nil {
			log.Printf("[WARN] cache write for %s failed: %v", symbol, err)
		}
	}
	if fetchInterval != interval {
		bars = aggregateDailyToWeekly(bars)
	}
	return c.finish(symbol, bars)
}

func (c *Collector) finish(symbol string, bars []model.OHLCV) ([]model.OHLCV, error) {
	if err := ValidateBars(symbol, bars); err != nil {
		return nil, err
	}
	if c.MaxGap > 0 {
		if err := ValidateContinuity(symbol, bars, c.MaxGap); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	return bars, nil
}

// covers reports whether cached bars span the requested window, allowing
// a few days of slack for weekends and holidays at either end.
func covers(bars []model.OHLCV, start, end time.Time) bool {
	if len(bars) == 0 {
		return false
	}
	const slack = 5 * 24 * time.Hour
	if !start.IsZero() && bars[0].Time.Sub(start) > slack {
		return false
	}
	if end.IsZero() || end.After(time.Now()) {
		end = time.Now()
	}
	return end.Sub(bars[len(bars)-1].Time) <= slack
}
