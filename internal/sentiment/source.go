package sentiment

import (
	"context"
	"fmt"
	"time"

	"cortex5/internal/model"
)

// Source supplies a sentiment score in [0,1] for a symbol on a day.
// ok is false when the source has no opinion for that day.
type Source interface {
	Score(ctx context.Context, symbol string, asOf time.Time) (score float64, ok bool, err error)
}

// SourceError wraps a failure of a sentiment provider.
type SourceError struct {
	Source string
	Symbol string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("sentiment %s: %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Neutral never has an opinion; the risk gate then falls back to its
// neutral score.
type Neutral struct{}

func (Neutral) Score(context.Context, string, time.Time) (float64, bool, error) {
	return 0, false, nil
}

// Constant reports the same score for every symbol and day.
type Constant struct {
	Value float64
}

// NewConstant checks v is a valid score.
func NewConstant(v float64) (Constant, error) {
	if v < 0 || v > 1 {
		return Constant{}, fmt.Errorf("sentiment score %.4f outside [0, 1]", v)
	}
	return Constant{Value: v}, nil
}

func (c Constant) Score(context.Context, string, time.Time) (float64, bool, error) {
	return c.Value, true, nil
}

// Materialize looks up one score per bar day ahead of a run so the runner
// never calls out mid-simulation. Days the source has no opinion on are
// left out of the series.
func Materialize(ctx context.Context, src Source, symbol string, bars []model.OHLCV) (model.SentimentSeries, error) {
	series := make(model.SentimentSeries)
	if src == nil {
		return series, nil
	}
	seen := make(map[time.Time]bool, len(bars))
	for _, b := range bars {
		day := model.DayOf(b.Time)
		if seen[day] {
			continue
		}
		seen[day] = true
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, ok, err := src.Score(ctx, symbol, day)
		if err != nil {
			return nil, fmt.Errorf("sentiment for %s on %s: %w", symbol, day.Format("2006-01-02"), err)
		}
		if ok {
			series[day] = clamp(score)
		}
	}
	return series, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
