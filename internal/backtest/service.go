package backtest

import (
	"context"
	"time"

	"cortex5/internal/model"
	"cortex5/internal/sentiment"
)

// BarLoader supplies validated bars of one symbol.
type BarLoader interface {
	Load(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error)
}

// Service runs complete backtests: it loads bars with a warmup margin,
// materialises sentiment for the bars inside the range, then replays
// every symbol.
type Service struct {
	Bars      BarLoader
	Sentiment sentiment.Source
	Options   Options
	// WarmupDays of history before the range start prime the indicators.
	WarmupDays int
}

// Run backtests every symbol of cfg and also returns the combined
// portfolio view when more than one symbol was run.
func (s *Service) Run(ctx context.Context, cfg model.BacktestConfig) ([]*Result, *Result, error) {
	results, err := RunAll(ctx, cfg, s.load(cfg), s.Options)
	if err != nil {
		return nil, nil, err
	}
	var agg *Result
	if len(results) > 1 {
		agg = Aggregate(results, s.Options.Metrics)
	}
	return results, agg, nil
}

func (s *Service) load(cfg model.BacktestConfig) LoadFunc {
	return func(ctx context.Context, symbol string) ([]model.OHLCV, model.SentimentSeries, error) {
		start := cfg.Start
		if !start.IsZero() && s.WarmupDays > 0 {
			start = start.AddDate(0, 0, -s.WarmupDays)
		}
		bars, err := s.Bars.Load(ctx, symbol, start, cfg.End, cfg.Interval)
		if err != nil {
			return nil, nil, err
		}

		var scored []model.OHLCV
		for _, b := range bars {
			if cfg.InRange(b.Time) {
				scored = append(scored, b)
			}
		}
		series, err := sentiment.Materialize(ctx, s.Sentiment, symbol, scored)
		if err != nil {
			return nil, nil, err
		}
		return bars, series, nil
	}
}
