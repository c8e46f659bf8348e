package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cortex5/internal/model"
)

// LoadFunc supplies the bars and sentiment series of one symbol.
type LoadFunc func(ctx context.Context, symbol string) ([]model.OHLCV, model.SentimentSeries, error)

// RunAll backtests every symbol of cfg independently, each with its own
// ledger and the full initial capital. Results come back in symbol order.
// The first failure cancels the remaining runs.
func RunAll(ctx context.Context, cfg model.BacktestConfig, load LoadFunc, opts Options) ([]*Result, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}

	results := make([]*Result, len(cfg.Symbols))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, symbol := range cfg.Symbols {
		g.Go(func() error {
			bars, sentiment, err := load(ctx, symbol)
			if err != nil {
				return fmt.Errorf("load %s: %w", symbol, err)
			}
			res, err := NewRunner(opts).Run(ctx, cfg, symbol, bars, sentiment)
			if err != nil {
				return fmt.Errorf("backtest %s: %w", symbol, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
