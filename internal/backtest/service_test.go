package backtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/model"
	"cortex5/internal/sentiment"
)

type fakeLoader struct {
	mu     sync.Mutex
	bars   map[string][]model.OHLCV
	starts map[string]time.Time
	err    error
}

func (f *fakeLoader) Load(_ context.Context, symbol string, from, _ time.Time, _ string) ([]model.OHLCV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.starts == nil {
		f.starts = make(map[string]time.Time)
	}
	f.starts[symbol] = from
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[symbol], nil
}

func TestServiceWarmupAndSentiment(t *testing.T) {
	loader := &fakeLoader{bars: map[string][]model.OHLCV{"AAA": wave(200, 0), "BBB": wave(200, 3.0)}}
	svc := &Service{
		Bars:       loader,
		Sentiment:  sentiment.Constant{Value: 0.2},
		Options:    DefaultOptions(),
		WarmupDays: 30,
	}
	cfg := model.BacktestConfig{
		Symbols:        []string{"AAA", "BBB"},
		Start:          start.AddDate(0, 0, 60),
		Interval:       "1d",
		InitialCapital: 100000,
	}

	results, agg, err := svc.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, agg)
	assert.Equal(t, AggregateSymbol, agg.Symbol)
	assert.Equal(t, start.AddDate(0, 0, 30), loader.starts["AAA"])

	for _, res := range results {
		assert.Empty(t, res.Fills, res.Symbol)
		assert.False(t, res.EquityCurve[0].Time.Before(cfg.Start))
		for _, d := range res.Rejections() {
			if d.Order.Side == model.SideBuy {
				assert.Equal(t, model.ReasonSentiment, d.Reason)
			}
		}
	}
}

func TestServiceSingleSymbolHasNoAggregate(t *testing.T) {
	svc := &Service{Bars: &fakeLoader{bars: map[string][]model.OHLCV{"AAA": wave(120, 0)}}, Options: DefaultOptions()}
	cfg := config(10000)
	cfg.Symbols = []string{"AAA"}
	results, agg, err := svc.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Nil(t, agg)
}

func TestServiceLoadFailure(t *testing.T) {
	boom := errors.New("feed down")
	svc := &Service{Bars: &fakeLoader{err: boom}, Options: DefaultOptions()}
	_, _, err := svc.Run(context.Background(), config(10000))
	assert.ErrorIs(t, err, boom)
}
