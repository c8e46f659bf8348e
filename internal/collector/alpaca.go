package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"cortex5/internal/model"
)

// AlpacaFetcher implements Fetcher using the Alpaca market-data API.
type AlpacaFetcher struct {
	client *marketdata.Client
	Feed   string
}

// NewAlpacaFetcher creates a fetcher with the given credentials. An empty
// dataURL uses the Alpaca default.
func NewAlpacaFetcher(apiKey, apiSecret, dataURL, feed string) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaFetcher{client: marketdata.NewClient(opts), Feed: feed}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

func alpacaTimeFrame(interval string) (marketdata.TimeFrame, error) {
	switch interval {
	case IntervalDaily:
		return marketdata.OneDay, nil
	case IntervalWeekly:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case IntervalHourly:
		return marketdata.OneHour, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval %q", interval)
}

// FetchBars retrieves split and dividend adjusted bars.
func (f *AlpacaFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	tf, err := alpacaTimeFrame(interval)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !end.IsZero() {
		end = model.DayOf(end).AddDate(0, 0, 1)
	}

	bars, err := f.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Adjustment: marketdata.All,
		Start:      start,
		End:        end,
		Feed:       f.Feed,
	})
	if err != nil {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("GetBars: %w", err)}
	}
	return fromAlpacaBars(bars), nil
}

func fromAlpacaBars(bars []marketdata.Bar) []model.OHLCV {
	out := make([]model.OHLCV, len(bars))
	for i, ab := range bars {
		out[i] = model.OHLCV{
			Time:   ab.Timestamp.UTC(),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		}
	}
	return out
}
