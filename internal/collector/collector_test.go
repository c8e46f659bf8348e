package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/model"
	"cortex5/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func goodBar(t time.Time, close float64) model.OHLCV {
	return model.OHLCV{Time: t, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 100}
}

func TestValidateBars(t *testing.T) {
	base := []model.OHLCV{goodBar(day(2024, 1, 2), 10), goodBar(day(2024, 1, 3), 11), goodBar(day(2024, 1, 4), 12)}
	require.NoError(t, ValidateBars("X", base))

	mutate := func(i int, f func(*model.OHLCV)) []model.OHLCV {
		bars := append([]model.OHLCV(nil), base...)
		f(&bars[i])
		return bars
	}

	tests := []struct {
		name   string
		bars   []model.OHLCV
		index  int
		reason string
	}{
		{"empty", nil, -1, "no bars"},
		{"high below low", mutate(1, func(b *model.OHLCV) { b.High, b.Low = 9, 12 }), 1, "high"},
		{"zero close", mutate(0, func(b *model.OHLCV) { b.Close = 0 }), 0, "non-positive"},
		{"open above high", mutate(2, func(b *model.OHLCV) { b.Open = 20 }), 2, "open"},
		{"close below low", mutate(2, func(b *model.OHLCV) { b.Close = 1 }), 2, "close"},
		{"negative volume", mutate(1, func(b *model.OHLCV) { b.Volume = -5 }), 1, "volume"},
		{"duplicate", mutate(2, func(b *model.OHLCV) { b.Time = day(2024, 1, 3) }), 2, "duplicate"},
		{"out of order", mutate(2, func(b *model.OHLCV) { b.Time = day(2024, 1, 1) }), 2, "not after"},
		{"missing time", mutate(0, func(b *model.OHLCV) { b.Time = time.Time{} }), 0, "timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBars("X", tt.bars)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.index, ve.Index)
			assert.Contains(t, ve.Reason, tt.reason)
			assert.Contains(t, err.Error(), "X")
		})
	}
}

func TestSanitizeBars(t *testing.T) {
	dirty := []model.OHLCV{
		goodBar(day(2024, 1, 4), 12),
		goodBar(day(2024, 1, 2), 10),
		goodBar(day(2024, 1, 4), 99), // duplicate, first wins
		{Time: day(2024, 1, 5), Open: 1, High: 0, Low: 2, Close: 1},
		{Time: day(2024, 1, 3), Open: 11, High: 12, Low: 10, Close: 11, Volume: -7},
	}
	clean := SanitizeBars(dirty)
	require.Len(t, clean, 3)
	assert.Equal(t, day(2024, 1, 2), clean[0].Time)
	assert.Equal(t, int64(0), clean[1].Volume)
	assert.Equal(t, 12.0, clean[2].Close)
	assert.NoError(t, ValidateBars("X", clean))
}

func TestValidateContinuity(t *testing.T) {
	bars := []model.OHLCV{goodBar(day(2024, 1, 2), 10), goodBar(day(2024, 1, 3), 11), goodBar(day(2024, 1, 4), 25)}
	err := ValidateContinuity("X", bars, DefaultMaxGap)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 2, ve.Index)
	assert.NoError(t, ValidateContinuity("X", bars[:2], DefaultMaxGap))
}

func TestAggregateDailyToWeekly(t *testing.T) {
	daily := []model.OHLCV{
		{Time: day(2024, 1, 3), Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
		{Time: day(2024, 1, 4), Open: 11, High: 15, Low: 10, Close: 14, Volume: 2},
		{Time: day(2024, 1, 5), Open: 14, High: 14, Low: 8, Close: 9, Volume: 3},
		{Time: day(2024, 1, 8), Open: 9, High: 10, Low: 7, Close: 8, Volume: 4},
	}
	weekly := aggregateDailyToWeekly(daily)
	require.Len(t, weekly, 2)
	assert.Equal(t, model.OHLCV{Time: day(2024, 1, 3), Open: 10, High: 15, Low: 8, Close: 9, Volume: 6}, weekly[0])
	assert.Equal(t, daily[3], weekly[1])
	assert.Nil(t, aggregateDailyToWeekly(nil))
}

type flakyFetcher struct {
	failures int
	calls    int
}

func (f *flakyFetcher) Name() string { return "flaky" }

func (f *flakyFetcher) FetchBars(context.Context, string, time.Time, time.Time, string) ([]model.OHLCV, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("transient %d", f.calls)
	}
	return []model.OHLCV{goodBar(day(2024, 1, 2), 10)}, nil
}

func TestFetchWithRetry(t *testing.T) {
	f := &flakyFetcher{failures: 2}
	bars, err := FetchWithRetry(context.Background(), f, "X", time.Time{}, time.Time{}, IntervalDaily, 2, time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 3, f.calls)

	f = &flakyFetcher{failures: 5}
	_, err = FetchWithRetry(context.Background(), f, "X", time.Time{}, time.Time{}, IntervalDaily, 1, time.Millisecond)
	var se *SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "flaky", se.Source)
	assert.Equal(t, 2, f.calls)
}

const chartJSON = `{"chart":{"result":[{"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[187.15,null,182.15],"high":[188.44,null,183.09],
"low":[183.89,null,180.88],"close":[185.64,null,181.91],"volume":[82488700,null,71983600]}]}}],"error":null}}`

func TestYahooFetcher(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	bars, err := f.FetchBars(context.Background(), "SPX", day(2024, 1, 1), day(2024, 1, 5), IntervalDaily)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, fmt.Sprintf("period1=%d", day(2024, 1, 1).Unix()))
	assert.Contains(t, gotQuery, fmt.Sprintf("period2=%d", day(2024, 1, 6).Unix()))

	require.Len(t, bars, 2) // null row skipped
	assert.Equal(t, 185.64, bars[0].Close)
	assert.Equal(t, int64(71983600), bars[1].Volume)
	assert.Equal(t, time.Unix(1704205800, 0).UTC(), bars[0].Time)
}

func TestYahooFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BAD") {
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	var se *SourceError

	_, err := f.FetchBars(context.Background(), "BAD", day(2024, 1, 1), day(2024, 1, 5), IntervalDaily)
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "delisted")

	_, err = f.FetchBars(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5), IntervalDaily)
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "429")

	_, err = f.FetchBars(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 5), "5m")
	assert.Error(t, err)
}

func TestAlpacaConversion(t *testing.T) {
	tf, err := alpacaTimeFrame(IntervalDaily)
	require.NoError(t, err)
	assert.Equal(t, marketdata.OneDay, tf)
	_, err = alpacaTimeFrame("5m")
	assert.Error(t, err)

	ts := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	bars := fromAlpacaBars([]marketdata.Bar{{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 42}})
	require.Len(t, bars, 1)
	assert.Equal(t, model.OHLCV{Time: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 42}, bars[0])
	assert.Equal(t, "alpaca", NewAlpacaFetcher("k", "s", "", "").Name())
}

func TestCollectorUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := store.NewParquetStore(filepath.Join(t.TempDir(), "bars"))
	mock := &MockFetcher{Price: 50}
	c := NewCollector(mock, cache)
	c.RetryBase = time.Millisecond

	start, end := day(2024, 1, 1), day(2024, 3, 31)
	first, err := c.Load(ctx, "AAPL", start, end, IntervalDaily)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, 1, mock.Calls)
	for _, b := range first {
		assert.NotEqual(t, time.Saturday, b.Time.Weekday())
	}

	second, err := c.Load(ctx, "AAPL", start, end, IntervalDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Calls, "second load served from cache")
	assert.Equal(t, first, second)

	weekly, err := c.Load(ctx, "AAPL", start, end, IntervalWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Calls)
	assert.Less(t, len(weekly), len(first))
}

func TestCollectorFetchFailure(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewCollector(&MockFetcher{Err: boom}, nil)
	c.MaxRetries = 0
	_, err := c.Load(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 2, 1), IntervalDaily)
	var se *SourceError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, boom)

	_, err = c.Load(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 2, 1), "2d")
	assert.Error(t, err)
}

func TestStoreFetcherRejectsHourly(t *testing.T) {
	f := &StoreFetcher{Store: store.NewParquetStore(t.TempDir())}
	_, err := f.FetchBars(context.Background(), "AAPL", time.Time{}, time.Time{}, IntervalHourly)
	assert.Error(t, err)
}
