package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"cortex5/internal/model"
)

const (
	IntervalDaily  = "1d"
	IntervalWeekly = "1wk"
	IntervalHourly = "1h"
)

// ValidateInterval checks interval is one of the supported bar sizes.
func ValidateInterval(interval string) error {
	switch interval {
	case IntervalDaily, IntervalWeekly, IntervalHourly:
		return nil
	}
	return fmt.Errorf("unsupported interval %q (want 1d, 1wk or 1h)", interval)
}

// Fetcher defines the interface for fetching historical bars.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error)
	Name() string
}

// SourceError wraps a failure of a remote or stored bar source.
type SourceError struct {
	Source string
	Symbol string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// FetchWithRetry calls f with exponential backoff, giving up after
// maxRetries additional attempts or when ctx is done.
func FetchWithRetry(ctx context.Context, f Fetcher, symbol string, start, end time.Time, interval string, maxRetries int, base time.Duration) ([]model.OHLCV, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		bars, err := f.FetchBars(ctx, symbol, start, end, interval)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := base * time.Duration(1<<uint(i))
		log.Printf("[WARN] %s fetch %s failed (attempt %d/%d): %v, retrying in %v", f.Name(), symbol, i+1, maxRetries+1, err, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)}
}
