// Package store persists daily bars so backtests can replay them without
// hitting a remote source.
package store

import (
	"context"
	"time"

	"cortex5/internal/model"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars upserts bars for symbol; existing timestamps are replaced.
	WriteBars(ctx context.Context, symbol string, bars []model.OHLCV) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)

	Close() error
}

func inWindow(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
