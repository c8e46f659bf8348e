package fund

import (
	"errors"
	"fmt"
	"time"

	"cortex5/internal/model"
)

var (
	// ErrInsufficientPosition means a SELL asked for more than is held.
	ErrInsufficientPosition = errors.New("insufficient position")
	// ErrInsufficientCash means a BUY would drive cash below zero.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrInvalidFill covers non-positive quantities or prices.
	ErrInvalidFill = errors.New("invalid fill")
)

// FillError reports a ledger invariant violation for one order.
type FillError struct {
	Time     time.Time
	Symbol   string
	Side     model.Side
	Quantity int64
	Price    float64
	Held     int64
	Cash     float64
	Err      error
}

func (e *FillError) Error() string {
	return fmt.Sprintf("fill %s %d %s @ %.4f on %s (held %d, cash %.2f): %v",
		e.Side, e.Quantity, e.Symbol, e.Price, e.Time.Format(time.DateOnly), e.Held, e.Cash, e.Err)
}

func (e *FillError) Unwrap() error { return e.Err }
