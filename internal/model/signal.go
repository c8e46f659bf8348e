package model

import (
	"fmt"
	"time"
)

// Signal is the discrete decision produced for a bar.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SideOf maps an actionable signal to an order side.
func SideOf(sig Signal) (Side, bool) {
	switch sig {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	default:
		return "", false
	}
}

// Order is a candidate order submitted to the risk gate.
type Order struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
}

func (o Order) String() string {
	return fmt.Sprintf("%s %d %s @ %.4f (%s)", o.Side, o.Quantity, o.Symbol, o.Price, o.Time.Format(time.DateOnly))
}

// RejectReason identifies the risk check that failed.
type RejectReason string

const (
	ReasonPositionSize RejectReason = "POSITION_SIZE"
	ReasonVolatility   RejectReason = "VOLATILITY"
	ReasonSentiment    RejectReason = "SENTIMENT"
	ReasonCapital      RejectReason = "CAPITAL"
)

// Decision is either Approved(order) or Rejected(order, reason).
// Reason is empty exactly when the order was approved.
type Decision struct {
	Order  Order        `json:"order"`
	Reason RejectReason `json:"reason,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

// Approve wraps an order in an approval.
func Approve(o Order) Decision { return Decision{Order: o} }

// Reject wraps an order in a rejection with its reason.
func Reject(o Order, reason RejectReason, detail string) Decision {
	return Decision{Order: o, Reason: reason, Detail: detail}
}

// Approved reports whether the decision lets the order through.
func (d Decision) Approved() bool { return d.Reason == "" }
