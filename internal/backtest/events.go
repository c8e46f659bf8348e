package backtest

import (
	"log"
	"time"

	"cortex5/internal/model"
	"cortex5/internal/strategy"
)

// EventKind classifies an audit event.
type EventKind string

const (
	EventSignal   EventKind = "SIGNAL"
	EventApproved EventKind = "APPROVED"
	EventRejected EventKind = "REJECTED"
	EventFill     EventKind = "FILL"
)

// Event is one entry of the per-bar audit stream.
type Event struct {
	Kind      EventKind
	Symbol    string
	Index     int
	Time      time.Time
	Signal    model.Signal
	Rationale strategy.Rationale
	Decision  *model.Decision
	Fill      *model.Fill
	Trade     *model.Trade
}

// Observer receives audit events. Implementations shared across RunAll
// must be safe for concurrent use.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}

// LogObserver writes every event to the standard logger.
type LogObserver struct{}

func (LogObserver) OnEvent(e Event) {
	day := e.Time.Format(time.DateOnly)
	switch e.Kind {
	case EventSignal:
		log.Printf("[INFO] %s %s bar %d: %s signal (zone %s, RSI %.2f, %s crossover)",
			e.Symbol, day, e.Index, e.Signal, e.Rationale.Zone, e.Rationale.RSI, e.Rationale.Crossover)
	case EventApproved:
		log.Printf("[INFO] %s %s bar %d: approved %s", e.Symbol, day, e.Index, e.Decision.Order)
	case EventRejected:
		log.Printf("[INFO] %s %s bar %d: rejected %s [%s] %s",
			e.Symbol, day, e.Index, e.Decision.Order, e.Decision.Reason, e.Decision.Detail)
	case EventFill:
		if e.Trade != nil {
			log.Printf("[INFO] %s %s bar %d: filled %s %d @ %.4f, closed trade P&L %.2f",
				e.Symbol, day, e.Index, e.Fill.Side, e.Fill.Quantity, e.Fill.Price, e.Trade.PnL)
			return
		}
		log.Printf("[INFO] %s %s bar %d: filled %s %d @ %.4f, cash %.2f",
			e.Symbol, day, e.Index, e.Fill.Side, e.Fill.Quantity, e.Fill.Price, e.Fill.CashAfter)
	}
}
