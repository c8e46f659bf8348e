package strategy

import (
	"math"

	"cortex5/internal/model"
)

// Zone is an RSI band together with the crossover that turns it into an
// actionable signal.
type Zone struct {
	Label        string
	Min, Max     float64
	MinInclusive bool
	MaxInclusive bool
	Trigger      Crossover
	Action       model.Signal
}

// Zones defines the RSI bands that can produce a trade.
var Zones = []Zone{
	{Label: "OVERSOLD", Min: math.Inf(-1), Max: 30, Trigger: CrossBullish, Action: model.SignalBuy},
	{Label: "WEAK", Min: 30, Max: 50, MinInclusive: true, Trigger: CrossBullish, Action: model.SignalBuy},
	{Label: "STRONG", Min: 50, Max: 70, MaxInclusive: true, Trigger: CrossBearish, Action: model.SignalSell},
	{Label: "OVERBOUGHT", Min: 70, Max: math.Inf(1), Trigger: CrossBearish, Action: model.SignalSell},
}

// NeutralZone covers RSI exactly at 50, where nothing triggers.
var NeutralZone = Zone{Label: "NEUTRAL", Min: 50, Max: 50, MinInclusive: true, MaxInclusive: true, Trigger: CrossNone, Action: model.SignalHold}

// Rationale explains how a signal was reached.
type Rationale struct {
	Signal    model.Signal
	Zone      string
	RSI       float64
	Crossover Crossover
}

// Explain evaluates the rule and reports the inputs that decided it.
// Undefined indicators on either bar always yield HOLD.
func Explain(prev, curr model.IndicatorSet) Rationale {
	r := Rationale{Signal: model.SignalHold, RSI: curr.RSI, Crossover: CrossNone}
	if !curr.HasRSI() || !prev.HasMACD() || !curr.HasMACD() {
		r.Zone = "INSUFFICIENT_HISTORY"
		return r
	}

	zone := classifyRSI(curr.RSI)
	r.Zone = zone.Label
	r.Crossover = detectCrossover(prev, curr)
	if zone.Trigger != CrossNone && r.Crossover == zone.Trigger {
		r.Signal = zone.Action
	}
	return r
}

// Evaluate computes the signal for the current bar from its indicators and
// those of the immediately preceding bar.
func Evaluate(prev, curr model.IndicatorSet) model.Signal {
	return Explain(prev, curr).Signal
}
