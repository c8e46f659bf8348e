package strategy

import "cortex5/internal/model"

// Crossover describes how the MACD line moved relative to its signal line
// between two consecutive bars.
type Crossover string

const (
	CrossNone    Crossover = "NONE"
	CrossBullish Crossover = "BULLISH"
	CrossBearish Crossover = "BEARISH"
)

// detectCrossover compares the immediately preceding bar with the current
// one only. Touching the signal line on the previous bar counts as being on
// the opposite side.
func detectCrossover(prev, curr model.IndicatorSet) Crossover {
	if !prev.HasMACD() || !curr.HasMACD() {
		return CrossNone
	}
	switch {
	case prev.MACD <= prev.MACDSignal && curr.MACD > curr.MACDSignal:
		return CrossBullish
	case prev.MACD >= prev.MACDSignal && curr.MACD < curr.MACDSignal:
		return CrossBearish
	default:
		return CrossNone
	}
}

// classifyRSI maps an RSI reading to its zone.
func classifyRSI(rsi float64) Zone {
	for _, z := range Zones {
		if z.contains(rsi) {
			return z
		}
	}
	return NeutralZone
}

func (z Zone) contains(rsi float64) bool {
	if z.MinInclusive {
		if rsi < z.Min {
			return false
		}
	} else if rsi <= z.Min {
		return false
	}
	if z.MaxInclusive {
		return rsi <= z.Max
	}
	return rsi < z.Max
}
