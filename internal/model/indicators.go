package model

import (
	"math"
	"time"
)

// IndicatorSet holds the technical indicators computed for one bar.
// Values are NaN until enough history exists.
type IndicatorSet struct {
	Time  time.Time
	Close float64

	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	SMAFast    float64
	SMASlow    float64
	EMAFast    float64
	EMASlow    float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	Volatility float64
	ATR        float64
}

// EmptyIndicatorSet returns a set with every indicator undefined.
func EmptyIndicatorSet() IndicatorSet {
	nan := math.NaN()
	return IndicatorSet{
		Close: nan, RSI: nan, MACD: nan, MACDSignal: nan, MACDHist: nan,
		SMAFast: nan, SMASlow: nan, EMAFast: nan, EMASlow: nan,
		BBUpper: nan, BBMiddle: nan, BBLower: nan, Volatility: nan, ATR: nan,
	}
}

func (s IndicatorSet) HasRSI() bool        { return !math.IsNaN(s.RSI) }
func (s IndicatorSet) HasMACD() bool       { return !math.IsNaN(s.MACD) && !math.IsNaN(s.MACDSignal) }
func (s IndicatorSet) HasBollinger() bool  { return !math.IsNaN(s.BBMiddle) }
func (s IndicatorSet) HasVolatility() bool { return !math.IsNaN(s.Volatility) }
