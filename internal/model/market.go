package model

import "time"

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Day truncates the bar time to its UTC calendar day.
func (b OHLCV) Day() time.Time {
	return DayOf(b.Time)
}

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BarSeries holds the ordered bars of one instrument.
type BarSeries struct {
	Symbol    string
	Interval  string
	Bars      []OHLCV
	Source    string
	FetchedAt time.Time
}

// Closes extracts the close prices of bars.
func Closes(bars []OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// MarketSnapshot is what the risk gate sees of the market at one bar.
type MarketSnapshot struct {
	Time       time.Time
	Price      float64
	Volatility float64 // NaN until the trailing window is full
	Sentiment  float64
	// HasSentiment is false when no score was supplied for the bar.
	HasSentiment bool
}

// SentimentSeries maps a UTC trading day to a score in [0,1].
type SentimentSeries map[time.Time]float64

// At returns the score for the day containing t.
func (s SentimentSeries) At(t time.Time) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s[DayOf(t)]
	return v, ok
}
