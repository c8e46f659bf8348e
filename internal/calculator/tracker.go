package calculator

import (
	"fmt"

	"cortex5/internal/model"
)

// Params configures every indicator of an IndicatorSet.
type Params struct {
	RSIPeriod        int
	RSIMethod        RSIMethod
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	BollingerPeriod  int
	BollingerK       float64
	SMAFast          int
	SMASlow          int
	EMAFast          int
	EMASlow          int
	VolatilityWindow int
	ATRPeriod        int
}

// DefaultParams returns the standard indicator settings.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		RSIMethod:        RSISimple,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		BollingerPeriod:  20,
		BollingerK:       2,
		SMAFast:          20,
		SMASlow:          50,
		EMAFast:          12,
		EMASlow:          26,
		VolatilityWindow: 20,
		ATRPeriod:        14,
	}
}

// Validate checks the periods are usable.
func (p Params) Validate() error {
	for name, v := range map[string]int{
		"rsi_period":  p.RSIPeriod,
		"macd_fast":   p.MACDFast,
		"macd_slow":   p.MACDSlow,
		"macd_signal": p.MACDSignal,
		"sma_fast":    p.SMAFast,
		"sma_slow":    p.SMASlow,
		"ema_fast":    p.EMAFast,
		"ema_slow":    p.EMASlow,
		"atr_period":  p.ATRPeriod,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("macd_fast (%d) must be less than macd_slow (%d)", p.MACDFast, p.MACDSlow)
	}
	if p.BollingerPeriod < 2 {
		return fmt.Errorf("bollinger_period must be at least 2")
	}
	if p.VolatilityWindow < 2 {
		return fmt.Errorf("volatility_window must be at least 2")
	}
	if _, err := ParseRSIMethod(string(p.RSIMethod)); err != nil {
		return err
	}
	return nil
}

// Tracker maintains every indicator incrementally, one bar at a time.
// Each Update costs O(1) regardless of history length.
type Tracker struct {
	params Params
	bars   int

	rsi        *rsi
	macd       *macd
	smaFast    *window
	smaSlow    *window
	emaFast    *ema
	emaSlow    *ema
	bollinger  *window
	volatility *window
	atr        *ema
	prevClose  float64
}

// NewTracker creates a Tracker. Params must be valid.
func NewTracker(p Params) *Tracker {
	return &Tracker{
		params:     p,
		rsi:        newRSI(p.RSIPeriod, p.RSIMethod),
		macd:       newMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		smaFast:    newWindow(p.SMAFast),
		smaSlow:    newWindow(p.SMASlow),
		emaFast:    newEMA(p.EMAFast),
		emaSlow:    newEMA(p.EMASlow),
		bollinger:  newWindow(p.BollingerPeriod),
		volatility: newWindow(p.VolatilityWindow),
		atr:        newEMA(p.ATRPeriod),
	}
}

// Update feeds the next bar and returns the indicators as of that bar.
func (t *Tracker) Update(bar model.OHLCV) model.IndicatorSet {
	first := t.bars == 0
	t.bars++

	set := model.EmptyIndicatorSet()
	set.Time = bar.Time
	set.Close = bar.Close

	set.RSI = t.rsi.update(bar.Close, first)
	set.MACD, set.MACDSignal, set.MACDHist = t.macd.update(bar.Close)

	t.smaFast.push(bar.Close)
	t.smaSlow.push(bar.Close)
	set.SMAFast = t.smaFast.average()
	set.SMASlow = t.smaSlow.average()
	set.EMAFast = t.emaFast.update(bar.Close)
	set.EMASlow = t.emaSlow.update(bar.Close)

	t.bollinger.push(bar.Close)
	if t.bollinger.full() {
		sd := t.bollinger.stdev()
		set.BBMiddle = t.bollinger.average()
		set.BBUpper = set.BBMiddle + t.params.BollingerK*sd
		set.BBLower = set.BBMiddle - t.params.BollingerK*sd
	}

	if !first {
		t.volatility.push(bar.Close/t.prevClose - 1)
		set.Volatility = t.volatility.stdev()
	}

	atr := t.atr.update(TrueRange(bar, t.prevClose, !first))
	if t.bars > t.params.ATRPeriod {
		set.ATR = atr
	}

	t.prevClose = bar.Close
	return set
}

// Bars returns how many bars have been fed.
func (t *Tracker) Bars() int { return t.bars }

// Compute builds the indicator sets of a whole series from the batch
// functions. It recomputes every window from scratch and serves as the
// reference the Tracker is checked against.
func Compute(bars []model.OHLCV, p Params) ([]model.IndicatorSet, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	closes := model.Closes(bars)

	rsi, err := RSISeries(closes, p.RSIPeriod, p.RSIMethod)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	macd, err := MACDSeries(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	bb, err := BollingerSeries(closes, p.BollingerPeriod, p.BollingerK)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	smaFast, _ := SMASeries(closes, p.SMAFast)
	smaSlow, _ := SMASeries(closes, p.SMASlow)
	emaFast, _ := EMASeries(closes, p.EMAFast)
	emaSlow, _ := EMASeries(closes, p.EMASlow)
	vol, err := VolatilitySeries(closes, p.VolatilityWindow)
	if err != nil {
		return nil, fmt.Errorf("volatility: %w", err)
	}
	atr, err := ATRSeries(bars, p.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("atr: %w", err)
	}

	sets := make([]model.IndicatorSet, len(bars))
	for i, b := range bars {
		sets[i] = model.IndicatorSet{
			Time:       b.Time,
			Close:      b.Close,
			RSI:        rsi[i],
			MACD:       macd.MACD[i],
			MACDSignal: macd.Signal[i],
			MACDHist:   macd.Histogram[i],
			SMAFast:    smaFast[i],
			SMASlow:    smaSlow[i],
			EMAFast:    emaFast[i],
			EMASlow:    emaSlow[i],
			BBUpper:    bb.Upper[i],
			BBMiddle:   bb.Middle[i],
			BBLower:    bb.Lower[i],
			Volatility: vol[i],
			ATR:        atr[i],
		}
	}
	return sets, nil
}
