// Package risk validates candidate orders against portfolio and market
// state before they reach the ledger.
package risk

import (
	"fmt"

	"cortex5/internal/model"
)

const (
	DefaultMaxPositionPct    = 0.10
	DefaultMaxVolatility     = 0.03
	DefaultMinSentimentScore = 0.5
	// NeutralSentiment stands in for a missing sentiment score.
	NeutralSentiment = 0.5
)

// epsilon absorbs float rounding when a sized order lands exactly on a limit.
const epsilon = 1e-9

// Config defines the risk limits.
type Config struct {
	MaxPositionPct    float64 `json:"max_position_pct"`
	MaxVolatility     float64 `json:"max_volatility"`
	MinSentimentScore float64 `json:"min_sentiment_score"`
	NeutralSentiment  float64 `json:"neutral_sentiment"`
	// CommissionPct is added to the cash required by a BUY.
	CommissionPct float64 `json:"commission_pct"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionPct:    DefaultMaxPositionPct,
		MaxVolatility:     DefaultMaxVolatility,
		MinSentimentScore: DefaultMinSentimentScore,
		NeutralSentiment:  NeutralSentiment,
	}
}

// Validate checks the limits are in range.
func (c Config) Validate() error {
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct must be in (0,1], got %v", c.MaxPositionPct)
	}
	if c.MaxVolatility <= 0 {
		return fmt.Errorf("max_volatility must be positive, got %v", c.MaxVolatility)
	}
	if c.MinSentimentScore < 0 || c.MinSentimentScore > 1 {
		return fmt.Errorf("min_sentiment_score must be in [0,1], got %v", c.MinSentimentScore)
	}
	if c.NeutralSentiment < 0 || c.NeutralSentiment > 1 {
		return fmt.Errorf("neutral_sentiment must be in [0,1], got %v", c.NeutralSentiment)
	}
	if c.CommissionPct < 0 {
		return fmt.Errorf("commission_pct must not be negative")
	}
	return nil
}

// Gate evaluates orders. It holds no mutable state, so one Gate may serve
// many concurrent runs.
type Gate struct {
	cfg Config
}

// NewGate creates a Gate with the given limits.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Config returns the gate's limits.
func (g *Gate) Config() Config { return g.cfg }

// Approve runs the checks in order: position size, volatility, sentiment,
// capital. The first failing check decides the rejection.
func (g *Gate) Approve(order model.Order, pf model.PortfolioSnapshot, mkt model.MarketSnapshot) model.Decision {
	checks := []func(model.Order, model.PortfolioSnapshot, model.MarketSnapshot) (model.RejectReason, string){
		g.checkPositionSize,
		g.checkVolatility,
		g.checkSentiment,
		g.checkCapital,
	}
	for _, check := range checks {
		if reason, detail := check(order, pf, mkt); reason != "" {
			return model.Reject(order, reason, detail)
		}
	}
	return model.Approve(order)
}

func (g *Gate) checkPositionSize(o model.Order, pf model.PortfolioSnapshot, _ model.MarketSnapshot) (model.RejectReason, string) {
	if o.Side != model.SideBuy {
		return "", ""
	}
	maxValue := pf.Equity * g.cfg.MaxPositionPct
	if o.Quantity <= 0 {
		return model.ReasonPositionSize, fmt.Sprintf(
			"Order sizes to zero shares at %s (maximum position %s)", money(o.Price), money(maxValue))
	}
	projected := float64(pf.Held()+o.Quantity) * o.Price
	if projected > maxValue*(1+epsilon) {
		return model.ReasonPositionSize, fmt.Sprintf(
			"Position size %s exceeds maximum %s (%s of portfolio)",
			money(projected), money(maxValue), percent(g.cfg.MaxPositionPct))
	}
	return "", ""
}

func (g *Gate) checkVolatility(_ model.Order, _ model.PortfolioSnapshot, mkt model.MarketSnapshot) (model.RejectReason, string) {
	if mkt.Volatility != mkt.Volatility { // NaN
		return model.ReasonVolatility, "Insufficient data to calculate volatility"
	}
	if mkt.Volatility > g.cfg.MaxVolatility {
		return model.ReasonVolatility, fmt.Sprintf(
			"Volatility %.4f (%s) exceeds maximum %.4f (%s)",
			mkt.Volatility, percent(mkt.Volatility), g.cfg.MaxVolatility, percent(g.cfg.MaxVolatility))
	}
	return "", ""
}

func (g *Gate) checkSentiment(o model.Order, _ model.PortfolioSnapshot, mkt model.MarketSnapshot) (model.RejectReason, string) {
	if o.Side != model.SideBuy {
		return "", ""
	}
	score := g.cfg.NeutralSentiment
	if mkt.HasSentiment {
		score = mkt.Sentiment
	}
	if score < g.cfg.MinSentimentScore {
		return model.ReasonSentiment, fmt.Sprintf(
			"Sentiment score %.2f below minimum %.2f for BUY signals", score, g.cfg.MinSentimentScore)
	}
	return "", ""
}

func (g *Gate) checkCapital(o model.Order, pf model.PortfolioSnapshot, _ model.MarketSnapshot) (model.RejectReason, string) {
	switch o.Side {
	case model.SideBuy:
		required := float64(o.Quantity) * o.Price * (1 + g.cfg.CommissionPct)
		if required > pf.Cash {
			return model.ReasonCapital, fmt.Sprintf(
				"Insufficient capital. Required: %s, Available: %s", money(required), money(pf.Cash))
		}
	case model.SideSell:
		held := pf.Held()
		if held <= 0 {
			return model.ReasonCapital, fmt.Sprintf("No open position in %s to sell", o.Symbol)
		}
		if o.Quantity <= 0 || o.Quantity > held {
			return model.ReasonCapital, fmt.Sprintf(
				"Insufficient position. Requested: %d, Held: %d", o.Quantity, held)
		}
	}
	return "", ""
}
