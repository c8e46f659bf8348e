package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/model"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func buy(qty int64, price float64) model.Order {
	return model.Order{Symbol: "AAPL", Side: model.SideBuy, Quantity: qty, Price: price, Time: day}
}

func sell(qty int64, price float64) model.Order {
	return model.Order{Symbol: "AAPL", Side: model.SideSell, Quantity: qty, Price: price, Time: day}
}

func flat(cash float64) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{Time: day, Cash: cash, Equity: cash}
}

func holding(cash float64, qty int64, price float64) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		Time:          day,
		Cash:          cash,
		Position:      &model.Position{Symbol: "AAPL", Quantity: qty, AvgCost: price},
		PositionValue: float64(qty) * price,
		Equity:        cash + float64(qty)*price,
	}
}

func calm(sentiment float64) model.MarketSnapshot {
	return model.MarketSnapshot{Time: day, Price: 100, Volatility: 0.01, Sentiment: sentiment, HasSentiment: true}
}

func TestApproveOrder(t *testing.T) {
	g := NewGate(DefaultConfig())

	tests := []struct {
		name   string
		order  model.Order
		pf     model.PortfolioSnapshot
		mkt    model.MarketSnapshot
		reason model.RejectReason
	}{
		{"buy within limits", buy(100, 100), flat(100000), calm(0.7), ""},
		{"buy exactly at limit", buy(100, 100), flat(100000), calm(0.5), ""},
		{"buy over position limit", buy(101, 100), flat(100000), calm(0.7), model.ReasonPositionSize},
		{"buy zero shares", buy(0, 100), flat(100000), calm(0.7), model.ReasonPositionSize},
		{"buy adds to existing position", buy(50, 100), holding(95000, 60, 100), calm(0.7), model.ReasonPositionSize},
		{"high volatility", buy(10, 100), flat(100000), model.MarketSnapshot{Volatility: 0.04, Sentiment: 0.9, HasSentiment: true}, model.ReasonVolatility},
		{"volatility undefined", buy(10, 100), flat(100000), model.MarketSnapshot{Volatility: math.NaN()}, model.ReasonVolatility},
		{"low sentiment", buy(10, 100), flat(100000), calm(0.2), model.ReasonSentiment},
		{"missing sentiment is neutral", buy(10, 100), flat(100000), model.MarketSnapshot{Volatility: 0.01}, ""},
		{"low sentiment does not block sell", sell(10, 100), holding(1000, 10, 100), calm(0.1), ""},
		{"sell with empty portfolio", sell(10, 100), flat(100000), calm(0.7), model.ReasonCapital},
		{"sell more than held", sell(20, 100), holding(1000, 10, 100), calm(0.7), model.ReasonCapital},
		{"sell in volatile market", sell(10, 100), holding(1000, 10, 100), model.MarketSnapshot{Volatility: 0.05}, model.ReasonVolatility},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Approve(tt.order, tt.pf, tt.mkt)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.reason == "", d.Approved())
			assert.Equal(t, tt.order, d.Order)
			if !d.Approved() {
				assert.NotEmpty(t, d.Detail)
			}
		})
	}
}

func TestApproveInsufficientCapital(t *testing.T) {
	// Equity is large enough for the position limit, but cash is short.
	pf := model.PortfolioSnapshot{Cash: 500, Equity: 100000}
	d := NewGate(DefaultConfig()).Approve(buy(10, 100), pf, calm(0.8))

	require.False(t, d.Approved())
	assert.Equal(t, model.ReasonCapital, d.Reason)
	assert.Equal(t, "Insufficient capital. Required: $1,000.00, Available: $500.00", d.Detail)
}

func TestApproveCommissionCountsTowardCapital(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommissionPct = 0.01
	g := NewGate(cfg)

	pf := model.PortfolioSnapshot{Cash: 1005, Equity: 100000}
	d := g.Approve(buy(10, 100), pf, calm(0.8))
	// 1,000 of stock plus 10 of commission exceeds the cash.
	assert.Equal(t, model.ReasonCapital, d.Reason)

	pf.Cash = 1011
	d = g.Approve(buy(10, 100), pf, calm(0.8))
	assert.True(t, d.Approved())
}

func TestApproveCheckOrder(t *testing.T) {
	g := NewGate(DefaultConfig())
	// Fails every check at once; position size is reported first.
	mkt := model.MarketSnapshot{Volatility: 0.5, Sentiment: 0.0, HasSentiment: true}
	d := g.Approve(buy(1000, 100), flat(1000), mkt)
	assert.Equal(t, model.ReasonPositionSize, d.Reason)

	// Then volatility before sentiment.
	d = g.Approve(buy(1, 100), flat(100000), mkt)
	assert.Equal(t, model.ReasonVolatility, d.Reason)
}

func TestRejectionDetails(t *testing.T) {
	g := NewGate(DefaultConfig())

	d := g.Approve(buy(200, 100), flat(100000), calm(0.8))
	assert.Equal(t, "Position size $20,000.00 exceeds maximum $10,000.00 (10.00% of portfolio)", d.Detail)

	d = g.Approve(buy(1, 100), flat(100000), model.MarketSnapshot{Volatility: 0.04})
	assert.Equal(t, "Volatility 0.0400 (4.00%) exceeds maximum 0.0300 (3.00%)", d.Detail)

	d = g.Approve(buy(1, 100), flat(100000), calm(0.2))
	assert.Equal(t, "Sentiment score 0.20 below minimum 0.50 for BUY signals", d.Detail)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.MaxPositionPct = 0 },
		func(c *Config) { c.MaxPositionPct = 1.5 },
		func(c *Config) { c.MaxVolatility = -0.1 },
		func(c *Config) { c.MinSentimentScore = 2 },
		func(c *Config) { c.NeutralSentiment = -1 },
		func(c *Config) { c.CommissionPct = -0.01 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}
