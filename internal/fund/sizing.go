package fund

import (
	"fmt"
	"math"

	"cortex5/internal/model"
)

// Sizer decides how many shares an order for side should carry.
type Sizer interface {
	Size(side model.Side, pf model.PortfolioSnapshot, price float64) int64
	Name() string
}

// SizerParams configures NewSizer.
type SizerParams struct {
	Fraction     float64 `yaml:"fraction" json:"fraction"`
	MaxPositions int     `yaml:"max_positions" json:"max_positions"`
	WinRate      float64 `yaml:"win_rate" json:"win_rate"`
	WinLossRatio float64 `yaml:"win_loss_ratio" json:"win_loss_ratio"`
	KellyCap     float64 `yaml:"kelly_cap" json:"kelly_cap"`
	Shares       int64   `yaml:"shares" json:"shares"`
}

const DefaultKellyCap = 0.25

// NewSizer builds a sizing policy by name: fixed_fraction (default),
// equal_weight, kelly or fixed_shares.
func NewSizer(name string, p SizerParams) (Sizer, error) {
	switch name {
	case "", "fixed_fraction":
		if p.Fraction <= 0 || p.Fraction > 1 {
			return nil, fmt.Errorf("fixed_fraction: fraction must be in (0,1], got %v", p.Fraction)
		}
		return FixedFraction{Fraction: p.Fraction}, nil
	case "equal_weight":
		if p.MaxPositions <= 0 {
			return nil, fmt.Errorf("equal_weight: max_positions must be positive")
		}
		return EqualWeight{MaxPositions: p.MaxPositions}, nil
	case "kelly":
		if p.WinRate < 0 || p.WinRate > 1 {
			return nil, fmt.Errorf("kelly: win_rate must be in [0,1]")
		}
		if p.WinLossRatio <= 0 {
			return nil, fmt.Errorf("kelly: win_loss_ratio must be positive")
		}
		limit := p.KellyCap
		if limit == 0 {
			limit = DefaultKellyCap
		}
		return Kelly{WinRate: p.WinRate, WinLossRatio: p.WinLossRatio, Cap: limit}, nil
	case "fixed_shares":
		if p.Shares <= 0 {
			return nil, fmt.Errorf("fixed_shares: shares must be positive")
		}
		return FixedShares{Shares: p.Shares}, nil
	}
	return nil, fmt.Errorf("unknown sizing policy %q", name)
}

// toTarget converts a target position value into the shares still to buy.
func toTarget(side model.Side, pf model.PortfolioSnapshot, price, target float64) int64 {
	if side == model.SideSell {
		return pf.Held()
	}
	if price <= 0 || target <= 0 {
		return 0
	}
	qty := int64(math.Floor(target/price)) - pf.Held()
	if qty < 0 {
		return 0
	}
	return qty
}

// FixedFraction targets a fixed fraction of equity.
type FixedFraction struct {
	Fraction float64
}

func (s FixedFraction) Name() string { return "fixed_fraction" }

func (s FixedFraction) Size(side model.Side, pf model.PortfolioSnapshot, price float64) int64 {
	return toTarget(side, pf, price, pf.Equity*s.Fraction)
}

// EqualWeight splits equity evenly across MaxPositions slots.
type EqualWeight struct {
	MaxPositions int
}

func (s EqualWeight) Name() string { return "equal_weight" }

func (s EqualWeight) Size(side model.Side, pf model.PortfolioSnapshot, price float64) int64 {
	return toTarget(side, pf, price, pf.Equity/float64(s.MaxPositions))
}

// Kelly sizes by the Kelly fraction W - (1-W)/R, capped at Cap.
type Kelly struct {
	WinRate      float64
	WinLossRatio float64
	Cap          float64
}

func (s Kelly) Name() string { return "kelly" }

// Fraction returns the capped Kelly fraction, zero when the edge is negative.
func (s Kelly) Fraction() float64 {
	f := s.WinRate - (1-s.WinRate)/s.WinLossRatio
	return math.Max(0, math.Min(f, s.Cap))
}

func (s Kelly) Size(side model.Side, pf model.PortfolioSnapshot, price float64) int64 {
	return toTarget(side, pf, price, pf.Equity*s.Fraction())
}

// FixedShares buys a constant number of shares.
type FixedShares struct {
	Shares int64
}

func (s FixedShares) Name() string { return "fixed_shares" }

func (s FixedShares) Size(side model.Side, pf model.PortfolioSnapshot, _ float64) int64 {
	if side == model.SideSell {
		return pf.Held()
	}
	return s.Shares
}
