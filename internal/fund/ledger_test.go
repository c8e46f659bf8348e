package fund

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/model"
)

func at(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestLedgerBuyAveragesCost(t *testing.T) {
	l := NewLedger("AAPL", 10000, Costs{})

	trade, err := l.ApplyFill(model.SideBuy, 10, 100, at(2))
	require.NoError(t, err)
	assert.Nil(t, trade)
	_, err = l.ApplyFill(model.SideBuy, 30, 120, at(3))
	require.NoError(t, err)

	snap := l.Snapshot(at(3), 120)
	require.NotNil(t, snap.Position)
	assert.Equal(t, int64(40), snap.Position.Quantity)
	assert.InDelta(t, 115.0, snap.Position.AvgCost, 1e-12)
	assert.Equal(t, at(2), snap.Position.OpenedAt)
	assert.InDelta(t, 10000-1000-3600, snap.Cash, 1e-9)
	assert.InDelta(t, 4800, snap.PositionValue, 1e-9)
	assert.InDelta(t, 10200, snap.Equity, 1e-9)
	assert.InDelta(t, 200, snap.UnrealizedPnL, 1e-9)
	assert.Len(t, l.Fills(), 2)
}

func TestLedgerSellRealizesTrade(t *testing.T) {
	l := NewLedger("AAPL", 10000, Costs{})
	_, err := l.ApplyFill(model.SideBuy, 10, 100, at(2))
	require.NoError(t, err)
	_, err = l.ApplyFill(model.SideBuy, 10, 110, at(3))
	require.NoError(t, err)

	trade, err := l.ApplyFill(model.SideSell, 5, 120, at(4))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "LONG", trade.Side)
	assert.Equal(t, at(2), trade.EntryDate)
	assert.Equal(t, at(4), trade.ExitDate)
	assert.InDelta(t, 105, trade.EntryPrice, 1e-12)
	assert.InDelta(t, 75, trade.PnL, 1e-9)
	assert.InDelta(t, 75.0/525.0, trade.PnLPct, 1e-12)

	trade, err = l.ApplyFill(model.SideSell, 15, 100, at(5))
	require.NoError(t, err)
	assert.InDelta(t, -75, trade.PnL, 1e-9)

	snap := l.Snapshot(at(5), 100)
	assert.Nil(t, snap.Position)
	assert.Equal(t, int64(0), snap.Held())
	assert.InDelta(t, 10000, snap.Cash, 1e-9)
	assert.InDelta(t, 0, snap.RealizedPnL, 1e-9)
	assert.Len(t, l.Trades(), 2)
}

func TestLedgerInsufficientPosition(t *testing.T) {
	l := NewLedger("AAPL", 10000, Costs{})
	_, err := l.ApplyFill(model.SideSell, 1, 100, at(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientPosition))

	var fe *FillError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, at(2), fe.Time)
	assert.Equal(t, model.SideSell, fe.Side)
	assert.Equal(t, int64(0), fe.Held)

	_, err = l.ApplyFill(model.SideBuy, 5, 100, at(3))
	require.NoError(t, err)
	_, err = l.ApplyFill(model.SideSell, 6, 100, at(4))
	assert.ErrorIs(t, err, ErrInsufficientPosition)
	assert.Equal(t, int64(5), l.Snapshot(at(4), 100).Held())
}

func TestLedgerInsufficientCash(t *testing.T) {
	l := NewLedger("AAPL", 1000, Costs{})
	_, err := l.ApplyFill(model.SideBuy, 11, 100, at(2))
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.Equal(t, 1000.0, l.Cash())
	assert.Empty(t, l.Fills())
}

func TestLedgerInvalidFill(t *testing.T) {
	l := NewLedger("AAPL", 1000, Costs{})
	_, err := l.ApplyFill(model.SideBuy, 0, 100, at(2))
	assert.ErrorIs(t, err, ErrInvalidFill)
	_, err = l.ApplyFill(model.SideBuy, 1, -1, at(2))
	assert.ErrorIs(t, err, ErrInvalidFill)
	_, err = l.ApplyFill(model.Side("SHORT"), 1, 10, at(2))
	assert.ErrorIs(t, err, ErrInvalidFill)
}

func TestLedgerCosts(t *testing.T) {
	l := NewLedger("AAPL", 10000, Costs{CommissionPct: 0.001, SlippagePct: 0.01})

	assert.InDelta(t, 101, l.FillPrice(model.SideBuy, 100), 1e-12)
	assert.InDelta(t, 99, l.FillPrice(model.SideSell, 100), 1e-12)

	_, err := l.ApplyFill(model.SideBuy, 10, 101, at(2))
	require.NoError(t, err)
	// 1010 notional + 1.01 commission
	assert.InDelta(t, 10000-1011.01, l.Cash(), 1e-9)

	trade, err := l.ApplyFill(model.SideSell, 10, 99, at(3))
	require.NoError(t, err)
	assert.InDelta(t, 990-0.99-1011.01, trade.PnL, 1e-9)
	assert.InDelta(t, 10000+trade.PnL, l.Cash(), 1e-9)
}

func TestLedgerValueConservation(t *testing.T) {
	l := NewLedger("AAPL", 50000, Costs{CommissionPct: 0.002})
	steps := []struct {
		side  model.Side
		qty   int64
		price float64
	}{
		{model.SideBuy, 40, 101.5},
		{model.SideBuy, 25, 97.25},
		{model.SideSell, 30, 110},
		{model.SideBuy, 10, 105},
		{model.SideSell, 45, 92.4},
	}
	for i, s := range steps {
		_, err := l.ApplyFill(s.side, s.qty, s.price, at(i+2))
		require.NoError(t, err)
		mark := s.price * 1.03
		snap := l.Snapshot(at(i+2), mark)
		residual := snap.Cash + snap.PositionValue - 50000 - snap.RealizedPnL - snap.UnrealizedPnL
		assert.InDelta(t, 0, residual, 1e-6, "step %d", i)
		assert.GreaterOrEqual(t, snap.Cash, 0.0)
	}
}

func TestSnapshotPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")

	missing, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Nil(t, missing)

	l := NewLedger("MSFT", 5000, Costs{})
	_, err = l.ApplyFill(model.SideBuy, 10, 300, at(2))
	require.NoError(t, err)
	snap := l.Snapshot(at(2), 310)
	require.NoError(t, SaveSnapshot(path, snap))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Cash, loaded.Cash)
	assert.Equal(t, snap.Equity, loaded.Equity)
	require.NotNil(t, loaded.Position)
	assert.Equal(t, int64(10), loaded.Position.Quantity)
	assert.True(t, snap.Time.Equal(loaded.Time))
}
