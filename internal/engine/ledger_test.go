package engine

import (
	"testing"

	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestLedgerLongAccumulation(t *testing.T) {
	var p PositionLedger

	p.ApplyFill(models.Buy, 100000, 0.001)
	assert.InDelta(t, 0.001, p.Quantity(), 1e-12)
	assert.InDelta(t, 100, p.Cost(), 1e-9)
	assert.InDelta(t, 100000, p.AveragePrice(), 1e-9)

	p.ApplyFill(models.Buy, 99900, 0.0015)
	assert.InDelta(t, 0.0025, p.Quantity(), 1e-12)
	// avg = (100000*0.001 + 99900*0.0015) / 0.0025 = 99940
	assert.InDelta(t, 99940, p.AveragePrice(), 1e-9)
	assert.Equal(t, models.Buy, p.Side())
}

func TestLedgerShortAveragePricePositive(t *testing.T) {
	var p PositionLedger

	p.ApplyFill(models.Sell, 100000, 0.001)
	p.ApplyFill(models.Sell, 100100, 0.0015)

	assert.InDelta(t, -0.0025, p.Quantity(), 1e-12)
	assert.Less(t, p.Cost(), 0.0)
	assert.InDelta(t, 100060, p.AveragePrice(), 1e-9)
	assert.Equal(t, models.Sell, p.Side())
}

func TestLedgerClosingFillDetection(t *testing.T) {
	var p PositionLedger

	// Flat: nothing closes.
	assert.False(t, p.IsClosingFill(models.Buy))
	assert.False(t, p.IsClosingFill(models.Sell))

	p.ApplyFill(models.Buy, 100000, 0.001)
	assert.True(t, p.IsClosingFill(models.Sell))
	assert.False(t, p.IsClosingFill(models.Buy))

	p.Reset()
	p.ApplyFill(models.Sell, 100000, 0.001)
	assert.True(t, p.IsClosingFill(models.Buy))
	assert.False(t, p.IsClosingFill(models.Sell))
}

func TestLedgerRealizedPnL(t *testing.T) {
	var p PositionLedger

	p.ApplyFill(models.Buy, 100000, 0.002)
	// Selling above average is profit on a long.
	assert.InDelta(t, 0.06, p.RealizedPnL(100030, 0.002), 1e-9)

	p.Reset()
	p.ApplyFill(models.Sell, 100000, 0.002)
	// Buying back below average is profit on a short.
	assert.InDelta(t, 0.06, p.RealizedPnL(99970, 0.002), 1e-9)
	// Buying back above average is a loss.
	assert.InDelta(t, -0.06, p.RealizedPnL(100030, 0.002), 1e-9)
}

func TestLedgerReset(t *testing.T) {
	var p PositionLedger
	p.ApplyFill(models.Buy, 100000, 0.002)
	p.Reset()

	assert.True(t, p.IsFlat())
	assert.Zero(t, p.Cost())
	assert.Zero(t, p.AveragePrice())

	snap := p.Snapshot()
	assert.Zero(t, snap.Quantity)
	assert.Zero(t, snap.AveragePrice)
}
