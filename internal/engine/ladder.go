// Package engine implements the per-market grid trading state machine: the
// quantity/spread ladder, position accounting, order tracking, risk limits and
// the event loop that ties them to an exchange gateway.
package engine

import "kuma-grid-bot-go/internal/models"

// Ladder computes the escalation schedule of the grid: how large the order at
// each level is and how far from its reference price it rests. Level 0 is
// the initial straddle; the first escalation order is level 1.
type Ladder struct {
	InitialQuantity float64
	BaseIncrement   float64
	IncrementStep   float64
	InitialSpread   float64
	SpreadIncrement float64
	ClosingSpread   float64
}

// NewLadder builds a ladder from strategy parameters.
func NewLadder(cfg models.BotConfig) Ladder {
	return Ladder{
		InitialQuantity: cfg.InitialQuantity,
		BaseIncrement:   cfg.BaseIncrement,
		IncrementStep:   cfg.IncrementStep,
		InitialSpread:   cfg.InitialSpread,
		SpreadIncrement: cfg.SpreadIncrement,
		ClosingSpread:   cfg.ClosingSpread,
	}
}

// IncrementAt returns the extra quantity added by escalation step i (0-based).
// Each step adds a little more than the previous one.
func (l Ladder) IncrementAt(i int) float64 {
	return l.BaseIncrement + float64(i)*l.IncrementStep
}

// CumulativeIncrement returns the total extra quantity accumulated by the
// first n escalation steps: n*base + step*n*(n-1)/2 in closed form.
func (l Ladder) CumulativeIncrement(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n)*l.BaseIncrement + l.IncrementStep*float64(n)*float64(n-1)/2
}

// QuantityAt returns the order quantity at a grid level. Level 0 is the
// straddle quantity; at higher levels the order must both re-buy everything
// the ladder has already accumulated and add the next increment, so a single
// fill at any level always deepens the position.
func (l Ladder) QuantityAt(level int) float64 {
	if level <= 0 {
		return l.InitialQuantity
	}
	return l.InitialQuantity + l.CumulativeIncrement(level-1) + l.IncrementAt(level-1)
}

// SpreadAt returns the distance of the level's grid order from its reference
// price. Spreads widen linearly with each level.
func (l Ladder) SpreadAt(level int) float64 {
	return l.InitialSpread + float64(level)*l.SpreadIncrement
}

// GridPrice returns where the next escalation order rests, given the price of
// the fill that triggered it and the direction of the position. A long
// position adds below the last fill, a short above.
func (l Ladder) GridPrice(fillPrice float64, side models.Side, level int) float64 {
	spread := l.SpreadAt(level)
	if side == models.Buy {
		return fillPrice - spread
	}
	return fillPrice + spread
}

// ClosingPrice returns where the closing order for the whole position rests.
// A long position closes by selling above the average, a short by buying
// below.
func (l Ladder) ClosingPrice(avgPrice float64, positionSide models.Side) float64 {
	if positionSide == models.Buy {
		return avgPrice + l.ClosingSpread
	}
	return avgPrice - l.ClosingSpread
}
