package engine

import (
	"math"

	"kuma-grid-bot-go/internal/models"
)

// PositionLedger tracks the net position and its cost basis. Buys add
// quantity and cost, sells subtract both, so a short position carries
// negative quantity and negative cost and the average price stays positive
// either way.
type PositionLedger struct {
	quantity float64
	cost     float64
}

// ApplyFill folds one fill into the ledger.
func (p *PositionLedger) ApplyFill(side models.Side, price, qty float64) {
	if side == models.Buy {
		p.quantity += qty
		p.cost += price * qty
	} else {
		p.quantity -= qty
		p.cost -= price * qty
	}
}

// IsClosingFill reports whether a fill of the given side would reduce the
// current position. Must be asked BEFORE ApplyFill mutates the ledger.
func (p *PositionLedger) IsClosingFill(side models.Side) bool {
	if p.quantity > 0 {
		return side == models.Sell
	}
	if p.quantity < 0 {
		return side == models.Buy
	}
	return false
}

// Side returns the direction of the current position, or "" when flat.
func (p *PositionLedger) Side() models.Side {
	switch {
	case p.quantity > 0:
		return models.Buy
	case p.quantity < 0:
		return models.Sell
	default:
		return ""
	}
}

// AveragePrice returns the positive average entry price, 0 when flat.
func (p *PositionLedger) AveragePrice() float64 {
	if p.quantity == 0 {
		return 0
	}
	return math.Abs(p.cost / p.quantity)
}

// RealizedPnL computes the profit of closing qty units at price against the
// current average entry. Positive for a profitable close on either side.
func (p *PositionLedger) RealizedPnL(price, qty float64) float64 {
	avg := p.AveragePrice()
	if p.quantity > 0 {
		return (price - avg) * qty
	}
	if p.quantity < 0 {
		return (avg - price) * qty
	}
	return 0
}

// Quantity returns the signed net position.
func (p *PositionLedger) Quantity() float64 { return p.quantity }

// Cost returns the signed cost basis.
func (p *PositionLedger) Cost() float64 { return p.cost }

// IsFlat reports whether there is no open position.
func (p *PositionLedger) IsFlat() bool { return p.quantity == 0 }

// Reset zeroes the ledger after the position has been closed out.
func (p *PositionLedger) Reset() {
	p.quantity = 0
	p.cost = 0
}

// Snapshot returns the dashboard view of the ledger.
func (p *PositionLedger) Snapshot() models.Position {
	return models.Position{
		Quantity:     p.quantity,
		Cost:         p.cost,
		AveragePrice: p.AveragePrice(),
	}
}
