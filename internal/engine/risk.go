package engine

import (
	"fmt"
	"math"

	"kuma-grid-bot-go/internal/models"
)

// RiskGuard enforces the hard limits of one bot. Position and level caps skip
// the next escalation order without stopping the bot; the P&L limits stop it.
type RiskGuard struct {
	MaxPosition  float64
	MaxGridLevel int     // 0 = unbounded
	StopLoss     float64 // negative threshold, 0 disables
	TakeProfit   float64 // positive threshold, 0 disables
}

// NewRiskGuard builds a guard from strategy parameters.
func NewRiskGuard(cfg models.BotConfig) RiskGuard {
	return RiskGuard{
		MaxPosition:  cfg.MaxPosition,
		MaxGridLevel: cfg.MaxGridLevel,
		StopLoss:     cfg.StopLoss,
		TakeProfit:   cfg.TakeProfit,
	}
}

// AllowGridOrder reports whether the escalation order at the given level may
// be placed given the current absolute position. A refusal is not an error:
// the closing order stays resting and the grid simply stops deepening.
func (r RiskGuard) AllowGridOrder(level int, positionQty, orderQty float64) (bool, string) {
	if r.MaxGridLevel > 0 && level >= r.MaxGridLevel {
		return false, fmt.Sprintf("grid level %d has reached cap %d", level, r.MaxGridLevel)
	}
	if r.MaxPosition > 0 && math.Abs(positionQty)+orderQty > r.MaxPosition {
		return false, fmt.Sprintf("position %.8f + order %.8f exceeds cap %.8f",
			math.Abs(positionQty), orderQty, r.MaxPosition)
	}
	return true, ""
}

// ShouldStop reports whether accumulated P&L has crossed the stop loss or
// take profit threshold.
func (r RiskGuard) ShouldStop(totalPnL float64) (bool, string) {
	if r.StopLoss < 0 && totalPnL <= r.StopLoss {
		return true, fmt.Sprintf("stop loss hit: total P&L %.4f <= %.4f", totalPnL, r.StopLoss)
	}
	if r.TakeProfit > 0 && totalPnL >= r.TakeProfit {
		return true, fmt.Sprintf("take profit hit: total P&L %.4f >= %.4f", totalPnL, r.TakeProfit)
	}
	return false, ""
}
