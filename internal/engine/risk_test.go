package engine

import (
	"testing"

	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRiskGuardPositionCap(t *testing.T) {
	r := NewRiskGuard(models.BotConfig{MaxPosition: 0.01})

	ok, _ := r.AllowGridOrder(1, 0.005, 0.004)
	assert.True(t, ok)

	ok, reason := r.AllowGridOrder(1, 0.005, 0.006)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds cap")

	// Short positions count by magnitude.
	ok, _ = r.AllowGridOrder(1, -0.008, 0.003)
	assert.False(t, ok)
}

func TestRiskGuardLevelCap(t *testing.T) {
	r := NewRiskGuard(models.BotConfig{MaxPosition: 1, MaxGridLevel: 3})

	ok, _ := r.AllowGridOrder(2, 0, 0.001)
	assert.True(t, ok)

	// An order placed at the cap level would push the level past the cap
	// when it fills, so the cap level itself is already refused.
	ok, _ = r.AllowGridOrder(3, 0, 0.001)
	assert.False(t, ok)

	// Zero means unbounded.
	unbounded := NewRiskGuard(models.BotConfig{MaxPosition: 1})
	ok, _ = unbounded.AllowGridOrder(100, 0, 0.001)
	assert.True(t, ok)
}

func TestRiskGuardStopThresholds(t *testing.T) {
	r := NewRiskGuard(models.BotConfig{StopLoss: -100, TakeProfit: 50})

	stop, _ := r.ShouldStop(-99.99)
	assert.False(t, stop)
	stop, reason := r.ShouldStop(-100)
	assert.True(t, stop)
	assert.Contains(t, reason, "stop loss")

	stop, reason = r.ShouldStop(50)
	assert.True(t, stop)
	assert.Contains(t, reason, "take profit")

	// Both disabled: never stops.
	off := NewRiskGuard(models.BotConfig{})
	stop, _ = off.ShouldStop(-1e9)
	assert.False(t, stop)
	stop, _ = off.ShouldStop(1e9)
	assert.False(t, stop)
}
