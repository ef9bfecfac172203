package engine

import (
	"testing"

	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func testLadder() Ladder {
	return NewLadder(models.BotConfig{
		InitialQuantity: 0.001,
		BaseIncrement:   0.0005,
		IncrementStep:   0.0001,
		InitialSpread:   50,
		SpreadIncrement: 10,
		ClosingSpread:   30,
	})
}

func TestLadderQuantityEscalation(t *testing.T) {
	l := testLadder()

	assert.InDelta(t, 0.001, l.QuantityAt(0), 1e-12)
	// level 1: initial + cum(0) + inc(0) = 0.001 + 0 + 0.0005
	assert.InDelta(t, 0.0015, l.QuantityAt(1), 1e-12)
	// level 2: initial + cum(1) + inc(1) = 0.001 + 0.0005 + 0.0006
	assert.InDelta(t, 0.0021, l.QuantityAt(2), 1e-12)
	// level 3: initial + cum(2) + inc(2) = 0.001 + 0.0011 + 0.0007
	assert.InDelta(t, 0.0028, l.QuantityAt(3), 1e-12)
}

func TestLadderQuantityIsStrictlyIncreasing(t *testing.T) {
	l := testLadder()
	for level := 1; level < 20; level++ {
		assert.Greater(t, l.QuantityAt(level), l.QuantityAt(level-1),
			"quantity must grow with level, broke at level %d", level)
	}
}

func TestLadderCumulativeMatchesSum(t *testing.T) {
	l := testLadder()
	sum := 0.0
	for i := 0; i < 10; i++ {
		assert.InDelta(t, sum, l.CumulativeIncrement(i), 1e-12, "n=%d", i)
		sum += l.IncrementAt(i)
	}
}

func TestLadderSpreads(t *testing.T) {
	l := testLadder()

	assert.InDelta(t, 50, l.SpreadAt(0), 1e-12)
	assert.InDelta(t, 60, l.SpreadAt(1), 1e-12)
	assert.InDelta(t, 80, l.SpreadAt(3), 1e-12)
}

func TestLadderOpeningBracketAndFirstEscalation(t *testing.T) {
	l := NewLadder(models.BotConfig{
		InitialQuantity: 0.03,
		BaseIncrement:   0.005,
		IncrementStep:   0.002,
		InitialSpread:   80,
		SpreadIncrement: 10,
		ClosingSpread:   50,
	})

	// Opening bracket around 50000.
	assert.InDelta(t, 49920, 50000-l.SpreadAt(0), 1e-9)
	assert.InDelta(t, 50080, 50000+l.SpreadAt(0), 1e-9)
	assert.InDelta(t, 0.03, l.QuantityAt(0), 1e-12)

	// After the buy leg fills at 49920: closing sell 50 above, next
	// escalation buy 90 below, slightly larger.
	assert.InDelta(t, 49970, l.ClosingPrice(49920, models.Buy), 1e-9)
	assert.InDelta(t, 49830, l.GridPrice(49920, models.Buy, 1), 1e-9)
	assert.InDelta(t, 0.035, l.QuantityAt(1), 1e-12)
}

func TestLadderPrices(t *testing.T) {
	l := testLadder()

	// Long position: escalation buys below the average, closing sell above.
	assert.InDelta(t, 99940, l.GridPrice(100000, models.Buy, 1), 1e-9)
	assert.InDelta(t, 100030, l.ClosingPrice(100000, models.Buy), 1e-9)

	// Short position mirrors.
	assert.InDelta(t, 100060, l.GridPrice(100000, models.Sell, 1), 1e-9)
	assert.InDelta(t, 99970, l.ClosingPrice(100000, models.Sell), 1e-9)
}
