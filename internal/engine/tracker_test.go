package engine

import (
	"testing"

	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordAndRemove(t *testing.T) {
	tr := NewOrderTracker()

	tr.Record(models.OrderRecord{OrderID: "a", Side: models.Buy, Price: 99950, Quantity: 0.001, Role: models.RoleInitial})
	tr.Record(models.OrderRecord{OrderID: "b", Side: models.Sell, Price: 100050, Quantity: 0.001, Role: models.RoleInitial})

	rec, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, models.Buy, rec.Side)
	assert.Equal(t, 2, tr.Len())

	tr.Remove("a")
	_, ok = tr.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerInitialSibling(t *testing.T) {
	tr := NewOrderTracker()
	tr.Record(models.OrderRecord{OrderID: "buy1", Side: models.Buy, Role: models.RoleInitial})
	tr.Record(models.OrderRecord{OrderID: "sell1", Side: models.Sell, Role: models.RoleInitial})

	assert.Equal(t, "sell1", tr.InitialSibling("buy1"))
	assert.Equal(t, "buy1", tr.InitialSibling("sell1"))
	assert.Equal(t, "", tr.InitialSibling("unknown"))

	tr.Remove("sell1")
	assert.Equal(t, "", tr.InitialSibling("buy1"))
}

func TestTrackerClosingSlot(t *testing.T) {
	tr := NewOrderTracker()
	assert.Equal(t, "", tr.ClosingOrderID())

	tr.Record(models.OrderRecord{OrderID: "c1", Side: models.Sell, Role: models.RoleClosing})
	assert.Equal(t, "c1", tr.ClosingOrderID())

	tr.Remove("c1")
	assert.Equal(t, "", tr.ClosingOrderID())
}

func TestTrackerFillDeduplication(t *testing.T) {
	tr := NewOrderTracker()

	assert.False(t, tr.IsDuplicateFill("f1"))
	tr.MarkFill("f1")
	assert.True(t, tr.IsDuplicateFill("f1"))

	// The fill set survives an order-state reset: redelivered fills from
	// before the reset must still be dropped.
	tr.ResetOrders()
	assert.True(t, tr.IsDuplicateFill("f1"))
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerActiveOrdersOldestFirst(t *testing.T) {
	tr := NewOrderTracker()
	tr.Record(models.OrderRecord{OrderID: "x", Side: models.Buy, Role: models.RoleGrid})
	tr.Record(models.OrderRecord{OrderID: "y", Side: models.Sell, Role: models.RoleClosing})

	orders := tr.ActiveOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, "x", orders[0].ID)
	assert.Equal(t, "y", orders[1].ID)
	assert.ElementsMatch(t, []string{"x", "y"}, tr.ActiveOrderIDs())
}
