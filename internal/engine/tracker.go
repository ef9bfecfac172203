package engine

import (
	"sort"
	"time"

	"kuma-grid-bot-go/internal/models"
)

// OrderTracker is the engine's memory of its resting orders, keyed by the
// exchange order id, plus the lifetime set of processed fill ids. The fill
// set deliberately never shrinks within a session: redelivery after a
// reconnect can arrive long after the order itself is gone.
type OrderTracker struct {
	orders map[string]models.OrderRecord
	fills  map[string]struct{}

	// Named slots for the orders the state machine reasons about. These
	// hold order ids and mirror entries in the orders map.
	initialBuyID  string
	initialSellID string
	closingID     string
}

// NewOrderTracker creates an empty tracker.
func NewOrderTracker() *OrderTracker {
	return &OrderTracker{
		orders: make(map[string]models.OrderRecord),
		fills:  make(map[string]struct{}),
	}
}

// Record registers a successfully submitted order.
func (t *OrderTracker) Record(rec models.OrderRecord) {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}
	t.orders[rec.OrderID] = rec

	switch rec.Role {
	case models.RoleInitial:
		if rec.Side == models.Buy {
			t.initialBuyID = rec.OrderID
		} else {
			t.initialSellID = rec.OrderID
		}
	case models.RoleClosing:
		t.closingID = rec.OrderID
	}
}

// Remove forgets an order after it filled or was cancelled.
func (t *OrderTracker) Remove(orderID string) {
	delete(t.orders, orderID)
	switch orderID {
	case t.initialBuyID:
		t.initialBuyID = ""
	case t.initialSellID:
		t.initialSellID = ""
	}
	if orderID == t.closingID {
		t.closingID = ""
	}
}

// Get looks up an order by id.
func (t *OrderTracker) Get(orderID string) (models.OrderRecord, bool) {
	rec, ok := t.orders[orderID]
	return rec, ok
}

// InitialSibling returns the id of the straddle leg opposite the given order
// id, or "" when the order is not a straddle leg or the sibling is gone.
func (t *OrderTracker) InitialSibling(orderID string) string {
	switch orderID {
	case t.initialBuyID:
		return t.initialSellID
	case t.initialSellID:
		return t.initialBuyID
	}
	return ""
}

// ClosingOrderID returns the id of the resting closing order, "" if none.
func (t *OrderTracker) ClosingOrderID() string { return t.closingID }

// IsDuplicateFill reports whether this fill id has already been processed.
func (t *OrderTracker) IsDuplicateFill(fillID string) bool {
	_, seen := t.fills[fillID]
	return seen
}

// MarkFill records a fill id as processed.
func (t *OrderTracker) MarkFill(fillID string) {
	t.fills[fillID] = struct{}{}
}

// ActiveOrderIDs returns the ids of all resting orders.
func (t *OrderTracker) ActiveOrderIDs() []string {
	ids := make([]string, 0, len(t.orders))
	for id := range t.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveOrders returns the dashboard view of resting orders, oldest first.
func (t *OrderTracker) ActiveOrders() []models.ActiveOrder {
	recs := make([]models.OrderRecord, 0, len(t.orders))
	for _, rec := range t.orders {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].SubmittedAt.Before(recs[j].SubmittedAt)
	})
	out := make([]models.ActiveOrder, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.ActiveOrder{
			ID:       rec.OrderID,
			Side:     rec.Side,
			Price:    rec.Price,
			Quantity: rec.Quantity,
			Role:     rec.Role,
		})
	}
	return out
}

// Len returns the number of resting orders.
func (t *OrderTracker) Len() int { return len(t.orders) }

// ResetOrders drops all resting-order state but keeps the processed fill set,
// so redeliveries from before the reset are still filtered.
func (t *OrderTracker) ResetOrders() {
	t.orders = make(map[string]models.OrderRecord)
	t.initialBuyID = ""
	t.initialSellID = ""
	t.closingID = ""
}
