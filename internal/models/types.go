package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderRole classifies why an order exists in the grid cycle.
type OrderRole string

const (
	RoleInitial OrderRole = "initial" // one leg of the opening straddle
	RoleGrid    OrderRole = "grid"    // escalation order
	RoleClosing OrderRole = "closing" // flattens the whole position
)

// OrderRecord is the engine's memory of one submitted order, keyed by the
// exchange-assigned order id. It is created on successful submission and
// removed on fill or cancel confirmation.
type OrderRecord struct {
	OrderID     string    `json:"order_id"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Role        OrderRole `json:"role"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Tick is one top-of-book snapshot from the market data feed.
type Tick struct {
	Symbol     string
	LastPrice  float64
	MidPrice   float64
	IndexPrice float64
	Time       time.Time
}

// FillEvent is one execution report from the private feed. FillID is the
// exchange's execution identifier and is the de-duplication key; redelivered
// fills (common after reconnection) carry the same FillID.
type FillEvent struct {
	FillID   string
	OrderID  string
	Symbol   string
	Side     Side
	Price    float64
	Quantity float64
	IsTaker  bool
	Time     time.Time
}

// Trade is the derived, append-only record of one fill after fee and P&L
// accounting. PnL is nil for position-building fills; only position-reducing
// fills realize P&L. The nil must not be coerced to zero.
type Trade struct {
	ID             string    `json:"id"`
	BotID          string    `json:"bot_id"`
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	Price          float64   `json:"price"`
	Quantity       float64   `json:"quantity"`
	Cost           float64   `json:"cost"`
	Fee            float64   `json:"fee"` // signed income: maker rebate > 0, taker cost < 0
	FeeRate        float64   `json:"fee_rate"`
	PnL            *float64  `json:"pnl"`
	Timestamp      time.Time `json:"timestamp"`
	OrderID        string    `json:"order_id"`
	FillID         string    `json:"fill_id,omitempty"`
	GridLevel      int       `json:"grid_level"`
	IsTaker        bool      `json:"is_taker"`
	PositionBefore float64   `json:"position_before"`
	PositionAfter  float64   `json:"position_after"`
	TotalPnL       float64   `json:"total_pnl"`
}

// ActiveOrder is the dashboard-facing view of one open order.
type ActiveOrder struct {
	ID       string  `json:"id"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Role     OrderRole `json:"role"`
}

// FeeTotals splits accumulated fee income by liquidity flag.
type FeeTotals struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
	Total float64 `json:"total"`
}

// Stats summarizes a bot's trading activity for the dashboard.
type Stats struct {
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	TotalVolume   float64   `json:"total_volume"`
	TotalPnL      float64   `json:"total_pnl"`
	Fees          FeeTotals `json:"fees"`
}

// Snapshot is a consistent copy of a bot's externally visible state, safe for
// concurrent reading while the engine keeps mutating its own copy.
type Snapshot struct {
	BotID     string    `json:"bot_id"`
	Symbol    string    `json:"symbol"`
	Status    BotStatus `json:"status"`
	// StatusReason explains a stop the operator did not ask for, e.g. a
	// risk threshold or a dead feed.
	StatusReason string   `json:"status_reason,omitempty"`
	Position     Position `json:"position"`
	GridLevel    int      `json:"grid_level"`

	ActiveOrders []ActiveOrder `json:"active_orders"`
	LastPrice    float64       `json:"last_price"`
	TotalPnL     float64       `json:"total_pnl"`
	TotalVolume  float64       `json:"total_volume"`
	RecentTrades []Trade       `json:"recent_trades"`
	Stats        Stats         `json:"stats"`
	StartTime    time.Time     `json:"start_time"`
}

// Position is the snapshot form of the position ledger.
type Position struct {
	Quantity     float64 `json:"quantity"`
	Cost         float64 `json:"cost"`
	AveragePrice float64 `json:"average_price"`
}

// DashboardStats is the payload pushed to dashboard WebSocket clients once
// per second.
type DashboardStats struct {
	Uptime       int64         `json:"uptime"` // seconds
	TotalPnL     string        `json:"totalPnL"`
	TotalVolume  string        `json:"totalVolume"`
	LastPrice    float64       `json:"lastPrice"`
	PositionQty  float64       `json:"positionQty"`
	GridLevel    int           `json:"gridLevel"`
	ActiveOrders []ActiveOrder `json:"activeOrders"`
	RecentTrades []Trade       `json:"recentTrades"`
}
