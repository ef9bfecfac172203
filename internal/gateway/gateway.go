// Package gateway abstracts the exchange behind the narrow surface the grid
// engine consumes: order create/cancel plus the two event streams. Engines
// never see wire formats or venue error codes; those are translated here.
package gateway

import (
	"context"

	"kuma-grid-bot-go/internal/models"
)

// OrderRequest describes one limit order to submit. Quantities and prices are
// internal float values; the gateway converts them to the venue's wire format
// using the symbol's precision rules.
type OrderRequest struct {
	Market   string
	Side     models.Side
	Quantity float64
	Price    float64
}

// OrderGateway 定义了所有交易所实现必须提供的通用方法。
// 这使得引擎可以在不同交易所(以及测试中的内存实现)之间轻松切换。
type OrderGateway interface {
	// CreateOrder submits a limit order and returns the exchange-assigned
	// order id. Failure kinds are distinguished via IsRateLimited /
	// IsInsufficientFunds on the returned error.
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrders cancels the given orders. Best effort: the engine logs
	// failures and moves on, a stray resting order is accepted collateral.
	CancelOrders(ctx context.Context, market string, orderIDs []string) error

	// SubscribeMarketTicks streams top-of-book/index ticks for one market.
	// The channel closes only when reconnection attempts are exhausted or
	// the context ends.
	SubscribeMarketTicks(ctx context.Context, market string) (<-chan models.Tick, error)

	// SubscribePrivateFills streams execution reports for the authenticated
	// account, same closing contract as SubscribeMarketTicks.
	SubscribePrivateFills(ctx context.Context) (<-chan models.FillEvent, error)

	// Close releases any connections held by the gateway.
	Close() error
}
