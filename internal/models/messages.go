package models

import "encoding/json"

// WSMessage is the envelope of every Kuma WebSocket push message. The payload
// stays raw until the type tag has been inspected; internal code never walks
// untyped maps.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Kuma message type tags.
const (
	MsgTypeL1Orderbook = "l1orderbook"
	MsgTypeOrders      = "orders"
	MsgTypeError       = "error"
)

// L1OrderbookData 是公共行情推送的负载 (字段名遵循交易所的缩写约定)
type L1OrderbookData struct {
	Market     string      `json:"m"`
	LastPrice  json.Number `json:"lp"` // 最新成交价
	MidPrice   json.Number `json:"mp"` // 盘口中间价
	IndexPrice json.Number `json:"ip"` // 指数价格
}

// OrderFillData 是私有订单推送的负载, 仅 x=fill 且 X=filled 的消息会进入引擎
type OrderFillData struct {
	OrderID     string      `json:"i"`
	Market      string      `json:"m"`
	Side        string      `json:"s"`
	Price       json.Number `json:"p"`
	Quantity    json.Number `json:"q"`
	ExecType    string      `json:"x"`  // "fill"
	OrderStatus string      `json:"X"`  // "filled"
	Liquidity   string      `json:"lq"` // "0" = taker
	FillID      string      `json:"f"`  // execution id, de-duplication key
	TradeTimeMs int64       `json:"T"`
}

// WSErrorData 是交易所推送的错误负载
type WSErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
