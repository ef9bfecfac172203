package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolRules carries the per-symbol precision used when converting internal
// float values to the exchange wire format. All internal math stays on
// float64; rounding to the symbol scale happens exactly once, at the gateway
// boundary, so a price is never rounded twice.
type SymbolRules struct {
	Symbol           string
	PriceDecimals    int32
	QuantityDecimals int32
	MinQuantity      float64
	MinPrice         float64
}

// SymbolConfigs 缓存了每个交易对的精度规则 (交易所的 /markets 响应是它们的权威来源,
// 这里保留一份静态副本以便离线校验配置)
var SymbolConfigs = map[string]SymbolRules{
	"BTC-USD":  {Symbol: "BTC-USD", PriceDecimals: 0, QuantityDecimals: 8, MinQuantity: 0.00001, MinPrice: 1},
	"ETH-USD":  {Symbol: "ETH-USD", PriceDecimals: 1, QuantityDecimals: 8, MinQuantity: 0.0001, MinPrice: 0.1},
	"SOL-USD":  {Symbol: "SOL-USD", PriceDecimals: 2, QuantityDecimals: 8, MinQuantity: 0.01, MinPrice: 0.01},
	"BERA-USD": {Symbol: "BERA-USD", PriceDecimals: 3, QuantityDecimals: 8, MinQuantity: 0.1, MinPrice: 0.001},
	"XRP-USD":  {Symbol: "XRP-USD", PriceDecimals: 4, QuantityDecimals: 8, MinQuantity: 1, MinPrice: 0.0001},
}

// RulesFor looks up the precision rules for a symbol.
func RulesFor(symbol string) (SymbolRules, error) {
	r, ok := SymbolConfigs[symbol]
	if !ok {
		return SymbolRules{}, fmt.Errorf("no symbol rules for %s", symbol)
	}
	return r, nil
}

// FormatPrice rounds a price to the symbol's tick scale and renders it with
// the fixed 8 decimal places the exchange wire format requires.
func (r SymbolRules) FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).Round(r.PriceDecimals).StringFixed(8)
}

// FormatQuantity rounds a quantity to the symbol's lot scale, 8-decimal wire
// format as above.
func (r SymbolRules) FormatQuantity(qty float64) string {
	return decimal.NewFromFloat(qty).Round(r.QuantityDecimals).StringFixed(8)
}

// RoundPrice returns the price the exchange will actually rest the order at.
// The engine uses it before submission so the tracked record matches the
// exchange-side price exactly.
func (r SymbolRules) RoundPrice(price float64) float64 {
	f, _ := decimal.NewFromFloat(price).Round(r.PriceDecimals).Float64()
	return f
}
