package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"kuma-grid-bot-go/internal/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Binance futures error codes relevant to the submission policy.
const (
	binanceCodeRateLimited        = -1003
	binanceCodeInsufficientMargin = -2019
)

// BinanceGateway 通过USDⓈ-M合约接口实现 OrderGateway, 让同一套网格引擎可以
// 跑在第二个交易所上。内部统一使用 BTC-USD 形式的市场名, 在这里转换为
// Binance 的 BTCUSDT 形式。
type BinanceGateway struct {
	client *futures.Client
	logger *zap.SugaredLogger
}

// NewBinanceGateway 创建一个新的 BinanceGateway 实例。
func NewBinanceGateway(apiKey, secretKey string, sandbox bool, logger *zap.SugaredLogger) *BinanceGateway {
	futures.UseTestnet = sandbox
	return &BinanceGateway{
		client: futures.NewClient(apiKey, secretKey),
		logger: logger,
	}
}

// binanceSymbol 将内部市场名转换为Binance合约符号, 例如 BTC-USD -> BTCUSDT。
func binanceSymbol(market string) string {
	base := strings.SplitN(market, "-", 2)[0]
	return base + "USDT"
}

func translateBinanceError(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return &Error{Kind: KindTransientNetwork, Message: err.Error()}
	}
	kind := KindOther
	switch apiErr.Code {
	case binanceCodeRateLimited:
		kind = KindRateLimited
	case binanceCodeInsufficientMargin:
		kind = KindInsufficientFunds
	}
	return &Error{Kind: kind, Code: strconv.FormatInt(apiErr.Code, 10), Message: apiErr.Message}
}

// CreateOrder 下GTC限价单并返回交易所分配的订单ID。
func (g *BinanceGateway) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	rules, err := models.RulesFor(req.Market)
	if err != nil {
		return "", &Error{Kind: KindOther, Message: err.Error()}
	}

	side := futures.SideTypeBuy
	if req.Side == models.Sell {
		side = futures.SideTypeSell
	}

	// Binance rejects padded zeros beyond the filter scale, so render at
	// the symbol scale instead of the 8-decimal wire format.
	price := decimal.NewFromFloat(req.Price).Round(rules.PriceDecimals).String()
	qty := decimal.NewFromFloat(req.Quantity).Round(rules.QuantityDecimals).String()

	res, err := g.client.NewCreateOrderService().
		Symbol(binanceSymbol(req.Market)).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qty).
		Price(price).
		Do(ctx)
	if err != nil {
		return "", translateBinanceError(err)
	}
	return strconv.FormatInt(res.OrderID, 10), nil
}

// CancelOrders 批量取消订单。无法解析的ID直接跳过。
func (g *BinanceGateway) CancelOrders(ctx context.Context, market string, orderIDs []string) error {
	ids := make([]int64, 0, len(orderIDs))
	for _, s := range orderIDs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			g.logger.Warnf("忽略无法解析的订单ID: %s", s)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := g.client.NewCancelMultipleOrdersService().
		Symbol(binanceSymbol(market)).
		OrderIDList(ids).
		Do(ctx)
	if err != nil {
		return translateBinanceError(err)
	}
	return nil
}

// SubscribeMarketTicks 合并盘口、成交和标记价格三路推送为统一的Tick流。
// Binance没有单独的指数价格推送, 用标记价格流里携带的指数价格代替。
func (g *BinanceGateway) SubscribeMarketTicks(ctx context.Context, market string) (<-chan models.Tick, error) {
	symbol := binanceSymbol(market)
	opts := SupervisorOptions{Name: "ticks:" + market, Logger: g.logger}

	out := Resubscribe(ctx, opts, func(ctx context.Context) (<-chan models.Tick, error) {
		ch := make(chan models.Tick, 64)

		var mu sync.Mutex
		var last, mid, index float64

		emit := func() {
			mu.Lock()
			tick := models.Tick{
				Symbol:     market,
				LastPrice:  last,
				MidPrice:   mid,
				IndexPrice: index,
				Time:       time.Now(),
			}
			ready := last > 0 && mid > 0 && index > 0
			mu.Unlock()
			if !ready {
				return
			}
			select {
			case ch <- tick:
			default:
			}
		}

		errHandler := func(err error) {
			g.logger.Warnf("Binance行情流错误: %v", err)
		}

		_, stopBook, err := futures.WsBookTickerServe(symbol, func(ev *futures.WsBookTickerEvent) {
			bid, err1 := strconv.ParseFloat(ev.BestBidPrice, 64)
			ask, err2 := strconv.ParseFloat(ev.BestAskPrice, 64)
			if err1 != nil || err2 != nil {
				return
			}
			mu.Lock()
			mid = (bid + ask) / 2
			mu.Unlock()
			emit()
		}, errHandler)
		if err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		_, stopTrade, err := futures.WsAggTradeServe(symbol, func(ev *futures.WsAggTradeEvent) {
			p, perr := strconv.ParseFloat(ev.Price, 64)
			if perr != nil {
				return
			}
			mu.Lock()
			last = p
			mu.Unlock()
		}, errHandler)
		if err != nil {
			close(stopBook)
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		doneMark, stopMark, err := futures.WsMarkPriceServe(symbol, func(ev *futures.WsMarkPriceEvent) {
			p, perr := strconv.ParseFloat(ev.IndexPrice, 64)
			if perr != nil {
				return
			}
			mu.Lock()
			index = p
			mu.Unlock()
		}, errHandler)
		if err != nil {
			close(stopBook)
			close(stopTrade)
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		go func() {
			defer close(ch)
			select {
			case <-ctx.Done():
			case <-doneMark:
				// One leg died; tear down the rest and let the
				// supervisor redial all three together.
			}
			close(stopBook)
			close(stopTrade)
			close(stopMark)
		}()
		return ch, nil
	})
	return out, nil
}

// SubscribePrivateFills 通过用户数据流推送成交回报, 每30分钟续期listenKey。
func (g *BinanceGateway) SubscribePrivateFills(ctx context.Context) (<-chan models.FillEvent, error) {
	opts := SupervisorOptions{Name: "fills", Logger: g.logger}

	out := Resubscribe(ctx, opts, func(ctx context.Context) (<-chan models.FillEvent, error) {
		listenKey, err := g.client.NewStartUserStreamService().Do(ctx)
		if err != nil {
			return nil, translateBinanceError(err)
		}

		ch := make(chan models.FillEvent, 64)

		done, stop, err := futures.WsUserDataServe(listenKey, func(ev *futures.WsUserDataEvent) {
			if ev.Event != futures.UserDataEventTypeOrderTradeUpdate {
				return
			}
			u := ev.OrderTradeUpdate
			if u.ExecutionType != "TRADE" || u.Status != futures.OrderStatusTypeFilled {
				return
			}
			price, err1 := strconv.ParseFloat(u.LastFilledPrice, 64)
			qty, err2 := strconv.ParseFloat(u.LastFilledQty, 64)
			if err1 != nil || err2 != nil {
				g.logger.Warnf("成交回报价格解析失败: %+v", u)
				return
			}
			side := models.Buy
			if u.Side == futures.SideTypeSell {
				side = models.Sell
			}
			fill := models.FillEvent{
				FillID:   fmt.Sprintf("%d-%d", u.ID, u.TradeID),
				OrderID:  strconv.FormatInt(u.ID, 10),
				Symbol:   u.Symbol,
				Side:     side,
				Price:    price,
				Quantity: qty,
				IsTaker:  !u.IsMaker,
				Time:     time.UnixMilli(u.TradeTime),
			}
			select {
			case ch <- fill:
			case <-ctx.Done():
			}
		}, func(err error) {
			g.logger.Warnf("Binance用户数据流错误: %v", err)
		})
		if err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		go func() {
			defer close(ch)
			keepalive := time.NewTicker(30 * time.Minute)
			defer keepalive.Stop()
			for {
				select {
				case <-ctx.Done():
					close(stop)
					return
				case <-done:
					return
				case <-keepalive.C:
					if err := g.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
						g.logger.Warnf("listenKey续期失败: %v", err)
					}
				}
			}
		}()
		return ch, nil
	})
	return out, nil
}

// Close 无需释放长连接, 连接的生命周期由各自的订阅context管理。
func (g *BinanceGateway) Close() error {
	return nil
}
