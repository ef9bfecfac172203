package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kuma-grid-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Venue error codes that map onto the engine's submission policy.
const (
	kumaCodeRateLimited       = "EXCEEDED_RATE_LIMIT"
	kumaCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// KumaGateway 实现了 OrderGateway 接口，用于与真实的 Kuma 交易所进行交互。
type KumaGateway struct {
	apiKey        string
	apiSecret     string
	walletAddress string
	baseURL       string
	wsBaseURL     string
	httpClient    *http.Client
	logger        *zap.SugaredLogger
}

// NewKumaGateway 创建一个新的 KumaGateway 实例。
func NewKumaGateway(apiKey, apiSecret, walletAddress, baseURL, wsBaseURL string, logger *zap.SugaredLogger) *KumaGateway {
	return &KumaGateway{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		walletAddress: walletAddress,
		baseURL:       baseURL,
		wsBaseURL:     wsBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// nonce returns the time-based UUID the venue requires on every
// authenticated request.
func nonce() string {
	id, err := uuid.NewUUID() // v1
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// sign 对请求载荷进行HMAC-SHA256签名。
func (g *KumaGateway) sign(payload []byte) string {
	h := hmac.New(sha256.New, []byte(g.apiSecret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

type kumaAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// doRequest 是一个通用的请求处理函数。GET请求对query签名, 带body的请求对
// JSON body签名, 与交易所的HMAC约定一致。
func (g *KumaGateway) doRequest(ctx context.Context, method, endpoint string, query url.Values, body any) ([]byte, error) {
	fullURL := g.baseURL + endpoint

	var req *http.Request
	var err error
	var signed []byte

	if body != nil {
		signed, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(signed))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		encoded := ""
		if query != nil {
			encoded = query.Encode()
			fullURL = fullURL + "?" + encoded
		}
		signed = []byte(encoded)
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("KUMA-API-KEY", g.apiKey)
	req.Header.Set("KUMA-HMAC-SIGNATURE", g.sign(signed))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		var apiErr kumaAPIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != "" {
			return data, translateKumaError(apiErr)
		}
		return data, &Error{Kind: KindOther, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(data))}
	}

	return data, nil
}

func translateKumaError(apiErr kumaAPIError) *Error {
	kind := KindOther
	switch apiErr.Code {
	case kumaCodeRateLimited:
		kind = KindRateLimited
	case kumaCodeInsufficientFunds:
		kind = KindInsufficientFunds
	}
	return &Error{Kind: kind, Code: apiErr.Code, Message: apiErr.Message}
}

// --- OrderGateway 接口实现 ---

// CreateOrder 下限价单。价格和数量在这里转换为每个交易对的wire精度,
// 引擎内部不做字符串格式化。
func (g *KumaGateway) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	rules, err := models.RulesFor(req.Market)
	if err != nil {
		return "", &Error{Kind: KindOther, Message: err.Error()}
	}

	params := map[string]any{
		"nonce":    nonce(),
		"wallet":   g.walletAddress,
		"market":   req.Market,
		"type":     "limit",
		"side":     string(req.Side),
		"quantity": rules.FormatQuantity(req.Quantity),
		"price":    rules.FormatPrice(req.Price),
	}
	body := map[string]any{"parameters": params}

	data, err := g.doRequest(ctx, http.MethodPost, "/orders", nil, body)
	if err != nil {
		return "", err
	}

	var res struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return "", &Error{Kind: KindOther, Message: fmt.Sprintf("decode order response: %v", err)}
	}
	if res.OrderID == "" {
		return "", &Error{Kind: KindOther, Message: "order response missing orderId"}
	}
	return res.OrderID, nil
}

// CancelOrders 取消订单。只尽力而为, 失败由调用方记录日志。
func (g *KumaGateway) CancelOrders(ctx context.Context, market string, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	params := map[string]any{
		"nonce":    nonce(),
		"wallet":   g.walletAddress,
		"market":   market,
		"orderIds": orderIDs,
	}
	body := map[string]any{"parameters": params}
	_, err := g.doRequest(ctx, http.MethodDelete, "/orders", nil, body)
	return err
}

// wsToken 获取私有订阅所需的WebSocket鉴权token。
func (g *KumaGateway) wsToken(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("nonce", nonce())
	query.Set("wallet", g.walletAddress)

	data, err := g.doRequest(ctx, http.MethodGet, "/wsToken", query, nil)
	if err != nil {
		return "", err
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return "", &Error{Kind: KindOther, Message: fmt.Sprintf("decode wsToken response: %v", err)}
	}
	return res.Token, nil
}

// SubscribeMarketTicks 订阅一个市场的L1盘口推送, 断线后由supervisor以固定
// 1秒间隔重连。
func (g *KumaGateway) SubscribeMarketTicks(ctx context.Context, market string) (<-chan models.Tick, error) {
	opts := SupervisorOptions{Name: "ticks:" + market, Logger: g.logger}
	out := Resubscribe(ctx, opts, func(ctx context.Context) (<-chan models.Tick, error) {
		wsURL := fmt.Sprintf("%s/%s@l1orderbook", g.wsBaseURL, market)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		ch := make(chan models.Tick, 64)
		go func() {
			defer close(ch)
			defer conn.Close()
			g.readLoop(ctx, conn, func(msg models.WSMessage) {
				if msg.Type != models.MsgTypeL1Orderbook {
					return
				}
				var book models.L1OrderbookData
				if err := json.Unmarshal(msg.Data, &book); err != nil {
					g.logger.Warnf("解析L1盘口消息失败: %v", err)
					return
				}
				tick, err := tickFromL1(market, book)
				if err != nil {
					g.logger.Warnf("L1盘口价格转换失败: %v", err)
					return
				}
				select {
				case ch <- tick:
				default:
					// Drop on backpressure; ticks are idempotent snapshots.
				}
			})
		}()
		return ch, nil
	})
	return out, nil
}

// SubscribePrivateFills 订阅私有订单推送。每次重连都重新获取token。
func (g *KumaGateway) SubscribePrivateFills(ctx context.Context) (<-chan models.FillEvent, error) {
	opts := SupervisorOptions{Name: "fills", Logger: g.logger}
	out := Resubscribe(ctx, opts, func(ctx context.Context) (<-chan models.FillEvent, error) {
		token, err := g.wsToken(ctx)
		if err != nil {
			return nil, err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.wsBaseURL, nil)
		if err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		sub := map[string]any{
			"method":        "subscribe",
			"token":         token,
			"subscriptions": []string{"orders"},
		}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return nil, &Error{Kind: KindTransientNetwork, Message: err.Error()}
		}

		ch := make(chan models.FillEvent, 64)
		go func() {
			defer close(ch)
			defer conn.Close()
			g.readLoop(ctx, conn, func(msg models.WSMessage) {
				if msg.Type != models.MsgTypeOrders {
					return
				}
				var fill models.OrderFillData
				if err := json.Unmarshal(msg.Data, &fill); err != nil {
					g.logger.Warnf("解析订单推送失败: %v", err)
					return
				}
				// Only terminal fills enter the engine.
				if fill.ExecType != "fill" || fill.OrderStatus != "filled" {
					return
				}
				ev, err := fillFromOrderData(fill)
				if err != nil {
					g.logger.Warnf("订单推送价格转换失败: %v", err)
					return
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
				}
			})
		}()
		return ch, nil
	})
	return out, nil
}

// readLoop 为一个已建立的连接处理消息，并实现ping/pong心跳机制。
// 返回即表示连接已不可用, 由调用方负责重连。
func (g *KumaGateway) readLoop(ctx context.Context, conn *websocket.Conn, handle func(models.WSMessage)) {
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()
	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				g.logger.Warnf("读取WebSocket消息失败: %v", err)
			}
			return
		}
		var msg models.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.logger.Warnf("解析WebSocket消息失败: %v", err)
			continue
		}
		if msg.Type == models.MsgTypeError {
			var wsErr models.WSErrorData
			if json.Unmarshal(msg.Data, &wsErr) == nil {
				g.logger.Warnf("交易所推送错误: code=%s msg=%s", wsErr.Code, wsErr.Message)
			}
			continue
		}
		handle(msg)
	}
}

func tickFromL1(market string, book models.L1OrderbookData) (models.Tick, error) {
	lp, err := book.LastPrice.Float64()
	if err != nil {
		return models.Tick{}, err
	}
	mp, err := book.MidPrice.Float64()
	if err != nil {
		return models.Tick{}, err
	}
	ip, err := book.IndexPrice.Float64()
	if err != nil {
		return models.Tick{}, err
	}
	return models.Tick{
		Symbol:     market,
		LastPrice:  lp,
		MidPrice:   mp,
		IndexPrice: ip,
		Time:       time.Now(),
	}, nil
}

func fillFromOrderData(fill models.OrderFillData) (models.FillEvent, error) {
	price, err := fill.Price.Float64()
	if err != nil {
		return models.FillEvent{}, err
	}
	qty, err := fill.Quantity.Float64()
	if err != nil {
		return models.FillEvent{}, err
	}
	fillID := fill.FillID
	if fillID == "" {
		// Older stream versions omit the execution id; fall back to the
		// order id so de-duplication still has a stable key.
		fillID = fill.OrderID
	}
	ts := time.Now()
	if fill.TradeTimeMs > 0 {
		ts = time.UnixMilli(fill.TradeTimeMs)
	}
	return models.FillEvent{
		FillID:   fillID,
		OrderID:  fill.OrderID,
		Symbol:   fill.Market,
		Side:     models.Side(strings.ToLower(fill.Side)),
		Price:    price,
		Quantity: qty,
		IsTaker:  fill.Liquidity == "0",
		Time:     ts,
	}, nil
}

// Close releases the HTTP client's idle connections. WebSocket connections
// are owned by their subscription contexts.
func (g *KumaGateway) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}
