package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"kuma-grid-bot-go/internal/gateway"
	"kuma-grid-bot-go/internal/models"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// TradeLog is the persistence surface the engine writes each trade to and
// reloads its lifetime totals from on start.
type TradeLog interface {
	Append(trade models.Trade) error
	Recent(limit int) ([]models.Trade, error)
	Totals() (pnl float64, volume float64, err error)
	Clear() error
}

const (
	recentTradesLimit = 50
	rateLimitRetries  = 3
)

var tradeSeq uint64

// newTradeID returns a short unique id for a trade record.
func newTradeID() string {
	var b [12]byte
	binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint32(b[8:], uint32(atomic.AddUint64(&tradeSeq, 1)))
	return base62.EncodeToString(b[:])
}

// GridEngine runs the grid strategy for one market: wait flat, open a
// straddle around the blended base price, escalate down the ladder while the
// market moves against the position, and flatten everything when the closing
// order fills. All bookkeeping happens on the single event-loop goroutine;
// the mutex only makes snapshots safe for concurrent readers.
type GridEngine struct {
	id     string
	logger *zap.SugaredLogger
	gw     gateway.OrderGateway
	trades TradeLog

	mu        sync.Mutex
	cfg       models.BotConfig
	rules     models.SymbolRules
	ladder    Ladder
	guard     RiskGuard
	ledger    PositionLedger
	tracker   *OrderTracker
	gridLevel int

	status       models.BotStatus
	statusReason string
	lastPrice    float64
	totalPnL     float64
	totalVolume  float64
	stats        models.Stats
	recent       []models.Trade
	startTime    time.Time

	// Order submission is serialized separately so the straddle goroutine
	// and the event loop share one submission interval.
	orderMu     sync.Mutex
	lastOrderAt time.Time

	placingStraddle atomic.Bool
	// finalClose marks an operator-requested stop, which flattens the
	// position with one last closing order. Risk stops and feed loss
	// cancel everything instead.
	finalClose atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a stopped engine for one bot configuration. The configuration
// must already be validated.
func New(cfg models.BotConfig, gw gateway.OrderGateway, trades TradeLog, logger *zap.SugaredLogger) (*GridEngine, error) {
	rules, err := models.RulesFor(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	return &GridEngine{
		id:      cfg.ID,
		logger:  logger,
		gw:      gw,
		trades:  trades,
		cfg:     cfg,
		rules:   rules,
		ladder:  NewLadder(cfg),
		guard:   NewRiskGuard(cfg),
		tracker: NewOrderTracker(),
		status:  models.StatusStopped,
	}, nil
}

// ID returns the bot id.
func (e *GridEngine) ID() string { return e.id }

// Status returns the engine's current run state.
func (e *GridEngine) Status() models.BotStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start subscribes to the market and private feeds and launches the event
// loop. Lifetime P&L and volume are reloaded from the trade log so a restart
// continues the session totals instead of resetting them.
func (e *GridEngine) Start(parent context.Context) error {
	e.mu.Lock()
	if e.status == models.StatusRunning {
		e.mu.Unlock()
		return fmt.Errorf("bot %s is already running", e.id)
	}

	pnl, volume, err := e.trades.Totals()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("reload trade totals: %w", err)
	}
	e.totalPnL = pnl
	e.totalVolume = volume
	if recent, err := e.trades.Recent(recentTradesLimit); err == nil {
		e.recent = recent
		e.stats = recomputeStats(recent, pnl, volume)
	}

	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.status = models.StatusRunning
	e.statusReason = ""
	e.startTime = time.Now()
	symbol := e.cfg.Symbol
	e.mu.Unlock()

	ticks, err := e.gw.SubscribeMarketTicks(ctx, symbol)
	if err != nil {
		cancel()
		e.setStatus(models.StatusStopped, "")
		return fmt.Errorf("subscribe ticks: %w", err)
	}
	fills, err := e.gw.SubscribePrivateFills(ctx)
	if err != nil {
		cancel()
		e.setStatus(models.StatusStopped, "")
		return fmt.Errorf("subscribe fills: %w", err)
	}

	e.logger.Infof("bot %s started on %s, resumed totals pnl=%.4f volume=%.4f",
		e.id, symbol, pnl, volume)
	go e.run(ctx, ticks, fills)
	return nil
}

// Stop halts the event loop, cancels all resting orders and marks the engine
// stopped. Safe to call repeatedly and on a never-started engine.
func (e *GridEngine) Stop() error {
	e.mu.Lock()
	if e.status != models.StatusRunning || e.cancel == nil {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	e.finalClose.Store(true)
	cancel()
	<-done
	return nil
}

// Reset clears position, orders, level, totals and the trade history. Only
// allowed while stopped: resetting live bookkeeping would desynchronize the
// engine from the exchange.
func (e *GridEngine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == models.StatusRunning {
		return fmt.Errorf("bot %s must be stopped before reset", e.id)
	}
	if err := e.trades.Clear(); err != nil {
		return fmt.Errorf("clear trade history: %w", err)
	}
	e.ledger.Reset()
	e.tracker = NewOrderTracker()
	e.gridLevel = 0
	e.totalPnL = 0
	e.totalVolume = 0
	e.stats = models.Stats{}
	e.recent = nil
	e.statusReason = ""
	return nil
}

// UpdateConfig swaps the strategy parameters. Only allowed while stopped, and
// the symbol is immutable for the lifetime of the engine.
func (e *GridEngine) UpdateConfig(cfg models.BotConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == models.StatusRunning {
		return fmt.Errorf("bot %s must be stopped before config update", e.id)
	}
	if cfg.Symbol != e.cfg.Symbol {
		return &models.ConfigError{Field: "symbol", Reason: "cannot be changed after creation"}
	}
	cfg.ID = e.id
	e.cfg = cfg
	e.ladder = NewLadder(cfg)
	e.guard = NewRiskGuard(cfg)
	return nil
}

// Snapshot returns a consistent copy of the externally visible state.
func (e *GridEngine) Snapshot() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	recent := make([]models.Trade, len(e.recent))
	copy(recent, e.recent)
	return models.Snapshot{
		BotID:        e.id,
		Symbol:       e.cfg.Symbol,
		Status:       e.status,
		StatusReason: e.statusReason,
		Position:     e.ledger.Snapshot(),
		GridLevel:    e.gridLevel,
		ActiveOrders: e.tracker.ActiveOrders(),
		LastPrice:    e.lastPrice,
		TotalPnL:     e.totalPnL,
		TotalVolume:  e.totalVolume,
		RecentTrades: recent,
		Stats:        e.stats,
		StartTime:    e.startTime,
	}
}

func (e *GridEngine) setStatus(status models.BotStatus, reason string) {
	e.mu.Lock()
	e.status = status
	e.statusReason = reason
	e.mu.Unlock()
}

// run is the event loop. It owns all state transitions; ticks and fills are
// never processed concurrently with each other.
func (e *GridEngine) run(ctx context.Context, ticks <-chan models.Tick, fills <-chan models.FillEvent) {
	defer close(e.done)
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				e.logger.Errorf("bot %s: market feed is down, stopping", e.id)
				e.setStatus(models.StatusError, "market feed lost")
				return
			}
			e.handleTick(ctx, tick)
		case fill, ok := <-fills:
			if !ok {
				e.logger.Errorf("bot %s: private feed is down, stopping", e.id)
				e.setStatus(models.StatusError, "private feed lost")
				return
			}
			if stop, reason := e.handleFill(ctx, fill); stop {
				e.logger.Warnf("bot %s: %s, stopping", e.id, reason)
				e.setStatus(models.StatusStopped, reason)
				return
			}
		}
	}
}

// shutdown cancels resting orders with a fresh short-lived context, since the
// run context is already gone by the time we get here. An operator-requested
// stop of an open position leaves one final closing order resting so the
// position can still flatten; risk stops and feed loss cancel everything.
func (e *GridEngine) shutdown() {
	e.mu.Lock()
	// Self-initiated stops (risk limits, feed loss) reach here without Stop
	// having cancelled the subscription context; release it so the feed
	// supervisors and their read loops wind down.
	if e.cancel != nil {
		e.cancel()
	}
	ids := e.tracker.ActiveOrderIDs()
	symbol := e.cfg.Symbol
	if e.status == models.StatusRunning {
		e.status = models.StatusStopped
	}
	var closePlan *plannedOrder
	if e.finalClose.Load() && !e.ledger.IsFlat() {
		side := e.ledger.Side()
		closePlan = &plannedOrder{
			side:  side.Opposite(),
			qty:   absFloat(e.ledger.Quantity()),
			price: e.rules.RoundPrice(e.ladder.ClosingPrice(e.ledger.AveragePrice(), side)),
			role:  models.RoleClosing,
		}
	}
	e.finalClose.Store(false)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(ids) > 0 {
		if err := e.gw.CancelOrders(ctx, symbol, ids); err != nil {
			e.logger.Warnf("bot %s: cancel on shutdown failed: %v", e.id, err)
		}
	}
	e.mu.Lock()
	e.tracker.ResetOrders()
	e.mu.Unlock()

	if closePlan != nil {
		req := gateway.OrderRequest{
			Market:   symbol,
			Side:     closePlan.side,
			Quantity: closePlan.qty,
			Price:    closePlan.price,
		}
		id, err := e.gw.CreateOrder(ctx, req)
		if err != nil {
			e.logger.Errorf("bot %s: final closing order failed, position left open: %v", e.id, err)
		} else {
			e.mu.Lock()
			e.tracker.Record(models.OrderRecord{
				OrderID:  id,
				Side:     closePlan.side,
				Quantity: closePlan.qty,
				Price:    closePlan.price,
				Role:     models.RoleClosing,
			})
			e.mu.Unlock()
			e.logger.Infof("bot %s: final closing order %s resting at %.4f", e.id, id, closePlan.price)
		}
	}
	e.logger.Infof("bot %s stopped", e.id)
}

// handleTick updates the mark price and, when the engine is flat with no
// resting orders, opens the initial straddle. Placement runs on its own
// goroutine so a slow submission never blocks fill processing; the atomic
// flag guarantees only one straddle is in flight.
func (e *GridEngine) handleTick(ctx context.Context, tick models.Tick) {
	e.mu.Lock()
	e.lastPrice = tick.LastPrice
	idle := e.status == models.StatusRunning && e.ledger.IsFlat() && e.tracker.Len() == 0
	base := e.cfg.BasePrice(tick)
	e.mu.Unlock()

	if !idle || base <= 0 {
		return
	}
	if !e.placingStraddle.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.placingStraddle.Store(false)
		e.placeStraddle(ctx, base)
	}()
}

// placeStraddle rests one buy and one sell around the base price. The sell is
// only attempted after the buy succeeded; if the sell then fails, the buy is
// cancelled so the engine returns cleanly to the flat state.
func (e *GridEngine) placeStraddle(ctx context.Context, base float64) {
	spread := e.ladder.SpreadAt(0)
	qty := e.ladder.QuantityAt(0)

	buyID, err := e.submitOrder(ctx, models.Buy, qty, base-spread, models.RoleInitial)
	if err != nil {
		e.logger.Warnf("bot %s: initial buy failed: %v", e.id, err)
		return
	}
	sellID, err := e.submitOrder(ctx, models.Sell, qty, base+spread, models.RoleInitial)
	if err != nil {
		e.logger.Warnf("bot %s: initial sell failed, cancelling buy leg: %v", e.id, err)
		e.cancelOrders(ctx, []string{buyID})
		return
	}
	e.logger.Infof("bot %s: straddle placed around %.4f, buy=%s sell=%s",
		e.id, base, buyID, sellID)
}

// submitOrder rounds the price to the symbol scale, enforces the minimum
// spacing between any two submissions, and applies the retry policy: rate
// limit errors retry the identical order after twice the spacing interval,
// insufficient funds abandons without retry. On success the order is recorded
// in the tracker before the id is returned.
func (e *GridEngine) submitOrder(ctx context.Context, side models.Side, qty, price float64, role models.OrderRole) (string, error) {
	price = e.rules.RoundPrice(price)
	if qty < e.rules.MinQuantity || price < e.rules.MinPrice {
		return "", fmt.Errorf("order below symbol minimums: qty=%.8f price=%.8f", qty, price)
	}
	interval := time.Duration(e.cfg.MinOrderIntervalMs) * time.Millisecond

	e.orderMu.Lock()
	defer e.orderMu.Unlock()

	if wait := interval - time.Since(e.lastOrderAt); wait > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	req := gateway.OrderRequest{Market: e.cfg.Symbol, Side: side, Quantity: qty, Price: price}
	for attempt := 1; ; attempt++ {
		id, err := e.gw.CreateOrder(ctx, req)
		e.lastOrderAt = time.Now()
		if err == nil {
			e.mu.Lock()
			e.tracker.Record(models.OrderRecord{
				OrderID:     id,
				Side:        side,
				Quantity:    qty,
				Price:       price,
				Role:        role,
				SubmittedAt: time.Now(),
			})
			e.mu.Unlock()
			e.logger.Infof("bot %s: %s %s %.8f @ %.4f placed, id=%s",
				e.id, role, side, qty, price, id)
			return id, nil
		}
		if gateway.IsRateLimited(err) && attempt < rateLimitRetries {
			e.logger.Warnf("bot %s: rate limited, retrying order in %v (attempt %d)",
				e.id, 2*interval, attempt)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(2 * interval):
			}
			continue
		}
		if gateway.IsInsufficientFunds(err) {
			e.logger.Warnf("bot %s: insufficient funds, abandoning %s %s order", e.id, role, side)
			return "", err
		}
		return "", err
	}
}

func (e *GridEngine) cancelOrders(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := e.gw.CancelOrders(ctx, e.cfg.Symbol, ids); err != nil {
		e.logger.Warnf("bot %s: cancel %v failed: %v", e.id, ids, err)
	}
	e.mu.Lock()
	for _, id := range ids {
		e.tracker.Remove(id)
	}
	e.mu.Unlock()
}

// handleFill is the heart of the state machine. Bookkeeping happens first
// under the lock; order placements and cancels execute afterwards so the
// gateway is never called while holding state. Returns stop=true when a risk
// threshold fired.
func (e *GridEngine) handleFill(ctx context.Context, fill models.FillEvent) (bool, string) {
	e.mu.Lock()

	if e.tracker.IsDuplicateFill(fill.FillID) {
		e.mu.Unlock()
		e.logger.Debugf("bot %s: duplicate fill %s ignored", e.id, fill.FillID)
		return false, ""
	}
	rec, known := e.tracker.Get(fill.OrderID)
	if !known {
		e.mu.Unlock()
		e.logger.Debugf("bot %s: fill for unknown order %s ignored", e.id, fill.OrderID)
		return false, ""
	}
	e.tracker.MarkFill(fill.FillID)

	// Fee is signed income: the maker rebate is negative as a rate, so it
	// adds to P&L, while taker fees subtract.
	feeRate := e.cfg.FeeRate(fill.IsTaker)
	feeIncome := -feeRate * fill.Price * fill.Quantity

	// Closing must be decided against the ledger as it was before this
	// fill; afterwards the position may be flat and the answer lost.
	isClosing := e.ledger.IsClosingFill(fill.Side)
	var pnlPtr *float64
	if isClosing {
		pnl := e.ledger.RealizedPnL(fill.Price, fill.Quantity)
		pnlPtr = &pnl
		e.totalPnL += pnl
	}

	posBefore := e.ledger.Quantity()
	e.ledger.ApplyFill(fill.Side, fill.Price, fill.Quantity)
	posAfter := e.ledger.Quantity()

	e.totalPnL += feeIncome
	e.totalVolume += fill.Price * fill.Quantity

	trade := models.Trade{
		ID:             newTradeID(),
		BotID:          e.id,
		Symbol:         e.cfg.Symbol,
		Side:           fill.Side,
		Price:          fill.Price,
		Quantity:       fill.Quantity,
		Cost:           fill.Price * fill.Quantity,
		Fee:            feeIncome,
		FeeRate:        feeRate,
		PnL:            pnlPtr,
		Timestamp:      fill.Time,
		OrderID:        fill.OrderID,
		FillID:         fill.FillID,
		GridLevel:      e.gridLevel,
		IsTaker:        fill.IsTaker,
		PositionBefore: posBefore,
		PositionAfter:  posAfter,
		TotalPnL:       e.totalPnL,
	}
	e.applyTradeStats(trade)

	// Sibling lookup must happen before the filled leg is removed, removal
	// clears the straddle slot the lookup keys on.
	sibling := e.tracker.InitialSibling(fill.OrderID)
	e.tracker.Remove(fill.OrderID)

	// Decide the follow-up orders while the state is still locked.
	var toCancel []string
	var toPlace []plannedOrder

	switch rec.Role {
	case models.RoleInitial:
		if sibling != "" {
			toCancel = append(toCancel, sibling)
		}
		e.gridLevel = 1
		toPlace = e.planActiveOrders(fill.Side, fill.Price)

	case models.RoleGrid:
		if closing := e.tracker.ClosingOrderID(); closing != "" {
			toCancel = append(toCancel, closing)
		}
		e.gridLevel++
		toPlace = e.planActiveOrders(e.ledger.Side(), fill.Price)

	case models.RoleClosing:
		toCancel = append(toCancel, e.tracker.ActiveOrderIDs()...)
		e.ledger.Reset()
		e.gridLevel = 0
		e.logger.Infof("bot %s: position closed, realized pnl=%.4f, cycle complete",
			e.id, derefPnL(pnlPtr))
	}

	stop, reason := e.guard.ShouldStop(e.totalPnL)
	e.mu.Unlock()

	if err := e.trades.Append(trade); err != nil {
		e.logger.Errorf("bot %s: persist trade failed: %v", e.id, err)
	}
	e.logger.Infof("bot %s: fill %s %s %.8f @ %.4f role=%s pnl=%v total=%.4f",
		e.id, fill.Side, e.cfg.Symbol, fill.Quantity, fill.Price, rec.Role,
		derefPnL(pnlPtr), trade.TotalPnL)

	e.cancelOrders(ctx, toCancel)
	if stop {
		return true, reason
	}
	// Placement runs off the loop: the submission spacing and rate-limit
	// backoff must delay only the orders themselves, never the processing of
	// queued ticks and fills.
	if len(toPlace) > 0 {
		go func() {
			for _, p := range toPlace {
				if _, err := e.submitOrder(ctx, p.side, p.qty, p.price, p.role); err != nil {
					e.logger.Warnf("bot %s: %s order failed: %v", e.id, p.role, err)
				}
			}
		}()
	}
	return false, ""
}

type plannedOrder struct {
	side  models.Side
	qty   float64
	price float64
	role  models.OrderRole
}

// planActiveOrders computes the closing order for the whole position and the
// next escalation order, in that order of priority. The closing price keys on
// the average entry price; the escalation price keys on the fill that
// triggered it. The escalation order is skipped, not failed, when a risk cap
// refuses it. Must be called with the state lock held and a non-flat ledger.
func (e *GridEngine) planActiveOrders(positionSide models.Side, fillPrice float64) []plannedOrder {
	avg := e.ledger.AveragePrice()
	posQty := e.ledger.Quantity()

	plans := []plannedOrder{{
		side:  positionSide.Opposite(),
		qty:   absFloat(posQty),
		price: e.ladder.ClosingPrice(avg, positionSide),
		role:  models.RoleClosing,
	}}

	gridQty := e.ladder.QuantityAt(e.gridLevel)
	if ok, reason := e.guard.AllowGridOrder(e.gridLevel, posQty, gridQty); !ok {
		e.logger.Warnf("bot %s: escalation skipped: %s", e.id, reason)
		return plans
	}
	plans = append(plans, plannedOrder{
		side:  positionSide,
		qty:   gridQty,
		price: e.ladder.GridPrice(fillPrice, positionSide, e.gridLevel),
		role:  models.RoleGrid,
	})
	return plans
}

func (e *GridEngine) applyTradeStats(trade models.Trade) {
	e.stats.TotalTrades++
	e.stats.TotalVolume = e.totalVolume
	e.stats.TotalPnL = e.totalPnL
	if trade.PnL != nil && *trade.PnL > 0 {
		e.stats.WinningTrades++
	}
	if trade.IsTaker {
		e.stats.Fees.Taker += trade.Fee
	} else {
		e.stats.Fees.Maker += trade.Fee
	}
	e.stats.Fees.Total += trade.Fee

	e.recent = append([]models.Trade{trade}, e.recent...)
	if len(e.recent) > recentTradesLimit {
		e.recent = e.recent[:recentTradesLimit]
	}
}

// recomputeStats rebuilds the aggregate counters from reloaded history.
func recomputeStats(trades []models.Trade, pnl, volume float64) models.Stats {
	s := models.Stats{TotalTrades: len(trades), TotalPnL: pnl, TotalVolume: volume}
	for _, t := range trades {
		if t.PnL != nil && *t.PnL > 0 {
			s.WinningTrades++
		}
		if t.IsTaker {
			s.Fees.Taker += t.Fee
		} else {
			s.Fees.Maker += t.Fee
		}
		s.Fees.Total += t.Fee
	}
	return s
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func derefPnL(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
