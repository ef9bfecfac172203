package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"kuma-grid-bot-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const broadcastInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from anywhere on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes a dashboard snapshot of every bot to all connected websocket
// clients once per second.
type Hub struct {
	logger *zap.SugaredLogger
	snaps  func() []models.Snapshot

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a hub fed by the given snapshot source.
func NewHub(snaps func() []models.Snapshot, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger:  logger,
		snaps:   snaps,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Run broadcasts until the context ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcast()
		}
	}
}

// Serve upgrades one HTTP request to a websocket client. The read loop only
// drains control frames; the dashboard never sends data.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Infof("dashboard client connected (%d total)", n)

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}

type statsMessage struct {
	Type string                           `json:"type"`
	Data map[string]models.DashboardStats `json:"data"`
}

func (h *Hub) broadcast() {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	msg := statsMessage{Type: "stats", Data: make(map[string]models.DashboardStats)}
	for _, snap := range h.snaps() {
		msg.Data[snap.BotID] = dashboardStats(snap)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("encode dashboard stats: %v", err)
		return
	}

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(conn)
		}
	}
}

// dashboardStats converts an engine snapshot into the wire shape the
// dashboard frontend renders.
func dashboardStats(s models.Snapshot) models.DashboardStats {
	var uptime int64
	if s.Status == models.StatusRunning && !s.StartTime.IsZero() {
		uptime = int64(time.Since(s.StartTime).Seconds())
	}
	return models.DashboardStats{
		Uptime:       uptime,
		TotalPnL:     fmt.Sprintf("%.4f", s.TotalPnL),
		TotalVolume:  fmt.Sprintf("%.4f", s.TotalVolume),
		LastPrice:    s.LastPrice,
		PositionQty:  s.Position.Quantity,
		GridLevel:    s.GridLevel,
		ActiveOrders: s.ActiveOrders,
		RecentTrades: s.RecentTrades,
	}
}
