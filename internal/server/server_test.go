package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kuma-grid-bot-go/internal/gateway"
	"kuma-grid-bot-go/internal/history"
	"kuma-grid-bot-go/internal/manager"
	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGateway struct{}

func (stubGateway) CreateOrder(context.Context, gateway.OrderRequest) (string, error) {
	return "1", nil
}
func (stubGateway) CancelOrders(context.Context, string, []string) error { return nil }
func (stubGateway) SubscribeMarketTicks(context.Context, string) (<-chan models.Tick, error) {
	return make(chan models.Tick), nil
}
func (stubGateway) SubscribePrivateFills(context.Context) (<-chan models.FillEvent, error) {
	return make(chan models.FillEvent), nil
}
func (stubGateway) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()
	store, err := history.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr := manager.New(store, func(string) (gateway.OrderGateway, error) {
		return stubGateway{}, nil
	}, zap.NewNop().Sugar())
	t.Cleanup(mgr.Shutdown)

	return New(context.Background(), ":0", mgr, zap.NewNop().Sugar()), mgr
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func validBotConfig() models.BotConfig {
	return models.BotConfig{
		Symbol:          "BTC-USD",
		InitialQuantity: 0.001,
		BaseIncrement:   0.0005,
		IncrementStep:   0.0001,
		InitialSpread:   50,
		SpreadIncrement: 10,
		ClosingSpread:   30,
		MaxPosition:     1,
	}
}

func createBot(t *testing.T, s *Server) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/bots", validBotConfig())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.ID)
	return res.ID
}

func TestServerHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerCreateAndListBots(t *testing.T) {
	s, _ := newTestServer(t)

	id := createBot(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/bots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snaps []models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, id, snaps[0].BotID)
	assert.Equal(t, models.StatusStopped, snaps[0].Status)
}

func TestServerCreateRejectsBadConfig(t *testing.T) {
	s, _ := newTestServer(t)

	bad := validBotConfig()
	bad.InitialQuantity = 0
	w := doJSON(t, s, http.MethodPost, "/api/bots", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerLifecycleEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	id := createBot(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/bots/"+id+"/start", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Starting an already running bot conflicts.
	w = doJSON(t, s, http.MethodPost, "/api/bots/"+id+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Config updates are refused while running.
	w = doJSON(t, s, http.MethodPut, "/api/bots/"+id+"/config", validBotConfig())
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/bots/"+id+"/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPut, "/api/bots/"+id+"/config", validBotConfig())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, s, http.MethodPost, "/api/bots/"+id+"/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/bots/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/bots/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerBotTrades(t *testing.T) {
	s, _ := newTestServer(t)
	id := createBot(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/bots/"+id+"/trades?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trades []models.Trade
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	assert.Empty(t, trades)

	w = doJSON(t, s, http.MethodGet, "/api/bots/unknown/trades", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
