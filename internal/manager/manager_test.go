package manager

import (
	"context"
	"testing"

	"kuma-grid-bot-go/internal/gateway"
	"kuma-grid-bot-go/internal/history"
	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubGateway satisfies OrderGateway with feeds that never emit, enough for
// lifecycle tests.
type stubGateway struct {
	ticks chan models.Tick
	fills chan models.FillEvent
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		ticks: make(chan models.Tick),
		fills: make(chan models.FillEvent),
	}
}

func (s *stubGateway) CreateOrder(context.Context, gateway.OrderRequest) (string, error) {
	return "1", nil
}

func (s *stubGateway) CancelOrders(context.Context, string, []string) error { return nil }

func (s *stubGateway) SubscribeMarketTicks(context.Context, string) (<-chan models.Tick, error) {
	return s.ticks, nil
}

func (s *stubGateway) SubscribePrivateFills(context.Context) (<-chan models.FillEvent, error) {
	return s.fills, nil
}

func (s *stubGateway) Close() error { return nil }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := history.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	factory := func(venue string) (gateway.OrderGateway, error) {
		return newStubGateway(), nil
	}
	return New(store, factory, zap.NewNop().Sugar())
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

func TestManagerCreateAssignsID(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create(validBotConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap, err := m.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", snap.Symbol)
	assert.Equal(t, models.StatusStopped, snap.Status)
}

func TestManagerCreateRejectsInvalidConfig(t *testing.T) {
	m := newTestManager(t)

	bad := validBotConfig()
	bad.InitialQuantity = 0
	_, err := m.Create(bad)
	require.Error(t, err)
	var cfgErr *models.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, m.Snapshots())
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(validBotConfig())
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx, id))
	assert.Error(t, m.Start(ctx, id), "double start must fail")

	snap, err := m.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, snap.Status)

	require.NoError(t, m.Stop(id))
	require.NoError(t, m.Stop(id), "stop is idempotent")
	require.NoError(t, m.Reset(id))

	cfg, err := m.Config(id)
	require.NoError(t, err)
	cfg.InitialSpread = 80
	require.NoError(t, m.UpdateConfig(id, cfg))

	require.NoError(t, m.Delete(id))
	_, err = m.Snapshot(id)
	assert.Error(t, err)
}

func TestManagerUnknownBot(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	assert.Error(t, m.Start(ctx, "nope"))
	assert.Error(t, m.Stop("nope"))
	assert.Error(t, m.Delete("nope"))
	_, err := m.Trades("nope", 10)
	assert.Error(t, err)
}

func TestManagerSnapshotsOrdered(t *testing.T) {
	m := newTestManager(t)

	a := validBotConfig()
	a.ID = "bbb"
	b := validBotConfig()
	b.ID = "aaa"
	_, err := m.Create(a)
	require.NoError(t, err)
	_, err = m.Create(b)
	require.NoError(t, err)

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "aaa", snaps[0].BotID)
	assert.Equal(t, "bbb", snaps[1].BotID)

	m.Shutdown()
}
