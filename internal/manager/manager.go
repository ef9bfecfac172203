// Package manager owns the set of bot engines of the process: creation,
// lifecycle control, config updates and shared resources (trade store,
// gateway construction per venue).
package manager

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	"kuma-grid-bot-go/internal/config"
	"kuma-grid-bot-go/internal/engine"
	"kuma-grid-bot-go/internal/gateway"
	"kuma-grid-bot-go/internal/history"
	"kuma-grid-bot-go/internal/models"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// GatewayFactory builds an OrderGateway for a venue name. Injected so tests
// run against in-memory gateways.
type GatewayFactory func(venue string) (gateway.OrderGateway, error)

// Credentials carries the venue API keys read from the environment.
type Credentials struct {
	KumaAPIKey        string
	KumaAPISecret     string
	KumaWalletAddress string
	BinanceAPIKey     string
	BinanceAPISecret  string
}

// DefaultGatewayFactory builds the real venue gateways.
func DefaultGatewayFactory(cfg *models.Config, creds Credentials, logger *zap.SugaredLogger) GatewayFactory {
	return func(venue string) (gateway.OrderGateway, error) {
		switch venue {
		case "kuma":
			return gateway.NewKumaGateway(
				creds.KumaAPIKey, creds.KumaAPISecret, creds.KumaWalletAddress,
				cfg.APIURL, cfg.WSURL, logger), nil
		case "binance":
			return gateway.NewBinanceGateway(
				creds.BinanceAPIKey, creds.BinanceAPISecret, cfg.Sandbox, logger), nil
		default:
			return nil, fmt.Errorf("unknown venue %q", venue)
		}
	}
}

type botEntry struct {
	engine  *engine.GridEngine
	gateway gateway.OrderGateway
	cfg     models.BotConfig
}

// Manager is the registry of bot engines, keyed by bot id.
type Manager struct {
	logger  *zap.SugaredLogger
	store   *history.Store
	factory GatewayFactory

	mu   sync.Mutex
	bots map[string]*botEntry
}

// New creates an empty manager.
func New(store *history.Store, factory GatewayFactory, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		logger:  logger,
		store:   store,
		factory: factory,
		bots:    make(map[string]*botEntry),
	}
}

// newBotID returns a short random base62 id.
func newBotID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return base62.EncodeToString(b[:])
}

// Create validates the config, builds the gateway for its venue and registers
// a stopped engine. Returns the assigned bot id.
func (m *Manager) Create(cfg models.BotConfig) (string, error) {
	cfg.ApplyDefaults()
	if err := config.ValidateBotConfig(&cfg); err != nil {
		return "", err
	}
	if cfg.ID == "" {
		cfg.ID = newBotID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bots[cfg.ID]; exists {
		return "", fmt.Errorf("bot %s already exists", cfg.ID)
	}

	gw, err := m.factory(cfg.Venue)
	if err != nil {
		return "", err
	}
	eng, err := engine.New(cfg, gw, m.store.Bot(cfg.ID), m.logger.Named(cfg.ID))
	if err != nil {
		gw.Close()
		return "", err
	}

	m.bots[cfg.ID] = &botEntry{engine: eng, gateway: gw, cfg: cfg}
	m.logger.Infof("bot %s created: %s on %s", cfg.ID, cfg.Symbol, cfg.Venue)
	return cfg.ID, nil
}

func (m *Manager) entry(id string) (*botEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bots[id]
	if !ok {
		return nil, fmt.Errorf("bot %s not found", id)
	}
	return e, nil
}

// Start launches a bot's event loop.
func (m *Manager) Start(ctx context.Context, id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	return e.engine.Start(ctx)
}

// Stop halts a bot. Idempotent.
func (m *Manager) Stop(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	return e.engine.Stop()
}

// Reset clears a stopped bot's state and trade history.
func (m *Manager) Reset(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	return e.engine.Reset()
}

// UpdateConfig validates and applies new parameters to a stopped bot.
func (m *Manager) UpdateConfig(id string, cfg models.BotConfig) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := config.ValidateBotConfig(&cfg); err != nil {
		return err
	}
	if err := e.engine.UpdateConfig(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	cfg.ID = id
	e.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Delete stops a bot, releases its gateway and removes it from the registry.
// The trade history stays in the store until explicitly cleared.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	e, ok := m.bots[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("bot %s not found", id)
	}
	delete(m.bots, id)
	m.mu.Unlock()

	if err := e.engine.Stop(); err != nil {
		m.logger.Warnf("stopping bot %s during delete: %v", id, err)
	}
	if err := e.gateway.Close(); err != nil {
		m.logger.Warnf("closing gateway of bot %s: %v", id, err)
	}
	m.logger.Infof("bot %s deleted", id)
	return nil
}

// Snapshot returns the state of one bot.
func (m *Manager) Snapshot(id string) (models.Snapshot, error) {
	e, err := m.entry(id)
	if err != nil {
		return models.Snapshot{}, err
	}
	return e.engine.Snapshot(), nil
}

// Snapshots returns the state of every bot, ordered by id.
func (m *Manager) Snapshots() []models.Snapshot {
	m.mu.Lock()
	ids := make([]string, 0, len(m.bots))
	entries := make([]*botEntry, 0, len(m.bots))
	for id, e := range m.bots {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	m.mu.Unlock()

	sort.Sort(byID{ids, entries})
	out := make([]models.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.engine.Snapshot())
	}
	return out
}

// Trades returns a bot's recent trades, newest first.
func (m *Manager) Trades(id string, limit int) ([]models.Trade, error) {
	if _, err := m.entry(id); err != nil {
		return nil, err
	}
	return m.store.Bot(id).Recent(limit)
}

// Config returns a bot's current parameters.
func (m *Manager) Config(id string) (models.BotConfig, error) {
	e, err := m.entry(id)
	if err != nil {
		return models.BotConfig{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.cfg, nil
}

// Shutdown stops every bot and closes every gateway.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*botEntry, 0, len(m.bots))
	for _, e := range m.bots {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		if err := e.engine.Stop(); err != nil {
			m.logger.Warnf("stopping bot on shutdown: %v", err)
		}
		if err := e.gateway.Close(); err != nil {
			m.logger.Warnf("closing gateway on shutdown: %v", err)
		}
	}
	m.logger.Info("all bots stopped")
}

type byID struct {
	ids     []string
	entries []*botEntry
}

func (s byID) Len() int           { return len(s.ids) }
func (s byID) Less(i, j int) bool { return s.ids[i] < s.ids[j] }
func (s byID) Swap(i, j int) {
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
	s.entries[i], s.entries[j] = s.entries[j], s.entries[i]
}
