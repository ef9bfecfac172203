package config

import (
	"os"
	"path/filepath"
	"testing"

	"kuma-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBot() models.BotConfig {
	c := models.BotConfig{
		Symbol:          "BTC-USD",
		InitialQuantity: 0.001,
		BaseIncrement:   0.0005,
		IncrementStep:   0.0001,
		InitialSpread:   50,
		SpreadIncrement: 10,
		ClosingSpread:   30,
		MaxPosition:     1,
	}
	c.ApplyDefaults()
	return c
}

func TestValidateBotConfig(t *testing.T) {
	good := validBot()
	require.NoError(t, ValidateBotConfig(&good))

	cases := []struct {
		name   string
		field  string
		mutate func(*models.BotConfig)
	}{
		{"unknown symbol", "symbol", func(c *models.BotConfig) { c.Symbol = "DOGE-USD" }},
		{"bad venue", "venue", func(c *models.BotConfig) { c.Venue = "ftx" }},
		{"zero quantity", "initial_quantity", func(c *models.BotConfig) { c.InitialQuantity = 0 }},
		{"zero spread", "initial_spread", func(c *models.BotConfig) { c.InitialSpread = 0 }},
		{"zero closing spread", "closing_spread", func(c *models.BotConfig) { c.ClosingSpread = 0 }},
		{"zero max position", "max_position", func(c *models.BotConfig) { c.MaxPosition = 0 }},
		{"positive stop loss", "stop_loss", func(c *models.BotConfig) { c.StopLoss = 10 }},
		{"negative take profit", "take_profit", func(c *models.BotConfig) { c.TakeProfit = -10 }},
		{"weights off", "base_price_weights", func(c *models.BotConfig) {
			c.BasePriceWeights = models.BasePriceWeights{Last: 0.5, Mid: 0.5, Index: 0.5}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validBot()
			tc.mutate(&c)
			err := ValidateBotConfig(&c)
			require.Error(t, err)
			var cfgErr *models.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"api_url": "https://api.example.test/v1",
		"ws_url": "wss://ws.example.test/v1",
		"bots": [{
			"symbol": "ETH-USD",
			"initial_quantity": 0.01,
			"base_increment": 0.005,
			"increment_step": 0.001,
			"initial_spread": 5,
			"spread_increment": 1,
			"closing_spread": 3,
			"max_position": 10
		}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 1)

	bot := cfg.Bots[0]
	assert.Equal(t, "kuma", bot.Venue)
	assert.InDelta(t, models.DefaultMakerFeeRate, bot.MakerFeeRate, 1e-12)
	assert.InDelta(t, models.DefaultTakerFeeRate, bot.TakerFeeRate, 1e-12)
	assert.Equal(t, models.DefaultMinOrderIntervalMs, bot.MinOrderIntervalMs)
	assert.InDelta(t, 0.4, bot.BasePriceWeights.Last, 1e-12)
	assert.InDelta(t, 0.2, bot.BasePriceWeights.Index, 1e-12)
}

func TestLoadConfigRejectsInvalidBot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"bots": [{"symbol": "BTC-USD", "initial_quantity": 0}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
