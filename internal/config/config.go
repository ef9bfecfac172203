package config

import (
	"encoding/json"
	"math"
	"os"

	"kuma-grid-bot-go/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	for i := range config.Bots {
		config.Bots[i].ApplyDefaults()
		if err := ValidateBotConfig(&config.Bots[i]); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// ValidateBotConfig rejects a bot config before it can reach an engine.
// A validation failure never mutates any state (the engine applies a new
// config only after it has passed here).
func ValidateBotConfig(c *models.BotConfig) error {
	if c.Symbol == "" {
		return &models.ConfigError{Field: "symbol", Reason: "required"}
	}
	if _, err := models.RulesFor(c.Symbol); err != nil {
		return &models.ConfigError{Field: "symbol", Reason: "unknown symbol " + c.Symbol}
	}
	if c.Venue != "kuma" && c.Venue != "binance" {
		return &models.ConfigError{Field: "venue", Reason: "must be kuma or binance"}
	}
	if c.InitialQuantity <= 0 {
		return &models.ConfigError{Field: "initial_quantity", Reason: "must be > 0"}
	}
	if c.BaseIncrement < 0 || c.IncrementStep < 0 {
		return &models.ConfigError{Field: "base_increment", Reason: "must be >= 0"}
	}
	if c.InitialSpread <= 0 {
		return &models.ConfigError{Field: "initial_spread", Reason: "must be > 0"}
	}
	if c.SpreadIncrement < 0 {
		return &models.ConfigError{Field: "spread_increment", Reason: "must be >= 0"}
	}
	if c.ClosingSpread <= 0 {
		return &models.ConfigError{Field: "closing_spread", Reason: "must be > 0"}
	}
	if c.MaxPosition <= 0 {
		return &models.ConfigError{Field: "max_position", Reason: "must be > 0"}
	}
	if c.StopLoss > 0 {
		return &models.ConfigError{Field: "stop_loss", Reason: "must be negative (a P&L floor)"}
	}
	if c.TakeProfit < 0 {
		return &models.ConfigError{Field: "take_profit", Reason: "must be positive (a P&L ceiling)"}
	}
	if c.MaxGridLevel < 0 {
		return &models.ConfigError{Field: "max_grid_level", Reason: "must be >= 0"}
	}
	w := c.BasePriceWeights
	if sum := w.Last + w.Mid + w.Index; math.Abs(sum-1.0) > 1e-9 {
		return &models.ConfigError{Field: "base_price_weights", Reason: "weights must sum to 1"}
	}
	return nil
}
