package models

import "fmt"

// Config 结构体定义了进程级别的所有配置参数
type Config struct {
	APIURL    string      `json:"api_url"`   // REST API基础地址
	WSURL     string      `json:"ws_url"`    // WebSocket基础地址
	Sandbox   bool        `json:"sandbox"`   // 是否使用沙盒环境
	DataDir   string      `json:"data_dir"`  // 交易历史数据库目录
	HTTPAddr  string      `json:"http_addr"` // 控制面API监听地址, e.g. ":3001"
	LogConfig LogConfig   `json:"log"`       // 日志配置
	Bots      []BotConfig `json:"bots"`      // 启动时创建的机器人列表
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// BasePriceWeights blends the three public feed prices into the price the
// initial straddle is centered on. The default 0.4/0.4/0.2 split is a policy
// constant carried over from the original strategy deployment.
type BasePriceWeights struct {
	Last  float64 `json:"last"`
	Mid   float64 `json:"mid"`
	Index float64 `json:"index"`
}

// BotConfig holds the per-market strategy parameters of one engine instance.
type BotConfig struct {
	ID     string `json:"id,omitempty"`
	Symbol string `json:"symbol"`          // e.g. "BTC-USD"
	Venue  string `json:"venue,omitempty"` // "kuma" (default) or "binance"

	InitialQuantity float64 `json:"initial_quantity"`
	BaseIncrement   float64 `json:"base_increment"`
	IncrementStep   float64 `json:"increment_step"`
	InitialSpread   float64 `json:"initial_spread"`
	SpreadIncrement float64 `json:"spread_increment"`
	ClosingSpread   float64 `json:"closing_spread"`

	MaxPosition  float64 `json:"max_position"`
	StopLoss     float64 `json:"stop_loss,omitempty"`      // <0, 0 disables
	TakeProfit   float64 `json:"take_profit,omitempty"`    // >0, 0 disables
	MaxGridLevel int     `json:"max_grid_level,omitempty"` // 0 = unbounded

	MakerFeeRate float64 `json:"maker_fee_rate"` // negative = rebate
	TakerFeeRate float64 `json:"taker_fee_rate"`

	MinOrderIntervalMs int              `json:"min_order_interval_ms,omitempty"`
	BasePriceWeights   BasePriceWeights `json:"base_price_weights,omitempty"`

	Enabled bool `json:"enabled"`
}

// Default policy constants, matching the original strategy deployment.
const (
	DefaultMakerFeeRate       = -0.00005 // -0.005% rebate
	DefaultTakerFeeRate       = 0.000225 // 0.0225%
	DefaultMinOrderIntervalMs = 500
)

// ApplyDefaults fills the zero-valued policy fields of a BotConfig.
func (c *BotConfig) ApplyDefaults() {
	if c.Venue == "" {
		c.Venue = "kuma"
	}
	if c.MakerFeeRate == 0 {
		c.MakerFeeRate = DefaultMakerFeeRate
	}
	if c.TakerFeeRate == 0 {
		c.TakerFeeRate = DefaultTakerFeeRate
	}
	if c.MinOrderIntervalMs == 0 {
		c.MinOrderIntervalMs = DefaultMinOrderIntervalMs
	}
	w := c.BasePriceWeights
	if w.Last == 0 && w.Mid == 0 && w.Index == 0 {
		c.BasePriceWeights = BasePriceWeights{Last: 0.4, Mid: 0.4, Index: 0.2}
	}
}

// FeeRate returns the applicable fee rate for a fill's liquidity flag.
func (c *BotConfig) FeeRate(isTaker bool) float64 {
	if isTaker {
		return c.TakerFeeRate
	}
	return c.MakerFeeRate
}

// BasePrice blends the three feed prices by the configured weights.
func (c *BotConfig) BasePrice(t Tick) float64 {
	w := c.BasePriceWeights
	return t.LastPrice*w.Last + t.MidPrice*w.Mid + t.IndexPrice*w.Index
}

// BotStatus 表示机器人实例的运行状态
type BotStatus string

const (
	StatusStopped BotStatus = "stopped"
	StatusRunning BotStatus = "running"
	StatusError   BotStatus = "error"
)

func (s BotStatus) String() string { return string(s) }

// ConfigError 表示配置校验失败, 拒绝更新且不引起任何状态变更
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config invalid: %s: %s", e.Field, e.Reason)
}
