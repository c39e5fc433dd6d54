package models

import (
	"fmt"
	"time"
)

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	IsTestnet     bool   `json:"is_testnet"` // 是否使用测试网
	DBPath        string `json:"db_path"`    // 状态快照数据库路径
	LiveAPIURL    string `json:"live_api_url"`
	TestnetAPIURL string `json:"testnet_api_url"`
	HTTPAddr      string `json:"http_addr"` // 控制面监听地址

	Symbol        string  `json:"symbol"`          // 交易对，如 "BTCUSDT"
	QuoteAsset    string  `json:"quote_asset"`     // 保证金资产，如 "USDT"
	GridLevels    int     `json:"grid_levels"`     // 价格两侧各挂的网格档位数量
	GridSpacing   float64 `json:"grid_spacing"`    // 网格间距百分比, 0.5 表示 0.5%
	TotalCapital  float64 `json:"total_capital"`   // 投入的总资金 (USDT)
	Leverage      int     `json:"leverage"`        // 杠杆倍数
	StopLossPct   float64 `json:"stop_loss_pct"`   // 止损百分比, 10 表示 -10%
	TakeProfitPct float64 `json:"take_profit_pct"` // 止盈百分比, 20 表示 +20%
	MinBalance    float64 `json:"min_balance"`     // 启动所需的最低余额

	PollIntervalSec      int `json:"poll_interval_sec"`      // 主循环轮询间隔(秒)
	RebalanceIntervalSec int `json:"rebalance_interval_sec"` // 网格重建间隔(秒)
	ErrorBackoffSec      int `json:"error_backoff_sec"`      // 循环出错后的退避时间(秒)
	CallTimeoutSec       int `json:"call_timeout_sec"`       // 单次交易所调用的超时时间(秒)
	OrderPacingMs        int `json:"order_pacing_ms"`        // 连续下单之间的最小间隔(毫秒)
	TradeWindow          int `json:"trade_window"`           // 每次拉取的最近成交条数
	MaxConsecutiveErrors int `json:"max_consecutive_errors"` // 连续失败多少个周期后停止, 0 表示不限

	DefaultQuantityPrecision int `json:"default_quantity_precision"` // 无法获取交易规则时的数量精度
	DefaultPricePrecision    int `json:"default_price_precision"`    // 无法获取交易规则时的价格精度

	LogConfig LogConfig `json:"log"` // 日志配置

	BaseURL string `json:"base_url"` // REST API基础地址 (将由程序动态设置)
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

// PollInterval 返回主循环轮询间隔
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// RebalanceInterval 返回网格重建间隔
func (c Config) RebalanceInterval() time.Duration {
	return time.Duration(c.RebalanceIntervalSec) * time.Second
}

// ErrorBackoff 返回出错后的退避时间
func (c Config) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSec) * time.Second
}

// CallTimeout 返回单次交易所调用的超时时间
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSec) * time.Second
}

// OrderPacing 返回连续下单之间的间隔
func (c Config) OrderPacing() time.Duration {
	return time.Duration(c.OrderPacingMs) * time.Millisecond
}

// Validate 检查策略参数是否合法
func (c Config) Validate() error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("%w: symbol 不能为空", ErrInvalidConfig)
	case c.GridLevels <= 0:
		return fmt.Errorf("%w: grid_levels 必须大于0, 当前 %d", ErrInvalidConfig, c.GridLevels)
	case c.GridSpacing <= 0 || c.GridSpacing >= 100:
		return fmt.Errorf("%w: grid_spacing 必须在 (0, 100) 之间, 当前 %.4f", ErrInvalidConfig, c.GridSpacing)
	case c.GridSpacing*float64(c.GridLevels) >= 100:
		return fmt.Errorf("%w: grid_spacing × grid_levels 会产生非正的买入价格", ErrInvalidConfig)
	case c.TotalCapital <= 0:
		return fmt.Errorf("%w: total_capital 必须大于0", ErrInvalidConfig)
	case c.Leverage <= 0:
		return fmt.Errorf("%w: leverage 必须大于0", ErrInvalidConfig)
	case c.StopLossPct < 0 || c.TakeProfitPct < 0:
		return fmt.Errorf("%w: 止损/止盈百分比不能为负", ErrInvalidConfig)
	}
	return nil
}

// ConfigOverrides 是启动命令可选携带的参数覆盖。nil 字段表示沿用当前配置。
type ConfigOverrides struct {
	Symbol        *string  `json:"symbol,omitempty"`
	Leverage      *int     `json:"leverage,omitempty"`
	GridLevels    *int     `json:"gridLevels,omitempty"`
	GridSpacing   *float64 `json:"gridSpacing,omitempty"`
	TotalCapital  *float64 `json:"totalUsdt,omitempty"`
	StopLossPct   *float64 `json:"stopLoss,omitempty"`
	TakeProfitPct *float64 `json:"takeProfit,omitempty"`
}

// WithOverrides 返回应用了覆盖参数的新配置，原配置不会被修改
func (c Config) WithOverrides(o ConfigOverrides) Config {
	if o.Symbol != nil {
		c.Symbol = *o.Symbol
	}
	if o.Leverage != nil {
		c.Leverage = *o.Leverage
	}
	if o.GridLevels != nil {
		c.GridLevels = *o.GridLevels
	}
	if o.GridSpacing != nil {
		c.GridSpacing = *o.GridSpacing
	}
	if o.TotalCapital != nil {
		c.TotalCapital = *o.TotalCapital
	}
	if o.StopLossPct != nil {
		c.StopLossPct = *o.StopLossPct
	}
	if o.TakeProfitPct != nil {
		c.TakeProfitPct = *o.TakeProfitPct
	}
	return c
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Precision 描述交易对的价格与数量小数位数。PriceTick 为0时价格只按小数位数取整。
type Precision struct {
	Price     int     `json:"price"`
	Quantity  int     `json:"quantity"`
	PriceTick float64 `json:"price_tick,omitempty"`
}

// GridLevel 代表网格中的一个价格档位
type GridLevel struct {
	Index    int     `json:"index"` // 距离参考价的档位序号, 从1开始
	Price    float64 `json:"price"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
	OrderID  int64   `json:"order_id,omitempty"`
}

// Order 定义了交易所受理后的订单信息
type Order struct {
	Symbol        string  `json:"symbol"`
	OrderID       int64   `json:"order_id"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	Side          Side    `json:"side"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
}

// Trade 定义了单次成交的信息
type Trade struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	OrderID     int64     `json:"order_id"`
	Time        time.Time `json:"time"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"qty"`
	RealizedPnl float64   `json:"pnl"`
}
