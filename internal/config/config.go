package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"futures-grid-bot/internal/models"
	"os"
	"strconv"
	"strings"
)

// Default 返回一份带有全部默认值的配置
func Default() models.Config {
	return models.Config{
		IsTestnet:                true,
		DBPath:                   "data/state",
		LiveAPIURL:               "https://fapi.binance.com",
		TestnetAPIURL:            "https://testnet.binancefuture.com",
		HTTPAddr:                 ":5000",
		Symbol:                   "BTCUSDT",
		QuoteAsset:               "USDT",
		GridLevels:               5,
		GridSpacing:              0.5,
		TotalCapital:             100,
		Leverage:                 3,
		StopLossPct:              10,
		TakeProfitPct:            20,
		MinBalance:               10,
		PollIntervalSec:          10,
		RebalanceIntervalSec:     3600,
		ErrorBackoffSec:          30,
		CallTimeoutSec:           10,
		OrderPacingMs:            150,
		TradeWindow:              10,
		DefaultQuantityPrecision: 3,
		DefaultPricePrecision:    2,
		LogConfig: models.LogConfig{
			Level:  "info",
			Output: "console",
		},
	}
}

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中。
// 文件中未出现的字段保留默认值；文件不存在时直接使用默认值。
func LoadConfig(path string) (*models.Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv 用环境变量覆盖策略参数
func ApplyEnv(cfg *models.Config, getenv func(string) string) error {
	if v := getenv("SYMBOL"); v != "" {
		cfg.Symbol = strings.ToUpper(v)
	}
	if v := getenv("TESTNET"); v != "" {
		cfg.IsTestnet = strings.EqualFold(v, "true")
	}

	ints := map[string]*int{
		"GRID_LEVELS": &cfg.GridLevels,
		"LEVERAGE":    &cfg.Leverage,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("环境变量 %s=%q 不是整数: %w", key, v, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"GRID_SPACING":    &cfg.GridSpacing,
		"TOTAL_USDT":      &cfg.TotalCapital,
		"STOP_LOSS_PCT":   &cfg.StopLossPct,
		"TAKE_PROFIT_PCT": &cfg.TakeProfitPct,
	}
	for key, dst := range floats {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("环境变量 %s=%q 不是数字: %w", key, v, err)
			}
			*dst = f
		}
	}
	return nil
}
