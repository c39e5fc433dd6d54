package exchange

import (
	"context"
	"errors"
	"fmt"
	"futures-grid-bot/internal/models"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiveExchange 实现了 Gateway 接口，通过币安U本位合约API进行真实交易。
type LiveExchange struct {
	client   *futures.Client
	logger   *zap.Logger
	fallback models.Precision

	mu         sync.Mutex
	precisions map[string]models.Precision // 已成功获取的交易规则缓存
}

// NewLiveExchange 创建一个新的 LiveExchange 实例。baseURL 为空时使用 go-binance 的默认地址。
func NewLiveExchange(apiKey, secretKey, baseURL string, fallback models.Precision, logger *zap.Logger) *LiveExchange {
	client := binance.NewFuturesClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &LiveExchange{
		client:     client,
		logger:     logger,
		fallback:   fallback,
		precisions: make(map[string]models.Precision),
	}
}

// classify 把 go-binance 的错误转换为统一的错误类型：
// 交易所业务错误转换为 *models.APIError，其余视为连接错误。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &models.APIError{Code: apiErr.Code, Msg: apiErr.Message})
	}
	return &models.ConnectivityError{Op: op, Err: err}
}

// Ping 检查交易所是否可达
func (e *LiveExchange) Ping(ctx context.Context) error {
	return classify("ping", e.client.NewPingService().Do(ctx))
}

// SetLeverage 设置杠杆。
func (e *LiveExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := e.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "No need to change") {
			e.logger.Info("杠杆无需更改，已是目标值。", zap.String("symbol", symbol), zap.Int("leverage", leverage))
			return nil
		}
		return classify("set leverage", err)
	}
	return nil
}

// GetBalance 获取保证金资产的钱包余额
func (e *LiveExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	balances, err := e.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, classify("get balance", err)
	}
	for _, b := range balances {
		if b.Asset == asset {
			v, err := strconv.ParseFloat(b.Balance, 64)
			if err != nil {
				return 0, fmt.Errorf("解析 %s 余额 %q 失败: %w", asset, b.Balance, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("未找到 %s 余额", asset)
}

// GetPrice 获取指定交易对的最新价格。
func (e *LiveExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify("get price", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			v, err := strconv.ParseFloat(p.Price, 64)
			if err != nil {
				return 0, fmt.Errorf("解析 %s 价格 %q 失败: %w", symbol, p.Price, err)
			}
			if v <= 0 {
				return 0, fmt.Errorf("交易所返回了非正的 %s 价格: %v", symbol, v)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("未找到交易对 %s 的价格", symbol)
}

// GetInstrumentPrecision 返回下单数量的小数位数 (来自 LOT_SIZE.stepSize)
func (e *LiveExchange) GetInstrumentPrecision(ctx context.Context, symbol string) int {
	return e.precision(ctx, symbol).Quantity
}

// GetPricePrecision 返回价格的小数位数 (来自 PRICE_FILTER.tickSize)
func (e *LiveExchange) GetPricePrecision(ctx context.Context, symbol string) int {
	return e.precision(ctx, symbol).Price
}

// GetPriceTick 返回价格的最小变动单位 (PRICE_FILTER.tickSize)，无法获取时返回0
func (e *LiveExchange) GetPriceTick(ctx context.Context, symbol string) float64 {
	return e.precision(ctx, symbol).PriceTick
}

// precision 获取并缓存交易规则，失败时返回默认精度且不缓存，下次调用会重试
func (e *LiveExchange) precision(ctx context.Context, symbol string) models.Precision {
	e.mu.Lock()
	p, ok := e.precisions[symbol]
	e.mu.Unlock()
	if ok {
		return p
	}

	info, err := e.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		e.logger.Warn("获取交易规则失败，使用默认精度", zap.String("symbol", symbol), zap.Error(err))
		return e.fallback
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		p = e.fallback
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				if step, ok := f["stepSize"].(string); ok {
					p.Quantity = PrecisionFromStep(step, e.fallback.Quantity)
				}
			case "PRICE_FILTER":
				if tick, ok := f["tickSize"].(string); ok {
					p.Price = PrecisionFromStep(tick, e.fallback.Price)
					p.PriceTick = TickFromStep(tick)
				}
			}
		}
		e.mu.Lock()
		e.precisions[symbol] = p
		e.mu.Unlock()
		return p
	}

	e.logger.Warn("交易规则中未找到交易对，使用默认精度", zap.String("symbol", symbol))
	return e.fallback
}

// PlaceLimitOrder 下GTC限价单。
func (e *LiveExchange) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, quantity, price float64, clientOrderID string) (*models.Order, error) {
	svc := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(decimal.NewFromFloat(quantity).String()).
		Price(decimal.NewFromFloat(price).String())
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, classify("place order", err)
	}
	return &models.Order{
		Symbol:        symbol,
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Side:          side,
		Price:         price,
		Quantity:      quantity,
	}, nil
}

// CancelAllOpenOrders 取消交易对的所有挂单。
func (e *LiveExchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return classify("cancel all", e.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx))
}

// GetRecentTrades 获取账户最近的成交记录
func (e *LiveExchange) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	raw, err := e.client.NewListAccountTradeService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify("get trades", err)
	}

	trades := make([]models.Trade, 0, len(raw))
	for _, t := range raw {
		price, err1 := strconv.ParseFloat(t.Price, 64)
		qty, err2 := strconv.ParseFloat(t.Quantity, 64)
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("解析成交 %d 失败: %w", t.ID, err)
		}
		// realizedPnl 为空时视为0
		var pnl float64
		if t.RealizedPnl != "" {
			pnl, err = strconv.ParseFloat(t.RealizedPnl, 64)
			if err != nil {
				return nil, fmt.Errorf("解析成交 %d 的已实现盈亏 %q 失败: %w", t.ID, t.RealizedPnl, err)
			}
		}
		trades = append(trades, models.Trade{
			ID:          t.ID,
			Symbol:      t.Symbol,
			OrderID:     t.OrderID,
			Time:        time.UnixMilli(t.Time),
			Side:        models.Side(t.Side),
			Price:       price,
			Quantity:    qty,
			RealizedPnl: pnl,
		})
	}
	return trades, nil
}
