package exchange

import (
	"context"
	"fmt"
	"futures-grid-bot/internal/models"
	"math"
	"sort"
	"sync"
	"time"
)

// PriceSource 为模拟盘提供最新价格，例如币安公共行情接口
type PriceSource func(ctx context.Context, symbol string) (float64, error)

type paperOrder struct {
	models.Order
	placedAt time.Time
}

// PaperExchange 实现了 Gateway 接口，在内存中模拟一个单向持仓的合约账户。
// 限价单在价格穿越挂单价时按挂单价成交，平仓部分按持仓均价计算已实现盈亏。
type PaperExchange struct {
	mu sync.Mutex

	Symbol     string
	QuoteAsset string
	Precision  models.Precision

	InitialBalance float64
	RealizedPnl    float64
	TotalFees      float64
	MakerFeeRate   float64
	Leverage       int

	CurrentPrice  float64
	Position      float64 // 净持仓, 多头为正
	AvgEntryPrice float64

	orders      map[int64]*paperOrder
	trades      []models.Trade
	nextOrderID int64
	nextTradeID int64
	priceSource PriceSource
	now         func() time.Time
}

// NewPaperExchange 创建一个新的模拟盘实例。priceSource 为 nil 时价格只能通过 SetPrice 驱动。
func NewPaperExchange(symbol, quoteAsset string, initialBalance float64, precision models.Precision, priceSource PriceSource) *PaperExchange {
	return &PaperExchange{
		Symbol:         symbol,
		QuoteAsset:     quoteAsset,
		Precision:      precision,
		InitialBalance: initialBalance,
		MakerFeeRate:   0.0002,
		Leverage:       1,
		orders:         make(map[int64]*paperOrder),
		nextOrderID:    1,
		nextTradeID:    1,
		priceSource:    priceSource,
		now:            time.Now,
	}
}

// SetPrice 推动价格变化并撮合所有被穿越的挂单。
func (e *PaperExchange) SetPrice(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPriceLocked(price)
}

func (e *PaperExchange) setPriceLocked(price float64) {
	e.CurrentPrice = price

	// 按订单ID顺序撮合，保证结果可复现
	ids := make([]int64, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		o := e.orders[id]
		if (o.Side == models.Buy && price <= o.Price) || (o.Side == models.Sell && price >= o.Price) {
			e.fillLocked(o)
			delete(e.orders, id)
		}
	}
}

// fillLocked 处理一笔成交并更新持仓。必须在持有锁的情况下调用。
func (e *PaperExchange) fillLocked(o *paperOrder) {
	sign := 1.0
	if o.Side == models.Sell {
		sign = -1.0
	}
	qty, price := o.Quantity, o.Price

	var pnl float64
	switch {
	case e.Position == 0 || math.Signbit(e.Position) == math.Signbit(sign):
		// 开仓或加仓
		total := math.Abs(e.Position) + qty
		e.AvgEntryPrice = (math.Abs(e.Position)*e.AvgEntryPrice + qty*price) / total
		e.Position += sign * qty
	default:
		// 平仓，剩余部分反向开仓
		closeQty := math.Min(qty, math.Abs(e.Position))
		if e.Position > 0 {
			pnl = (price - e.AvgEntryPrice) * closeQty
		} else {
			pnl = (e.AvgEntryPrice - price) * closeQty
		}
		e.Position += sign * closeQty
		if remaining := qty - closeQty; remaining > 1e-12 {
			e.Position = sign * remaining
			e.AvgEntryPrice = price
		} else if math.Abs(e.Position) < 1e-12 {
			e.Position = 0
			e.AvgEntryPrice = 0
		}
	}

	fee := price * qty * e.MakerFeeRate
	e.TotalFees += fee
	e.RealizedPnl += pnl

	e.trades = append(e.trades, models.Trade{
		ID:          e.nextTradeID,
		Symbol:      o.Symbol,
		OrderID:     o.OrderID,
		Time:        e.now(),
		Side:        o.Side,
		Price:       price,
		Quantity:    qty,
		RealizedPnl: pnl,
	})
	e.nextTradeID++
}

// --- Gateway 接口实现 ---

func (e *PaperExchange) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (e *PaperExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Leverage = leverage
	return nil
}

// GetBalance 返回钱包余额 = 初始资金 + 已实现盈亏 - 手续费
func (e *PaperExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	if asset != e.QuoteAsset {
		return 0, fmt.Errorf("未找到 %s 余额", asset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.InitialBalance + e.RealizedPnl - e.TotalFees, nil
}

func (e *PaperExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if e.priceSource != nil {
		price, err := e.priceSource(ctx, symbol)
		if err != nil {
			return 0, err
		}
		e.mu.Lock()
		e.setPriceLocked(price)
		e.mu.Unlock()
		return price, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CurrentPrice <= 0 {
		return 0, fmt.Errorf("模拟盘尚未设置 %s 价格", symbol)
	}
	return e.CurrentPrice, nil
}

func (e *PaperExchange) GetInstrumentPrecision(ctx context.Context, symbol string) int {
	return e.Precision.Quantity
}

func (e *PaperExchange) GetPricePrecision(ctx context.Context, symbol string) int {
	return e.Precision.Price
}

func (e *PaperExchange) GetPriceTick(ctx context.Context, symbol string) float64 {
	return e.Precision.PriceTick
}

func (e *PaperExchange) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, quantity, price float64, clientOrderID string) (*models.Order, error) {
	if quantity <= 0 || price <= 0 {
		return nil, &models.APIError{Code: -4003, Msg: "Quantity and price must be positive."}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	o := &paperOrder{
		Order: models.Order{
			Symbol:        symbol,
			OrderID:       e.nextOrderID,
			ClientOrderID: clientOrderID,
			Side:          side,
			Price:         price,
			Quantity:      quantity,
		},
		placedAt: e.now(),
	}
	e.orders[o.OrderID] = o
	e.nextOrderID++

	placed := o.Order
	return &placed, nil
}

func (e *PaperExchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, o := range e.orders {
		if o.Symbol == symbol {
			delete(e.orders, id)
		}
	}
	return nil
}

// GetRecentTrades 返回最近 limit 条成交，按时间升序
func (e *PaperExchange) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []models.Trade
	for _, t := range e.trades {
		if t.Symbol == symbol {
			matched = append(matched, t)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]models.Trade, len(matched))
	copy(out, matched)
	return out, nil
}

// OpenOrders 返回当前挂单的副本，按订单ID排序
func (e *PaperExchange) OpenOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o.Order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
