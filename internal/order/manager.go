// Package order 负责把网格计划提交到交易所并跟踪已受理的挂单。
package order

import (
	"context"
	"fmt"
	"futures-grid-bot/internal/exchange"
	"futures-grid-bot/internal/metrics"
	"futures-grid-bot/internal/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Manager 在一个交易对上下达并撤销网格订单。
// 每个订单独立提交，单个订单失败不会影响其他订单。
type Manager struct {
	gw          exchange.Gateway
	symbol      string
	callTimeout time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger

	mu      sync.Mutex
	levels  []models.GridLevel
	byPrice map[string]int64 // "BUY@99.5" -> 订单ID
}

// NewManager 创建订单管理器。pacing 是相邻两档订单之间的最小间隔，0 表示不限速。
func NewManager(gw exchange.Gateway, symbol string, callTimeout, pacing time.Duration, logger *zap.Logger) *Manager {
	limit := rate.Inf
	if pacing > 0 {
		limit = rate.Every(pacing)
	}
	return &Manager{
		gw:          gw,
		symbol:      symbol,
		callTimeout: callTimeout,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
		byPrice:     make(map[string]int64),
	}
}

func priceKey(side models.Side, price float64) string {
	return fmt.Sprintf("%s@%v", side, price)
}

// newClientOrderID 生成不超过36个字符的客户端订单ID
func newClientOrderID(lv models.GridLevel) string {
	id := uuid.New()
	return fmt.Sprintf("g%d%c_%s", lv.Index, lv.Side[0], base62.EncodeToString(id[:]))
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.callTimeout)
}

// Place 按顺序提交计划中的每一档订单，返回成功受理的数量和每个失败订单的 *models.RejectionError。
// 同一档位的买卖单连续提交，不同档位之间按 pacing 限速。
// 已受理的订单会替换掉之前跟踪的档位。
func (m *Manager) Place(ctx context.Context, plan []models.GridLevel) (int, []error) {
	var (
		placed    int
		errs      []error
		accepted  = make([]models.GridLevel, 0, len(plan))
		lastIndex = -1
	)

	for _, lv := range plan {
		if lv.Index != lastIndex {
			if err := m.limiter.Wait(ctx); err != nil {
				errs = append(errs, &models.RejectionError{Side: lv.Side, Price: lv.Price, Quantity: lv.Quantity, Err: err})
				break
			}
			lastIndex = lv.Index
		}

		cctx, cancel := m.callCtx(ctx)
		o, err := m.gw.PlaceLimitOrder(cctx, m.symbol, lv.Side, lv.Quantity, lv.Price, newClientOrderID(lv))
		cancel()
		if err != nil {
			metrics.OrderRejections.WithLabelValues(string(lv.Side)).Inc()
			m.logger.Warn("下单失败",
				zap.String("side", string(lv.Side)),
				zap.Float64("price", lv.Price),
				zap.Float64("quantity", lv.Quantity),
				zap.Error(err))
			errs = append(errs, &models.RejectionError{Side: lv.Side, Price: lv.Price, Quantity: lv.Quantity, Err: err})
			continue
		}

		metrics.OrdersPlaced.WithLabelValues(string(lv.Side)).Inc()
		lv.OrderID = o.OrderID
		accepted = append(accepted, lv)
		placed++
		m.logger.Debug("订单已受理",
			zap.Int64("order_id", o.OrderID),
			zap.String("side", string(lv.Side)),
			zap.Float64("price", lv.Price),
			zap.Float64("quantity", lv.Quantity))
	}

	m.mu.Lock()
	m.levels = accepted
	m.byPrice = make(map[string]int64, len(accepted))
	for _, lv := range accepted {
		m.byPrice[priceKey(lv.Side, lv.Price)] = lv.OrderID
	}
	m.mu.Unlock()

	return placed, errs
}

// CancelAll 撤销交易对的全部挂单。无论交易所是否返回错误，本地跟踪都会被清空。
// 没有挂单时调用也是安全的。
func (m *Manager) CancelAll(ctx context.Context) error {
	m.mu.Lock()
	m.levels = nil
	m.byPrice = make(map[string]int64)
	m.mu.Unlock()

	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	if err := m.gw.CancelAllOpenOrders(cctx, m.symbol); err != nil {
		m.logger.Warn("撤销挂单失败", zap.String("symbol", m.symbol), zap.Error(err))
		return err
	}
	return nil
}

// Levels 返回当前跟踪的已受理档位副本
func (m *Manager) Levels() []models.GridLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GridLevel, len(m.levels))
	copy(out, m.levels)
	return out
}

// OrderAt 返回指定方向和价格上跟踪的订单ID
func (m *Manager) OrderAt(side models.Side, price float64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPrice[priceKey(side, price)]
	return id, ok
}
