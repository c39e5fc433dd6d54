package exchange

import (
	"context"
	"futures-grid-bot/internal/models"

	"github.com/shopspring/decimal"
)

// Gateway 定义了控制循环依赖的全部交易所能力。
// 实盘 (LiveExchange) 与模拟盘 (PaperExchange) 都实现该接口。
// 所有阻塞调用都接收 context，由调用方设置超时。
type Gateway interface {
	Ping(ctx context.Context) error
	// SetLeverage 对 "无需修改" 的响应返回 nil
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetBalance(ctx context.Context, asset string) (float64, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	// GetInstrumentPrecision 返回数量的小数位数，无法获取交易规则时返回默认精度
	GetInstrumentPrecision(ctx context.Context, symbol string) int
	// GetPricePrecision 返回价格的小数位数，无法获取交易规则时返回默认精度
	GetPricePrecision(ctx context.Context, symbol string) int
	PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, quantity, price float64, clientOrderID string) (*models.Order, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	// GetRecentTrades 返回最近的成交记录，按时间升序
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)
}

// TickSource 由能提供价格最小变动单位 (tickSize) 的网关实现。
// 无法获取时返回0，调用方只按小数位数取整。
type TickSource interface {
	GetPriceTick(ctx context.Context, symbol string) float64
}

// maxStepPlaces 是步长换算时考虑的最大小数位数
const maxStepPlaces = 18

// PrecisionFromStep 把步长 (如 "0.001" 或 "0.25") 换算成能精确表示它的小数位数 (3 或 2)。
// 步长无法解析或非正时返回 fallback，整数步长返回0。
func PrecisionFromStep(step string, fallback int) int {
	d, err := decimal.NewFromString(step)
	if err != nil || !d.IsPositive() {
		return fallback
	}
	for places := int32(0); places <= maxStepPlaces; places++ {
		if d.Round(places).Equal(d) {
			return int(places)
		}
	}
	return maxStepPlaces
}

// TickFromStep 解析步长，无法解析或非正时返回0
func TickFromStep(step string) float64 {
	d, err := decimal.NewFromString(step)
	if err != nil || !d.IsPositive() {
		return 0
	}
	return d.InexactFloat64()
}
