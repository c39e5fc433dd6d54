package exchange

import (
	"context"
	"errors"
	"futures-grid-bot/internal/models"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const exchangeInfoBody = `{"symbols":[{"symbol":"BTCUSDT","filters":[
	{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"0.10","maxPrice":"1000000"},
	{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"}]}]}`

// fakeFutures 模拟币安合约接口的一小部分
type fakeFutures struct {
	infoHits   atomic.Int32
	infoFails  atomic.Int32 // 前 n 次 exchangeInfo 请求返回 500
	leverage   string       // /fapi/v1/leverage 的响应体
	leverageSC int
	trades     string
}

func (f *fakeFutures) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/leverage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(f.leverageSC)
		w.Write([]byte(f.leverage))
	})
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		f.infoHits.Add(1)
		if f.infoFails.Load() > 0 {
			f.infoFails.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("upstream unavailable"))
			return
		}
		w.Write([]byte(exchangeInfoBody))
	})
	mux.HandleFunc("/fapi/v1/userTrades", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(f.trades))
	})
	return mux
}

func newFakeLive(t *testing.T, f *fakeFutures) *LiveExchange {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewLiveExchange("key", "secret", srv.URL, models.Precision{Price: 2, Quantity: 3}, zap.NewNop())
}

func TestLiveSetLeverageAlreadySet(t *testing.T) {
	f := &fakeFutures{
		leverageSC: http.StatusBadRequest,
		leverage:   `{"code":-4046,"msg":"No need to change leverage."}`,
	}
	e := newFakeLive(t, f)
	assert.NoError(t, e.SetLeverage(context.Background(), "BTCUSDT", 3))
}

func TestLiveSetLeverageRejected(t *testing.T) {
	f := &fakeFutures{
		leverageSC: http.StatusBadRequest,
		leverage:   `{"code":-4028,"msg":"Leverage 200 is not valid"}`,
	}
	e := newFakeLive(t, f)

	err := e.SetLeverage(context.Background(), "BTCUSDT", 200)
	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, int64(-4028), apiErr.Code)
}

func TestLiveSetLeverageOK(t *testing.T) {
	f := &fakeFutures{
		leverageSC: http.StatusOK,
		leverage:   `{"leverage":3,"maxNotionalValue":"1000000","symbol":"BTCUSDT"}`,
	}
	e := newFakeLive(t, f)
	assert.NoError(t, e.SetLeverage(context.Background(), "BTCUSDT", 3))
}

func TestLivePrecisionFromExchangeInfo(t *testing.T) {
	f := &fakeFutures{}
	e := newFakeLive(t, f)
	ctx := context.Background()

	assert.Equal(t, 3, e.GetInstrumentPrecision(ctx, "BTCUSDT"))
	assert.Equal(t, 1, e.GetPricePrecision(ctx, "BTCUSDT"))
	assert.Equal(t, 0.1, e.GetPriceTick(ctx, "BTCUSDT"))
	// 之后的调用命中缓存
	assert.Equal(t, int32(1), f.infoHits.Load())

	// 交易规则里没有的交易对使用默认精度
	assert.Equal(t, 2, e.GetPricePrecision(ctx, "ETHUSDT"))
	assert.Zero(t, e.GetPriceTick(ctx, "ETHUSDT"))
}

func TestLivePrecisionFallbackIsNotCached(t *testing.T) {
	f := &fakeFutures{}
	f.infoFails.Store(1)
	e := newFakeLive(t, f)
	ctx := context.Background()

	assert.Equal(t, 2, e.GetPricePrecision(ctx, "BTCUSDT"))
	assert.Equal(t, 1, e.GetPricePrecision(ctx, "BTCUSDT"))
	assert.Equal(t, 1, e.GetPricePrecision(ctx, "BTCUSDT"))
	assert.Equal(t, int32(2), f.infoHits.Load())
}

func TestLiveRecentTrades(t *testing.T) {
	f := &fakeFutures{trades: `[
		{"id":7,"symbol":"BTCUSDT","orderId":42,"side":"SELL","price":"101.5","qty":"0.6",
		 "realizedPnl":"0.9","commission":"0.01","commissionAsset":"USDT","time":1700000000000},
		{"id":8,"symbol":"BTCUSDT","orderId":43,"side":"BUY","price":"99.5","qty":"0.6",
		 "realizedPnl":"","time":1700000001000}]`}
	e := newFakeLive(t, f)

	trades, err := e.GetRecentTrades(context.Background(), "BTCUSDT", 20)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, models.Trade{
		ID:          7,
		Symbol:      "BTCUSDT",
		OrderID:     42,
		Time:        time.UnixMilli(1700000000000),
		Side:        models.Sell,
		Price:       101.5,
		Quantity:    0.6,
		RealizedPnl: 0.9,
	}, trades[0])
	assert.Equal(t, models.Buy, trades[1].Side)
	assert.Zero(t, trades[1].RealizedPnl)
}

func TestLiveRecentTradesMalformedPnl(t *testing.T) {
	f := &fakeFutures{trades: `[{"id":9,"symbol":"BTCUSDT","orderId":44,"side":"SELL",
		"price":"101.5","qty":"0.6","realizedPnl":"n/a","time":1700000000000}]`}
	e := newFakeLive(t, f)

	trades, err := e.GetRecentTrades(context.Background(), "BTCUSDT", 20)
	assert.Error(t, err)
	assert.Nil(t, trades)
}
