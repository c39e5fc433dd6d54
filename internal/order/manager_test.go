package order

import (
	"context"
	"errors"
	"futures-grid-bot/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockGateway records placement calls and rejects orders at configured prices.
type mockGateway struct {
	sync.Mutex
	placed      []models.Order
	rejectAt    map[float64]bool
	cancelCalls int
	cancelErr   error
	nextID      int64
}

func newMockGateway() *mockGateway {
	return &mockGateway{rejectAt: make(map[float64]bool), nextID: 100}
}

func (m *mockGateway) Ping(ctx context.Context) error { return nil }
func (m *mockGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (m *mockGateway) GetBalance(ctx context.Context, asset string) (float64, error) { return 0, nil }
func (m *mockGateway) GetPrice(ctx context.Context, symbol string) (float64, error)   { return 0, nil }
func (m *mockGateway) GetInstrumentPrecision(ctx context.Context, symbol string) int  { return 3 }
func (m *mockGateway) GetPricePrecision(ctx context.Context, symbol string) int       { return 2 }
func (m *mockGateway) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	return nil, nil
}

func (m *mockGateway) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, quantity, price float64, clientOrderID string) (*models.Order, error) {
	m.Lock()
	defer m.Unlock()
	if m.rejectAt[price] {
		return nil, &models.APIError{Code: -2019, Msg: "Margin is insufficient."}
	}
	o := models.Order{Symbol: symbol, OrderID: m.nextID, ClientOrderID: clientOrderID, Side: side, Price: price, Quantity: quantity}
	m.nextID++
	m.placed = append(m.placed, o)
	return &o, nil
}

func (m *mockGateway) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	m.Lock()
	defer m.Unlock()
	m.cancelCalls++
	return m.cancelErr
}

func testPlan() []models.GridLevel {
	return []models.GridLevel{
		{Index: 1, Side: models.Buy, Price: 99.5, Quantity: 0.6},
		{Index: 1, Side: models.Sell, Price: 100.5, Quantity: 0.6},
		{Index: 2, Side: models.Buy, Price: 99, Quantity: 0.6},
		{Index: 2, Side: models.Sell, Price: 101, Quantity: 0.6},
	}
}

func TestPlaceAllAccepted(t *testing.T) {
	gw := newMockGateway()
	m := NewManager(gw, "BTCUSDT", time.Second, 0, zap.NewNop())

	placed, errs := m.Place(context.Background(), testPlan())
	assert.Equal(t, 4, placed)
	assert.Empty(t, errs)

	levels := m.Levels()
	require.Len(t, levels, 4)
	assert.Equal(t, int64(100), levels[0].OrderID)

	id, ok := m.OrderAt(models.Sell, 101)
	assert.True(t, ok)
	assert.Equal(t, int64(103), id)

	seen := make(map[string]bool)
	for _, o := range gw.placed {
		assert.LessOrEqual(t, len(o.ClientOrderID), 36)
		assert.False(t, seen[o.ClientOrderID], "duplicate client order id")
		seen[o.ClientOrderID] = true
	}
}

func TestPlaceRejectionDoesNotAbortRest(t *testing.T) {
	gw := newMockGateway()
	gw.rejectAt[100.5] = true
	m := NewManager(gw, "BTCUSDT", time.Second, 0, zap.NewNop())

	placed, errs := m.Place(context.Background(), testPlan())
	assert.Equal(t, 3, placed)
	require.Len(t, errs, 1)

	var rej *models.RejectionError
	require.True(t, errors.As(errs[0], &rej))
	assert.Equal(t, models.Sell, rej.Side)
	assert.Equal(t, 100.5, rej.Price)

	var apiErr *models.APIError
	assert.True(t, errors.As(errs[0], &apiErr))

	_, ok := m.OrderAt(models.Sell, 100.5)
	assert.False(t, ok)
	assert.Len(t, m.Levels(), 3)
}

func TestPlacePacesBetweenLevels(t *testing.T) {
	gw := newMockGateway()
	m := NewManager(gw, "BTCUSDT", time.Second, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	placed, _ := m.Place(context.Background(), testPlan())
	assert.Equal(t, 4, placed)
	// two levels: the first token is free, the second waits one interval
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPlaceStopsOnCancelledContext(t *testing.T) {
	gw := newMockGateway()
	m := NewManager(gw, "BTCUSDT", time.Second, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	placed, errs := m.Place(ctx, testPlan())
	assert.Equal(t, 0, placed)
	assert.NotEmpty(t, errs)
	assert.Empty(t, gw.placed)
}

func TestCancelAllClearsTracking(t *testing.T) {
	gw := newMockGateway()
	m := NewManager(gw, "BTCUSDT", time.Second, 0, zap.NewNop())

	// nothing open yet
	require.NoError(t, m.CancelAll(context.Background()))

	m.Place(context.Background(), testPlan())
	require.Len(t, m.Levels(), 4)

	gw.cancelErr = errors.New("timeout")
	assert.Error(t, m.CancelAll(context.Background()))
	assert.Empty(t, m.Levels())
	_, ok := m.OrderAt(models.Buy, 99.5)
	assert.False(t, ok)
	assert.Equal(t, 2, gw.cancelCalls)
}
