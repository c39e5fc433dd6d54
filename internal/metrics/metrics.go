// Package metrics holds the Prometheus collectors the grid loop updates.
//
// Exposed series:
//   - grid_orders_total{side}            orders accepted by the exchange
//   - grid_order_rejections_total{side}  orders rejected by the exchange
//   - grid_trades_total{result}          newly observed trades (win|loss)
//   - grid_cycles_total                  completed monitoring cycles
//   - grid_cycle_errors_total            cycles that failed with an error
//   - grid_rebuilds_total                ladder placements (initial and periodic)
//   - grid_exits_total{reason}           loop exits (stop_loss|take_profit|user|error)
//   - grid_balance_usd, grid_pnl_pct, grid_price
//   - grid_loop_state{state}             1 for the current lifecycle state, 0 otherwise
//
// Collectors are registered in init() and served at /metrics by the api package.
package metrics

import (
	"futures-grid-bot/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_orders_total",
			Help: "Grid orders accepted by the exchange",
		},
		[]string{"side"},
	)

	OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_order_rejections_total",
			Help: "Grid orders rejected by the exchange",
		},
		[]string{"side"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_trades_total",
			Help: "Newly observed trades split by result",
		},
		[]string{"result"},
	)

	Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_cycles_total",
			Help: "Completed monitoring cycles",
		},
	)

	CycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_cycle_errors_total",
			Help: "Monitoring cycles that failed with an error",
		},
	)

	Rebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_rebuilds_total",
			Help: "Grid ladder placements, initial and periodic",
		},
	)

	// reason: stop_loss|take_profit|user|error
	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_exits_total",
			Help: "Loop exits split by reason",
		},
		[]string{"reason"},
	)

	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_balance_usd",
			Help: "Wallet balance of the quote asset",
		},
	)

	PnlPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_pnl_pct",
			Help: "Percentage change of balance since the run started",
		},
	)

	Price = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grid_price",
			Help: "Last observed market price",
		},
	)

	loopState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grid_loop_state",
			Help: "Control loop lifecycle state (1 for the current state)",
		},
		[]string{"state"},
	)
)

var allStates = []models.LoopState{
	models.StateIdle,
	models.StateConnecting,
	models.StateInitializing,
	models.StateRunning,
	models.StateStopping,
	models.StateStopped,
}

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		OrderRejections,
		Trades,
		Cycles,
		CycleErrors,
		Rebuilds,
		Exits,
		Balance,
		PnlPct,
		Price,
		loopState,
	)
	SetState(models.StateIdle)
}

// SetState flips the loop state series so only the current state reads 1.
func SetState(s models.LoopState) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		loopState.WithLabelValues(string(st)).Set(v)
	}
}
