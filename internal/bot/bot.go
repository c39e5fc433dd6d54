// Package bot 实现网格机器人的控制循环:
// Idle → Connecting → Initializing → Running → Stopping → Stopped。
package bot

import (
	"context"
	"errors"
	"fmt"
	"futures-grid-bot/internal/exchange"
	"futures-grid-bot/internal/grid"
	"futures-grid-bot/internal/metrics"
	"futures-grid-bot/internal/models"
	"futures-grid-bot/internal/order"
	"futures-grid-bot/internal/reconciler"
	"futures-grid-bot/internal/risk"
	"futures-grid-bot/internal/status"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 退出原因, 同时用作 grid_exits_total 的标签
const (
	exitUser       = "user"
	exitStopLoss   = "stop_loss"
	exitTakeProfit = "take_profit"
	exitError      = "error"
)

// Intervals 是控制循环用到的各种时间间隔
type Intervals struct {
	Poll        time.Duration
	Rebalance   time.Duration
	Backoff     time.Duration
	CallTimeout time.Duration
	OrderPacing time.Duration
}

// IntervalsFrom 从配置中读取时间间隔
func IntervalsFrom(cfg models.Config) Intervals {
	return Intervals{
		Poll:        cfg.PollInterval(),
		Rebalance:   cfg.RebalanceInterval(),
		Backoff:     cfg.ErrorBackoff(),
		CallTimeout: cfg.CallTimeout(),
		OrderPacing: cfg.OrderPacing(),
	}
}

// Option 用于定制 Controller
type Option func(*Controller)

// WithIntervals 使用固定的时间间隔代替配置中的值
func WithIntervals(iv Intervals) Option {
	return func(c *Controller) {
		c.intervals = func(models.Config) Intervals { return iv }
	}
}

// Controller 拥有唯一的控制循环。Start/Stop 可以从任意 goroutine 调用,
// 外部只能通过 status.Sink 的快照读取运行状态。
type Controller struct {
	gw        exchange.Gateway
	sink      *status.Sink
	logger    *zap.Logger
	intervals func(models.Config) Intervals

	mu     sync.Mutex
	cfg    models.Config // 下一次启动使用的配置
	state  models.LoopState
	stopCh chan struct{}
	done   chan struct{}
}

// NewController 创建控制器, 初始状态为 Idle
func NewController(gw exchange.Gateway, cfg models.Config, sink *status.Sink, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		gw:        gw,
		sink:      sink,
		logger:    logger,
		intervals: IntervalsFrom,
		cfg:       cfg,
		state:     models.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	sink.Update(func(st *models.BotStatus) {
		st.Running = false
		st.State = models.StateIdle
		st.Symbol = cfg.Symbol
		st.Leverage = cfg.Leverage
		st.Testnet = cfg.IsTestnet
	})
	metrics.SetState(models.StateIdle)
	return c
}

// Config 返回下一次启动使用的配置
func (c *Controller) Config() models.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig 把覆盖参数合并进下一次启动使用的配置。正在运行的循环不受影响。
func (c *Controller) UpdateConfig(o models.ConfigOverrides) (models.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.cfg.WithOverrides(o)
	if err := next.Validate(); err != nil {
		return c.cfg, err
	}
	c.cfg = next
	return next, nil
}

// State 返回当前生命周期状态
func (c *Controller) State() models.LoopState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status 返回最新的状态快照
func (c *Controller) Status() *models.BotStatus {
	return c.sink.Snapshot()
}

// Start 应用覆盖参数并在后台启动控制循环。循环已在运行或参数不合法时返回 false。
func (c *Controller) Start(o models.ConfigOverrides) bool {
	return c.TryStart(o) == nil
}

// TryStart 与 Start 相同, 但返回拒绝启动的原因:
// 循环已在运行时返回 models.ErrAlreadyRunning, 参数不合法时返回校验错误。
func (c *Controller) TryStart(o models.ConfigOverrides) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active() {
		return models.ErrAlreadyRunning
	}

	cfg := c.cfg.WithOverrides(o)
	if err := cfg.Validate(); err != nil {
		c.sink.Log(models.LevelErr, fmt.Sprintf("启动参数无效: %v", err))
		return err
	}
	c.cfg = cfg

	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.state = models.StateConnecting
	metrics.SetState(models.StateConnecting)

	runID := uuid.NewString()
	c.sink.Update(func(st *models.BotStatus) {
		*st = models.BotStatus{
			Running:  true,
			State:    models.StateConnecting,
			RunID:    runID,
			Symbol:   cfg.Symbol,
			Leverage: cfg.Leverage,
			Testnet:  cfg.IsTestnet,
		}
	})
	c.logger.Info("控制循环启动", zap.String("run_id", runID), zap.String("symbol", cfg.Symbol))

	go c.run(cfg, c.stopCh, c.done)
	return nil
}

// Stop 请求控制循环停止。循环在下一个周期边界撤销所有挂单后进入 Stopped。
// 重复调用或循环未运行时直接返回 true。
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return true
	}
	select {
	case <-c.stopCh:
		c.mu.Unlock()
		return true
	default:
		close(c.stopCh)
	}
	c.mu.Unlock()

	c.sink.Log(models.LevelWarn, "正在停止机器人...")
	return true
}

// Emergency 记录紧急停止并请求停止, 撤单流程与 Stop 相同
func (c *Controller) Emergency() bool {
	c.sink.Log(models.LevelErr, "紧急停止!")
	return c.Stop()
}

// Wait 阻塞直到当前运行的控制循环退出
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// setState 持有 c.mu 发布新状态, 与 Start 发布快照互斥
func (c *Controller) setState(s models.LoopState, mutate func(st *models.BotStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
	metrics.SetState(s)
	c.sink.Update(func(st *models.BotStatus) {
		st.State = s
		if mutate != nil {
			mutate(st)
		}
	})
}

// runState 是单次运行的私有状态, 只在控制循环 goroutine 中访问
type runState struct {
	cfg       models.Config
	iv        Intervals
	stop      <-chan struct{}
	orders    *order.Manager
	recon     *reconciler.Reconciler
	precision models.Precision

	startBalance  float64
	lastRebalance time.Time
	lastErr       error
}

func (r *runState) stopRequested() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// sleep 等待 d, 期间收到停止请求会提前返回 false
func (r *runState) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.stop:
		return false
	case <-t.C:
		return true
	}
}

func (c *Controller) call(r *runState) (context.Context, context.CancelFunc) {
	if r.iv.CallTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), r.iv.CallTimeout)
}

func (c *Controller) run(cfg models.Config, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	iv := c.intervals(cfg)
	r := &runState{
		cfg:    cfg,
		iv:     iv,
		stop:   stop,
		orders: order.NewManager(c.gw, cfg.Symbol, iv.CallTimeout, iv.OrderPacing, c.logger),
		recon:  reconciler.New(),
	}

	// Connecting
	c.sink.Log(models.LevelInfo, "正在连接交易所...")
	if err := c.connect(r); err != nil {
		c.abort(fmt.Errorf("连接失败: %w", err))
		return
	}
	network := "主网"
	if cfg.IsTestnet {
		network = "测试网"
	}
	c.sink.Log(models.LevelOK, fmt.Sprintf("已连接币安合约%s", network))
	if r.stopRequested() {
		c.shutdown(r, exitUser)
		return
	}

	// Initializing
	c.setState(models.StateInitializing, nil)
	if err := c.initialize(r); err != nil {
		c.abort(err)
		return
	}
	if r.stopRequested() {
		c.shutdown(r, exitUser)
		return
	}

	// Running
	c.setState(models.StateRunning, nil)
	c.shutdown(r, c.loop(r))
}

func (c *Controller) connect(r *runState) error {
	ctx, cancel := c.call(r)
	defer cancel()
	return c.gw.Ping(ctx)
}

// initialize 设置杠杆、检查余额并挂出第一组网格
func (c *Controller) initialize(r *runState) error {
	cfg := r.cfg

	ctx, cancel := c.call(r)
	err := c.gw.SetLeverage(ctx, cfg.Symbol, cfg.Leverage)
	cancel()
	if err != nil {
		return fmt.Errorf("设置杠杆失败: %w", err)
	}
	c.sink.Log(models.LevelInfo, fmt.Sprintf("杠杆已设置为 %dx", cfg.Leverage))

	ctx, cancel = c.call(r)
	balance, err := c.gw.GetBalance(ctx, cfg.QuoteAsset)
	cancel()
	if err != nil {
		return fmt.Errorf("获取余额失败: %w", err)
	}
	r.startBalance = balance
	metrics.Balance.Set(balance)
	c.sink.Update(func(st *models.BotStatus) {
		st.StartBalance = balance
		st.Balance = balance
	})
	c.sink.Log(models.LevelInfo, fmt.Sprintf("初始余额: $%.2f", balance))

	if balance < cfg.MinBalance {
		return fmt.Errorf("%w: %.2f < %.2f", models.ErrLowBalance, balance, cfg.MinBalance)
	}

	ctx, cancel = c.call(r)
	r.precision = models.Precision{
		Quantity: c.gw.GetInstrumentPrecision(ctx, cfg.Symbol),
		Price:    c.gw.GetPricePrecision(ctx, cfg.Symbol),
	}
	if ts, ok := c.gw.(exchange.TickSource); ok {
		r.precision.PriceTick = ts.GetPriceTick(ctx, cfg.Symbol)
	}
	cancel()

	ctx, cancel = c.call(r)
	price, err := c.gw.GetPrice(ctx, cfg.Symbol)
	cancel()
	if err != nil {
		return fmt.Errorf("获取价格失败: %w", err)
	}
	metrics.Price.Set(price)
	c.sink.Update(func(st *models.BotStatus) { st.CurrentPrice = price })

	// 启动前已存在的成交不计入本次统计
	ctx, cancel = c.call(r)
	existing, err := c.gw.GetRecentTrades(ctx, cfg.Symbol, cfg.TradeWindow)
	cancel()
	if err != nil {
		c.sink.Log(models.LevelWarn, fmt.Sprintf("获取历史成交失败: %v", err))
	} else {
		r.recon.Prime(existing)
	}

	c.placeGrid(r, price)
	return nil
}

// placeGrid 在参考价周围规划并下达网格。部分订单被拒绝时保留已受理的订单。
func (c *Controller) placeGrid(r *runState, price float64) {
	cfg := r.cfg
	ladder, err := grid.Plan(grid.Params{
		ReferencePrice: price,
		Levels:         cfg.GridLevels,
		SpacingPct:     cfg.GridSpacing,
		TotalCapital:   cfg.TotalCapital,
		Leverage:       cfg.Leverage,
		Precision:      r.precision,
	})
	r.lastRebalance = time.Now()
	if err != nil {
		c.sink.Log(models.LevelErr, fmt.Sprintf("网格规划失败: %v", err))
		return
	}
	for _, idx := range ladder.Skipped {
		c.sink.Log(models.LevelWarn, fmt.Sprintf("第 %d 档数量取整后为0, 已跳过", idx))
	}

	c.sink.Log(models.LevelInfo, fmt.Sprintf("在 $%.2f 附近挂出 %d 档网格", price, cfg.GridLevels))
	placed, errs := r.orders.Place(context.Background(), ladder.Levels)
	for _, e := range errs {
		c.sink.Log(models.LevelErr, fmt.Sprintf("下单失败: %v", e))
	}
	metrics.Rebuilds.Inc()

	levels := r.orders.Levels()
	c.sink.Update(func(st *models.BotStatus) {
		st.GridLevels = levels
		st.LastRebalance = r.lastRebalance
	})
	c.sink.Log(models.LevelOK, fmt.Sprintf("网格完成: %d 个订单", placed))
}

// loop 执行监控周期直到触发止损/止盈、收到停止请求或连续错误过多, 返回退出原因
func (c *Controller) loop(r *runState) string {
	consecutive := 0
	for {
		if r.stopRequested() {
			return exitUser
		}

		outcome, err := c.cycle(r)
		if err != nil {
			consecutive++
			metrics.CycleErrors.Inc()
			c.sink.Log(models.LevelErr, fmt.Sprintf("周期出错: %v", err))
			now := time.Now()
			c.sink.Update(func(st *models.BotStatus) { st.LastUpdate = now })

			if limit := r.cfg.MaxConsecutiveErrors; limit > 0 && consecutive >= limit {
				r.lastErr = fmt.Errorf("连续 %d 个周期失败, 最后错误: %w", consecutive, err)
				return exitError
			}
			if !r.sleep(r.iv.Backoff) {
				return exitUser
			}
			continue
		}
		consecutive = 0
		metrics.Cycles.Inc()

		switch outcome {
		case risk.StopLoss:
			return exitStopLoss
		case risk.TakeProfit:
			return exitTakeProfit
		}

		if !r.sleep(r.iv.Poll) {
			return exitUser
		}
	}
}

// cycle 执行一次监控: 拉取价格与余额、对账成交、评估风险、按需重建网格, 并发布快照
func (c *Controller) cycle(r *runState) (risk.Outcome, error) {
	cfg := r.cfg

	ctx, cancel := c.call(r)
	price, err := c.gw.GetPrice(ctx, cfg.Symbol)
	cancel()
	if err != nil {
		return risk.Continue, fmt.Errorf("获取价格失败: %w", err)
	}

	ctx, cancel = c.call(r)
	balance, err := c.gw.GetBalance(ctx, cfg.QuoteAsset)
	cancel()
	if err != nil {
		return risk.Continue, fmt.Errorf("获取余额失败: %w", err)
	}

	c.reconcileTrades(r)

	pnl := balance - r.startBalance
	pnlPct := risk.ChangePct(r.startBalance, balance)
	metrics.Price.Set(price)
	metrics.Balance.Set(balance)
	metrics.PnlPct.Set(pnlPct)

	outcome := risk.Evaluate(r.startBalance, balance, cfg.StopLossPct, cfg.TakeProfitPct)
	c.publishCycle(r, price, balance, pnl, pnlPct)

	switch outcome {
	case risk.StopLoss:
		c.sink.Log(models.LevelErr, fmt.Sprintf("触发止损! %.1f%%", pnlPct))
		return outcome, nil
	case risk.TakeProfit:
		c.sink.Log(models.LevelOK, fmt.Sprintf("触发止盈! +%.1f%%", pnlPct))
		return outcome, nil
	}

	if time.Since(r.lastRebalance) > r.iv.Rebalance {
		if err := r.orders.CancelAll(context.Background()); err != nil {
			return risk.Continue, fmt.Errorf("重建网格前撤单失败: %w", err)
		}
		c.sink.Log(models.LevelWarn, "所有挂单已撤销")
		c.placeGrid(r, price)
	}
	return risk.Continue, nil
}

// reconcileTrades 拉取最近成交并记录新出现的成交。失败只记录日志, 不影响本周期。
func (c *Controller) reconcileTrades(r *runState) {
	ctx, cancel := c.call(r)
	trades, err := c.gw.GetRecentTrades(ctx, r.cfg.Symbol, r.cfg.TradeWindow)
	cancel()
	if err != nil {
		c.sink.Log(models.LevelErr, fmt.Sprintf("成交检查失败: %v", err))
		return
	}
	for _, t := range r.recon.Reconcile(trades) {
		if t.RealizedPnl > 0 {
			metrics.Trades.WithLabelValues("win").Inc()
			c.sink.Log(models.LevelOK, fmt.Sprintf("%s | +$%.4f", t.Side, t.RealizedPnl))
		} else {
			metrics.Trades.WithLabelValues("loss").Inc()
			c.sink.Log(models.LevelErr, fmt.Sprintf("%s | -$%.4f", t.Side, -t.RealizedPnl))
		}
	}
}

func (c *Controller) publishCycle(r *runState, price, balance, pnl, pnlPct float64) {
	history := r.recon.History()
	counters := r.recon.Counters()
	levels := r.orders.Levels()
	now := time.Now()
	c.sink.Update(func(st *models.BotStatus) {
		st.CurrentPrice = price
		st.Balance = balance
		st.Pnl = pnl
		st.PnlPct = pnlPct
		st.Trades = history
		st.TotalTrades = counters.Total
		st.Wins = counters.Wins
		st.Losses = counters.Losses
		st.GridLevels = levels
		st.LastUpdate = now
	})
}

// abort 处理启动阶段的致命错误: 发布错误并回到 Idle
func (c *Controller) abort(err error) {
	msg := err.Error()
	if errors.Is(err, models.ErrLowBalance) {
		msg = fmt.Sprintf("余额过低, 无法启动: %v", err)
	}
	c.sink.Log(models.LevelErr, msg)
	metrics.Exits.WithLabelValues(exitError).Inc()
	c.setState(models.StateIdle, func(st *models.BotStatus) {
		st.Running = false
		st.Error = &msg
	})
}

// shutdown 撤销所有挂单并进入 Stopped
func (c *Controller) shutdown(r *runState, reason string) {
	c.setState(models.StateStopping, nil)

	if err := r.orders.CancelAll(context.Background()); err != nil {
		c.sink.Log(models.LevelErr, fmt.Sprintf("撤单失败: %v", err))
	} else {
		c.sink.Log(models.LevelWarn, "所有挂单已撤销")
	}
	metrics.Exits.WithLabelValues(reason).Inc()

	var errMsg *string
	if r.lastErr != nil {
		msg := r.lastErr.Error()
		errMsg = &msg
		c.sink.Log(models.LevelErr, msg)
	}
	c.sink.Log(models.LevelWarn, "机器人已停止")
	c.logger.Info("控制循环退出", zap.String("reason", reason))

	c.setState(models.StateStopped, func(st *models.BotStatus) {
		st.Running = false
		st.GridLevels = nil
		if errMsg != nil {
			st.Error = errMsg
		}
	})
}
