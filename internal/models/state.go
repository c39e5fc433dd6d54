package models

import "time"

// LoopState 是控制循环的生命周期状态
type LoopState string

const (
	StateIdle         LoopState = "IDLE"
	StateConnecting   LoopState = "CONNECTING"
	StateInitializing LoopState = "INITIALIZING"
	StateRunning      LoopState = "RUNNING"
	StateStopping     LoopState = "STOPPING"
	StateStopped      LoopState = "STOPPED"
)

// Active 表示该状态下控制循环仍在执行
func (s LoopState) Active() bool {
	switch s {
	case StateConnecting, StateInitializing, StateRunning, StateStopping:
		return true
	}
	return false
}

// LogEntry 是展示给控制面的一条运行日志
type LogEntry struct {
	Time  string `json:"time"`  // "15:04:05"
	Level string `json:"level"` // ok, info, warn, err
	Msg   string `json:"msg"`
}

// Journal levels
const (
	LevelOK   = "ok"
	LevelInfo = "info"
	LevelWarn = "warn"
	LevelErr  = "err"
)

// BotStatus 是对外发布的只读状态快照
type BotStatus struct {
	Running       bool        `json:"running"`
	State         LoopState   `json:"state"`
	RunID         string      `json:"run_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Leverage      int         `json:"leverage"`
	Testnet       bool        `json:"testnet"`
	StartBalance  float64     `json:"start_balance"`
	Balance       float64     `json:"balance"`
	Pnl           float64     `json:"pnl"`
	PnlPct        float64     `json:"pnl_pct"`
	CurrentPrice  float64     `json:"current_price"`
	GridLevels    []GridLevel `json:"grid_levels"`
	Trades        []Trade     `json:"trades"`
	TotalTrades   int         `json:"total_trades"`
	Wins          int         `json:"wins"`
	Losses        int         `json:"losses"`
	LastRebalance time.Time   `json:"last_rebalance"`
	LastUpdate    time.Time   `json:"last_update"`
	Error         *string     `json:"error"`
	Logs          []LogEntry  `json:"logs"`
}

// Clone 返回状态的深拷贝，防止调用方与发布方共享切片
func (s *BotStatus) Clone() *BotStatus {
	if s == nil {
		return nil
	}
	c := *s
	if s.GridLevels != nil {
		c.GridLevels = make([]GridLevel, len(s.GridLevels))
		copy(c.GridLevels, s.GridLevels)
	}
	if s.Trades != nil {
		c.Trades = make([]Trade, len(s.Trades))
		copy(c.Trades, s.Trades)
	}
	if s.Logs != nil {
		c.Logs = make([]LogEntry, len(s.Logs))
		copy(c.Logs, s.Logs)
	}
	if s.Error != nil {
		msg := *s.Error
		c.Error = &msg
	}
	return &c
}
