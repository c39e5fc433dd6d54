// Package reporter 把状态快照渲染成控制台表格
package reporter

import (
	"fmt"
	"futures-grid-bot/internal/models"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary 存储从状态快照中计算出的绩效指标
type Summary struct {
	StartBalance  float64
	Balance       float64
	Pnl           float64
	PnlPct        float64
	TotalTrades   int
	Wins          int
	Losses        int
	WinRate       float64 // 百分比
	AvgProfitLoss float64 // 平均盈利 / 平均亏损, 基于保留的最近成交
}

// Summarize 根据状态快照计算绩效指标
func Summarize(st *models.BotStatus) Summary {
	s := Summary{
		StartBalance: st.StartBalance,
		Balance:      st.Balance,
		Pnl:          st.Pnl,
		PnlPct:       st.PnlPct,
		TotalTrades:  st.TotalTrades,
		Wins:         st.Wins,
		Losses:       st.Losses,
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}

	var totalProfit, totalLoss float64
	var winning, losing int
	for _, t := range st.Trades {
		if t.RealizedPnl > 0 {
			winning++
			totalProfit += t.RealizedPnl
		} else if t.RealizedPnl < 0 {
			losing++
			totalLoss += t.RealizedPnl
		}
	}
	if winning > 0 && losing > 0 {
		avgWin := totalProfit / float64(winning)
		avgLoss := math.Abs(totalLoss / float64(losing))
		s.AvgProfitLoss = avgWin / avgLoss
	}
	return s
}

// PrintStatus 打印运行状态、网格档位和最近成交
func PrintStatus(w io.Writer, st *models.BotStatus) {
	if st == nil {
		return
	}
	s := Summarize(st)

	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetStyle(table.StyleLight)
	overview.SetTitle(fmt.Sprintf("网格机器人 %s", st.Symbol))
	overview.AppendRows([]table.Row{
		{"状态", st.State},
		{"运行中", st.Running},
		{"测试网", st.Testnet},
		{"杠杆", fmt.Sprintf("%dx", st.Leverage)},
		{"当前价格", fmt.Sprintf("%.4f", st.CurrentPrice)},
	})
	overview.AppendSeparator()
	overview.AppendRows([]table.Row{
		{"初始资金", fmt.Sprintf("%.2f USDT", s.StartBalance)},
		{"当前余额", fmt.Sprintf("%.2f USDT", s.Balance)},
		{"盈亏", fmt.Sprintf("%.2f USDT (%.2f%%)", s.Pnl, s.PnlPct)},
	})
	overview.AppendSeparator()
	overview.AppendRows([]table.Row{
		{"总交易次数", s.TotalTrades},
		{"盈利次数", s.Wins},
		{"亏损次数", s.Losses},
		{"胜率", fmt.Sprintf("%.2f%%", s.WinRate)},
		{"平均盈亏比", fmt.Sprintf("%.2f", s.AvgProfitLoss)},
	})
	if !st.LastUpdate.IsZero() {
		overview.AppendRow(table.Row{"最后更新", st.LastUpdate.Format("2006-01-02 15:04:05")})
	}
	if st.Error != nil {
		overview.AppendRow(table.Row{"错误", *st.Error})
	}
	overview.Render()

	if len(st.GridLevels) > 0 {
		grid := table.NewWriter()
		grid.SetOutputMirror(w)
		grid.SetStyle(table.StyleLight)
		grid.SetTitle("网格挂单")
		grid.AppendHeader(table.Row{"档位", "方向", "价格", "数量", "订单ID"})
		for _, lv := range st.GridLevels {
			grid.AppendRow(table.Row{lv.Index, lv.Side, lv.Price, lv.Quantity, lv.OrderID})
		}
		grid.Render()
	}

	if len(st.Trades) > 0 {
		trades := table.NewWriter()
		trades.SetOutputMirror(w)
		trades.SetStyle(table.StyleLight)
		trades.SetTitle("最近成交")
		trades.AppendHeader(table.Row{"时间", "方向", "价格", "数量", "已实现盈亏"})
		for _, t := range st.Trades {
			trades.AppendRow(table.Row{t.Time.Format("15:04:05"), t.Side, t.Price, t.Quantity, fmt.Sprintf("%+.4f", t.RealizedPnl)})
		}
		trades.Render()
	}
}
