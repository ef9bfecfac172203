// Package reporter renders the end-of-session summary table printed when the
// process shuts down.
package reporter

import (
	"fmt"
	"io"

	"kuma-grid-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintSessionReport 打印每个机器人的交易汇总和全局合计。
func PrintSessionReport(w io.Writer, snaps []models.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Bot", "Symbol", "Status", "Trades", "Win %", "Volume", "Maker Fee", "Taker Fee", "Total PnL"})

	var totalTrades int
	var totalVolume, totalMaker, totalTaker, totalPnL float64

	for _, s := range snaps {
		winRate := 0.0
		closed := 0
		for _, tr := range s.RecentTrades {
			if tr.PnL != nil {
				closed++
			}
		}
		if closed > 0 {
			winRate = float64(s.Stats.WinningTrades) / float64(closed) * 100
		}

		t.AppendRow(table.Row{
			s.BotID,
			s.Symbol,
			s.Status,
			s.Stats.TotalTrades,
			fmt.Sprintf("%.1f", winRate),
			fmt.Sprintf("%.2f", s.TotalVolume),
			fmt.Sprintf("%.6f", s.Stats.Fees.Maker),
			fmt.Sprintf("%.6f", s.Stats.Fees.Taker),
			colorPnL(s.TotalPnL),
		})

		totalTrades += s.Stats.TotalTrades
		totalVolume += s.TotalVolume
		totalMaker += s.Stats.Fees.Maker
		totalTaker += s.Stats.Fees.Taker
		totalPnL += s.TotalPnL
	}

	t.AppendFooter(table.Row{
		"Total", "", "",
		totalTrades, "",
		fmt.Sprintf("%.2f", totalVolume),
		fmt.Sprintf("%.6f", totalMaker),
		fmt.Sprintf("%.6f", totalTaker),
		colorPnL(totalPnL),
	})

	t.Render()
}

// colorPnL 盈利为绿色, 亏损为红色。
func colorPnL(pnl float64) string {
	s := fmt.Sprintf("%.4f", pnl)
	if pnl > 0 {
		return text.FgGreen.Sprint(s)
	}
	if pnl < 0 {
		return text.FgRed.Sprint(s)
	}
	return s
}
