// Package report 由权益曲线与成交归档生成 HTML 复盘报告。
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fathom/internal/store/gormstore"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Generator 渲染权益与盈亏图表。
type Generator struct {
	trades *gormstore.TradeStore
	dir    string
}

func NewGenerator(trades *gormstore.TradeStore, dir string) *Generator {
	return &Generator{trades: trades, dir: dir}
}

// Generate 渲染 HTML 报告并返回文件路径。
func (g *Generator) Generate(points []gormstore.EquityPointModel, trades []gormstore.TradeModel) (string, error) {
	if len(points) == 0 && len(trades) == 0 {
		return "", fmt.Errorf("无数据可生成报告")
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	if len(points) > 0 {
		page.AddCharts(equityChart(points))
	}
	if len(trades) > 0 {
		page.AddCharts(pnlChart(trades))
	}

	path := filepath.Join(g.dir, fmt.Sprintf("report_%s.html", time.Now().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建报告文件失败: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("渲染报告失败: %w", err)
	}
	return path, nil
}

func equityChart(points []gormstore.EquityPointModel) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "账户权益曲线"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	xAxis := make([]string, 0, len(points))
	equity := make([]opts.LineData, 0, len(points))
	balance := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		xAxis = append(xAxis, time.UnixMilli(p.Timestamp).Format("01-02 15:04"))
		equity = append(equity, opts.LineData{Value: p.Equity})
		balance = append(balance, opts.LineData{Value: p.Balance})
	}
	line.SetXAxis(xAxis)
	line.AddSeries("权益", equity)
	line.AddSeries("余额", balance)
	return line
}

func pnlChart(trades []gormstore.TradeModel) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "逐笔盈亏"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	xAxis := make([]string, 0, len(trades))
	pnl := make([]opts.BarData, 0, len(trades))
	// trades 按时间倒序归档，图表按时间正序展示
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.PnL == "" || t.PnL == "0" {
			continue
		}
		xAxis = append(xAxis, time.UnixMilli(t.Timestamp).Format("01-02 15:04"))
		pnl = append(pnl, opts.BarData{Value: t.PnL})
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("盈亏 (USDT)", pnl)
	return bar
}
