package perf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"arbiter/internal/logger"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	reportColorBackground = "#060c1b"
	reportColorText       = "#eceff4"
	reportColorTextDim    = "#9ca3af"
	reportColorWin        = "#34d399"
	reportColorLoss       = "#f87171"
	reportColorEquity     = "#3b82f6"

	reportWidthPx  = 1200
	reportHeightPx = 420
)

// ReportWriter 把批量复盘渲染成 HTML 报表，落到本地目录。
// 渲染失败只记日志，复盘本身不受影响。
type ReportWriter struct {
	Dir string
}

// Write 输出一份复盘报表，返回文件路径。
func (w *ReportWriter) Write(review Review, outcomes []TradeOutcome) (string, error) {
	if w == nil || w.Dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEquityChart(outcomes), buildPnLBars(outcomes))

	name := fmt.Sprintf("review_%d_%s.html", review.TradeNumber, time.Now().Format("20060102_150405"))
	path := filepath.Join(w.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	logger.Infof("复盘报表已生成: %s", path)
	return path, nil
}

func buildEquityChart(outcomes []TradeOutcome) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", reportWidthPx),
			Height:          fmt.Sprintf("%dpx", reportHeightPx),
			BackgroundColor: reportColorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "累计净损益",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: reportColorText, FontSize: 16},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: reportColorTextDim}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: reportColorTextDim},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: reportColorTextDim, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := make([]string, len(outcomes))
	data := make([]opts.LineData, len(outcomes))
	cum := 0.0
	for i, o := range outcomes {
		v, _ := o.NetPnL().Float64()
		cum += v
		xAxis[i] = o.ClosedAt.Format("01-02 15:04")
		data[i] = opts.LineData{Value: cum}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("equity", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: reportColorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func buildPnLBars(outcomes []TradeOutcome) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", reportWidthPx),
			Height:          fmt.Sprintf("%dpx", reportHeightPx),
			BackgroundColor: reportColorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "单笔净损益",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: reportColorText, FontSize: 16},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: reportColorTextDim}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: reportColorTextDim},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: reportColorTextDim, Opacity: opts.Float(0.15)}},
		}),
	)

	xAxis := make([]string, len(outcomes))
	data := make([]opts.BarData, len(outcomes))
	for i, o := range outcomes {
		v, _ := o.NetPnL().Float64()
		color := reportColorLoss
		if v >= 0 {
			color = reportColorWin
		}
		xAxis[i] = o.AssetPair
		data[i] = opts.BarData{
			Value:     v,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("pnl", data)
	return bar
}
