package perf

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Kelly 激活条件：样本足够、盈利因子达标、结果波动可控。
const (
	kellyMinProfitFactor = 1.20
	kellyMaxStdDevRatio  = 3.0 // 近期净损益标准差不得超过平均绝对损益的三倍
)

// Review 一次批量复盘的产出。只给建议，不自动改仓位。
type Review struct {
	TradeNumber   int
	Metrics       Metrics
	AvgCost       decimal.Decimal // 滚动窗口内平均手续费
	OutcomeStdDev float64
	ProfitFactor  float64

	KellyEligible bool
	KellyFraction float64 // 满仓比例建议，仅在 KellyEligible 时有意义
	Reason        string
}

// buildReview 调用方必须持锁。
func (t *Tracker) buildReview() Review {
	m := t.metrics
	r := Review{
		TradeNumber:  m.TotalTrades,
		Metrics:      m,
		ProfitFactor: m.ProfitFactor(),
	}

	if n := len(t.recent); n > 0 {
		feeSum := decimal.Zero
		var mean, m2 float64
		for i, o := range t.recent {
			feeSum = feeSum.Add(o.Fee)
			v, _ := o.NetPnL().Float64()
			delta := v - mean
			mean += delta / float64(i+1)
			m2 += delta * (v - mean)
		}
		r.AvgCost = feeSum.Div(decimal.NewFromInt(int64(n)))
		if n > 1 {
			r.OutcomeStdDev = math.Sqrt(m2 / float64(n-1))
		}
	}

	r.KellyEligible, r.KellyFraction, r.Reason = evaluateKelly(m, r.OutcomeStdDev)
	return r
}

// evaluateKelly 评估是否建议启用 Kelly 仓位。
// 公式 f = W - (1-W)/R，W 为胜率，R 为平均盈亏比；建议值折半（half-Kelly）。
func evaluateKelly(m Metrics, stddev float64) (bool, float64, string) {
	if m.TotalTrades < kellyMinTrades {
		return false, 0, fmt.Sprintf("样本不足 %d/%d", m.TotalTrades, kellyMinTrades)
	}
	pf := m.ProfitFactor()
	if pf < kellyMinProfitFactor {
		return false, 0, fmt.Sprintf("盈利因子 %.2f 低于 %.2f", pf, kellyMinProfitFactor)
	}
	avgAbs, _ := m.AvgWin.Add(m.AvgLoss).Float64()
	avgAbs /= 2
	if avgAbs > 0 && stddev > avgAbs*kellyMaxStdDevRatio {
		return false, 0, fmt.Sprintf("结果波动过大 stddev=%.4f", stddev)
	}
	if m.AvgLoss.IsZero() {
		return false, 0, "无亏损样本，盈亏比未定义"
	}
	ratio, _ := m.AvgWin.Div(m.AvgLoss).Float64()
	if ratio <= 0 {
		return false, 0, "盈亏比非正"
	}
	w := m.WinRate()
	f := w - (1-w)/ratio
	if f <= 0 {
		return false, 0, fmt.Sprintf("Kelly 比例非正 f=%.3f", f)
	}
	return true, f / 2, "条件满足"
}

// Summary 渲染复盘摘要，走 InfoBlock 整段输出。
func (r Review) Summary() string {
	s := fmt.Sprintf(`========== 批量复盘 (第 %d 笔) ==========
总交易: %d  胜/负: %d/%d  胜率: %.1f%%
累计净损益: %s  累计手续费: %s
当前连胜/败: %d  最佳: %d  最差: %d
滚动平均成本: %s  结果标准差: %.4f
盈利因子: %.2f`,
		r.TradeNumber,
		r.Metrics.TotalTrades, r.Metrics.WinningTrades, r.Metrics.LosingTrades, r.Metrics.WinRate()*100,
		r.Metrics.TotalPnL.StringFixed(4), r.Metrics.TotalFees.StringFixed(4),
		r.Metrics.CurrentStreak, r.Metrics.BestStreak, r.Metrics.WorstStreak,
		r.AvgCost.StringFixed(6), r.OutcomeStdDev,
		r.ProfitFactor)
	if r.KellyEligible {
		s += fmt.Sprintf("\nKelly 仓位建议: 启用 half-Kelly %.1f%%", r.KellyFraction*100)
	} else {
		s += fmt.Sprintf("\nKelly 仓位建议: 暂不启用 (%s)", r.Reason)
	}
	return s
}
