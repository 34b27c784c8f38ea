package perf

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeOutcome 一笔已平仓交易的最终结果，由外部成交监控器回传。
type TradeOutcome struct {
	DecisionID string
	AssetPair  string
	PnL        decimal.Decimal // 已扣除手续费前的净损益
	Fee        decimal.Decimal
	ExitPrice  decimal.Decimal
	Regime     string // 开仓时的行情状态标签，供信任权重更新
	ClosedAt   time.Time
}

// Win 盈亏判定以扣费后的净额为准。
func (o TradeOutcome) Win() bool {
	return o.PnL.Sub(o.Fee).IsPositive()
}

// NetPnL 扣费后净损益。
func (o TradeOutcome) NetPnL() decimal.Decimal {
	return o.PnL.Sub(o.Fee)
}

// Metrics 累计绩效指标，每笔平仓交易恰好更新一次。
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      decimal.Decimal
	TotalFees     decimal.Decimal
	CurrentStreak int // 正数连胜，负数连败
	BestStreak    int
	WorstStreak   int
	AvgWin        decimal.Decimal
	AvgLoss       decimal.Decimal // 取正值表示平均亏损幅度
}

// WinRate 胜率 [0,1]；零样本时返回 0。
func (m Metrics) WinRate() float64 {
	if m.TotalTrades == 0 {
		return 0
	}
	return float64(m.WinningTrades) / float64(m.TotalTrades)
}

// ConsecutiveLosses 当前连败长度。
func (m Metrics) ConsecutiveLosses() int {
	if m.CurrentStreak < 0 {
		return -m.CurrentStreak
	}
	return 0
}

// ProfitFactor 总盈利/总亏损。无亏损样本时返回 +Inf 语义的大数，由调用方处理。
func (m Metrics) ProfitFactor() float64 {
	grossWin := m.AvgWin.Mul(decimal.NewFromInt(int64(m.WinningTrades)))
	grossLoss := m.AvgLoss.Mul(decimal.NewFromInt(int64(m.LosingTrades)))
	if grossLoss.IsZero() {
		if grossWin.IsZero() {
			return 0
		}
		return 1e9
	}
	f, _ := grossWin.Div(grossLoss).Float64()
	return f
}

// OutcomeStore 平仓结果持久化契约：重启后重放恢复指标，并支撑精确一次语义。
type OutcomeStore interface {
	SaveOutcome(o TradeOutcome) error
	LoadOutcomes() ([]TradeOutcome, error)
}
