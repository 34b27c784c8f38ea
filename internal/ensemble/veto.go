package ensemble

import (
	"time"

	"arbiter/internal/logger"
)

// VetoStats 否决门的历史战绩：总否决数和事后验证为正确的否决数。
type VetoStats struct {
	Total   int
	Correct int
}

// VetoStatsStore 由持久层实现，跨重启保留否决战绩。
type VetoStatsStore interface {
	VetoStats() (VetoStats, error)
	RecordVeto(assetPair string, score float64, at time.Time) error
	MarkVetoOutcome(correct bool) error
}

// VetoGate 最后一道风控闸门：只能把可执行动作压成 HOLD，绝不反向。
// 阈值随自身历史正确率自适应：判得准就更敢否决，判得差就收敛。
// 任何内部失败都按"不否决"处理，这条路径永远不返回错误。
type VetoGate struct {
	Enabled        bool
	BaseThreshold  float64
	TargetAccuracy float64
	Store          VetoStatsStore
}

const vetoMinSample = 5

// Apply 评估并按需否决。返回可能被改写的 Decision。
func (g *VetoGate) Apply(d Decision, mctx MarketContext) Decision {
	if g == nil || !g.Enabled || !d.Actionable() {
		return d
	}
	score := vetoScore(d.Action, mctx)
	threshold := g.effectiveThreshold()
	if score < threshold {
		return d
	}

	logger.Warnf("否决触发 asset=%s action=%s score=%.2f threshold=%.2f",
		d.AssetPair, d.Action, score, threshold)
	d.VetoedAction = d.Action
	d.VetoedConfidence = d.Confidence
	d.VetoScore = score
	d.Action = ActionHold
	d.Confidence = 0
	d.Phase = PhaseVetoed

	if g.Store != nil {
		if err := g.Store.RecordVeto(d.AssetPair, score, time.Now()); err != nil {
			logger.Warnf("否决记录写入失败: %v", err)
		}
	}
	return d
}

// vetoScore 把风险分与逆向情绪合成否决分，范围 [0,1]。
// 情绪与动作同向时不贡献否决分：看多情绪否决不了 BUY。
func vetoScore(action Action, mctx MarketContext) float64 {
	opposition := 0.0
	switch action {
	case ActionBuy:
		if mctx.SentimentScore < 0 {
			opposition = -mctx.SentimentScore
		}
	case ActionSell:
		if mctx.SentimentScore > 0 {
			opposition = mctx.SentimentScore
		}
	}
	score := 0.6*mctx.RiskScore + 0.4*opposition
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// effectiveThreshold 按历史正确率缩放基准阈值，样本不足时用基准值。
// 缩放范围限制在基准值的 0.5~1.5 倍之间，避免战绩波动导致阈值失控。
func (g *VetoGate) effectiveThreshold() float64 {
	base := g.BaseThreshold
	if base <= 0 {
		base = 0.7
	}
	target := g.TargetAccuracy
	if target <= 0 || target >= 1 {
		target = 0.7
	}
	if g.Store == nil {
		return base
	}
	stats, err := g.Store.VetoStats()
	if err != nil {
		logger.Warnf("否决战绩读取失败，用基准阈值: %v", err)
		return base
	}
	if stats.Total < vetoMinSample {
		return base
	}
	accuracy := float64(stats.Correct) / float64(stats.Total)
	if accuracy <= 0 {
		accuracy = 1.0 / float64(stats.Total)
	}
	t := base * target / accuracy
	if t < base*0.5 {
		t = base * 0.5
	}
	if t > base*1.5 {
		t = base * 1.5
	}
	if t > 0.95 {
		t = 0.95
	}
	return t
}
