package perf

import (
	"sync"

	"arbiter/internal/logger"

	"github.com/shopspring/decimal"
)

// 每满 20 笔触发一次批量复盘；Kelly 评估另有 50 笔的样本门槛。
const (
	batchReviewInterval = 20
	kellyMinTrades      = 50
)

// Tracker 绩效追踪器。指标每笔平仓交易恰好更新一次，
// 重复回传的 DecisionID 直接忽略。
type Tracker struct {
	mu      sync.Mutex
	metrics Metrics
	seen    map[string]struct{}
	recent  []TradeOutcome // 滚动窗口，供批量复盘算成本与方差
	store   OutcomeStore

	// OnReview 批量复盘回调，非 nil 时在每 20 笔后调用（持锁外）。
	OnReview func(Review)
}

// NewTracker 构造追踪器并从 store 重放历史结果。store 可为 nil。
func NewTracker(store OutcomeStore) *Tracker {
	t := &Tracker{
		seen:  make(map[string]struct{}),
		store: store,
	}
	if store == nil {
		return t
	}
	outcomes, err := store.LoadOutcomes()
	if err != nil {
		logger.Warnf("历史平仓记录加载失败，从零起步: %v", err)
		return t
	}
	for _, o := range outcomes {
		t.apply(o, false)
	}
	logger.Infof("重放 %d 笔历史平仓记录 胜率=%.1f%%", t.metrics.TotalTrades, t.metrics.WinRate()*100)
	return t
}

// RecordOutcome 记录一笔平仓结果。返回是否为首次记录。
func (t *Tracker) RecordOutcome(o TradeOutcome) bool {
	t.mu.Lock()
	if _, dup := t.seen[o.DecisionID]; dup {
		t.mu.Unlock()
		logger.Debugf("重复平仓回传被忽略 decision=%s", o.DecisionID)
		return false
	}
	t.apply(o, true)
	var review *Review
	if t.metrics.TotalTrades > 0 && t.metrics.TotalTrades%batchReviewInterval == 0 {
		r := t.buildReview()
		review = &r
	}
	cb := t.OnReview
	t.mu.Unlock()

	if review != nil {
		logger.InfoBlock(review.Summary())
		if cb != nil {
			cb(*review)
		}
	}
	return true
}

// apply 调用方必须持锁（构造期重放除外）。
func (t *Tracker) apply(o TradeOutcome, persist bool) {
	t.seen[o.DecisionID] = struct{}{}
	m := &t.metrics
	net := o.NetPnL()

	m.TotalTrades++
	m.TotalPnL = m.TotalPnL.Add(net)
	m.TotalFees = m.TotalFees.Add(o.Fee)

	if o.Win() {
		// 平均值增量更新，避免保留全量样本
		m.AvgWin = incrementalMean(m.AvgWin, net, m.WinningTrades)
		m.WinningTrades++
		if m.CurrentStreak > 0 {
			m.CurrentStreak++
		} else {
			m.CurrentStreak = 1
		}
		if m.CurrentStreak > m.BestStreak {
			m.BestStreak = m.CurrentStreak
		}
	} else {
		m.AvgLoss = incrementalMean(m.AvgLoss, net.Neg(), m.LosingTrades)
		m.LosingTrades++
		if m.CurrentStreak < 0 {
			m.CurrentStreak--
		} else {
			m.CurrentStreak = -1
		}
		if m.CurrentStreak < m.WorstStreak {
			m.WorstStreak = m.CurrentStreak
		}
	}

	t.recent = append(t.recent, o)
	if len(t.recent) > batchReviewInterval*3 {
		t.recent = t.recent[1:]
	}

	if persist && t.store != nil {
		if err := t.store.SaveOutcome(o); err != nil {
			logger.Warnf("平仓记录落库失败 decision=%s: %v", o.DecisionID, err)
		}
	}
}

func incrementalMean(mean, value decimal.Decimal, n int) decimal.Decimal {
	count := decimal.NewFromInt(int64(n + 1))
	return mean.Mul(decimal.NewFromInt(int64(n))).Add(value).Div(count)
}

// Snapshot 返回当前指标副本。
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// RecentOutcomes 返回滚动窗口副本，供报表使用。
func (t *Tracker) RecentOutcomes() []TradeOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TradeOutcome, len(t.recent))
	copy(out, t.recent)
	return out
}
