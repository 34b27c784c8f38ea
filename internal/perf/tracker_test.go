package perf

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutcomeStore struct {
	mock.Mock
}

func (m *MockOutcomeStore) SaveOutcome(o TradeOutcome) error {
	return m.Called(o).Error(0)
}

func (m *MockOutcomeStore) LoadOutcomes() ([]TradeOutcome, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TradeOutcome), args.Error(1)
}

func outcome(id string, pnl, fee float64) TradeOutcome {
	return TradeOutcome{
		DecisionID: id,
		AssetPair:  "BTC/USDT",
		PnL:        decimal.NewFromFloat(pnl),
		Fee:        decimal.NewFromFloat(fee),
	}
}

func TestTracker_RecordsExactlyOncePerDecision(t *testing.T) {
	tr := NewTracker(nil)
	assert.True(t, tr.RecordOutcome(outcome("d1", 10, 1)))
	assert.False(t, tr.RecordOutcome(outcome("d1", 10, 1)), "重复回传必须被忽略")

	m := tr.Snapshot()
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.True(t, m.TotalPnL.Equal(decimal.NewFromInt(9)))
}

func TestTracker_StreaksAndAverages(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordOutcome(outcome("w1", 10, 0))
	tr.RecordOutcome(outcome("w2", 20, 0))
	tr.RecordOutcome(outcome("l1", -6, 0))
	tr.RecordOutcome(outcome("l2", -4, 0))
	tr.RecordOutcome(outcome("l3", -2, 0))

	m := tr.Snapshot()
	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, -3, m.CurrentStreak)
	assert.Equal(t, 2, m.BestStreak)
	assert.Equal(t, -3, m.WorstStreak)
	assert.Equal(t, 3, m.ConsecutiveLosses())
	assert.InDelta(t, 0.4, m.WinRate(), 1e-9)
	assert.True(t, m.AvgWin.Equal(decimal.NewFromInt(15)))
	assert.True(t, m.AvgLoss.Equal(decimal.NewFromInt(4)), "平均亏损取正值")
	// 盈利因子 = 30 / 12
	assert.InDelta(t, 2.5, m.ProfitFactor(), 1e-9)
}

func TestTracker_FeeFlipsMarginalWinToLoss(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordOutcome(outcome("d1", 1, 2))
	m := tr.Snapshot()
	assert.Equal(t, 1, m.LosingTrades)
	assert.Zero(t, m.WinningTrades)
}

func TestTracker_BatchReviewEveryTwentyTrades(t *testing.T) {
	tr := NewTracker(nil)
	var reviews []Review
	tr.OnReview = func(r Review) { reviews = append(reviews, r) }

	for i := 0; i < 45; i++ {
		pnl := 10.0
		if i%3 == 0 {
			pnl = -5
		}
		tr.RecordOutcome(outcome(fmt.Sprintf("d%d", i), pnl, 0.5))
	}

	require.Len(t, reviews, 2)
	assert.Equal(t, 20, reviews[0].TradeNumber)
	assert.Equal(t, 40, reviews[1].TradeNumber)
	assert.True(t, reviews[1].AvgCost.Equal(decimal.NewFromFloat(0.5)))
	assert.Greater(t, reviews[1].OutcomeStdDev, 0.0)
}

func TestTracker_KellyGates(t *testing.T) {
	tr := NewTracker(nil)
	var last Review
	tr.OnReview = func(r Review) { last = r }

	// 前 20 笔：样本不足，Kelly 不启用
	for i := 0; i < 20; i++ {
		tr.RecordOutcome(outcome(fmt.Sprintf("a%d", i), 10, 0))
	}
	assert.False(t, last.KellyEligible)
	assert.Contains(t, last.Reason, "样本不足")

	// 到 60 笔：2/3 胜率，赢 10 亏 5，盈亏比 2
	for i := 20; i < 60; i++ {
		pnl := 10.0
		if i%3 == 2 {
			pnl = -5
		}
		tr.RecordOutcome(outcome(fmt.Sprintf("a%d", i), pnl, 0))
	}
	require.True(t, last.KellyEligible, last.Reason)
	// f = W - (1-W)/R，再折半
	w := last.Metrics.WinRate()
	ratio, _ := last.Metrics.AvgWin.Div(last.Metrics.AvgLoss).Float64()
	want := (w - (1-w)/ratio) / 2
	assert.InDelta(t, want, last.KellyFraction, 1e-9)
	assert.Greater(t, last.KellyFraction, 0.0)
}

func TestTracker_KellyRejectsWeakProfitFactor(t *testing.T) {
	m := Metrics{TotalTrades: 60, WinningTrades: 30, LosingTrades: 30,
		AvgWin: decimal.NewFromInt(5), AvgLoss: decimal.NewFromInt(5)}
	ok, _, reason := evaluateKelly(m, 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "盈利因子")
}

func TestTracker_KellyRejectsVolatileOutcomes(t *testing.T) {
	m := Metrics{TotalTrades: 60, WinningTrades: 40, LosingTrades: 20,
		AvgWin: decimal.NewFromInt(10), AvgLoss: decimal.NewFromInt(2)}
	// 平均绝对损益 6，波动上限 18
	ok, _, reason := evaluateKelly(m, 19)
	assert.False(t, ok)
	assert.Contains(t, reason, "波动")
}

func TestTracker_ReplaysHistoryFromStore(t *testing.T) {
	store := new(MockOutcomeStore)
	store.On("LoadOutcomes").Return([]TradeOutcome{
		outcome("h1", 10, 0),
		outcome("h2", -5, 0),
	}, nil)

	tr := NewTracker(store)
	m := tr.Snapshot()
	assert.Equal(t, 2, m.TotalTrades)

	// 重放过的 DecisionID 不会二次计数
	assert.False(t, tr.RecordOutcome(outcome("h1", 10, 0)))

	// 新结果照常落库
	store.On("SaveOutcome", mock.Anything).Return(nil).Once()
	assert.True(t, tr.RecordOutcome(outcome("h3", 3, 0)))
	store.AssertExpectations(t)
}

func TestMetrics_ProfitFactorNoLosses(t *testing.T) {
	m := Metrics{WinningTrades: 5, AvgWin: decimal.NewFromInt(10)}
	assert.InDelta(t, 1e9, m.ProfitFactor(), 1)
	assert.InDelta(t, 0, Metrics{}.ProfitFactor(), 1e-9)
}
