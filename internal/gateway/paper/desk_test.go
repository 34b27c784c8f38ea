package paper

import (
	"context"
	"testing"
	"time"

	"arbiter/internal/ensemble"
	"arbiter/internal/perf"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPrice(p float64) PriceFn {
	return func(context.Context, string) (float64, error) { return p, nil }
}

func pnlFloat(t *testing.T, d decimal.Decimal) float64 {
	t.Helper()
	f, _ := d.Float64()
	return f
}

func outcomeFor(asset string, pnl float64) perf.TradeOutcome {
	return perf.TradeOutcome{
		DecisionID: asset + "-o",
		AssetPair:  asset,
		PnL:        decimal.NewFromFloat(pnl),
		ClosedAt:   time.Now(),
	}
}

func decision(id, asset string, action ensemble.Action) ensemble.Decision {
	return ensemble.Decision{ID: id, AssetPair: asset, Action: action, Confidence: 80, Regime: "trend_up"}
}

func TestDesk_ValidateTrade(t *testing.T) {
	d := NewDesk(Config{MaxPositions: 2, MaxRiskScore: 0.8}, fixedPrice(100))
	ctx := context.Background()

	ok, _, err := d.ValidateTrade(ctx, decision("d1", "BTC/USDT", ensemble.ActionBuy), ensemble.MarketContext{RiskScore: 0.3})
	require.NoError(t, err)
	assert.True(t, ok)

	// 行情风险分超标
	ok, reason, _ := d.ValidateTrade(ctx, decision("d1", "BTC/USDT", ensemble.ActionBuy), ensemble.MarketContext{RiskScore: 0.95})
	assert.False(t, ok)
	assert.Contains(t, reason, "风险分")

	// 同向重复开仓
	_, err = d.ExecuteTrade(ctx, decision("d1", "BTC/USDT", ensemble.ActionBuy))
	require.NoError(t, err)
	ok, reason, _ = d.ValidateTrade(ctx, decision("d2", "BTC/USDT", ensemble.ActionBuy), ensemble.MarketContext{})
	assert.False(t, ok)
	assert.Contains(t, reason, "同向")

	// 反向换仓不受仓位数限制
	ok, _, _ = d.ValidateTrade(ctx, decision("d3", "BTC/USDT", ensemble.ActionSell), ensemble.MarketContext{})
	assert.True(t, ok)

	// 新资产触发仓位上限
	_, err = d.ExecuteTrade(ctx, decision("d4", "ETH/USDT", ensemble.ActionBuy))
	require.NoError(t, err)
	ok, reason, _ = d.ValidateTrade(ctx, decision("d5", "SOL/USDT", ensemble.ActionBuy), ensemble.MarketContext{})
	assert.False(t, ok)
	assert.Contains(t, reason, "上限")
}

func TestDesk_ReverseSignalClosesAndReports(t *testing.T) {
	price := 100.0
	d := NewDesk(Config{StakePerTrade: 1000, FeeRate: 0.001}, func(context.Context, string) (float64, error) {
		return price, nil
	})
	ctx := context.Background()

	_, err := d.ExecuteTrade(ctx, decision("open", "BTC/USDT", ensemble.ActionBuy))
	require.NoError(t, err)

	// 涨 10% 后反向信号平多开空
	price = 110
	res, err := d.ExecuteTrade(ctx, decision("flip", "BTC/USDT", ensemble.ActionSell))
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)

	outs, err := d.GetClosedTrades(ctx)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	o := outs[0]
	assert.Equal(t, "open", o.DecisionID)
	assert.Equal(t, "trend_up", o.Regime)
	// qty = 1000/100 = 10，pnl = 10 * (110-100) = 100
	assert.InDelta(t, 100, pnlFloat(t, o.PnL), 1e-9)
	// fee = (100+110) * 10 * 0.001 = 2.1
	assert.InDelta(t, 2.1, pnlFloat(t, o.Fee), 1e-9)
	assert.True(t, o.Win())

	// 待领取队列是一次性的
	outs, _ = d.GetClosedTrades(ctx)
	assert.Empty(t, outs)
}

func TestDesk_ShortPositionPnL(t *testing.T) {
	price := 200.0
	d := NewDesk(Config{StakePerTrade: 1000}, func(context.Context, string) (float64, error) {
		return price, nil
	})
	ctx := context.Background()

	_, err := d.ExecuteTrade(ctx, decision("short", "ETH/USDT", ensemble.ActionSell))
	require.NoError(t, err)

	price = 180
	_, err = d.ExecuteTrade(ctx, decision("cover", "ETH/USDT", ensemble.ActionBuy))
	require.NoError(t, err)

	outs, _ := d.GetClosedTrades(ctx)
	require.Len(t, outs, 1)
	// 空头价格下跌盈利：qty = 5，pnl = 5 * (200-180) = 100
	assert.InDelta(t, 100, pnlFloat(t, outs[0].PnL), 1e-9)
}

func TestDesk_PortfolioTracksDailyPnL(t *testing.T) {
	price := 100.0
	d := NewDesk(Config{InitialEquity: 10000, StakePerTrade: 1000}, func(context.Context, string) (float64, error) {
		return price, nil
	})
	ctx := context.Background()

	snap, err := d.GetPortfolioBreakdown(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000, snap.TotalValue, 1e-9)
	assert.InDelta(t, 0, snap.DailyPnLPct, 1e-9)

	_, err = d.ExecuteTrade(ctx, decision("d1", "BTC/USDT", ensemble.ActionBuy))
	require.NoError(t, err)
	price = 90
	_, err = d.ExecuteTrade(ctx, decision("d2", "BTC/USDT", ensemble.ActionSell))
	require.NoError(t, err)

	// 亏 100：当日损益 -1%
	snap, _ = d.GetPortfolioBreakdown(ctx)
	assert.InDelta(t, 9900, snap.TotalValue, 1e-9)
	assert.InDelta(t, -0.01, snap.DailyPnLPct, 1e-9)
}

func TestDesk_DayRolloverResetsBaseline(t *testing.T) {
	price := 100.0
	now := time.Now()
	d := NewDesk(Config{InitialEquity: 10000, StakePerTrade: 1000}, func(context.Context, string) (float64, error) {
		return price, nil
	})
	d.nowFn = func() time.Time { return now }
	ctx := context.Background()

	_, err := d.ExecuteTrade(ctx, decision("d1", "BTC/USDT", ensemble.ActionBuy))
	require.NoError(t, err)
	price = 90
	_, err = d.ExecuteTrade(ctx, decision("d2", "BTC/USDT", ensemble.ActionSell))
	require.NoError(t, err)

	// 次日基准重置为当前权益
	d.nowFn = func() time.Time { return now.Add(24 * time.Hour) }
	snap, _ := d.GetPortfolioBreakdown(ctx)
	assert.InDelta(t, 0, snap.DailyPnLPct, 1e-9)
}

func TestDesk_InvalidPriceRejected(t *testing.T) {
	d := NewDesk(Config{}, fixedPrice(0))
	_, err := d.ExecuteTrade(context.Background(), decision("d1", "BTC/USDT", ensemble.ActionBuy))
	assert.Error(t, err)

	noSource := NewDesk(Config{}, nil)
	_, err = noSource.ExecuteTrade(context.Background(), decision("d1", "BTC/USDT", ensemble.ActionBuy))
	assert.ErrorContains(t, err, "price source")
}

func TestDesk_MemoryContext(t *testing.T) {
	d := NewDesk(Config{}, fixedPrice(100))
	ctx := context.Background()

	text, err := d.GenerateContext(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Contains(t, text, "no recent trades")

	require.NoError(t, d.RecordTradeOutcome(ctx, outcomeFor("BTC/USDT", 25)))
	require.NoError(t, d.RecordTradeOutcome(ctx, outcomeFor("ETH/USDT", -5)))
	text, err = d.GenerateContext(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Contains(t, text, "pnl=25.0000")
	assert.NotContains(t, text, "-5.0000", "其他资产的战绩不混入")
}
