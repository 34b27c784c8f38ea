package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"arbiter/internal/agent/interfaces"
	"arbiter/internal/ensemble"
	"arbiter/internal/logger"
	"arbiter/internal/perf"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 中文说明：
// 纸面交易台：不连真实交易所的默认执行端。开平仓按行情价即时成交，
// 收取固定费率，平仓结果进入待领取队列由 LEARNING 步骤拉走。
// 同时充当风控闸门与组合记忆的开箱实现，生产部署用真实适配器替换。

// PriceFn 按资产取当前价。
type PriceFn func(ctx context.Context, assetPair string) (float64, error)

type position struct {
	DecisionID string
	Action     ensemble.Action
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	Regime     string
	OpenedAt   time.Time
}

type Config struct {
	InitialEquity float64
	StakePerTrade float64
	FeeRate       float64 // 单边费率，如 0.0005
	MaxPositions  int
	MaxRiskScore  float64 // 超过即拒绝，0 表示不启用
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.InitialEquity <= 0 {
		out.InitialEquity = 10000
	}
	if out.StakePerTrade <= 0 {
		out.StakePerTrade = 500
	}
	if out.FeeRate < 0 {
		out.FeeRate = 0
	}
	if out.MaxPositions <= 0 {
		out.MaxPositions = 5
	}
	if out.MaxRiskScore <= 0 {
		out.MaxRiskScore = 0.9
	}
	return out
}

// Desk 同时实现 RiskGatekeeper、TradingPlatform、TradeMonitor 和 PortfolioMemory。
type Desk struct {
	cfg     Config
	priceFn PriceFn

	mu          sync.Mutex
	equity      decimal.Decimal
	dayStart    decimal.Decimal
	dayDate     string
	positions   map[string]*position
	pendingOut  []perf.TradeOutcome
	recentOut   []perf.TradeOutcome
	nowFn       func() time.Time
}

var (
	_ interfaces.RiskGatekeeper  = (*Desk)(nil)
	_ interfaces.TradingPlatform = (*Desk)(nil)
	_ interfaces.TradeMonitor    = (*Desk)(nil)
	_ interfaces.PortfolioMemory = (*Desk)(nil)
)

func NewDesk(cfg Config, priceFn PriceFn) *Desk {
	final := cfg.withDefaults()
	equity := decimal.NewFromFloat(final.InitialEquity)
	return &Desk{
		cfg:       final,
		priceFn:   priceFn,
		equity:    equity,
		dayStart:  equity,
		dayDate:   time.Now().Format("2006-01-02"),
		positions: make(map[string]*position),
		nowFn:     time.Now,
	}
}

// ValidateTrade 基础风控：仓位数上限、同向重复开仓、行情风险分。
func (d *Desk) ValidateTrade(_ context.Context, dec ensemble.Decision, mctx ensemble.MarketContext) (bool, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pos, ok := d.positions[dec.AssetPair]; ok && pos.Action == dec.Action {
		return false, fmt.Sprintf("已有同向持仓 (%s)", pos.Action), nil
	}
	if _, ok := d.positions[dec.AssetPair]; !ok && len(d.positions) >= d.cfg.MaxPositions {
		return false, fmt.Sprintf("持仓数已达上限 %d", d.cfg.MaxPositions), nil
	}
	if d.cfg.MaxRiskScore > 0 && mctx.RiskScore > d.cfg.MaxRiskScore {
		return false, fmt.Sprintf("行情风险分 %.2f 超过 %.2f", mctx.RiskScore, d.cfg.MaxRiskScore), nil
	}
	return true, "", nil
}

// ExecuteTrade 即时成交。反向信号先平旧仓再视为本次开仓。
func (d *Desk) ExecuteTrade(ctx context.Context, dec ensemble.Decision) (interfaces.ExecutionResult, error) {
	price, err := d.currentPrice(ctx, dec.AssetPair)
	if err != nil {
		return interfaces.ExecutionResult{}, fmt.Errorf("fetch price: %w", err)
	}
	p := decimal.NewFromFloat(price)
	if p.LessThanOrEqual(decimal.Zero) {
		return interfaces.ExecutionResult{}, fmt.Errorf("invalid price %.8g for %s", price, dec.AssetPair)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollDayLocked()

	if pos, ok := d.positions[dec.AssetPair]; ok && pos.Action != dec.Action {
		d.closeLocked(dec.AssetPair, pos, p)
	}

	stake := decimal.NewFromFloat(d.cfg.StakePerTrade)
	qty := stake.Div(p)
	d.positions[dec.AssetPair] = &position{
		DecisionID: dec.ID,
		Action:     dec.Action,
		Qty:        qty,
		EntryPrice: p,
		Regime:     dec.Regime,
		OpenedAt:   d.nowFn(),
	}
	logger.Infof("纸面开仓 %s %s qty=%s @%s", dec.AssetPair, dec.Action, qty.StringFixed(6), p.StringFixed(4))
	return interfaces.ExecutionResult{OrderID: uuid.NewString(), FilledPrice: price}, nil
}

// closeLocked 平仓并把结果压入待领取队列。调用方持锁。
func (d *Desk) closeLocked(asset string, pos *position, exit decimal.Decimal) {
	diff := exit.Sub(pos.EntryPrice)
	if pos.Action == ensemble.ActionSell {
		diff = diff.Neg()
	}
	pnl := diff.Mul(pos.Qty)
	fee := pos.EntryPrice.Add(exit).Mul(pos.Qty).Mul(decimal.NewFromFloat(d.cfg.FeeRate))
	out := perf.TradeOutcome{
		DecisionID: pos.DecisionID,
		AssetPair:  asset,
		PnL:        pnl,
		Fee:        fee,
		ExitPrice:  exit,
		Regime:     pos.Regime,
		ClosedAt:   d.nowFn(),
	}
	d.equity = d.equity.Add(out.NetPnL())
	d.pendingOut = append(d.pendingOut, out)
	delete(d.positions, asset)
	logger.Infof("纸面平仓 %s pnl=%s fee=%s", asset, pnl.StringFixed(4), fee.StringFixed(4))
}

// GetPortfolioBreakdown 返回权益与当日损益比例。
func (d *Desk) GetPortfolioBreakdown(_ context.Context) (interfaces.PortfolioSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollDayLocked()
	total, _ := d.equity.Float64()
	pnlPct := 0.0
	if d.dayStart.IsPositive() {
		pnlPct, _ = d.equity.Sub(d.dayStart).Div(d.dayStart).Float64()
	}
	return interfaces.PortfolioSnapshot{TotalValue: total, DailyPnLPct: pnlPct}, nil
}

// GetClosedTrades 取走自上次调用以来的平仓结果。
func (d *Desk) GetClosedTrades(_ context.Context) ([]perf.TradeOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pendingOut
	d.pendingOut = nil
	return out, nil
}

// RecordTradeOutcome 保留最近若干笔结果供提示词引用。
func (d *Desk) RecordTradeOutcome(_ context.Context, o perf.TradeOutcome) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recentOut = append(d.recentOut, o)
	if len(d.recentOut) > 50 {
		d.recentOut = d.recentOut[1:]
	}
	return nil
}

// GenerateContext 渲染该资产的近期战绩摘要。
func (d *Desk) GenerateContext(_ context.Context, assetPair string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	n := 0
	for i := len(d.recentOut) - 1; i >= 0 && n < 5; i-- {
		o := d.recentOut[i]
		if o.AssetPair != assetPair {
			continue
		}
		fmt.Fprintf(&b, "%s pnl=%s\n", o.ClosedAt.Format("01-02 15:04"), o.NetPnL().StringFixed(4))
		n++
	}
	if n == 0 {
		return "no recent trades for " + assetPair, nil
	}
	return b.String(), nil
}

func (d *Desk) currentPrice(ctx context.Context, asset string) (float64, error) {
	if d.priceFn == nil {
		return 0, fmt.Errorf("price source not configured")
	}
	return d.priceFn(ctx, asset)
}

// rollDayLocked 日界时重置当日基准权益。调用方持锁。
func (d *Desk) rollDayLocked() {
	today := d.nowFn().Format("2006-01-02")
	if today != d.dayDate {
		d.dayDate = today
		d.dayStart = d.equity
	}
}
