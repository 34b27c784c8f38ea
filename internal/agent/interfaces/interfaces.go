package interfaces

import (
	"context"

	"arbiter/internal/ensemble"
	"arbiter/internal/perf"
)

// MarketContextBuilder builds per-asset market context (price action,
// technical indicators, regime label) for the reasoning step.
type MarketContextBuilder interface {
	Build(ctx context.Context, assetPair string) (ensemble.MarketContext, error)
}

// RiskGatekeeper validates a decision before execution. The agent does not
// implement risk math; it only honors the verdict and caches rejections.
type RiskGatekeeper interface {
	ValidateTrade(ctx context.Context, d ensemble.Decision, mctx ensemble.MarketContext) (approved bool, reason string, err error)
}

// ExecutionResult is the platform's acknowledgement of a placed trade.
type ExecutionResult struct {
	OrderID     string
	FilledPrice float64
}

// PortfolioSnapshot is the platform's account-level view.
type PortfolioSnapshot struct {
	TotalValue float64
	// DailyPnLPct is today's signed P&L as a fraction (-0.055 = -5.5%).
	DailyPnLPct float64
}

// TradingPlatform executes trades and reports portfolio state.
type TradingPlatform interface {
	ExecuteTrade(ctx context.Context, d ensemble.Decision) (ExecutionResult, error)
	GetPortfolioBreakdown(ctx context.Context) (PortfolioSnapshot, error)
}

// PortfolioMemory records trade outcomes and produces memory context
// for advisor prompts.
type PortfolioMemory interface {
	RecordTradeOutcome(ctx context.Context, o perf.TradeOutcome) error
	GenerateContext(ctx context.Context, assetPair string) (string, error)
}

// TradeMonitor reports newly closed trades since the previous poll.
type TradeMonitor interface {
	GetClosedTrades(ctx context.Context) ([]perf.TradeOutcome, error)
}

// DecisionLookup resolves decision history for outcome attribution.
type DecisionLookup interface {
	GetDecision(id string) (*ensemble.Decision, error)
}
