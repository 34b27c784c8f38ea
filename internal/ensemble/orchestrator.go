package ensemble

import (
	"context"
	"errors"
	"time"

	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"

	"github.com/google/uuid"
)

// WeightSource 提供按行情状态采样的顾问信任权重（Thompson 抽样）。
type WeightSource interface {
	SampleWeights(regime string, providers []string) map[string]float64
}

// DecisionStore 决策持久化契约。
type DecisionStore interface {
	SaveDecision(d *Decision) error
}

// 运行模式。
const (
	ModeSingle   = "single"
	ModeEnsemble = "ensemble"
	ModeDebate   = "debate"
)

// Orchestrator 决策编排器：按模式组织顾问查询，过否决门，落库。
// 这是决策链路的错误边界：永远返回判别式 Outcome，不向上抛错误。
type Orchestrator struct {
	Mode       string
	Registry   *provider.Registry
	Escalation *EscalationController
	Debate     *DebateCombiner
	Veto       *VetoGate
	Dispatcher *Dispatcher

	// Weights 为 nil 时顾问按均等权重参与。
	Weights WeightSource
	// RosterWeights 返回名册文件里的静态权重覆盖，可为 nil。
	RosterWeights func() map[string]float64

	Store DecisionStore
}

// ProduceDecision 对单个资产产出一个决策或一条失败记录。
func (o *Orchestrator) ProduceDecision(ctx context.Context, mctx MarketContext) Outcome {
	switch o.Mode {
	case ModeSingle:
		return o.produceSingle(ctx, mctx)
	case ModeDebate:
		return o.produceDebate(ctx, mctx)
	default:
		return o.produceEnsemble(ctx, mctx)
	}
}

func (o *Orchestrator) produceEnsemble(ctx context.Context, mctx MarketContext) Outcome {
	phase1 := o.Registry.ByTier(provider.TierPhase1)
	phase2 := o.Registry.ByTier(provider.TierPhase2)
	weights := o.resolveWeights(mctx.Regime, advisorIDs(phase1, phase2))

	result, err := o.Escalation.Run(ctx, phase1, phase2, BuildAdvicePrompt(mctx), weights)
	if err != nil {
		return o.failure(mctx.AssetPair, err)
	}
	d := o.buildDecision(mctx, result.Aggregate, result.Responses, result.Phase)
	d = o.Veto.Apply(d, mctx)
	o.persist(&d)
	return Outcome{Decision: &d}
}

func (o *Orchestrator) produceSingle(ctx context.Context, mctx MarketContext) Outcome {
	advisors := o.Registry.ByTier(provider.TierPhase1)
	if len(advisors) == 0 {
		advisors = o.Registry.ByTier(provider.TierPhase2)
	}
	if len(advisors) == 0 {
		return o.failure(mctx.AssetPair, ErrInsufficientProviders)
	}
	responses := o.Dispatcher.QueryAll(ctx, advisors[:1], BuildAdvicePrompt(mctx))
	r := responses[0]
	if !r.Succeeded() {
		return o.failure(mctx.AssetPair, r.Err)
	}
	d := o.buildDecision(mctx, Aggregate{
		Action:         r.Action,
		Confidence:     r.Confidence,
		Reasoning:      r.Reasoning,
		AgreementScore: 1,
	}, responses, PhaseOne)
	d = o.Veto.Apply(d, mctx)
	o.persist(&d)
	return Outcome{Decision: &d}
}

func (o *Orchestrator) produceDebate(ctx context.Context, mctx MarketContext) Outcome {
	bull, _ := o.Registry.ByRole(provider.RoleBull)
	bear, _ := o.Registry.ByRole(provider.RoleBear)
	judge, _ := o.Registry.ByRole(provider.RoleJudge)
	agg, responses, err := o.Debate.Run(ctx, bull, bear, judge, BuildDebatePrompts(mctx))
	if err != nil {
		return o.failure(mctx.AssetPair, err)
	}
	d := o.buildDecision(mctx, agg, responses, PhaseOne)
	d = o.Veto.Apply(d, mctx)
	o.persist(&d)
	return Outcome{Decision: &d}
}

func (o *Orchestrator) buildDecision(mctx MarketContext, agg Aggregate, responses []ProviderResponse, phase Phase) Decision {
	return Decision{
		ID:             uuid.NewString(),
		AssetPair:      mctx.AssetPair,
		Action:         agg.Action,
		Confidence:     agg.Confidence,
		Reasoning:      agg.Reasoning,
		Contributing:   responses,
		Phase:          phase,
		AgreementScore: agg.AgreementScore,
		Regime:         mctx.Regime,
		CreatedAt:      time.Now(),
	}
}

// resolveWeights 合成最终权重：Thompson 采样权重 × 名册静态覆盖。
func (o *Orchestrator) resolveWeights(regime string, ids []string) map[string]float64 {
	var weights map[string]float64
	if o.Weights != nil {
		weights = o.Weights.SampleWeights(regime, ids)
	}
	if o.RosterWeights == nil {
		return weights
	}
	overrides := o.RosterWeights()
	if len(overrides) == 0 {
		return weights
	}
	if weights == nil {
		weights = make(map[string]float64, len(ids))
		for _, id := range ids {
			weights[id] = 1
		}
	}
	for id, factor := range overrides {
		if w, ok := weights[id]; ok && factor > 0 {
			weights[id] = w * factor
		}
	}
	return weights
}

func (o *Orchestrator) persist(d *Decision) {
	if o.Store == nil {
		return
	}
	if err := o.Store.SaveDecision(d); err != nil {
		logger.Errorf("决策落库失败 id=%s: %v", d.ID, err)
	}
	logger.AuditDecision(string(d.Phase), d.AssetPair, decisionSummary(*d))
}

func (o *Orchestrator) failure(assetPair string, err error) Outcome {
	kind := FailureProviderError
	switch {
	case errors.Is(err, ErrEscalationExhausted):
		kind = FailureEscalationExhausted
	case errors.Is(err, ErrInsufficientProviders):
		kind = FailureInsufficientProviders
	}
	rec := &FailureRecord{
		AssetPair: assetPair,
		Kind:      kind,
		Message:   err.Error(),
		At:        time.Now(),
	}
	logger.Warnf("决策失败 asset=%s kind=%s: %v", assetPair, kind, err)
	logger.AuditDecision("FAILURE", assetPair, rec.Message)
	return Outcome{Failure: rec}
}

func advisorIDs(groups ...[]provider.AdvisorProvider) []string {
	out := make([]string, 0, 8)
	for _, g := range groups {
		for _, adv := range g {
			out = append(out, adv.ID())
		}
	}
	return out
}

func decisionSummary(d Decision) string {
	s := string(d.Action)
	if d.Phase == PhaseVetoed {
		s += " (vetoed from " + string(d.VetoedAction) + ")"
	}
	return s
}
