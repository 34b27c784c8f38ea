package ensemble

import (
	"context"
	"errors"
	"fmt"

	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
)

// EscalationController 实现两段式成本控制：
// 先问便宜的一线顾问，只有分歧过大或成功数不足法定人数时，
// 才追加昂贵的二线顾问，合并两批响应后重新聚合。
type EscalationController struct {
	Dispatcher *Dispatcher
	Aggregator Aggregator

	// QuorumSize 一线成功响应数达到该值且一致性达标时不升级。
	QuorumSize int
	// AgreementThreshold 一致性低于该值触发升级，取值 (0,1]。
	AgreementThreshold float64
}

// EscalationResult 带上阶段标记和全部响应，供编排层记账。
type EscalationResult struct {
	Aggregate Aggregate
	Phase     Phase
	Responses []ProviderResponse
	Escalated bool
}

// Run 执行两段式查询。两段都无法聚合时返回 ErrEscalationExhausted，
// 响应列表照常带回，失败记录需要它。
func (c *EscalationController) Run(ctx context.Context, phase1, phase2 []provider.AdvisorProvider, prompt Prompt, weights map[string]float64) (EscalationResult, error) {
	if len(phase1) == 0 && len(phase2) == 0 {
		return EscalationResult{}, fmt.Errorf("%w: no advisors configured", ErrInsufficientProviders)
	}

	// 没有一线顾问时直接全员出动，算作升级后的单段。
	if len(phase1) == 0 {
		responses := c.Dispatcher.QueryAll(ctx, phase2, prompt)
		agg, err := c.Aggregator.Aggregate(responses, weights)
		if err != nil {
			return EscalationResult{Phase: PhaseTwo, Responses: responses, Escalated: true},
				fmt.Errorf("%w: %v", ErrEscalationExhausted, err)
		}
		return EscalationResult{Aggregate: agg, Phase: PhaseTwo, Responses: responses, Escalated: true}, nil
	}

	responses := c.Dispatcher.QueryAll(ctx, phase1, prompt)
	agg, err := c.Aggregator.Aggregate(responses, weights)
	if err == nil && !c.shouldEscalate(agg, responses) {
		return EscalationResult{Aggregate: agg, Phase: PhaseOne, Responses: responses}, nil
	}
	if err != nil && !errors.Is(err, ErrInsufficientProviders) {
		return EscalationResult{Phase: PhaseOne, Responses: responses}, err
	}

	if len(phase2) == 0 {
		if err != nil {
			return EscalationResult{Phase: PhaseOne, Responses: responses, Escalated: true},
				fmt.Errorf("%w: %v", ErrEscalationExhausted, err)
		}
		// 想升级但没有二线可用，带着一线结果继续。
		logger.Debugf("需要升级但未配置二线顾问，沿用一线结果 agreement=%.2f", agg.AgreementScore)
		return EscalationResult{Aggregate: agg, Phase: PhaseOne, Responses: responses}, nil
	}

	if err != nil {
		logger.Infof("一线法定人数不足，升级二线顾问: %v", err)
	} else {
		logger.Infof("一线一致性 %.2f 低于阈值 %.2f，升级二线顾问", agg.AgreementScore, c.AgreementThreshold)
	}

	extra := c.Dispatcher.QueryAll(ctx, phase2, prompt)
	merged := mergeResponses(responses, extra)
	agg2, err2 := c.Aggregator.Aggregate(merged, weights)
	if err2 != nil {
		return EscalationResult{Phase: PhaseTwo, Responses: merged, Escalated: true},
			fmt.Errorf("%w: %v", ErrEscalationExhausted, err2)
	}
	return EscalationResult{Aggregate: agg2, Phase: PhaseTwo, Responses: merged, Escalated: true}, nil
}

func (c *EscalationController) shouldEscalate(agg Aggregate, responses []ProviderResponse) bool {
	successes := len(successfulIDs(responses))
	if c.QuorumSize > 0 && successes < c.QuorumSize {
		return true
	}
	if c.AgreementThreshold > 0 && agg.AgreementScore < c.AgreementThreshold {
		return true
	}
	return false
}

// mergeResponses 取两批响应的并集；同一 provider 以后一批为准
// （重试后的二线响应覆盖一线的失败条目）。
func mergeResponses(first, second []ProviderResponse) []ProviderResponse {
	index := make(map[string]int, len(first))
	out := make([]ProviderResponse, 0, len(first)+len(second))
	for _, r := range first {
		index[r.Provider] = len(out)
		out = append(out, r)
	}
	for _, r := range second {
		if i, ok := index[r.Provider]; ok {
			out[i] = r
			continue
		}
		index[r.Provider] = len(out)
		out = append(out, r)
	}
	return out
}
