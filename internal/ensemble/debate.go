package ensemble

import (
	"context"
	"fmt"

	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"

	"golang.org/x/sync/errgroup"
)

// 辩论模式的固定权重：裁判一票顶多空双方之和。
const (
	debateJudgeWeight    = 2.0
	debateAdvocateWeight = 1.0
)

// DebateCombiner 三方辩论：多头、空头各陈词一次，裁判裁决。
// 合成时裁判权重最大；裁判失联时退化为多空加权对冲。
type DebateCombiner struct {
	Dispatcher        *Dispatcher
	ReasoningMaxBytes int
}

// Run 并发询问三个角色并合成结果。至少需要一个角色成功，
// 否则返回 ErrInsufficientProviders。
func (c *DebateCombiner) Run(ctx context.Context, bull, bear, judge provider.AdvisorProvider, prompts map[provider.Role]Prompt) (Aggregate, []ProviderResponse, error) {
	advisors := make([]provider.AdvisorProvider, 0, 3)
	roleOf := make(map[string]provider.Role, 3)
	add := func(adv provider.AdvisorProvider, role provider.Role) {
		if adv == nil {
			return
		}
		advisors = append(advisors, adv)
		roleOf[adv.ID()] = role
	}
	add(bull, provider.RoleBull)
	add(bear, provider.RoleBear)
	add(judge, provider.RoleJudge)
	if len(advisors) == 0 {
		return Aggregate{}, nil, fmt.Errorf("%w: no debate roles configured", ErrInsufficientProviders)
	}

	// 角色提示词各不相同，不能走共享 prompt 的批量通道。
	responses := make([]ProviderResponse, len(advisors))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, adv := range advisors {
		i, adv := i, adv
		prompt := prompts[roleOf[adv.ID()]]
		eg.Go(func() error {
			responses[i] = c.Dispatcher.queryOne(egCtx, adv, prompt)
			return nil
		})
	}
	_ = eg.Wait()

	weights := map[string]float64{}
	judgeAlive := false
	for _, r := range responses {
		if !r.Succeeded() {
			continue
		}
		switch roleOf[r.Provider] {
		case provider.RoleJudge:
			weights[r.Provider] = debateJudgeWeight
			judgeAlive = true
		default:
			weights[r.Provider] = debateAdvocateWeight
		}
	}
	if len(weights) == 0 {
		return Aggregate{}, responses, fmt.Errorf("%w: all debate roles failed", ErrInsufficientProviders)
	}
	if !judgeAlive {
		logger.Warnf("辩论裁判失联，退化为多空加权对冲")
	}

	agg := WeightedAggregator{baseAggregator: baseAggregator{
		MinProviders:      1,
		ReasoningMaxBytes: c.ReasoningMaxBytes,
	}}
	out, err := agg.Aggregate(responses, weights)
	if err != nil {
		return Aggregate{}, responses, err
	}
	return out, responses, nil
}
