package ensemble

import (
	"fmt"
	"sort"

	textutil "arbiter/internal/pkg/text"
)

// Aggregator 把一组顾问响应压成单个聚合结果。
type Aggregator interface {
	Name() string
	Aggregate(responses []ProviderResponse, weights map[string]float64) (Aggregate, error)
}

// NewAggregator 按策略名构造聚合器。stacking 在模型缺失时
// 自动回退到 weighted。
func NewAggregator(strategy string, minProviders, reasoningMaxBytes int, model *StackingModel) (Aggregator, error) {
	base := baseAggregator{MinProviders: minProviders, ReasoningMaxBytes: reasoningMaxBytes}
	switch strategy {
	case "weighted":
		return WeightedAggregator{baseAggregator: base}, nil
	case "majority":
		return MajorityAggregator{baseAggregator: base}, nil
	case "stacking":
		return StackingAggregator{baseAggregator: base, Model: model}, nil
	default:
		return nil, fmt.Errorf("unknown voting strategy %q", strategy)
	}
}

type baseAggregator struct {
	MinProviders      int
	ReasoningMaxBytes int
}

// successesOrErr 过滤出成功响应并执行法定人数检查。
func (b baseAggregator) successesOrErr(responses []ProviderResponse) ([]ProviderResponse, error) {
	succ := make([]ProviderResponse, 0, len(responses))
	for _, r := range responses {
		if r.Succeeded() {
			succ = append(succ, r)
		}
	}
	min := b.MinProviders
	if min <= 0 {
		min = 1
	}
	if len(succ) < min {
		return nil, fmt.Errorf("%w: %d/%d succeeded (need %d)",
			ErrInsufficientProviders, len(succ), len(responses), min)
	}
	return succ, nil
}

// discount 按失败比例折减置信度：confidence *= success/total。
func (b baseAggregator) discount(confidence float64, successes, total int) float64 {
	if total <= 0 {
		return 0
	}
	out := confidence * float64(successes) / float64(total)
	if out < 0 {
		return 0
	}
	if out > 100 {
		return 100
	}
	return out
}

func (b baseAggregator) joinReasoning(responses []ProviderResponse) string {
	parts := make([]string, 0, len(responses))
	for _, r := range responses {
		if r.Reasoning == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", r.Provider, r.Reasoning))
	}
	max := b.ReasoningMaxBytes
	if max <= 0 {
		max = 2000
	}
	return textutil.JoinBounded(parts, "\n", max)
}

// voteBreakdown 把每个动作的归一化权重整理成稳定有序的列表。
func voteBreakdown(mass map[Action]float64) []ActionVote {
	out := make([]ActionVote, 0, len(mass))
	for act, w := range mass {
		out = append(out, ActionVote{Action: act, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Action < out[j].Action
	})
	return out
}
