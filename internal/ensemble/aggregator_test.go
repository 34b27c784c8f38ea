package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resp(provider string, action Action, confidence float64) ProviderResponse {
	return ProviderResponse{Provider: provider, Action: action, Confidence: confidence, Reasoning: "r-" + provider}
}

func failedResp(provider string, err error) ProviderResponse {
	return ProviderResponse{Provider: provider, Err: err}
}

func TestWeightedAggregator_MajorityBuyWins(t *testing.T) {
	agg := WeightedAggregator{baseAggregator{MinProviders: 2}}
	responses := []ProviderResponse{
		resp("a", ActionBuy, 80),
		resp("b", ActionBuy, 60),
		resp("c", ActionSell, 50),
	}

	out, err := agg.Aggregate(responses, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, out.Action)
	// 等权：(0.8+0.6-0.5)/3 = 0.3 → 置信度 30，无失败不折减
	assert.InDelta(t, 30.0, out.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, out.AgreementScore, 1e-9)
	assert.Equal(t, ActionBuy, out.Votes[0].Action)
}

func TestWeightedAggregator_WeightsTiltOutcome(t *testing.T) {
	agg := WeightedAggregator{baseAggregator{MinProviders: 1}}
	responses := []ProviderResponse{
		resp("heavy", ActionSell, 90),
		resp("light", ActionBuy, 90),
	}
	weights := map[string]float64{"heavy": 3, "light": 1}

	out, err := agg.Aggregate(responses, weights)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, out.Action)
	assert.InDelta(t, 0.75, out.AgreementScore, 1e-9)
}

func TestWeightedAggregator_FailureDiscountsConfidence(t *testing.T) {
	agg := WeightedAggregator{baseAggregator{MinProviders: 2}}
	responses := []ProviderResponse{
		resp("a", ActionBuy, 100),
		resp("b", ActionBuy, 100),
		failedResp("c", assert.AnError),
		failedResp("d", assert.AnError),
	}

	out, err := agg.Aggregate(responses, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)
	// 原始置信度 100，2/4 成功 → 50
	assert.InDelta(t, 50.0, out.Confidence, 1e-9)
}

func TestWeightedAggregator_QuorumFailure(t *testing.T) {
	agg := WeightedAggregator{baseAggregator{MinProviders: 2}}
	responses := []ProviderResponse{
		resp("a", ActionBuy, 80),
		failedResp("b", assert.AnError),
		failedResp("c", assert.AnError),
	}

	_, err := agg.Aggregate(responses, nil)
	assert.ErrorIs(t, err, ErrInsufficientProviders)
}

func TestMajorityAggregator_Plurality(t *testing.T) {
	agg := MajorityAggregator{baseAggregator{MinProviders: 2}}
	responses := []ProviderResponse{
		resp("a", ActionBuy, 80),
		resp("b", ActionBuy, 60),
		resp("c", ActionSell, 95),
	}

	out, err := agg.Aggregate(responses, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)
	// 胜方平均置信度 (80+60)/2
	assert.InDelta(t, 70.0, out.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, out.AgreementScore, 1e-9)
}

func TestMajorityAggregator_TieFallsToHold(t *testing.T) {
	agg := MajorityAggregator{baseAggregator{MinProviders: 2}}
	responses := []ProviderResponse{
		resp("a", ActionBuy, 90),
		resp("b", ActionSell, 90),
	}

	out, err := agg.Aggregate(responses, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, out.Action)
}

func TestStackingAggregator_NilModelFallsBackToWeighted(t *testing.T) {
	stacking := StackingAggregator{baseAggregator: baseAggregator{MinProviders: 2}}
	weighted := WeightedAggregator{baseAggregator{MinProviders: 2}}
	responses := []ProviderResponse{
		resp("a", ActionBuy, 80),
		resp("b", ActionBuy, 60),
		resp("c", ActionSell, 50),
	}

	got, err := stacking.Aggregate(responses, nil)
	require.NoError(t, err)
	want, err := weighted.Aggregate(responses, nil)
	require.NoError(t, err)
	assert.Equal(t, want.Action, got.Action)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
}

func TestStackingAggregator_CoefficientsOverrideVotes(t *testing.T) {
	model := &StackingModel{Coefficients: map[string]float64{
		"trusted":  1.0,
		"contrary": -0.2, // 长期反向指标：它喊买按卖计
	}}
	agg := StackingAggregator{baseAggregator: baseAggregator{MinProviders: 1}, Model: model}
	responses := []ProviderResponse{
		resp("trusted", ActionSell, 80),
		resp("contrary", ActionSell, 100),
	}

	out, err := agg.Aggregate(responses, nil)
	require.NoError(t, err)
	// trusted 卖出 -0.8，contrary 卖出经负系数变成 +0.2，合计 -0.6 → SELL
	assert.Equal(t, ActionSell, out.Action)
	assert.InDelta(t, 50.0, out.Confidence, 1e-9) // 0.6/1.2 → 50
}

func TestStackingAggregator_AllZeroCoefsFallsBack(t *testing.T) {
	model := &StackingModel{Coefficients: map[string]float64{"other": 1}}
	agg := StackingAggregator{baseAggregator: baseAggregator{MinProviders: 1}, Model: model}
	responses := []ProviderResponse{resp("a", ActionBuy, 80)}

	out, err := agg.Aggregate(responses, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)
}

func TestNewAggregator_UnknownStrategy(t *testing.T) {
	_, err := NewAggregator("quantum", 2, 0, nil)
	assert.Error(t, err)
}

func TestNormalizeWeights_SumsToOne(t *testing.T) {
	cases := []struct {
		name    string
		weights map[string]float64
		active  []string
	}{
		{"equal default", nil, []string{"a", "b", "c"}},
		{"mixed", map[string]float64{"a": 3.5, "b": 0.1}, []string{"a", "b", "c"}},
		{"excluded provider dropped", map[string]float64{"a": 1, "dead": 9}, []string{"a", "b"}},
		{"nonpositive treated as one", map[string]float64{"a": -2, "b": 0}, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := NormalizeWeights(tc.weights, tc.active)
			require.Len(t, out, len(tc.active))
			sum := 0.0
			for _, w := range out {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
			_, leaked := out["dead"]
			assert.False(t, leaked)
		})
	}

	assert.Empty(t, NormalizeWeights(map[string]float64{"a": 1}, nil))
}
