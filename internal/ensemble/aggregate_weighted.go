package ensemble

// WeightedAggregator 加权投票：每个顾问的票 = 权重 × (置信度/100) × 动作方向。
// 加权和的符号决定动作，幅度映射为置信度，失败顾问按比例折减。
type WeightedAggregator struct {
	baseAggregator
}

func (WeightedAggregator) Name() string { return "weighted" }

func (a WeightedAggregator) Aggregate(responses []ProviderResponse, weights map[string]float64) (Aggregate, error) {
	succ, err := a.successesOrErr(responses)
	if err != nil {
		return Aggregate{}, err
	}
	norm := NormalizeWeights(weights, successfulIDs(responses))

	score := 0.0
	mass := map[Action]float64{}
	for _, r := range succ {
		w := norm[r.Provider]
		score += w * (r.Confidence / 100.0) * float64(r.Action.Score())
		mass[r.Action] += w
	}

	action := ActionHold
	if score > 0 {
		action = ActionBuy
	} else if score < 0 {
		action = ActionSell
	}

	confidence := score
	if confidence < 0 {
		confidence = -confidence
	}
	confidence = a.discount(confidence*100, len(succ), len(responses))

	return Aggregate{
		Action:         action,
		Confidence:     confidence,
		Reasoning:      a.joinReasoning(succ),
		AgreementScore: mass[action],
		Votes:          voteBreakdown(mass),
	}, nil
}
