package ensemble

// MajorityAggregator 简单多数投票：一人一票，票数最多的动作胜出。
// 平票视为分歧，落到 HOLD。置信度取胜方的平均置信度再做失败折减。
type MajorityAggregator struct {
	baseAggregator
}

func (MajorityAggregator) Name() string { return "majority" }

func (a MajorityAggregator) Aggregate(responses []ProviderResponse, weights map[string]float64) (Aggregate, error) {
	succ, err := a.successesOrErr(responses)
	if err != nil {
		return Aggregate{}, err
	}

	counts := map[Action]int{}
	confSum := map[Action]float64{}
	for _, r := range succ {
		counts[r.Action]++
		confSum[r.Action] += r.Confidence
	}

	winner := ActionHold
	best := 0
	tied := false
	for _, act := range []Action{ActionBuy, ActionSell, ActionHold} {
		c := counts[act]
		if c > best {
			winner, best, tied = act, c, false
		} else if c == best && c > 0 && act != winner {
			tied = true
		}
	}
	if tied {
		winner = ActionHold
	}

	confidence := 0.0
	if n := counts[winner]; n > 0 {
		confidence = confSum[winner] / float64(n)
	}
	confidence = a.discount(confidence, len(succ), len(responses))

	mass := map[Action]float64{}
	for act, c := range counts {
		mass[act] = float64(c) / float64(len(succ))
	}

	return Aggregate{
		Action:         winner,
		Confidence:     confidence,
		Reasoning:      a.joinReasoning(succ),
		AgreementScore: mass[winner],
		Votes:          voteBreakdown(mass),
	}, nil
}
