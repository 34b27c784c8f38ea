package ensemble

import (
	"fmt"
	"os"

	"arbiter/internal/logger"

	"gopkg.in/yaml.v3"
)

// StackingModel 是离线训练出的线性组合器：对每个顾问学一个系数，
// 外加一个整体偏置。系数可以为负（长期反向指标的顾问）。
type StackingModel struct {
	Bias         float64            `yaml:"bias"`
	Coefficients map[string]float64 `yaml:"coefficients"`
	// DefaultCoef 给模型没见过的顾问兜底，零值表示忽略该顾问。
	DefaultCoef float64 `yaml:"default_coef"`
}

// LoadStackingModel 从 YAML 读组合器。path 为空返回 nil 模型（触发回退）。
func LoadStackingModel(path string) (*StackingModel, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stacking model: %w", err)
	}
	var m StackingModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse stacking model %s: %w", path, err)
	}
	if len(m.Coefficients) == 0 {
		return nil, fmt.Errorf("stacking model %s has no coefficients", path)
	}
	return &m, nil
}

// StackingAggregator 用学到的系数组合元特征（每个顾问的方向×置信度）。
// 模型缺失时回退到加权投票，保证聚合永远有结果。
type StackingAggregator struct {
	baseAggregator
	Model *StackingModel
}

func (StackingAggregator) Name() string { return "stacking" }

func (a StackingAggregator) Aggregate(responses []ProviderResponse, weights map[string]float64) (Aggregate, error) {
	if a.Model == nil {
		logger.Debugf("stacking 组合器未加载，回退加权投票")
		return WeightedAggregator{baseAggregator: a.baseAggregator}.Aggregate(responses, weights)
	}
	succ, err := a.successesOrErr(responses)
	if err != nil {
		return Aggregate{}, err
	}

	score := a.Model.Bias
	mass := map[Action]float64{}
	coefTotal := 0.0
	for _, r := range succ {
		coef, ok := a.Model.Coefficients[r.Provider]
		if !ok {
			coef = a.Model.DefaultCoef
		}
		if coef == 0 {
			continue
		}
		score += coef * (r.Confidence / 100.0) * float64(r.Action.Score())
		abs := coef
		if abs < 0 {
			abs = -abs
		}
		mass[r.Action] += abs
		coefTotal += abs
	}
	if coefTotal == 0 {
		logger.Warnf("stacking 组合器对本批顾问全部零系数，回退加权投票")
		return WeightedAggregator{baseAggregator: a.baseAggregator}.Aggregate(responses, weights)
	}
	for act := range mass {
		mass[act] /= coefTotal
	}

	action := ActionHold
	if score > 0 {
		action = ActionBuy
	} else if score < 0 {
		action = ActionSell
	}

	confidence := score / coefTotal
	if confidence < 0 {
		confidence = -confidence
	}
	if confidence > 1 {
		confidence = 1
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
