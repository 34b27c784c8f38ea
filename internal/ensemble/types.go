package ensemble

import (
	"strings"
	"time"
)

// 中文说明：
// 本文件定义顾问响应、聚合结果与最终决策的数据结构，
// 供调度器、聚合器与编排器使用。

// Action 是顾问可给出的三种动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// NormalizeAction 容忍大小写与常见别名，未知动作返回空串。
func NormalizeAction(raw string) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long", "open_long":
		return ActionBuy
	case "sell", "short", "open_short":
		return ActionSell
	case "hold", "wait", "none":
		return ActionHold
	default:
		return ""
	}
}

// Score 把动作映射为有符号分值，供加权投票使用。
func (a Action) Score() float64 {
	switch a {
	case ActionBuy:
		return 1
	case ActionSell:
		return -1
	default:
		return 0
	}
}

// ProviderResponse 单个顾问对某资产的一次原始建议。临时对象，不直接落库。
type ProviderResponse struct {
	Provider   string
	Action     Action
	Confidence float64 // [0,100]
	Reasoning  string
	LatencyMs  int64
	Err        error
}

func (r ProviderResponse) Succeeded() bool { return r.Err == nil && r.Action != "" }

// Phase 标记最终决策产生于哪个阶段。
type Phase string

const (
	PhaseOne    Phase = "PHASE1"
	PhaseTwo    Phase = "PHASE2"
	PhaseVetoed Phase = "VETOED"
)

// Aggregate 聚合器输出：单个动作 + 一致度。
type Aggregate struct {
	Action         Action
	Confidence     float64 // [0,100]
	Reasoning      string
	AgreementScore float64 // [0,1]
	Votes          []ActionVote
}

// ActionVote 记录某动作获得的归一化权重，用于审计展示。
type ActionVote struct {
	Action Action  `json:"action"`
	Weight float64 `json:"weight"`
}

// Decision 最终决策。由编排器生成后即不可变。
type Decision struct {
	ID             string             `json:"id"`
	AssetPair      string             `json:"asset_pair"`
	Action         Action             `json:"action"`
	Confidence     float64            `json:"confidence"`
	Reasoning      string             `json:"reasoning"`
	PositionSizing float64            `json:"position_sizing,omitempty"`
	Contributing   []ProviderResponse `json:"-"`
	Phase          Phase              `json:"phase"`
	AgreementScore float64            `json:"agreement_score"`
	Regime         string             `json:"regime,omitempty"`
	// 被否决时保留原始动作与置信度作为元数据
	VetoedAction     Action  `json:"vetoed_action,omitempty"`
	VetoedConfidence float64 `json:"vetoed_confidence,omitempty"`
	VetoScore        float64 `json:"veto_score,omitempty"`
	CreatedAt        time.Time
}

// Actionable 返回该决策是否需要进入风控/执行链路。
func (d Decision) Actionable() bool {
	return d.Action == ActionBuy || d.Action == ActionSell
}

// FailureRecord 结构化失败记录：供审计与通知，不是异常。
type FailureRecord struct {
	AssetPair string    `json:"asset_pair"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Outcome 是编排器边界上的判别式结果：二者有且仅有其一非空。
type Outcome struct {
	Decision *Decision
	Failure  *FailureRecord
}

// MarketContext 外部行情分析器产出的上下文。
type MarketContext struct {
	AssetPair      string
	Price          float64
	Summary        string // 供提示词使用的浓缩描述
	Regime         string // trend_up | trend_down | range | volatile
	SentimentScore float64 // [-1,1]，负值代表恐慌
	RiskScore      float64 // [0,1]，越高越危险
}
