package model

import "gorm.io/datatypes"

// VetoVerdict 否决事件的事后判定状态。
type VetoVerdict int

const (
	VetoVerdictPending   VetoVerdict = 0
	VetoVerdictCorrect   VetoVerdict = 1
	VetoVerdictIncorrect VetoVerdict = 2
)

type DecisionModel struct {
	ID               string         `gorm:"column:id;primaryKey"`
	AssetPair        string         `gorm:"column:asset_pair;index"`
	Action           string         `gorm:"column:action"`
	Confidence       float64        `gorm:"column:confidence"`
	Reasoning        string         `gorm:"column:reasoning;type:TEXT"`
	PositionSizing   float64        `gorm:"column:position_sizing"`
	Phase            string         `gorm:"column:phase"`
	AgreementScore   float64        `gorm:"column:agreement_score"`
	Regime           string         `gorm:"column:regime"`
	VetoedAction     string         `gorm:"column:vetoed_action"`
	VetoedConfidence float64        `gorm:"column:vetoed_confidence"`
	VetoScore        float64        `gorm:"column:veto_score"`
	ContributingJSON datatypes.JSON `gorm:"column:contributing_json;type:TEXT"`
	CreatedAtUnix    int64          `gorm:"column:created_at;index"`
}

func (DecisionModel) TableName() string { return "decisions" }

type PosteriorModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	Provider      string  `gorm:"column:provider;uniqueIndex:idx_posterior,priority:1"`
	Regime        string  `gorm:"column:regime;uniqueIndex:idx_posterior,priority:2"`
	Alpha         float64 `gorm:"column:alpha"`
	Beta          float64 `gorm:"column:beta"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (PosteriorModel) TableName() string { return "trust_posteriors" }

type VetoEventModel struct {
	ID            int64       `gorm:"column:id;primaryKey"`
	AssetPair     string      `gorm:"column:asset_pair"`
	Score         float64     `gorm:"column:score"`
	Verdict       VetoVerdict `gorm:"column:verdict;index"`
	CreatedAtUnix int64       `gorm:"column:created_at"`
}

func (VetoEventModel) TableName() string { return "veto_events" }

type OutcomeModel struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	DecisionID   string `gorm:"column:decision_id;uniqueIndex"`
	AssetPair    string `gorm:"column:asset_pair;index"`
	PnL          string `gorm:"column:pnl"`
	Fee          string `gorm:"column:fee"`
	ExitPrice    string `gorm:"column:exit_price"`
	Regime       string `gorm:"column:regime"`
	ClosedAtUnix int64  `gorm:"column:closed_at;index"`
}

func (OutcomeModel) TableName() string { return "trade_outcomes" }
