package agent

import (
	"errors"
	"time"
)

// State OODA 循环的状态。
type State string

const (
	StateLearning   State = "LEARNING"
	StatePerception State = "PERCEPTION"
	StateReasoning  State = "REASONING"
	StateRiskCheck  State = "RISK_CHECK"
	StateExecution  State = "EXECUTION"
	StateIdle       State = "IDLE"
	// StateStopped 熔断后的终态，只能通过外部重启离开。
	StateStopped State = "STOPPED"
)

// 单个周期的状态迁移上限。固定图最长路径是 6 步，超出视为失控。
const maxTransitionsPerCycle = 8

var (
	// ErrKillSwitchTriggered 熔断触发，致命：停机并等待外部重启。
	ErrKillSwitchTriggered = errors.New("kill switch triggered")
	// ErrRunawayCycle 单周期迁移次数超限，按编程错误处理。
	ErrRunawayCycle = errors.New("runaway cycle: transition limit exceeded")
	// ErrAgentStopped 代理已停机，step 为空操作。
	ErrAgentStopped = errors.New("agent stopped")
)

// CycleState 供状态页展示的循环快照。
type CycleState struct {
	State           State     `json:"state"`
	CycleCount      int64     `json:"cycle_count"`
	DailyTradeCount int       `json:"daily_trade_count"`
	LastResetDate   string    `json:"last_reset_date"`
	RunningSince    time.Time `json:"running_since"`
	StopReason      string    `json:"stop_reason,omitempty"`
}
