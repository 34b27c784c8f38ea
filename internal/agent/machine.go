package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbiter/internal/agent/interfaces"
	"arbiter/internal/config"
	"arbiter/internal/ensemble"
	"arbiter/internal/gateway/notifier"
	"arbiter/internal/logger"
	"arbiter/internal/perf"
)

// 中文说明：
// OODA 状态机是整个系统的顶层控制器，按固定图推进：
// LEARNING → PERCEPTION → REASONING → {RISK_CHECK|IDLE} → {EXECUTION|IDLE} → LEARNING
// PERCEPTION 里的熔断检查是唯一的真正终态出口，触发后必须外部重启。

// Machine OODA 代理状态机。单 goroutine 驱动，快照方法并发安全。
type Machine struct {
	cfg config.AgentConfig

	orchestrator DecisionProducer
	tracker      PerformanceSource
	weights      OutcomeLearner
	dispatcher   *notifier.Dispatcher

	market   interfaces.MarketContextBuilder
	risk     interfaces.RiskGatekeeper
	platform interfaces.TradingPlatform
	memory   interfaces.PortfolioMemory
	monitor  interfaces.TradeMonitor
	lookup   interfaces.DecisionLookup
	vetoLog  ensemble.VetoStatsStore

	rejections *RejectionCache
	failures   *FailureCounters
	telemetry  *TelemetryQueue

	mu              sync.Mutex
	state           State
	cycleCount      int64
	dailyTradeCount int
	lastResetDate   string
	runningSince    time.Time
	stopReason      string

	// 状态间传递的周期内数据
	collected []collectedDecision
	approved  []collectedDecision

	// 待验证的否决事件：asset → 否决时间
	pendingVetoes map[string]time.Time
}

// collectedDecision 决策与其行情上下文一起流经风控与执行。
type collectedDecision struct {
	Decision ensemble.Decision
	Context  ensemble.MarketContext
}

// DecisionProducer 决策编排器的视图，*ensemble.Orchestrator 原生满足。
type DecisionProducer interface {
	ProduceDecision(ctx context.Context, mctx ensemble.MarketContext) ensemble.Outcome
}

// PerformanceSource 状态机对绩效追踪器的视图，*perf.Tracker 原生满足。
type PerformanceSource interface {
	Snapshot() perf.Metrics
	RecordOutcome(o perf.TradeOutcome) bool
}

// OutcomeLearner 信任权重优化器的更新入口。
type OutcomeLearner interface {
	UpdateFromOutcome(provider, regime string, win bool)
}

// Deps 状态机的全部依赖，显式注入，无包级单例。
type Deps struct {
	Config       config.AgentConfig
	Orchestrator DecisionProducer
	Tracker      PerformanceSource
	Weights      OutcomeLearner
	Dispatcher   *notifier.Dispatcher
	Market       interfaces.MarketContextBuilder
	Risk         interfaces.RiskGatekeeper
	Platform     interfaces.TradingPlatform
	Memory       interfaces.PortfolioMemory
	Monitor      interfaces.TradeMonitor
	Lookup       interfaces.DecisionLookup
	VetoLog      ensemble.VetoStatsStore
	Telemetry    *TelemetryQueue
}

func NewMachine(d Deps) *Machine {
	decay := time.Duration(d.Config.FailureDecaySeconds) * time.Second
	m := &Machine{
		cfg:           d.Config,
		orchestrator:  d.Orchestrator,
		tracker:       d.Tracker,
		weights:       d.Weights,
		dispatcher:    d.Dispatcher,
		market:        d.Market,
		risk:          d.Risk,
		platform:      d.Platform,
		memory:        d.Memory,
		monitor:       d.Monitor,
		lookup:        d.Lookup,
		vetoLog:       d.VetoLog,
		rejections:    NewRejectionCache(),
		failures:      NewFailureCounters(decay),
		telemetry:     d.Telemetry,
		state:         StateLearning,
		lastResetDate: time.Now().Format("2006-01-02"),
		runningSince:  time.Now(),
		pendingVetoes: make(map[string]time.Time),
	}
	if m.telemetry == nil {
		m.telemetry = NewTelemetryQueue(d.Config.TelemetryQueueSize)
	}
	return m
}

// Snapshot 返回循环状态快照。
func (m *Machine) Snapshot() CycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CycleState{
		State:           m.state,
		CycleCount:      m.cycleCount,
		DailyTradeCount: m.dailyTradeCount,
		LastResetDate:   m.lastResetDate,
		RunningSince:    m.runningSince,
		StopReason:      m.stopReason,
	}
}

// Stopped 代理是否已熔断停机。
func (m *Machine) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateStopped
}

// Telemetry 暴露遥测队列给状态页。
func (m *Machine) Telemetry() *TelemetryQueue { return m.telemetry }

// Rejections 暴露冷却缓存给状态页。
func (m *Machine) Rejections() *RejectionCache { return m.rejections }

// RunCycle 跑完一个完整周期（LEARNING 起，IDLE 止）。
// 熔断后直接返回 ErrAgentStopped；迁移超限返回 ErrRunawayCycle。
func (m *Machine) RunCycle(ctx context.Context) error {
	for i := 0; i < maxTransitionsPerCycle; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := m.Step(ctx)
		if err != nil {
			return err
		}
		if next == StateLearning && i > 0 {
			// 回到起点即一个周期结束
			m.mu.Lock()
			m.cycleCount++
			m.mu.Unlock()
			return nil
		}
	}
	logger.Errorf("周期迁移超过 %d 次，强制中断", maxTransitionsPerCycle)
	return ErrRunawayCycle
}

// Step 推进一次状态迁移，返回迁移后的状态。
// 停机后是空操作：状态保持 STOPPED，返回 ErrAgentStopped。
func (m *Machine) Step(ctx context.Context) (State, error) {
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()

	if current == StateStopped {
		return StateStopped, ErrAgentStopped
	}

	var next State
	switch current {
	case StateLearning:
		next = m.stepLearning(ctx)
	case StatePerception:
		next = m.stepPerception(ctx)
	case StateReasoning:
		next = m.stepReasoning(ctx)
	case StateRiskCheck:
		next = m.stepRiskCheck(ctx)
	case StateExecution:
		next = m.stepExecution(ctx)
	case StateIdle:
		next = StateLearning
	default:
		return current, fmt.Errorf("未知状态 %q", current)
	}

	m.mu.Lock()
	// stop() 可能已在 handler 内把状态置为 STOPPED
	if m.state != StateStopped {
		m.state = next
	}
	next = m.state
	m.mu.Unlock()

	if next == StateStopped {
		return next, ErrKillSwitchTriggered
	}
	logger.Debugf("状态迁移 %s -> %s", current, next)
	return next, nil
}

// stop 熔断停机。幂等。
func (m *Machine) stop(reason string) {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	m.stopReason = reason
	m.mu.Unlock()

	logger.Criticalf("熔断触发，代理停机: %s", reason)
	m.telemetry.Push(TelemetryEvent{Kind: TelemetryKillSwitch, Message: reason})
	if m.dispatcher != nil {
		m.dispatcher.Announce("🛑 *熔断触发，代理已停机*\n" + reason + "\n需要人工确认后重启。")
	}
}
