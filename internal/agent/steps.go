package agent

import (
	"context"
	"fmt"
	"time"

	"arbiter/internal/ensemble"
	"arbiter/internal/logger"
	"arbiter/internal/perf"
)

// 否决事件的事后验证窗口：窗口内该资产的下一笔平仓结果用来判定否决对错。
const vetoReviewWindow = 24 * time.Hour

// stepLearning 学习：拉取新平仓的交易，喂给绩效追踪与信任权重优化器。
func (m *Machine) stepLearning(ctx context.Context) State {
	if m.monitor == nil {
		return StatePerception
	}
	outcomes, err := m.monitor.GetClosedTrades(ctx)
	if err != nil {
		logger.Warnf("平仓记录拉取失败，本周期跳过学习: %v", err)
		return StatePerception
	}
	for _, o := range outcomes {
		if !m.tracker.RecordOutcome(o) {
			continue // 重复回传
		}
		m.learnFromOutcome(ctx, o)
	}
	return StatePerception
}

func (m *Machine) learnFromOutcome(ctx context.Context, o perf.TradeOutcome) {
	win := o.Win()
	logger.Infof("学习平仓结果 asset=%s decision=%s win=%v pnl=%s",
		o.AssetPair, o.DecisionID, win, o.NetPnL().StringFixed(4))

	if m.memory != nil {
		if err := m.memory.RecordTradeOutcome(ctx, o); err != nil {
			logger.Warnf("组合记忆写入失败: %v", err)
		}
	}
	m.reviewPendingVeto(o)
	if m.weights == nil || m.lookup == nil {
		return
	}
	d, err := m.lookup.GetDecision(o.DecisionID)
	if err != nil || d == nil {
		logger.Debugf("决策 %s 无法回溯，跳过权重更新: %v", o.DecisionID, err)
		return
	}
	// 与成交动作同向的顾问按交易结果记功过，反向顾问记相反结果，
	// 观望的顾问不动。
	for _, r := range d.Contributing {
		if !r.Succeeded() || r.Action == ensemble.ActionHold {
			continue
		}
		agreed := r.Action == d.Action
		m.weights.UpdateFromOutcome(r.Provider, o.Regime, win == agreed)
	}
}

// reviewPendingVeto 用同资产的下一笔平仓结果事后验证否决：
// 该笔亏了说明当时拦对了。超窗的挂起否决直接作废。
func (m *Machine) reviewPendingVeto(o perf.TradeOutcome) {
	m.mu.Lock()
	vetoedAt, ok := m.pendingVetoes[o.AssetPair]
	if ok {
		delete(m.pendingVetoes, o.AssetPair)
	}
	m.mu.Unlock()
	if !ok || m.vetoLog == nil {
		return
	}
	if o.ClosedAt.Sub(vetoedAt) > vetoReviewWindow {
		return
	}
	correct := !o.Win()
	if err := m.vetoLog.MarkVetoOutcome(correct); err != nil {
		logger.Debugf("否决判定写入失败: %v", err)
	}
}

// stepPerception 感知：日界重置计数，评估三类熔断条件。
// 任一触发即停机，这是唯一的终态出口。
func (m *Machine) stepPerception(ctx context.Context) State {
	today := time.Now().Format("2006-01-02")
	m.mu.Lock()
	if today != m.lastResetDate {
		logger.Infof("日界重置 %s -> %s，当日交易计数清零", m.lastResetDate, today)
		m.lastResetDate = today
		m.dailyTradeCount = 0
	}
	m.mu.Unlock()

	if m.platform != nil {
		snap, err := m.platform.GetPortfolioBreakdown(ctx)
		if err != nil {
			logger.Warnf("组合快照获取失败，跳过损益熔断检查: %v", err)
		} else {
			if loss := m.cfg.KillSwitchLossPct; loss > 0 && snap.DailyPnLPct <= -loss {
				m.stop(fmt.Sprintf("当日损益 %.2f%% 触及止损线 -%.2f%%",
					snap.DailyPnLPct*100, loss*100))
				return StateStopped
			}
			if gain := m.cfg.KillSwitchGainPct; gain > 0 && snap.DailyPnLPct >= gain {
				m.stop(fmt.Sprintf("当日损益 %.2f%% 触及止盈线 +%.2f%%",
					snap.DailyPnLPct*100, gain*100))
				return StateStopped
			}
		}
	}

	metrics := m.tracker.Snapshot()
	if limit := m.cfg.MaxConsecutiveLosses; limit > 0 && metrics.ConsecutiveLosses() >= limit {
		m.stop(fmt.Sprintf("连败 %d 次触及上限 %d", metrics.ConsecutiveLosses(), limit))
		return StateStopped
	}
	if floor := m.cfg.MinWinRate; floor > 0 &&
		metrics.TotalTrades >= m.cfg.MinWinRateSample &&
		metrics.WinRate() < floor {
		m.stop(fmt.Sprintf("胜率 %.1f%% 低于下限 %.1f%% (样本 %d)",
			metrics.WinRate()*100, floor*100, metrics.TotalTrades))
		return StateStopped
	}
	return StateReasoning
}

// stepReasoning 推理：逐资产产出决策，收集过置信度门槛的可执行决策。
func (m *Machine) stepReasoning(ctx context.Context) State {
	m.collected = m.collected[:0]

	m.mu.Lock()
	capReached := m.cfg.MaxDailyTrades > 0 && m.dailyTradeCount >= m.cfg.MaxDailyTrades
	m.mu.Unlock()
	if capReached {
		logger.Infof("当日交易数已达上限 %d，本周期不再产出决策", m.cfg.MaxDailyTrades)
		return StateIdle
	}

	for _, asset := range m.cfg.Assets {
		if cached, reason := m.rejections.Contains(asset); cached {
			logger.Debugf("资产 %s 冷却中，跳过: %s", asset, reason)
			continue
		}
		if n := m.failures.Count(asset); m.cfg.MaxAssetFailures > 0 && n >= m.cfg.MaxAssetFailures {
			logger.Debugf("资产 %s 近期失败 %d 次，暂停重试", asset, n)
			continue
		}
		m.reasonAsset(ctx, asset)
	}

	if len(m.collected) == 0 {
		return StateIdle
	}
	return StateRiskCheck
}

func (m *Machine) reasonAsset(parent context.Context, asset string) {
	timeout := time.Duration(m.cfg.AssetTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	mctx, err := m.market.Build(ctx, asset)
	if err != nil {
		logger.Warnf("行情上下文构建失败 asset=%s: %v", asset, err)
		m.failures.Record(asset)
		m.telemetry.Push(TelemetryEvent{Kind: TelemetryFailure, AssetPair: asset, Message: err.Error()})
		return
	}

	outcome := m.orchestrator.ProduceDecision(ctx, mctx)
	if outcome.Failure != nil {
		m.failures.Record(asset)
		m.telemetry.Push(TelemetryEvent{
			Kind:      TelemetryFailure,
			AssetPair: asset,
			Message:   outcome.Failure.Kind + ": " + outcome.Failure.Message,
		})
		return
	}

	d := *outcome.Decision
	m.failures.Reset(asset)
	m.telemetry.Push(TelemetryEvent{
		Kind:      TelemetryDecision,
		AssetPair: asset,
		Message:   fmt.Sprintf("%s@%.0f phase=%s", d.Action, d.Confidence, d.Phase),
	})

	if d.Phase == ensemble.PhaseVetoed {
		m.mu.Lock()
		m.pendingVetoes[asset] = time.Now()
		m.mu.Unlock()
		return
	}
	if !d.Actionable() {
		return
	}
	if d.Confidence < m.cfg.MinConfidence {
		logger.Debugf("决策置信度 %.0f 低于门槛 %.0f，放弃 asset=%s", d.Confidence, m.cfg.MinConfidence, asset)
		return
	}
	m.collected = append(m.collected, collectedDecision{Decision: d, Context: mctx})
}

// stepRiskCheck 风控：外部闸门逐条审批，拒绝进冷却缓存。
func (m *Machine) stepRiskCheck(ctx context.Context) State {
	m.approved = m.approved[:0]
	cooldown := time.Duration(m.cfg.RejectionCooldownSeconds) * time.Second

	for _, cd := range m.collected {
		approved, reason, err := m.risk.ValidateTrade(ctx, cd.Decision, cd.Context)
		if err != nil {
			logger.Warnf("风控校验出错 asset=%s，按拒绝处理: %v", cd.Decision.AssetPair, err)
			approved, reason = false, "risk gate error: "+err.Error()
		}
		if !approved {
			// 风控拒绝是常态，不按错误记
			logger.Infof("风控拒绝 asset=%s: %s", cd.Decision.AssetPair, reason)
			m.rejections.Add(cd.Decision.AssetPair, reason, cooldown)
			m.telemetry.Push(TelemetryEvent{
				Kind:      TelemetryRiskRejected,
				AssetPair: cd.Decision.AssetPair,
				Message:   reason,
			})
			continue
		}
		m.approved = append(m.approved, cd)
	}

	if len(m.approved) == 0 {
		return StateIdle
	}
	return StateExecution
}

// stepExecution 执行：自治模式直接下单，否则投递人工审批。
// 通知全通道失败绝不视为已批准，但也不中断代理。
func (m *Machine) stepExecution(ctx context.Context) State {
	if !m.cfg.AutonomousEnabled {
		decisions := make([]ensemble.Decision, 0, len(m.approved))
		for _, cd := range m.approved {
			decisions = append(decisions, cd.Decision)
		}
		if err := m.dispatcher.DeliverDecisions("decision.pending_approval", decisions); err != nil {
			m.telemetry.Push(TelemetryEvent{Kind: TelemetryNotifyFailed, Message: err.Error()})
		}
		return StateIdle
	}

	for _, cd := range m.approved {
		m.mu.Lock()
		capReached := m.cfg.MaxDailyTrades > 0 && m.dailyTradeCount >= m.cfg.MaxDailyTrades
		m.mu.Unlock()
		if capReached {
			logger.Infof("当日交易数达上限，剩余决策不再执行")
			break
		}
		res, err := m.platform.ExecuteTrade(ctx, cd.Decision)
		if err != nil {
			logger.Errorf("下单失败 asset=%s decision=%s: %v", cd.Decision.AssetPair, cd.Decision.ID, err)
			m.telemetry.Push(TelemetryEvent{
				Kind:      TelemetryFailure,
				AssetPair: cd.Decision.AssetPair,
				Message:   "execute: " + err.Error(),
			})
			continue
		}
		m.mu.Lock()
		m.dailyTradeCount++
		m.mu.Unlock()
		logger.Infof("下单成功 asset=%s order=%s fill=%.8g",
			cd.Decision.AssetPair, res.OrderID, res.FilledPrice)
		m.telemetry.Push(TelemetryEvent{
			Kind:      TelemetryExecution,
			AssetPair: cd.Decision.AssetPair,
			Message:   fmt.Sprintf("order=%s fill=%.8g", res.OrderID, res.FilledPrice),
		})
		if m.dispatcher != nil {
			m.dispatcher.Announce(FormatExecution(cd.Decision, res.OrderID, res.FilledPrice))
		}
	}
	return StateIdle
}
