package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9982"
	defaultAppLogPath      = "/data/logs/arbiter.log"
	defaultAppAuditLogPath = "/data/logs/arbiter-audit.log"
	defaultAppReportDir    = "/data/reports"

	defaultMarketREST     = "https://fapi.binance.com"
	defaultMarketInterval = "1h"
	defaultMarketLimit    = 200

	defaultAITimeout         = 60
	defaultAIBreakerFails    = 3
	defaultAIBreakerCooldown = 120

	defaultVotingStrategy      = "weighted"
	defaultMinProviders        = 2
	defaultPhase1Quorum        = 3
	defaultEscalationThreshold = 0.66
	defaultReasoningMaxBytes   = 2000
	defaultVetoBaseThreshold   = 0.75
	defaultVetoTargetAccuracy  = 0.70

	defaultAgentMode           = "ensemble"
	defaultCycleInterval       = 300
	defaultAssetTimeout        = 90
	defaultMinConfidence       = 60
	defaultMaxDailyTrades      = 10
	defaultKillSwitchLossPct   = 0.05
	defaultKillSwitchGainPct   = 0.20
	defaultMaxConsecLosses     = 5
	defaultMinWinRate          = 0.35
	defaultMinWinRateSample    = 20
	defaultRejectionCooldown   = 300
	defaultMaxAssetFailures    = 3
	defaultFailureDecay        = 1800
	defaultTelemetryQueueSize  = 256
	defaultWebhookEventHeader  = "X-Arbiter-Event"
	defaultWebhookMaxAttempts  = 4
	defaultWebhookBaseBackoff  = 500
	defaultWebhookMaxBackoff   = 8000
	defaultWebhookTimeoutSecs  = 10
	defaultStorePath           = "/data/db/arbiter.db"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Ensemble.applyDefaults(keys)
	c.Agent.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLogPath, defaultAppAuditLogPath),
		stringFieldDefault("app.report_dir", &a.ReportDir, defaultAppReportDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.kline_interval", &m.KlineInterval, defaultMarketInterval),
		fieldDefault{
			key:   "market.kline_limit",
			need:  func() bool { return m.KlineLimit <= 0 },
			apply: func() { m.KlineLimit = defaultMarketLimit },
		},
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	if a.ProviderPresets == nil {
		a.ProviderPresets = make(map[string]AdvisorPreset)
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
		fieldDefault{
			key:   "ai.breaker_threshold",
			need:  func() bool { return a.BreakerThreshold <= 0 },
			apply: func() { a.BreakerThreshold = defaultAIBreakerFails },
		},
		fieldDefault{
			key:   "ai.breaker_cooldown_seconds",
			need:  func() bool { return a.BreakerCooldownS <= 0 },
			apply: func() { a.BreakerCooldownS = defaultAIBreakerCooldown },
		},
	)
}

func (e *EnsembleConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ensemble.voting_strategy", &e.VotingStrategy, defaultVotingStrategy),
		fieldDefault{
			key:   "ensemble.min_providers",
			need:  func() bool { return e.MinProviders <= 0 },
			apply: func() { e.MinProviders = defaultMinProviders },
		},
		fieldDefault{
			key:   "ensemble.phase1_quorum_size",
			need:  func() bool { return e.Phase1QuorumSize <= 0 },
			apply: func() { e.Phase1QuorumSize = defaultPhase1Quorum },
		},
		fieldDefault{
			key:   "ensemble.escalation_threshold",
			need:  func() bool { return e.EscalationThreshold <= 0 },
			apply: func() { e.EscalationThreshold = defaultEscalationThreshold },
		},
		fieldDefault{
			key:   "ensemble.reasoning_max_bytes",
			need:  func() bool { return e.ReasoningMaxBytes <= 0 },
			apply: func() { e.ReasoningMaxBytes = defaultReasoningMaxBytes },
		},
		fieldDefault{
			key:   "ensemble.veto.base_threshold",
			need:  func() bool { return e.Veto.BaseThreshold <= 0 },
			apply: func() { e.Veto.BaseThreshold = defaultVetoBaseThreshold },
		},
		fieldDefault{
			key:   "ensemble.veto.target_accuracy",
			need:  func() bool { return e.Veto.TargetAccuracy <= 0 },
			apply: func() { e.Veto.TargetAccuracy = defaultVetoTargetAccuracy },
		},
	)
}

func (a *AgentConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("agent.mode", &a.Mode, defaultAgentMode),
		fieldDefault{
			key:   "agent.cycle_interval_seconds",
			need:  func() bool { return a.CycleIntervalSeconds <= 0 },
			apply: func() { a.CycleIntervalSeconds = defaultCycleInterval },
		},
		fieldDefault{
			key:   "agent.asset_timeout_seconds",
			need:  func() bool { return a.AssetTimeoutSeconds <= 0 },
			apply: func() { a.AssetTimeoutSeconds = defaultAssetTimeout },
		},
		fieldDefault{
			key:   "agent.min_confidence",
			need:  func() bool { return a.MinConfidence <= 0 },
			apply: func() { a.MinConfidence = defaultMinConfidence },
		},
		fieldDefault{
			key:   "agent.max_daily_trades",
			need:  func() bool { return a.MaxDailyTrades <= 0 },
			apply: func() { a.MaxDailyTrades = defaultMaxDailyTrades },
		},
		fieldDefault{
			key:   "agent.kill_switch_loss_pct",
			need:  func() bool { return a.KillSwitchLossPct <= 0 },
			apply: func() { a.KillSwitchLossPct = defaultKillSwitchLossPct },
		},
		fieldDefault{
			key:   "agent.kill_switch_gain_pct",
			need:  func() bool { return a.KillSwitchGainPct <= 0 },
			apply: func() { a.KillSwitchGainPct = defaultKillSwitchGainPct },
		},
		fieldDefault{
			key:   "agent.max_consecutive_losses",
			need:  func() bool { return a.MaxConsecutiveLosses <= 0 },
			apply: func() { a.MaxConsecutiveLosses = defaultMaxConsecLosses },
		},
		fieldDefault{
			key:   "agent.min_win_rate",
			need:  func() bool { return a.MinWinRate <= 0 },
			apply: func() { a.MinWinRate = defaultMinWinRate },
		},
		fieldDefault{
			key:   "agent.min_win_rate_sample",
			need:  func() bool { return a.MinWinRateSample <= 0 },
			apply: func() { a.MinWinRateSample = defaultMinWinRateSample },
		},
		fieldDefault{
			key:   "agent.rejection_cooldown_seconds",
			need:  func() bool { return a.RejectionCooldownSeconds <= 0 },
			apply: func() { a.RejectionCooldownSeconds = defaultRejectionCooldown },
		},
		fieldDefault{
			key:   "agent.max_asset_failures",
			need:  func() bool { return a.MaxAssetFailures <= 0 },
			apply: func() { a.MaxAssetFailures = defaultMaxAssetFailures },
		},
		fieldDefault{
			key:   "agent.failure_decay_seconds",
			need:  func() bool { return a.FailureDecaySeconds <= 0 },
			apply: func() { a.FailureDecaySeconds = defaultFailureDecay },
		},
		fieldDefault{
			key:   "agent.telemetry_queue_size",
			need:  func() bool { return a.TelemetryQueueSize <= 0 },
			apply: func() { a.TelemetryQueueSize = defaultTelemetryQueueSize },
		},
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	if len(n.Channels) == 0 {
		if n.Telegram.Enabled {
			n.Channels = append(n.Channels, "telegram")
		}
		if n.Webhook.Enabled {
			n.Channels = append(n.Channels, "webhook")
		}
	}
	applyFieldDefaults(keys,
		stringFieldDefault("notify.webhook.event_header", &n.Webhook.EventHeader, defaultWebhookEventHeader),
		fieldDefault{
			key:   "notify.webhook.max_attempts",
			need:  func() bool { return n.Webhook.MaxAttempts <= 0 },
			apply: func() { n.Webhook.MaxAttempts = defaultWebhookMaxAttempts },
		},
		fieldDefault{
			key:   "notify.webhook.base_backoff_ms",
			need:  func() bool { return n.Webhook.BaseBackoffMs <= 0 },
			apply: func() { n.Webhook.BaseBackoffMs = defaultWebhookBaseBackoff },
		},
		fieldDefault{
			key:   "notify.webhook.max_backoff_ms",
			need:  func() bool { return n.Webhook.MaxBackoffMs <= 0 },
			apply: func() { n.Webhook.MaxBackoffMs = defaultWebhookMaxBackoff },
		},
		fieldDefault{
			key:   "notify.webhook.timeout_seconds",
			need:  func() bool { return n.Webhook.TimeoutSeconds <= 0 },
			apply: func() { n.Webhook.TimeoutSeconds = defaultWebhookTimeoutSecs },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
