package config

import "strings"

// Config 是 Arbiter 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	AI       AIConfig       `toml:"ai"`
	Ensemble EnsembleConfig `toml:"ensemble"`
	Agent    AgentConfig    `toml:"agent"`
	Notify   NotifyConfig   `toml:"notify"`
	Store    StoreConfig    `toml:"store"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
	AuditDump    bool   `toml:"audit_dump_payload"`
	ReportDir    string `toml:"report_dir"`
}

// MarketConfig 描述默认行情上下文适配器的数据来源。
type MarketConfig struct {
	RESTBaseURL   string `toml:"rest_base_url"`
	KlineInterval string `toml:"kline_interval"`
	KlineLimit    int    `toml:"kline_limit"`
}

// AIConfig 包含顾问模型相关的所有设置。
type AIConfig struct {
	TimeoutSeconds    int                      `toml:"timeout_seconds"`
	RosterPath        string                   `toml:"roster_path"`
	StackingModelPath string                   `toml:"stacking_model_path"`
	ProviderPresets   map[string]AdvisorPreset `toml:"provider_presets"`
	Advisors          []AdvisorModelConfig     `toml:"advisors"`
	BreakerThreshold  int                      `toml:"breaker_threshold"`
	BreakerCooldownS  int                      `toml:"breaker_cooldown_seconds"`
}

// AdvisorPreset 描述可复用的 API 连接配置。
type AdvisorPreset struct {
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
}

// AdvisorModelConfig 代表一个参与投票的顾问条目。
// Tier 决定其属于一阶段（cheap）还是二阶段（premium）候选。
type AdvisorModelConfig struct {
	ID      string            `toml:"id"`
	Preset  string            `toml:"preset"`
	Enabled bool              `toml:"enabled"`
	Tier    string            `toml:"tier"` // "phase1" | "phase2"
	Role    string            `toml:"role"` // "" | "bull" | "bear" | "judge"
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Model   string            `toml:"model"`
	Headers map[string]string `toml:"headers"`
}

// ResolvedAdvisorConfig 是合并预设后的最终顾问配置。
type ResolvedAdvisorConfig struct {
	ID      string
	Enabled bool
	Tier    string
	Role    string
	APIURL  string
	APIKey  string
	Model   string
	Headers map[string]string
}

// EnsembleConfig 控制投票与两阶段升级。
type EnsembleConfig struct {
	VotingStrategy      string     `toml:"voting_strategy"` // weighted | majority | stacking
	MinProviders        int        `toml:"min_providers"`
	Phase1QuorumSize    int        `toml:"phase1_quorum_size"`
	EscalationThreshold float64    `toml:"escalation_threshold"`
	ReasoningMaxBytes   int        `toml:"reasoning_max_bytes"`
	Veto                VetoConfig `toml:"veto"`
}

type VetoConfig struct {
	Enabled        bool    `toml:"enabled"`
	BaseThreshold  float64 `toml:"base_threshold"`
	TargetAccuracy float64 `toml:"target_accuracy"`
}

// AgentConfig 控制 OODA 循环与安全阀。
type AgentConfig struct {
	Assets                   []string `toml:"assets"`
	Mode                     string   `toml:"mode"` // single | ensemble | debate
	CycleIntervalSeconds     int      `toml:"cycle_interval_seconds"`
	AssetTimeoutSeconds      int      `toml:"asset_timeout_seconds"`
	MinConfidence            float64  `toml:"min_confidence"` // 0-100
	MaxDailyTrades           int      `toml:"max_daily_trades"`
	KillSwitchLossPct        float64  `toml:"kill_switch_loss_pct"` // 小数，例如 0.05 表示 5%
	KillSwitchGainPct        float64  `toml:"kill_switch_gain_pct"`
	MaxConsecutiveLosses     int      `toml:"max_consecutive_losses"`
	MinWinRate               float64  `toml:"min_win_rate"` // 小数
	MinWinRateSample         int      `toml:"min_win_rate_sample"`
	RejectionCooldownSeconds int      `toml:"rejection_cooldown_seconds"`
	MaxAssetFailures         int      `toml:"max_asset_failures"`
	FailureDecaySeconds      int      `toml:"failure_decay_seconds"`
	AutonomousEnabled        bool     `toml:"autonomous_enabled"`
	TelemetryQueueSize       int      `toml:"telemetry_queue_size"`
}

type NotifyConfig struct {
	Channels []string       `toml:"channels"` // 投递顺序，例如 ["telegram","webhook"]
	Telegram TelegramConfig `toml:"telegram"`
	Webhook  WebhookConfig  `toml:"webhook"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type WebhookConfig struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	EventHeader    string `toml:"event_header"`
	MaxAttempts    int    `toml:"max_attempts"`
	BaseBackoffMs  int    `toml:"base_backoff_ms"`
	MaxBackoffMs   int    `toml:"max_backoff_ms"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
