package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
ai:
  advisors:
    - id: deepseek
      enabled: true
      model: deepseek-chat
      api_url: https://api.deepseek.com/v1
agent:
  assets: ["btc/usdt"]
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MinimalConfigGetsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "ensemble", cfg.Agent.Mode)
	assert.Equal(t, "weighted", cfg.Ensemble.VotingStrategy)
	assert.Equal(t, 60, cfg.AI.TimeoutSeconds)
	assert.Equal(t, 3, cfg.AI.BreakerThreshold)
	assert.InDelta(t, 0.05, cfg.Agent.KillSwitchLossPct, 1e-9)
	assert.InDelta(t, 0.66, cfg.Ensemble.EscalationThreshold, 1e-9)
	assert.Equal(t, ":9982", cfg.App.HTTPAddr)
	assert.Equal(t, "X-Arbiter-Event", cfg.Notify.Webhook.EventHeader)
	assert.Equal(t, "/data/db/arbiter.db", cfg.Store.Path)
	// 资产对统一大写
	assert.Equal(t, []string{"BTC/USDT"}, cfg.Agent.Assets)
}

func TestLoad_ExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML+`
  mode: debate
  min_confidence: 75
ensemble:
  voting_strategy: STACKING
`))
	require.NoError(t, err)
	assert.Equal(t, "debate", cfg.Agent.Mode)
	assert.InDelta(t, 75, cfg.Agent.MinConfidence, 1e-9)
	assert.Equal(t, "stacking", cfg.Ensemble.VotingStrategy, "投票策略小写化")
}

func TestLoad_KillSwitchMustBeFraction(t *testing.T) {
	// 5 既可能想表达 5% 也可能是笔误，一律拒绝
	for _, bad := range []string{"5", "1", "0", "-0.05"} {
		_, err := Load(writeConfig(t, "config.yaml", minimalYAML+`
  kill_switch_loss_pct: `+bad+"\n"))
		assert.ErrorContains(t, err, "kill_switch_loss_pct", "value %s", bad)
	}

	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML+`
  kill_switch_loss_pct: 0.08
`))
	require.NoError(t, err)
	assert.InDelta(t, 0.08, cfg.Agent.KillSwitchLossPct, 1e-9)
}

func TestLoad_RejectsUnknownEnums(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", minimalYAML+`
ensemble:
  voting_strategy: quorum
`))
	assert.ErrorContains(t, err, "voting_strategy")

	_, err = Load(writeConfig(t, "config.yaml", minimalYAML+`
  mode: yolo
`))
	assert.ErrorContains(t, err, "agent.mode")

	_, err = Load(writeConfig(t, "config.yaml", minimalYAML+`
notify:
  channels: ["pager"]
`))
	assert.ErrorContains(t, err, "unknown channel")
}

func TestLoad_RequiresAdvisorsAndAssets(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", `
agent:
  assets: ["BTC/USDT"]
`))
	assert.ErrorContains(t, err, "at least one advisor")

	_, err = Load(writeConfig(t, "config.yaml", `
ai:
  advisors:
    - id: deepseek
      model: deepseek-chat
      api_url: https://api.deepseek.com/v1
`))
	assert.ErrorContains(t, err, "at least one asset")
}

func TestLoad_IncludeMergeOrder(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	main := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
agent:
  mode: single
  cycle_interval_seconds: 60
`), 0o644))
	require.NoError(t, os.WriteFile(main, []byte(`
include: ["base.yaml"]
`+minimalYAML+`
  mode: debate
`), 0o644))

	cfg, err := Load(main)
	require.NoError(t, err)
	// 主文件后合并，覆盖 include 的同名键；未覆盖的键保留
	assert.Equal(t, "debate", cfg.Agent.Mode)
	assert.Equal(t, 60, cfg.Agent.CycleIntervalSeconds)
}

func TestLoad_IncludeCycleDetected(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("include: [\"b.yaml\"]\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("include: [\"a.yaml\"]\n"), 0o644))

	_, err := Load(a)
	assert.ErrorContains(t, err, "include cycle")
}

func TestLoad_WebhookEnabledNeedsURL(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", minimalYAML+`
notify:
  webhook:
    enabled: true
`))
	assert.ErrorContains(t, err, "webhook.url")
}

func TestNotifyDefaults_ChannelsFollowEnabledNotifiers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML+`
notify:
  telegram:
    enabled: true
    bot_token: "t"
    chat_id: "c"
  webhook:
    enabled: true
    url: https://example.com/hook
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram", "webhook"}, cfg.Notify.Channels)
}

func TestResolveAdvisorConfigs_PresetInheritance(t *testing.T) {
	ai := AIConfig{
		ProviderPresets: map[string]AdvisorPreset{
			"openrouter": {
				APIURL:  "https://openrouter.ai/api/v1",
				APIKey:  "sk-or",
				Headers: map[string]string{"HTTP-Referer": "arbiter"},
			},
		},
		Advisors: []AdvisorModelConfig{
			{ID: "qwen", Preset: "openrouter", Model: "qwen-max", Enabled: true},
			{ID: "own", APIURL: "https://own.example", APIKey: "sk-own", Model: "m", Tier: "phase2"},
		},
	}
	out, err := ai.ResolveAdvisorConfigs()
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "https://openrouter.ai/api/v1", out[0].APIURL)
	assert.Equal(t, "sk-or", out[0].APIKey)
	assert.Equal(t, "arbiter", out[0].Headers["HTTP-Referer"])
	assert.Equal(t, "phase1", out[0].Tier, "未指定层级默认一阶段")
	assert.Equal(t, "phase2", out[1].Tier)
	assert.Equal(t, "sk-own", out[1].APIKey, "显式值优先于预设")
}

func TestResolveAdvisorConfigs_Errors(t *testing.T) {
	_, err := AIConfig{Advisors: []AdvisorModelConfig{{ID: "x", Preset: "nope", Model: "m"}}}.ResolveAdvisorConfigs()
	assert.ErrorContains(t, err, "unknown preset")

	_, err = AIConfig{Advisors: []AdvisorModelConfig{
		{ID: "dup", Model: "a", APIURL: "u"},
		{ID: "dup", Model: "b", APIURL: "u"},
	}}.ResolveAdvisorConfigs()
	assert.ErrorContains(t, err, "duplicate id")

	_, err = AIConfig{Advisors: []AdvisorModelConfig{{Model: "m"}}}.ResolveAdvisorConfigs()
	assert.ErrorContains(t, err, "missing id")
}
