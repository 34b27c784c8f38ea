package config

import (
	"fmt"
	"strings"
)

// normalize 在默认值之后、校验之前做一次性的规整：
// 去空白、统一大小写、排序无关字段的小写化。
// 注意：百分比阈值不做“聪明”换算——歧义值直接在 validate 里报错。
func (c *Config) normalize() {
	for i, asset := range c.Agent.Assets {
		c.Agent.Assets[i] = strings.ToUpper(strings.TrimSpace(asset))
	}
	out := c.Agent.Assets[:0]
	for _, asset := range c.Agent.Assets {
		if asset != "" {
			out = append(out, asset)
		}
	}
	c.Agent.Assets = out
	c.Agent.Mode = strings.ToLower(strings.TrimSpace(c.Agent.Mode))
	c.Ensemble.VotingStrategy = strings.ToLower(strings.TrimSpace(c.Ensemble.VotingStrategy))
	for i, ch := range c.Notify.Channels {
		c.Notify.Channels[i] = strings.ToLower(strings.TrimSpace(ch))
	}
}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Ensemble.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AIConfig) validate() error {
	advisors, err := a.ResolveAdvisorConfigs()
	if err != nil {
		return err
	}
	if len(advisors) == 0 {
		return fmt.Errorf("ai.advisors requires at least one advisor")
	}
	for _, m := range advisors {
		if m.Model == "" {
			return fmt.Errorf("ai.advisors.%s missing model", m.ID)
		}
		if m.APIURL == "" {
			return fmt.Errorf("ai.advisors.%s missing api_url (can inherit from preset)", m.ID)
		}
		switch m.Tier {
		case "phase1", "phase2":
		default:
			return fmt.Errorf("ai.advisors.%s has invalid tier %q (phase1|phase2)", m.ID, m.Tier)
		}
		switch m.Role {
		case "", "bull", "bear", "judge":
		default:
			return fmt.Errorf("ai.advisors.%s has invalid role %q (bull|bear|judge)", m.ID, m.Role)
		}
	}
	return nil
}

func (e *EnsembleConfig) validate() error {
	switch e.VotingStrategy {
	case "weighted", "majority", "stacking":
	default:
		return fmt.Errorf("ensemble.voting_strategy must be weighted|majority|stacking, got %q", e.VotingStrategy)
	}
	if e.EscalationThreshold <= 0 || e.EscalationThreshold > 1 {
		return fmt.Errorf("ensemble.escalation_threshold must be in (0,1], got %v", e.EscalationThreshold)
	}
	if e.MinProviders < 1 {
		return fmt.Errorf("ensemble.min_providers must be >= 1")
	}
	if e.Veto.Enabled {
		if e.Veto.BaseThreshold <= 0 || e.Veto.BaseThreshold >= 1 {
			return fmt.Errorf("ensemble.veto.base_threshold must be in (0,1)")
		}
		if e.Veto.TargetAccuracy <= 0 || e.Veto.TargetAccuracy >= 1 {
			return fmt.Errorf("ensemble.veto.target_accuracy must be in (0,1)")
		}
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if len(a.Assets) == 0 {
		return fmt.Errorf("agent.assets requires at least one asset pair")
	}
	switch a.Mode {
	case "single", "ensemble", "debate":
	default:
		return fmt.Errorf("agent.mode must be single|ensemble|debate, got %q", a.Mode)
	}
	// 百分比单位是历史歧义点：1 既可能是 1% 也可能是 100%。
	// 这里要求显式小数（0 < x < 1），超出范围直接拒绝，不做猜测换算。
	if err := requireFraction("agent.kill_switch_loss_pct", a.KillSwitchLossPct); err != nil {
		return err
	}
	if err := requireFraction("agent.kill_switch_gain_pct", a.KillSwitchGainPct); err != nil {
		return err
	}
	if err := requireFraction("agent.min_win_rate", a.MinWinRate); err != nil {
		return err
	}
	if a.MinConfidence < 0 || a.MinConfidence > 100 {
		return fmt.Errorf("agent.min_confidence must be in [0,100], got %v", a.MinConfidence)
	}
	return nil
}

func requireFraction(key string, v float64) error {
	if v <= 0 || v >= 1 {
		return fmt.Errorf("%s must be a fraction in (0,1), e.g. 0.05 for 5%%; got %v", key, v)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	for _, ch := range n.Channels {
		switch ch {
		case "telegram", "webhook":
		default:
			return fmt.Errorf("notify.channels contains unknown channel %q", ch)
		}
	}
	if n.Webhook.Enabled && strings.TrimSpace(n.Webhook.URL) == "" {
		return fmt.Errorf("notify.webhook.url cannot be empty when webhook is enabled")
	}
	if n.Telegram.Enabled && (strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
