package notifier

import (
	"fmt"
	"strings"

	"arbiter/internal/ensemble"
)

// FormatDecision 把决策渲染成人读的推送文本（Telegram Markdown 兼容）。
func FormatDecision(d ensemble.Decision) string {
	var b strings.Builder
	emoji := "⏸"
	switch d.Action {
	case ensemble.ActionBuy:
		emoji = "🟢"
	case ensemble.ActionSell:
		emoji = "🔴"
	}
	fmt.Fprintf(&b, "%s *%s* %s\n", emoji, d.AssetPair, strings.ToUpper(string(d.Action)))
	fmt.Fprintf(&b, "置信度: %.0f  一致度: %.2f  阶段: %s\n", d.Confidence, d.AgreementScore, d.Phase)
	if d.Phase == ensemble.PhaseVetoed {
		fmt.Fprintf(&b, "⚠️ 原动作 %s@%.0f 已被否决 (score=%.2f)\n",
			strings.ToUpper(string(d.VetoedAction)), d.VetoedConfidence, d.VetoScore)
	}
	if d.PositionSizing > 0 {
		fmt.Fprintf(&b, "建议仓位: %.1f%%\n", d.PositionSizing*100)
	}
	if d.Reasoning != "" {
		reasoning := d.Reasoning
		if len(reasoning) > 600 {
			reasoning = reasoning[:600] + "…"
		}
		fmt.Fprintf(&b, "理由:\n%s\n", reasoning)
	}
	fmt.Fprintf(&b, "`%s`", d.ID)
	return b.String()
}

// FormatFailure 渲染失败记录的推送文本。
func FormatFailure(f ensemble.FailureRecord) string {
	return fmt.Sprintf("⚠️ *%s* 决策失败\nkind: %s\n%s", f.AssetPair, f.Kind, f.Message)
}
