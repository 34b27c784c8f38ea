package ensemble

import (
	"fmt"
	"strings"

	"arbiter/internal/gateway/provider"
)

const adviceSystemPrompt = `You are a disciplined crypto trading advisor.
Given a market context, reply with exactly one JSON object and nothing else:
{"action": "buy" | "sell" | "hold", "confidence": 0-100, "reasoning": "<one short paragraph>"}
Confidence reflects how strongly the evidence supports the action, not position size.
When evidence is mixed or thin, answer hold with low confidence.`

const debateBullPrompt = `You are the bull advocate in a structured trading debate.
Argue the strongest honest case for buying. If the data cannot support a buy, concede with hold.
Reply with exactly one JSON object: {"action": ..., "confidence": 0-100, "reasoning": ...}`

const debateBearPrompt = `You are the bear advocate in a structured trading debate.
Argue the strongest honest case for selling. If the data cannot support a sell, concede with hold.
Reply with exactly one JSON object: {"action": ..., "confidence": 0-100, "reasoning": ...}`

const debateJudgePrompt = `You are the judge in a structured trading debate.
Weigh bullish and bearish evidence impartially and issue the final verdict.
Reply with exactly one JSON object: {"action": ..., "confidence": 0-100, "reasoning": ...}`

// BuildAdvicePrompt 把行情上下文渲染成统一的顾问提示词。
func BuildAdvicePrompt(mctx MarketContext) Prompt {
	return Prompt{System: adviceSystemPrompt, User: renderContext(mctx)}
}

// BuildDebatePrompts 为三个辩论角色生成各自的提示词，用户侧共享同一份行情。
func BuildDebatePrompts(mctx MarketContext) map[provider.Role]Prompt {
	user := renderContext(mctx)
	return map[provider.Role]Prompt{
		provider.RoleBull:  {System: debateBullPrompt, User: user},
		provider.RoleBear:  {System: debateBearPrompt, User: user},
		provider.RoleJudge: {System: debateJudgePrompt, User: user},
	}
}

func renderContext(mctx MarketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset pair: %s\n", mctx.AssetPair)
	if mctx.Price > 0 {
		fmt.Fprintf(&b, "Last price: %.8g\n", mctx.Price)
	}
	if mctx.Regime != "" {
		fmt.Fprintf(&b, "Market regime: %s\n", mctx.Regime)
	}
	fmt.Fprintf(&b, "Sentiment score (-1 panic .. +1 greed): %.2f\n", mctx.SentimentScore)
	fmt.Fprintf(&b, "Risk score (0 calm .. 1 dangerous): %.2f\n", mctx.RiskScore)
	if mctx.Summary != "" {
		b.WriteString("Analysis summary:\n")
		b.WriteString(mctx.Summary)
		b.WriteString("\n")
	}
	return b.String()
}
