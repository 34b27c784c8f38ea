package text

import "strings"

// Truncate caps s at max bytes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// JoinBounded 把多段文本用分隔符拼接，并整体限制在 max 字节内。
// 用于把各顾问的 reasoning 合并成单条决策说明。
func JoinBounded(parts []string, sep string, max int) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return Truncate(strings.Join(cleaned, sep), max)
}
