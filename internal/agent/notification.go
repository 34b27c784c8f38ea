package agent

import (
	"fmt"
	"strings"

	"arbiter/internal/ensemble"
)

// FormatExecution 自治模式下单成功的播报文本。
func FormatExecution(d ensemble.Decision, orderID string, fillPrice float64) string {
	emoji := "🟢"
	if d.Action == ensemble.ActionSell {
		emoji = "🔴"
	}
	return fmt.Sprintf("%s *%s* %s 已成交\n置信度: %.0f  成交价: %.8g\norder: `%s`",
		emoji, d.AssetPair, strings.ToUpper(string(d.Action)), d.Confidence, fillPrice, orderID)
}
