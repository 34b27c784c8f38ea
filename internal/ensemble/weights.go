package ensemble

// NormalizeWeights 只保留 active 中的条目并把权重归一化为和为 1。
// 缺失或非正的权重按 1 计；active 为空时返回空 map。
// 所有剔除顾问的路径都必须经过这里重新归一化。
func NormalizeWeights(weights map[string]float64, active []string) map[string]float64 {
	if len(active) == 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(active))
	total := 0.0
	for _, id := range active {
		w := 1.0
		if weights != nil {
			if v, ok := weights[id]; ok && v > 0 {
				w = v
			}
		}
		out[id] = w
		total += w
	}
	for id := range out {
		out[id] /= total
	}
	return out
}

// successfulIDs 返回成功响应的 provider 列表（保持输入顺序）。
func successfulIDs(responses []ProviderResponse) []string {
	out := make([]string, 0, len(responses))
	for _, r := range responses {
		if r.Succeeded() {
			out = append(out, r.Provider)
		}
	}
	return out
}
