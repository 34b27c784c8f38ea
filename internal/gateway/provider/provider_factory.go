package provider

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"arbiter/internal/config"
)

// Registry 在启动期把配置名映射到封闭的顾问变体集合。
// 未知名字立即失败，而不是运行期静默空转。
type Registry struct {
	byID  map[string]*OpenAIAdvisor
	order []string
}

func BuildRegistry(aiCfg config.AIConfig) (*Registry, error) {
	advisors, err := aiCfg.ResolveAdvisorConfigs()
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(aiCfg.TimeoutSeconds) * time.Second
	reg := &Registry{byID: make(map[string]*OpenAIAdvisor, len(advisors))}
	for _, m := range advisors {
		client := &OpenAIChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			ExtraHeaders: m.Headers,
		}
		if timeout > 0 {
			client.Timeout = timeout
		}
		adv := NewOpenAIAdvisor(m.ID, m.Enabled, Tier(m.Tier), Role(m.Role), client)
		reg.byID[m.ID] = adv
		reg.order = append(reg.order, m.ID)
	}
	sort.Strings(reg.order)
	return reg, nil
}

// Lookup 按配置名取顾问；不存在时报错（fail fast）。
func (r *Registry) Lookup(id string) (AdvisorProvider, error) {
	id = strings.TrimSpace(id)
	adv, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown advisor %q (configured: %s)", id, strings.Join(r.order, ","))
	}
	return adv, nil
}

// MustLookupAll 解析一组配置名，任一缺失即返回错误。
func (r *Registry) MustLookupAll(ids []string) ([]AdvisorProvider, error) {
	out := make([]AdvisorProvider, 0, len(ids))
	for _, id := range ids {
		adv, err := r.Lookup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, adv)
	}
	return out, nil
}

// ByTier 返回某个阶段的全部已启用顾问（ID 序，保证确定性）。
func (r *Registry) ByTier(tier Tier) []AdvisorProvider {
	out := make([]AdvisorProvider, 0, len(r.order))
	for _, id := range r.order {
		adv := r.byID[id]
		if adv.Enabled() && adv.Tier() == tier {
			out = append(out, adv)
		}
	}
	return out
}

// ByRole 返回指定 debate 角色的首个已启用顾问。
func (r *Registry) ByRole(role Role) (AdvisorProvider, bool) {
	for _, id := range r.order {
		adv := r.byID[id]
		if adv.Enabled() && adv.Role() == role {
			return adv, true
		}
	}
	return nil, false
}

// All 返回全部顾问（含禁用的，供状态页展示）。
func (r *Registry) All() []AdvisorProvider {
	out := make([]AdvisorProvider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs 返回全部顾问 ID。
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) setEnabled(id string, enabled bool) bool {
	adv, ok := r.byID[id]
	if !ok {
		return false
	}
	adv.SetEnabled(enabled)
	return true
}
