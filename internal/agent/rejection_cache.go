package agent

import (
	"sync"
	"time"
)

// rejectionEntry 单条风控拒绝记录。
type rejectionEntry struct {
	Reason     string
	RejectedAt time.Time
	Cooldown   time.Duration
}

// RejectionCache 风控拒绝冷却缓存：刚被拒的资产在冷却期内不再送审，
// 避免每个周期都白跑一次完整决策链路。
type RejectionCache struct {
	mu      sync.Mutex
	entries map[string]rejectionEntry
	now     func() time.Time
}

func NewRejectionCache() *RejectionCache {
	return &RejectionCache{
		entries: make(map[string]rejectionEntry),
		now:     time.Now,
	}
}

// Add 登记一次拒绝。
func (c *RejectionCache) Add(assetPair, reason string, cooldown time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[assetPair] = rejectionEntry{
		Reason:     reason,
		RejectedAt: c.now(),
		Cooldown:   cooldown,
	}
}

// Contains 返回资产是否仍在冷却中；过期条目顺手清掉。
// 过期判定是严格大于：cooldown=300s 时 t0+300s 仍在冷却，t0+301s 不在。
func (c *RejectionCache) Contains(assetPair string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[assetPair]
	if !ok {
		return false, ""
	}
	if c.now().Sub(e.RejectedAt) > e.Cooldown {
		delete(c.entries, assetPair)
		return false, ""
	}
	return true, e.Reason
}

// Purge 清理全部过期条目，返回剩余数量。
func (c *RejectionCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.RejectedAt) > e.Cooldown {
			delete(c.entries, k)
		}
	}
	return len(c.entries)
}

// Snapshot 供状态页展示在冷却中的资产。
func (c *RejectionCache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(map[string]string, len(c.entries))
	for k, e := range c.entries {
		if now.Sub(e.RejectedAt) > e.Cooldown {
			continue
		}
		out[k] = e.Reason
	}
	return out
}
