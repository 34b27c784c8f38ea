package agent

import (
	"sync"
	"time"
)

// FailureCounters 按资产统计近期决策失败次数，带时间衰减：
// 超过衰减窗口的失败自动被遗忘，临时故障不会永久封禁一个资产。
type FailureCounters struct {
	mu     sync.Mutex
	window time.Duration
	events map[string][]time.Time
	now    func() time.Time
}

func NewFailureCounters(decayWindow time.Duration) *FailureCounters {
	if decayWindow <= 0 {
		decayWindow = 30 * time.Minute
	}
	return &FailureCounters{
		window: decayWindow,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Record 登记一次失败。
func (f *FailureCounters) Record(assetPair string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[assetPair] = append(f.prune(assetPair), f.now())
}

// Count 返回窗口内的失败次数。
func (f *FailureCounters) Count(assetPair string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pruned := f.prune(assetPair)
	if len(pruned) == 0 {
		delete(f.events, assetPair)
	} else {
		f.events[assetPair] = pruned
	}
	return len(pruned)
}

// Reset 清空某资产的失败记录（成功决策后调用）。
func (f *FailureCounters) Reset(assetPair string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, assetPair)
}

// prune 调用方必须持锁。
func (f *FailureCounters) prune(assetPair string) []time.Time {
	cutoff := f.now().Add(-f.window)
	evs := f.events[assetPair]
	kept := evs[:0]
	for _, t := range evs {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
