package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TelemetryEvent 周期内发生的一件值得展示的事。
type TelemetryEvent struct {
	Kind      string    `json:"kind"`
	AssetPair string    `json:"asset_pair,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// 遥测事件 kind。
const (
	TelemetryDecision     = "decision"
	TelemetryFailure      = "failure"
	TelemetryRiskRejected = "risk_rejected"
	TelemetryExecution    = "execution"
	TelemetryKillSwitch   = "kill_switch"
	TelemetryNotifyFailed = "notify_failed"
)

// TelemetryQueue 有界遥测队列：决策链路投递事件绝不阻塞，
// 队列满时丢新事件并计数。消费端把事件沉淀到环形缓冲供状态页读取。
type TelemetryQueue struct {
	ch      chan TelemetryEvent
	dropped atomic.Int64

	mu     sync.Mutex
	ring   []TelemetryEvent
	cursor int
	filled bool
}

func NewTelemetryQueue(size int) *TelemetryQueue {
	if size <= 0 {
		size = 256
	}
	return &TelemetryQueue{
		ch:   make(chan TelemetryEvent, size),
		ring: make([]TelemetryEvent, size),
	}
}

// Push 非阻塞投递；队列满时丢弃并计数。
func (q *TelemetryQueue) Push(ev TelemetryEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case q.ch <- ev:
	default:
		q.dropped.Add(1)
	}
}

// Run 消费循环，ctx 取消后退出。由应用启动时起一个 goroutine 跑。
func (q *TelemetryQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.ch:
			q.mu.Lock()
			q.ring[q.cursor] = ev
			q.cursor = (q.cursor + 1) % len(q.ring)
			if q.cursor == 0 {
				q.filled = true
			}
			q.mu.Unlock()
		}
	}
}

// Recent 按时间序返回环形缓冲里的事件副本。
func (q *TelemetryQueue) Recent() []TelemetryEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []TelemetryEvent
	if q.filled {
		out = append(out, q.ring[q.cursor:]...)
	}
	out = append(out, q.ring[:q.cursor]...)
	// 去掉零值槽位
	kept := out[:0]
	for _, ev := range out {
		if !ev.At.IsZero() {
			kept = append(kept, ev)
		}
	}
	return kept
}

// Dropped 被丢弃的事件总数。
func (q *TelemetryQueue) Dropped() int64 { return q.dropped.Load() }

// Drain 供测试与退出路径：同步清空队列到环形缓冲。
func (q *TelemetryQueue) Drain() {
	for {
		select {
		case ev := <-q.ch:
			q.mu.Lock()
			q.ring[q.cursor] = ev
			q.cursor = (q.cursor + 1) % len(q.ring)
			if q.cursor == 0 {
				q.filled = true
			}
			q.mu.Unlock()
		default:
			return
		}
	}
}
