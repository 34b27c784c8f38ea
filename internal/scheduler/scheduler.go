package scheduler

import (
	"context"
	"time"

	"arbiter/internal/logger"
)

// CycleScheduler 按固定节奏驱动代理周期。周期执行时间计入间隔：
// 一轮跑超了就立刻开下一轮，不做追赶补偿。
type CycleScheduler struct {
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewCycleScheduler(ctx context.Context, interval time.Duration) *CycleScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &CycleScheduler{
		Interval:       interval,
		RunImmediately: true,
		ctx:            ctx,
		nowFn:          time.Now,
	}
}

// Start 阻塞运行直到 ctx 取消，或 task 返回 false 主动退出
// （代理熔断停机后继续空转没有意义）。
func (s *CycleScheduler) Start(task func() bool) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("CycleScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("CycleScheduler: started interval=%s run_immediately=%v",
		s.Interval, s.RunImmediately)

	if !s.RunImmediately {
		if !s.sleep(s.Interval) {
			return
		}
	}

	for {
		started := s.nowFn()
		if !task() {
			logger.Infof("CycleScheduler: task requested stop, exit")
			return
		}
		wait := s.Interval - s.nowFn().Sub(started)
		if wait < 0 {
			wait = 0
		}
		if !s.sleep(wait) {
			return
		}
	}
}

func (s *CycleScheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	select {
	case <-s.ctx.Done():
		timer.Stop()
		logger.Infof("CycleScheduler: ctx done, exit")
		return false
	case <-timer.C:
		return true
	}
}
