package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	"arbiter/internal/pkg/circuit"

	"golang.org/x/sync/errgroup"
)

// Dispatcher 负责顾问的并发扇出：每个顾问独立超时，慢顾问不拖累其他人。
// 每个顾问挂一个熔断器，连续失败时短路调用，省下无谓的超时等待。
type Dispatcher struct {
	TimeoutSeconds   int
	BreakerThreshold int
	BreakerCooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

func NewDispatcher(timeoutSeconds, breakerThreshold int, breakerCooldown time.Duration) *Dispatcher {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &Dispatcher{
		TimeoutSeconds:   timeoutSeconds,
		BreakerThreshold: breakerThreshold,
		BreakerCooldown:  breakerCooldown,
		breakers:         make(map[string]*circuit.Breaker),
	}
}

// Prompt 发给每个顾问的提示词材料。
type Prompt struct {
	System string
	User   string
}

// QueryAll 并发查询所有顾问，收集全部结果（含失败条目）。
// 失败的条目带 Err 返回而不是被丢弃，聚合层需要失败计数做置信度折减。
func (d *Dispatcher) QueryAll(ctx context.Context, advisors []provider.AdvisorProvider, prompt Prompt) []ProviderResponse {
	if len(advisors) == 0 {
		return nil
	}
	results := make([]ProviderResponse, len(advisors))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, adv := range advisors {
		i, adv := i, adv
		eg.Go(func() error {
			results[i] = d.queryOne(egCtx, adv, prompt)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (d *Dispatcher) queryOne(parent context.Context, adv provider.AdvisorProvider, prompt Prompt) (out ProviderResponse) {
	out.Provider = adv.ID()
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("顾问 %s 调用 panic: %v", adv.ID(), r)
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	br := d.breakerFor(adv.ID())
	if !br.Allow() {
		out.Err = fmt.Errorf("%w: breaker open", ErrProviderTimeout)
		return out
	}

	cctx, cancel := context.WithTimeout(parent, time.Duration(d.TimeoutSeconds)*time.Second)
	defer cancel()

	logger.Debugf("调用顾问: %s", adv.ID())
	logger.AuditAdvisorRequest(adv.ID(), "advice", prompt.System, prompt.User, "")
	start := time.Now()
	raw, err := adv.Query(cctx, provider.ChatPayload{System: prompt.System, User: prompt.User})
	out.LatencyMs = time.Since(start).Milliseconds()
	logger.AuditAdvisorResponse(adv.ID(), "advice", raw)

	if err != nil {
		br.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		logger.Warnf("顾问 %s 调用失败 elapsed=%dms err=%v", adv.ID(), out.LatencyMs, err)
		out.Err = err
		return out
	}

	parsed, perr := ParseAdvice(raw)
	if perr != nil {
		br.RecordFailure()
		logger.Warnf("顾问 %s 返回无法解析 err=%v", adv.ID(), perr)
		out.Err = perr
		return out
	}
	br.RecordSuccess()
	out.Action = parsed.Action
	out.Confidence = parsed.Confidence
	out.Reasoning = parsed.Reasoning
	return out
}

func (d *Dispatcher) breakerFor(id string) *circuit.Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	br, ok := d.breakers[id]
	if !ok {
		br = circuit.NewBreaker(id, d.BreakerThreshold, d.BreakerCooldown)
		d.breakers[id] = br
	}
	return br
}

// BreakerStates 供状态页展示。
func (d *Dispatcher) BreakerStates() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.breakers))
	for id, br := range d.breakers {
		out[id] = br.State().String()
	}
	return out
}
