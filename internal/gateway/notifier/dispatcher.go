package notifier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/ensemble"
	"arbiter/internal/logger"
)

// ErrAllChannelsFailed 所有通道都投递失败。调用方绝不能把未确认的
// 投递当作"已批准"处理，这是人工审批模式的安全底线。
var ErrAllChannelsFailed = errors.New("notification: all channels failed")

// eventSender 能投递结构化事件的通道（目前只有 webhook）。
type eventSender interface {
	SendEvent(ev Event) error
}

// Dispatcher 多通道投递：按配置顺序主通道优先，失败后逐个降级。
// 任何一个通道成功即视为本批已投递。
type Dispatcher struct {
	channels []TextNotifier
}

func NewDispatcher(channels ...TextNotifier) *Dispatcher {
	active := make([]TextNotifier, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			active = append(active, ch)
		}
	}
	return &Dispatcher{channels: active}
}

func (d *Dispatcher) ChannelNames() []string {
	out := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch.Name())
	}
	return out
}

// DeliverDecisions 投递一批待审批决策。全部通道失败时返回
// ErrAllChannelsFailed 并记 critical 日志，调用方不得将该批标记为已批准。
func (d *Dispatcher) DeliverDecisions(eventType string, decisions []ensemble.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	if len(d.channels) == 0 {
		logger.Criticalf("没有可用通知通道，%d 条决策无法投递", len(decisions))
		return fmt.Errorf("%w: no channels configured", ErrAllChannelsFailed)
	}

	var failures []string
	for _, ch := range d.channels {
		if err := d.deliverVia(ch, eventType, decisions); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", ch.Name(), err))
			logger.Warnf("通道 %s 投递失败，尝试下一通道: %v", ch.Name(), err)
			continue
		}
		logger.Infof("%d 条决策经 %s 投递成功", len(decisions), ch.Name())
		return nil
	}

	logger.Criticalf("全部通知通道失败，%d 条决策未送达: %s",
		len(decisions), strings.Join(failures, "; "))
	return fmt.Errorf("%w: %s", ErrAllChannelsFailed, strings.Join(failures, "; "))
}

// deliverVia 单通道投递整批；webhook 类通道逐条发结构化事件。
func (d *Dispatcher) deliverVia(ch TextNotifier, eventType string, decisions []ensemble.Decision) error {
	if es, ok := ch.(eventSender); ok {
		for _, dec := range decisions {
			ev := Event{
				EventType:  eventType,
				DecisionID: dec.ID,
				AssetPair:  dec.AssetPair,
				Action:     string(dec.Action),
				Confidence: dec.Confidence,
				Timestamp:  dec.CreatedAt.Unix(),
			}
			if err := es.SendEvent(ev); err != nil {
				return err
			}
		}
		return nil
	}
	parts := make([]string, 0, len(decisions))
	for _, dec := range decisions {
		parts = append(parts, FormatDecision(dec))
	}
	return ch.SendText(strings.Join(parts, "\n\n"))
}

// Announce 投递一条系统级文本（启动、熔断、复盘摘要）。
// 尽力而为：所有通道都试一遍，失败只记日志。
func (d *Dispatcher) Announce(text string) {
	if text == "" {
		return
	}
	delivered := false
	for _, ch := range d.channels {
		if err := ch.SendText(text); err != nil {
			logger.Warnf("通道 %s 公告投递失败: %v", ch.Name(), err)
			continue
		}
		delivered = true
	}
	if !delivered && len(d.channels) > 0 {
		logger.Warnf("公告全通道投递失败 at=%s", time.Now().Format(time.RFC3339))
	}
}
