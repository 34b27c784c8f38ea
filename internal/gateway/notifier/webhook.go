package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"arbiter/internal/logger"
)

// Webhook 通知器：把决策事件 POST 到外部回调地址。
// 只在瞬时失败（网络错误、5xx）时指数退避重试，4xx 视为配置错误立即失败。
type Webhook struct {
	URL         string
	EventHeader string
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Client      *http.Client
}

func NewWebhook(url, eventHeader string, maxAttempts int, baseBackoff, maxBackoff, timeout time.Duration) *Webhook {
	if eventHeader == "" {
		eventHeader = "X-Arbiter-Event"
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	if maxBackoff <= 0 {
		maxBackoff = 8 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		URL:         url,
		EventHeader: eventHeader,
		MaxAttempts: maxAttempts,
		BaseBackoff: baseBackoff,
		MaxBackoff:  maxBackoff,
		Client:      &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Event 回调载荷的线格式。
type Event struct {
	EventType  string  `json:"eventType"`
	DecisionID string  `json:"decisionId"`
	AssetPair  string  `json:"assetPair"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
	// Message 仅用于非决策类的通用文本事件。
	Message string `json:"message,omitempty"`
}

// SendEvent 投递单个事件。
func (w *Webhook) SendEvent(ev Event) error {
	if w.URL == "" {
		return fmt.Errorf("webhook 地址未配置")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	backoff := w.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		req, err := http.NewRequest(http.MethodPost, w.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(w.EventHeader, ev.EventType)

		resp, err := w.Client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			switch {
			case resp.StatusCode/100 == 2:
				return nil
			case resp.StatusCode/100 == 4:
				// 客户端错误重试无意义
				return fmt.Errorf("webhook status=%d", resp.StatusCode)
			default:
				lastErr = fmt.Errorf("webhook status=%d", resp.StatusCode)
			}
		} else {
			lastErr = err
		}

		if attempt < w.MaxAttempts {
			logger.Debugf("webhook 第 %d 次投递失败，%s 后重试: %v", attempt, backoff, lastErr)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > w.MaxBackoff {
				backoff = w.MaxBackoff
			}
		}
	}
	return lastErr
}

// SendText 把纯文本包成通用事件投递，满足 TextNotifier 契约。
func (w *Webhook) SendText(text string) error {
	return w.SendEvent(Event{
		EventType: "message",
		Message:   text,
		Timestamp: time.Now().Unix(),
	})
}
