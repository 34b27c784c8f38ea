package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRejectionCache_CooldownBoundary(t *testing.T) {
	now := time.Now()
	c := NewRejectionCache()
	c.now = func() time.Time { return now }
	c.Add("BTC/USDT", "position cap", 300*time.Second)

	// 299 秒：仍在冷却
	c.now = func() time.Time { return now.Add(299 * time.Second) }
	cached, reason := c.Contains("BTC/USDT")
	assert.True(t, cached)
	assert.Equal(t, "position cap", reason)

	// 整 300 秒：边界按仍在冷却处理
	c.now = func() time.Time { return now.Add(300 * time.Second) }
	cached, _ = c.Contains("BTC/USDT")
	assert.True(t, cached)

	// 301 秒：过期并被清掉
	c.now = func() time.Time { return now.Add(301 * time.Second) }
	cached, _ = c.Contains("BTC/USDT")
	assert.False(t, cached)
	assert.Empty(t, c.Snapshot())
}

func TestRejectionCache_UnknownAsset(t *testing.T) {
	c := NewRejectionCache()
	cached, reason := c.Contains("ETH/USDT")
	assert.False(t, cached)
	assert.Empty(t, reason)
}

func TestRejectionCache_PurgeKeepsLive(t *testing.T) {
	now := time.Now()
	c := NewRejectionCache()
	c.now = func() time.Time { return now }
	c.Add("BTC/USDT", "a", 100*time.Second)
	c.Add("ETH/USDT", "b", 500*time.Second)

	c.now = func() time.Time { return now.Add(200 * time.Second) }
	assert.Equal(t, 1, c.Purge())
	assert.Contains(t, c.Snapshot(), "ETH/USDT")
}

func TestFailureCounters_DecayWindow(t *testing.T) {
	now := time.Now()
	f := NewFailureCounters(30 * time.Minute)
	f.now = func() time.Time { return now }
	f.Record("BTC/USDT")
	f.Record("BTC/USDT")
	assert.Equal(t, 2, f.Count("BTC/USDT"))

	// 窗口过半追加一次失败
	f.now = func() time.Time { return now.Add(20 * time.Minute) }
	f.Record("BTC/USDT")
	assert.Equal(t, 3, f.Count("BTC/USDT"))

	// 前两次滑出窗口，只剩最近一次
	f.now = func() time.Time { return now.Add(45 * time.Minute) }
	assert.Equal(t, 1, f.Count("BTC/USDT"))

	f.Reset("BTC/USDT")
	assert.Zero(t, f.Count("BTC/USDT"))
}
