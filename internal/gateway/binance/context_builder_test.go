package binance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/USDT":  "BTCUSDT",
		"btc/usdt":  "BTCUSDT",
		"ETH-USDT":  "ETHUSDT",
		" solusdt ": "SOLUSDT",
		"":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, binanceSymbol(in), in)
	}
}

func TestClassifyRegime(t *testing.T) {
	cases := []struct {
		name     string
		price    float64
		sma      float64
		atrRatio float64
		want     string
	}{
		{"volatile beats trend", 110, 100, 0.05, "volatile"},
		{"above band is uptrend", 103, 100, 0.01, "trend_up"},
		{"below band is downtrend", 97, 100, 0.01, "trend_down"},
		{"inside band is range", 101, 100, 0.01, "range"},
		{"exactly on band edge stays range", 102, 100, 0.01, "range"},
		{"no sma falls to range", 100, 0, 0.01, "range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyRegime(tc.price, tc.sma, tc.atrRatio))
		})
	}
}

func TestLastValid(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, 42.0, lastValid([]float64{nan, nan, 42}))
	assert.Equal(t, 7.0, lastValid([]float64{nan, 7, nan}), "尾部 NaN 回溯到最近有效值")
	assert.Equal(t, 0.0, lastValid([]float64{nan, nan}))
	assert.Equal(t, 0.0, lastValid(nil))
}

func TestParseFloatAndClamp(t *testing.T) {
	assert.Equal(t, 1.5, parseFloat(" 1.5 "))
	assert.Equal(t, 0.0, parseFloat("abc"))
	assert.Equal(t, 1.0, clamp(2, -1, 1))
	assert.Equal(t, -1.0, clamp(-3, -1, 1))
	assert.Equal(t, 0.5, clamp(0.5, -1, 1))
}

func TestConfigWithDefaults(t *testing.T) {
	c := (&Config{}).withDefaults()
	assert.Equal(t, "1h", c.Interval)
	assert.Equal(t, 200, c.Limit)
	assert.Positive(t, c.HTTPTimeout)

	// SMA 需要 50 根以上的样本，过小的 limit 拉回默认
	c = (&Config{Limit: 30, Interval: "4h"}).withDefaults()
	assert.Equal(t, 200, c.Limit)
	assert.Equal(t, "4h", c.Interval)
}
