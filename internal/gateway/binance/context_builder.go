package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbiter/internal/agent/interfaces"
	"arbiter/internal/ensemble"

	"github.com/adshao/go-binance/v2/futures"
	talib "github.com/markcheno/go-talib"
)

// 中文说明：
// 默认的行情上下文适配器：拉 K 线，算 RSI/ATR/SMA，贴行情状态标签。
// 决策核心只消费 MarketContextBuilder 接口，换数据源不动核心。

const (
	klineInterval = "1h"
	klineLimit    = 200

	rsiPeriod = 14
	atrPeriod = 14
	smaPeriod = 50

	// ATR 占价比超过该值视为高波动状态
	volatileAtrRatio = 0.03
	// 收盘价偏离 SMA 超过该比例视为趋势
	trendBand = 0.02
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	Interval    string
	Limit       int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.Interval = strings.TrimSpace(out.Interval)
	if out.Interval == "" {
		out.Interval = klineInterval
	}
	if out.Limit < smaPeriod {
		out.Limit = klineLimit
	}
	return out
}

// ContextBuilder 基于 go-binance 期货行情实现 interfaces.MarketContextBuilder。
type ContextBuilder struct {
	cfg    Config
	client *futures.Client
}

var _ interfaces.MarketContextBuilder = (*ContextBuilder)(nil)

func NewContextBuilder(cfg Config) *ContextBuilder {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &ContextBuilder{cfg: final, client: client}
}

// Build 拉取 K 线并产出行情上下文。
func (b *ContextBuilder) Build(ctx context.Context, assetPair string) (ensemble.MarketContext, error) {
	symbol := binanceSymbol(assetPair)
	if symbol == "" {
		return ensemble.MarketContext{}, fmt.Errorf("invalid asset pair %q", assetPair)
	}
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).Interval(b.cfg.Interval).Limit(b.cfg.Limit).Do(ctx)
	if err != nil {
		return ensemble.MarketContext{}, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}
	if len(klines) < smaPeriod {
		return ensemble.MarketContext{}, fmt.Errorf("insufficient klines for %s: %d", symbol, len(klines))
	}

	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	closes := make([]float64, len(klines))
	for i, k := range klines {
		highs[i] = parseFloat(k.High)
		lows[i] = parseFloat(k.Low)
		closes[i] = parseFloat(k.Close)
	}

	price := closes[len(closes)-1]
	rsi := lastValid(talib.Rsi(closes, rsiPeriod))
	atr := lastValid(talib.Atr(highs, lows, closes, atrPeriod))
	sma := lastValid(talib.Sma(closes, smaPeriod))

	atrRatio := 0.0
	if price > 0 {
		atrRatio = atr / price
	}
	regime := classifyRegime(price, sma, atrRatio)

	mctx := ensemble.MarketContext{
		AssetPair:      assetPair,
		Price:          price,
		Regime:         regime,
		SentimentScore: clamp((rsi-50)/50, -1, 1),
		RiskScore:      clamp(atrRatio/volatileAtrRatio, 0, 1),
		Summary: fmt.Sprintf(
			"interval=%s price=%.8g rsi=%.1f atr=%.8g (%.2f%% of price) sma%d=%.8g regime=%s",
			b.cfg.Interval, price, rsi, atr, atrRatio*100, smaPeriod, sma, regime),
	}
	return mctx, nil
}

// LastPrice 取最新标记价格，供纸面成交用，比拉整段 K 线便宜。
func (b *ContextBuilder) LastPrice(ctx context.Context, assetPair string) (float64, error) {
	symbol := binanceSymbol(assetPair)
	if symbol == "" {
		return 0, fmt.Errorf("invalid asset pair %q", assetPair)
	}
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", symbol)
	}
	p := parseFloat(prices[0].Price)
	if p <= 0 {
		return 0, fmt.Errorf("invalid price %q for %s", prices[0].Price, symbol)
	}
	return p, nil
}

// classifyRegime 四态标签：volatile 优先于趋势判定。
func classifyRegime(price, sma, atrRatio float64) string {
	if atrRatio >= volatileAtrRatio {
		return "volatile"
	}
	if sma > 0 {
		switch {
		case price > sma*(1+trendBand):
			return "trend_up"
		case price < sma*(1-trendBand):
			return "trend_down"
		}
	}
	return "range"
}

// binanceSymbol 把 BTC/USDT 或 btcusdt 归一成 BTCUSDT。
func binanceSymbol(assetPair string) string {
	s := strings.ToUpper(strings.TrimSpace(assetPair))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// lastValid 取序列最后一个非 NaN 值；talib 序列前段是 NaN 填充。
func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if v == v {
			return v
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
