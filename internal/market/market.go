// Package market 拉取 K 线并计算技术指标，产出喂给模型的市场快照。
package market

import (
	"context"
	"fmt"
	"strconv"

	"fathom/internal/logger"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// 快照覆盖的周期，与报告展示顺序一致。
var SnapshotIntervals = []string{"15m", "1h", "4h"}

const klineLimit = 100

// Indicators 单周期技术指标。
type Indicators struct {
	EMA20      float64 `json:"ema20"`
	RSI14      float64 `json:"rsi14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macdSignal"`
	MACDHist   float64 `json:"macdHist"`
}

// IntervalSnapshot 单周期 K 线摘要。
type IntervalSnapshot struct {
	Interval         string          `json:"interval"`
	Count            int             `json:"count"`
	LatestPrice      decimal.Decimal `json:"latestPrice"`
	PriceChange24h   decimal.Decimal `json:"priceChangePercent24h"`
	High24h          decimal.Decimal `json:"high24h"`
	Low24h           decimal.Decimal `json:"low24h"`
	Indicators       Indicators      `json:"indicators"`
	IndicatorsOK     bool            `json:"indicatorsOk"`
}

// Snapshot 全周期市场快照。
type Snapshot struct {
	Symbol    string                      `json:"symbol"`
	Intervals map[string]IntervalSnapshot `json:"klines"`
}

// Fetcher 从 Binance 合约行情拉取 K 线。
// 交易标的在 Weex，行情基准用 Binance 的 BTCUSDT（流动性最好，价差可忽略）。
type Fetcher struct {
	client *futures.Client
	symbol string
}

func NewFetcher(symbol string) *Fetcher {
	if symbol == "" {
		symbol = "BTCUSDT"
	}
	// 行情接口无需密钥
	return &Fetcher{client: futures.NewClient("", ""), symbol: symbol}
}

// Fetch 拉取全部周期的快照。单个周期失败只告警并跳过，
// 不中断整体流程。
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Symbol:    f.symbol,
		Intervals: make(map[string]IntervalSnapshot, len(SnapshotIntervals)),
	}
	for _, interval := range SnapshotIntervals {
		is, err := f.fetchInterval(ctx, interval)
		if err != nil {
			logger.Warnf("拉取 %s %s K线失败: %v", f.symbol, interval, err)
			continue
		}
		snap.Intervals[interval] = is
	}
	if len(snap.Intervals) == 0 {
		return Snapshot{}, fmt.Errorf("所有周期的 K 线拉取均失败")
	}
	return snap, nil
}

func (f *Fetcher) fetchInterval(ctx context.Context, interval string) (IntervalSnapshot, error) {
	klines, err := f.client.NewKlinesService().
		Symbol(f.symbol).
		Interval(interval).
		Limit(klineLimit).
		Do(ctx)
	if err != nil {
		return IntervalSnapshot{}, err
	}
	if len(klines) == 0 {
		return IntervalSnapshot{}, fmt.Errorf("K线数据为空")
	}

	closes := make([]float64, 0, len(klines))
	highs := make([]float64, 0, len(klines))
	lows := make([]float64, 0, len(klines))
	for _, k := range klines {
		c, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return IntervalSnapshot{}, fmt.Errorf("解析收盘价失败: %w", err)
		}
		h, _ := strconv.ParseFloat(k.High, 64)
		l, _ := strconv.ParseFloat(k.Low, 64)
		closes = append(closes, c)
		highs = append(highs, h)
		lows = append(lows, l)
	}

	latest := decimal.NewFromFloat(closes[len(closes)-1])
	window := barsIn24h(interval)
	if window > len(closes) {
		window = len(closes)
	}
	high := highs[len(highs)-window]
	low := lows[len(lows)-window]
	for _, h := range highs[len(highs)-window:] {
		if h > high {
			high = h
		}
	}
	for _, l := range lows[len(lows)-window:] {
		if l < low {
			low = l
		}
	}
	change := decimal.Zero
	base := closes[len(closes)-window]
	if base != 0 {
		change = decimal.NewFromFloat((closes[len(closes)-1] - base) / base * 100).Round(2)
	}

	is := IntervalSnapshot{
		Interval:       interval,
		Count:          len(closes),
		LatestPrice:    latest,
		PriceChange24h: change,
		High24h:        decimal.NewFromFloat(high),
		Low24h:         decimal.NewFromFloat(low),
	}
	if ind, ok := computeIndicators(closes); ok {
		is.Indicators = ind
		is.IndicatorsOK = true
	}
	return is, nil
}

// Last 实现行情来源能力：返回最新标记价格。
// Weex 凭据缺失（纯纸面模式）时用它作为兜底价格源。
func (f *Fetcher) Last(ctx context.Context, _ string) (decimal.Decimal, error) {
	prices, err := f.client.NewListPricesService().Symbol(f.symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("获取 %s 最新价失败: %w", f.symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("最新价响应为空")
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析最新价失败: %w", err)
	}
	return price, nil
}

// barsIn24h 24 小时对应的 K 线根数。
func barsIn24h(interval string) int {
	switch interval {
	case "15m":
		return 96
	case "1h":
		return 24
	case "4h":
		return 6
	default:
		return 24
	}
}

// computeIndicators 基于收盘价序列计算指标。数据不足时返回 false。
func computeIndicators(closes []float64) (Indicators, bool) {
	if len(closes) < 35 {
		return Indicators{}, false
	}
	ema := talib.Ema(closes, 20)
	rsi := talib.Rsi(closes, 14)
	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	last := len(closes) - 1
	return Indicators{
		EMA20:      ema[last],
		RSI14:      rsi[last],
		MACD:       macd[last],
		MACDSignal: signal[last],
		MACDHist:   hist[last],
	}, true
}
