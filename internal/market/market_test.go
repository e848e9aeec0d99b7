package market

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarsIn24h(t *testing.T) {
	assert.Equal(t, 96, barsIn24h("15m"))
	assert.Equal(t, 24, barsIn24h("1h"))
	assert.Equal(t, 6, barsIn24h("4h"))
	assert.Equal(t, 24, barsIn24h("1d")) // 未知周期按 1h 处理
}

func TestComputeIndicators_InsufficientData(t *testing.T) {
	closes := make([]float64, 34)
	for i := range closes {
		closes[i] = 50000
	}
	_, ok := computeIndicators(closes)
	assert.False(t, ok)
}

func TestComputeIndicators_Uptrend(t *testing.T) {
	// 线性上涨序列：RSI 满格，EMA 滞后于最新价，MACD 为正
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50000 + float64(i)*10
	}
	ind, ok := computeIndicators(closes)
	require.True(t, ok)

	last := closes[len(closes)-1]
	assert.InDelta(t, 100, ind.RSI14, 0.01)
	assert.Less(t, ind.EMA20, last)
	assert.Greater(t, ind.EMA20, closes[len(closes)-21])
	assert.Greater(t, ind.MACD, 0.0)
}

func TestSnapshotFormat(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT",
		Intervals: map[string]IntervalSnapshot{
			"15m": {
				Interval:       "15m",
				Count:          100,
				LatestPrice:    decimal.NewFromInt(50000),
				PriceChange24h: decimal.NewFromFloat(1.25),
				High24h:        decimal.NewFromInt(51000),
				Low24h:         decimal.NewFromInt(49000),
				Indicators:     Indicators{EMA20: 49900, RSI14: 62.5},
				IndicatorsOK:   true,
			},
			"1h": {
				Interval:    "1h",
				Count:       100,
				LatestPrice: decimal.NewFromInt(50000),
			},
		},
	}
	text := snap.Format()
	assert.Contains(t, text, "市场数据 (BTCUSDT)")
	assert.Contains(t, text, "15m 周期 (100 条K线)")
	assert.Contains(t, text, "最新价格: $50000")
	assert.Contains(t, text, "RSI14: 62.50")
	// 1h 周期未计算指标则不渲染指标行
	oneHour := text[strings.Index(text, "1h 周期"):]
	assert.NotContains(t, oneHour, "EMA20")
}
