package market

import (
	"fmt"
	"strings"
)

// Format 将快照渲染为报告文本（AI prompt 的市场数据段）。
func (s Snapshot) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "市场数据 (%s):\n", s.Symbol)
	for _, interval := range SnapshotIntervals {
		is, ok := s.Intervals[interval]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s 周期 (%d 条K线):\n", interval, is.Count)
		fmt.Fprintf(&b, "  最新价格: $%s\n", is.LatestPrice)
		fmt.Fprintf(&b, "  24h涨跌: %s%%\n", is.PriceChange24h)
		fmt.Fprintf(&b, "  24h最高: $%s\n", is.High24h)
		fmt.Fprintf(&b, "  24h最低: $%s\n", is.Low24h)
		if is.IndicatorsOK {
			fmt.Fprintf(&b, "  EMA20: %.2f  RSI14: %.2f  MACD: %.4f (signal %.4f, hist %.4f)\n",
				is.Indicators.EMA20, is.Indicators.RSI14,
				is.Indicators.MACD, is.Indicators.MACDSignal, is.Indicators.MACDHist)
		}
	}
	return b.String()
}
