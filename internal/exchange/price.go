package exchange

import (
	"context"
	"fmt"
	"sync"

	"fathom/internal/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// CachedPriceSource 包装真实行情来源：
//   - 并发请求同一标的时合并为一次上游调用；
//   - 上游失败时回退到最近一次成功价格，只记告警不报错。
//
// 软降级是刻意行为：行情抖动不应中断交易循环。
type CachedPriceSource struct {
	upstream PriceSource

	group singleflight.Group

	mu   sync.RWMutex
	last map[string]decimal.Decimal
}

func NewCachedPriceSource(upstream PriceSource) *CachedPriceSource {
	return &CachedPriceSource{
		upstream: upstream,
		last:     make(map[string]decimal.Decimal),
	}
}

func (c *CachedPriceSource) Last(ctx context.Context, symbol string) (decimal.Decimal, error) {
	v, err, _ := c.group.Do(symbol, func() (any, error) {
		price, err := c.upstream.Last(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		c.mu.Lock()
		c.last[symbol] = price
		c.mu.Unlock()
		return price, nil
	})
	if err == nil {
		return v.(decimal.Decimal), nil
	}

	c.mu.RLock()
	cached, ok := c.last[symbol]
	c.mu.RUnlock()
	if ok {
		logger.Warnf("获取价格失败，使用缓存价格 %s: %v", cached, err)
		return cached, nil
	}
	return decimal.Zero, fmt.Errorf("获取 %s 价格失败且无缓存: %w", symbol, err)
}

// Cached 返回最近一次成功价格（可能为零值）。
func (c *CachedPriceSource) Cached(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.last[symbol]
	return price, ok
}
