package exchange

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	calls  atomic.Int64
	price  decimal.Decimal
	failed atomic.Bool
}

func (s *scriptedSource) Last(context.Context, string) (decimal.Decimal, error) {
	s.calls.Add(1)
	if s.failed.Load() {
		return decimal.Zero, errors.New("upstream down")
	}
	return s.price, nil
}

func TestCachedPriceSource_FallsBackToCache(t *testing.T) {
	upstream := &scriptedSource{price: decimal.NewFromInt(50000)}
	cached := NewCachedPriceSource(upstream)

	price, err := cached.Last(context.Background(), "cmt_btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "50000", price.String())

	// 上游故障后返回缓存值而非错误
	upstream.failed.Store(true)
	price, err = cached.Last(context.Background(), "cmt_btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "50000", price.String())
}

func TestCachedPriceSource_ErrorWhenNeverPrimed(t *testing.T) {
	upstream := &scriptedSource{}
	upstream.failed.Store(true)
	cached := NewCachedPriceSource(upstream)

	_, err := cached.Last(context.Background(), "cmt_btcusdt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "无缓存")
}

func TestCachedPriceSource_CachedAccessor(t *testing.T) {
	upstream := &scriptedSource{price: decimal.NewFromInt(42000)}
	cached := NewCachedPriceSource(upstream)

	_, ok := cached.Cached("cmt_btcusdt")
	assert.False(t, ok)

	_, err := cached.Last(context.Background(), "cmt_btcusdt")
	require.NoError(t, err)

	price, ok := cached.Cached("cmt_btcusdt")
	require.True(t, ok)
	assert.Equal(t, "42000", price.String())
}
