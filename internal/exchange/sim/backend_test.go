package sim

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"fathom/internal/exchange"
	"fathom/internal/paper"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPrice struct {
	price decimal.Decimal
	err   error
}

func (f fixedPrice) Last(context.Context, string) (decimal.Decimal, error) {
	return f.price, f.err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestBackend(t *testing.T, price string) *Backend {
	t.Helper()
	seq := 0
	store := paper.NewStore(filepath.Join(t.TempDir(), "ledger.json"), 1000,
		paper.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
		paper.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%04d", seq) }),
	)
	require.NoError(t, store.Load())
	return NewBackend(store, fixedPrice{price: dec(price)})
}

func TestPlaceOrder_OpenLongByCode(t *testing.T) {
	b := newTestBackend(t, "50000")

	ack, err := b.PlaceOrder(context.Background(), exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenLong,
		Size: dec("0.01"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ack.OrderID)

	positions, err := b.Positions(context.Background(), "cmt_btcusdt")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "LONG", positions[0].Side)
	assert.True(t, positions[0].EntryPrice.Equal(dec("50000")))
	assert.True(t, positions[0].LiquidatePrice.IsZero())
}

func TestPlaceOrder_UsesMarketPriceWhenZero(t *testing.T) {
	b := newTestBackend(t, "48000")

	_, err := b.PlaceOrder(context.Background(), exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenShort,
		Size: dec("0.01"),
	})
	require.NoError(t, err)

	positions, err := b.Positions(context.Background(), "cmt_btcusdt")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].EntryPrice.Equal(dec("48000")))
}

func TestPlaceOrder_CloseReportsPnl(t *testing.T) {
	b := newTestBackend(t, "50000")
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenLong, Size: dec("0.01"),
	})
	require.NoError(t, err)

	b.prices = fixedPrice{price: dec("51000")}
	ack, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeCloseLong, Size: dec("0.01"),
	})
	require.NoError(t, err)
	// (51000-50000)×0.01 − 510×0.0006 = 10 − 0.306
	assert.Equal(t, "9.694", ack.PnL.String())
}

func TestPlaceOrder_UnknownType(t *testing.T) {
	b := newTestBackend(t, "50000")

	_, err := b.PlaceOrder(context.Background(), exchange.PlaceOrderRequest{
		Type: exchange.OrderType(9), Size: dec("0.01"),
	})
	var unknownErr *exchange.UnknownOrderTypeError
	require.ErrorAs(t, err, &unknownErr)
}

func TestAccountAssets_EquityIncludesUnrealized(t *testing.T) {
	b := newTestBackend(t, "50000")
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenLong, Size: dec("0.01"),
	})
	require.NoError(t, err)

	b.prices = fixedPrice{price: dec("52000")}
	assets, err := b.AccountAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "USDT", assets[0].CoinName)
	// 开仓后 total 未重算仍为 1000；未实现盈亏 (52000-50000)×0.01=20
	assert.Equal(t, "20", assets[0].UnrealizePnl.String())
	assert.Equal(t, "1020", assets[0].Equity.String())
}

func TestStatistics_CurrentBalanceIncludesPnl(t *testing.T) {
	b := newTestBackend(t, "50000")
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenLong, Size: dec("0.01"),
	})
	require.NoError(t, err)

	b.prices = fixedPrice{price: dec("52000")}
	stats, err := b.Statistics(ctx)
	require.NoError(t, err)
	// currentBalance = total(1000, 开仓不重算) + totalPnl(20)
	assert.Equal(t, "20", stats.TotalPnl.String())
	assert.Equal(t, "1020", stats.CurrentBalance.String())
	assert.Equal(t, "1000", stats.InitialBalance.String())
}

func TestRiskSummary_Shape(t *testing.T) {
	b := newTestBackend(t, "50000")
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenLong, Size: dec("0.01"),
	})
	require.NoError(t, err)

	risk, err := b.RiskSummary(ctx, "cmt_btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "cmt_btcusdt", risk.Symbol)
	assert.Equal(t, "1000", risk.InitialBalance.String())
	assert.Equal(t, 1, risk.Positions.Count)
	assert.Equal(t, "500", risk.Positions.TotalValue.String())
	assert.Equal(t, "SHARED", risk.Leverage.Mode)
	assert.Equal(t, "20", risk.Leverage.Current.String())
	assert.Equal(t, "LOW", risk.Level)
}

func TestBills_Limit(t *testing.T) {
	b := newTestBackend(t, "50000")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
			Type: exchange.OrderTypeOpenLong, Size: dec("0.001"),
		})
		require.NoError(t, err)
	}

	bills, err := b.Bills(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, bills, 2)
}

func TestReset_RestoresBalance(t *testing.T) {
	b := newTestBackend(t, "50000")
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Type: exchange.OrderTypeOpenLong, Size: dec("0.01"),
	})
	require.NoError(t, err)
	require.NoError(t, b.Reset(ctx, 2000))

	positions, err := b.Positions(ctx, "cmt_btcusdt")
	require.NoError(t, err)
	assert.Empty(t, positions)

	stats, err := b.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000", stats.InitialBalance.String())
	assert.Equal(t, 0, stats.TradesCount)
}
