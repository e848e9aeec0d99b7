package trader

import (
	"context"
	"errors"
	"testing"

	"fathom/internal/ai"
	"fathom/internal/exchange"
	"fathom/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend 记录下单请求，按脚本返回结果。
type stubBackend struct {
	requests []exchange.PlaceOrderRequest
	errs     map[int]error // 第 N 笔订单返回的错误（从 0 计）
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) PlaceOrder(_ context.Context, req exchange.PlaceOrderRequest) (exchange.OrderAck, error) {
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	if err, ok := s.errs[idx]; ok {
		return exchange.OrderAck{}, err
	}
	return exchange.OrderAck{OrderID: "ord-1", PnL: decimal.NewFromInt(5)}, nil
}

func (s *stubBackend) AccountAssets(context.Context) ([]exchange.AccountAsset, error) {
	return []exchange.AccountAsset{{CoinName: "USDT", Equity: decimal.NewFromInt(1000)}}, nil
}

func (s *stubBackend) Positions(context.Context, string) ([]exchange.Position, error) {
	return nil, nil
}

func (s *stubBackend) Bills(context.Context, int) ([]exchange.Bill, error) {
	return nil, nil
}

func (s *stubBackend) RiskSummary(context.Context, string) (exchange.RiskSummary, error) {
	return exchange.RiskSummary{}, nil
}

func signalWithOrders(orders ...ai.OrderDetail) ai.Signal {
	return ai.Signal{
		Signal: ai.TradingSignal{Action: ai.ActionOpenLong, Confidence: ai.ConfidenceHigh},
		Execution: ai.ExecutionDetail{
			HasOrder: len(orders) > 0,
			Orders:   orders,
		},
	}
}

func newTestTrader(backend exchange.Backend, leverage string) *Trader {
	lev := decimal.Zero
	if leverage != "" {
		lev = decimal.RequireFromString(leverage)
	}
	return New("cmt_btcusdt", backend, nil, nil, Options{Leverage: lev})
}

func TestExecuteOrders_InjectsLeverageOnOpen(t *testing.T) {
	backend := &stubBackend{}
	tr := newTestTrader(backend, "20")

	sig := signalWithOrders(ai.OrderDetail{
		Type: "1", Size: "0.01", PriceType: "MARKET",
	})
	require.NoError(t, tr.executeOrders(context.Background(), sig))

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, exchange.OrderTypeOpenLong, req.Type)
	assert.True(t, req.Leverage.Equal(decimal.NewFromInt(20)))
	assert.True(t, req.Price.IsZero(), "市价单不携带价格")
}

func TestExecuteOrders_ClosePreservesLimitPrice(t *testing.T) {
	backend := &stubBackend{}
	tr := newTestTrader(backend, "20")

	sig := signalWithOrders(ai.OrderDetail{
		Type: "3", Size: "0.01", PriceType: "LIMIT", Price: "51000",
	})
	require.NoError(t, tr.executeOrders(context.Background(), sig))

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, exchange.OrderTypeCloseLong, req.Type)
	assert.True(t, req.Price.Equal(decimal.NewFromInt(51000)))
	assert.True(t, req.Leverage.IsZero(), "平仓不注入杠杆")
}

func TestExecuteOrders_FailureDoesNotBlockRest(t *testing.T) {
	backend := &stubBackend{errs: map[int]error{0: errors.New("余额不足")}}
	tr := newTestTrader(backend, "")

	sig := signalWithOrders(
		ai.OrderDetail{Type: "1", Size: "0.01", PriceType: "MARKET"},
		ai.OrderDetail{Type: "2", Size: "0.02", PriceType: "MARKET"},
	)
	err := tr.executeOrders(context.Background(), sig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "余额不足")
	assert.Len(t, backend.requests, 2, "首单失败后仍执行后续订单")
}

func TestExecuteOrders_InvalidOrderSkipped(t *testing.T) {
	backend := &stubBackend{}
	tr := newTestTrader(backend, "")

	sig := signalWithOrders(
		ai.OrderDetail{Type: "9", Size: "0.01", PriceType: "MARKET"},
		ai.OrderDetail{Type: "4", Size: "0.02", PriceType: "MARKET"},
	)
	err := tr.executeOrders(context.Background(), sig)
	require.Error(t, err)
	require.Len(t, backend.requests, 1)
	assert.Equal(t, exchange.OrderTypeCloseShort, backend.requests[0].Type)
}

func marketSnapshotForTest() market.Snapshot {
	return market.Snapshot{
		Symbol: "BTCUSDT",
		Intervals: map[string]market.IntervalSnapshot{
			"15m": {
				Interval:    "15m",
				Count:       100,
				LatestPrice: decimal.NewFromInt(50000),
			},
		},
	}
}

func TestBuildReport_ContainsRiskAndPositions(t *testing.T) {
	tr := newTestTrader(&stubBackend{}, "")

	risk := exchange.RiskSummary{Symbol: "cmt_btcusdt", Level: "LOW"}
	positions := []exchange.Position{{Symbol: "cmt_btcusdt", Side: "LONG"}}
	report := tr.buildReport(marketSnapshotForTest(), risk, positions)

	assert.Contains(t, report, "账户风险画像")
	assert.Contains(t, report, `"level": "LOW"`)
	assert.Contains(t, report, "当前持仓")
	assert.Contains(t, report, `"side": "LONG"`)
}
