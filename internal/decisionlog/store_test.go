package decisionlog

import (
	"context"
	"path/filepath"
	"testing"

	"fathom/internal/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendDecision_WithSignal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	signal := &ai.Signal{
		Signal: ai.TradingSignal{
			Action:     ai.ActionOpenLong,
			Confidence: ai.ConfidenceHigh,
			Reasoning:  "趋势向上",
		},
	}
	id, err := store.AppendDecision(ctx, DecisionRecord{
		Symbol: "cmt_btcusdt",
		Model:  "deepseek/deepseek-v3.2",
		User:   "market report",
	}, signal)
	require.NoError(t, err)
	assert.Positive(t, id)

	recs, err := store.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "OPEN_LONG", recs[0].Action)
	assert.Equal(t, "HIGH", recs[0].Confidence)
	assert.Contains(t, recs[0].SignalJSON, "趋势向上")
}

func TestAppendDecision_FailureRecordsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendDecision(ctx, DecisionRecord{
		Symbol: "cmt_btcusdt",
		Error:  "AI 调用超时",
	}, nil)
	require.NoError(t, err)

	recs, err := store.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "AI 调用超时", recs[0].Error)
	assert.Empty(t, recs[0].Action)
}

func TestAppendOrder_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendOrder(ctx, OrderRecord{
		Timestamp: 1000, Symbol: "cmt_btcusdt", OrderType: "1", Size: "0.01",
	}))
	require.NoError(t, store.AppendOrder(ctx, OrderRecord{
		Timestamp: 2000, Symbol: "cmt_btcusdt", OrderType: "3", Size: "0.01", PnL: "9.69",
	}))

	recs, err := store.RecentOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "3", recs[0].OrderType)
	assert.Equal(t, "9.69", recs[0].PnL)
	assert.Equal(t, "1", recs[1].OrderType)
}

func TestStore_ClosedRejectsWrites(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.AppendDecision(context.Background(), DecisionRecord{}, nil)
	require.Error(t, err)
}
