package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSignalJSON = `{
  "analysis": {
    "marketTrend": "BTC 在 50000 附近震荡，15m 多头排列。",
    "positionStatus": "当前无持仓。",
    "riskAssessment": "账户余额充足，风险等级 LOW。"
  },
  "signal": {
    "action": "OPEN_LONG",
    "confidence": "MEDIUM",
    "reasoning": "多周期趋势一致向上。"
  },
  "execution": {
    "hasOrder": true,
    "orders": [
      {
        "type": "1",
        "typeDescription": "1-开多",
        "size": "0.0050",
        "priceType": "MARKET",
        "price": "50000",
        "reasoning": "按市价入场。"
      }
    ]
  },
  "riskWarning": "注意仓位控制。"
}`

func TestParseSignal_Valid(t *testing.T) {
	signal, err := ParseSignal(validSignalJSON)
	require.NoError(t, err)
	assert.Equal(t, ActionOpenLong, signal.Signal.Action)
	assert.Equal(t, ConfidenceMedium, signal.Signal.Confidence)
	require.Len(t, signal.Execution.Orders, 1)
	assert.Equal(t, "1", signal.Execution.Orders[0].Type)
}

func TestParseSignal_StripsMarkdownFence(t *testing.T) {
	wrapped := "模型分析如下：\n```json\n" + validSignalJSON + "\n```\n以上。"
	signal, err := ParseSignal(wrapped)
	require.NoError(t, err)
	assert.Equal(t, ActionOpenLong, signal.Signal.Action)
}

func TestParseSignal_RejectsUnknownAction(t *testing.T) {
	bad := `{
	  "analysis": {"marketTrend": "x", "positionStatus": "x", "riskAssessment": "x"},
	  "signal": {"action": "YOLO", "confidence": "HIGH", "reasoning": "x"},
	  "execution": {"hasOrder": false, "orders": []},
	  "riskWarning": "x"
	}`
	_, err := ParseSignal(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestParseSignal_HasOrderWithoutOrders(t *testing.T) {
	bad := `{
	  "analysis": {"marketTrend": "x", "positionStatus": "x", "riskAssessment": "x"},
	  "signal": {"action": "OPEN_LONG", "confidence": "HIGH", "reasoning": "x"},
	  "execution": {"hasOrder": true, "orders": []},
	  "riskWarning": "x"
	}`
	_, err := ParseSignal(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders 数组为空")
}

func TestParseSignal_InvalidOrderSize(t *testing.T) {
	bad := `{
	  "analysis": {"marketTrend": "x", "positionStatus": "x", "riskAssessment": "x"},
	  "signal": {"action": "OPEN_LONG", "confidence": "HIGH", "reasoning": "x"},
	  "execution": {"hasOrder": true, "orders": [
	    {"type": "1", "typeDescription": "1-开多", "size": "-1", "priceType": "MARKET", "price": "50000", "reasoning": "x"}
	  ]},
	  "riskWarning": "x"
	}`
	_, err := ParseSignal(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "数量无效")
}

func TestParseSignal_NoJSON(t *testing.T) {
	_, err := ParseSignal("对不起，这轮我无法给出建议。")
	require.Error(t, err)
}

func TestOrderRequest_LimitPrice(t *testing.T) {
	detail := OrderDetail{Type: "3", Size: "0.01", PriceType: "LIMIT", Price: "52000"}
	req, err := detail.OrderRequest("cmt_btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "52000", req.Price.String())
	assert.False(t, req.Type.IsOpen())
	assert.Equal(t, "LONG", req.Type.Side())
}

func TestOrderRequest_MarketPriceZero(t *testing.T) {
	detail := OrderDetail{Type: "2", Size: "0.01", PriceType: "MARKET", Price: "50000"}
	req, err := detail.OrderRequest("cmt_btcusdt")
	require.NoError(t, err)
	assert.True(t, req.Price.IsZero())
	assert.Equal(t, "SHORT", req.Type.Side())
}

func TestOrderRequest_LimitInvalidPrice(t *testing.T) {
	detail := OrderDetail{Type: "1", Size: "0.01", PriceType: "LIMIT", Price: "abc"}
	_, err := detail.OrderRequest("cmt_btcusdt")
	require.Error(t, err)
}
