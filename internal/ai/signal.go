// Package ai 负责调用大模型生成交易信号，并对返回的 JSON 做
// schema 与业务双重校验。
package ai

import (
	"fmt"
	"strings"

	"fathom/internal/exchange"

	"github.com/shopspring/decimal"
)

// Action 交易动作。
type Action string

const (
	ActionHold       Action = "HOLD"
	ActionOpenLong   Action = "OPEN_LONG"
	ActionOpenShort  Action = "OPEN_SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
	ActionAddLong    Action = "ADD_LONG"  // 加多仓（补仓）
	ActionAddShort   Action = "ADD_SHORT" // 加空仓（补仓）
)

// Valid 动作是否在枚举内。
func (a Action) Valid() bool {
	switch a {
	case ActionHold, ActionOpenLong, ActionOpenShort,
		ActionCloseLong, ActionCloseShort, ActionAddLong, ActionAddShort:
		return true
	}
	return false
}

// Confidence 信号置信度。
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// MarketAnalysis 模型输出的三维分析。
type MarketAnalysis struct {
	MarketTrend    string `json:"marketTrend"`
	PositionStatus string `json:"positionStatus"`
	RiskAssessment string `json:"riskAssessment"`
}

// TradingSignal 操作建议。
type TradingSignal struct {
	Action     Action     `json:"action"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
}

// OrderDetail 单个待执行订单。数量与价格保持字符串，
// 由执行侧解析为 decimal 后下单。
type OrderDetail struct {
	Type            string `json:"type"` // 1-开多 2-开空 3-平多 4-平空
	TypeDescription string `json:"typeDescription"`
	Size            string `json:"size"`
	PriceType       string `json:"priceType"` // MARKET / LIMIT
	Price           string `json:"price"`
	Reasoning       string `json:"reasoning"`
}

// ExecutionDetail 执行细节。HasOrder 为 false 时 Orders 必须为空。
type ExecutionDetail struct {
	HasOrder bool          `json:"hasOrder"`
	Orders   []OrderDetail `json:"orders"`
}

// Signal 模型返回的完整交易信号。
type Signal struct {
	Analysis    MarketAnalysis  `json:"analysis"`
	Signal      TradingSignal   `json:"signal"`
	Execution   ExecutionDetail `json:"execution"`
	RiskWarning string          `json:"riskWarning"`
}

// OrderRequest 将订单详情转换为执行后端的下单请求。
// 限价单携带价格，市价单 Price 置零由后端按市价成交。
func (d OrderDetail) OrderRequest(symbol string) (exchange.PlaceOrderRequest, error) {
	orderType, err := exchange.ParseOrderType(d.Type)
	if err != nil {
		return exchange.PlaceOrderRequest{}, err
	}
	size, err := decimal.NewFromString(strings.TrimSpace(d.Size))
	if err != nil || size.Sign() <= 0 {
		return exchange.PlaceOrderRequest{}, fmt.Errorf("订单数量无效: %q", d.Size)
	}
	price := decimal.Zero
	if strings.EqualFold(d.PriceType, "LIMIT") {
		price, err = decimal.NewFromString(strings.TrimSpace(d.Price))
		if err != nil || price.Sign() <= 0 {
			return exchange.PlaceOrderRequest{}, fmt.Errorf("订单价格无效: %q", d.Price)
		}
	}
	return exchange.PlaceOrderRequest{
		Symbol: symbol,
		Type:   orderType,
		Size:   size,
		Price:  price,
	}, nil
}

// Format 将信号渲染为可读文本（日志与通知共用）。
func (s Signal) Format() string {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	b.WriteString(line + "\n")
	b.WriteString("AI 交易信号分析\n")
	b.WriteString(line + "\n\n")

	b.WriteString("市场分析:\n")
	b.WriteString("  趋势: " + s.Analysis.MarketTrend + "\n")
	b.WriteString("  持仓: " + s.Analysis.PositionStatus + "\n")
	b.WriteString("  风险: " + s.Analysis.RiskAssessment + "\n\n")

	b.WriteString("交易信号:\n")
	b.WriteString("  操作: " + string(s.Signal.Action) + "\n")
	b.WriteString("  置信度: " + string(s.Signal.Confidence) + "\n")
	b.WriteString("  理由: " + s.Signal.Reasoning + "\n\n")

	b.WriteString("风险提示: " + s.RiskWarning + "\n\n")

	if s.Execution.HasOrder && len(s.Execution.Orders) > 0 {
		b.WriteString("执行订单:\n")
		for i, order := range s.Execution.Orders {
			fmt.Fprintf(&b, "  订单 %d:\n", i+1)
			b.WriteString("    类型: " + order.TypeDescription + "\n")
			b.WriteString("    数量: " + order.Size + " BTC\n")
			b.WriteString("    价格类型: " + order.PriceType + "\n")
			b.WriteString("    价格: " + order.Price + " USDT\n")
			b.WriteString("    理由: " + order.Reasoning + "\n\n")
		}
	} else {
		b.WriteString("执行计划: 观望，无需执行订单\n")
	}
	return b.String()
}
