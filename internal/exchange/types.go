package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType 决策管道下发的订单类型编码。
type OrderType int

const (
	OrderTypeOpenLong   OrderType = 1
	OrderTypeOpenShort  OrderType = 2
	OrderTypeCloseLong  OrderType = 3
	OrderTypeCloseShort OrderType = 4
)

// ParseOrderType 解析字符串编码，未知编码返回 *UnknownOrderTypeError。
func ParseOrderType(code string) (OrderType, error) {
	switch code {
	case "1":
		return OrderTypeOpenLong, nil
	case "2":
		return OrderTypeOpenShort, nil
	case "3":
		return OrderTypeCloseLong, nil
	case "4":
		return OrderTypeCloseShort, nil
	default:
		return 0, &UnknownOrderTypeError{Code: code}
	}
}

func (t OrderType) String() string {
	return fmt.Sprintf("%d", int(t))
}

// IsOpen 是否为开仓类订单。
func (t OrderType) IsOpen() bool {
	return t == OrderTypeOpenLong || t == OrderTypeOpenShort
}

// Side 订单对应的持仓方向（LONG/SHORT）。
func (t OrderType) Side() string {
	switch t {
	case OrderTypeOpenLong, OrderTypeCloseLong:
		return "LONG"
	case OrderTypeOpenShort, OrderTypeCloseShort:
		return "SHORT"
	default:
		return ""
	}
}

// UnknownOrderTypeError 决策管道给出的订单类型无法识别。
type UnknownOrderTypeError struct {
	Code string
}

func (e *UnknownOrderTypeError) Error() string {
	return fmt.Sprintf("未知订单类型: %s", e.Code)
}

// PlaceOrderRequest 下单参数。Leverage 为零时由后端取默认值。
type PlaceOrderRequest struct {
	Symbol    string
	ClientOID string
	Type      OrderType
	Size      decimal.Decimal
	Price     decimal.Decimal // 零值表示按当前市价成交
	Leverage  decimal.Decimal
}

// OrderAck 下单回执。平仓时 PnL 为已实现盈亏。
type OrderAck struct {
	OrderID   string          `json:"order_id"`
	ClientOID string          `json:"client_oid"`
	PnL       decimal.Decimal `json:"pnl,omitempty"`
}

// AccountAsset 合约账户资产。
type AccountAsset struct {
	CoinName     string          `json:"coinName"`
	Available    decimal.Decimal `json:"available"`
	Frozen       decimal.Decimal `json:"frozen"`
	Equity       decimal.Decimal `json:"equity"`
	UnrealizePnl decimal.Decimal `json:"unrealizePnl"`
}

// Position 标注了未实现盈亏的持仓视图。
// LiquidatePrice 仅实盘路径透传，纸面路径恒为 0。
type Position struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Size           decimal.Decimal `json:"size"`
	EntryPrice     decimal.Decimal `json:"entryPrice"`
	Leverage       decimal.Decimal `json:"leverage"`
	MarginMode     string          `json:"margin_mode"`
	SeparatedMode  string          `json:"separated_mode"`
	CreatedTime    int64           `json:"created_time"`
	OpenValue      decimal.Decimal `json:"open_value"`
	OpenFee        decimal.Decimal `json:"open_fee"`
	UnrealizePnl   decimal.Decimal `json:"unrealizePnl"`
	PnlPercent     decimal.Decimal `json:"pnlPercent"`
	LiquidatePrice decimal.Decimal `json:"liquidatePrice"`
}

// Bill 账单视图（最新在前）。
type Bill struct {
	ID      string          `json:"id"`
	Symbol  string          `json:"symbol"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
	Fee     decimal.Decimal `json:"fee"`
	Time    int64           `json:"time"`
}

// Statistics 纸面账户统计。
type Statistics struct {
	InitialBalance decimal.Decimal `json:"initialBalance"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	TotalPnl       decimal.Decimal `json:"totalPnl"`
	PnlPercent     decimal.Decimal `json:"pnlPercent"`
	TradesCount    int             `json:"tradesCount"`
	WinRate        float64         `json:"winRate"`
}

// RiskSummary 喂给 AI 的账户风险画像。
type RiskSummary struct {
	Symbol         string          `json:"symbol"`
	Timestamp      time.Time       `json:"timestamp"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	AccountValue   decimal.Decimal `json:"currentAccountValue"`
	Profit         ProfitSummary   `json:"profit"`
	Balance        BalanceSummary  `json:"balance"`
	Margin         MarginSummary   `json:"margin"`
	Leverage       LeverageSummary `json:"leverage"`
	LeverageRatio  decimal.Decimal `json:"leverageRatio"`
	Level          string          `json:"level"`
	Positions      PositionTotals  `json:"positions"`
}

type ProfitSummary struct {
	Total      decimal.Decimal `json:"total"`
	Percent    decimal.Decimal `json:"percent"`
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
}

type BalanceSummary struct {
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
}

type MarginSummary struct {
	Used      decimal.Decimal `json:"used"`
	Available decimal.Decimal `json:"available"`
	Ratio     decimal.Decimal `json:"ratio"`
}

type LeverageSummary struct {
	Current decimal.Decimal `json:"current"`
	Mode    string          `json:"mode"`
}

type PositionTotals struct {
	Count              int             `json:"count"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	TotalUnrealizedPnl decimal.Decimal `json:"totalUnrealizedPnl"`
}
