// Package paper 实现纸面交易账本：余额、持仓、订单与账单的
// 一致性维护，不接触真实交易所。
package paper

import (
	"github.com/shopspring/decimal"
)

// Side 持仓方向。
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Valid 仅接受 LONG/SHORT。
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Bill 类型（业务类型，与订单 type 编码 1-4 对应）。
const (
	BillOpenLong   = "open_long"
	BillOpenShort  = "open_short"
	BillCloseLong  = "close_long"
	BillCloseShort = "close_short"
)

// Balance 账户余额。available+frozen 为实际持有资金；
// total 仅在平仓时重算（与原始行为一致，开仓后允许短暂陈旧）。
type Balance struct {
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
	Frozen    float64 `json:"frozen"`
}

// Position 单方向持仓，同一方向最多存在一个。
// 金额字段使用 decimal，序列化为字符串（与交易所侧字段格式一致）。
type Position struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	Leverage      decimal.Decimal `json:"leverage"`
	MarginMode    string          `json:"margin_mode"`
	SeparatedMode string          `json:"separated_mode"`
	CreatedTime   int64           `json:"created_time"`
	OpenValue     decimal.Decimal `json:"open_value"`
	OpenFee       decimal.Decimal `json:"open_fee"`
}

// Order 已成交订单的不可变记录，只追加。
// type 编码：1-开多 2-开空 3-平多 4-平空。
type Order struct {
	OrderID     string          `json:"order_id"`
	ClientOID   string          `json:"client_oid"`
	Symbol      string          `json:"symbol"`
	Type        string          `json:"type"`
	Size        decimal.Decimal `json:"size"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	CreatedTime int64           `json:"created_time"`
}

// Bill 影响余额的账单条目，新记录插入头部（最新在前）。
type Bill struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance"`
	Fee          decimal.Decimal `json:"fee"`
	Time         int64           `json:"time"`
}

// State 账本聚合根，仅由 Store 持有与修改。
type State struct {
	Balance        Balance    `json:"balance"`
	Positions      []Position `json:"positions"`
	Orders         []Order    `json:"orders"`
	Bills          []Bill     `json:"bills"`
	InitialBalance float64    `json:"initialBalance"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

func (s *State) clone() State {
	out := *s
	out.Positions = append([]Position(nil), s.Positions...)
	out.Orders = append([]Order(nil), s.Orders...)
	out.Bills = append([]Bill(nil), s.Bills...)
	return out
}

func (s *State) findPosition(side Side) *Position {
	for i := range s.Positions {
		if s.Positions[i].Side == side {
			return &s.Positions[i]
		}
	}
	return nil
}

func (s *State) removePosition(id string) {
	out := s.Positions[:0]
	for _, p := range s.Positions {
		if p.ID != id {
			out = append(out, p)
		}
	}
	s.Positions = out
}

// OrderAck 开仓回执。
type OrderAck struct {
	OrderID   string `json:"order_id"`
	ClientOID string `json:"client_oid"`
}

// CloseAck 平仓回执，PnL 为扣除手续费后的已实现盈亏（未舍入）。
type CloseAck struct {
	OrderID   string          `json:"order_id"`
	ClientOID string          `json:"client_oid"`
	PnL       decimal.Decimal `json:"pnl"`
}
