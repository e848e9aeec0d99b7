package paper

import (
	"github.com/shopspring/decimal"
)

var dec100 = decimal.NewFromInt(100)

// PositionValuation 按当前价标注未实现盈亏后的持仓视图。
type PositionValuation struct {
	Position
	UnrealizedPnl decimal.Decimal `json:"unrealizePnl"`
	PnlPercent    decimal.Decimal `json:"pnlPercent"`
}

// Statistics 交易统计汇总。
type Statistics struct {
	TotalPnl    decimal.Decimal `json:"totalPnl"`
	PnlPercent  decimal.Decimal `json:"pnlPercent"`
	TradesCount int             `json:"tradesCount"`
	WinRate     float64         `json:"winRate"`
}

// UnrealizedPnl 对每个持仓计算未实现盈亏及其汇总。
// 纯读侧投影：同一价格、状态不变时两次调用结果一致。
func (s *Store) UnrealizedPnl(currentPrice decimal.Decimal) ([]PositionValuation, decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return valuatePositions(s.state.Positions, currentPrice)
}

func valuatePositions(positions []Position, price decimal.Decimal) ([]PositionValuation, decimal.Decimal) {
	total := decimal.Zero
	out := make([]PositionValuation, 0, len(positions))
	for _, pos := range positions {
		var upnl decimal.Decimal
		if pos.Side == SideLong {
			upnl = price.Sub(pos.EntryPrice).Mul(pos.Size)
		} else {
			upnl = pos.EntryPrice.Sub(price).Mul(pos.Size)
		}
		pnlPercent := decimal.Zero
		if pos.OpenValue.Sign() > 0 {
			pnlPercent = upnl.Div(pos.OpenValue).Mul(dec100)
		}
		total = total.Add(upnl)
		out = append(out, PositionValuation{
			Position:      pos,
			UnrealizedPnl: upnl.Round(5),
			PnlPercent:    pnlPercent.Round(4),
		})
	}
	return out, total
}

// Statistics 汇总已实现+未实现盈亏、收益率与胜率。
// 已实现盈亏取平仓账单（close_long/close_short）金额之和；
// 胜率以盈利的平仓账单占比计，无平仓记录时为 0。
func (s *Store) Statistics(currentPrice decimal.Decimal) Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, unrealized := valuatePositions(s.state.Positions, currentPrice)

	realized := decimal.Zero
	closes, wins := 0, 0
	for _, bill := range s.state.Bills {
		if bill.Type != BillCloseLong && bill.Type != BillCloseShort {
			continue
		}
		closes++
		realized = realized.Add(bill.Amount)
		if bill.Amount.Sign() > 0 {
			wins++
		}
	}

	totalPnl := realized.Add(unrealized)
	pnlPercent := decimal.Zero
	if s.state.InitialBalance > 0 {
		pnlPercent = totalPnl.Div(decimal.NewFromFloat(s.state.InitialBalance)).Mul(dec100)
	}
	winRate := 0.0
	if closes > 0 {
		winRate = float64(wins) / float64(closes) * 100
	}
	return Statistics{
		TotalPnl:    totalPnl,
		PnlPercent:  pnlPercent,
		TradesCount: closes,
		WinRate:     winRate,
	}
}
