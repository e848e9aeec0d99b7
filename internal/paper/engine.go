package paper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FeeRate 开平仓两腿均收取的手续费率（0.06%）。
var FeeRate = decimal.NewFromFloat(0.0006)

// DefaultLeverage 未指定杠杆时的默认值。
var DefaultLeverage = decimal.NewFromInt(20)

// OpenPosition 开仓或加仓。
//
// openValue = size × price；margin = openValue / leverage；
// fee = openValue × FeeRate。可用余额不足 margin+fee 时返回
// *InsufficientBalanceError 且账本不变。同方向已有持仓时合并，
// 入场价取成交额加权平均；开仓手续费累加。
//
// 开仓只扣减 available、冻结 margin，不重算 total——total 仅在
// 平仓时重算，两次平仓之间允许陈旧（沿用线上观察到的行为）。
func (s *Store) OpenPosition(side Side, size, price, leverage decimal.Decimal) (OrderAck, error) {
	if !side.Valid() {
		return OrderAck{}, fmt.Errorf("无效持仓方向: %q", side)
	}
	if size.Sign() <= 0 {
		return OrderAck{}, fmt.Errorf("开仓数量必须为正: %s", size)
	}
	if price.Sign() <= 0 {
		return OrderAck{}, fmt.Errorf("开仓价格必须为正: %s", price)
	}
	if leverage.Sign() <= 0 {
		leverage = DefaultLeverage
	}

	openValue := size.Mul(price)
	margin := openValue.Div(leverage)
	fee := openValue.Mul(FeeRate)
	need := margin.Add(fee)

	s.mu.Lock()
	defer s.mu.Unlock()

	available := decimal.NewFromFloat(s.state.Balance.Available)
	if available.LessThan(need) {
		return OrderAck{}, &InsufficientBalanceError{Required: need, Available: available}
	}

	nowMs := s.nowMillis()
	orderID := s.newID()
	clientOID := fmt.Sprintf("%s_%d", strings.ToLower(string(side)), nowMs)

	if existing := s.state.findPosition(side); existing != nil {
		// 加仓：成交额加权平均入场价，手续费累加。
		newSize := existing.Size.Add(size)
		newValue := existing.OpenValue.Add(openValue)
		existing.Size = newSize.Round(4)
		existing.EntryPrice = newValue.Div(newSize).Round(2)
		existing.OpenValue = newValue.Round(2)
		existing.OpenFee = existing.OpenFee.Add(fee).Round(5)
	} else {
		s.state.Positions = append(s.state.Positions, Position{
			ID:            s.newID(),
			Symbol:        s.symbol,
			Side:          side,
			Size:          size.Round(4),
			EntryPrice:    price.Round(2),
			Leverage:      leverage,
			MarginMode:    "SHARED",
			SeparatedMode: "COMBINED",
			CreatedTime:   nowMs,
			OpenValue:     openValue.Round(2),
			OpenFee:       fee.Round(5),
		})
	}

	// 余额变动：available -= margin+fee；frozen += margin。
	s.state.Balance.Available = available.Sub(need).InexactFloat64()
	s.state.Balance.Frozen = decimal.NewFromFloat(s.state.Balance.Frozen).Add(margin).InexactFloat64()

	orderType := "1"
	billType := BillOpenLong
	if side == SideShort {
		orderType = "2"
		billType = BillOpenShort
	}
	s.state.Orders = append(s.state.Orders, Order{
		OrderID:     orderID,
		ClientOID:   clientOID,
		Symbol:      s.symbol,
		Type:        orderType,
		Size:        size,
		Price:       price,
		Status:      "filled",
		CreatedTime: nowMs,
	})
	s.state.Bills = append([]Bill{{
		ID:           s.newID(),
		Symbol:       s.symbol,
		Type:         billType,
		Amount:       margin.Neg().Round(5),
		BalanceAfter: decimal.NewFromFloat(s.state.Balance.Available).Round(5),
		Fee:          fee.Round(5),
		Time:         nowMs,
	}}, s.state.Bills...)

	// 保存失败向上传播；内存状态已更新，调用方可单独重试 Save。
	if err := s.saveLocked(); err != nil {
		return OrderAck{OrderID: orderID, ClientOID: clientOID}, err
	}
	return OrderAck{OrderID: orderID, ClientOID: clientOID}, nil
}

// ClosePosition 平仓（全部或部分）。
//
// 已实现盈亏：LONG 为 closeValue−costBasis，SHORT 相反，再扣除
// closeValue × FeeRate 的平仓手续费。释放保证金 costBasis/leverage。
// 部分平仓保持入场价不变，只缩减 size 与 open_value；数量打平时
// 删除持仓而非清零。total 在此处重算为 available+frozen。
func (s *Store) ClosePosition(side Side, size, currentPrice decimal.Decimal) (CloseAck, error) {
	if !side.Valid() {
		return CloseAck{}, fmt.Errorf("无效持仓方向: %q", side)
	}
	if size.Sign() <= 0 {
		return CloseAck{}, fmt.Errorf("平仓数量必须为正: %s", size)
	}
	if currentPrice.Sign() <= 0 {
		return CloseAck{}, fmt.Errorf("平仓价格必须为正: %s", currentPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.state.findPosition(side)
	if pos == nil {
		return CloseAck{}, &PositionNotFoundError{Side: side}
	}
	if size.GreaterThan(pos.Size) {
		return CloseAck{}, &ExcessiveCloseSizeError{Requested: size, Held: pos.Size}
	}

	closeValue := size.Mul(currentPrice)
	costBasis := size.Mul(pos.EntryPrice)
	var pnl decimal.Decimal
	if side == SideLong {
		pnl = closeValue.Sub(costBasis)
	} else {
		pnl = costBasis.Sub(closeValue)
	}
	fee := closeValue.Mul(FeeRate)
	pnl = pnl.Sub(fee)
	releasedMargin := costBasis.Div(pos.Leverage)

	nowMs := s.nowMillis()
	orderID := s.newID()
	clientOID := fmt.Sprintf("close_%s_%d", strings.ToLower(string(side)), nowMs)

	if size.GreaterThanOrEqual(pos.Size) {
		s.state.removePosition(pos.ID)
	} else {
		remaining := pos.Size.Sub(size)
		pos.Size = remaining.Round(4)
		pos.OpenValue = remaining.Mul(pos.EntryPrice).Round(2)
	}

	// frozen -= releasedMargin；available += releasedMargin+pnl；
	// total = available+frozen（仅此处重算）。
	s.state.Balance.Frozen = decimal.NewFromFloat(s.state.Balance.Frozen).Sub(releasedMargin).InexactFloat64()
	s.state.Balance.Available = decimal.NewFromFloat(s.state.Balance.Available).
		Add(releasedMargin).Add(pnl).InexactFloat64()
	s.state.Balance.Total = s.state.Balance.Available + s.state.Balance.Frozen

	orderType := "3"
	billType := BillCloseLong
	if side == SideShort {
		orderType = "4"
		billType = BillCloseShort
	}
	s.state.Orders = append(s.state.Orders, Order{
		OrderID:     orderID,
		ClientOID:   clientOID,
		Symbol:      s.symbol,
		Type:        orderType,
		Size:        size,
		Price:       currentPrice,
		Status:      "filled",
		CreatedTime: nowMs,
	})
	s.state.Bills = append([]Bill{{
		ID:           s.newID(),
		Symbol:       s.symbol,
		Type:         billType,
		Amount:       pnl.Round(5),
		BalanceAfter: decimal.NewFromFloat(s.state.Balance.Available).Round(5),
		Fee:          fee.Round(5),
		Time:         nowMs,
	}}, s.state.Bills...)

	if err := s.saveLocked(); err != nil {
		return CloseAck{OrderID: orderID, ClientOID: clientOID, PnL: pnl}, err
	}
	return CloseAck{OrderID: orderID, ClientOID: clientOID, PnL: pnl}, nil
}
