package paper

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientBalanceError 可用余额不足以覆盖保证金+手续费。
// 校验失败时账本不发生任何变更。
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("余额不足: 需要 %s USDT, 可用 %s USDT",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// PositionNotFoundError 请求方向上不存在持仓。
type PositionNotFoundError struct {
	Side Side
}

func (e *PositionNotFoundError) Error() string {
	return fmt.Sprintf("未找到 %s 持仓", e.Side)
}

// ExcessiveCloseSizeError 平仓数量超过持仓数量。
type ExcessiveCloseSizeError struct {
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *ExcessiveCloseSizeError) Error() string {
	return fmt.Sprintf("平仓数量 %s 超过持仓数量 %s", e.Requested, e.Held)
}

// PersistenceError 账本落盘/加载失败。保存失败时内存状态已更新，
// 调用方可以只重试 Save 而无需重放交易。
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("账本%s失败 (%s): %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
