// Package exchange 定义执行后端与行情来源的能力抽象。
// 引擎只依赖这里的接口，不感知任何具体实现（实盘或纸面）。
package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Backend 单标的合约账户的执行后端。
// Live 与 Simulated 是两个平级实现，而非继承覆盖关系。
type Backend interface {
	Name() string

	// PlaceOrder 按订单类型编码执行：1-开多 2-开空 3-平多 4-平空。
	// 无法识别的编码返回 *UnknownOrderTypeError。
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderAck, error)

	AccountAssets(ctx context.Context) ([]AccountAsset, error)

	Positions(ctx context.Context, symbol string) ([]Position, error)

	Bills(ctx context.Context, limit int) ([]Bill, error)

	RiskSummary(ctx context.Context, symbol string) (RiskSummary, error)
}

// PriceSource 行情能力：返回标的最新成交价。
type PriceSource interface {
	Last(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// StatisticsProvider 纸面后端额外暴露的统计能力。
type StatisticsProvider interface {
	Statistics(ctx context.Context) (Statistics, error)
}

// Resetter 可重置的后端（纸面账本）。
type Resetter interface {
	Reset(ctx context.Context, initialBalance float64) error
}
