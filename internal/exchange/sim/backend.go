// Package sim 提供纸面执行后端：订单路由到本地账本而非真实交易所，
// 行情仍来自注入的 PriceSource。
package sim

import (
	"context"
	"fmt"
	"time"

	"fathom/internal/exchange"
	"fathom/internal/logger"
	"fathom/internal/paper"

	"github.com/shopspring/decimal"
)

// Backend 基于 paper.Store 的模拟执行后端。
type Backend struct {
	store  *paper.Store
	prices exchange.PriceSource
}

var (
	_ exchange.Backend            = (*Backend)(nil)
	_ exchange.StatisticsProvider = (*Backend)(nil)
	_ exchange.Resetter           = (*Backend)(nil)
)

func NewBackend(store *paper.Store, prices exchange.PriceSource) *Backend {
	return &Backend{store: store, prices: prices}
}

func (b *Backend) Name() string { return "simulated" }

// resolvePrice 订单未带价格时按当前市价成交。
func (b *Backend) resolvePrice(ctx context.Context, given decimal.Decimal) (decimal.Decimal, error) {
	if given.Sign() > 0 {
		return given, nil
	}
	return b.prices.Last(ctx, b.store.Symbol())
}

// PlaceOrder 按订单类型编码分发到账本的开/平仓操作。
func (b *Backend) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (exchange.OrderAck, error) {
	price, err := b.resolvePrice(ctx, req.Price)
	if err != nil {
		return exchange.OrderAck{}, fmt.Errorf("解析成交价失败: %w", err)
	}

	logger.Infof("[模拟] 执行订单: type=%s size=%s price=%s", req.Type, req.Size, price)

	switch req.Type {
	case exchange.OrderTypeOpenLong:
		ack, err := b.store.OpenPosition(paper.SideLong, req.Size, price, req.Leverage)
		if err != nil {
			return exchange.OrderAck{}, err
		}
		logger.Infof("[模拟] 开多仓成功: %s BTC @ %s", req.Size, price)
		return exchange.OrderAck{OrderID: ack.OrderID, ClientOID: ack.ClientOID}, nil
	case exchange.OrderTypeOpenShort:
		ack, err := b.store.OpenPosition(paper.SideShort, req.Size, price, req.Leverage)
		if err != nil {
			return exchange.OrderAck{}, err
		}
		logger.Infof("[模拟] 开空仓成功: %s BTC @ %s", req.Size, price)
		return exchange.OrderAck{OrderID: ack.OrderID, ClientOID: ack.ClientOID}, nil
	case exchange.OrderTypeCloseLong:
		ack, err := b.store.ClosePosition(paper.SideLong, req.Size, price)
		if err != nil {
			return exchange.OrderAck{}, err
		}
		logger.Infof("[模拟] 平多仓成功: %s BTC @ %s, 盈亏: %s USDT", req.Size, price, ack.PnL.Round(2))
		return exchange.OrderAck{OrderID: ack.OrderID, ClientOID: ack.ClientOID, PnL: ack.PnL}, nil
	case exchange.OrderTypeCloseShort:
		ack, err := b.store.ClosePosition(paper.SideShort, req.Size, price)
		if err != nil {
			return exchange.OrderAck{}, err
		}
		logger.Infof("[模拟] 平空仓成功: %s BTC @ %s, 盈亏: %s USDT", req.Size, price, ack.PnL.Round(2))
		return exchange.OrderAck{OrderID: ack.OrderID, ClientOID: ack.ClientOID, PnL: ack.PnL}, nil
	default:
		return exchange.OrderAck{}, &exchange.UnknownOrderTypeError{Code: req.Type.String()}
	}
}

// AccountAssets 合约账户资产视图。equity = total + 未实现盈亏。
func (b *Backend) AccountAssets(ctx context.Context) ([]exchange.AccountAsset, error) {
	price, err := b.prices.Last(ctx, b.store.Symbol())
	if err != nil {
		return nil, err
	}
	balance := b.store.Balance()
	_, upnl := b.store.UnrealizedPnl(price)

	total := decimal.NewFromFloat(balance.Total)
	return []exchange.AccountAsset{{
		CoinName:     "USDT",
		Available:    decimal.NewFromFloat(balance.Available).Round(5),
		Frozen:       decimal.NewFromFloat(balance.Frozen).Round(5),
		Equity:       total.Add(upnl).Round(5),
		UnrealizePnl: upnl.Round(5),
	}}, nil
}

// Positions 按当前价标注未实现盈亏的持仓。模拟路径不计算强平价。
func (b *Backend) Positions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	price, err := b.prices.Last(ctx, b.store.Symbol())
	if err != nil {
		return nil, err
	}
	valuations, _ := b.store.UnrealizedPnl(price)
	out := make([]exchange.Position, 0, len(valuations))
	for _, v := range valuations {
		out = append(out, exchange.Position{
			ID:             v.ID,
			Symbol:         v.Symbol,
			Side:           string(v.Side),
			Size:           v.Size,
			EntryPrice:     v.EntryPrice,
			Leverage:       v.Leverage,
			MarginMode:     v.MarginMode,
			SeparatedMode:  v.SeparatedMode,
			CreatedTime:    v.CreatedTime,
			OpenValue:      v.OpenValue,
			OpenFee:        v.OpenFee,
			UnrealizePnl:   v.UnrealizedPnl,
			PnlPercent:     v.PnlPercent,
			LiquidatePrice: decimal.Zero,
		})
	}
	return out, nil
}

// Bills 账单历史，最新在前。
func (b *Backend) Bills(_ context.Context, limit int) ([]exchange.Bill, error) {
	if limit <= 0 {
		limit = 20
	}
	bills := b.store.Bills()
	if len(bills) > limit {
		bills = bills[:limit]
	}
	out := make([]exchange.Bill, 0, len(bills))
	for _, bill := range bills {
		out = append(out, exchange.Bill{
			ID:      bill.ID,
			Symbol:  bill.Symbol,
			Type:    bill.Type,
			Amount:  bill.Amount,
			Balance: bill.BalanceAfter,
			Fee:     bill.Fee,
			Time:    bill.Time,
		})
	}
	return out, nil
}

// RiskSummary 喂给决策模型的账户风险画像。
func (b *Backend) RiskSummary(ctx context.Context, symbol string) (exchange.RiskSummary, error) {
	price, err := b.prices.Last(ctx, b.store.Symbol())
	if err != nil {
		return exchange.RiskSummary{}, err
	}

	balance := b.store.Balance()
	report := b.store.AssessRisk(price)
	stats := b.store.Statistics(price)
	positions := b.store.Positions()

	leverage := paper.DefaultLeverage
	if len(positions) > 0 {
		leverage = positions[0].Leverage
	}

	realized := stats.TotalPnl.Sub(report.UnrealizedPnl)
	return exchange.RiskSummary{
		Symbol:         symbol,
		Timestamp:      time.Now(),
		InitialBalance: decimal.NewFromFloat(b.store.InitialBalance()).Round(2),
		AccountValue:   report.AccountValue.Round(2),
		Profit: exchange.ProfitSummary{
			Total:      stats.TotalPnl.Round(2),
			Percent:    stats.PnlPercent.Round(2),
			Realized:   realized.Round(2),
			Unrealized: report.UnrealizedPnl.Round(2),
		},
		Balance: exchange.BalanceSummary{
			Total:     decimal.NewFromFloat(balance.Total).Round(2),
			Available: decimal.NewFromFloat(balance.Available).Round(2),
			Frozen:    decimal.NewFromFloat(balance.Frozen).Round(2),
		},
		Margin: exchange.MarginSummary{
			Used:      decimal.NewFromFloat(balance.Frozen).Round(2),
			Available: decimal.NewFromFloat(balance.Available).Round(2),
			Ratio:     report.MarginRatio.Round(2),
		},
		Leverage: exchange.LeverageSummary{
			Current: leverage,
			Mode:    "SHARED",
		},
		LeverageRatio: report.LeverageRatio.Round(2),
		Level:         string(report.Level),
		Positions: exchange.PositionTotals{
			Count:              len(positions),
			TotalValue:         report.PositionValue.Round(2),
			TotalUnrealizedPnl: report.UnrealizedPnl.Round(2),
		},
	}, nil
}

// Statistics 纸面账户统计。
func (b *Backend) Statistics(ctx context.Context) (exchange.Statistics, error) {
	price, err := b.prices.Last(ctx, b.store.Symbol())
	if err != nil {
		return exchange.Statistics{}, err
	}
	stats := b.store.Statistics(price)
	balance := b.store.Balance()
	// currentBalance = total + totalPnl（含未实现盈亏）。
	return exchange.Statistics{
		InitialBalance: decimal.NewFromFloat(b.store.InitialBalance()),
		CurrentBalance: decimal.NewFromFloat(balance.Total).Add(stats.TotalPnl),
		TotalPnl:       stats.TotalPnl,
		PnlPercent:     stats.PnlPercent,
		TradesCount:    stats.TradesCount,
		WinRate:        stats.WinRate,
	}, nil
}

// Reset 重置账本（仅模拟后端支持）。
func (b *Backend) Reset(_ context.Context, initialBalance float64) error {
	return b.store.Reset(initialBalance)
}
