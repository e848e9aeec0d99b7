package paper

import (
	"github.com/shopspring/decimal"
)

// RiskLevel 离散风险等级。
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskReport 由余额与持仓价值推导的风险画像。
type RiskReport struct {
	AccountValue  decimal.Decimal `json:"accountValue"`  // available+frozen+未实现盈亏
	PositionValue decimal.Decimal `json:"positionValue"` // 持仓 open_value 合计
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	MarginRatio   decimal.Decimal `json:"marginRatio"`   // frozen/total×100
	LeverageRatio decimal.Decimal `json:"leverageRatio"` // positionValue/accountValue
	Level         RiskLevel       `json:"level"`
}

// AssessRisk 计算保证金使用率、实际杠杆与风险等级。
// 阈值为严格大于：落在 40/60/80 或 5/10/15 边界上归入较低档。
func (s *Store) AssessRisk(currentPrice decimal.Decimal) RiskReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, unrealized := valuatePositions(s.state.Positions, currentPrice)
	positionValue := decimal.Zero
	for _, pos := range s.state.Positions {
		positionValue = positionValue.Add(pos.OpenValue)
	}

	available := decimal.NewFromFloat(s.state.Balance.Available)
	frozen := decimal.NewFromFloat(s.state.Balance.Frozen)
	total := decimal.NewFromFloat(s.state.Balance.Total)

	accountValue := available.Add(frozen).Add(unrealized)
	leverageRatio := decimal.Zero
	if accountValue.Sign() > 0 {
		leverageRatio = positionValue.Div(accountValue)
	}
	marginRatio := decimal.Zero
	if total.Sign() > 0 {
		marginRatio = frozen.Div(total).Mul(dec100)
	}

	return RiskReport{
		AccountValue:  accountValue,
		PositionValue: positionValue,
		UnrealizedPnl: unrealized,
		MarginRatio:   marginRatio,
		LeverageRatio: leverageRatio,
		Level:         classifyRisk(marginRatio, leverageRatio),
	}
}

func classifyRisk(marginRatio, leverageRatio decimal.Decimal) RiskLevel {
	type tier struct {
		margin   int64
		leverage int64
		level    RiskLevel
	}
	// 从高到低逐档匹配，首个命中生效。
	for _, t := range []tier{
		{80, 15, RiskCritical},
		{60, 10, RiskHigh},
		{40, 5, RiskMedium},
	} {
		if marginRatio.GreaterThan(decimal.NewFromInt(t.margin)) ||
			leverageRatio.GreaterThan(decimal.NewFromInt(t.leverage)) {
			return t.level
		}
	}
	return RiskLow
}
