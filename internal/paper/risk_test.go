package paper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRisk_StrictBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		margin   string
		leverage string
		want     RiskLevel
	}{
		{"全零", "0", "0", RiskLow},
		{"保证金恰 40 归低档", "40.00", "0", RiskLow},
		{"保证金 40.01 升档", "40.01", "0", RiskMedium},
		{"保证金恰 60 归中档", "60.00", "0", RiskMedium},
		{"保证金 60.01 升档", "60.01", "0", RiskHigh},
		{"保证金恰 80 归高档", "80.00", "0", RiskHigh},
		{"保证金 80.01 升档", "80.01", "0", RiskCritical},
		{"杠杆恰 5 归低档", "0", "5", RiskLow},
		{"杠杆 5.01 升档", "0", "5.01", RiskMedium},
		{"杠杆恰 10 归中档", "0", "10", RiskMedium},
		{"杠杆 10.01 升档", "0", "10.01", RiskHigh},
		{"杠杆恰 15 归高档", "0", "15", RiskHigh},
		{"杠杆 15.01 升档", "0", "15.01", RiskCritical},
		{"任一指标命中即生效", "40.01", "15.01", RiskCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyRisk(dec(tc.margin), dec(tc.leverage))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAssessRisk_Zeros(t *testing.T) {
	s := newTestStore(t, 1000)

	report := s.AssessRisk(dec("50000"))
	assert.Equal(t, RiskLow, report.Level)
	assert.True(t, report.MarginRatio.IsZero())
	assert.True(t, report.LeverageRatio.IsZero())
	assert.Equal(t, "1000", report.AccountValue.String())
}

func TestAssessRisk_WithPosition(t *testing.T) {
	s := newTestStore(t, 1000)
	// open_value = 1000，margin = 50，fee = 0.6
	_, err := s.OpenPosition(SideLong, dec("0.02"), dec("50000"), dec("20"))
	require.NoError(t, err)

	report := s.AssessRisk(dec("50000"))
	// accountValue = 949.4 + 50 + 0 = 999.4
	assert.Equal(t, "999.4", report.AccountValue.String())
	assert.Equal(t, "1000", report.PositionValue.String())
	// marginRatio = 50/1000×100 = 5（total 开仓后未重算仍为 1000）
	assert.Equal(t, "5", report.MarginRatio.String())
	// leverageRatio = 1000/999.4 ≈ 1.0006 → LOW
	assert.Equal(t, RiskLow, report.Level)
	assert.True(t, report.LeverageRatio.GreaterThan(dec("1")))
}

func TestAssessRisk_NegativeAccountValueGuard(t *testing.T) {
	s := newTestStore(t, 1000)
	_, err := s.OpenPosition(SideLong, dec("0.02"), dec("50000"), dec("20"))
	require.NoError(t, err)

	// 价格近乎归零：未实现亏损吃穿权益，accountValue ≤ 0 时杠杆比归 0。
	report := s.AssessRisk(dec("1"))
	assert.True(t, report.AccountValue.Sign() <= 0)
	assert.True(t, report.LeverageRatio.IsZero())
}
