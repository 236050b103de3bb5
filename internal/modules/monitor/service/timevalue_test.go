package service

import (
	"testing"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrinsicValue(t *testing.T) {
	assert.InDelta(t, 15.0, IntrinsicValue(broker.RightPut, 445, 430), 1e-9)
	assert.InDelta(t, 0.0, IntrinsicValue(broker.RightPut, 445, 460), 1e-9)
	assert.InDelta(t, 10.0, IntrinsicValue(broker.RightCall, 450, 460), 1e-9)
	assert.InDelta(t, 0.0, IntrinsicValue(broker.RightCall, 450, 430), 1e-9)
}

func TestSpreadIntrinsic(t *testing.T) {
	combo, err := broker.BuildSpread(models.Signal{
		Ticker:      "SPY",
		Strategy:    models.StrategyBullPut,
		LongStrike:  440,
		ShortStrike: 445,
		Expiry:      "20260918",
	})
	require.NoError(t, err)

	// глубоко в деньгах: |10 − 15| = ширина между страйками, уменьшенная лонгом
	assert.InDelta(t, 5.0, SpreadIntrinsic(combo, 430), 1e-9)
	// между страйками: только короткая нога в деньгах
	assert.InDelta(t, 3.0, SpreadIntrinsic(combo, 442), 1e-9)
	// вне денег
	assert.InDelta(t, 0.0, SpreadIntrinsic(combo, 460), 1e-9)
}

func TestTimeValueNeverNegative(t *testing.T) {
	assert.InDelta(t, 0.02, TimeValue(5.02, 5.00), 1e-9)
	assert.InDelta(t, 0.0, TimeValue(4.90, 5.00), 1e-9)
	assert.InDelta(t, 0.0, TimeValue(0, 0), 1e-9)
}

func TestClassifyBoundaries(t *testing.T) {
	const risk, critical = 1.00, 0.10

	cases := []struct {
		tv   float64
		want RiskClass
	}{
		{0.05, ClassCritical},
		{0.10, ClassCritical}, // граница уходит в худший класс
		{0.11, ClassRisk},
		{1.00, ClassRisk},
		{1.01, ClassSafe},
		{0.0, ClassCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.tv, risk, critical), "tv=%.2f", tc.tv)
	}
}
