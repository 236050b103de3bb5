package service

import (
	"spread_mirror/internal/broker"
)

// RiskClass — классификация позиции по остаточной временной стоимости.
// Чем меньше времени в цене, тем ближе экспирация/ассайнмент и тем хуже.
type RiskClass string

const (
	ClassSafe     RiskClass = "SAFE"
	ClassRisk     RiskClass = "RISK"
	ClassCritical RiskClass = "CRITICAL"
)

// IntrinsicValue — внутренняя стоимость одного опциона при данном споте.
// Вне денег — ноль, отрицательной не бывает.
func IntrinsicValue(right broker.Right, strike, underlying float64) float64 {
	var v float64
	switch right {
	case broker.RightPut:
		v = strike - underlying
	case broker.RightCall:
		v = underlying - strike
	}
	if v < 0 {
		return 0
	}
	return v
}

// SpreadIntrinsic — внутренняя стоимость спреда на один контракт:
// подписанная сумма ног (длинная +, короткая −), по модулю. Для кредитного
// вертикала это то, что придётся отдать при экспирации в деньгах.
func SpreadIntrinsic(combo broker.Combo, underlying float64) float64 {
	var sum float64
	for _, leg := range combo.Legs {
		v := IntrinsicValue(leg.Contract.Right, leg.Contract.Strike, underlying)
		if leg.Action == broker.ActionSell {
			v = -v
		}
		sum += v * float64(leg.Ratio)
	}
	if sum < 0 {
		sum = -sum
	}
	return sum
}

// TimeValue — сколько в цене закрытия сверх внутренней стоимости.
func TimeValue(mark, intrinsic float64) float64 {
	tv := mark - intrinsic
	if tv < 0 {
		return 0
	}
	return tv
}

// Classify — границы включаются в худший класс: tv на пороге критического —
// уже критический.
func Classify(tv, riskThreshold, criticalThreshold float64) RiskClass {
	switch {
	case tv <= criticalThreshold:
		return ClassCritical
	case tv <= riskThreshold:
		return ClassRisk
	default:
		return ClassSafe
	}
}
