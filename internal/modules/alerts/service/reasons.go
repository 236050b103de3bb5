package service

import "spread_mirror/internal/models"

// severityByReason — закрытое соответствие код → дефолтная серьёзность.
// Новый код без строки здесь ловится тестом на полноту.
var severityByReason = map[models.Reason]models.Severity{
	models.ReasonGatewayUnreachable:   models.SeverityCritical,
	models.ReasonGatewayFailed:        models.SeverityCritical,
	models.ReasonResourceExhausted:    models.SeverityCritical,
	models.ReasonNoMargin:             models.SeverityCritical,
	models.ReasonMidTooLow:            models.SeverityCritical,
	models.ReasonLimitReached:         models.SeverityCritical,
	models.ReasonPartialFill:          models.SeverityWarning,
	models.ReasonTimeValueRisk:        models.SeverityWarning,
	models.ReasonTimeValueThreshold:   models.SeverityCritical,
	models.ReasonTimeValueLiquidation: models.SeverityInfo,
	models.ReasonLiquidationFailed:    models.SeverityCritical,
	models.ReasonAssignmentDetected:   models.SeverityCritical,
	models.ReasonCalculationError:     models.SeverityError,
}

// AllReasons — для проверок полноты.
func AllReasons() []models.Reason {
	out := make([]models.Reason, 0, len(severityByReason))
	for r := range severityByReason {
		out = append(out, r)
	}
	return out
}

// Severity — дефолтная серьёзность кода. Неизвестный код считаем ERROR:
// лучше шумный алерт, чем потерянный.
func Severity(r models.Reason) models.Severity {
	if s, ok := severityByReason[r]; ok {
		return s
	}
	return models.SeverityError
}
