package models

import "time"

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
)

// Reason — закрытый набор кодов алертов. Диспатч по коду, не по строкам в тексте.
type Reason string

const (
	ReasonGatewayUnreachable   Reason = "GATEWAY_UNREACHABLE"
	ReasonGatewayFailed        Reason = "GATEWAY_FAILED"
	ReasonResourceExhausted    Reason = "RESOURCE_EXHAUSTED"
	ReasonNoMargin             Reason = "NO_MARGIN"
	ReasonMidTooLow            Reason = "MID_TOO_LOW"
	ReasonLimitReached         Reason = "LIMIT_REACHED"
	ReasonPartialFill          Reason = "PARTIAL_FILL"
	ReasonTimeValueRisk        Reason = "TIME_VALUE_RISK"
	ReasonTimeValueThreshold   Reason = "TIME_VALUE_THRESHOLD"
	ReasonTimeValueLiquidation Reason = "TIME_VALUE_LIQUIDATION"
	ReasonLiquidationFailed    Reason = "LIQUIDATION_FAILED"
	ReasonAssignmentDetected   Reason = "ASSIGNMENT_DETECTED"
	ReasonCalculationError     Reason = "CALCULATION_ERROR"
)

// Alert — запись для операторов. Движок её только публикует,
// доставка (чат/почта) живёт снаружи.
type Alert struct {
	Service    string            `json:"service"`
	FollowerID string            `json:"follower_id"`
	Reason     Reason            `json:"reason"`
	Severity   Severity          `json:"severity"`
	At         time.Time         `json:"at"`
	Details    map[string]string `json:"details,omitempty"`
}
