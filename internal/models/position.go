package models

import "time"

type PositionState string

const (
	PositionOpen    PositionState = "OPEN"
	PositionClosing PositionState = "CLOSING"
	PositionClosed  PositionState = "CLOSED"
)

type AssignmentState string

const (
	AssignmentNone        AssignmentState = "NONE"
	AssignmentAssigned    AssignmentState = "ASSIGNED"
	AssignmentCompensated AssignmentState = "COMPENSATED"
)

// Position — открытый спред фолловера. Пишется Ladder'ом при филле,
// мутируется Monitor'ом при ликвидации/ремонте ассайнмента.
// Инварианты: количества неотрицательные, OPEN→CLOSING→CLOSED в одну сторону,
// ASSIGNED→COMPENSATED — ремонт, не переоткрытие.
type Position struct {
	ID          string          `json:"id"`
	FollowerID  string          `json:"follower_id"`
	Symbol      string          `json:"symbol"`
	Strategy    Strategy        `json:"strategy"`
	LongQty     int             `json:"long_qty"`
	ShortQty    int             `json:"short_qty"`
	LongStrike  float64         `json:"long_strike"`
	ShortStrike float64         `json:"short_strike"`
	Expiry      string          `json:"expiry"`
	State       PositionState   `json:"state"`
	Assignment  AssignmentState `json:"assignment"`
	EntryPrice  float64         `json:"entry_price"` // кредит за спред при открытии
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
}

// RemainingQty — сколько контрактов ещё закрывать. Для кредитного спреда
// обязательство сидит в короткой ноге, после частичного ремонта ноги могут разойтись.
func (p *Position) RemainingQty() int {
	if p.ShortQty > p.LongQty {
		return p.ShortQty
	}
	return p.LongQty
}
