package broker

import (
	"context"
	"time"
)

type Right string

const (
	RightPut  Right = "P"
	RightCall Right = "C"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

type OrderType string

const (
	OrderLimit  OrderType = "LMT"
	OrderMarket OrderType = "MKT"
)

// Contract — одна опционная нога.
type Contract struct {
	Symbol string  `json:"symbol"`
	Right  Right   `json:"right"`
	Strike float64 `json:"strike"`
	Expiry string  `json:"expiry"` // YYYYMMDD
}

// ComboLeg — нога в комбо-ордере. Ratio всегда 1 для вертикального спреда.
type ComboLeg struct {
	Contract Contract `json:"contract"`
	Action   Action   `json:"action"`
	Ratio    int      `json:"ratio"`
}

type Combo struct {
	Symbol string     `json:"symbol"`
	Legs   []ComboLeg `json:"legs"`
}

type Order struct {
	Combo      Combo     `json:"combo"`
	Action     Action    `json:"action"`
	Qty        int       `json:"qty"`
	Type       OrderType `json:"type"`
	LimitPrice float64   `json:"limit_price,omitempty"`
}

type AccountSummary struct {
	AvailableFunds float64 `json:"available_funds"`
	NetLiquidation float64 `json:"net_liquidation"`
}

// Quote — снапшот маркет-даты по одному контракту.
type Quote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

// Mid — середина. Нет двусторонней котировки — откатываемся на last.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// MarginEstimate — результат what-if прогона ордера без исполнения.
type MarginEstimate struct {
	InitMargin  float64 `json:"init_margin"`
	MaintMargin float64 `json:"maint_margin"`
}

type FillStatus string

const (
	FillFilled    FillStatus = "FILLED"
	FillPartial   FillStatus = "PARTIAL"
	FillSubmitted FillStatus = "SUBMITTED"
	FillCancelled FillStatus = "CANCELLED"
	FillRejected  FillStatus = "REJECTED"
)

type Fill struct {
	OrderID   string     `json:"order_id"`
	Status    FillStatus `json:"status"`
	FilledQty int        `json:"filled_qty"`
	AvgPrice  float64    `json:"avg_price"`
}

// BrokerPosition — позиция, как её видит брокер (для сверки с нашим стором).
type BrokerPosition struct {
	Contract Contract `json:"contract"`
	Qty      int      `json:"qty"` // подписанное: шорт < 0
}

// API — минимальный набор возможностей торгового гейтвея, который
// потребляют Ladder и Monitor. Реализации: Client (ws) и фейки в тестах.
type API interface {
	Connect(ctx context.Context, host string, port, clientID int, timeout time.Duration) error
	IsConnected() bool
	Close() error

	AccountSummary(ctx context.Context) (*AccountSummary, error)
	Snapshot(ctx context.Context, c Contract) (*Quote, error)
	UnderlyingPrice(ctx context.Context, symbol string) (float64, error)
	WhatIf(ctx context.Context, o Order) (*MarginEstimate, error)
	PlaceOrder(ctx context.Context, o Order) (string, error)
	WaitFill(ctx context.Context, orderID string, timeout time.Duration) (*Fill, error)
	CancelOrder(ctx context.Context, orderID string) error
	OpenPositions(ctx context.Context) ([]BrokerPosition, error)
}
