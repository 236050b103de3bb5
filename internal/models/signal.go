package models

// Strategy — тип вертикального спреда.
type Strategy string

const (
	StrategyBullPut  Strategy = "bull_put"
	StrategyBearCall Strategy = "bear_call"
)

// Signal — команда открыть вертикальный спред. После получения не меняется.
type Signal struct {
	Ticker      string   `json:"ticker"`
	Strategy    Strategy `json:"strategy"`
	Qty         int      `json:"qty"` // контрактов на ногу
	LongStrike  float64  `json:"long_strike"`
	ShortStrike float64  `json:"short_strike"`
	Expiry      string   `json:"expiry"` // YYYYMMDD, одна экспирация на обе ноги
}
