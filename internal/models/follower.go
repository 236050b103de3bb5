package models

// RiskLimits — лимиты риска фолловера, задаются извне вместе с самим фолловером.
type RiskLimits struct {
	MaxOpenSpreads int `json:"max_open_spreads"`
	MaxQtyPerLeg   int `json:"max_qty_per_leg"`
}

// Follower — суб-аккаунт одного тенанта. Для движка read-only:
// создание/редактирование живёт в админке.
type Follower struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	SecretRef string     `json:"secret_ref"`
	Enabled   bool       `json:"enabled"`
	Limits    RiskLimits `json:"limits"`
}
