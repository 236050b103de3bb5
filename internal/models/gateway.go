package models

import "time"

type GatewayStatus string

const (
	GatewayStarting GatewayStatus = "STARTING"
	GatewayRunning  GatewayStatus = "RUNNING"
	GatewayStopped  GatewayStatus = "STOPPED"
	GatewayFailed   GatewayStatus = "FAILED"
)

// GatewayInstance — один запущенный gateway-процесс, привязанный к одному фолловеру.
// Владеет им исключительно оркестратор; не больше одного инстанса на follower_id,
// host_port и client_id уникальны среди живых инстансов.
type GatewayInstance struct {
	FollowerID      string        `json:"follower_id"`
	ContainerID     string        `json:"container_id"`
	HostPort        int           `json:"host_port"`
	ClientID        int           `json:"client_id"`
	Status          GatewayStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	LastHealthCheck time.Time     `json:"last_healthcheck"`
}
