package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			PortStart:      4100,
			PortEnd:        4199,
			ClientIDStart:  10,
			ClientIDEnd:    99,
			HealthInterval: 30 * time.Second,
			MaxStartupTime: 90 * time.Second,
			StopGrace:      10 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Ladder: LadderConfig{
			MaxAttempts:       10,
			PriceIncrement:    0.05,
			MinPriceThreshold: 0.30,
			TimeoutPerAttempt: 15 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:          time.Minute,
			RiskThreshold:     1.00,
			CriticalThreshold: 0.10,
		},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port range inverted", func(c *Config) { c.Gateway.PortEnd = c.Gateway.PortStart - 1 }},
		{"client id range inverted", func(c *Config) { c.Gateway.ClientIDEnd = 1 }},
		{"zero health interval", func(c *Config) { c.Gateway.HealthInterval = 0 }},
		{"zero max attempts", func(c *Config) { c.Ladder.MaxAttempts = 0 }},
		{"negative increment", func(c *Config) { c.Ladder.PriceIncrement = -0.05 }},
		{"negative min price threshold", func(c *Config) { c.Ladder.MinPriceThreshold = -0.10 }},
		{"zero stop grace", func(c *Config) { c.Gateway.StopGrace = 0 }},
		{"risk below critical", func(c *Config) { c.Monitor.RiskThreshold = 0.05 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
