package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

const configFilePathENV = "CONFIG_FILE"

type GatewayConfig struct {
	Image          string        `mapstructure:"image"`
	Host           string        `mapstructure:"host"` // куда коннектиться клиенту, обычно localhost
	GatewayPort    int           `mapstructure:"gateway_port"`
	PortStart      int           `mapstructure:"port_start"`
	PortEnd        int           `mapstructure:"port_end"`
	ClientIDStart  int           `mapstructure:"client_id_start"`
	ClientIDEnd    int           `mapstructure:"client_id_end"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	MaxStartupTime time.Duration `mapstructure:"max_startup_time"`
	StopGrace      time.Duration `mapstructure:"stop_grace"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type LadderConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	PriceIncrement    float64       `mapstructure:"price_increment"`
	MinPriceThreshold float64       `mapstructure:"min_price_threshold"`
	TimeoutPerAttempt time.Duration `mapstructure:"timeout_per_attempt"`
}

type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	RiskThreshold     float64       `mapstructure:"risk_threshold"`
	CriticalThreshold float64       `mapstructure:"critical_threshold"`
	Multiplier        float64       `mapstructure:"multiplier"` // контрактный мультипликатор, для долларовой отчётности
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	Stream       string `mapstructure:"stream"`        // алерты
	SignalStream string `mapstructure:"signal_stream"` // входящие сигналы
}

type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Config ...
type Config struct {
	DB      string        `mapstructure:"db_dsn"`
	Vault   string        `mapstructure:"vault_file"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Ladder  LadderConfig  `mapstructure:"ladder"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

func NewConfig() (*Config, error) {
	v := viper.New()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	v.SetConfigFile("configs/" + configFileName)
	v.SetConfigType("yaml")

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// конфиг-файл опционален: дефолты + env достаточно для локального запуска
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.DB = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.image", "gateway:stable")
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.gateway_port", 4002)
	v.SetDefault("gateway.port_start", 4100)
	v.SetDefault("gateway.port_end", 4199)
	v.SetDefault("gateway.client_id_start", 10)
	v.SetDefault("gateway.client_id_end", 99)
	v.SetDefault("gateway.health_interval", "30s")
	v.SetDefault("gateway.max_startup_time", "90s")
	v.SetDefault("gateway.stop_grace", "10s")
	v.SetDefault("gateway.connect_timeout", "10s")

	v.SetDefault("ladder.max_attempts", 10)
	v.SetDefault("ladder.price_increment", 0.05)
	v.SetDefault("ladder.min_price_threshold", 0.30)
	v.SetDefault("ladder.timeout_per_attempt", "15s")

	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.risk_threshold", 1.00)
	v.SetDefault("monitor.critical_threshold", 0.10)
	v.SetDefault("monitor.multiplier", 100.0)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "alerts")
	v.SetDefault("redis.signal_stream", "signals")

	v.SetDefault("vault_file", "configs/vault.yaml")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
}

// Validate — единственное место, где движку позволено упасть на старте.
func (c *Config) Validate() error {
	g := c.Gateway
	if g.PortStart <= 0 || g.PortEnd < g.PortStart {
		return fmt.Errorf("config: invalid gateway port range [%d, %d]", g.PortStart, g.PortEnd)
	}
	if g.ClientIDStart <= 0 || g.ClientIDEnd < g.ClientIDStart {
		return fmt.Errorf("config: invalid gateway client id range [%d, %d]", g.ClientIDStart, g.ClientIDEnd)
	}
	if g.HealthInterval <= 0 || g.MaxStartupTime <= 0 || g.ConnectTimeout <= 0 || g.StopGrace <= 0 {
		return fmt.Errorf("config: gateway intervals must be positive")
	}

	l := c.Ladder
	if l.MaxAttempts <= 0 {
		return fmt.Errorf("config: ladder max_attempts must be positive")
	}
	if l.PriceIncrement <= 0 {
		return fmt.Errorf("config: ladder price_increment must be positive")
	}
	if l.MinPriceThreshold < 0 {
		return fmt.Errorf("config: ladder min_price_threshold must be non-negative")
	}
	if l.TimeoutPerAttempt <= 0 {
		return fmt.Errorf("config: ladder timeout_per_attempt must be positive")
	}

	m := c.Monitor
	if m.Interval <= 0 {
		return fmt.Errorf("config: monitor interval must be positive")
	}
	if m.CriticalThreshold < 0 || m.RiskThreshold <= m.CriticalThreshold {
		return fmt.Errorf("config: monitor thresholds must satisfy 0 <= critical < risk, got critical=%.2f risk=%.2f",
			m.CriticalThreshold, m.RiskThreshold)
	}

	return nil
}
