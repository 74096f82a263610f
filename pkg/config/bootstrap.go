package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the bootstrap config file looked up in the config directory.
const BootstrapFileName = "gateway_config.yaml"

// BootstrapConfig holds the process configuration loaded from gateway_config.yaml
type BootstrapConfig struct {
	Logging LoggingConfig         `yaml:"logging"`
	Server  BootstrapServerConfig `yaml:"server"`
	Bridge  BridgeConfig          `yaml:"bridge"`
	Gateway GatewayConfig         `yaml:"gateway"`
	Status  StatusConfig          `yaml:"status"`
	Data    DataConfig            `yaml:"data"`
	ZeroMQ  ZeroMQBootstrap       `yaml:"zeromq"`
	Redis   RedisConfig           `yaml:"redis"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level" env:"GATEWAY_LOG_LEVEL"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds HTTP server settings
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port" env:"GATEWAY_HTTP_PORT"`
}

// BridgeConfig describes the rosbridge peer and how to reach it.
type BridgeConfig struct {
	Host              string        `yaml:"host" env:"GATEWAY_BRIDGE_HOST"`
	Port              int           `yaml:"port" env:"GATEWAY_BRIDGE_PORT"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// GatewayConfig holds command gateway settings
type GatewayConfig struct {
	// PaceInterval is the quiescent period after each successful publish. Zero disables pacing.
	PaceInterval time.Duration `yaml:"pace_interval"`
	// FrameID is the reference frame used for poses built from stored waypoints and the cruise header.
	FrameID string `yaml:"frame_id"`
}

// StatusConfig sizes the worker pool that delivers status updates to observers
type StatusConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory          string `yaml:"directory"`
	ChannelsConfigFile string `yaml:"channels_config_file"`
	DatabaseFile       string `yaml:"database_file"`
}

// ZeroMQBootstrap holds ZeroMQ fan-out and command ingress settings
type ZeroMQBootstrap struct {
	Enabled            bool   `yaml:"enabled"`
	PublishBindAddress string `yaml:"publish_bind_address"`
	RequestBindAddress string `yaml:"request_bind_address"`
}

// RedisConfig holds settings for the status mirror
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address" env:"GATEWAY_REDIS_ADDRESS"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultBootstrapConfig returns the values used for any field the file leaves out.
func DefaultBootstrapConfig() *BootstrapConfig {
	return &BootstrapConfig{
		Logging: LoggingConfig{Level: "info"},
		Server:  BootstrapServerConfig{HTTPPort: 5000},
		Bridge: BridgeConfig{
			Port:              9090,
			ConnectTimeout:    5 * time.Second,
			ReconnectInterval: 2 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Gateway: GatewayConfig{
			PaceInterval: time.Second,
			FrameID:      "map",
		},
		Status: StatusConfig{
			Workers:   2,
			QueueSize: 256,
		},
		Data: DataConfig{
			ChannelsConfigFile: "channels.yaml",
			DatabaseFile:       "gateway.db",
		},
		ZeroMQ: ZeroMQBootstrap{
			PublishBindAddress: "tcp://*:5556",
			RequestBindAddress: "tcp://*:5555",
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			KeyPrefix: "medirover",
		},
	}
}

// LoadBootstrapConfig loads gateway_config.yaml from configDir, applies
// environment overrides and validates required fields.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	bootstrapCfg := DefaultBootstrapConfig()
	if err := yaml.Unmarshal(data, bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if err := ApplyEnvOverrides(bootstrapCfg); err != nil {
		return nil, err
	}

	if err := bootstrapCfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrapCfg, nil
}

// Validate checks the fields the process cannot start without.
func (c *BootstrapConfig) Validate() error {
	if c.Bridge.Host == "" {
		return fmt.Errorf("missing required field in bootstrap config: bridge.host")
	}
	if c.Bridge.Port <= 0 {
		return fmt.Errorf("missing required field in bootstrap config: bridge.port")
	}
	if c.Data.Directory == "" {
		return fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if c.ZeroMQ.Enabled && c.ZeroMQ.PublishBindAddress == "" {
		return fmt.Errorf("missing required field in bootstrap config: zeromq.publish_bind_address")
	}
	return nil
}

// ChannelsConfigPath returns the path of the operational channel config file.
func (c *BootstrapConfig) ChannelsConfigPath() string {
	return filepath.Join(c.Data.Directory, c.Data.ChannelsConfigFile)
}

// DatabasePath returns the path of the SQLite record store.
func (c *BootstrapConfig) DatabasePath() string {
	return filepath.Join(c.Data.Directory, c.Data.DatabaseFile)
}
