package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Channel directions relative to the gateway
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Config is the operational channel configuration (channels.yaml).
// It names the status channels the listener subscribes to and documents
// the command channels the gateway publishes on.
type Config struct {
	Version         string           `yaml:"version" json:"version"`
	ConfigID        string           `yaml:"config_id" json:"config_id"`
	LastUpdated     string           `yaml:"lastUpdated" json:"lastUpdated"`
	RobotID         string           `yaml:"robot_id" json:"robot_id"`
	ChannelMappings []ChannelMapping `yaml:"channel_mappings" json:"channel_mappings"`
	Defaults        DefaultsConfig   `yaml:"defaults" json:"defaults"`
}

// ChannelMapping describes one rosbridge channel
type ChannelMapping struct {
	Channel     string `yaml:"channel" json:"channel"`
	MessageType string `yaml:"message_type" json:"message_type"`
	Direction   string `yaml:"direction" json:"direction"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// DefaultsConfig holds default values for channel mappings
type DefaultsConfig struct {
	MessageType string `yaml:"message_type" json:"message_type"`
	Direction   string `yaml:"direction" json:"direction"`
}

// DefaultChannelConfig returns the status channels the robot publishes
// out of the box.
func DefaultChannelConfig() *Config {
	return &Config{
		Version:  "1.0",
		ConfigID: "default-channels",
		RobotID:  "medirover",
		ChannelMappings: []ChannelMapping{
			{Channel: "/transport_status", MessageType: "std_msgs/String", Direction: DirectionInbound, Description: "delivery progress"},
			{Channel: "/cruise_status", MessageType: "std_msgs/String", Direction: DirectionInbound, Description: "patrol progress"},
			{Channel: "/take_tp_req", MessageType: "std_msgs/String", Direction: DirectionInbound, Description: "temperature request"},
			{Channel: "/tp_result", MessageType: "std_msgs/Float32", Direction: DirectionInbound, Description: "temperature result"},
		},
		Defaults: DefaultsConfig{
			MessageType: "std_msgs/String",
			Direction:   DirectionInbound,
		},
	}
}

// LoadConfig loads the operational configuration from the specified file path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates operational configuration YAML
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects mappings the listener could not subscribe to.
func (c *Config) Validate() error {
	if c.ConfigID == "" || c.Version == "" {
		return fmt.Errorf("validation failed: missing required fields (config_id, version)")
	}
	seen := make(map[string]bool, len(c.ChannelMappings))
	for i, m := range c.ChannelMappings {
		if m.Channel == "" {
			return fmt.Errorf("validation failed: channel_mappings[%d] has no channel", i)
		}
		if seen[m.Channel] {
			return fmt.Errorf("validation failed: duplicate channel %s", m.Channel)
		}
		seen[m.Channel] = true
		dir := m.Direction
		if dir == "" {
			dir = c.Defaults.Direction
		}
		if dir != DirectionInbound && dir != DirectionOutbound {
			return fmt.Errorf("validation failed: channel %s has invalid direction %q", m.Channel, dir)
		}
	}
	return nil
}

// GetChannelMappingsByDirection returns channel mappings filtered by direction
func (c *Config) GetChannelMappingsByDirection(direction string) []ChannelMapping {
	var result []ChannelMapping

	for _, mapping := range c.ChannelMappings {
		mappingWithDefaults := applyDefaults(mapping, c.Defaults)
		if mappingWithDefaults.Direction == direction {
			result = append(result, mappingWithDefaults)
		}
	}

	return result
}

// GetChannelMapping returns the mapping for a specific channel
func (c *Config) GetChannelMapping(channel string) (ChannelMapping, bool) {
	for _, mapping := range c.ChannelMappings {
		if mapping.Channel == channel {
			return applyDefaults(mapping, c.Defaults), true
		}
	}

	return ChannelMapping{}, false
}

// applyDefaults merges default values into a channel mapping where fields are empty
func applyDefaults(mapping ChannelMapping, defaults DefaultsConfig) ChannelMapping {
	result := mapping

	if result.MessageType == "" {
		result.MessageType = defaults.MessageType
	}

	if result.Direction == "" {
		result.Direction = defaults.Direction
	}

	return result
}
