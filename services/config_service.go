package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/medirover/controller/pkg/config"
	customlog "github.com/medirover/controller/pkg/log"
)

// ErrInvalidConfig wraps parse and validation failures of a submitted config
var ErrInvalidConfig = errors.New("invalid channel configuration")

// ConfigPublisher announces configuration changes to other processes
type ConfigPublisher interface {
	PublishConfigUpdatedNotification(cfg *config.Config) error
}

// ConfigListener is told about every applied configuration
type ConfigListener func(cfg *config.Config)

// ChannelConfigService defines the interface for managing the operational channel configuration.
type ChannelConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	UpdateConfig(newConfigYAML []byte) (*config.Config, error)
	PersistConfig(yamlData []byte) error
	SetPublisher(p ConfigPublisher)
	OnUpdate(fn ConfigListener)
}

// channelConfigService implements the ChannelConfigService interface.
type channelConfigService struct {
	operationalConfigPath string
	logger                customlog.Logger
	configPublisher       ConfigPublisher
	listeners             []ConfigListener
	currentConfig         *config.Config
	mu                    sync.RWMutex
}

// NewChannelConfigService creates a new ChannelConfigService. When the file
// is missing the built-in channel set is written to it; any other load
// failure is returned.
func NewChannelConfigService(operationalConfigPath string, logger customlog.Logger) (ChannelConfigService, error) {
	if operationalConfigPath == "" {
		return nil, fmt.Errorf("operational configuration path cannot be empty")
	}

	service := &channelConfigService{
		operationalConfigPath: operationalConfigPath,
		logger:                customlog.OrDefault(logger),
	}

	err := service.LoadConfig()
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		service.logger.Warnf("Operational config '%s' not found, writing default channels", operationalConfigPath)
		if err := service.writeDefaults(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	service.logger.Infof("ChannelConfigService initialized for path: %s", operationalConfigPath)
	return service, nil
}

func (s *channelConfigService) writeDefaults() error {
	cfg := config.DefaultChannelConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error serializing default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.operationalConfigPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistConfigUnlocked(data); err != nil {
		return err
	}
	s.currentConfig = cfg
	return nil
}

// LoadConfig reads the operational config file from disk and updates the
// current config. On failure the current config is kept.
func (s *channelConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading operational configuration from: %s", s.operationalConfigPath)
	cfg, err := config.LoadConfig(s.operationalConfigPath)
	if err != nil {
		return fmt.Errorf("loading '%s': %w", s.operationalConfigPath, err)
	}

	s.currentConfig = cfg
	s.logger.Infof("Loaded operational configuration ID: %s, Version: %s, %d channels",
		cfg.ConfigID, cfg.Version, len(cfg.ChannelMappings))
	return nil
}

// GetCurrentConfig returns the configuration in effect. Treat it as read-only.
func (s *channelConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// GetCurrentConfigYAML returns the raw YAML of the operational config file
func (s *channelConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.operationalConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading operational config file '%s': %w", s.operationalConfigPath, err)
	}
	return data, nil
}

// UpdateConfig validates, persists and applies newConfigYAML, then tells
// the listeners and the publisher.
func (s *channelConfigService) UpdateConfig(newConfigYAML []byte) (*config.Config, error) {
	newCfg, err := config.ParseConfig(newConfigYAML)
	if err != nil {
		s.logger.Warnf("Rejected operational configuration: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s.mu.Lock()
	if err := s.persistConfigUnlocked(newConfigYAML); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	oldCfgID := "N/A"
	if s.currentConfig != nil {
		oldCfgID = s.currentConfig.ConfigID
	}
	s.currentConfig = newCfg
	listeners := append([]ConfigListener(nil), s.listeners...)
	publisher := s.configPublisher
	s.mu.Unlock()

	s.logger.Infof("Updated operational configuration. ID %s -> %s, Version: %s", oldCfgID, newCfg.ConfigID, newCfg.Version)

	for _, fn := range listeners {
		fn(newCfg)
	}

	if publisher != nil {
		if err := publisher.PublishConfigUpdatedNotification(newCfg); err != nil {
			s.logger.Warnf("Failed to publish config update notification: %v", err)
		}
	} else {
		s.logger.Debugf("ConfigPublisher not configured, skipping update notification")
	}

	return newCfg, nil
}

// PersistConfig writes the given YAML data to the operational config file path.
func (s *channelConfigService) PersistConfig(yamlData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistConfigUnlocked(yamlData)
}

// persistConfigUnlocked writes the file through a temp file and rename.
// The caller holds the lock.
func (s *channelConfigService) persistConfigUnlocked(yamlData []byte) error {
	tmp := s.operationalConfigPath + ".tmp"
	if err := os.WriteFile(tmp, yamlData, 0644); err != nil {
		return fmt.Errorf("error writing operational config file '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, s.operationalConfigPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error replacing operational config file '%s': %w", s.operationalConfigPath, err)
	}
	s.logger.Debugf("Persisted configuration to %s", s.operationalConfigPath)
	return nil
}

// SetPublisher allows injecting the ConfigPublisher after initialization.
func (s *channelConfigService) SetPublisher(p ConfigPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configPublisher = p
}

// OnUpdate registers fn to run after each applied update
func (s *channelConfigService) OnUpdate(fn ConfigListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
