package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ApplyEnvOverrides overwrites bootstrap fields that carry an `env` tag
// with the matching environment variable, when that variable is set.
func ApplyEnvOverrides(cfg *BootstrapConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
