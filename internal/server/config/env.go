package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv overlays variables that are present in the environment; absent
// variables leave the current values untouched.
func parseEnv(config *Config, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	// env splits on the separator without trimming
	config.FrontendURLs = trimList(config.FrontendURLs)
	config.KafkaBrokers = trimList(config.KafkaBrokers)
	return nil
}
