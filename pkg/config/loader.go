package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads mcp.yaml from configDir (if present), env-expands it, merges it
// over the built-in Defaults, and validates the result. A missing file is
// not an error — the defaults alone are a valid configuration.
func Load(configDir string) (*Config, error) {
	cfg := Defaults()
	cfg.configDir = configDir

	path := filepath.Join(configDir, "mcp.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if verr := cfg.Validate(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	raw = ExpandEnv(raw)

	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging %s over defaults: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
