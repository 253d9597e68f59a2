package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads, schema-checks, defaults and validates a test
// configuration file.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes.
func ParseConfig(data []byte) (*TestConfig, error) {
	// The budget section is schema-checked on its raw form first, so a
	// typo'd tier key fails with a location instead of silently decoding
	// to an empty budget.
	var rawDoc struct {
		Thresholds interface{} `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &rawDoc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if rawDoc.Thresholds != nil {
		if err := ValidateBudget(rawDoc.Thresholds); err != nil {
			return nil, err
		}
	}

	cfg := &TestConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
