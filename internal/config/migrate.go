package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is the schema written by this release. Version 1
// files named the search keywords `search.keywords` and used
// `assessment.skip_first` where version 2 has `include_first`.
const CurrentSchemaVersion = 2

// Migrate parses raw YAML bytes, upgrading older schema versions to the
// current layout. A file without schema_version is read as current.
func Migrate(raw []byte) (*Config, error) {
	var base struct {
		SchemaVersion int `yaml:"schema_version"`
	}
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("parse schema_version: %w", err)
	}

	switch base.SchemaVersion {
	case 0, CurrentSchemaVersion:
		return parseCurrent(raw)
	case 1:
		return upgradeV1(raw)
	default:
		return nil, fmt.Errorf("unsupported schema_version %d (max supported: %d)",
			base.SchemaVersion, CurrentSchemaVersion)
	}
}

func parseCurrent(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SchemaVersion = CurrentSchemaVersion
	return &cfg, nil
}

// v1Keys holds the version 1 keys that were renamed.
type v1Keys struct {
	Search struct {
		Keywords string `yaml:"keywords"`
	} `yaml:"search"`
	Assessment struct {
		SkipFirst *bool `yaml:"skip_first"`
	} `yaml:"assessment"`
}

func upgradeV1(raw []byte) (*Config, error) {
	cfg, err := parseCurrent(raw)
	if err != nil {
		return nil, err
	}
	var old v1Keys
	if err := yaml.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("parse v1 config: %w", err)
	}
	if cfg.Search.Profile == "" {
		cfg.Search.Profile = old.Search.Keywords
	}
	if old.Assessment.SkipFirst != nil {
		cfg.Assessment.IncludeFirst = !*old.Assessment.SkipFirst
	} else {
		// Version 1 always skipped the first question block.
		cfg.Assessment.IncludeFirst = false
	}
	return cfg, nil
}
