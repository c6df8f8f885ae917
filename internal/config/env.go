package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables overlaid on top of the YAML file. Credentials are
// expected to come from here (or a .env file) rather than from the config.
const (
	EnvEmail           = "APPLYFLOW_EMAIL"
	EnvPassword        = "APPLYFLOW_PASSWORD"
	EnvProfile         = "APPLYFLOW_PROFILE"
	EnvLocation        = "APPLYFLOW_LOCATION"
	EnvMaxApplications = "APPLYFLOW_MAX_APPLICATIONS"
	EnvHeadless        = "APPLYFLOW_HEADLESS"
	EnvServerAddr      = "APPLYFLOW_ADDR"
	EnvActionDelay     = "APPLYFLOW_ACTION_DELAY"
	EnvOTLPEndpoint    = "APPLYFLOW_OTEL_ENDPOINT"
	EnvMinIOAccessKey  = "APPLYFLOW_MINIO_ACCESS_KEY"
	EnvMinIOSecretKey  = "APPLYFLOW_MINIO_SECRET_KEY"
	EnvNotionToken     = "APPLYFLOW_NOTION_TOKEN"
	EnvNotionDatabase  = "APPLYFLOW_NOTION_DATABASE_ID"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	if v, ok := lookup(EnvEmail); ok && v != "" {
		cfg.Credentials.Email = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		cfg.Credentials.Password = v
	}
	if v, ok := lookup(EnvProfile); ok && v != "" {
		cfg.Search.Profile = v
	}
	if v, ok := lookup(EnvLocation); ok {
		cfg.Search.Location = v
	}
	if v, ok := lookup(EnvMaxApplications); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxApplications = n
		}
	}
	if v, ok := lookup(EnvHeadless); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v, ok := lookup(EnvServerAddr); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup(EnvActionDelay); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timing.ActionDelay = d
		}
	}

	secrets := []struct {
		key string
		dst *string
	}{
		{EnvOTLPEndpoint, &cfg.Tracing.Endpoint},
		{EnvMinIOAccessKey, &cfg.Artifacts.AccessKey},
		{EnvMinIOSecretKey, &cfg.Artifacts.SecretKey},
		{EnvNotionToken, &cfg.Notion.Token},
		{EnvNotionDatabase, &cfg.Notion.DatabaseID},
	}
	for _, s := range secrets {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
}
