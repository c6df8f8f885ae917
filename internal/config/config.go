package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config represents the full applyflow.yaml configuration.
type Config struct {
	SchemaVersion int               `yaml:"schema_version"`
	Portal        PortalConfig      `yaml:"portal"`
	Browser       BrowserConfig     `yaml:"browser"`
	Credentials   CredentialsConfig `yaml:"credentials"`
	Search        SearchConfig      `yaml:"search"`
	Timing        TimingConfig      `yaml:"timing"`
	Selectors     SelectorsConfig   `yaml:"selectors"`
	CoverLetter   CoverLetterConfig `yaml:"cover_letter"`
	Assessment    AssessmentConfig  `yaml:"assessment"`
	Sessions      SessionsConfig    `yaml:"sessions"`
	Server        ServerConfig      `yaml:"server"`
	Log           LogConfig         `yaml:"log"`
	History       HistoryConfig     `yaml:"history"`
	Tracing       TracingConfig     `yaml:"tracing"`
	Artifacts     ArtifactsConfig   `yaml:"artifacts"`
	Notion        NotionConfig      `yaml:"notion"`
}

type PortalConfig struct {
	BaseURL     string `yaml:"base_url"`
	ListingsURL string `yaml:"listings_url"`
}

type BrowserConfig struct {
	Headless       bool     `yaml:"headless"`
	StartMaximized bool     `yaml:"start_maximized"`
	NoSandbox      bool     `yaml:"no_sandbox"`
	ExecPath       string   `yaml:"exec_path"`
	UserAgent      string   `yaml:"user_agent"`
	Flags          []string `yaml:"flags"`
}

// CredentialsConfig is only used by `applyflow run`; the HTTP server takes
// credentials from each start request.
type CredentialsConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type SearchConfig struct {
	Profile         string `yaml:"profile"`
	Location        string `yaml:"location"`
	WorkFromHome    bool   `yaml:"work_from_home"`
	PartTime        bool   `yaml:"part_time"`
	MaxApplications int    `yaml:"max_applications"`
}

type TimingConfig struct {
	ActionDelay      time.Duration `yaml:"action_delay"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	KeyDelay         time.Duration `yaml:"key_delay"`
	CoverKeyDelay    time.Duration `yaml:"cover_key_delay"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	FilterTimeout    time.Duration `yaml:"filter_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
}

// SelectorsConfig holds the site markup. Every entry is an ordered list of
// alternative CSS selectors; the first one present on the page wins.
type SelectorsConfig struct {
	LoginButton     []string `yaml:"login_button"`
	Email           []string `yaml:"email"`
	Password        []string `yaml:"password"`
	LoginSubmit     []string `yaml:"login_submit"`
	InternshipsLink []string `yaml:"internships_link"`
	WorkFromHome    []string `yaml:"work_from_home"`
	PartTime        []string `yaml:"part_time"`
	SearchInput     []string `yaml:"search_input"`
	Listing         []string `yaml:"listing"`
	Continue        []string `yaml:"continue"`
	CoverLetter     []string `yaml:"cover_letter"`
	Submit          []string `yaml:"submit"`
	Question        []string `yaml:"question"`
	QuestionLabel   string   `yaml:"question_label"`
	AnswerField     []string `yaml:"answer_field"`
}

type CoverLetterConfig struct {
	Template      string            `yaml:"template"`
	Templates     map[string]string `yaml:"templates"`
	Substitutions map[string]string `yaml:"substitutions"`
}

type AssessmentConfig struct {
	// IncludeFirst answers the first question element too. The portal
	// currently renders a non-question block in that position.
	IncludeFirst    bool         `yaml:"include_first"`
	DefaultAnswer   string       `yaml:"default_answer"`
	MissingQuestion string       `yaml:"missing_question"`
	Rules           []AnswerRule `yaml:"rules"`
	// Script is a Go source file defining func Answer(question string) string.
	Script string `yaml:"script"`
}

// AnswerRule answers questions containing any of Keywords (case-insensitive).
type AnswerRule struct {
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

type SessionsConfig struct {
	Retention          time.Duration `yaml:"retention"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	MaxConcurrent      int           `yaml:"max_concurrent"`
	Adaptive           bool          `yaml:"adaptive"`
	MinRAMPerBrowserMB int           `yaml:"min_ram_per_browser_mb"`
	StateDir           string        `yaml:"state_dir"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Dir string `yaml:"dir"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Exporter    string            `yaml:"exporter"` // none, stdout, otlp (grpc) or otlphttp
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// ArtifactsConfig controls where failure screenshots go.
type ArtifactsConfig struct {
	Backend   string `yaml:"backend"` // none, local or minio
	Dir       string `yaml:"dir"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// NotionConfig mirrors every submitted application into a Notion database.
type NotionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

// Load reads and parses an applyflow.yaml file, overlays environment
// variables, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Migrate(data)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, os.LookupEnv)
	return finish(cfg)
}

// Parse parses raw YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg, err := Migrate(data)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks a Config for logical errors.
func Validate(cfg *Config) error {
	if cfg.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	for name, raw := range map[string]string{
		"portal.base_url":     cfg.Portal.BaseURL,
		"portal.listings_url": cfg.Portal.ListingsURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s %q: %w", name, raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s %q must be an http(s) URL", name, raw)
		}
	}

	if cfg.Search.Profile == "" {
		return fmt.Errorf("search.profile is required")
	}
	if cfg.Search.MaxApplications < 1 {
		return fmt.Errorf("search.max_applications must be >= 1, got %d", cfg.Search.MaxApplications)
	}

	if cfg.Timing.MaxRetries < 1 {
		return fmt.Errorf("timing.max_retries must be >= 1, got %d", cfg.Timing.MaxRetries)
	}
	if cfg.Timing.OperationTimeout <= 0 {
		return fmt.Errorf("timing.operation_timeout must be positive")
	}

	if cfg.Sessions.MaxConcurrent < 1 || cfg.Sessions.MaxConcurrent > 16 {
		return fmt.Errorf("sessions.max_concurrent must be 1-16, got %d", cfg.Sessions.MaxConcurrent)
	}
	if cfg.Sessions.Retention <= 0 {
		return fmt.Errorf("sessions.retention must be positive")
	}

	switch cfg.Tracing.Exporter {
	case "none", "stdout", "otlp", "otlphttp":
	default:
		return fmt.Errorf("tracing.exporter must be none, stdout, otlp or otlphttp, got %q", cfg.Tracing.Exporter)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", cfg.Tracing.SampleRatio)
	}

	switch cfg.Artifacts.Backend {
	case "none", "local":
	case "minio":
		if cfg.Artifacts.Endpoint == "" || cfg.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.endpoint and artifacts.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be none, local or minio, got %q", cfg.Artifacts.Backend)
	}

	if cfg.Notion.Enabled && (cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "") {
		return fmt.Errorf("notion.token and notion.database_id are required when notion is enabled")
	}

	for i, r := range cfg.Assessment.Rules {
		if len(r.Keywords) == 0 || r.Answer == "" {
			return fmt.Errorf("assessment.rules[%d] needs keywords and an answer", i)
		}
	}

	required := map[string][]string{
		"login_button": cfg.Selectors.LoginButton,
		"email":        cfg.Selectors.Email,
		"password":     cfg.Selectors.Password,
		"login_submit": cfg.Selectors.LoginSubmit,
		"search_input": cfg.Selectors.SearchInput,
		"listing":      cfg.Selectors.Listing,
		"continue":     cfg.Selectors.Continue,
		"cover_letter": cfg.Selectors.CoverLetter,
		"submit":       cfg.Selectors.Submit,
	}
	for name, candidates := range required {
		if len(candidates) == 0 {
			return fmt.Errorf("selectors.%s needs at least one selector", name)
		}
	}

	return nil
}
