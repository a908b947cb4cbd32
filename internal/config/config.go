// Package config loads and validates the orchestrator's configuration
// record (spec §6): a structured YAML file (or environment overrides)
// recognized by every component built in this module.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP façade (internal/httpapi).
type ServerConfig struct {
	Port string `yaml:"port" validate:"required"`
}

// OrchestratorConfig configures pkg/orchestrator (spec §6).
type OrchestratorConfig struct {
	MaxConcurrentTasks      int           `yaml:"max_concurrent_tasks" validate:"gte=1"`
	DefaultTaskTimeout      time.Duration `yaml:"default_task_timeout"`
	VerificationTimeout     time.Duration `yaml:"verification_timeout"`
	PollingInterval         time.Duration `yaml:"polling_interval"`
	VerificationRequired    bool          `yaml:"verification_required"`
	MaxVerificationAttempts int           `yaml:"max_verification_attempts" validate:"gte=1"`
	AutoRetryOnFailure      bool          `yaml:"auto_retry_on_verification_failure"`
	MaxRetries              int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay              time.Duration `yaml:"retry_delay"`
	RetryBackoffMultiplier  float64       `yaml:"retry_backoff_multiplier" validate:"gt=0"`
}

// SafetyConfig configures pkg/safety's scope budget (spec §6).
type SafetyConfig struct {
	MaxFilesPerTask       int  `yaml:"max_files_per_task" validate:"gte=1"`
	MaxDirectoriesPerTask int  `yaml:"max_directories_per_task" validate:"gte=1"`
	EnablePreflightChecks bool `yaml:"enable_preflight_checks"`
	EnablePostflight      bool `yaml:"enable_postflight_validation"`
}

// VerificationConfig configures pkg/verification's stage toggles.
type VerificationConfig struct {
	CheckExistence    bool   `yaml:"check_existence"`
	CheckModification bool   `yaml:"check_modification"`
	ModificationMode  string `yaml:"modification_mode" validate:"omitempty,oneof=mtime hash"`
	CheckDomain       bool   `yaml:"check_domain"`
	CheckTests        bool   `yaml:"check_tests"`
	TestsBlocking     bool   `yaml:"tests_blocking"`
	CheckArtifacts    bool   `yaml:"check_artifacts"`
}

// EventsConfig configures pkg/events' OASIS emitter (spec §6).
type EventsConfig struct {
	Enabled    bool   `yaml:"enable_oasis_events"`
	GatewayURL string `yaml:"oasis_gateway_url" validate:"omitempty,url"`
	Tenant     string `yaml:"tenant"`
	GitSHA     string `yaml:"git_sha"`
}

// LoggingConfig configures the logrus root logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// AdapterEndpoint points one domain's dispatch at an out-of-process HTTP
// agent backend (pkg/adapter/httpadapter) instead of the CLI's built-in
// Anthropic/mock default (spec §4.7 "a map from domain tag to adapter").
type AdapterEndpoint struct {
	Domain       string        `yaml:"domain" validate:"required,oneof=frontend backend memory mixed"`
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ClassifierConfig lets an operator append extra keywords/globs to a
// domain's scoring table without touching the normative tables in
// package classifier (additive "per-domain keyword/glob override").
type ClassifierConfig struct {
	ExtraKeywords map[string][]string `yaml:"extra_keywords"`
	ExtraGlobs    map[string][]string `yaml:"extra_globs"`
}

// Config is the top-level configuration record of spec §6.
type Config struct {
	WorkspacePath string             `yaml:"workspace_path" validate:"required"`
	EnableMetrics bool               `yaml:"enable_metrics"`
	Server        ServerConfig       `yaml:"server"`
	Orchestrator  OrchestratorConfig `yaml:"orchestrator"`
	Safety        SafetyConfig       `yaml:"safety"`
	Verification  VerificationConfig `yaml:"verification"`
	Events        EventsConfig       `yaml:"events"`
	Logging       LoggingConfig      `yaml:"logging"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Adapters      []AdapterEndpoint  `yaml:"adapters" validate:"dive"`
}

// Default returns the configuration defaults named throughout spec §6.
func Default() *Config {
	return &Config{
		WorkspacePath: ".",
		EnableMetrics: false,
		Server:        ServerConfig{Port: "8080"},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentTasks:      5,
			DefaultTaskTimeout:      30 * time.Minute,
			VerificationTimeout:     60 * time.Second,
			PollingInterval:         5 * time.Second,
			VerificationRequired:    true,
			MaxVerificationAttempts: 3,
			AutoRetryOnFailure:      true,
			MaxRetries:              3,
			RetryDelay:              10 * time.Second,
			RetryBackoffMultiplier:  2.0,
		},
		Safety: SafetyConfig{
			MaxFilesPerTask:       20,
			MaxDirectoriesPerTask: 10,
			EnablePreflightChecks: true,
			EnablePostflight:      true,
		},
		Verification: VerificationConfig{
			CheckExistence:    true,
			CheckModification: true,
			ModificationMode:  "mtime",
			CheckDomain:       true,
			CheckTests:        true,
			TestsBlocking:     false,
			CheckArtifacts:    true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Load reads a YAML configuration file, applies it over the defaults,
// overlays any recognized TASKFORGE_* environment variables on top (spec
// §6: "loadable from a structured config file or from environment
// variables"), and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides layers TASKFORGE_* environment variables over a
// config already populated from defaults and YAML, for the settings an
// operator most commonly needs to flip per-environment (deployment
// topology, feature toggles) without editing the checked-in file. A
// malformed override (e.g. a non-numeric duration) is ignored rather
// than failing the whole load; validate.Struct still catches the
// resulting value if it's out of range.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("TASKFORGE_WORKSPACE_PATH", &cfg.WorkspacePath)
	boolean("TASKFORGE_ENABLE_METRICS", &cfg.EnableMetrics)
	str("TASKFORGE_SERVER_PORT", &cfg.Server.Port)

	integer("TASKFORGE_ORCHESTRATOR_MAX_CONCURRENT_TASKS", &cfg.Orchestrator.MaxConcurrentTasks)
	duration("TASKFORGE_ORCHESTRATOR_DEFAULT_TASK_TIMEOUT", &cfg.Orchestrator.DefaultTaskTimeout)
	duration("TASKFORGE_ORCHESTRATOR_VERIFICATION_TIMEOUT", &cfg.Orchestrator.VerificationTimeout)
	duration("TASKFORGE_ORCHESTRATOR_POLLING_INTERVAL", &cfg.Orchestrator.PollingInterval)
	boolean("TASKFORGE_ORCHESTRATOR_VERIFICATION_REQUIRED", &cfg.Orchestrator.VerificationRequired)
	integer("TASKFORGE_ORCHESTRATOR_MAX_VERIFICATION_ATTEMPTS", &cfg.Orchestrator.MaxVerificationAttempts)
	boolean("TASKFORGE_ORCHESTRATOR_AUTO_RETRY_ON_FAILURE", &cfg.Orchestrator.AutoRetryOnFailure)
	integer("TASKFORGE_ORCHESTRATOR_MAX_RETRIES", &cfg.Orchestrator.MaxRetries)
	duration("TASKFORGE_ORCHESTRATOR_RETRY_DELAY", &cfg.Orchestrator.RetryDelay)

	str("TASKFORGE_EVENTS_GATEWAY_URL", &cfg.Events.GatewayURL)
	str("TASKFORGE_EVENTS_TENANT", &cfg.Events.Tenant)
	str("TASKFORGE_EVENTS_GIT_SHA", &cfg.Events.GitSHA)
	boolean("TASKFORGE_EVENTS_ENABLED", &cfg.Events.Enabled)

	str("TASKFORGE_LOGGING_LEVEL", &cfg.Logging.Level)
	str("TASKFORGE_LOGGING_FORMAT", &cfg.Logging.Format)
}
