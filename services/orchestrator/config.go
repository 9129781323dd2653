// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/secrets"
	"github.com/AleutianAI/MetaDAG/services/deploy"
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/lint"
	"github.com/AleutianAI/MetaDAG/services/llm"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config configures the orchestrator service.
//
// # Description
//
// Built by LoadConfig from defaults, an optional YAML file and the
// environment, in that order. Credentials never appear in the YAML
// structs; they are sealed into secrets.Secret as soon as they are read.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// GinMode is one of debug, release, test.
	GinMode string `yaml:"gin_mode"`

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables
	// OTLP trace export.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// TraceExporter is otlp, stdout or none. Empty picks otlp when
	// OTelEndpoint is set.
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is prometheus, stdout or none. prometheus bridges
	// OpenTelemetry instruments onto /metrics.
	MetricExporter string `yaml:"metric_exporter"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Model  ModelConfig  `yaml:"model"`
	Lint   LintConfig   `yaml:"lint"`
	Deploy DeployConfig `yaml:"deploy"`
	Store  StoreConfig  `yaml:"store"`
}

// ModelConfig configures the language model client.
type ModelConfig struct {
	APIKey  *secrets.Secret `yaml:"-"`
	Name    string          `yaml:"name"`
	BaseURL string          `yaml:"base_url"`
	Timeout time.Duration   `yaml:"timeout"`
}

// LintConfig configures the solhint runner.
type LintConfig struct {
	Command    string        `yaml:"command"`
	ConfigPath string        `yaml:"config_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DeployConfig configures the Hardhat pipeline.
type DeployConfig struct {
	PrivateKey          *secrets.Secret `yaml:"-"`
	HardhatDir          string          `yaml:"hardhat_dir"`
	NPX                 string          `yaml:"npx"`
	Network             string          `yaml:"network"`
	ExplorerURLTemplate string          `yaml:"explorer_url_template"`
	RPCURL              string          `yaml:"rpc_url"`
	CompileTimeout      time.Duration   `yaml:"compile_timeout"`
	DeployTimeout       time.Duration   `yaml:"deploy_timeout"`
}

// StoreConfig selects the history backend. A non-empty MongoURI selects
// MongoDB; otherwise SQLite at SQLitePath is used.
type StoreConfig struct {
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	SQLitePath string `yaml:"sqlite_path"`
}

// credentialFields is the YAML shape of the credentials. It is decoded
// separately so plaintext never lands in Config.
type credentialFields struct {
	Model struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"model"`
	Deploy struct {
		PrivateKey string `yaml:"private_key"`
	} `yaml:"deploy"`
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrMissingDeployerKey is returned when no deployer key is configured.
	ErrMissingDeployerKey = errors.New("DEPLOYER_PRIVATE_KEY is not configured")

	// ErrInvalidConfig wraps all other validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultPort           = 8000
	DefaultGinMode        = "release"
	DefaultLogLevel       = "info"
	DefaultMetricExporter = "prometheus"
)

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		GinMode:        DefaultGinMode,
		LogLevel:       DefaultLogLevel,
		MetricExporter: DefaultMetricExporter,
		Model: ModelConfig{
			Name:    llm.DefaultOpenAIModel,
			Timeout: 120 * time.Second,
		},
		Lint: LintConfig{
			Command:    lint.DefaultCommand,
			ConfigPath: lint.DefaultConfigPath,
			Timeout:    lint.DefaultTimeout,
		},
		Deploy: DeployConfig{
			HardhatDir:          deploy.DefaultHardhatDir,
			NPX:                 deploy.DefaultNPX,
			Network:             deploy.DefaultNetwork,
			ExplorerURLTemplate: deploy.DefaultExplorerTemplate,
			CompileTimeout:      deploy.DefaultCompileTimeout,
			DeployTimeout:       deploy.DefaultDeployTimeout,
		},
		Store: StoreConfig{
			Database:   history.DefaultDatabase,
			SQLitePath: history.DefaultSQLitePath,
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// envBinding maps one environment variable onto Config.
type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringEnv(key string, field func(*Config) *string) envBinding {
	return envBinding{key: key, apply: func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

var envBindings = []envBinding{
	{key: "ORCHESTRATOR_PORT", apply: func(cfg *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ORCHESTRATOR_PORT: %w", err)
		}
		cfg.Port = port
		return nil
	}},
	stringEnv("GIN_MODE", func(c *Config) *string { return &c.GinMode }),
	stringEnv("LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }),
	stringEnv("OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) *string { return &c.OTelEndpoint }),
	stringEnv("OTEL_TRACES_EXPORTER", func(c *Config) *string { return &c.TraceExporter }),
	stringEnv("OTEL_METRICS_EXPORTER", func(c *Config) *string { return &c.MetricExporter }),
	stringEnv("OPENAI_MODEL", func(c *Config) *string { return &c.Model.Name }),
	stringEnv("OPENAI_BASE_URL", func(c *Config) *string { return &c.Model.BaseURL }),
	stringEnv("SOLHINT_BIN", func(c *Config) *string { return &c.Lint.Command }),
	stringEnv("SOLHINT_CONFIG", func(c *Config) *string { return &c.Lint.ConfigPath }),
	stringEnv("HARDHAT_DIR", func(c *Config) *string { return &c.Deploy.HardhatDir }),
	stringEnv("DEPLOY_NETWORK", func(c *Config) *string { return &c.Deploy.Network }),
	stringEnv("EXPLORER_URL_TEMPLATE", func(c *Config) *string { return &c.Deploy.ExplorerURLTemplate }),
	stringEnv("CHAIN_RPC_URL", func(c *Config) *string { return &c.Deploy.RPCURL }),
	stringEnv("MONGO_URI", func(c *Config) *string { return &c.Store.MongoURI }),
	stringEnv("MONGO_DATABASE", func(c *Config) *string { return &c.Store.Database }),
	stringEnv("SQLITE_PATH", func(c *Config) *string { return &c.Store.SQLitePath }),
}

// LoadConfig builds and validates the service configuration.
//
// # Description
//
// Layers, later wins:
//  1. DefaultConfig
//  2. The YAML file at path, when path is non-empty
//  3. Environment variables (ORCHESTRATOR_PORT, OPENAI_API_KEY, MONGO_URI, ...)
//
// OPENAI_API_KEY and DEPLOYER_PRIVATE_KEY are sealed into secrets and
// are required. The deployer key must parse as a secp256k1 private key.
//
// # Inputs
//
//   - path: Optional YAML file. A path that does not exist is an error.
//
// # Outputs
//
//   - Config: The validated configuration.
//   - error: File, parse or validation failure.
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadConfig layers defaults, the YAML file and the environment like
// LoadConfig but skips Validate. Commands that need only part of the
// configuration check what they use.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	var creds credentialFields

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &creds); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	for _, b := range envBindings {
		if v, ok := os.LookupEnv(b.key); ok && v != "" {
			if err := b.apply(&cfg, v); err != nil {
				return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}

	apiKey := creds.Model.APIKey
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		apiKey = v
	}
	privateKey := creds.Deploy.PrivateKey
	if v := os.Getenv(deploy.PrivateKeyEnv); v != "" {
		privateKey = v
	}
	cfg.Model.APIKey = secrets.New("OPENAI_API_KEY", apiKey)
	cfg.Deploy.PrivateKey = secrets.New(deploy.PrivateKeyEnv, privateKey)
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if !c.Model.APIKey.IsSet() {
		return llm.ErrMissingAPIKey
	}
	if !c.Deploy.PrivateKey.IsSet() {
		return ErrMissingDeployerKey
	}
	if _, err := deploy.DeployerAddress(c.Deploy.PrivateKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("%w: gin_mode %q must be debug, release or test", ErrInvalidConfig, c.GinMode)
	}
	if !deploy.ValidNetwork(c.Deploy.Network) {
		return fmt.Errorf("%w: invalid network %q", ErrInvalidConfig, c.Deploy.Network)
	}
	return nil
}
