// Package config handles YAML configuration loading with environment
// variable expansion for the authlyctl process bootstrap layer. This is
// distinct from the declarative TOML document schema (package document):
// that format describes entities/properties/policies for an authority to
// apply; this one describes how the local authlyctl process itself
// starts up.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level authlyctl process configuration.
type Config struct {
	DebugServer DebugServerConfig `yaml:"debug_server"`
	Identity    IdentityConfig    `yaml:"identity"`
	Authority   AuthorityConfig   `yaml:"authority"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Document    DocumentConfig    `yaml:"document"`
}

// DebugServerConfig controls the small chi-routed introspection server
// (/healthz, /metadata, /metrics) authlyctl exposes alongside the client
// runtime.
type DebugServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// IdentityConfig mirrors identity.Options: the filesystem locations the
// bootstrap flow reads from, and the CSR-exchange endpoint. Empty fields
// fall back to identity.Options' own workload defaults.
type IdentityConfig struct {
	LocalCAPath             string `yaml:"local_ca_path"`
	IdentityPath            string `yaml:"identity_path"`
	ServiceAccountTokenPath string `yaml:"service_account_token_path"`
	AuthenticateURL         string `yaml:"authenticate_url"`
}

// AuthorityConfig names the authority this process connects to. URL is
// the config-file default; the AUTHLY_URL environment variable always
// takes precedence over it, applied structurally here rather than via
// textual expansion.
type AuthorityConfig struct {
	URL string `yaml:"url"`
}

// ResolvedURL returns the authority URL to connect to: the AUTHLY_URL
// environment variable if set, otherwise the configured URL, otherwise
// the documented default.
func (a AuthorityConfig) ResolvedURL() string {
	if v, ok := os.LookupEnv("AUTHLY_URL"); ok && v != "" {
		return v
	}
	if a.URL != "" {
		return a.URL
	}
	return "https://authly"
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics registration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// DocumentConfig controls the local SQLite-backed label cache
// `authlyctl document apply` (with or without -dry-run) uses to detect
// duplicate labels across repeated runs.
type DocumentConfig struct {
	StoreDSN string `yaml:"store_dsn"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values,
// leaving the pattern untouched when the variable is unset.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment
// variables, and filling in defaults for anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		DebugServer: DebugServerConfig{
			Addr:            ":8090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Authority: AuthorityConfig{
			URL: "https://authly",
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		Document: DocumentConfig{
			StoreDSN: "authlyctl-documents.db",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
