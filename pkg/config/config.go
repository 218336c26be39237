package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Endpoint EndpointConfig `toml:"endpoint"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Logs     LogsConfig     `toml:"logs"`
	History  HistoryConfig  `toml:"history"`
	Logging  LoggingConfig  `toml:"logging"`
}

type EndpointConfig struct {
	Host          string `toml:"host"`
	TLSCA         string `toml:"tls_ca"`
	TLSCert       string `toml:"tls_cert"`
	TLSKey        string `toml:"tls_key"`
	TLSSkipVerify bool   `toml:"tls_skip_verify"`
}

// TimeoutsConfig holds per-call budgets as duration strings. The parsed
// values are filled in by postProcess.
type TimeoutsConfig struct {
	Query    string        `toml:"query"`
	Mutate   string        `toml:"mutate"`
	Connect  string        `toml:"connect"`
	QueryD   time.Duration `toml:"-"`
	MutateD  time.Duration `toml:"-"`
	ConnectD time.Duration `toml:"-"`
}

type LogsConfig struct {
	// Tail is the default number of trailing lines; negative means all.
	Tail int `toml:"tail"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Dir is the per-user dockman directory.
func Dir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".dockman")
}

// DefaultPath is where Load looks when no config file is named.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			Host: "http://localhost:2376",
		},
		Timeouts: TimeoutsConfig{
			Query:    "10s",
			Mutate:   "30s",
			Connect:  "5s",
			QueryD:   10 * time.Second,
			MutateD:  30 * time.Second,
			ConnectD: 5 * time.Second,
		},
		Logs: LogsConfig{
			Tail: 100,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(Dir(), "history.db"),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	var err error

	if c.Timeouts.QueryD, err = time.ParseDuration(c.Timeouts.Query); err != nil {
		return fmt.Errorf("parse timeouts.query: %w", err)
	}

	if c.Timeouts.MutateD, err = time.ParseDuration(c.Timeouts.Mutate); err != nil {
		return fmt.Errorf("parse timeouts.mutate: %w", err)
	}

	if c.Timeouts.ConnectD, err = time.ParseDuration(c.Timeouts.Connect); err != nil {
		return fmt.Errorf("parse timeouts.connect: %w", err)
	}

	for _, p := range []*string{&c.Endpoint.TLSCA, &c.Endpoint.TLSCert, &c.Endpoint.TLSKey, &c.History.Path} {
		if *p, err = expandPath(*p); err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint.Host) == "" {
		return fmt.Errorf("endpoint.host cannot be empty")
	}

	if (c.Endpoint.TLSCert == "") != (c.Endpoint.TLSKey == "") {
		return fmt.Errorf("endpoint.tls_cert and endpoint.tls_key must be set together")
	}

	durations := map[string]time.Duration{
		"timeouts.query":   c.Timeouts.QueryD,
		"timeouts.mutate":  c.Timeouts.MutateD,
		"timeouts.connect": c.Timeouts.ConnectD,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// ApplyEnvOverrides applies DOCKMAN_* variables. DOCKER_HOST and
// DOCKER_CERT_PATH are honoured when the DOCKMAN_* equivalents are unset.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCKMAN_HOST"); v != "" {
		cfg.Endpoint.Host = v
	} else if v := os.Getenv("DOCKER_HOST"); v != "" {
		cfg.Endpoint.Host = v
	}
	if v := os.Getenv("DOCKER_CERT_PATH"); v != "" {
		cfg.Endpoint.TLSCA = filepath.Join(v, "ca.pem")
		cfg.Endpoint.TLSCert = filepath.Join(v, "cert.pem")
		cfg.Endpoint.TLSKey = filepath.Join(v, "key.pem")
	}
	if v := os.Getenv("DOCKMAN_TLS_CA"); v != "" {
		cfg.Endpoint.TLSCA = v
	}
	if v := os.Getenv("DOCKMAN_TLS_CERT"); v != "" {
		cfg.Endpoint.TLSCert = v
	}
	if v := os.Getenv("DOCKMAN_TLS_KEY"); v != "" {
		cfg.Endpoint.TLSKey = v
	}
	if v := os.Getenv("DOCKMAN_TLS_SKIP_VERIFY"); v != "" {
		cfg.Endpoint.TLSSkipVerify = parseBool(v)
	}
	if v := os.Getenv("DOCKMAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCKMAN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DOCKMAN_HISTORY"); v != "" {
		cfg.History.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCKMAN_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get user home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}

// Load reads configPath, or DefaultPath when it is empty and exists, then
// applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	var cfg *Config
	var err error

	switch {
	case configPath != "":
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	default:
		cfg, err = LoadFromFile(DefaultPath())
		if errors.Is(err, fs.ErrNotExist) {
			cfg, err = Default(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", DefaultPath(), err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
