package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"DOCKMAN_HOST", "DOCKER_HOST", "DOCKER_CERT_PATH",
		"DOCKMAN_TLS_CA", "DOCKMAN_TLS_CERT", "DOCKMAN_TLS_KEY", "DOCKMAN_TLS_SKIP_VERIFY",
		"DOCKMAN_LOG_LEVEL", "DOCKMAN_LOG_FORMAT", "DOCKMAN_HISTORY", "DOCKMAN_HISTORY_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Endpoint.Host != "http://localhost:2376" {
		t.Errorf("Endpoint.Host = %q, want %q", cfg.Endpoint.Host, "http://localhost:2376")
	}
	if cfg.Timeouts.QueryD != 10*time.Second {
		t.Errorf("Timeouts.QueryD = %v, want 10s", cfg.Timeouts.QueryD)
	}
	if cfg.Timeouts.MutateD != 30*time.Second {
		t.Errorf("Timeouts.MutateD = %v, want 30s", cfg.Timeouts.MutateD)
	}
	if cfg.Logs.Tail != 100 {
		t.Errorf("Logs.Tail = %d, want 100", cfg.Logs.Tail)
	}
	if !cfg.History.Enabled || filepath.Base(cfg.History.Path) != "history.db" {
		t.Errorf("History = %+v, want enabled history.db", cfg.History)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[endpoint]
host = "https://engine.internal:2376"
tls_skip_verify = true

[timeouts]
query = "3s"
mutate = "1m"

[logs]
tail = 20

[history]
enabled = false
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Endpoint.Host != "https://engine.internal:2376" {
		t.Errorf("Endpoint.Host = %q", cfg.Endpoint.Host)
	}
	if !cfg.Endpoint.TLSSkipVerify {
		t.Error("Endpoint.TLSSkipVerify should be true")
	}
	if cfg.Timeouts.QueryD != 3*time.Second || cfg.Timeouts.MutateD != time.Minute {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.ConnectD != 5*time.Second {
		t.Errorf("Timeouts.ConnectD = %v, want default 5s", cfg.Timeouts.ConnectD)
	}
	if cfg.Logs.Tail != 20 {
		t.Errorf("Logs.Tail = %d, want 20", cfg.Logs.Tail)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false")
	}
}

func TestLoadFromFile_ExpandHome(t *testing.T) {
	homeDir, _ := os.UserHomeDir()
	path := writeConfig(t, `
[endpoint]
tls_ca = "~/.dockman/ca.pem"

[history]
path = "~/dockman-history.db"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if want := filepath.Join(homeDir, ".dockman", "ca.pem"); cfg.Endpoint.TLSCA != want {
		t.Errorf("Endpoint.TLSCA = %q, want %q", cfg.Endpoint.TLSCA, want)
	}
	if want := filepath.Join(homeDir, "dockman-history.db"); cfg.History.Path != want {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, want)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.toml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
	if _, err := LoadFromFile(writeConfig(t, "[timeouts]\nquery = \"soon\"\n")); err == nil {
		t.Error("expected error for unparsable duration")
	}
	if _, err := LoadFromFile(writeConfig(t, "[endpoint\n")); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty host", func(c *Config) { c.Endpoint.Host = " " }, true},
		{"cert without key", func(c *Config) { c.Endpoint.TLSCert = "/certs/cert.pem" }, true},
		{"cert and key", func(c *Config) {
			c.Endpoint.TLSCert = "/certs/cert.pem"
			c.Endpoint.TLSKey = "/certs/key.pem"
		}, false},
		{"zero query timeout", func(c *Config) { c.Timeouts.QueryD = 0 }, true},
		{"negative connect timeout", func(c *Config) { c.Timeouts.ConnectD = -time.Second }, true},
		{"history without path", func(c *Config) { c.History.Path = "" }, true},
		{"history disabled without path", func(c *Config) {
			c.History.Enabled = false
			c.History.Path = ""
		}, false},
		{"invalid logging level", func(c *Config) { c.Logging.Level = "invalid" }, true},
		{"invalid logging format", func(c *Config) { c.Logging.Format = "invalid" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DOCKMAN_HOST", "tcp://10.0.0.2:2376")
	t.Setenv("DOCKER_HOST", "tcp://ignored:2375")
	t.Setenv("DOCKMAN_TLS_SKIP_VERIFY", "1")
	t.Setenv("DOCKMAN_LOG_LEVEL", "debug")
	t.Setenv("DOCKMAN_HISTORY", "false")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Endpoint.Host != "tcp://10.0.0.2:2376" {
		t.Errorf("Endpoint.Host = %q, want DOCKMAN_HOST", cfg.Endpoint.Host)
	}
	if !cfg.Endpoint.TLSSkipVerify {
		t.Error("Endpoint.TLSSkipVerify should be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false")
	}
}

func TestApplyEnvOverrides_DockerFallbacks(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DOCKER_HOST", "tcp://10.0.0.3:2376")
	t.Setenv("DOCKER_CERT_PATH", "/certs")
	t.Setenv("DOCKMAN_TLS_CA", "/override/ca.pem")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Endpoint.Host != "tcp://10.0.0.3:2376" {
		t.Errorf("Endpoint.Host = %q, want DOCKER_HOST", cfg.Endpoint.Host)
	}
	if cfg.Endpoint.TLSCA != "/override/ca.pem" {
		t.Errorf("Endpoint.TLSCA = %q, want DOCKMAN_TLS_CA to win", cfg.Endpoint.TLSCA)
	}
	if cfg.Endpoint.TLSCert != "/certs/cert.pem" || cfg.Endpoint.TLSKey != "/certs/key.pem" {
		t.Errorf("cert/key = %q/%q, want DOCKER_CERT_PATH files", cfg.Endpoint.TLSCert, cfg.Endpoint.TLSKey)
	}
}

func TestParseBool(t *testing.T) {
	tests := map[string]bool{"true": true, "TRUE": true, "1": true, "false": false, "0": false, "yes": false}
	for in, want := range tests {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(homeDir, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := expandPath(tt.input)
			if err != nil {
				t.Fatalf("expandPath(%q) error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		isolateEnv(t)
		cfg, err := Load(writeConfig(t, "[logs]\ntail = -1\n"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Logs.Tail != -1 {
			t.Errorf("Logs.Tail = %d, want -1", cfg.Logs.Tail)
		}
	})

	t.Run("explicit file missing", func(t *testing.T) {
		isolateEnv(t)
		if _, err := Load("/nonexistent/dockman.toml"); err == nil {
			t.Error("expected error for a named config file that does not exist")
		}
	})

	t.Run("no default file", func(t *testing.T) {
		isolateEnv(t)
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Endpoint.Host != "http://localhost:2376" {
			t.Errorf("Endpoint.Host = %q, want default", cfg.Endpoint.Host)
		}
	})

	t.Run("default file", func(t *testing.T) {
		isolateEnv(t)
		if err := os.MkdirAll(Dir(), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(DefaultPath(), []byte("[endpoint]\nhost = \"http://from-file:2375\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Endpoint.Host != "http://from-file:2375" {
			t.Errorf("Endpoint.Host = %q, want value from default file", cfg.Endpoint.Host)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("DOCKMAN_HOST", "http://from-env:2375")
		cfg, err := Load(writeConfig(t, "[endpoint]\nhost = \"http://from-file:2375\"\n"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Endpoint.Host != "http://from-env:2375" {
			t.Errorf("Endpoint.Host = %q, want env value", cfg.Endpoint.Host)
		}
	})

	t.Run("invalid after overrides", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("DOCKMAN_LOG_LEVEL", "chatty")
		if _, err := Load(""); err == nil {
			t.Error("expected validation error")
		}
	})
}
