package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/ticketdesk/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Source.Path = "./data/tickets.json"
	return cfg
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestSourceConfig_ExactlyOne(t *testing.T) {
	cases := map[string]SourceConfig{
		"neither": {},
		"both":    {URL: "http://localhost:9000", Path: "tickets.json"},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	ok := SourceConfig{URL: "http://localhost:9000", Timeout: time.Second}
	if err := ok.Validate(); err != nil {
		t.Errorf("url source: %v", err)
	}
	bad := SourceConfig{URL: "::not a url::"}
	if err := bad.Validate(); err == nil {
		t.Error("malformed url should fail")
	}
}

func TestCacheConfig(t *testing.T) {
	cfg := CacheConfig{SQLite: SQLiteCacheConfig{Path: "x.db"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if cfg.Driver != CacheDriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Driver)
	}

	if err := (&CacheConfig{Driver: "sqlite"}).Validate(); err == nil {
		t.Error("sqlite without path should fail")
	}
	if err := (&CacheConfig{Driver: "redis", Redis: RedisCacheConfig{Prefix: "p"}}).Validate(); err == nil {
		t.Error("redis without addr should fail")
	}
	if err := (&CacheConfig{Driver: "memory"}).Validate(); err != nil {
		t.Errorf("memory: %v", err)
	}
	if err := (&CacheConfig{Driver: "etcd"}).Validate(); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TICKETDESK_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `app:
  log_level: debug
  http:
    port: 9090
source:
  url: http://tickets.internal:8000
  token: ${TICKETDESK_TEST_TOKEN}
  timeout: 3s
cache:
  driver: memory
connectivity:
  probe_interval: 1m
  flag_file: /tmp/offline
auth:
  mode: token
  token: ${TICKETDESK_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if cfg.Source.Token != "s3cret" || cfg.Auth.Token != "s3cret" {
		t.Errorf("env not expanded: %+v %+v", cfg.Source, cfg.Auth)
	}
	if cfg.Source.Timeout != 3*time.Second || cfg.Connectivity.ProbeInterval != time.Minute {
		t.Errorf("durations = %v, %v", cfg.Source.Timeout, cfg.Connectivity.ProbeInterval)
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	// Defaults survive for keys the file leaves out.
	if cfg.Cache.SQLite.Path != "./ticketdesk.db" {
		t.Errorf("sqlite path = %q", cfg.Cache.SQLite.Path)
	}
}
