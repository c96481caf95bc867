package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
huawei:
  username: apiuser
  system_code: apipass
solis:
  key_id: "2101"
  key_secret: abc123
collect:
  pause_seconds: 2.5
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Huawei.Username != "apiuser" || cfg.Huawei.SystemCode != "apipass" {
		t.Errorf("huawei credentials = %+v", cfg.Huawei)
	}
	if cfg.Solis.KeyID != "2101" || cfg.Solis.KeySecret != "abc123" {
		t.Errorf("solis credentials = %+v", cfg.Solis)
	}
	if cfg.Collect.PauseSeconds != 2.5 {
		t.Errorf("pause = %v", cfg.Collect.PauseSeconds)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
huawei:
  username: u
  system_code: s
solis:
  key_id: k
  key_secret: sec
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Huawei.BaseURL != "https://la5.fusionsolar.huawei.com" {
		t.Errorf("huawei base url = %q", cfg.Huawei.BaseURL)
	}
	if cfg.Solis.BaseURL != "https://www.soliscloud.com:13333" {
		t.Errorf("solis base url = %q", cfg.Solis.BaseURL)
	}
	if cfg.Collect.PauseSeconds != 1.0 || cfg.Collect.BackoffSeconds != 10.0 || cfg.Collect.RateLimitRetries != 3 {
		t.Errorf("collect defaults = %+v", cfg.Collect)
	}
	if cfg.Alerts.Topic != "solarmon/alerts" {
		t.Errorf("alert topic = %q", cfg.Alerts.Topic)
	}
}

func TestLoadConfigMissingFileUsesEnv(t *testing.T) {
	t.Setenv("SOLARMON_HUAWEI_USERNAME", "envuser")
	t.Setenv("SOLARMON_SOLIS_KEY_SECRET", "envsecret")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Huawei.Username != "envuser" {
		t.Errorf("huawei username = %q", cfg.Huawei.Username)
	}
	if cfg.Solis.KeySecret != "envsecret" {
		t.Errorf("solis key secret = %q", cfg.Solis.KeySecret)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
huawei:
  username: fileuser
  system_code: filepass
`)
	t.Setenv("SOLARMON_HUAWEI_SYSTEM_CODE", "envpass")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Huawei.Username != "fileuser" {
		t.Errorf("username = %q", cfg.Huawei.Username)
	}
	if cfg.Huawei.SystemCode != "envpass" {
		t.Errorf("system code = %q, expected env override", cfg.Huawei.SystemCode)
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeConfig(t, "huawei: [not: a: mapping")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
