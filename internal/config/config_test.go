package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROXY_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("port: expected %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.Region != DefaultRegion {
		t.Errorf("region: expected %q, got %q", DefaultRegion, cfg.Region)
	}
	if cfg.TokenRefreshThreshold != DefaultTokenRefreshThreshold {
		t.Errorf("threshold: got %v", cfg.TokenRefreshThreshold)
	}
	if cfg.BackgroundRefreshInterval != DefaultBackgroundRefreshInterval {
		t.Errorf("interval: got %v", cfg.BackgroundRefreshInterval)
	}
	if !cfg.TruncationRecovery {
		t.Error("truncation recovery should default to enabled")
	}
	if cfg.FakeReasoningEnabled {
		t.Error("fake reasoning should default to disabled")
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("PROXY_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without PROXY_API_KEY")
	}
}

func TestLoad_MissingFileTolerated(t *testing.T) {
	t.Setenv("PROXY_API_KEY", "sk-test")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config file should be tolerated: %v", err)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: 9000\n" +
		"proxy-api-key: sk-from-file\n" +
		"region: eu-west-1\n" +
		"rate-limit-rpm: 120\n" +
		"fake-reasoning-enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9000 || cfg.ProxyAPIKey != "sk-from-file" || cfg.Region != "eu-west-1" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RateLimitRPM != 120 || !cfg.FakeReasoningEnabled {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\nproxy-api-key: sk-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROXY_API_KEY", "sk-env")
	t.Setenv("PORT", "7777")
	t.Setenv("TOKEN_REFRESH_THRESHOLD", "120")
	t.Setenv("TRUNCATION_RECOVERY", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProxyAPIKey != "sk-env" {
		t.Errorf("env api key should win, got %q", cfg.ProxyAPIKey)
	}
	if cfg.Port != 7777 {
		t.Errorf("env port should win, got %d", cfg.Port)
	}
	if cfg.TokenRefreshThreshold != 120*time.Second {
		t.Errorf("seconds env not applied, got %v", cfg.TokenRefreshThreshold)
	}
	if cfg.TruncationRecovery {
		t.Error("env false should disable truncation recovery")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROXY_API_KEY", "sk-test")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPoolTokens(t *testing.T) {
	cfg := &Config{}
	if got := cfg.PoolTokens(); got != nil {
		t.Fatalf("expected nil for empty list, got %v", got)
	}

	cfg.RefreshTokens = "tok1, tok2 ,, tok3"
	got := cfg.PoolTokens()
	if len(got) != 3 || got[0] != "tok1" || got[1] != "tok2" || got[2] != "tok3" {
		t.Fatalf("unexpected tokens: %v", got)
	}

	cfg.RefreshTokens = " , ,"
	if got := cfg.PoolTokens(); got != nil {
		t.Fatalf("expected nil for blank entries, got %v", got)
	}
}

func TestSetBool_Forms(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "On"} {
		t.Setenv("FAKE_REASONING_ENABLED", v)
		t.Setenv("PROXY_API_KEY", "sk-test")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if !cfg.FakeReasoningEnabled {
			t.Errorf("value %q should enable the flag", v)
		}
	}
}
