// Package config loads gateway settings from an optional YAML file with
// environment variable overrides. Environment variables always win so the
// gateway can run file-less in containers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment
// provides a value.
const (
	DefaultPort                      = 8000
	DefaultRegion                    = "us-east-1"
	DefaultTokenRefreshThreshold     = 600 * time.Second
	DefaultBackgroundRefreshInterval = 30 * time.Minute
	DefaultRateLimitRPM              = 60
	DefaultToolDescriptionMaxLength  = 10240
	DefaultFakeReasoningMaxTokens    = 8192
)

// Config holds every runtime knob of the gateway.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port"`

	// ProxyAPIKey protects the client-facing endpoints. Required.
	ProxyAPIKey string `yaml:"proxy-api-key"`

	// RefreshToken is a single Kiro Desktop refresh token.
	RefreshToken string `yaml:"refresh-token"`

	// RefreshTokens is a comma-separated list of refresh tokens enabling
	// the rotating multi-token pool. Takes precedence over RefreshToken.
	RefreshTokens string `yaml:"refresh-tokens"`

	// ProfileArn is the CodeWhisperer profile ARN sent with every request.
	ProfileArn string `yaml:"profile-arn"`

	// Region selects the Kiro API hosts (desktop auth and CodeWhisperer).
	Region string `yaml:"region"`

	// CredsFile points at a Kiro IDE cache/token JSON file.
	CredsFile string `yaml:"creds-file"`

	// SQLiteDB points at a Kiro IDE SQLite database with an auth_kv table.
	SQLiteDB string `yaml:"sqlite-db"`

	// RateLimitRPM caps requests per minute per client IP. 0 disables.
	RateLimitRPM int `yaml:"rate-limit-rpm"`

	// TokenRefreshThreshold refreshes tokens this long before expiry.
	TokenRefreshThreshold time.Duration `yaml:"token-refresh-threshold"`

	// BackgroundRefreshInterval drives proactive refresh. 0 disables.
	BackgroundRefreshInterval time.Duration `yaml:"background-refresh-interval"`

	// ToolDescriptionMaxLength moves longer tool descriptions into the
	// system prompt. 0 disables the move.
	ToolDescriptionMaxLength int `yaml:"tool-description-max-length"`

	// FakeReasoningEnabled injects thinking-mode tags so Claude models
	// expose reasoning through an upstream that has no thinking API.
	FakeReasoningEnabled bool `yaml:"fake-reasoning-enabled"`

	// FakeReasoningMaxTokens caps the injected thinking budget.
	FakeReasoningMaxTokens int `yaml:"fake-reasoning-max-tokens"`

	// TruncationRecovery enables detection and recovery of upstream
	// responses cut off mid-JSON.
	TruncationRecovery bool `yaml:"truncation-recovery"`

	// LoggingToFile routes logs to a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`
}

func defaults() *Config {
	return &Config{
		Port:                      DefaultPort,
		Region:                    DefaultRegion,
		RateLimitRPM:              DefaultRateLimitRPM,
		TokenRefreshThreshold:     DefaultTokenRefreshThreshold,
		BackgroundRefreshInterval: DefaultBackgroundRefreshInterval,
		ToolDescriptionMaxLength:  DefaultToolDescriptionMaxLength,
		FakeReasoningMaxTokens:    DefaultFakeReasoningMaxTokens,
		TruncationRecovery:        true,
	}
}

// Load builds the configuration from the YAML file at path (may be empty or
// missing) and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.ProxyAPIKey == "" {
		return nil, fmt.Errorf("config: PROXY_API_KEY is required")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ProxyAPIKey, "PROXY_API_KEY")
	setString(&c.RefreshToken, "REFRESH_TOKEN")
	setString(&c.RefreshTokens, "REFRESH_TOKENS")
	setString(&c.ProfileArn, "PROFILE_ARN")
	setString(&c.Region, "KIRO_REGION")
	setString(&c.CredsFile, "KIRO_CREDS_FILE")
	setString(&c.SQLiteDB, "KIRO_SQLITE_DB")
	setInt(&c.Port, "PORT")
	setInt(&c.RateLimitRPM, "RATE_LIMIT_RPM")
	setSeconds(&c.TokenRefreshThreshold, "TOKEN_REFRESH_THRESHOLD")
	setSeconds(&c.BackgroundRefreshInterval, "BACKGROUND_REFRESH_INTERVAL")
	setInt(&c.ToolDescriptionMaxLength, "TOOL_DESCRIPTION_MAX_LENGTH")
	setBool(&c.FakeReasoningEnabled, "FAKE_REASONING_ENABLED")
	setInt(&c.FakeReasoningMaxTokens, "FAKE_REASONING_MAX_TOKENS")
	setBool(&c.TruncationRecovery, "TRUNCATION_RECOVERY")
	setBool(&c.LoggingToFile, "LOGGING_TO_FILE")
}

// PoolTokens returns the refresh tokens for the multi-token pool, or nil
// when the gateway should run in single-token mode.
func (c *Config) PoolTokens() []string {
	if c.RefreshTokens == "" {
		return nil
	}
	parts := strings.Split(c.RefreshTokens, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
