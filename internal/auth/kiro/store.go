package kiroauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoadFile merges credentials from a Kiro IDE JSON file into creds and
// returns the region the file names, empty when absent. The file uses
// camelCase fields: refreshToken, accessToken, profileArn, region,
// expiresAt, plus clientId/clientSecret for OIDC and clientIdHash for
// enterprise installs.
func LoadFile(path string, creds *Credentials) (string, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return "", fmt.Errorf("kiroauth: read credentials file: %w", err)
	}

	var file map[string]any
	if err := json.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("kiroauth: parse credentials file: %w", err)
	}

	if v, ok := file["refreshToken"].(string); ok {
		creds.RefreshToken = v
	}
	if v, ok := file["accessToken"].(string); ok {
		creds.AccessToken = v
	}
	if v, ok := file["profileArn"].(string); ok {
		creds.ProfileArn = v
	}

	region := ""
	if v, ok := file["region"].(string); ok {
		region = v
	}

	if v, ok := file["clientIdHash"].(string); ok {
		creds.ClientIDHash = v
		if err := loadDeviceRegistration(v, creds); err != nil {
			log.WithField("error", err).Warn("enterprise device registration not loaded")
		}
	}
	if v, ok := file["clientId"].(string); ok {
		creds.ClientID = v
	}
	if v, ok := file["clientSecret"].(string); ok {
		creds.ClientSecret = v
	}

	if v, ok := file["expiresAt"].(string); ok {
		if t, err := parseExpiry(v); err == nil {
			creds.ExpiresAt = t
		} else {
			log.WithField("error", err).Warn("failed to parse expiresAt from credentials file")
		}
	}

	log.Infof("credentials loaded from %s", path)
	return region, nil
}

// loadDeviceRegistration reads clientId and clientSecret from the
// enterprise registration at ~/.aws/sso/cache/{hash}.json.
func loadDeviceRegistration(clientIDHash string, creds *Credentials) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	path := filepath.Join(home, ".aws", "sso", "cache", clientIDHash+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var reg struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return err
	}
	if reg.ClientID != "" {
		creds.ClientID = reg.ClientID
	}
	if reg.ClientSecret != "" {
		creds.ClientSecret = reg.ClientSecret
	}
	log.Infof("enterprise device registration loaded from %s", path)
	return nil
}

// SaveFile writes refreshed credentials back to the JSON file, preserving
// fields the gateway does not manage.
func SaveFile(path string, creds *Credentials) error {
	full := expandHome(path)
	existing := map[string]any{}
	if data, err := os.ReadFile(full); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("kiroauth: parse existing credentials file: %w", err)
		}
	}

	existing["accessToken"] = creds.AccessToken
	existing["refreshToken"] = creds.RefreshToken
	if !creds.ExpiresAt.IsZero() {
		existing["expiresAt"] = creds.ExpiresAt.Format(time.RFC3339Nano)
	}
	if creds.ProfileArn != "" {
		existing["profileArn"] = creds.ProfileArn
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("kiroauth: encode credentials: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("kiroauth: write credentials file: %w", err)
	}
	log.Debugf("credentials saved to %s", path)
	return nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
