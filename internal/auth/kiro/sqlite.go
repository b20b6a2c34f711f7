package kiroauth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLite token keys in the kiro-cli auth_kv table, searched in priority
// order. The "odic" spelling is kiro-cli's own.
var sqliteTokenKeys = []string{
	"kirocli:social:token",
	"kirocli:odic:token",
	"codewhisperer:odic:token",
}

// Device registration keys carrying the OIDC client id and secret.
var sqliteRegistrationKeys = []string{
	"kirocli:odic:device-registration",
	"codewhisperer:odic:device-registration",
}

// sqliteToken mirrors the snake_case JSON kiro-cli stores under a token key.
type sqliteToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ProfileArn   string   `json:"profile_arn,omitempty"`
	Region       string   `json:"region,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	ExpiresAt    *string  `json:"expires_at"`
}

type sqliteRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Region       string `json:"region"`
}

// LoadSQLite reads credentials from the kiro-cli database into creds and
// returns the auth_kv key the token came from, so a refreshed token can be
// written back to the same row. The region stored with the token is the
// SSO region only and never moves the API hosts.
func LoadSQLite(dbPath string, creds *Credentials) (string, error) {
	full := expandHome(dbPath)
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("kiroauth: sqlite database not found: %w", err)
	}

	db, err := sql.Open("sqlite", full)
	if err != nil {
		return "", fmt.Errorf("kiroauth: open sqlite database: %w", err)
	}
	defer db.Close()

	tokenKey := ""
	for _, key := range sqliteTokenKeys {
		value, err := queryAuthKV(db, key)
		if err != nil {
			return "", err
		}
		if value == "" {
			continue
		}
		tokenKey = key
		log.Debugf("loaded credentials from sqlite key: %s", key)

		var tok sqliteToken
		if err := json.Unmarshal([]byte(value), &tok); err != nil {
			return "", fmt.Errorf("kiroauth: parse sqlite token %s: %w", key, err)
		}
		if tok.AccessToken != "" {
			creds.AccessToken = tok.AccessToken
		}
		if tok.RefreshToken != "" {
			creds.RefreshToken = tok.RefreshToken
		}
		if tok.ProfileArn != "" {
			creds.ProfileArn = tok.ProfileArn
		}
		if tok.Region != "" {
			creds.SSORegion = tok.Region
		}
		if len(tok.Scopes) > 0 {
			creds.Scopes = tok.Scopes
		}
		if tok.ExpiresAt != nil && *tok.ExpiresAt != "" {
			if t, err := parseExpiry(*tok.ExpiresAt); err == nil {
				creds.ExpiresAt = t
			} else {
				log.WithField("error", err).Warn("failed to parse expires_at from sqlite")
			}
		}
		break
	}

	for _, key := range sqliteRegistrationKeys {
		value, err := queryAuthKV(db, key)
		if err != nil {
			return "", err
		}
		if value == "" {
			continue
		}
		var reg sqliteRegistration
		if err := json.Unmarshal([]byte(value), &reg); err != nil {
			return "", fmt.Errorf("kiroauth: parse sqlite registration %s: %w", key, err)
		}
		if reg.ClientID != "" {
			creds.ClientID = reg.ClientID
		}
		if reg.ClientSecret != "" {
			creds.ClientSecret = reg.ClientSecret
		}
		if reg.Region != "" && creds.SSORegion == "" {
			creds.SSORegion = reg.Region
		}
		log.Debugf("loaded device registration from sqlite key: %s", key)
		break
	}

	log.Infof("credentials loaded from sqlite database: %s", dbPath)
	return tokenKey, nil
}

// SaveSQLite writes refreshed credentials back to auth_kv. It updates the
// key the token was loaded from first and sweeps the known keys when that
// row is gone. Only existing rows are updated; the gateway never creates
// kiro-cli state it did not find.
func SaveSQLite(dbPath, tokenKey, apiRegion string, creds *Credentials) error {
	full := expandHome(dbPath)
	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("kiroauth: sqlite database not found for writing: %w", err)
	}

	db, err := sql.Open("sqlite", full)
	if err != nil {
		return fmt.Errorf("kiroauth: open sqlite database: %w", err)
	}
	defer db.Close()

	region := creds.SSORegion
	if region == "" {
		region = apiRegion
	}
	tok := sqliteToken{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Region:       region,
		Scopes:       creds.Scopes,
	}
	if !creds.ExpiresAt.IsZero() {
		s := creds.ExpiresAt.Format(time.RFC3339Nano)
		tok.ExpiresAt = &s
	}
	value, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("kiroauth: encode sqlite token: %w", err)
	}

	if tokenKey != "" {
		n, err := updateAuthKV(db, tokenKey, string(value))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Debugf("credentials saved to sqlite key: %s", tokenKey)
			return nil
		}
		log.Warnf("failed to update sqlite key %s, trying fallback", tokenKey)
	}

	for _, key := range sqliteTokenKeys {
		n, err := updateAuthKV(db, key, string(value))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Debugf("credentials saved to sqlite key: %s (fallback)", key)
			return nil
		}
	}

	log.Warn("failed to save credentials to sqlite: no matching keys found")
	return nil
}

func queryAuthKV(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM auth_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("kiroauth: query auth_kv %s: %w", key, err)
	}
	return value, nil
}

func updateAuthKV(db *sql.DB, key, value string) (int64, error) {
	res, err := db.Exec("UPDATE auth_kv SET value = ? WHERE key = ?", value, key)
	if err != nil {
		return 0, fmt.Errorf("kiroauth: update auth_kv %s: %w", key, err)
	}
	return res.RowsAffected()
}
