package kiroauth

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T, rows map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE auth_kv (key TEXT PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatal(err)
	}
	for key, value := range rows {
		if _, err := db.Exec("INSERT INTO auth_kv (key, value) VALUES (?, ?)", key, value); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func readAuthKV(t *testing.T, path, key string) string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	value, err := queryAuthKV(db, key)
	if err != nil {
		t.Fatal(err)
	}
	return value
}

func TestLoadSQLite_SocialToken(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"kirocli:social:token": `{"access_token":"at","refresh_token":"rt","profile_arn":"arn:p","expires_at":"2026-06-01T12:00:00Z"}`,
	})

	var creds Credentials
	tokenKey, err := LoadSQLite(path, &creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenKey != "kirocli:social:token" {
		t.Fatalf("unexpected token key: %q", tokenKey)
	}
	if creds.AccessToken != "at" || creds.RefreshToken != "rt" || creds.ProfileArn != "arn:p" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if creds.ExpiresAt.IsZero() {
		t.Fatal("expiry not parsed")
	}
}

func TestLoadSQLite_KeyPriority(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"kirocli:social:token":     `{"access_token":"social-at","refresh_token":"r1"}`,
		"codewhisperer:odic:token": `{"access_token":"cw-at","refresh_token":"r2"}`,
	})

	var creds Credentials
	tokenKey, err := LoadSQLite(path, &creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenKey != "kirocli:social:token" || creds.AccessToken != "social-at" {
		t.Fatalf("social token should win: key=%q creds=%+v", tokenKey, creds)
	}
}

func TestLoadSQLite_OIDCRegistration(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"kirocli:odic:token":               `{"access_token":"at","refresh_token":"rt","region":"eu-north-1"}`,
		"kirocli:odic:device-registration": `{"client_id":"cid","client_secret":"csecret","region":"us-west-2"}`,
	})

	var creds Credentials
	tokenKey, err := LoadSQLite(path, &creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenKey != "kirocli:odic:token" {
		t.Fatalf("unexpected token key: %q", tokenKey)
	}
	if creds.ClientID != "cid" || creds.ClientSecret != "csecret" {
		t.Fatalf("registration not loaded: %+v", creds)
	}
	// The token row's region wins over the registration's.
	if creds.SSORegion != "eu-north-1" {
		t.Fatalf("unexpected SSO region: %q", creds.SSORegion)
	}
	if creds.AuthType() != AuthTypeOIDC {
		t.Fatal("registration should switch to OIDC")
	}
}

func TestLoadSQLite_RegistrationRegionFallsBack(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"kirocli:odic:token":               `{"access_token":"at","refresh_token":"rt"}`,
		"kirocli:odic:device-registration": `{"client_id":"cid","client_secret":"cs","region":"us-west-2"}`,
	})

	var creds Credentials
	if _, err := LoadSQLite(path, &creds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.SSORegion != "us-west-2" {
		t.Fatalf("registration region should fill the gap, got %q", creds.SSORegion)
	}
}

func TestLoadSQLite_MissingDatabase(t *testing.T) {
	var creds Credentials
	if _, err := LoadSQLite(filepath.Join(t.TempDir(), "absent.db"), &creds); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestSaveSQLite_UpdatesRememberedKey(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"kirocli:social:token": `{"access_token":"old","refresh_token":"old-rt"}`,
	})

	creds := &Credentials{
		AccessToken:  "new-at",
		RefreshToken: "new-rt",
		ExpiresAt:    time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := SaveSQLite(path, "kirocli:social:token", "us-east-1", creds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reloaded Credentials
	if _, err := LoadSQLite(path, &reloaded); err != nil {
		t.Fatal(err)
	}
	if reloaded.AccessToken != "new-at" || reloaded.RefreshToken != "new-rt" {
		t.Fatalf("row not updated: %+v", reloaded)
	}
}

func TestSaveSQLite_FallbackSweep(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"codewhisperer:odic:token": `{"access_token":"old","refresh_token":"old-rt"}`,
	})

	creds := &Credentials{AccessToken: "new-at", RefreshToken: "new-rt"}
	if err := SaveSQLite(path, "kirocli:social:token", "us-east-1", creds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value := readAuthKV(t, path, "codewhisperer:odic:token")
	if value == "" {
		t.Fatal("fallback row missing")
	}
	var reloaded Credentials
	if _, err := LoadSQLite(path, &reloaded); err != nil {
		t.Fatal(err)
	}
	if reloaded.AccessToken != "new-at" {
		t.Fatalf("fallback sweep did not update the row: %+v", reloaded)
	}
}

func TestSaveSQLite_NeverInserts(t *testing.T) {
	path := newTestDB(t, nil)

	creds := &Credentials{AccessToken: "at", RefreshToken: "rt"}
	if err := SaveSQLite(path, "kirocli:social:token", "us-east-1", creds); err != nil {
		t.Fatalf("no matching row should not be an error: %v", err)
	}
	for _, key := range sqliteTokenKeys {
		if readAuthKV(t, path, key) != "" {
			t.Fatalf("save created row %q", key)
		}
	}
}

func TestSaveSQLite_RegionFallsBackToAPIRegion(t *testing.T) {
	path := newTestDB(t, map[string]string{
		"kirocli:social:token": `{"access_token":"old","refresh_token":"old-rt"}`,
	})

	creds := &Credentials{AccessToken: "at", RefreshToken: "rt"}
	if err := SaveSQLite(path, "kirocli:social:token", "ap-southeast-1", creds); err != nil {
		t.Fatal(err)
	}

	var reloaded Credentials
	if _, err := LoadSQLite(path, &reloaded); err != nil {
		t.Fatal(err)
	}
	if reloaded.SSORegion != "ap-southeast-1" {
		t.Fatalf("API region not written as fallback, got %q", reloaded.SSORegion)
	}
}
