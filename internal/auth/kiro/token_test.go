package kiroauth

import (
	"testing"
	"time"
)

func TestCredentials_AuthType(t *testing.T) {
	c := &Credentials{RefreshToken: "r"}
	if c.AuthType() != AuthTypeDesktop {
		t.Fatal("credentials without a registration should use the desktop path")
	}
	c.ClientID = "id"
	if c.AuthType() != AuthTypeDesktop {
		t.Fatal("client id alone should not switch paths")
	}
	c.ClientSecret = "secret"
	if c.AuthType() != AuthTypeOIDC {
		t.Fatal("id plus secret should switch to OIDC")
	}
}

func TestCredentials_ExpiringSoon(t *testing.T) {
	c := &Credentials{}
	if !c.ExpiringSoon(10 * time.Minute) {
		t.Fatal("unknown expiry should count as expiring")
	}
	c.ExpiresAt = time.Now().Add(5 * time.Minute)
	if !c.ExpiringSoon(10 * time.Minute) {
		t.Fatal("token inside the threshold should count as expiring")
	}
	c.ExpiresAt = time.Now().Add(time.Hour)
	if c.ExpiringSoon(10 * time.Minute) {
		t.Fatal("token with an hour left should not count as expiring")
	}
}

func TestCredentials_Expired(t *testing.T) {
	c := &Credentials{}
	if !c.Expired() {
		t.Fatal("unknown expiry should count as expired")
	}
	c.ExpiresAt = time.Now().Add(-time.Second)
	if !c.Expired() {
		t.Fatal("past expiry should count as expired")
	}
	c.ExpiresAt = time.Now().Add(time.Hour)
	if c.Expired() {
		t.Fatal("future expiry should not count as expired")
	}
}

func TestCredentials_FreshForStreaming(t *testing.T) {
	c := &Credentials{}
	if c.FreshForStreaming(10 * time.Minute) {
		t.Fatal("unknown expiry is never fresh enough for streaming")
	}
	c.ExpiresAt = time.Now().Add(5 * time.Minute)
	if c.FreshForStreaming(10 * time.Minute) {
		t.Fatal("five minutes left is not enough for a ten minute window")
	}
	c.ExpiresAt = time.Now().Add(time.Hour)
	if !c.FreshForStreaming(10 * time.Minute) {
		t.Fatal("an hour left should be fresh enough")
	}
}

func TestParseExpiry(t *testing.T) {
	got, err := parseExpiry("2026-01-02T15:04:05.123Z")
	if err != nil {
		t.Fatalf("RFC 3339 timestamp rejected: %v", err)
	}
	if got.UTC().Hour() != 15 {
		t.Fatalf("unexpected time: %v", got)
	}

	got, err = parseExpiry("2026-01-02T15:04:05.123456")
	if err != nil {
		t.Fatalf("zone-less timestamp rejected: %v", err)
	}
	if got.Location() != time.UTC {
		t.Fatalf("zone-less timestamps should be read as UTC, got %v", got.Location())
	}

	if _, err := parseExpiry("not a timestamp"); err == nil {
		t.Fatal("garbage should be rejected")
	}
}
