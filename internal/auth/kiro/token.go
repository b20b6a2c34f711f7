// Package kiroauth manages Kiro/CodeWhisperer access tokens: loading
// credentials from Kiro IDE files or the kiro-cli SQLite database,
// refreshing them against the Desktop or AWS SSO OIDC endpoints, and
// rotating across a pool of refresh tokens.
package kiroauth

import (
	"context"
	"time"
)

// AuthType selects the refresh endpoint a credential set uses.
type AuthType string

const (
	// AuthTypeDesktop refreshes against the Kiro Desktop auth service.
	AuthTypeDesktop AuthType = "kiro_desktop"

	// AuthTypeOIDC refreshes against AWS SSO OIDC. Requires a client id
	// and secret from a device registration.
	AuthTypeOIDC AuthType = "aws_sso_oidc"
)

// Credentials is the mutable credential state behind a Manager.
type Credentials struct {
	RefreshToken string
	AccessToken  string
	ProfileArn   string

	// ClientID and ClientSecret come from an AWS SSO OIDC device
	// registration and switch the refresh path to OIDC.
	ClientID     string
	ClientSecret string
	ClientIDHash string
	Scopes       []string

	// SSORegion is where the OIDC endpoint lives. It may differ from the
	// API region and never moves the CodeWhisperer hosts.
	SSORegion string

	// ExpiresAt is zero when the expiry is unknown.
	ExpiresAt time.Time
}

// AuthType detects the refresh path from the loaded credentials.
func (c *Credentials) AuthType() AuthType {
	if c.ClientID != "" && c.ClientSecret != "" {
		return AuthTypeOIDC
	}
	return AuthTypeDesktop
}

// ExpiringSoon reports whether the token expires within threshold. An
// unknown expiry counts as expiring so a refresh gets attempted.
func (c *Credentials) ExpiringSoon(threshold time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(time.Now().Add(threshold))
}

// Expired reports whether the token has actually expired. Used for
// graceful degradation when a refresh fails but the access token may
// still have life left.
func (c *Credentials) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(c.ExpiresAt)
}

// FreshForStreaming reports whether the token stays valid for at least
// minValidity, long enough to survive a slow streaming response.
func (c *Credentials) FreshForStreaming(minValidity time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(c.ExpiresAt) >= minValidity
}

// TokenSource is the access-token surface the request path consumes.
// Manager implements it for a single credential set, Pool for a rotating
// set of refresh tokens.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
	FreshForStreaming(minValidity time.Duration) bool
	ProfileArn() string
	Region() string
}

// parseExpiry accepts both RFC 3339 timestamps and zone-less ISO 8601
// strings, which Kiro IDE writes without an offset.
func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
