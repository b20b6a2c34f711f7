package kiroauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiroProxyAPI/internal/kiro"
)

// refreshTimeout bounds a single token endpoint round trip.
const refreshTimeout = 30 * time.Second

// desktopUserAgent is what the Kiro IDE sends when refreshing; the full
// machine fingerprint is appended.
const desktopUserAgent = "KiroIDE-0.7.45-"

// refreshResult is the shared shape both refresh endpoints reply with.
type refreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

// expiry converts expiresIn into an absolute deadline, defaulting to one
// hour and shaving 60 seconds so the token is never used at the edge.
func (r *refreshResult) expiry() time.Time {
	expiresIn := r.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	return time.Now().Add(time.Duration(expiresIn-60) * time.Second)
}

// refreshDesktop exchanges a refresh token at the Kiro Desktop auth
// endpoint for the given region.
func refreshDesktop(ctx context.Context, client *http.Client, region, refreshToken, fingerprint string) (*refreshResult, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	log.Info("refreshing Kiro token via Kiro Desktop auth")

	body := map[string]string{"refreshToken": refreshToken}
	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   desktopUserAgent + fingerprint,
	}
	return postToken(ctx, client, kiro.RefreshURL(region), body, headers)
}

// refreshOIDC exchanges a refresh token at the AWS SSO OIDC CreateToken
// endpoint. The API wants a JSON body with camelCase parameter names, not
// the form encoding OAuth usually uses.
func refreshOIDC(ctx context.Context, client *http.Client, ssoRegion, clientID, clientSecret, refreshToken string) (*refreshResult, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if clientID == "" {
		return nil, ErrNoClientID
	}
	if clientSecret == "" {
		return nil, ErrNoClientSecret
	}

	url := kiro.OIDCTokenURL(ssoRegion)
	log.Info("refreshing Kiro token via AWS SSO OIDC")
	log.Debugf("oidc refresh: url=%s client_id=%s", url, maskToken(clientID))

	body := map[string]string{
		"grantType":    "refresh_token",
		"clientId":     clientID,
		"clientSecret": clientSecret,
		"refreshToken": refreshToken,
	}
	headers := map[string]string{"Content-Type": "application/json"}
	return postToken(ctx, client, url, body, headers)
}

func postToken(ctx context.Context, client *http.Client, url string, body map[string]string, headers map[string]string) (*refreshResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kiroauth: encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("kiroauth: build refresh request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiroauth: refresh request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("kiroauth: read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(log.Fields{"status": resp.StatusCode}).Errorf("token refresh failed: %s", string(data))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var result refreshResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("kiroauth: parse refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carries no accessToken", ErrNoAccessToken)
	}
	return &result, nil
}

// newRefreshClient returns the HTTP client used for token endpoints.
func newRefreshClient() *http.Client {
	return &http.Client{Timeout: refreshTimeout}
}

// maskToken shortens a token for logs, keeping the first 8 characters.
func maskToken(token string) string {
	if token == "" {
		return "none"
	}
	if len(token) <= 8 {
		return token + "..."
	}
	return token[:8] + "..."
}
