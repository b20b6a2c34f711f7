package kiroauth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken means no refresh token was configured or loaded.
	ErrNoRefreshToken = errors.New("kiroauth: refresh token is not set")

	// ErrNoAccessToken means a refresh completed without yielding a token.
	ErrNoAccessToken = errors.New("kiroauth: failed to obtain access token")

	// ErrNoClientID and ErrNoClientSecret guard the OIDC refresh path.
	ErrNoClientID     = errors.New("kiroauth: client id is not set")
	ErrNoClientSecret = errors.New("kiroauth: client secret is not set")

	// ErrCredentialsExpired means the token is past expiry and the refresh
	// failed, so re-login is required.
	ErrCredentialsExpired = errors.New("kiroauth: token expired and refresh failed, re-run kiro-cli login")
)

// StatusError is a non-2xx reply from a token endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kiroauth: refresh failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// statusOf extracts the HTTP status from err, or 0 when it is not a
// StatusError.
func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
