package kiroauth

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiroProxyAPI/internal/util"
)

// errorRetrySleep is how long the background loop backs off after a
// refresh error before re-arming the interval timer.
const errorRetrySleep = 30 * time.Second

// ManagerOptions configure a single-credential Manager.
type ManagerOptions struct {
	RefreshToken string
	ProfileArn   string
	Region       string
	CredsFile    string
	SQLiteDB     string
	ClientID     string
	ClientSecret string

	// RefreshThreshold refreshes the token this long before expiry.
	RefreshThreshold time.Duration
}

// Manager holds one credential set and keeps its access token valid.
// SQLite credentials get reloaded before refreshing because kiro-cli may
// have rotated them underneath the gateway.
type Manager struct {
	mu       sync.Mutex
	creds    Credentials
	tokenKey string

	region      string
	credsFile   string
	sqliteDB    string
	threshold   time.Duration
	fingerprint string
	client      *http.Client

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager loads credentials per opts. SQLite takes priority over the
// JSON file; a region named in the file overrides opts.Region.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		creds: Credentials{
			RefreshToken: opts.RefreshToken,
			ProfileArn:   opts.ProfileArn,
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
		},
		region:      opts.Region,
		credsFile:   opts.CredsFile,
		sqliteDB:    opts.SQLiteDB,
		threshold:   opts.RefreshThreshold,
		fingerprint: util.MachineFingerprint(),
		client:      newRefreshClient(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	m.loadLocked()
	log.Infof("auth manager initialized: region=%s auth_type=%s", m.region, m.creds.AuthType())
	return m
}

// loadLocked pulls credentials from the configured store. Callers hold the
// lock or run before the manager is shared.
func (m *Manager) loadLocked() {
	switch {
	case m.sqliteDB != "":
		key, err := LoadSQLite(m.sqliteDB, &m.creds)
		if err != nil {
			log.WithField("error", err).Error("failed to load credentials from sqlite")
			return
		}
		if key != "" {
			m.tokenKey = key
		}
	case m.credsFile != "":
		region, err := LoadFile(m.credsFile, &m.creds)
		if err != nil {
			log.WithField("error", err).Error("failed to load credentials from file")
			return
		}
		if region != "" && region != m.region {
			m.region = region
			log.Infof("region updated from credentials file: %s", region)
		}
	}
}

// Reload re-reads the credential store. The file watcher calls this when
// the credentials file changes on disk.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked()
}

// GetAccessToken returns a valid access token, refreshing when the current
// one is expiring. In SQLite mode a refresh failure with HTTP 400 degrades
// to the existing access token until it truly expires, covering kiro-cli
// installs that rotate tokens in memory without persisting them.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds.AccessToken != "" && !m.creds.ExpiringSoon(m.threshold) {
		return m.creds.AccessToken, nil
	}

	if m.sqliteDB != "" {
		log.Debug("sqlite mode: reloading credentials before refresh attempt")
		m.loadLocked()
		if m.creds.AccessToken != "" && !m.creds.ExpiringSoon(m.threshold) {
			return m.creds.AccessToken, nil
		}
	}

	if err := m.refreshLocked(ctx); err != nil {
		if statusOf(err) == http.StatusBadRequest && m.sqliteDB != "" {
			log.Warn("token refresh failed with 400 after sqlite reload")
			if m.creds.AccessToken != "" && !m.creds.Expired() {
				log.Warn("using existing access token until it expires; run 'kiro-cli login' to refresh credentials")
				return m.creds.AccessToken, nil
			}
			return "", ErrCredentialsExpired
		}
		return "", err
	}

	if m.creds.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return m.creds.AccessToken, nil
}

// ForceRefresh refreshes unconditionally, used after the API rejects the
// current token with a 403.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	if m.creds.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return m.creds.AccessToken, nil
}

// FreshForStreaming reports whether the token survives at least
// minValidity of streaming.
func (m *Manager) FreshForStreaming(minValidity time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.FreshForStreaming(minValidity)
}

// ProfileArn returns the current profile ARN, which a refresh may update.
func (m *Manager) ProfileArn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.ProfileArn
}

// Region returns the API region.
func (m *Manager) Region() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.region
}

// ManagerStatus is the single-credential health snapshot for monitoring.
type ManagerStatus struct {
	AuthType       AuthType `json:"auth_type"`
	HasAccessToken bool     `json:"has_access_token"`
	ExpiresAt      string   `json:"expires_at,omitempty"`
	ProfileArn     string   `json:"profile_arn,omitempty"`
	Region         string   `json:"region"`
}

// Status snapshots the credential state without exposing any token.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := ManagerStatus{
		AuthType:       m.creds.AuthType(),
		HasAccessToken: m.creds.AccessToken != "",
		ProfileArn:     m.creds.ProfileArn,
		Region:         m.region,
	}
	if !m.creds.ExpiresAt.IsZero() {
		s.ExpiresAt = m.creds.ExpiresAt.Format(time.RFC3339)
	}
	return s
}

// refreshLocked routes to the refresh endpoint for the credential type and
// persists the result. OIDC retries once after reloading from SQLite when
// the stored refresh token went stale (HTTP 400 after kiro-cli re-login).
func (m *Manager) refreshLocked(ctx context.Context) error {
	var result *refreshResult
	var err error

	switch m.creds.AuthType() {
	case AuthTypeOIDC:
		result, err = refreshOIDC(ctx, m.client, m.ssoRegionLocked(), m.creds.ClientID, m.creds.ClientSecret, m.creds.RefreshToken)
		if err != nil && statusOf(err) == http.StatusBadRequest && m.sqliteDB != "" {
			log.Warn("token refresh failed with 400, reloading credentials from sqlite and retrying")
			m.loadLocked()
			result, err = refreshOIDC(ctx, m.client, m.ssoRegionLocked(), m.creds.ClientID, m.creds.ClientSecret, m.creds.RefreshToken)
		}
	default:
		result, err = refreshDesktop(ctx, m.client, m.region, m.creds.RefreshToken, m.fingerprint)
	}
	if err != nil {
		return err
	}

	m.creds.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		m.creds.RefreshToken = result.RefreshToken
	}
	if result.ProfileArn != "" {
		m.creds.ProfileArn = result.ProfileArn
	}
	m.creds.ExpiresAt = result.expiry()
	log.Infof("token refreshed, expires: %s", m.creds.ExpiresAt.Format(time.RFC3339))

	m.persistLocked()
	return nil
}

func (m *Manager) ssoRegionLocked() string {
	if m.creds.SSORegion != "" {
		return m.creds.SSORegion
	}
	return m.region
}

func (m *Manager) persistLocked() {
	switch {
	case m.sqliteDB != "":
		if err := SaveSQLite(m.sqliteDB, m.tokenKey, m.region, &m.creds); err != nil {
			log.WithField("error", err).Error("failed to save credentials to sqlite")
		}
	case m.credsFile != "":
		if err := SaveFile(m.credsFile, &m.creds); err != nil {
			log.WithField("error", err).Error("failed to save credentials")
		}
	}
}

// StartBackgroundRefresh proactively refreshes the token every interval so
// an idle gateway never serves its first request with an expired token.
func (m *Manager) StartBackgroundRefresh(interval time.Duration) {
	if interval <= 0 {
		close(m.done)
		return
	}
	go func() {
		defer close(m.done)
		log.Info("background token refresh started")
		for {
			select {
			case <-m.stop:
				log.Info("background token refresh stopped")
				return
			case <-time.After(interval):
			}

			m.mu.Lock()
			if !m.creds.ExpiringSoon(m.threshold) {
				m.mu.Unlock()
				log.Debug("background refresh: token still valid")
				continue
			}
			log.Info("background refresh: token expiring soon, refreshing")
			err := m.refreshLocked(context.Background())
			m.mu.Unlock()

			if err != nil {
				log.WithField("error", err).Error("background refresh failed")
				select {
				case <-m.stop:
					log.Info("background token refresh stopped")
					return
				case <-time.After(errorRetrySleep):
				}
			}
		}
	}()
}

// StopBackgroundRefresh signals the refresh goroutine and waits for it.
func (m *Manager) StopBackgroundRefresh() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
