package kiroauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/router-for-me/KiroProxyAPI/internal/util"
)

// warmupDelay defers the pool's first full refresh until the server has
// finished starting.
const warmupDelay = 60 * time.Second

// refreshAllConcurrency caps how many refresh requests RefreshAll has in
// flight at once.
const refreshAllConcurrency = 4

// poolToken tracks one refresh token and its health.
type poolToken struct {
	refreshToken string
	accessToken  string
	profileArn   string
	expiresAt    time.Time
	failed       bool
	failureCount int
	lastFailure  time.Time
	lastRefresh  time.Time
}

// backoff returns how long a failed token sits out before it may rotate
// back in: 5 minutes, then 30, then 2 hours.
func (t *poolToken) backoff() time.Duration {
	switch t.failureCount {
	case 0, 1:
		return 5 * time.Minute
	case 2:
		return 30 * time.Minute
	default:
		return 2 * time.Hour
	}
}

func (t *poolToken) markFailed() {
	t.failed = true
	t.failureCount++
	t.lastFailure = time.Now()
}

func (t *poolToken) markHealthy(result *refreshResult) {
	t.accessToken = result.AccessToken
	if result.RefreshToken != "" {
		t.refreshToken = result.RefreshToken
	}
	if result.ProfileArn != "" {
		t.profileArn = result.ProfileArn
	}
	t.expiresAt = result.expiry()
	t.lastRefresh = time.Now()
	t.failed = false
	t.failureCount = 0
}

// TokenStatus is one token's health snapshot for monitoring.
type TokenStatus struct {
	Index          int    `json:"index"`
	Active         bool   `json:"active"`
	RefreshToken   string `json:"refresh_token"`
	HasAccessToken bool   `json:"has_access_token"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	LastRefresh    string `json:"last_refresh,omitempty"`
	Failed         bool   `json:"is_failed"`
	FailureCount   int    `json:"failure_count"`
}

// Pool rotates across multiple refresh tokens. Tokens that fail with
// 401/403 are benched with escalating backoff while the rest carry the
// traffic.
type Pool struct {
	mu     sync.Mutex
	tokens []*poolToken
	active int

	profileArn  string
	region      string
	threshold   time.Duration
	fingerprint string
	client      *http.Client

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPool builds a pool from the configured refresh tokens. Empty entries
// are skipped.
func NewPool(refreshTokens []string, profileArn, region string, refreshThreshold time.Duration) *Pool {
	p := &Pool{
		active:      -1,
		profileArn:  profileArn,
		region:      region,
		threshold:   refreshThreshold,
		fingerprint: util.MachineFingerprint(),
		client:      newRefreshClient(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, token := range refreshTokens {
		if token != "" {
			p.tokens = append(p.tokens, &poolToken{refreshToken: token})
		}
	}
	if len(p.tokens) > 0 {
		p.active = 0
		log.Infof("token pool initialized with %d tokens", len(p.tokens))
	} else {
		log.Warn("token pool initialized with no refresh tokens")
	}
	return p
}

func (p *Pool) activeLocked() *poolToken {
	if p.active < 0 || p.active >= len(p.tokens) {
		return nil
	}
	return p.tokens[p.active]
}

// rotateLocked moves to the next token whose backoff has elapsed. When
// every token is benched the failed flags reset so the next attempt can
// try them all again.
func (p *Pool) rotateLocked() bool {
	if len(p.tokens) == 0 {
		return false
	}
	original := p.active
	for i := 1; i <= len(p.tokens); i++ {
		next := (original + i) % len(p.tokens)
		token := p.tokens[next]
		if token.failed && !token.lastFailure.IsZero() && time.Since(token.lastFailure) < token.backoff() {
			continue
		}
		p.active = next
		log.Infof("rotated to token %d/%d", p.active+1, len(p.tokens))
		return true
	}

	for _, token := range p.tokens {
		token.failed = false
	}
	if original >= 0 {
		p.active = original
	}
	return false
}

// refreshActiveLocked refreshes the active token, rotating through the
// pool until one succeeds. Upstream statuses other than 401/403 abort
// immediately since rotation cannot fix them.
func (p *Pool) refreshActiveLocked(ctx context.Context) error {
	if len(p.tokens) == 0 {
		return ErrNoRefreshToken
	}

	var lastErr error
	for attempt := 0; attempt < len(p.tokens); attempt++ {
		token := p.tokens[p.active]
		log.Infof("refreshing token %d/%d (token: %s)", p.active+1, len(p.tokens), maskToken(token.refreshToken))

		result, err := refreshDesktop(ctx, p.client, p.region, token.refreshToken, p.fingerprint)
		if err == nil {
			token.markHealthy(result)
			if token.profileArn != "" {
				p.profileArn = token.profileArn
			}
			log.Infof("token %d/%d refreshed, expires: %s", p.active+1, len(p.tokens), token.expiresAt.Format(time.RFC3339))
			return nil
		}

		status := statusOf(err)
		if status != 0 && status != http.StatusUnauthorized && status != http.StatusForbidden {
			return err
		}
		log.WithField("error", err).Warnf("token %d/%d refresh failed", p.active+1, len(p.tokens))
		token.markFailed()
		lastErr = err
		if !p.rotateLocked() {
			break
		}
	}
	return fmt.Errorf("kiroauth: all %d tokens failed: %w", len(p.tokens), lastErr)
}

// GetAccessToken returns a valid access token from the active slot,
// refreshing and rotating as needed.
func (p *Pool) GetAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := p.activeLocked()
	if token == nil || token.accessToken == "" || p.expiringSoonLocked() {
		if err := p.refreshActiveLocked(ctx); err != nil {
			return "", err
		}
		token = p.activeLocked()
	}
	if token == nil || token.accessToken == "" {
		return "", ErrNoAccessToken
	}
	return token.accessToken, nil
}

// ForceRefresh refreshes the active token, rotating on 401/403.
func (p *Pool) ForceRefresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.refreshActiveLocked(ctx); err != nil {
		return "", err
	}
	token := p.activeLocked()
	if token == nil || token.accessToken == "" {
		return "", ErrNoAccessToken
	}
	return token.accessToken, nil
}

func (p *Pool) expiringSoonLocked() bool {
	token := p.activeLocked()
	if token == nil || token.expiresAt.IsZero() {
		return true
	}
	return !token.expiresAt.After(time.Now().Add(p.threshold))
}

// FreshForStreaming reports whether the active token survives at least
// minValidity of streaming.
func (p *Pool) FreshForStreaming(minValidity time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := p.activeLocked()
	if token == nil || token.expiresAt.IsZero() {
		return false
	}
	return time.Until(token.expiresAt) >= minValidity
}

// ProfileArn returns the pool-wide profile ARN.
func (p *Pool) ProfileArn() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profileArn
}

// Region returns the API region.
func (p *Pool) Region() string {
	return p.region
}

// RefreshAll refreshes every token concurrently to keep the whole pool
// healthy. Individual failures bench the token without failing the call.
func (p *Pool) RefreshAll(ctx context.Context) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tokens) == 0 {
		return nil
	}

	type outcome struct {
		result *refreshResult
		err    error
	}
	outcomes := make([]outcome, len(p.tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshAllConcurrency)
	for i, token := range p.tokens {
		i := i
		refreshToken := token.refreshToken
		g.Go(func() error {
			result, err := refreshDesktop(gctx, p.client, p.region, refreshToken, p.fingerprint)
			outcomes[i] = outcome{result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]string, len(p.tokens))
	healthy := 0
	for i, token := range p.tokens {
		id := fmt.Sprintf("token_%d", i+1)
		if outcomes[i].err != nil {
			log.WithField("error", outcomes[i].err).Warnf("token %d refresh failed", i+1)
			token.markFailed()
			results[id] = "failed"
			continue
		}
		token.markHealthy(outcomes[i].result)
		results[id] = "healthy"
		healthy++
	}
	log.Infof("token refresh complete: %d/%d healthy", healthy, len(p.tokens))
	return results
}

// Status snapshots every token's health with the refresh tokens masked.
func (p *Pool) Status() []TokenStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := make([]TokenStatus, 0, len(p.tokens))
	for i, token := range p.tokens {
		s := TokenStatus{
			Index:          i + 1,
			Active:         i == p.active,
			RefreshToken:   maskToken(token.refreshToken),
			HasAccessToken: token.accessToken != "",
			Failed:         token.failed,
			FailureCount:   token.failureCount,
		}
		if !token.expiresAt.IsZero() {
			s.ExpiresAt = token.expiresAt.Format(time.RFC3339)
		}
		if !token.lastRefresh.IsZero() {
			s.LastRefresh = token.lastRefresh.Format(time.RFC3339)
		}
		status = append(status, s)
	}
	return status
}

// StartBackgroundRefresh keeps every token warm: one full refresh after
// startup, then one every interval.
func (p *Pool) StartBackgroundRefresh(interval time.Duration) {
	if interval <= 0 {
		close(p.done)
		return
	}
	go func() {
		defer close(p.done)
		log.Info("background token refresh started (pool mode)")

		select {
		case <-p.stop:
			return
		case <-time.After(warmupDelay):
		}
		p.RefreshAll(context.Background())

		for {
			select {
			case <-p.stop:
				log.Info("background token refresh stopped")
				return
			case <-time.After(interval):
			}
			log.Info("running scheduled refresh for all tokens")
			p.RefreshAll(context.Background())
		}
	}()
}

// StopBackgroundRefresh signals the refresh goroutine and waits for it.
func (p *Pool) StopBackgroundRefresh() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}
