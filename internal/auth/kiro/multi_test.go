package kiroauth

import (
	"strings"
	"testing"
	"time"
)

func TestNewPool_SkipsEmptyEntries(t *testing.T) {
	p := NewPool([]string{"t1", "", "t2"}, "arn:p", "us-east-1", 600*time.Second)
	if len(p.tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(p.tokens))
	}
	if p.active != 0 {
		t.Fatalf("expected first token active, got %d", p.active)
	}
	if p.ProfileArn() != "arn:p" || p.Region() != "us-east-1" {
		t.Fatal("pool settings not carried")
	}
}

func TestNewPool_Empty(t *testing.T) {
	p := NewPool(nil, "", "us-east-1", 0)
	if p.active != -1 {
		t.Fatalf("empty pool should have no active slot, got %d", p.active)
	}
}

func TestPoolToken_Backoff(t *testing.T) {
	tok := &poolToken{}
	if tok.backoff() != 5*time.Minute {
		t.Fatalf("fresh token: got %v", tok.backoff())
	}
	tok.failureCount = 1
	if tok.backoff() != 5*time.Minute {
		t.Fatalf("one failure: got %v", tok.backoff())
	}
	tok.failureCount = 2
	if tok.backoff() != 30*time.Minute {
		t.Fatalf("two failures: got %v", tok.backoff())
	}
	tok.failureCount = 3
	if tok.backoff() != 2*time.Hour {
		t.Fatalf("three failures: got %v", tok.backoff())
	}
}

func TestPoolToken_MarkFailedAndHealthy(t *testing.T) {
	tok := &poolToken{refreshToken: "rt"}
	tok.markFailed()
	tok.markFailed()
	if !tok.failed || tok.failureCount != 2 || tok.lastFailure.IsZero() {
		t.Fatalf("unexpected state after failures: %+v", tok)
	}

	tok.markHealthy(&refreshResult{AccessToken: "at", RefreshToken: "rt2", ExpiresIn: 3600, ProfileArn: "arn:p"})
	if tok.failed || tok.failureCount != 0 {
		t.Fatalf("health not reset: %+v", tok)
	}
	if tok.accessToken != "at" || tok.refreshToken != "rt2" || tok.profileArn != "arn:p" {
		t.Fatalf("result not applied: %+v", tok)
	}
	if tok.expiresAt.IsZero() || tok.lastRefresh.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestPoolToken_MarkHealthyKeepsRefreshTokenWhenAbsent(t *testing.T) {
	tok := &poolToken{refreshToken: "rt"}
	tok.markHealthy(&refreshResult{AccessToken: "at"})
	if tok.refreshToken != "rt" {
		t.Fatalf("refresh token replaced by empty value: %q", tok.refreshToken)
	}
}

func TestRotateLocked_SkipsBenchedTokens(t *testing.T) {
	p := NewPool([]string{"t1", "t2", "t3"}, "", "us-east-1", 0)
	p.tokens[1].markFailed()

	if !p.rotateLocked() {
		t.Fatal("rotation should succeed")
	}
	if p.active != 2 {
		t.Fatalf("expected benched token skipped, active=%d", p.active)
	}
}

func TestRotateLocked_BenchedTokenReturnsAfterBackoff(t *testing.T) {
	p := NewPool([]string{"t1", "t2"}, "", "us-east-1", 0)
	p.tokens[1].failed = true
	p.tokens[1].failureCount = 1
	p.tokens[1].lastFailure = time.Now().Add(-10 * time.Minute)

	if !p.rotateLocked() {
		t.Fatal("rotation should succeed")
	}
	if p.active != 1 {
		t.Fatalf("token past its backoff should rotate in, active=%d", p.active)
	}
}

func TestRotateLocked_AllBenchedResetsFlags(t *testing.T) {
	p := NewPool([]string{"t1", "t2"}, "", "us-east-1", 0)
	for _, tok := range p.tokens {
		tok.markFailed()
	}

	if p.rotateLocked() {
		t.Fatal("rotation should report failure with every token benched")
	}
	for i, tok := range p.tokens {
		if tok.failed {
			t.Fatalf("token %d failed flag not reset", i)
		}
	}
	if p.active != 0 {
		t.Fatalf("active slot should be restored, got %d", p.active)
	}
}

func TestPool_FreshForStreaming(t *testing.T) {
	p := NewPool([]string{"t1"}, "", "us-east-1", 0)
	if p.FreshForStreaming(10 * time.Minute) {
		t.Fatal("token without expiry is never fresh")
	}
	p.tokens[0].expiresAt = time.Now().Add(time.Hour)
	if !p.FreshForStreaming(10 * time.Minute) {
		t.Fatal("an hour of life should be fresh enough")
	}
	p.tokens[0].expiresAt = time.Now().Add(5 * time.Minute)
	if p.FreshForStreaming(10 * time.Minute) {
		t.Fatal("five minutes left is not fresh enough")
	}
}

func TestPool_Status(t *testing.T) {
	p := NewPool([]string{"secret-token-value-1", "secret-token-value-2"}, "", "us-east-1", 0)
	p.tokens[0].accessToken = "at"
	p.tokens[0].expiresAt = time.Now().Add(time.Hour)
	p.tokens[1].markFailed()

	status := p.Status()
	if len(status) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(status))
	}
	if !status[0].Active || status[1].Active {
		t.Fatalf("active flags wrong: %+v", status)
	}
	if strings.Contains(status[0].RefreshToken, "secret-token-value-1") {
		t.Fatalf("refresh token leaked: %q", status[0].RefreshToken)
	}
	if !strings.HasSuffix(status[0].RefreshToken, "...") {
		t.Fatalf("token not masked: %q", status[0].RefreshToken)
	}
	if !status[0].HasAccessToken || status[0].ExpiresAt == "" {
		t.Fatalf("unexpected entry: %+v", status[0])
	}
	if !status[1].Failed || status[1].FailureCount != 1 {
		t.Fatalf("failure state missing: %+v", status[1])
	}
}

func TestPool_StartBackgroundRefreshDisabled(t *testing.T) {
	p := NewPool([]string{"t1"}, "", "us-east-1", 0)
	p.StartBackgroundRefresh(0)
	p.StopBackgroundRefresh()
}
