package kiro

import (
	"net/http"

	"github.com/google/uuid"
)

// Headers builds the header set CodeWhisperer expects on every chat
// request. Each call mints a fresh amz-sdk-invocation-id.
func Headers(accessToken, fingerprint string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("User-Agent", "aws-sdk-js/1.0.7 KiroIDE-"+fingerprint[:16])
	h.Set("x-amz-user-agent", "aws-sdk-js/1.0.7 KiroIDE")
	h.Set("x-amzn-codewhisperer-optout", "true")
	h.Set("x-amzn-kiro-agent-mode", "vibe")
	h.Set("amz-sdk-request", "attempt=1; max=1")
	h.Set("amz-sdk-invocation-id", uuid.NewString())
	return h
}
