// Package kiro defines the upstream wire surface of the Kiro/CodeWhisperer
// API: region-scoped endpoints, request headers, and the payload types for
// generateAssistantResponse.
package kiro

import "fmt"

// RefreshURL returns the Kiro Desktop token refresh endpoint for a region.
func RefreshURL(region string) string {
	return fmt.Sprintf("https://prod.%s.auth.desktop.kiro.dev/refreshToken", region)
}

// OIDCTokenURL returns the AWS SSO OIDC token endpoint for a region. The
// SSO region may differ from the API region.
func OIDCTokenURL(ssoRegion string) string {
	return fmt.Sprintf("https://oidc.%s.amazonaws.com/token", ssoRegion)
}

// GenerateAssistantResponseURL returns the CodeWhisperer streaming chat
// endpoint for a region.
func GenerateAssistantResponseURL(region string) string {
	return fmt.Sprintf("https://codewhisperer.%s.amazonaws.com/generateAssistantResponse", region)
}
