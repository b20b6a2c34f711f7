// Package handlers implements the client-facing HTTP endpoints: the
// OpenAI and Anthropic chat surfaces, the model catalogue, and the
// health/status endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/KiroProxyAPI/internal/convert"
	"github.com/router-for-me/KiroProxyAPI/internal/executor"
)

// ErrorResponse is the error envelope every endpoint emits.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the human-readable message plus the OpenAI-style
// type and code fields clients switch on.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// buildErrorBody renders an error envelope for status. Error text that is
// already JSON passes through untouched so upstream error payloads keep
// their native shape.
func buildErrorBody(status int, errText string) []byte {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	if strings.TrimSpace(errText) == "" {
		errText = http.StatusText(status)
	}

	trimmed := strings.TrimSpace(errText)
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}

	errType := "invalid_request_error"
	var code string
	switch status {
	case http.StatusUnauthorized:
		errType = "authentication_error"
		code = "invalid_api_key"
	case http.StatusForbidden:
		errType = "permission_error"
	case http.StatusTooManyRequests:
		errType = "rate_limit_error"
		code = "rate_limit_exceeded"
	case http.StatusUnprocessableEntity:
		code = "malformed_request"
	default:
		if status >= http.StatusInternalServerError {
			errType = "server_error"
			code = "internal_server_error"
		}
	}

	payload, err := json.Marshal(ErrorResponse{Error: ErrorDetail{
		Message: errText,
		Type:    errType,
		Code:    code,
	}})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"message":%q,"type":"server_error","code":"internal_server_error"}}`, errText))
	}
	return payload
}

// writeError sends the envelope at the given status.
func writeError(c *gin.Context, status int, errText string) {
	c.Data(status, "application/json", buildErrorBody(status, errText))
}

// writeExecutionError maps executor failures onto client statuses: tool
// name violations and empty conversations are client errors, upstream
// failures mirror the upstream status, everything else is a 500 with a
// stable message.
func writeExecutionError(c *gin.Context, err error) {
	var nameErr *convert.ToolNameError
	if errors.As(err, &nameErr) {
		writeError(c, http.StatusBadRequest, nameErr.Error())
		return
	}
	if errors.Is(err, convert.ErrNoMessages) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	var upErr *executor.UpstreamError
	if errors.As(err, &upErr) {
		writeError(c, upErr.StatusCode, upErr.Body)
		return
	}
	writeError(c, http.StatusInternalServerError, "Internal server error")
}
