// Package convert normalizes OpenAI and Anthropic chat requests into the
// payload the Kiro/CodeWhisperer upstream accepts. The upstream is strict:
// conversations must start with a user turn, roles must alternate, content
// must be non-empty, and tool results require a declared tool plus a
// preceding assistant tool call. The pipeline here repairs whatever the
// client sent into that shape without losing context.
package convert

import "errors"

// ErrNoMessages is returned when a request contains nothing to send after
// normalization.
var ErrNoMessages = errors.New("no messages to send")

// Message is the API-agnostic message format both wire adapters produce.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResultInput
	Images      []ImageInput
}

// ToolCall is an assistant-issued call in unified form. Arguments hold the
// raw JSON text as the client sent it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResultInput is a tool's output returned by the client.
type ToolResultInput struct {
	ToolUseID string
	Content   string
}

// ImageInput is an image attachment in unified form. Data may still carry a
// data-URL prefix; conversion strips it.
type ImageInput struct {
	MediaType string
	Data      string
}

// ToolInput declares a tool in unified form.
type ToolInput struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Options carries the conversion knobs taken from configuration.
type Options struct {
	ToolDescriptionMaxLength int
	FakeReasoningEnabled     bool
	FakeReasoningMaxTokens   int
	TruncationRecovery       bool
}
