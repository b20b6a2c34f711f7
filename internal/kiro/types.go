package kiro

// Payload is the request body for generateAssistantResponse.
type Payload struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

// ConversationState carries the current message plus prior turns. The
// upstream rejects conversations that do not strictly alternate between
// user and assistant entries.
type ConversationState struct {
	ChatTriggerType string         `json:"chatTriggerType"`
	ConversationID  string         `json:"conversationId"`
	CurrentMessage  CurrentMessage `json:"currentMessage"`
	History         []HistoryEntry `json:"history,omitempty"`
}

// CurrentMessage wraps the message being answered; it is always a user turn.
type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

// HistoryEntry is either a user or an assistant turn, never both.
type HistoryEntry struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UserInputMessage is a user turn. Images sit directly on the message, not
// inside the context object; that placement matches the Kiro IDE.
type UserInputMessage struct {
	Content                 string                   `json:"content"`
	ModelID                 string                   `json:"modelId"`
	Origin                  string                   `json:"origin"`
	Images                  []Image                  `json:"images,omitempty"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// UserInputMessageContext holds tool declarations and tool results only.
type UserInputMessageContext struct {
	Tools       []Tool       `json:"tools,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// AssistantResponseMessage is an assistant turn with optional tool uses.
type AssistantResponseMessage struct {
	Content  string    `json:"content"`
	ToolUses []ToolUse `json:"toolUses,omitempty"`
}

// Tool declares a callable tool via its toolSpecification.
type Tool struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

// ToolSpecification names a tool and carries its JSON Schema.
type ToolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps the schema under a "json" key as the upstream expects.
type InputSchema struct {
	JSON map[string]any `json:"json"`
}

// ToolUse records an assistant-issued tool call in history.
type ToolUse struct {
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"toolUseId"`
}

// ToolResult returns a tool's output to the model.
type ToolResult struct {
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status"`
	ToolUseID string              `json:"toolUseId"`
}

// ToolResultContent is a single text chunk of a tool result.
type ToolResultContent struct {
	Text string `json:"text"`
}

// Image attaches a base64-encoded image to a user turn.
type Image struct {
	Format string      `json:"format"`
	Source ImageSource `json:"source"`
}

// ImageSource carries the raw base64 payload.
type ImageSource struct {
	Bytes string `json:"bytes"`
}
