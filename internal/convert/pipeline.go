package convert

import (
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiroProxyAPI/internal/kiro"
)

// emptyPlaceholder stands in for content the upstream would reject as empty.
const emptyPlaceholder = "(empty)"

// StripAllToolContent converts every tool call and tool result into plain
// text. Used when the request declares no tools: the upstream rejects
// toolResults without a tools block, but the context should survive as
// text. Returns whether anything was converted.
func StripAllToolContent(messages []Message) ([]Message, bool) {
	if len(messages) == 0 {
		return nil, false
	}

	result := make([]Message, 0, len(messages))
	converted := false
	for _, msg := range messages {
		if len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
			result = append(result, msg)
			continue
		}
		converted = true

		var parts []string
		if msg.Content != "" {
			parts = append(parts, msg.Content)
		}
		if text := toolCallsToText(msg.ToolCalls); text != "" {
			parts = append(parts, text)
		}
		if text := toolResultsToText(msg.ToolResults); text != "" {
			parts = append(parts, text)
		}
		content := emptyPlaceholder
		if len(parts) > 0 {
			content = joinParts(parts)
		}
		result = append(result, Message{
			Role:    msg.Role,
			Content: content,
			Images:  msg.Images,
		})
	}
	return result, converted
}

// EnsureAssistantBeforeToolResults flattens tool results whose preceding
// assistant tool call is missing (clients sometimes send truncated
// conversations). A synthetic assistant call cannot be fabricated since the
// original tool name is unknown, so the results become text instead.
// Returns whether any results were flattened.
func EnsureAssistantBeforeToolResults(messages []Message) ([]Message, bool) {
	if len(messages) == 0 {
		return nil, false
	}

	result := make([]Message, 0, len(messages))
	converted := false
	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			hasPreceding := len(result) > 0 &&
				result[len(result)-1].Role == "assistant" &&
				len(result[len(result)-1].ToolCalls) > 0
			if !hasPreceding {
				log.Debugf("converting %d orphaned tool result(s) to text", len(msg.ToolResults))
				text := toolResultsToText(msg.ToolResults)
				content := msg.Content
				switch {
				case content != "" && text != "":
					content = content + "\n\n" + text
				case text != "":
					content = text
				}
				result = append(result, Message{
					Role:      msg.Role,
					Content:   content,
					ToolCalls: msg.ToolCalls,
					Images:    msg.Images,
				})
				converted = true
				continue
			}
		}
		result = append(result, msg)
	}
	return result, converted
}

// MergeAdjacentMessages collapses consecutive messages with the same role
// into one, joining content with a newline and concatenating tool payloads.
// The upstream does not accept two turns of the same role in a row.
func MergeAdjacentMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}

	merged := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if len(merged) == 0 || merged[len(merged)-1].Role != msg.Role {
			merged = append(merged, msg)
			continue
		}
		last := merged[len(merged)-1]
		last.Content = last.Content + "\n" + msg.Content
		if len(msg.ToolCalls) > 0 {
			last.ToolCalls = append(append([]ToolCall{}, last.ToolCalls...), msg.ToolCalls...)
		}
		if len(msg.ToolResults) > 0 {
			last.ToolResults = append(append([]ToolResultInput{}, last.ToolResults...), msg.ToolResults...)
		}
		if len(msg.Images) > 0 {
			last.Images = append(append([]ImageInput{}, last.Images...), msg.Images...)
		}
		merged[len(merged)-1] = last
	}
	return merged
}

// EnsureFirstMessageIsUser prepends a minimal synthetic user message when
// the conversation starts with anything else.
func EnsureFirstMessageIsUser(messages []Message) []Message {
	if len(messages) == 0 || messages[0].Role == "user" {
		return messages
	}
	log.Debugf("first message is %q, prepending synthetic user message", messages[0].Role)
	return append([]Message{{Role: "user", Content: emptyPlaceholder}}, messages...)
}

// NormalizeRoles converts any role other than user/assistant to user. Must
// run before EnsureAlternatingRoles so consecutive converted messages get
// synthetic assistants between them.
func NormalizeRoles(messages []Message) []Message {
	result := make([]Message, len(messages))
	for i, msg := range messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			msg.Role = "user"
		}
		result[i] = msg
	}
	return result
}

// EnsureAlternatingRoles inserts synthetic assistant messages between
// consecutive user messages so history strictly alternates.
func EnsureAlternatingRoles(messages []Message) []Message {
	if len(messages) < 2 {
		return messages
	}
	result := make([]Message, 0, len(messages))
	result = append(result, messages[0])
	for _, msg := range messages[1:] {
		if msg.Role == "user" && result[len(result)-1].Role == "user" {
			result = append(result, Message{Role: "assistant", Content: emptyPlaceholder})
		}
		result = append(result, msg)
	}
	return result
}

// buildHistory converts normalized messages into upstream history entries.
func buildHistory(messages []Message, modelID string) []kiro.HistoryEntry {
	history := make([]kiro.HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			content := msg.Content
			if content == "" {
				content = emptyPlaceholder
			}
			userInput := &kiro.UserInputMessage{
				Content: content,
				ModelID: modelID,
				Origin:  "AI_EDITOR",
			}
			if images := ConvertImages(msg.Images); len(images) > 0 {
				userInput.Images = images
			}
			if results := ConvertToolResults(msg.ToolResults); len(results) > 0 {
				userInput.UserInputMessageContext = &kiro.UserInputMessageContext{ToolResults: results}
			}
			history = append(history, kiro.HistoryEntry{UserInputMessage: userInput})
		case "assistant":
			content := msg.Content
			if content == "" {
				content = emptyPlaceholder
			}
			assistant := &kiro.AssistantResponseMessage{Content: content}
			if uses := extractToolUses(msg.ToolCalls); len(uses) > 0 {
				assistant.ToolUses = uses
			}
			history = append(history, kiro.HistoryEntry{AssistantResponseMessage: assistant})
		}
	}
	return history
}

// BuildPayload assembles the upstream request from unified messages. The
// normalization stages run in a fixed order; reordering them breaks
// conversations that need more than one repair.
func BuildPayload(messages []Message, systemPrompt, modelID string, tools []ToolInput, conversationID, profileArn string, opts Options) (*kiro.Payload, error) {
	processedTools, toolDocumentation := ProcessLongDescriptions(tools, opts.ToolDescriptionMaxLength)
	if err := ValidateToolNames(processedTools); err != nil {
		return nil, err
	}

	fullSystemPrompt := systemPrompt
	fullSystemPrompt = appendAddition(fullSystemPrompt, toolDocumentation)
	fullSystemPrompt = appendAddition(fullSystemPrompt, thinkingSystemAddition(opts))
	fullSystemPrompt = appendAddition(fullSystemPrompt, truncationSystemAddition(opts))

	var normalized []Message
	var convertedToolResults bool
	if len(tools) == 0 {
		normalized, convertedToolResults = StripAllToolContent(messages)
	} else {
		normalized, convertedToolResults = EnsureAssistantBeforeToolResults(messages)
	}

	normalized = MergeAdjacentMessages(normalized)
	normalized = EnsureFirstMessageIsUser(normalized)
	normalized = NormalizeRoles(normalized)
	normalized = EnsureAlternatingRoles(normalized)

	if len(normalized) == 0 {
		return nil, ErrNoMessages
	}

	var historyMessages []Message
	if len(normalized) > 1 {
		historyMessages = normalized[:len(normalized)-1]
	}

	// The upstream has no system role; the system prompt rides on the first
	// user message in history, or on the current message when there is none.
	if fullSystemPrompt != "" && len(historyMessages) > 0 && historyMessages[0].Role == "user" {
		first := historyMessages[0]
		first.Content = fullSystemPrompt + "\n\n" + first.Content
		historyMessages = append([]Message{first}, historyMessages[1:]...)
	}

	history := buildHistory(historyMessages, modelID)

	currentMessage := normalized[len(normalized)-1]
	currentContent := currentMessage.Content

	if fullSystemPrompt != "" && len(history) == 0 {
		currentContent = fullSystemPrompt + "\n\n" + currentContent
	}

	// An assistant-final conversation moves into history and the model is
	// asked to continue.
	if currentMessage.Role == "assistant" {
		history = append(history, kiro.HistoryEntry{
			AssistantResponseMessage: &kiro.AssistantResponseMessage{Content: currentContent},
		})
		currentContent = "Continue"
	}
	if currentContent == "" {
		currentContent = "Continue"
	}

	kiroImages := ConvertImages(currentMessage.Images)

	var userInputContext *kiro.UserInputMessageContext
	kiroTools := ConvertTools(processedTools)
	kiroToolResults := ConvertToolResults(currentMessage.ToolResults)
	if len(kiroTools) > 0 || len(kiroToolResults) > 0 {
		userInputContext = &kiro.UserInputMessageContext{
			Tools:       kiroTools,
			ToolResults: kiroToolResults,
		}
	}

	if currentMessage.Role == "user" && !convertedToolResults {
		currentContent = injectThinkingTags(currentContent, opts)
	}

	payload := &kiro.Payload{
		ConversationState: kiro.ConversationState{
			ChatTriggerType: "MANUAL",
			ConversationID:  conversationID,
			CurrentMessage: kiro.CurrentMessage{
				UserInputMessage: kiro.UserInputMessage{
					Content:                 currentContent,
					ModelID:                 modelID,
					Origin:                  "AI_EDITOR",
					Images:                  kiroImages,
					UserInputMessageContext: userInputContext,
				},
			},
			History: history,
		},
		ProfileArn: profileArn,
	}
	return payload, nil
}

func appendAddition(prompt, addition string) string {
	if addition == "" {
		return prompt
	}
	if prompt == "" {
		return trimLeadingNewlines(addition)
	}
	return prompt + addition
}

func trimLeadingNewlines(s string) string {
	for len(s) > 0 && (s[0] == '\n' || s[0] == '\r') {
		s = s[1:]
	}
	return s
}

func joinParts(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n\n" + p
	}
	return out
}
