package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/router-for-me/KiroProxyAPI/internal/kiro"
)

// ToolNameViolation records one tool name over the upstream limit.
type ToolNameViolation struct {
	Name   string
	Length int
}

// ToolNameError is returned when tool names exceed the upstream
// 64-character limit. It lists every offender so the client can fix all of
// them in one pass.
type ToolNameError struct {
	Violations []ToolNameViolation
}

func (e *ToolNameError) Error() string {
	var b strings.Builder
	b.WriteString("Tool name(s) exceed Kiro API limit of 64 characters:\n")
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "  - '%s' (%d characters)\n", v.Name, v.Length)
	}
	b.WriteString("\nSolution: Use shorter tool names (max 64 characters).")
	return b.String()
}

// SanitizeSchema removes schema fields the upstream rejects with
// "Improperly formed request": empty required arrays and any
// additionalProperties key. The input is never mutated.
func SanitizeSchema(schema map[string]any) map[string]any {
	if len(schema) == 0 {
		return map[string]any{}
	}

	result := make(map[string]any, len(schema))
	for key, value := range schema {
		if key == "additionalProperties" {
			continue
		}
		if key == "required" {
			if list, ok := value.([]any); ok && len(list) == 0 {
				continue
			}
		}
		switch v := value.(type) {
		case map[string]any:
			result[key] = SanitizeSchema(v)
		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				if m, ok := item.(map[string]any); ok {
					items[i] = SanitizeSchema(m)
				} else {
					items[i] = item
				}
			}
			result[key] = items
		default:
			result[key] = value
		}
	}
	return result
}

// ProcessLongDescriptions moves tool descriptions longer than maxLen into a
// markdown documentation block destined for the system prompt, leaving a
// reference string on the tool itself. A maxLen of 0 disables the move.
func ProcessLongDescriptions(tools []ToolInput, maxLen int) ([]ToolInput, string) {
	if len(tools) == 0 {
		return nil, ""
	}
	if maxLen <= 0 {
		return tools, ""
	}

	var docParts []string
	processed := make([]ToolInput, 0, len(tools))
	for _, tool := range tools {
		if len(tool.Description) <= maxLen {
			processed = append(processed, tool)
			continue
		}
		docParts = append(docParts, fmt.Sprintf("## Tool: %s\n\n%s", tool.Name, tool.Description))
		processed = append(processed, ToolInput{
			Name:        tool.Name,
			Description: fmt.Sprintf("[Full documentation in system prompt under '## Tool: %s']", tool.Name),
			InputSchema: tool.InputSchema,
		})
	}

	var doc string
	if len(docParts) > 0 {
		doc = "\n\n---\n" +
			"# Tool Documentation\n" +
			"The following tools have detailed documentation that couldn't fit in the tool definition.\n\n" +
			strings.Join(docParts, "\n\n---\n\n")
	}
	return processed, doc
}

// ValidateToolNames rejects tool names over 64 characters, reporting every
// offender at once.
func ValidateToolNames(tools []ToolInput) error {
	var violations []ToolNameViolation
	for _, tool := range tools {
		if len(tool.Name) > 64 {
			violations = append(violations, ToolNameViolation{Name: tool.Name, Length: len(tool.Name)})
		}
	}
	if len(violations) > 0 {
		return &ToolNameError{Violations: violations}
	}
	return nil
}

// ConvertTools maps unified tools into upstream toolSpecification entries,
// sanitizing each schema and backfilling empty descriptions (the upstream
// requires one).
func ConvertTools(tools []ToolInput) []kiro.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]kiro.Tool, 0, len(tools))
	for _, tool := range tools {
		description := tool.Description
		if strings.TrimSpace(description) == "" {
			description = "Tool: " + tool.Name
		}
		out = append(out, kiro.Tool{
			ToolSpecification: kiro.ToolSpecification{
				Name:        tool.Name,
				Description: description,
				InputSchema: kiro.InputSchema{JSON: SanitizeSchema(tool.InputSchema)},
			},
		})
	}
	return out
}

// ConvertImages maps unified images into upstream format, stripping any
// data-URL prefix some clients leave in the data field.
func ConvertImages(images []ImageInput) []kiro.Image {
	if len(images) == 0 {
		return nil
	}
	out := make([]kiro.Image, 0, len(images))
	for _, img := range images {
		mediaType := img.MediaType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		data := img.Data
		if data == "" {
			continue
		}
		if strings.HasPrefix(data, "data:") {
			if header, rest, ok := strings.Cut(data, ","); ok {
				mediaPart, _, _ := strings.Cut(header, ";")
				if mt := strings.TrimPrefix(mediaPart, "data:"); mt != "" {
					mediaType = mt
				}
				data = rest
			}
		}
		format := mediaType
		if _, after, ok := strings.Cut(mediaType, "/"); ok {
			format = after
		}
		out = append(out, kiro.Image{
			Format: format,
			Source: kiro.ImageSource{Bytes: data},
		})
	}
	return out
}

// ConvertToolResults maps unified tool results into upstream format. Empty
// content gets a placeholder since the upstream rejects empty text.
func ConvertToolResults(results []ToolResultInput) []kiro.ToolResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]kiro.ToolResult, 0, len(results))
	for _, tr := range results {
		text := tr.Content
		if text == "" {
			text = "(empty result)"
		}
		out = append(out, kiro.ToolResult{
			Content:   []kiro.ToolResultContent{{Text: text}},
			Status:    "success",
			ToolUseID: tr.ToolUseID,
		})
	}
	return out
}

// extractToolUses maps unified tool calls into upstream toolUses for
// assistant history entries. Unparsable argument JSON degrades to an empty
// input object.
func extractToolUses(calls []ToolCall) []kiro.ToolUse {
	if len(calls) == 0 {
		return nil
	}
	out := make([]kiro.ToolUse, 0, len(calls))
	for _, tc := range calls {
		input := map[string]any{}
		if tc.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Arguments), &input)
		}
		out = append(out, kiro.ToolUse{
			Name:      tc.Name,
			Input:     input,
			ToolUseID: tc.ID,
		})
	}
	return out
}

// toolCallsToText renders tool calls as plain text so their context
// survives when no tools are declared and the calls must be stripped.
func toolCallsToText(calls []ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	parts := make([]string, 0, len(calls))
	for _, tc := range calls {
		name := tc.Name
		if name == "" {
			name = "unknown"
		}
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		if tc.ID != "" {
			parts = append(parts, fmt.Sprintf("[Tool: %s (%s)]\n%s", name, tc.ID, args))
		} else {
			parts = append(parts, fmt.Sprintf("[Tool: %s]\n%s", name, args))
		}
	}
	return strings.Join(parts, "\n\n")
}

// toolResultsToText renders tool results as plain text, used both when
// stripping tool content and when flattening orphaned results.
func toolResultsToText(results []ToolResultInput) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, tr := range results {
		text := tr.Content
		if text == "" {
			text = "(empty result)"
		}
		if tr.ToolUseID != "" {
			parts = append(parts, fmt.Sprintf("[Tool Result (%s)]\n%s", tr.ToolUseID, text))
		} else {
			parts = append(parts, fmt.Sprintf("[Tool Result]\n%s", text))
		}
	}
	return strings.Join(parts, "\n\n")
}
