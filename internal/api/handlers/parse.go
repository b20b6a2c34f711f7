package handlers

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/router-for-me/KiroProxyAPI/internal/convert"
	"github.com/router-for-me/KiroProxyAPI/internal/executor"
)

// errMalformedBody maps to a 422 for bodies that are not valid JSON or
// carry no usable request.
var errMalformedBody = errors.New("request body is not valid JSON")

// parseOpenAIRequest maps an OpenAI chat completion body onto the unified
// request. System and developer messages fold into the system prompt;
// tool messages become user-role messages carrying a tool result.
func parseOpenAIRequest(body []byte) (*executor.Request, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformedBody
	}
	root := gjson.ParseBytes(body)

	req := &executor.Request{
		Model:  root.Get("model").String(),
		Stream: root.Get("stream").Bool(),
	}

	var systemParts []string
	for _, m := range root.Get("messages").Array() {
		role := m.Get("role").String()
		switch role {
		case "system", "developer":
			if text, _ := openAIContent(m.Get("content")); text != "" {
				systemParts = append(systemParts, text)
			}
		case "tool":
			text, _ := openAIContent(m.Get("content"))
			req.Messages = append(req.Messages, convert.Message{
				Role: "user",
				ToolResults: []convert.ToolResultInput{{
					ToolUseID: m.Get("tool_call_id").String(),
					Content:   text,
				}},
			})
		default:
			msg := convert.Message{Role: role}
			msg.Content, msg.Images = openAIContent(m.Get("content"))
			for _, tc := range m.Get("tool_calls").Array() {
				msg.ToolCalls = append(msg.ToolCalls, convert.ToolCall{
					ID:        tc.Get("id").String(),
					Name:      tc.Get("function.name").String(),
					Arguments: tc.Get("function.arguments").String(),
				})
			}
			req.Messages = append(req.Messages, msg)
		}
	}
	req.SystemPrompt = strings.Join(systemParts, "\n\n")

	for _, t := range root.Get("tools").Array() {
		fn := t.Get("function")
		if !fn.Exists() {
			continue
		}
		req.Tools = append(req.Tools, convert.ToolInput{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			InputSchema: asSchema(fn.Get("parameters")),
		})
	}
	return req, nil
}

// openAIContent folds a message content value, which may be a plain
// string or a list of typed parts, into text plus images.
func openAIContent(content gjson.Result) (string, []convert.ImageInput) {
	if content.Type == gjson.String {
		return content.String(), nil
	}
	if !content.IsArray() {
		return "", nil
	}

	var parts []string
	var images []convert.ImageInput
	for _, block := range content.Array() {
		switch block.Get("type").String() {
		case "text":
			parts = append(parts, block.Get("text").String())
		case "image_url":
			if url := block.Get("image_url.url").String(); url != "" {
				images = append(images, convert.ImageInput{Data: url})
			}
		}
	}
	return strings.Join(parts, "\n"), images
}

// parseAnthropicRequest maps an Anthropic Messages body onto the unified
// request. Content blocks split into text, images, tool uses and tool
// results.
func parseAnthropicRequest(body []byte) (*executor.Request, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformedBody
	}
	root := gjson.ParseBytes(body)

	req := &executor.Request{
		Model:        root.Get("model").String(),
		Stream:       root.Get("stream").Bool(),
		SystemPrompt: anthropicSystem(root.Get("system")),
	}

	for _, m := range root.Get("messages").Array() {
		msg := convert.Message{Role: m.Get("role").String()}
		content := m.Get("content")
		if content.Type == gjson.String {
			msg.Content = content.String()
		} else if content.IsArray() {
			var parts []string
			for _, block := range content.Array() {
				switch block.Get("type").String() {
				case "text":
					parts = append(parts, block.Get("text").String())
				case "image":
					msg.Images = append(msg.Images, convert.ImageInput{
						MediaType: block.Get("source.media_type").String(),
						Data:      block.Get("source.data").String(),
					})
				case "tool_use":
					msg.ToolCalls = append(msg.ToolCalls, convert.ToolCall{
						ID:        block.Get("id").String(),
						Name:      block.Get("name").String(),
						Arguments: block.Get("input").Raw,
					})
				case "tool_result":
					msg.ToolResults = append(msg.ToolResults, convert.ToolResultInput{
						ToolUseID: block.Get("tool_use_id").String(),
						Content:   anthropicResultText(block.Get("content")),
					})
				}
			}
			msg.Content = strings.Join(parts, "\n")
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range root.Get("tools").Array() {
		req.Tools = append(req.Tools, convert.ToolInput{
			Name:        t.Get("name").String(),
			Description: t.Get("description").String(),
			InputSchema: asSchema(t.Get("input_schema")),
		})
	}
	return req, nil
}

// anthropicSystem folds the system field, a string or a list of text
// blocks, into one prompt string.
func anthropicSystem(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	if !system.IsArray() {
		return ""
	}
	var parts []string
	for _, block := range system.Array() {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
	}
	return strings.Join(parts, "\n\n")
}

// anthropicResultText folds a tool_result content value into plain text.
func anthropicResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var parts []string
	for _, block := range content.Array() {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
	}
	return strings.Join(parts, "\n")
}

func asSchema(value gjson.Result) map[string]any {
	if m, ok := value.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
