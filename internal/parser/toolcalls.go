package parser

import (
	"regexp"
	"strings"

	"github.com/router-for-me/KiroProxyAPI/internal/util"
)

// bracketCallRe matches the textual tool-call form the model falls back to
// when no tools were declared: [Called name with args: {...}]
var bracketCallRe = regexp.MustCompile(`\[Called\s+(\w+)\s+with\s+args:\s*`)

// ParseBracketToolCalls extracts tool calls embedded as text. Each call
// gets a fresh id since the textual form carries none.
func ParseBracketToolCalls(text string) []ToolCall {
	if text == "" {
		return nil
	}

	var calls []ToolCall
	for _, loc := range bracketCallRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		argsStart := loc[1]
		if argsStart >= len(text) || text[argsStart] != '{' {
			continue
		}
		argsEnd := FindMatchingBrace(text, argsStart)
		if argsEnd < 0 {
			continue
		}
		calls = append(calls, ToolCall{
			ID:        util.GenerateToolCallID(),
			Name:      name,
			Arguments: text[argsStart : argsEnd+1],
		})
	}
	return calls
}

// DeduplicateToolCalls removes duplicate calls while preserving order. The
// upstream re-sends calls across envelopes, sometimes first with empty
// arguments and then with the full set, so duplicates by id keep the
// variant with the longer arguments. Calls without an id deduplicate by
// name plus arguments.
func DeduplicateToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}

	type slot struct {
		index int
		call  ToolCall
	}
	byKey := make(map[string]*slot)
	var order []string

	for _, call := range calls {
		key := call.ID
		if key == "" {
			key = "name:" + call.Name + "|" + call.Arguments
		} else {
			key = "id:" + key
		}
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = &slot{index: len(order), call: call}
			order = append(order, key)
			continue
		}
		if argsLength(call.Arguments) > argsLength(existing.call.Arguments) {
			existing.call.Arguments = call.Arguments
		}
	}

	result := make([]ToolCall, len(order))
	for i, key := range order {
		result[i] = byKey[key].call
	}
	return result
}

// argsLength treats empty-object arguments as zero so real arguments
// always win over "{}".
func argsLength(args string) int {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" || trimmed == "{}" {
		return 0
	}
	return len(trimmed)
}
