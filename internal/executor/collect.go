package executor

import (
	"errors"
	"io"
	"strings"

	"github.com/router-for-me/KiroProxyAPI/internal/parser"
)

// Result is a fully collected upstream response for non-streaming replies.
type Result struct {
	Content      string
	ToolCalls    []parser.ToolCall
	Usage        float64
	HasUsage     bool
	ContextUsage float64
}

// Collect drains the stream into a single result. Tool calls parsed from
// bracket text are merged in when the model fell back to textual calls,
// and the whole set is deduplicated.
func Collect(s *Stream) (*Result, error) {
	var content strings.Builder
	result := &Result{}

	for {
		events, err := s.Next()
		for _, ev := range events {
			switch ev.Type {
			case parser.EventContent:
				content.WriteString(ev.Content)
			case parser.EventUsage:
				result.Usage = ev.Value
				result.HasUsage = true
			case parser.EventContextUsage:
				result.ContextUsage = ev.Value
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.Close(content.String())
				return nil, err
			}
			break
		}
	}

	result.Content = content.String()

	calls := s.Parser.ToolCalls()
	if len(calls) == 0 {
		calls = parser.ParseBracketToolCalls(result.Content)
	}
	result.ToolCalls = parser.DeduplicateToolCalls(calls)

	s.Close(result.Content)
	return result, nil
}
