// Package parser decodes the Kiro/CodeWhisperer response stream. The
// upstream sends concatenated JSON envelopes with no separators, sometimes
// with binary framing garbage between them, and may cut the stream off
// mid-envelope. The parser scans for balanced objects, classifies each
// envelope, and tracks in-progress tool calls across envelopes.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Event types produced by Feed.
const (
	EventContent      = "content"
	EventUsage        = "usage"
	EventContextUsage = "context_usage"
)

// Event is a single decoded upstream event.
type Event struct {
	Type    string
	Content string
	Value   float64
}

// ToolCall is a completed upstream tool call with canonical JSON arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// TruncationReport describes a tool call whose arguments arrived cut off.
type TruncationReport struct {
	ToolCallID string
	ToolName   string
	Reason     string
	SizeBytes  int
}

// Diagnosis is the structural verdict on an unparsable JSON slice.
type Diagnosis struct {
	IsTruncated bool
	Reason      string
	SizeBytes   int
}

// StreamParser incrementally decodes the upstream byte stream.
type StreamParser struct {
	buffer      string
	lastContent string
	hasLast     bool
	current     *pendingToolCall
	toolCalls   []ToolCall
	truncations []TruncationReport
}

type pendingToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// NewStreamParser returns a parser with empty state.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Reset clears all parser state so the instance can be reused.
func (p *StreamParser) Reset() {
	p.buffer = ""
	p.lastContent = ""
	p.hasLast = false
	p.current = nil
	p.toolCalls = nil
	p.truncations = nil
}

// Feed consumes a chunk and returns the events completed by it. Incomplete
// envelopes stay buffered for the next chunk; invalid UTF-8 is replaced.
func (p *StreamParser) Feed(chunk []byte) []Event {
	if len(chunk) > 0 {
		p.buffer += strings.ToValidUTF8(string(chunk), string(utf8.RuneError))
	}

	var events []Event
	for {
		start := strings.IndexByte(p.buffer, '{')
		if start < 0 {
			p.buffer = ""
			return events
		}
		end := FindMatchingBrace(p.buffer, start)
		if end < 0 {
			// Incomplete envelope, wait for more bytes.
			p.buffer = p.buffer[start:]
			return events
		}
		candidate := p.buffer[start : end+1]
		if !json.Valid([]byte(candidate)) {
			// Balanced but not JSON: framing garbage. Skip this brace.
			p.buffer = p.buffer[start+1:]
			continue
		}
		p.buffer = p.buffer[end+1:]
		if ev, ok := p.handleEnvelope(candidate); ok {
			events = append(events, ev)
		}
	}
}

// handleEnvelope classifies one envelope and updates parser state. Most
// envelope kinds mutate tool state without producing an event.
func (p *StreamParser) handleEnvelope(raw string) (Event, bool) {
	g := gjson.Parse(raw)

	// Envelopes carrying a followup suggestion are advisory only.
	if g.Get("followupPrompt").Exists() {
		return Event{}, false
	}

	if name := g.Get("name"); name.Exists() && g.Get("toolUseId").Exists() {
		p.finalizeToolCall()
		p.current = &pendingToolCall{
			id:   g.Get("toolUseId").String(),
			name: name.String(),
		}
		return Event{}, false
	}

	if input := g.Get("input"); input.Exists() {
		if p.current != nil {
			p.current.arguments.WriteString(input.String())
		}
		return Event{}, false
	}

	if g.Get("stop").Bool() {
		p.finalizeToolCall()
		return Event{}, false
	}

	if content := g.Get("content"); content.Exists() {
		text := decodeContent(content.String())
		if text == "" {
			return Event{}, false
		}
		if p.hasLast && text == p.lastContent {
			// The upstream occasionally re-sends the previous chunk.
			return Event{}, false
		}
		p.lastContent = text
		p.hasLast = true
		return Event{Type: EventContent, Content: text}, true
	}

	if usage := g.Get("usage"); usage.Exists() {
		return Event{Type: EventUsage, Value: usage.Float()}, true
	}

	if pct := g.Get("contextUsagePercentage"); pct.Exists() {
		return Event{Type: EventContextUsage, Value: pct.Float()}, true
	}

	return Event{}, false
}

// decodeContent fixes double-escaped sequences some upstream responses
// carry after JSON decoding.
func decodeContent(s string) string {
	if strings.Contains(s, "\\n") || strings.Contains(s, "\\t") {
		s = strings.ReplaceAll(s, "\\n", "\n")
		s = strings.ReplaceAll(s, "\\t", "\t")
	}
	return s
}

// finalizeToolCall closes the in-progress tool call, canonicalising its
// arguments. Unparsable arguments degrade to "{}" and the structural
// diagnosis is recorded so the recovery layer can tell the model what
// happened on the next turn.
func (p *StreamParser) finalizeToolCall() {
	if p.current == nil {
		return
	}
	args := strings.TrimSpace(p.current.arguments.String())
	if args == "" {
		args = "{}"
	} else if !json.Valid([]byte(args)) {
		diag := DiagnoseJSONTruncation(args)
		if diag.IsTruncated {
			p.truncations = append(p.truncations, TruncationReport{
				ToolCallID: p.current.id,
				ToolName:   p.current.name,
				Reason:     diag.Reason,
				SizeBytes:  diag.SizeBytes,
			})
		}
		args = "{}"
	}
	p.toolCalls = append(p.toolCalls, ToolCall{
		ID:        p.current.id,
		Name:      p.current.name,
		Arguments: args,
	})
	p.current = nil
}

// ToolCalls finalizes any in-progress call and returns all completed calls.
func (p *StreamParser) ToolCalls() []ToolCall {
	p.finalizeToolCall()
	return p.toolCalls
}

// Truncations returns the truncation reports collected so far.
func (p *StreamParser) Truncations() []TruncationReport {
	return p.truncations
}

// Leftover returns unconsumed buffered bytes, non-empty when the stream
// ended mid-envelope.
func (p *StreamParser) Leftover() string {
	return p.buffer
}

// FindMatchingBrace returns the index of the brace closing the object that
// opens at start, honouring strings and escapes. Returns -1 when start does
// not sit on '{' or the object never closes.
func FindMatchingBrace(text string, start int) int {
	if start < 0 || start >= len(text) || text[start] != '{' {
		return -1
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// DiagnoseJSONTruncation judges whether an unparsable JSON slice was cut
// off by the upstream rather than malformed by the model. The structural
// checks are intentionally simple: unbalanced braces or brackets, then an
// odd count of unescaped quotes.
func DiagnoseJSONTruncation(jsonStr string) Diagnosis {
	sizeBytes := len(jsonStr)
	if strings.TrimSpace(jsonStr) == "" {
		return Diagnosis{IsTruncated: false, Reason: "empty string", SizeBytes: sizeBytes}
	}

	openBraces := strings.Count(jsonStr, "{")
	closeBraces := strings.Count(jsonStr, "}")
	if openBraces > closeBraces {
		return Diagnosis{
			IsTruncated: true,
			Reason:      plural(openBraces-closeBraces, "missing %d closing brace"),
			SizeBytes:   sizeBytes,
		}
	}

	openBrackets := strings.Count(jsonStr, "[")
	closeBrackets := strings.Count(jsonStr, "]")
	if openBrackets > closeBrackets {
		return Diagnosis{
			IsTruncated: true,
			Reason:      plural(openBrackets-closeBrackets, "missing %d closing bracket"),
			SizeBytes:   sizeBytes,
		}
	}

	if countUnescapedQuotes(jsonStr)%2 != 0 {
		return Diagnosis{IsTruncated: true, Reason: "unclosed string", SizeBytes: sizeBytes}
	}

	return Diagnosis{IsTruncated: false, Reason: "malformed JSON", SizeBytes: sizeBytes}
}

func plural(n int, format string) string {
	s := fmt.Sprintf(format, n)
	if n != 1 {
		s += "s"
	}
	return s
}

func countUnescapedQuotes(s string) int {
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			count++
		}
	}
	return count
}
