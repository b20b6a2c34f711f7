package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateCompletionID returns an OpenAI-style completion identifier.
func GenerateCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GenerateMessageID returns an Anthropic-style message identifier.
func GenerateMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// GenerateToolCallID returns an OpenAI-style tool call identifier with an
// 8-char random suffix.
func GenerateToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ConversationSeed is the slice of a message that participates in
// conversation identity: its role and the head of its content.
type ConversationSeed struct {
	Role    string
	Content string
}

// NewConversationSeed builds a seed from a role and arbitrary content.
// Non-string content (block lists, numbers) is JSON-serialized first, and
// only the first 100 characters of content count towards identity so a
// growing message body keeps the same id.
func NewConversationSeed(role string, content any) ConversationSeed {
	if role == "" {
		role = "unknown"
	}
	var text string
	switch v := content.(type) {
	case string:
		text = v
	case nil:
		text = ""
	default:
		if b, err := json.Marshal(v); err == nil {
			text = string(b)
		} else {
			text = fmt.Sprintf("%v", v)
		}
	}
	if len(text) > 100 {
		text = text[:100]
	}
	return ConversationSeed{Role: role, Content: text}
}

// GenerateConversationID derives a deterministic 16-char hex id from the
// first three and the last message of a conversation, so the id is stable
// while the head of the conversation is. With no messages it falls back to
// a random UUID.
func GenerateConversationID(seeds []ConversationSeed) string {
	if len(seeds) == 0 {
		return uuid.NewString()
	}

	sample := seeds
	if len(seeds) > 3 {
		sample = append(append([]ConversationSeed{}, seeds[:3]...), seeds[len(seeds)-1])
	}

	h := sha256.New()
	for _, s := range sample {
		h.Write([]byte(s.Role))
		h.Write([]byte{':'})
		h.Write([]byte(s.Content))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
