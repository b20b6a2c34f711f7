// Package truncation tracks upstream responses that arrived cut off so the
// next request in the conversation can tell the model what happened. Two
// process-wide caches back it: tool truncations keyed by tool call id, and
// content truncations keyed by a hash of the text head.
package truncation

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	// EntryTTL is how long a truncation record stays retrievable.
	EntryTTL = 30 * time.Minute

	// MaxEntries caps each cache; the oldest entry is evicted beyond it.
	MaxEntries = 1000

	// ContentHashPrefixLen is how much of the text participates in the
	// content hash. Clients may re-send a truncated assistant message with
	// trailing edits, so only the head is stable.
	ContentHashPrefixLen = 500

	// ContentHashLen is the length of the hex hash key.
	ContentHashLen = 16

	// cleanupInterval controls how often stale entries are purged.
	cleanupInterval = 5 * time.Minute
)

// Info describes why a tool call's arguments were cut off.
type Info struct {
	Reason    string
	SizeBytes int
}

// ToolEntry is a cached tool-argument truncation.
type ToolEntry struct {
	ToolCallID string
	ToolName   string
	Info       Info
	Timestamp  time.Time
}

// ContentEntry is a cached assistant-text truncation.
type ContentEntry struct {
	MessageHash string
	SizeBytes   int
	Timestamp   time.Time
}

var (
	mu             sync.Mutex
	toolEntries    = make(map[string]ToolEntry)
	contentEntries = make(map[string]ContentEntry)
	cleanupOnce    sync.Once
)

// HashContent derives the 16-hex content key from the head of text.
func HashContent(text string) string {
	if len(text) > ContentHashPrefixLen {
		text = text[:ContentHashPrefixLen]
	}
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])[:ContentHashLen]
}

// SaveTool records a tool-argument truncation under the tool call id.
func SaveTool(toolCallID, toolName string, info Info) {
	if toolCallID == "" {
		return
	}
	startCleanup()
	mu.Lock()
	defer mu.Unlock()
	evictOldestToolLocked()
	toolEntries[toolCallID] = ToolEntry{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Info:       info,
		Timestamp:  time.Now(),
	}
}

// GetTool retrieves and consumes the truncation record for a tool call id.
// The record is deleted on read so the notice is injected exactly once.
func GetTool(toolCallID string) (ToolEntry, bool) {
	mu.Lock()
	defer mu.Unlock()
	entry, ok := toolEntries[toolCallID]
	if !ok {
		return ToolEntry{}, false
	}
	delete(toolEntries, toolCallID)
	if time.Since(entry.Timestamp) > EntryTTL {
		return ToolEntry{}, false
	}
	return entry, true
}

// SaveContent records an assistant-text truncation and returns its hash key.
func SaveContent(text string) string {
	if text == "" {
		return ""
	}
	startCleanup()
	hash := HashContent(text)
	mu.Lock()
	defer mu.Unlock()
	evictOldestContentLocked()
	contentEntries[hash] = ContentEntry{
		MessageHash: hash,
		SizeBytes:   len(text),
		Timestamp:   time.Now(),
	}
	return hash
}

// GetContent retrieves and consumes the truncation record matching the head
// of text. A record whose recorded size differs from len(text) by more
// than a factor of two is treated as a digest collision and left alone.
func GetContent(text string) (ContentEntry, bool) {
	if text == "" {
		return ContentEntry{}, false
	}
	hash := HashContent(text)
	mu.Lock()
	defer mu.Unlock()
	entry, ok := contentEntries[hash]
	if !ok {
		return ContentEntry{}, false
	}
	if entry.SizeBytes > 0 && (len(text) > 2*entry.SizeBytes || 2*len(text) < entry.SizeBytes) {
		return ContentEntry{}, false
	}
	delete(contentEntries, hash)
	if time.Since(entry.Timestamp) > EntryTTL {
		return ContentEntry{}, false
	}
	return entry, true
}

// Stats reports current cache sizes.
func Stats() (toolCount, contentCount int) {
	mu.Lock()
	defer mu.Unlock()
	return len(toolEntries), len(contentEntries)
}

// Clear empties both caches. Intended for tests.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	toolEntries = make(map[string]ToolEntry)
	contentEntries = make(map[string]ContentEntry)
}

func evictOldestToolLocked() {
	for len(toolEntries) >= MaxEntries {
		oldestKey := ""
		var oldest time.Time
		for k, e := range toolEntries {
			if oldestKey == "" || e.Timestamp.Before(oldest) {
				oldestKey = k
				oldest = e.Timestamp
			}
		}
		delete(toolEntries, oldestKey)
	}
}

func evictOldestContentLocked() {
	for len(contentEntries) >= MaxEntries {
		oldestKey := ""
		var oldest time.Time
		for k, e := range contentEntries {
			if oldestKey == "" || e.Timestamp.Before(oldest) {
				oldestKey = k
				oldest = e.Timestamp
			}
		}
		delete(contentEntries, oldestKey)
	}
}

// startCleanup launches a background goroutine that periodically removes
// expired entries.
func startCleanup() {
	cleanupOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				purgeExpired()
			}
		}()
	})
}

func purgeExpired() {
	now := time.Now()
	mu.Lock()
	defer mu.Unlock()
	for k, e := range toolEntries {
		if now.Sub(e.Timestamp) > EntryTTL {
			delete(toolEntries, k)
		}
	}
	for k, e := range contentEntries {
		if now.Sub(e.Timestamp) > EntryTTL {
			delete(contentEntries, k)
		}
	}
}
