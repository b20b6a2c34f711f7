// Package registry maps client-facing Claude model names onto upstream
// CodeWhisperer model ids and serves the /v1/models catalogue.
package registry

import (
	"sort"
	"strings"
	"time"
)

// catalogue maps the model names clients send to upstream model ids.
var catalogue = map[string]string{
	"claude-sonnet-4-5": "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4":   "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-3-7-sonnet": "CLAUDE_3_7_SONNET_20250219_V1_0",
	"claude-3-5-haiku":  "CLAUDE_3_5_HAIKU_20241022_V1_0",
	"claude-opus-4-1":   "CLAUDE_OPUS_4_1_20250805_V1_0",
	"claude-opus-4-5":   "CLAUDE_OPUS_4_5_20251101_V1_0",

	// auto lets the upstream pick.
	"auto": "auto",
}

// Resolve returns the upstream model id for a client model name. Names
// already in upstream form pass through unchanged; unknown names fall
// back to the newest Sonnet so older client configs keep working.
func Resolve(name string) string {
	if upstream, ok := catalogue[name]; ok {
		return upstream
	}
	if name == "auto" || strings.Contains(name, "_V1_0") {
		return name
	}
	return catalogue["claude-sonnet-4-5"]
}

// Known reports whether the model name maps exactly, without fallback.
func Known(name string) bool {
	if _, ok := catalogue[name]; ok {
		return true
	}
	return strings.Contains(name, "_V1_0")
}

// Model is one entry of the OpenAI-shaped model list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI-shaped /v1/models response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// List returns the catalogue as an OpenAI model list, sorted by id.
func List() ModelList {
	created := time.Now().Unix()
	list := ModelList{Object: "list"}
	for name := range catalogue {
		list.Data = append(list.Data, Model{
			ID:      name,
			Object:  "model",
			Created: created,
			OwnedBy: "anthropic",
		})
	}
	sort.Slice(list.Data, func(i, j int) bool { return list.Data[i].ID < list.Data[j].ID })
	return list
}
