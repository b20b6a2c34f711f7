package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiroProxyAPI/internal/executor"
	"github.com/router-for-me/KiroProxyAPI/internal/parser"
	"github.com/router-for-me/KiroProxyAPI/internal/util"
)

// Anthropic wire shapes for message responses.
type anthropicMessage struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Messages serves POST /v1/messages.
func (h *Handler) Messages(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	req, err := parseAnthropicRequest(body)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	log.WithField("model", req.Model).Debugf("messages request: %d messages, %d tools, stream=%v",
		len(req.Messages), len(req.Tools), req.Stream)

	stream, err := h.Exec.Execute(c.Request.Context(), req)
	if err != nil {
		writeExecutionError(c, err)
		return
	}

	if req.Stream {
		h.streamMessages(c, req, stream)
		return
	}
	h.completeMessages(c, req, stream)
}

func (h *Handler) completeMessages(c *gin.Context, req *executor.Request, stream *executor.Stream) {
	result, err := executor.Collect(stream)
	if err != nil {
		writeExecutionError(c, err)
		return
	}

	var blocks []anthropicBlock
	if result.Content != "" || len(result.ToolCalls) == 0 {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: result.Content})
	}
	stopReason := "end_turn"
	for _, call := range result.ToolCalls {
		stopReason = "tool_use"
		blocks = append(blocks, toolUseBlock(call))
	}

	c.JSON(http.StatusOK, anthropicMessage{
		ID:         util.GenerateMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      req.Model,
		Content:    blocks,
		StopReason: stopReason,
		Usage: anthropicUsage{
			InputTokens:  (promptLength(req) + 3) / 4,
			OutputTokens: estimateTokens(result.Content),
		},
	})
}

// streamMessages emits the Anthropic SSE sequence: message_start, one
// text content block fed by content_block_delta events, tool_use blocks
// with their input as a single input_json_delta, then message_delta with
// the stop reason and message_stop.
func (h *Handler) streamMessages(c *gin.Context, req *executor.Request, stream *executor.Stream) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	emit := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	messageID := util.GenerateMessageID()
	emit("message_start", gin.H{
		"type": "message_start",
		"message": anthropicMessage{
			ID:      messageID,
			Type:    "message",
			Role:    "assistant",
			Model:   req.Model,
			Content: []anthropicBlock{},
			Usage:   anthropicUsage{InputTokens: (promptLength(req) + 3) / 4},
		},
	})
	emit("content_block_start", gin.H{
		"type":          "content_block_start",
		"index":         0,
		"content_block": anthropicBlock{Type: "text", Text: ""},
	})

	var content strings.Builder
	for {
		events, err := stream.Next()
		for _, ev := range events {
			if ev.Type != parser.EventContent {
				continue
			}
			content.WriteString(ev.Content)
			emit("content_block_delta", gin.H{
				"type":  "content_block_delta",
				"index": 0,
				"delta": gin.H{"type": "text_delta", "text": ev.Content},
			})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithField("error", err).Warn("upstream stream aborted")
			}
			break
		}
	}
	emit("content_block_stop", gin.H{"type": "content_block_stop", "index": 0})

	calls := parser.DeduplicateToolCalls(stream.Parser.ToolCalls())
	stopReason := "end_turn"
	for i, call := range calls {
		stopReason = "tool_use"
		index := i + 1
		block := toolUseBlock(call)
		block.Input = nil
		emit("content_block_start", gin.H{
			"type":          "content_block_start",
			"index":         index,
			"content_block": block,
		})
		emit("content_block_delta", gin.H{
			"type":  "content_block_delta",
			"index": index,
			"delta": gin.H{"type": "input_json_delta", "partial_json": call.Arguments},
		})
		emit("content_block_stop", gin.H{"type": "content_block_stop", "index": index})
	}

	emit("message_delta", gin.H{
		"type":  "message_delta",
		"delta": gin.H{"stop_reason": stopReason},
		"usage": gin.H{"output_tokens": estimateTokens(content.String())},
	})
	emit("message_stop", gin.H{"type": "message_stop"})

	stream.Close(content.String())
}

func toolUseBlock(call parser.ToolCall) anthropicBlock {
	id := call.ID
	if id == "" {
		id = util.GenerateToolCallID()
	}
	input := map[string]any{}
	if call.Arguments != "" {
		_ = json.Unmarshal([]byte(call.Arguments), &input)
	}
	return anthropicBlock{Type: "tool_use", ID: id, Name: call.Name, Input: input}
}
