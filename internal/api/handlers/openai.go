package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiroProxyAPI/internal/executor"
	"github.com/router-for-me/KiroProxyAPI/internal/parser"
	"github.com/router-for-me/KiroProxyAPI/internal/util"
)

// OpenAI wire shapes for chat completion responses.
type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type chatMessage struct {
	Role      string         `json:"role,omitempty"`
	Content   *string        `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// estimateTokens approximates a token count from text length. The
// upstream reports credit usage, not token counts, so the OpenAI usage
// block is an estimate.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func promptLength(req *executor.Request) int {
	total := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		total += len(msg.Content)
	}
	return total
}

// ChatCompletions serves POST /v1/chat/completions.
func (h *Handler) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	req, err := parseOpenAIRequest(body)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	log.WithField("model", req.Model).Debugf("chat completion request: %d messages, %d tools, stream=%v",
		len(req.Messages), len(req.Tools), req.Stream)

	stream, err := h.Exec.Execute(c.Request.Context(), req)
	if err != nil {
		writeExecutionError(c, err)
		return
	}

	if req.Stream {
		h.streamChatCompletion(c, req, stream)
		return
	}
	h.completeChatCompletion(c, req, stream)
}

func (h *Handler) completeChatCompletion(c *gin.Context, req *executor.Request, stream *executor.Stream) {
	result, err := executor.Collect(stream)
	if err != nil {
		writeExecutionError(c, err)
		return
	}

	finish := "stop"
	message := chatMessage{Role: "assistant", Content: &result.Content}
	if len(result.ToolCalls) > 0 {
		finish = "tool_calls"
		message.ToolCalls = toOpenAIToolCalls(result.ToolCalls)
	}

	prompt := (promptLength(req) + 3) / 4
	completion := estimateTokens(result.Content)
	c.JSON(http.StatusOK, chatCompletion{
		ID:      util.GenerateCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{Index: 0, Message: &message, FinishReason: &finish}},
		Usage: &chatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	})
}

func (h *Handler) streamChatCompletion(c *gin.Context, req *executor.Request, stream *executor.Stream) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	completionID := util.GenerateCompletionID()
	created := time.Now().Unix()
	chunk := func(choice chatChoice, usage *chatUsage) {
		data, err := json.Marshal(chatCompletion{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []chatChoice{choice},
			Usage:   usage,
		})
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		flusher.Flush()
	}

	chunk(chatChoice{Index: 0, Delta: &chatMessage{Role: "assistant"}}, nil)

	var content strings.Builder
	for {
		events, err := stream.Next()
		for _, ev := range events {
			if ev.Type != parser.EventContent {
				continue
			}
			content.WriteString(ev.Content)
			text := ev.Content
			chunk(chatChoice{Index: 0, Delta: &chatMessage{Content: &text}}, nil)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithField("error", err).Warn("upstream stream aborted")
			}
			break
		}
	}

	calls := stream.Parser.ToolCalls()
	if len(calls) == 0 {
		calls = parser.ParseBracketToolCalls(content.String())
	}
	calls = parser.DeduplicateToolCalls(calls)

	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
		chunk(chatChoice{Index: 0, Delta: &chatMessage{ToolCalls: toOpenAIToolCalls(calls)}}, nil)
	}

	prompt := (promptLength(req) + 3) / 4
	completion := estimateTokens(content.String())
	chunk(chatChoice{Index: 0, Delta: &chatMessage{}, FinishReason: &finish}, &chatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	})

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()

	stream.Close(content.String())
}

func toOpenAIToolCalls(calls []parser.ToolCall) []chatToolCall {
	out := make([]chatToolCall, 0, len(calls))
	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = util.GenerateToolCallID()
		}
		out = append(out, chatToolCall{
			Index: i,
			ID:    id,
			Type:  "function",
			Function: chatFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return out
}
