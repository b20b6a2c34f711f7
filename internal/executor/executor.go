// Package executor drives one chat request end to end: truncation
// recovery over the incoming messages, payload assembly, the upstream
// HTTP call with token retry, and the parsed event stream handed back to
// the wire adapters.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	kiroauth "github.com/router-for-me/KiroProxyAPI/internal/auth/kiro"
	"github.com/router-for-me/KiroProxyAPI/internal/config"
	"github.com/router-for-me/KiroProxyAPI/internal/convert"
	"github.com/router-for-me/KiroProxyAPI/internal/kiro"
	"github.com/router-for-me/KiroProxyAPI/internal/parser"
	"github.com/router-for-me/KiroProxyAPI/internal/registry"
	"github.com/router-for-me/KiroProxyAPI/internal/truncation"
	"github.com/router-for-me/KiroProxyAPI/internal/util"
)

// streamMinValidity is how much token life a streaming request wants
// before it starts; a stale token triggers a refresh up front.
const streamMinValidity = 600 * time.Second

// Request is one chat request in unified form, produced by either wire
// adapter.
type Request struct {
	Model        string
	Messages     []convert.Message
	SystemPrompt string
	Tools        []convert.ToolInput
	Stream       bool
}

// UpstreamError carries a non-200 upstream reply so handlers can mirror
// the status to the client.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Executor owns the upstream HTTP clients and the token source.
type Executor struct {
	tokens kiroauth.TokenSource
	cfg    *config.Config

	// pooled serves non-streaming requests; streaming requests get a
	// fresh client so a client disconnect tears down the upstream socket
	// instead of returning it to a pool.
	pooled *http.Client
}

// New builds an executor over the given token source.
func New(tokens kiroauth.TokenSource, cfg *config.Config) *Executor {
	return &Executor{
		tokens: tokens,
		cfg:    cfg,
		pooled: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Stream is a live upstream response being parsed.
type Stream struct {
	Parser *parser.StreamParser
	body   io.ReadCloser
	buf    []byte
	cfg    *config.Config
}

// Next reads the next chunk off the upstream and returns the events it
// completed. io.EOF signals a clean end of stream.
func (s *Stream) Next() ([]parser.Event, error) {
	n, err := s.body.Read(s.buf)
	var events []parser.Event
	if n > 0 {
		events = s.Parser.Feed(s.buf[:n])
	}
	if err != nil {
		return events, err
	}
	return events, nil
}

// Close finalizes the stream: the upstream body is released, tool-call
// truncations are cached for the next turn, and a stream that died
// mid-envelope records a content truncation keyed by what did arrive.
// fullContent is the accumulated assistant text the caller emitted.
func (s *Stream) Close(fullContent string) {
	s.body.Close()

	if !s.cfg.TruncationRecovery {
		return
	}
	for _, report := range s.Parser.Truncations() {
		truncation.SaveTool(report.ToolCallID, report.ToolName, truncation.Info{
			Reason:    report.Reason,
			SizeBytes: report.SizeBytes,
		})
		log.Warnf("tool call %s (%s) truncated: %s", report.ToolCallID, report.ToolName, report.Reason)
	}
	if leftover := s.Parser.Leftover(); leftover != "" && fullContent != "" {
		diag := parser.DiagnoseJSONTruncation(leftover)
		if diag.IsTruncated {
			truncation.SaveContent(fullContent)
			log.Warnf("response content truncated mid-stream: %s", diag.Reason)
		}
	}
}

// ApplyTruncationRecovery rewrites messages that reference a previously
// truncated response. Tool results whose call id hit the cache get the
// limitation notice prepended; assistant text matching a cached content
// digest gets a synthetic user notice inserted after it. Cache hits are
// consumed.
func (e *Executor) ApplyTruncationRecovery(messages []convert.Message) []convert.Message {
	if !e.cfg.TruncationRecovery {
		return messages
	}

	result := make([]convert.Message, 0, len(messages))
	for _, msg := range messages {
		if len(msg.ToolResults) > 0 {
			results := make([]convert.ToolResultInput, len(msg.ToolResults))
			copy(results, msg.ToolResults)
			for i, tr := range results {
				entry, ok := truncation.GetTool(tr.ToolUseID)
				if !ok {
					continue
				}
				log.Infof("injecting truncation notice for tool call %s", tr.ToolUseID)
				results[i].Content = truncation.ToolResultNotice(entry) +
					"\n\n---\n\nOriginal tool result:\n" + tr.Content
			}
			msg.ToolResults = results
		}
		result = append(result, msg)

		if msg.Role == "assistant" && msg.Content != "" {
			if _, ok := truncation.GetContent(msg.Content); ok {
				log.Info("injecting content truncation notice after assistant message")
				result = append(result, convert.Message{
					Role:    "user",
					Content: truncation.UserNotice(),
				})
			}
		}
	}
	return result
}

// Execute sends the request upstream and returns the live stream. A 403
// forces one token refresh and a single retry.
func (e *Executor) Execute(ctx context.Context, req *Request) (*Stream, error) {
	messages := e.ApplyTruncationRecovery(req.Messages)

	modelID := registry.Resolve(req.Model)
	seeds := make([]util.ConversationSeed, 0, len(messages))
	for _, msg := range messages {
		seeds = append(seeds, util.NewConversationSeed(msg.Role, msg.Content))
	}
	conversationID := util.GenerateConversationID(seeds)

	opts := convert.Options{
		ToolDescriptionMaxLength: e.cfg.ToolDescriptionMaxLength,
		FakeReasoningEnabled:     e.cfg.FakeReasoningEnabled,
		FakeReasoningMaxTokens:   e.cfg.FakeReasoningMaxTokens,
		TruncationRecovery:       e.cfg.TruncationRecovery,
	}
	payload, err := convert.BuildPayload(messages, req.SystemPrompt, modelID, req.Tools, conversationID, e.tokens.ProfileArn(), opts)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode upstream payload: %w", err)
	}

	if req.Stream && !e.tokens.FreshForStreaming(streamMinValidity) {
		log.Debug("token not fresh enough for streaming, refreshing before request")
		if _, err := e.tokens.ForceRefresh(ctx); err != nil {
			log.WithField("error", err).Warn("pre-stream refresh failed, proceeding with current token")
		}
	}

	accessToken, err := e.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := e.post(ctx, req.Stream, accessToken, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		log.Warn("upstream returned 403, forcing token refresh and retrying once")
		accessToken, err = e.tokens.ForceRefresh(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = e.post(ctx, req.Stream, accessToken, body)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		message := "Unknown error"
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)); err == nil && len(data) > 0 {
			message = string(data)
		}
		log.WithField("status", resp.StatusCode).Errorf("upstream request failed: %s", message)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: message}
	}

	return &Stream{
		Parser: parser.NewStreamParser(),
		body:   resp.Body,
		buf:    make([]byte, 32*1024),
		cfg:    e.cfg,
	}, nil
}

func (e *Executor) post(ctx context.Context, streaming bool, accessToken string, body []byte) (*http.Response, error) {
	url := kiro.GenerateAssistantResponseURL(e.tokens.Region())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = kiro.Headers(accessToken, util.MachineFingerprint())

	client := e.pooled
	if streaming {
		// Fresh client per stream: a cancelled request must close the
		// upstream socket, not park it in the shared pool.
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	return resp, nil
}
