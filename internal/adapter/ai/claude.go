// Package ai implements the LLM client used by the analysis pipeline.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/observability"
)

const anthropicVersion = "2023-06-01"

// ClaudeClient calls the Anthropic messages endpoint. Each Complete call is
// stateless; conversation continuity is the caller's session_id concern.
type ClaudeClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

// NewClaudeClient builds the client from config. The HTTP client timeout is
// the per-attempt budget; retries add to wall time up to the backoff cap.
func NewClaudeClient(cfg config.Config, log *slog.Logger) *ClaudeClient {
	return &ClaudeClient{
		httpClient:  &http.Client{Timeout: cfg.LLMTimeout},
		baseURL:     cfg.ClaudeBaseURL,
		apiKey:      cfg.ClaudeAPIKey,
		model:       cfg.ClaudeModel,
		maxTokens:   cfg.ClaudeMaxTokens,
		temperature: cfg.ClaudeTemperature,
		log:         log,
	}
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Metadata    *claudeMetadata `json:"metadata,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one completion request. Rate limits and 5xx responses are
// retried with exponential backoff; an empty completion is a semantic
// failure the caller surfaces as "analysis failed".
func (c *ClaudeClient) Complete(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	if c.apiKey == "" {
		return domain.LLMResponse{}, fmt.Errorf("op=ai.Complete: %w: missing API key", domain.ErrUpstreamUnavailable)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	payload := claudeRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      req.SystemMessage,
		Messages:    []claudeMessage{{Role: "user", Content: req.UserMessage}},
	}
	if req.SessionID != "" {
		payload.Metadata = &claudeMetadata{UserID: req.SessionID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.LLMResponse{}, fmt.Errorf("op=ai.Complete: %w", err)
	}

	start := time.Now()
	var out domain.LLMResponse
	operation := func() error {
		var opErr error
		out, opErr = c.doOnce(ctx, body)
		return opErr
	}
	bo := backoff.WithContext(newBackoff(), ctx)
	err = backoff.Retry(operation, bo)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.LLMRequestsTotal.WithLabelValues(c.model, outcome).Inc()
	observability.LLMRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.LLMResponse{}, err
	}
	return out, nil
}

func (c *ClaudeClient) doOnce(ctx context.Context, body []byte) (domain.LLMResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return domain.LLMResponse{}, backoff.Permanent(fmt.Errorf("op=ai.doOnce: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.LLMResponse{}, fmt.Errorf("op=ai.doOnce: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.LLMResponse{}, fmt.Errorf("op=ai.doOnce: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.log.Warn("llm transient failure, retrying", slog.Int("status", resp.StatusCode))
		return domain.LLMResponse{}, fmt.Errorf("op=ai.doOnce: %w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return domain.LLMResponse{}, backoff.Permanent(fmt.Errorf("op=ai.doOnce: %w: status %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, truncate(string(raw), 200)))
	}

	var parsed claudeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.LLMResponse{}, backoff.Permanent(fmt.Errorf("op=ai.doOnce: %w", err))
	}
	if parsed.Error != nil {
		return domain.LLMResponse{}, backoff.Permanent(fmt.Errorf("op=ai.doOnce: %w: %s", domain.ErrUpstreamSemantic, parsed.Error.Message))
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return domain.LLMResponse{}, backoff.Permanent(fmt.Errorf("op=ai.doOnce: %w: empty completion", domain.ErrUpstreamSemantic))
	}
	model := parsed.Model
	if model == "" {
		model = c.model
	}
	tokens := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
	out := domain.LLMResponse{Content: content, ModelUsed: model}
	if tokens > 0 {
		out.TokensUsed = &tokens
	}
	return out, nil
}

func newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 45 * time.Second
	return bo
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ domain.LLMClient = (*ClaudeClient)(nil)
