/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package llm sends prompts to a model provider and returns the raw
// completion text. Extraction and validation of SQL from the completion
// happen downstream; this package only handles transport.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"nlsql-agent/internal/config"
	"nlsql-agent/internal/logging"
)

// ErrorKind classifies a failed model request
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"
	KindAuth     ErrorKind = "auth"
	KindNetwork  ErrorKind = "network"
	KindProtocol ErrorKind = "protocol"
)

// RequestError is returned for any failed model request. Kind lets the
// caller map the failure to a user-facing message without parsing text.
type RequestError struct {
	Kind    ErrorKind
	Status  int // HTTP status when the server answered, 0 otherwise
	Message string
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model request failed (%s, status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("model request failed (%s): %s", e.Kind, e.Message)
}

// KindOf returns the error kind for err, or KindNetwork when err is not a
// RequestError.
func KindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return KindNetwork
}

// settings is one immutable snapshot of the provider configuration. Each
// request works from the snapshot taken when it started, so a reload mid
// request cannot mix old and new values.
type settings struct {
	provider        string // "gemini" or "ollama"
	apiKey          string // Only for Gemini
	geminiBaseURL   string
	ollamaURL       string
	model           string
	temperature     float64
	maxOutputTokens int
	timeout         time.Duration
}

func settingsFrom(cfg config.LLMConfig) settings {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return settings{
		provider:        cfg.Provider,
		apiKey:          cfg.GeminiAPIKey,
		geminiBaseURL:   strings.TrimSuffix(cfg.GeminiBaseURL, "/"),
		ollamaURL:       strings.TrimSuffix(cfg.OllamaURL, "/"),
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeout:         timeout,
	}
}

func (s settings) configured() bool {
	switch s.provider {
	case "gemini":
		return s.apiKey != "" && s.model != ""
	case "ollama":
		return s.ollamaURL != "" && s.model != ""
	default:
		return false
	}
}

// Client handles interactions with model APIs (Gemini or Ollama)
type Client struct {
	mu         sync.RWMutex
	s          settings
	httpClient *http.Client
}

// NewClient creates a new model client from the LLM configuration
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		s:          settingsFrom(cfg),
		httpClient: &http.Client{},
	}
}

// Reconfigure swaps in new provider settings, for configuration reloads.
// Requests already in flight finish with the settings they started with.
func (c *Client) Reconfigure(cfg config.LLMConfig) {
	c.mu.Lock()
	c.s = settingsFrom(cfg)
	c.mu.Unlock()
	logging.Info("model client reconfigured", "provider", cfg.Provider, "model", cfg.Model)
}

func (c *Client) snapshot() settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// IsConfigured returns whether the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.snapshot().configured()
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.snapshot().model
}

// Generate sends the prompt to the configured provider and returns the raw
// completion text. The call is bounded by the configured request timeout on
// top of whatever deadline ctx already carries.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	s := c.snapshot()
	if !s.configured() {
		return "", &RequestError{Kind: KindAuth, Message: "model client not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var (
		text string
		err  error
	)
	switch s.provider {
	case "gemini":
		text, err = c.generateWithGemini(ctx, s, prompt)
	case "ollama":
		text, err = c.generateWithOllama(ctx, s, prompt)
	default:
		return "", &RequestError{Kind: KindProtocol, Message: fmt.Sprintf("unsupported provider: %s", s.provider)}
	}

	if err != nil {
		logging.Warn("model request failed",
			"provider", s.provider,
			"model", s.model,
			"duration", time.Since(start).String(),
			"error", err.Error())
		return "", err
	}

	logging.Debug("model request completed",
		"provider", s.provider,
		"model", s.model,
		"duration", time.Since(start).String(),
		"response_chars", len(text))
	return text, nil
}

// generateWithGemini calls the Gemini generateContent REST endpoint
func (c *Client) generateWithGemini(ctx context.Context, s settings, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     s.temperature,
			MaxOutputTokens: s.maxOutputTokens,
		},
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.geminiBaseURL, s.model)
	body, err := c.post(ctx, url, reqBody, map[string]string{
		"X-goog-api-key": s.apiKey,
	})
	if err != nil {
		return "", err
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", &RequestError{Kind: KindProtocol, Message: fmt.Sprintf("failed to unmarshal response: %v", err)}
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", &RequestError{Kind: KindProtocol, Message: "no candidates in response"}
	}

	return strings.TrimSpace(geminiResp.Candidates[0].Content.Parts[0].Text), nil
}

// generateWithOllama calls Ollama's OpenAI-compatible chat endpoint
func (c *Client) generateWithOllama(ctx context.Context, s settings, prompt string) (string, error) {
	reqBody := ollamaRequest{
		Model: s.model,
		Messages: []ollamaMessage{
			{Role: "user", Content: prompt},
		},
		Stream: false,
	}

	body, err := c.post(ctx, s.ollamaURL+"/v1/chat/completions", reqBody, nil)
	if err != nil {
		return "", err
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return "", &RequestError{Kind: KindProtocol, Message: fmt.Sprintf("failed to unmarshal response: %v", err)}
	}

	if len(ollamaResp.Choices) == 0 {
		return "", &RequestError{Kind: KindProtocol, Message: "no choices in response"}
	}

	return strings.TrimSpace(ollamaResp.Choices[0].Message.Content), nil
}

// post sends a JSON request and returns the response body, classifying
// transport and HTTP failures into RequestError kinds
func (c *Client) post(ctx context.Context, url string, payload interface{}, headers map[string]string) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &RequestError{Kind: KindProtocol, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &RequestError{Kind: KindProtocol, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RequestError{Kind: KindTimeout, Message: "request timed out"}
		}
		return nil, &RequestError{Kind: KindNetwork, Message: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("failed to close response body", "error", err.Error())
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Kind: KindNetwork, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		kind := KindProtocol
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = KindAuth
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			kind = KindNetwork
		}
		return nil, &RequestError{Kind: kind, Status: resp.StatusCode, Message: truncateBody(body)}
	}

	return body, nil
}

// truncateBody keeps error payloads loggable
func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

// Gemini generateContent wire format

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// Ollama OpenAI-compatible wire format

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Choices []ollamaChoice `json:"choices"`
}

type ollamaChoice struct {
	Message ollamaMessage `json:"message"`
}
