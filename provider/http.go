package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// HTTPClient calls an OpenAI-compatible chat completions endpoint.
// Each Complete is a single attempt.
type HTTPClient struct {
	cfg  Config
	url  string
	http *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

// NewHTTPClient creates a chat backend client.
func NewHTTPClient(cfg Config, opts ...HTTPOption) *HTTPClient {
	if cfg.URL == "" {
		cfg.URL = DefaultGatewayURL
	}
	c := &HTTPClient{
		cfg:  cfg,
		url:  endpoint(cfg.URL, "/chat/completions"),
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the normalized endpoint.
func (c *HTTPClient) URL() string { return c.url }

// Provider implements Client.
func (c *HTTPClient) Provider() string { return "gateway" }

type chatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := chatPayload{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	body, err := postJSON(ctx, c.http, c.url, c.cfg, payload)
	if err != nil {
		return nil, NewError(c.Provider(), "complete", err, IsRetryable(err))
	}

	if !gjson.ValidBytes(body) {
		return nil, NewError(c.Provider(), "complete", ErrInvalidResponse, false)
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return nil, NewError(c.Provider(), "complete",
			fmt.Errorf("%w: choices[0].message.content", ErrMalformedResponse), false)
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		model = req.Model
	}
	usage := TokenUsage{
		InputTokens:  int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
		TotalTokens:  int(gjson.GetBytes(body, "usage.total_tokens").Int()),
	}

	return &Response{
		Content:      content.String(),
		Usage:        usage.Normalize(),
		Model:        model,
		FinishReason: gjson.GetBytes(body, "choices.0.finish_reason").String(),
		Duration:     time.Since(start),
	}, nil
}

// postJSON sends payload and returns the body of a 2xx answer. Transport and
// status failures come back wrapped in the matching sentinel. The backend
// timeout applies only when ctx carries no deadline of its own.
func postJSON(ctx context.Context, hc *http.Client, url string, cfg Config, payload any) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout())
		defer cancel()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp, body)
	}
	return body, nil
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return ctxErr
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func statusError(resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(gjson.GetBytes(body, "error.message").String())
	if msg == "" {
		msg = resp.Status
	}
	se := &StatusError{Code: resp.StatusCode, Message: msg}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, se)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %v", ErrUnavailable, se)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidRequest, se)
	}
}

var _ Client = (*HTTPClient)(nil)
