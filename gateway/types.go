package gateway

import (
	"fmt"
	"time"

	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/provider"
)

// ErrorKind classifies a failed call.
type ErrorKind string

// Error kinds.
const (
	KindTimeout        ErrorKind = "timeout"
	KindRequestFailed  ErrorKind = "request_failed"
	KindMalformed      ErrorKind = "malformed_response"
	KindCanceled       ErrorKind = "canceled"
	KindUpstreamFailed ErrorKind = "upstream_failed"
)

// CallError describes why a call failed.
type CallError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Request is one model call. Treat it as immutable once built.
type Request struct {
	Model       model.ModelName `json:"model"`
	System      string          `json:"system,omitempty"`
	User        string          `json:"user"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	// Timeout bounds each attempt. Zero uses the client default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Response is the settled outcome of a Request.
type Response struct {
	// Model is the alias that produced the answer: the requested alias or
	// the fallback that served it.
	Model model.ModelName `json:"model"`

	// Requested is the alias the caller asked for.
	Requested model.ModelName `json:"requested"`

	Content string     `json:"content,omitempty"`
	Success bool       `json:"success"`
	Err     *CallError `json:"error,omitempty"`

	Latency time.Duration       `json:"latency"`
	Usage   provider.TokenUsage `json:"usage"`
	Cost    float64             `json:"cost"`

	// FallbackUsed is the original alias when a fallback served the call.
	FallbackUsed model.ModelName `json:"fallback_used,omitempty"`

	// Attempts counts backend calls across all hops.
	Attempts int `json:"attempts"`
}

// Failed builds a failed response for req without calling anything.
func Failed(req Request, kind ErrorKind, msg string) Response {
	return Response{
		Model:     req.Model,
		Requested: req.Model,
		Err:       &CallError{Kind: kind, Message: msg},
	}
}

// ErrorKind returns the failure kind, or "" on success.
func (r Response) ErrorKind() ErrorKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// ErrorMessage returns the failure message, or "" on success.
func (r Response) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

// Matches reports whether the response answers for alias, either directly
// or through a fallback.
func (r Response) Matches(alias model.ModelName) bool {
	return r.Model == alias || r.Requested == alias || (r.FallbackUsed != "" && r.FallbackUsed == alias)
}
