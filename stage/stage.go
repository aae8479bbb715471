package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/provider"
	"github.com/randalmurphal/council/truncate"
	"github.com/shopspring/decimal"
)

// Mode selects how the calls of a stage are dispatched.
type Mode int

// Modes.
const (
	Parallel Mode = iota
	Sequential
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Parallel:
		return "parallel"
	case Sequential:
		return "sequential"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Call is one model seat in a stage. Empty System or User fall back to the
// stage's shared values.
type Call struct {
	Model  model.ModelName `json:"model"`
	System string          `json:"system,omitempty"`
	User   string          `json:"user,omitempty"`
}

// CallsFor builds calls that share the stage prompt.
func CallsFor(models ...model.ModelName) []Call {
	calls := make([]Call, len(models))
	for i, m := range models {
		calls[i] = Call{Model: m}
	}
	return calls
}

// Stage is one unit of dispatch within a protocol step.
type Stage struct {
	Name  string
	Calls []Call
	Mode  Mode

	// Prompt and System are shared by calls that do not set their own.
	Prompt string
	System string

	Temperature float64
	MaxTokens   int
	// Timeout bounds each attempt of each call.
	Timeout time.Duration

	// Tracking labels.
	TaskType  string
	SessionID string
	Tier      model.Tier
}

// Request builds the gateway request for c.
func (s Stage) Request(c Call) gateway.Request {
	req := gateway.Request{
		Model:       c.Model,
		System:      c.System,
		User:        c.User,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Timeout:     s.Timeout,
	}
	if req.System == "" {
		req.System = s.System
	}
	if req.User == "" {
		req.User = s.Prompt
	}
	return req
}

// Models returns the aliases of the stage's calls, in order.
func (s Stage) Models() []model.ModelName {
	out := make([]model.ModelName, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.Model
	}
	return out
}

// ExecutionError reports a scheduling fault inside a stage, as opposed to a
// model failure.
type ExecutionError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Result is the settled outcome of a stage.
type Result struct {
	Name      string              `json:"name"`
	Mode      Mode                `json:"mode"`
	Responses []gateway.Response  `json:"responses"`
	Latency   time.Duration       `json:"latency"`
	Cost      float64             `json:"cost"`
	Usage     provider.TokenUsage `json:"usage"`

	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`

	// Skipped is set when the stage never dispatched.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	// Err is a stage-level execution error, nil for model failures.
	Err error `json:"-"`
}

// Response returns the response that answers for alias.
func (r *Result) Response(alias model.ModelName) (gateway.Response, bool) {
	if r == nil {
		return gateway.Response{}, false
	}
	for _, resp := range r.Responses {
		if resp.Requested == alias {
			return resp, true
		}
	}
	for _, resp := range r.Responses {
		if resp.Matches(alias) {
			return resp, true
		}
	}
	return gateway.Response{}, false
}

// Successful returns the successful responses in result order.
func (r *Result) Successful() []gateway.Response {
	if r == nil {
		return nil
	}
	var out []gateway.Response
	for _, resp := range r.Responses {
		if resp.Success {
			out = append(out, resp)
		}
	}
	return out
}

// OK reports whether at least one call succeeded.
func (r *Result) OK() bool {
	return r != nil && r.SuccessCount > 0
}

// Format renders every response as a markdown section for embedding in a
// later prompt. Successful outputs are cut to limit characters; a
// non-positive limit keeps them whole. Failed calls are listed with their
// error so the reader knows a perspective is missing.
func (r *Result) Format(limit int) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, resp := range r.Responses {
		if !resp.Success {
			fmt.Fprintf(&b, "### %s (FAILED)\nError: %s\n\n", resp.Requested, resp.ErrorMessage())
			continue
		}
		content := strings.TrimSpace(resp.Content)
		if limit > 0 {
			content = truncate.Embed(content, limit)
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", resp.Requested, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Skipped returns a result for a stage that was never dispatched. Every call
// is reported failed with kind and reason.
func Skipped(st Stage, kind gateway.ErrorKind, reason string) *Result {
	res := &Result{
		Name:       st.Name,
		Mode:       st.Mode,
		Skipped:    true,
		SkipReason: reason,
	}
	for _, c := range st.Calls {
		res.add(gateway.Failed(st.Request(c), kind, reason))
	}
	return res
}

func (r *Result) add(resp gateway.Response) {
	r.Responses = append(r.Responses, resp)
	r.Usage.Add(resp.Usage)
	r.Cost = decimal.NewFromFloat(r.Cost).Add(decimal.NewFromFloat(resp.Cost)).Round(6).InexactFloat64()
	if resp.Success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
}
