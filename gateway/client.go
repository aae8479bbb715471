package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/provider"
)

// Defaults for a Client.
const (
	DefaultMaxRetries = 2
	DefaultTimeout    = 120 * time.Second
	// maxErrorMessage bounds error text copied into a Response.
	maxErrorMessage = 100
)

// Client issues model calls through a backend with retry and fallback.
// It is safe for concurrent use.
type Client struct {
	backend        provider.Client
	fallbacks      model.FallbackChain
	pricing        atomic.Pointer[model.PricingTable]
	maxRetries     int
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithFallbacks sets the fallback chain. The chain is copied.
func WithFallbacks(chain model.FallbackChain) Option {
	return func(c *Client) { c.fallbacks = chain.Clone() }
}

// WithPricing sets the table used to price responses.
func WithPricing(t *model.PricingTable) Option {
	return func(c *Client) {
		if t != nil {
			c.pricing.Store(t)
		}
	}
}

// WithMaxRetries sets how many extra attempts a timed-out alias gets.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithDefaultTimeout sets the per-attempt timeout for requests without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client over backend. It fails if the fallback chain cycles.
func New(backend provider.Client, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("gateway: backend is required")
	}
	c := &Client{
		backend:        backend,
		fallbacks:      model.FallbackChain{},
		maxRetries:     DefaultMaxRetries,
		defaultTimeout: DefaultTimeout,
		logger:         slog.Default(),
	}
	c.pricing.Store(model.DefaultPricing())
	for _, opt := range opts {
		opt(c)
	}
	if err := c.fallbacks.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return c, nil
}

// SetPricing swaps the pricing table used for new responses.
func (c *Client) SetPricing(t *model.PricingTable) {
	if t != nil {
		c.pricing.Store(t)
	}
}

// Pricing returns the current pricing table.
func (c *Client) Pricing() *model.PricingTable {
	return c.pricing.Load()
}

// MaxRetries returns the retry budget per alias.
func (c *Client) MaxRetries() int { return c.maxRetries }

// Chain returns the aliases that would be tried for alias, in order.
func (c *Client) Chain(alias model.ModelName) []model.ModelName {
	return c.fallbacks.Resolve(alias)
}

// Call issues req and returns its settled response. Call never panics on
// backend failure and never returns a nil-like value.
func (c *Client) Call(ctx context.Context, req Request) Response {
	start := time.Now()
	chain := c.fallbacks.Resolve(req.Model)
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	attempts := 0
	fail := func(alias model.ModelName, kind ErrorKind, msg string) Response {
		resp := Failed(req, kind, msg)
		resp.Model = alias
		resp.Latency = time.Since(start)
		resp.Attempts = attempts
		if alias != req.Model {
			resp.FallbackUsed = req.Model
		}
		c.logger.Debug("model call failed",
			slog.String("model", string(req.Model)),
			slog.String("served_by", string(alias)),
			slog.String("kind", string(kind)),
			slog.Int("attempts", attempts),
			slog.String("error", msg))
		return resp
	}

hops:
	for hop, alias := range chain {
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return fail(alias, KindCanceled, "canceled: "+err.Error())
			}

			attempts++
			out, err := c.attempt(ctx, alias, req, timeout)
			if err == nil {
				return c.success(req, alias, out, start, attempts)
			}

			switch kind := c.classify(ctx, err); kind {
			case KindCanceled:
				return fail(alias, kind, "canceled: "+ctx.Err().Error())
			case KindMalformed:
				return fail(alias, kind, "Invalid response format: "+clip(err.Error()))
			case KindTimeout:
				if attempt < c.maxRetries {
					c.logger.Debug("model call timed out, retrying",
						slog.String("model", string(alias)),
						slog.Int("attempt", attempt+1))
					continue
				}
				return fail(alias, kind, fmt.Sprintf("Request timeout after %s", timeout))
			default:
				if attempt == 0 && hop+1 < len(chain) {
					c.logger.Info("model call failed, using fallback",
						slog.String("model", string(alias)),
						slog.String("fallback", string(chain[hop+1])),
						slog.String("error", clip(err.Error())))
					continue hops
				}
				return fail(alias, KindRequestFailed, "Request failed: "+clip(err.Error()))
			}
		}
	}

	return fail(req.Model, KindRequestFailed, "Max retries exceeded")
}

func (c *Client) attempt(ctx context.Context, alias model.ModelName, req Request, timeout time.Duration) (*provider.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.backend.Complete(actx, provider.Request{
		SystemPrompt: req.System,
		Messages:     []provider.Message{provider.NewTextMessage(provider.RoleUser, req.User)},
		Model:        string(alias),
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
}

func (c *Client) classify(ctx context.Context, err error) ErrorKind {
	switch {
	case ctx.Err() != nil:
		return KindCanceled
	case provider.IsTimeout(err):
		return KindTimeout
	case provider.IsMalformed(err):
		return KindMalformed
	default:
		return KindRequestFailed
	}
}

func (c *Client) success(req Request, alias model.ModelName, out *provider.Response, start time.Time, attempts int) Response {
	usage := provider.TokenUsage{}
	if out != nil {
		usage = out.Usage.Normalize()
	}
	content := ""
	if out != nil {
		content = out.Content
	}

	resp := Response{
		Model:     alias,
		Requested: req.Model,
		Content:   content,
		Success:   true,
		Latency:   time.Since(start),
		Usage:     usage,
		Cost:      c.pricing.Load().Cost(alias, usage.InputTokens, usage.OutputTokens),
		Attempts:  attempts,
	}
	if alias != req.Model {
		resp.FallbackUsed = req.Model
	}
	return resp
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxErrorMessage {
		return s
	}
	return string(r[:maxErrorMessage])
}
