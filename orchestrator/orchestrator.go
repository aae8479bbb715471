package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/tokens"
	"github.com/randalmurphal/council/truncate"
	"github.com/shopspring/decimal"
)

// Defaults for an Orchestrator.
const (
	DefaultDeadline    = 10 * time.Minute
	DefaultTemperature = 0.7
)

// Orchestrator runs deliberation protocols over a stage executor. It holds
// only read-only configuration and is safe for concurrent use.
type Orchestrator struct {
	exec        *stage.Executor
	gate        *gatekeeper.Gatekeeper
	roles       *model.Selector
	embed       *truncate.Embedder
	counter     tokens.Counter
	policy      RatifyPolicy
	deadline    time.Duration
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGatekeeper sets the gatekeeper consulted before the final arbiter.
func WithGatekeeper(g *gatekeeper.Gatekeeper) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.gate = g
		}
	}
}

// WithSelector sets the role to model mapping.
func WithSelector(s *model.Selector) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.roles = s
		}
	}
}

// WithEmbedder sets the per-step embed budgets.
func WithEmbedder(e *truncate.Embedder) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.embed = e
		}
	}
}

// WithRatifyPolicy sets when the Diamond pipeline ratifies.
func WithRatifyPolicy(p RatifyPolicy) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.policy = p
		}
	}
}

// WithDeadline bounds a whole protocol run. Zero disables the bound.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.deadline = d
		}
	}
}

// WithTemperature sets the sampling temperature for every call.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) {
		if t >= 0 {
			o.temperature = t
		}
	}
}

// WithCallTimeout overrides the per-attempt timeout of every step.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator over exec.
func New(exec *stage.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:        exec,
		gate:        gatekeeper.New(),
		roles:       model.NewSelector(),
		embed:       truncate.NewEmbedder(nil),
		counter:     tokens.NewFlooringCounter(),
		policy:      DefaultRatifyPolicy,
		deadline:    DefaultDeadline,
		temperature: DefaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the ratification policy.
func (o *Orchestrator) Policy() RatifyPolicy { return o.policy }

// Deadline returns the overall bound on a protocol run.
func (o *Orchestrator) Deadline() time.Duration { return o.deadline }

// Selector returns the role to model mapping.
func (o *Orchestrator) Selector() *model.Selector { return o.roles }

// Gatekeeper returns the gatekeeper.
func (o *Orchestrator) Gatekeeper() *gatekeeper.Gatekeeper { return o.gate }

func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.deadline)
}

// stageTimeout prefers the orchestrator override over a step default.
func (o *Orchestrator) stageTimeout(step time.Duration) time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return step
}

// run executes st, or settles it as canceled when ctx is already done.
func (o *Orchestrator) run(ctx context.Context, sess Session, st stage.Stage) *stage.Result {
	st.SessionID = sess.ID
	st.Tier = sess.Tier
	st.TaskType = sess.TaskType
	if st.Temperature == 0 {
		st.Temperature = o.temperature
	}
	if err := ctx.Err(); err != nil {
		o.logger.Warn("stage skipped after deadline",
			slog.String("session", sess.ID),
			slog.String("stage", st.Name))
		return stage.Skipped(st, gateway.KindCanceled, "canceled: "+err.Error())
	}
	return o.exec.Run(ctx, st)
}

// Totals aggregates cost, latency and tokens over a protocol run.
type Totals struct {
	Cost    float64       `json:"total_cost"`
	Latency time.Duration `json:"total_latency"`
	Tokens  int           `json:"total_tokens"`
}

// ledger accumulates totals and per-model usage for one run.
type ledger struct {
	usage   *model.CostTracker
	cost    decimal.Decimal
	latency time.Duration
	tokens  int
}

func newLedger() *ledger {
	return &ledger{usage: model.NewCostTracker()}
}

func (l *ledger) add(res *stage.Result) {
	if res == nil {
		return
	}
	l.cost = l.cost.Add(decimal.NewFromFloat(res.Cost))
	l.latency += res.Latency
	l.tokens += res.Usage.TotalTokens
	if res.Skipped {
		return
	}
	for _, r := range res.Responses {
		l.usage.Record(r.Model, r.Usage.InputTokens, r.Usage.OutputTokens, r.Cost, r.Success)
	}
}

func (l *ledger) totals() Totals {
	return Totals{
		Cost:    l.cost.Round(6).InexactFloat64(),
		Latency: l.latency,
		Tokens:  l.tokens,
	}
}

func (l *ledger) summary() map[model.ModelName]model.Usage {
	return l.usage.Summary()
}

// only returns the single response of a one-call stage.
func only(res *stage.Result) gateway.Response {
	if res == nil || len(res.Responses) == 0 {
		return gateway.Response{}
	}
	return res.Responses[0]
}
