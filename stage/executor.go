package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/tracker"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxInFlight bounds concurrent calls in a parallel stage.
const DefaultMaxInFlight = 5

// Caller issues one model call. *gateway.Client implements it.
type Caller interface {
	Call(ctx context.Context, req gateway.Request) gateway.Response
}

// CallerFunc adapts a function to a Caller.
type CallerFunc func(ctx context.Context, req gateway.Request) gateway.Response

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, req gateway.Request) gateway.Response {
	return f(ctx, req)
}

// Executor runs stages. It is safe for concurrent use.
type Executor struct {
	caller      Caller
	maxInFlight int
	tracker     tracker.Tracker
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxInFlight bounds concurrent calls in a parallel stage.
func WithMaxInFlight(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxInFlight = n
		}
	}
}

// WithTracker sets where settled calls are reported.
func WithTracker(t tracker.Tracker) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracker = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor over caller.
func NewExecutor(caller Caller, opts ...Option) *Executor {
	e := &Executor{
		caller:      caller,
		maxInFlight: DefaultMaxInFlight,
		tracker:     tracker.Nop{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxInFlight returns the concurrency bound for parallel stages.
func (e *Executor) MaxInFlight() int { return e.maxInFlight }

// Run executes st and returns its result. Run never returns nil and never
// fails because a model failed; scheduling faults are reported in
// Result.Err.
func (e *Executor) Run(ctx context.Context, st Stage) *Result {
	start := time.Now()
	res := &Result{Name: st.Name, Mode: st.Mode}
	if len(st.Calls) == 0 {
		return res
	}

	var err error
	if st.Mode == Sequential {
		err = e.runSequential(ctx, st, res)
	} else {
		err = e.runParallel(ctx, st, res)
		res.Latency = time.Since(start)
	}
	res.Err = err

	e.logger.Debug("stage complete",
		slog.String("stage", st.Name),
		slog.String("mode", st.Mode.String()),
		slog.Int("succeeded", res.SuccessCount),
		slog.Int("failed", res.FailureCount),
		slog.Duration("latency", res.Latency),
		slog.Float64("cost", res.Cost))
	if err != nil {
		e.logger.Error("stage execution error", slog.String("stage", st.Name), slog.Any("error", err))
	}
	return res
}

func (e *Executor) runSequential(ctx context.Context, st Stage, res *Result) error {
	var firstErr error
	for _, c := range st.Calls {
		resp, err := e.call(ctx, st, c)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		res.add(resp)
		res.Latency += resp.Latency
	}
	return firstErr
}

func (e *Executor) runParallel(ctx context.Context, st Stage, res *Result) error {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.maxInFlight)

	for _, c := range st.Calls {
		c := c
		g.Go(func() error {
			resp, err := e.call(ctx, st, c)
			mu.Lock()
			res.add(resp)
			mu.Unlock()
			return err
		})
	}
	return g.Wait()
}

// call settles one call. A call dispatched after ctx is done fails as
// canceled without reaching the caller. A panic becomes a failed response
// plus an ExecutionError.
func (e *Executor) call(ctx context.Context, st Stage, c Call) (resp gateway.Response, err error) {
	req := st.Request(c)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = &ExecutionError{Stage: st.Name, Err: fmt.Errorf("call %s panicked: %v", c.Model, p)}
			resp = gateway.Failed(req, gateway.KindRequestFailed, "internal error: call panicked")
			resp.Latency = time.Since(start)
		}
		e.track(st, resp)
	}()

	if cerr := ctx.Err(); cerr != nil {
		return gateway.Failed(req, gateway.KindCanceled, "canceled: "+cerr.Error()), nil
	}
	return e.caller.Call(ctx, req), nil
}

func (e *Executor) track(st Stage, resp gateway.Response) {
	status := tracker.StatusSuccess
	switch {
	case resp.Success:
	case resp.ErrorKind() == gateway.KindTimeout:
		status = tracker.StatusTimeout
	default:
		status = tracker.StatusError
	}

	e.tracker.Track(tracker.Record{
		Timestamp:        time.Now(),
		Model:            resp.Model,
		Tier:             st.Tier,
		TaskType:         st.TaskType,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          resp.Cost,
		Duration:         resp.Latency,
		Status:           status,
		ErrorMessage:     resp.ErrorMessage(),
		SessionID:        st.SessionID,
		RequestID:        uuid.NewString(),
	})
}

var _ Caller = (*gateway.Client)(nil)
