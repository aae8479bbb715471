package stage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/provider"
	"github.com/randalmurphal/council/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers by alias; aliases in fail fail with RequestFailed.
func scripted(fail map[model.ModelName]bool, delay time.Duration) CallerFunc {
	return func(ctx context.Context, req gateway.Request) gateway.Response {
		if delay > 0 {
			time.Sleep(delay)
		}
		if fail[req.Model] {
			return gateway.Failed(req, gateway.KindRequestFailed, "Request failed: boom")
		}
		return gateway.Response{
			Model:     req.Model,
			Requested: req.Model,
			Content:   "answer from " + string(req.Model) + ": " + req.User,
			Success:   true,
			Latency:   10 * time.Millisecond,
			Usage:     provider.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
			Cost:      0.001,
		}
	}
}

var three = []model.ModelName{model.ModelDeepSeekV3, model.ModelGeminiFlash, model.ModelClaudeSonnet}

func TestRun_ParallelPartialFailure(t *testing.T) {
	tests := []struct {
		name string
		fail map[model.ModelName]bool
		want int
	}{
		{"all succeed", nil, 3},
		{"one fails", map[model.ModelName]bool{model.ModelGeminiFlash: true}, 2},
		{"all fail", map[model.ModelName]bool{model.ModelDeepSeekV3: true, model.ModelGeminiFlash: true, model.ModelClaudeSonnet: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewExecutor(scripted(tt.fail, 0))
			res := exec.Run(context.Background(), Stage{Name: "deliberation", Mode: Parallel, Prompt: "q", Calls: CallsFor(three...)})

			require.Len(t, res.Responses, 3)
			assert.Equal(t, tt.want, res.SuccessCount)
			assert.Equal(t, 3-tt.want, res.FailureCount)
			assert.NoError(t, res.Err)
			assert.InDelta(t, 0.001*float64(tt.want), res.Cost, 1e-9)
			for _, m := range three {
				_, ok := res.Response(m)
				assert.True(t, ok, "missing response for %s", m)
			}
		})
	}
}

func TestRun_ParallelBoundsInFlight(t *testing.T) {
	var cur, peak atomic.Int32
	caller := CallerFunc(func(ctx context.Context, req gateway.Request) gateway.Response {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return gateway.Response{Model: req.Model, Requested: req.Model, Success: true}
	})

	calls := make([]Call, 8)
	for i := range calls {
		calls[i] = Call{Model: model.ModelName("m" + string(rune('a'+i)))}
	}
	res := NewExecutor(caller, WithMaxInFlight(2)).Run(context.Background(), Stage{Name: "wide", Calls: calls})

	assert.Equal(t, 8, res.SuccessCount)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_ParallelLatencyIsWallClock(t *testing.T) {
	res := NewExecutor(scripted(nil, 50*time.Millisecond)).Run(context.Background(),
		Stage{Name: "ctx", Calls: CallsFor(three...)})

	assert.GreaterOrEqual(t, res.Latency, 50*time.Millisecond)
	assert.Less(t, res.Latency, 140*time.Millisecond)
}

func TestRun_SequentialKeepsOrderAndContinues(t *testing.T) {
	var order []model.ModelName
	var mu sync.Mutex
	inner := scripted(map[model.ModelName]bool{model.ModelDeepSeekV3: true}, 0)
	caller := CallerFunc(func(ctx context.Context, req gateway.Request) gateway.Response {
		mu.Lock()
		order = append(order, req.Model)
		mu.Unlock()
		return inner(ctx, req)
	})

	res := NewExecutor(caller).Run(context.Background(), Stage{Name: "seq", Mode: Sequential, Prompt: "p", Calls: CallsFor(three...)})

	assert.Equal(t, three, order)
	require.Len(t, res.Responses, 3)
	for i, m := range three {
		assert.Equal(t, m, res.Responses[i].Requested)
	}
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 20*time.Millisecond, res.Latency)
}

func TestRun_CallOverrides(t *testing.T) {
	var got []gateway.Request
	var mu sync.Mutex
	caller := CallerFunc(func(ctx context.Context, req gateway.Request) gateway.Response {
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		return gateway.Response{Model: req.Model, Requested: req.Model, Success: true}
	})

	st := Stage{
		Name:        "s",
		Mode:        Sequential,
		Prompt:      "shared",
		System:      "sys",
		Temperature: 0.3,
		MaxTokens:   256,
		Timeout:     time.Second,
		Calls: []Call{
			{Model: model.ModelClaudeSonnet},
			{Model: model.ModelGeminiPro, System: "own sys", User: "own user"},
		},
	}
	NewExecutor(caller).Run(context.Background(), st)

	require.Len(t, got, 2)
	assert.Equal(t, gateway.Request{Model: model.ModelClaudeSonnet, System: "sys", User: "shared", Temperature: 0.3, MaxTokens: 256, Timeout: time.Second}, got[0])
	assert.Equal(t, "own sys", got[1].System)
	assert.Equal(t, "own user", got[1].User)
}

func TestRun_PanicIsExecutionError(t *testing.T) {
	inner := scripted(nil, 0)
	caller := CallerFunc(func(ctx context.Context, req gateway.Request) gateway.Response {
		if req.Model == model.ModelGeminiFlash {
			panic("scheduler bug")
		}
		return inner(ctx, req)
	})

	for _, mode := range []Mode{Parallel, Sequential} {
		t.Run(mode.String(), func(t *testing.T) {
			res := NewExecutor(caller).Run(context.Background(), Stage{Name: "deliberation", Mode: mode, Calls: CallsFor(three...)})

			require.Len(t, res.Responses, 3)
			assert.Equal(t, 2, res.SuccessCount)

			var execErr *ExecutionError
			require.True(t, errors.As(res.Err, &execErr))
			assert.Equal(t, "deliberation", execErr.Stage)
			assert.Contains(t, execErr.Error(), "panicked")

			resp, ok := res.Response(model.ModelGeminiFlash)
			require.True(t, ok)
			assert.Equal(t, gateway.KindRequestFailed, resp.ErrorKind())
		})
	}
}

func TestRun_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	caller := CallerFunc(func(ctx context.Context, req gateway.Request) gateway.Response {
		calls.Add(1)
		return gateway.Response{Model: req.Model, Requested: req.Model, Success: true}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewExecutor(caller).Run(ctx, Stage{Name: "late", Calls: CallsFor(three...)})

	assert.Zero(t, calls.Load())
	require.Len(t, res.Responses, 3)
	assert.Equal(t, 3, res.FailureCount)
	for _, r := range res.Responses {
		assert.Equal(t, gateway.KindCanceled, r.ErrorKind())
	}
}

func TestRun_Tracks(t *testing.T) {
	var mu sync.Mutex
	var records []tracker.Record
	tr := tracker.Func(func(r tracker.Record) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	})

	caller := CallerFunc(func(ctx context.Context, req gateway.Request) gateway.Response {
		if req.Model == model.ModelGeminiFlash {
			return gateway.Failed(req, gateway.KindTimeout, "Request timeout after 1s")
		}
		return scripted(nil, 0)(ctx, req)
	})

	NewExecutor(caller, WithTracker(tr)).Run(context.Background(), Stage{
		Name: "s", Calls: CallsFor(three...), TaskType: "diamond", SessionID: "sess-1", Tier: model.TierFull,
	})

	require.Len(t, records, 3)
	ids := map[string]bool{}
	for _, r := range records {
		assert.Equal(t, "diamond", r.TaskType)
		assert.Equal(t, "sess-1", r.SessionID)
		assert.Equal(t, model.TierFull, r.Tier)
		assert.NotEmpty(t, r.RequestID)
		ids[r.RequestID] = true
		if r.Model == model.ModelGeminiFlash {
			assert.Equal(t, tracker.StatusTimeout, r.Status)
		} else {
			assert.Equal(t, tracker.StatusSuccess, r.Status)
			assert.Equal(t, 15, r.TotalTokens)
		}
	}
	assert.Len(t, ids, 3)
}

func TestRun_Empty(t *testing.T) {
	res := NewExecutor(scripted(nil, 0)).Run(context.Background(), Stage{Name: "none"})
	assert.Empty(t, res.Responses)
	assert.False(t, res.OK())
}

func TestSkipped(t *testing.T) {
	st := Stage{Name: "auditor", Mode: Sequential, Calls: CallsFor(model.ModelDeepSeekV3)}
	res := Skipped(st, gateway.KindUpstreamFailed, "upstream step failed")

	assert.True(t, res.Skipped)
	assert.Equal(t, 1, res.FailureCount)
	resp, ok := res.Response(model.ModelDeepSeekV3)
	require.True(t, ok)
	assert.Equal(t, gateway.KindUpstreamFailed, resp.ErrorKind())
	assert.Equal(t, "upstream step failed", resp.ErrorMessage())
}

func TestFormat(t *testing.T) {
	res := NewExecutor(scripted(map[model.ModelName]bool{model.ModelGeminiFlash: true}, 0)).Run(context.Background(),
		Stage{Name: "s", Mode: Sequential, Prompt: strings.Repeat("x", 100), Calls: CallsFor(three...)})

	out := res.Format(40)
	assert.Contains(t, out, "### deepseek-v3\n")
	assert.Contains(t, out, "### claude-sonnet\n")
	assert.Contains(t, out, "### gemini-flash (FAILED)\nError: Request failed: boom")
	assert.Contains(t, out, "...[truncated]")
	assert.False(t, strings.HasSuffix(out, "\n"))

	var empty *Result
	assert.Empty(t, empty.Format(10))
}

func TestResponse_FallbackLookup(t *testing.T) {
	res := &Result{}
	res.add(gateway.Response{Model: model.ModelGeminiFlashFallback, Requested: model.ModelGeminiFlash, FallbackUsed: model.ModelGeminiFlash, Success: true})

	resp, ok := res.Response(model.ModelGeminiFlash)
	require.True(t, ok)
	assert.Equal(t, model.ModelGeminiFlashFallback, resp.Model)

	_, ok = res.Response(model.ModelOpusSynthesis)
	assert.False(t, ok)
}
