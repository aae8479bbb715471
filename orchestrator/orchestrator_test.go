package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/randalmurphal/council/provider"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/truncate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler func(ctx context.Context, req provider.Request) (*provider.Response, error)

func answer(content string) (*provider.Response, error) {
	return &provider.Response{
		Content: content,
		Usage:   provider.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}, nil
}

// byModel answers each alias with a fixed text; unknown aliases get a
// generic answer.
func byModel(answers map[model.ModelName]string) handler {
	return func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		if text, ok := answers[model.ModelName(req.Model)]; ok {
			return answer(text)
		}
		return answer("analysis from " + req.Model)
	}
}

func failing(h handler, aliases ...model.ModelName) handler {
	return func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		for _, a := range aliases {
			if model.ModelName(req.Model) == a {
				return nil, provider.NewError("mock", "complete", provider.ErrUnavailable, true)
			}
		}
		return h(ctx, req)
	}
}

func newHarness(t *testing.T, h handler, opts ...Option) (*Orchestrator, *provider.MockClient) {
	t.Helper()
	mock := provider.NewMockClient("").WithCompleteFunc(h)
	gw, err := gateway.New(mock, gateway.WithMaxRetries(0))
	require.NoError(t, err)
	return New(stage.NewExecutor(gw), opts...), mock
}

func session(spend float64) Session {
	s := NewSession(model.TierFull, budget.Snapshot{MonthlyBudget: 100, MonthlySpend: spend})
	s.ID = "test-session"
	return s
}

const strategyQuery = "should we use PostgreSQL or MongoDB"

// =============================================================================
// Diamond
// =============================================================================

func TestDiamond_RatifiesConditionalSynthesis(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelKimiResearcher: "cost view: postgres is cheaper",
		model.ModelGeminiPro:      "Mostly sound. Recommendation: CONDITIONAL on load tests.",
		model.ModelOpusSynthesis:  "Final decree: APPROVED. Phase 1 provision.",
	}))

	res := orch.Diamond(context.Background(), session(30), strategyQuery, "")

	assert.Equal(t, 2, res.Context.SuccessCount)
	assert.Equal(t, 3, res.Deliberation.SuccessCount)
	assert.Equal(t, 1, res.Synthesis.SuccessCount)
	require.NotNil(t, res.Ratification)
	assert.True(t, res.Ratified)
	assert.Equal(t, parser.VerdictConditional, res.SynthesisVerdict)
	assert.Equal(t, parser.VerdictApproved, res.Verdict)
	assert.Contains(t, res.Decision, "Final decree")
	require.NotNil(t, res.Gatekeeper)
	assert.Equal(t, gatekeeper.Invoke, res.Gatekeeper.Decision)
	assert.Len(t, res.Stages(), 4)

	assert.Equal(t, 7, mock.CallCount())
	assert.Equal(t, 1, mock.CallsFor(string(model.ModelOpusSynthesis)))

	for _, req := range mock.Requests() {
		if req.Model == string(model.ModelDeepSeekV3) {
			assert.Contains(t, req.UserText(), "cost view: postgres is cheaper")
			assert.Contains(t, req.SystemPrompt, "auditor")
		}
	}

	assert.Equal(t, 7*150, res.Tokens)
	assert.Len(t, res.Usage, 7)
	assert.Greater(t, res.Cost, 0.0)
}

func TestDiamond_ContextFailureStillDeliberates(t *testing.T) {
	h := failing(byModel(map[model.ModelName]string{model.ModelGeminiPro: "NEEDS_DEBATE"}),
		model.ModelKimiResearcher, model.ModelPerplexityOnline)
	orch, mock := newHarness(t, h, WithRatifyPolicy(RatifyNever))

	res := orch.Diamond(context.Background(), session(0), strategyQuery, "")

	require.NotNil(t, res)
	assert.Equal(t, 0, res.Context.SuccessCount)
	assert.Equal(t, 2, res.Context.FailureCount)
	assert.Equal(t, 3, res.Deliberation.SuccessCount)
	assert.Equal(t, parser.VerdictConditional, res.Verdict)
	assert.Nil(t, res.Ratification)

	for _, req := range mock.Requests() {
		if req.Model == string(model.ModelGeminiFlash) {
			assert.Contains(t, req.UserText(), "(FAILED)")
		}
	}
}

func TestDiamond_RatificationPolicy(t *testing.T) {
	tests := []struct {
		name       string
		policy     RatifyPolicy
		synthesis  string
		query      string
		spend      float64
		wantRatify bool
		wantGate   gatekeeper.Decision
		wantReason string
	}{
		{
			name:       "conditional skips approved synthesis",
			policy:     RatifyConditional,
			synthesis:  "All good. APPROVED",
			query:      strategyQuery,
			wantGate:   gatekeeper.Invoke,
			wantReason: "synthesis approved",
		},
		{
			name:       "conditional respects gatekeeper skip",
			policy:     RatifyConditional,
			synthesis:  "REJECTED as written",
			query:      "fix this syntax error",
			wantGate:   gatekeeper.Skip,
			wantReason: "gatekeeper SKIP",
		},
		{
			name:       "conditional respects budget block",
			policy:     RatifyConditional,
			synthesis:  "CONDITIONAL",
			query:      strategyQuery,
			spend:      99.60,
			wantGate:   gatekeeper.BudgetBlock,
			wantReason: "gatekeeper BUDGET_BLOCK",
		},
		{
			name:       "always overrides gatekeeper",
			policy:     RatifyAlways,
			synthesis:  "APPROVED",
			query:      strategyQuery,
			spend:      99.60,
			wantRatify: true,
			wantGate:   gatekeeper.BudgetBlock,
		},
		{
			name:       "never",
			policy:     RatifyNever,
			synthesis:  "REJECTED",
			query:      strategyQuery,
			wantReason: "ratification disabled by policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch, mock := newHarness(t, byModel(map[model.ModelName]string{model.ModelGeminiPro: tt.synthesis}),
				WithRatifyPolicy(tt.policy))

			res := orch.Diamond(context.Background(), session(tt.spend), tt.query, "")

			assert.Equal(t, tt.wantRatify, res.Ratified)
			if tt.wantRatify {
				assert.Equal(t, 1, mock.CallsFor(string(model.ModelOpusSynthesis)))
			} else {
				assert.Zero(t, mock.CallsFor(string(model.ModelOpusSynthesis)))
				assert.Contains(t, res.RatifyReason, tt.wantReason)
				assert.Equal(t, res.SynthesisVerdict, res.Verdict)
			}
			if tt.wantGate == "" {
				assert.Nil(t, res.Gatekeeper)
			} else {
				require.NotNil(t, res.Gatekeeper)
				assert.Equal(t, tt.wantGate, res.Gatekeeper.Decision)
			}
		})
	}
}

func TestDiamond_BudgetBlockRecommendsSubstitute(t *testing.T) {
	orch, _ := newHarness(t, byModel(map[model.ModelName]string{model.ModelGeminiPro: "CONDITIONAL"}))

	res := orch.Diamond(context.Background(), session(99.60), strategyQuery, "")

	assert.False(t, res.Ratified)
	assert.Equal(t, model.ModelGeminiPro, res.Substitute)
}

func TestDiamondLite(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{model.ModelGeminiPro: "REJECTED"}),
		WithRatifyPolicy(RatifyAlways))

	res := orch.DiamondLite(context.Background(), Session{Budget: budget.Snapshot{MonthlyBudget: 100}}, strategyQuery, "")

	assert.True(t, res.Lite)
	assert.Equal(t, model.TierLite, res.Tier)
	assert.Len(t, res.Context.Responses, 1)
	assert.Len(t, res.Deliberation.Responses, 2)
	assert.False(t, res.Ratified)
	assert.Nil(t, res.Ratification)
	assert.Equal(t, parser.VerdictRejected, res.Verdict)
	assert.Equal(t, 4, mock.CallCount())
	assert.NotEmpty(t, res.SessionID)
}

func TestDiamond_DeadlineCancelsRemainingStages(t *testing.T) {
	slow := func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	orch, mock := newHarness(t, slow, WithDeadline(50*time.Millisecond))

	start := time.Now()
	res := orch.Diamond(context.Background(), session(0), strategyQuery, "")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 2, mock.CallCount())
	for _, r := range res.Context.Responses {
		assert.Equal(t, gateway.KindCanceled, r.ErrorKind())
	}
	assert.True(t, res.Deliberation.Skipped)
	assert.Equal(t, 3, res.Deliberation.FailureCount)
	assert.True(t, res.Synthesis.Skipped)
	assert.Nil(t, res.Ratification)
	assert.Equal(t, parser.VerdictUnclear, res.Verdict)
}

// =============================================================================
// Debate
// =============================================================================

const judgeOutput = `## Decision
Use PostgreSQL.

## Rationale
Relational data.

## Risks
Migration effort.

## Implementation Plan
1. Provision
2. Migrate

Verdict: APPROVED`

func TestDebate_FullRun(t *testing.T) {
	proposal := strings.Repeat("p", 3000)
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelGeminiArchitect: proposal,
		model.ModelDeepSeekV3:      strings.Repeat("c", 3000),
		model.ModelKimiResearcher:  "context analysis",
		model.ModelOpusSynthesis:   judgeOutput,
	}))

	res := orch.Debate(context.Background(), session(10), "design the billing system architecture", "security", "")

	require.True(t, res.Succeeded())
	assert.Equal(t, model.ModelOpusSynthesis, res.JudgeModel)
	assert.Equal(t, parser.VerdictApproved, res.Verdict)
	assert.Equal(t, "Use PostgreSQL.", res.Decree.Decision)
	assert.Equal(t, "Migration effort.", res.Decree.Risks)
	assert.Equal(t, "1. Provision\n2. Migrate\n\nVerdict: APPROVED", res.Decree.ImplementationPlan)
	assert.Len(t, res.Steps, 4)
	assert.Equal(t, 4, mock.CallCount())

	reqs := mock.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, string(model.ModelGeminiArchitect), reqs[0].Model)
	assert.Contains(t, reqs[0].UserText(), "security")

	auditor := reqs[1].UserText()
	assert.Contains(t, auditor, strings.Repeat("p", 1500-len(truncate.EmbedSuffix))+truncate.EmbedSuffix)
	assert.NotContains(t, auditor, strings.Repeat("p", 1501))

	contextualist := reqs[2].UserText()
	assert.Contains(t, contextualist, strings.Repeat("p", 800-len(truncate.EmbedSuffix))+truncate.EmbedSuffix)
	assert.NotContains(t, contextualist, strings.Repeat("p", 801))
	assert.NotContains(t, contextualist, strings.Repeat("c", 801))

	judge := reqs[3].UserText()
	assert.NotContains(t, judge, strings.Repeat("p", 601))
	assert.Contains(t, judge, "context analysis")
}

func TestDebate_ArchitectFailureSkipsRest(t *testing.T) {
	orch, mock := newHarness(t, failing(byModel(nil), model.ModelGeminiArchitect))

	res := orch.Debate(context.Background(), session(0), "design a cache", "", "")

	assert.Equal(t, 1, mock.CallCount())
	assert.Equal(t, gateway.KindRequestFailed, res.Architect.ErrorKind())
	for _, r := range []gateway.Response{res.Auditor, res.Contextualist, res.Judge} {
		assert.False(t, r.Success)
		assert.Equal(t, gateway.KindUpstreamFailed, r.ErrorKind())
		assert.Equal(t, UpstreamFailed, r.ErrorMessage())
	}
	assert.Equal(t, model.ModelDeepSeekV3, res.Auditor.Requested)
	assert.Equal(t, parser.VerdictUnclear, res.Verdict)
	assert.False(t, res.Succeeded())
	assert.Len(t, res.Steps, 4)
}

func TestDebate_GatekeeperSubstitutesJudge(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{model.ModelGeminiPro: judgeOutput}))

	res := orch.Debate(context.Background(), session(99.60), "design the billing system architecture", "", "")

	require.NotNil(t, res.Gatekeeper)
	assert.Equal(t, gatekeeper.BudgetBlock, res.Gatekeeper.Decision)
	assert.Equal(t, model.ModelGeminiPro, res.JudgeModel)
	assert.Zero(t, mock.CallsFor(string(model.ModelOpusSynthesis)))
	assert.Equal(t, "Use PostgreSQL.", res.Decree.Decision)
}

func TestDebate_AuditorFailureContinues(t *testing.T) {
	orch, _ := newHarness(t, failing(byModel(map[model.ModelName]string{model.ModelOpusSynthesis: judgeOutput}), model.ModelDeepSeekV3))

	res := orch.Debate(context.Background(), session(0), "should we adopt a monorepo", "", "")

	assert.False(t, res.Auditor.Success)
	assert.True(t, res.Contextualist.Success)
	assert.True(t, res.Judge.Success)
}

// =============================================================================
// Brainstorm
// =============================================================================

func TestBrainstorm_Synthesizes(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelKimiResearcher: "1. cache results\n2. batch writes",
		model.ModelDeepSeekV3:     `["shard by tenant"]`,
		model.ModelGeminiFlash:    "- queue work",
		model.ModelClaudeSonnet:   "1. Cache results - cheap\n2. Queue work - smooths load",
	}))

	res := orch.Brainstorm(context.Background(), session(0), "ways to cut latency", 5)

	assert.Equal(t, 4, mock.CallCount())
	assert.Len(t, res.RawIdeas, 4)
	assert.Equal(t, Idea{Text: "cache results", Source: model.ModelKimiResearcher}, res.RawIdeas[0])
	assert.True(t, res.Synthesized)
	assert.Equal(t, []string{"Cache results - cheap", "Queue work - smooths load"}, res.Ideas)

	last := mock.LastCall()
	require.NotNil(t, last)
	assert.Contains(t, last.UserText(), "shard by tenant (deepseek-v3)")
}

func TestBrainstorm_SynthesisFailureReturnsRawIdeas(t *testing.T) {
	orch, _ := newHarness(t, failing(byModel(map[model.ModelName]string{
		model.ModelKimiResearcher: "1. a\n2. b\n3. c",
		model.ModelDeepSeekV3:     "1. d",
	}), model.ModelClaudeSonnet, model.ModelGeminiFlash))

	res := orch.Brainstorm(context.Background(), session(0), "topic", 3)

	assert.False(t, res.Synthesized)
	assert.Equal(t, []string{"a", "b", "c"}, res.Ideas)
	assert.Equal(t, 1, res.Generation.FailureCount)
}

func TestBrainstorm_NoIdeasSkipsSynthesis(t *testing.T) {
	orch, mock := newHarness(t, failing(byModel(nil), BrainstormModels...))

	res := orch.Brainstorm(context.Background(), session(0), "topic", 0)

	assert.Equal(t, 3, mock.CallCount())
	assert.True(t, res.Synthesis.Skipped)
	assert.Empty(t, res.Ideas)
}

// =============================================================================
// Refine
// =============================================================================

var goodRound = "Improved plan: " + strings.Repeat("detail ", 10) + "One concern remains about retries."

func TestRefine_AllRoundsAccepted(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelKimiSynthesis: "Draft: " + strings.Repeat("step ", 12),
		model.ModelClaudeSonnet:  goodRound,
		model.ModelOpusSynthesis: "Final: " + goodRound,
	}))

	res := orch.Refine(context.Background(), session(10), "design a scraper pipeline", "")

	assert.True(t, res.Completed)
	assert.False(t, res.RolledBack)
	assert.Len(t, res.Rounds, 3)
	assert.Equal(t, "Final: "+goodRound, res.Output)
	assert.Equal(t, 1, mock.CallsFor(string(model.ModelOpusSynthesis)))
	require.NotNil(t, res.Gatekeeper)
	assert.Equal(t, gatekeeper.Invoke, res.Gatekeeper.Decision)
}

func TestRefine_QualityGateRollsBack(t *testing.T) {
	draft := "Draft: " + strings.Repeat("step ", 12)
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelKimiSynthesis: draft,
		model.ModelClaudeSonnet:  "looks good",
	}))

	res := orch.Refine(context.Background(), session(10), "design a scraper pipeline", "")

	assert.True(t, res.RolledBack)
	assert.False(t, res.Completed)
	assert.Equal(t, draft, res.Output)
	assert.Len(t, res.Rounds, 2)
	assert.False(t, res.Rounds[1].Accepted)
	assert.Contains(t, res.Error, "too short")
	assert.Zero(t, mock.CallsFor(string(model.ModelOpusSynthesis)))
}

func TestRefine_RoundFailureKeepsInput(t *testing.T) {
	orch, _ := newHarness(t, failing(byModel(nil), model.ModelKimiSynthesis))

	res := orch.Refine(context.Background(), session(10), "original text", "")

	assert.True(t, res.RolledBack)
	assert.Equal(t, "original text", res.Output)
	assert.Contains(t, res.Error, "round 1 failed")
}

func TestRefine_GuardedRoundSubstitutes(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelKimiSynthesis: "Draft: " + strings.Repeat("step ", 12),
		model.ModelClaudeSonnet:  goodRound,
		model.ModelGeminiPro:     "Polished: " + goodRound,
	}))

	res := orch.Refine(context.Background(), session(99.60), "design a scraper pipeline", "")

	assert.True(t, res.Completed)
	assert.Equal(t, model.ModelGeminiPro, res.Rounds[2].Model)
	assert.Zero(t, mock.CallsFor(string(model.ModelOpusSynthesis)))
}

func TestCheckRefinement(t *testing.T) {
	long := strings.Repeat("x", 60)
	tests := []struct {
		name   string
		output string
		round  int
		want   bool
	}{
		{"empty", "", 1, false},
		{"short", "too short", 1, false},
		{"first round needs no critique", long, 1, true},
		{"later round needs critique", long, 2, false},
		{"later round with critique", long + " however retries", 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := CheckRefinement(tt.output, tt.round)
			if got != tt.want {
				t.Errorf("CheckRefinement() = %v (%s), want %v", got, reason, tt.want)
			}
		})
	}
}

// =============================================================================
// Policy
// =============================================================================

func TestParseRatifyPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RatifyPolicy
		wantErr bool
	}{
		{"", RatifyConditional, false},
		{"ALWAYS", RatifyAlways, false},
		{" never ", RatifyNever, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRatifyPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRatifyPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}

	assert.True(t, RatifyConditional.Wants(parser.VerdictUnclear))
	assert.False(t, RatifyConditional.Wants(parser.VerdictApproved))
	assert.True(t, RatifyAlways.Wants(parser.VerdictApproved))
	assert.False(t, RatifyNever.Wants(parser.VerdictRejected))
}

func TestNewSessionID(t *testing.T) {
	t.Setenv(SessionEnv, "pinned")
	assert.Equal(t, "pinned", NewSessionID())

	t.Setenv(SessionEnv, "")
	assert.Len(t, NewSessionID(), 36)
}
