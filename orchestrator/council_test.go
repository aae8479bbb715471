package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/events"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCouncil(t *testing.T, h handler, src budget.Source) (*Council, *events.Recorder, func() int) {
	t.Helper()
	orch, mock := newHarness(t, h)
	rec := &events.Recorder{}
	return NewCouncil(orch, src, WithPublisher(rec)), rec, mock.CallCount
}

func eventTypes(rec *events.Recorder) []events.Type {
	var out []events.Type
	for _, e := range rec.Events() {
		out = append(out, e.Type)
	}
	return out
}

func TestAsk_TierOneSingleCall(t *testing.T) {
	council, rec, calls := newCouncil(t, byModel(map[model.ModelName]string{
		model.ModelClaudeSonnet: "Add the missing colon.",
	}), budget.NewStatic(100, 0))

	ans, err := council.Ask(context.Background(), Query{Text: "fix this syntax error"})

	require.NoError(t, err)
	assert.Equal(t, model.TierSimple, ans.Tier)
	assert.Equal(t, "simple_implementation", ans.Classification.Rule)
	assert.False(t, ans.Degraded)
	assert.Equal(t, "Add the missing colon.", ans.Content)
	assert.Equal(t, 1, calls())
	assert.Nil(t, ans.Diamond)
	assert.Equal(t, []events.Type{events.TypeSessionComplete}, eventTypes(rec))
}

func TestAsk_TierTwoResearchesFirst(t *testing.T) {
	orch, mock := newHarness(t, byModel(map[model.ModelName]string{
		model.ModelPerplexityResearcher: "Go 1.24 is current.",
		model.ModelClaudeSonnet:         "Use Go 1.24.",
	}))
	council := NewCouncil(orch, budget.NewStatic(100, 0))

	ans, err := council.Ask(context.Background(), Query{Text: "what is the latest version of Go"})

	require.NoError(t, err)
	assert.Equal(t, model.TierResearch, ans.Tier)
	require.NotNil(t, ans.Research)
	assert.Equal(t, 1, ans.Research.SuccessCount)
	assert.Equal(t, "Use Go 1.24.", ans.Content)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, string(model.ModelPerplexityResearcher), reqs[0].Model)
	assert.Contains(t, reqs[1].UserText(), "Research findings:\nGo 1.24 is current.")
}

func TestAsk_TierTwoSearchFailureStillAnswers(t *testing.T) {
	orch, _ := newHarness(t, failing(byModel(map[model.ModelName]string{model.ModelClaudeSonnet: "answer"}), model.ModelPerplexityResearcher))
	council := NewCouncil(orch, budget.NewStatic(100, 0))

	ans, err := council.Ask(context.Background(), Query{Text: "@research vector databases"})

	require.NoError(t, err)
	assert.Equal(t, 0, ans.Research.SuccessCount)
	assert.Equal(t, "answer", ans.Content)
}

func TestAsk_TierThreeRunsDiamond(t *testing.T) {
	council, _, calls := newCouncil(t, byModel(map[model.ModelName]string{
		model.ModelGeminiPro:     "CONDITIONAL",
		model.ModelOpusSynthesis: "APPROVED with phases",
	}), budget.NewStatic(100, 30))

	ans, err := council.Ask(context.Background(), Query{Text: "@council_v2 should we use PostgreSQL or MongoDB", SessionID: "s-1"})

	require.NoError(t, err)
	assert.Equal(t, model.TierFull, ans.Tier)
	require.NotNil(t, ans.Diamond)
	assert.Equal(t, "s-1", ans.Diamond.SessionID)
	assert.True(t, ans.Diamond.Ratified)
	assert.Equal(t, parser.VerdictApproved, ans.Verdict)
	assert.Equal(t, "APPROVED with phases", ans.Content)
	assert.Equal(t, 7, calls())
	assert.Equal(t, ans.Diamond.Cost, ans.Cost)
}

func TestAsk_DegradesOnTierBudget(t *testing.T) {
	src := budget.NewStatic(100, 40).WithTierSpend(model.TierFull, 40)
	council, _, calls := newCouncil(t, byModel(nil), src)

	ans, err := council.Ask(context.Background(), Query{Text: "@council_v2 should we split the monolith"})

	require.NoError(t, err)
	assert.Equal(t, model.TierFull, ans.RequestedTier)
	assert.Equal(t, model.TierSimple, ans.Tier)
	assert.True(t, ans.Degraded)
	assert.Equal(t, 1, calls())
}

func TestAsk_BudgetRejected(t *testing.T) {
	council, rec, calls := newCouncil(t, byModel(nil), budget.NewStatic(100, 100))

	ans, err := council.Ask(context.Background(), Query{Text: "@council_v2 should we use PostgreSQL"})

	assert.Nil(t, ans)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetRejected))

	var be *BudgetError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, model.TierSimple, be.Estimate.Tier)
	assert.Contains(t, be.Reason(), "Insufficient budget")
	assert.Zero(t, calls())
	assert.Equal(t, []events.Type{events.TypeBudgetThreshold, events.TypeBudgetRejected}, eventTypes(rec))
}

func TestAsk_ForcedTier(t *testing.T) {
	council, _, calls := newCouncil(t, byModel(nil), budget.NewStatic(100, 0))

	ans, err := council.Ask(context.Background(), Query{Text: "hello", Tier: model.TierLite})

	require.NoError(t, err)
	assert.Equal(t, "forced", ans.Classification.Rule)
	require.NotNil(t, ans.Diamond)
	assert.True(t, ans.Diamond.Lite)
	assert.Equal(t, 4, calls())
}

func TestAsk_BudgetSourceError(t *testing.T) {
	boom := errors.New("db locked")
	council, _, calls := newCouncil(t, byModel(nil), budget.Func(func(context.Context) (budget.Snapshot, error) {
		return budget.Snapshot{}, boom
	}))

	_, err := council.Ask(context.Background(), Query{Text: "hi"})

	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrBudgetRejected))
	assert.Zero(t, calls())
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error { return errors.New("nats down") }

func TestAsk_PublishFailureIsContained(t *testing.T) {
	orch, _ := newHarness(t, byModel(nil))
	council := NewCouncil(orch, budget.NewStatic(100, 90), WithPublisher(failingPublisher{}))

	ans, err := council.Ask(context.Background(), Query{Text: "fix this syntax error"})

	require.NoError(t, err)
	assert.NotEmpty(t, ans.Content)
}

func TestPlan_Scenarios(t *testing.T) {
	orch, _ := newHarness(t, byModel(nil))
	council := NewCouncil(orch, budget.NewStatic(100, 0))

	cls, est, err := council.Plan(Query{Text: "@council_v2 should we use PostgreSQL or MongoDB"}, budget.Snapshot{MonthlyBudget: 100, MonthlySpend: 30})
	require.NoError(t, err)
	assert.Equal(t, model.TierFull, cls.Tier)
	assert.True(t, est.CanProceed)
	assert.LessOrEqual(t, est.MaxCost, 2.50)
}
