package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/classify"
	"github.com/randalmurphal/council/cost"
	"github.com/randalmurphal/council/events"
	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/truncate"
)

// Council stage names.
const (
	StageRespond  = "respond"
	StageResearch = "research"
)

// Query is one request to the council.
type Query struct {
	Text      string   `json:"text"`
	Context   string   `json:"context,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	TaskType  string   `json:"task_type,omitempty"`
	FileCount int      `json:"file_count,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	// Tier forces a tier instead of classifying. Budget checks still apply.
	Tier model.Tier `json:"tier,omitempty"`
}

// Answer is the outcome of Council.Ask.
type Answer struct {
	SessionID      string                  `json:"session_id"`
	Classification classify.Classification `json:"classification"`
	RequestedTier  model.Tier              `json:"requested_tier"`
	Tier           model.Tier              `json:"tier"`
	Degraded       bool                    `json:"degraded"`
	Estimate       cost.Estimate           `json:"estimate"`

	Content string         `json:"content"`
	Verdict parser.Verdict `json:"verdict,omitempty"`

	// Set for tier_1 and tier_2.
	Research *stage.Result `json:"research,omitempty"`
	Response *stage.Result `json:"response,omitempty"`
	// Set for tier_3 and tier_3_lite.
	Diamond *DiamondResult `json:"diamond,omitempty"`

	Totals
	Usage map[model.ModelName]model.Usage `json:"usage"`
}

// Council routes a query to the cheapest protocol that fits its tier and
// the budget.
type Council struct {
	orch         *Orchestrator
	source       budget.Source
	classifier   *classify.Classifier
	predictor    *cost.Predictor
	publisher    events.Publisher
	gateFraction float64
	logger       *slog.Logger
}

// CouncilOption configures a Council.
type CouncilOption func(*Council)

// WithClassifier sets the tier classifier.
func WithClassifier(c *classify.Classifier) CouncilOption {
	return func(k *Council) {
		if c != nil {
			k.classifier = c
		}
	}
}

// WithPredictor sets the cost predictor.
func WithPredictor(p *cost.Predictor) CouncilOption {
	return func(k *Council) {
		if p != nil {
			k.predictor = p
		}
	}
}

// WithPublisher sets where budget events go.
func WithPublisher(p events.Publisher) CouncilOption {
	return func(k *Council) {
		if p != nil {
			k.publisher = p
		}
	}
}

// WithAlertFraction sets the monthly spend fraction that triggers a budget
// threshold event.
func WithAlertFraction(f float64) CouncilOption {
	return func(k *Council) {
		if f > 0 {
			k.gateFraction = f
		}
	}
}

// WithCouncilLogger sets the logger.
func WithCouncilLogger(l *slog.Logger) CouncilOption {
	return func(k *Council) {
		if l != nil {
			k.logger = l
		}
	}
}

// NewCouncil creates a router over orch reading budgets from source.
func NewCouncil(orch *Orchestrator, source budget.Source, opts ...CouncilOption) *Council {
	k := &Council{
		orch:         orch,
		source:       source,
		classifier:   classify.New(),
		predictor:    cost.NewPredictor(),
		publisher:    events.Nop{},
		gateFraction: gatekeeper.DefaultGateFraction,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Plan classifies q and degrades its tier until the estimate fits the
// budget. It dispatches nothing. A query that does not fit even at tier_1
// returns a *BudgetError.
func (k *Council) Plan(q Query, snap budget.Snapshot) (classify.Classification, cost.Estimate, error) {
	md := classify.Metadata{Tags: q.Tags, TaskType: q.TaskType, FileCount: q.FileCount}
	cls := k.classifier.Explain(q.Text, k.predictor.InputTokens(q.Text, q.Context), md)
	if q.Tier != "" {
		cls = classify.Classification{Tier: q.Tier, Rule: "forced"}
	}

	tier := cls.Tier
	for {
		est := k.predictor.Estimate(q.Text, q.Context, tier, nil, snap)
		if est.CanProceed {
			return cls, est, nil
		}
		next := cost.RecommendDegradation(est)
		if next == tier {
			return cls, est, &BudgetError{Estimate: est}
		}
		k.logger.Info("degrading tier",
			slog.String("from", string(tier)),
			slog.String("to", string(next)),
			slog.String("reason", est.Reason))
		tier = next
	}
}

// Ask answers q. Model failures never surface as errors; the error is
// non-nil only when the budget cannot be read or rejects the query.
func (k *Council) Ask(ctx context.Context, q Query) (*Answer, error) {
	snap, err := k.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read budget: %w", err)
	}

	sessionID := q.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	k.checkThreshold(ctx, sessionID, snap)

	cls, est, err := k.Plan(q, snap)
	if err != nil {
		k.publish(ctx, events.Event{
			Type:      events.TypeBudgetRejected,
			SessionID: sessionID,
			Message:   est.Reason,
			Data: map[string]any{
				"tier":     string(est.Tier),
				"max_cost": est.MaxCost,
			},
		})
		return nil, err
	}

	sess := Session{
		ID:       sessionID,
		Tier:     est.Tier,
		Budget:   snap,
		TaskType: q.TaskType,
		Metadata: classify.Metadata{Tags: q.Tags, TaskType: q.TaskType, FileCount: q.FileCount},
		Started:  time.Now(),
	}
	ans := &Answer{
		SessionID:      sessionID,
		Classification: cls,
		RequestedTier:  cls.Tier,
		Tier:           est.Tier,
		Degraded:       est.Tier != cls.Tier,
		Estimate:       est,
	}

	switch est.Tier {
	case model.TierFull:
		ans.Diamond = k.orch.Diamond(ctx, sess, q.Text, q.Context)
	case model.TierLite:
		ans.Diamond = k.orch.DiamondLite(ctx, sess, q.Text, q.Context)
	case model.TierResearch:
		k.research(ctx, sess, q, ans)
	default:
		k.respond(ctx, sess, q, ans)
	}

	if ans.Diamond != nil {
		ans.Content = ans.Diamond.Decision
		ans.Verdict = ans.Diamond.Verdict
		ans.Totals = ans.Diamond.Totals
		ans.Usage = ans.Diamond.Usage
	}

	k.publish(ctx, events.Event{
		Type:      events.TypeSessionComplete,
		SessionID: sessionID,
		Message:   fmt.Sprintf("%s answered", ans.Tier),
		Data: map[string]any{
			"tier":     string(ans.Tier),
			"degraded": ans.Degraded,
			"cost":     ans.Cost,
		},
	})
	return ans, nil
}

// respond answers with a single call.
func (k *Council) respond(ctx context.Context, sess Session, q Query, ans *Answer) {
	ctx, cancel := k.orch.withDeadline(ctx)
	defer cancel()

	sess = sess.withTask(TaskQuery)
	led := newLedger()
	ans.Response = k.orch.run(ctx, sess, stage.Stage{
		Name:   StageRespond,
		Mode:   stage.Sequential,
		Calls:  []stage.Call{{Model: k.orch.roles.Select(model.RoleResponder)}},
		System: sysResponder,
		Prompt: researchPrompt(q.Text, q.Context),
	})
	led.add(ans.Response)
	ans.Content = only(ans.Response).Content
	ans.Totals = led.totals()
	ans.Usage = led.summary()
}

// research runs a search call, then answers with the findings embedded. A
// failed search still gets an answer.
func (k *Council) research(ctx context.Context, sess Session, q Query, ans *Answer) {
	ctx, cancel := k.orch.withDeadline(ctx)
	defer cancel()

	sess = sess.withTask(TaskResearch)
	led := newLedger()
	ans.Research = k.orch.run(ctx, sess, stage.Stage{
		Name:   StageResearch,
		Mode:   stage.Sequential,
		Calls:  []stage.Call{{Model: k.orch.roles.Select(model.RoleResearcher)}},
		Prompt: q.Text,
	})
	led.add(ans.Research)

	findings := ""
	if r := only(ans.Research); r.Success {
		findings = "Research findings:\n" + k.orch.embed.Embed(truncate.StepDeliberation, r.Content)
	}
	extra := q.Context
	if findings != "" {
		extra = findings + "\n\n" + extra
	}

	ans.Response = k.orch.run(ctx, sess, stage.Stage{
		Name:   StageRespond,
		Mode:   stage.Sequential,
		Calls:  []stage.Call{{Model: k.orch.roles.Select(model.RoleResponder)}},
		System: sysResponder,
		Prompt: researchPrompt(q.Text, extra),
	})
	led.add(ans.Response)
	ans.Content = only(ans.Response).Content
	ans.Totals = led.totals()
	ans.Usage = led.summary()
}

func (k *Council) checkThreshold(ctx context.Context, sessionID string, snap budget.Snapshot) {
	frac := snap.SpendFraction()
	if frac < k.gateFraction {
		return
	}
	k.publish(ctx, events.Event{
		Type:      events.TypeBudgetThreshold,
		SessionID: sessionID,
		Message:   fmt.Sprintf("monthly spend at %.0f%% of budget", frac*100),
		Data: map[string]any{
			"monthly_spend":  snap.MonthlySpend,
			"monthly_budget": snap.MonthlyBudget,
			"fraction":       frac,
			"threshold":      k.gateFraction,
		},
	})
}

func (k *Council) publish(ctx context.Context, e events.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := k.publisher.Publish(ctx, e); err != nil {
		k.logger.Warn("publish event failed",
			slog.String("type", string(e.Type)),
			slog.Any("error", err))
	}
}
