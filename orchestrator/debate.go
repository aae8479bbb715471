package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/truncate"
)

// Debate step names.
const (
	StepArchitect     = "architect"
	StepAuditor       = "auditor"
	StepContextualist = "contextualist"
	StepJudge         = "judge"
)

// UpstreamFailed is the reason recorded on steps skipped after the
// Architect failed.
const UpstreamFailed = "upstream step failed"

type debateStep struct {
	name      string
	role      model.Role
	maxTokens int
	timeout   time.Duration
}

var debateSteps = [4]debateStep{
	{StepArchitect, model.RoleArchitect, 3000, 60 * time.Second},
	{StepAuditor, model.RoleAuditor, 4000, 90 * time.Second},
	{StepContextualist, model.RoleContextualist, 5000, 180 * time.Second},
	{StepJudge, model.RoleJudge, 8000, 180 * time.Second},
}

// Decree holds the structured fields extracted from the Judge output.
type Decree struct {
	Decision           string `json:"decision"`
	Rationale          string `json:"rationale"`
	Risks              string `json:"risks"`
	ImplementationPlan string `json:"implementation_plan"`
}

// DebateResult is the outcome of a 4-step debate.
type DebateResult struct {
	Topic     string `json:"topic"`
	Focus     string `json:"focus,omitempty"`
	SessionID string `json:"session_id"`

	Architect     gateway.Response `json:"architect"`
	Auditor       gateway.Response `json:"auditor"`
	Contextualist gateway.Response `json:"contextualist"`
	Judge         gateway.Response `json:"judge"`

	// Steps holds one single-call stage per step, in order.
	Steps []*stage.Result `json:"-"`

	Gatekeeper *gatekeeper.Result `json:"gatekeeper,omitempty"`
	// JudgeModel is the model that judged, the substitute when the
	// gatekeeper refused the final arbiter.
	JudgeModel model.ModelName `json:"judge_model"`

	Decree  Decree         `json:"decree"`
	Verdict parser.Verdict `json:"verdict"`

	Totals
	Usage map[model.ModelName]model.Usage `json:"usage"`
}

// Succeeded reports whether the Judge produced a decree.
func (r *DebateResult) Succeeded() bool {
	return r.Judge.Success
}

// Debate runs Architect, Auditor, Contextualist and Judge in order. Each
// prompt embeds bounded excerpts of the earlier outputs. When the Architect
// fails the other steps are reported as upstream failures.
func (o *Orchestrator) Debate(ctx context.Context, sess Session, topic, focus, extra string) *DebateResult {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	sess = sess.withTask(TaskDebate)
	led := newLedger()
	res := &DebateResult{Topic: topic, Focus: focus, SessionID: sess.ID}

	step := func(i int, alias model.ModelName, prompt string) stage.Stage {
		s := debateSteps[i]
		return stage.Stage{
			Name:      s.name,
			Mode:      stage.Sequential,
			Calls:     []stage.Call{{Model: alias}},
			Prompt:    prompt,
			System:    "You are the " + s.name + " in a four-step design review.",
			MaxTokens: s.maxTokens,
			Timeout:   o.stageTimeout(s.timeout),
		}
	}
	record := func(r *stage.Result) gateway.Response {
		res.Steps = append(res.Steps, r)
		led.add(r)
		return only(r)
	}

	res.Architect = record(o.run(ctx, sess, step(0, o.roles.Select(debateSteps[0].role), architectPrompt(topic, focus))))

	if !res.Architect.Success {
		for i := 1; i < len(debateSteps); i++ {
			skipped := stage.Skipped(step(i, o.roles.Select(debateSteps[i].role), ""), gateway.KindUpstreamFailed, UpstreamFailed)
			r := record(skipped)
			switch i {
			case 1:
				res.Auditor = r
			case 2:
				res.Contextualist = r
			case 3:
				res.Judge = r
			}
		}
		res.JudgeModel = o.roles.Select(model.RoleJudge)
		res.Verdict = parser.VerdictUnclear
		res.Totals = led.totals()
		res.Usage = led.summary()
		o.logger.Warn("debate stopped after architect failure",
			slog.String("session", sess.ID),
			slog.String("error", res.Architect.ErrorMessage()))
		return res
	}

	proposal := res.Architect.Content
	res.Auditor = record(o.run(ctx, sess, step(1, o.roles.Select(model.RoleAuditor),
		auditorPrompt(o.embed.Embed(truncate.StepAuditor, proposal)))))

	critique := res.Auditor.Content
	res.Contextualist = record(o.run(ctx, sess, step(2, o.roles.Select(model.RoleContextualist),
		contextualistPrompt(
			o.embed.Embed(truncate.StepContextualist, proposal),
			o.embed.Embed(truncate.StepContextualist, critique),
			extra))))

	judge := o.roles.Select(model.RoleJudge)
	gk := o.gate.Decide(topic, sess.Tier, o.counter.Count(topic+"\n"+extra), sess.Metadata, sess.Budget)
	res.Gatekeeper = &gk
	if gk.Decision != gatekeeper.Invoke {
		sub := o.gate.RecommendDegradation(gk)
		if sub == "" {
			sub = o.gate.Substitute()
		}
		o.logger.Info("judge substituted",
			slog.String("session", sess.ID),
			slog.String("decision", string(gk.Decision)),
			slog.String("substitute", string(sub)))
		judge = sub
	}
	res.JudgeModel = judge

	res.Judge = record(o.run(ctx, sess, step(3, judge,
		judgePrompt(
			o.embed.Embed(truncate.StepJudge, proposal),
			o.embed.Embed(truncate.StepJudge, critique),
			o.embed.Embed(truncate.StepJudge, res.Contextualist.Content)))))

	res.Verdict = parser.VerdictUnclear
	if res.Judge.Success {
		res.Decree = o.decree(res.Judge.Content)
		res.Verdict = parser.ExtractVerdict(res.Judge.Content)
	}

	res.Totals = led.totals()
	res.Usage = led.summary()
	o.logger.Info("debate complete",
		slog.String("session", sess.ID),
		slog.String("judge", string(judge)),
		slog.String("verdict", string(res.Verdict)),
		slog.Float64("cost", res.Cost))
	return res
}

func (o *Orchestrator) decree(text string) Decree {
	section := func(title string) string {
		return o.embed.Embed(truncate.StepSection, parser.ExtractSection(text, title))
	}
	return Decree{
		Decision:           section("Decision"),
		Rationale:          section("Rationale"),
		Risks:              section("Risks"),
		ImplementationPlan: section("Implementation Plan"),
	}
}
