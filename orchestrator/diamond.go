package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/truncate"
)

// Diamond stage names.
const (
	StageContext      = "context"
	StageDeliberation = "deliberation"
	StageSynthesis    = "synthesis"
	StageRatification = "ratification"
)

// Output caps per Diamond stage.
const (
	contextMaxTokens      = 1500
	deliberationMaxTokens = 2000
	synthesisMaxTokens    = 3000
	ratifyMaxTokens       = 4000
)

// DiamondPlan fixes the seats of one Diamond run.
type DiamondPlan struct {
	Context      []stage.Call
	Deliberation []stage.Call
	Synthesizer  model.ModelName
	Ratifier     model.ModelName
	// Ratify is false for plans that never reach the final arbiter.
	Ratify bool
}

// FullPlan is the tier_3 pipeline.
func FullPlan(sel *model.Selector) DiamondPlan {
	return DiamondPlan{
		Context: []stage.Call{
			{Model: model.ModelKimiResearcher, System: sysCostArchitect},
			{Model: model.ModelPerplexityOnline, System: sysWebResearch},
		},
		Deliberation: []stage.Call{
			{Model: model.ModelDeepSeekV3, System: sysAuditor},
			{Model: model.ModelGeminiFlash, System: sysIdeator},
			{Model: model.ModelClaudeSonnet, System: sysContextualist},
		},
		Synthesizer: sel.Select(model.RoleSynthesizer),
		Ratifier:    sel.Select(model.RoleRatifier),
		Ratify:      true,
	}
}

// LitePlan is the tier_3_lite pipeline: one context seat, two
// deliberation seats and no ratification.
func LitePlan(sel *model.Selector) DiamondPlan {
	return DiamondPlan{
		Context: []stage.Call{
			{Model: model.ModelKimiResearcher, System: sysCostArchitect},
		},
		Deliberation: []stage.Call{
			{Model: model.ModelDeepSeekV3, System: sysAuditor},
			{Model: model.ModelClaudeSonnet, System: sysContextualist},
		},
		Synthesizer: sel.Select(model.RoleSynthesizer),
	}
}

// DiamondResult is the outcome of a Diamond run.
type DiamondResult struct {
	Query     string     `json:"query"`
	SessionID string     `json:"session_id"`
	Tier      model.Tier `json:"tier"`
	Lite      bool       `json:"lite,omitempty"`

	Context      *stage.Result `json:"context"`
	Deliberation *stage.Result `json:"deliberation"`
	Synthesis    *stage.Result `json:"synthesis"`
	Ratification *stage.Result `json:"ratification,omitempty"`

	Policy       RatifyPolicy       `json:"policy"`
	Gatekeeper   *gatekeeper.Result `json:"gatekeeper,omitempty"`
	Ratified     bool               `json:"ratified"`
	RatifyReason string             `json:"ratify_reason,omitempty"`
	// Substitute is the cheaper model the gatekeeper recommended when it
	// refused ratification.
	Substitute model.ModelName `json:"substitute,omitempty"`

	SynthesisVerdict parser.Verdict `json:"synthesis_verdict"`
	Verdict          parser.Verdict `json:"verdict"`
	// Decision is the ratified decree, or the synthesis when not ratified.
	Decision string `json:"decision"`

	Totals
	Usage map[model.ModelName]model.Usage `json:"usage"`
}

// Stages returns the stages that ran, in pipeline order.
func (r *DiamondResult) Stages() []*stage.Result {
	out := []*stage.Result{r.Context, r.Deliberation, r.Synthesis}
	if r.Ratification != nil {
		out = append(out, r.Ratification)
	}
	return out
}

// Diamond runs the full pipeline.
func (o *Orchestrator) Diamond(ctx context.Context, sess Session, query, extra string) *DiamondResult {
	if sess.Tier == "" {
		sess.Tier = model.TierFull
	}
	return o.RunDiamond(ctx, sess, query, extra, FullPlan(o.roles))
}

// DiamondLite runs the reduced pipeline.
func (o *Orchestrator) DiamondLite(ctx context.Context, sess Session, query, extra string) *DiamondResult {
	if sess.Tier == "" {
		sess.Tier = model.TierLite
	}
	res := o.RunDiamond(ctx, sess, query, extra, LitePlan(o.roles))
	res.Lite = true
	return res
}

// RunDiamond runs plan. It always returns a result; failed seats are
// recorded in their stage.
func (o *Orchestrator) RunDiamond(ctx context.Context, sess Session, query, extra string, plan DiamondPlan) *DiamondResult {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	sess = sess.withTask(TaskDiamond)
	led := newLedger()
	res := &DiamondResult{
		Query:     query,
		SessionID: sess.ID,
		Tier:      sess.Tier,
		Policy:    o.policy,
	}

	res.Context = o.run(ctx, sess, stage.Stage{
		Name:      StageContext,
		Mode:      stage.Parallel,
		Calls:     plan.Context,
		Prompt:    contextPrompt(query, extra),
		MaxTokens: contextMaxTokens,
		Timeout:   o.stageTimeout(0),
	})
	led.add(res.Context)

	res.Deliberation = o.run(ctx, sess, stage.Stage{
		Name:      StageDeliberation,
		Mode:      stage.Parallel,
		Calls:     plan.Deliberation,
		Prompt:    deliberationPrompt(query, res.Context.Format(o.embed.Limit(truncate.StepDeliberation))),
		MaxTokens: deliberationMaxTokens,
		Timeout:   o.stageTimeout(0),
	})
	led.add(res.Deliberation)

	res.Synthesis = o.run(ctx, sess, stage.Stage{
		Name:      StageSynthesis,
		Mode:      stage.Sequential,
		Calls:     []stage.Call{{Model: plan.Synthesizer, System: sysSemiFinal}},
		Prompt:    synthesisPrompt(query, res.Deliberation.Format(o.embed.Limit(truncate.StepSynthesis))),
		MaxTokens: synthesisMaxTokens,
		Timeout:   o.stageTimeout(0),
	})
	led.add(res.Synthesis)

	synth := only(res.Synthesis)
	res.SynthesisVerdict = parser.ExtractVerdict(synth.Content)
	res.Verdict = res.SynthesisVerdict
	res.Decision = synth.Content

	if o.shouldRatify(sess, query, extra, plan, synth.Success, res) {
		res.Ratification = o.run(ctx, sess, stage.Stage{
			Name:      StageRatification,
			Mode:      stage.Sequential,
			Calls:     []stage.Call{{Model: plan.Ratifier, System: sysFinalJudge}},
			Prompt:    ratificationPrompt(query, o.embed.Embed(truncate.StepSynthesis, synth.Content)),
			MaxTokens: ratifyMaxTokens,
			Timeout:   o.stageTimeout(0),
		})
		led.add(res.Ratification)

		if decree := only(res.Ratification); decree.Success {
			res.Ratified = true
			res.Verdict = parser.ExtractVerdict(decree.Content)
			res.Decision = decree.Content
		} else {
			res.RatifyReason = "ratification failed: " + decree.ErrorMessage()
		}
	}

	res.Totals = led.totals()
	res.Usage = led.summary()

	o.logger.Info("diamond complete",
		slog.String("session", sess.ID),
		slog.String("tier", string(sess.Tier)),
		slog.String("verdict", string(res.Verdict)),
		slog.Bool("ratified", res.Ratified),
		slog.Float64("cost", res.Cost),
		slog.Duration("latency", res.Latency),
		slog.Duration("elapsed", time.Since(sess.Started)))
	return res
}

// shouldRatify applies the policy and the gatekeeper, recording why
// ratification was skipped.
func (o *Orchestrator) shouldRatify(sess Session, query, extra string, plan DiamondPlan, synthOK bool, res *DiamondResult) bool {
	switch {
	case !plan.Ratify:
		res.RatifyReason = "plan does not ratify"
		return false
	case o.policy == RatifyNever:
		res.RatifyReason = "ratification disabled by policy"
		return false
	case !synthOK:
		res.RatifyReason = "synthesis failed, nothing to ratify"
		return false
	}

	gk := o.gate.Decide(query, sess.Tier, o.counter.Count(query+"\n"+extra), sess.Metadata, sess.Budget)
	res.Gatekeeper = &gk

	switch {
	case o.policy == RatifyAlways:
		return true
	case !o.policy.Wants(res.SynthesisVerdict):
		res.RatifyReason = "synthesis approved"
		return false
	case gk.Decision != gatekeeper.Invoke:
		res.RatifyReason = "gatekeeper " + string(gk.Decision) + ": " + gk.Reason
		res.Substitute = o.gate.RecommendDegradation(gk)
		return false
	default:
		return true
	}
}
