package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/truncate"
)

// Brainstorm limits.
const (
	DefaultMaxIdeas = 20
	// synthIdeaLimit bounds how many raw ideas reach the synthesizer.
	synthIdeaLimit = 50
	topicLimit     = 500
)

// Brainstorm stage names.
const (
	StageIdeas     = "ideas"
	StageIdeaMerge = "idea_synthesis"
)

// BrainstormModels generate ideas in parallel.
var BrainstormModels = []model.ModelName{
	model.ModelKimiResearcher,
	model.ModelDeepSeekV3,
	model.ModelGeminiFlash,
}

// Idea is one generated idea and the model that proposed it.
type Idea struct {
	Text   string          `json:"text"`
	Source model.ModelName `json:"source"`
}

// BrainstormResult is the outcome of a brainstorm.
type BrainstormResult struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`

	Generation *stage.Result `json:"generation"`
	Synthesis  *stage.Result `json:"synthesis"`

	RawIdeas []Idea `json:"raw_ideas"`
	// Ideas is the synthesized list, or the raw ideas when synthesis
	// failed.
	Ideas       []string `json:"ideas"`
	Synthesized bool     `json:"synthesized"`

	Totals
	Usage map[model.ModelName]model.Usage `json:"usage"`
}

// Brainstorm fans prompt out to the idea models, parses ideas from each
// answer, and asks one model to merge and rank them. maxIdeas <= 0 uses
// DefaultMaxIdeas.
func (o *Orchestrator) Brainstorm(ctx context.Context, sess Session, prompt string, maxIdeas int) *BrainstormResult {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	if maxIdeas <= 0 {
		maxIdeas = DefaultMaxIdeas
	}
	sess = sess.withTask(TaskBrainstorm)
	led := newLedger()
	res := &BrainstormResult{Prompt: prompt, SessionID: sess.ID}

	res.Generation = o.run(ctx, sess, stage.Stage{
		Name:   StageIdeas,
		Mode:   stage.Parallel,
		Calls:  stage.CallsFor(BrainstormModels...),
		Prompt: prompt,
		System: fmt.Sprintf(sysBrainstorm, maxIdeas),
	})
	led.add(res.Generation)

	// Walk models in a fixed order so raw ideas are deterministic.
	for _, m := range BrainstormModels {
		resp, ok := res.Generation.Response(m)
		if !ok || !resp.Success {
			continue
		}
		for _, text := range parser.ExtractIdeas(resp.Content) {
			res.RawIdeas = append(res.RawIdeas, Idea{Text: text, Source: m})
		}
	}

	synth := stage.Stage{
		Name:   StageIdeaMerge,
		Mode:   stage.Sequential,
		Calls:  []stage.Call{{Model: o.roles.Select(model.RoleIdeaSynth)}},
		System: sysIdeaSynth,
	}
	if len(res.RawIdeas) == 0 {
		res.Synthesis = stage.Skipped(synth, gateway.KindUpstreamFailed, "no ideas generated")
	} else {
		keep := min(maxIdeas, len(res.RawIdeas))
		synth.Prompt = ideaSynthesisPrompt(truncate.ToLength(prompt, topicLimit), res.RawIdeas[:min(len(res.RawIdeas), synthIdeaLimit)], keep)
		res.Synthesis = o.run(ctx, sess, synth)
		led.add(res.Synthesis)
	}

	if out := only(res.Synthesis); out.Success {
		res.Ideas = parser.ExtractIdeas(out.Content)
		res.Synthesized = len(res.Ideas) > 0
	}
	if !res.Synthesized {
		res.Ideas = nil
		for _, idea := range res.RawIdeas {
			if len(res.Ideas) == maxIdeas {
				break
			}
			res.Ideas = append(res.Ideas, idea.Text)
		}
		if len(res.RawIdeas) > 0 {
			o.logger.Warn("idea synthesis failed, returning raw ideas", slog.String("session", sess.ID))
		}
	}

	res.Totals = led.totals()
	res.Usage = led.summary()
	return res
}
