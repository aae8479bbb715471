package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/truncate"
)

// MinRefineChars is the shortest round output the quality gate accepts.
const MinRefineChars = 50

// RefineRound configures one refinement round.
type RefineRound struct {
	Role    model.Role
	Title   string
	Timeout time.Duration
	// Guarded rounds run the final arbiter and consult the gatekeeper.
	Guarded bool
}

// DefaultRefineRounds draft, critique, then polish.
var DefaultRefineRounds = []RefineRound{
	{Role: model.RoleDrafter, Title: "drafter and first reviewer", Timeout: 90 * time.Second},
	{Role: model.RoleCritic, Title: "critic who expands and improves", Timeout: 180 * time.Second},
	{Role: model.RolePolisher, Title: "final polisher and approver", Timeout: 180 * time.Second, Guarded: true},
}

var (
	unhelpfulOutput = []*regexp.Regexp{
		regexp.MustCompile(`^(looks good|fine|ok|approved|no issues)[.!]?$`),
		regexp.MustCompile(`^(i agree|agree|sounds good)[.!]?$`),
		regexp.MustCompile(`^(no changes|no improvements needed)[.!]?$`),
	}
	critiqueMarkers = []string{"concern", "issue", "problem", "improve", "recommend", "however"}
)

// CheckRefinement is the quality gate for one round's output. Rounds after
// the first must contain some critique.
func CheckRefinement(output string, round int) (bool, string) {
	trimmed := strings.TrimSpace(output)
	if len([]rune(trimmed)) < MinRefineChars {
		return false, fmt.Sprintf("round %d output too short or empty", round)
	}
	lower := strings.ToLower(trimmed)
	for _, re := range unhelpfulOutput {
		if re.MatchString(lower) {
			return false, fmt.Sprintf("round %d provided no actual refinement", round)
		}
	}
	if round > 1 {
		for _, m := range critiqueMarkers {
			if strings.Contains(lower, m) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("round %d lacks critical review", round)
	}
	return true, ""
}

// Round is the outcome of one refinement round.
type Round struct {
	Number   int              `json:"round"`
	Role     model.Role       `json:"role"`
	Model    model.ModelName  `json:"model"`
	Response gateway.Response `json:"response"`
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	// Critique is the round output clipped for display.
	Critique string `json:"critique,omitempty"`
}

// RefineResult is the outcome of a refinement run.
type RefineResult struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id"`

	// Output is the last accepted text, the input when nothing was
	// accepted.
	Output     string  `json:"output"`
	Rounds     []Round `json:"rounds"`
	Completed  bool    `json:"completed"`
	RolledBack bool    `json:"rolled_back"`
	Error      string  `json:"error,omitempty"`

	Gatekeeper *gatekeeper.Result `json:"gatekeeper,omitempty"`

	Totals
	Usage map[model.ModelName]model.Usage `json:"usage"`
}

// Refine runs the default rounds over input.
func (o *Orchestrator) Refine(ctx context.Context, sess Session, input, extra string) *RefineResult {
	return o.RunRefine(ctx, sess, input, extra, DefaultRefineRounds)
}

// RunRefine passes input through rounds in order. A round that fails or
// misses the quality gate rolls the output back to the last accepted text
// and stops the run.
func (o *Orchestrator) RunRefine(ctx context.Context, sess Session, input, extra string, rounds []RefineRound) *RefineResult {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	sess = sess.withTask(TaskRefine)
	led := newLedger()
	res := &RefineResult{Input: input, SessionID: sess.ID, Output: input}

	for i, rc := range rounds {
		n := i + 1
		alias := o.roles.Select(rc.Role)
		if rc.Guarded {
			gk := o.gate.Decide(input, sess.Tier, o.counter.Count(input+"\n"+extra), sess.Metadata, sess.Budget)
			res.Gatekeeper = &gk
			if gk.Decision != gatekeeper.Invoke {
				if sub := o.gate.RecommendDegradation(gk); sub != "" {
					alias = sub
				} else {
					alias = o.gate.Substitute()
				}
			}
		}

		sr := o.run(ctx, sess, stage.Stage{
			Name:    fmt.Sprintf("round_%d", n),
			Mode:    stage.Sequential,
			Calls:   []stage.Call{{Model: alias}},
			System:  fmt.Sprintf(sysRefine, rc.Title),
			Prompt:  refinePrompt(rc.Title, o.embed.Embed(truncate.StepRefine, res.Output), extra),
			Timeout: o.stageTimeout(rc.Timeout),
		})
		led.add(sr)
		resp := only(sr)

		round := Round{Number: n, Role: rc.Role, Model: alias, Response: resp}
		if !resp.Success {
			round.Reason = resp.ErrorMessage()
			res.Rounds = append(res.Rounds, round)
			res.RolledBack = true
			res.Error = fmt.Sprintf("round %d failed: %s", n, resp.ErrorMessage())
			break
		}
		if ok, why := CheckRefinement(resp.Content, n); !ok {
			round.Reason = why
			res.Rounds = append(res.Rounds, round)
			res.RolledBack = true
			res.Error = "quality gate failed: " + why
			break
		}

		round.Accepted = true
		round.Critique = truncate.ToLength(resp.Content, 500)
		res.Rounds = append(res.Rounds, round)
		res.Output = resp.Content
	}

	res.Completed = !res.RolledBack && len(res.Rounds) == len(rounds)
	res.Totals = led.totals()
	res.Usage = led.summary()
	if res.RolledBack {
		o.logger.Warn("refinement rolled back",
			slog.String("session", sess.ID),
			slog.String("error", res.Error))
	}
	return res
}
