package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/parser"
	"github.com/randalmurphal/council/stage"
)

// StageReview is the single stage of a build review.
const StageReview = "build_review"

// ReviewTimeout bounds each attempt of the reviewer call.
const ReviewTimeout = 120 * time.Second

// DefaultReviewCriteria are checked when neither a plan nor explicit
// criteria are given.
var DefaultReviewCriteria = []string{
	"Implementation matches the stated requirements",
	"Code is readable and maintainable",
	"No obvious security vulnerabilities",
	"System compatibility (Windows/Linux/Mac) addressed",
	"Error handling is adequate",
}

// BuildPlan is the part of a build plan document a review checks against.
type BuildPlan struct {
	Topic              string   `json:"topic"`
	ImplementationPlan []string `json:"implementation_plan,omitempty"`
	SuccessCriteria    []string `json:"success_criteria,omitempty"`
	Risks              string   `json:"risks,omitempty"`
}

var planTopicRegex = regexp.MustCompile(`(?mi)^#+\s*Build Plan:?\s*(.+)$`)

// ParseBuildPlan reads a markdown build plan. Lists come from the
// "Implementation Plan" and "Success Criteria" sections, risks from the
// section whose title starts with "Risks".
func ParseBuildPlan(markdown string) BuildPlan {
	p := parser.NewParser()
	plan := BuildPlan{
		ImplementationPlan: planList(p, p.ExtractSection(markdown, "Implementation Plan")),
		SuccessCriteria:    planList(p, p.ExtractSection(markdown, "Success Criteria")),
		Risks:              p.ExtractSection(markdown, "Risks"),
	}
	if m := planTopicRegex.FindStringSubmatch(markdown); m != nil {
		plan.Topic = strings.TrimSpace(m[1])
	}
	return plan
}

func planList(p *parser.Parser, section string) []string {
	if items := p.ExtractNumberedList(section); len(items) > 0 {
		return items
	}
	return p.ExtractList(section)
}

// ReviewRequest describes a finished implementation to review. Plan, when
// set, takes precedence over Criteria.
type ReviewRequest struct {
	Summary  string     `json:"summary"`
	Files    []string   `json:"files,omitempty"`
	Criteria []string   `json:"criteria,omitempty"`
	Plan     *BuildPlan `json:"plan,omitempty"`
}

// ReviewResult is the outcome of a build review.
type ReviewResult struct {
	SessionID string         `json:"session_id"`
	Topic     string         `json:"topic"`
	Review    *stage.Result  `json:"review"`
	Verdict   parser.Verdict `json:"verdict"`
	Passed    []string       `json:"passed_checks"`
	Failed    []string       `json:"failed_checks"`
	Warnings  []string       `json:"warnings"`
	Report    string         `json:"full_review,omitempty"`
	Error     string         `json:"error,omitempty"`

	Totals
	Usage map[model.ModelName]model.Usage `json:"usage"`
}

// Succeeded reports whether the reviewer answered.
func (r *ReviewResult) Succeeded() bool { return r.Error == "" }

// ReviewBuild asks the reviewer to check an implementation against its plan
// or criteria, then parses the verdict and per-criterion findings.
func (o *Orchestrator) ReviewBuild(ctx context.Context, sess Session, req ReviewRequest) *ReviewResult {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	sess = sess.withTask(TaskReview)
	led := newLedger()
	res := &ReviewResult{SessionID: sess.ID, Topic: "Manual Review"}
	if req.Plan != nil && req.Plan.Topic != "" {
		res.Topic = req.Plan.Topic
	}

	res.Review = o.run(ctx, sess, stage.Stage{
		Name:    StageReview,
		Mode:    stage.Sequential,
		Calls:   []stage.Call{{Model: o.roles.Select(model.RoleReviewer)}},
		System:  sysReviewer,
		Prompt:  reviewPrompt(req),
		Timeout: o.stageTimeout(ReviewTimeout),
	})
	led.add(res.Review)

	out := only(res.Review)
	if !out.Success {
		res.Error = "review failed: " + out.ErrorMessage()
	} else {
		res.Report = out.Content
		res.Verdict, res.Passed, res.Failed, res.Warnings = parseReview(out.Content)
	}

	res.Totals = led.totals()
	res.Usage = led.summary()
	return res
}

var (
	reviewVerdictRegex = regexp.MustCompile(`(?i)VERDICT:\s*(APPROVED|CONDITIONAL|REJECTED)`)
	reviewCheckRegex   = regexp.MustCompile(`(?i)^\[(pass|fail|warning)\]\s*-\s*(.+)$`)
)

// parseReview reads "VERDICT: X" and "[Pass|Fail|Warning] - criterion"
// lines. Reading stops at the section after the criteria review. A review
// with no check lines gets one summary check derived from the verdict.
func parseReview(text string) (verdict parser.Verdict, passed, failed, warnings []string) {
	verdict = parser.VerdictUnclear
	if m := reviewVerdictRegex.FindStringSubmatch(text); m != nil {
		verdict = parser.Verdict(strings.ToUpper(m[1]))
	}

	inCriteria := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "CRITERIA REVIEW") || strings.Contains(line, "REVIEW RESULTS") {
			inCriteria = true
			continue
		}
		if inCriteria && (strings.HasPrefix(line, "RECOMMENDATIONS") || strings.HasPrefix(line, "##")) {
			break
		}
		m := reviewCheckRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "pass":
			passed = append(passed, item)
		case "fail":
			failed = append(failed, item)
		case "warning":
			warnings = append(warnings, item)
		}
	}

	if len(passed)+len(failed)+len(warnings) == 0 {
		switch verdict {
		case parser.VerdictApproved:
			passed = []string{"Implementation meets requirements"}
		case parser.VerdictRejected:
			failed = []string{"Implementation does not meet requirements"}
		case parser.VerdictConditional:
			passed = []string{"Implementation partially meets requirements"}
			warnings = []string{"Conditions must be addressed before deployment"}
		}
	}
	return verdict, passed, failed, warnings
}

func reviewPrompt(req ReviewRequest) string {
	files := "Not specified"
	if len(req.Files) > 0 {
		files = bulletList(req.Files)
	}

	var b strings.Builder
	if plan := req.Plan; plan != nil {
		risks := plan.Risks
		if risks == "" {
			risks = "Not specified"
		}
		fmt.Fprintf(&b, `REVIEW the following implementation against its build plan.

BUILD PLAN TOPIC:
%s

PLANNED IMPLEMENTATION:
%s

SUCCESS CRITERIA TO VERIFY:
%s

IDENTIFIED RISKS (check if mitigated):
%s

ACTUAL IMPLEMENTATION:
%s

FILES CHANGED:
%s

Check that the implementation followed the planned phases, meets every success criterion, mitigates the identified risks, and has no security or portability gaps.`,
			plan.Topic, bulletList(plan.ImplementationPlan), bulletList(plan.SuccessCriteria), risks, req.Summary, files)
		return b.String()
	}

	criteria := req.Criteria
	if len(criteria) == 0 {
		criteria = DefaultReviewCriteria
	}
	fmt.Fprintf(&b, `REVIEW the following implementation using these criteria.

REVIEW CRITERIA:
%s

ACTUAL IMPLEMENTATION:
%s

FILES CHANGED:
%s

Say specifically what passes and what fails.`, bulletList(criteria), req.Summary, files)
	return b.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (no items)"
	}
	return "- " + strings.Join(items, "\n- ")
}
