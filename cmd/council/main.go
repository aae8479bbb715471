// Command council runs multi-model deliberation protocols from the shell.
//
// Usage:
//
//	council [-config file] <command> [flags] <text>
//
// Commands:
//
//	ask         route a query by tier and budget
//	auto        pick brainstorm, refine or plan from the wording, else ask
//	diamond     run the Diamond pipeline (-lite for the reduced plan)
//	debate      run the architect, auditor, contextualist and judge debate
//	brainstorm  generate and synthesize ideas
//	refine      run the draft, critique and polish rounds
//	review      review a finished build against its plan or criteria
//	gatekeeper  show whether the final arbiter would be invoked
//	usage       print this month's spend by model
//	schema      print the configuration JSON schema
//
// Text is taken from the remaining arguments, or from stdin when they are
// empty. Results are printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/randalmurphal/council/classify"
	"github.com/randalmurphal/council/config"
	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/orchestrator"
	"github.com/randalmurphal/council/provider"
	"github.com/randalmurphal/council/tokens"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	exitRejected = 3
)

const usageText = `usage: council [-config file] <command> [flags] <text>

commands: ask, auto, diamond, debate, brainstorm, refine, review, gatekeeper, usage, schema
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation. A nil backend uses the configured HTTP
// backends.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, backend provider.Client) int {
	global := flag.NewFlagSet("council", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usageText) }
	cfgPath := global.String("config", os.Getenv("COUNCIL_CONFIG"), "config file (yaml, toml or json)")
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return exitUsage
	}
	cmd, rest := global.Arg(0), global.Args()[1:]

	if cmd == "schema" {
		data, err := config.SchemaJSON()
		if err != nil {
			fmt.Fprintf(stderr, "schema: %v\n", err)
			return exitFailed
		}
		fmt.Fprintln(stdout, string(data))
		return exitOK
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailed
	}
	logger, _ := config.NewLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	a, err := newApp(cfg, backend, logger)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitFailed
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}()

	var out any
	switch cmd {
	case "ask":
		out, err = a.ask(ctx, rest, stdin, stderr)
	case "auto":
		out, err = a.auto(ctx, rest, stdin, stderr)
	case "diamond":
		out, err = a.diamond(ctx, rest, stdin, stderr)
	case "debate":
		out, err = a.debate(ctx, rest, stdin, stderr)
	case "brainstorm":
		out, err = a.brainstorm(ctx, rest, stdin, stderr)
	case "refine":
		out, err = a.refine(ctx, rest, stdin, stderr)
	case "review", "build-review":
		out, err = a.review(ctx, rest, stdin, stderr)
	case "gatekeeper", "opus-gatekeeper":
		out, err = a.gatekeeper(ctx, rest, stdin, stderr)
	case "usage":
		out, err = a.usage(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return exitUsage
	}

	if errors.Is(err, errUsage) {
		// The flag package has already reported parse errors.
		if errors.Is(err, errNoText) {
			fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		}
		return exitUsage
	}
	if out != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			fmt.Fprintf(stderr, "encode: %v\n", encErr)
			return exitFailed
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		if errors.Is(err, orchestrator.ErrBudgetRejected) {
			return exitRejected
		}
		return exitFailed
	}
	return exitOK
}

var (
	errUsage  = errors.New("usage")
	errNoText = fmt.Errorf("%w: no input text", errUsage)
)

// text joins args, or reads stdin when there are none.
func text(args []string, stdin io.Reader) (string, error) {
	s := strings.TrimSpace(strings.Join(args, " "))
	if s == "" && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		s = strings.TrimSpace(string(data))
	}
	if s == "" {
		return "", errNoText
	}
	return s, nil
}

func newFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func (a *app) ask(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("ask", stderr)
	extra := fs.String("context", "", "additional context for the query")
	tier := fs.String("tier", "", "force a tier (tier_1, tier_2, tier_3, tier_3_lite)")
	tags := fs.String("tags", "", "comma-separated tags")
	taskType := fs.String("task-type", "", "task type hint")
	files := fs.Int("files", 0, "number of files involved")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	q, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	query := orchestrator.Query{
		Text:      q,
		Context:   *extra,
		TaskType:  *taskType,
		FileCount: *files,
	}
	query.Tags = splitList(*tags, ",")
	if *tier != "" {
		t, err := model.ParseTier(*tier)
		if err != nil {
			return nil, err
		}
		query.Tier = t
	}

	return result(a.council.Ask(ctx, query))
}

func (a *app) diamond(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("diamond", stderr)
	extra := fs.String("context", "", "additional context")
	lite := fs.Bool("lite", false, "use the reduced plan without ratification")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	q, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sess := orchestrator.Session{Budget: snap}
	var res *orchestrator.DiamondResult
	if *lite {
		res = a.orch.DiamondLite(ctx, sess, q, *extra)
	} else {
		res = a.orch.Diamond(ctx, sess, q, *extra)
	}
	if res.Decision == "" {
		return res, errors.New("pipeline produced no decision")
	}
	return res, nil
}

func (a *app) debate(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("debate", stderr)
	focus := fs.String("focus", "", "aspect the architect should focus on")
	extra := fs.String("context", "", "additional context for the contextualist")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	topic, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	return result(a.runDebate(ctx, topic, *focus, *extra))
}

func (a *app) runDebate(ctx context.Context, topic, focus, extra string) (*orchestrator.DebateResult, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := a.orch.Debate(ctx, orchestrator.Session{Budget: snap}, topic, focus, extra)
	if !res.Succeeded() {
		return res, errors.New("debate did not reach a judgment")
	}
	return res, nil
}

func (a *app) brainstorm(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("brainstorm", stderr)
	maxIdeas := fs.Int("max", orchestrator.DefaultMaxIdeas, "maximum ideas to keep")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	prompt, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	return result(a.runBrainstorm(ctx, prompt, *maxIdeas))
}

func (a *app) runBrainstorm(ctx context.Context, prompt string, maxIdeas int) (*orchestrator.BrainstormResult, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := a.orch.Brainstorm(ctx, orchestrator.Session{Budget: snap}, prompt, maxIdeas)
	if len(res.Ideas) == 0 {
		return res, errors.New("no ideas generated")
	}
	return res, nil
}

func (a *app) refine(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("refine", stderr)
	extra := fs.String("context", "", "additional instructions")
	file := fs.String("file", "", "read the input from a file")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	var input string
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		input = strings.TrimSpace(string(data))
	} else {
		var err error
		if input, err = text(fs.Args(), stdin); err != nil {
			return nil, err
		}
	}

	return result(a.runRefine(ctx, input, *extra))
}

func (a *app) runRefine(ctx context.Context, input, extra string) (*orchestrator.RefineResult, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := a.orch.Refine(ctx, orchestrator.Session{Budget: snap}, input, extra)
	if !res.Completed && res.Error != "" {
		// Rolled back output is still useful; report it alongside the error.
		return res, errors.New(res.Error)
	}
	return res, nil
}

func (a *app) auto(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("auto", stderr)
	extra := fs.String("context", "", "additional context")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	q, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	intent, confidence := classify.DetectIntent(q, nil)
	a.logger.Info("intent detected",
		slog.String("intent", string(intent)),
		slog.Float64("confidence", confidence))

	var res any
	switch intent {
	case classify.IntentBrainstorm:
		res, err = result(a.runBrainstorm(ctx, q, orchestrator.DefaultMaxIdeas))
	case classify.IntentRefine:
		res, err = result(a.runRefine(ctx, q, *extra))
	case classify.IntentPlan:
		res, err = result(a.runDebate(ctx, q, "", *extra))
	default:
		res, err = result(a.council.Ask(ctx, orchestrator.Query{Text: q, Context: *extra}))
	}
	if res == nil {
		return nil, err
	}
	return struct {
		Intent     classify.Intent `json:"intent"`
		Confidence float64         `json:"confidence"`
		Result     any             `json:"result"`
	}{intent, confidence, res}, err
}

func (a *app) review(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("review", stderr)
	planPath := fs.String("plan", "", "markdown build plan to review against")
	criteria := fs.String("criteria", "", "semicolon-separated review criteria")
	files := fs.String("files", "", "comma-separated files changed")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	summary, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	req := orchestrator.ReviewRequest{
		Summary:  summary,
		Files:    splitList(*files, ","),
		Criteria: splitList(*criteria, ";"),
	}
	if *planPath != "" {
		data, err := os.ReadFile(*planPath)
		if err != nil {
			return nil, fmt.Errorf("read plan: %w", err)
		}
		plan := orchestrator.ParseBuildPlan(string(data))
		req.Plan = &plan
	}

	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := a.orch.ReviewBuild(ctx, orchestrator.Session{Budget: snap}, req)
	if !res.Succeeded() {
		return res, errors.New(res.Error)
	}
	return res, nil
}

func (a *app) gatekeeper(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) (any, error) {
	fs := newFlags("gatekeeper", stderr)
	tags := fs.String("tags", "", "comma-separated tags")
	files := fs.Int("files", 0, "number of files involved")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	q, err := text(fs.Args(), stdin)
	if err != nil {
		return nil, err
	}

	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	md := classify.Metadata{Tags: splitList(*tags, ","), FileCount: *files}
	res := a.gate.Decide(q, "", tokens.NewFlooringCounter().Count(q), md, snap)

	out := struct {
		gatekeeper.Result
		MonthlyBudget float64         `json:"monthly_budget"`
		Alternative   model.ModelName `json:"recommended_alternative,omitempty"`
	}{Result: res, MonthlyBudget: snap.MonthlyBudget}
	if res.Decision != gatekeeper.Invoke {
		out.Alternative = a.gate.RecommendDegradation(res)
	}
	if res.Decision == gatekeeper.BudgetBlock {
		return out, fmt.Errorf("%w: %s", orchestrator.ErrBudgetRejected, res.Reason)
	}
	return out, nil
}

// result boxes a protocol result, keeping a nil pointer as a nil any.
func result[T any](r *T, err error) (any, error) {
	if r == nil {
		return nil, err
	}
	return r, err
}

// splitList splits s on sep, dropping blank items.
func splitList(s, sep string) []string {
	var out []string
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (a *app) usage(ctx context.Context) (any, error) {
	if a.store == nil {
		return nil, errors.New("tracker.path is not configured")
	}
	summary, err := a.store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return struct {
		MonthlyBudget float64 `json:"monthly_budget"`
		MonthlySpend  float64 `json:"monthly_spend"`
		Remaining     float64 `json:"remaining"`
		Models        any     `json:"models"`
	}{snap.MonthlyBudget, snap.MonthlySpend, snap.Remaining(), summary}, nil
}
