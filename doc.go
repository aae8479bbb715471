// Package council orchestrates multi-model deliberation over an
// OpenAI-compatible gateway.
//
// A query is classified into a complexity tier, priced against the monthly
// budget, degraded to a cheaper tier when it does not fit, and dispatched to
// a protocol. Each subpackage can be used on its own:
//
//   - gateway: one model call with retries, fallback chains and cost
//   - stage: parallel or sequential stages of calls with partial failure
//   - orchestrator: Diamond, debate, brainstorm and refine protocols, plus
//     the tier router (Council)
//   - classify: rule-based tier classification
//   - cost: token and cost estimates per tier
//   - gatekeeper: decides whether an expensive arbiter is worth invoking
//   - parser: verdicts, sections and idea lists from model output
//   - truncate: bounded embedding of one model's output in another's prompt
//   - model: aliases, tiers, pricing, fallbacks and role selection
//   - tracker, metrics, events: call records, Prometheus metrics and budget
//     events
//   - config: file and environment configuration
//
// # Quick Start
//
//	backend := provider.NewHTTPClient(provider.DefaultConfig())
//	gw, err := gateway.New(backend)
//	if err != nil {
//		return err
//	}
//	orch := orchestrator.New(stage.NewExecutor(gw))
//	council := orchestrator.NewCouncil(orch, budget.NewStatic(100, 0))
//
//	ans, err := council.Ask(ctx, orchestrator.Query{Text: "Should we shard the users table?"})
//
// The council binary in cmd/council wires the same stack from a config file.
package council
