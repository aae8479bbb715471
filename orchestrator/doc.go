// Package orchestrator composes stages into deliberation protocols.
//
// Four protocols are available on an Orchestrator:
//
//   - Diamond: parallel context, parallel deliberation, single-model
//     synthesis, then an optional ratification by the final arbiter.
//   - Debate: four strictly sequential steps, Architect, Auditor,
//     Contextualist and Judge, each seeing bounded excerpts of the
//     previous outputs.
//   - Brainstorm: parallel idea generation followed by one synthesis call.
//   - Refine: sequential rounds that each pass a quality gate.
//
// Council sits in front of them. It classifies a query into a tier,
// checks the predicted cost against the budget, degrades the tier until the
// query fits, and dispatches.
//
// Every protocol returns a result even when models fail. The only error a
// caller sees from Council.Ask is a budget rejection or a failure to read
// the budget.
//
// # Deadlines
//
// Each protocol runs under the orchestrator's overall deadline. Stages
// that would start after it passes settle as canceled without dispatching.
//
// # Usage
//
//	orch := orchestrator.New(stage.NewExecutor(gw),
//	    orchestrator.WithRatifyPolicy(orchestrator.RatifyConditional),
//	    orchestrator.WithDeadline(5*time.Minute),
//	)
//	council := orchestrator.NewCouncil(orch, budgetSource)
//	ans, err := council.Ask(ctx, orchestrator.Query{Text: "@council_v2 should we shard?"})
package orchestrator
