// Package stage runs a named group of model calls, concurrently or one at a
// time, and collects every outcome.
//
// An Executor never aborts a stage because one call failed. A parallel
// stage waits for every call to settle; a sequential stage keeps going past
// failures. The returned Result always holds exactly one Response per Call,
// so consumers can rely on counts even under partial failure.
//
// Responses in a parallel stage arrive in completion order. Look them up by
// alias with Result.Response, never by position.
//
// # Usage
//
//	exec := stage.NewExecutor(gw, stage.WithMaxInFlight(5))
//	res := exec.Run(ctx, stage.Stage{
//	    Name:   "deliberation",
//	    Mode:   stage.Parallel,
//	    Prompt: prompt,
//	    Calls:  stage.CallsFor(model.ModelDeepSeekV3, model.ModelGeminiFlash),
//	})
//	for _, r := range res.Successful() {
//	    fmt.Println(r.Model, r.Content)
//	}
package stage
