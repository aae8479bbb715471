// Package gateway issues single model calls with timeout retry and fallback.
//
// A Client turns a Request into exactly one Response. It never returns an
// error: every failure is recorded on the Response with a Kind so callers can
// keep going with whatever succeeded.
//
// # Failure Policy
//
//   - Timeout: the same alias is retried up to MaxRetries more times.
//   - Request failure on the first attempt of a hop: the next alias in the
//     resolved fallback chain is tried with a fresh retry budget.
//   - Malformed response: returned at once, never retried.
//   - Parent context done: returned as Canceled without retry or fallback.
//
// Fallback chains are resolved to a finite list up front; cyclic chains are
// rejected by New.
//
// # Usage
//
//	gw, err := gateway.New(router,
//	    gateway.WithFallbacks(model.DefaultFallbacks()),
//	    gateway.WithPricing(model.DefaultPricing()),
//	)
//	resp := gw.Call(ctx, gateway.Request{Model: model.ModelClaudeSonnet, User: "hi"})
//	if !resp.Success {
//	    log.Println(resp.Err.Kind, resp.Err.Message)
//	}
package gateway
