// Package provider talks to the model backends behind the council.
//
// Two backends exist: an OpenAI-compatible chat completions endpoint
// (HTTPClient) that serves every conversational alias, and a search endpoint
// (SearchClient) for search-style aliases billed per call. A Router picks
// the backend per model alias.
//
// # Usage
//
//	chat := provider.NewHTTPClient(provider.Config{URL: "http://localhost:4000/v1/chat/completions"})
//	search := provider.NewSearchClient(provider.SearchConfig{URL: "http://localhost:4000/v1"})
//
//	router := provider.NewRouter(chat)
//	router.Register("perplexity-online", search)
//	router.Register("perplexity-researcher", search)
//
//	resp, err := router.Complete(ctx, provider.Request{
//	    Model:    "claude-sonnet",
//	    Messages: []provider.Message{provider.NewTextMessage(provider.RoleUser, "hi")},
//	})
//
// Clients make a single attempt. Retry and fallback policy live in the
// gateway package, which classifies failures with IsTimeout, IsMalformed and
// errors.Is against the sentinel errors here.
//
// # Testing
//
// MockClient is a concurrency-safe test double with fixed, sequential or
// custom responses.
package provider

import "context"

// Client is a model backend.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a request and returns the full response.
	// The context controls cancellation and timeouts.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the backend name (e.g., "gateway", "search").
	Provider() string
}
