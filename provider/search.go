package provider

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	windowsPathRegex = regexp.MustCompile(`[A-Za-z]:[/\\][^ \t\n\r\f\v<>|"']+`)
	unixPathRegex    = regexp.MustCompile(`[/\\][a-zA-Z][a-zA-Z0-9_.-]+([/\\][a-zA-Z0-9_.-]+)*`)
	hexRegex         = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// SanitizeQuery strips local file paths and hex identifiers from text bound
// for an external search service.
func SanitizeQuery(query string) string {
	query = windowsPathRegex.ReplaceAllString(query, "<PATH>")
	query = unixPathRegex.ReplaceAllString(query, "<PATH>")
	return hexRegex.ReplaceAllString(query, "<HEX>")
}

// SearchResult is one citation returned by the search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient serves search-style aliases. The user message becomes the
// search query and the results are rendered as markdown content.
type SearchClient struct {
	cfg  Config
	url  string
	http *http.Client
}

// NewSearchClient creates a search backend client.
func NewSearchClient(cfg Config) *SearchClient {
	if cfg.URL == "" {
		cfg.URL = DefaultSearchURL
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &SearchClient{
		cfg:  cfg,
		url:  endpoint(cfg.URL, "/search"),
		http: &http.Client{},
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func (c *SearchClient) WithHTTPClient(hc *http.Client) *SearchClient {
	c.http = hc
	return c
}

// Provider implements Client.
func (c *SearchClient) Provider() string { return "search" }

func (c *SearchClient) backendModel(alias string) string {
	if m, ok := c.cfg.Models[alias]; ok && m != "" {
		return m
	}
	return DefaultSearchModel
}

// Complete implements Client.
func (c *SearchClient) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := map[string]any{
		"model":       c.backendModel(req.Model),
		"query":       SanitizeQuery(req.UserText()),
		"max_results": req.IntOption("max_results", c.cfg.MaxResults),
	}

	start := time.Now()
	body, err := postJSON(ctx, c.http, c.url, c.cfg, payload)
	if err != nil {
		return nil, NewError(c.Provider(), "search", err, IsRetryable(err))
	}
	if !gjson.ValidBytes(body) {
		return nil, NewError(c.Provider(), "search", ErrInvalidResponse, false)
	}
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return nil, NewError(c.Provider(), "search",
			fmt.Errorf("%w: results", ErrMalformedResponse), false)
	}

	var citations []SearchResult
	answer := ""
	results.ForEach(func(_, r gjson.Result) bool {
		sr := SearchResult{
			Title:   r.Get("title").String(),
			URL:     r.Get("url").String(),
			Snippet: r.Get("snippet").String(),
		}
		if answer == "" && sr.Snippet != "" {
			answer = sr.Snippet
		}
		citations = append(citations, sr)
		return true
	})

	content := FormatSearchResults(answer, citations)
	return &Response{
		Content:  content,
		Usage:    TokenUsage{OutputTokens: len(answer) / 4, TotalTokens: len(answer) / 4},
		Model:    req.Model,
		Duration: time.Since(start),
		Metadata: map[string]any{"sources": citations},
	}, nil
}

// FormatSearchResults renders a search answer and its citations.
func FormatSearchResults(answer string, citations []SearchResult) string {
	var b strings.Builder
	b.WriteString("## Web Research Results\n\n")
	if answer != "" {
		b.WriteString(answer)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "### Sources (%d)\n", len(citations))
	for i, c := range citations {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, c.Title, c.URL)
	}
	return b.String()
}

var _ Client = (*SearchClient)(nil)
