package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/council/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRequest(model, text string) provider.Request {
	return provider.Request{
		Model:        model,
		SystemPrompt: "be brief",
		Messages:     []provider.Message{provider.NewTextMessage(provider.RoleUser, text)},
		Temperature:  0.7,
		MaxTokens:    100,
	}
}

// =============================================================================
// HTTPClient Tests
// =============================================================================

func TestHTTPClient_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{
			"model": "claude-sonnet",
			"choices": [{"message": {"content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := provider.NewHTTPClient(provider.Config{URL: srv.URL + "/v1/", APIKey: "secret"})
	resp, err := c.Complete(context.Background(), userRequest("claude-sonnet", "hi"))

	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, provider.TokenUsage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, resp.Usage)

	assert.Equal(t, "claude-sonnet", got["model"])
	assert.Equal(t, 100.0, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hi", msgs[1].(map[string]any)["content"])
}

func TestHTTPClient_URLNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://gw:4000/v1", "http://gw:4000/v1/chat/completions"},
		{"http://gw:4000/v1/", "http://gw:4000/v1/chat/completions"},
		{"http://gw:4000/v1/chat/completions", "http://gw:4000/v1/chat/completions"},
	}
	for _, tt := range tests {
		if got := provider.NewHTTPClient(provider.Config{URL: tt.in}).URL(); got != tt.want {
			t.Errorf("URL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTTPClient_MissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	resp, err := provider.NewHTTPClient(provider.Config{URL: srv.URL}).
		Complete(context.Background(), userRequest("gemini-flash", "hi"))

	require.NoError(t, err)
	assert.Equal(t, provider.TokenUsage{}, resp.Usage)
	assert.Equal(t, "gemini-flash", resp.Model)
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		retryable bool
	}{
		{"missing content", 200, `{"choices": []}`, provider.ErrMalformedResponse, false},
		{"null content", 200, `{"choices": [{"message": {"content": null}}]}`, provider.ErrMalformedResponse, false},
		{"not json", 200, `<html>`, provider.ErrInvalidResponse, false},
		{"server error", 502, `{"error": {"message": "upstream"}}`, provider.ErrUnavailable, true},
		{"rate limited", 429, `{}`, provider.ErrRateLimited, true},
		{"bad request", 400, `{"error": {"message": "bad model"}}`, provider.ErrInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := provider.NewHTTPClient(provider.Config{URL: srv.URL}).
				Complete(context.Background(), userRequest("m", "hi"))

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.retryable, provider.IsRetryable(err))
		})
	}
}

// stallingServer answers nothing until the test ends. The handler drains the
// body so the server notices a departed client, and release frees it before
// Close waits on it.
func stallingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

// delayedServer answers with content after delay.
func delayedServer(t *testing.T, delay time.Duration, content string) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-time.After(delay):
		case <-release:
			return
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "` + content + `"}}]}`))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := stallingServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.NewHTTPClient(provider.Config{URL: srv.URL}).Complete(ctx, userRequest("m", "hi"))
	require.Error(t, err)
	assert.True(t, provider.IsTimeout(err), "got %v", err)
}

func TestHTTPClient_Canceled(t *testing.T) {
	srv := stallingServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := provider.NewHTTPClient(provider.Config{URL: srv.URL}).Complete(ctx, userRequest("m", "hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, provider.IsTimeout(err))
}

func TestHTTPClient_ContextDeadlineOverridesBackendTimeout(t *testing.T) {
	srv := delayedServer(t, 150*time.Millisecond, "late but fine")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := provider.NewHTTPClient(provider.Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	resp, err := c.Complete(ctx, userRequest("m", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "late but fine", resp.Content)
}

func TestHTTPClient_BackendTimeoutWithoutDeadline(t *testing.T) {
	srv := stallingServer(t)

	c := provider.NewHTTPClient(provider.Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Complete(context.Background(), userRequest("m", "hi"))
	require.Error(t, err)
	assert.True(t, provider.IsTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSearchClient_ContextDeadlineOverridesBackendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-time.After(150 * time.Millisecond):
		case <-release:
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"title": "T", "url": "https://t.example", "snippet": "s"}]}`))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := provider.NewSearchClient(provider.Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	resp, err := c.Complete(ctx, userRequest("perplexity-online", "q"))
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "[T](https://t.example)")
}

func TestHTTPClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := provider.NewHTTPClient(provider.Config{URL: url}).Complete(context.Background(), userRequest("m", "hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

// =============================================================================
// SearchClient Tests
// =============================================================================

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"read /home/alice/notes.txt please", "read <PATH> please"},
		{`open C:\Users\bob\file.go now`, "open <PATH> now"},
		{"address 0xDEADbeef leaked", "address <HEX> leaked"},
		{"nothing to hide", "nothing to hide"},
	}
	for _, tt := range tests {
		if got := provider.SanitizeQuery(tt.in); got != tt.want {
			t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchClient_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results": [
			{"title": "Docs", "url": "https://a.example", "snippet": "Use version 2."},
			{"title": "Blog", "url": "https://b.example", "snippet": "Other."}
		]}`))
	}))
	defer srv.Close()

	cfg := provider.DefaultSearchConfig()
	cfg.URL = srv.URL
	c := provider.NewSearchClient(cfg)

	resp, err := c.Complete(context.Background(), userRequest("perplexity-researcher", "latest version of /opt/tool"))
	require.NoError(t, err)

	assert.Equal(t, "sonar-small-online", got["model"])
	assert.Equal(t, "latest version of <PATH>", got["query"])
	assert.Equal(t, 5.0, got["max_results"])

	want := "## Web Research Results\n\nUse version 2.\n\n### Sources (2)\n" +
		"1. [Docs](https://a.example)\n2. [Blog](https://b.example)\n"
	assert.Equal(t, want, resp.Content)
	assert.Equal(t, len("Use version 2.")/4, resp.Usage.TotalTokens)
	assert.Equal(t, "perplexity-researcher", resp.Model)
}

func TestSearchClient_MissingResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer": "x"}`))
	}))
	defer srv.Close()

	_, err := provider.NewSearchClient(provider.Config{URL: srv.URL}).
		Complete(context.Background(), userRequest("perplexity-online", "q"))
	assert.ErrorIs(t, err, provider.ErrMalformedResponse)
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, "## Web Research Results\n\n### Sources (0)\n", provider.FormatSearchResults("", nil))
}

// =============================================================================
// Router Tests
// =============================================================================

func TestRouter(t *testing.T) {
	chat := provider.NewMockClient("chat")
	search := provider.NewMockClient("search")

	r := provider.NewRouter(chat)
	r.Register("perplexity-online", search)

	resp, err := r.Complete(context.Background(), userRequest("perplexity-online", "q"))
	require.NoError(t, err)
	assert.Equal(t, "search", resp.Content)

	resp, err = r.Complete(context.Background(), userRequest("claude-sonnet", "q"))
	require.NoError(t, err)
	assert.Equal(t, "chat", resp.Content)

	assert.Equal(t, []string{"perplexity-online"}, r.Routes())
	assert.Panics(t, func() { r.Register("perplexity-online", search) })
}

func TestRouter_NoDefault(t *testing.T) {
	r := provider.NewRouter(nil)
	_, err := r.Complete(context.Background(), userRequest("claude-sonnet", "q"))
	assert.ErrorIs(t, err, provider.ErrUnknownModel)
}

// =============================================================================
// Config and Error Tests
// =============================================================================

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     provider.Config
		wantErr bool
	}{
		{"defaults", provider.DefaultConfig(), false},
		{"search defaults", provider.DefaultSearchConfig(), false},
		{"empty url", provider.Config{}, true},
		{"bad scheme", provider.Config{URL: "ftp://x"}, true},
		{"negative timeout", provider.Config{URL: "http://x", Timeout: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestError(t *testing.T) {
	err := provider.NewError("gateway", "complete", provider.ErrTimeout, true)
	assert.Equal(t, "gateway complete: request timed out", err.Error())
	assert.ErrorIs(t, err, provider.ErrTimeout)
	assert.True(t, provider.IsRetryable(err))
	assert.True(t, provider.IsTimeout(err))
	assert.True(t, provider.IsTimeout(context.DeadlineExceeded))
	assert.False(t, provider.IsTimeout(errors.New("boom")))
	assert.True(t, provider.IsMalformed(provider.NewError("x", "y", provider.ErrMalformedResponse, false)))
}

func TestTokenUsage(t *testing.T) {
	u := provider.TokenUsage{InputTokens: 1, OutputTokens: 2}
	u.Add(provider.TokenUsage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7})
	assert.Equal(t, provider.TokenUsage{InputTokens: 4, OutputTokens: 6, TotalTokens: 7}, u)
	assert.Equal(t, 3, provider.TokenUsage{InputTokens: 1, OutputTokens: 2}.Normalize().TotalTokens)
}

// =============================================================================
// MockClient Tests
// =============================================================================

func TestMockClient_SequentialResponses(t *testing.T) {
	mock := provider.NewMockClient("").WithResponses("first", "second")

	for _, want := range []string{"first", "second", "first"} {
		resp, err := mock.Complete(context.Background(), provider.Request{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
	assert.Equal(t, 3, mock.CallCount())

	mock.Reset()
	assert.Equal(t, 0, mock.CallCount())
	assert.Nil(t, mock.LastCall())
}

func TestMockClient_PerModel(t *testing.T) {
	boom := errors.New("boom")
	mock := provider.NewMockClient("default").
		WithModelResponse("a", "from a").
		WithModelError("b", boom)

	resp, err := mock.Complete(context.Background(), provider.Request{Model: "a"})
	require.NoError(t, err)
	assert.Equal(t, "from a", resp.Content)

	_, err = mock.Complete(context.Background(), provider.Request{Model: "b"})
	assert.Equal(t, boom, err)

	resp, err = mock.Complete(context.Background(), provider.Request{Model: "c"})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.Content)
	assert.Equal(t, 1, mock.CallsFor("b"))
	assert.Equal(t, "c", mock.LastCall().Model)
}

func TestMockClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.NewMockClient("x").Complete(ctx, provider.Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockClient_HandlerRunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	mock := provider.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		started.Done()
		<-release
		return &provider.Response{Content: req.Model}, nil
	})

	var done sync.WaitGroup
	for _, m := range []string{"a", "b"} {
		done.Add(1)
		go func(m string) {
			defer done.Done()
			_, _ = mock.Complete(context.Background(), provider.Request{Model: m})
		}(m)
	}

	// Both handlers must be running at once before either is released.
	started.Wait()
	close(release)
	done.Wait()
	assert.Equal(t, 2, mock.CallCount())
}
