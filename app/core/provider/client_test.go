package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "planpro/app/configs"
	"planpro/app/pkg/types"
)

func TestCheckConfig(t *testing.T) {
	c := NewClient()

	if err := c.CheckConfig(config.AIConfig{Provider: "nope"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if err := c.CheckConfig(config.AIConfig{Provider: "groq"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if err := c.CheckConfig(config.AIConfig{Provider: "ollama"}); err != nil {
		t.Fatalf("ollama needs no key, got %v", err)
	}
	if err := c.CheckConfig(config.AIConfig{Provider: "custom"}); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("custom without endpoint should fail, got %v", err)
	}
	if err := c.CheckConfig(config.AIConfig{Provider: "baidu", APIKey: "k"}); err == nil {
		t.Fatal("baidu without secret key should fail")
	}
}

func TestInvokeOllamaFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("ollama request should carry no auth header")
		}
		w.Write([]byte(`{"message":{"content":"好的"}}`))
	}))
	defer srv.Close()

	c := NewClient()
	cfg := config.AIConfig{Provider: "ollama", CustomEndpoint: srv.URL, Temperature: 0.7, MaxTokens: 100}
	got, err := c.Invoke(context.Background(), cfg, "你好", "system prompt")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "好的" {
		t.Fatalf("got %q", got)
	}
}

func TestInvokeStreamFallbackEmitsOneChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"full reply"}}`))
	}))
	defer srv.Close()

	c := NewClient()
	cfg := config.AIConfig{Provider: "ollama", CustomEndpoint: srv.URL}

	var chunks []string
	got, err := c.InvokeStream(context.Background(), cfg,
		[]types.ModelMessage{{Role: "user", Content: "hi"}},
		func(delta, full string) { chunks = append(chunks, delta) })
	if err != nil {
		t.Fatalf("InvokeStream failed: %v", err)
	}
	if got != "full reply" {
		t.Fatalf("got %q", got)
	}
	if len(chunks) != 1 || chunks[0] != "full reply" {
		t.Fatalf("expected one full-text chunk, got %v", chunks)
	}
}

func TestAnthropicAuthAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"claude says hi"}]}`))
	}))
	defer srv.Close()

	c := NewClient()
	cfg := config.AIConfig{Provider: "anthropic", APIKey: "sk-test", CustomEndpoint: srv.URL}
	got, err := c.Invoke(context.Background(), cfg, "hi", "")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "claude says hi" {
		t.Fatalf("got %q", got)
	}
}

func TestGoogleQueryKeyAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "g-key" {
			t.Errorf("missing key query param, url=%s", r.URL.String())
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"gemini reply"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient()
	cfg := config.AIConfig{Provider: "google", APIKey: "g-key", CustomEndpoint: srv.URL}
	got, err := c.Invoke(context.Background(), cfg, "hi", "sys")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "gemini reply" {
		t.Fatalf("got %q", got)
	}
}

func TestErrorStatusSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient()
	cfg := config.AIConfig{Provider: "ollama", CustomEndpoint: srv.URL}
	_, err := c.Invoke(context.Background(), cfg, "hi", "")
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if want := "rate limited"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q should mention %q", err, want)
	}
}

func TestBaiduTokenCached(t *testing.T) {
	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Write([]byte(`{"access_token":"tok-1","expires_in":2592000}`))
	}))
	defer srv.Close()

	tc := NewTokenCache()
	client := &http.Client{Timeout: 5 * time.Second}

	for i := 0; i < 3; i++ {
		tok, err := tc.Get(context.Background(), client, srv.URL, "ak", "sk")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("got token %q", tok)
		}
	}
	if tokenCalls != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", tokenCalls)
	}
}

func TestBaiduTokenEarlyRefresh(t *testing.T) {
	now := time.Now()
	tc := NewTokenCache()
	tc.now = func() time.Time { return now }

	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Write([]byte(`{"access_token":"tok","expires_in":600}`))
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	if _, err := tc.Get(context.Background(), client, srv.URL, "ak", "sk"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// 600s ttl with 300s early refresh leaves a 300s window.
	now = now.Add(299 * time.Second)
	if _, err := tc.Get(context.Background(), client, srv.URL, "ak", "sk"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tokenCalls != 1 {
		t.Fatalf("token refetched inside the window, calls=%d", tokenCalls)
	}

	now = now.Add(2 * time.Second)
	if _, err := tc.Get(context.Background(), client, srv.URL, "ak", "sk"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tokenCalls != 2 {
		t.Fatalf("token not refreshed past the window, calls=%d", tokenCalls)
	}
}

func TestOpenAIBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://api.groq.com/openai/v1/chat/completions": "https://api.groq.com/openai/v1/",
		"http://localhost:1234/v1/chat/completions":       "http://localhost:1234/v1/",
		"https://example.com/v1/":                         "https://example.com/v1/",
	}
	for in, want := range cases {
		if got := openAIBaseURL(in); got != want {
			t.Errorf("openAIBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]types.ModelMessage{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if system != "rules" {
		t.Fatalf("system = %q", system)
	}
	if len(rest) != 2 || rest[0].Role != "user" || rest[1].Role != "assistant" {
		t.Fatalf("rest = %+v", rest)
	}
}
