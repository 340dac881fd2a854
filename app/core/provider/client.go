package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	config "planpro/app/configs"
	"planpro/app/pkg/logger"
	"planpro/app/pkg/types"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("api key is not configured")
	ErrMissingEndpoint = errors.New("provider endpoint is not configured")
)

// Client talks to whichever provider the current config names. All
// OpenAI-compatible providers go through the official SDK; the rest go
// through per-format request builders over plain HTTP.
type Client struct {
	httpClient  *http.Client
	baiduTokens *TokenCache
}

func NewClient() *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baiduTokens: NewTokenCache(),
	}
}

// NewClientWith allows tests to inject the HTTP client and token cache.
func NewClientWith(httpClient *http.Client, tokens *TokenCache) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if tokens == nil {
		tokens = NewTokenCache()
	}
	return &Client{httpClient: httpClient, baiduTokens: tokens}
}

func (c *Client) CheckConfig(cfg config.AIConfig) error {
	p, ok := Lookup(cfg.Provider)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if c.endpointFor(p, cfg) == "" {
		return ErrMissingEndpoint
	}
	if p.AuthType != AuthNone && strings.TrimSpace(cfg.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if p.AuthType == AuthBaiduToken && strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("baidu requires both api key and secret key")
	}
	return nil
}

// Invoke sends one prompt round trip and returns the full reply text.
func (c *Client) Invoke(ctx context.Context, cfg config.AIConfig, userMessage, systemPrompt string) (string, error) {
	messages := make([]types.ModelMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, types.ModelMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, types.ModelMessage{Role: "user", Content: userMessage})
	return c.complete(ctx, cfg, messages, nil)
}

// InvokeStream streams the reply through onChunk when the provider
// supports it. Non-streaming formats fall back to one full-text chunk.
func (c *Client) InvokeStream(ctx context.Context, cfg config.AIConfig, messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
	return c.complete(ctx, cfg, messages, onChunk)
}

// TestConnection fires a short probe at the configured provider.
func (c *Client) TestConnection(ctx context.Context, cfg config.AIConfig) error {
	if err := c.CheckConfig(cfg); err != nil {
		return err
	}
	reply, err := c.Invoke(ctx, cfg, `你好，请回复"连接成功"`, "")
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return fmt.Errorf("provider returned an empty reply")
	}
	return nil
}

func (c *Client) complete(ctx context.Context, cfg config.AIConfig, messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
	p, ok := Lookup(cfg.Provider)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	endpoint := c.endpointFor(p, cfg)
	if endpoint == "" {
		return "", ErrMissingEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = p.DefaultModel
	}

	logger.Info("provider request: %s model=%s stream=%v", p.ID, model, onChunk != nil)

	if p.BodyFormat == FormatOpenAI {
		return c.completeOpenAI(ctx, cfg, endpoint, model, messages, onChunk)
	}
	text, err := c.completeRaw(ctx, cfg, p, endpoint, model, messages)
	if err != nil {
		return "", err
	}
	if onChunk != nil && text != "" {
		onChunk(text, text)
	}
	return text, nil
}

// completeOpenAI covers every OpenAI-compatible provider via the SDK.
// The table stores full chat-completions URLs; the SDK wants the API
// base, so the path suffix is stripped off.
func (c *Client) completeOpenAI(ctx context.Context, cfg config.AIConfig, endpoint, model string, messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
	opts := []option.RequestOption{
		option.WithBaseURL(openAIBaseURL(endpoint)),
		option.WithHTTPClient(c.httpClient),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	for k, v := range cfg.CustomHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	client := openai.NewClient(opts...)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(cfg.Temperature),
		MaxTokens:   openai.Int(int64(cfg.MaxTokens)),
	}

	if onChunk == nil {
		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("provider returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		onChunk(delta, full.String())
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return full.String(), nil
}

func toOpenAIMessages(messages []types.ModelMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func openAIBaseURL(endpoint string) string {
	base := strings.TrimSuffix(endpoint, "/chat/completions")
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// completeRaw handles the non-OpenAI wire formats.
func (c *Client) completeRaw(ctx context.Context, cfg config.AIConfig, p Provider, endpoint, model string, messages []types.ModelMessage) (string, error) {
	endpoint = strings.ReplaceAll(endpoint, "{model}", model)
	endpoint = strings.ReplaceAll(endpoint, "{account_id}", cfg.AccountID)

	body, err := buildBody(p.BodyFormat, cfg, model, messages)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range cfg.CustomHeaders {
		req.Header.Set(k, v)
	}

	switch p.AuthType {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	case AuthXAPIKey:
		req.Header.Set("x-api-key", cfg.APIKey)
	case AuthQueryKey:
		q := req.URL.Query()
		q.Set("key", cfg.APIKey)
		req.URL.RawQuery = q.Encode()
	case AuthBaiduToken:
		token, err := c.baiduTokens.Get(ctx, c.httpClient, p.TokenEndpoint, cfg.APIKey, cfg.SecretKey)
		if err != nil {
			return "", err
		}
		q := req.URL.Query()
		q.Set("access_token", token)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s request failed: status %d: %s", p.ID, resp.StatusCode, errorDetail(raw))
	}
	return parseResponse(p.BodyFormat, raw)
}

func buildBody(format string, cfg config.AIConfig, model string, messages []types.ModelMessage) ([]byte, error) {
	switch format {
	case FormatBaidu:
		system, rest := splitSystem(messages)
		body := map[string]interface{}{
			"messages":          rest,
			"temperature":       cfg.Temperature,
			"max_output_tokens": cfg.MaxTokens,
		}
		if system != "" {
			body["system"] = system
		}
		return json.Marshal(body)
	case FormatAnthropic:
		system, rest := splitSystem(messages)
		body := map[string]interface{}{
			"model":       model,
			"messages":    rest,
			"max_tokens":  cfg.MaxTokens,
			"temperature": cfg.Temperature,
		}
		if system != "" {
			body["system"] = system
		}
		return json.Marshal(body)
	case FormatGoogle:
		system, rest := splitSystem(messages)
		contents := make([]map[string]interface{}, 0, len(rest))
		for _, m := range rest {
			role := "user"
			if m.Role == "assistant" {
				role = "model"
			}
			contents = append(contents, map[string]interface{}{
				"role":  role,
				"parts": []map[string]string{{"text": m.Content}},
			})
		}
		body := map[string]interface{}{
			"contents": contents,
			"generationConfig": map[string]interface{}{
				"temperature":     cfg.Temperature,
				"maxOutputTokens": cfg.MaxTokens,
			},
		}
		if system != "" {
			body["systemInstruction"] = map[string]interface{}{
				"parts": []map[string]string{{"text": system}},
			}
		}
		return json.Marshal(body)
	case FormatCohere:
		var last string
		for _, m := range messages {
			if m.Role == "user" {
				last = m.Content
			}
		}
		system, _ := splitSystem(messages)
		body := map[string]interface{}{
			"message":     last,
			"model":       model,
			"temperature": cfg.Temperature,
			"max_tokens":  cfg.MaxTokens,
		}
		if system != "" {
			body["preamble"] = system
		}
		return json.Marshal(body)
	case FormatCloudflare:
		return json.Marshal(map[string]interface{}{
			"messages":    messages,
			"temperature": cfg.Temperature,
			"max_tokens":  cfg.MaxTokens,
		})
	case FormatOllama:
		return json.Marshal(map[string]interface{}{
			"model":    model,
			"messages": messages,
			"stream":   false,
			"options": map[string]interface{}{
				"temperature": cfg.Temperature,
			},
		})
	default:
		return nil, fmt.Errorf("unsupported body format: %s", format)
	}
}

// splitSystem pulls the system prompt out for formats that carry it in
// a dedicated field.
func splitSystem(messages []types.ModelMessage) (string, []types.ModelMessage) {
	var system string
	rest := make([]types.ModelMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system == "" {
				system = m.Content
			} else {
				system += "\n" + m.Content
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func parseResponse(format string, raw []byte) (string, error) {
	var path string
	switch format {
	case FormatBaidu:
		if code := gjson.GetBytes(raw, "error_code"); code.Exists() && code.Int() != 0 {
			return "", fmt.Errorf("baidu error %d: %s", code.Int(), gjson.GetBytes(raw, "error_msg").String())
		}
		path = "result"
	case FormatAnthropic:
		path = "content.0.text"
	case FormatGoogle:
		path = "candidates.0.content.parts.0.text"
	case FormatCohere:
		path = "text"
	case FormatCloudflare:
		path = "result.response"
	case FormatOllama:
		path = "message.content"
	default:
		path = "choices.0.message.content"
	}
	text := gjson.GetBytes(raw, path).String()
	if text == "" {
		return "", fmt.Errorf("provider response missing %s: %s", path, errorDetail(raw))
	}
	return text, nil
}

func errorDetail(raw []byte) string {
	for _, path := range []string{"error.message", "error_msg", "message", "error"} {
		if v := gjson.GetBytes(raw, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (c *Client) endpointFor(p Provider, cfg config.AIConfig) string {
	if strings.TrimSpace(cfg.CustomEndpoint) != "" {
		return strings.TrimSpace(cfg.CustomEndpoint)
	}
	return p.Endpoint
}
