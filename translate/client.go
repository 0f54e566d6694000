package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minios-linux/lokat/usage"
)

// DefaultMaxRetries is used when Client.MaxRetries is zero.
const DefaultMaxRetries = 3

// Result is a provider answer. Text is returned as received; callers
// normalize it with CleanOutput.
type Result struct {
	Text  string
	Usage usage.Usage
}

// APIError is a non-success HTTP response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, truncate(e.Body, 500))
}

// Client calls one provider. It is safe for concurrent use.
type Client struct {
	Provider Provider
	// MaxRetries is the number of retries after a 429, 5xx or transport error.
	MaxRetries int
	// Timeout overrides Provider.Timeout when set.
	Timeout time.Duration
	// Logger receives request diagnostics. Nil means no logging.
	Logger *zap.Logger

	once   sync.Once
	client *http.Client
	rl     rateLimitState

	// wait sleeps between attempts; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient returns a client for p.
func NewClient(p Provider) *Client {
	return &Client{Provider: p}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Client) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	if c.Provider.Timeout > 0 {
		return c.Provider.Timeout
	}
	return 120 * time.Second
}

func (c *Client) httpClient() *http.Client {
	c.once.Do(func() {
		c.client = makeHTTPClient(c.Provider.Proxy, c.timeout())
	})
	return c.client
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.wait != nil {
		return c.wait(ctx, d)
	}
	return sleepContext(ctx, d)
}

// Validate checks the provider configuration without calling it.
func (c *Client) Validate() error {
	return c.Provider.Validate()
}

// Translate sends req to the provider and returns the raw answer with the
// token usage the provider reported.
func (c *Client) Translate(ctx context.Context, req Request) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	system, user := BuildPrompt(req)
	text, u, err := c.call(ctx, system, user)
	if err != nil {
		return Result{}, err
	}
	if u.Model == "" {
		u.Model = c.Provider.Model
	}
	return Result{Text: text, Usage: u}, nil
}

// ---------------------------------------------------------------------------
// Rate limit state
// ---------------------------------------------------------------------------

// rateLimitState makes every caller of a client wait out a 429 pause.
type rateLimitState struct {
	mu    sync.Mutex
	until time.Time
}

func (r *rateLimitState) pause(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if end := time.Now().Add(d); end.After(r.until) {
		r.until = end
	}
}

func (r *rateLimitState) remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Until(r.until)
}

// ---------------------------------------------------------------------------
// HTTP client with proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Request loop
// ---------------------------------------------------------------------------

func (c *Client) call(ctx context.Context, system, user string) (string, usage.Usage, error) {
	endpoint, headers, body, err := buildHTTPRequest(c.Provider, system, user)
	if err != nil {
		return "", usage.Usage{}, fmt.Errorf("building request: %w", err)
	}

	log := c.logger().With(zap.String("provider", c.Provider.ID), zap.String("model", c.Provider.Model))
	maxRetries := c.maxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.sleep(ctx, c.rl.remaining()); err != nil {
			return "", usage.Usage{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", usage.Usage{}, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		log.Debug("sending request", zap.Int("attempt", attempt+1), zap.String("endpoint", endpoint))

		resp, err := c.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", usage.Usage{}, ctx.Err()
			}
			if attempt < maxRetries {
				log.Warn("request failed, retrying", zap.Error(err))
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return "", usage.Usage{}, err
				}
				continue
			}
			return "", usage.Usage{}, fmt.Errorf("API request failed: %w", err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", usage.Usage{}, fmt.Errorf("reading response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt < maxRetries {
				delay := parseRetryDelay(respBody)
				log.Warn("rate limited", zap.Duration("delay", delay), zap.Int("attempt", attempt+1))
				c.rl.pause(delay)
				continue
			}
			return "", usage.Usage{}, fmt.Errorf("rate limited after %d retries: %w", maxRetries,
				&APIError{Status: resp.StatusCode, Body: string(respBody)})
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				log.Warn("server error, retrying", zap.Int("status", resp.StatusCode))
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return "", usage.Usage{}, err
				}
				continue
			}
			return "", usage.Usage{}, &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}

		return parseResponse(respBody)
	}

	return "", usage.Usage{}, fmt.Errorf("exhausted all %d retries", maxRetries)
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// ---------------------------------------------------------------------------
// Request builders
// ---------------------------------------------------------------------------

type apiFormat int

const (
	formatOpenAIChat   apiFormat = iota // OpenAI chat/completions
	formatGeminiNative                  // Google Gemini generateContent
	formatAnthropic                     // Anthropic messages
)

const temperature = 0.3

// buildHTTPRequest returns the endpoint, headers and body for a provider call.
func buildHTTPRequest(prov Provider, system, user string) (string, map[string]string, []byte, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	base := strings.TrimRight(prov.BaseURL, "/")

	var endpoint string
	var body []byte
	var err error

	switch prov.format() {
	case formatGeminiNative:
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, prov.Model)
		if prov.APIKey != "" {
			headers["x-goog-api-key"] = prov.APIKey
		}
		body, err = buildGeminiRequest(system, user)

	case formatAnthropic:
		endpoint = base + "/messages"
		if prov.APIKey != "" {
			headers["x-api-key"] = prov.APIKey
		}
		headers["anthropic-version"] = "2023-06-01"
		body, err = buildAnthropicRequest(prov.Model, system, user)

	default:
		endpoint = base
		if !strings.HasSuffix(base, "/chat/completions") {
			endpoint = base + "/chat/completions"
		}
		if prov.APIKey != "" {
			headers["Authorization"] = "Bearer " + prov.APIKey
		}
		body, err = buildOpenAIChatRequest(prov.Model, system, user)
	}

	if err != nil {
		return "", nil, nil, err
	}
	return endpoint, headers, body, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildOpenAIChatRequest(model, system, user string) ([]byte, error) {
	return json.Marshal(struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
		Stream      bool          `json:"stream"`
	}{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
}

func buildGeminiRequest(system, user string) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents:         []content{{Role: "user", Parts: []part{{Text: user}}}},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if system != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	return json.Marshal(req)
}

func buildAnthropicRequest(model, system, user string) ([]byte, error) {
	return json.Marshal(struct {
		Model     string        `json:"model"`
		MaxTokens int           `json:"max_tokens"`
		System    string        `json:"system,omitempty"`
		Messages  []chatMessage `json:"messages"`
	}{
		Model:     model,
		MaxTokens: 4096,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: user}},
	})
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// apiResponse covers the fields lokat reads from all supported formats.
type apiResponse struct {
	Error json.RawMessage `json:"error"`
	Model string          `json:"model"`

	// OpenAI chat
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`

	// Gemini
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`

	// Anthropic content blocks; OpenAI usage and Anthropic usage share a key.
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
	} `json:"usage"`
}

// parseResponse extracts the answer text and token usage from any
// supported response format.
func parseResponse(body []byte) (string, usage.Usage, error) {
	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", usage.Usage{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(r.Error) > 0 && string(r.Error) != "null" {
		return "", usage.Usage{}, fmt.Errorf("API error: %s", errorMessage(r.Error))
	}

	u := usage.Usage{Model: r.Model}
	if r.Usage != nil {
		u.PromptTokens = r.Usage.PromptTokens + r.Usage.InputTokens
		u.CompletionTokens = r.Usage.CompletionTokens + r.Usage.OutputTokens
		u.TotalTokens = r.Usage.TotalTokens
	}
	if r.UsageMetadata != nil {
		u.PromptTokens = r.UsageMetadata.PromptTokenCount
		u.CompletionTokens = r.UsageMetadata.CandidatesTokenCount
		u.TotalTokens = r.UsageMetadata.TotalTokenCount
		if u.Model == "" {
			u.Model = r.ModelVersion
		}
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}

	switch {
	case len(r.Choices) > 0:
		return r.Choices[0].Message.Content, u, nil
	case len(r.Candidates) > 0 && len(r.Candidates[0].Content.Parts) > 0:
		var sb strings.Builder
		for _, p := range r.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		return sb.String(), u, nil
	}
	for _, block := range r.Content {
		if block.Type == "text" {
			return block.Text, u, nil
		}
	}

	return "", usage.Usage{}, fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

func errorMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// parseRetryDelay reads Google's RetryInfo detail from a 429 body and adds
// a small buffer. Without one, 60s plus the buffer is used.
func parseRetryDelay(body []byte) time.Duration {
	const buffer = 5 * time.Second
	const defaultDelay = 60*time.Second + buffer

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}

	for _, detail := range errResp.Error.Details {
		if !strings.Contains(detail.Type, "RetryInfo") || detail.RetryDelay == "" {
			continue
		}
		if secs, err := strconv.ParseFloat(strings.TrimSuffix(detail.RetryDelay, "s"), 64); err == nil {
			return time.Duration(secs*float64(time.Second)) + buffer
		}
	}
	return defaultDelay
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
