package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// DefaultModel is used when Config.Model is empty and
	// ANTHROPIC_DEFAULT_MODEL is unset.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultEndpoint is the Anthropic Messages API.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultMaxTokens bounds a single turn's response.
	DefaultMaxTokens = 4096
	// DefaultTemperature is Anthropic's own API default.
	DefaultTemperature = 1.0
	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 60 * time.Second

	anthropicVersion = "2023-06-01"
)

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client is a thin HTTP client for the Anthropic Messages API. It holds
// no conversation state; callers of Send (such as Provider) own the
// per-agent message history.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewClient returns a Client, applying environment-variable fallbacks
// for any zero-valued Config field.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = os.Getenv("ANTHROPIC_DEFAULT_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("ANTHROPIC_API_ENDPOINT")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		endpoint:    cfg.Endpoint,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Send issues one Messages API call, given a pre-built system prompt,
// conversation so far, and the tools on offer.
func (c *Client) Send(ctx context.Context, system string, messages []Message, tools []Tool) (*MessagesResponse, error) {
	req := &MessagesRequest{
		Model: c.model, Messages: messages, MaxTokens: c.maxTokens,
		Temperature: c.temperature, System: system, Tools: tools,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out MessagesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}
