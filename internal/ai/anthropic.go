package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/geoscore/internal/ratelimit"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient generates completions through the Messages API.
type AnthropicClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	cfg     *ClientConfig
	pacer   *ratelimit.Pacer
}

func NewAnthropicClient(cfg *ClientConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Provider: ProviderAnthropic, Missing: "api key"}
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	base := cfg.BaseURL
	if base == "" {
		base = anthropicBaseURL
	}
	return &AnthropicClient{
		http:    newHTTPClient(cfg, defaultLLMTimeout),
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		cfg:     cfg,
		pacer:   newPacer(cfg),
	}, nil
}

type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", err
	}
	b, err := json.Marshal(messagesRequest{
		Model:       c.model,
		Messages:    []messagesMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens(c.cfg),
		System:      system,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", providerError(ProviderAnthropic, "generate", 0, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", providerError(ProviderAnthropic, "generate", resp.StatusCode, err)
	}
	var out messagesResponse
	// error bodies are not always JSON; only a 200 must decode
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.pacer.Backoff(retryAfter(resp.Header))
		}
		msg := resp.Status
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", providerError(ProviderAnthropic, "generate", resp.StatusCode, errors.New(msg))
	}

	if decodeErr != nil {
		return "", providerError(ProviderAnthropic, "generate", resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}
	var sb strings.Builder
	for _, part := range out.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", providerError(ProviderAnthropic, "generate", resp.StatusCode, errors.New("empty response"))
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *AnthropicClient) Model() string { return c.model }
