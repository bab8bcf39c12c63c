package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/seanblong/geoscore/internal/ratelimit"
)

// OpenAIClient serves both roles through the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	dim    int
	cfg    *ClientConfig
	pacer  *ratelimit.Pacer
}

// NewOpenAIClient applies model defaults and returns a client. The embedding
// default is used unless Model names a chat model.
func NewOpenAIClient(cfg *ClientConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Provider: ProviderOpenAI, Missing: "api key"}
	}
	if cfg.Dim == 0 {
		switch cfg.Model {
		case "text-embedding-3-large":
			cfg.Dim = 3072
		default:
			cfg.Dim = 1536
		}
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = newHTTPClient(cfg, defaultLLMTimeout)

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		dim:    cfg.Dim,
		cfg:    cfg,
		pacer:  newPacer(cfg),
	}, nil
}

func (c *OpenAIClient) embedModel() string {
	if c.model == "" || strings.HasPrefix(c.model, "gpt") {
		return "text-embedding-3-small"
	}
	return c.model
}

func (c *OpenAIClient) chatModel() string {
	if c.model == "" || strings.HasPrefix(c.model, "text-embedding") {
		return "gpt-4o-mini"
	}
	return c.model
}

// Embed implements the embedding functionality
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embedModel()),
		Input: texts,
	})
	if err != nil {
		return nil, c.wrap("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, providerError(ProviderOpenAI, "embed", 0,
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// Generate implements the chat completion functionality
func (c *OpenAIClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel(),
		MaxTokens:   maxTokens(c.cfg),
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.wrap("generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", providerError(ProviderOpenAI, "generate", 0, errors.New("no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Dim() int { return c.dim }

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) wrap(op string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		c.pacer.Backoff(0)
	}
	return providerError(ProviderOpenAI, op, status, err)
}
