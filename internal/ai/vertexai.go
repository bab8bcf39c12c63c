package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/seanblong/geoscore/internal/ratelimit"
)

// VertexAIClient serves both roles through Gemini on Vertex AI.
type VertexAIClient struct {
	client *genai.Client
	model  string
	dim    int
	cfg    *ClientConfig
	pacer  *ratelimit.Pacer
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, cfg *ClientConfig) (*VertexAIClient, error) {
	if cfg == nil {
		return nil, &ConfigError{Provider: ProviderVertexAI, Missing: "config"}
	}
	if cfg.Dim == 0 {
		cfg.Dim = 768
	}
	if cfg.Location == "" && strings.TrimSpace(cfg.APIKey) == "" {
		cfg.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		cc.APIKey = cfg.APIKey
	}
	if strings.TrimSpace(cfg.ProjectID) != "" {
		cc.Project = cfg.ProjectID
	}
	if strings.TrimSpace(cfg.Location) != "" {
		cc.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		client: client,
		model:  cfg.Model,
		dim:    cfg.Dim,
		cfg:    cfg,
		pacer:  newPacer(cfg),
	}, nil
}

func (c *VertexAIClient) embedModel() string {
	if c.model == "" || strings.HasPrefix(c.model, "gemini") {
		return "text-embedding-005"
	}
	return c.model
}

func (c *VertexAIClient) chatModel() string {
	if c.model == "" || strings.Contains(c.model, "embedding") {
		return "gemini-2.0-flash"
	}
	return c.model
}

// Embed implements the embedding functionality using the Gemini API
func (c *VertexAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}
	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}

	res, err := c.client.Models.EmbedContent(ctx, c.embedModel(), contents, &cfg)
	if err != nil {
		return nil, c.wrap("embed", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, providerError(ProviderVertexAI, "embed", 0, errors.New("embedding count mismatch"))
	}

	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, providerError(ProviderVertexAI, "embed", 0, errors.New("no embedding returned"))
		}
		out[i] = e.Values
	}
	return out, nil
}

// Generate implements the completion functionality using the Gemini API
func (c *VertexAIClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", err
	}
	temp := c.cfg.Temperature
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(maxTokens(c.cfg)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.Text(system)[0]
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel(), genai.Text(prompt), &cfg)
	if err != nil {
		return "", c.wrap("generate", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", providerError(ProviderVertexAI, "generate", 0, errors.New("no content returned"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *VertexAIClient) Dim() int { return c.dim }

func (c *VertexAIClient) Model() string { return c.model }

func (c *VertexAIClient) wrap(op string, err error) error {
	status := 0
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Code
	}
	if status == 429 {
		c.pacer.Backoff(0)
	}
	return providerError(ProviderVertexAI, op, status, err)
}
