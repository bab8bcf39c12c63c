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

const voyageBaseURL = "https://api.voyageai.com"

// VoyageClient embeds through the Voyage AI REST API.
type VoyageClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
	pacer   *ratelimit.Pacer
}

func NewVoyageClient(cfg *ClientConfig) (*VoyageClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Provider: ProviderVoyage, Missing: "api key"}
	}
	if cfg.Model == "" {
		cfg.Model = "voyage-3"
	}
	if cfg.Dim == 0 {
		switch cfg.Model {
		case "voyage-3-lite":
			cfg.Dim = 512
		default:
			cfg.Dim = 1024
		}
	}
	base := cfg.BaseURL
	if base == "" {
		base = voyageBaseURL
	}
	return &VoyageClient{
		http:    newHTTPClient(cfg, defaultEmbedTimeout),
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dim:     cfg.Dim,
		pacer:   newPacer(cfg),
	}, nil
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail"`
}

func (c *VoyageClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	b, err := json.Marshal(voyageRequest{Input: texts, Model: c.model, InputType: "document"})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providerError(ProviderVoyage, "embed", 0, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, providerError(ProviderVoyage, "embed", resp.StatusCode, err)
	}
	var out voyageResponse
	// error bodies are not always JSON; only a 200 must decode
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.pacer.Backoff(retryAfter(resp.Header))
		}
		msg := out.Detail
		if msg == "" {
			msg = resp.Status
		}
		return nil, providerError(ProviderVoyage, "embed", resp.StatusCode, errors.New(msg))
	}
	if decodeErr != nil {
		return nil, providerError(ProviderVoyage, "embed", resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}
	if len(out.Data) != len(texts) {
		return nil, providerError(ProviderVoyage, "embed", resp.StatusCode,
			fmt.Errorf("got %d embeddings for %d inputs", len(out.Data), len(texts)))
	}

	vecs := make([][]float32, len(texts))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vecs) {
			idx = i
		}
		vecs[idx] = d.Embedding
	}
	return vecs, nil
}

func (c *VoyageClient) Dim() int { return c.dim }

func (c *VoyageClient) Model() string { return c.model }
