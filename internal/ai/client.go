// Package ai wraps the embedding and chat providers behind two small
// interfaces.
package ai

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/seanblong/geoscore/internal/ratelimit"
)

// Embedder turns texts into vectors. Output order matches input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
	Model() string
}

// LLM generates a completion for a system and user prompt.
type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderVoyage    Provider = "voyage"
	ProviderVertexAI  Provider = "vertexai"
	ProviderAnthropic Provider = "anthropic"
	ProviderStub      Provider = "stub"
)

// EmbeddingProviders and LLMProviders list the accepted values for each role.
var (
	EmbeddingProviders = []Provider{ProviderOpenAI, ProviderVoyage, ProviderVertexAI, ProviderStub}
	LLMProviders       = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderVertexAI, ProviderStub}
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	Provider  Provider
	APIKey    string
	BaseURL   string
	Model     string
	Dim       int
	ProjectID string
	Location  string
	Timeout   time.Duration

	// MaxTokens and Temperature apply to LLM providers only.
	MaxTokens   int
	Temperature float32

	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int

	// InsecureSkipVerify disables TLS verification, for corporate proxies.
	InsecureSkipVerify bool
}

const (
	defaultEmbedTimeout = 30 * time.Second
	defaultLLMTimeout   = 60 * time.Second
	defaultMaxTokens    = 1500
)

// NewEmbedder creates an embedding provider based on configuration.
func NewEmbedder(ctx context.Context, cfg *ClientConfig) (Embedder, error) {
	if cfg == nil {
		return nil, &ConfigError{Missing: "config"}
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderVoyage:
		return NewVoyageClient(cfg)
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, cfg)
	case ProviderStub, "":
		return NewStubClient(cfg.Dim), nil
	}
	return nil, unsupported(cfg.Provider, "embedding")
}

// NewLLM creates a chat provider based on configuration.
func NewLLM(ctx context.Context, cfg *ClientConfig) (LLM, error) {
	if cfg == nil {
		return nil, &ConfigError{Missing: "config"}
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, cfg)
	case ProviderStub, "":
		return NewStubClient(cfg.Dim), nil
	}
	return nil, unsupported(cfg.Provider, "llm")
}

func newHTTPClient(cfg *ClientConfig, fallback time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func newPacer(cfg *ClientConfig) *ratelimit.Pacer {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return ratelimit.NewPacer(cfg.RequestsPerSecond, cfg.Burst)
}

func maxTokens(cfg *ClientConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return defaultMaxTokens
}
