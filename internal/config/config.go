package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/seanblong/geoscore/internal/ai"
	"github.com/seanblong/geoscore/internal/chunker"
	"github.com/seanblong/geoscore/internal/pillars"
	"github.com/seanblong/geoscore/internal/scoring"
)

type Specification struct {
	Embedding EmbeddingSpecification `yaml:"embedding"`
	LLM       LLMSpecification       `yaml:"llm"`
	Chunk     ChunkSpecification     `yaml:"chunk"`
	RateLimit RateLimitSpecification `yaml:"rateLimit" split_words:"true"`
	Cache     CacheSpecification     `yaml:"cache"`
	Scoring   ScoringSpecification   `yaml:"scoring"`
	Indexer   IndexerSpecification   `yaml:"indexer"`
	Auth      AuthSpecification      `yaml:"auth"`

	// Database selects the document store; empty keeps documents in memory.
	Database string `yaml:"database" envconfig:"DB_URL"`
	LogLevel string `yaml:"logLevel" split_words:"true"`
	Port     int    `yaml:"port" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

type EmbeddingSpecification struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"apiKey" envconfig:"API_KEY"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"baseURL" envconfig:"BASE_URL"`
	Dim               int           `yaml:"dim"`
	ProjectID         string        `yaml:"projectID" envconfig:"PROJECT_ID"`
	Location          string        `yaml:"location"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" split_words:"true"`
}

type LLMSpecification struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"apiKey" envconfig:"API_KEY"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"baseURL" envconfig:"BASE_URL"`
	ProjectID   string        `yaml:"projectID" envconfig:"PROJECT_ID"`
	Location    string        `yaml:"location"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"maxTokens" split_words:"true"`
	Temperature float32       `yaml:"temperature"`
}

type ChunkSpecification struct {
	Strategy string `yaml:"strategy"`
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

// RateLimitSpecification bounds embedding calls per tenant (or client IP)
// within Window. Zero limits disable the limiter.
type RateLimitSpecification struct {
	Requests      int           `yaml:"requests"`
	BatchRequests int           `yaml:"batchRequests" split_words:"true"`
	Window        time.Duration `yaml:"window"`
}

type CacheSpecification struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
}

type ScoringSpecification struct {
	Weights    map[string]float64 `yaml:"weights"`
	AICrawlers []string           `yaml:"aiCrawlers" split_words:"true"`
}

type IndexerSpecification struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"baseURL" envconfig:"BASE_URL"`
	Tenant  string `yaml:"tenant"`
	Workers int    `yaml:"workers"`
}

type AuthSpecification struct {
	Enabled   bool          `yaml:"enabled"`
	JwtSecret string        `yaml:"jwtSecret" split_words:"true"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"tokenTTL" envconfig:"TOKEN_TTL"`
}

const envPrefix = "GEOSCORE"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/geoscore.yaml",
				"config/config.yaml",
				"./geoscore.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate rejects enumerated options outside their accepted sets.
func (s *Specification) Validate() error {
	if !oneOf(ai.Provider(s.Embedding.Provider), ai.EmbeddingProviders) {
		return fmt.Errorf("unsupported embedding provider %q", s.Embedding.Provider)
	}
	if !oneOf(ai.Provider(s.LLM.Provider), ai.LLMProviders) {
		return fmt.Errorf("unsupported llm provider %q", s.LLM.Provider)
	}
	if _, err := chunker.ParseStrategy(s.Chunk.Strategy); err != nil {
		return err
	}
	if s.Chunk.Size <= 0 || s.Chunk.Overlap < 0 || s.Chunk.Overlap >= s.Chunk.Size {
		return fmt.Errorf("chunk overlap %d must be below chunk size %d", s.Chunk.Overlap, s.Chunk.Size)
	}
	if s.RateLimit.Requests < 0 || s.RateLimit.BatchRequests < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if (s.RateLimit.Requests > 0 || s.RateLimit.BatchRequests > 0) && s.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if _, err := s.Scoring.PillarWeights(); err != nil {
		return err
	}
	if s.Auth.Enabled && strings.TrimSpace(s.Auth.JwtSecret) == "" {
		return fmt.Errorf("%s_AUTH_JWT_SECRET is required when auth is enabled", envPrefix)
	}
	return nil
}

// PillarWeights converts the configured weights, rejecting unknown pillars.
func (s ScoringSpecification) PillarWeights() (scoring.Weights, error) {
	if len(s.Weights) == 0 {
		return nil, nil
	}
	w := make(scoring.Weights, len(s.Weights))
	for k, v := range s.Weights {
		key := pillars.Key(strings.ToLower(strings.TrimSpace(k)))
		if _, ok := pillars.Lookup(key); !ok {
			return nil, fmt.Errorf("unknown pillar weight %q", k)
		}
		if v < 0 {
			return nil, fmt.Errorf("negative weight %v for pillar %q", v, k)
		}
		w[key] = v
	}
	return w, nil
}

// EmbeddingClient returns the provider config for the embedding role.
func (s *Specification) EmbeddingClient() *ai.ClientConfig {
	e := s.Embedding
	return &ai.ClientConfig{
		Provider:          ai.Provider(e.Provider),
		APIKey:            e.APIKey,
		BaseURL:           e.BaseURL,
		Model:             e.Model,
		Dim:               e.Dim,
		ProjectID:         e.ProjectID,
		Location:          e.Location,
		Timeout:           e.Timeout,
		RequestsPerSecond: e.RequestsPerSecond,
	}
}

// LLMClient returns the provider config for the LLM role.
func (s *Specification) LLMClient() *ai.ClientConfig {
	l := s.LLM
	return &ai.ClientConfig{
		Provider:    ai.Provider(l.Provider),
		APIKey:      l.APIKey,
		BaseURL:     l.BaseURL,
		Model:       l.Model,
		ProjectID:   l.ProjectID,
		Location:    l.Location,
		Timeout:     l.Timeout,
		MaxTokens:   l.MaxTokens,
		Temperature: l.Temperature,
	}
}

// ---------- helpers ----------

func oneOf(p ai.Provider, set []ai.Provider) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("embedding-provider", c.Embedding.Provider, "Embedding provider (openai|voyage|vertexai|stub)")
	fs.String("embedding-api-key", c.Embedding.APIKey, "Embedding provider API key")
	fs.String("embedding-model", c.Embedding.Model, "Embedding model")
	fs.Int("embedding-dim", c.Embedding.Dim, "Embedding dimensionality")
	fs.String("embedding-project-id", c.Embedding.ProjectID, "Embedding provider project ID")
	fs.String("embedding-location", c.Embedding.Location, "Embedding provider location/region")

	fs.String("llm-provider", c.LLM.Provider, "LLM provider (openai|anthropic|vertexai|stub)")
	fs.String("llm-api-key", c.LLM.APIKey, "LLM provider API key")
	fs.String("llm-model", c.LLM.Model, "LLM model")

	fs.String("chunk-strategy", c.Chunk.Strategy, "Chunk strategy (semantic|fixed|sentence|paragraph)")
	fs.Int("chunk-size", c.Chunk.Size, "Chunk size in characters")
	fs.Int("chunk-overlap", c.Chunk.Overlap, "Chunk overlap in characters")

	fs.Int("rate-limit-requests", c.RateLimit.Requests, "Embedding calls per window per tenant (0 disables)")
	fs.Int("rate-limit-batch-requests", c.RateLimit.BatchRequests, "Batch embedding calls per window per tenant (0 disables)")
	fs.Duration("rate-limit-window", c.RateLimit.Window, "Rate limit window")

	fs.Bool("cache-enabled", c.Cache.Enabled, "Cache embeddings")
	fs.String("cache-path", c.Cache.Path, "SQLite embedding cache path (empty keeps the cache in memory)")

	fs.String("db-url", c.Database, "Database URL (DSN); empty keeps documents in memory")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	fs.String("root", c.Indexer.Root, "Directory of saved HTML pages to index")
	fs.String("base-url", c.Indexer.BaseURL, "Public URL the indexed directory is served from")
	fs.String("tenant", c.Indexer.Tenant, "Tenant to index pages for")
	fs.Int("workers", c.Indexer.Workers, "Indexer workers (0 picks from CPU count)")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require JWT tenant tokens")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")
	fs.String("auth-issuer", c.Auth.Issuer, "JWT issuer")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("embedding-provider", &c.Embedding.Provider)
	setStr("embedding-api-key", &c.Embedding.APIKey)
	setStr("embedding-model", &c.Embedding.Model)
	setInt("embedding-dim", &c.Embedding.Dim)
	setStr("embedding-project-id", &c.Embedding.ProjectID)
	setStr("embedding-location", &c.Embedding.Location)

	setStr("llm-provider", &c.LLM.Provider)
	setStr("llm-api-key", &c.LLM.APIKey)
	setStr("llm-model", &c.LLM.Model)

	setStr("chunk-strategy", &c.Chunk.Strategy)
	setInt("chunk-size", &c.Chunk.Size)
	setInt("chunk-overlap", &c.Chunk.Overlap)

	setInt("rate-limit-requests", &c.RateLimit.Requests)
	setInt("rate-limit-batch-requests", &c.RateLimit.BatchRequests)
	setDuration("rate-limit-window", &c.RateLimit.Window)

	setBool("cache-enabled", &c.Cache.Enabled)
	setStr("cache-path", &c.Cache.Path)

	setStr("db-url", &c.Database)
	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setStr("root", &c.Indexer.Root)
	setStr("base-url", &c.Indexer.BaseURL)
	setStr("tenant", &c.Indexer.Tenant)
	setInt("workers", &c.Indexer.Workers)

	// Auth flags
	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
	setStr("auth-issuer", &c.Auth.Issuer)
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.Port = 8080
	c.Embedding.Provider = "stub"
	c.Embedding.Location = "us-central1"
	c.Embedding.Timeout = 30 * time.Second
	c.LLM.Provider = "stub"
	c.LLM.Location = "us-central1"
	c.LLM.Timeout = 60 * time.Second
	c.Chunk.Strategy = string(chunker.Semantic)
	c.Chunk.Size = chunker.DefaultChunkSize
	c.Chunk.Overlap = chunker.DefaultChunkOverlap
	c.RateLimit.Requests = 60
	c.RateLimit.BatchRequests = 10
	c.RateLimit.Window = time.Minute
	c.Cache.Enabled = true
	c.Cache.TTL = 7 * 24 * time.Hour
	c.Indexer.Root = "."
	c.Auth.Issuer = "geoscore"
	c.Auth.TokenTTL = 24 * time.Hour
}
