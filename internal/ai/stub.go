package ai

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"strings"

	"github.com/seanblong/geoscore/internal/textutil"
)

const defaultStubDim = 256

// StubClient is an offline provider for tests and local runs. Embeddings
// are hashed bags of content words, so texts sharing vocabulary land close
// together.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = defaultStubDim
	}
	return &StubClient{dim: dim}
}

func (s *StubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

func (s *StubClient) vector(text string) []float32 {
	v := make([]float32, s.dim)
	for _, w := range textutil.ContentWords(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		v[int(sum>>1)%s.dim] += sign
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Generate returns a fixed-shape JSON analysis derived from the prompt, so
// callers can exercise parsing without a network.
func (s *StubClient) Generate(ctx context.Context, _, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	words := textutil.WordCount(prompt)
	score := min(10, 3+words/200)
	var snippets []string
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if n := textutil.RuneLen(line); n >= 50 && n <= 200 && !strings.HasPrefix(line, "#") {
			snippets = append(snippets, line)
			if len(snippets) == 2 {
				break
			}
		}
	}
	analysis := map[string]any{
		"scores": map[string]int{
			"clarity":       score,
			"structure":     score,
			"answerability": score,
		},
		"strengths":         []string{},
		"weaknesses":        []string{},
		"suggestions":       []string{"Compare this page with the highest scoring similar pages."},
		"quotable_snippets": snippets,
		"missing_elements":  []string{},
	}
	b, err := json.Marshal(analysis)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *StubClient) Dim() int { return s.dim }

func (s *StubClient) Model() string { return "stub" }
