package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns text into a dense vector of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// modelDimensions maps known embedding models to their vector size.
var modelDimensions = map[string]int{
	"all-MiniLM-L6-v2":       384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const defaultDimension = 384

// ModelDimension returns the vector size for a model name, falling back to
// the default for unknown models.
func ModelDimension(model string) int {
	if d, ok := modelDimensions[model]; ok {
		return d
	}
	return defaultDimension
}

// NewEmbedder picks the embedding backend. With an API key it calls an
// OpenAI-compatible embedding endpoint (baseURL overrides the host for
// self-hosted services); without one it falls back to the local hashing
// embedder so the pipeline stays functional offline.
func NewEmbedder(model, apiKey, baseURL string) (Embedder, error) {
	if apiKey == "" {
		return NewLocalEmbedder(ModelDimension(model)), nil
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return &remoteEmbedder{inner: emb, dim: ModelDimension(model)}, nil
}

type remoteEmbedder struct {
	inner embeddings.Embedder
	dim   int
}

func (e *remoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

func (e *remoteEmbedder) Dimension() int { return e.dim }

// LocalEmbedder is a deterministic bag-of-words hashing embedder. It has no
// semantic power but gives identical text identical vectors, which is all
// the offline path and the tests need.
type LocalEmbedder struct {
	dim int
}

func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = defaultDimension
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e *LocalEmbedder) Dimension() int { return e.dim }
