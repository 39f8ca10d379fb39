// Package embedding wraps an OpenAI-compatible embeddings endpoint and the
// vector math shared by the index and the relevance gate.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
)

// Client produces embedding vectors for text. Tests substitute deterministic
// fakes.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedVec ties a document id to its vector inside an in-memory index.
type EmbedVec struct {
	DocID string
	Vec   []float32
}

type Embedding struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

// NewEmbedding builds the client. A base URL in cfg points it at a local
// OpenAI-compatible server instead of the hosted API.
func NewEmbedding(cfg config.EmbeddingConfig) *Embedding {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Embedding{
		client:    openaisdk.NewClient(opts...),
		model:     openaisdk.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
	}
}

func (e *Embedding) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return vecs[0], nil
}

func (e *Embedding) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		out[i] = fitVector(item.Embedding, e.dimension)
	}
	return out, nil
}

func fitVector(input []float64, dim int) []float32 {
	if dim <= 0 {
		dim = len(input)
	}
	vec := make([]float32, dim)
	for i := 0; i < len(input) && i < dim; i++ {
		vec[i] = float32(input[i])
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// compare over the shared prefix; a zero vector scores 0.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
