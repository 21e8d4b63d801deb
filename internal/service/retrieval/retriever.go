package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assistanthub/internal/config"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Match is one nearest-neighbour hit.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Record is one vector to upsert.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// VectorIndex is the vector database behind the history assistants.
type VectorIndex interface {
	Query(ctx context.Context, index config.IndexConfig, vector []float32, topK int) ([]Match, error)
	Upsert(ctx context.Context, index config.IndexConfig, records []Record) (int, error)
}

// ErrNoIndex is returned for assistants without a configured vector index.
var ErrNoIndex = errors.New("no vector index configured")

// Retriever builds the context block fed into history prompts.
type Retriever struct {
	embedder Embedder
	model    string
	index    VectorIndex
	indexes  map[string]config.IndexConfig
	cache    *EmbeddingCache
}

// NewRetriever wires an embedder and a vector index; cache may be nil.
func NewRetriever(embedder Embedder, model string, index VectorIndex, indexes map[string]config.IndexConfig, cache *EmbeddingCache) *Retriever {
	return &Retriever{
		embedder: embedder,
		model:    model,
		index:    index,
		indexes:  indexes,
		cache:    cache,
	}
}

// Context embeds the query, fetches the top-K matches for the assistant and formats them.
func (r *Retriever) Context(ctx context.Context, assistant, query string) (string, error) {
	idx, ok := r.indexes[assistant]
	if !ok || (idx.Name == "" && idx.Host == "") {
		return "", fmt.Errorf("%s: %w", assistant, ErrNoIndex)
	}
	layout, ok := LayoutFor(assistant)
	if !ok {
		return "", fmt.Errorf("%s: %w", assistant, ErrNoIndex)
	}
	vector, err := r.embed(ctx, query)
	if err != nil {
		return "", err
	}
	topK := idx.TopK
	if topK <= 0 {
		topK = 3
	}
	matches, err := r.index.Query(ctx, idx, vector, topK)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", idx.Name, err)
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, layout.Block(m.Metadata))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := r.cache.Get(ctx, r.model, text); ok {
		return vec, nil
	}
	vec, err := r.embedder.Embed(ctx, r.model, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	r.cache.Put(ctx, r.model, text, vec)
	return vec, nil
}
