package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
)

const upsertBatchSize = 100

// Indexer loads history exports into the vector index.
type Indexer struct {
	embedder Embedder
	model    string
	index    VectorIndex
	retr     *Retriever
}

// NewIndexer reuses the retriever's index configuration.
func NewIndexer(r *Retriever) *Indexer {
	return &Indexer{embedder: r.embedder, model: r.model, index: r.index, retr: r}
}

// Ingest embeds every record and upserts them in batches. Records keep their
// original fields as metadata so the context block can be rebuilt at query time.
func (ix *Indexer) Ingest(ctx context.Context, assistant string, records []map[string]any) (int, error) {
	idx, ok := ix.retr.indexes[assistant]
	if !ok {
		return 0, fmt.Errorf("%s: %w", assistant, ErrNoIndex)
	}
	layout, ok := LayoutFor(assistant)
	if !ok {
		return 0, fmt.Errorf("%s: %w", assistant, ErrNoIndex)
	}

	total := 0
	batch := make([]Record, 0, upsertBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := ix.index.Upsert(ctx, idx, batch)
		if err != nil {
			return err
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for i, md := range records {
		text := layout.Block(md)
		vec, err := ix.embedder.Embed(ctx, ix.model, text)
		if err != nil {
			log.Printf("ingest %s record %d skipped: %v", assistant, i, err)
			continue
		}
		sum := sha256.Sum256([]byte(text))
		batch = append(batch, Record{
			ID:       hex.EncodeToString(sum[:16]),
			Values:   vec,
			Metadata: md,
		})
		if len(batch) == upsertBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
