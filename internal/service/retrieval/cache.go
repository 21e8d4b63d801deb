package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	"assistanthub/internal/redis"
)

const embeddingTTL = 24 * time.Hour

// EmbeddingCache keeps query embeddings in redis. A nil cache is a no-op.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEmbeddingCache(client *redis.Client) *EmbeddingCache {
	if client == nil {
		return nil
	}
	return &EmbeddingCache{client: client, ttl: embeddingTTL}
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + model + ":" + hex.EncodeToString(sum[:])
}

func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, embeddingKey(model, text))
	if err != nil {
		if !isCacheMiss(err) {
			log.Printf("embedding cache get failed: %v", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		log.Printf("embedding cache decode failed: %v", err)
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) Put(ctx context.Context, model, text string, vec []float32) {
	if c == nil || c.client == nil || len(vec) == 0 {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		log.Printf("embedding cache marshal failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, embeddingKey(model, text), data, c.ttl); err != nil {
		log.Printf("embedding cache set failed: %v", err)
	}
}

func isCacheMiss(err error) bool {
	return errors.Is(err, redis.ErrCacheMiss)
}
