package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"assistanthub/internal/config"
)

// PineconeIndex implements VectorIndex on top of the Pinecone data plane.
// The client is created on first use and shared afterwards.
type PineconeIndex struct {
	apiKey string

	once    sync.Once
	client  *pinecone.Client
	initErr error

	mu    sync.Mutex
	hosts map[string]string
}

func NewPineconeIndex(apiKey string) *PineconeIndex {
	return &PineconeIndex{apiKey: apiKey, hosts: make(map[string]string)}
}

func (p *PineconeIndex) getClient() (*pinecone.Client, error) {
	p.once.Do(func() {
		if p.apiKey == "" {
			p.initErr = errors.New("PINECONE_API_KEY environment variable is not set")
			return
		}
		p.client, p.initErr = pinecone.NewClient(pinecone.NewClientParams{ApiKey: p.apiKey})
		if p.initErr == nil {
			log.Printf("pinecone client initialized")
		}
	})
	return p.client, p.initErr
}

func (p *PineconeIndex) resolveHost(ctx context.Context, client *pinecone.Client, idx config.IndexConfig) (string, error) {
	if idx.Host != "" {
		return idx.Host, nil
	}
	p.mu.Lock()
	host, ok := p.hosts[idx.Name]
	p.mu.Unlock()
	if ok {
		return host, nil
	}
	desc, err := client.DescribeIndex(ctx, idx.Name)
	if err != nil {
		return "", fmt.Errorf("describe index %s: %w", idx.Name, err)
	}
	p.mu.Lock()
	p.hosts[idx.Name] = desc.Host
	p.mu.Unlock()
	return desc.Host, nil
}

func (p *PineconeIndex) connect(ctx context.Context, idx config.IndexConfig) (*pinecone.IndexConnection, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}
	host, err := p.resolveHost(ctx, client, idx)
	if err != nil {
		return nil, err
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: idx.Namespace})
	if err != nil {
		return nil, fmt.Errorf("connect index %s: %w", idx.Name, err)
	}
	return conn, nil
}

func (p *PineconeIndex) Query(ctx context.Context, idx config.IndexConfig, vector []float32, topK int) ([]Match, error) {
	conn, err := p.connect(ctx, idx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		md := map[string]any{}
		if m.Vector.Metadata != nil {
			md = m.Vector.Metadata.AsMap()
		}
		matches = append(matches, Match{ID: m.Vector.Id, Score: m.Score, Metadata: md})
	}
	return matches, nil
}

func (p *PineconeIndex) Upsert(ctx context.Context, idx config.IndexConfig, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	conn, err := p.connect(ctx, idx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, rec := range records {
		md, err := structpb.NewStruct(rec.Metadata)
		if err != nil {
			return 0, fmt.Errorf("metadata for %s: %w", rec.ID, err)
		}
		values := rec.Values
		vectors = append(vectors, &pinecone.Vector{Id: rec.ID, Values: &values, Metadata: md})
	}
	n, err := conn.UpsertVectors(ctx, vectors)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", idx.Name, err)
	}
	return int(n), nil
}
