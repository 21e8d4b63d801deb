package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/tidwall/gjson"

	"assistanthub/internal/config"
	"assistanthub/internal/redis"
	"assistanthub/internal/service/huggingface"
	"assistanthub/internal/service/retrieval"
)

func main() {
	var (
		cfgPath string
		kind    string
		path    string
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("ASSISTANTHUB_CONFIG"), "config file path")
	flag.StringVar(&kind, "kind", config.AssistantYouTube, "history index to load (youtube or chrome)")
	flag.StringVar(&path, "file", "", "JSON export holding an array of history records")
	flag.Parse()

	if path == "" {
		log.Fatalf("-file is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	records, err := loadRecords(ctx, path)
	if err != nil {
		log.Fatalf("load %s: %v", path, err)
	}
	log.Printf("loaded %d %s records from %s", len(records), kind, path)

	var cache *retrieval.EmbeddingCache
	if redis.Configured(cfg) {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		cache = retrieval.NewEmbeddingCache(rdb)
	}

	timeout := time.Duration(cfg.BasicConfig.RequestTimeout) * time.Second
	hf := huggingface.NewClient(cfg.HuggingFace.BaseURL, cfg.HuggingFace.APIKey, timeout)
	retriever := retrieval.NewRetriever(hf, cfg.HuggingFace.EmbeddingModel,
		retrieval.NewPineconeIndex(cfg.Pinecone.APIKey), cfg.Pinecone.Indexes, cache)

	n, err := retrieval.NewIndexer(retriever).Ingest(ctx, kind, records)
	if err != nil {
		log.Fatalf("ingest: %v (upserted %d before failing)", err, n)
	}
	log.Printf("upserted %d vectors into the %s index", n, kind)
}

func loadRecords(ctx context.Context, path string) ([]map[string]any, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, err
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	docs, err := loader.Load(ctx, document.Source{URI: abs})
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	for _, doc := range docs {
		builder.WriteString(doc.Content)
	}
	content := builder.String()
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	root := gjson.Parse(content)
	if !root.IsArray() {
		return nil, fmt.Errorf("%s must hold a JSON array", path)
	}

	var records []map[string]any
	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		md := make(map[string]any)
		item.ForEach(func(key, value gjson.Result) bool {
			// vector metadata only takes flat values
			switch value.Type {
			case gjson.String:
				md[key.String()] = value.String()
			case gjson.Number:
				md[key.String()] = value.Float()
			case gjson.True, gjson.False:
				md[key.String()] = value.Bool()
			case gjson.JSON:
				md[key.String()] = value.Raw
			}
			return true
		})
		if len(md) > 0 {
			records = append(records, md)
		}
		return true
	})
	return records, nil
}
