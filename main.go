package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"assistanthub/internal/api"
	"assistanthub/internal/auth"
	"assistanthub/internal/config"
	"assistanthub/internal/redis"
	"assistanthub/internal/service/agent"
	"assistanthub/internal/service/assistant"
	"assistanthub/internal/service/calendar"
	"assistanthub/internal/service/huggingface"
	"assistanthub/internal/service/retrieval"
	"assistanthub/internal/setup"
	"assistanthub/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("ASSISTANTHUB_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("ASSISTANTHUB_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: messages, calendar_events, calendar_credentials
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var (
		states = auth.NewMemoryStateStore()
		cache  *retrieval.EmbeddingCache
	)
	if redis.Configured(cfg) {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		states = auth.NewRedisStateStore(rdb)
		cache = retrieval.NewEmbeddingCache(rdb)
	} else {
		log.Printf("redis not configured, using in-memory oauth state")
	}

	timeout := time.Duration(cfg.BasicConfig.RequestTimeout) * time.Second
	hf := huggingface.NewClient(cfg.HuggingFace.BaseURL, cfg.HuggingFace.APIKey, timeout)
	retriever := retrieval.NewRetriever(hf, cfg.HuggingFace.EmbeddingModel,
		retrieval.NewPineconeIndex(cfg.Pinecone.APIKey), cfg.Pinecone.Indexes, cache)

	authService, err := auth.NewService(db, cfg, states)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}
	store, err := calendar.NewStore(db)
	if err != nil {
		log.Fatalf("init calendar store: %v", err)
	}
	resolver := calendar.NewResolver(store, authService)

	opts := []assistant.Option{assistant.WithRetriever(retriever)}
	calendarAgent, err := agent.NewCalendarAgent(cfg, resolver)
	switch {
	case err == nil:
		opts = append(opts, assistant.WithCalendarAgent(calendarAgent))
	case errors.Is(err, agent.ErrUnavailable):
		log.Printf("calendar agent disabled: %v", err)
	default:
		log.Fatalf("init calendar agent: %v", err)
	}

	assistantService, err := assistant.NewService(db, cfg, hf, opts...)
	if err != nil {
		log.Fatalf("init assistant service: %v", err)
	}
	cleanCtx, cleanCancel := context.WithCancel(context.Background())
	defer cleanCancel()
	retention := time.Duration(cfg.BasicConfig.HistoryRetentionDays) * 24 * time.Hour
	assistantService.StartHistoryCleaner(cleanCtx, retention, assistant.DefaultHistoryCleanupInterval)

	handlers := api.NewHandler(cfg, assistantService, authService, resolver, hf, setup.NewModelChecker(cfg, hf))

	router := gin.New()
	router.Use(gin.Logger(), api.Recovery())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
