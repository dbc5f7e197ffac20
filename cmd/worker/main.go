package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"dealsense.app/coach/common/id"
	"dealsense.app/coach/common/llm"
	"dealsense.app/coach/common/logger"
	"dealsense.app/coach/common/otel"
	"dealsense.app/coach/core/config"
	"dealsense.app/coach/core/db"
	"dealsense.app/coach/internal/queue"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/store"
	"dealsense.app/coach/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "coach worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.EventGroup,
		"consumer_name", cfg.Redis.EventConsumer)

	// Different node ID than the server so snowflakes never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.EventStream)

	var llmClient llm.Client
	if cfg.OpenAI.Enabled() {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAI)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create openai client", "error", err)
			os.Exit(1)
		}
	} else {
		slog.WarnContext(ctx, "OPENAI_API_KEY not set, deal ingest will fail until configured")
		llmClient = llm.NewUnavailableClient()
	}

	var vectorStore retrieval.VectorStore
	if cfg.Typesense.Enabled() {
		vectorStore = retrieval.NewTypesenseStore(cfg.Typesense)
		if err := vectorStore.EnsureCollection(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ensure vector collection", "error", err)
			os.Exit(1)
		}
	} else {
		slog.WarnContext(ctx, "typesense not configured, using in-memory vector store")
		vectorStore = retrieval.NewMemoryStore()
	}

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.EventStream,
		Group:        cfg.Redis.EventGroup,
		Consumer:     cfg.Redis.EventConsumer,
		DLQStream:    cfg.Redis.EventStream + "_dlq",
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Pool())
	ingestor := worker.NewDealIngestor(stores.Deals(), stores.Objections(), llmClient, vectorStore)

	// Seed the collection with recent closed deals. Idempotent, so restarts
	// are cheap.
	if cfg.Typesense.Enabled() && cfg.OpenAI.Enabled() {
		indexed, err := ingestor.Backfill(ctx, cfg.AI.RecencyWindow, 500)
		if err != nil {
			slog.ErrorContext(ctx, "backfill failed", "error", err)
		} else {
			slog.InfoContext(ctx, "backfill complete", "indexed", indexed)
		}
	}

	w := worker.New(consumer, nil, ingestor, worker.Config{
		MaxAttempts: 3,
	})

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:    cfg.Redis.EventStream,
		Group:     cfg.Redis.EventGroup,
		Consumer:  cfg.Redis.EventConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}
