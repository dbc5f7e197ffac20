package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"dealsense.app/coach/common/id"
	"dealsense.app/coach/common/llm"
	"dealsense.app/coach/common/logger"
	"dealsense.app/coach/common/otel"
	"dealsense.app/coach/core/config"
	"dealsense.app/coach/core/db"
	"dealsense.app/coach/internal/ai"
	"dealsense.app/coach/internal/analytics"
	"dealsense.app/coach/internal/cache"
	"dealsense.app/coach/internal/http/handler"
	"dealsense.app/coach/internal/http/middleware"
	httprouter "dealsense.app/coach/internal/http/router"
	"dealsense.app/coach/internal/moderation"
	"dealsense.app/coach/internal/queue"
	"dealsense.app/coach/internal/ratelimit"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/scoring"
	"dealsense.app/coach/internal/store"
	"dealsense.app/coach/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "coach server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
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
	slog.InfoContext(ctx, "redis connected")

	// Without an API key the remote moderation layer is skipped entirely and
	// generation degrades to template fallbacks.
	var llmClient llm.Client
	var classifier llm.Client
	if cfg.OpenAI.Enabled() {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAI)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create openai client", "error", err)
			os.Exit(1)
		}
		classifier = llmClient
	} else {
		slog.WarnContext(ctx, "OPENAI_API_KEY not set, generation endpoints will degrade")
		llmClient = llm.NewUnavailableClient()
	}

	var vectorStore retrieval.VectorStore
	if cfg.Typesense.Enabled() {
		vectorStore = retrieval.NewTypesenseStore(cfg.Typesense)
		if err := vectorStore.EnsureCollection(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ensure vector collection", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "vector collection ready", "collection", cfg.Typesense.Collection)
	} else {
		slog.WarnContext(ctx, "typesense not configured, using in-memory vector store")
		vectorStore = retrieval.NewMemoryStore()
	}

	stores := store.NewStores(database.Pool())

	retriever := retrieval.NewService(llmClient, vectorStore, retrieval.Config{
		Weights: retrieval.Weights{
			Industry:  cfg.AI.IndustryWeight,
			DealSize:  cfg.AI.DealSizeWeight,
			Objection: cfg.AI.ObjectionWeight,
		},
		EmbeddingTimeout: cfg.AI.EmbeddingTimeout,
		VectorTimeout:    cfg.AI.VectorTimeout,
	})

	responseCache := cache.New(cache.Config{
		DefaultTTL: cfg.AI.CacheTTL,
		SweepEvery: cfg.AI.CacheSweepEvery,
	})
	responseCache.Start(ctx)
	defer responseCache.Close()

	// The cache lives in this process, so each server instance consumes CRM
	// entity events through its own group to see every invalidation.
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "server"
	}
	invConsumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:    cfg.Redis.EventStream,
		Group:     cfg.Redis.EventGroup + "-cache-" + hostname,
		Consumer:  hostname,
		DLQStream: cfg.Redis.EventStream + "_dlq",
		BatchSize: 50,
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create invalidation consumer", "error", err)
		os.Exit(1)
	}
	invWorker := worker.New(invConsumer, responseCache, nil, worker.Config{MaxAttempts: 3})
	go func() {
		if err := invWorker.Run(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "invalidation worker stopped", "error", err)
		}
	}()

	analyticsService := analytics.New(stores.Audit(), stores.Feedback())

	valueBand := ai.ValueBand{Low: cfg.AI.ValueBandLow, High: cfg.AI.ValueBandHigh}

	orchestrator := ai.NewOrchestrator(
		ratelimit.NewRedisLimiter(redisClient, cfg.AI.DailyRequestLimit),
		moderation.New(classifier, cfg.AI.ModerationTimeout),
		retriever,
		llmClient,
		scoring.New(analyticsService),
		responseCache,
		stores.Audit(),
		ai.Config{
			RetrievalK:        cfg.AI.RetrievalK,
			CacheTTL:          cfg.AI.CacheTTL,
			GenerationTimeout: cfg.AI.GenerationTimeout,
		},
		ai.NewDealCoachHandler(stores.Deals(), stores.Objections(), cfg.AI.RecencyWindow, valueBand),
		ai.NewObjectionHandler(stores.Deals(), cfg.AI.RecencyWindow),
		ai.NewContactPersonaHandler(stores.Contacts(), stores.Interactions(), cfg.AI.RecencyWindow),
		ai.NewWinLossExplainHandler(stores.Deals(), stores.Objections(), cfg.AI.RecencyWindow, valueBand),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	eventProducer := queue.NewRedisProducer(redisClient, cfg.Redis.EventStream, slog.Default())

	router := setupRouter(cfg, orchestrator, analyticsService, eventProducer)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	invWorker.Stop()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, orchestrator *ai.Orchestrator, analyticsService *analytics.Service, eventProducer queue.Producer) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs
	// with trace context.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router,
		handler.NewAIHandler(orchestrator),
		handler.NewAnalyticsHandler(analyticsService),
		handler.NewEventHandler(eventProducer),
	)

	return router
}
