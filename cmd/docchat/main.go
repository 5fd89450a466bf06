package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/config"
	dbRedis "github.com/hanwool-labs/docchat/internal/db/redis"
	"github.com/hanwool-labs/docchat/internal/domain"
	logpkg "github.com/hanwool-labs/docchat/internal/logger"
	"github.com/hanwool-labs/docchat/internal/metrics"
	corpusrepo "github.com/hanwool-labs/docchat/internal/repository/corpus"
	"github.com/hanwool-labs/docchat/internal/repository/embcache"
	feedbackrepo "github.com/hanwool-labs/docchat/internal/repository/feedback"
	"github.com/hanwool-labs/docchat/internal/repository/rerankcache"
	chiTransport "github.com/hanwool-labs/docchat/internal/transport/chi"
	openaiTransport "github.com/hanwool-labs/docchat/internal/transport/openai"
	"github.com/hanwool-labs/docchat/internal/usecase/answer"
	"github.com/hanwool-labs/docchat/internal/usecase/decompose"
	"github.com/hanwool-labs/docchat/internal/usecase/expand"
	healthuc "github.com/hanwool-labs/docchat/internal/usecase/health"
	"github.com/hanwool-labs/docchat/internal/usecase/intent"
	"github.com/hanwool-labs/docchat/internal/usecase/pipeline"
	"github.com/hanwool-labs/docchat/internal/usecase/rerank"
	"github.com/hanwool-labs/docchat/internal/usecase/retrieve"
	"github.com/hanwool-labs/docchat/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docchat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// LLM and embedding providers
	chatClient := openaiTransport.NewChatClient(&openaiTransport.ChatConfig{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.Model,
		RerankModel:    cfg.OpenAI.RerankModel,
		MaxConcurrent:  int64(cfg.OpenAI.MaxConcurrent),
		MaxRetries:     cfg.OpenAI.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.OpenAI.RetryBaseMS) * time.Millisecond,
		RetryMaxDelay:  time.Duration(cfg.OpenAI.RetryMaxMS) * time.Millisecond,
		Logger:         logger,
	})
	// Query embedder with cache decorator: expanded queries recur across
	// requests, so misses are the exception.
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.EmbeddingModel,
		Dimensions: cfg.OpenAI.Dimensions,
		Logger:     logger,
	})
	embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, logger)
	logger.Info("LLM clients created",
		zap.String("model", cfg.OpenAI.Model),
		zap.String("rerank_model", cfg.OpenAI.RerankModel),
		zap.String("embedding_model", cfg.OpenAI.EmbeddingModel),
	)

	// Repositories over the shared store
	scoreCache := rerankcache.New(
		store, time.Duration(cfg.Rerank.CacheTTLSec)*time.Second,
		metrics.RerankCacheTotal, logger,
	)
	feedbackRepo := feedbackrepo.New(store, logger)
	corpusRepo := corpusrepo.New(
		store, cfg.Index.Name,
		time.Duration(cfg.Corpus.CacheTTLSec)*time.Second, logger,
	)

	// Pipeline stages — composition root
	classifier := intent.New(chatClient, chatClient.Model(), logger)
	decomposer := decompose.New(chatClient, chatClient.Model(), logger)
	expander := expand.New(chatClient, chatClient.Model(), 3, logger)
	retriever := retrieve.New(embedder, store, cfg.Index.Name, cfg.Index.TopK, cfg.Index.TopN, logger)
	reranker := rerank.New(chatClient, chatClient.RerankModel(), scoreCache, feedbackRepo, rerank.Config{
		WeightLLM:        cfg.Rerank.WeightLLM,
		WeightFeedback:   cfg.Rerank.WeightFeedback,
		WeightSimilarity: cfg.Rerank.WeightSimilarity,
		TopK:             cfg.Rerank.TopK,
		BatchSize:        cfg.Rerank.BatchSize,
		FixedBatch:       !*cfg.Rerank.DynamicBatch,
	}, logger)
	selector := answer.NewSelector(answer.SelectorConfig{
		MinScore:   cfg.Context.MinScore,
		PerDocCap:  cfg.Context.PerDocCap,
		DocCap:     cfg.Context.DocCap,
		CharBudget: cfg.Context.CharBudget,
	}, logger)
	generator := answer.NewGenerator(chatClient, chatClient.Model(), logger)

	pipe := pipeline.New(
		classifier, corpusRepo, decomposer, expander,
		retriever, reranker, selector, generator, logger,
	)

	healthSvc := healthuc.New(store, chatClient)

	server := chiTransport.NewServer(pipe, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
