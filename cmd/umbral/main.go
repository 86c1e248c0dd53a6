package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/cache"
	"github.com/umbralrisk/umbral/internal/config"
	"github.com/umbralrisk/umbral/internal/engine"
	"github.com/umbralrisk/umbral/internal/engine/batch"
	"github.com/umbralrisk/umbral/internal/engine/legal"
	"github.com/umbralrisk/umbral/internal/messaging"
	"github.com/umbralrisk/umbral/internal/screening"
	"github.com/umbralrisk/umbral/internal/server"
	"github.com/umbralrisk/umbral/internal/storage"
	"github.com/umbralrisk/umbral/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		zapLogger.Fatal("Failed to parse database DSN", zap.Error(err))
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	store, err := storage.NewStore(ctx, pool, sugar)
	if err != nil {
		zapLogger.Fatal("Failed to initialize store", zap.Error(err))
	}

	var watchlistStore screening.Store = store
	var thresholdSource engine.ThresholdSource = store
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		watchlistStore = cache.NewWatchlistCache(store, redisClient, cfg.Redis.TTL, sugar)
		thresholdSource = cache.NewThresholdCache(store, redisClient, cfg.Redis.TTL, sugar)
	}
	screener := screening.NewScreener(watchlistStore, sugar)

	var publisher engine.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaCfg := messaging.DefaultConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		producer := messaging.NewKafkaProducer(kafkaCfg, sugar)
		defer producer.Close()
		publisher = producer
	}

	engineCfg := engine.DefaultConfig()
	evaluator, err := engine.NewEvaluator(engineCfg, sugar)
	if err != nil {
		zapLogger.Fatal("Failed to build evaluator", zap.Error(err))
	}
	validator, err := legal.NewValidator(engineCfg, sugar)
	if err != nil {
		zapLogger.Fatal("Failed to build legal validator", zap.Error(err))
	}

	recalc := engine.NewService(sugar, evaluator, screener, store, store, thresholdSource, publisher)
	orchestrator := batch.NewOrchestrator(validator, engineCfg, store, store, thresholdSource, sugar)

	srv := server.NewServer(zapLogger, recalc, orchestrator, store, store)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	go func() {
		sugar.Infow("server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
