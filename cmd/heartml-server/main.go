package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/config"
	"github.com/cardionics/heartml/internal/inference"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/internal/server"
	"github.com/cardionics/heartml/internal/storage"
	"github.com/cardionics/heartml/internal/telemetry"
	"github.com/cardionics/heartml/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	ctx := context.Background()

	db, err := storage.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpen, cfg.Database.MaxIdle, cfg.Database.ConnMaxLife)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	repo := storage.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	objStore, err := storage.NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		zapLogger.Fatal("Failed to connect to object storage", zap.Error(err))
	}
	reg := registry.New(sugar, objStore, "models")

	redisClient, err := storage.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Warn("Redis unavailable, metrics cache disabled", zap.Error(err))
		redisClient = nil
	}
	metricsCache := storage.NewMetricsCache(sugar, repo, redisClient, cfg.Redis.TTL)

	var publisher inference.TelemetryPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub := telemetry.NewPublisher(sugar, cfg.Kafka)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	svc := inference.New(sugar, reg, inference.NewSingleSlotCache(), repo, publisher, inference.Options{
		DefaultModel:   cfg.Inference.DefaultModel,
		QueueSize:      cfg.Inference.QueueSize,
		PersistTimeout: cfg.Inference.PersistTimeout,
	})
	defer svc.Close()

	srv := server.New(zapLogger, svc, metricsCache, repo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Starting serving API", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Forced shutdown", zap.Error(err))
	}
	zapLogger.Info("Server stopped")
}
