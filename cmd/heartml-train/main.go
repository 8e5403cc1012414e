package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/config"
	"github.com/cardionics/heartml/internal/evaluation"
	"github.com/cardionics/heartml/internal/lifecycle"
	"github.com/cardionics/heartml/internal/preprocessing"
	"github.com/cardionics/heartml/internal/registry"
	"github.com/cardionics/heartml/internal/storage"
	"github.com/cardionics/heartml/internal/training"
	"github.com/cardionics/heartml/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataPath := flag.String("data", "", "training CSV (overrides config)")
	suiteName := flag.String("suite", "", "training suite (overrides config)")
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

	if *dataPath == "" {
		*dataPath = cfg.Training.DataPath
	}
	if *suiteName == "" {
		*suiteName = cfg.Training.Suite
	}
	suite, ok := training.SuiteByName(*suiteName)
	if !ok {
		zapLogger.Fatal("Unknown training suite", zap.String("suite", *suiteName))
	}

	file, err := os.Open(*dataPath)
	if err != nil {
		zapLogger.Fatal("Failed to open training data", zap.Error(err))
	}
	frame, err := preprocessing.ReadCSV(file)
	file.Close()
	if err != nil {
		zapLogger.Fatal("Failed to parse training data", zap.Error(err))
	}
	sugar.Infow("loaded training data", "path", *dataPath, "rows", frame.NumRows())

	ctx := context.Background()

	objStore, err := storage.NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		zapLogger.Fatal("Failed to connect to object storage", zap.Error(err))
	}
	reg := registry.New(sugar, objStore, "models")

	snapshotKey := fmt.Sprintf("datasets/%s.csv", time.Now().UTC().Format("20060102T150405"))
	if err := objStore.PutCSV(ctx, snapshotKey, frame); err != nil {
		zapLogger.Warn("Failed to snapshot training data", zap.Error(err))
	} else {
		sugar.Infow("snapshotted training data", "key", snapshotKey)
	}

	var sink lifecycle.MetricsSink
	db, err := storage.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpen, cfg.Database.MaxIdle, cfg.Database.ConnMaxLife)
	if err != nil {
		zapLogger.Warn("PostgreSQL unavailable, skipping metrics persistence", zap.Error(err))
	} else {
		repo := storage.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			zapLogger.Fatal("Failed to migrate database", zap.Error(err))
		}
		sink = repo
	}

	runner := lifecycle.NewRunner(sugar,
		training.NewEngine(sugar, cfg.Training.Workers),
		evaluation.NewEngine(sugar),
		reg, sink)

	report, err := runner.Run(ctx, frame, lifecycle.RunConfig{
		Suite:          suite,
		ImputeStrategy: cfg.Training.ImputeStrategy,
		ScaleMethod:    cfg.Training.ScaleMethod,
		Balance:        cfg.Training.Balance,
		OutlierMethod:  cfg.Training.OutlierMethod,
		OutlierThresh:  cfg.Training.OutlierThresh,
		TrainFraction:  cfg.Training.TrainFraction,
		ValFraction:    cfg.Training.ValFraction,
		Seed:           42,
		SelectionBy:    cfg.Training.SelectionBy,
		PromotedName:   cfg.Inference.DefaultModel,
	})
	if err != nil {
		zapLogger.Fatal("Training run failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
	sugar.Infow("training run finished", "best", report.Best, "version", report.BestVersion)
}
