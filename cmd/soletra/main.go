// Command soletra serves the fingerspelling recognition engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasvieira/soletra/internal/config"
	"github.com/lucasvieira/soletra/internal/gesture"
	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/ml"
	"github.com/lucasvieira/soletra/internal/recognition"
	"github.com/lucasvieira/soletra/internal/server"
	"github.com/lucasvieira/soletra/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("soletra failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("store ready", "driver", cfg.Driver)

	norm := landmark.Normalizer{ScaleInvariant: cfg.ScaleInvariant}
	cache := gesture.NewCache(db, cfg.CacheTTL)
	matcher := gesture.NewMatcher(cache, norm, cfg.RejectThreshold, logger)
	bank := ml.NewBank()

	trainerCfg := ml.DefaultTrainerConfig()
	trainerCfg.MinPositiveExamples = cfg.MinExamples
	trainerCfg.Trees = cfg.Trees
	trainerCfg.RetrainThreshold = cfg.RetrainThreshold
	trainerCfg.RetrainWindow = cfg.RetrainWindow

	trainer := ml.NewTrainer(db, bank, norm, trainerCfg, logger)

	ctx := context.Background()
	if err := trainer.LoadModels(ctx); err != nil {
		logger.Warn("loading persisted models failed", "error", err)
	} else {
		logger.Info("models loaded", "count", bank.Len())
	}

	trainer.Start()
	defer trainer.Stop()

	svc := recognition.NewService(matcher, bank, trainer, db, norm, recognition.Config{
		Thresholds: recognition.Thresholds{
			TraditionalHigh: cfg.TraditionalHigh,
			MLHigh:          cfg.MLHigh,
			TraditionalLow:  cfg.TraditionalLow,
			MLFloor:         cfg.MLFloor,
		},
		CollectMin: cfg.CollectThreshold,
	}, logger)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(server.Config{
			Service:   svc,
			Cache:     cache,
			Trainer:   trainer,
			Store:     db,
			StaticDir: cfg.StaticDir,
			Logger:    logger,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.OpenPostgres(cfg.DSN)
	default:
		return store.OpenSQLite(cfg.DSN)
	}
}
