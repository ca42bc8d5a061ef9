package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"heartapi/config"
	"heartapi/db"
	"heartapi/history"
	qhttp "heartapi/http"
	"heartapi/monitoring"
	"heartapi/predictor"
)

const configPath = "config.yaml"

func main() {
	// 1. Load config
	cfg, err := config.Load(configPath)
	fromFile := err == nil
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := monitoring.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if fromFile {
		watcher, err := config.NewWatcher(configPath, logger, func(next *config.Config) {
			if l, err := monitoring.ParseLevel(next.Log.Level); err == nil {
				level.SetLevel(l)
			}
		})
		if err != nil {
			logger.Warn("Configuration hot reloading unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	} else {
		logger.Info("No config file found, using defaults", zap.String("path", configPath))
	}

	// 2. Load model; a failure leaves the service degraded
	model := predictor.LoadModel(cfg.Model.Type, cfg.Model.Path, logger)

	// 3. Assemble prediction state
	metrics := monitoring.NewMetrics()
	opts := predictor.Options{
		CacheSize: cfg.Cache.Size,
		Metrics:   metrics,
		Logger:    logger,
	}
	var hist *history.Log
	var hub *monitoring.HistoryHub
	if cfg.History.Enabled {
		hist = history.NewLog()
		opts.History = hist
		if cfg.History.Stream {
			hub = monitoring.NewHistoryHub(hist, cfg.HTTP.AllowedOrigin, metrics, logger)
			go hub.Run()
			defer hub.Stop()
		}
	}
	if cfg.Audit.DBPath != "" {
		audit, err := db.OpenPredictionLog(cfg.Audit.DBPath)
		if err != nil {
			logger.Error("Prediction audit disabled", zap.String("path", cfg.Audit.DBPath), zap.Error(err))
		} else {
			defer audit.Close()
			if n, err := audit.Count(context.Background()); err == nil {
				logger.Info("Prediction audit enabled", zap.String("path", cfg.Audit.DBPath), zap.Int("rows", n))
			}
			opts.Audit = audit
		}
	}

	service, err := predictor.New(model, opts)
	if err != nil {
		logger.Fatal("Failed to create prediction service", zap.Error(err))
	}
	logger.Info("Prediction service ready", zap.String("model_state", service.State()))

	// 4. Start HTTP server
	router := qhttp.NewRouter(qhttp.RouterConfig{
		Service:       service,
		History:       hist,
		Stream:        hub,
		Metrics:       metrics,
		Logger:        logger,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
	})
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, router, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Exiting")
}
