package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/blob"
	"github.com/xelth-com/wingetpro/internal/buildinfo"
	"github.com/xelth-com/wingetpro/internal/config"
	"github.com/xelth-com/wingetpro/internal/database"
	"github.com/xelth-com/wingetpro/internal/handlers"
	"github.com/xelth-com/wingetpro/internal/installers"
	"github.com/xelth-com/wingetpro/internal/logging"
	"github.com/xelth-com/wingetpro/internal/manifest"
	"github.com/xelth-com/wingetpro/internal/metrics"
	"github.com/xelth-com/wingetpro/internal/search"
	"github.com/xelth-com/wingetpro/internal/store"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting wingetpro",
		zap.String("env", cfg.NodeEnv),
		zap.String("commit", buildinfo.CommitHash),
		zap.String("build_time", buildinfo.BuildTime),
	)

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 3. Synchronize schema
	st := store.New(db.DB)
	if err := st.Migrate(); err != nil {
		logger.Fatal("Schema migration failed", zap.Error(err))
	}
	logger.Info("Schema synchronized")

	// 4. Wire services
	blobs, err := blob.NewFileStore(cfg.Media.Root, cfg.Media.URL, logger.Named("blob"))
	if err != nil {
		logger.Fatal("Failed to prepare media root", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	router := handlers.NewRouter(handlers.Deps{
		Config:     cfg,
		Store:      st,
		Search:     search.NewEngine(st, m, logger.Named("search")),
		Manifests:  manifest.NewResolver(st, blobs, m, logger.Named("manifest")),
		Installers: installers.NewService(st, blobs, m, logger.Named("installers")),
		Metrics:    m,
		Logger:     logger.Named("http"),
		Ping:       db.Ping,
	})

	// 5. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr), zap.String("media_root", cfg.Media.Root))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	sig := <-shutdown
	logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close database (this also stops embedded PostgreSQL)
	if err := db.Close(); err != nil {
		logger.Error("Database close error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
