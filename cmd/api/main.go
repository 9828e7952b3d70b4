package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/infrastructure/config"
	"github.com/suibari/graph-be-more-blue/infrastructure/di"
	"github.com/suibari/graph-be-more-blue/interfaces/http/rest"
	"github.com/suibari/graph-be-more-blue/interfaces/http/rest/handlers"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer container.Close()

	// Hot reload of the config file, when one is in use.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, cfg, container.Logger)
		if err != nil {
			container.Logger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			watcher.OnChange(container.ApplyConfig)
			watcher.Start()
			defer watcher.Stop()
		}
	}

	graphHandler := handlers.NewGraphHandler(container.GraphService, container.ErrorHandler, container.Logger)
	router := rest.NewRouter(
		graphHandler,
		container.ErrorHandler,
		container.Registry,
		container.Session.EnsureSession,
		cfg.Server,
		container.Logger,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		container.Logger.Info("starting server",
			zap.String("address", cfg.Server.Address),
			zap.String("environment", cfg.Server.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("server shutdown error", zap.Error(err))
	}

	_ = container.Logger.Sync()
}
