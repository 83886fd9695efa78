package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backupd/internal/archive"
	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/scheduler"
	"backupd/internal/server"
	logpkg "backupd/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: config.yaml in current directory)")
	flag.Parse()

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logpkg.New(cfg.Log)

	store, err := config.NewStore(cfg)
	if err != nil {
		log.Fatalf("Failed to build config store: %v", err)
	}

	remote := archive.NewRemote(store.RemoteStorage, logger)
	engine := backup.NewEngine(store, remote, backup.Tools{}, logger)
	sched := scheduler.New(engine, logger)

	policy := store.BackupPolicy()
	if policy.AutoEnabled {
		if err := sched.Start(policy.Schedule); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	srv := server.New(cfg.Server, store, engine, sched, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
}
