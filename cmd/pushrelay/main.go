package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushrelay/internal/config"
	"pushrelay/internal/dispatch"
	"pushrelay/internal/httpapi"
	"pushrelay/internal/postback"
	"pushrelay/internal/registry"
)

func main() {
	logger := log.New(os.Stdout, "pushrelay ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	store, err := openQueueStore(cfg)
	if err != nil {
		logger.Fatalf("queue store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	queue := postback.New(logger, store, postback.Options{
		MaxRetries:      cfg.PostbackMaxRetries,
		RetryBackoff:    time.Duration(cfg.PostbackRetryBackoffSeconds) * time.Second,
		AttemptTimeout:  time.Duration(cfg.PostbackTimeoutSeconds) * time.Second,
		BatchSize:       cfg.PostbackBatchSize,
		RetentionAge:    time.Duration(cfg.PostbackRetentionSeconds) * time.Second,
		CleanupInterval: time.Duration(cfg.CleanupIntervalSeconds) * time.Second,
	})
	defer queue.Stop()

	reg := registry.New()
	engine := dispatch.New(logger, reg)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Logger:    logger,
			AuthToken: cfg.AuthToken,
			Registry:  reg,
			Dispatch:  engine,
			Queue:     queue,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s (queue driver=%s)", cfg.HTTPAddr, cfg.QueueDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
}

func openQueueStore(cfg config.Config) (postback.Store, error) {
	if cfg.QueueDriver == "memory" {
		return postback.NewMemoryStore(), nil
	}
	return postback.NewGormStore(cfg.QueueDriver, cfg.QueueDSN)
}
