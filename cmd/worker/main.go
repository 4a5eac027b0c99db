package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"EmailBlaster/internal/config"
	"EmailBlaster/internal/db"
	"EmailBlaster/internal/dispatch"
	"EmailBlaster/internal/email"
	"EmailBlaster/internal/logging"
	"EmailBlaster/internal/metrics"
	"EmailBlaster/internal/models"
	"EmailBlaster/internal/rmq"
	"EmailBlaster/internal/unsubscribe"
	"EmailBlaster/internal/worker"
)

// The standalone worker consumes dispatch jobs from RabbitMQ. Run it next to
// a server started with EMBEDDED_WORKERS=false.
func main() {

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.QueueDriver != config.QueueRabbitMQ {
		fmt.Fprintf(os.Stderr, "worker needs QUEUE_DRIVER=%s\n", config.QueueRabbitMQ)
		os.Exit(1)
	}

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Dispatch Engine
	// ------------------------------------------------
	sender := &email.Sender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		Secure:   cfg.SMTPSecure,
		From:     cfg.SMTPFrom,
	}

	engine := dispatch.NewEngine(store, sender, unsubscribe.Generator{BaseURL: cfg.APIURL}, logger)

	// ------------------------------------------------
	// Consumer + Worker Pool
	// ------------------------------------------------
	cons, err := rmq.NewConsumer(ctx, cfg.RMQURL, cfg.RMQQueue, cfg.WorkerCount, logger)
	if err != nil {
		logger.Fatal("rabbitmq consumer failed", zap.Error(err))
	}
	defer cons.Close()

	jobs := make(chan models.DispatchJob)

	var wg sync.WaitGroup
	worker.StartPool(ctx, &wg, cfg.WorkerCount, jobs, engine, logger)

	if err := cons.Run(ctx, jobs); ctx.Err() == nil {
		logger.Error("rabbitmq consumer stopped", zap.Error(err))
	}
	cancel()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	logger.Info("shutting down worker...")

	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("worker shutdown complete")
}
