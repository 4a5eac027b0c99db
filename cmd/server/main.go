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

	"EmailBlaster/internal/api"
	"EmailBlaster/internal/config"
	"EmailBlaster/internal/db"
	"EmailBlaster/internal/dispatch"
	"EmailBlaster/internal/email"
	"EmailBlaster/internal/logging"
	"EmailBlaster/internal/metrics"
	"EmailBlaster/internal/models"
	"EmailBlaster/internal/report"
	"EmailBlaster/internal/rmq"
	"EmailBlaster/internal/unsubscribe"
	"EmailBlaster/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
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

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	warnStuckCampaigns(ctx, store, logger)

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
	// Email Sender + Dispatch Engine
	// ------------------------------------------------
	sender := &email.Sender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		Secure:   cfg.SMTPSecure,
		From:     cfg.SMTPFrom,
	}
	if !sender.HasDefault() {
		logger.Info("no default SMTP configured; campaigns need an email account")
	}

	engine := dispatch.NewEngine(store, sender, unsubscribe.Generator{BaseURL: cfg.APIURL}, logger)

	// ------------------------------------------------
	// Job Queue + Worker Pool
	// ------------------------------------------------
	var (
		wg          sync.WaitGroup
		enqueuer    api.Enqueuer
		closeJobs   func()
		releaseJobs func(ctx context.Context)
	)

	switch cfg.QueueDriver {
	case config.QueueRabbitMQ:
		pub, err := rmq.NewPublisher(ctx, cfg.RMQURL, cfg.RMQQueue)
		if err != nil {
			logger.Fatal("rabbitmq publisher failed", zap.Error(err))
		}
		defer pub.Close()
		enqueuer = pub
		closeJobs = func() {}
		// unacked deliveries go back to the broker
		releaseJobs = func(context.Context) {}

		if cfg.EmbeddedWorkers {
			cons, err := rmq.NewConsumer(ctx, cfg.RMQURL, cfg.RMQQueue, cfg.WorkerCount, logger)
			if err != nil {
				logger.Fatal("rabbitmq consumer failed", zap.Error(err))
			}
			defer cons.Close()

			jobs := make(chan models.DispatchJob)
			worker.StartPool(ctx, &wg, cfg.WorkerCount, jobs, engine, logger)

			go func() {
				if err := cons.Run(ctx, jobs); err != nil && ctx.Err() == nil {
					logger.Error("rabbitmq consumer stopped", zap.Error(err))
				}
			}()
		}

	default:
		queue := worker.NewQueue(cfg.QueueSize)
		enqueuer = queue
		closeJobs = queue.Close
		releaseJobs = func(ctx context.Context) {
			for _, job := range queue.Drain() {
				if err := engine.Release(ctx, job.CampaignID); err != nil {
					logger.Error("failed to release queued campaign",
						zap.Int64("campaign_id", job.CampaignID),
						zap.Error(err),
					)
					continue
				}
				logger.Info("queued campaign released to draft", zap.Int64("campaign_id", job.CampaignID))
			}
		}

		worker.StartPool(ctx, &wg, cfg.WorkerCount, queue.Jobs(), engine, logger)
	}

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Dispatch: engine,
		Queue:    enqueuer,
		Reports:  &report.Reporter{Store: store},
		Store:    store,
		Mailer:   sender,
		Log:      logger,
		Ping:     store.Ping,
	}

	apiServer := api.NewHTTPServer(":"+cfg.APIPort, apiHandler)

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Stop accepting sends before the queue goes away
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	closeJobs()

	// Wait workers to finish
	wg.Wait()

	// Passes nobody started go back to draft
	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
	releaseJobs(releaseCtx)
	releaseCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}

// warnStuckCampaigns reports campaigns that are mid-pass at startup. Unless a
// separate worker owns them, a previous process died while sending; they keep
// their settled recipients and need a manual reset to resend.
func warnStuckCampaigns(ctx context.Context, store *db.Store, logger *zap.Logger) {
	stuck, err := store.ListCampaignsByStatus(ctx, models.CampaignSending)
	if err != nil {
		logger.Error("failed to list sending campaigns", zap.Error(err))
		return
	}
	for _, c := range stuck {
		logger.Warn("campaign is in sending at startup; force-reset it if no worker owns the pass",
			zap.Int64("campaign_id", c.ID),
			zap.Int("sent", c.SentCount),
			zap.Int("failed", c.FailedCount),
			zap.Int("total", c.TotalRecipients),
		)
	}
}
