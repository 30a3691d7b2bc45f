// Package main wires together the competitor monitor service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/api"
	"github.com/rivaleye/rivaleye/internal/classify"
	"github.com/rivaleye/rivaleye/internal/clock/system"
	"github.com/rivaleye/rivaleye/internal/config"
	"github.com/rivaleye/rivaleye/internal/detect"
	"github.com/rivaleye/rivaleye/internal/extract"
	headlessfetcher "github.com/rivaleye/rivaleye/internal/fetcher/headless"
	probefetcher "github.com/rivaleye/rivaleye/internal/fetcher/probe"
	"github.com/rivaleye/rivaleye/internal/hash/sha256"
	"github.com/rivaleye/rivaleye/internal/id/uuid"
	"github.com/rivaleye/rivaleye/internal/logging"
	"github.com/rivaleye/rivaleye/internal/metrics"
	"github.com/rivaleye/rivaleye/internal/monitor"
	"github.com/rivaleye/rivaleye/internal/notify"
	"github.com/rivaleye/rivaleye/internal/ratelimit"
	"github.com/rivaleye/rivaleye/internal/storage/gcs"
	"github.com/rivaleye/rivaleye/internal/storage/postgres"
	"github.com/rivaleye/rivaleye/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Local development convenience; missing .env files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("database migrate failed", zap.Error(err))
	}

	hasher := sha256.New()
	clock := system.New()
	idGen := uuid.New()

	queue := postgres.NewJobQueue(pool, idGen, logger)
	targets := postgres.NewTargetStore(pool)
	snapshots := postgres.NewSnapshotStore(pool)
	alerts := postgres.NewAlertStore(pool)
	cache := postgres.NewCacheStore(pool)
	windows := postgres.NewRateLimitStore(pool, logger)

	limiter := ratelimit.New(windows, clock, ratelimit.Config{
		RequestsPerHour: cfg.RateLimit.RequestsPerHour,
		LocalRPS:        cfg.RateLimit.LocalRPS,
		LocalBurst:      cfg.RateLimit.LocalBurst,
	}, logger)

	fetcher := headlessfetcher.New(headlessfetcher.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		DefaultTimeout: cfg.FetchTimeout(),
	})
	defer fetcher.Close()

	probe := probefetcher.New(probefetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	classifier := classify.NewHeuristic(probe, logger)

	llm := extract.NewLLMClient(extract.LLMConfig{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)
	extractor := extract.NewEngine(cache, hasher, llm, cfg.LLM.MaxInputBytes, logger)

	var archive monitor.BlobStore
	if cfg.Archive.GCSBucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			logger.Warn("gcs client init failed, raw html archive disabled", zap.Error(err))
		} else {
			defer gcsClient.Close()
			archive, err = gcs.New(gcsClient, gcs.Config{
				Bucket: cfg.Archive.GCSBucket,
				Prefix: cfg.Archive.Prefix,
			})
			if err != nil {
				logger.Warn("blob store init failed, raw html archive disabled", zap.Error(err))
			}
		}
	}

	var dispatcher *notify.Dispatcher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub client init failed, notifications disabled", zap.Error(err))
		} else {
			defer psClient.Close()
			publisher := notify.NewPublisher(psClient.Topic(cfg.PubSub.TopicName))
			defer publisher.Stop()
			dispatcher = notify.NewDispatcher(
				notify.NewEmailEnqueuer(publisher, logger),
				notify.NewPushPublisher(publisher, logger),
				logger,
			)
		}
	}
	if dispatcher == nil {
		dispatcher = notify.NewDispatcher(nil, nil, logger)
	}
	defer dispatcher.Wait()

	detector := detect.New(snapshots, alerts, targets, dispatcher, clock, idGen,
		detect.Config{Cooldown: cfg.AlertCooldown()}, logger)

	w := worker.New(queue, targets, snapshots, fetcher, extractor, detector,
		classifier, limiter, archive, clock, worker.Config{
			MaxJobsPerBatch:   cfg.Crawler.MaxJobsPerBatch,
			BatchBudget:       cfg.BatchBudget(),
			MaxAttempts:       cfg.Crawler.MaxAttempts,
			FetchTimeout:      cfg.FetchTimeout(),
			WaitForIdle:       cfg.Fetch.WaitForIdle,
			IncludeImages:     cfg.Fetch.IncludeImages,
			ClassifyThreshold: cfg.Crawler.ClassifyThreshold,
			RecrawlFrequency:  cfg.RecrawlFrequency(),
		}, logger)

	scheduler := worker.NewScheduler(queue, targets, clock,
		cfg.RecrawlFrequency(), cfg.Crawler.MaxAttempts, logger)

	apiServer := api.NewServer(queue, pool, cfg.Crawler.MaxAttempts, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go runPipeline(ctx, w, scheduler, cfg, logger)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// runPipeline seeds due targets and drains the queue in batches until the
// context ends.
func runPipeline(ctx context.Context, w *worker.Worker, scheduler *worker.Scheduler, cfg config.Config, logger *zap.Logger) {
	if _, err := scheduler.SeedDueTargets(ctx); err != nil {
		logger.Error("initial seed failed", zap.Error(err))
	}

	poll := time.Duration(cfg.Crawler.PollIntervalSec) * time.Second
	if poll <= 0 {
		poll = 30 * time.Second
	}
	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()
	seedTicker := time.NewTicker(time.Hour)
	defer seedTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-seedTicker.C:
			if _, err := scheduler.SeedDueTargets(ctx); err != nil {
				logger.Error("seed failed", zap.Error(err))
			}
		case <-pollTicker.C:
			n, err := w.RunBatch(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("batch failed", zap.Int("processed", n), zap.Error(err))
			}
		}
	}
}
