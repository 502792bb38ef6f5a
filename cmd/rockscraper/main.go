// Package main wires together the task distribution and crawl service binary.
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

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/api"
	gcsblob "github.com/bluewave-labs/rockscraper-backend/internal/blobstore/gcs"
	"github.com/bluewave-labs/rockscraper-backend/internal/clock/system"
	"github.com/bluewave-labs/rockscraper-backend/internal/config"
	"github.com/bluewave-labs/rockscraper-backend/internal/contentstore/postgres"
	"github.com/bluewave-labs/rockscraper-backend/internal/crawl"
	"github.com/bluewave-labs/rockscraper-backend/internal/distributor"
	"github.com/bluewave-labs/rockscraper-backend/internal/id/uuid"
	"github.com/bluewave-labs/rockscraper-backend/internal/logging"
	"github.com/bluewave-labs/rockscraper-backend/internal/metrics"
	"github.com/bluewave-labs/rockscraper-backend/internal/process"
	pubsubpublisher "github.com/bluewave-labs/rockscraper-backend/internal/publisher/pubsub"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
	apiscraper "github.com/bluewave-labs/rockscraper-backend/internal/scraper/api"
	collyscraper "github.com/bluewave-labs/rockscraper-backend/internal/scraper/colly"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

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

	clock := system.New()
	idGen := uuid.NewGenerator()

	var sc scraper.Scraper
	switch cfg.Scraper.Mode {
	case config.ScraperModeAPI:
		client := apiscraper.NewClient(
			cfg.Scraper.APIBaseURL,
			cfg.Scraper.APIKey,
			logger.Named("api-client"),
			apiscraper.WithTimeout(cfg.ScrapeTimeout()),
		)
		sc = apiscraper.New(client, logger.Named("scraper"))
	case config.ScraperModeDirect:
		sc = collyscraper.New(collyscraper.Config{
			UserAgent:     cfg.Scraper.UserAgent,
			RespectRobots: cfg.Scraper.RespectRobots,
			Timeout:       cfg.ScrapeTimeout(),
		}, idGen, logger.Named("scraper"))
	default:
		logger.Fatal("unknown scraper mode", zap.String("mode", cfg.Scraper.Mode))
	}

	var contentStore scraper.ContentStore
	if cfg.DB.DSN != "" {
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("connect to postgres failed", zap.Error(err))
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("ensure schema failed", zap.Error(err))
		}
		contentStore = store
	}

	var blobStore scraper.BlobStore
	if cfg.Storage.GCSBucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("create storage client failed", zap.Error(err))
		}
		defer gcsClient.Close()
		blobStore, err = gcsblob.New(gcsClient, gcsblob.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("create blob store failed", zap.Error(err))
		}
	}

	proc := process.New(process.Config{
		Strategy:         distributor.Strategy(cfg.Distributor.Strategy),
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		CheckInterval:    cfg.CheckInterval(),
	}, clock, idGen, logger.Named("process"))

	if cfg.PubSub.ProjectID != "" {
		psClient, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("create pubsub client failed", zap.Error(err))
		}
		defer psClient.Close()
		pub := pubsubpublisher.New(psClient)
		topic := cfg.PubSub.TopicName
		proc.AddTaskHook(scraper.TaskStatusCompleted, func(task *scraper.Task) {
			res, _ := proc.Result(task.ID)
			if _, err := pub.Publish(ctx, topic, map[string]any{
				"task_id":   task.ID,
				"url":       task.URL,
				"status":    string(task.Status),
				"worker_id": res.WorkerID,
			}); err != nil {
				logger.Warn("publish task completion failed",
					zap.String("task_id", task.ID), zap.Error(err))
			}
		})
	}

	manager := crawl.New(sc, contentStore, blobStore, idGen, clock, crawl.Config{
		SessionDuration:   cfg.SessionDuration(),
		MaxURLsPerSession: cfg.Crawl.MaxURLsPerSession,
		FollowLinks:       cfg.Crawl.FollowLinks,
		MaxDepth:          cfg.Crawl.MaxDepth,
		SameDomainOnly:    cfg.Crawl.SameDomainOnly,
	}, logger.Named("crawl"))

	apiServer := api.NewServer(proc, manager, contentStore, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	proc.Start()

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
	proc.Stop()
	logger.Info("shutdown complete")
}
