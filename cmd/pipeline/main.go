package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brandintel/sentiment-platform/internal/ingest"
	"github.com/brandintel/sentiment-platform/internal/merge"
	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/internal/normalize"
	"github.com/brandintel/sentiment-platform/internal/pipeline"
	"github.com/brandintel/sentiment-platform/internal/store"
	"github.com/brandintel/sentiment-platform/pkg/config"
	"github.com/brandintel/sentiment-platform/pkg/kafka"
	"github.com/brandintel/sentiment-platform/pkg/logger"
	"github.com/brandintel/sentiment-platform/pkg/metrics"
	"github.com/brandintel/sentiment-platform/pkg/postgres"
	"github.com/brandintel/sentiment-platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting pipeline service",
		"run_interval", cfg.Pipeline.RunInterval,
		"overlap_window", cfg.Pipeline.OverlapWindow,
	)

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	eventStore := store.NewEventStore(pg)
	aggregateStore := store.NewAggregateStore(pg)
	runStore := store.NewRunStore(pg)

	ingestSvc := ingest.New(normalize.DefaultRegistry(), eventStore, m)
	socialConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SocialPosts,
		ingestSvc.Handler(model.SourceSocial))
	newsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.NewsArticles,
		ingestSvc.Handler(model.SourceNews))

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RunSummaries)
	defer producer.Close()

	engine := merge.New(eventStore, cfg.Pipeline.OverlapWindow)
	runner := pipeline.NewRunner(
		pipeline.PGLocker{Client: pg},
		engine,
		eventStore,
		aggregateStore,
		runStore,
		cfg.Pipeline,
		m,
		pipeline.WithPublisher(producer),
		pipeline.WithCache(redisClient),
		pipeline.WithIngestStats(ingestSvc),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return socialConsumer.Start(gctx) })
	g.Go(func() error { return newsConsumer.Start(gctx) })
	g.Go(func() error { return runner.Start(gctx) })

	slog.Info("pipeline service ready",
		"social_topic", cfg.Kafka.Topics.SocialPosts,
		"news_topic", cfg.Kafka.Topics.NewsArticles,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := g.Wait(); err != nil {
		slog.Error("pipeline service error", "error", err)
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}

	slog.Info("pipeline service stopped")
}
