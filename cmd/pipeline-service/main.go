package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/postsmith/postsmith/internal/cache"
	"github.com/postsmith/postsmith/internal/cms"
	"github.com/postsmith/postsmith/internal/config"
	"github.com/postsmith/postsmith/internal/drafts"
	"github.com/postsmith/postsmith/internal/httpserver"
	"github.com/postsmith/postsmith/internal/imagegen"
	"github.com/postsmith/postsmith/internal/ledger"
	"github.com/postsmith/postsmith/internal/models"
	"github.com/postsmith/postsmith/internal/pipeline"
	"github.com/postsmith/postsmith/internal/progress"
	"github.com/postsmith/postsmith/internal/publish"
	"github.com/postsmith/postsmith/internal/store"
	"github.com/postsmith/postsmith/internal/taxonomy"
	"github.com/postsmith/postsmith/internal/textgen"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	contentStore := store.NewPGStore(db)

	textClient := textgen.NewOpenAIClient(textgen.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.TextTimeout,
	})

	imageClient, err := imagegen.New(imagegen.Config{
		BaseURL: cfg.ImageGenURL,
		APIKey:  cfg.ImageGenAPIKey,
		Timeout: cfg.ImageTimeout,
	})
	if err != nil {
		log.Fatalf("imagegen init: %v", err)
	}

	pipe := &pipeline.Pipeline{
		Ledger:  ledger.NewPGLedger(db),
		Store:   contentStore,
		Text:    textgen.NewGenerator(textClient),
		Images:  imageClient,
		Targets: targetFactory(cfg.PublishTimeout),
	}

	if cfg.RedisAddr != "" {
		ctxCache, err := cache.New(cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("cache init: %v", err)
		}
		defer ctxCache.Close()
		pipe.Cache = ctxCache
	}

	reporter := progress.Reporter(progress.LogReporter{})
	if len(cfg.KafkaBrokers) > 0 {
		kafkaReporter, err := progress.NewKafkaReporter(progress.KafkaReporterConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.ProgressTopic,
		})
		if err != nil {
			log.Fatalf("progress reporter init: %v", err)
		}
		defer kafkaReporter.Close()
		reporter = progress.Multi{progress.LogReporter{}, kafkaReporter}
	}
	pipe.Reporter = reporter

	if cfg.DraftBucket != "" {
		archiver, err := drafts.NewS3Archiver(context.Background(), cfg.DraftBucket, cfg.DraftPrefix)
		if err != nil {
			log.Fatalf("draft archiver init: %v", err)
		}
		pipe.Archiver = archiver
	}

	server := httpserver.New(cfg, contentStore, pipe)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Content pipeline service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	shutdown(httpServer)
}

// targetFactory builds the per-request CMS collaborators: one client per
// target site, shared by the publisher and the taxonomy resolver.
func targetFactory(timeout time.Duration) pipeline.TargetFactory {
	return func(site models.TargetSite) (pipeline.ContentPublisher, pipeline.ResolverFactory, error) {
		client, err := cms.New(cms.Config{
			BaseURL:     site.BaseURL,
			Username:    site.Username,
			AppPassword: site.AppPassword,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		resolvers := func(keywords []string) pipeline.Resolver {
			return taxonomy.NewResolver(client, keywords)
		}
		return publish.New(client), resolvers, nil
	}
}

func shutdown(s *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
