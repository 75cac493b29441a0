package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/answer"
	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/chat"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/index"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/scope"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/summary"
)

type completer interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

type publisher interface {
	Publish(subject string, data any) error
}

// app holds the wired pipeline shared by the serve and backfill commands.
type app struct {
	db        *store.Store
	bus       *hermes.Client // nil when NATS_URL is unset
	metrics   *metrics.Metrics
	indexer   *index.Indexer
	chat      *chat.Service
	processor *processor.Processor
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	a := &app{db: db, metrics: metrics.New("scribe")}

	// Interface values stay untyped nil unless the bus is configured, so
	// consumers can test them against nil.
	var pub publisher
	if cfg.NatsURL != "" {
		bus, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.bus = bus
		pub = bus
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, running without event bus")
	}

	emb := openai.New(openai.Options{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      cfg.ChatModel,
		Dimensions:     cfg.EmbeddingDims,
	})

	var llm completer = emb
	if cfg.CompletionProvider == config.ProviderAnthropic {
		llm = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, 0)
	}
	slog.Info("gateways ready",
		"embedding_model", cfg.EmbeddingModel,
		"completion_provider", cfg.CompletionProvider,
	)

	t := cfg.Tuning
	a.indexer = index.New(db, emb, t.ChunkMaxChars, a.metrics, slog.Default())

	a.chat = chat.NewService(chat.Deps{
		Messages: db,
		Embedder: emb,
		Resolver: scope.NewResolver(db, slog.Default()),
		Retriever: retrieval.New(db, retrieval.Options{
			TopK:     t.RetrievalTopK,
			MinScore: t.RetrievalMinScore,
			Cap:      t.RetrievalCap,
		}, a.metrics),
		Composer:     answer.New(llm, t.HistoryTail),
		Publisher:    pub,
		HistoryLimit: t.HistoryLimit,
		Metrics:      a.metrics,
		Logger:       slog.Default(),
	})

	a.processor = processor.New(db, a.indexer, summary.New(llm, slog.Default()), pub, a.metrics, slog.Default())
	return a, nil
}

func (a *app) Close() {
	if a.bus != nil {
		if err := a.bus.Drain(); err != nil {
			slog.Warn("nats drain failed", "error", err)
			a.bus.Close()
		}
	}
	a.db.Close()
}

func runServe(cmd *cobra.Command) error {
	cfg := loadConfig()
	slog.Info("scribe starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.bus != nil {
		if err := a.bus.Subscribe(hermes.SubjectTranscriptFinalized, hermes.QueueProcessors, a.processor.HandleTranscriptFinalized); err != nil {
			return fmt.Errorf("subscribe transcript events: %w", err)
		}
	}

	srv := api.NewServer(cfg.Port, api.Deps{
		Store:         a.db,
		Chat:          a.chat,
		Finalizer:     a.processor,
		Backfiller:    a.indexer,
		Metrics:       a.metrics,
		APIToken:      cfg.APIToken,
		BackfillLimit: cfg.Tuning.BackfillLimit,
		Logger:        slog.Default(),
	})
	if cfg.APIToken == "" {
		slog.Warn("SCRIBE_API_TOKEN not set, API is unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	slog.Info("scribe ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return errors.New("http server stopped")
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "error", err)
	}
	slog.Info("scribe stopped")
	return nil
}
