package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantsignal/grantsignal/internal/config"
	"github.com/grantsignal/grantsignal/internal/core/ports"
	"github.com/grantsignal/grantsignal/internal/core/usecase"
	"github.com/grantsignal/grantsignal/internal/infrastructure/chunking"
	"github.com/grantsignal/grantsignal/internal/infrastructure/llm/ollama"
	natsqueue "github.com/grantsignal/grantsignal/internal/infrastructure/queue/nats"
	"github.com/grantsignal/grantsignal/internal/infrastructure/parser"
	"github.com/grantsignal/grantsignal/internal/infrastructure/repository/postgres"
	"github.com/grantsignal/grantsignal/internal/infrastructure/storage/gcs"
	"github.com/grantsignal/grantsignal/internal/infrastructure/storage/localfs"
	"github.com/grantsignal/grantsignal/internal/infrastructure/vector/qdrant"
	"github.com/grantsignal/grantsignal/internal/infrastructure/webhook"
	"github.com/grantsignal/grantsignal/internal/observability/logging"
)

// App owns the lifecycle of every client the pipeline uses. Nothing in
// this package or below it holds module-scope state.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue         *natsqueue.Queue
	Docs          ports.DocumentRepository
	Notifications ports.NotificationRepository

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	compliance := postgres.NewComplianceRepository(db)
	notifications := postgres.NewNotificationRepository(db)
	steps := postgres.NewStepCache(db)

	storage, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := natsqueue.New(cfg.NATSURL, cfg.UploadSubject, cfg.NotifySubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	extractor := ollama.NewCommitmentExtractor(ollamaClient)

	opts := usecase.Options{
		Steps:  steps,
		Logger: logger,
	}
	if cfg.QdrantURL != "" {
		opts.Vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix)
	}
	if cfg.WebhookEndpoint != "" {
		opts.Webhook = webhook.New(cfg.WebhookEndpoint)
	}

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	parsers := parser.NewRegistry()

	ingestUC := usecase.NewIngestDocumentUseCase(docs, storage, queue)
	processUC := usecase.NewProcessUploadUseCase(
		docs, compliance, notifications,
		storage, parsers, chunker, embedder, extractor, queue,
		opts,
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:         queue,
		Docs:          docs,
		Notifications: notifications,

		IngestUC:  ingestUC,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			if closeStorage != nil {
				closeStorage()
			}
			_ = db.Close()
		},
	}, nil
}

func buildStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, func(), error) {
	switch cfg.StorageBackend {
	case "gcs":
		store, err := gcs.New(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "localfs", "":
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
