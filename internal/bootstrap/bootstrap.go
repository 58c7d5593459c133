package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/csr-style-review/internal/config"
	"github.com/kirillkom/csr-style-review/internal/core/correction"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/matching"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
	"github.com/kirillkom/csr-style-review/internal/core/usecase"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/chunking"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/embedding/hashing"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/export"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/extractor"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/progress"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/queue/nats"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/repository/memory"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/resilience"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/storage/s3"
	memoryindex "github.com/kirillkom/csr-style-review/internal/infrastructure/vector/memory"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/csr-style-review/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Service     *usecase.ReviewService
	Exports     *usecase.ExportUseCase
	Sessions    *usecase.SessionManager
	Progress    *progress.Hub
	HTTPMetrics *metrics.HTTPServerMetrics

	closers []func(ctx context.Context)
}

// New wires every backend selected by cfg. Optional backends (Postgres, NATS,
// Qdrant, S3) are only dialled when configured.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg, Progress: progress.NewHub(progress.DefaultBuffer)}
	ok := false
	defer func() {
		if !ok {
			app.Close(context.Background())
		}
	}()

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	reviewMetrics := metrics.NewReviewMetrics(service, app.HTTPMetrics.Registry())

	resilienceCfg := cfg.Resilience()
	resilienceCfg.OnStateChange = reviewMetrics.ObserveBreakerState
	executor := resilience.NewExecutor(resilienceCfg)

	runs, err := app.runStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	reporter, err := app.progressReporter(cfg, service, executor)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg, executor)
	if err != nil {
		return nil, err
	}
	indexFactory, err := newIndexFactory(cfg, executor)
	if err != nil {
		return nil, err
	}

	splitter := chunking.NewSplitter(cfg.ChunkMinChars, cfg.ChunkMaxChars)
	batch := usecase.BatchConfig{Size: cfg.EmbedBatchSize, Timeout: cfg.EmbedTimeout}

	builder := usecase.NewRuleSetBuilder(splitter, rules.NewExtractor().WithLexicon(cfg.Lexicon), embedder, indexFactory, reporter, reviewMetrics, batch)
	reviews := usecase.NewReviewUseCase(
		splitter,
		embedder,
		matching.NewMatcher(cfg.Matching),
		correction.NewCorrector(),
		reporter,
		reviewMetrics,
		batch,
		cfg.ReviewWorkers,
	)

	app.Sessions = usecase.NewSessionManager()
	app.closers = append(app.closers, app.Sessions.Close)
	app.Service = usecase.NewReviewService(app.Sessions, extractor.NewRouter(cfg.MaxUploadBytes), builder, reviews, runs, reporter)
	app.Exports = usecase.NewExportUseCase(runs, export.NewWriter(), storage)

	slog.Info("bootstrap_ready",
		"embedder", cfg.EmbedderBackend,
		"index", cfg.IndexBackend,
		"storage", cfg.StorageBackend,
		"postgres", cfg.PostgresDSN != "",
		"nats", cfg.NATSURL != "",
	)
	ok = true
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
	if a.Progress != nil {
		a.Progress.Close()
	}
}

func (a *App) runStore(ctx context.Context, cfg config.Config) (ports.ReviewRunStore, error) {
	if cfg.PostgresDSN == "" {
		return memory.NewRunStore(0), nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) { _ = db.Close() })

	repo := postgres.NewReviewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// progressReporter publishes through NATS when configured and relays the
// subject back into the local hub, so any replica can serve a progress stream.
func (a *App) progressReporter(cfg config.Config, service string, executor *resilience.Executor) (ports.ProgressReporter, error) {
	if cfg.NATSURL == "" {
		return a.Progress, nil
	}
	conn, err := nats.Connect(cfg.NATSURL, cfg.ProgressSubject, nats.Options{
		Name:               service,
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init progress transport: %w", err)
	}

	forwardCtx, cancel := context.WithCancel(context.Background())
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		if err := conn.Forward(forwardCtx, a.Progress.Report); err != nil {
			slog.Error("progress_forward_failed", "error", err.Error())
		}
	}()
	a.closers = append(a.closers, func(ctx context.Context) {
		cancel()
		select {
		case <-forwardDone:
		case <-ctx.Done():
		}
		conn.Close()
	})
	return conn, nil
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		storage, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return storage, nil
	default:
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, nil
	}
}

func newEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch cfg.EmbedderBackend {
	case "hashing":
		return hashing.New(cfg.HashingDims), nil
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbedTimeout, executor), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "init embedder", fmt.Errorf("unknown backend %q", cfg.EmbedderBackend))
	}
}

func newIndexFactory(cfg config.Config, executor *resilience.Executor) (ports.IndexFactory, error) {
	switch cfg.IndexBackend {
	case "memory":
		return memoryindex.Factory(), nil
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix, 30*time.Second, executor).Factory(), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "init rule index", fmt.Errorf("unknown backend %q", cfg.IndexBackend))
	}
}
