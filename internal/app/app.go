package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"sciencefeed/features/article"
	"sciencefeed/features/document"
	"sciencefeed/features/job"
	"sciencefeed/features/stats"
	"sciencefeed/internal/adapter/gemini"
	"sciencefeed/internal/adapter/imagegen"
	"sciencefeed/internal/config"
	"sciencefeed/internal/ingest"
	"sciencefeed/internal/metrics"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
	"sciencefeed/internal/ratelimit"
	"sciencefeed/internal/retrieval"
	"sciencefeed/internal/settings"
	"sciencefeed/internal/text"
	"sciencefeed/internal/worker"
)

type App struct {
	Handler            http.Handler
	Ingest             *ingest.Service
	Retrieval          *retrieval.Service
	Indexer            *document.Indexer
	Chunker            *text.Chunker
	SubmissionConsumer *worker.SubmissionConsumer
	IndexConsumer      *worker.IndexConsumer

	cfg       *config.Config
	embedder  *gemini.DynamicEmbedder
	completer *gemini.Completer
	queryLog  *retrieval.QueryLogger
}

// New wires every service on top of the given dependencies. deps.Publisher
// may be nil for commands that never enqueue work.
func New(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*App, error) {
	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(deps.DB)
	settingsService := settings.NewService(settingsRepo)

	// Seed Gemini API Key from Config
	if seeded, err := settingsService.SeedAPIKey(ctx, cfg.GeminiAPIKey); err != nil {
		logger.Warn("failed to seed gemini api key", "error", err)
	} else if seeded {
		logger.Info("seeded gemini api key from environment")
	}

	settingsHandler := settings.NewHandler(settingsService)

	// Adapters: Dynamic
	embedder := gemini.NewDynamicEmbedder(settingsService, gemini.Options{Model: cfg.EmbeddingModel, FallbackKey: cfg.GeminiAPIKey})
	completer := gemini.NewCompleter(settingsService, gemini.Options{Model: cfg.CompletionModel, FallbackKey: cfg.GeminiAPIKey})

	// Adapters: Resolution & Extraction
	rs, err := LoadRules(cfg)
	if err != nil {
		return nil, err
	}
	searcher, err := NewSearcher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	urlResolver := NewResolver(cfg, rs)
	extractor := NewExtractor(cfg, rs, searcher)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(deps.DB)
	jobService := job.NewService(jobRepo, deps.Publisher)
	jobHandler := job.NewHandler(jobService)

	// Feature: Article & Ingest
	articleRepo := article.NewPostgresRepo(deps.DB)
	articleHandler := article.NewHandler(articleRepo)

	ingestDeps := ingest.Deps{
		Resolver:  urlResolver,
		Extractor: extractor,
		Searcher:  searcher,
		Store:     articleRepo,
		Completer: completer,
		Embedder:  embedder,
		Failures:  jobService,
	}
	if cfg.ImageAPIBase != "" && deps.Images != nil {
		ingestDeps.Images = imagegen.New(cfg.ImageAPIBase, cfg.ImageAPIKey, imagegen.WithModel(cfg.ImageModel))
		ingestDeps.ImageStore = deps.Images
	}
	ingestService := ingest.NewService(ingestDeps, ingest.Options{
		AICallInterval:   cfg.AICallInterval,
		ItemTimeout:      cfg.ItemTimeout,
		BatchTimeout:     cfg.BatchTimeout,
		DedupPageSize:    cfg.DedupPageSize,
		SummaryMaxTokens: cfg.SummaryMaxTokens,
		BackfillPageSize: cfg.BackfillPageSize,
	})
	ingestHandler := ingest.NewHandler(ingestService, deps.Publisher)

	// Feature: Document
	chunker := NewChunker(cfg)
	documentRepo := document.NewPostgresRepo(deps.DB)
	indexer := document.NewIndexer(documentRepo, chunker, embedder, ratelimit.NewRunner(cfg.AICallInterval), logger)
	documentHandler := document.NewHandler(documentRepo, deps.Publisher, chunker)

	// Feature: Stats
	statsHandler := stats.NewHandler(articleRepo, documentRepo, jobRepo)

	// Feature: Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, retrieval.Fallbacks{articleRepo, documentRepo}, []retrieval.EmbeddedSource{articleRepo, documentRepo}, settingsService, queryLogger, retrieval.Defaults{
		TopK:          cfg.SearchTopK,
		Threshold:     cfg.SearchThreshold,
		FallbackLimit: cfg.SearchFallbackSize,
		Dimension:     cfg.EmbeddingDimension,
	})
	retrievalHandler := retrieval.NewHandler(retrievalService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.HeaderCorrelationID)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}
	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(h))
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /ingest", route(ingestHandler.Batch))
	mux.Handle("POST /ingest/query", route(ingestHandler.Query))
	mux.Handle("POST /ingest/url", route(ingestHandler.Submit))
	mux.Handle("POST /backfill", route(ingestHandler.Backfill))
	mux.Handle("POST /resolve", route(ingestHandler.Resolve))
	mux.Handle("POST /extract", route(ingestHandler.Extract))

	mux.Handle("GET /search", route(retrievalHandler.Search))
	mux.Handle("GET /articles", route(articleHandler.List))

	mux.Handle("POST /chunk", route(documentHandler.Chunk))
	mux.Handle("POST /documents/{id}/index", route(documentHandler.Index))

	mux.Handle("GET /settings", route(settingsHandler.GetSettings))
	mux.Handle("PUT /settings", route(settingsHandler.UpdateSettings))

	mux.Handle("GET /jobs/failed", route(jobHandler.List))
	mux.Handle("POST /jobs/{id}/retry", route(jobHandler.Retry))
	mux.Handle("DELETE /jobs/{id}", route(jobHandler.Dismiss))

	mux.Handle("GET /stats", route(statsHandler.GetStats))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:            mux,
		Ingest:             ingestService,
		Retrieval:          retrievalService,
		Indexer:            indexer,
		Chunker:            chunker,
		SubmissionConsumer: worker.NewSubmissionConsumer(ingestService),
		IndexConsumer:      worker.NewIndexConsumer(indexer, cfg.BatchTimeout),
		cfg:                cfg,
		embedder:           embedder,
		completer:          completer,
		queryLog:           queryLogger,
	}, nil
}

// Close releases the Gemini clients and the query log.
func (a *App) Close() error {
	return errors.Join(a.embedder.Close(), a.completer.Close(), a.queryLog.Close())
}

// Run serves HTTP and consumes NSQ topics, as enabled in the config, until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.EnableAPI {
		g.Go(func() error { return a.serve(ctx) })
	}
	if a.cfg.EnableWorker {
		g.Go(func() error { return a.consume(ctx, config.TopicIngestURL, a.SubmissionConsumer) })
		g.Go(func() error { return a.consume(ctx, config.TopicDocumentIndex, a.IndexConsumer) })
	}
	return g.Wait()
}

func (a *App) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) consume(ctx context.Context, topic string, h nsq.Handler) error {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = 10
	// one batch at a time per process
	nsqCfg.MaxInFlight = 1

	consumer, err := nsq.NewConsumer(topic, config.ChannelWorker, nsqCfg)
	if err != nil {
		return fmt.Errorf("nsq consumer for %s: %w", topic, err)
	}
	consumer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	consumer.AddHandler(h)

	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		return fmt.Errorf("connect %s consumer to nsqlookupd: %w", topic, err)
	}
	slog.Info("NSQ consumer connected", "topic", topic, "channel", config.ChannelWorker)

	<-ctx.Done()
	consumer.Stop()
	<-consumer.StopChan
	slog.Info("NSQ consumer stopped", "topic", topic)
	return nil
}

// nsqLogger routes go-nsq's internal log lines into slog.
type nsqLogger struct{}

func (nsqLogger) Output(_ int, s string) error {
	slog.Warn("nsq", "message", s)
	return nil
}

var _ queue.Publisher = (*nsq.Producer)(nil)
