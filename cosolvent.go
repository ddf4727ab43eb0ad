// Package cosolvent provides the asynchronous enrichment and search pipeline
// of the producer marketplace.
//
// Uploaded assets are described, folded into an AI-drafted producer profile,
// and, once approved, embedded into a vector index that buyers search.
//
// Basic usage:
//
//	client, err := cosolvent.New(
//	    cosolvent.WithSQLite(".cosolvent/data.db"),
//	    cosolvent.WithTextProvider(openai),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Consume the pipeline queues in the background
//	client.StartWorker(ctx)
//
//	// Search approved producers
//	matches, err := client.Search.Search(ctx, service.SearchRequest{
//	    Query: "organic wheat",
//	})
package cosolvent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cosolvent/cosolvent/application/handler"
	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/infrastructure/bus"
	"github.com/cosolvent/cosolvent/infrastructure/enricher"
	"github.com/cosolvent/cosolvent/infrastructure/extract"
	"github.com/cosolvent/cosolvent/infrastructure/persistence"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
	"github.com/cosolvent/cosolvent/internal/config"
	"github.com/cosolvent/cosolvent/internal/database"
	"github.com/cosolvent/cosolvent/internal/retry"
)

// Client is the main entry point for the cosolvent library.
// The queue worker is not started on creation; call StartWorker.
//
// Access services via struct fields:
//
//	client.Search.Search(ctx, req)
//	client.Indexing.Index(ctx, req)
//	client.Reindex.Run(ctx)
type Client struct {
	Search    *service.Search
	Indexing  *service.Indexing
	Embedding *service.Embedding
	Reindex   *service.Reindex
	Profiles  profile.Store
	Assets    asset.Store

	db        database.Database
	bus       queue.Bus
	registry  *service.Registry
	worker    *service.Worker
	providers *provider.Registry
	fetcher   *extract.Fetcher

	// Pipeline dependencies consumed by registerHandlers
	extractor    *extract.Extractor
	generator    *enricher.ProfileGenerator
	profileIndex search.Index
	assetIndex   search.Index

	config  config.AppConfig
	closers []io.Closer
	logger  *slog.Logger
	started atomic.Bool
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	app := cfg.app
	ctx := context.Background()

	if _, err := config.PrepareDataDir(app.DataDir()); err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(ctx, cfg.dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Everything opened from here on is released if construction fails.
	closers := []io.Closer{db}
	fail := func(err error) (*Client, error) {
		return nil, errors.Join(err, closeAll(closers))
	}

	if err := persistence.AutoMigrate(db); err != nil {
		return fail(fmt.Errorf("auto migrate: %w", err))
	}
	if err := persistence.ValidateSchema(db); err != nil {
		return fail(fmt.Errorf("validate schema: %w", err))
	}

	providers := provider.NewRegistry(provider.WithHTTPCacheDir(app.HTTPCacheDir()))
	closers = append(closers, providers)
	if err := resolveProviders(cfg, providers); err != nil {
		return fail(err)
	}

	publishRetry := retry.New(
		retry.WithMaxAttempts(app.BusPublishMaxAttempts()),
		retry.WithInitialDelay(app.BusPublishInitialDelay()),
	)
	eventBus, err := bus.Open(ctx, app.BusURL(), db,
		bus.WithPublishRetry(publishRetry),
		bus.WithPollPeriod(app.BusPollPeriod()),
		bus.WithLeaseTimeout(app.BusLeaseTimeout()),
		bus.WithLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("open bus: %w", err))
	}
	closers = append(closers, eventBus)

	prompts := enricher.DefaultPrompts()
	if app.PromptsFile() != "" {
		prompts, err = enricher.LoadPrompts(app.PromptsFile())
		if err != nil {
			return fail(fmt.Errorf("load prompts: %w", err))
		}
	}

	fetcher := extract.NewFetcher(
		extract.WithStorageEndpoint(app.StorageEndpoint()),
		extract.WithCredentialsFile(app.StorageCredentialsFile()),
		extract.WithS3(extract.S3Config(app.S3Storage())),
		extract.WithFetchTimeout(app.ExtractTimeout()),
		extract.WithMaxBytes(app.ExtractMaxBytes()),
	)
	closers = append(closers, fetcher)
	var objects extract.ObjectFetcher = fetcher
	if cfg.fetcher != nil {
		objects = cfg.fetcher
	}

	captionOpts := []enricher.CaptionerOption{
		enricher.WithCaptionPrompts(prompts),
		enricher.WithCaptionLogger(logger),
	}
	if cfg.transcriber != nil {
		captionOpts = append(captionOpts, enricher.WithTranscriber(cfg.transcriber))
	}
	captioner := enricher.NewCaptioner(cfg.visionProvider, objects, captionOpts...)
	extractor := extract.NewExtractor(objects, captioner, logger)

	var generator *enricher.ProfileGenerator
	if cfg.textProvider != nil {
		generator, err = enricher.NewProfileGenerator(cfg.textProvider,
			enricher.WithPrompts(prompts),
			enricher.WithMaxInputChars(app.ProfileMaxInputChars()),
			enricher.WithGeneratorLogger(logger),
		)
		if err != nil {
			return fail(fmt.Errorf("create profile generator: %w", err))
		}
	}

	embedding, err := service.NewEmbedding(
		service.WithEmbedder(cfg.embeddingProvider),
		service.WithEmbeddingsMode(app.EmbeddingsMode()),
		service.WithDimension(app.EmbeddingDimension()),
		service.WithEmbeddingLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("create embedding service: %w", err))
	}

	profileIndex, err := persistence.NewVectorIndex(ctx, db, search.ProfileIndex, app.EmbeddingDimension(), logger)
	if err != nil {
		return fail(fmt.Errorf("create profile index: %w", err))
	}
	assetIndex, err := persistence.NewVectorIndex(ctx, db, search.AssetIndex, app.EmbeddingDimension(), logger)
	if err != nil {
		return fail(fmt.Errorf("create asset index: %w", err))
	}

	profiles := persistence.NewProfileStore(db)
	assets := persistence.NewAssetStore(db)

	searchSvc, err := service.NewSearch(embedding, profileIndex,
		service.WithDefaultTopK(app.SearchLimit()),
		service.WithMaxTopK(app.SearchMaxTopK()),
		service.WithSearchLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("create search service: %w", err))
	}
	indexingSvc, err := service.NewIndexing(embedding, profileIndex, assetIndex, logger)
	if err != nil {
		return fail(fmt.Errorf("create indexing service: %w", err))
	}
	reindexSvc, err := service.NewReindex(profiles, indexingSvc, app.WorkerCount(), logger)
	if err != nil {
		return fail(fmt.Errorf("create reindex service: %w", err))
	}

	registry := service.NewRegistry()
	worker := service.NewWorker(eventBus, registry, logger).
		WithConsumers(app.WorkerCount()).
		WithMessageTimeout(app.WorkerMessageTimeout())

	client := &Client{
		Search:       searchSvc,
		Indexing:     indexingSvc,
		Embedding:    embedding,
		Reindex:      reindexSvc,
		Profiles:     profiles,
		Assets:       assets,
		db:           db,
		bus:          eventBus,
		registry:     registry,
		worker:       worker,
		providers:    providers,
		fetcher:      fetcher,
		extractor:    extractor,
		generator:    generator,
		profileIndex: profileIndex,
		assetIndex:   assetIndex,
		config:       app,
		closers:      append(closers, cfg.closers...),
		logger:       logger,
	}

	if err := client.registerHandlers(); err != nil {
		return fail(fmt.Errorf("register handlers: %w", err))
	}

	if !cfg.skipProviderValidation {
		if err := client.validateHandlers(); err != nil {
			return fail(err)
		}
	}

	logger.Info("cosolvent client ready",
		slog.String("embeddings_mode", string(embedding.Mode())),
		slog.Int("dimension", embedding.Dimension()),
		slog.Bool("postgres", db.IsPostgres()),
	)

	return client, nil
}

// StartWorker starts consuming every registered queue. It returns
// immediately; the consumers run until ctx is cancelled or Close is called.
func (c *Client) StartWorker(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	c.worker.Start(ctx)
	return nil
}

// Wait blocks until the worker's consumers exit.
func (c *Client) Wait() error {
	if !c.started.Load() {
		return nil
	}
	return c.worker.Wait()
}

// Publish validates body against the named queue's payload and emits it.
func (c *Client) Publish(ctx context.Context, name string, body []byte) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	q, err := queue.ParseName(name)
	if err != nil {
		return err
	}
	if err := validatePayload(q, body); err != nil {
		return err
	}
	return c.bus.Publish(ctx, q, body)
}

// Approve promotes the user's draft profile to active and emits
// profile_approved so the indexing worker embeds it.
func (c *Client) Approve(ctx context.Context, userID string) (profile.Profile, error) {
	if c.closed.Load() {
		return profile.Profile{}, ErrClientClosed
	}
	p, err := c.Profiles.Approve(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	if err := handler.Publish(ctx, c.bus, queue.ProfileApprovedQueue, queue.ProfileApproved{UserID: userID}); err != nil {
		return p, err
	}
	return p, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.AppConfig { return c.config }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Close stops the worker and releases all resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.started.Load() {
		if err := c.worker.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop worker: %w", err))
		}
	}
	if err := closeAll(c.closers); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// closeAll closes in reverse order of acquisition.
func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
