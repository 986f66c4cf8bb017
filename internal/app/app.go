// Package app builds the crawler's long-lived services from configuration
// and runs crawls over them.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/clock/system"
	"github.com/JakeFAU/keyword-crawler/internal/config"
	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/dispatcher"
	"github.com/JakeFAU/keyword-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/keyword-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/keyword-crawler/internal/id/uuid"
	"github.com/JakeFAU/keyword-crawler/internal/jobfile"
	"github.com/JakeFAU/keyword-crawler/internal/proxy"
	gcppublisher "github.com/JakeFAU/keyword-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/keyword-crawler/internal/query"
	queueMemory "github.com/JakeFAU/keyword-crawler/internal/queue/memory"
	"github.com/JakeFAU/keyword-crawler/internal/ratelimit"
	"github.com/JakeFAU/keyword-crawler/internal/storage"
	"github.com/JakeFAU/keyword-crawler/internal/storage/csvfs"
	gcsstorage "github.com/JakeFAU/keyword-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/keyword-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/keyword-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/keyword-crawler/internal/storage/postgres"
	"github.com/JakeFAU/keyword-crawler/internal/worker"
)

// App contains the application's dependencies. The batch store is opened by
// Build; crawl-only sinks (archive, publisher) are opened by Crawl.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    crawler.Store
	pgStore  *pgstore.BatchStore
	resolver *query.Resolver
	ids      crawler.IDGenerator
	clock    crawler.Clock

	gcs             *gcsstorage.BlobStore
	pubsubPublisher *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
	}
	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	a.resolver = query.NewResolver(a.store, logger)
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store returns the batch store.
func (a *App) Store() crawler.Store {
	return a.store
}

// Resolver returns the query resolver over the batch store.
func (a *App) Resolver() *query.Resolver {
	return a.resolver
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StoragePostgres:
		a.logger.Info("using postgres batch store", zap.String("table_prefix", a.cfg.DB.TablePrefix))
		store, err := pgstore.NewBatchStore(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			TablePrefix:     a.cfg.DB.TablePrefix,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.ConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
		a.pgStore = store
		a.store = store
	default:
		a.logger.Info("using csv batch store", zap.String("data_root", a.cfg.Storage.DataRoot))
		store, err := csvfs.New(csvfs.Config{DataRoot: a.cfg.Storage.DataRoot})
		if err != nil {
			return fmt.Errorf("csv store init failed: %w", err)
		}
		a.store = store
	}
	return nil
}

// ProxySource returns the configured proxy source: the static list when one
// is set, the scraped proxy table otherwise.
func (a *App) ProxySource() (crawler.ProxySource, error) {
	if len(a.cfg.Proxy.Static) > 0 {
		src, err := proxy.ParseStatic(a.cfg.Proxy.Static)
		if err != nil {
			return nil, fmt.Errorf("proxy.static: %w", err)
		}
		return src, nil
	}
	return proxy.NewListSource(proxy.ListConfig{
		URL:       a.cfg.Proxy.SourceURL,
		UserAgent: a.cfg.Proxy.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	}, a.logger.Named("proxy_source")), nil
}

// LoadProxies lists proxies from the configured source.
func (a *App) LoadProxies(ctx context.Context) ([]crawler.ProxyEndpoint, error) {
	src, err := a.ProxySource()
	if err != nil {
		return nil, err
	}
	endpoints, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}
	return endpoints, nil
}

// CrawlResult is the outcome of one Crawl.
type CrawlResult struct {
	Report      dispatcher.Report
	TopicErrors []error
}

// Crawl runs the configured job file to completion. A *crawler.ConfigError
// is returned before any fetch when the job file is unusable; per-topic
// failures are reported in the result instead.
func (a *App) Crawl(ctx context.Context) (CrawlResult, error) {
	job, topicErrs, err := jobfile.Load(a.cfg.Crawler.JobFile)
	if err != nil {
		return CrawlResult{}, err
	}
	for _, terr := range topicErrs {
		a.logger.Warn("skipping job entry", zap.Error(terr))
	}
	if len(job.Topics) == 0 {
		return CrawlResult{TopicErrors: topicErrs}, &crawler.ConfigError{
			Path: a.cfg.Crawler.JobFile,
			Err:  errors.New("no valid topics"),
		}
	}

	endpoints, err := a.LoadProxies(ctx)
	if err != nil {
		return CrawlResult{TopicErrors: topicErrs}, err
	}
	if len(endpoints) == 0 {
		return CrawlResult{TopicErrors: topicErrs}, fmt.Errorf("load proxies: %w", crawler.ErrEmptyPool)
	}
	a.logger.Info("proxy pool populated", zap.Int("proxies", len(endpoints)))
	pool := proxy.NewPool(endpoints, proxy.WithFailureThreshold(a.cfg.Proxy.FailureThreshold))

	archive, err := a.setupArchive(ctx)
	if err != nil {
		return CrawlResult{TopicErrors: topicErrs}, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return CrawlResult{TopicErrors: topicErrs}, err
	}

	runID, err := a.ids.NewID()
	if err != nil {
		return CrawlResult{TopicErrors: topicErrs}, fmt.Errorf("generate run id: %w", err)
	}

	queue := queueMemory.NewQueue(a.cfg.Crawler.QueueDepth)
	dispatch := dispatcher.New(queue, a.workers(queue, pool, archive, publisher), a.logger.Named("dispatcher"))
	report := dispatch.Run(ctx, runID, job)
	return CrawlResult{Report: report, TopicErrors: topicErrs}, nil
}

func (a *App) workers(
	queue crawler.Queue,
	pool crawler.ProxyPool,
	archive *storage.Archive,
	publisher crawler.Publisher,
) []dispatcher.Runner {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:         a.cfg.Crawler.UserAgent,
		Timeout:           a.cfg.FetchTimeout(),
		ChallengeSelector: a.cfg.Extract.ChallengeSelector,
	})
	extractor := extract.New(extract.Options{
		CanonicalHost:  a.cfg.Extract.CanonicalHost,
		InternalPrefix: a.cfg.Extract.InternalPrefix,
		NumericRating:  a.cfg.Extract.NumericRating,
	})
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: a.cfg.Crawler.RatePerSecond,
		Burst:             a.cfg.Crawler.Burst,
	})
	workerCfg := worker.Config{
		SearchURL:      a.cfg.Crawler.SearchURL,
		SearchAlias:    a.cfg.Crawler.SearchAlias,
		UserAgent:      a.cfg.Crawler.UserAgent,
		PhraseTemplate: a.cfg.Crawler.PhraseTemplate,
	}
	retry := a.cfg.RetryPolicy()
	a.logger.Info("worker config",
		zap.Int("concurrency", a.cfg.Crawler.Concurrency),
		zap.String("search_url", workerCfg.SearchURL),
		zap.Int("max_attempts", retry.MaxAttempts),
		zap.Float64("rate_per_second", a.cfg.Crawler.RatePerSecond),
	)

	workers := make([]dispatcher.Runner, 0, a.cfg.Crawler.Concurrency)
	for i := 0; i < a.cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			pool,
			fetcher,
			extractor,
			a.store,
			archive,
			publisher,
			limiter,
			a.clock,
			retry,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return workers
}

func (a *App) setupArchive(ctx context.Context) (*storage.Archive, error) {
	var blobs crawler.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		a.logger.Info("using GCS batch archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = store
		blobs = store
	case config.ArchiveLocal:
		a.logger.Info("using local batch archive", zap.String("path", a.cfg.Archive.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		blobs = store
	case config.ArchiveMemory:
		a.logger.Info("using in-memory batch archive")
		blobs = memoryStorage.NewBlobStore()
	default:
		a.logger.Debug("batch archive disabled")
		return nil, nil
	}
	return storage.NewArchive(blobs, a.cfg.Archive.Prefix), nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Info("no Pub/Sub topic configured, batch events disabled")
		return nil, nil
	}
	pub, err := gcppublisher.Open(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		TopicName: a.cfg.PubSub.TopicName,
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsubPublisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

// Close releases every client the App opened.
func (a *App) Close() {
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
