// Package worker implements the per-topic crawl loop: phrase, fetch through
// a proxy with retries, extract, filter, persist.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/clock/system"
	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/metrics"
	"github.com/JakeFAU/keyword-crawler/internal/storage"
)

// Default search request values.
const (
	DefaultSearchURL   = "https://www.amazon.com/s/ref=nb_sb_noss_2"
	DefaultSearchAlias = "search-alias"
	DefaultUserAgent   = "Mozilla/5.0"
)

// Config controls Worker behavior.
type Config struct {
	SearchURL      string
	SearchAlias    string
	UserAgent      string
	PhraseTemplate string
}

// Worker consumes topics from the queue and crawls each one to completion.
type Worker struct {
	queue     crawler.Queue
	pool      crawler.ProxyPool
	fetcher   crawler.PageFetcher
	extractor crawler.Extractor
	store     crawler.Store
	archive   *storage.Archive
	publisher crawler.Publisher
	limiter   crawler.RateLimiter
	clock     crawler.Clock
	retry     crawler.RetryPolicy
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. archive, publisher, limiter and clock may be nil.
func New(
	queue crawler.Queue,
	pool crawler.ProxyPool,
	fetcher crawler.PageFetcher,
	extractor crawler.Extractor,
	store crawler.Store,
	archive *storage.Archive,
	publisher crawler.Publisher,
	limiter crawler.RateLimiter,
	clock crawler.Clock,
	retry crawler.RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.SearchAlias == "" {
		cfg.SearchAlias = DefaultSearchAlias
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PhraseTemplate == "" {
		cfg.PhraseTemplate = crawler.DefaultPhraseTemplate
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		pool:      pool,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		archive:   archive,
		publisher: publisher,
		limiter:   limiter,
		clock:     clock,
		retry:     retry,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued topic", zap.String("run_id", item.RunID), zap.String("topic", item.Spec.Topic))
		result := w.ProcessTopic(ctx, item.RunID, item.Spec)
		if item.Done != nil {
			item.Done <- result
		}
	}
}

// ProcessTopic crawls every modifier of spec in order. A persistence failure
// stops the topic; a modifier whose fetches are exhausted is recorded and the
// next modifier is tried, unless the pool is empty or ctx has ended.
func (w *Worker) ProcessTopic(ctx context.Context, runID string, spec crawler.TopicSpec) crawler.TopicResult {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("run_id", runID), zap.String("topic", spec.Topic))
	result := crawler.TopicResult{Topic: spec.Topic}
	var failures []error

	phrases := crawler.Phrases(w.cfg.PhraseTemplate, spec.Topic, spec.Modifiers)
	for i, modifier := range spec.Modifiers {
		kept, dropped, err := w.crawlModifier(ctx, runID, spec.Topic, modifier, phrases[i], logger)
		if err != nil {
			failures = append(failures, err)
			var persistErr *crawler.PersistError
			if errors.As(err, &persistErr) || stopTopic(ctx, err) {
				break
			}
			continue
		}
		result.BatchesStored++
		result.ItemsStored += kept
		result.ItemsDropped += dropped
	}

	result.Err = errors.Join(failures...)
	if result.Err != nil {
		metrics.ObserveTopic("failed")
		logger.Error("topic crawl failed", zap.Int("batches", result.BatchesStored), zap.Error(result.Err))
	} else {
		metrics.ObserveTopic("succeeded")
		logger.Info("topic crawled", zap.Int("batches", result.BatchesStored), zap.Int("items", result.ItemsStored))
	}
	return result
}

func stopTopic(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, crawler.ErrEmptyPool)
}

func (w *Worker) crawlModifier(
	ctx context.Context,
	runID, topic, modifier, phrase string,
	logger *zap.Logger,
) (int, int, error) {
	body, err := w.fetchPhrase(ctx, phrase, logger)
	if err != nil {
		return 0, 0, fmt.Errorf("modifier %q: %w", modifier, err)
	}
	records, err := w.extractor.ExtractHTML(body)
	if err != nil {
		return 0, 0, fmt.Errorf("modifier %q: %w", modifier, err)
	}

	batch, dropped := crawler.NewBatch(topic, modifier, records)
	if err := w.store.WriteBatch(ctx, batch); err != nil {
		return 0, 0, &crawler.PersistError{Topic: topic, Modifier: modifier, Err: err}
	}
	metrics.ObserveBatch(topic, len(batch.Items), dropped)
	logger.Info("batch stored",
		zap.String("modifier", modifier),
		zap.Int("kept", len(batch.Items)),
		zap.Int("dropped", dropped),
	)

	w.afterWrite(ctx, runID, batch, dropped, logger)
	return len(batch.Items), dropped, nil
}

// afterWrite mirrors the batch to the archive and announces it. Failures here
// do not affect the working set and are only logged.
func (w *Worker) afterWrite(ctx context.Context, runID string, batch crawler.Batch, dropped int, logger *zap.Logger) {
	archived, err := w.archive.Put(ctx, runID, batch)
	if err != nil {
		logger.Warn("archive batch failed", zap.String("modifier", batch.Modifier), zap.Error(err))
	}
	if w.publisher == nil {
		return
	}
	event := crawler.BatchEvent{
		RunID:      runID,
		Topic:      batch.Topic,
		Modifier:   batch.Modifier,
		Items:      len(batch.Items),
		Dropped:    dropped,
		ArchiveURI: archived.URI,
		Checksum:   archived.Checksum,
		WrittenAt:  w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, batch.Topic, event); err != nil {
		logger.Warn("publish batch event failed", zap.String("modifier", batch.Modifier), zap.Error(err))
	}
}

// fetchPhrase retries through fresh proxies until a fetch succeeds or the
// retry policy gives up.
func (w *Worker) fetchPhrase(ctx context.Context, phrase string, logger *zap.Logger) ([]byte, error) {
	request := crawler.FetchRequest{
		URL: w.cfg.SearchURL,
		Params: url.Values{
			"url":            {w.cfg.SearchAlias},
			"field-keywords": {phrase},
		},
		Headers: http.Header{"User-Agent": {w.cfg.UserAgent}},
	}

	for attempt := 1; ; attempt++ {
		proxy, err := w.pool.Acquire()
		if err != nil {
			return nil, exhausted(attempt-1, err)
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx, request.URL); err != nil {
				return nil, exhausted(attempt-1, err)
			}
		}

		request.Proxy = proxy
		outcome := w.fetcher.Fetch(ctx, request)
		if outcome.OK() {
			w.pool.ReportSuccess(proxy)
			return outcome.Body, nil
		}
		if err := ctx.Err(); err != nil {
			// Canceled mid-fetch: the proxy is not at fault.
			return nil, exhausted(attempt, err)
		}
		w.pool.ReportFailure(proxy)

		cause := outcome.Err
		if cause == nil {
			cause = errors.New(outcome.Kind.String())
		}
		logger.Debug("fetch attempt failed",
			zap.String("phrase", phrase),
			zap.String("proxy", proxy.String()),
			zap.String("outcome", outcome.Kind.String()),
			zap.Int("status", outcome.StatusCode),
			zap.Int("attempt", attempt),
			zap.Error(cause),
		)
		if !w.retry.ShouldRetry(cause, attempt) {
			return nil, exhausted(attempt, cause)
		}
		if err := w.retry.Wait(ctx, attempt-1); err != nil {
			return nil, exhausted(attempt, err)
		}
	}
}

func exhausted(attempts int, cause error) error {
	return fmt.Errorf("%w after %d attempts: %w", crawler.ErrFetchExhausted, attempts, cause)
}
