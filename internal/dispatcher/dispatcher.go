// Package dispatcher fans a crawl job out over a bounded queue and a fixed
// set of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

// Runner consumes the queue until its context ends or the queue closes.
type Runner interface {
	Run(ctx context.Context)
}

// Queue is the bounded topic queue shared with the workers.
type Queue interface {
	crawler.Queue
	Close()
}

// Dispatcher owns one run of the workers over a job. The queue is closed at
// the end of Run, so a Dispatcher runs once.
type Dispatcher struct {
	queue   Queue
	workers []Runner
	logger  *zap.Logger
}

// Report summarizes a finished run. Results follow job order.
type Report struct {
	RunID    string
	Results  []crawler.TopicResult
	Started  time.Time
	Finished time.Time
}

// Failed returns the results that carry an error.
func (r Report) Failed() []crawler.TopicResult {
	var out []crawler.TopicResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the per-topic errors, or returns nil when every topic succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("topic %q: %w", res.Topic, res.Err))
	}
	return errors.Join(errs...)
}

// New creates a Dispatcher.
func New(queue Queue, workers []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger,
	}
}

// Run enqueues every topic of job, waits for all of them, then stops the
// workers. A failed topic never aborts the others. If ctx ends first, topics
// that never reported are marked with the context error.
func (d *Dispatcher) Run(ctx context.Context, runID string, job crawler.CrawlJob) Report {
	report := Report{RunID: runID, Started: time.Now().UTC()}
	if len(d.workers) == 0 {
		for _, spec := range job.Topics {
			report.Results = append(report.Results, crawler.TopicResult{Topic: spec.Topic, Err: errors.New("no workers configured")})
		}
		report.Finished = report.Started
		return report
	}
	done := make(chan crawler.TopicResult, len(job.Topics))

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}

	d.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("topics", len(job.Topics)),
		zap.Int("workers", len(d.workers)),
	)
	enqueued := 0
	for _, spec := range job.Topics {
		if err := d.Enqueue(ctx, crawler.QueueItem{RunID: runID, Spec: spec, Done: done}); err != nil {
			d.logger.Warn("enqueue stopped", zap.String("topic", spec.Topic), zap.Error(err))
			break
		}
		enqueued++
	}
	d.queue.Close()

	// Workers drain the closed queue and exit; done never blocks them.
	wg.Wait()
	byTopic := make(map[string]crawler.TopicResult, enqueued)
	for len(done) > 0 {
		res := <-done
		byTopic[res.Topic] = res
	}

	for _, spec := range job.Topics {
		res, ok := byTopic[spec.Topic]
		if !ok {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("topic was not processed")
			}
			res = crawler.TopicResult{Topic: spec.Topic, Err: cause}
		}
		report.Results = append(report.Results, res)
	}
	report.Finished = time.Now().UTC()

	d.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("topics", len(report.Results)),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
