package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/queue/memory"
)

// fakeRunner mimics worker.Worker: it drains the queue and reports each topic.
type fakeRunner struct {
	queue   crawler.Queue
	process func(ctx context.Context, spec crawler.TopicSpec) crawler.TopicResult
}

func (r *fakeRunner) Run(ctx context.Context) {
	for {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		item.Done <- r.process(ctx, item.Spec)
	}
}

func runners(n int, q crawler.Queue, process func(context.Context, crawler.TopicSpec) crawler.TopicResult) []Runner {
	out := make([]Runner, n)
	for i := range out {
		out[i] = &fakeRunner{queue: q, process: process}
	}
	return out
}

func job(topics ...string) crawler.CrawlJob {
	var j crawler.CrawlJob
	for _, t := range topics {
		j.Topics = append(j.Topics, crawler.TopicSpec{Topic: t, Modifiers: []string{"x"}})
	}
	return j
}

func TestRunReportsEveryTopicInJobOrder(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	process := func(_ context.Context, spec crawler.TopicSpec) crawler.TopicResult {
		if spec.Topic == "bad" {
			return crawler.TopicResult{Topic: spec.Topic, Err: &crawler.PersistError{Topic: "bad", Modifier: "x", Err: errors.New("disk")}}
		}
		return crawler.TopicResult{Topic: spec.Topic, BatchesStored: 1}
	}
	d := New(q, runners(3, q, process), zap.NewNop())

	report := d.Run(context.Background(), "run-1", job("dress", "bad", "skirt", "jeans", "shorts"))
	require.Len(t, report.Results, 5)
	var topics []string
	for _, r := range report.Results {
		topics = append(topics, r.Topic)
	}
	assert.Equal(t, []string{"dress", "bad", "skirt", "jeans", "shorts"}, topics)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "bad", report.Failed()[0].Topic)

	var persistErr *crawler.PersistError
	assert.ErrorAs(t, report.Err(), &persistErr)
	assert.Equal(t, "run-1", report.RunID)
	assert.False(t, report.Finished.Before(report.Started))
}

func TestRunProcessesTopicsInParallel(t *testing.T) {
	t.Parallel()

	var active, peak int32
	release := make(chan struct{})
	var once sync.Once
	process := func(_ context.Context, spec crawler.TopicSpec) crawler.TopicResult {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n == 2 {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		atomic.AddInt32(&active, -1)
		return crawler.TopicResult{Topic: spec.Topic}
	}

	q := memory.NewQueue(4)
	d := New(q, runners(2, q, process), zap.NewNop())
	report := d.Run(context.Background(), "run-2", job("a", "b", "c", "d"))
	require.NoError(t, report.Err())
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestRunCanceledMarksUnprocessedTopics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	process := func(ctx context.Context, spec crawler.TopicSpec) crawler.TopicResult {
		cancel()
		<-ctx.Done()
		return crawler.TopicResult{Topic: spec.Topic, Err: ctx.Err()}
	}
	q := memory.NewQueue(0)
	d := New(q, runners(1, q, process), zap.NewNop())

	done := make(chan Report, 1)
	go func() { done <- d.Run(ctx, "run-3", job("a", "b", "c")) }()

	select {
	case report := <-done:
		require.Len(t, report.Results, 3)
		for _, r := range report.Results {
			assert.ErrorIs(t, r.Err, context.Canceled, "topic %s", r.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWithoutWorkers(t *testing.T) {
	t.Parallel()

	d := New(memory.NewQueue(1), nil, nil)
	report := d.Run(context.Background(), "run-4", job("a"))
	require.Len(t, report.Failed(), 1)
}
