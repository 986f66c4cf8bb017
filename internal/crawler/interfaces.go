package crawler

import (
	"context"
	"io"
	"time"
)

// ProxySource supplies the initial proxy candidates for a run.
type ProxySource interface {
	List(ctx context.Context) ([]ProxyEndpoint, error)
}

// ProxyPool hands out proxies to workers and tracks failures.
type ProxyPool interface {
	Acquire() (ProxyEndpoint, error)
	ReportFailure(p ProxyEndpoint)
	ReportSuccess(p ProxyEndpoint)
}

// PageFetcher fetches a page through a proxy. Failures are reported in the
// outcome rather than returned.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) FetchOutcome
}

// Extractor turns a fetched document into item records.
type Extractor interface {
	ExtractHTML(body []byte) ([]ItemRecord, error)
}

// Store persists and reads one batch per (topic, modifier).
type Store interface {
	WriteBatch(ctx context.Context, batch Batch) error
	ReadBatch(ctx context.Context, topic, modifier string) ([]StoredItem, error)
	Topics(ctx context.Context) ([]string, error)
	Modifiers(ctx context.Context, topic string) ([]string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes batch notifications to Pub/Sub (or similar). topic is the
// crawl topic the payload concerns, attached for subscriber filtering.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher produces content digests of archived batches.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for topic work.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// RateLimiter paces requests per target host.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps one topic ready to crawl.
type QueueItem struct {
	RunID string
	Spec  TopicSpec
	Done  chan<- TopicResult
}
