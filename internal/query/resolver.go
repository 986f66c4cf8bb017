// Package query turns free-text searches into ranked suggestions drawn from
// the persisted crawl batches.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/metrics"
)

// Entry is one ranked suggestion for a search.
type Entry struct {
	StorageKey string `json:"storage_key"`
	Header     string `json:"header"`
	TopicKey   string `json:"topic_key"`
	Image      string `json:"image"`
}

// Resolver answers searches against a Store.
type Resolver struct {
	store  crawler.Store
	logger *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(store crawler.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger.Named("query")}
}

// Tokenize lower-cases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Search tokenizes text and resolves it.
func (r *Resolver) Search(ctx context.Context, text string) ([]Entry, error) {
	return r.SearchTokens(ctx, Tokenize(text))
}

// SearchTokens resolves pre-tokenized input. Tokens are compared as given.
// An unknown topic or an empty store yields an empty list.
func (r *Resolver) SearchTokens(ctx context.Context, tokens []string) ([]Entry, error) {
	topics, err := r.store.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	topic, ok := firstTopic(tokens, topics)
	if !ok {
		metrics.ObserveSearch(false)
		return []Entry{}, nil
	}

	modifiers, err := r.store.Modifiers(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("list modifiers for %s: %w", topic, err)
	}

	inQuery := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		inQuery[tok] = struct{}{}
	}

	var front, back []Entry
	for _, modifier := range modifiers {
		entry, err := r.entry(ctx, topic, modifier)
		if err != nil {
			return nil, err
		}
		if _, ok := inQuery[modifier]; ok {
			front = append(front, entry)
		} else {
			back = append(back, entry)
		}
	}

	out := make([]Entry, 0, len(front)+len(back))
	out = append(out, front...)
	for i := len(back) - 1; i >= 0; i-- {
		out = append(out, back[i])
	}

	metrics.ObserveSearch(true)
	r.logger.Debug("search resolved",
		zap.String("topic", topic),
		zap.Int("relevant", len(front)),
		zap.Int("entries", len(out)),
	)
	return out, nil
}

// Page returns the stored rows of one partition, or crawler.ErrNotFound.
func (r *Resolver) Page(ctx context.Context, topic, modifier string) ([]crawler.StoredItem, error) {
	return r.store.ReadBatch(ctx, topic, modifier)
}

// Topics lists the topics that have stored batches.
func (r *Resolver) Topics(ctx context.Context) ([]string, error) {
	return r.store.Topics(ctx)
}

// Modifiers lists the stored modifiers of topic.
func (r *Resolver) Modifiers(ctx context.Context, topic string) ([]string, error) {
	return r.store.Modifiers(ctx, topic)
}

func (r *Resolver) entry(ctx context.Context, topic, modifier string) (Entry, error) {
	header := modifier + " " + topic
	if modifier == topic {
		header = modifier
	}
	entry := Entry{
		StorageKey: topic + "/" + modifier,
		Header:     header,
		TopicKey:   modifier + "-" + topic,
	}

	items, err := r.store.ReadBatch(ctx, topic, modifier)
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		// Removed between listing and reading.
	case err != nil:
		return Entry{}, fmt.Errorf("read %s: %w", entry.StorageKey, err)
	case len(items) > 0:
		entry.Image = items[0].Image
	}
	return entry, nil
}

func firstTopic(tokens, topics []string) (string, bool) {
	known := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		known[t] = struct{}{}
	}
	for _, tok := range tokens {
		if _, ok := known[tok]; ok {
			return tok, true
		}
	}
	return "", false
}
