// Package memory records published batch events in-process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a sequential pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events returns the recorded batch events, skipping other payloads.
func (p *Publisher) Events() []crawler.BatchEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []crawler.BatchEvent
	for _, m := range p.messages {
		switch ev := m.Payload.(type) {
		case crawler.BatchEvent:
			out = append(out, ev)
		case *crawler.BatchEvent:
			out = append(out, *ev)
		}
	}
	return out
}
