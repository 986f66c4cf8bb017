// Package proxy provides the shared proxy pool and the proxy-list sources
// that populate it.
package proxy

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/metrics"
)

// EmptyPoolError is returned by Acquire when no live proxy remains.
type EmptyPoolError struct {
	Evicted int
}

func (e *EmptyPoolError) Error() string {
	return fmt.Sprintf("proxy pool is empty (%d evicted)", e.Evicted)
}

// Is lets errors.Is match crawler.ErrEmptyPool.
func (e *EmptyPoolError) Is(target error) bool {
	return target == crawler.ErrEmptyPool
}

// Pool holds the live proxy set. It is safe for concurrent use.
type Pool struct {
	mu        sync.RWMutex
	live      []crawler.ProxyEndpoint
	index     map[crawler.ProxyEndpoint]int
	failures  map[crawler.ProxyEndpoint]int
	threshold int
	evicted   int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customises a Pool.
type Option func(*Pool)

// WithFailureThreshold evicts a proxy after n consecutive failures.
func WithFailureThreshold(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithSeed makes selection deterministic.
func WithSeed(seed int64) Option {
	return func(p *Pool) {
		p.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // selection is not security sensitive
	}
}

// NewPool builds a pool from endpoints; duplicates collapse.
func NewPool(endpoints []crawler.ProxyEndpoint, opts ...Option) *Pool {
	p := &Pool{
		index:     make(map[crawler.ProxyEndpoint]int, len(endpoints)),
		failures:  make(map[crawler.ProxyEndpoint]int),
		threshold: 1,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // selection is not security sensitive
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, ep := range endpoints {
		if _, dup := p.index[ep]; dup {
			continue
		}
		p.index[ep] = len(p.live)
		p.live = append(p.live, ep)
	}
	return p
}

// Acquire returns a pseudo-random live proxy.
func (p *Pool) Acquire() (crawler.ProxyEndpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.live) == 0 {
		return crawler.ProxyEndpoint{}, &EmptyPoolError{Evicted: p.evicted}
	}
	return p.live[p.intn(len(p.live))], nil
}

// ReportFailure counts a failure against p and evicts it once the threshold
// is reached.
func (p *Pool) ReportFailure(ep crawler.ProxyEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[ep]
	if !ok {
		return
	}
	p.failures[ep]++
	if p.failures[ep] < p.threshold {
		return
	}
	last := len(p.live) - 1
	moved := p.live[last]
	p.live[i] = moved
	p.index[moved] = i
	p.live = p.live[:last]
	delete(p.index, ep)
	delete(p.failures, ep)
	p.evicted++
	metrics.ObserveProxyEviction()
}

// ReportSuccess clears the failure count of ep.
func (p *Pool) ReportSuccess(ep crawler.ProxyEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, ep)
}

// Len returns the number of live proxies.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.live)
}

// Endpoints returns a snapshot of the live set.
func (p *Pool) Endpoints() []crawler.ProxyEndpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.ProxyEndpoint, len(p.live))
	copy(out, p.live)
	return out
}

func (p *Pool) intn(n int) int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Intn(n)
}
