// Package collyfetcher implements crawler.PageFetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/metrics"
)

// DefaultChallengeSelector matches the bot-challenge marker of the search site.
const DefaultChallengeSelector = "p.a-last"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// ChallengeSelector marks a bot-challenge page; a 200 response containing
	// it is reported as soft-blocked.
	ChallengeSelector string
}

// Fetcher implements crawler.PageFetcher. One transport is kept per proxy so
// connections through the same proxy are reused.
type Fetcher struct {
	cfg          Config
	mu           sync.Mutex
	transports   map[string]http.RoundTripper
	newTransport func(proxy *url.URL) http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchState struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ChallengeSelector == "" {
		cfg.ChallengeSelector = DefaultChallengeSelector
	}
	return &Fetcher{
		cfg:          cfg,
		transports:   make(map[string]http.RoundTripper),
		newTransport: newHTTPTransport,
	}
}

// Fetch executes a single GET through request.Proxy and classifies the result.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) crawler.FetchOutcome {
	outcome := f.fetch(ctx, request)
	metrics.ObserveFetch(outcome.Kind.String())
	return outcome
}

func (f *Fetcher) fetch(ctx context.Context, request crawler.FetchRequest) crawler.FetchOutcome {
	target, err := buildURL(request.URL, request.Params)
	if err != nil {
		return failure(0, err)
	}

	state := &fetchState{}
	collector := f.buildCollector(request, state)
	if err := runCollector(ctx, collector, target); err != nil {
		if ctx.Err() != nil {
			// The abandoned Visit may still write state.
			return failure(0, err)
		}
		if state.err != nil {
			err = state.err
		}
		return failure(state.status, err)
	}
	if state.err != nil {
		return failure(state.status, fmt.Errorf("colly response failed: %w", state.err))
	}
	if state.status != http.StatusOK {
		return failure(state.status, fmt.Errorf("unexpected status %d", state.status))
	}

	blocked, err := f.challenged(state.body)
	if err != nil {
		return failure(state.status, err)
	}
	if blocked {
		return crawler.FetchOutcome{
			Kind:       crawler.OutcomeSoftBlocked,
			StatusCode: state.status,
			Err:        errors.New("bot challenge page"),
		}
	}
	return crawler.FetchOutcome{
		Kind:       crawler.OutcomeSuccess,
		StatusCode: state.status,
		Body:       state.body,
	}
}

func (f *Fetcher) buildCollector(request crawler.FetchRequest, state *fetchState) *colly.Collector {
	collector := colly.NewCollector(colly.AllowURLRevisit())
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.WithTransport(f.transportFor(request.Proxy))
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, request, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, request crawler.FetchRequest, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		state.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) challenged(body []byte) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("parse response: %w", err)
	}
	return doc.Find(f.cfg.ChallengeSelector).Length() > 0, nil
}

func (f *Fetcher) transportFor(p crawler.ProxyEndpoint) http.RoundTripper {
	key := p.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if rt, ok := f.transports[key]; ok {
		return rt
	}
	var proxyURL *url.URL
	if p.Host != "" {
		proxyURL = p.URL()
	}
	rt := f.newTransport(proxyURL)
	f.transports[key] = rt
	return rt
}

func runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Headers == nil || r.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func buildURL(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func failure(status int, err error) crawler.FetchOutcome {
	return crawler.FetchOutcome{
		Kind:       crawler.OutcomeTransportFailure,
		StatusCode: status,
		Err:        err,
	}
}

func newHTTPTransport(proxy *url.URL) http.RoundTripper {
	proxyFunc := http.ProxyFromEnvironment
	if proxy != nil {
		proxyFunc = http.ProxyURL(proxy)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
