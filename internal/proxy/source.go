package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

// DefaultListURL is the public proxy-list page scraped when none is configured.
const DefaultListURL = "https://www.sslproxies.org/"

// ListConfig controls the proxy-list scraper.
type ListConfig struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// RowSelector selects one table row per proxy; the first two cells are
	// host and port.
	RowSelector string
}

// ListSource scrapes host:port pairs from an HTML proxy table.
type ListSource struct {
	cfg    ListConfig
	logger *zap.Logger
}

// NewListSource builds a ListSource with defaults filled in.
func NewListSource(cfg ListConfig, logger *zap.Logger) *ListSource {
	if cfg.URL == "" {
		cfg.URL = DefaultListURL
	}
	if cfg.RowSelector == "" {
		cfg.RowSelector = "#proxylisttable tbody tr"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListSource{cfg: cfg, logger: logger}
}

// List fetches the proxy page and returns its rows in page order.
func (s *ListSource) List(ctx context.Context) ([]crawler.ProxyEndpoint, error) {
	c := colly.NewCollector(colly.AllowURLRevisit())
	if s.cfg.UserAgent != "" {
		c.UserAgent = s.cfg.UserAgent
	}
	c.SetRequestTimeout(s.cfg.Timeout)

	var (
		endpoints []crawler.ProxyEndpoint
		fetchErr  error
	)
	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = fmt.Errorf("parse proxy list: %w", err)
			return
		}
		endpoints = ParseTable(doc, s.cfg.RowSelector)
	})
	c.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch proxy list (status %d): %w", status, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(s.cfg.URL)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy list fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit proxy list: %w", err)
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	s.logger.Info("proxy list loaded", zap.String("url", s.cfg.URL), zap.Int("count", len(endpoints)))
	return endpoints, nil
}

// ParseTable reads host and port from the first two cells of each row.
// Rows with a blank host or a non-numeric port are skipped.
func ParseTable(doc *goquery.Document, rowSelector string) []crawler.ProxyEndpoint {
	var out []crawler.ProxyEndpoint
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		host := strings.TrimSpace(cells.Eq(0).Text())
		port := strings.TrimSpace(cells.Eq(1).Text())
		if host == "" {
			return
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return
		}
		out = append(out, crawler.ProxyEndpoint{Host: host, Port: port})
	})
	return out
}

// StaticSource returns a fixed proxy list.
type StaticSource []crawler.ProxyEndpoint

// List returns a copy of the configured endpoints.
func (s StaticSource) List(context.Context) ([]crawler.ProxyEndpoint, error) {
	out := make([]crawler.ProxyEndpoint, len(s))
	copy(out, s)
	return out, nil
}

// ParseStatic converts "host:port" strings into endpoints.
func ParseStatic(entries []string) (StaticSource, error) {
	out := make(StaticSource, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		host, port, ok := strings.Cut(raw, ":")
		if !ok || host == "" {
			return nil, fmt.Errorf("invalid proxy %q: want host:port", raw)
		}
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid proxy port in %q: %w", raw, err)
		}
		out = append(out, crawler.ProxyEndpoint{Host: host, Port: port})
	}
	return out, nil
}
