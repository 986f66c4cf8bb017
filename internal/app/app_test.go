package app_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/app"
	"github.com/JakeFAU/keyword-crawler/internal/config"
	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

const resultsPage = `<html><body><ul class="s-result-list">
<li>
  <img class="s-access-image cfMarker" src="https://img.test/%s.jpg">
  <h2 class="a-size-base s-inline s-access-title a-text-normal">[Sponsored] %s dress</h2>
  <a class="a-link-normal a-text-normal" href="/gp/item/1">link</a>
</li>
<li><h2 class="a-size-base s-inline s-access-title a-text-normal">Red shoes</h2></li>
</ul></body></html>`

// searchProxy answers every proxied search with a page naming the searched
// phrase's modifier.
func searchProxy(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		words := strings.Fields(r.URL.Query().Get("field-keywords"))
		modifier := words[len(words)-2]
		body := strings.ReplaceAll(resultsPage, "%s", modifier)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Crawler: config.CrawlerConfig{
			Concurrency:    2,
			QueueDepth:     4,
			UserAgent:      "Mozilla/5.0",
			JobFile:        filepath.Join(dir, "tags.yaml"),
			PhraseTemplate: crawler.DefaultPhraseTemplate,
			SearchURL:      "http://search.test/s/ref=nb_sb_noss_2",
			SearchAlias:    "search-alias",
			Burst:          1,
		},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5, MaxAttempts: 3},
		Proxy:   config.ProxyConfig{FailureThreshold: 1},
		Storage: config.StorageConfig{Backend: config.StorageCSV, DataRoot: filepath.Join(dir, "data")},
		Archive: config.ArchiveConfig{Backend: config.ArchiveLocal, BaseDir: filepath.Join(dir, "archive"), Prefix: "batches"},
	}
}

func TestCrawlEndToEnd(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Proxy.Static = []string{searchProxy(t)}
	require.NoError(t, os.WriteFile(cfg.Crawler.JobFile, []byte("dress: [maxi, summer]\nshoes: []\n\"bad/topic\": [x]\n"), 0o600))

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, res.TopicErrors, 1)
	require.NoError(t, res.Report.Err())
	require.Len(t, res.Report.Results, 2)
	assert.Equal(t, "dress", res.Report.Results[0].Topic)
	assert.Equal(t, 2, res.Report.Results[0].BatchesStored)
	assert.Equal(t, 2, res.Report.Results[0].ItemsStored)
	assert.Equal(t, 2, res.Report.Results[0].ItemsDropped)

	items, err := a.Store().ReadBatch(context.Background(), "dress", "maxi")
	require.NoError(t, err)
	assert.Equal(t, []crawler.StoredItem{{
		Image: "https://img.test/maxi.jpg",
		Title: "maxi dress",
		Href:  "https://www.amazon.com/gp/item/1",
	}}, items)

	entries, err := a.Resolver().Search(context.Background(), "summer dress")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "summer dress", entries[0].Header)

	assert.FileExists(t, filepath.Join(cfg.Archive.BaseDir, "batches", res.Report.RunID, "dress", "maxi.csv"))
}

func TestCrawlMissingJobFileIsConfigError(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Proxy.Static = []string{"127.0.0.1:1"}

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Crawl(context.Background())
	var cfgErr *crawler.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestCrawlNoValidTopicsIsConfigError(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Proxy.Static = []string{"127.0.0.1:1"}
	require.NoError(t, os.WriteFile(cfg.Crawler.JobFile, []byte("\"..\": [x]\n"), 0o600))

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(context.Background())
	var cfgErr *crawler.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, res.TopicErrors, 1)
}

func TestCrawlDeadProxiesFailTopics(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := baseConfig(t)
	cfg.Proxy.Static = []string{dead}
	cfg.HTTP.MaxAttempts = 0
	require.NoError(t, os.WriteFile(cfg.Crawler.JobFile, []byte("dress: [maxi]\n"), 0o600))

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Report.Failed(), 1)
	assert.ErrorIs(t, res.Report.Err(), crawler.ErrEmptyPool)
}

func TestProxySourceStaticValidation(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Proxy.Static = []string{"nope"}

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.LoadProxies(context.Background())
	assert.Error(t, err)
}
