package crawler

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// ProxyEndpoint identifies one forward proxy.
type ProxyEndpoint struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// String returns the host:port form.
func (p ProxyEndpoint) String() string {
	return net.JoinHostPort(p.Host, p.Port)
}

// URL returns the proxy as an http:// URL usable by http.ProxyURL.
func (p ProxyEndpoint) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: p.String()}
}

// ItemRecord is one search result extracted from a page. A nil field means
// the element was absent or incomplete on the page.
type ItemRecord struct {
	Price  *string
	Image  *string
	Rating *string
	Title  *string
	Href   *string
}

// Stored flattens the record into its persisted form.
func (r ItemRecord) Stored() StoredItem {
	return StoredItem{
		Price:  deref(r.Price),
		Image:  deref(r.Image),
		Rating: deref(r.Rating),
		Title:  deref(r.Title),
		Href:   deref(r.Href),
	}
}

// StoredItem is an item as read back from a Store. Missing fields are empty.
type StoredItem struct {
	Price  string `json:"price"`
	Image  string `json:"image"`
	Rating string `json:"rating"`
	Title  string `json:"title"`
	Href   string `json:"href"`
}

// Columns is the fixed column order of a persisted batch.
var Columns = []string{"price", "image", "rating", "title", "href"}

// Values returns the item's fields in Columns order.
func (s StoredItem) Values() []string {
	return []string{s.Price, s.Image, s.Rating, s.Title, s.Href}
}

// Batch is the filtered item list for one (topic, modifier) pair.
type Batch struct {
	Topic    string
	Modifier string
	Items    []ItemRecord
}

// TopicSpec is one topic of a crawl job and its modifiers, in file order.
type TopicSpec struct {
	Topic     string
	Modifiers []string
}

// CrawlJob is the unit of work submitted to the scheduler.
type CrawlJob struct {
	Topics []TopicSpec
}

// FetchRequest captures everything needed to fetch one search page.
type FetchRequest struct {
	URL     string
	Params  url.Values
	Headers http.Header
	Proxy   ProxyEndpoint
}

// OutcomeKind classifies a fetch attempt.
type OutcomeKind int

// Fetch outcome kinds.
const (
	OutcomeTransportFailure OutcomeKind = iota
	OutcomeSoftBlocked
	OutcomeSuccess
)

// String returns the metric/log label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftBlocked:
		return "soft_blocked"
	default:
		return "transport_failure"
	}
}

// FetchOutcome is the value a PageFetcher reports instead of an error.
type FetchOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Err        error
}

// OK reports whether the outcome carries a usable document.
func (o FetchOutcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// BatchEvent announces a persisted batch.
type BatchEvent struct {
	RunID      string    `json:"run_id"`
	Topic      string    `json:"topic"`
	Modifier   string    `json:"modifier"`
	Items      int       `json:"items"`
	Dropped    int       `json:"dropped"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
	Checksum   string    `json:"sha256,omitempty"`
	WrittenAt  time.Time `json:"written_at"`
}

// TopicResult summarizes one topic's crawl.
type TopicResult struct {
	Topic         string
	BatchesStored int
	ItemsStored   int
	ItemsDropped  int
	Err           error
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
