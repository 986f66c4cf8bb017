// Package extract turns search result pages into item records.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

// Selectors locate each part of a result item.
type Selectors struct {
	Container     string
	Item          string
	Price         string
	PriceWhole    string
	PriceFraction string
	PriceCurrency string
	Image         string
	Rating        string
	Title         string
	Link          string
}

// DefaultSelectors match the search site's result list markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:     "ul.s-result-list",
		Item:          "li",
		Price:         "span.sx-price",
		PriceWhole:    "span.sx-price-whole",
		PriceFraction: "sup.sx-price-fractional",
		PriceCurrency: "sup.sx-price-currency",
		Image:         "img.s-access-image.cfMarker",
		Rating:        "span.a-icon-alt",
		Title:         "h2.a-size-base.s-inline.s-access-title.a-text-normal",
		Link:          "a.a-link-normal.a-text-normal",
	}
}

// Default site values.
const (
	DefaultCanonicalHost  = "https://www.amazon.com"
	DefaultInternalPrefix = "/gp"
)

const (
	primeLabel     = "Prime"
	sponsoredLabel = "[Sponsored]"
)

// Options configure an Extractor. Zero values fall back to defaults.
type Options struct {
	Selectors      Selectors
	CanonicalHost  string
	InternalPrefix string
	// NumericRating keeps only the leading token of the rating label,
	// e.g. "4.5" from "4.5 out of 5 stars".
	NumericRating bool
}

// Extractor implements crawler.Extractor with goquery selections.
type Extractor struct {
	opts Options
}

// New builds an Extractor.
func New(opts Options) *Extractor {
	def := DefaultSelectors()
	s := &opts.Selectors
	fill(&s.Container, def.Container)
	fill(&s.Item, def.Item)
	fill(&s.Price, def.Price)
	fill(&s.PriceWhole, def.PriceWhole)
	fill(&s.PriceFraction, def.PriceFraction)
	fill(&s.PriceCurrency, def.PriceCurrency)
	fill(&s.Image, def.Image)
	fill(&s.Rating, def.Rating)
	fill(&s.Title, def.Title)
	fill(&s.Link, def.Link)
	fill(&opts.CanonicalHost, DefaultCanonicalHost)
	fill(&opts.InternalPrefix, DefaultInternalPrefix)
	opts.CanonicalHost = strings.TrimRight(opts.CanonicalHost, "/")
	return &Extractor{opts: opts}
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// ExtractHTML parses body and extracts its items.
func (e *Extractor) ExtractHTML(body []byte) ([]crawler.ItemRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	return e.Extract(doc), nil
}

// Extract returns one record per direct item child of every result container,
// in document order. Missing fields are nil.
func (e *Extractor) Extract(doc *goquery.Document) []crawler.ItemRecord {
	records := []crawler.ItemRecord{}
	doc.Find(e.opts.Selectors.Container).Each(func(_ int, container *goquery.Selection) {
		container.ChildrenFiltered(e.opts.Selectors.Item).Each(func(_ int, item *goquery.Selection) {
			records = append(records, e.record(item))
		})
	})
	return records
}

func (e *Extractor) record(item *goquery.Selection) crawler.ItemRecord {
	return crawler.ItemRecord{
		Price:  e.price(item),
		Image:  e.image(item),
		Rating: e.rating(item),
		Title:  e.title(item),
		Href:   e.href(item),
	}
}

// first returns the first match under s, or nil when there is none.
func first(s *goquery.Selection, selector string) *goquery.Selection {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

func (e *Extractor) price(item *goquery.Selection) *string {
	sel := e.opts.Selectors
	box := first(item, sel.Price)
	if box == nil {
		return nil
	}
	whole := first(box, sel.PriceWhole)
	fraction := first(box, sel.PriceFraction)
	currency := first(box, sel.PriceCurrency)
	if whole == nil || fraction == nil || currency == nil {
		return nil
	}
	v := currency.Text() + whole.Text() + "." + fraction.Text()
	return &v
}

func (e *Extractor) image(item *goquery.Selection) *string {
	img := first(item, e.opts.Selectors.Image)
	if img == nil {
		return nil
	}
	src, ok := img.Attr("src")
	if !ok {
		return nil
	}
	return &src
}

func (e *Extractor) rating(item *goquery.Selection) *string {
	var out *string
	item.Find(e.opts.Selectors.Rating).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if text == primeLabel {
			return true
		}
		if e.opts.NumericRating {
			fields := strings.Fields(text)
			if len(fields) == 0 {
				return true
			}
			text = fields[0]
		}
		out = &text
		return false
	})
	return out
}

func (e *Extractor) title(item *goquery.Selection) *string {
	h := first(item, e.opts.Selectors.Title)
	if h == nil {
		return nil
	}
	text := strings.TrimSpace(strings.ReplaceAll(h.Text(), sponsoredLabel, ""))
	return &text
}

func (e *Extractor) href(item *goquery.Selection) *string {
	a := first(item, e.opts.Selectors.Link)
	if a == nil {
		return nil
	}
	link, ok := a.Attr("href")
	if !ok {
		return nil
	}
	if strings.HasPrefix(link, e.opts.InternalPrefix) {
		link = e.opts.CanonicalHost + link
	}
	return &link
}
