package fhir

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

// DefaultMaxPages bounds pagination when no limit is configured
const DefaultMaxPages = 1000

var (
	entryPath = jsonpath.MustParsePath("entry.X")
	linkPath  = jsonpath.MustParsePath("link.X")
)

// BundleGetter fetches one search result page
type BundleGetter interface {
	GetBundle(ctx context.Context, url string) (jsonpath.Node, error)
}

// Collector follows next links across a search result set
type Collector struct {
	getter BundleGetter
	// MaxPages is the most pages fetched for one search, 0 for no cap
	MaxPages int
}

// NewCollector creates a collector reading pages through getter
func NewCollector(getter BundleGetter, maxPages int) *Collector {
	return &Collector{getter: getter, MaxPages: maxPages}
}

// CollectAll returns the entries of every page, page by page and in page
// order. A next link pointing at an already fetched page ends the walk.
// On error the entries gathered so far are returned with it.
func (c *Collector) CollectAll(ctx context.Context, initialURL string) ([]jsonpath.Node, error) {
	var entries []jsonpath.Node
	seen := make(map[string]struct{})
	url := initialURL
	pages := 0

	for url != "" {
		if _, ok := seen[url]; ok {
			log.Warn().
				Str("url", url).
				Int("pages", pages).
				Msg("Next link repeats an earlier page, stopping pagination")
			break
		}
		if c.MaxPages > 0 && pages >= c.MaxPages {
			return entries, fmt.Errorf("stopped after %d pages before %s: %w", pages, url, fhirerr.ErrPageLimit)
		}
		seen[url] = struct{}{}

		page, err := c.getter.GetBundle(ctx, url)
		if err != nil {
			return entries, err
		}
		pages++
		if pages > 1 {
			metrics.RecordPage()
		}

		entries = append(entries, entryPath.Resolve(page).Values()...)
		url = nextLink(page)
	}

	return entries, nil
}

func nextLink(page jsonpath.Node) string {
	for _, link := range linkPath.Resolve(page).Values() {
		if relation, _ := jsonpath.LookupString(link, "relation"); relation != "next" {
			continue
		}
		if next, ok := jsonpath.LookupString(link, "url"); ok {
			return next
		}
	}
	return ""
}
