// Package collection discovers item URLs across the paginated index and
// parses item detail pages into structured metadata.
package collection

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"libharvest/pkg/config"
	errs "libharvest/pkg/errors"
	"libharvest/pkg/httpclient"
	"libharvest/pkg/logger"
	"libharvest/pkg/metrics"
	"libharvest/pkg/ratelimit"
)

var (
	// pageCountRe matches the "Page X of N" marker rendered on index pages.
	pageCountRe = regexp.MustCompile(`Page\s+\d+\s+of\s+(\d+)`)

	// itemPathRe matches item detail URLs: a numeric trailing path segment.
	itemPathRe = regexp.MustCompile(`/(\d+)/?$`)
)

// Crawler walks the paginated collection index and returns every item URL.
type Crawler struct {
	session *httpclient.Session
	cfg     *config.CollectionConfig
	pacer   *ratelimit.Pacer
	mtr     *metrics.Metrics
	log     logger.Logger
}

// NewCrawler creates an index crawler. pacer spaces out page fetches; mtr may
// be nil.
func NewCrawler(session *httpclient.Session, cfg *config.CollectionConfig, pacer *ratelimit.Pacer, mtr *metrics.Metrics, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Crawler{session: session, cfg: cfg, pacer: pacer, mtr: mtr, log: log}
}

// DiscoverItemURLs fetches every index page and returns the deduplicated,
// sorted set of item detail URLs. The first page is fetched once and reused
// for both the page count and its own links.
func (c *Crawler) DiscoverItemURLs(ctx context.Context) ([]string, error) {
	firstURL := c.pageURL(1)
	doc, err := c.fetchPage(ctx, firstURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first index page: %w", err)
	}

	pageCount := c.extractPageCount(doc)
	c.log.InfoWithFields("index discovered", map[string]interface{}{
		"pages": pageCount,
		"url":   firstURL,
	})

	seen := make(map[string]struct{})
	c.collectItemLinks(doc, firstURL, seen)

	for page := 2; page <= pageCount; page++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		pageURL := c.pageURL(page)
		doc, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch index page %d: %w", page, err)
		}
		c.collectItemLinks(doc, pageURL, seen)

		c.log.DebugWithFields("index page scanned", map[string]interface{}{
			"page":  page,
			"total": len(seen),
		})
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	c.log.WithField("items", len(urls)).Info("item discovery complete")
	return urls, nil
}

// pageURL returns the index URL for a 1-based page number.
func (c *Crawler) pageURL(page int) string {
	root := c.cfg.RootURL
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	if page <= 1 {
		return root + c.cfg.FirstPage
	}
	return root + fmt.Sprintf(c.cfg.PageFormat, page)
}

// fetchPage fetches and parses one index page.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := c.session.Get(ctx, pageURL, httpclient.Options{Cacheable: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, errs.New(errs.ErrorTypeServerError, resp.StatusCode, "index page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse index page: %v", err)
	}
	c.mtr.IncPageFetched()
	return doc, nil
}

// extractPageCount reads the page-count marker from an index page. A missing
// marker degrades to a single page rather than aborting the run.
func (c *Crawler) extractPageCount(doc *goquery.Document) int {
	m := pageCountRe.FindStringSubmatch(doc.Text())
	if m == nil {
		c.log.Warn("page count marker not found on first index page, assuming a single page")
		return 1
	}

	var count int
	if _, err := fmt.Sscanf(m[1], "%d", &count); err != nil || count < 1 {
		c.log.WithField("marker", m[0]).Warn("unparsable page count marker, assuming a single page")
		return 1
	}
	return count
}

// collectItemLinks scans every hyperlink on a page and records the ones that
// look like item detail URLs, normalized to a trailing slash.
func (c *Crawler) collectItemLinks(doc *goquery.Document, pageURL string, seen map[string]struct{}) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	root := c.cfg.RootURL

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		absStr := abs.String()

		if !strings.HasPrefix(absStr, root) {
			return
		}
		if !itemPathRe.MatchString(abs.Path) {
			return
		}
		if !strings.HasSuffix(absStr, "/") {
			absStr += "/"
		}

		seen[absStr] = struct{}{}
	})
}

// ItemIDFromURL derives the numeric item id from a detail-page URL. This is
// the only parse step that is fatal for an item: without an id there is no
// directory to write to.
func ItemIDFromURL(itemURL string) (string, error) {
	u, err := url.Parse(itemURL)
	if err != nil {
		return "", errs.New(errs.ErrorTypeParsing, 0, "invalid item URL %q: %v", itemURL, err)
	}
	m := itemPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", errs.New(errs.ErrorTypeParsing, 0, "item URL %q has no numeric trailing segment", itemURL)
	}
	return m[1], nil
}
