package collection

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "libharvest/pkg/errors"
	"libharvest/pkg/httpclient"
	"libharvest/pkg/logger"
	"libharvest/pkg/models"
)

// headingDenylist names the structural page sections that are navigation
// chrome, not item metadata.
var headingDenylist = map[string]struct{}{
	"preview":           {},
	"downloads":         {},
	"share":             {},
	"browse":            {},
	"search":            {},
	"author corner":     {},
	"gallery locations": {},
}

// Parser fetches item detail pages and extracts structured metadata.
type Parser struct {
	session *httpclient.Session
	log     logger.Logger
}

// NewParser creates an item page parser.
func NewParser(session *httpclient.Session, log logger.Logger) *Parser {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Parser{session: session, log: log}
}

// ParseItem fetches an item page once and extracts its title, metadata
// fields and download links, returning the parsed item together with the raw
// HTML for snapshotting. Missing fields or links never fail the parse; only
// transport faults and an underivable item id do.
func (p *Parser) ParseItem(ctx context.Context, itemURL string) (*models.Item, []byte, error) {
	id, err := ItemIDFromURL(itemURL)
	if err != nil {
		return nil, nil, err
	}

	resp, err := p.session.Get(ctx, itemURL, httpclient.Options{Cacheable: true})
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil, errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "item page not found")
	}
	if resp.StatusCode != 200 {
		return nil, nil, errs.New(errs.ErrorTypeServerError, resp.StatusCode, "item page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse item page: %v", err)
	}

	item := &models.Item{
		ID:  id,
		URL: itemURL,
	}

	item.Title = normalizeSpace(doc.Find("h1, h2").First().Text())
	item.Fields = extractFields(doc)
	item.Links = extractLinks(doc, itemURL)

	p.log.DebugWithFields("item parsed", map[string]interface{}{
		"item_id": id,
		"fields":  len(item.Fields),
		"title":   item.Title,
	})

	return item, resp.Body, nil
}

// extractFields walks the level-2/3 headings and accumulates each section's
// sibling text up to the next heading.
func extractFields(doc *goquery.Document) models.Fields {
	var fields models.Fields

	doc.Find("h2, h3").Each(func(_ int, heading *goquery.Selection) {
		label := normalizeSpace(heading.Text())
		if label == "" {
			return
		}
		if _, denied := headingDenylist[strings.ToLower(label)]; denied {
			return
		}

		var parts []string
		heading.NextUntil("h2, h3").Each(func(_ int, sib *goquery.Selection) {
			if text := normalizeSpace(sib.Text()); text != "" {
				parts = append(parts, text)
			}
		})

		value := normalizeSpace(strings.Join(parts, " "))
		if value == "" {
			return
		}
		// Repeated labels keep their first position but take the last value.
		fields.Set(label, value)
	})

	return fields
}

// extractLinks scans every hyperlink for the three role labels. The first
// match wins per role.
func extractLinks(doc *goquery.Document, itemURL string) models.Links {
	base, err := url.Parse(itemURL)
	if err != nil {
		return models.Links{}
	}

	var links models.Links
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()

		switch strings.ToLower(normalizeSpace(sel.Text())) {
		case "download":
			if links.Native == "" {
				links.Native = abs
			}
		case "medium":
			if links.Medium == "" {
				links.Medium = abs
			}
		case "thumbnail":
			if links.Thumbnail == "" {
				links.Thumbnail = abs
			}
		}
	})

	return links
}

// normalizeSpace collapses runs of whitespace to single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
