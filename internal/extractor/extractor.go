// Package extractor parses scraped HTML into structured page content.
package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Extractor pulls title, metadata, visible text, and links out of HTML.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor. A nil logger falls back to a no-op logger.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses an HTML document. Unparseable input yields empty content
// rather than an error; the page URL anchors relative links.
func (e *Extractor) Extract(html, pageURL string) scraper.PageContent {
	content := scraper.PageContent{
		Metadata:    map[string]string{},
		ContentType: scraper.ContentTypeHTML,
	}
	if html == "" {
		e.logger.Warn("empty html content provided", zap.String("url", pageURL))
		return content
	}
	content.HTMLContent = html

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Error("parse html failed", zap.String("url", pageURL), zap.Error(err))
		return content
	}

	content.Title = strings.TrimSpace(doc.Find("title").First().Text())
	content.Metadata = extractMetadata(doc)
	content.TextContent = extractText(doc)
	content.Links = ExtractLinks(doc, pageURL)
	return content
}

// extractMetadata collects meta tags keyed by name (or property).
func extractMetadata(doc *goquery.Document) map[string]string {
	metadata := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			name, _ = sel.Attr("property")
		}
		value, hasContent := sel.Attr("content")
		if name != "" && hasContent && value != "" {
			metadata[name] = value
		}
	})
	return metadata
}

// extractText returns the visible text with scripts and styles removed,
// one trimmed non-blank line per chunk.
func extractText(doc *goquery.Document) string {
	clone := doc.Clone()
	clone.Find("script, style, noscript").Remove()
	raw := clone.Find("body").Text()
	if raw == "" {
		raw = clone.Text()
	}

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ExtractLinks pulls anchor links from a parsed document, resolving relative
// targets against the page URL and classifying same-host links as internal.
// Anchors, javascript:, and mailto: targets are skipped.
func ExtractLinks(doc *goquery.Document, pageURL string) []scraper.Link {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	baseHost := base.Hostname()

	var links []scraper.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		absolute := base.ResolveReference(ref)
		links = append(links, scraper.Link{
			TargetURL:  absolute.String(),
			LinkText:   strings.TrimSpace(sel.Text()),
			IsInternal: absolute.Hostname() == baseHost,
		})
	})
	return links
}

// ExtractLinksFromHTML is a convenience wrapper over ExtractLinks for raw
// HTML input.
func ExtractLinksFromHTML(html, pageURL string) ([]scraper.Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return ExtractLinks(doc, pageURL), nil
}
