package scraper

import (
	"net/http"
	"time"
)

// ContentType classifies a scraped payload.
type ContentType string

// Content type values recorded on page content.
const (
	ContentTypeHTML    ContentType = "html"
	ContentTypeJSON    ContentType = "json"
	ContentTypeXML     ContentType = "xml"
	ContentTypeText    ContentType = "text"
	ContentTypeImage   ContentType = "image"
	ContentTypeUnknown ContentType = "unknown"
)

// Link is one outbound link discovered on a page. IsInternal means the link
// target shares the source page's host.
type Link struct {
	TargetURL  string `json:"target_url"`
	LinkText   string `json:"link_text"`
	IsInternal bool   `json:"is_internal"`
}

// PageContent is the processed form of a scraped payload.
type PageContent struct {
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Title       string            `json:"title"`
	Metadata    map[string]string `json:"metadata"`
	Links       []Link            `json:"links"`
	ContentType ContentType       `json:"content_type"`
}

// ScrapeResult is the outcome of scraping one URL. A transport-level failure
// surfaces as an error from ScrapeURL; a scrape the capability itself reports
// as unsuccessful comes back with Success false and Error set.
type ScrapeResult struct {
	Success    bool
	URL        string
	SessionID  string
	JobID      string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Content    *PageContent
	Error      string
	Duration   time.Duration

	// LinksToFollow is populated by the crawl manager after filtering the
	// page's links against the visited set and domain policy.
	LinksToFollow []Link
}
