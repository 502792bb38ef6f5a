package scraper

import (
	"context"
	"time"
)

// Scraper is the single-URL scrape capability the crawl manager orchestrates.
// Sessions are time-boxed contexts on the capability scoping one or more
// scrape jobs; implementations without a remote session concept may return
// locally generated ids.
type Scraper interface {
	StartSession(ctx context.Context, duration time.Duration) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	ScrapeURL(ctx context.Context, url, sessionID string, params map[string]any) (ScrapeResult, error)
	ExtractLinks(content, baseURL string) ([]Link, error)
	ProcessContent(content []byte, url string) (PageContent, error)
}

// ContentRecord is the persisted form of one successfully scraped page.
type ContentRecord struct {
	ID          int64             `json:"id"`
	TaskID      string            `json:"task_id"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	TextContent string            `json:"text_content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentHash string            `json:"content_hash"`
	BlobURI     string            `json:"blob_uri,omitempty"`
	StatusCode  int               `json:"status_code"`
	ScrapedAt   time.Time         `json:"scraped_at"`
	Links       []Link            `json:"links,omitempty"`
}

// PendingLink is a discovered link not yet crawled.
type PendingLink struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
	TargetURL string `json:"target_url"`
}

// ContentStats summarizes the content store.
type ContentStats struct {
	TotalContent   int64 `json:"total_content"`
	TotalLinks     int64 `json:"total_links"`
	UncrawledLinks int64 `json:"uncrawled_links"`
}

// ContentStore is the persistence collaborator. It is constructed and closed
// by the caller and passed in explicitly; no global handle exists.
type ContentStore interface {
	SaveContent(ctx context.Context, rec ContentRecord) (int64, error)
	GetContentByTask(ctx context.Context, taskID string) (ContentRecord, error)
	SearchContent(ctx context.Context, keyword string, limit, offset int) ([]ContentRecord, error)
	UncrawledLinks(ctx context.Context, limit int) ([]PendingLink, error)
	MarkLinkCrawled(ctx context.Context, linkID int64, crawled bool) error
	Stats(ctx context.Context) (ContentStats, error)
	Close()
}

// BlobStore writes raw page bodies and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task, worker, and session IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
