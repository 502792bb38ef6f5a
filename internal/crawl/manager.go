// Package crawl orchestrates multi-URL crawling on top of a single-URL
// scrape capability: session lifecycle, rotation by URL quota, and
// breadth-first link following up to a depth bound.
package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/clock/system"
	"github.com/bluewave-labs/rockscraper-backend/internal/id/uuid"
	"github.com/bluewave-labs/rockscraper-backend/internal/metrics"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Defaults applied by New when the zero value is passed.
const (
	DefaultSessionDuration   = 30 * time.Minute
	DefaultMaxURLsPerSession = 100
	DefaultMaxDepth          = 3

	// defaultWorkerID is the placeholder worker attributed on results when
	// the scrape is executed through the capability rather than a registered
	// worker.
	defaultWorkerID = "api-scraper"
)

// Config controls Manager behavior. FollowLinks and SameDomainOnly default to
// off; the config package enables both by default.
type Config struct {
	SessionDuration   time.Duration
	MaxURLsPerSession int
	FollowLinks       bool
	MaxDepth          int
	SameDomainOnly    bool
	WorkerID          string
}

// Manager drives high-level crawling. It is not safe for concurrent use: a
// crawl is sequential by design, one URL at a time, and no lock is held
// across the blocking scrape and persistence calls.
type Manager struct {
	scraper      scraper.Scraper
	contentStore scraper.ContentStore
	blobStore    scraper.BlobStore
	idGen        scraper.IDGenerator
	clock        scraper.Clock
	logger       *zap.Logger
	cfg          Config

	activeSessionID string
	urlsInSession   int
	visited         map[string]struct{}
}

// New constructs a Manager. The content store and blob store are optional;
// when nil the corresponding persistence step is skipped. Nil idGen, clock,
// and logger fall back to UUIDs, the system clock, and a no-op logger.
func New(
	sc scraper.Scraper,
	contentStore scraper.ContentStore,
	blobStore scraper.BlobStore,
	idGen scraper.IDGenerator,
	clock scraper.Clock,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = DefaultSessionDuration
	}
	if cfg.MaxURLsPerSession <= 0 {
		cfg.MaxURLsPerSession = DefaultMaxURLsPerSession
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = defaultWorkerID
	}
	if idGen == nil {
		idGen = uuid.NewGenerator()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		scraper:      sc,
		contentStore: contentStore,
		blobStore:    blobStore,
		idGen:        idGen,
		clock:        clock,
		logger:       logger,
		cfg:          cfg,
		visited:      make(map[string]struct{}),
	}
}

// PageResult is the outcome of crawling one URL.
type PageResult struct {
	Success       bool                 `json:"success"`
	URL           string               `json:"url"`
	TaskID        string               `json:"task_id"`
	SessionID     string               `json:"session_id"`
	StatusCode    int                  `json:"status_code"`
	Error         string               `json:"error,omitempty"`
	ContentID     int64                `json:"content_id,omitempty"`
	BlobURI       string               `json:"blob_uri,omitempty"`
	Content       *scraper.PageContent `json:"content,omitempty"`
	LinksToFollow []scraper.Link       `json:"links_to_follow,omitempty"`
	Result        scraper.TaskResult   `json:"result"`
}

// Crawl scrapes a single URL inside the managed session, lazily opening a
// session on first use and rotating it once the per-session URL quota is
// reached. Failures come back as a failed PageResult, never as a panic or an
// aborted traversal.
func (m *Manager) Crawl(ctx context.Context, rawURL string, params map[string]any) PageResult {
	taskID, err := m.idGen.NewID()
	if err != nil {
		return m.failPage("", rawURL, fmt.Errorf("generate task id: %w", err))
	}
	task := scraper.NewTask(taskID, rawURL, 0, 0, nil, 0)
	start := m.clock.Now()

	if m.activeSessionID == "" {
		sid, err := m.scraper.StartSession(ctx, m.cfg.SessionDuration)
		if err != nil {
			task.RecordError(err.Error())
			return m.failPage(taskID, rawURL, fmt.Errorf("start session: %w", err))
		}
		m.activeSessionID = sid
		m.urlsInSession = 0
		m.logger.Info("started crawl session", zap.String("session_id", sid))
	}

	res, err := m.scraper.ScrapeURL(ctx, rawURL, m.activeSessionID, params)
	if err != nil {
		task.RecordError(err.Error())
		metrics.IncPageCrawled(false)
		return m.failPage(taskID, rawURL, fmt.Errorf("scrape url: %w", err))
	}
	m.urlsInSession++
	m.visited[rawURL] = struct{}{}

	page := PageResult{
		URL:        rawURL,
		TaskID:     taskID,
		SessionID:  m.activeSessionID,
		StatusCode: res.StatusCode,
		Content:    res.Content,
	}

	if res.Success {
		execMS := m.clock.Now().Sub(start).Milliseconds()
		blobURI, contentID, persistErr := m.persist(ctx, task, res)
		if persistErr != nil {
			m.logger.Error("persist scraped content failed",
				zap.String("task_id", taskID),
				zap.String("url", rawURL),
				zap.Error(persistErr),
			)
			task.RecordError(persistErr.Error())
			page.Error = persistErr.Error()
			page.Result = scraper.NewFailureResult(taskID, m.cfg.WorkerID, execMS, persistErr.Error())
			metrics.IncPageCrawled(false)
		} else {
			page.Success = true
			page.BlobURI = blobURI
			page.ContentID = contentID
			page.Result = scraper.NewSuccessResult(taskID, m.cfg.WorkerID, execMS, map[string]any{
				"url":         rawURL,
				"status_code": res.StatusCode,
				"job_id":      res.JobID,
				"session_id":  res.SessionID,
				"content_id":  contentID,
				"blob_uri":    blobURI,
			})
			task.UpdateStatus(scraper.TaskStatusCompleted)
			if m.cfg.FollowLinks && res.Content != nil {
				page.LinksToFollow = m.filterLinksToFollow(res.Content.Links, rawURL)
			}
			metrics.IncPageCrawled(true)
		}
	} else {
		errText := res.Error
		if errText == "" {
			errText = "unknown error"
		}
		execMS := m.clock.Now().Sub(start).Milliseconds()
		page.Error = errText
		page.Result = scraper.NewFailureResult(taskID, m.cfg.WorkerID, execMS, errText)
		task.RecordError(errText)
		metrics.IncPageCrawled(false)
	}

	// Rotation happens after the current URL is fully processed.
	if m.urlsInSession >= m.cfg.MaxURLsPerSession {
		m.rotateSession(ctx)
	}

	return page
}

func (m *Manager) failPage(taskID, rawURL string, err error) PageResult {
	m.logger.Error("crawl failed", zap.String("url", rawURL), zap.Error(err))
	return PageResult{
		URL:    rawURL,
		TaskID: taskID,
		Error:  err.Error(),
		Result: scraper.NewFailureResult(taskID, m.cfg.WorkerID, 0, err.Error()),
	}
}

// persist writes the raw body to the blob store and the processed content to
// the content store, returning the blob URI and content row id.
func (m *Manager) persist(ctx context.Context, task *scraper.Task, res scraper.ScrapeResult) (string, int64, error) {
	var blobURI string
	if m.blobStore != nil && len(res.Body) > 0 {
		sum := sha256.Sum256(res.Body)
		hash := hex.EncodeToString(sum[:])
		path := fmt.Sprintf("pages/%s/%s.html", task.ID, hash)
		uri, err := m.blobStore.PutObject(ctx, path, "text/html; charset=utf-8", res.Body)
		if err != nil {
			return "", 0, fmt.Errorf("put blob: %w", err)
		}
		blobURI = uri
	}

	var contentID int64
	if m.contentStore != nil && res.Content != nil {
		sum := sha256.Sum256([]byte(res.Content.HTMLContent))
		rec := scraper.ContentRecord{
			TaskID:      task.ID,
			URL:         res.URL,
			Title:       res.Content.Title,
			TextContent: res.Content.TextContent,
			Metadata:    res.Content.Metadata,
			ContentHash: hex.EncodeToString(sum[:]),
			BlobURI:     blobURI,
			StatusCode:  res.StatusCode,
			ScrapedAt:   m.clock.Now(),
			Links:       res.Content.Links,
		}
		id, err := m.contentStore.SaveContent(ctx, rec)
		if err != nil {
			return "", 0, fmt.Errorf("save content: %w", err)
		}
		contentID = id
	}
	return blobURI, contentID, nil
}

// rotateSession closes the current session and opens a fresh one, resetting
// the per-session URL counter.
func (m *Manager) rotateSession(ctx context.Context) {
	if m.activeSessionID == "" {
		return
	}
	m.logger.Info("rotating crawl session",
		zap.String("session_id", m.activeSessionID),
		zap.Int("urls_in_session", m.urlsInSession),
	)
	if err := m.scraper.EndSession(ctx, m.activeSessionID); err != nil {
		m.logger.Warn("end session failed during rotation", zap.Error(err))
	}
	sid, err := m.scraper.StartSession(ctx, m.cfg.SessionDuration)
	if err != nil {
		m.logger.Error("start session failed during rotation", zap.Error(err))
		m.activeSessionID = ""
		m.urlsInSession = 0
		return
	}
	m.activeSessionID = sid
	m.urlsInSession = 0
	metrics.IncSessionRotation()
	m.logger.Info("started crawl session", zap.String("session_id", sid))
}

// URLSets lists the URLs touched by a depth crawl, in crawl order.
type URLSets struct {
	Crawled    []string `json:"crawled"`
	Successful []string `json:"successful"`
	Failed     []string `json:"failed"`
}

// DepthResult aggregates a breadth-first crawl.
type DepthResult struct {
	Success          bool    `json:"success"`
	Error            string  `json:"error,omitempty"`
	StartURL         string  `json:"start_url"`
	MaxDepth         int     `json:"max_depth"`
	TotalURLsCrawled int     `json:"total_urls_crawled"`
	SuccessfulURLs   int     `json:"successful_urls"`
	FailedURLs       int     `json:"failed_urls"`
	URLs             URLSets `json:"urls"`
}

type queuedURL struct {
	url   string
	depth int
}

// CrawlWithDepth runs a breadth-first traversal from startURL, following
// filtered links up to maxDepth (negative means the configured default). One
// session spans the whole traversal and is closed exactly once on every exit
// path. A failed URL marks that URL failed and the traversal continues; only
// failure to open the session or context cancellation aborts the crawl.
func (m *Manager) CrawlWithDepth(ctx context.Context, startURL string, maxDepth int) DepthResult {
	if maxDepth < 0 {
		maxDepth = m.cfg.MaxDepth
	}

	result := DepthResult{
		StartURL: startURL,
		MaxDepth: maxDepth,
		URLs:     URLSets{Crawled: []string{}, Successful: []string{}, Failed: []string{}},
	}

	sid, err := m.scraper.StartSession(ctx, m.cfg.SessionDuration)
	if err != nil {
		m.endActiveSession(ctx)
		result.Error = fmt.Sprintf("start session: %v", err)
		return result
	}
	m.activeSessionID = sid
	m.urlsInSession = 0
	m.logger.Info("started crawl session for depth crawl",
		zap.String("session_id", sid),
		zap.String("start_url", startURL),
	)

	closed := false
	closeSession := func() {
		if !closed {
			closed = true
			m.endActiveSession(ctx)
		}
	}
	defer closeSession()

	crawled := make(map[string]struct{})
	queue := []queuedURL{{url: startURL, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			closeSession()
			result.Error = err.Error()
			result.TotalURLsCrawled = len(result.URLs.Crawled)
			result.SuccessfulURLs = len(result.URLs.Successful)
			result.FailedURLs = len(result.URLs.Failed)
			return result
		}

		item := queue[0]
		queue = queue[1:]
		if _, seen := crawled[item.url]; seen {
			continue
		}

		m.logger.Info("crawling url",
			zap.String("url", item.url),
			zap.Int("depth", item.depth),
		)
		page := m.Crawl(ctx, item.url, nil)
		crawled[item.url] = struct{}{}
		result.URLs.Crawled = append(result.URLs.Crawled, item.url)

		if page.Success {
			result.URLs.Successful = append(result.URLs.Successful, item.url)
			if item.depth < maxDepth {
				for _, link := range page.LinksToFollow {
					if link.TargetURL == "" {
						continue
					}
					if _, seen := crawled[link.TargetURL]; seen {
						continue
					}
					queue = append(queue, queuedURL{url: link.TargetURL, depth: item.depth + 1})
				}
			}
		} else {
			result.URLs.Failed = append(result.URLs.Failed, item.url)
		}
	}

	closeSession()

	result.Success = true
	result.TotalURLsCrawled = len(result.URLs.Crawled)
	result.SuccessfulURLs = len(result.URLs.Successful)
	result.FailedURLs = len(result.URLs.Failed)
	return result
}

// endActiveSession closes the managed session, if any.
func (m *Manager) endActiveSession(ctx context.Context) {
	if m.activeSessionID == "" {
		return
	}
	if err := m.scraper.EndSession(ctx, m.activeSessionID); err != nil {
		m.logger.Warn("end session failed",
			zap.String("session_id", m.activeSessionID),
			zap.Error(err),
		)
	}
	m.activeSessionID = ""
}

// filterLinksToFollow drops links with no target, links already visited, and,
// in same-domain-only mode, links whose host differs from the source page's
// host (ports and paths are ignored).
func (m *Manager) filterLinksToFollow(links []scraper.Link, baseURL string) []scraper.Link {
	if len(links) == 0 {
		return nil
	}
	baseHost := hostOf(baseURL)
	var follow []scraper.Link
	for _, link := range links {
		if link.TargetURL == "" {
			continue
		}
		if _, seen := m.visited[link.TargetURL]; seen {
			continue
		}
		if m.cfg.SameDomainOnly && hostOf(link.TargetURL) != baseHost {
			continue
		}
		follow = append(follow, link)
	}
	return follow
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Visited reports whether the manager has already crawled a URL during its
// lifetime.
func (m *Manager) Visited(rawURL string) bool {
	_, ok := m.visited[rawURL]
	return ok
}

// ActiveSessionID exposes the current session id (empty when none is open).
func (m *Manager) ActiveSessionID() string {
	return m.activeSessionID
}
