// Package collyscraper implements a direct-fetch scraper using gocolly,
// bypassing the remote crawl-session service. Sessions are local bookkeeping
// ids; no remote state exists to close.
package collyscraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/extractor"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Scraper implements scraper.Scraper by fetching pages directly.
type Scraper struct {
	cfg           Config
	baseCollector *colly.Collector
	extractor     *extractor.Extractor
	idGen         scraper.IDGenerator
	logger        *zap.Logger

	mu       sync.Mutex
	sessions map[string]struct{}
}

var _ scraper.Scraper = (*Scraper)(nil)

// New builds a Scraper.
func New(cfg Config, idGen scraper.IDGenerator, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Scraper{
		cfg:           cfg,
		baseCollector: c,
		extractor:     extractor.New(logger),
		idGen:         idGen,
		logger:        logger,
		sessions:      make(map[string]struct{}),
	}
}

// StartSession allocates a local session id. Duration is accepted for
// interface parity but local sessions do not expire on their own.
func (s *Scraper) StartSession(ctx context.Context, duration time.Duration) (string, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	s.mu.Lock()
	s.sessions[id] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("local scrape session started",
		zap.String("session_id", id), zap.Duration("duration", duration))
	return id, nil
}

// EndSession forgets a local session id.
func (s *Scraper) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("end session: unknown session %s", sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

// ScrapeURL fetches url with a cloned collector and processes the body.
// Non-2xx responses come back with Success false rather than as errors.
func (s *Scraper) ScrapeURL(ctx context.Context, url, sessionID string, params map[string]any) (scraper.ScrapeResult, error) {
	start := time.Now()

	var (
		result   scraper.ScrapeResult
		fetchErr error
	)
	collector := s.buildCollector(&result, &fetchErr, start)

	visitErr := s.runCollector(ctx, collector, url)
	result.SessionID = sessionID
	if visitErr != nil || fetchErr != nil {
		// Colly reports HTTP error statuses through OnError with the
		// response still populated; those are unsuccessful scrapes, not
		// transport failures.
		if result.StatusCode >= 400 {
			result.Error = fmt.Sprintf("unexpected status %d", result.StatusCode)
			return result, nil
		}
		if visitErr != nil {
			return scraper.ScrapeResult{}, visitErr
		}
		return scraper.ScrapeResult{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}

	if result.StatusCode >= 200 && result.StatusCode < 300 {
		content, err := s.ProcessContent(result.Body, url)
		if err != nil {
			result.Error = err.Error()
			return result, nil
		}
		result.Success = true
		result.Content = &content
	} else {
		result.Error = fmt.Sprintf("unexpected status %d", result.StatusCode)
	}
	return result, nil
}

func (s *Scraper) buildCollector(result *scraper.ScrapeResult, fetchErr *error, start time.Time) *colly.Collector {
	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !s.cfg.RespectRobots
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		*result = scraper.ScrapeResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.URL = r.Request.URL.String()
			result.StatusCode = r.StatusCode
			result.Duration = time.Since(start)
		}
		*fetchErr = err
	})
	return collector
}

func (s *Scraper) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

// ExtractLinks parses HTML and returns its outbound links resolved against
// baseURL.
func (s *Scraper) ExtractLinks(content, baseURL string) ([]scraper.Link, error) {
	return extractor.ExtractLinksFromHTML(content, baseURL)
}

// ProcessContent turns a raw page body into structured content.
func (s *Scraper) ProcessContent(content []byte, url string) (scraper.PageContent, error) {
	return s.extractor.Extract(string(content), url), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
