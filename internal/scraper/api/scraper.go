package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/extractor"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Scraper implements scraper.Scraper on top of the crawl-session API.
type Scraper struct {
	client    *Client
	extractor *extractor.Extractor
	logger    *zap.Logger
}

var _ scraper.Scraper = (*Scraper)(nil)

// New constructs a Scraper around an existing API client.
func New(client *Client, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		client:    client,
		extractor: extractor.New(logger),
		logger:    logger,
	}
}

// StartSession opens a remote crawl session.
func (s *Scraper) StartSession(ctx context.Context, duration time.Duration) (string, error) {
	return s.client.CreateSession(ctx, duration)
}

// EndSession closes a remote crawl session.
func (s *Scraper) EndSession(ctx context.Context, sessionID string) error {
	return s.client.CloseSession(ctx, sessionID)
}

// ScrapeURL submits a crawl job for url, waits for it to finish, and returns
// the processed page. A job the service reports as failed comes back with
// Success false; transport and protocol failures are returned as errors.
func (s *Scraper) ScrapeURL(ctx context.Context, url, sessionID string, params map[string]any) (scraper.ScrapeResult, error) {
	started := time.Now()

	jobID, jobSessionID, err := s.client.SubmitJob(ctx, url, sessionID)
	if err != nil {
		return scraper.ScrapeResult{}, err
	}

	status, err := s.client.PollJob(ctx, jobID)
	if err != nil {
		return scraper.ScrapeResult{}, err
	}
	if status.SessionID != "" {
		jobSessionID = status.SessionID
	}

	if status.Status != "completed" {
		s.logger.Warn("crawl job did not complete",
			zap.String("job_id", jobID),
			zap.String("url", url),
			zap.String("status", status.Status))
		return scraper.ScrapeResult{
			URL:       url,
			JobID:     jobID,
			SessionID: jobSessionID,
			Error:     fmt.Sprintf("job finished with status %s", status.Status),
			Duration:  time.Since(started),
		}, nil
	}

	body, detail, err := s.client.DownloadJob(ctx, jobID)
	if err != nil {
		return scraper.ScrapeResult{}, err
	}

	content, err := s.ProcessContent(body, url)
	if err != nil {
		return scraper.ScrapeResult{
			URL:       url,
			JobID:     jobID,
			SessionID: jobSessionID,
			Body:      body,
			Error:     err.Error(),
			Duration:  time.Since(started),
		}, nil
	}

	headers := make(http.Header, len(detail.ResponseHeaders))
	for _, h := range detail.ResponseHeaders {
		headers.Add(h.Name, h.Value)
	}

	return scraper.ScrapeResult{
		Success:    true,
		URL:        url,
		JobID:      jobID,
		SessionID:  jobSessionID,
		StatusCode: detail.StatusCode,
		Headers:    headers,
		Body:       body,
		Content:    &content,
		Duration:   time.Since(started),
	}, nil
}

// ExtractLinks parses HTML and returns its outbound links resolved against
// baseURL.
func (s *Scraper) ExtractLinks(content, baseURL string) ([]scraper.Link, error) {
	return extractor.ExtractLinksFromHTML(content, baseURL)
}

// ProcessContent turns a raw page body into structured content. Bodies the
// service hands back still gzip-compressed are decompressed first.
func (s *Scraper) ProcessContent(content []byte, url string) (scraper.PageContent, error) {
	if !utf8.Valid(content) {
		s.logger.Warn("body is not valid utf-8, trying gzip", zap.String("url", url))
		decompressed, err := gunzip(content)
		if err != nil {
			return scraper.PageContent{}, fmt.Errorf("process content for %s: %w", url, err)
		}
		if !utf8.Valid(decompressed) {
			return scraper.PageContent{}, fmt.Errorf("process content for %s: body is not utf-8 text", url)
		}
		content = decompressed
	}
	return s.extractor.Extract(string(content), url), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}
