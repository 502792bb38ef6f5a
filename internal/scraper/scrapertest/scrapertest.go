// Package scrapertest provides a scripted scraper double for tests.
package scrapertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluewave-labs/rockscraper-backend/internal/extractor"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Page scripts the outcome of scraping one URL.
type Page struct {
	HTML       string
	StatusCode int
	Fail       bool   // report an unsuccessful scrape
	Err        error  // return a transport-level error instead
	Title      string // optional; extracted from HTML when empty
}

// Scraper is a scripted scraper.Scraper. Unknown URLs scrape unsuccessfully.
// All fields are guarded so tests may drive it from multiple goroutines.
type Scraper struct {
	mu sync.Mutex

	pages    map[string]Page
	nextSess int

	StartErr error // returned by StartSession when set
	EndErr   error // returned by EndSession when set

	Started []string // session ids handed out
	Ended   []string // session ids closed
	Scraped []string // urls scraped, in order
}

var _ scraper.Scraper = (*Scraper)(nil)

// New builds an empty scripted scraper.
func New() *Scraper {
	return &Scraper{pages: make(map[string]Page)}
}

// SetPage scripts the result for url.
func (s *Scraper) SetPage(url string, p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = p
}

// SetHTML scripts a successful scrape of url returning html.
func (s *Scraper) SetHTML(url, html string) {
	s.SetPage(url, Page{HTML: html, StatusCode: 200})
}

func (s *Scraper) StartSession(_ context.Context, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return "", s.StartErr
	}
	s.nextSess++
	id := fmt.Sprintf("session-%d", s.nextSess)
	s.Started = append(s.Started, id)
	return id, nil
}

func (s *Scraper) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ended = append(s.Ended, sessionID)
	return s.EndErr
}

func (s *Scraper) ScrapeURL(_ context.Context, url, sessionID string, _ map[string]any) (scraper.ScrapeResult, error) {
	s.mu.Lock()
	page, ok := s.pages[url]
	s.Scraped = append(s.Scraped, url)
	s.mu.Unlock()

	if page.Err != nil {
		return scraper.ScrapeResult{}, page.Err
	}
	if !ok || page.Fail {
		return scraper.ScrapeResult{
			URL:        url,
			SessionID:  sessionID,
			StatusCode: page.StatusCode,
			Error:      "scripted failure",
		}, nil
	}

	content := extractor.New(nil).Extract(page.HTML, url)
	if page.Title != "" {
		content.Title = page.Title
	}
	status := page.StatusCode
	if status == 0 {
		status = 200
	}
	return scraper.ScrapeResult{
		Success:    true,
		URL:        url,
		SessionID:  sessionID,
		StatusCode: status,
		Body:       []byte(page.HTML),
		Content:    &content,
	}, nil
}

func (s *Scraper) ExtractLinks(content, baseURL string) ([]scraper.Link, error) {
	return extractor.ExtractLinksFromHTML(content, baseURL)
}

func (s *Scraper) ProcessContent(content []byte, url string) (scraper.PageContent, error) {
	return extractor.New(nil).Extract(string(content), url), nil
}
