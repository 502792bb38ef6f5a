// Package memory provides an in-memory content store for tests and
// single-process runs without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

type storedLink struct {
	id        int64
	contentID int64
	link      scraper.Link
	crawled   bool
}

// Store keeps scraped content in process memory.
type Store struct {
	mu            sync.Mutex
	nextContentID int64
	nextLinkID    int64
	contents      map[int64]scraper.ContentRecord
	links         map[int64]*storedLink
}

var _ scraper.ContentStore = (*Store)(nil)

// New builds an empty Store.
func New() *Store {
	return &Store{
		contents: make(map[int64]scraper.ContentRecord),
		links:    make(map[int64]*storedLink),
	}
}

// SaveContent stores one scraped page and its links.
func (s *Store) SaveContent(_ context.Context, rec scraper.ContentRecord) (int64, error) {
	if rec.TaskID == "" {
		return 0, fmt.Errorf("record task id is required")
	}
	if rec.URL == "" {
		return 0, fmt.Errorf("record url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContentID++
	rec.ID = s.nextContentID
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}
	links := rec.Links
	rec.Links = append([]scraper.Link(nil), links...)
	s.contents[rec.ID] = rec

	for _, link := range links {
		s.nextLinkID++
		s.links[s.nextLinkID] = &storedLink{
			id:        s.nextLinkID,
			contentID: rec.ID,
			link:      link,
		}
	}
	return rec.ID, nil
}

// GetContentByTask returns the most recent content stored for a task.
func (s *Store) GetContentByTask(_ context.Context, taskID string) (scraper.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found scraper.ContentRecord
		ok    bool
	)
	for _, rec := range s.contents {
		if rec.TaskID == taskID && (!ok || rec.ID > found.ID) {
			found = rec
			ok = true
		}
	}
	if !ok {
		return scraper.ContentRecord{}, fmt.Errorf("content for task %s: not found", taskID)
	}
	return cloneRecord(found), nil
}

// SearchContent returns pages whose title or text contains keyword,
// newest first.
func (s *Store) SearchContent(_ context.Context, keyword string, limit, offset int) ([]scraper.ContentRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(keyword)

	s.mu.Lock()
	var matched []scraper.ContentRecord
	for _, rec := range s.contents {
		if strings.Contains(strings.ToLower(rec.Title), needle) ||
			strings.Contains(strings.ToLower(rec.TextContent), needle) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ScrapedAt.Equal(matched[j].ScrapedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].ScrapedAt.After(matched[j].ScrapedAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// UncrawledLinks returns internal links not yet crawled.
func (s *Store) UncrawledLinks(_ context.Context, limit int) ([]scraper.PendingLink, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var pending []scraper.PendingLink
	for _, id := range ids {
		l := s.links[id]
		if l.crawled || !l.link.IsInternal {
			continue
		}
		pending = append(pending, scraper.PendingLink{
			ID:        l.id,
			SourceURL: s.contents[l.contentID].URL,
			TargetURL: l.link.TargetURL,
		})
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

// MarkLinkCrawled flips a link's crawled flag.
func (s *Store) MarkLinkCrawled(_ context.Context, linkID int64, crawled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[linkID]
	if !ok {
		return fmt.Errorf("mark link crawled: link %d not found", linkID)
	}
	l.crawled = crawled
	return nil
}

// Stats summarizes the stored content and link backlog.
func (s *Store) Stats(_ context.Context) (scraper.ContentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := scraper.ContentStats{
		TotalContent: int64(len(s.contents)),
		TotalLinks:   int64(len(s.links)),
	}
	for _, l := range s.links {
		if !l.crawled && l.link.IsInternal {
			stats.UncrawledLinks++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

func cloneRecord(rec scraper.ContentRecord) scraper.ContentRecord {
	out := rec
	out.Links = append([]scraper.Link(nil), rec.Links...)
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
