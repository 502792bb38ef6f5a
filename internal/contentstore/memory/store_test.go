package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

func record(taskID, url, title string, links ...scraper.Link) scraper.ContentRecord {
	return scraper.ContentRecord{
		TaskID:      taskID,
		URL:         url,
		Title:       title,
		TextContent: title + " body",
		ScrapedAt:   time.Now().UTC(),
		Links:       links,
	}
}

func TestSaveAndGetByTask(t *testing.T) {
	t.Parallel()

	s := New()
	id, err := s.SaveContent(t.Context(), record("task-1", "https://example.com/a", "First"))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	// A second save for the same task wins.
	_, err = s.SaveContent(t.Context(), record("task-1", "https://example.com/a", "Second"))
	require.NoError(t, err)

	rec, err := s.GetContentByTask(t.Context(), "task-1")
	require.NoError(t, err)
	require.Equal(t, "Second", rec.Title)

	_, err = s.GetContentByTask(t.Context(), "missing")
	require.ErrorContains(t, err, "not found")
}

func TestSearchContent(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.SaveContent(t.Context(), record("t1", "https://example.com/a", "Widget news"))
	require.NoError(t, err)
	_, err = s.SaveContent(t.Context(), record("t2", "https://example.com/b", "Gadget news"))
	require.NoError(t, err)

	found, err := s.SearchContent(t.Context(), "widget", 10, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Widget news", found[0].Title)

	found, err = s.SearchContent(t.Context(), "news", 1, 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestUncrawledLinks(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.SaveContent(t.Context(), record("t1", "https://example.com/", "Home",
		scraper.Link{TargetURL: "https://example.com/a", IsInternal: true},
		scraper.Link{TargetURL: "https://other.example.net/b", IsInternal: false},
		scraper.Link{TargetURL: "https://example.com/c", IsInternal: true},
	))
	require.NoError(t, err)

	pending, err := s.UncrawledLinks(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "https://example.com/a", pending[0].TargetURL)
	require.Equal(t, "https://example.com/", pending[0].SourceURL)

	require.NoError(t, s.MarkLinkCrawled(t.Context(), pending[0].ID, true))

	pending, err = s.UncrawledLinks(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "https://example.com/c", pending[0].TargetURL)

	stats, err := s.Stats(t.Context())
	require.NoError(t, err)
	require.Equal(t, scraper.ContentStats{TotalContent: 1, TotalLinks: 3, UncrawledLinks: 1}, stats)

	require.ErrorContains(t, s.MarkLinkCrawled(t.Context(), 999, true), "not found")
}
