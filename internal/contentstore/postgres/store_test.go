package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

func TestSaveContentInsertsRowAndLinks(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	rec := scraper.ContentRecord{
		TaskID:      "task-1",
		URL:         "https://example.com/page",
		Title:       "Example",
		TextContent: "Example body",
		Metadata:    map[string]string{"description": "demo"},
		ContentHash: "abc123",
		BlobURI:     "gs://bucket/pages/task-1/abc123.html",
		StatusCode:  200,
		ScrapedAt:   now,
		Links: []scraper.Link{
			{TargetURL: "https://example.com/next", LinkText: "Next", IsInternal: true},
		},
	}

	mock.ExpectQuery("INSERT INTO scraped_content").
		WithArgs(
			rec.TaskID,
			rec.URL,
			rec.Title,
			rec.TextContent,
			[]byte(`{"description":"demo"}`),
			rec.ContentHash,
			rec.BlobURI,
			rec.StatusCode,
			now,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO links").
		WithArgs(int64(42), "https://example.com/next", "Next", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.SaveContent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveContentRequiresTaskID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	_, err = store.SaveContent(context.Background(), scraper.ContentRecord{URL: "https://example.com"})
	require.ErrorContains(t, err, "task id")
}

func TestGetContentByTask(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT id, task_id, url, title, text_content, metadata").
		WithArgs("task-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "task_id", "url", "title", "text_content", "metadata",
			"content_hash", "blob_uri", "status_code", "scraped_at",
		}).AddRow(
			int64(42), "task-1", "https://example.com/page", "Example", "Example body",
			[]byte(`{"description":"demo"}`), "abc123", "", 200, now,
		))
	mock.ExpectQuery("SELECT target_url, link_text, is_internal").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"target_url", "link_text", "is_internal"}).
			AddRow("https://example.com/next", "Next", true))

	rec, err := store.GetContentByTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, int64(42), rec.ID)
	require.Equal(t, "Example", rec.Title)
	require.Equal(t, map[string]string{"description": "demo"}, rec.Metadata)
	require.Len(t, rec.Links, 1)
	require.True(t, rec.Links[0].IsInternal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUncrawledLinks(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT l.id, c.url, l.target_url").
		WithArgs(25).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "target_url"}).
			AddRow(int64(7), "https://example.com/", "https://example.com/next"))

	links, err := store.UncrawledLinks(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, int64(7), links[0].ID)
	require.Equal(t, "https://example.com/next", links[0].TargetURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkLinkCrawledMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE links SET crawled").
		WithArgs(true, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.MarkLinkCrawled(context.Background(), 99, true)
	require.ErrorContains(t, err, "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"content", "links", "uncrawled"}).
			AddRow(int64(10), int64(40), int64(12)))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, scraper.ContentStats{TotalContent: 10, TotalLinks: 40, UncrawledLinks: 12}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
