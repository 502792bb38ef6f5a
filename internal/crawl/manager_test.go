package crawl

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	blobmem "github.com/bluewave-labs/rockscraper-backend/internal/blobstore/memory"
	storemem "github.com/bluewave-labs/rockscraper-backend/internal/contentstore/memory"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper/scrapertest"
)

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("task-%d", g.n), nil
}

func newManager(sc scraper.Scraper, cs scraper.ContentStore, bs scraper.BlobStore, cfg Config) *Manager {
	return New(sc, cs, bs, &seqIDGen{}, nil, cfg, nil)
}

func TestCrawlPersistsContent(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetHTML("https://example.com/",
		`<html><head><title>Home</title></head><body><a href="/a">A</a></body></html>`)
	cs := storemem.New()
	bs := blobmem.New()
	m := newManager(sc, cs, bs, Config{FollowLinks: true, SameDomainOnly: true})

	page := m.Crawl(context.Background(), "https://example.com/", nil)

	require.True(t, page.Success)
	require.Equal(t, "task-1", page.TaskID)
	require.Equal(t, "session-1", page.SessionID)
	require.NotZero(t, page.ContentID)
	require.NotEmpty(t, page.BlobURI)
	require.Equal(t, 1, bs.Len())

	rec, err := cs.GetContentByTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, "Home", rec.Title)
	require.Len(t, rec.Links, 1)

	require.True(t, page.Result.Success)
	require.Equal(t, "task-1", page.Result.TaskID)
	require.Equal(t, "api-scraper", page.Result.WorkerID)

	require.Len(t, page.LinksToFollow, 1)
	require.Equal(t, "https://example.com/a", page.LinksToFollow[0].TargetURL)
	require.True(t, m.Visited("https://example.com/"))
}

func TestCrawlTransportError(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetPage("https://example.com/down", scrapertest.Page{Err: errors.New("connection refused")})
	m := newManager(sc, nil, nil, Config{})

	page := m.Crawl(context.Background(), "https://example.com/down", nil)

	require.False(t, page.Success)
	require.Contains(t, page.Error, "connection refused")
	require.False(t, page.Result.Success)
	// Transport failures do not count against the session quota or visited set.
	require.False(t, m.Visited("https://example.com/down"))
}

func TestCrawlFailedScrape(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetPage("https://example.com/missing", scrapertest.Page{Fail: true, StatusCode: 404})
	m := newManager(sc, nil, nil, Config{})

	page := m.Crawl(context.Background(), "https://example.com/missing", nil)

	require.False(t, page.Success)
	require.Equal(t, 404, page.StatusCode)
	require.False(t, page.Result.Success)
	require.Equal(t, "scripted failure", page.Result.Error)
}

func TestCrawlSessionRotation(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetHTML("https://example.com/a", `<html><head><title>A</title></head></html>`)
	sc.SetHTML("https://example.com/b", `<html><head><title>B</title></head></html>`)
	sc.SetHTML("https://example.com/c", `<html><head><title>C</title></head></html>`)
	m := newManager(sc, nil, nil, Config{MaxURLsPerSession: 2})

	first := m.Crawl(context.Background(), "https://example.com/a", nil)
	require.Equal(t, "session-1", first.SessionID)
	require.Equal(t, "session-1", m.ActiveSessionID())

	second := m.Crawl(context.Background(), "https://example.com/b", nil)
	require.Equal(t, "session-1", second.SessionID)
	// Quota reached after the second URL: the session rotates.
	require.Equal(t, "session-2", m.ActiveSessionID())
	require.Equal(t, []string{"session-1"}, sc.Ended)

	third := m.Crawl(context.Background(), "https://example.com/c", nil)
	require.Equal(t, "session-2", third.SessionID)
}

func TestCrawlWithDepth(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetHTML("https://example.com/",
		`<html><body><a href="/a">A</a><a href="/b">B</a><a href="https://other.example.net/x">X</a></body></html>`)
	sc.SetHTML("https://example.com/a",
		`<html><body><a href="/deep">Deep</a></body></html>`)
	sc.SetPage("https://example.com/b", scrapertest.Page{Fail: true})
	m := newManager(sc, nil, nil, Config{FollowLinks: true, SameDomainOnly: true})

	result := m.CrawlWithDepth(context.Background(), "https://example.com/", 1)

	require.True(t, result.Success)
	require.Equal(t, 3, result.TotalURLsCrawled)
	require.Equal(t, 2, result.SuccessfulURLs)
	require.Equal(t, 1, result.FailedURLs)
	require.Equal(t, []string{"https://example.com/", "https://example.com/a", "https://example.com/b"}, result.URLs.Crawled)
	require.Equal(t, []string{"https://example.com/b"}, result.URLs.Failed)
	// /deep sits at depth 2 and is never visited; the off-domain link is
	// filtered out.
	require.NotContains(t, sc.Scraped, "https://example.com/deep")
	require.NotContains(t, sc.Scraped, "https://other.example.net/x")

	// The traversal session is closed exactly once.
	require.Equal(t, []string{"session-1"}, sc.Ended)
	require.Empty(t, m.ActiveSessionID())
}

func TestCrawlWithDepthStartSessionFails(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.StartErr = errors.New("no capacity")
	m := newManager(sc, nil, nil, Config{})

	result := m.CrawlWithDepth(context.Background(), "https://example.com/", 1)

	require.False(t, result.Success)
	require.Contains(t, result.Error, "no capacity")
	require.Zero(t, result.TotalURLsCrawled)
	require.Empty(t, sc.Ended)
}

func TestCrawlWithDepthContextCanceled(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetHTML("https://example.com/",
		`<html><body><a href="/a">A</a></body></html>`)
	sc.SetHTML("https://example.com/a", `<html></html>`)
	m := newManager(sc, nil, nil, Config{FollowLinks: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := m.CrawlWithDepth(ctx, "https://example.com/", 2)

	require.False(t, result.Success)
	require.Contains(t, result.Error, context.Canceled.Error())
	// The session still closes on the abort path.
	require.Equal(t, []string{"session-1"}, sc.Ended)
}

func TestCrawlWithDepthEndSessionFailureStillSingleClose(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetHTML("https://example.com/", `<html></html>`)
	sc.EndErr = errors.New("already closed")
	m := newManager(sc, nil, nil, Config{})

	result := m.CrawlWithDepth(context.Background(), "https://example.com/", 0)

	require.True(t, result.Success)
	require.Len(t, sc.Ended, 1)
}

func TestCrawlPersistFailureProducesFailureResult(t *testing.T) {
	t.Parallel()

	sc := scrapertest.New()
	sc.SetHTML("https://example.com/", `<html><head><title>Home</title></head></html>`)
	m := newManager(sc, failingStore{}, nil, Config{})

	page := m.Crawl(context.Background(), "https://example.com/", nil)

	require.False(t, page.Success)
	require.Contains(t, page.Error, "disk full")
	require.False(t, page.Result.Success)
}

type failingStore struct{}

func (failingStore) SaveContent(context.Context, scraper.ContentRecord) (int64, error) {
	return 0, errors.New("disk full")
}

func (failingStore) GetContentByTask(context.Context, string) (scraper.ContentRecord, error) {
	return scraper.ContentRecord{}, errors.New("not implemented")
}

func (failingStore) SearchContent(context.Context, string, int, int) ([]scraper.ContentRecord, error) {
	return nil, errors.New("not implemented")
}

func (failingStore) UncrawledLinks(context.Context, int) ([]scraper.PendingLink, error) {
	return nil, errors.New("not implemented")
}

func (failingStore) MarkLinkCrawled(context.Context, int64, bool) error {
	return errors.New("not implemented")
}

func (failingStore) Stats(context.Context) (scraper.ContentStats, error) {
	return scraper.ContentStats{}, errors.New("not implemented")
}

func (failingStore) Close() {}
