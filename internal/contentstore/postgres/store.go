// Package postgres provides the Postgres-backed content store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists scraped pages and their discovered links.
type Store struct {
	pool pgxPool
}

var _ scraper.ContentStore = (*Store)(nil)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the content tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS scraped_content (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	text_content TEXT,
	metadata JSONB NOT NULL DEFAULT '{}',
	content_hash TEXT,
	blob_uri TEXT,
	status_code INT,
	scraped_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scraped_content_task_id ON scraped_content (task_id);
CREATE TABLE IF NOT EXISTS links (
	id BIGSERIAL PRIMARY KEY,
	source_content_id BIGINT NOT NULL REFERENCES scraped_content (id) ON DELETE CASCADE,
	target_url TEXT NOT NULL,
	link_text TEXT,
	is_internal BOOLEAN NOT NULL DEFAULT FALSE,
	crawled BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_links_crawled ON links (crawled) WHERE crawled = FALSE;
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveContent inserts one scraped page and its links, returning the new
// content row id.
func (s *Store) SaveContent(ctx context.Context, rec scraper.ContentRecord) (int64, error) {
	if rec.TaskID == "" {
		return 0, fmt.Errorf("record task id is required")
	}
	if rec.URL == "" {
		return 0, fmt.Errorf("record url is required")
	}
	metadataJSON, err := json.Marshal(normalizeMetadata(rec.Metadata))
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	scrapedAt := rec.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	const insertContent = `
INSERT INTO scraped_content (
	task_id, url, title, text_content, metadata,
	content_hash, blob_uri, status_code, scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`

	var contentID int64
	err = s.pool.QueryRow(ctx, insertContent,
		rec.TaskID, rec.URL, rec.Title, rec.TextContent, metadataJSON,
		rec.ContentHash, rec.BlobURI, rec.StatusCode, scrapedAt,
	).Scan(&contentID)
	if err != nil {
		return 0, fmt.Errorf("insert content: %w", err)
	}

	const insertLink = `
INSERT INTO links (source_content_id, target_url, link_text, is_internal)
VALUES ($1,$2,$3,$4)`

	for _, link := range rec.Links {
		if _, err := s.pool.Exec(ctx, insertLink,
			contentID, link.TargetURL, link.LinkText, link.IsInternal); err != nil {
			return 0, fmt.Errorf("insert link %s: %w", link.TargetURL, err)
		}
	}
	return contentID, nil
}

const selectContent = `
SELECT id, task_id, url, title, text_content, metadata,
	content_hash, blob_uri, status_code, scraped_at
FROM scraped_content`

// GetContentByTask returns the most recent content row stored for a task.
func (s *Store) GetContentByTask(ctx context.Context, taskID string) (scraper.ContentRecord, error) {
	row := s.pool.QueryRow(ctx, selectContent+`
WHERE task_id = $1
ORDER BY id DESC
LIMIT 1`, taskID)

	rec, err := scanContent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.ContentRecord{}, fmt.Errorf("content for task %s: not found", taskID)
		}
		return scraper.ContentRecord{}, fmt.Errorf("get content by task: %w", err)
	}

	links, err := s.contentLinks(ctx, rec.ID)
	if err != nil {
		return scraper.ContentRecord{}, err
	}
	rec.Links = links
	return rec, nil
}

// SearchContent returns pages whose title or text matches keyword,
// newest first.
func (s *Store) SearchContent(ctx context.Context, keyword string, limit, offset int) ([]scraper.ContentRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, selectContent+`
WHERE title ILIKE $1 OR text_content ILIKE $1
ORDER BY scraped_at DESC
LIMIT $2 OFFSET $3`, "%"+keyword+"%", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	defer rows.Close()

	var records []scraper.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("search content: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	return records, nil
}

// UncrawledLinks returns internal links that have not been crawled yet.
func (s *Store) UncrawledLinks(ctx context.Context, limit int) ([]scraper.PendingLink, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT l.id, c.url, l.target_url
FROM links l
JOIN scraped_content c ON c.id = l.source_content_id
WHERE l.crawled = FALSE AND l.is_internal = TRUE
ORDER BY l.id
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("uncrawled links: %w", err)
	}
	defer rows.Close()

	var links []scraper.PendingLink
	for rows.Next() {
		var link scraper.PendingLink
		if err := rows.Scan(&link.ID, &link.SourceURL, &link.TargetURL); err != nil {
			return nil, fmt.Errorf("uncrawled links: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("uncrawled links: %w", err)
	}
	return links, nil
}

// MarkLinkCrawled flips a link's crawled flag.
func (s *Store) MarkLinkCrawled(ctx context.Context, linkID int64, crawled bool) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE links SET crawled = $1 WHERE id = $2`, crawled, linkID)
	if err != nil {
		return fmt.Errorf("mark link crawled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark link crawled: link %d not found", linkID)
	}
	return nil
}

// Stats summarizes the stored content and link backlog.
func (s *Store) Stats(ctx context.Context) (scraper.ContentStats, error) {
	var stats scraper.ContentStats
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM scraped_content),
	(SELECT COUNT(*) FROM links),
	(SELECT COUNT(*) FROM links WHERE crawled = FALSE AND is_internal = TRUE)`,
	).Scan(&stats.TotalContent, &stats.TotalLinks, &stats.UncrawledLinks)
	if err != nil {
		return scraper.ContentStats{}, fmt.Errorf("content stats: %w", err)
	}
	return stats, nil
}

func (s *Store) contentLinks(ctx context.Context, contentID int64) ([]scraper.Link, error) {
	rows, err := s.pool.Query(ctx, `
SELECT target_url, link_text, is_internal
FROM links
WHERE source_content_id = $1
ORDER BY id`, contentID)
	if err != nil {
		return nil, fmt.Errorf("content links: %w", err)
	}
	defer rows.Close()

	var links []scraper.Link
	for rows.Next() {
		var link scraper.Link
		if err := rows.Scan(&link.TargetURL, &link.LinkText, &link.IsInternal); err != nil {
			return nil, fmt.Errorf("content links: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content links: %w", err)
	}
	return links, nil
}

func scanContent(row pgx.Row) (scraper.ContentRecord, error) {
	var (
		rec          scraper.ContentRecord
		metadataJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.TaskID, &rec.URL, &rec.Title, &rec.TextContent,
		&metadataJSON, &rec.ContentHash, &rec.BlobURI, &rec.StatusCode,
		&rec.ScrapedAt,
	)
	if err != nil {
		return scraper.ContentRecord{}, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return scraper.ContentRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}

func normalizeMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
