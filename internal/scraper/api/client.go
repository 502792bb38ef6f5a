// Package api implements a scraper backed by a remote crawl-session service.
// Jobs are submitted over HTTP, polled to completion, and the rendered page
// body downloaded once the job finishes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 2 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// jobHeader is one response header as reported by the crawl service.
type jobHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// JobStatus is the polled state of a submitted crawl job. The status field
// reaches one of completed, failed, or timeout when the job is terminal.
type JobStatus struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// JobDetail describes a finished job's HTTP response.
type JobDetail struct {
	StatusCode      int         `json:"status_code"`
	ResponseHeaders []jobHeader `json:"response_headers"`
}

// Header returns the named response header, matched case-insensitively, or
// the empty string.
func (d JobDetail) Header(name string) string {
	for _, h := range d.ResponseHeaders {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Client talks to the crawl-session HTTP API.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout forwarded to the crawl service.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithPollInterval sets the delay between job status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient constructs a Client for the service at baseURL.
func NewClient(baseURL, apiKey string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("crawl api client initialized", zap.String("base_url", c.baseURL))
	return c
}

// CreateSession opens a crawl session for the given duration and returns its
// id.
func (c *Client) CreateSession(ctx context.Context, duration time.Duration) (string, error) {
	c.logger.Info("creating crawl session", zap.Duration("duration", duration))

	req := map[string]any{"duration_seconds": int(duration.Seconds())}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/crawl/v1/session/new", req, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("create session: no session id in response")
	}
	c.logger.Info("crawl session created", zap.String("session_id", resp.SessionID))
	return resp.SessionID, nil
}

// CloseSession closes an open crawl session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("close session: empty session id")
	}
	c.logger.Info("closing crawl session", zap.String("session_id", sessionID))
	if err := c.postJSON(ctx, "/crawl/v1/session/"+sessionID+"/close", nil, nil); err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	return nil
}

// SubmitJob submits a crawl job for url, optionally pinned to a session.
// It returns the job id and the session id the job runs under.
func (c *Client) SubmitJob(ctx context.Context, url, sessionID string) (jobID, jobSessionID string, err error) {
	c.logger.Info("submitting crawl job",
		zap.String("url", url), zap.String("session_id", sessionID))

	req := map[string]any{
		"url":         url,
		"method":      http.MethodGet,
		"timeout_sec": int(c.timeout.Seconds()),
		"headers":     browserHeaders(),
	}
	if sessionID != "" {
		req["session_id"] = sessionID
	}

	var resp struct {
		JobID     string `json:"job_id"`
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/crawl/v1/new", req, &resp); err != nil {
		return "", "", fmt.Errorf("submit job for %s: %w", url, err)
	}
	if resp.JobID == "" {
		return "", "", fmt.Errorf("submit job for %s: no job id in response", url)
	}
	if sessionID != "" && resp.SessionID == "" {
		c.logger.Warn("session id not echoed by crawl service",
			zap.String("job_id", resp.JobID), zap.String("session_id", sessionID))
		resp.SessionID = sessionID
	}
	return resp.JobID, resp.SessionID, nil
}

// PollJob polls the job until it reaches a terminal status or ctx is done.
func (c *Client) PollJob(ctx context.Context, jobID string) (JobStatus, error) {
	for {
		var status JobStatus
		if err := c.getJSON(ctx, "/crawl/v1/status/"+jobID, &status); err != nil {
			return JobStatus{}, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		c.logger.Debug("job status",
			zap.String("job_id", jobID), zap.String("status", status.Status))

		switch status.Status {
		case "completed", "failed", "timeout":
			return status, nil
		}

		select {
		case <-ctx.Done():
			return JobStatus{}, fmt.Errorf("poll job %s: %w", jobID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// DownloadJob fetches a finished job's body and response detail.
func (c *Client) DownloadJob(ctx context.Context, jobID string) ([]byte, JobDetail, error) {
	body, err := c.getBytes(ctx, "/crawl/v1/jobs/"+jobID+"/download")
	if err != nil {
		return nil, JobDetail{}, fmt.Errorf("download job %s: %w", jobID, err)
	}

	var detail JobDetail
	if err := c.getJSON(ctx, "/crawl/v1/jobs/"+jobID+"/detail", &detail); err != nil {
		return nil, JobDetail{}, fmt.Errorf("job %s detail: %w", jobID, err)
	}
	return body, detail, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := c.do(ctx, http.MethodGet, path, nil, &body)
	return body, err
}

// do issues one request. out may be nil (response discarded), *[]byte (raw
// body), or a JSON-decodable target.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	switch target := out.(type) {
	case nil:
		return nil
	case *[]byte:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		*target = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// browserHeaders mirrors the request fingerprint of a desktop browser so the
// crawl service renders pages the way an interactive visit would.
func browserHeaders() map[string][]string {
	return map[string][]string{
		"User-Agent":                {defaultUserAgent},
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
		"Accept-Language":           {"en-US,en;q=0.9"},
		"Accept-Encoding":           {"gzip, deflate, br"},
		"Cache-Control":             {"no-cache"},
		"Pragma":                    {"no-cache"},
		"Sec-Ch-Ua":                 {`"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
		"Sec-Ch-Ua-Mobile":          {"?0"},
		"Sec-Ch-Ua-Platform":        {`"Windows"`},
		"Sec-Fetch-Dest":            {"document"},
		"Sec-Fetch-Mode":            {"navigate"},
		"Sec-Fetch-Site":            {"none"},
		"Sec-Fetch-User":            {"?1"},
		"Upgrade-Insecure-Requests": {"1"},
	}
}
