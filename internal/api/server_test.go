package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contentmem "github.com/bluewave-labs/rockscraper-backend/internal/contentstore/memory"
	"github.com/bluewave-labs/rockscraper-backend/internal/crawl"
	"github.com/bluewave-labs/rockscraper-backend/internal/process"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper/scrapertest"
)

type testEnv struct {
	server  *httptest.Server
	process *process.Process
	scraper *scrapertest.Scraper
	store   *contentmem.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sc := scrapertest.New()
	store := contentmem.New()
	proc := process.New(process.Config{}, nil, nil, nil)
	manager := crawl.New(sc, store, nil, nil, nil, crawl.Config{
		MaxURLsPerSession: 100,
		FollowLinks:       true,
		SameDomainOnly:    true,
	}, nil)

	srv := NewServer(proc, manager, store, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, process: proc, scraper: sc, store: store}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := env.get(t, path)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.get(t, "/healthz")
	resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "fixed-id")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "fixed-id", resp.Header.Get("X-Request-ID"))
}

func TestCreateAndGetTask(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postJSON(t, "/v1/tasks", map[string]any{
		"url":        "https://example.com/page",
		"priority":   7,
		"timeout_ms": 5000,
		"data":       map[string]any{"kind": "article"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created taskJSON
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "https://example.com/page", created.URL)
	require.Equal(t, 7, created.Priority)
	require.Equal(t, "pending", created.Status)
	require.Equal(t, int64(5000), created.TimeoutMS)

	resp = env.get(t, "/v1/tasks/"+created.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched struct {
		Task   taskJSON    `json:"task"`
		Result *resultJSON `json:"result"`
	}
	decodeBody(t, resp, &fetched)
	require.Equal(t, created.ID, fetched.Task.ID)
	require.Nil(t, fetched.Result)

	resp = env.get(t, "/v1/tasks/pending")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending struct {
		Tasks []taskJSON `json:"tasks"`
	}
	decodeBody(t, resp, &pending)
	require.Len(t, pending.Tasks, 1)
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postJSON(t, "/v1/tasks", map[string]any{"priority": 1})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Post(env.server.URL+"/v1/tasks", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.get(t, "/v1/tasks/missing")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWorkerRegistrationAndHeartbeat(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postJSON(t, "/v1/workers", map[string]any{
		"name":         "worker-a",
		"ip_address":   "10.0.0.5",
		"capabilities": []string{"javascript"},
		"max_load":     3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var worker workerJSON
	decodeBody(t, resp, &worker)
	require.NotEmpty(t, worker.ID)
	require.Equal(t, "worker-a", worker.Name)
	require.Equal(t, "online", worker.Status)

	resp = env.get(t, "/v1/workers/available")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var available struct {
		Workers []workerJSON `json:"workers"`
	}
	decodeBody(t, resp, &available)
	require.Len(t, available.Workers, 1)

	resp = env.postJSON(t, "/v1/workers/"+worker.ID+"/heartbeat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/v1/workers/ghost/heartbeat", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRecordResult(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	task, err := env.process.CreateTask("https://example.com", 5, time.Minute, nil, 0)
	require.NoError(t, err)
	worker, err := env.process.CreateWorker("worker-a", "10.0.0.5", nil, 2)
	require.NoError(t, err)
	env.process.Distributor().Distribute()

	resp := env.postJSON(t, "/v1/results", map[string]any{
		"task_id":           task.ID,
		"worker_id":         worker.ID,
		"success":           true,
		"data":              map[string]any{"status_code": 200},
		"execution_time_ms": 120,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/v1/tasks/"+task.ID)
	var fetched struct {
		Task   taskJSON    `json:"task"`
		Result *resultJSON `json:"result"`
	}
	decodeBody(t, resp, &fetched)
	require.Equal(t, "completed", fetched.Task.Status)
	require.NotNil(t, fetched.Result)
	require.True(t, fetched.Result.Success)
	require.Equal(t, worker.ID, fetched.Result.WorkerID)
}

func TestRecordResultValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postJSON(t, "/v1/results", map[string]any{"success": true})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestProcessMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.process.CreateTask("https://example.com", 1, time.Minute, nil, 0)
	require.NoError(t, err)

	resp := env.get(t, "/v1/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot struct {
		TaskCounts struct {
			Total    int            `json:"total"`
			ByStatus map[string]int `json:"by_status"`
		} `json:"task_counts"`
		DistributionStrategy string `json:"distribution_strategy"`
	}
	decodeBody(t, resp, &snapshot)
	require.Equal(t, 1, snapshot.TaskCounts.Total)
	require.Equal(t, 1, snapshot.TaskCounts.ByStatus["pending"])
	require.NotEmpty(t, snapshot.DistributionStrategy)
}

func TestChangeStrategy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPut, env.server.URL+"/v1/strategy",
		bytes.NewReader([]byte(`{"strategy":"priority_based"}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodPut, env.server.URL+"/v1/strategy",
		bytes.NewReader([]byte(`{"strategy":"bogus"}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStateSaveAndLoad(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.process.CreateTask("https://example.com", 1, time.Minute, nil, 0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	resp := env.postJSON(t, "/v1/state/save", map[string]any{"path": path})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/v1/state/load", map[string]any{"path": path})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/v1/state/load",
		map[string]any{"path": filepath.Join(t.TempDir(), "missing.json")})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestCrawlEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.scraper.SetHTML("https://example.com/",
		`<html><head><title>Home</title></head><body><a href="/about">About</a></body></html>`)

	resp := env.postJSON(t, "/v1/crawl", map[string]any{"url": "https://example.com/"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page crawl.PageResult
	decodeBody(t, resp, &page)
	require.True(t, page.Success)
	require.Equal(t, "Home", page.Content.Title)
	require.NotZero(t, page.ContentID)
	require.Len(t, page.LinksToFollow, 1)

	rec, err := env.store.GetContentByTask(context.Background(), page.TaskID)
	require.NoError(t, err)
	require.Equal(t, "Home", rec.Title)
}

func TestCrawlEndpointFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postJSON(t, "/v1/crawl", map[string]any{"url": "https://example.com/missing"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var page crawl.PageResult
	decodeBody(t, resp, &page)
	require.False(t, page.Success)
}

func TestCrawlWithDepthEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.scraper.SetHTML("https://example.com/",
		`<html><head><title>Home</title></head><body><a href="/about">About</a></body></html>`)
	env.scraper.SetHTML("https://example.com/about",
		`<html><head><title>About</title></head><body></body></html>`)

	resp := env.postJSON(t, "/v1/crawl/deep", map[string]any{
		"start_url": "https://example.com/",
		"max_depth": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result crawl.DepthResult
	decodeBody(t, resp, &result)
	require.True(t, result.Success)
	require.Equal(t, 2, result.TotalURLsCrawled)
}

func TestContentSearchAndStats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.store.SaveContent(context.Background(), scraper.ContentRecord{
		TaskID:      "task-1",
		URL:         "https://example.com/go",
		Title:       "Concurrency in Go",
		TextContent: "channels and goroutines",
	})
	require.NoError(t, err)

	resp := env.get(t, "/v1/content/search?q=concurrency")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var search struct {
		Results []scraper.ContentRecord `json:"results"`
	}
	decodeBody(t, resp, &search)
	require.Len(t, search.Results, 1)
	require.Equal(t, "Concurrency in Go", search.Results[0].Title)

	resp = env.get(t, "/v1/content/search")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/v1/content/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats scraper.ContentStats
	decodeBody(t, resp, &stats)
	require.Equal(t, int64(1), stats.TotalContent)

	resp = env.get(t, "/v1/content/task-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec scraper.ContentRecord
	decodeBody(t, resp, &rec)
	require.Equal(t, "https://example.com/go", rec.URL)

	resp = env.get(t, "/v1/content/missing")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestContentRoutesWithoutStore(t *testing.T) {
	t.Parallel()

	proc := process.New(process.Config{}, nil, nil, nil)
	srv := NewServer(proc, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/v1/content/search?q=x", "/v1/content/stats"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		resp.Body.Close()
	}

	resp, err := http.Post(ts.URL+"/v1/crawl", "application/json",
		bytes.NewReader([]byte(`{"url":"https://example.com"}`)))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestIntQuery(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/content/search?limit=25&offset=-3", nil)
	require.Equal(t, 25, intQuery(req, "limit", 10))
	require.Equal(t, 0, intQuery(req, "offset", 0))
	require.Equal(t, 10, intQuery(req, "missing", 10))
}
