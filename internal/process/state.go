package process

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/distributor"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// stateDocument is the wire form of a full process snapshot. Timestamps are
// ISO-8601 strings.
type stateDocument struct {
	Tasks    []taskState   `json:"tasks"`
	Workers  []workerState `json:"workers"`
	Results  []resultState `json:"results"`
	Settings settingsState `json:"settings"`
}

type taskState struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Priority   int            `json:"priority"`
	Status     string         `json:"status"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
	TimeoutMS  int64          `json:"timeout_ms"`
	Data       map[string]any `json:"data"`
	ErrorCount int            `json:"error_count"`
	MaxRetries int            `json:"max_retries"`
}

type workerState struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	Capabilities  []string `json:"capabilities"`
	CurrentLoad   int      `json:"current_load"`
	MaxLoad       int      `json:"max_load"`
	IPAddress     string   `json:"ip_address"`
	LastHeartbeat string   `json:"last_heartbeat"`
	CurrentTasks  []string `json:"current_tasks"`
}

type resultState struct {
	TaskID          string         `json:"task_id"`
	WorkerID        string         `json:"worker_id"`
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data"`
	Error           string         `json:"error"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	CompletedAt     string         `json:"completed_at"`
}

type settingsState struct {
	DistributionStrategy string `json:"distribution_strategy"`
	HeartbeatTimeoutMS   int64  `json:"heartbeat_timeout_ms"`
	TaskCheckIntervalSec int64  `json:"task_check_interval_sec"`
}

// SaveState serializes the full set of tasks, workers, results, and settings.
func (p *Process) SaveState(w io.Writer) error {
	tasks := p.distributor.AllTasks()
	workers := p.distributor.AllWorkers()

	doc := stateDocument{
		Tasks:   make([]taskState, 0, len(tasks)),
		Workers: make([]workerState, 0, len(workers)),
		Results: []resultState{},
	}
	for _, t := range tasks {
		doc.Tasks = append(doc.Tasks, taskState{
			ID:         t.ID,
			URL:        t.URL,
			Priority:   t.Priority,
			Status:     string(t.Status),
			CreatedAt:  t.CreatedAt.Format(time.RFC3339Nano),
			UpdatedAt:  t.UpdatedAt.Format(time.RFC3339Nano),
			TimeoutMS:  t.Timeout.Milliseconds(),
			Data:       t.Data,
			ErrorCount: t.ErrorCount,
			MaxRetries: t.MaxRetries,
		})
	}
	for _, wk := range workers {
		doc.Workers = append(doc.Workers, workerState{
			ID:            wk.ID,
			Name:          wk.Name,
			Status:        string(wk.Status),
			Capabilities:  wk.Capabilities,
			CurrentLoad:   wk.CurrentLoad,
			MaxLoad:       wk.MaxLoad,
			IPAddress:     wk.IPAddress,
			LastHeartbeat: wk.LastHeartbeat.Format(time.RFC3339Nano),
			CurrentTasks:  wk.CurrentTasks,
		})
	}

	p.mu.Lock()
	for _, res := range p.results {
		doc.Results = append(doc.Results, resultState{
			TaskID:          res.TaskID,
			WorkerID:        res.WorkerID,
			Success:         res.Success,
			Data:            res.Data,
			Error:           res.Error,
			ExecutionTimeMS: res.ExecutionTimeMS,
			CompletedAt:     res.CompletedAt.Format(time.RFC3339Nano),
		})
	}
	doc.Settings = settingsState{
		DistributionStrategy: string(p.distributor.Strategy()),
		HeartbeatTimeoutMS:   p.heartbeatTimeout.Milliseconds(),
		TaskCheckIntervalSec: int64(p.checkInterval / time.Second),
	}
	p.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	p.logger.Info("saved state",
		zap.Int("tasks", len(doc.Tasks)),
		zap.Int("workers", len(doc.Workers)),
		zap.Int("results", len(doc.Results)),
	)
	return nil
}

// LoadState fully replaces in-memory state from a snapshot document. The
// registries are cleared first; settings and strategy are re-derived from the
// document.
func (p *Process) LoadState(r io.Reader) error {
	var doc stateDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	strategy, err := distributor.ParseStrategy(doc.Settings.DistributionStrategy)
	if err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}

	tasks := make([]*scraper.Task, 0, len(doc.Tasks))
	for _, ts := range doc.Tasks {
		t, err := ts.toTask()
		if err != nil {
			return fmt.Errorf("restore task %s: %w", ts.ID, err)
		}
		tasks = append(tasks, t)
	}
	workers := make([]*scraper.Worker, 0, len(doc.Workers))
	for _, ws := range doc.Workers {
		w, err := ws.toWorker()
		if err != nil {
			return fmt.Errorf("restore worker %s: %w", ws.ID, err)
		}
		workers = append(workers, w)
	}
	results := make(map[string]scraper.TaskResult, len(doc.Results))
	for _, rs := range doc.Results {
		res, err := rs.toResult()
		if err != nil {
			return fmt.Errorf("restore result for task %s: %w", rs.TaskID, err)
		}
		results[res.TaskID] = res
	}

	p.distributor.Replace(tasks, workers, strategy)

	p.mu.Lock()
	p.results = results
	p.heartbeatTimeout = time.Duration(doc.Settings.HeartbeatTimeoutMS) * time.Millisecond
	p.checkInterval = time.Duration(doc.Settings.TaskCheckIntervalSec) * time.Second
	p.mu.Unlock()

	p.logger.Info("loaded state",
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", len(workers)),
		zap.Int("results", len(results)),
	)
	return nil
}

// SaveStateFile saves a snapshot to a file path.
func (p *Process) SaveStateFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer f.Close()
	return p.SaveState(f)
}

// LoadStateFile loads a snapshot from a file path.
func (p *Process) LoadStateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()
	return p.LoadState(f)
}

func (ts taskState) toTask() (*scraper.Task, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, ts.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, ts.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	data := ts.Data
	if data == nil {
		data = make(map[string]any)
	}
	return &scraper.Task{
		ID:         ts.ID,
		URL:        ts.URL,
		Priority:   ts.Priority,
		Status:     scraper.TaskStatus(ts.Status),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		Timeout:    time.Duration(ts.TimeoutMS) * time.Millisecond,
		Data:       data,
		ErrorCount: ts.ErrorCount,
		MaxRetries: ts.MaxRetries,
	}, nil
}

func (ws workerState) toWorker() (*scraper.Worker, error) {
	lastHeartbeat, err := time.Parse(time.RFC3339Nano, ws.LastHeartbeat)
	if err != nil {
		return nil, fmt.Errorf("parse last_heartbeat: %w", err)
	}
	currentTasks := ws.CurrentTasks
	if currentTasks == nil {
		currentTasks = []string{}
	}
	return &scraper.Worker{
		ID:            ws.ID,
		Name:          ws.Name,
		Status:        scraper.WorkerStatus(ws.Status),
		Capabilities:  ws.Capabilities,
		CurrentLoad:   ws.CurrentLoad,
		MaxLoad:       ws.MaxLoad,
		IPAddress:     ws.IPAddress,
		LastHeartbeat: lastHeartbeat,
		CurrentTasks:  currentTasks,
	}, nil
}

func (rs resultState) toResult() (scraper.TaskResult, error) {
	completedAt, err := time.Parse(time.RFC3339Nano, rs.CompletedAt)
	if err != nil {
		return scraper.TaskResult{}, fmt.Errorf("parse completed_at: %w", err)
	}
	return scraper.TaskResult{
		TaskID:          rs.TaskID,
		WorkerID:        rs.WorkerID,
		Success:         rs.Success,
		Data:            rs.Data,
		Error:           rs.Error,
		ExecutionTimeMS: rs.ExecutionTimeMS,
		CompletedAt:     completedAt,
	}, nil
}
