package api

import (
	"time"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

type taskJSON struct {
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

func taskToJSON(t *scraper.Task) taskJSON {
	return taskJSON{
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
	}
}

type workerJSON struct {
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

func workerToJSON(w *scraper.Worker) workerJSON {
	return workerJSON{
		ID:            w.ID,
		Name:          w.Name,
		Status:        string(w.Status),
		Capabilities:  w.Capabilities,
		CurrentLoad:   w.CurrentLoad,
		MaxLoad:       w.MaxLoad,
		IPAddress:     w.IPAddress,
		LastHeartbeat: w.LastHeartbeat.Format(time.RFC3339Nano),
		CurrentTasks:  w.CurrentTasks,
	}
}

type resultJSON struct {
	TaskID          string         `json:"task_id"`
	WorkerID        string         `json:"worker_id"`
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data"`
	Error           string         `json:"error"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	CompletedAt     string         `json:"completed_at"`
}

func resultToJSON(r scraper.TaskResult) resultJSON {
	return resultJSON{
		TaskID:          r.TaskID,
		WorkerID:        r.WorkerID,
		Success:         r.Success,
		Data:            r.Data,
		Error:           r.Error,
		ExecutionTimeMS: r.ExecutionTimeMS,
		CompletedAt:     r.CompletedAt.Format(time.RFC3339Nano),
	}
}
