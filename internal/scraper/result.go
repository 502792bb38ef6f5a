package scraper

import "time"

// TaskResult is the immutable record of one task execution. The most recent
// result for a task overwrites any prior one in the result store.
type TaskResult struct {
	TaskID          string         `json:"task_id"`
	WorkerID        string         `json:"worker_id"`
	Success         bool           `json:"success"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	Data            map[string]any `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	CompletedAt     time.Time      `json:"completed_at"`
}

// NewSuccessResult records a successful execution.
func NewSuccessResult(taskID, workerID string, executionTimeMS int64, data map[string]any) TaskResult {
	return TaskResult{
		TaskID:          taskID,
		WorkerID:        workerID,
		Success:         true,
		ExecutionTimeMS: executionTimeMS,
		Data:            data,
		CompletedAt:     time.Now().UTC(),
	}
}

// NewFailureResult records a failed execution.
func NewFailureResult(taskID, workerID string, executionTimeMS int64, errText string) TaskResult {
	return TaskResult{
		TaskID:          taskID,
		WorkerID:        workerID,
		Success:         false,
		ExecutionTimeMS: executionTimeMS,
		Error:           errText,
		CompletedAt:     time.Now().UTC(),
	}
}
