// Package scraper defines the core task, worker, and scrape types shared
// across the distribution and crawl subsystems.
package scraper

import "time"

// TaskStatus represents the lifecycle state of a scrape task.
type TaskStatus string

// Task status values persisted in state snapshots.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimeout    TaskStatus = "timeout"
)

// TaskStatuses lists every task status value, used to key hook registries.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusAssigned,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusTimeout,
}

// DataKeyLastError is the task payload key holding the most recent error text.
const DataKeyLastError = "last_error"

// DataKeyRequiredCapability is the task payload key naming a capability the
// executing worker must possess. Absent means no requirement.
const DataKeyRequiredCapability = "required_capability"

// Task is one unit of scrape work, addressed by URL, with a priority and a
// retry budget. Tasks are not safe for concurrent use; callers serialize
// access through the owning distributor's lock.
type Task struct {
	ID         string
	URL        string
	Priority   int
	Status     TaskStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Timeout    time.Duration
	Data       map[string]any
	ErrorCount int
	MaxRetries int
}

// Defaults applied by NewTask when the zero value is passed.
const (
	DefaultTaskPriority   = 1
	DefaultTaskTimeout    = 30 * time.Second
	DefaultTaskMaxRetries = 3
)

// NewTask creates a pending task. Zero priority, timeout, and maxRetries fall
// back to the defaults above.
func NewTask(id, url string, priority int, timeout time.Duration, data map[string]any, maxRetries int) *Task {
	if priority == 0 {
		priority = DefaultTaskPriority
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultTaskMaxRetries
	}
	if data == nil {
		data = make(map[string]any)
	}
	now := time.Now().UTC()
	return &Task{
		ID:         id,
		URL:        url,
		Priority:   priority,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Timeout:    timeout,
		Data:       data,
		MaxRetries: maxRetries,
	}
}

// UpdateStatus transitions the task and touches UpdatedAt.
func (t *Task) UpdateStatus(status TaskStatus) {
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
}

// RecordError increments the error count and stores the message under
// DataKeyLastError. Reaching the retry budget forces the task to failed in
// the same call.
func (t *Task) RecordError(errText string) {
	t.ErrorCount++
	if t.Data == nil {
		t.Data = make(map[string]any)
	}
	t.Data[DataKeyLastError] = errText
	if t.ErrorCount >= t.MaxRetries {
		t.UpdateStatus(TaskStatusFailed)
	}
}

// IsTimedOut reports whether an in-progress task has exceeded its own timeout
// relative to its last update.
func (t *Task) IsTimedOut(now time.Time) bool {
	return t.Status == TaskStatusInProgress && now.Sub(t.UpdatedAt) > t.Timeout
}

// Reset returns the task to pending for a retry.
func (t *Task) Reset() {
	t.UpdateStatus(TaskStatusPending)
}

// RequiredCapability returns the capability demanded by the task payload, or
// "" when the task runs anywhere.
func (t *Task) RequiredCapability() string {
	if t.Data == nil {
		return ""
	}
	if v, ok := t.Data[DataKeyRequiredCapability].(string); ok {
		return v
	}
	return ""
}

// Clone returns a deep copy, used to hand snapshots to hooks without exposing
// registry-owned state.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Data = make(map[string]any, len(t.Data))
	for k, v := range t.Data {
		cp.Data[k] = v
	}
	return &cp
}
