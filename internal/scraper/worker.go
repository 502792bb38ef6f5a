package scraper

import (
	"slices"
	"time"
)

// WorkerStatus represents the liveness state of a worker.
type WorkerStatus string

// Worker status values persisted in state snapshots.
const (
	WorkerStatusOnline  WorkerStatus = "online"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusOffline WorkerStatus = "offline"
	WorkerStatusError   WorkerStatus = "error"
)

// WorkerStatuses lists every worker status value, used to key hook registries.
var WorkerStatuses = []WorkerStatus{
	WorkerStatusOnline,
	WorkerStatusBusy,
	WorkerStatusOffline,
	WorkerStatusError,
}

// Defaults applied by NewWorker when the zero value is passed.
const DefaultWorkerMaxLoad = 5

// DefaultWorkerCapability is granted to workers registered without an
// explicit capability set.
const DefaultWorkerCapability = "basic-scraping"

// Worker is an executing agent with capacity and a capability set. Like Task,
// it is serialized through the owning distributor's lock.
type Worker struct {
	ID            string
	Name          string
	Status        WorkerStatus
	Capabilities  []string
	CurrentLoad   int
	MaxLoad       int
	IPAddress     string
	LastHeartbeat time.Time
	CurrentTasks  []string
}

// NewWorker creates an online worker. Nil capabilities become the default
// single-capability set; zero maxLoad falls back to DefaultWorkerMaxLoad.
func NewWorker(id, name, ipAddress string, capabilities []string, maxLoad int) *Worker {
	if len(capabilities) == 0 {
		capabilities = []string{DefaultWorkerCapability}
	}
	if maxLoad <= 0 {
		maxLoad = DefaultWorkerMaxLoad
	}
	return &Worker{
		ID:            id,
		Name:          name,
		Status:        WorkerStatusOnline,
		Capabilities:  capabilities,
		MaxLoad:       maxLoad,
		IPAddress:     ipAddress,
		LastHeartbeat: time.Now().UTC(),
		CurrentTasks:  []string{},
	}
}

// UpdateHeartbeat refreshes the liveness timestamp.
func (w *Worker) UpdateHeartbeat() {
	w.LastHeartbeat = time.Now().UTC()
}

// UpdateStatus transitions the worker and refreshes its heartbeat.
func (w *Worker) UpdateStatus(status WorkerStatus) {
	w.Status = status
	w.UpdateHeartbeat()
}

// AssignTask adds a task to the worker. It fails without state change when
// the worker is at capacity; reaching capacity flips the worker to busy.
func (w *Worker) AssignTask(taskID string) bool {
	if w.CurrentLoad >= w.MaxLoad {
		return false
	}
	w.CurrentTasks = append(w.CurrentTasks, taskID)
	w.CurrentLoad++
	if w.CurrentLoad >= w.MaxLoad {
		w.UpdateStatus(WorkerStatusBusy)
	}
	return true
}

// CompleteTask removes a task from the worker. Dropping below capacity while
// busy flips the worker back to online.
func (w *Worker) CompleteTask(taskID string) bool {
	i := slices.Index(w.CurrentTasks, taskID)
	if i < 0 {
		return false
	}
	w.CurrentTasks = slices.Delete(w.CurrentTasks, i, i+1)
	w.CurrentLoad--
	if w.Status == WorkerStatusBusy && w.CurrentLoad < w.MaxLoad {
		w.UpdateStatus(WorkerStatusOnline)
	}
	return true
}

// HasCapability reports whether the worker advertises the capability.
func (w *Worker) HasCapability(capability string) bool {
	return slices.Contains(w.Capabilities, capability)
}

// IsAvailable reports whether the worker can accept another task.
func (w *Worker) IsAvailable() bool {
	return (w.Status == WorkerStatusOnline || w.Status == WorkerStatusBusy) &&
		w.CurrentLoad < w.MaxLoad
}

// IsHeartbeatExpired reports whether the worker has been silent longer than
// the timeout.
func (w *Worker) IsHeartbeatExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(w.LastHeartbeat) > timeout
}

// Clone returns a deep copy for hook snapshots.
func (w *Worker) Clone() *Worker {
	cp := *w
	cp.Capabilities = slices.Clone(w.Capabilities)
	cp.CurrentTasks = slices.Clone(w.CurrentTasks)
	return &cp
}
