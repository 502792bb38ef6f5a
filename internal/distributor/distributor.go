// Package distributor owns the task and worker registries and matches
// pending tasks to available workers under a pluggable strategy.
package distributor

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Strategy selects the policy used to match pending tasks to workers.
type Strategy string

// Strategy values persisted in state snapshots.
const (
	StrategyRoundRobin      Strategy = "round_robin"
	StrategyLeastBusy       Strategy = "least_busy"
	StrategyPriorityBased   Strategy = "priority_based"
	StrategyCapabilityMatch Strategy = "capability_match"
)

// ParseStrategy validates a strategy wire value.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRoundRobin, StrategyLeastBusy, StrategyPriorityBased, StrategyCapabilityMatch:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown distribution strategy %q", s)
}

// Registry lookup failures. Callers treat these as warnings, never fatal.
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrWorkerNotFound = errors.New("worker not found")
)

// TaskDistributor holds the registries and applies assignment passes. All
// exported methods serialize on one internal lock, so a monitor tick and a
// concurrent result recording can never interleave mid-mutation. Entities
// handed in via Add become registry-owned; entities handed out are deep
// copies.
type TaskDistributor struct {
	mu       sync.Mutex
	tasks    map[string]*scraper.Task
	workers  map[string]*scraper.Worker
	strategy Strategy
}

// New creates a TaskDistributor with the given strategy (least-busy when
// empty).
func New(strategy Strategy) *TaskDistributor {
	if strategy == "" {
		strategy = StrategyLeastBusy
	}
	return &TaskDistributor{
		tasks:    make(map[string]*scraper.Task),
		workers:  make(map[string]*scraper.Worker),
		strategy: strategy,
	}
}

// AddTask inserts or overwrites a task by id.
func (d *TaskDistributor) AddTask(task *scraper.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks[task.ID] = task
}

// AddTasks inserts multiple tasks.
func (d *TaskDistributor) AddTasks(tasks []*scraper.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range tasks {
		d.tasks[t.ID] = t
	}
}

// RemoveTask removes a task by id and reports whether it existed.
func (d *TaskDistributor) RemoveTask(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tasks[taskID]; !ok {
		return false
	}
	delete(d.tasks, taskID)
	return true
}

// Task returns a copy of the task by id.
func (d *TaskDistributor) Task(taskID string) (*scraper.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// AllTasks returns copies of every registered task.
func (d *TaskDistributor) AllTasks() []*scraper.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*scraper.Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// PendingTasks returns copies of every task still pending.
func (d *TaskDistributor) PendingTasks() []*scraper.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*scraper.Task, 0)
	for _, t := range d.tasks {
		if t.Status == scraper.TaskStatusPending {
			out = append(out, t.Clone())
		}
	}
	return out
}

// AddWorker inserts or overwrites a worker by id.
func (d *TaskDistributor) AddWorker(worker *scraper.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers[worker.ID] = worker
}

// AddWorkers inserts multiple workers.
func (d *TaskDistributor) AddWorkers(workers []*scraper.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range workers {
		d.workers[w.ID] = w
	}
}

// RemoveWorker removes a worker by id and reports whether it existed.
func (d *TaskDistributor) RemoveWorker(workerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.workers[workerID]; !ok {
		return false
	}
	delete(d.workers, workerID)
	return true
}

// Worker returns a copy of the worker by id.
func (d *TaskDistributor) Worker(workerID string) (*scraper.Worker, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[workerID]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// AllWorkers returns copies of every registered worker.
func (d *TaskDistributor) AllWorkers() []*scraper.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*scraper.Worker, 0, len(d.workers))
	for _, w := range d.workers {
		out = append(out, w.Clone())
	}
	return out
}

// AvailableWorkers returns copies of every worker that can accept a task.
func (d *TaskDistributor) AvailableWorkers() []*scraper.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*scraper.Worker, 0)
	for _, w := range d.workers {
		if w.IsAvailable() {
			out = append(out, w.Clone())
		}
	}
	return out
}

// SetStrategy swaps the active distribution strategy.
func (d *TaskDistributor) SetStrategy(strategy Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategy = strategy
}

// Strategy returns the active distribution strategy.
func (d *TaskDistributor) Strategy() Strategy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.strategy
}

// UpdateTaskStatus transitions a task. It reports whether the status actually
// changed; ErrTaskNotFound when the id is unknown. The returned task is a
// copy.
func (d *TaskDistributor) UpdateTaskStatus(taskID string, status scraper.TaskStatus) (*scraper.Task, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[taskID]
	if !ok {
		return nil, false, ErrTaskNotFound
	}
	if t.Status == status {
		return t.Clone(), false, nil
	}
	t.UpdateStatus(status)
	return t.Clone(), true, nil
}

// ApplyResult updates the task and worker named by a result: success
// completes the task, failure records the error (possibly exhausting the
// retry budget), and the worker sheds the task either way. It returns a copy
// of the task plus whether its status changed.
func (d *TaskDistributor) ApplyResult(res scraper.TaskResult) (*scraper.Task, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[res.TaskID]
	if !ok {
		return nil, false, ErrTaskNotFound
	}
	w, ok := d.workers[res.WorkerID]
	if !ok {
		return nil, false, ErrWorkerNotFound
	}

	oldStatus := t.Status
	if res.Success {
		t.UpdateStatus(scraper.TaskStatusCompleted)
	} else {
		errText := res.Error
		if errText == "" {
			errText = "unknown error"
		}
		t.RecordError(errText)
	}
	w.CompleteTask(res.TaskID)
	return t.Clone(), t.Status != oldStatus, nil
}

// Heartbeat refreshes a worker's liveness and reports whether the worker came
// back from offline. The returned worker is a copy.
func (d *TaskDistributor) Heartbeat(workerID string) (*scraper.Worker, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[workerID]
	if !ok {
		return nil, false, ErrWorkerNotFound
	}
	wasOffline := w.Status == scraper.WorkerStatusOffline
	w.UpdateHeartbeat()
	if wasOffline {
		w.UpdateStatus(scraper.WorkerStatusOnline)
	}
	return w.Clone(), wasOffline, nil
}

// ExpireWorkerHeartbeats forces every worker silent beyond the timeout
// offline and returns copies of the transitioned workers. Workers already
// offline are left alone, so each expiry is observed exactly once.
func (d *TaskDistributor) ExpireWorkerHeartbeats(now time.Time, timeout time.Duration) []*scraper.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	var expired []*scraper.Worker
	for _, w := range d.workers {
		if w.Status != scraper.WorkerStatusOffline && w.IsHeartbeatExpired(now, timeout) {
			w.Status = scraper.WorkerStatusOffline
			expired = append(expired, w.Clone())
		}
	}
	return expired
}

// ExpireTaskTimeouts transitions every in-progress task past its deadline to
// timeout and returns copies of the transitioned tasks.
func (d *TaskDistributor) ExpireTaskTimeouts(now time.Time) []*scraper.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	var expired []*scraper.Task
	for _, t := range d.tasks {
		if t.IsTimedOut(now) {
			t.UpdateStatus(scraper.TaskStatusTimeout)
			expired = append(expired, t.Clone())
		}
	}
	return expired
}

// Replace swaps in an entirely new set of tasks and workers, clearing the
// current registries first. Used by state restore.
func (d *TaskDistributor) Replace(tasks []*scraper.Task, workers []*scraper.Worker, strategy Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = make(map[string]*scraper.Task, len(tasks))
	for _, t := range tasks {
		d.tasks[t.ID] = t
	}
	d.workers = make(map[string]*scraper.Worker, len(workers))
	for _, w := range workers {
		d.workers[w.ID] = w
	}
	if strategy != "" {
		d.strategy = strategy
	}
}

// Distribute runs one assignment pass of the active strategy over the current
// pending-task and available-worker snapshots and returns how many tasks were
// newly assigned. Tasks with no eligible worker simply stay pending for the
// next cycle.
func (d *TaskDistributor) Distribute() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.pendingLocked()
	if len(pending) == 0 {
		return 0
	}
	available := d.availableLocked()
	if len(available) == 0 {
		return 0
	}

	switch d.strategy {
	case StrategyRoundRobin:
		return distributeRoundRobin(pending, available)
	case StrategyPriorityBased:
		return distributePriorityBased(pending, available)
	case StrategyCapabilityMatch:
		return distributeCapabilityMatch(pending, available)
	default:
		return distributeLeastBusy(pending, available)
	}
}

// pendingLocked returns live pending tasks in insertion-stable order so that
// priority ties and capability scans are deterministic.
func (d *TaskDistributor) pendingLocked() []*scraper.Task {
	var out []*scraper.Task
	for _, t := range d.tasks {
		if t.Status == scraper.TaskStatusPending {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (d *TaskDistributor) availableLocked() []*scraper.Worker {
	var out []*scraper.Worker
	for _, w := range d.workers {
		if w.IsAvailable() {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func assign(t *scraper.Task, w *scraper.Worker) bool {
	if !w.AssignTask(t.ID) {
		return false
	}
	t.UpdateStatus(scraper.TaskStatusAssigned)
	return true
}

// distributeRoundRobin cycles through the workers in fixed order. A worker
// that fills up is dropped from the rotation and the index re-wrapped.
func distributeRoundRobin(tasks []*scraper.Task, workers []*scraper.Worker) int {
	assigned := 0
	idx := 0
	for _, t := range tasks {
		if len(workers) == 0 {
			break
		}
		w := workers[idx]
		if assign(t, w) {
			assigned++
		}
		idx = (idx + 1) % len(workers)
		if !w.IsAvailable() {
			if i := slices.Index(workers, w); i >= 0 {
				workers = slices.Delete(workers, i, i+1)
			}
			if len(workers) > 0 {
				idx %= len(workers)
			}
		}
	}
	return assigned
}

// distributeLeastBusy always picks the least-loaded worker, re-sorting (or
// dropping a now-full worker) after every assignment. The per-assignment
// re-sort is fine at realistic worker counts.
func distributeLeastBusy(tasks []*scraper.Task, workers []*scraper.Worker) int {
	assigned := 0
	sortByLoad(workers)
	for _, t := range tasks {
		if len(workers) == 0 {
			break
		}
		w := workers[0]
		if assign(t, w) {
			assigned++
		}
		if !w.IsAvailable() {
			workers = workers[1:]
		} else {
			sortByLoad(workers)
		}
	}
	return assigned
}

// distributePriorityBased is least-busy over tasks ordered by descending
// priority, ties keeping source order.
func distributePriorityBased(tasks []*scraper.Task, workers []*scraper.Worker) int {
	ordered := slices.Clone(tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return distributeLeastBusy(ordered, workers)
}

// distributeCapabilityMatch assigns each task to the least-loaded worker
// possessing the task's required capability. Tasks with no eligible worker
// are skipped and stay pending.
func distributeCapabilityMatch(tasks []*scraper.Task, workers []*scraper.Worker) int {
	assigned := 0
	for _, t := range tasks {
		if len(workers) == 0 {
			break
		}
		required := t.RequiredCapability()
		var capable []*scraper.Worker
		for _, w := range workers {
			if required == "" || w.HasCapability(required) {
				capable = append(capable, w)
			}
		}
		if len(capable) == 0 {
			continue
		}
		sortByLoad(capable)
		w := capable[0]
		if assign(t, w) {
			assigned++
		}
		if !w.IsAvailable() {
			if i := slices.Index(workers, w); i >= 0 {
				workers = slices.Delete(workers, i, i+1)
			}
		}
	}
	return assigned
}

func sortByLoad(workers []*scraper.Worker) {
	sort.SliceStable(workers, func(i, j int) bool {
		return workers[i].CurrentLoad < workers[j].CurrentLoad
	})
}
