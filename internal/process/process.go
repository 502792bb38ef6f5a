// Package process runs the process-wide orchestration: one task distributor,
// a recurring background monitor, and status-change hooks.
package process

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/clock/system"
	"github.com/bluewave-labs/rockscraper-backend/internal/distributor"
	"github.com/bluewave-labs/rockscraper-backend/internal/id/uuid"
	"github.com/bluewave-labs/rockscraper-backend/internal/metrics"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// TaskHook is invoked with a snapshot of a task whose status just changed
// into the hook's registered value.
type TaskHook func(*scraper.Task)

// WorkerHook is the worker counterpart of TaskHook.
type WorkerHook func(*scraper.Worker)

// Monitor defaults.
const (
	DefaultHeartbeatTimeout = 60 * time.Second
	DefaultCheckInterval    = 10 * time.Second

	stopJoinTimeout = 5 * time.Second
)

// Config controls Process behavior.
type Config struct {
	Strategy         distributor.Strategy
	HeartbeatTimeout time.Duration
	CheckInterval    time.Duration
}

// Process owns exactly one TaskDistributor, runs the background monitor, and
// fires status-change hooks. All registry mutation goes through the
// distributor's lock; Process state (results, hooks, settings) is guarded by
// its own mutex, never held across a blocking call.
type Process struct {
	distributor *distributor.TaskDistributor
	clock       scraper.Clock
	idGen       scraper.IDGenerator
	logger      *zap.Logger

	mu               sync.Mutex
	running          bool
	stopCh           chan struct{}
	doneCh           chan struct{}
	heartbeatTimeout time.Duration
	checkInterval    time.Duration
	results          map[string]scraper.TaskResult
	taskHooks        map[scraper.TaskStatus][]TaskHook
	workerHooks      map[scraper.WorkerStatus][]WorkerHook
}

// New constructs a Process. Nil clock, idGen, and logger fall back to the
// system clock, UUID generation, and a no-op logger.
func New(cfg Config, clock scraper.Clock, idGen scraper.IDGenerator, logger *zap.Logger) *Process {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if clock == nil {
		clock = system.New()
	}
	if idGen == nil {
		idGen = uuid.NewGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	taskHooks := make(map[scraper.TaskStatus][]TaskHook, len(scraper.TaskStatuses))
	for _, s := range scraper.TaskStatuses {
		taskHooks[s] = []TaskHook{}
	}
	workerHooks := make(map[scraper.WorkerStatus][]WorkerHook, len(scraper.WorkerStatuses))
	for _, s := range scraper.WorkerStatuses {
		workerHooks[s] = []WorkerHook{}
	}

	return &Process{
		distributor:      distributor.New(cfg.Strategy),
		clock:            clock,
		idGen:            idGen,
		logger:           logger,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		checkInterval:    cfg.CheckInterval,
		results:          make(map[string]scraper.TaskResult),
		taskHooks:        taskHooks,
		workerHooks:      workerHooks,
	}
}

// Distributor exposes the owned distributor for registry operations.
func (p *Process) Distributor() *distributor.TaskDistributor {
	return p.distributor
}

// Start launches the background monitor. Starting an already running process
// logs a warning and does nothing.
func (p *Process) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("process is already running")
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.monitor(stop, done)
	p.logger.Info("process started")
}

// Stop signals the monitor and waits for it with a bounded join. Stopping a
// stopped process logs a warning and does nothing; a join timeout is reported
// but not fatal.
func (p *Process) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		p.logger.Warn("process is not running")
		return
	}
	p.running = false
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		p.logger.Warn("monitor did not exit within join timeout")
	}
	p.logger.Info("process stopped")
}

// Running reports whether the monitor is active.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Process) monitor(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		p.runTick()
		select {
		case <-stop:
			return
		case <-time.After(p.CheckInterval()):
		}
	}
}

// runTick performs one monitor pass: heartbeat expiry, task timeouts, then a
// distribution pass. Failures are logged and never terminate the loop.
func (p *Process) runTick() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("monitor tick panicked", zap.Any("panic", r))
		}
	}()

	now := p.clock.Now()

	for _, w := range p.distributor.ExpireWorkerHeartbeats(now, p.HeartbeatTimeout()) {
		p.logger.Info("worker marked offline after heartbeat expiry",
			zap.String("worker_id", w.ID),
			zap.String("worker_name", w.Name),
		)
		metrics.IncWorkerTransition(string(w.Status))
		p.fireWorkerHooks(w)
	}

	for _, t := range p.distributor.ExpireTaskTimeouts(now) {
		p.logger.Info("task timed out", zap.String("task_id", t.ID), zap.String("url", t.URL))
		metrics.IncTaskTransition(string(t.Status))
		p.fireTaskHooks(t)
	}

	if assigned := p.distributor.Distribute(); assigned > 0 {
		p.logger.Info("distributed tasks to workers", zap.Int("assigned", assigned))
		metrics.AddTasksAssigned(string(p.distributor.Strategy()), assigned)
	}

	metrics.SetAvailableWorkers(len(p.distributor.AvailableWorkers()))
	metrics.SetPendingTasks(len(p.distributor.PendingTasks()))
}

// HeartbeatTimeout returns the configured worker silence threshold.
func (p *Process) HeartbeatTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heartbeatTimeout
}

// CheckInterval returns the monitor polling interval.
func (p *Process) CheckInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkInterval
}

// AddTask registers a task with the distributor.
func (p *Process) AddTask(task *scraper.Task) {
	p.distributor.AddTask(task)
	p.logger.Info("added task", zap.String("task_id", task.ID), zap.String("url", task.URL))
}

// AddTasks registers multiple tasks.
func (p *Process) AddTasks(tasks []*scraper.Task) {
	p.distributor.AddTasks(tasks)
	p.logger.Info("added tasks", zap.Int("count", len(tasks)))
}

// RegisterWorker registers a worker with the distributor.
func (p *Process) RegisterWorker(worker *scraper.Worker) {
	p.distributor.AddWorker(worker)
	p.logger.Info("registered worker",
		zap.String("worker_id", worker.ID),
		zap.String("worker_name", worker.Name),
	)
}

// RegisterWorkers registers multiple workers.
func (p *Process) RegisterWorkers(workers []*scraper.Worker) {
	p.distributor.AddWorkers(workers)
	p.logger.Info("registered workers", zap.Int("count", len(workers)))
}

// CreateTask constructs a task, registers it, and returns a copy of it.
func (p *Process) CreateTask(url string, priority int, timeout time.Duration, data map[string]any, maxRetries int) (*scraper.Task, error) {
	id, err := p.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	task := scraper.NewTask(id, url, priority, timeout, data, maxRetries)
	p.AddTask(task)
	return task.Clone(), nil
}

// CreateWorker constructs a worker, registers it, and returns a copy of it.
func (p *Process) CreateWorker(name, ipAddress string, capabilities []string, maxLoad int) (*scraper.Worker, error) {
	id, err := p.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate worker id: %w", err)
	}
	worker := scraper.NewWorker(id, name, ipAddress, capabilities, maxLoad)
	p.RegisterWorker(worker)
	return worker.Clone(), nil
}

// RecordTaskResult applies a result to the registries, stores it (overwriting
// any prior result for the task), and fires task hooks when the status
// actually changed. Unknown task or worker ids are logged and dropped.
func (p *Process) RecordTaskResult(res scraper.TaskResult) {
	task, changed, err := p.distributor.ApplyResult(res)
	if err != nil {
		p.logger.Warn("dropping result for unknown entity",
			zap.String("task_id", res.TaskID),
			zap.String("worker_id", res.WorkerID),
			zap.Error(err),
		)
		return
	}

	p.mu.Lock()
	p.results[res.TaskID] = res
	p.mu.Unlock()

	metrics.IncTaskResult(res.Success)
	p.logger.Info("recorded task result",
		zap.String("task_id", res.TaskID),
		zap.Bool("success", res.Success),
	)

	if changed {
		metrics.IncTaskTransition(string(task.Status))
		p.fireTaskHooks(task)
	}
}

// UpdateWorkerHeartbeat refreshes a worker's heartbeat, bringing an offline
// worker back online (and firing worker hooks for the transition).
func (p *Process) UpdateWorkerHeartbeat(workerID string) bool {
	worker, cameOnline, err := p.distributor.Heartbeat(workerID)
	if err != nil {
		p.logger.Warn("heartbeat for unknown worker", zap.String("worker_id", workerID))
		return false
	}
	if cameOnline {
		p.logger.Info("worker is back online",
			zap.String("worker_id", worker.ID),
			zap.String("worker_name", worker.Name),
		)
		metrics.IncWorkerTransition(string(worker.Status))
		p.fireWorkerHooks(worker)
	}
	return true
}

// PendingTasks returns copies of all pending tasks.
func (p *Process) PendingTasks() []*scraper.Task {
	return p.distributor.PendingTasks()
}

// AvailableWorkers returns copies of all workers able to accept a task.
func (p *Process) AvailableWorkers() []*scraper.Worker {
	return p.distributor.AvailableWorkers()
}

// ChangeDistributionStrategy swaps the distributor's strategy.
func (p *Process) ChangeDistributionStrategy(strategy distributor.Strategy) {
	p.distributor.SetStrategy(strategy)
	p.logger.Info("changed distribution strategy", zap.String("strategy", string(strategy)))
}

// Result returns the stored result for a task, if any.
func (p *Process) Result(taskID string) (scraper.TaskResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.results[taskID]
	return res, ok
}

// AddTaskHook registers a callback fired whenever a task's status changes
// into the given value. Hooks run in registration order.
func (p *Process) AddTaskHook(status scraper.TaskStatus, hook TaskHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.taskHooks[status] = append(p.taskHooks[status], hook)
}

// AddWorkerHook registers a callback fired whenever a worker's status changes
// into the given value. Hooks run in registration order.
func (p *Process) AddWorkerHook(status scraper.WorkerStatus, hook WorkerHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workerHooks[status] = append(p.workerHooks[status], hook)
}

// fireTaskHooks runs the hooks registered for the task's current status.
// Hooks execute outside any lock with a snapshot of the task; a panicking
// hook is recovered and logged without blocking the rest.
func (p *Process) fireTaskHooks(task *scraper.Task) {
	p.mu.Lock()
	hooks := slices.Clone(p.taskHooks[task.Status])
	p.mu.Unlock()
	for _, hook := range hooks {
		p.invokeTaskHook(hook, task)
	}
}

func (p *Process) invokeTaskHook(hook TaskHook, task *scraper.Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task hook panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r),
			)
		}
	}()
	hook(task)
}

func (p *Process) fireWorkerHooks(worker *scraper.Worker) {
	p.mu.Lock()
	hooks := slices.Clone(p.workerHooks[worker.Status])
	p.mu.Unlock()
	for _, hook := range hooks {
		p.invokeWorkerHook(hook, worker)
	}
}

func (p *Process) invokeWorkerHook(hook WorkerHook, worker *scraper.Worker) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker hook panicked",
				zap.String("worker_id", worker.ID),
				zap.Any("panic", r),
			)
		}
	}()
	hook(worker)
}

// MetricsSnapshot is the point-in-time view returned by GenerateMetrics.
type MetricsSnapshot struct {
	TaskCounts           TaskCounts           `json:"task_counts"`
	WorkerCounts         WorkerCounts         `json:"worker_counts"`
	Results              ResultCounts         `json:"results"`
	DistributionStrategy distributor.Strategy `json:"distribution_strategy"`
}

// TaskCounts breaks tasks down by status.
type TaskCounts struct {
	Total    int                        `json:"total"`
	ByStatus map[scraper.TaskStatus]int `json:"by_status"`
}

// WorkerCounts breaks workers down by status.
type WorkerCounts struct {
	Total     int                          `json:"total"`
	ByStatus  map[scraper.WorkerStatus]int `json:"by_status"`
	Available int                          `json:"available"`
}

// ResultCounts summarizes stored results. SuccessRate is a percentage over
// max(1, total).
type ResultCounts struct {
	Total       int     `json:"total"`
	SuccessRate float64 `json:"success_rate"`
}

// GenerateMetrics summarizes tasks, workers, and results.
func (p *Process) GenerateMetrics() MetricsSnapshot {
	tasks := p.distributor.AllTasks()
	workers := p.distributor.AllWorkers()
	available := p.distributor.AvailableWorkers()

	taskByStatus := make(map[scraper.TaskStatus]int, len(scraper.TaskStatuses))
	for _, s := range scraper.TaskStatuses {
		taskByStatus[s] = 0
	}
	for _, t := range tasks {
		taskByStatus[t.Status]++
	}

	workerByStatus := make(map[scraper.WorkerStatus]int, len(scraper.WorkerStatuses))
	for _, s := range scraper.WorkerStatuses {
		workerByStatus[s] = 0
	}
	for _, w := range workers {
		workerByStatus[w.Status]++
	}

	p.mu.Lock()
	total := len(p.results)
	successes := 0
	for _, res := range p.results {
		if res.Success {
			successes++
		}
	}
	p.mu.Unlock()

	return MetricsSnapshot{
		TaskCounts: TaskCounts{
			Total:    len(tasks),
			ByStatus: taskByStatus,
		},
		WorkerCounts: WorkerCounts{
			Total:     len(workers),
			ByStatus:  workerByStatus,
			Available: len(available),
		},
		Results: ResultCounts{
			Total:       total,
			SuccessRate: float64(successes) / float64(max(1, total)) * 100,
		},
		DistributionStrategy: p.distributor.Strategy(),
	}
}
