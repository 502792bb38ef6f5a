package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := taskResultsTotal
	Init()
	if taskResultsTotal != first {
		t.Error("Init replaced collectors on second call")
	}
	if tasksAssignedTotal == nil || pagesCrawledTotal == nil || httpRequestsTotal == nil {
		t.Error("Init left collectors nil")
	}
}

func TestCountersBeforeInitAreNoOps(t *testing.T) {
	// Collectors are nil until Init runs; recording must not panic.
	saved := taskResultsTotal
	taskResultsTotal = nil
	defer func() { taskResultsTotal = saved }()

	IncTaskResult(true)
}

func TestIncTaskResult(t *testing.T) {
	Init()

	before := testutil.ToFloat64(taskResultsTotal.WithLabelValues("success"))
	IncTaskResult(true)
	IncTaskResult(true)
	after := testutil.ToFloat64(taskResultsTotal.WithLabelValues("success"))
	if after-before != 2 {
		t.Errorf("Expected success results counter to rise by 2, got %f", after-before)
	}

	before = testutil.ToFloat64(taskResultsTotal.WithLabelValues("failure"))
	IncTaskResult(false)
	after = testutil.ToFloat64(taskResultsTotal.WithLabelValues("failure"))
	if after-before != 1 {
		t.Errorf("Expected failure results counter to rise by 1, got %f", after-before)
	}
}

func TestAddTasksAssigned(t *testing.T) {
	Init()

	before := testutil.ToFloat64(tasksAssignedTotal.WithLabelValues("round_robin"))
	AddTasksAssigned("round_robin", 3)
	AddTasksAssigned("round_robin", 0)
	AddTasksAssigned("round_robin", -1)
	after := testutil.ToFloat64(tasksAssignedTotal.WithLabelValues("round_robin"))
	if after-before != 3 {
		t.Errorf("Expected assigned counter to rise by 3, got %f", after-before)
	}
}

func TestGauges(t *testing.T) {
	Init()

	SetAvailableWorkers(4)
	if got := testutil.ToFloat64(availableWorkers); got != 4 {
		t.Errorf("Expected available workers gauge 4, got %f", got)
	}
	SetPendingTasks(9)
	if got := testutil.ToFloat64(pendingTasks); got != 9 {
		t.Errorf("Expected pending tasks gauge 9, got %f", got)
	}
}
