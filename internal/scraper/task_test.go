package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTaskDefaults(t *testing.T) {
	t.Parallel()

	task := NewTask("t1", "https://example.com", 0, 0, nil, 0)

	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, DefaultTaskPriority, task.Priority)
	require.Equal(t, DefaultTaskTimeout, task.Timeout)
	require.Equal(t, DefaultTaskMaxRetries, task.MaxRetries)
	require.NotNil(t, task.Data)
	require.Zero(t, task.ErrorCount)
	require.Equal(t, task.CreatedAt, task.UpdatedAt)
}

func TestRecordErrorExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	task := NewTask("t1", "https://example.com", 0, 0, nil, 3)

	task.RecordError("first")
	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, 1, task.ErrorCount)
	require.Equal(t, "first", task.Data[DataKeyLastError])

	task.RecordError("second")
	require.Equal(t, TaskStatusPending, task.Status)

	task.RecordError("third")
	require.Equal(t, TaskStatusFailed, task.Status)
	require.Equal(t, "third", task.Data[DataKeyLastError])
}

func TestIsTimedOut(t *testing.T) {
	t.Parallel()

	task := NewTask("t1", "https://example.com", 0, time.Second, nil, 0)
	now := task.UpdatedAt

	// Only in-progress tasks time out.
	require.False(t, task.IsTimedOut(now.Add(time.Hour)))

	task.UpdateStatus(TaskStatusInProgress)
	require.False(t, task.IsTimedOut(task.UpdatedAt.Add(time.Second)))
	require.True(t, task.IsTimedOut(task.UpdatedAt.Add(time.Second+time.Millisecond)))
}

func TestResetReturnsToPending(t *testing.T) {
	t.Parallel()

	task := NewTask("t1", "https://example.com", 0, 0, nil, 0)
	task.UpdateStatus(TaskStatusTimeout)
	task.Reset()
	require.Equal(t, TaskStatusPending, task.Status)
}

func TestRequiredCapability(t *testing.T) {
	t.Parallel()

	task := NewTask("t1", "https://example.com", 0, 0, nil, 0)
	require.Empty(t, task.RequiredCapability())

	task.Data[DataKeyRequiredCapability] = "javascript"
	require.Equal(t, "javascript", task.RequiredCapability())

	task.Data[DataKeyRequiredCapability] = 42
	require.Empty(t, task.RequiredCapability())
}

func TestTaskCloneIsDeep(t *testing.T) {
	t.Parallel()

	task := NewTask("t1", "https://example.com", 0, 0, map[string]any{"k": "v"}, 0)
	cp := task.Clone()
	cp.Data["k"] = "changed"
	cp.UpdateStatus(TaskStatusCompleted)

	require.Equal(t, "v", task.Data["k"])
	require.Equal(t, TaskStatusPending, task.Status)
}
