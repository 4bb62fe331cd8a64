package sandbox

import "github.com/taskterm/taskterm/pkg/cluster"

// Status is the last known lifecycle state of a task.
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusKilled   Status = "KILLED"
	StatusUnknown  Status = "UNKNOWN"
)

// Descriptor resolves a task ID to its sandbox location and the
// authorization-relevant fields of its task. Descriptors are immutable
// snapshots; a refetch supersedes rather than updates them.
type Descriptor struct {
	TaskID      string
	AgentURL    string
	WorkDir     string
	AgentID     string
	FrameworkID string
	ContainerID string
	Status      Status
	Task        *cluster.Task
}

// statusFromState maps a cluster task state string to a Status.
func statusFromState(state string) Status {
	switch state {
	case "TASK_STAGING", "TASK_STARTING":
		return StatusStarting
	case "TASK_RUNNING":
		return StatusRunning
	case "TASK_KILLED", "TASK_KILLING", "TASK_FINISHED", "TASK_FAILED", "TASK_LOST":
		return StatusKilled
	default:
		return StatusUnknown
	}
}
