package cluster

import "fmt"

// Label is a key/value pair attached to a task by its scheduler.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ContainerID identifies the container a task status was observed in.
type ContainerID struct {
	Value string `json:"value"`
}

// ContainerStatus carries container-level details of a task status update.
type ContainerStatus struct {
	ContainerID ContainerID `json:"container_id"`
}

// TaskStatus is one entry of a task's status history, newest last.
type TaskStatus struct {
	State           string          `json:"state"`
	Timestamp       float64         `json:"timestamp"`
	ContainerStatus ContainerStatus `json:"container_status"`
}

// Task is the descriptor returned by the cluster master for one task.
type Task struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	FrameworkID string       `json:"framework_id"`
	AgentID     string       `json:"slave_id"`
	State       string       `json:"state"`
	User        string       `json:"user"`
	Labels      []Label      `json:"labels"`
	Statuses    []TaskStatus `json:"statuses"`
}

// Label returns the value of the named label, if present.
func (t *Task) Label(key string) (string, bool) {
	for _, l := range t.Labels {
		if l.Key == key {
			return l.Value, true
		}
	}
	return "", false
}

// ContainerID returns the container ID from the most recent status that
// carries one.
func (t *Task) ContainerID() string {
	for i := len(t.Statuses) - 1; i >= 0; i-- {
		if id := t.Statuses[i].ContainerStatus.ContainerID.Value; id != "" {
			return id
		}
	}
	return ""
}

// Agent is a cluster worker node as reported by the master.
type Agent struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// URL returns the agent's HTTP base URL.
func (a *Agent) URL() string {
	return fmt.Sprintf("http://%s:%d", a.Hostname, a.Port)
}

// TaskNotFoundError reports a task the master no longer knows about.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// AgentNotFoundError reports an agent that cannot be located.
type AgentNotFoundError struct {
	AgentID string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %s not found", e.AgentID)
}
