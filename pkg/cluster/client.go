package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TaskLookup resolves task descriptors from the cluster master.
type TaskLookup interface {
	GetTaskInfo(ctx context.Context, taskID string) (*Task, error)
	GetAgent(ctx context.Context, agentID string) (*Agent, error)
}

// AgentLookup resolves the live state of one cluster agent.
type AgentLookup interface {
	GetAgentState(ctx context.Context, agentURL string) (*AgentState, error)
}

// AgentState is the subset of an agent's /state document needed to locate
// task sandboxes.
type AgentState struct {
	ID                  string           `json:"id"`
	Frameworks          []StateFramework `json:"frameworks"`
	CompletedFrameworks []StateFramework `json:"completed_frameworks"`
}

// StateFramework is one scheduling framework registered on an agent.
type StateFramework struct {
	ID                 string          `json:"id"`
	Executors          []StateExecutor `json:"executors"`
	CompletedExecutors []StateExecutor `json:"completed_executors"`
}

// StateExecutor is one executor under a framework; Directory is the
// executor's sandbox on the agent filesystem.
type StateExecutor struct {
	ID             string      `json:"id"`
	Directory      string      `json:"directory"`
	Tasks          []StateTask `json:"tasks"`
	CompletedTasks []StateTask `json:"completed_tasks"`
}

// StateTask is a task reference inside an executor's state.
type StateTask struct {
	ID string `json:"id"`
}

// WorkDir returns the sandbox directory of the executor running the given
// task. Completed frameworks and executors are searched too so that files
// of recently finished tasks stay reachable.
func (s *AgentState) WorkDir(frameworkID, taskID string) (string, bool) {
	frameworks := append(append([]StateFramework{}, s.Frameworks...), s.CompletedFrameworks...)
	for _, fw := range frameworks {
		if fw.ID != frameworkID {
			continue
		}
		executors := append(append([]StateExecutor{}, fw.Executors...), fw.CompletedExecutors...)
		for _, ex := range executors {
			if ex.ID == taskID {
				return ex.Directory, true
			}
			for _, task := range append(append([]StateTask{}, ex.Tasks...), ex.CompletedTasks...) {
				if task.ID == taskID {
					return ex.Directory, true
				}
			}
		}
	}
	return "", false
}

// Client talks to the cluster master and its agents over HTTP. It
// implements TaskLookup and AgentLookup.
type Client struct {
	masterURL string
	http      *http.Client
}

// NewClient creates a Client for the given master base URL.
func NewClient(masterURL string) *Client {
	return &Client{
		masterURL: masterURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// GetTaskInfo fetches the descriptor of one task from the master.
func (c *Client) GetTaskInfo(ctx context.Context, taskID string) (*Task, error) {
	var response struct {
		Tasks []Task `json:"tasks"`
	}
	endpoint := fmt.Sprintf("%s/tasks?task_id=%s", c.masterURL, url.QueryEscape(taskID))
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("task lookup for %s: %w", taskID, err)
	}
	for i := range response.Tasks {
		if response.Tasks[i].ID == taskID {
			return &response.Tasks[i], nil
		}
	}
	return nil, &TaskNotFoundError{TaskID: taskID}
}

// GetAgent resolves an agent ID to its network location via the master.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var response struct {
		Agents []Agent `json:"agents"`
	}
	endpoint := fmt.Sprintf("%s/agents?agent_id=%s", c.masterURL, url.QueryEscape(agentID))
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("agent lookup for %s: %w", agentID, err)
	}
	for i := range response.Agents {
		if response.Agents[i].ID == agentID {
			return &response.Agents[i], nil
		}
	}
	return nil, &AgentNotFoundError{AgentID: agentID}
}

// GetAgentState fetches the /state document of one agent.
func (c *Client) GetAgentState(ctx context.Context, agentURL string) (*AgentState, error) {
	var state AgentState
	if err := c.getJSON(ctx, agentURL+"/state", &state); err != nil {
		return nil, fmt.Errorf("agent state from %s: %w", agentURL, err)
	}
	return &state, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
