package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMasterStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("task_id") != "t-1" {
			fmt.Fprint(w, `{"tasks": []}`)
			return
		}
		fmt.Fprint(w, `{"tasks": [{
			"id": "t-1",
			"name": "web",
			"framework_id": "fw-1",
			"slave_id": "ag-1",
			"state": "TASK_RUNNING",
			"user": "alice",
			"labels": [{"key": "debug_allowed_to", "value": "alice,bob"}],
			"statuses": [
				{"state": "TASK_STARTING", "container_status": {"container_id": {"value": ""}}},
				{"state": "TASK_RUNNING", "container_status": {"container_id": {"value": "c-9"}}}
			]
		}]}`)
	})
	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("agent_id") != "ag-1" {
			fmt.Fprint(w, `{"agents": []}`)
			return
		}
		fmt.Fprint(w, `{"agents": [{"id": "ag-1", "hostname": "node1.example.com", "port": 5051}]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGetTaskInfo(t *testing.T) {
	master := newMasterStub(t)
	client := NewClient(master.URL)

	task, err := client.GetTaskInfo(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, "t-1", task.ID)
	assert.Equal(t, "fw-1", task.FrameworkID)
	assert.Equal(t, "ag-1", task.AgentID)
	assert.Equal(t, "alice", task.User)
	assert.Equal(t, "TASK_RUNNING", task.State)

	value, ok := task.Label("debug_allowed_to")
	require.True(t, ok)
	assert.Equal(t, "alice,bob", value)

	_, ok = task.Label("missing")
	assert.False(t, ok)

	assert.Equal(t, "c-9", task.ContainerID())
}

func TestGetTaskInfoNotFound(t *testing.T) {
	master := newMasterStub(t)
	client := NewClient(master.URL)

	_, err := client.GetTaskInfo(context.Background(), "gone")
	var notFound *TaskNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "gone", notFound.TaskID)
}

func TestGetAgent(t *testing.T) {
	master := newMasterStub(t)
	client := NewClient(master.URL)

	agent, err := client.GetAgent(context.Background(), "ag-1")
	require.NoError(t, err)
	assert.Equal(t, "http://node1.example.com:5051", agent.URL())

	_, err = client.GetAgent(context.Background(), "ag-2")
	var notFound *AgentNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "ag-2", notFound.AgentID)
}

func TestGetAgentState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "ag-1",
			"frameworks": [{
				"id": "fw-1",
				"executors": [{
					"id": "exec-1",
					"directory": "/var/lib/agent/slaves/ag-1/frameworks/fw-1/executors/exec-1/runs/latest",
					"tasks": [{"id": "t-1"}]
				}]
			}],
			"completed_frameworks": [{
				"id": "fw-0",
				"completed_executors": [{
					"id": "t-old",
					"directory": "/var/lib/agent/old",
					"completed_tasks": [{"id": "t-old"}]
				}]
			}]
		}`)
	})
	agent := httptest.NewServer(mux)
	defer agent.Close()

	client := NewClient("http://unused")
	state, err := client.GetAgentState(context.Background(), agent.URL)
	require.NoError(t, err)
	assert.Equal(t, "ag-1", state.ID)

	dir, ok := state.WorkDir("fw-1", "t-1")
	require.True(t, ok)
	assert.Contains(t, dir, "executors/exec-1")

	// Completed executors are searched too.
	dir, ok = state.WorkDir("fw-0", "t-old")
	require.True(t, ok)
	assert.Equal(t, "/var/lib/agent/old", dir)

	_, ok = state.WorkDir("fw-1", "t-unknown")
	assert.False(t, ok)
}

func TestGetTaskInfoServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetTaskInfo(context.Background(), "t-1")
	assert.Error(t, err)
	var notFound *TaskNotFoundError
	assert.False(t, errors.As(err, &notFound))
}
