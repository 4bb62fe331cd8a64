package sandbox

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/taskterm/taskterm/pkg/cluster"
)

const (
	// descriptorTTL bounds how long a resolved descriptor is served
	// without consulting the cluster again.
	descriptorTTL = 10 * time.Second
	// sweepInterval is how often expired entries are evicted. The sweep is
	// advisory cleanup; Resolve re-validates expiry on every hit.
	sweepInterval = time.Second
)

type cacheEntry struct {
	descriptor *Descriptor
	expireAt   time.Time
}

// Cache memoizes task-to-sandbox resolution with a 10 second TTL.
//
// Concurrent Resolve calls for the same uncached task are not coalesced:
// each may trigger its own fetch and the last one to store wins. The
// window is bounded by the fetch latency and was accepted as is.
type Cache struct {
	tasks  cluster.TaskLookup
	agents cluster.AgentLookup

	mu      sync.RWMutex
	entries map[string]cacheEntry

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a Cache and starts its background sweeper. Call Close
// to stop the sweeper.
func NewCache(tasks cluster.TaskLookup, agents cluster.AgentLookup) *Cache {
	return newCacheWithClock(tasks, agents, time.Now)
}

func newCacheWithClock(tasks cluster.TaskLookup, agents cluster.AgentLookup, now func() time.Time) *Cache {
	c := &Cache{
		tasks:   tasks,
		agents:  agents,
		entries: make(map[string]cacheEntry),
		now:     now,
		stop:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Close stops the background sweeper. Idempotent.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Resolve returns the sandbox descriptor for a task, fetching it from the
// cluster when no fresh cached entry exists.
func (c *Cache) Resolve(ctx context.Context, taskID string) (*Descriptor, error) {
	c.mu.RLock()
	entry, ok := c.entries[taskID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expireAt) {
		return entry.descriptor, nil
	}

	descriptor, err := c.fetch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[taskID] = cacheEntry{
		descriptor: descriptor,
		expireAt:   c.now().Add(descriptorTTL),
	}
	c.mu.Unlock()

	return descriptor, nil
}

func (c *Cache) fetch(ctx context.Context, taskID string) (*Descriptor, error) {
	task, err := c.tasks.GetTaskInfo(ctx, taskID)
	if err != nil {
		return nil, err
	}

	agent, err := c.tasks.GetAgent(ctx, task.AgentID)
	if err != nil {
		return nil, err
	}

	state, err := c.agents.GetAgentState(ctx, agent.URL())
	if err != nil {
		return nil, err
	}

	workDir, ok := state.WorkDir(task.FrameworkID, taskID)
	if !ok {
		// The master still lists the task but the agent no longer holds
		// its executor; treat it as gone.
		log.Printf("[SANDBOX] No work dir on agent %s for task %s", agent.ID, taskID)
		return nil, &cluster.TaskNotFoundError{TaskID: taskID}
	}

	return &Descriptor{
		TaskID:      taskID,
		AgentURL:    agent.URL(),
		WorkDir:     workDir,
		AgentID:     agent.ID,
		FrameworkID: task.FrameworkID,
		ContainerID: task.ContainerID(),
		Status:      statusFromState(task.State),
		Task:        task,
	}, nil
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for taskID, entry := range c.entries {
				if !now.Before(entry.expireAt) {
					delete(c.entries, taskID)
				}
			}
			c.mu.Unlock()
		}
	}
}
