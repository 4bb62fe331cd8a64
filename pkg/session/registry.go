package session

import (
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/taskterm/taskterm/pkg/config"
)

// Registry is the in-memory table of live sessions. It exclusively owns
// every Session it spawns; relays hold non-owning references for the
// duration of one viewer connection.
type Registry struct {
	launcher   config.LauncherConfig
	maxHistory int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry(launcher config.LauncherConfig, maxHistory int) *Registry {
	return &Registry{
		launcher:   launcher,
		maxHistory: maxHistory,
		sessions:   make(map[string]*Session),
	}
}

// Open spawns the launcher program for a task on a fresh pty and
// registers the session under a new handle. Output capture starts
// immediately, before any viewer attaches.
func (r *Registry) Open(taskID string, geometry Geometry) (*Session, error) {
	if geometry.Rows == 0 {
		geometry.Rows = 24
	}
	if geometry.Cols == 0 {
		geometry.Cols = 80
	}

	args := append(append([]string{}, r.launcher.Args...), taskID)
	cmd := exec.Command(r.launcher.Command, args...)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: geometry.Rows, Cols: geometry.Cols})
	if err != nil {
		return nil, &SpawnError{TaskID: taskID, Err: err}
	}

	s := &Session{
		id:         uuid.NewString(),
		taskID:     taskID,
		createdAt:  time.Now(),
		cmd:        cmd,
		ptmx:       ptmx,
		maxHistory: r.maxHistory,
		rows:       geometry.Rows,
		cols:       geometry.Cols,
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	go r.pump(s)

	log.Printf("[SESSION_OPENED] session %s task %s pid %d geometry %dx%d",
		s.id, taskID, cmd.Process.Pid, geometry.Rows, geometry.Cols)
	return s, nil
}

// pump copies process output into the session buffer until the pty
// reaches EOF (process exit or teardown), then reaps the session.
func (r *Registry) pump(s *Session) {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.emit(buf[:n])
		}
		if err != nil {
			break
		}
	}
	_ = s.cmd.Wait()
	r.Close(s.id)
}

// Get returns a live session by handle.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	return s, nil
}

// List returns all live sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	return result
}

// Resize forwards a geometry change to a live session.
func (r *Registry) Resize(id string, rows, cols uint16) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.resize(rows, cols)
}

// Close kills the session's process, releases its buffer and removes the
// registry entry. Closing an unknown or already-closed handle is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	log.Printf("[SESSION_CLOSED] session %s task %s", s.id, s.taskID)
}

// Shutdown tears down every live session.
func (r *Registry) Shutdown() {
	for _, s := range r.List() {
		r.Close(s.ID())
	}
}
