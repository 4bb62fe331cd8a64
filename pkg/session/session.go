// Package session owns the terminal session core: spawning interactive
// processes for cluster tasks, buffering their output, and relaying the
// byte stream to one attached viewer.
package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Geometry is a terminal size in character cells.
type Geometry struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// SessionNotFoundError reports a stale or unknown session handle.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.ID)
}

// SpawnError reports a failed process start.
type SpawnError struct {
	TaskID string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn session for task %s: %v", e.TaskID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Session is one interactive process bound to a task. Output emitted by
// the process is appended to an in-memory history buffer so that a viewer
// attaching late still sees everything, capped at maxHistory bytes with
// the oldest output discarded first.
//
// All buffer state is guarded by mu; appending output and replaying the
// buffer to a new subscriber take the same lock, so a subscriber never
// misses a chunk emitted concurrently with its attach. Forwarding to the
// subscriber happens outside the lock: a stalled viewer write must not
// block close, resize or a competing attach.
type Session struct {
	id         string
	taskID     string
	createdAt  time.Time
	cmd        *exec.Cmd
	ptmx       *os.File
	maxHistory int

	mu         sync.Mutex
	history    []byte
	subscriber io.Writer
	rows, cols uint16
	closed     bool
}

// ID returns the session handle.
func (s *Session) ID() string { return s.id }

// TaskID returns the owning task.
func (s *Session) TaskID() string { return s.taskID }

// CreatedAt returns when the session was spawned.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Geometry returns the current terminal size.
func (s *Session) Geometry() Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Geometry{Rows: s.rows, Cols: s.cols}
}

// Alive reports whether the session has not been closed.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// HistorySize returns the number of currently retained output bytes.
func (s *Session) HistorySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// emit appends one output chunk to the history and forwards it to the
// subscriber, if any. Forwarding failures are swallowed: a dead channel
// is torn down by its own read loop, not by the process output path.
func (s *Session) emit(chunk []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.history = append(s.history, chunk...)
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		// Drop the oldest output. Copy so the backing array does not pin
		// the discarded prefix.
		trimmed := make([]byte, s.maxHistory)
		copy(trimmed, s.history[len(s.history)-s.maxHistory:])
		s.history = trimmed
	}
	subscriber := s.subscriber
	s.mu.Unlock()

	// The write runs without the lock. If an attach lands between the
	// append and this write, the new subscriber already saw the chunk in
	// its history replay and the write goes to the replaced one.
	if subscriber != nil {
		_, _ = subscriber.Write(chunk)
	}
}

// Attach replays the accumulated history to w and subscribes it to all
// subsequent output, atomically with respect to emit. A later Attach
// replaces the previous subscriber; a session usefully serves one viewer
// at a time.
func (s *Session) Attach(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &SessionNotFoundError{ID: s.id}
	}
	if len(s.history) > 0 {
		if _, err := w.Write(s.history); err != nil {
			return err
		}
	}
	s.subscriber = w
	return nil
}

// Write sends input bytes verbatim to the process's stdin.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, &SessionNotFoundError{ID: s.id}
	}
	ptmx := s.ptmx
	s.mu.Unlock()
	return ptmx.Write(p)
}

// resize forwards a geometry change to the live process.
func (s *Session) resize(rows, cols uint16) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &SessionNotFoundError{ID: s.id}
	}
	s.rows, s.cols = rows, cols
	ptmx := s.ptmx
	s.mu.Unlock()
	return pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// close kills the process and releases the buffer. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.history = nil
	s.subscriber = nil
	ptmx := s.ptmx
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		// The launcher runs as a session leader on its own pty, so the
		// negative pid reaches its whole process group.
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			_ = cmd.Process.Kill()
		}
	}
	if ptmx != nil {
		_ = ptmx.Close()
	}
}
