// Package logger writes per-session audit records: who opened a terminal
// into which task, and when it was torn down.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// SessionLog is the audit record kept for one terminal session.
type SessionLog struct {
	SessionID string     `json:"session_id"`
	TaskID    string     `json:"task_id"`
	Principal string     `json:"principal"`
	StartedAt time.Time  `json:"started_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Logger persists session audit records as one JSON file per session.
type Logger struct {
	logDir string
}

// NewLogger creates a Logger writing under LOG_DIR (default ./logs).
func NewLogger() *Logger {
	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "./logs"
	}

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Failed to create log directory %s: %v", logDir, err)
	}

	return &Logger{
		logDir: logDir,
	}
}

// LogSessionStart records that principal opened a terminal into taskID.
func (l *Logger) LogSessionStart(sessionID, taskID, principal string) error {
	return l.writeSessionLog(SessionLog{
		SessionID: sessionID,
		TaskID:    taskID,
		Principal: principal,
		StartedAt: time.Now(),
	})
}

// LogSessionEnd marks the session's audit record as closed.
func (l *Logger) LogSessionEnd(sessionID string) error {
	sessionLog, err := l.readSessionLog(sessionID)
	now := time.Now()
	if err != nil {
		// If we can't read the existing log, create a new one
		sessionLog = SessionLog{
			SessionID: sessionID,
			StartedAt: now,
		}
	}
	sessionLog.ClosedAt = &now
	return l.writeSessionLog(sessionLog)
}

func (l *Logger) readSessionLog(sessionID string) (SessionLog, error) {
	var sessionLog SessionLog

	filePath := filepath.Join(l.logDir, fmt.Sprintf("%s.json", sessionID))
	data, err := os.ReadFile(filePath)
	if err != nil {
		return sessionLog, err
	}

	err = json.Unmarshal(data, &sessionLog)
	return sessionLog, err
}

func (l *Logger) writeSessionLog(sessionLog SessionLog) error {
	filePath := filepath.Join(l.logDir, fmt.Sprintf("%s.json", sessionLog.SessionID))

	data, err := json.MarshalIndent(sessionLog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session log: %v", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write session log to %s: %v", filePath, err)
	}
	return nil
}
