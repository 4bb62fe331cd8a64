package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LOG_DIR", dir)
	return NewLogger()
}

func TestLogSessionStartAndEnd(t *testing.T) {
	l := newTestLogger(t)

	require.NoError(t, l.LogSessionStart("s-1", "t-1", "alice"))

	data, err := os.ReadFile(filepath.Join(l.logDir, "s-1.json"))
	require.NoError(t, err)

	var record SessionLog
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "s-1", record.SessionID)
	assert.Equal(t, "t-1", record.TaskID)
	assert.Equal(t, "alice", record.Principal)
	assert.False(t, record.StartedAt.IsZero())
	assert.Nil(t, record.ClosedAt)

	require.NoError(t, l.LogSessionEnd("s-1"))

	data, err = os.ReadFile(filepath.Join(l.logDir, "s-1.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "alice", record.Principal)
	require.NotNil(t, record.ClosedAt)
}

func TestLogSessionEndWithoutStart(t *testing.T) {
	l := newTestLogger(t)

	require.NoError(t, l.LogSessionEnd("s-orphan"))

	data, err := os.ReadFile(filepath.Join(l.logDir, "s-orphan.json"))
	require.NoError(t, err)

	var record SessionLog
	require.NoError(t, json.Unmarshal(data, &record))
	require.NotNil(t, record.ClosedAt)
}
