package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgentStub(t *testing.T) (*httptest.Server, *Descriptor) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/browse", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("path") {
		case "/work/t-1":
			fmt.Fprint(w, `[
				{"path": "/work/t-1/stdout", "size": 1024, "mode": "-rw-r--r--", "uid": "alice", "gid": "alice", "mtime": 1725000000, "nlink": 1},
				{"path": "/work/t-1/logs", "size": 4096, "mode": "drwxr-xr-x", "uid": "alice", "gid": "alice", "mtime": 1725000000, "nlink": 2}
			]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/files/download", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("path") {
		case "/work/t-1/stdout":
			fmt.Fprint(w, "hello from stdout\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	descriptor := &Descriptor{
		TaskID:   "t-1",
		AgentURL: server.URL,
		WorkDir:  "/work/t-1",
		Status:   StatusRunning,
	}
	return server, descriptor
}

func TestBrowse(t *testing.T) {
	_, descriptor := newAgentStub(t)
	client := NewFileClient()

	files, err := client.Browse(context.Background(), descriptor, "")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/work/t-1/stdout", files[0].Path)
	assert.Equal(t, int64(1024), files[0].Size)
	assert.Equal(t, "drwxr-xr-x", files[1].Mode)
}

func TestBrowseNotFound(t *testing.T) {
	_, descriptor := newAgentStub(t)
	client := NewFileClient()

	_, err := client.Browse(context.Background(), descriptor, "missing-dir")
	var notFound *FileNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing-dir", notFound.Path)
}

func TestDownload(t *testing.T) {
	_, descriptor := newAgentStub(t)
	client := NewFileClient()

	body, err := client.Download(context.Background(), descriptor, "stdout")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello from stdout\n", string(data))
}

func TestDownloadNotFound(t *testing.T) {
	_, descriptor := newAgentStub(t)
	client := NewFileClient()

	_, err := client.Download(context.Background(), descriptor, "stderr")
	var notFound *FileNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestPathEscapeRejected(t *testing.T) {
	_, descriptor := newAgentStub(t)
	client := NewFileClient()

	for _, p := range []string{"..", "../other", "a/../../etc/passwd"} {
		_, err := client.Browse(context.Background(), descriptor, p)
		var notFound *FileNotFoundError
		assert.True(t, errors.As(err, &notFound), "path %q should be rejected", p)
	}

	// Paths that stay inside the work dir are fine.
	target, err := resolvePath("/work/t-1", "logs/../stdout")
	require.NoError(t, err)
	assert.Equal(t, "/work/t-1/stdout", target)
}
