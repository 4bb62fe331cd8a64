package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// FileNotFoundError reports a sandbox path that does not exist or escapes
// the task work directory.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file %s not found", e.Path)
}

// FileInfo is one entry of a sandbox directory listing, as reported by
// the agent's files API.
type FileInfo struct {
	Path  string  `json:"path"`
	Size  int64   `json:"size"`
	Mode  string  `json:"mode"`
	UID   string  `json:"uid"`
	GID   string  `json:"gid"`
	MTime float64 `json:"mtime"`
	NLink int     `json:"nlink"`
}

// FileReader reads sandbox files through an agent's files API.
type FileReader interface {
	Browse(ctx context.Context, descriptor *Descriptor, relPath string) ([]FileInfo, error)
	Download(ctx context.Context, descriptor *Descriptor, relPath string) (io.ReadCloser, error)
}

// FileClient implements FileReader against the agent HTTP endpoints
// /files/browse and /files/download. Access is read only.
type FileClient struct {
	http *http.Client
}

// NewFileClient creates a FileClient.
func NewFileClient() *FileClient {
	return &FileClient{
		// No overall timeout: downloads may legitimately take a while.
		http: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 10 * time.Second}},
	}
}

// Browse lists the sandbox directory at relPath under the task work dir.
func (f *FileClient) Browse(ctx context.Context, descriptor *Descriptor, relPath string) ([]FileInfo, error) {
	target, err := resolvePath(descriptor.WorkDir, relPath)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/files/browse?path=%s", descriptor.AgentURL, url.QueryEscape(target))
	resp, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &FileNotFoundError{Path: relPath}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("browse %s: unexpected status %d", relPath, resp.StatusCode)
	}

	var files []FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("browse %s: %w", relPath, err)
	}
	return files, nil
}

// Download streams one sandbox file. The caller owns the returned reader.
func (f *FileClient) Download(ctx context.Context, descriptor *Descriptor, relPath string) (io.ReadCloser, error) {
	target, err := resolvePath(descriptor.WorkDir, relPath)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/files/download?path=%s", descriptor.AgentURL, url.QueryEscape(target))
	resp, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, &FileNotFoundError{Path: relPath}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download %s: unexpected status %d", relPath, resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *FileClient) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return f.http.Do(req)
}

// resolvePath joins a client-supplied relative path with the work dir and
// rejects anything that would escape it.
func resolvePath(workDir, relPath string) (string, error) {
	if relPath == "" {
		relPath = "."
	}
	target := path.Clean(path.Join(workDir, relPath))
	if target != workDir && !strings.HasPrefix(target, workDir+"/") {
		return "", &FileNotFoundError{Path: relPath}
	}
	return target, nil
}
