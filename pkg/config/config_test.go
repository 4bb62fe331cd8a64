package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if config.MasterURL == "" {
		t.Error("MasterURL should not be empty")
	}

	assert.Equal(t, DefaultAllowedLabel, config.Auth.AllowedLabel)
	assert.Equal(t, "X-API-Key", config.Auth.HeaderName)
	assert.Equal(t, "taskterm-launch", config.Launcher.Command)
	assert.Equal(t, 2*1024*1024, config.Session.MaxHistoryBytes)
	assert.Equal(t, 24*time.Hour, config.Auth.Delegation.TTL)
	assert.False(t, config.Auth.Enabled)
}

func TestLoadConfigJSON(t *testing.T) {
	tempConfig := &Config{
		MasterURL: "http://master.example.com:5050",
		Auth: AuthConfig{
			Enabled:          true,
			SuperAdminGroups: []string{"ops"},
		},
	}

	configData, err := json.Marshal(tempConfig)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, configData, 0644))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://master.example.com:5050", loaded.MasterURL)
	assert.True(t, loaded.Auth.Enabled)
	assert.Equal(t, []string{"ops"}, loaded.Auth.SuperAdminGroups)
	// Defaults applied on top of the file contents
	assert.Equal(t, DefaultAllowedLabel, loaded.Auth.AllowedLabel)
	assert.Equal(t, "taskterm-launch", loaded.Launcher.Command)
}

func TestLoadConfigYAML(t *testing.T) {
	yamlData := `
master_url: http://master.example.com:5050
auth:
  enabled: true
  super_admin_groups:
    - ops
    - sre
launcher:
  command: /usr/local/bin/task-shell
  args: ["--login"]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://master.example.com:5050", loaded.MasterURL)
	assert.Equal(t, []string{"ops", "sre"}, loaded.Auth.SuperAdminGroups)
	assert.Equal(t, "/usr/local/bin/task-shell", loaded.Launcher.Command)
	assert.Equal(t, []string{"--login"}, loaded.Launcher.Args)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadAPIKeysFromFile(t *testing.T) {
	dir := t.TempDir()

	keysData := `{"api_keys": [{"key": "k-1", "name": "alice", "groups": ["dev"]}]}`
	keysPath := filepath.Join(dir, "keys.json")
	require.NoError(t, os.WriteFile(keysPath, []byte(keysData), 0600))

	configData, err := json.Marshal(map[string]any{
		"auth": map[string]any{
			"enabled":   true,
			"keys_file": keysPath,
		},
	})
	require.NoError(t, err)
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, configData, 0644))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)

	key, ok := loaded.LookupAPIKey("k-1")
	require.True(t, ok)
	assert.Equal(t, "alice", key.Name)
	assert.Equal(t, []string{"dev"}, key.Groups)

	_, ok = loaded.LookupAPIKey("unknown")
	assert.False(t, ok)

	_, ok = loaded.LookupAPIKey("")
	assert.False(t, ok)
}
