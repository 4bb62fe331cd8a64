package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAllowedLabel is the task label consulted by the allow-list
// authorization rule. The label value is a comma-separated list of
// principal names.
const DefaultAllowedLabel = "debug_allowed_to"

// AuthConfig represents authorization configuration
type AuthConfig struct {
	// Enabled toggles authorization enforcement globally. When false every
	// principal may open terminals and browse any sandbox.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// AllSandboxesGranted exempts the sandbox browse/download surface from
	// authorization even when Enabled is true.
	AllSandboxesGranted bool `json:"all_sandboxes_granted" yaml:"all_sandboxes_granted" mapstructure:"all_sandboxes_granted"`
	// SuperAdminGroups lists groups whose members may access any task.
	SuperAdminGroups []string `json:"super_admin_groups" yaml:"super_admin_groups" mapstructure:"super_admin_groups"`
	// AllowedLabel is the task label holding the comma-separated allow-list.
	AllowedLabel string `json:"allowed_label" yaml:"allowed_label" mapstructure:"allowed_label"`
	// HeaderName is the API key header used by the static identity provider.
	HeaderName string `json:"header_name" yaml:"header_name" mapstructure:"header_name"`
	// APIKeys maps static API keys to principals.
	APIKeys []APIKey `json:"api_keys" yaml:"api_keys" mapstructure:"api_keys"`
	// KeysFile optionally points at an external JSON file of API keys.
	KeysFile string `json:"keys_file" yaml:"keys_file" mapstructure:"keys_file"`
	// TrustForwardedHeaders accepts X-Forwarded-User / X-Forwarded-Groups
	// from an authenticating front proxy instead of API keys.
	TrustForwardedHeaders bool `json:"trust_forwarded_headers" yaml:"trust_forwarded_headers" mapstructure:"trust_forwarded_headers"`
	// Delegation configures task access tokens.
	Delegation DelegationConfig `json:"delegation" yaml:"delegation" mapstructure:"delegation"`
}

// APIKey maps one static API key to a principal.
type APIKey struct {
	Key    string   `json:"key" yaml:"key" mapstructure:"key"`
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Groups []string `json:"groups" yaml:"groups" mapstructure:"groups"`
}

// DelegationConfig configures minting and validation of task access tokens.
type DelegationConfig struct {
	// Secret signs delegation tokens. Empty disables the token rule.
	Secret string `json:"secret" yaml:"secret" mapstructure:"secret"`
	// TTL is the token lifetime. Zero means the default of 24h.
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// LauncherConfig describes the program spawned for interactive sessions.
// The task ID is appended as the final argument.
type LauncherConfig struct {
	Command string   `json:"command" yaml:"command" mapstructure:"command"`
	Args    []string `json:"args" yaml:"args" mapstructure:"args"`
}

// SessionConfig tunes the terminal session core.
type SessionConfig struct {
	// MaxHistoryBytes caps the retained output history per session. Older
	// output is discarded from the front once the cap is exceeded.
	MaxHistoryBytes int `json:"max_history_bytes" yaml:"max_history_bytes" mapstructure:"max_history_bytes"`
}

// Config represents the taskterm server configuration
type Config struct {
	// MasterURL is the base URL of the cluster master (task metadata API).
	MasterURL string `json:"master_url" yaml:"master_url" mapstructure:"master_url"`
	// Auth represents authorization configuration
	Auth AuthConfig `json:"auth" yaml:"auth" mapstructure:"auth"`
	// Launcher is the interactive session launcher program.
	Launcher LauncherConfig `json:"launcher" yaml:"launcher" mapstructure:"launcher"`
	// Session tunes session buffering.
	Session SessionConfig `json:"session" yaml:"session" mapstructure:"session"`
}

// LoadConfig loads configuration from a JSON or YAML file, keyed on the
// file extension.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	}

	config.applyDefaults()

	// Load API keys from external file if specified
	if config.Auth.KeysFile != "" {
		if err := config.loadAPIKeysFromFile(); err != nil {
			log.Printf("Warning: Failed to load API keys from %s: %v", config.Auth.KeysFile, err)
		}
	}

	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{
		MasterURL: "http://localhost:5050",
	}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Auth.AllowedLabel == "" {
		c.Auth.AllowedLabel = DefaultAllowedLabel
	}
	if c.Auth.HeaderName == "" {
		c.Auth.HeaderName = "X-API-Key"
	}
	if c.Auth.Delegation.TTL == 0 {
		c.Auth.Delegation.TTL = 24 * time.Hour
	}
	if c.Launcher.Command == "" {
		c.Launcher.Command = "taskterm-launch"
	}
	if c.Session.MaxHistoryBytes == 0 {
		c.Session.MaxHistoryBytes = 2 * 1024 * 1024
	}
}

// loadAPIKeysFromFile loads API keys from an external JSON file
func (c *Config) loadAPIKeysFromFile() error {
	file, err := os.Open(c.Auth.KeysFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("Failed to close API keys file: %v", err)
		}
	}()

	var keysData struct {
		APIKeys []APIKey `json:"api_keys"`
	}
	if err := json.NewDecoder(file).Decode(&keysData); err != nil {
		return err
	}

	c.Auth.APIKeys = keysData.APIKeys
	return nil
}

// LookupAPIKey returns the principal entry for a static API key.
func (c *Config) LookupAPIKey(key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}
	for i := range c.Auth.APIKeys {
		if c.Auth.APIKeys[i].Key == key {
			return &c.Auth.APIKeys[i], true
		}
	}
	return nil, false
}
