package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// SecretEnvVar is the environment variable consulted first for the link
// signing secret.
const SecretEnvVar = "DIVER_SECRET"

// Config holds application configuration.
type Config struct {
	// LinkBaseURL is the host prefix for wrapped links, e.g. "https://dvr.link".
	LinkBaseURL string `json:"link_base_url"`

	// LinkSalt namespaces derived item ids. Two installs with different
	// salts derive different ids for the same URL.
	LinkSalt string `json:"link_salt,omitempty"`

	// SecretFile is an optional path to a file holding the signing secret.
	// The DIVER_SECRET environment variable takes precedence.
	SecretFile string `json:"secret_file,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is
	// locked" errors). 0 means use sql.DB default. Only set if you
	// experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LinkBaseURL: "https://dvr.link",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.diver.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Secret resolves the link signing secret: the DIVER_SECRET environment
// variable first, then cfg.SecretFile, then baseDir/secret. Whitespace is
// trimmed so trailing newlines in secret files are harmless.
func Secret(baseDir string, cfg *Config) ([]byte, error) {
	if v := os.Getenv(SecretEnvVar); strings.TrimSpace(v) != "" {
		return []byte(strings.TrimSpace(v)), nil
	}

	path := cfg.SecretFile
	if path == "" {
		path = filepath.Join(baseDir, "secret")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("no signing secret: set " + SecretEnvVar + " or create " + path)
		}
		return nil, err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, errors.New("signing secret file is empty: " + path)
	}
	return []byte(secret), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.LinkBaseURL = overlay.LinkBaseURL
	if result.LinkBaseURL == "" {
		result.LinkBaseURL = base.LinkBaseURL
	}

	result.LinkSalt = overlay.LinkSalt
	if result.LinkSalt == "" {
		result.LinkSalt = base.LinkSalt
	}

	result.SecretFile = overlay.SecretFile
	if result.SecretFile == "" {
		result.SecretFile = base.SecretFile
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
