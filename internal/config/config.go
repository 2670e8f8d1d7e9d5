package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from YAML. Secrets are never
// stored in the file; they come from the environment (see Credentials).
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string `yaml:"addr"`
	// DataDir is where context documents, clones, and the database live.
	DataDir string `yaml:"data_dir"`

	Gemini GeminiConfig `yaml:"gemini"`
	Github GithubConfig `yaml:"github"`
	Ingest IngestConfig `yaml:"ingest"`
}

type GeminiConfig struct {
	Model string `yaml:"model"`
}

type GithubConfig struct {
	// App configures GitHub App authentication. When unset, a personal
	// access token from the environment is used (or anonymous access).
	App AppConfig `yaml:"app"`
}

type AppConfig struct {
	ClientID       string `yaml:"client_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type IngestConfig struct {
	// MaxFiles caps the number of files pulled per repository.
	MaxFiles int `yaml:"max_files"`
	// MaxFileSize caps individual file size in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
	// MaxContextBytes caps the total content pulled per repository, so the
	// context document stays within what the model can take.
	MaxContextBytes int64 `yaml:"max_context_bytes"`
	// MaxWorkers bounds concurrent background jobs.
	MaxWorkers int `yaml:"max_workers"`
}

// Credentials holds secrets resolved from the environment.
type Credentials struct {
	GithubToken  string
	GeminiAPIKey string
}

const (
	defaultAddr     = "127.0.0.1:8750"
	defaultModel    = "gemini-1.5-flash-latest"
	defaultMaxFiles = 400
)

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".testforge", "config.yaml"), nil
}

// Load reads and parses a config file at the given path and applies
// defaults. A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, ".testforge", "data")
		} else {
			c.DataDir = "data"
		}
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultModel
	}
	if c.Ingest.MaxFiles <= 0 {
		c.Ingest.MaxFiles = defaultMaxFiles
	}
	if c.Ingest.MaxFileSize <= 0 {
		c.Ingest.MaxFileSize = 1024 * 1024
	}
	if c.Ingest.MaxContextBytes <= 0 {
		c.Ingest.MaxContextBytes = 4 * 1024 * 1024
	}
	if c.Ingest.MaxWorkers <= 0 {
		c.Ingest.MaxWorkers = 2
	}
}

func (c *Config) validate() error {
	if c.Github.App.ClientID != "" || c.Github.App.PrivateKeyPath != "" {
		if c.Github.App.ClientID == "" {
			return fmt.Errorf("github.app.client_id is required when app auth is configured")
		}
		if c.Github.App.PrivateKeyPath == "" {
			return fmt.Errorf("github.app.private_key_path is required when app auth is configured")
		}
		if c.Github.App.InstallationID == 0 {
			return fmt.Errorf("github.app.installation_id is required when app auth is configured")
		}
	}
	return nil
}

// HasGithubApp reports whether GitHub App authentication is configured.
func (c *Config) HasGithubApp() bool {
	return c.Github.App.ClientID != "" && c.Github.App.PrivateKeyPath != ""
}

// DatabasePath returns the sqlite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "testforge.db")
}

// ClonesDir returns where temporary clones are created.
func (c *Config) ClonesDir() string {
	return filepath.Join(c.DataDir, "clones")
}

// ResolveCredentials reads secrets from the environment. Both the
// TESTFORGE_-prefixed names and the conventional unprefixed ones are
// accepted, prefixed taking precedence.
func ResolveCredentials() Credentials {
	return Credentials{
		GithubToken:  firstEnv("TESTFORGE_GITHUB_TOKEN", "GITHUB_TOKEN"),
		GeminiAPIKey: firstEnv("TESTFORGE_GEMINI_API_KEY", "GEMINI_API_KEY"),
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
