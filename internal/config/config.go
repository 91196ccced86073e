// Package config loads and validates the ordserve configuration from YAML,
// environment variables, and CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceType selects where ORD content is materialized from.
type SourceType string

const (
	SourceLocal  SourceType = "local"
	SourceGitHub SourceType = "github"
)

// AuthMethod names one of the supported request authentication methods.
type AuthMethod string

const (
	AuthOpen   AuthMethod = "open"
	AuthBasic  AuthMethod = "basic"
	AuthMTLS   AuthMethod = "mtls"
	AuthCFMTLS AuthMethod = "cf-mtls"
)

// Well-known request paths served by the ORD endpoints.
const (
	WellKnownPath = "/.well-known/open-resource-discovery"
	ORDPathPrefix = "/ord/v1/"
	DocumentsPath = "/ord/v1/documents/"
	WebhookPath   = "/api/v1/webhook/github"
)

// Config is the complete ordserve configuration.
type Config struct {
	BaseURL    string     `yaml:"baseUrl"`
	Host       string     `yaml:"host"`
	Port       int        `yaml:"port"`
	SourceType SourceType `yaml:"sourceType"`

	// Local mode.
	Directory string `yaml:"directory"`

	// GitHub mode.
	GithubAPIURL     string `yaml:"githubApiUrl"`
	GithubRepository string `yaml:"githubRepository"` // "<owner>/<repo>"
	GithubBranch     string `yaml:"githubBranch"`
	GithubToken      string `yaml:"githubToken"`
	WebhookSecret    string `yaml:"webhookSecret"`

	// DocumentsSubdirectory is the subpath under the working root that holds
	// the ORD documents.
	DocumentsSubdirectory string `yaml:"documentsSubdirectory"`

	// DataDir is the root under which current/, temp/ and staging/ live.
	DataDir string `yaml:"dataDir"`

	// UpdateDelay is the webhook debounce window in seconds.
	UpdateDelay int `yaml:"updateDelay"`

	// SyncInterval optionally runs a periodic resync ("30m", "1h"). Empty disables it.
	SyncInterval string `yaml:"syncInterval"`

	// RequestTimeout bounds how long a gated request waits for readiness ("5m").
	RequestTimeout string `yaml:"requestTimeout"`

	// HistoryPath is the SQLite DSN for the update history (":memory:" by default).
	HistoryPath string `yaml:"historyPath"`

	AuthMethods []AuthMethod `yaml:"authMethods"`
}

// Defaults mirrored into zero-valued fields by normalize.
const (
	DefaultPort           = 8080
	DefaultUpdateDelay    = 5
	DefaultRequestTimeout = 5 * time.Minute
	DefaultSubdirectory   = "documents"
	DefaultBranch         = "main"
	DefaultGithubAPIURL   = "https://api.github.com"
)

// Load reads and validates a configuration file. A missing path yields an
// all-defaults local configuration rooted at "./documents".
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ORDSERVE_GITHUB_TOKEN"); v != "" {
		c.GithubToken = v
	}
	if v := os.Getenv("ORDSERVE_WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := os.Getenv("ORDSERVE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
}

func (c *Config) normalize() {
	if c.SourceType == "" {
		c.SourceType = SourceLocal
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SourceType == SourceLocal && c.Directory == "" {
		c.Directory = "./documents"
	}
	if c.DocumentsSubdirectory == "" {
		c.DocumentsSubdirectory = DefaultSubdirectory
	}
	if c.GithubBranch == "" {
		c.GithubBranch = DefaultBranch
	}
	if c.GithubAPIURL == "" {
		c.GithubAPIURL = DefaultGithubAPIURL
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.UpdateDelay == 0 {
		c.UpdateDelay = DefaultUpdateDelay
	}
	if c.HistoryPath == "" {
		c.HistoryPath = ":memory:"
	}
	if len(c.AuthMethods) == 0 {
		c.AuthMethods = []AuthMethod{AuthOpen}
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
}

// Validate reports the first configuration problem found. Validation failures
// are fatal at startup.
func (c *Config) Validate() error {
	switch c.SourceType {
	case SourceLocal:
		abs, err := filepath.Abs(c.Directory)
		if err != nil {
			return fmt.Errorf("invalid directory %q: %w", c.Directory, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("local directory %s: %w", abs, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("local directory %s is not a directory", abs)
		}
	case SourceGitHub:
		if c.GithubRepository == "" {
			return fmt.Errorf("githubRepository is required for sourceType %q", SourceGitHub)
		}
		parts := strings.Split(c.GithubRepository, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("githubRepository must be <owner>/<repo>, got %q", c.GithubRepository)
		}
	default:
		return fmt.Errorf("unknown sourceType %q (expected %q or %q)", c.SourceType, SourceLocal, SourceGitHub)
	}

	seen := map[AuthMethod]bool{}
	for _, m := range c.AuthMethods {
		switch m {
		case AuthOpen, AuthBasic, AuthMTLS, AuthCFMTLS:
		default:
			return fmt.Errorf("unknown auth method %q", m)
		}
		if seen[m] {
			return fmt.Errorf("duplicate auth method %q", m)
		}
		seen[m] = true
	}
	if seen[AuthOpen] && len(c.AuthMethods) > 1 {
		return fmt.Errorf("auth method %q cannot be combined with others", AuthOpen)
	}

	if c.UpdateDelay < 0 {
		return fmt.Errorf("updateDelay must be >= 0, got %d", c.UpdateDelay)
	}
	if _, err := c.ParseSyncInterval(); err != nil {
		return err
	}
	if _, err := c.ParseRequestTimeout(); err != nil {
		return err
	}
	return nil
}

// Owner returns the repository owner for GitHub mode.
func (c *Config) Owner() string {
	owner, _, _ := strings.Cut(c.GithubRepository, "/")
	return owner
}

// Repo returns the repository name for GitHub mode.
func (c *Config) Repo() string {
	_, repo, _ := strings.Cut(c.GithubRepository, "/")
	return repo
}

// UpdateDelayDuration returns the debounce window as a duration.
func (c *Config) UpdateDelayDuration() time.Duration {
	return time.Duration(c.UpdateDelay) * time.Second
}

// ParseSyncInterval parses the optional resync interval; zero means disabled.
func (c *Config) ParseSyncInterval() (time.Duration, error) {
	if c.SyncInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid syncInterval %q", c.SyncInterval)
	}
	return d, nil
}

// ParseRequestTimeout returns the readiness gate timeout.
func (c *Config) ParseRequestTimeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return DefaultRequestTimeout, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid requestTimeout %q", c.RequestTimeout)
	}
	return d, nil
}
