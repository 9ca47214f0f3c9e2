package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/mitchellh/mapstructure"
)

// Config is the tool configuration: how to reach the platform control plane,
// where to audit, and (optionally) where to fetch target states from.
// The TargetState artifact itself is loaded separately, see target.go.
type Config struct {
	Connection Connection    `yaml:"connection"`
	Audit      AuditConfig   `yaml:"audit"`
	Source     *TargetSource `yaml:"target_source"`
}

// Connection holds the control-plane connection parameters. The executing
// principal here is the operator (or CI) identity running the provisioning,
// not the service identity being provisioned.
type Connection struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`

	// Driver is the registered database/sql driver name. Defaults to "snowflake".
	Driver string `yaml:"driver"`

	// DSN overrides the assembled connection string when set.
	DSN string `yaml:"dsn"`

	// Options are driver-level knobs, decoded into DriverOptions.
	Options map[string]any `yaml:"options"`
}

// DriverOptions are the typed form of Connection.Options.
type DriverOptions struct {
	// LoginTimeout bounds the initial authentication exchange.
	LoginTimeout time.Duration `mapstructure:"login_timeout"`

	// NetworkTimeout bounds individual control-plane calls.
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`
}

// DefaultConnectionTimeout keeps failed connections from hanging for the
// driver's 60s default.
const DefaultConnectionTimeout = 15 * time.Second

// DecodeOptions decodes Connection.Options into DriverOptions, applying
// defaults for unset timeouts.
func (c Connection) DecodeOptions() (DriverOptions, error) {
	opts := DriverOptions{
		LoginTimeout:   DefaultConnectionTimeout,
		NetworkTimeout: DefaultConnectionTimeout,
	}
	if len(c.Options) == 0 {
		return opts, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &opts,
	})
	if err != nil {
		return opts, fmt.Errorf("building options decoder: %w", err)
	}
	if err := dec.Decode(c.Options); err != nil {
		return opts, fmt.Errorf("decoding connection options: %w", err)
	}
	return opts, nil
}

func (c Connection) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Account == "" {
		return fmt.Errorf("connection.account is required")
	}
	if c.User == "" {
		return fmt.Errorf("connection.user is required")
	}
	return nil
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

// GitHubSourceConfig configures a GitHub repository as a target-state source.
type GitHubSourceConfig struct {
	// AppID is the GitHub App ID.
	AppID int64 `yaml:"app_id"`

	// InstallationID is the GitHub App installation ID.
	InstallationID int64 `yaml:"installation_id"`

	// ServerURL is the GitHub Enterprise server URL.
	// For GitHub.com, this can be left empty.
	ServerURL string `yaml:"server"`

	// PrivateKey is the GitHub App private key in PEM format.
	PrivateKey string `yaml:"private_key"`

	// Owner of the GitHub repository.
	Owner string `yaml:"owner"`

	// Repo is the name of the GitHub repository.
	Repo string `yaml:"repo"`

	// Path is the directory path within the repository to load target
	// states from. For example, "targets/".
	Path string `yaml:"path"`

	// Ref is the git reference to use (e.g. a branch).
	Ref string `yaml:"ref"`
}

func (c *GitHubSourceConfig) Validate() error {
	if c.AppID == 0 {
		return fmt.Errorf("app_id is required")
	}
	if c.InstallationID == 0 {
		return fmt.Errorf("installation_id is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("private_key is required")
	}
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if c.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if c.Ref == "" {
		return fmt.Errorf("ref is required")
	}
	return nil
}

// TargetSource holds configuration for where to load target states from.
type TargetSource struct {
	// GitHub holds configuration for GitHub as a target-state source.
	GitHub *GitHubSourceConfig `yaml:"github,omitempty"`
}

func (s *TargetSource) Validate() error {
	switch {
	case s.GitHub != nil:
		if err := s.GitHub.Validate(); err != nil {
			return fmt.Errorf("validating GitHub target source: %w", err)
		}
	default:
		return fmt.Errorf("no valid target source configured")
	}
	return nil
}

// Load reads and parses the tool configuration file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("validating connection: %w", err)
	}
	if c.Source != nil {
		if err := c.Source.Validate(); err != nil {
			return fmt.Errorf("validating target source: %w", err)
		}
	}
	return nil
}
