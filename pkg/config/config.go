package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override config keys,
// e.g. GHSYNC_SYNC_DELETE_MODE.
const EnvPrefix = "GHSYNC"

// Config represents the ghsync configuration
type Config struct {
	GitHub GitHubConfig `yaml:"github" mapstructure:"github"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
}

// GitHubConfig represents the API connection settings
type GitHubConfig struct {
	Token   string `yaml:"token,omitempty" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Accept  string `yaml:"accept" mapstructure:"accept"`
}

// SyncConfig holds the defaults of the sync commands
type SyncConfig struct {
	DeleteMode     string `yaml:"delete_mode" mapstructure:"delete_mode"`
	MilestoneState string `yaml:"milestone_state" mapstructure:"milestone_state"`
	AutoClose      bool   `yaml:"auto_close" mapstructure:"auto_close"`
	OverdueLabel   string `yaml:"overdue_label" mapstructure:"overdue_label"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com/",
			Accept:  "application/vnd.github+json",
		},
		Sync: SyncConfig{
			DeleteMode:     "off",
			MilestoneState: "open",
			AutoClose:      false,
			OverdueLabel:   "Overdue",
		},
	}
}

// LoadConfig loads configuration from the default location
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadConfigFromPath(configPath)
}

// LoadConfigFromPath loads configuration from a specific path. A missing file
// yields the defaults, still overridable from the environment.
func LoadConfigFromPath(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &config, nil
}

func newViper() *viper.Viper {
	defaults := DefaultConfig()

	v := viper.New()
	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", defaults.GitHub.BaseURL)
	v.SetDefault("github.accept", defaults.GitHub.Accept)
	v.SetDefault("sync.delete_mode", defaults.Sync.DeleteMode)
	v.SetDefault("sync.milestone_state", defaults.Sync.MilestoneState)
	v.SetDefault("sync.auto_close", defaults.Sync.AutoClose)
	v.SetDefault("sync.overdue_label", defaults.Sync.OverdueLabel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SaveConfig saves configuration to the default location
func (c *Config) SaveConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveConfigToPath(configPath)
}

// SaveConfigToPath saves configuration to a specific path
func (c *Config) SaveConfigToPath(path string) error {
	// Create config directory if it doesn't exist
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold a token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".ghsync", "config.yaml"), nil
}

// DisplayPath returns the config path for use in messages
func DisplayPath() string {
	return filepath.Join("~", ".ghsync", "config.yaml")
}

// ErrInvalidDeleteMode is returned for an unrecognized delete mode
var ErrInvalidDeleteMode = errors.New("must be one of off, force, prune")

// NormalizeDeleteMode maps the accepted spellings of a delete mode, as used by
// both --delete and sync.delete_mode, to off, force or prune. Empty means off.
func NormalizeDeleteMode(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "off", "false", "none":
		return "off", nil
	case "force", "true", "delete":
		return "force", nil
	case "prune":
		return "prune", nil
	default:
		return "", ErrInvalidDeleteMode
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GitHub.BaseURL != "" {
		u, err := url.Parse(c.GitHub.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("github.base_url must be an absolute URL, got %q", c.GitHub.BaseURL)
		}
	}

	if _, err := NormalizeDeleteMode(c.Sync.DeleteMode); err != nil {
		return fmt.Errorf("sync.delete_mode %w, got %q", err, c.Sync.DeleteMode)
	}

	switch c.Sync.MilestoneState {
	case "", "open", "closed", "all":
	default:
		return fmt.Errorf("sync.milestone_state must be one of open, closed, all, got %q", c.Sync.MilestoneState)
	}

	if strings.TrimSpace(c.Sync.OverdueLabel) == "" {
		return fmt.Errorf("sync.overdue_label cannot be empty")
	}

	return nil
}
