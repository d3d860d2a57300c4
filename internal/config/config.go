package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Discovery contains scanner timing configuration.
type Discovery struct {
	// WiredPollInterval is the wired serial-port scan interval in seconds.
	WiredPollInterval int `toml:"wired_poll_interval"`
	// NetlinkEvents enables the udev netlink accelerator for immediate
	// attach detection between poll cycles.
	NetlinkEvents bool `toml:"netlink_events"`
}

// Mesh contains wireless coordinator configuration.
type Mesh struct {
	// PollInterval is the coordinator attach-poll interval in seconds.
	PollInterval int `toml:"poll_interval"`
	// RediscoverInterval is the periodic network rediscovery interval in
	// seconds while a coordinator is open.
	RediscoverInterval int `toml:"rediscover_interval"`
	// DiscoveryTimeout bounds a single network discovery pass in seconds.
	DiscoveryTimeout int `toml:"discovery_timeout"`
}

// Modules contains module subprocess configuration.
type Modules struct {
	// EntryPoints maps module ids to the executable launched for that module.
	EntryPoints map[string]string `toml:"entry_points"`
	// QuitGraceSeconds is how long to wait after a quit command before
	// escalating to SIGTERM.
	QuitGraceSeconds int `toml:"quit_grace_seconds"`
	// TermGraceSeconds is how long to wait after SIGTERM before SIGKILL.
	TermGraceSeconds int `toml:"term_grace_seconds"`
	// LogLevel is passed to module subprocesses.
	LogLevel string `toml:"log_level"`
}

// Journal contains event journal configuration.
type Journal struct {
	// RetainEvents caps the number of journal rows kept after pruning.
	RetainEvents int `toml:"retain_events"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for conductor.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Discovery Discovery `toml:"discovery"`
	Mesh      Mesh      `toml:"mesh"`
	Modules   Modules   `toml:"modules"`
	Journal   Journal   `toml:"journal"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conductor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found on disk.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("conductor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	for id, entry := range c.Modules.EntryPoints {
		expanded, expandErr := expandPath(entry)
		if expandErr != nil {
			return expandErr
		}
		c.Modules.EntryPoints[id] = expanded
	}
	return nil
}

// Validate reports configuration values that cannot produce a working daemon.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("config: paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("config: paths.log_dir is required")
	}
	if c.Discovery.WiredPollInterval <= 0 {
		return fmt.Errorf("config: discovery.wired_poll_interval must be positive, got %d", c.Discovery.WiredPollInterval)
	}
	if c.Mesh.PollInterval <= 0 {
		return fmt.Errorf("config: mesh.poll_interval must be positive, got %d", c.Mesh.PollInterval)
	}
	if c.Mesh.RediscoverInterval <= 0 {
		return fmt.Errorf("config: mesh.rediscover_interval must be positive, got %d", c.Mesh.RediscoverInterval)
	}
	if c.Modules.QuitGraceSeconds <= 0 {
		return fmt.Errorf("config: modules.quit_grace_seconds must be positive, got %d", c.Modules.QuitGraceSeconds)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the unix socket path used by the IPC server.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "conductor.sock")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "conductord.lock")
}

// JournalPath returns the sqlite event journal path.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.DataDir, "journal.db")
}

// RestorePath returns the one-shot restore state file path.
func (c *Config) RestorePath() string {
	return filepath.Join(c.Paths.DataDir, "restore.json")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample config to path, refusing to overwrite.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
