package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"mediapool/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains pool root and directory configuration.
type Paths struct {
	MediaPoolRoot string `toml:"media_pool_root"`
	ProxyPoolRoot string `toml:"proxy_pool_root"`
	DailiesRoll   string `toml:"dailies_roll"`
	LogDir        string `toml:"log_dir"`
}

// Users maps selection letters to pool user names and user names to their
// destination drives.
type Users struct {
	Keymap      map[string]string `toml:"keymap"`
	DestRoots   map[string]string `toml:"dest_roots"`
	RequestURLs map[string]string `toml:"request_urls"`
}

// Rsync contains mirroring tool configuration. An empty flag list selects a
// version-appropriate default set at probe time.
type Rsync struct {
	Binary string   `toml:"binary"`
	Flags  []string `toml:"flags"`
}

// Sync contains synchronization behaviour configuration.
type Sync struct {
	Excludes      []string `toml:"excludes"`
	BacksyncGlobs []string `toml:"backsync_globs"`
	ReportDirName string   `toml:"report_dir_name"`
	Policy        string   `toml:"policy"`
	Rsync         Rsync    `toml:"rsync"`
}

// Journal contains run history store configuration.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediapool.
//
// Configuration sections by subsystem:
//   - Paths: media/proxy pool roots, the dailies card path, and the log dir
//   - Users: selection keymap, per-user destination roots, file request URLs
//   - Sync: exclude patterns, back-sync globs, report layout, prompt policy,
//     and rsync invocation settings
//   - Journal: sqlite run history location
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Users   Users   `toml:"users"`
	Sync    Sync    `toml:"sync"`
	Journal Journal `toml:"journal"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediapool/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
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
		_, err = os.Stat(expanded)
		if err != nil {
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

	projectPath, err := filepath.Abs("mediapool.toml")
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

// EnsureDirectories creates the local directories mediapool writes to. Pool
// roots live on external volumes and are never created here.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if c.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.JournalPath()), 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", filepath.Dir(c.JournalPath()), err)
		}
	}
	return nil
}

// UserNames returns the configured pool user names, sorted.
func (c *Config) UserNames() []string {
	seen := make(map[string]struct{}, len(c.Users.Keymap))
	names := make([]string, 0, len(c.Users.Keymap))
	for _, name := range c.Users.Keymap {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UserForKey resolves a selection letter to a pool user name.
func (c *Config) UserForKey(key string) (string, bool) {
	name, ok := c.Users.Keymap[strings.ToLower(strings.TrimSpace(key))]
	return name, ok
}

// DestinationRoots returns the media and proxy pool roots on the user's
// destination drive.
func (c *Config) DestinationRoots(name string) (string, string, error) {
	root, ok := c.Users.DestRoots[name]
	if !ok || strings.TrimSpace(root) == "" {
		return "", "", services.Wrap(services.ErrConfigMissing, "config", "destination",
			fmt.Sprintf("users.dest_roots has no entry for %q", name), nil)
	}
	return filepath.Join(root, "MEDIA_POOL"), filepath.Join(root, "PROXY_POOL"), nil
}

// RequestURL returns the configured file request URL for a user, if any.
func (c *Config) RequestURL(name string) (string, bool) {
	url, ok := c.Users.RequestURLs[name]
	return url, ok && strings.TrimSpace(url) != ""
}

// MediaPoolUser returns the user's directory inside the media pool.
func (c *Config) MediaPoolUser(name string) string {
	return filepath.Join(c.Paths.MediaPoolRoot, name)
}

// ProxyPoolUser returns the user's directory inside the proxy pool.
func (c *Config) ProxyPoolUser(name string) string {
	return filepath.Join(c.Paths.ProxyPoolRoot, name)
}

// SentDir returns the user's sent bucket namespace inside the proxy pool.
func (c *Config) SentDir(name string) string {
	return filepath.Join(c.ProxyPoolUser(name), "_sent")
}

// ReportsDir returns the report directory under the given root.
func (c *Config) ReportsDir(root string) string {
	return filepath.Join(root, c.Sync.ReportDirName)
}

// JournalPath returns the sqlite journal location.
func (c *Config) JournalPath() string {
	if strings.TrimSpace(c.Journal.Path) != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Paths.LogDir, "journal.db")
}

// RsyncBinary returns the mirroring tool executable.
func (c *Config) RsyncBinary() string {
	return c.Sync.Rsync.Binary
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
