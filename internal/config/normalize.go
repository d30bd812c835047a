package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeUsers(); err != nil {
		return err
	}
	if err := c.normalizeSync(); err != nil {
		return err
	}
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MediaPoolRoot, err = expandPath(c.Paths.MediaPoolRoot); err != nil {
		return fmt.Errorf("paths.media_pool_root: %w", err)
	}
	if c.Paths.ProxyPoolRoot, err = expandPath(c.Paths.ProxyPoolRoot); err != nil {
		return fmt.Errorf("paths.proxy_pool_root: %w", err)
	}
	if c.Paths.DailiesRoll, err = expandPath(c.Paths.DailiesRoll); err != nil {
		return fmt.Errorf("paths.dailies_roll: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeUsers() error {
	keymap := make(map[string]string, len(c.Users.Keymap))
	for key, name := range c.Users.Keymap {
		key = strings.ToLower(strings.TrimSpace(key))
		name = strings.TrimSpace(name)
		if key == "" || name == "" {
			continue
		}
		keymap[key] = name
	}
	c.Users.Keymap = keymap

	roots := make(map[string]string, len(c.Users.DestRoots))
	for name, root := range c.Users.DestRoots {
		name = strings.TrimSpace(name)
		root = strings.TrimSpace(root)
		if name == "" || root == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("users.dest_roots[%s]: %w", name, err)
		}
		roots[name] = expanded
	}
	c.Users.DestRoots = roots

	urls := make(map[string]string, len(c.Users.RequestURLs))
	for name, url := range c.Users.RequestURLs {
		name = strings.TrimSpace(name)
		url = strings.TrimSpace(url)
		if name == "" || url == "" {
			continue
		}
		urls[name] = url
	}
	c.Users.RequestURLs = urls
	return nil
}

func (c *Config) normalizeSync() error {
	excludes := make([]string, 0, len(c.Sync.Excludes))
	for _, pattern := range c.Sync.Excludes {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			excludes = append(excludes, pattern)
		}
	}
	c.Sync.Excludes = excludes

	globs := make([]string, 0, len(c.Sync.BacksyncGlobs))
	for _, glob := range c.Sync.BacksyncGlobs {
		if glob = strings.TrimSpace(glob); glob != "" {
			globs = append(globs, glob)
		}
	}
	if len(globs) == 0 {
		globs = defaultBacksyncGlobs()
	}
	c.Sync.BacksyncGlobs = globs

	if strings.TrimSpace(c.Sync.ReportDirName) == "" {
		c.Sync.ReportDirName = defaultReportDirName
	}

	c.Sync.Policy = strings.ToLower(strings.TrimSpace(c.Sync.Policy))
	if c.Sync.Policy == "" {
		c.Sync.Policy = defaultPolicy
	}

	c.Sync.Rsync.Binary = strings.TrimSpace(c.Sync.Rsync.Binary)
	if c.Sync.Rsync.Binary == "" {
		c.Sync.Rsync.Binary = pickRsyncBinary()
	}

	// flags = [] asks for the bare minimum; an omitted key defers to the
	// version-derived defaults.
	if c.Sync.Rsync.Flags != nil {
		flags := make([]string, 0, len(c.Sync.Rsync.Flags))
		for _, flag := range c.Sync.Rsync.Flags {
			if flag = strings.TrimSpace(flag); flag != "" {
				flags = append(flags, flag)
			}
		}
		if len(flags) == 0 {
			flags = minimalRsyncFlags()
		}
		c.Sync.Rsync.Flags = flags
	}
	return nil
}

// pickRsyncBinary prefers the Homebrew rsync 3.x when present; the stock macOS
// rsync is 2.6.9 and needs the legacy flag set.
func pickRsyncBinary() string {
	const brewRsync = "/opt/homebrew/bin/rsync"
	if info, err := os.Stat(brewRsync); err == nil && !info.IsDir() {
		return brewRsync
	}
	return "rsync"
}

func (c *Config) normalizeJournal() error {
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = ""
		return nil
	}
	expanded, err := expandPath(c.Journal.Path)
	if err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	c.Journal.Path = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
