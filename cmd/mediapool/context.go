package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediapool/internal/config"
	"mediapool/internal/journal"
	"mediapool/internal/logging"
	"mediapool/internal/services/rsync"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the shared component logger. Command output stays on stdout;
// structured logs go to mediapool.log inside the configured log directory.
func (c *commandContext) logger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logPath := filepath.Join(cfg.Paths.LogDir, "mediapool.log")
		logger, err := logging.New(logging.Options{
			Level:            cfg.Logging.Level,
			Format:           cfg.Logging.Format,
			OutputPaths:      []string{logPath},
			ErrorOutputPaths: []string{logPath},
		})
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.log = logger
	})
	return c.log, c.loggerErr
}

// openJournal opens the run journal when enabled. Journal trouble never blocks
// pool work; the caller gets nil and a stderr warning instead.
func (c *commandContext) openJournal(errOut io.Writer) *journal.Store {
	cfg, err := c.ensureConfig()
	if err != nil || !cfg.Journal.Enabled {
		return nil
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		fmt.Fprintf(errOut, "warn: run journal unavailable: %v\n", err)
		return nil
	}
	return store
}

func (c *commandContext) rsyncClient() (*rsync.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return rsync.New(cfg.RsyncBinary(), cfg.Sync.Rsync.Flags)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
