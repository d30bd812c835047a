package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mediapool/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Two users are wired in: ALICE (key "a") with a destination drive, NOAH
// (key "n") without one.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.MediaPoolRoot = filepath.Join(base, "MEDIA_POOL")
	cfgVal.Paths.ProxyPoolRoot = filepath.Join(base, "PROXY_POOL")
	cfgVal.Paths.DailiesRoll = filepath.Join(base, "card")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Users.Keymap = map[string]string{"a": "ALICE", "n": "NOAH"}
	cfgVal.Users.DestRoots = map[string]string{"ALICE": filepath.Join(base, "ALICE_T7")}
	cfgVal.Users.RequestURLs = map[string]string{"ALICE": "https://files.example.com/request/alice"}
	cfgVal.Sync.Rsync.Binary = "rsync"
	cfgVal.Sync.Rsync.Flags = []string{"-a"}
	cfgVal.Journal.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPolicy sets the back-sync prompt policy on the test config.
func WithPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.Policy = policy
	}
}

// WithJournal enables the sqlite run journal under the test log dir.
func WithJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, rsync is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"rsync"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.MediaPoolRoot)
}
