package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mediapool/internal/config"
	"mediapool/internal/services"
)

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "mediapool.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func minimalConfig(t *testing.T) map[string]any {
	t.Helper()
	base := t.TempDir()
	return map[string]any{
		"paths": map[string]any{
			"media_pool_root": filepath.Join(base, "MEDIA_POOL"),
			"proxy_pool_root": filepath.Join(base, "PROXY_POOL"),
			"dailies_roll":    filepath.Join(base, "card"),
			"log_dir":         filepath.Join(base, "logs"),
		},
		"users": map[string]any{
			"keymap":     map[string]any{"A": " ALICE "},
			"dest_roots": map[string]any{"ALICE": filepath.Join(base, "backup")},
		},
	}
}

func TestLoadExpandsAndNormalizes(t *testing.T) {
	path := writeConfig(t, minimalConfig(t))

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, path)
	}
	if !filepath.IsAbs(cfg.Paths.MediaPoolRoot) {
		t.Fatalf("expected absolute media pool root, got %q", cfg.Paths.MediaPoolRoot)
	}
	if name, ok := cfg.UserForKey("a"); !ok || name != "ALICE" {
		t.Fatalf("expected lowercased keymap entry, got %q %v", name, ok)
	}
	if got := cfg.UserNames(); len(got) != 1 || got[0] != "ALICE" {
		t.Fatalf("unexpected user names: %v", got)
	}
	if cfg.Sync.Policy != config.PolicyPrompt {
		t.Fatalf("expected default policy, got %q", cfg.Sync.Policy)
	}
	if len(cfg.Sync.BacksyncGlobs) != 2 || cfg.Sync.BacksyncGlobs[0] != "*.mp4" {
		t.Fatalf("unexpected back-sync globs: %v", cfg.Sync.BacksyncGlobs)
	}
	if cfg.RsyncBinary() == "" {
		t.Fatal("expected rsync binary to be selected")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.LogDir); err != nil || !info.IsDir() {
		t.Fatalf("expected log dir to exist: %v", err)
	}
}

func TestLoadMissingPoolRoot(t *testing.T) {
	raw := minimalConfig(t)
	paths := raw["paths"].(map[string]any)
	delete(paths, "media_pool_root")
	path := writeConfig(t, raw)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing media pool root")
	}
	if !errors.Is(err, services.ErrConfigMissing) {
		t.Fatalf("expected config-missing marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "paths.media_pool_root") {
		t.Fatalf("expected key name in error, got %v", err)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	raw := minimalConfig(t)
	raw["sync"] = map[string]any{"policy": "sometimes"}
	path := writeConfig(t, raw)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestLoadRsyncFlagHandling(t *testing.T) {
	path := writeConfig(t, minimalConfig(t))
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Sync.Rsync.Flags != nil {
		t.Fatalf("expected omitted flags to stay unset, got %v", cfg.Sync.Rsync.Flags)
	}

	raw := minimalConfig(t)
	raw["sync"] = map[string]any{"rsync": map[string]any{"flags": []string{}}}
	cfg, _, _, err = config.Load(writeConfig(t, raw))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Sync.Rsync.Flags) != 2 || cfg.Sync.Rsync.Flags[0] != "-r" || cfg.Sync.Rsync.Flags[1] != "--progress" {
		t.Fatalf("expected minimal flag set for an empty list, got %v", cfg.Sync.Rsync.Flags)
	}

	raw = minimalConfig(t)
	raw["sync"] = map[string]any{"rsync": map[string]any{"flags": []string{" -a ", ""}}}
	cfg, _, _, err = config.Load(writeConfig(t, raw))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Sync.Rsync.Flags) != 1 || cfg.Sync.Rsync.Flags[0] != "-a" {
		t.Fatalf("expected trimmed configured flags, got %v", cfg.Sync.Rsync.Flags)
	}
}

func TestDestinationRoots(t *testing.T) {
	path := writeConfig(t, minimalConfig(t))
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	media, proxy, err := cfg.DestinationRoots("ALICE")
	if err != nil {
		t.Fatalf("DestinationRoots returned error: %v", err)
	}
	if filepath.Base(media) != "MEDIA_POOL" {
		t.Fatalf("unexpected media destination: %q", media)
	}
	if filepath.Base(proxy) != "PROXY_POOL" {
		t.Fatalf("unexpected proxy destination: %q", proxy)
	}

	if _, _, err := cfg.DestinationRoots("NOBODY"); !errors.Is(err, services.ErrConfigMissing) {
		t.Fatalf("expected config-missing marker for unknown user, got %v", err)
	}
}

func TestJournalPathDefaultsUnderLogDir(t *testing.T) {
	path := writeConfig(t, minimalConfig(t))
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := filepath.Join(cfg.Paths.LogDir, "journal.db")
	if cfg.JournalPath() != want {
		t.Fatalf("unexpected journal path: got %q want %q", cfg.JournalPath(), want)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "media_pool_root") {
		t.Fatalf("sample config missing pool root key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if len(cfg.Users.Keymap) == 0 {
		t.Fatal("expected sample keymap entries")
	}
}
