package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.configPath, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.configPath, "")
	if err == nil {
		t.Fatal("expected error when config already exists")
	}
	requireContains(t, err.Error(), "--overwrite")
}

func TestConfigValidateRejectsBadPolicy(t *testing.T) {
	env := setupCLIEnv(t)
	rewriteConfig(t, env, `policy = "never"`, `policy = "sometimes"`)

	_, _, err := runCLI(t, []string{"config", "validate"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected validation error for bad policy")
	}
	requireContains(t, err.Error(), "sync.policy")
}

func TestConfigShow(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "Media pool root: "+env.mediaRoot)
	requireContains(t, out, "Back-sync policy: never")
	requireContains(t, out, "Journal enabled: yes")
	requireContains(t, out, "alice")
	requireContains(t, out, "noah")
	requireContains(t, out, "https://files.example.com/request/alice")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "", "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "mediapool dev (none)")
}
