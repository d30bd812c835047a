package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir     string
	configPath  string
	mediaRoot   string
	proxyRoot   string
	cardDir     string
	destRoot    string
	logDir      string
	journalPath string
	rsyncStub   string
}

// rsyncExit0 is the default mirroring stub: every invocation succeeds and
// prints nothing, so dry runs report no destination-only files.
const rsyncExit0 = "exit 0\n"

// rsyncOneMissing reports one destination-only mp4 on dry runs and succeeds
// silently otherwise. Dry-run invocations lead with -an.
const rsyncOneMissing = `if [ "$1" = "-an" ]; then
    echo ">f+++++++ clip.mp4"
fi
exit 0
`

func setupCLIEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:     base,
		configPath:  filepath.Join(base, "config.toml"),
		mediaRoot:   filepath.Join(base, "MEDIA_POOL"),
		proxyRoot:   filepath.Join(base, "PROXY_POOL"),
		cardDir:     filepath.Join(base, "card"),
		destRoot:    filepath.Join(base, "lacie"),
		logDir:      filepath.Join(base, "logs"),
		journalPath: filepath.Join(base, "logs", "journal.db"),
		rsyncStub:   filepath.Join(base, "rsync-stub"),
	}
	for _, dir := range []string{env.mediaRoot, env.proxyRoot, env.cardDir, env.destRoot, env.logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	env.stubRsync(t, rsyncExit0)
	writeTestConfig(t, env)
	return env
}

// stubRsync replaces the fake rsync binary the test config points at.
func (env *cliTestEnv) stubRsync(t *testing.T, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(env.rsyncStub, []byte(script), 0o755); err != nil {
		t.Fatalf("write rsync stub: %v", err)
	}
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
media_pool_root = %q
proxy_pool_root = %q
dailies_roll = %q
log_dir = %q

[users.keymap]
a = "alice"
n = "noah"

[users.dest_roots]
alice = %q

[users.request_urls]
alice = "https://files.example.com/request/alice"

[sync]
policy = "never"

[sync.rsync]
binary = %q

[journal]
enabled = true
path = %q
`,
		env.mediaRoot, env.proxyRoot, env.cardDir, env.logDir,
		env.destRoot, env.rsyncStub, env.journalPath)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// rewriteConfig swaps a literal snippet inside the test config, for flipping
// settings the env helper writes with fixed values.
func rewriteConfig(t *testing.T, env *cliTestEnv, old, replacement string) {
	t.Helper()
	raw, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), old) {
		t.Fatalf("config does not contain %q", old)
	}
	updated := strings.Replace(string(raw), old, replacement, 1)
	if err := os.WriteFile(env.configPath, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
}

// runCLI executes the root command against the given config. A non-empty
// input string becomes the command's stdin, which the prompter treats as an
// interactive session; without one, commands run in scripted mode.
func runCLI(t *testing.T, args []string, configPath, input string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if input != "" {
		cmd.SetIn(strings.NewReader(input))
	}
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func seedFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q to not contain %q", output, substr)
	}
}
