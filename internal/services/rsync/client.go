package rsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"mediapool/internal/services"
)

var (
	versionPattern = regexp.MustCompile(`version\s+(\d+)\.(\d+)`)

	// fallbackVersion is assumed when the probe fails, matching the stock
	// macOS rsync, the oldest binary still seen in the field.
	fallbackVersion = semver.MustParse("2.6.0")

	// modernVersion is the first release that understands the rsync 3 flag
	// set (--append-verify, --info=progress2, --protect-args).
	modernVersion = semver.MustParse("3.0.0")
)

// noisyFlags are stripped from dry runs whose output gets parsed.
var noisyFlags = map[string]struct{}{
	"--progress":       {},
	"--info=progress2": {},
	"-v":               {},
	"--verbose":        {},
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps rsync CLI interactions.
type Client struct {
	binary string
	flags  []string
	exec   Executor

	mu      sync.Mutex
	version *semver.Version
}

// New constructs an rsync client. Configured flags override the
// version-derived defaults entirely; pass none to auto-select.
func New(binary string, flags []string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("rsync binary required")
	}
	client := &Client{
		binary: binary,
		flags:  append([]string(nil), flags...),
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the rsync binary path in use.
func (c *Client) Binary() string {
	return c.binary
}

// Version probes `rsync --version` once and caches the result. Unreadable
// output falls back to 2.6.
func (c *Client) Version(ctx context.Context) *semver.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != nil {
		return c.version
	}
	var buf strings.Builder
	err := c.exec.Run(ctx, c.binary, []string{"--version"}, func(line string) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	})
	version := fallbackVersion
	if err == nil {
		if m := versionPattern.FindStringSubmatch(buf.String()); m != nil {
			if parsed, perr := semver.NewVersion(m[1] + "." + m[2] + ".0"); perr == nil {
				version = parsed
			}
		}
	}
	c.version = version
	return version
}

// Modern reports whether the binary supports the rsync 3 flag set.
func (c *Client) Modern(ctx context.Context) bool {
	return c.Version(ctx).Compare(modernVersion) >= 0
}

// DefaultFlags returns the transfer flag set for an rsync generation. Modern
// builds get archive mode with ACLs, xattrs and resumable appends; legacy
// builds get the closest spelling rsync 2.6 accepts.
func DefaultFlags(modern bool) []string {
	if modern {
		return []string{"-a", "-AX", "--partial", "--append-verify", "--human-readable", "--info=progress2", "--protect-args"}
	}
	return []string{"-r", "-E", "--extended-attributes", "--partial", "--append", "--human-readable", "--progress"}
}

// Flags returns the configured transfer flags, or version-appropriate
// defaults when none were configured.
func (c *Client) Flags(ctx context.Context) []string {
	if len(c.flags) > 0 {
		return append([]string(nil), c.flags...)
	}
	return DefaultFlags(c.Modern(ctx))
}

// Mirror copies src into dst additively. Output lines stream to onLine; a
// nonzero exit comes back as a recoverable tool error since partial mirrors
// are simply rerun.
func (c *Client) Mirror(ctx context.Context, src, dst, excludesFile string, onLine func(string)) error {
	args := append([]string(nil), c.Flags(ctx)...)
	args = append(args, "--exclude-from", excludesFile, slashed(src), slashed(dst))
	if err := c.exec.Run(ctx, c.binary, args, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, "rsync", "mirror",
			fmt.Sprintf("mirror %s to %s", src, dst), err)
	}
	return nil
}

// ListMissing dry-runs a transfer and reports what would be copied from one
// pool to the other. Traversal descends every directory but only the given
// globs match, so the result is the glob-filtered set absent on the target.
func (c *Client) ListMissing(ctx context.Context, from, to, excludesFile string, globs []string) ([]Change, error) {
	args := []string{"-an", "-i", "--ignore-existing", "--prune-empty-dirs", "--out-format=%i %n", "--exclude-from", excludesFile}
	args = append(args, includeArgs(globs)...)
	args = append(args, cleanFlags(c.Flags(ctx))...)
	args = append(args, slashed(from), slashed(to))

	var changes []Change
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		if ch, ok := ParseItemized(line); ok {
			changes = append(changes, ch)
		}
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "rsync", "list-missing",
			fmt.Sprintf("dry-run %s to %s", from, to), err)
	}
	return changes, nil
}

// CopyMissing back-fills glob-matched files absent on the target. Existing
// files are never touched; this is the write half of ListMissing.
func (c *Client) CopyMissing(ctx context.Context, from, to, excludesFile string, globs []string, onLine func(string)) error {
	args := append([]string(nil), c.Flags(ctx)...)
	args = append(args, "--ignore-existing", "--exclude-from", excludesFile)
	args = append(args, includeArgs(globs)...)
	args = append(args, slashed(from), slashed(to))
	if err := c.exec.Run(ctx, c.binary, args, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, "rsync", "copy-missing",
			fmt.Sprintf("back-fill %s to %s", from, to), err)
	}
	return nil
}

// Archive copies src's contents into dst with a plain `-a` run, independent
// of the configured mirror flags. The packager uses this for whole-directory
// transfers where the pool flag set would be wrong.
func (c *Client) Archive(ctx context.Context, src, dst string, onLine func(string)) error {
	args := []string{"-a", slashed(src), slashed(dst)}
	if err := c.exec.Run(ctx, c.binary, args, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, "rsync", "archive",
			fmt.Sprintf("archive %s to %s", src, dst), err)
	}
	return nil
}

// WriteExcludesFile writes one pattern per line to a temp file suitable for
// --exclude-from. The caller removes it with the returned cleanup.
func WriteExcludesFile(patterns []string) (string, func(), error) {
	f, err := os.CreateTemp("", "mediapool-excludes-*")
	if err != nil {
		return "", nil, err
	}
	for _, pat := range patterns {
		if _, werr := fmt.Fprintln(f, pat); werr != nil {
			f.Close()
			os.Remove(f.Name())
			return "", nil, werr
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func cleanFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if _, noisy := noisyFlags[f]; noisy {
			continue
		}
		out = append(out, f)
	}
	return out
}

// includeArgs builds the include chain for glob-filtered transfers: descend
// all directories, match the globs, drop everything else.
func includeArgs(globs []string) []string {
	args := []string{"--include", "*/"}
	for _, g := range globs {
		args = append(args, "--include", g)
	}
	return append(args, "--exclude", "*")
}

// slashed appends the trailing slash rsync needs to transfer a directory's
// contents rather than the directory itself.
func slashed(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}
