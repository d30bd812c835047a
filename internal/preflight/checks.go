package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"mediapool/internal/config"
	"mediapool/internal/deps"
	"mediapool/internal/fileutil"
	"mediapool/internal/journal"
	"mediapool/internal/services/rsync"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckVolume verifies the path's volume is mounted before checking directory
// access, so an unplugged pool drive reads as "not mounted" rather than
// "does not exist".
func CheckVolume(name, path string) Result {
	mounted, err := fileutil.Mounted(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: mount check: %v)", path, err)}
	}
	if !mounted {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: volume not mounted)", path)}
	}
	return CheckDirectoryAccess(name, path)
}

// CheckJournal verifies the run journal opens, which exercises the sqlite
// file, its directory and the schema migrations in one step.
func CheckJournal(cfg *config.Config) Result {
	const name = "Run journal"
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.JournalPath(), err)}
	}
	_ = store.Close()
	return Result{Name: name, Passed: true, Detail: cfg.JournalPath()}
}

// CheckRsync verifies the mirroring binary resolves and probes its version to
// report which flag set transfers will use.
func CheckRsync(ctx context.Context, cfg *config.Config) Result {
	const name = "rsync"
	binary := strings.TrimSpace(cfg.RsyncBinary())
	if binary == "" {
		return Result{Name: name, Detail: "binary not configured"}
	}
	if _, err := exec.LookPath(binary); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", binary)}
	}
	client, err := rsync.New(binary, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	version := client.Version(ctx)
	set := "legacy"
	if client.Modern(ctx) {
		set = "modern"
	}
	return Result{Name: name, Passed: true,
		Detail: fmt.Sprintf("%s %d.%d (%s flag set)", binary, version.Major(), version.Minor(), set)}
}

// CheckSystemDeps evaluates the external tools mediapool shells out to. The
// doctor command and sync preconditions share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "rsync",
			Command:     cfg.RsyncBinary(),
			Description: "Required for pool mirroring and back-sync",
		},
		{
			Name:        "lsblk",
			Command:     "lsblk",
			Description: "Describes inserted card partitions",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(requirements)
}
