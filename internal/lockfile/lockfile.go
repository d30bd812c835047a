// Package lockfile guards pool roots with sentinel lock files. The sentinel
// works on any filesystem two machines can both mount, which flock-style
// advisory locks do not guarantee on network shares.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mediapool/internal/services"
)

// Name is the sentinel file kept at the root of a locked pool.
const Name = ".sync.lock"

// Lock is a held sentinel.
type Lock struct {
	path     string
	released bool
}

// Holder describes the process recorded inside a sentinel file.
type Holder struct {
	PID        int
	AcquiredAt time.Time
}

// Path returns the lock file location for a pool root.
func Path(root string) string {
	return filepath.Join(root, Name)
}

// Acquire creates the sentinel under root. Creation is a single O_EXCL open,
// so two concurrent callers can never both succeed. When the sentinel already
// exists the error carries the recorded holder.
func Acquire(root string) (*Lock, error) {
	path := Path(root)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			msg := fmt.Sprintf("pool %s is locked", root)
			if holder, ok := ReadHolder(root); ok {
				msg = fmt.Sprintf("pool %s is locked by pid %d since %s",
					root, holder.PID, holder.AcquiredAt.Format(time.RFC3339))
			}
			return nil, services.Wrap(services.ErrLockHeld, "lockfile", "acquire", msg, nil)
		}
		return nil, services.Wrap(nil, "lockfile", "acquire",
			fmt.Sprintf("create lock at %s", path), err)
	}
	_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		if werr == nil {
			werr = cerr
		}
		return nil, services.Wrap(nil, "lockfile", "acquire",
			fmt.Sprintf("write lock at %s", path), werr)
	}
	return &Lock{path: path}, nil
}

// Release removes the sentinel. Releasing twice, or after someone cleaned the
// file up manually, is not an error.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return services.Wrap(nil, "lockfile", "release",
			fmt.Sprintf("remove lock at %s", l.path), err)
	}
	return nil
}

// Path returns the sentinel file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// ReadHolder parses the sentinel under root. The second result is false when
// the file is absent or unreadable.
func ReadHolder(root string) (Holder, bool) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		return Holder{}, false
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return Holder{}, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Holder{}, false
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
	if err != nil {
		return Holder{}, false
	}
	return Holder{PID: pid, AcquiredAt: at}, true
}

// Batch holds sentinels over several pool roots at once.
type Batch struct {
	locks []*Lock
}

// AcquireAll locks every root, deduplicated and in sorted order so that two
// runs contending for overlapping pools always collide instead of
// deadlocking. On any failure the locks taken so far are released in reverse
// order and the failure is returned.
func AcquireAll(roots []string) (*Batch, error) {
	uniq := make([]string, 0, len(roots))
	seen := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		uniq = append(uniq, root)
	}
	sort.Strings(uniq)

	batch := &Batch{}
	for _, root := range uniq {
		lock, err := Acquire(root)
		if err != nil {
			batch.Release()
			return nil, err
		}
		batch.locks = append(batch.locks, lock)
	}
	return batch, nil
}

// Roots returns the locked pool roots in acquisition order.
func (b *Batch) Roots() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.locks))
	for _, l := range b.locks {
		out = append(out, filepath.Dir(l.path))
	}
	return out
}

// Release drops every sentinel in reverse acquisition order. All locks are
// attempted; the first error wins.
func (b *Batch) Release() error {
	if b == nil {
		return nil
	}
	var first error
	for i := len(b.locks) - 1; i >= 0; i-- {
		if err := b.locks[i].Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
