package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var volumePrefixes = []string{"/Volumes/", "/media/", "/run/media/", "/mnt/"}

// VolumeScoped reports whether path lives under a removable-volume prefix and
// therefore needs a mount check before any write.
func VolumeScoped(path string) bool {
	path = filepath.Clean(path)
	for _, prefix := range volumePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Mounted reports whether the volume backing path is actually mounted. Paths
// outside the removable-volume prefixes always count as mounted. For
// volume-scoped paths the nearest existing ancestor must sit on a different
// device than the root filesystem, otherwise a write would land on the system
// disk inside an empty mount point directory.
func Mounted(path string) (bool, error) {
	if !VolumeScoped(path) {
		return true, nil
	}
	rootDev, err := deviceOf("/")
	if err != nil {
		return false, err
	}
	ancestor, err := NearestExisting(path)
	if err != nil {
		return false, err
	}
	dev, err := deviceOf(ancestor)
	if err != nil {
		return false, err
	}
	return dev != rootDev, nil
}

// NearestExisting walks up from path to the closest ancestor that exists.
func NearestExisting(path string) (string, error) {
	current := filepath.Clean(path)
	for {
		_, err := os.Stat(current)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current, nil
		}
		current = parent
	}
}

func deviceOf(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}
