package mediaindex

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Key identifies a file by weak (name, size) identity. Two files with the same
// base name and byte size count as the same content everywhere in the pool.
type Key struct {
	Name string
	Size int64
}

// Record describes one indexed file instance.
type Record struct {
	Path    string // absolute path
	Rel     string // path relative to the scanned root
	Name    string
	Size    int64
	ModTime time.Time
}

// Key returns the weak identity key for the record.
func (r Record) Key() Key {
	return Key{Name: r.Name, Size: r.Size}
}

// Index maps weak identity keys to every known instance, in discovery order.
type Index map[Key][]Record

// Add registers a record under its key.
func (idx Index) Add(rec Record) {
	key := rec.Key()
	idx[key] = append(idx[key], rec)
}

// Lookup returns all instances sharing the key, or nil.
func (idx Index) Lookup(key Key) []Record {
	return idx[key]
}

// Instances returns the total number of file instances in the index.
func (idx Index) Instances() int {
	n := 0
	for _, recs := range idx {
		n += len(recs)
	}
	return n
}

// Duplicate pairs a scanned file with the pool paths sharing its key.
type Duplicate struct {
	Record  Record
	Matches []string
}

// Hidden reports whether a base name is treated as hidden or metadata. A
// leading dot covers AppleDouble "._" sidecars as well.
func Hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Build walks root and indexes every eligible file under it. A missing root
// yields an empty index: callers diff against whatever the pool currently
// holds. Files that disappear between listing and stat are skipped.
func Build(root string) (Index, error) {
	idx := make(Index)
	files, err := ListFiles(root)
	if err != nil {
		return nil, err
	}
	for _, rec := range files {
		idx.Add(rec)
	}
	return idx, nil
}

// ListFiles returns every eligible file under root, depth-first. Hidden files
// and anything below a hidden directory are excluded.
func ListFiles(root string) ([]Record, error) {
	if root == "" {
		return nil, nil
	}
	var out []Record
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries vanishing mid-walk are expected on removable media.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root && Hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if Hidden(d.Name()) || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, Record{
			Path:    path,
			Rel:     rel,
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Diff splits files into duplicates (key already present in idx) and uniques.
// The inputs are not modified; match paths preserve index discovery order.
func Diff(files []Record, idx Index) ([]Duplicate, []Record) {
	var dups []Duplicate
	var uniques []Record
	for _, rec := range files {
		matches := idx.Lookup(rec.Key())
		if len(matches) == 0 {
			uniques = append(uniques, rec)
			continue
		}
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			paths = append(paths, m.Path)
		}
		dups = append(dups, Duplicate{Record: rec, Matches: paths})
	}
	return dups, uniques
}

// TotalSize sums the byte sizes of the given records.
func TotalSize(files []Record) int64 {
	var total int64
	for _, rec := range files {
		total += rec.Size
	}
	return total
}
