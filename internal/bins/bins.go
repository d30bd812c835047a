// Package bins names and discovers offload bins. A bin is a top-level pool
// directory named YYYYMMDD_SS with an optional free-form suffix, for example
// 20250906_02_interviews. The two-digit sequence restarts every day.
package bins

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"mediapool/internal/services"
)

var (
	// Pattern matches canonical bin names: date, sequence, optional suffix.
	Pattern = regexp.MustCompile(`^(\d{8})_(\d{2})(?:_(.+))?$`)

	suffixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Parsed holds the components of a bin name.
type Parsed struct {
	Date   string // YYYYMMDD
	Seq    int
	Suffix string
}

// Bin is an existing bin directory inside a pool.
type Bin struct {
	Name string
	Path string
	Parsed
}

// ParseName splits a directory name into bin components. The second result is
// false when the name does not follow the bin convention.
func ParseName(name string) (Parsed, bool) {
	m := Pattern.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, false
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{Date: m[1], Seq: seq, Suffix: m[3]}, true
}

// FormatName renders a bin name from its components.
func FormatName(date string, seq int, suffix string) string {
	name := fmt.Sprintf("%s_%02d", date, seq)
	if suffix != "" {
		name += "_" + suffix
	}
	return name
}

// ListExisting returns the bin directories directly under root, ordered by
// date then sequence. Non-bin entries are ignored; a missing root is an empty
// pool, not an error.
func ListExisting(root string) ([]Bin, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Bin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		parsed, ok := ParseName(entry.Name())
		if !ok {
			continue
		}
		out = append(out, Bin{
			Name:   entry.Name(),
			Path:   filepath.Join(root, entry.Name()),
			Parsed: parsed,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// SuggestNext returns the next bin name for the given date: one past the
// highest sequence already used that day, starting at 01. Bins from other
// dates never influence the sequence.
func SuggestNext(date string, existing []Parsed) string {
	max := 0
	for _, p := range existing {
		if p.Date == date && p.Seq > max {
			max = p.Seq
		}
	}
	return FormatName(date, max+1, "")
}

// Newest returns the most recent bin by (date, sequence), or false when the
// pool has none.
func Newest(list []Bin) (Bin, bool) {
	if len(list) == 0 {
		return Bin{}, false
	}
	best := list[0]
	for _, b := range list[1:] {
		if b.Date > best.Date || (b.Date == best.Date && b.Seq > best.Seq) {
			best = b
		}
	}
	return best, true
}

// ValidateSuffix checks a user-supplied bin suffix. Only letters, digits,
// underscore and hyphen are allowed; empty means no suffix.
func ValidateSuffix(suffix string) error {
	if suffix == "" {
		return nil
	}
	if !suffixPattern.MatchString(suffix) {
		return services.Wrap(services.ErrValidation, "bins", "suffix",
			fmt.Sprintf("suffix %q may only contain letters, digits, underscore and hyphen", suffix), nil)
	}
	return nil
}

// EnsureAvailable fails when the bin path already exists. Offloads never merge
// into a bin that was written by an earlier run.
func EnsureAvailable(path string) error {
	if _, err := os.Stat(path); err == nil {
		return services.Wrap(services.ErrDestinationExists, "bins", "ensure",
			fmt.Sprintf("bin %s already exists", path), nil)
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}
