package rsync

import (
	"path"
	"strings"
)

// ChangeKind classifies an itemized-changes entry by its file type.
type ChangeKind int

const (
	KindOther ChangeKind = iota
	KindFile
	KindDir
	KindSymlink
)

// Change is one entry from rsync --itemize-changes output.
type Change struct {
	Kind ChangeKind
	Path string
}

// ParseItemized decodes a line of "--out-format=%i %n" output. The second
// result is false for blank lines and anything that is not an itemized entry,
// such as the "sending incremental file list" header.
func ParseItemized(line string) (Change, bool) {
	code, name, ok := strings.Cut(line, " ")
	if !ok || name == "" || len(code) < 2 {
		return Change{}, false
	}
	// The %i field always starts with the update type: < > c h . or *.
	switch code[0] {
	case '<', '>', 'c', 'h', '.', '*':
	default:
		return Change{}, false
	}
	var kind ChangeKind
	switch code[1] {
	case 'f':
		kind = KindFile
	case 'd':
		kind = KindDir
	case 'L':
		kind = KindSymlink
	default:
		kind = KindOther
	}
	return Change{Kind: kind, Path: name}, true
}

// FilterFiles returns the paths of regular-file changes whose base name
// matches one of the globs. rsync's include chain already constrains the dry
// run, but dropping directories, trailing-slash entries and unmatched names
// here keeps a stale or over-broad listing from triggering a back-fill.
func FilterFiles(changes []Change, globs []string) []string {
	var out []string
	for _, ch := range changes {
		if ch.Kind != KindFile || strings.HasSuffix(ch.Path, "/") {
			continue
		}
		if !matchAny(path.Base(ch.Path), globs) {
			continue
		}
		out = append(out, ch.Path)
	}
	return out
}

func matchAny(name string, globs []string) bool {
	for _, g := range globs {
		if ok, err := path.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}
