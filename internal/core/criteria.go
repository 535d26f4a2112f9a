package core

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// criterionKind is one keyword of the mechanical acceptance criteria grammar.
type criterionKind string

const (
	criterionExists   criterionKind = "exists"
	criterionAbsent   criterionKind = "absent"
	criterionContains criterionKind = "contains"
	criterionGlob     criterionKind = "glob"
	criterionNonempty criterionKind = "nonempty"
)

// criterion is a parsed acceptance criterion.
type criterion struct {
	kind criterionKind
	path string
	text string
}

// parseCriterion parses one of:
//
//	exists: <path>
//	absent: <path>
//	contains: <path> => <text>
//	glob: <pattern>
//	nonempty: <path>
//
// Anything else cannot be checked mechanically and returns ok=false.
func parseCriterion(raw string) (criterion, bool) {
	keyword, rest, found := strings.Cut(raw, ":")
	if !found {
		return criterion{}, false
	}
	kind := criterionKind(strings.ToLower(strings.TrimSpace(keyword)))
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return criterion{}, false
	}

	switch kind {
	case criterionExists, criterionAbsent, criterionNonempty:
		return criterion{kind: kind, path: rest}, true
	case criterionGlob:
		if !doublestar.ValidatePattern(rest) {
			return criterion{}, false
		}
		return criterion{kind: kind, path: rest}, true
	case criterionContains:
		path, text, ok := strings.Cut(rest, "=>")
		path, text = strings.TrimSpace(path), strings.TrimSpace(text)
		if !ok || path == "" || text == "" {
			return criterion{}, false
		}
		return criterion{kind: kind, path: path, text: text}, true
	}
	return criterion{}, false
}

// evaluate checks the criterion against the workspace rooted at root.
func (c criterion) evaluate(root string) (bool, error) {
	switch c.kind {
	case criterionExists:
		_, err := os.Stat(resolvePath(root, c.path))
		return statResult(err, true)
	case criterionAbsent:
		_, err := os.Stat(resolvePath(root, c.path))
		return statResult(err, false)
	case criterionNonempty:
		n, err := contentSize(resolvePath(root, c.path), 1)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return n > 0, err
	case criterionContains:
		data, err := os.ReadFile(resolvePath(root, c.path))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("reading %s: %w", c.path, err)
		}
		return bytes.Contains(data, []byte(c.text)), nil
	case criterionGlob:
		return anyMatch(root, c.path)
	}
	return false, fmt.Errorf("unknown criterion kind %q", c.kind)
}

// statResult maps an os.Stat error to existence. want is the existence that
// satisfies the criterion.
func statResult(err error, want bool) (bool, error) {
	switch {
	case err == nil:
		return want, nil
	case errors.Is(err, fs.ErrNotExist):
		return !want, nil
	default:
		return false, err
	}
}

var errStopWalk = errors.New("stop walk")

// anyMatch reports whether pattern matches at least one path under dir.
// A missing dir has no matches.
func anyMatch(dir, pattern string) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}

	found := false
	err = doublestar.GlobWalk(os.DirFS(dir), pattern, func(string, fs.DirEntry) error {
		found = true
		return errStopWalk
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return false, fmt.Errorf("matching %s under %s: %w", pattern, dir, err)
	}
	return found, nil
}
