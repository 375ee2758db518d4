// Package discover finds indexable source files under the configured roots
// and decides which paths the watcher should care about.
package discover

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// Matcher applies include globs, exclude globs and the project .gitignore to
// root-relative, slash-separated paths.
type Matcher struct {
	root    string
	include []string
	exclude []string
	gi      *ignore.GitIgnore
}

// NewMatcher validates the glob patterns and loads root/.gitignore when
// respectGitignore is set.
func NewMatcher(root string, include, exclude []string, respectGitignore bool) (*Matcher, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	m := &Matcher{root: root, include: include, exclude: exclude}
	if respectGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			m.gi = gi
		}
	}
	return m, nil
}

// Root returns the absolute project root.
func (m *Matcher) Root() string { return m.root }

// Rel converts an absolute path to the root-relative slash form used in the
// index. ok is false for paths outside the root.
func (m *Matcher) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ExcludedDir reports whether a directory should be skipped entirely.
func (m *Matcher) ExcludedDir(rel string) bool {
	base := path.Base(rel)
	if strings.HasPrefix(base, ".") && rel != "." {
		return true
	}
	// A child probe lets "dir/**" style patterns match the directory itself.
	probe := rel + "/_"
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, probe); ok {
			return true
		}
	}
	return m.gi != nil && m.gi.MatchesPath(rel+"/")
}

// Excluded reports whether a file path is excluded.
func (m *Matcher) Excluded(rel string) bool {
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return m.gi != nil && m.gi.MatchesPath(rel)
}

// Included reports whether a file path should be indexed.
func (m *Matcher) Included(rel string) bool {
	if m.Excluded(rel) {
		return false
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if strings.HasPrefix(path.Base(dir), ".") {
			return false
		}
	}
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Files walks roots (relative to the matcher root) and returns every
// included file as a sorted, de-duplicated list of root-relative paths.
func (m *Matcher) Files(roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	var results []string

	for _, r := range roots {
		start := filepath.Join(m.root, filepath.FromSlash(r))
		info, err := os.Stat(start)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat root %s: %w", r, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %s is not a directory", r)
		}

		err = filepath.WalkDir(start, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if p == m.root {
				return nil
			}
			rel, ok := m.Rel(p)
			if !ok {
				return nil
			}
			if d.IsDir() {
				if p != start && m.ExcludedDir(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			if !m.Included(rel) {
				return nil
			}
			if _, dup := seen[rel]; !dup {
				seen[rel] = struct{}{}
				results = append(results, rel)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(results)
	return results, nil
}
