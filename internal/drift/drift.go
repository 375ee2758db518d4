// Package drift compares index entries against the files they describe.
//
// The detector never mutates the index. Callers feed the drifted paths back
// into an incremental build.
package drift

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/vcs"
)

// Status classifies one entry.
type Status string

const (
	StatusUpToDate     Status = "up-to-date"
	StatusDeleted      Status = "deleted"
	StatusLinesChanged Status = "lines-changed"
	StatusMtimeChanged Status = "mtime-changed"
)

// Entry is the drift result for one indexed file.
type Entry struct {
	Path          string    `json:"path"`
	Module        string    `json:"module"`
	Status        Status    `json:"status"`
	RecordedMtime time.Time `json:"recorded_mtime"`
	CurrentMtime  time.Time `json:"current_mtime,omitempty"`
	RecordedLines int       `json:"recorded_lines"`
	CurrentLines  int       `json:"current_lines,omitempty"`

	// Attribution from version control; empty when unavailable.
	Author   string `json:"author,omitempty"`
	Message  string `json:"message,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// Report is the result of one Check.
type Report struct {
	CheckedAt time.Time `json:"checked_at"`
	Total     int       `json:"total"`
	UpToDate  int       `json:"up_to_date"`
	Entries   []Entry   `json:"entries"`
}

// Drifted returns the paths of every entry that is not up to date.
func (r *Report) Drifted() []string {
	var paths []string
	for _, e := range r.Entries {
		if e.Status != StatusUpToDate {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Count returns the number of drifted entries.
func (r *Report) Count() int {
	return r.Total - r.UpToDate
}

// Detector classifies index entries.
type Detector struct {
	root      string
	tolerance time.Duration
	vcs       vcs.VCS
	logger    *log.Logger
}

// New creates a Detector for the project at root. v may be nil, in which
// case drifted entries carry no attribution.
func New(root string, tolerance time.Duration, v vcs.VCS, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.New(os.Stderr, "[drift] ", log.LstdFlags)
	}
	return &Detector{root: root, tolerance: tolerance, vcs: v, logger: logger}
}

var timeNow = time.Now

// Check classifies every entry of modules. Entries are ordered by path.
func (d *Detector) Check(ctx context.Context, modules map[string]*schema.ModuleIndex) (*Report, error) {
	report := &Report{CheckedAt: timeNow()}

	var entries []*schema.IndexEntry
	for _, m := range modules {
		for _, e := range m.Files {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	attribute := d.vcs != nil
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := d.classify(e)
		report.Total++
		if result.Status == StatusUpToDate {
			report.UpToDate++
		} else if attribute {
			if err := d.attribute(ctx, &result); err != nil {
				if vcs.IsFatal(err) {
					attribute = false
				}
				d.logger.Printf("Warning: no attribution for %s: %v", e.Path, err)
			}
		}
		report.Entries = append(report.Entries, result)
	}
	return report, nil
}

func (d *Detector) classify(e *schema.IndexEntry) Entry {
	result := Entry{
		Path:          e.Path,
		Module:        e.Module,
		RecordedMtime: e.SourceMtime,
		RecordedLines: e.Record.Lines,
	}

	abs := filepath.Join(d.root, filepath.FromSlash(e.Path))
	info, err := os.Stat(abs)
	if err != nil {
		result.Status = StatusDeleted
		return result
	}
	result.CurrentMtime = info.ModTime()

	delta := info.ModTime().Sub(e.SourceMtime)
	if delta < 0 {
		delta = -delta
	}
	if delta <= d.tolerance {
		result.Status = StatusUpToDate
		return result
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		// Unreadable between stat and read: treat as gone.
		result.Status = StatusDeleted
		return result
	}
	result.CurrentLines = schema.CountLines(src)
	if result.CurrentLines != e.Record.Lines {
		result.Status = StatusLinesChanged
	} else {
		result.Status = StatusMtimeChanged
	}
	return result
}

func (d *Detector) attribute(ctx context.Context, e *Entry) error {
	repoRoot, err := d.vcs.RepoRoot()
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(repoRoot, filepath.Join(d.root, filepath.FromSlash(e.Path)))
	if err != nil {
		return err
	}
	info, err := d.vcs.LastChange(ctx, filepath.ToSlash(rel))
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	e.Author = info.Author
	e.Message = info.Message
	e.Revision = info.Revision
	return nil
}
