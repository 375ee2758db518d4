package drift

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/vcs"
)

func writeSource(t *testing.T, root, rel, content string) time.Time {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.ModTime()
}

func indexOf(entries ...*schema.IndexEntry) map[string]*schema.ModuleIndex {
	m := schema.NewModuleIndex("core")
	for _, e := range entries {
		e.Module = "core"
		m.Files[e.Path] = e
	}
	return map[string]*schema.ModuleIndex{"core": m}
}

type stubVCS struct {
	root  string
	calls int
	err   error
}

func (s *stubVCS) Name() vcs.Type { return vcs.TypeGit }

func (s *stubVCS) RepoRoot() (string, error) { return s.root, nil }

func (s *stubVCS) CurrentRevision(context.Context) (string, error) { return "", nil }

func (s *stubVCS) ChangedPathsSince(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *stubVCS) LastChange(_ context.Context, path string) (*vcs.ChangeInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &vcs.ChangeInfo{Revision: "abc", Author: "Ada", Message: "edit " + path}, nil
}

func TestCheck_Classification(t *testing.T) {
	root := t.TempDir()
	fresh := writeSource(t, root, "src/fresh.ts", "a\nb\n")
	writeSource(t, root, "src/grown.ts", "a\nb\nc\n")
	writeSource(t, root, "src/touched.ts", "a\nb\n")

	old := fresh.Add(-time.Hour)
	modules := indexOf(
		&schema.IndexEntry{Path: "src/fresh.ts", SourceMtime: fresh.Add(time.Second), Record: schema.StructuralRecord{Lines: 2}},
		&schema.IndexEntry{Path: "src/grown.ts", SourceMtime: old, Record: schema.StructuralRecord{Lines: 2}},
		&schema.IndexEntry{Path: "src/touched.ts", SourceMtime: old, Record: schema.StructuralRecord{Lines: 2}},
		&schema.IndexEntry{Path: "src/gone.ts", SourceMtime: old, Record: schema.StructuralRecord{Lines: 2}},
	)

	stub := &stubVCS{root: root}
	report, err := New(root, 2*time.Second, stub, nil).Check(context.Background(), modules)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	want := map[string]Status{
		"src/fresh.ts":   StatusUpToDate,
		"src/gone.ts":    StatusDeleted,
		"src/grown.ts":   StatusLinesChanged,
		"src/touched.ts": StatusMtimeChanged,
	}
	if report.Total != 4 || report.UpToDate != 1 || report.Count() != 3 {
		t.Errorf("Total/UpToDate = %d/%d, want 4/1", report.Total, report.UpToDate)
	}
	for i, e := range report.Entries {
		if i > 0 && report.Entries[i-1].Path > e.Path {
			t.Errorf("entries not ordered by path: %s before %s", report.Entries[i-1].Path, e.Path)
		}
		if e.Status != want[e.Path] {
			t.Errorf("%s: Status = %s, want %s", e.Path, e.Status, want[e.Path])
		}
		if e.Status != StatusUpToDate && e.Author != "Ada" {
			t.Errorf("%s: Author = %q, want attribution", e.Path, e.Author)
		}
	}
	if stub.calls != 3 {
		t.Errorf("LastChange calls = %d, want 3", stub.calls)
	}
	if got := report.Drifted(); len(got) != 3 {
		t.Errorf("Drifted() = %v", got)
	}
}

// A re-check with no file changes yields the same classification.
func TestCheck_Stable(t *testing.T) {
	root := t.TempDir()
	mtime := writeSource(t, root, "a.go", "package a\n")
	modules := indexOf(&schema.IndexEntry{Path: "a.go", SourceMtime: mtime, Record: schema.StructuralRecord{Lines: 1}})

	d := New(root, 2*time.Second, nil, nil)
	for i := 0; i < 3; i++ {
		report, err := d.Check(context.Background(), modules)
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if report.Count() != 0 {
			t.Fatalf("pass %d: drifted = %v", i, report.Drifted())
		}
	}
}

func TestCheck_FatalVCSStopsAttribution(t *testing.T) {
	root := t.TempDir()
	modules := indexOf(
		&schema.IndexEntry{Path: "a.ts"},
		&schema.IndexEntry{Path: "b.ts"},
	)
	stub := &stubVCS{root: root, err: vcs.ErrVCSNotAvailable}
	report, err := New(root, 0, stub, nil).Check(context.Background(), modules)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if report.Count() != 2 {
		t.Errorf("drifted = %d, want 2", report.Count())
	}
	if stub.calls != 1 {
		t.Errorf("LastChange calls = %d, want 1", stub.calls)
	}
}

func TestCheck_DoesNotMutate(t *testing.T) {
	root := t.TempDir()
	entry := &schema.IndexEntry{Path: "x.ts", Record: schema.StructuralRecord{Lines: 7}}
	modules := indexOf(entry)
	if _, err := New(root, 0, nil, nil).Check(context.Background(), modules); err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if len(modules["core"].Files) != 1 || entry.Record.Lines != 7 {
		t.Error("Check() mutated the index")
	}
}
