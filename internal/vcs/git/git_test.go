package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/steveyegge/atlas/internal/vcs"
)

func setupRepo(t *testing.T) string {
	t.Helper()
	if !vcs.IsGitAvailable() {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "ada@example.com")
	runGit(t, dir, "config", "user.name", "Ada Lovelace")
	runGit(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestGit_NoHistory(t *testing.T) {
	dir := setupRepo(t)
	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := g.CurrentRevision(context.Background()); !errors.Is(err, vcs.ErrNoHistory) {
		t.Errorf("CurrentRevision() error = %v, want ErrNoHistory", err)
	}
}

func TestGit_ChangedPathsSince(t *testing.T) {
	dir := setupRepo(t)
	writeFile(t, dir, "src/auth.ts", "export const a = 1\n")
	writeFile(t, dir, "src/util.ts", "export const b = 1\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "Initial import")

	g, err := New(filepath.Join(dir, "src"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	root, _ := g.RepoRoot()
	if root != dir {
		t.Errorf("RepoRoot() = %s, want %s", root, dir)
	}

	ctx := context.Background()
	rev, err := g.CurrentRevision(ctx)
	if err != nil {
		t.Fatalf("CurrentRevision() failed: %v", err)
	}
	if len(rev) != 40 {
		t.Errorf("CurrentRevision() = %q, want a full hash", rev)
	}

	writeFile(t, dir, "src/auth.ts", "export const a = 2\n")
	writeFile(t, dir, "src/new.ts", "export const c = 1\n")

	paths, err := g.ChangedPathsSince(ctx, rev)
	if err != nil {
		t.Fatalf("ChangedPathsSince() failed: %v", err)
	}
	want := []string{"src/auth.ts", "src/new.ts"}
	if len(paths) != len(want) {
		t.Fatalf("ChangedPathsSince() = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("ChangedPathsSince()[%d] = %s, want %s", i, paths[i], want[i])
		}
	}

	if _, err := g.ChangedPathsSince(ctx, "0000000000000000000000000000000000000000"); !errors.Is(err, vcs.ErrUnknownRevision) {
		t.Errorf("ChangedPathsSince(bogus) error = %v, want ErrUnknownRevision", err)
	}
}

func TestGit_LastChange(t *testing.T) {
	dir := setupRepo(t)
	writeFile(t, dir, "a.go", "package a\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "Add package a")

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()
	info, err := g.LastChange(ctx, "a.go")
	if err != nil {
		t.Fatalf("LastChange() failed: %v", err)
	}
	if info == nil {
		t.Fatal("LastChange() = nil")
	}
	if info.Author != "Ada Lovelace" || info.Message != "Add package a" {
		t.Errorf("LastChange() = %+v", info)
	}

	none, err := g.LastChange(ctx, "missing.go")
	if err != nil {
		t.Fatalf("LastChange(missing) failed: %v", err)
	}
	if none != nil {
		t.Errorf("LastChange(missing) = %+v, want nil", none)
	}
}

func TestNew_NotInVCS(t *testing.T) {
	if !vcs.IsGitAvailable() {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if _, err := vcs.Detect(dir); err == nil {
		t.Skip("temp dir is inside a repository")
	}
	if _, err := New(dir); !errors.Is(err, vcs.ErrNotInVCS) {
		t.Errorf("New() error = %v, want ErrNotInVCS", err)
	}
}
