package discover

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

var (
	testInclude = []string{"**/*.{ts,tsx,js,go,py}"}
	testExclude = []string{"**/node_modules/**", "**/dist/**", "**/fixtures/**", "**/*.min.js"}
)

func TestFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"src/services/auth.ts",
		"src/components/Button.tsx",
		"src/util.js",
		"src/vendor.min.js",
		"src/README.md",
		"node_modules/lib/index.js",
		"dist/bundle.js",
		"test/fixtures/sample.ts",
		".hidden/secret.ts",
		"scripts/gen.py",
		"generated/out.ts",
	)
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("generated/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewMatcher(root, testInclude, testExclude, true)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}

	got, err := m.Files([]string{"."})
	if err != nil {
		t.Fatalf("Files() failed: %v", err)
	}
	want := []string{
		"scripts/gen.py",
		"src/components/Button.tsx",
		"src/services/auth.ts",
		"src/util.js",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Files() = %v, want %v", got, want)
	}
}

func TestFiles_MultipleRoots(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/a.ts", "lib/b.ts", "other/c.ts")

	m, err := NewMatcher(root, testInclude, testExclude, false)
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Files([]string{"src", "lib", "src", "missing"})
	if err != nil {
		t.Fatalf("Files() failed: %v", err)
	}
	if strings.Join(got, ",") != "lib/b.ts,src/a.ts" {
		t.Errorf("Files() = %v", got)
	}
}

func TestMatcher(t *testing.T) {
	root := t.TempDir()
	m, err := NewMatcher(root, testInclude, testExclude, false)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"src/a.ts", true},
		{"src/a.md", false},
		{"node_modules/x/a.ts", false},
		{"app/dist/a.js", false},
		{"src/.cache/a.ts", false},
		{"jquery.min.js", false},
	}
	for _, tt := range tests {
		if got := m.Included(tt.path); got != tt.want {
			t.Errorf("Included(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if !m.ExcludedDir("node_modules") || !m.ExcludedDir("web/dist") || m.ExcludedDir("src") {
		t.Error("ExcludedDir() misclassified a directory")
	}

	if rel, ok := m.Rel(filepath.Join(root, "src", "a.ts")); !ok || rel != "src/a.ts" {
		t.Errorf("Rel() = %q, %v", rel, ok)
	}
	if _, ok := m.Rel("/elsewhere/a.ts"); ok {
		t.Error("Rel() should reject paths outside the root")
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	if _, err := NewMatcher(t.TempDir(), []string{"src/[a"}, nil, false); err == nil {
		t.Error("NewMatcher() should reject an invalid pattern")
	}
}
