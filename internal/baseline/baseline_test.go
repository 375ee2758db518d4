package baseline

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/atlas/internal/schema"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore(t.TempDir(), quiet())

	if _, err := s.Get("agent-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() before Start = %v, want ErrNotFound", err)
	}

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Start(&schema.Baseline{Participant: "agent-a", Fingerprint: "abc", StartedAt: start, Group: "G1"}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := s.Start(&schema.Baseline{Participant: "team/agent-b", StartedAt: start.Add(-time.Minute)}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	b, err := s.Get("agent-a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if b.Fingerprint != "abc" || b.Group != "G1" {
		t.Errorf("Get() = %+v", b)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 || list[0].Participant != "team/agent-b" {
		t.Errorf("List() = %+v, want agent-b first", list)
	}

	if err := s.Delete("agent-a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete("agent-a"); err != nil {
		t.Fatalf("second Delete() failed: %v", err)
	}
	if _, err := s.Get("agent-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete = %v, want ErrNotFound", err)
	}
}

func TestStore_RejectsInvalid(t *testing.T) {
	s := NewStore(t.TempDir(), quiet())
	if err := s.Start(&schema.Baseline{Participant: "x"}); err == nil {
		t.Error("Start() without started_at should fail")
	}
}

func TestStore_ListSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, quiet())
	if err := s.Start(&schema.Baseline{Participant: "ok", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "baselines", "bad.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() = %d baselines, want 1", len(list))
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"agent-1":      "agent-1",
		"v1.2":         "v1.2",
		"team/agent":   "team_agent~",
		"../../etc":    ".._.._etc~",
		"..":           "_~",
		"":             "_~",
		"worker 3:alt": "worker_3_alt~",
	}
	for in, want := range tests {
		got := FileName(in)
		if !strings.HasPrefix(got, want) {
			t.Errorf("FileName(%q) = %q, want prefix %q", in, got, want)
		}
		if strings.ContainsAny(got, "/\\: ") {
			t.Errorf("FileName(%q) = %q contains unsafe characters", in, got)
		}
		if got != FileName(in) {
			t.Errorf("FileName(%q) is not deterministic", in)
		}
	}
}

func TestFileName_Distinct(t *testing.T) {
	ids := []string{"a/b", "a_b", "a:b", "a b", "..", "", "_"}
	seen := make(map[string]string)
	for _, id := range ids {
		name := FileName(id)
		if prev, ok := seen[name]; ok {
			t.Errorf("FileName(%q) = FileName(%q) = %q", id, prev, name)
		}
		seen[name] = id
	}

	// Both participants keep their own baseline.
	s := NewStore(t.TempDir(), quiet())
	for _, p := range []string{"a/b", "a_b"} {
		if err := s.Start(&schema.Baseline{Participant: p, Fingerprint: "rev-" + p, StartedAt: time.Now()}); err != nil {
			t.Fatalf("Start(%s) failed: %v", p, err)
		}
	}
	for _, p := range []string{"a/b", "a_b"} {
		b, err := s.Get(p)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", p, err)
		}
		if b.Participant != p || b.Fingerprint != "rev-"+p {
			t.Errorf("Get(%s) = %+v", p, b)
		}
	}
	if list, err := s.List(); err != nil || len(list) != 2 {
		t.Errorf("List() = %d baselines, %v; want 2", len(list), err)
	}
}

func TestWorkLog(t *testing.T) {
	w := NewWorkLog(t.TempDir())
	names, err := w.List()
	if err != nil || len(names) != 0 {
		t.Fatalf("List() on empty = %v, %v", names, err)
	}

	rec := &schema.WorkRecord{Participant: "agent-a", CompletedAt: time.Unix(100, 5), Files: []string{"src/a.ts"}}
	name, err := w.Save(rec)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if name != "agent-a-100000000005.json" {
		t.Errorf("Save() name = %s", name)
	}

	got, err := w.Load(name)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(got.Files) != 1 || got.Files[0] != "src/a.ts" {
		t.Errorf("Load() = %+v", got)
	}
	if all := w.LoadAll([]string{name, "missing.json"}); len(all) != 1 {
		t.Errorf("LoadAll() = %d records, want 1", len(all))
	}
}

func TestSessions(t *testing.T) {
	dir := t.TempDir()
	s := NewSessions(dir, quiet())

	st, err := s.Load("a1b2c3d4")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if st.EventsProcessed != 0 {
		t.Fatalf("new session has counters: %+v", st)
	}
	st.RecordToolUse("Edit", false, 100, 20)
	st.RecordToolUse("Edit", true, 0, 0)
	st.EventsProcessed = 3
	if err := s.Save(st); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	resumed, err := s.Load("a1b2c3d4")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if resumed.EventsProcessed != 3 || resumed.ToolUses["Edit"] != 2 || resumed.ToolFailures != 1 || resumed.TokensIn != 100 {
		t.Errorf("resumed = %+v", resumed)
	}

	if err := os.WriteFile(filepath.Join(dir, "sessions", "broken.json"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	reset, err := s.Load("broken")
	if err != nil {
		t.Fatalf("Load() of corrupt session failed: %v", err)
	}
	if reset.ID != "broken" || reset.EventsProcessed != 0 {
		t.Errorf("corrupt session not reset: %+v", reset)
	}

	if _, err := s.Load(""); err == nil {
		t.Error("Load(\"\") should fail")
	}
}

func TestNewSessionID(t *testing.T) {
	defer func() { timeNow = time.Now }()

	timeNow = func() time.Time { return time.Unix(1, 0) }
	a := NewSessionID()
	timeNow = func() time.Time { return time.Unix(2, 0) }
	b := NewSessionID()

	if len(a) != 8 || len(b) != 8 {
		t.Fatalf("ids = %q, %q, want 8 hex chars", a, b)
	}
	if a == b {
		t.Error("ids should differ across time")
	}
}
