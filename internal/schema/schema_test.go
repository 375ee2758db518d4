package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCountLines(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{name: "empty", src: "", want: 0},
		{name: "single line no newline", src: "a", want: 1},
		{name: "single line with newline", src: "a\n", want: 1},
		{name: "two lines", src: "a\nb", want: 2},
		{name: "blank lines", src: "\n\n\n", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountLines([]byte(tt.src)); got != tt.want {
				t.Errorf("CountLines(%q) = %d, want %d", tt.src, got, tt.want)
			}
		})
	}
}

func TestMergeAnnotations(t *testing.T) {
	prior := &SemanticAnnotation{Description: "old", Pattern: "repository", Tag: "legacy"}
	work := &SemanticAnnotation{Description: "from work", Tag: "auth"}
	direct := &SemanticAnnotation{Description: "hand written"}

	tests := []struct {
		name                string
		prior, work, direct *SemanticAnnotation
		want                *SemanticAnnotation
	}{
		{name: "nothing", want: nil},
		{name: "prior only", prior: prior, want: prior},
		{
			name:  "work over prior",
			prior: prior,
			work:  work,
			want:  &SemanticAnnotation{Description: "from work", Pattern: "repository", Tag: "auth"},
		},
		{
			name:   "direct over work over prior",
			prior:  prior,
			work:   work,
			direct: direct,
			want:   &SemanticAnnotation{Description: "hand written", Pattern: "repository", Tag: "auth"},
		},
		{
			name:   "direct without prior",
			direct: direct,
			want:   &SemanticAnnotation{Description: "hand written"},
		},
		{name: "empty layers", prior: &SemanticAnnotation{}, work: &SemanticAnnotation{}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeAnnotations(tt.prior, tt.work, tt.direct)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("MergeAnnotations() = %+v, want %+v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("MergeAnnotations() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestGroupState_AllDone(t *testing.T) {
	tests := []struct {
		name      string
		expected  []string
		completed []string
		want      bool
	}{
		{name: "none completed", expected: []string{"a", "b"}, want: false},
		{name: "partial", expected: []string{"a", "b"}, completed: []string{"a"}, want: false},
		{name: "all once", expected: []string{"a", "b"}, completed: []string{"b", "a"}, want: true},
		{name: "duplicate entry", expected: []string{"a", "b"}, completed: []string{"a", "a", "b"}, want: false},
		{name: "stranger only", expected: []string{"a"}, completed: []string{"z"}, want: false},
		{name: "no expected", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &GroupState{ID: "g1", Expected: tt.expected}
			for _, p := range tt.completed {
				g.Completed = append(g.Completed, CompletedWork{Participant: p})
			}
			if got := g.AllDone(); got != tt.want {
				t.Errorf("AllDone() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkflowState_StageDone(t *testing.T) {
	w := NewWorkflowState(AutomationToggles{})
	if w.StageDone("s1") {
		t.Error("StageDone() with no groups should be false")
	}
	w.Groups["g1"] = &GroupState{ID: "g1", Stage: "s1", Status: GroupCompleted, Expected: []string{"a"}}
	w.Groups["g2"] = &GroupState{ID: "g2", Stage: "s1", Status: GroupInProgress, Expected: []string{"b"}}
	if w.StageDone("s1") {
		t.Error("StageDone() should be false while g2 is in progress")
	}
	w.Groups["g2"].Status = GroupCompleted
	if !w.StageDone("s1") {
		t.Error("StageDone() should be true once every group completed")
	}
}

func TestWorkflowState_GroupFor(t *testing.T) {
	w := NewWorkflowState(AutomationToggles{})
	w.Groups["done"] = &GroupState{ID: "done", Status: GroupCompleted, Expected: []string{"a"}}
	w.Groups["open"] = &GroupState{ID: "open", Status: GroupPending, Expected: []string{"a", "b"}}

	if g := w.GroupFor("a", ""); g == nil || g.ID != "open" {
		t.Errorf("GroupFor(a) = %v, want open", g)
	}
	if g := w.GroupFor("a", "done"); g == nil || g.ID != "done" {
		t.Errorf("GroupFor(a, done) = %v, want done", g)
	}
	if g := w.GroupFor("z", ""); g != nil {
		t.Errorf("GroupFor(z) = %v, want nil", g)
	}
}

func TestPendingAnnotation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       PendingAnnotation
		wantErr bool
	}{
		{name: "valid", p: PendingAnnotation{Path: "a.ts", Description: "x"}},
		{name: "missing path", p: PendingAnnotation{Description: "x"}, wantErr: true},
		{name: "empty annotation", p: PendingAnnotation{Path: "a.ts"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	p := PendingAnnotation{Source: "work:task-a"}
	if !p.WorkDerived() {
		t.Error("WorkDerived() should be true for work: source")
	}
}

func TestWriteJSON_ReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	in := &Baseline{Participant: "task-a", Fingerprint: "abc", StartedAt: time.Now().UTC().Truncate(time.Second)}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}

	var out Baseline
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	if out.Participant != in.Participant || !out.StartedAt.Equal(in.StartedAt) {
		t.Errorf("ReadJSON() = %+v, want %+v", out, in)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, found %d entries", len(entries))
	}

	if err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out); !os.IsNotExist(err) {
		t.Errorf("ReadJSON(missing) error = %v, want not-exist", err)
	}
}

func TestFunctionInfo_Signature(t *testing.T) {
	f := FunctionInfo{Params: "(req, res)", Returns: "Promise<void>", Async: true}
	if got, want := f.Signature("handleLogin"), "async handleLogin(req, res): Promise<void>"; got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}
	if got := (FunctionInfo{}).Signature("f"); got != "f()" {
		t.Errorf("Signature() = %q, want f()", got)
	}
}
