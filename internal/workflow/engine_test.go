package workflow

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/atlas/internal/baseline"
	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/indexer"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/report"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/store"
	"github.com/steveyegge/atlas/internal/vcs"
)

var allToggles = schema.AutomationToggles{GroupReports: true, StageReports: true, IndexOnComplete: true}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fakeIndexer struct {
	mu       sync.Mutex
	updates  [][]string
	rebuilds int
	err      error

	// onUpdate, when set, produces the Update result in place of a no-op.
	onUpdate func(changed []string) *indexer.Result
}

func (f *fakeIndexer) Rebuild(ctx context.Context) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	if f.err != nil {
		return nil, f.err
	}
	return &indexer.Result{
		Full:    true,
		Modules: map[string]*schema.ModuleIndex{},
		Summary: &schema.Summary{Health: schema.HealthScore{Score: 90}},
	}, nil
}

func (f *fakeIndexer) Update(ctx context.Context, changed []string) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, changed)
	if f.err != nil {
		return nil, f.err
	}
	if f.onUpdate != nil {
		return f.onUpdate(changed), nil
	}
	return &indexer.Result{NoOp: true}, nil
}

func (f *fakeIndexer) calls() ([][]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.updates...), f.rebuilds
}

type fakeReporter struct {
	mu     sync.Mutex
	inputs []*report.Input
}

func (r *fakeReporter) Write(ctx context.Context, in *report.Input) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	return filepath.Join("reports", string(in.Kind)+"-"+in.ID+".md"), nil
}

func (r *fakeReporter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, in := range r.inputs {
		out = append(out, string(in.Kind)+":"+in.ID)
	}
	return out
}

type fakeVCS struct {
	root    string
	rev     atomic.Int32
	changed []string
	err     error
}

func (f *fakeVCS) Name() vcs.Type { return vcs.TypeGit }

func (f *fakeVCS) RepoRoot() (string, error) { return f.root, nil }

func (f *fakeVCS) CurrentRevision(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "rev" + string(rune('0'+f.rev.Add(1))), nil
}

func (f *fakeVCS) ChangedPathsSince(ctx context.Context, rev string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.changed, nil
}

func (f *fakeVCS) LastChange(ctx context.Context, path string) (*vcs.ChangeInfo, error) {
	return nil, nil
}

type harness struct {
	t         *testing.T
	dir       string
	queue     *queue.Queue
	engine    *Engine
	indexer   *fakeIndexer
	reporter  *fakeReporter
	store     *store.Store
	cache     *cache.Cache
	shutdowns atomic.Int32
}

func newHarness(t *testing.T, v vcs.VCS) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := quietLogger()
	st := store.New(dir, logger)
	c, err := cache.New(st, logger)
	if err != nil {
		t.Fatalf("cache.New() failed: %v", err)
	}

	h := &harness{
		t:        t,
		dir:      dir,
		indexer:  &fakeIndexer{},
		reporter: &fakeReporter{},
		store:    st,
		cache:    c,
	}
	h.queue = queue.New(nil, logger)
	if fv, ok := v.(*fakeVCS); ok && fv.root == "" {
		fv.root = dir
	}
	h.engine, err = New(Options{
		Root:      dir,
		StateDir:  dir,
		Toggles:   allToggles,
		Indexer:   h.indexer,
		Cache:     c,
		Queue:     h.queue,
		Pending:   st.Pending(),
		SessionID: "s1",
		VCS:       v,
		Reporter:  h.reporter,
		Shutdown:  func() { h.shutdowns.Add(1) },
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	h.queue.SetHandler(h.engine)
	h.queue.Start(context.Background())
	t.Cleanup(h.queue.Stop)
	return h
}

func (h *harness) send(events ...queue.Event) {
	h.t.Helper()
	for _, ev := range events {
		if _, err := h.queue.Enqueue(ev); err != nil {
			h.t.Fatalf("Enqueue() failed: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.queue.WaitIdle(ctx); err != nil {
		h.t.Fatalf("WaitIdle() failed: %v", err)
	}
}

func (h *harness) state() *schema.WorkflowState {
	return LoadState(filepath.Join(h.dir, StateFile), allToggles, quietLogger())
}

func (h *harness) outcomes(typ queue.Type) []queue.Outcome {
	var out []queue.Outcome
	for _, o := range h.queue.Recent(0) {
		if o.Event == typ {
			out = append(out, o)
		}
	}
	return out
}

func (h *harness) records() []string {
	names, err := baseline.NewWorkLog(h.dir).List()
	if err != nil {
		h.t.Fatalf("List() failed: %v", err)
	}
	return names
}

func start(p string) queue.Event {
	return queue.Event{Type: queue.WorkUnitStart, Participant: p}
}

func complete(p string) queue.Event {
	return queue.Event{Type: queue.WorkUnitComplete, Participant: p}
}

func TestCascade_GroupAndStage(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.StageStart, Stage: "S1", Name: "auth"},
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a", "b"}},
		start("a"), start("b"),
		complete("a"),
	)

	st := h.state()
	g := st.Groups["G1"]
	if g == nil || g.Stage != "S1" {
		t.Fatalf("G1 = %+v, want registered under S1", g)
	}
	if g.Status != schema.GroupInProgress {
		t.Errorf("after a: status = %s, want in-progress", g.Status)
	}
	if st.CurrentStage == nil || st.CurrentStage.ID != "S1" || len(st.CompletedStages) != 0 {
		t.Errorf("stage advanced early: current=%+v completed=%v", st.CurrentStage, st.CompletedStages)
	}
	if n := len(h.outcomes(queue.GroupComplete)); n != 0 {
		t.Errorf("group-complete observed %d times before b", n)
	}

	h.send(complete("b"))

	st = h.state()
	g = st.Groups["G1"]
	if g.Status != schema.GroupCompleted || g.CompletedAt == nil || !g.ReportGenerated {
		t.Errorf("after b: G1 = %+v", g)
	}
	if len(h.outcomes(queue.StageComplete)) != 1 {
		t.Fatalf("stage-complete outcomes = %d, want 1", len(h.outcomes(queue.StageComplete)))
	}
	if st.CurrentStage != nil || len(st.CompletedStages) != 1 || st.CompletedStages[0] != "S1" {
		t.Errorf("stage not completed: current=%+v completed=%v", st.CurrentStage, st.CompletedStages)
	}
	if got := strings.Join(h.reporter.kinds(), ","); got != "group:G1,stage:S1" {
		t.Errorf("reports = %s", got)
	}
	for _, o := range h.queue.Recent(0) {
		if !o.OK {
			t.Errorf("%s failed: %s", o.Event, o.Error)
		}
	}
}

func TestWorkUnitComplete_DuplicateDelivery(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a", "b"}},
		start("a"),
		complete("a"),
	)
	before, err := os.ReadFile(filepath.Join(h.dir, StateFile))
	if err != nil {
		t.Fatal(err)
	}

	h.send(complete("a"))

	after, err := os.ReadFile(filepath.Join(h.dir, StateFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("duplicate completion mutated workflow state")
	}
	if n := len(h.records()); n != 1 {
		t.Errorf("work records = %d, want 1", n)
	}
	g := h.state().Groups["G1"]
	if len(g.Completed) != 1 || g.Status != schema.GroupInProgress {
		t.Errorf("G1 = %+v", g)
	}
	last := h.outcomes(queue.WorkUnitComplete)
	if !strings.Contains(last[len(last)-1].Detail, "duplicate") {
		t.Errorf("second completion detail = %q", last[len(last)-1].Detail)
	}
}

func TestWorkUnitComplete_StateWriteFailureLeavesNoRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a"}},
		start("a"),
	)

	// A directory where the state file belongs makes the write fail.
	statePath := filepath.Join(h.dir, StateFile)
	if err := os.Remove(statePath); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(statePath, 0755); err != nil {
		t.Fatal(err)
	}
	h.send(complete("a"))

	if o := h.outcomes(queue.WorkUnitComplete); len(o) != 1 || o[0].OK {
		t.Fatalf("completion outcomes = %+v, want one failure", o)
	}
	if n := len(h.records()); n != 0 {
		t.Errorf("work records = %d after failed completion, want 0", n)
	}
	if o := h.outcomes(queue.GroupComplete); len(o) != 0 {
		t.Errorf("group-complete ran for an uncommitted completion: %+v", o)
	}

	// Redelivery after the fault clears commits exactly once.
	if err := os.Remove(statePath); err != nil {
		t.Fatal(err)
	}
	h.send(complete("a"))

	if n := len(h.records()); n != 1 {
		t.Errorf("work records = %d after redelivery, want 1", n)
	}
	g := h.state().Groups["G1"]
	if g == nil || g.Status != schema.GroupCompleted || len(g.Completed) != 1 {
		t.Errorf("G1 = %+v, want completed once", g)
	}
}

func TestWorkUnitComplete_StagingFailureLeavesNoRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.send(start("a"))

	pending := h.store.Pending().Path()
	if err := os.MkdirAll(pending, 0755); err != nil {
		t.Fatal(err)
	}
	h.send(queue.Event{
		Type:        queue.WorkUnitComplete,
		Participant: "a",
		Annotations: map[string]schema.SemanticAnnotation{"src/a.ts": {Description: "auth"}},
	})

	if o := h.outcomes(queue.WorkUnitComplete); len(o) != 1 || o[0].OK {
		t.Fatalf("completion outcomes = %+v, want one failure", o)
	}
	if n := len(h.records()); n != 0 {
		t.Errorf("work records = %d after failed staging, want 0", n)
	}
	if _, err := baseline.NewStore(h.dir, quietLogger()).Get("a"); err != nil {
		t.Errorf("baseline lost after failed completion: %v", err)
	}
}

func TestWorkUnitComplete_WithoutBaselineIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.send(queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a"}})
	h.send(complete("a"))

	if g := h.state().Groups["G1"]; g.Status != schema.GroupPending || len(g.Completed) != 0 {
		t.Errorf("G1 = %+v, want untouched", g)
	}
	if n := len(h.records()); n != 0 {
		t.Errorf("work records = %d, want 0", n)
	}
}

func TestWorkUnitComplete_RecordsChangedFiles(t *testing.T) {
	v := &fakeVCS{changed: []string{"src/auth.ts", "README.md"}}
	h := newHarness(t, v)
	h.send(
		start("a"),
		queue.Event{
			Type:        queue.WorkUnitComplete,
			Participant: "a",
			Paths:       []string{"src/extra.ts"},
			Summary:     "login",
			Annotations: map[string]schema.SemanticAnnotation{
				"src/auth.ts": {Description: "auth entry"},
				"src/none.ts": {},
			},
		},
	)

	names := h.records()
	if len(names) != 1 {
		t.Fatalf("work records = %d, want 1", len(names))
	}
	rec, err := baseline.NewWorkLog(h.dir).Load(names[0])
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := strings.Join(rec.Files, ","); got != "README.md,src/auth.ts,src/extra.ts" {
		t.Errorf("files = %s", got)
	}
	if rec.FromRevision != "rev1" || rec.ToRevision != "rev2" || rec.Degraded != "" {
		t.Errorf("record = %+v", rec)
	}

	batch, err := store.New(h.dir, quietLogger()).Pending().Read()
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if len(batch.Entries) != 1 || batch.Entries[0].Source != "work:a" || batch.Entries[0].Path != "src/auth.ts" {
		t.Errorf("pending = %+v", batch.Entries)
	}

	updates, _ := h.indexer.calls()
	if len(updates) != 1 || len(updates[0]) != 3 {
		t.Errorf("updates = %v, want one source-changed with 3 paths", updates)
	}
	if _, err := baseline.NewStore(h.dir, quietLogger()).Get("a"); !errors.Is(err, baseline.ErrNotFound) {
		t.Errorf("baseline still present: %v", err)
	}
}

func TestWorkUnitComplete_DegradesWithoutVCS(t *testing.T) {
	v := &fakeVCS{err: vcs.ErrNotInVCS}
	h := newHarness(t, v)
	h.send(start("a"), queue.Event{Type: queue.WorkUnitComplete, Participant: "a", Paths: []string{"x.ts"}})

	names := h.records()
	if len(names) != 1 {
		t.Fatalf("work records = %d, want 1", len(names))
	}
	rec, err := baseline.NewWorkLog(h.dir).Load(names[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.Degraded == "" || len(rec.Files) != 1 {
		t.Errorf("record = %+v, want degraded with reported paths", rec)
	}
	for _, o := range h.queue.Recent(0) {
		if !o.OK {
			t.Errorf("%s failed: %s", o.Event, o.Error)
		}
	}
}

func TestStageComplete_Blocked(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.StageStart, Stage: "S1"},
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a"}},
		queue.Event{Type: queue.StageBlock, Blockers: []string{"security review"}, Reason: "waiting on sign-off"},
		start("a"), complete("a"),
	)

	st := h.state()
	if len(st.CompletedStages) != 0 || st.CurrentStage == nil {
		t.Fatalf("blocked stage completed: %+v", st)
	}
	if !strings.Contains(st.CurrentStage.BlockReason, "security review") {
		t.Errorf("block reason = %q", st.CurrentStage.BlockReason)
	}

	h.send(queue.Event{Type: queue.StageBlock})

	st = h.state()
	if len(st.CompletedStages) != 1 || st.CurrentStage != nil {
		t.Errorf("unblocking did not complete stage: %+v", st)
	}
}

func TestStageComplete_IncompleteGroups(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.StageStart, Stage: "S1"},
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a"}},
		queue.Event{Type: queue.GroupRegister, Group: "G2", Expected: []string{"b"}},
		start("a"), complete("a"),
	)
	st := h.state()
	if st.Groups["G1"].Status != schema.GroupCompleted || st.Groups["G2"].Status != schema.GroupPending {
		t.Fatalf("groups = %+v %+v", st.Groups["G1"], st.Groups["G2"])
	}
	if n := len(h.outcomes(queue.StageComplete)); n != 0 {
		t.Errorf("stage-complete enqueued with G2 open (%d)", n)
	}

	h.send(queue.Event{Type: queue.StageComplete, Stage: "S1"})
	st = h.state()
	if len(st.CompletedStages) != 0 || !strings.Contains(st.CurrentStage.BlockReason, "G2") {
		t.Errorf("forced stage-complete passed the gate: %+v", st.CurrentStage)
	}
}

func TestGroupRegister(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"b", "a", "a"}},
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"c"}},
		queue.Event{Type: queue.GroupRegister, Group: "G2"},
	)
	g := h.state().Groups["G1"]
	if strings.Join(g.Expected, ",") != "a,b,c" {
		t.Errorf("expected = %v", g.Expected)
	}
	regs := h.outcomes(queue.GroupRegister)
	if len(regs) != 3 || regs[2].OK {
		t.Errorf("group without participants accepted: %+v", regs)
	}

	h.send(start("c"), complete("c"), start("a"), complete("a"), start("b"), complete("b"))
	h.send(queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"d"}})
	if regs := h.outcomes(queue.GroupRegister); regs[len(regs)-1].OK {
		t.Error("re-registering a completed group succeeded")
	}
}

func TestSourceChanged_MergesDirtyPaths(t *testing.T) {
	h := newHarness(t, nil)
	h.cache.UpdateFiles([]string{"src/b.ts"})
	h.send(queue.Event{Type: queue.SourceChanged, Paths: []string{"src/a.ts"}})

	updates, _ := h.indexer.calls()
	if len(updates) != 1 || strings.Join(updates[0], ",") != "src/a.ts,src/b.ts" {
		t.Errorf("updates = %v", updates)
	}
	if h.cache.DirtyCount() != 0 {
		t.Error("dirty set not drained")
	}
}

func TestSourceChanged_FailureKeepsDirty(t *testing.T) {
	h := newHarness(t, nil)
	h.indexer.err = errors.New("disk full")
	h.send(queue.Event{Type: queue.SourceChanged, Paths: []string{"src/a.ts"}})

	if h.cache.DirtyCount() != 1 {
		t.Errorf("dirty = %d, want 1 after failed update", h.cache.DirtyCount())
	}
	if o := h.outcomes(queue.SourceChanged); len(o) != 1 || o[0].OK {
		t.Errorf("outcome = %+v, want failure", o)
	}
}

func TestFullRebuild_ReplacesCache(t *testing.T) {
	h := newHarness(t, nil)
	h.send(queue.Event{Type: queue.FullRebuild})
	if _, rebuilds := h.indexer.calls(); rebuilds != 1 {
		t.Errorf("rebuilds = %d", rebuilds)
	}
	if sum := h.cache.Summary(); sum == nil || sum.Health.Score != 90 {
		t.Errorf("cache summary = %+v", sum)
	}
}

func authModule(desc string) *schema.ModuleIndex {
	m := schema.NewModuleIndex("services")
	m.Files["src/services/auth.ts"] = &schema.IndexEntry{
		Path:     "src/services/auth.ts",
		Module:   "services",
		Semantic: &schema.SemanticAnnotation{Description: desc},
	}
	return m
}

func TestCacheFlush_OrderedAfterUpdate(t *testing.T) {
	h := newHarness(t, nil)

	// An earlier generation the cache has not written yet.
	h.cache.Refresh(&indexer.Result{Modules: map[string]*schema.ModuleIndex{"services": authModule("stale")}})

	// The builder persists its own output before the cache sees it.
	h.indexer.onUpdate = func(changed []string) *indexer.Result {
		fresh := authModule("fresh")
		if err := h.store.SaveModule(fresh); err != nil {
			t.Errorf("SaveModule() failed: %v", err)
		}
		return &indexer.Result{
			Modules: map[string]*schema.ModuleIndex{"services": fresh},
			Touched: changed,
		}
	}

	h.send(
		queue.Event{Type: queue.SourceChanged, Paths: []string{"src/services/auth.ts"}},
		queue.Event{Type: queue.CacheFlush},
	)

	flushes := h.outcomes(queue.CacheFlush)
	if len(flushes) != 1 || !flushes[0].OK {
		t.Fatalf("cache-flush outcomes = %+v", flushes)
	}
	if flushes[0].Detail != "flushed 1 module(s)" {
		t.Errorf("cache-flush detail = %q", flushes[0].Detail)
	}
	if h.cache.UnflushedCount() != 0 {
		t.Errorf("unflushed = %d after flush", h.cache.UnflushedCount())
	}

	loaded, err := h.store.LoadModules()
	if err != nil {
		t.Fatalf("LoadModules() failed: %v", err)
	}
	e := loaded["services"].Files["src/services/auth.ts"]
	if e == nil || e.Semantic == nil || e.Semantic.Description != "fresh" {
		t.Errorf("persisted entry = %+v, want the fresh annotation", e)
	}
}

func TestSessionActivityAndEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.SessionActivity, Tool: "Edit", TokensIn: 10, TokensOut: 5},
		queue.Event{Type: queue.SessionActivity, Tool: "Bash", Failed: true},
		queue.Event{Type: queue.SessionEnd, Session: "other"},
	)
	if h.shutdowns.Load() != 0 {
		t.Error("stale session-end triggered shutdown")
	}

	h.send(queue.Event{Type: queue.SessionEnd, Session: "s1"}, queue.Event{Type: queue.SessionEnd})
	if n := h.shutdowns.Load(); n != 1 {
		t.Errorf("shutdown invoked %d times, want 1", n)
	}

	st, err := baseline.NewSessions(h.dir, quietLogger()).Load("s1")
	if err != nil {
		t.Fatal(err)
	}
	if st.ToolUses["Edit"] != 1 || st.ToolFailures != 1 || st.TokensIn != 10 || st.EventsProcessed != 4 {
		t.Errorf("session = %+v", st)
	}
}

func TestHandle_StaleSessionIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.send(
		queue.Event{Type: queue.GroupRegister, Group: "G1", Expected: []string{"a"}},
		queue.Event{Type: queue.WorkUnitStart, Participant: "a", Session: "old"},
	)

	starts := h.outcomes(queue.WorkUnitStart)
	if len(starts) != 1 || !starts[0].OK || !strings.Contains(starts[0].Detail, "stale") {
		t.Fatalf("start outcomes = %+v, want one ignored stale signal", starts)
	}
	if _, err := baseline.NewStore(h.dir, quietLogger()).Get("a"); !errors.Is(err, baseline.ErrNotFound) {
		t.Errorf("stale start wrote a baseline: %v", err)
	}

	// The same participant from the live session goes through.
	h.send(queue.Event{Type: queue.WorkUnitStart, Participant: "a", Session: "s1"}, complete("a"))
	if g := h.state().Groups["G1"]; g.Status != schema.GroupCompleted {
		t.Errorf("G1 = %+v, want completed", g)
	}
}

func TestLoadState_ResetsUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFile)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	st := LoadState(path, allToggles, quietLogger())
	if st.Groups == nil || len(st.Groups) != 0 || !st.Automation.GroupReports {
		t.Errorf("state = %+v, want default", st)
	}
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.toml")
	content := `[stage]
id = "S1"
name = "auth rewrite"

[[group]]
id = "G1"
expected = ["a", "b"]

[[group]]
id = "G2"
expected = ["c"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	plan, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan() failed: %v", err)
	}
	events := plan.Events()
	if len(events) != 3 || events[0].Type != queue.StageStart || events[2].Group != "G2" || events[1].Stage != "S1" {
		t.Errorf("events = %+v", events)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[stage]\nid = \"S1\"\n[[group]]\nid = \"G1\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlan(bad); err == nil {
		t.Error("LoadPlan() accepted a group without participants")
	}

	typo := filepath.Join(dir, "typo.toml")
	if err := os.WriteFile(typo, []byte(content+"\n[extra]\nx = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlan(typo); err == nil {
		t.Error("LoadPlan() accepted unknown keys")
	}
}
