package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/atlas/internal/config"
	"github.com/steveyegge/atlas/internal/eventlog"
	"github.com/steveyegge/atlas/internal/indexer"
	"github.com/steveyegge/atlas/internal/logging"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/workflow"
)

type fakeIndexer struct {
	mu       sync.Mutex
	rebuilds int
	updates  int
	modules  map[string]*schema.ModuleIndex
}

func (f *fakeIndexer) Rebuild(ctx context.Context) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	modules := f.modules
	if modules == nil {
		modules = map[string]*schema.ModuleIndex{}
	}
	return &indexer.Result{
		Full:    true,
		Modules: modules,
		Summary: &schema.Summary{},
	}, nil
}

func (f *fakeIndexer) Update(ctx context.Context, changed []string) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return &indexer.Result{NoOp: true}, nil
}

func (f *fakeIndexer) counts() (rebuilds, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuilds, f.updates
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Watch.Enabled = false
	cfg.Daemon.Session = "s1"
	cfg.Daemon.FlushInterval = 0
	cfg.Daemon.DrainTimeout = 5 * time.Second
	cfg.Log.File = ""
	return cfg
}

// runDaemon starts a daemon in the background and waits until its socket
// answers.
func runDaemon(t *testing.T, cfg *config.Config, idx indexer.Indexer) (*rpc.Client, <-chan error) {
	t.Helper()
	d, err := New(cfg, Options{Sink: logging.Discard(), Indexer: idx, Version: "test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
		}
	})

	client := rpc.NewClient(cfg.SocketPath(), 200*time.Millisecond, 2*time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := client.Status(context.Background()); err == nil {
			return client, done
		}
		select {
		case err := <-done:
			t.Fatalf("Run() exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Daemon socket never came up")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func notify(t *testing.T, client *rpc.Client, p *rpc.NotifyParams) *rpc.NotifyAck {
	t.Helper()
	ack, err := client.Notify(context.Background(), p)
	if err != nil {
		t.Fatalf("Notify(%s) failed: %v", p.Event, err)
	}
	return ack
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return")
	}
}

func TestDaemon_SessionLifecycle(t *testing.T) {
	cfg := testConfig(t)
	idx := &fakeIndexer{}
	client, done := runDaemon(t, cfg, idx)

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Session != "s1" || status.Source != "daemon" {
		t.Errorf("Status() = %+v, want session s1 from daemon", status)
	}
	if m, err := ReadMarker(cfg.StateDir); err != nil || m == nil || m.PID != os.Getpid() {
		t.Fatalf("ReadMarker() = %+v, %v; want marker for this process", m, err)
	}

	notify(t, client, &rpc.NotifyParams{Event: rpc.NotifyGroupRegister, Group: "G1", Expected: []string{"a", "b"}})
	for _, p := range []string{"a", "b"} {
		notify(t, client, &rpc.NotifyParams{Event: rpc.NotifyWorkStart, Session: "s1", Participant: p})
	}
	for _, p := range []string{"a", "b", "a"} {
		notify(t, client, &rpc.NotifyParams{Event: rpc.NotifyWorkComplete, Session: "s1", Participant: p})
	}
	if ack := notify(t, client, &rpc.NotifyParams{Event: rpc.NotifyWorkStart, Session: "old", Participant: "c"}); !ack.Ignored {
		t.Errorf("stale signal ack = %+v, want ignored", ack)
	}
	notify(t, client, &rpc.NotifyParams{Event: rpc.NotifySessionEnd, Session: "s1"})

	waitDone(t, done)

	st := workflow.LoadState(filepath.Join(cfg.StateDir, workflow.StateFile), schema.AutomationToggles{}, quietLogger())
	g := st.Groups["G1"]
	if g == nil || g.Status != schema.GroupCompleted || len(g.Completed) != 2 {
		t.Fatalf("group G1 = %+v, want completed with 2 participants", g)
	}
	if !g.ReportGenerated {
		t.Error("group report was not generated")
	}

	// Fresh state dir: startup schedules a full build.
	if rebuilds, _ := idx.counts(); rebuilds != 1 {
		t.Errorf("rebuilds = %d, want 1", rebuilds)
	}

	if m, _ := ReadMarker(cfg.StateDir); m != nil {
		t.Error("pid marker not removed on shutdown")
	}
	if _, err := os.Stat(cfg.SocketPath()); !os.IsNotExist(err) {
		t.Errorf("socket still present after shutdown: %v", err)
	}

	events, err := eventlog.Open(cfg.StatePath(eventlog.FileName), quietLogger())
	if err != nil {
		t.Fatalf("eventlog.Open() failed: %v", err)
	}
	defer events.Close()
	n, err := events.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	// full-rebuild, register, 2 starts, 3 completes, group-complete, session-end
	if n < 9 {
		t.Errorf("event log holds %d outcomes, want at least 9", n)
	}

	lock, err := AcquireLock(cfg.StateDir)
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	lock.Release()
}

func TestDaemon_PeriodicFlushRunsOnQueue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.FlushInterval = 20 * time.Millisecond

	m := schema.NewModuleIndex("services")
	m.Files["src/services/auth.ts"] = &schema.IndexEntry{Path: "src/services/auth.ts", Module: "services"}
	idx := &fakeIndexer{modules: map[string]*schema.ModuleIndex{"services": m}}
	client, done := runDaemon(t, cfg, idx)

	doc := filepath.Join(cfg.StateDir, "index", "services.json")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(doc); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("module document never flushed")
		}
		time.Sleep(20 * time.Millisecond)
	}

	notify(t, client, &rpc.NotifyParams{Event: rpc.NotifySessionEnd, Session: "s1"})
	waitDone(t, done)

	events, err := eventlog.Open(cfg.StatePath(eventlog.FileName), quietLogger())
	if err != nil {
		t.Fatalf("eventlog.Open() failed: %v", err)
	}
	defer events.Close()
	flushes, err := events.Since(context.Background(), time.Time{}, eventlog.Filter{Event: queue.CacheFlush})
	if err != nil {
		t.Fatalf("Since() failed: %v", err)
	}
	if len(flushes) == 0 || !flushes[0].OK {
		t.Fatalf("cache-flush outcomes = %+v, want a successful flush from the consumer", flushes)
	}
}

func TestDaemon_SecondInstanceRefused(t *testing.T) {
	cfg := testConfig(t)
	runDaemon(t, cfg, &fakeIndexer{})

	second, err := New(cfg, Options{Sink: logging.Discard(), Indexer: &fakeIndexer{}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := second.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	if m, _ := ReadMarker(cfg.StateDir); m == nil {
		t.Error("refused instance removed the running daemon's marker")
	}
}

func TestDaemon_RestartRunsIncrementalPass(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(filepath.Join(cfg.StateDir, "index"), 0755); err != nil {
		t.Fatalf("Failed to create index dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.StateDir, "index", "summary.json"), []byte(`{"files":0}`), 0644); err != nil {
		t.Fatalf("Failed to write summary: %v", err)
	}

	idx := &fakeIndexer{}
	client, done := runDaemon(t, cfg, idx)
	notify(t, client, &rpc.NotifyParams{Event: rpc.NotifySessionEnd})
	waitDone(t, done)

	rebuilds, updates := idx.counts()
	if rebuilds != 0 || updates != 1 {
		t.Errorf("rebuilds=%d updates=%d, want 0 and 1", rebuilds, updates)
	}
}

func TestDaemon_UnwritableStateDir(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the state dir should be.
	if err := os.WriteFile(cfg.StateDir, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write blocker: %v", err)
	}
	d, err := New(cfg, Options{Sink: logging.Discard(), Indexer: &fakeIndexer{}})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrStateDirUnwritable) {
		t.Errorf("Run() error = %v, want ErrStateDirUnwritable", err)
	}
}
