package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/atlas/internal/baseline"
	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/config"
	"github.com/steveyegge/atlas/internal/dashboard"
	"github.com/steveyegge/atlas/internal/discover"
	"github.com/steveyegge/atlas/internal/drift"
	"github.com/steveyegge/atlas/internal/eventlog"
	"github.com/steveyegge/atlas/internal/indexer"
	"github.com/steveyegge/atlas/internal/logging"
	"github.com/steveyegge/atlas/internal/parser"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/report"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/store"
	"github.com/steveyegge/atlas/internal/vcs"
	"github.com/steveyegge/atlas/internal/workflow"
)

// eventRetention bounds how long outcomes stay in the event log.
const eventRetention = 30 * 24 * time.Hour

// Options supplies collaborators that are not derived from the config.
type Options struct {
	// Sink carries the daemon's loggers. Defaults to stderr.
	Sink *logging.Sink

	// Version is recorded in the pid marker.
	Version string

	// VCS overrides detection. When nil the project root is probed and
	// the daemon runs without version control if none is found.
	VCS vcs.VCS

	// Indexer overrides the tree-sitter builder.
	Indexer indexer.Indexer

	// Narrator overrides the report narrator chosen from reports.model.
	Narrator report.Narrator
}

// Daemon is one running atlas process for a project.
type Daemon struct {
	cfg     *config.Config
	opts    Options
	sink    *logging.Sink
	logger  *log.Logger
	session string

	lock     *Lock
	store    *store.Store
	indexer  indexer.Indexer
	cache    *cache.Cache
	queue    *queue.Queue
	engine   *workflow.Engine
	notifier *Notifier
	rpc      *rpc.Server
	watcher  *FileWatcher
	events   *eventlog.Log
	dash     *dashboard.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// New validates cfg and returns a daemon. Nothing is started until Run.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	sink := opts.Sink
	if sink == nil {
		sink = logging.Stderr()
	}
	session := cfg.Daemon.Session
	if session == "" {
		session = baseline.NewSessionID()
	}
	return &Daemon{
		cfg:     cfg,
		opts:    opts,
		sink:    sink,
		logger:  sink.Logger("daemon"),
		session: session,
	}, nil
}

// SessionID returns the id of the session this daemon serves.
func (d *Daemon) SessionID() string { return d.session }

// Run starts the daemon and blocks until ctx is cancelled or the session
// ends, then shuts down in order.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
	case <-d.ctx.Done():
		d.logger.Println("Session ended")
	}
	return d.Stop()
}

// start brings components up leaf first. A failure releases whatever was
// already acquired.
func (d *Daemon) start(ctx context.Context) (err error) {
	d.logger.Printf("Starting daemon for %s (session %s)", d.cfg.Root, d.session)

	d.store = store.New(d.cfg.StateDir, d.sink.Logger("store"))
	if err := d.store.CheckWritable(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateDirUnwritable, err)
	}

	d.lock, err = AcquireLock(d.cfg.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			d.teardown()
		}
	}()

	d.ctx, d.cancel = context.WithCancel(context.Background())

	v := d.opts.VCS
	if v == nil {
		v, err = vcs.GetForPath(d.cfg.Root, vcs.WithPreferredType(vcs.Type(d.cfg.VCS.Prefer)))
		if err != nil {
			if !vcs.IsFatal(err) {
				return fmt.Errorf("failed to detect version control: %w", err)
			}
			d.logger.Printf("Warning: running without version control: %v", err)
			v, err = nil, nil
		}
	}

	d.indexer = d.opts.Indexer
	if d.indexer == nil {
		detector := drift.New(d.cfg.Root, d.cfg.Drift.MtimeTolerance, v, d.sink.Logger("drift"))
		b, err := indexer.New(d.cfg, d.store, parser.New(), detector, d.sink.Logger("indexer"))
		if err != nil {
			return fmt.Errorf("failed to create indexer: %w", err)
		}
		d.indexer = b
	}

	d.cache, err = cache.Open(d.store, d.sink.Logger("cache"))
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	d.queue = queue.New(nil, d.sink.Logger("queue"))
	d.engine, err = workflow.New(workflow.Options{
		Root:      d.cfg.Root,
		StateDir:  d.cfg.StateDir,
		Toggles:   d.cfg.Automation.Toggles(),
		Indexer:   d.indexer,
		Cache:     d.cache,
		Queue:     d.queue,
		Pending:   d.store.Pending(),
		SessionID: d.session,
		VCS:       v,
		Reporter:  report.NewWriter(d.cfg.StateDir, d.narrator(), d.cfg.Reports.Timeout, d.sink.Logger("report")),
		Shutdown:  d.cancel,
		Logger:    d.sink.Logger("workflow"),
	})
	if err != nil {
		return err
	}
	d.queue.SetHandler(d.engine)

	d.openEventLog(ctx)
	if err := d.startDashboard(); err != nil {
		return err
	}

	d.notifier = NewNotifier(d.queue, d.cache, d.session, d.sink.Logger("daemon"))
	d.rpc = rpc.NewServer(d.cfg.SocketPath(), d.cache, d.notifier, d.sink.Logger("rpc"))
	if err := d.rpc.Start(); err != nil {
		return err
	}

	if err := WriteMarker(d.cfg.StateDir, &schema.DaemonMarker{
		PID:       os.Getpid(),
		SessionID: d.session,
		Socket:    d.cfg.SocketPath(),
		StartedAt: time.Now(),
		Version:   d.opts.Version,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStateDirUnwritable, err)
	}

	// The consumer is not tied to d.ctx so a session-end can still drain
	// the events queued behind it. queue.Stop cancels it.
	d.queue.Start(context.Background())
	d.enqueueStartup()

	if d.cfg.Watch.Enabled {
		if err := d.startWatcher(); err != nil {
			return err
		}
	}

	if d.cfg.Daemon.FlushInterval > 0 {
		d.wg.Add(1)
		go d.flushLoop(d.cfg.Daemon.FlushInterval)
	}

	d.logger.Printf("Daemon ready (socket %s)", d.cfg.SocketPath())
	return nil
}

// narrator picks the report narrator. An empty reports.model keeps reports
// template-only.
func (d *Daemon) narrator() report.Narrator {
	if d.opts.Narrator != nil {
		return d.opts.Narrator
	}
	if d.cfg.Reports.Model == "" {
		return nil
	}
	return report.NewAnthropicNarrator("", d.cfg.Reports.Model, d.cfg.Reports.MaxTokens, d.cfg.Reports.Timeout)
}

// openEventLog attaches the sqlite outcome log. The daemon runs without it
// when the database cannot be opened.
func (d *Daemon) openEventLog(ctx context.Context) {
	l, err := eventlog.Open(d.cfg.StatePath(eventlog.FileName), d.sink.Logger("eventlog"))
	if err != nil {
		d.logger.Printf("Warning: event log disabled: %v", err)
		return
	}
	if n, err := l.Prune(ctx, time.Now().Add(-eventRetention)); err != nil {
		d.logger.Printf("Warning: failed to prune event log: %v", err)
	} else if n > 0 {
		d.logger.Printf("Pruned %d old outcome(s) from event log", n)
	}
	d.events = l
	d.queue.AddSink(l)
}

func (d *Daemon) startDashboard() error {
	if d.cfg.Dashboard.Port == 0 {
		return nil
	}
	d.dash = dashboard.NewServer(dashboard.Config{
		Port:   d.cfg.Dashboard.Port,
		Stats:  func() any { return d.cache.Stats() },
		Logger: d.sink.Logger("dashboard"),
	})
	if err := d.dash.Start(); err != nil {
		d.dash = nil
		return fmt.Errorf("failed to start dashboard: %w", err)
	}
	d.queue.AddSink(dashboard.NewHandler(d.dash))
	d.logger.Printf("Dashboard at http://%s/", d.dash.Addr())
	return nil
}

// enqueueStartup schedules a full build for a fresh state dir, otherwise
// an incremental pass that picks up drift since the last run.
func (d *Daemon) enqueueStartup() {
	sum, err := d.store.LoadSummary()
	if err != nil {
		d.logger.Printf("Warning: unreadable summary, rebuilding: %v", err)
	}
	ev := queue.Event{Type: queue.SourceChanged}
	if sum == nil {
		ev.Type = queue.FullRebuild
	}
	if _, err := d.queue.Enqueue(ev); err != nil {
		d.logger.Printf("Warning: failed to queue startup %s: %v", ev.Type, err)
	}
}

func (d *Daemon) startWatcher() error {
	matcher := d.matcher()
	if matcher == nil {
		return nil
	}
	w, err := NewFileWatcher(matcher, WatcherConfig{
		Roots:    d.cfg.Index.Roots,
		StateDir: d.cfg.StateDir,
		Debounce: d.cfg.Watch.Debounce,
		OnBatch:  d.onBatch,
		Logger:   d.sink.Logger("watcher"),
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	d.watcher = w
	return nil
}

// matcher returns the builder's matcher, or a fresh one when the indexer
// was supplied by the caller.
func (d *Daemon) matcher() *discover.Matcher {
	if b, ok := d.indexer.(*indexer.Builder); ok {
		return b.Matcher()
	}
	m, err := discover.NewMatcher(d.cfg.Root, d.cfg.Index.Include, d.cfg.Index.Exclude, d.cfg.Index.RespectGitignore)
	if err != nil {
		d.logger.Printf("Warning: file watching disabled: %v", err)
		return nil
	}
	return m
}

// onBatch receives debounced watcher batches.
func (d *Daemon) onBatch(paths []string) {
	d.cache.UpdateFiles(paths)
	if _, err := d.queue.Enqueue(queue.Event{Type: queue.SourceChanged, Paths: paths}); err != nil {
		// Still marked dirty; the next source-changed picks them up.
		d.logger.Printf("Warning: %d changed file(s) not queued: %v", len(paths), err)
		return
	}
	d.logger.Printf("Queued %d changed file(s)", len(paths))
}

func (d *Daemon) flushLoop(interval time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.cache.UnflushedCount() == 0 {
				continue
			}
			// Flushing on the consumer keeps it ordered against builds,
			// which persist modules themselves.
			if _, err := d.queue.Enqueue(queue.Event{Type: queue.CacheFlush}); err != nil {
				return
			}
		}
	}
}

// flush writes unflushed modules directly. Only called once the queue has
// stopped.
func (d *Daemon) flush() {
	n, err := d.cache.Flush()
	if err != nil {
		d.logger.Printf("Warning: cache flush failed: %v", err)
		return
	}
	if n > 0 {
		d.logger.Printf("Flushed %d module(s)", n)
	}
}

// Stop shuts the daemon down in order. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Println("Stopping daemon")
		d.stopErr = d.teardown()
		d.logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// teardown releases every started component, in shutdown order.
func (d *Daemon) teardown() error {
	var errs []error

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if d.queue != nil {
		drain := d.cfg.Daemon.DrainTimeout
		if drain <= 0 {
			drain = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), drain)
		if err := d.queue.WaitIdle(ctx); err != nil {
			d.logger.Printf("Warning: queue not drained after %s (%d left)", drain, d.queue.Depth())
		}
		cancel()
		d.queue.Stop()
	}

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	if d.cache != nil {
		d.flush()
	}
	if d.rpc != nil {
		if err := d.rpc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop socket server: %w", err))
		}
	}
	if d.dash != nil {
		if err := d.dash.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop dashboard: %w", err))
		}
	}
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event log: %w", err))
		}
	}
	if d.lock != nil {
		if err := RemoveMarker(d.cfg.StateDir); err != nil {
			errs = append(errs, err)
		}
		if err := d.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
