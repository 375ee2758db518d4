package daemon

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/atlas/internal/discover"
)

// defaultDebounce applies when WatcherConfig.Debounce is not positive.
const defaultDebounce = 2 * time.Second

// WatcherConfig configures a FileWatcher.
type WatcherConfig struct {
	// Roots are directories relative to the matcher root. "." watches the
	// whole project.
	Roots []string

	// StateDir is never watched, even when it sits inside a root.
	StateDir string

	// Debounce is how long the watcher waits after the last change before
	// flushing the pending set as one batch.
	Debounce time.Duration

	// OnBatch receives each flushed batch of root-relative paths, sorted.
	OnBatch func(paths []string)

	Logger *log.Logger
}

// FileWatcher watches source directories recursively and reports changed
// files in debounced batches.
//
// Every relevant change adds its path to a pending set and restarts a single
// timer. When the timer fires the whole set is handed to OnBatch at once.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	matcher  *discover.Matcher
	roots    []string
	stateDir string
	debounce time.Duration
	onBatch  func(paths []string)
	logger   *log.Logger

	done    chan struct{}
	wg      sync.WaitGroup
	flushes sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	pending map[string]struct{}
	timer   *time.Timer
}

// NewFileWatcher creates a watcher. It must be started with Start before it
// reports anything.
func NewFileWatcher(matcher *discover.Matcher, cfg WatcherConfig) (*FileWatcher, error) {
	if matcher == nil {
		return nil, fmt.Errorf("matcher cannot be nil")
	}
	if cfg.OnBatch == nil {
		return nil, fmt.Errorf("OnBatch cannot be nil")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[watcher] ", log.LstdFlags)
	}
	if len(cfg.Roots) == 0 {
		cfg.Roots = []string{"."}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	stateDir := cfg.StateDir
	if stateDir != "" {
		if abs, err := filepath.Abs(stateDir); err == nil {
			stateDir = abs
		}
	}

	return &FileWatcher{
		watcher:  watcher,
		matcher:  matcher,
		roots:    cfg.Roots,
		stateDir: stateDir,
		debounce: cfg.Debounce,
		onBatch:  cfg.OnBatch,
		logger:   cfg.Logger,
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}, nil
}

// Start registers every non-excluded directory under the roots and begins
// processing events. Missing roots are skipped.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}
	if fw.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	dirs := 0
	for _, r := range fw.roots {
		start := filepath.Join(fw.matcher.Root(), filepath.FromSlash(r))
		info, err := os.Stat(start)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat root %s: %w", r, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("root %s is not a directory", r)
		}
		n, err := fw.addTree(start, nil)
		if err != nil {
			fw.watcher.Close()
			return err
		}
		dirs += n
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	fw.logger.Printf("Watching %d directories (debounce %s)", dirs, fw.debounce)
	return nil
}

// Stop stops watching, flushes any pending changes immediately and blocks
// until every batch callback has returned.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	wasRunning := fw.running
	fw.running = false
	fw.stopped = true
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	if wasRunning {
		fw.wg.Wait()
	}

	fw.mu.Lock()
	var batch []string
	if fw.timer != nil && fw.timer.Stop() {
		// The timer had not fired, so its callback never will.
		fw.flushes.Done()
		fw.timer = nil
		batch = fw.takePending()
	}
	fw.mu.Unlock()

	if len(batch) > 0 {
		fw.onBatch(batch)
	}
	fw.flushes.Wait()

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// PendingCount returns the number of paths waiting for the next flush.
func (fw *FileWatcher) PendingCount() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.pending)
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Printf("Warning: watcher error: %v", err)
		}
	}
}

// handle queues a file change or registers a newly created directory.
func (fw *FileWatcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if fw.inStateDir(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Files written before the watch was registered are picked up
			// by the walk.
			var found []string
			if _, err := fw.addTree(event.Name, &found); err != nil {
				fw.logger.Printf("Warning: failed to watch %s: %v", event.Name, err)
			}
			fw.queue(found...)
			return
		}
	}

	rel, ok := fw.matcher.Rel(event.Name)
	if !ok || !fw.matcher.Included(rel) {
		return
	}
	fw.queue(rel)
}

// addTree registers dir and every non-excluded directory below it. When
// found is non-nil, included files are appended to it.
func (fw *FileWatcher) addTree(dir string, found *[]string) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			if found != nil {
				if rel, ok := fw.matcher.Rel(p); ok && fw.matcher.Included(rel) {
					*found = append(*found, rel)
				}
			}
			return nil
		}
		if fw.inStateDir(p) {
			return filepath.SkipDir
		}
		if rel, ok := fw.matcher.Rel(p); ok && fw.matcher.ExcludedDir(rel) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", p, err)
		}
		added++
		return nil
	})
	return added, err
}

func (fw *FileWatcher) inStateDir(p string) bool {
	if fw.stateDir == "" {
		return false
	}
	return p == fw.stateDir || strings.HasPrefix(p, fw.stateDir+string(filepath.Separator))
}

// queue adds paths to the pending set and restarts the debounce timer.
func (fw *FileWatcher) queue(paths ...string) {
	if len(paths) == 0 {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.stopped {
		return
	}
	for _, p := range paths {
		fw.pending[p] = struct{}{}
	}

	switch {
	case fw.timer == nil:
		fw.flushes.Add(1)
		fw.timer = time.AfterFunc(fw.debounce, fw.fire)
	case fw.timer.Stop():
		fw.timer.Reset(fw.debounce)
	default:
		// fire is already running and will pick these paths up once it
		// gets the lock.
	}
}

func (fw *FileWatcher) fire() {
	defer fw.flushes.Done()

	fw.mu.Lock()
	fw.timer = nil
	batch := fw.takePending()
	fw.mu.Unlock()

	if len(batch) > 0 {
		fw.onBatch(batch)
	}
}

// takePending returns the pending set sorted and clears it. Callers hold mu.
func (fw *FileWatcher) takePending() []string {
	if len(fw.pending) == 0 {
		return nil
	}
	batch := make([]string, 0, len(fw.pending))
	for p := range fw.pending {
		batch = append(batch, p)
	}
	fw.pending = make(map[string]struct{})
	sort.Strings(batch)
	return batch
}
