// Package cache holds the index in memory and answers queries against it.
//
// Queries read an immutable snapshot that is swapped atomically after each
// build, so they never wait on re-indexing. The same query code serves the
// daemon and the CLI's direct-from-disk fallback.
package cache

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/steveyegge/atlas/internal/indexer"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/store"
)

const findCacheSize = 512

// snapshot is one immutable view of the index.
type snapshot struct {
	generation uint64
	loadedAt   time.Time
	modules    map[string]*schema.ModuleIndex
	summary    *schema.Summary
	files      []*schema.IndexEntry // sorted by path
}

func newSnapshot(gen uint64, modules map[string]*schema.ModuleIndex, summary *schema.Summary) *snapshot {
	s := &snapshot{
		generation: gen,
		loadedAt:   time.Now(),
		modules:    modules,
		summary:    summary,
	}
	for _, m := range modules {
		for _, e := range m.Files {
			s.files = append(s.files, e)
		}
	}
	sort.Slice(s.files, func(i, j int) bool { return s.files[i].Path < s.files[j].Path })
	return s
}

type findKey struct {
	generation uint64
	keyword    string
}

// Cache is the in-memory index. It is safe for concurrent use.
type Cache struct {
	store  *store.Store
	logger *log.Logger

	snap       atomic.Pointer[snapshot]
	generation atomic.Uint64
	finds      *lru.Cache[findKey, []Hit]

	mu        sync.Mutex
	dirty     map[string]struct{}
	unflushed map[string]struct{}
}

// New creates an empty cache over st.
func New(st *store.Store, logger *log.Logger) (*Cache, error) {
	finds, err := lru.New[findKey, []Hit](findCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create find cache: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	c := &Cache{
		store:     st,
		logger:    logger,
		finds:     finds,
		dirty:     make(map[string]struct{}),
		unflushed: make(map[string]struct{}),
	}
	c.swap(make(map[string]*schema.ModuleIndex), nil)
	return c, nil
}

// Open creates a cache and loads it from st.
func Open(st *store.Store, logger *log.Logger) (*Cache, error) {
	c, err := New(st, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) swap(modules map[string]*schema.ModuleIndex, summary *schema.Summary) *snapshot {
	s := newSnapshot(c.generation.Add(1), modules, summary)
	c.snap.Store(s)
	return s
}

func (c *Cache) current() *snapshot {
	return c.snap.Load()
}

// Load replaces the snapshot with every module document on disk.
func (c *Cache) Load() error {
	modules, err := c.store.LoadModules()
	if err != nil {
		return err
	}
	summary, err := c.store.LoadSummary()
	if err != nil {
		return err
	}
	s := c.swap(modules, summary)
	c.logger.Printf("Loaded %d files in %d modules", len(s.files), len(modules))
	return nil
}

// Generation returns the snapshot generation; it increases on every swap.
func (c *Cache) Generation() uint64 {
	return c.current().generation
}

// Summary returns the summary of the current snapshot, if any.
func (c *Cache) Summary() *schema.Summary {
	return c.current().summary
}

// Modules returns the modules of the current snapshot. Callers must not
// modify them.
func (c *Cache) Modules() map[string]*schema.ModuleIndex {
	return c.current().modules
}

// Refresh applies a build result. Full results replace the snapshot; others
// replace only the modules they name.
func (c *Cache) Refresh(res *indexer.Result) {
	if res == nil || res.NoOp {
		return
	}
	if res.Full {
		c.Replace(res.Modules, res.Summary)
		return
	}

	prev := c.current()
	modules := make(map[string]*schema.ModuleIndex, len(prev.modules)+len(res.Modules))
	for name, m := range prev.modules {
		modules[name] = m
	}
	for _, name := range res.RemovedModules {
		delete(modules, name)
	}
	for name, m := range res.Modules {
		modules[name] = m.Clone()
	}

	c.mu.Lock()
	for _, name := range res.RemovedModules {
		delete(c.unflushed, name)
	}
	for name := range res.Modules {
		c.unflushed[name] = struct{}{}
	}
	c.mu.Unlock()

	c.swap(modules, res.Summary)
}

// Replace swaps in a complete set of modules.
func (c *Cache) Replace(modules map[string]*schema.ModuleIndex, summary *schema.Summary) {
	copied := make(map[string]*schema.ModuleIndex, len(modules))
	for name, m := range modules {
		copied[name] = m.Clone()
	}

	c.mu.Lock()
	c.unflushed = make(map[string]struct{}, len(copied))
	for name := range copied {
		c.unflushed[name] = struct{}{}
	}
	c.mu.Unlock()

	c.swap(copied, summary)
}

// UpdateFiles marks paths dirty for the next build. The snapshot is not
// changed. It returns the number of dirty paths.
func (c *Cache) UpdateFiles(paths []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			c.dirty[p] = struct{}{}
		}
	}
	return len(c.dirty)
}

// DirtyCount returns the number of paths waiting for a build.
func (c *Cache) DirtyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// DrainDirty returns and clears the dirty set, sorted.
func (c *Cache) DrainDirty() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.dirty))
	for p := range c.dirty {
		out = append(out, p)
	}
	c.dirty = make(map[string]struct{})
	sort.Strings(out)
	return out
}

// UnflushedCount returns the number of modules changed since the last flush.
func (c *Cache) UnflushedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unflushed)
}

// Flush writes every module changed since the last flush back to the
// store. It returns the number of documents written.
func (c *Cache) Flush() (int, error) {
	c.mu.Lock()
	names := make([]string, 0, len(c.unflushed))
	for name := range c.unflushed {
		names = append(names, name)
	}
	c.unflushed = make(map[string]struct{})
	c.mu.Unlock()
	if len(names) == 0 {
		return 0, nil
	}
	sort.Strings(names)

	s := c.current()
	written := 0
	for i, name := range names {
		m, ok := s.modules[name]
		if !ok {
			continue
		}
		if err := c.store.SaveModule(m); err != nil {
			c.mu.Lock()
			for _, rest := range names[i:] {
				c.unflushed[rest] = struct{}{}
			}
			c.mu.Unlock()
			return written, fmt.Errorf("failed to flush module %s: %w", name, err)
		}
		written++
	}
	return written, nil
}
