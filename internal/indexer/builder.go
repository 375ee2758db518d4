package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/atlas/internal/config"
	"github.com/steveyegge/atlas/internal/discover"
	"github.com/steveyegge/atlas/internal/drift"
	"github.com/steveyegge/atlas/internal/health"
	"github.com/steveyegge/atlas/internal/parser"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/store"
)

var timeNow = time.Now

// Builder indexes the project. Runs are serialized.
type Builder struct {
	root       string
	roots      []string
	categories map[string]string
	oversized  int
	workers    int

	store   *store.Store
	parser  parser.Parser
	matcher *discover.Matcher
	drift   *drift.Detector
	logger  *log.Logger

	mu sync.Mutex
}

// New creates a Builder. detector may be nil, in which case Update only
// considers changed and staged paths.
func New(cfg *config.Config, st *store.Store, p parser.Parser, detector *drift.Detector, logger *log.Logger) (*Builder, error) {
	matcher, err := discover.NewMatcher(cfg.Root, cfg.Index.Include, cfg.Index.Exclude, cfg.Index.RespectGitignore)
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[indexer] ", log.LstdFlags)
	}
	return &Builder{
		root:       cfg.Root,
		roots:      cfg.Index.Roots,
		categories: cfg.Index.Categories,
		oversized:  cfg.Index.OversizedLines,
		workers:    cfg.Index.Workers,
		store:      st,
		parser:     p,
		matcher:    matcher,
		drift:      detector,
		logger:     logger,
	}, nil
}

// Matcher returns the include/exclude matcher the Builder uses.
func (b *Builder) Matcher() *discover.Matcher { return b.matcher }

// ModuleFor returns the module bucket for a root-relative path: the first
// directory segment found in categories, else schema.DefaultModule.
func ModuleFor(p string, categories map[string]string) string {
	segs := strings.Split(p, "/")
	for _, seg := range segs[:len(segs)-1] {
		if m, ok := categories[strings.ToLower(seg)]; ok {
			return m
		}
	}
	return schema.DefaultModule
}

// normalize converts an absolute or relative path to the index form.
func (b *Builder) normalize(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if filepath.IsAbs(p) {
		return b.matcher.Rel(p)
	}
	rel := path.Clean(filepath.ToSlash(p))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", false
	}
	return rel, true
}

type parsed struct {
	path    string
	entry   *schema.IndexEntry
	missing bool
	err     error
}

func (b *Builder) parseFile(rel string) parsed {
	abs := filepath.Join(b.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return parsed{path: rel, missing: true}
		}
		return parsed{path: rel, err: err}
	}
	if !info.Mode().IsRegular() {
		return parsed{path: rel, missing: true}
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return parsed{path: rel, err: err}
	}
	rec, err := b.parser.Parse(rel, src)
	if err != nil {
		return parsed{path: rel, err: err}
	}
	return parsed{path: rel, entry: &schema.IndexEntry{
		Path:        rel,
		Module:      ModuleFor(rel, b.categories),
		Record:      *rec,
		IndexedAt:   timeNow(),
		SourceMtime: info.ModTime(),
	}}
}

// parseAll parses paths on a bounded worker pool. Results keep the order of
// paths.
func (b *Builder) parseAll(ctx context.Context, paths []string) ([]parsed, error) {
	results := make([]parsed, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.parseFile(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Builder) skip(res *Result, r parsed) {
	if errors.Is(r.err, parser.ErrUnsupported) {
		return
	}
	res.Skipped = append(res.Skipped, &SkipError{Path: r.path, Err: r.err})
	b.logger.Printf("Warning: skipping %s: %v", r.path, r.err)
}

// Rebuild re-indexes every source file under the configured roots.
func (b *Builder) Rebuild(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()

	files, err := b.matcher.Files(b.roots)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	prior, err := b.store.LoadModules()
	if err != nil {
		return nil, err
	}
	batch, err := b.store.Pending().Read()
	if err != nil {
		return nil, err
	}
	staging := stage(batch.Entries, b.normalize)
	priorEntries := flatten(prior)

	results, err := b.parseAll(ctx, files)
	if err != nil {
		return nil, err
	}

	res := &Result{Full: true, Annotations: len(batch.Entries)}
	modules := make(map[string]*schema.ModuleIndex)
	indexed := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r.entry == nil {
			if r.err != nil {
				b.skip(res, r)
			}
			continue
		}
		staging.apply(r.entry, priorEntries[r.path])
		m := modules[r.entry.Module]
		if m == nil {
			m = schema.NewModuleIndex(r.entry.Module)
			modules[r.entry.Module] = m
		}
		m.Files[r.path] = r.entry
		indexed[r.path] = struct{}{}
		res.Touched = append(res.Touched, r.path)
	}
	for p := range priorEntries {
		if _, ok := indexed[p]; !ok {
			res.Removed = append(res.Removed, p)
		}
	}
	sort.Strings(res.Removed)
	b.logUnapplied(staging, indexed)

	now := timeNow()
	for _, m := range modules {
		m.UpdatedAt = now
		if err := b.store.SaveModule(m); err != nil {
			return nil, err
		}
	}
	for name := range prior {
		if _, ok := modules[name]; ok {
			continue
		}
		if err := b.store.RemoveModule(name); err != nil {
			return nil, err
		}
		res.RemovedModules = append(res.RemovedModules, name)
	}
	sort.Strings(res.RemovedModules)

	res.Modules = modules
	res.Summary = Summarize(modules, b.oversized, 0)
	if err := b.finish(res.Summary, batch); err != nil {
		return nil, err
	}

	b.logger.Printf("Rebuilt index: %d files in %d modules, %d skipped (%s)",
		len(res.Touched), len(modules), len(res.Skipped), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Update re-indexes the union of changed, staged and drifted paths and
// rewrites only the module documents that changed. With nothing to touch it
// writes nothing and returns the last summary.
func (b *Builder) Update(ctx context.Context, changed []string) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()

	modules, err := b.store.LoadModules()
	if err != nil {
		return nil, err
	}
	batch, err := b.store.Pending().Read()
	if err != nil {
		return nil, err
	}
	staging := stage(batch.Entries, b.normalize)

	touch := make(map[string]struct{})
	for _, p := range changed {
		if rel, ok := b.normalize(p); ok {
			touch[rel] = struct{}{}
		}
	}
	for _, p := range staging.paths() {
		touch[p] = struct{}{}
	}
	if b.drift != nil && len(modules) > 0 {
		report, err := b.drift.Check(ctx, modules)
		if err != nil {
			b.logger.Printf("Warning: drift check failed: %v", err)
		} else {
			for _, p := range report.Drifted() {
				touch[p] = struct{}{}
			}
		}
	}

	if len(touch) == 0 {
		return b.noop()
	}

	owner := make(map[string]string)
	for name, m := range modules {
		for p := range m.Files {
			owner[p] = name
		}
	}

	res := &Result{Annotations: len(batch.Entries)}
	dirty := make(map[string]bool)
	remove := func(p string) {
		name, ok := owner[p]
		if !ok {
			return
		}
		delete(modules[name].Files, p)
		delete(owner, p)
		dirty[name] = true
		res.Removed = append(res.Removed, p)
	}

	var toParse []string
	for _, p := range sortedKeys(touch) {
		if !b.matcher.Included(p) {
			remove(p)
			continue
		}
		toParse = append(toParse, p)
	}

	results, err := b.parseAll(ctx, toParse)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]struct{})
	stale := 0
	for _, r := range results {
		switch {
		case r.missing:
			remove(r.path)
		case r.err != nil:
			b.skip(res, r)
			if _, ok := owner[r.path]; ok {
				stale++
			}
		default:
			var old *schema.IndexEntry
			if name, ok := owner[r.path]; ok {
				old = modules[name].Files[r.path]
				if name != r.entry.Module {
					delete(modules[name].Files, r.path)
					dirty[name] = true
				}
			}
			staging.apply(r.entry, old)
			m := modules[r.entry.Module]
			if m == nil {
				m = schema.NewModuleIndex(r.entry.Module)
				modules[r.entry.Module] = m
			}
			m.Files[r.path] = r.entry
			owner[r.path] = r.entry.Module
			dirty[r.entry.Module] = true
			indexed[r.path] = struct{}{}
			res.Touched = append(res.Touched, r.path)
		}
	}
	b.logUnapplied(staging, indexed)

	if len(dirty) == 0 && batch.Offset == 0 {
		return b.noop()
	}

	now := timeNow()
	res.Modules = make(map[string]*schema.ModuleIndex)
	for _, name := range sortedKeys(dirty) {
		m := modules[name]
		if len(m.Files) == 0 {
			if err := b.store.RemoveModule(name); err != nil {
				return nil, err
			}
			delete(modules, name)
			res.RemovedModules = append(res.RemovedModules, name)
			continue
		}
		m.UpdatedAt = now
		if err := b.store.SaveModule(m); err != nil {
			return nil, err
		}
		res.Modules[name] = m
	}

	res.Summary = Summarize(modules, b.oversized, stale)
	if err := b.finish(res.Summary, batch); err != nil {
		return nil, err
	}

	b.logger.Printf("Updated index: %d touched, %d removed, %d modules rewritten (%s)",
		len(res.Touched), len(res.Removed), len(res.Modules)+len(res.RemovedModules), time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (b *Builder) noop() (*Result, error) {
	sum, err := b.store.LoadSummary()
	if err != nil {
		return nil, err
	}
	return &Result{Summary: sum, NoOp: true}, nil
}

// finish writes the summary and drops the consumed pending lines.
func (b *Builder) finish(sum *schema.Summary, batch *store.Batch) error {
	if err := b.store.SaveSummary(sum); err != nil {
		return err
	}
	if err := b.store.Pending().Truncate(batch.Offset); err != nil {
		return err
	}
	if batch.Dropped > 0 {
		b.logger.Printf("Warning: dropped %d malformed pending annotation(s)", batch.Dropped)
	}
	return nil
}

func (b *Builder) logUnapplied(s *staged, indexed map[string]struct{}) {
	n := 0
	for _, p := range s.paths() {
		if _, ok := indexed[p]; !ok {
			n++
		}
	}
	if n > 0 {
		b.logger.Printf("Discarded annotations for %d unindexed path(s)", n)
	}
}

// Summarize aggregates modules into a Summary with alerts and health.
// drifted is the number of entries known to be stale.
func Summarize(modules map[string]*schema.ModuleIndex, oversizedLines, drifted int) *schema.Summary {
	sum := &schema.Summary{
		GeneratedAt: timeNow(),
		Modules:     make(map[string]schema.ModuleRollup, len(modules)),
	}
	for name, m := range modules {
		var roll schema.ModuleRollup
		for _, e := range m.Files {
			roll.Files++
			roll.Methods += len(e.Record.Functions)
			roll.Classes += e.Record.ClassCount()
			roll.Interfaces += e.Record.Interfaces()
			roll.Lines += e.Record.Lines
		}
		sum.Modules[name] = roll
		sum.Files += roll.Files
		sum.Methods += roll.Methods
		sum.Classes += roll.Classes
		sum.Interfaces += roll.Interfaces
		sum.Lines += roll.Lines
	}
	sum.Alerts = health.Alerts(modules, oversizedLines)
	sum.Health = health.Assess(modules, drifted, sum.Alerts)
	return sum
}

func flatten(modules map[string]*schema.ModuleIndex) map[string]*schema.IndexEntry {
	out := make(map[string]*schema.IndexEntry)
	for _, m := range modules {
		for p, e := range m.Files {
			out[p] = e
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
