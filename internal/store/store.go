// Package store persists the index: one JSON document per module bucket,
// the summary of the last build, and the pending annotation queue.
package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/atlas/internal/schema"
)

const (
	indexDirName    = "index"
	summaryFileName = "summary.json"
	pendingFileName = "pending.jsonl"
)

// Store reads and writes index documents under a state directory.
type Store struct {
	stateDir string
	logger   *log.Logger
	pending  *PendingQueue
}

// New creates a Store rooted at stateDir. A nil logger discards warnings.
func New(stateDir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		stateDir: stateDir,
		logger:   logger,
		pending:  NewPendingQueue(filepath.Join(stateDir, pendingFileName)),
	}
}

// StateDir returns the state directory.
func (s *Store) StateDir() string { return s.stateDir }

// IndexDir returns the directory holding module documents.
func (s *Store) IndexDir() string { return filepath.Join(s.stateDir, indexDirName) }

// Pending returns the pending annotation queue.
func (s *Store) Pending() *PendingQueue { return s.pending }

// CheckWritable creates the state directory and verifies a file can be
// written to it.
func (s *Store) CheckWritable() error {
	if err := os.MkdirAll(s.IndexDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	probe, err := os.CreateTemp(s.stateDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("state directory %s is not writable: %w", s.stateDir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

func (s *Store) modulePath(name string) string {
	return filepath.Join(s.IndexDir(), name+".json")
}

// LoadModules reads every module document. Unreadable documents are logged
// and skipped; the next full rebuild replaces them.
func (s *Store) LoadModules() (map[string]*schema.ModuleIndex, error) {
	modules := make(map[string]*schema.ModuleIndex)
	entries, err := os.ReadDir(s.IndexDir())
	if err != nil {
		if os.IsNotExist(err) {
			return modules, nil
		}
		return nil, fmt.Errorf("failed to read index directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == summaryFileName {
			continue
		}
		m, err := s.LoadModule(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Printf("Warning: skipping module document %s: %v", name, err)
			continue
		}
		modules[m.Module] = m
	}
	return modules, nil
}

// LoadModule reads one module document.
func (s *Store) LoadModule(name string) (*schema.ModuleIndex, error) {
	var m schema.ModuleIndex
	if err := schema.ReadJSON(s.modulePath(name), &m); err != nil {
		return nil, err
	}
	if m.Files == nil {
		m.Files = make(map[string]*schema.IndexEntry)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid module document %s: %w", name, err)
	}
	return &m, nil
}

// SaveModule writes one module document atomically.
func (s *Store) SaveModule(m *schema.ModuleIndex) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid module: %w", err)
	}
	return schema.WriteJSON(s.modulePath(m.Module), m)
}

// RemoveModule deletes a module document. Missing documents are not an error.
func (s *Store) RemoveModule(name string) error {
	if err := os.Remove(s.modulePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove module %s: %w", name, err)
	}
	return nil
}

// LoadSummary returns the last summary, or nil if none has been written.
func (s *Store) LoadSummary() (*schema.Summary, error) {
	var sum schema.Summary
	if err := schema.ReadJSON(filepath.Join(s.IndexDir(), summaryFileName), &sum); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &sum, nil
}

// SaveSummary writes the summary atomically.
func (s *Store) SaveSummary(sum *schema.Summary) error {
	return schema.WriteJSON(filepath.Join(s.IndexDir(), summaryFileName), sum)
}
