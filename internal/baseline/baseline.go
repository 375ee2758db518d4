// Package baseline persists in-flight work units, completed work records
// and per-session counters.
//
// A Baseline exists from a work unit's start signal until its completion
// is processed. Its presence is the only thing that lets a completion
// through, which makes duplicate completion signals harmless.
package baseline

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/steveyegge/atlas/internal/schema"
)

// ErrNotFound is returned when no baseline exists for a participant.
var ErrNotFound = errors.New("baseline not found")

const baselinesDir = "baselines"

// FileName maps an identifier to a safe file name stem. Identifiers made
// only of safe characters map to themselves. Any other identifier has its
// unsafe characters replaced and gets a "~" plus a hash of the original
// appended; "~" is never safe, so distinct identifiers get distinct stems.
func FileName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == id && strings.Trim(name, ".") != "" {
		return name
	}
	if strings.Trim(name, ".") == "" {
		name = "_"
	}
	return fmt.Sprintf("%s~%016x", name, xxhash.Sum64String(id))
}

// Store keeps one baseline document per participant.
type Store struct {
	dir    string
	logger *log.Logger
}

// NewStore creates a Store under stateDir.
func NewStore(stateDir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[baseline] ", log.LstdFlags)
	}
	return &Store{dir: filepath.Join(stateDir, baselinesDir), logger: logger}
}

func (s *Store) path(participant string) string {
	return filepath.Join(s.dir, FileName(participant)+".json")
}

// Start writes b, replacing any baseline the participant already had.
func (s *Store) Start(b *schema.Baseline) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid baseline: %w", err)
	}
	return schema.WriteJSON(s.path(b.Participant), b)
}

// Get returns the participant's baseline or ErrNotFound.
func (s *Store) Get(participant string) (*schema.Baseline, error) {
	var b schema.Baseline
	if err := schema.ReadJSON(s.path(participant), &b); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if b.Participant != participant {
		return nil, ErrNotFound
	}
	return &b, nil
}

// Delete removes the participant's baseline. A missing baseline is not an
// error.
func (s *Store) Delete(participant string) error {
	if err := os.Remove(s.path(participant)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete baseline for %s: %w", participant, err)
	}
	return nil
}

// List returns every valid baseline ordered by start time.
func (s *Store) List() ([]*schema.Baseline, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*schema.Baseline{}, nil
		}
		return nil, fmt.Errorf("failed to read baselines: %w", err)
	}

	var out []*schema.Baseline
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var b schema.Baseline
		if err := schema.ReadJSON(filepath.Join(s.dir, entry.Name()), &b); err != nil {
			s.logger.Printf("Warning: skipping baseline %s: %v", entry.Name(), err)
			continue
		}
		if err := b.Validate(); err != nil {
			s.logger.Printf("Warning: skipping baseline %s: %v", entry.Name(), err)
			continue
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
