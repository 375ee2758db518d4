package baseline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/steveyegge/atlas/internal/schema"
)

const workDir = "work"

// WorkLog stores completed work records, one file per completion.
type WorkLog struct {
	dir string
}

// NewWorkLog creates a WorkLog under stateDir.
func NewWorkLog(stateDir string) *WorkLog {
	return &WorkLog{dir: filepath.Join(stateDir, workDir)}
}

// Save writes r and returns its file name.
func (w *WorkLog) Save(r *schema.WorkRecord) (string, error) {
	name := FileName(r.Participant) + fmt.Sprintf("-%d.json", r.CompletedAt.UnixNano())
	if err := schema.WriteJSON(filepath.Join(w.dir, name), r); err != nil {
		return "", err
	}
	return name, nil
}

// Load reads the record stored under name.
func (w *WorkLog) Load(name string) (*schema.WorkRecord, error) {
	var r schema.WorkRecord
	if err := schema.ReadJSON(filepath.Join(w.dir, filepath.Base(name)), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes the record stored under name. A missing record is not an
// error.
func (w *WorkLog) Delete(name string) error {
	if err := os.Remove(filepath.Join(w.dir, filepath.Base(name))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete work record %s: %w", name, err)
	}
	return nil
}

// LoadAll reads the named records, skipping any that are missing.
func (w *WorkLog) LoadAll(names []string) []*schema.WorkRecord {
	var out []*schema.WorkRecord
	for _, name := range names {
		if r, err := w.Load(name); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// List returns every record file name, oldest first.
func (w *WorkLog) List() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read work records: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
