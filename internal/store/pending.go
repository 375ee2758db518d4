package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/steveyegge/atlas/internal/schema"
)

// PendingQueue is the append-only JSONL staging file for annotations.
// Writers append; the builder reads a prefix and truncates exactly that
// prefix, so lines appended meanwhile survive to the next run.
//
// The CLI and the daemon write the same file from different processes, so
// every operation also holds an advisory lock on a sibling ".lock" file.
type PendingQueue struct {
	path string
	mu   sync.Mutex
}

// NewPendingQueue returns a queue backed by path.
func NewPendingQueue(path string) *PendingQueue {
	return &PendingQueue{path: path}
}

// Path returns the backing file.
func (q *PendingQueue) Path() string { return q.path }

// lock takes the in-process mutex and the cross-process file lock. The
// returned func releases both.
func (q *PendingQueue) lock() (func(), error) {
	q.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(q.path), 0755); err != nil {
		q.mu.Unlock()
		return nil, err
	}
	f, err := os.OpenFile(q.path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		q.mu.Unlock()
		return nil, fmt.Errorf("failed to open pending lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		q.mu.Unlock()
		return nil, fmt.Errorf("failed to lock pending queue: %w", err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		q.mu.Unlock()
	}, nil
}

// Append stages one annotation.
func (q *PendingQueue) Append(p *schema.PendingAnnotation) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pending annotation: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending annotation: %w", err)
	}

	unlock, err := q.lock()
	if err != nil {
		return err
	}
	defer unlock()

	file, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open pending queue: %w", err)
	}
	defer file.Close()

	_, err = file.Write(append(data, '\n'))
	return err
}

// Batch is the result of reading the queue.
type Batch struct {
	Entries []schema.PendingAnnotation
	// Offset is the byte length of the complete lines read.
	Offset int64
	// Dropped counts malformed or invalid lines.
	Dropped int
}

// Read returns every complete, valid line. A trailing partial line is left
// for the next read.
func (q *PendingQueue) Read() (*Batch, error) {
	unlock, err := q.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return &Batch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}

	batch := &Batch{}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return batch, nil
	}
	batch.Offset = int64(end + 1)

	for _, line := range bytes.Split(data[:end], []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var p schema.PendingAnnotation
		if err := json.Unmarshal(line, &p); err != nil {
			batch.Dropped++
			continue
		}
		if err := p.Validate(); err != nil {
			batch.Dropped++
			continue
		}
		batch.Entries = append(batch.Entries, p)
	}
	return batch, nil
}

// Truncate removes the first offset bytes, keeping anything appended after
// the matching Read.
func (q *PendingQueue) Truncate(offset int64) error {
	if offset <= 0 {
		return nil
	}

	unlock, err := q.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read pending queue: %w", err)
	}
	if int64(len(data)) <= offset {
		if err := os.Truncate(q.path, 0); err != nil {
			return fmt.Errorf("failed to truncate pending queue: %w", err)
		}
		return nil
	}
	return schema.WriteFileAtomic(q.path, data[offset:])
}
