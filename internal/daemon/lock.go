package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/steveyegge/atlas/internal/schema"
)

const (
	lockFileName   = "daemon.lock"
	markerFileName = "daemon.pid"
)

var (
	// ErrAlreadyRunning is returned when another daemon holds the lock for
	// the same state directory.
	ErrAlreadyRunning = errors.New("daemon already running")

	// ErrStateDirUnwritable is returned when the state directory cannot be
	// created or written.
	ErrStateDirUnwritable = errors.New("state directory is not writable")

	// ErrNotRunning is returned by Signal when no live daemon is recorded.
	ErrNotRunning = errors.New("daemon not running")
)

// Lock is an exclusive advisory lock on daemon.lock, held for the daemon's
// lifetime. The kernel drops it when the process exits.
type Lock struct {
	file *os.File
}

// AcquireLock takes the daemon lock in stateDir without blocking.
func AcquireLock(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateDirUnwritable, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

// MarkerPath returns the pid marker path in stateDir.
func MarkerPath(stateDir string) string {
	return filepath.Join(stateDir, markerFileName)
}

// WriteMarker records the running daemon.
func WriteMarker(stateDir string, m *schema.DaemonMarker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal daemon marker: %w", err)
	}
	path := MarkerPath(stateDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write daemon marker: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write daemon marker: %w", err)
	}
	return nil
}

// ReadMarker loads the pid marker. It returns (nil, nil) when none exists.
func ReadMarker(stateDir string) (*schema.DaemonMarker, error) {
	data, err := os.ReadFile(MarkerPath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read daemon marker: %w", err)
	}
	var m schema.DaemonMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse daemon marker: %w", err)
	}
	return &m, nil
}

// RemoveMarker deletes the pid marker if present.
func RemoveMarker(stateDir string) error {
	if err := os.Remove(MarkerPath(stateDir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// LiveMarker returns the marker when it names a live process. A marker left
// behind by a dead process is reported as stale.
func LiveMarker(stateDir string) (m *schema.DaemonMarker, stale bool, err error) {
	m, err = ReadMarker(stateDir)
	if err != nil || m == nil {
		return nil, false, err
	}
	if !Alive(m.PID) {
		return nil, true, nil
	}
	return m, false, nil
}

// Signal asks the daemon recorded in stateDir to shut down and waits up to
// timeout for it to exit. A stale marker is removed.
func Signal(stateDir string, timeout time.Duration) (*schema.DaemonMarker, error) {
	m, stale, err := LiveMarker(stateDir)
	if err != nil {
		return nil, err
	}
	if stale {
		RemoveMarker(stateDir)
	}
	if m == nil {
		return nil, ErrNotRunning
	}
	if err := unix.Kill(m.PID, unix.SIGTERM); err != nil {
		return m, fmt.Errorf("failed to signal pid %d: %w", m.PID, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !Alive(m.PID) {
			return m, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return m, fmt.Errorf("daemon pid %d did not exit within %s", m.PID, timeout)
}
