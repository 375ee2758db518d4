package daemon

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/steveyegge/atlas/internal/schema"
)

func TestAcquireLock_Exclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock() failed: %v", err)
	}
	if _, err := AcquireLock(dir); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second AcquireLock() error = %v, want ErrAlreadyRunning", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Errorf("second Release() failed: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock() after Release() failed: %v", err)
	}
	again.Release()
}

func TestAcquireLock_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	missing := dir + "/does/not/exist"
	if _, err := AcquireLock(missing); !errors.Is(err, ErrStateDirUnwritable) {
		t.Errorf("AcquireLock() error = %v, want ErrStateDirUnwritable", err)
	}
}

func TestMarker_RoundTripAndLiveness(t *testing.T) {
	dir := t.TempDir()

	if m, err := ReadMarker(dir); err != nil || m != nil {
		t.Fatalf("ReadMarker() on empty dir = %v, %v; want nil, nil", m, err)
	}

	want := &schema.DaemonMarker{
		PID:       os.Getpid(),
		SessionID: "abcd1234",
		Socket:    "/tmp/atlas.sock",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:   "test",
	}
	if err := WriteMarker(dir, want); err != nil {
		t.Fatalf("WriteMarker() failed: %v", err)
	}

	m, stale, err := LiveMarker(dir)
	if err != nil {
		t.Fatalf("LiveMarker() failed: %v", err)
	}
	if stale || m == nil {
		t.Fatalf("LiveMarker() = %v, stale=%v; want live marker", m, stale)
	}
	if m.SessionID != want.SessionID || m.Socket != want.Socket || !m.StartedAt.Equal(want.StartedAt) {
		t.Errorf("LiveMarker() = %+v, want %+v", m, want)
	}

	if err := RemoveMarker(dir); err != nil {
		t.Fatalf("RemoveMarker() failed: %v", err)
	}
	if err := RemoveMarker(dir); err != nil {
		t.Errorf("RemoveMarker() on missing marker failed: %v", err)
	}
}

func TestSignal_StaleMarker(t *testing.T) {
	dir := t.TempDir()

	if _, err := Signal(dir, time.Second); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Signal() without marker error = %v, want ErrNotRunning", err)
	}

	// pid 0 never names a live daemon.
	if err := WriteMarker(dir, &schema.DaemonMarker{PID: 0, SessionID: "old"}); err != nil {
		t.Fatalf("WriteMarker() failed: %v", err)
	}
	if _, err := Signal(dir, time.Second); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Signal() with stale marker error = %v, want ErrNotRunning", err)
	}
	if m, _ := ReadMarker(dir); m != nil {
		t.Error("Signal() should remove a stale marker")
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("Alive(self) = false")
	}
	if Alive(0) || Alive(-1) {
		t.Error("Alive() should be false for non-positive pids")
	}
}
