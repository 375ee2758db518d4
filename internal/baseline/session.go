package baseline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/steveyegge/atlas/internal/schema"
)

const sessionsDir = "sessions"

var timeNow = time.Now

// NewSessionID derives an 8-hex-character id from the process id and the
// current time.
func NewSessionID() string {
	sum := xxhash.Sum64String(fmt.Sprintf("%d-%d", os.Getpid(), timeNow().UnixNano()))
	return fmt.Sprintf("%08x", uint32(sum))
}

// Sessions persists SessionState documents.
type Sessions struct {
	dir    string
	logger *log.Logger
}

// NewSessions creates a Sessions store under stateDir.
func NewSessions(stateDir string, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Sessions{dir: filepath.Join(stateDir, sessionsDir), logger: logger}
}

func (s *Sessions) path(id string) string {
	return filepath.Join(s.dir, FileName(id)+".json")
}

// Load resumes the session with id, or starts a new one. An unreadable
// document is replaced by a fresh state.
func (s *Sessions) Load(id string) (*schema.SessionState, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	var st schema.SessionState
	err := schema.ReadJSON(s.path(id), &st)
	switch {
	case err == nil && st.ID == id:
		s.logger.Printf("Resumed session %s (%d events processed)", id, st.EventsProcessed)
		return &st, nil
	case err != nil && !os.IsNotExist(err):
		s.logger.Printf("Warning: resetting unreadable session %s: %v", id, err)
	}
	now := timeNow()
	return &schema.SessionState{ID: id, StartedAt: now, UpdatedAt: now, ToolUses: make(map[string]int)}, nil
}

// Save writes st.
func (s *Sessions) Save(st *schema.SessionState) error {
	st.UpdatedAt = timeNow()
	return schema.WriteJSON(s.path(st.ID), st)
}
