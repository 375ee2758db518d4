// Package eventlog persists queue outcomes in an embedded SQLite database
// so they can be inspected after the daemon exits.
//
// Architecture:
//   - Database file: .atlas/events.db
//   - WAL mode: `atlas log` reads while the daemon writes
//   - Schema: one outcomes table indexed by start time and event type
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/atlas/internal/queue"
)

// FileName is the database name under the state directory.
const FileName = "events.db"

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Log wraps the outcomes database.
type Log struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

var _ queue.Sink = (*Log)(nil)

// Open opens or creates the database at path and ensures its schema.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
func Open(path string, logger *log.Logger) (*Log, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[eventlog] ", log.LstdFlags)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l := &Log{conn: conn, path: path, logger: logger}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}
	if err := l.initSchema(context.Background()); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database path.
func (l *Log) Path() string { return l.path }

// Close checkpoints the WAL and closes the database.
func (l *Log) Close() error {
	if l.conn == nil {
		return nil
	}
	if _, err := l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		l.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	l.conn = nil
	return nil
}

func (l *Log) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		event TEXT NOT NULL,
		participant TEXT,
		group_id TEXT,
		stage TEXT,
		ok INTEGER NOT NULL,
		detail TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_started ON outcomes(started_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_event ON outcomes(event);
	`
	if _, err := l.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Record implements queue.Sink. Write failures are logged; the queue never
// waits on a broken log.
func (l *Log) Record(o queue.Outcome) {
	if err := l.Insert(context.Background(), o); err != nil {
		l.logger.Printf("Warning: failed to record outcome %d: %v", o.Seq, err)
	}
}

// Insert stores one outcome.
func (l *Log) Insert(ctx context.Context, o queue.Outcome) error {
	ok := 0
	if o.OK {
		ok = 1
	}
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO outcomes (seq, event, participant, group_id, stage, ok, detail, error, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Seq, string(o.Event), o.Participant, o.Group, o.Stage, ok, o.Detail, o.Error,
		o.StartedAt.UTC().Format(timeFormat), int64(o.Duration))
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// Filter narrows a Since query.
type Filter struct {
	// Event restricts results to one event type (empty = all)
	Event queue.Type
	// FailedOnly returns only failed outcomes
	FailedOnly bool
	// Limit restricts the number of results, newest kept (0 = no limit)
	Limit int
}

// Since returns outcomes that started at or after t, oldest first.
func (l *Log) Since(ctx context.Context, t time.Time, f Filter) ([]queue.Outcome, error) {
	conditions := []string{"started_at >= ?"}
	args := []interface{}{t.UTC().Format(timeFormat)}
	if f.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, string(f.Event))
	}
	if f.FailedOnly {
		conditions = append(conditions, "ok = 0")
	}

	query := `
		SELECT seq, event, participant, group_id, stage, ok, detail, error, started_at, duration_ns
		FROM outcomes
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY started_at DESC, id DESC
	`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	out, err := scanOutcomes(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of stored outcomes.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM outcomes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return n, nil
}

// Prune deletes outcomes that started before t and returns how many were
// removed.
func (l *Log) Prune(ctx context.Context, t time.Time) (int64, error) {
	res, err := l.conn.ExecContext(ctx, "DELETE FROM outcomes WHERE started_at < ?", t.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

func scanOutcomes(rows *sql.Rows) ([]queue.Outcome, error) {
	var out []queue.Outcome
	for rows.Next() {
		var (
			o                         queue.Outcome
			event, startedAt          string
			participant, group, stage sql.NullString
			detail, errText           sql.NullString
			ok                        int
			duration                  int64
		)
		if err := rows.Scan(&o.Seq, &event, &participant, &group, &stage, &ok, &detail, &errText, &startedAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Event = queue.Type(event)
		o.Participant = participant.String
		o.Group = group.String
		o.Stage = stage.String
		o.OK = ok == 1
		o.Detail = detail.String
		o.Error = errText.String
		o.Duration = time.Duration(duration)
		if t, err := time.Parse(timeFormat, startedAt); err == nil {
			o.StartedAt = t
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return out, nil
}
