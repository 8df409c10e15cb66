package provenance

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS reasoning_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_ms    INTEGER NOT NULL,
    node_id     INTEGER NOT NULL,
    decision    TEXT NOT NULL,
    pass        TEXT NOT NULL,
    belief      REAL NOT NULL DEFAULT 0,
    counter     INTEGER NOT NULL DEFAULT 0,
    reason      TEXT,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reasoning_log_node ON reasoning_log(node_id);
CREATE INDEX IF NOT EXISTS idx_reasoning_log_cycle ON reasoning_log(cycle_ms);
`

// #endregion schema

// #region store

// Log owns the reasoning_log table, an append-only provenance trail.
// The reasoner does not write to it; the host driver appends one row per
// emitted operation after each SE_TIMEOUT cycle, outside the reasoner's
// staged commit (§5 — provenance is an observable side effect).
type Log struct {
	db *sql.DB
}

// NewLog creates the reasoning_log table if absent and returns a Log
// bound to db.
func NewLog(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("reasoning log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes entry to the log. RecordedAt defaults to now if zero.
func (l *Log) Append(entry CycleEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(
		`INSERT INTO reasoning_log (cycle_ms, node_id, decision, pass, belief, counter, reason, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Cycle.Milliseconds(),
		entry.NodeID,
		entry.Decision,
		entry.Pass,
		entry.Belief,
		entry.Counter,
		nullIfEmpty(entry.Reason),
		entry.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append reasoning log entry: %w", err)
	}
	return nil
}

// AppendBatch writes every entry in entries, stopping at the first error.
func (l *Log) AppendBatch(entries []CycleEntry) error {
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion store
