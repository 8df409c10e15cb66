package provenance

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers

func openLog(t *testing.T) *Log {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log, err := NewLog(db)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	return log
}

// #endregion helpers

// #region tests

func TestAppendWritesRow(t *testing.T) {
	log := openLog(t)
	entry := CycleEntry{
		Cycle:      3 * time.Second,
		NodeID:     1,
		Decision:   "triggered",
		Pass:       "p7",
		Belief:     0.82,
		Counter:    1,
		Reason:     "posterior above threshold",
		RecordedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := log.Append(entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	var count int
	log.db.QueryRow("SELECT COUNT(*) FROM reasoning_log").Scan(&count)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}

	var decision, pass string
	var cycleMS int64
	log.db.QueryRow("SELECT decision, pass, cycle_ms FROM reasoning_log").Scan(&decision, &pass, &cycleMS)
	if decision != "triggered" || pass != "p7" || cycleMS != 3000 {
		t.Errorf("got decision=%q pass=%q cycle_ms=%d", decision, pass, cycleMS)
	}
}

func TestAppendDefaultsRecordedAt(t *testing.T) {
	log := openLog(t)
	before := time.Now().UTC()
	if err := log.Append(CycleEntry{NodeID: 2, Decision: "untriggered", Pass: "p6"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var recordedAtStr string
	log.db.QueryRow("SELECT recorded_at FROM reasoning_log").Scan(&recordedAtStr)
	recordedAt, err := time.Parse(time.RFC3339Nano, recordedAtStr)
	if err != nil {
		t.Fatalf("parse recorded_at: %v", err)
	}
	if recordedAt.Before(before) {
		t.Error("expected auto-filled recorded_at to be >= test start time")
	}
}

func TestAppendEmptyReasonIsNull(t *testing.T) {
	log := openLog(t)
	if err := log.Append(CycleEntry{NodeID: 3, Decision: "no_op", Pass: "p8"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var reason sql.NullString
	log.db.QueryRow("SELECT reason FROM reasoning_log").Scan(&reason)
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestAppendBatchStopsOnFirstError(t *testing.T) {
	log := openLog(t)
	log.db.Close()

	err := log.AppendBatch([]CycleEntry{{NodeID: 1, Decision: "triggered", Pass: "p1"}})
	if err == nil {
		t.Fatal("expected error appending to a closed db")
	}
}

// #endregion tests
