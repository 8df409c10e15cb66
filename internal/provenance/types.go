package provenance

import "time"

// #region entry

// CycleEntry is a single row in the reasoning_log table: one decision
// about one instance in one cycle. Serialised for later replay and audit,
// the way the original logs each cycle's decisions to a CSV/JSON trace
// file (§9's external-collaborator note).
type CycleEntry struct {
	Cycle      time.Duration
	NodeID     int64
	Decision   string // e.g. "triggered" | "untriggered" | "no_op"; the host driver writes "emitted"
	Pass       string // which stage produced the row: p1..p8, or "operation" for an emitted operation
	Belief     float64
	Counter    uint64
	Reason     string
	RecordedAt time.Time
}

// #endregion entry
