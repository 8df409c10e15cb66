package replay

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/bayes"
	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
	"github.com/sitosync/reasoner/internal/reasoner"
)

// #region types

// Tick is one scheduled SE_TIMEOUT cycle in a replay run: the set of
// situation ids reported triggered at a point on the run's own clock.
type Tick struct {
	Current   time.Duration
	Triggered []int64
}

// TickResult captures the outcome of replaying one tick through the
// full P1-P8 pipeline.
type TickResult struct {
	Current time.Duration
	Fired   []int64
	States  map[int64]evolution.SituationInstance
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTicks int
	TotalFires int
	States     map[int64]evolution.SituationInstance
}

// Expectation pins down what a fixture expects of one instance after
// the full tick sequence has run.
type Expectation struct {
	NodeID    int64
	State     evolution.State
	MinBelief float64
	MaxBelief float64
}

// #endregion types

// #region replay

// Replay feeds ticks through a Reasoner bound to sg/store/engine in
// order, one reasoning cycle per tick. Operates entirely in-memory and
// mirrors how the host driver's SE_TIMEOUT loop presents ticks: in
// non-decreasing Current order, one map[int64]bool of triggers per tick.
func Replay(sg *graph.SituationGraph, store *evolution.Store, engine *bayes.Engine, logger *zap.SugaredLogger, ticks []Tick) []TickResult {
	r := reasoner.New(sg, store, engine, logger)
	results := make([]TickResult, 0, len(ticks))

	for _, tick := range ticks {
		triggered := make(map[int64]bool, len(tick.Triggered))
		for _, id := range tick.Triggered {
			triggered[id] = true
		}

		fired := r.Reason(triggered, tick.Current)
		firedIDs := make([]int64, 0, len(fired))
		for id := range fired {
			firedIDs = append(firedIDs, id)
		}

		results = append(results, TickResult{
			Current: tick.Current,
			Fired:   firedIDs,
			States:  store.Snapshot(),
		})
	}

	return results
}

// Summarize computes aggregate stats from a replay run, keyed on the
// last tick's state snapshot.
func Summarize(results []TickResult) Summary {
	s := Summary{TotalTicks: len(results), States: make(map[int64]evolution.SituationInstance)}
	for _, r := range results {
		s.TotalFires += len(r.Fired)
		s.States = r.States
	}
	return s
}

// Check compares a final state snapshot against expectations and
// returns a descriptive error for the first mismatch, or nil if every
// expectation holds.
func Check(final map[int64]evolution.SituationInstance, expectations []Expectation) error {
	for _, exp := range expectations {
		inst, ok := final[exp.NodeID]
		if !ok {
			return fmt.Errorf("node %d: no final instance recorded", exp.NodeID)
		}
		if inst.State != exp.State {
			return fmt.Errorf("node %d: expected state %s, got %s", exp.NodeID, exp.State, inst.State)
		}
		if exp.MaxBelief > 0 && (inst.Belief < exp.MinBelief || inst.Belief > exp.MaxBelief) {
			return fmt.Errorf("node %d: belief %f outside [%f, %f]", exp.NodeID, inst.Belief, exp.MinBelief, exp.MaxBelief)
		}
	}
	return nil
}

// #endregion replay
