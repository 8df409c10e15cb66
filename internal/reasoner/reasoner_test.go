package reasoner

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/bayes"
	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// #region fixtures

// chainGraph is the S1/S4 fixture: a three-layer Vertical Sole chain
// A -> B -> C, weights 0.9 and 0.8, all durations 10s.
const chainGraph = `{
  "layers": [
    [{"ID": 1, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": [{"ID": 2, "Relation": 0, "Weight-x": 0, "Weight-y": 0.9}]}],
    [{"ID": 2, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": [{"ID": 3, "Relation": 0, "Weight-x": 0, "Weight-y": 0.8}]}],
    [{"ID": 3, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": []}]
  ]
}`

// andGateGraph is the S2 fixture: P with three Vertical And children
// C1/C2/C3 weighted 0.9/0.8/0.7.
const andGateGraph = `{
  "layers": [
    [{"ID": 1, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": [
        {"ID": 2, "Relation": 1, "Weight-x": 0, "Weight-y": 0.9},
        {"ID": 3, "Relation": 1, "Weight-x": 0, "Weight-y": 0.8},
        {"ID": 4, "Relation": 1, "Weight-x": 0, "Weight-y": 0.7}
      ]}],
    [
      {"ID": 2, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5, "Predecessors": [], "Children": []},
      {"ID": 3, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5, "Predecessors": [], "Children": []},
      {"ID": 4, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5, "Predecessors": [], "Children": []}
    ]
  ]
}`

// orGateGraph is the S3 fixture: P with two Vertical Or children C1/C2
// weighted 0.6/0.3.
const orGateGraph = `{
  "layers": [
    [{"ID": 1, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": [
        {"ID": 2, "Relation": 2, "Weight-x": 0, "Weight-y": 0.6},
        {"ID": 3, "Relation": 2, "Weight-x": 0, "Weight-y": 0.3}
      ]}],
    [
      {"ID": 2, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5, "Predecessors": [], "Children": []},
      {"ID": 3, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5, "Predecessors": [], "Children": []}
    ]
  ]
}`

func loadFixture(t *testing.T, doc string) (*graph.SituationGraph, *evolution.Store) {
	t.Helper()
	store := evolution.NewStore()
	sg, err := graph.LoadJSON([]byte(doc), store)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return sg, store
}

func newReasoner(sg *graph.SituationGraph, store *evolution.Store) *Reasoner {
	return New(sg, store, bayes.NewEngine(zap.NewNop().Sugar()), zap.NewNop().Sugar())
}

// #endregion fixtures

// #region chain

// TestReasonChainPropagatesCountersAndFires exercises S1: seeding the
// bottom of a Sole chain triggers every ancestor via P2 and the
// operational result is exactly the bottom node.
func TestReasonChainPropagatesCountersAndFires(t *testing.T) {
	sg, store := loadFixture(t, chainGraph)
	r := newReasoner(sg, store)

	fired := r.Reason(map[int64]bool{3: true}, time.Second)

	if !fired[3] || len(fired) != 1 {
		t.Errorf("fired = %v, want exactly {3}", fired)
	}
	a, b, c := store.MustInstance(1), store.MustInstance(2), store.MustInstance(3)
	if a.Counter != 1 || b.Counter != 1 || c.Counter != 1 {
		t.Errorf("counters = A:%d B:%d C:%d, want 1/1/1", a.Counter, b.Counter, c.Counter)
	}
	if a.State != evolution.Triggered || b.State != evolution.Triggered || c.State != evolution.Triggered {
		t.Errorf("states = A:%v B:%v C:%v, want all Triggered", a.State, b.State, c.State)
	}
}

// TestCheckStateDecaysExpiredInstances exercises S4: once next_start +
// duration has elapsed, CheckState reverts every triggered instance to
// Untriggered without touching counters.
func TestCheckStateDecaysExpiredInstances(t *testing.T) {
	sg, store := loadFixture(t, chainGraph)
	r := newReasoner(sg, store)

	r.Reason(map[int64]bool{3: true}, time.Second)
	r.CheckState(12 * time.Second)

	for _, id := range []int64{1, 2, 3} {
		inst := store.MustInstance(id)
		if inst.State != evolution.Untriggered {
			t.Errorf("instance %d state = %v, want Untriggered after decay", id, inst.State)
		}
		if inst.Counter != 1 {
			t.Errorf("instance %d counter = %d, want unchanged 1", id, inst.Counter)
		}
	}
}

// #endregion chain

// #region and-gate

// TestReasonAndGateCombinesViaDempster exercises S2: three leaves all
// triggered feed an And-gate parent; belief(P) is the iterated Dempster
// combination of their weighted leaf priors (0.8 each times its weight).
func TestReasonAndGateCombinesViaDempster(t *testing.T) {
	sg, store := loadFixture(t, andGateGraph)
	r := newReasoner(sg, store)

	fired := r.Reason(map[int64]bool{2: true, 3: true, 4: true}, 3*time.Second)

	want := []int64{2, 3, 4}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for _, id := range want {
		if !fired[id] {
			t.Errorf("expected %d to have fired", id)
		}
	}

	p := store.MustInstance(1)
	const wantBelief = 0.853333333333
	if math.Abs(p.Belief-wantBelief) > 1e-6 {
		t.Errorf("belief(P) = %v, want %v", p.Belief, wantBelief)
	}
	if p.State != evolution.Triggered {
		t.Errorf("P.state = %v, want Triggered", p.State)
	}
	if p.Counter != 1 {
		t.Errorf("P.counter = %v, want 1 (propagated via P2)", p.Counter)
	}
}

// #endregion and-gate

// #region or-gate

// TestReasonOrGateTakesMaxOfWeightedLeaves exercises S3: only C1 fires,
// so belief(P) is the max of the weighted leaf priors — 0.8, not 1 —
// since the bottom-layer expert prior (not the raw trigger flag) feeds
// the Or combination, and the result stays below P's threshold.
func TestReasonOrGateTakesMaxOfWeightedLeaves(t *testing.T) {
	sg, store := loadFixture(t, orGateGraph)
	r := newReasoner(sg, store)

	fired := r.Reason(map[int64]bool{2: true}, 3*time.Second)

	if !fired[2] || len(fired) != 1 {
		t.Errorf("fired = %v, want exactly {2}", fired)
	}

	p := store.MustInstance(1)
	const wantBelief = 0.48
	if math.Abs(p.Belief-wantBelief) > 1e-9 {
		t.Errorf("belief(P) = %v, want %v", p.Belief, wantBelief)
	}
	if p.State != evolution.Untriggered {
		t.Errorf("P.state = %v, want Untriggered (belief below threshold)", p.State)
	}
}

// #endregion or-gate

// #region determinism

// TestReasonIsIdempotentWithoutNewTriggers confirms a cycle with no
// fresh triggers and nothing left to decay leaves state untouched
// (testable property: repeated reason calls settle to a fixed point).
func TestReasonIsIdempotentWithoutNewTriggers(t *testing.T) {
	sg, store := loadFixture(t, chainGraph)
	r := newReasoner(sg, store)

	r.Reason(map[int64]bool{3: true}, time.Second)
	before := snapshotStates(store)

	r.Reason(map[int64]bool{}, 2*time.Second)
	after := snapshotStates(store)

	for id, want := range before {
		if after[id] != want {
			t.Errorf("instance %d state drifted from %v to %v with no new triggers", id, want, after[id])
		}
	}
}

func snapshotStates(store *evolution.Store) map[int64]evolution.State {
	out := make(map[int64]evolution.State)
	for _, inst := range store.Instances() {
		out[inst.ID] = inst.State
	}
	return out
}

// #endregion determinism
