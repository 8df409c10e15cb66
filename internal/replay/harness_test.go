package replay

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/bayes"
	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// two-layer Vertical Sole chain A(1) -> B(2), weight 0.9, matching the
// reasoner package's chain fixture shape.
const twoNodeChain = `{
  "layers": [
    [{"ID": 1, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": [{"ID": 2, "Relation": 0, "Weight-x": 0, "Weight-y": 0.9}]}],
    [{"ID": 2, "type": 0, "Duration": 10000, "Cycle": "null", "threshold": 0.5,
      "Predecessors": [], "Children": []}]
  ]
}`

func loadReplayFixture(t *testing.T, doc string) (*graph.SituationGraph, *evolution.Store) {
	t.Helper()
	store := evolution.NewStore()
	sg, err := graph.LoadJSON([]byte(doc), store)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return sg, store
}

// 1. Single tick: seeding the leaf fires both nodes.
func TestReplay_SingleTick(t *testing.T) {
	sg, store := loadReplayFixture(t, twoNodeChain)
	engine := bayes.NewEngine(zap.NewNop().Sugar())

	results := Replay(sg, store, engine, zap.NewNop().Sugar(), []Tick{
		{Current: time.Second, Triggered: []int64{2}},
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if len(r.Fired) != 1 || r.Fired[0] != 2 {
		t.Errorf("fired = %v, want exactly [2]", r.Fired)
	}
	if r.States[1].State != evolution.Triggered || r.States[2].State != evolution.Triggered {
		t.Errorf("states = %v, want both Triggered", r.States)
	}
}

// 2. Multi-tick: decay between ticks reverts state without touching
// counters, mirroring what the host driver's SC_TIMEOUT loop does
// between SE_TIMEOUT cycles.
func TestReplay_MultiTickDecays(t *testing.T) {
	sg, store := loadReplayFixture(t, twoNodeChain)
	engine := bayes.NewEngine(zap.NewNop().Sugar())

	results := Replay(sg, store, engine, zap.NewNop().Sugar(), []Tick{
		{Current: time.Second, Triggered: []int64{2}},
		{Current: 12 * time.Second, Triggered: []int64{}},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	final := results[1].States
	for _, id := range []int64{1, 2} {
		if final[id].State != evolution.Untriggered {
			t.Errorf("instance %d state = %v, want Untriggered after decay", id, final[id].State)
		}
		if final[id].Counter != 1 {
			t.Errorf("instance %d counter = %d, want unchanged 1", id, final[id].Counter)
		}
	}
}

// 3. No ticks: Replay and Summarize handle the empty case without panicking.
func TestReplay_NoTicks(t *testing.T) {
	sg, store := loadReplayFixture(t, twoNodeChain)
	engine := bayes.NewEngine(zap.NewNop().Sugar())

	results := Replay(sg, store, engine, zap.NewNop().Sugar(), nil)
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}

	summary := Summarize(results)
	if summary.TotalTicks != 0 || summary.TotalFires != 0 {
		t.Errorf("summary = %+v, want zero totals", summary)
	}
}

// 4. Summarize: totals match the per-tick fired counts.
func TestReplay_Summarize(t *testing.T) {
	sg, store := loadReplayFixture(t, twoNodeChain)
	engine := bayes.NewEngine(zap.NewNop().Sugar())

	results := Replay(sg, store, engine, zap.NewNop().Sugar(), []Tick{
		{Current: time.Second, Triggered: []int64{2}},
		{Current: 2 * time.Second, Triggered: []int64{}},
	})

	summary := Summarize(results)
	if summary.TotalTicks != 2 {
		t.Errorf("TotalTicks = %d, want 2", summary.TotalTicks)
	}
	if summary.TotalFires != 1 {
		t.Errorf("TotalFires = %d, want 1", summary.TotalFires)
	}
}

// 5. Check: a satisfied expectation returns nil; a violated one names
// the offending node.
func TestCheck_ReportsMismatch(t *testing.T) {
	final := map[int64]evolution.SituationInstance{
		1: {ID: 1, State: evolution.Triggered, Belief: 0.9},
	}

	if err := Check(final, []Expectation{{NodeID: 1, State: evolution.Triggered}}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}

	err := Check(final, []Expectation{{NodeID: 1, State: evolution.Untriggered}})
	if err == nil {
		t.Fatal("expected error for state mismatch, got nil")
	}

	err = Check(final, []Expectation{{NodeID: 2, State: evolution.Triggered}})
	if err == nil {
		t.Fatal("expected error for missing node, got nil")
	}
}

// 6. Deterministic: the same tick sequence against fresh graphs settles
// to the same final state.
func TestReplay_Deterministic(t *testing.T) {
	sg1, store1 := loadReplayFixture(t, twoNodeChain)
	sg2, store2 := loadReplayFixture(t, twoNodeChain)
	engine1 := bayes.NewEngine(zap.NewNop().Sugar())
	engine2 := bayes.NewEngine(zap.NewNop().Sugar())

	ticks := []Tick{{Current: time.Second, Triggered: []int64{2}}}

	r1 := Replay(sg1, store1, engine1, zap.NewNop().Sugar(), ticks)
	r2 := Replay(sg2, store2, engine2, zap.NewNop().Sugar(), ticks)

	if r1[0].States[1].State != r2[0].States[1].State {
		t.Errorf("state diverged: %v vs %v", r1[0].States[1].State, r2[0].States[1].State)
	}
	if r1[0].States[1].Belief != r2[0].States[1].Belief {
		t.Errorf("belief diverged: %v vs %v", r1[0].States[1].Belief, r2[0].States[1].Belief)
	}
}
