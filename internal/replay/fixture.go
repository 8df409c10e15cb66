package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/bayes"
	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a
// situation graph, the tick sequence to feed it, and the final instance
// states that run should settle into.
type Fixture struct {
	Description string            `json:"description"`
	Graph       json.RawMessage   `json:"graph"`
	Ticks       []FixtureTick     `json:"ticks"`
	Expected    []FixtureExpected `json:"expected"`
}

// FixtureTick mirrors Tick with JSON tags. CurrentMS is milliseconds on
// the run's own clock, matching the host driver's time.Since(startedAt).
type FixtureTick struct {
	CurrentMS int64   `json:"current_ms"`
	Triggered []int64 `json:"triggered"`
}

// FixtureExpected mirrors Expectation with JSON tags. State is the
// lower-case string form evolution.State.String() produces
// ("untriggered", "undetermined", "triggered"). A zero MaxBelief means
// the belief range is not checked.
type FixtureExpected struct {
	NodeID    int64   `json:"node_id"`
	State     string  `json:"state"`
	MinBelief float64 `json:"min_belief"`
	MaxBelief float64 `json:"max_belief"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToTicks converts the fixture's FixtureTick sequence into domain Ticks.
func (f *Fixture) ToTicks() []Tick {
	ticks := make([]Tick, len(f.Ticks))
	for i, ft := range f.Ticks {
		ticks[i] = Tick{
			Current:   time.Duration(ft.CurrentMS) * time.Millisecond,
			Triggered: ft.Triggered,
		}
	}
	return ticks
}

// ToExpectations converts the fixture's expected results into domain
// Expectations, resolving each state string via parseState.
func (f *Fixture) ToExpectations() ([]Expectation, error) {
	out := make([]Expectation, len(f.Expected))
	for i, fe := range f.Expected {
		state, err := parseState(fe.State)
		if err != nil {
			return nil, fmt.Errorf("expected[%d]: %w", i, err)
		}
		out[i] = Expectation{
			NodeID:    fe.NodeID,
			State:     state,
			MinBelief: fe.MinBelief,
			MaxBelief: fe.MaxBelief,
		}
	}
	return out, nil
}

func parseState(s string) (evolution.State, error) {
	switch s {
	case "triggered":
		return evolution.Triggered, nil
	case "undetermined":
		return evolution.Undetermined, nil
	case "untriggered":
		return evolution.Untriggered, nil
	default:
		return 0, fmt.Errorf("unknown state %q", s)
	}
}

// Run loads the fixture's graph, replays its tick sequence, and checks
// the final state snapshot against its expectations.
func (f *Fixture) Run(logger *zap.SugaredLogger) ([]TickResult, error) {
	store := evolution.NewStore()
	sg, err := graph.LoadJSON(f.Graph, store)
	if err != nil {
		return nil, fmt.Errorf("load fixture graph: %w", err)
	}
	engine := bayes.NewEngine(logger)

	results := Replay(sg, store, engine, logger, f.ToTicks())

	expectations, err := f.ToExpectations()
	if err != nil {
		return results, err
	}
	if len(results) > 0 {
		if err := Check(results[len(results)-1].States, expectations); err != nil {
			return results, fmt.Errorf("fixture %q: %w", f.Description, err)
		}
	}
	return results, nil
}

// #endregion fixture-loader
