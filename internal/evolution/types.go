package evolution

import (
	"time"

	"github.com/sitosync/reasoner/internal/graph"
)

// #region state

// State is the three-valued lattice an instance occupies during and
// between reasoning cycles (§3, §4.5-P6): Undetermined (bottom),
// Untriggered (middle), Triggered (top).
type State int

const (
	Undetermined State = iota
	Untriggered
	Triggered
)

func (s State) String() string {
	switch s {
	case Triggered:
		return "triggered"
	case Undetermined:
		return "undetermined"
	default:
		return "untriggered"
	}
}

// Combine folds two buffered states per §4.5-P6's commutative table: it
// is the join of the Undetermined < Untriggered < Triggered lattice —
// any Triggered wins outright, otherwise any Untriggered wins, and only
// an all-Undetermined buffer settles Undetermined.
func Combine(a, b State) State {
	if a == Triggered || b == Triggered {
		return Triggered
	}
	if a == Untriggered || b == Untriggered {
		return Untriggered
	}
	return Undetermined
}

// #endregion state

// #region instance

// SituationInstance is the dynamic, per-node counterpart to a
// graph.SituationNode (§3). The reasoner is the sole mutator of its
// fields during a reasoning cycle (§5).
type SituationInstance struct {
	ID            int64
	Kind          graph.NodeKind
	State         State
	Counter       uint64
	Duration      time.Duration
	Cycle         time.Duration
	NextStart     time.Duration
	Belief        float64
	BeliefUpdated bool
	StateBuffer   []State
}

// #endregion instance
