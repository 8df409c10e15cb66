package evolution

import (
	"fmt"
	"time"

	"github.com/sitosync/reasoner/internal/graph"
)

// #region store

// Store owns the set of SituationInstances keyed by id. It is built once
// from the graph at load time and then mutated exclusively by the
// reasoner during a cycle (§4.4, §5). Store satisfies graph.InstanceRegistrar
// so the loader can populate it directly while it builds the graph.
type Store struct {
	instances map[int64]*SituationInstance
}

// NewStore returns an empty evolution store.
func NewStore() *Store {
	return &Store{instances: make(map[int64]*SituationInstance)}
}

// AddInstance registers a fresh instance for id, or — if id is already
// present — overwrites its duration and cycle, last-write-wins (§4.4).
func (s *Store) AddInstance(id int64, kind graph.NodeKind, duration, cycle time.Duration) error {
	if existing, ok := s.instances[id]; ok {
		existing.Duration = duration
		existing.Cycle = cycle
		return nil
	}
	s.instances[id] = &SituationInstance{
		ID:       id,
		Kind:     kind,
		State:    Untriggered,
		Duration: duration,
		Cycle:    cycle,
	}
	return nil
}

// Instance returns a mutable pointer to the instance for id.
func (s *Store) Instance(id int64) (*SituationInstance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("no instance registered for id %d", id)
	}
	return inst, nil
}

// MustInstance is Instance without the error return, for call sites that
// have already established id exists (e.g. iterating graph node ids).
func (s *Store) MustInstance(id int64) *SituationInstance {
	return s.instances[id]
}

// Instances returns every instance, in no particular order.
func (s *Store) Instances() []*SituationInstance {
	out := make([]*SituationInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	return out
}

// Len reports the number of registered instances.
func (s *Store) Len() int {
	return len(s.instances)
}

// Snapshot returns a value-copy of every instance, keyed by id. The
// reasoner mutates a snapshot for the duration of one cycle and only
// calls Commit at the very end, so that no partial cycle is ever
// observable from outside (§5, §7).
func (s *Store) Snapshot() map[int64]SituationInstance {
	out := make(map[int64]SituationInstance, len(s.instances))
	for id, inst := range s.instances {
		out[id] = *inst
	}
	return out
}

// Commit overwrites every instance named in scratch with its scratch
// value. Ids present in the store but absent from scratch are left
// untouched.
func (s *Store) Commit(scratch map[int64]SituationInstance) {
	for id, v := range scratch {
		if existing, ok := s.instances[id]; ok {
			*existing = v
		} else {
			v := v
			s.instances[id] = &v
		}
	}
}

// #endregion store
