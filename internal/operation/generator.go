package operation

import (
	"sort"
	"time"

	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// #region types

// CachedEvent is a raw observation waiting to be folded into an
// operation: an external signal that an instance should (or should not)
// be considered triggered as of timestamp.
type CachedEvent struct {
	ID        int64
	ToTrigger bool
	Timestamp time.Duration
}

// VirtualOperation is one entry of a generated operation set: the
// instance id, the timestamp its cached event carried, and the counter
// it had at generation time (used to detect same-slice causality).
type VirtualOperation struct {
	ID        int64
	Timestamp time.Duration
	Counter   uint64
}

// #endregion types

// #region generator

// Generator is the Operation Generator (C6). It buffers one FIFO event
// queue per instance id and, on demand, folds the oldest cached event
// per id into a sequence of causally-ordered operation sets (§4.6).
type Generator struct {
	sg     *graph.SituationGraph
	store  *evolution.Store
	queues map[int64][]CachedEvent
}

// New returns a generator bound to sg and store.
func New(sg *graph.SituationGraph, store *evolution.Store) *Generator {
	return &Generator{sg: sg, store: store, queues: make(map[int64][]CachedEvent)}
}

// CacheEvent appends a raw event to id's queue.
func (g *Generator) CacheEvent(id int64, toTrigger bool, timestamp time.Duration) {
	g.queues[id] = append(g.queues[id], CachedEvent{ID: id, ToTrigger: toTrigger, Timestamp: timestamp})
}

// GenerateOperations merges the oldest cached event per instance id,
// then repeatedly peels off every instance that is the same-slice cause
// of something else in the current set — an instance id2 is a
// same-slice cause of id when id2 is reachable from... rather, id is
// reachable from id2 but not vice versa, and id2's counter matches id's
// — producing a sequence of operation sets ordered causes-first.
//
// cycleTriggered is accepted to mirror the original generator's
// signature but is not yet consumed; the upstream generator notes the
// same gap (merging sync-failure events keyed by cycle membership is a
// follow-up, not part of this pass).
func (g *Generator) GenerateOperations(cycleTriggered map[int64]bool) [][]VirtualOperation {
	current := g.mergeFrontEvents()

	stackMaps := []map[int64]VirtualOperation{current}
	for {
		top := stackMaps[len(stackMaps)-1]
		next := make(map[int64]VirtualOperation)
		hasCause := false

		for id, vo := range top {
			for otherID, other := range top {
				if otherID == id {
					continue
				}
				if !g.sg.IsReachable(otherID, id) || g.sg.IsReachable(id, otherID) {
					continue
				}
				otherInst, err := g.store.Instance(otherID)
				if err != nil || otherInst.Counter != vo.Counter {
					continue
				}
				next[otherID] = other
				hasCause = true
			}
		}

		if !hasCause {
			break
		}

		stackMaps = append(stackMaps, next)
		for id := range next {
			delete(top, id)
		}
	}

	sets := make([][]VirtualOperation, 0, len(stackMaps))
	for i := len(stackMaps) - 1; i >= 0; i-- {
		layer := stackMaps[i]
		if len(layer) == 0 {
			continue
		}
		ops := make([]VirtualOperation, 0, len(layer))
		for _, vo := range layer {
			ops = append(ops, vo)
		}
		sort.Slice(ops, func(a, b int) bool { return ops[a].ID < ops[b].ID })
		sets = append(sets, ops)
	}
	return sets
}

// mergeFrontEvents pops the oldest cached event per id and pairs it with
// that id's current counter.
func (g *Generator) mergeFrontEvents() map[int64]VirtualOperation {
	merged := make(map[int64]VirtualOperation)
	for id, queue := range g.queues {
		if len(queue) == 0 {
			continue
		}
		front := queue[0]
		g.queues[id] = queue[1:]

		inst, err := g.store.Instance(id)
		if err != nil {
			continue
		}
		merged[id] = VirtualOperation{ID: id, Timestamp: front.Timestamp, Counter: inst.Counter}
	}
	return merged
}

// #endregion generator
