package bayes

import (
	"time"

	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// #region engine

// Engine is the Bayesian-Network Inference Engine (C4): it builds a
// binary Bayesian network from a situation graph's relations, constructs
// a CPT per node from the AND/OR/SOLE case logic, and performs marginal
// inference to refine every Undetermined instance's belief and state
// (§4.3). It holds no state of its own across cycles.
//
// A node's network parents are its Horizontal causes plus its Vertical
// children (see cpt.go's partitionParents) — in both cases the
// evidence-providing nodes precede the node they support, so the network
// is a polytree in that order and one forward sweep yields exact
// singleton marginals without needing a true junction-tree pass.
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine returns an inference engine that logs inference warnings at
// Warn level through logger.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Refine runs one inference pass over sg/store as of current and applies
// the §4.3 belief-update rule to every instance whose state is
// Undetermined. It never returns an error: ill-formed topology or
// missing instances are logged as warnings and degrade gracefully (the
// affected node's posterior is treated as 0.5).
func (e *Engine) Refine(sg *graph.SituationGraph, store *evolution.Store, current time.Duration) {
	order, err := networkTopoOrder(sg)
	if err != nil {
		e.logger.Warnw("bayesian network topology error; skipping refinement", "error", err)
		return
	}

	marginal := make(map[int64]float64, len(order))
	free := make(map[int64]bool)
	for _, id := range order {
		inst, err := store.Instance(id)
		if err != nil {
			e.logger.Warnw("missing instance during inference; treating as 0.5", "node_id", id)
			marginal[id] = 0.5
			continue
		}
		switch inst.State {
		case evolution.Triggered:
			marginal[id] = 1
		case evolution.Untriggered:
			marginal[id] = 0
		default:
			free[id] = true
		}
	}

	for _, id := range order {
		if !free[id] {
			continue
		}
		cpt := BuildCPT(sg, id)
		marginal[id] = cpt.TrueProbability(marginal)
	}

	for id := range free {
		inst, err := store.Instance(id)
		if err != nil {
			continue
		}
		node, ok := sg.Node(id)
		if !ok {
			e.logger.Warnw("undetermined instance has no graph node; skipping", "node_id", id)
			continue
		}

		p, ok := marginal[id]
		if !ok {
			e.logger.Warnw("no posterior computed for node; treating as 0.5", "node_id", id)
			p = 0.5
		}
		inst.Belief = p
		inst.BeliefUpdated = true

		hasHigherCounterChild := false
		for _, childID := range node.Evidences {
			child, err := store.Instance(childID)
			if err != nil {
				continue
			}
			if child.Counter > inst.Counter {
				hasHigherCounterChild = true
				break
			}
		}

		if p >= node.Threshold && hasHigherCounterChild {
			inst.State = evolution.Triggered
			inst.Counter++
			inst.NextStart = current
		} else {
			inst.State = evolution.Untriggered
		}
	}
}

// networkTopoOrder builds a DirectedGraph mirroring the Bayesian
// network's actual parent→child edges (not the situation graph's stored
// edges): Horizontal relations keep their cause→effect direction, but
// Vertical relations are reversed (child→parent — see partitionParents
// in cpt.go) so that a forward pass visits every node after its
// evidence.
func networkTopoOrder(sg *graph.SituationGraph) ([]int64, error) {
	g := graph.NewDirectedGraph()
	for _, id := range sg.AllNodeIDs() {
		g.AddVertex(id)
	}
	for _, rel := range sg.AllRelations() {
		if rel.Kind == graph.Horizontal {
			g.AddEdge(rel.Src, rel.Dest)
		} else {
			g.AddEdge(rel.Dest, rel.Src)
		}
	}
	return g.TopologicalSort()
}

// #endregion engine
