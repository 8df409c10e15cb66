package reasoner

import (
	"time"

	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/bayes"
	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// #region reasoner

// Reasoner is the Situation Reasoner (C5): the sole mutator of
// SituationInstance state during a reasoning cycle. It borrows the graph
// and the evolution store exclusively for the duration of Reason or
// CheckState and stages every mutation on a scratch copy, committing to
// the store only once the cycle completes successfully (§5, §7) so that
// no partial cycle is ever observable.
type Reasoner struct {
	sg     *graph.SituationGraph
	store  *evolution.Store
	engine *bayes.Engine
	logger *zap.SugaredLogger
}

// New returns a reasoner bound to sg and store, using engine for the P7
// Bayesian-refinement pass.
func New(sg *graph.SituationGraph, store *evolution.Store, engine *bayes.Engine, logger *zap.SugaredLogger) *Reasoner {
	return &Reasoner{sg: sg, store: store, engine: engine, logger: logger}
}

// Reason executes the P1-P8 pipeline atomically for one slice and
// returns the ids of every bottom-layer instance that just fired
// (state=Triggered and next_start=current at the end of the cycle).
func (r *Reasoner) Reason(triggeredIDs map[int64]bool, current time.Duration) map[int64]bool {
	scratch := r.store.Snapshot()

	p1Seed(r.sg, scratch, triggeredIDs, current)
	p2UpwardCounterPropagation(r.sg, scratch, current)
	p3BeliefPropagation(r.sg, scratch)
	p4BackwardRetrospection(r.sg, scratch)
	p5DownwardRetrospection(r.sg, scratch)
	p6StateCombination(scratch)
	p7BayesianRefinement(r.sg, r.engine, scratch, current)
	p8Decay(scratch, current)

	r.store.Commit(scratch)

	result := make(map[int64]bool)
	bottom, err := r.sg.OperationalSituations()
	if err != nil {
		r.logger.Warnw("could not determine bottom layer for reason() result", "error", err)
		return result
	}
	for _, id := range bottom {
		inst := scratch[id]
		if inst.State == evolution.Triggered && inst.NextStart == current {
			result[id] = true
		}
	}
	return result
}

// CheckState applies only P8 (decay) and commits the result — the cheap
// periodic check the host driver runs on its SC_TIMEOUT.
func (r *Reasoner) CheckState(current time.Duration) {
	scratch := r.store.Snapshot()
	p8Decay(scratch, current)
	r.store.Commit(scratch)
}

// #endregion reasoner

// #region p1-p2

// p1Seed is §4.5-P1: every bottom-layer id present in triggeredIDs becomes
// Triggered, its counter increments, and next_start is pinned to current.
func p1Seed(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance, triggeredIDs map[int64]bool, current time.Duration) {
	bottom, err := sg.OperationalSituations()
	if err != nil {
		return
	}
	for _, id := range bottom {
		if !triggeredIDs[id] {
			continue
		}
		inst := scratch[id]
		inst.State = evolution.Triggered
		inst.Counter++
		inst.NextStart = current
		scratch[id] = inst
	}
}

// p2UpwardCounterPropagation is §4.5-P2: walking from the layer above the
// bottom up to layer 0, a node triggers once every one of its Vertical
// children has outrun its own counter.
func p2UpwardCounterPropagation(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance, current time.Duration) {
	for layerIdx := sg.Height() - 2; layerIdx >= 0; layerIdx-- {
		order, err := sg.Layer(layerIdx).TopologicalSort()
		if err != nil {
			continue
		}
		for _, id := range order {
			node, ok := sg.Node(id)
			if !ok {
				continue
			}
			inst := scratch[id]
			allOutranCounter := true
			for _, childID := range node.Evidences {
				child := scratch[childID]
				if child.Counter <= inst.Counter {
					allOutranCounter = false
					break
				}
			}
			if !allOutranCounter {
				continue
			}
			inst.State = evolution.Triggered
			inst.Counter++
			inst.NextStart = current
			scratch[id] = inst
		}
	}
}

// #endregion p1-p2

// #region p3

// p3BeliefPropagation is §4.5-P3: a bottom-up belief combinator over
// Vertical children, independent of the Bayesian engine in C4. Leaves
// get an expert prior of 0.8 when Triggered (0 when Untriggered — the
// worked §8 scenarios condition the leaf prior on the seeded state, not
// an unconditional constant; see DESIGN.md).
func p3BeliefPropagation(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance) {
	for layerIdx := sg.Height() - 1; layerIdx >= 0; layerIdx-- {
		isBottom := layerIdx == sg.Height()-1
		for _, id := range sg.Layer(layerIdx).Vertices() {
			node, ok := sg.Node(id)
			if !ok {
				continue
			}
			inst := scratch[id]

			var belief float64
			children := verticalChildren(sg, node)
			switch {
			case len(children) == 0:
				belief = leafBelief(inst.State)
			case len(children) == 1 && children[0].logic == graph.Sole:
				belief = clampUnit(scratch[children[0].id].Belief * children[0].weight)
			default:
				belief = combineChildBeliefs(scratch, children)
			}
			inst.Belief = belief
			inst.BeliefUpdated = true

			if isBottom {
				inst.StateBuffer = append(inst.StateBuffer, inst.State)
			} else if belief > node.Threshold {
				inst.StateBuffer = append(inst.StateBuffer, evolution.Triggered)
			} else {
				inst.StateBuffer = append(inst.StateBuffer, evolution.Untriggered)
			}
			scratch[id] = inst
		}
	}
}

type weightedChild struct {
	id     int64
	weight float64
	logic  graph.RelationLogic
}

// verticalChildren returns node's Vertical evidences together with the
// relation weight and logic that connects them.
func verticalChildren(sg *graph.SituationGraph, node *graph.SituationNode) []weightedChild {
	var out []weightedChild
	for _, childID := range node.Evidences {
		rel, ok := sg.Relation(node.ID, childID)
		if !ok || rel.Kind != graph.Vertical {
			continue
		}
		out = append(out, weightedChild{id: childID, weight: rel.Weight, logic: rel.Logic})
	}
	return out
}

// leafBelief is the bottom-layer expert prior: high confidence if the
// seed pass (P1) actually triggered the leaf, none otherwise.
func leafBelief(state evolution.State) float64 {
	switch state {
	case evolution.Triggered:
		return 0.8
	case evolution.Untriggered:
		return 0
	default:
		return 0.5
	}
}

// combineChildBeliefs handles the |E|>=2 cases of §4.5-P3: all-Or uses
// the max of weighted beliefs, all-And uses Dempster's rule, and a mix
// (unspecified by §4.5 itself) is composed the same way Case 5 of the
// Bayesian engine's CPT construction handles a mix — combine each bag
// separately and multiply.
func combineChildBeliefs(scratch map[int64]evolution.SituationInstance, children []weightedChild) float64 {
	var andWeighted, orWeighted []float64
	for _, c := range children {
		w := clampUnit(scratch[c.id].Belief * c.weight)
		switch c.logic {
		case graph.And:
			andWeighted = append(andWeighted, w)
		case graph.Or:
			orWeighted = append(orWeighted, w)
		default:
			andWeighted = append(andWeighted, w)
		}
	}

	switch {
	case len(orWeighted) == 0:
		return dempsterCombine(andWeighted)
	case len(andWeighted) == 0:
		return maxOf(orWeighted)
	default:
		return clampUnit(dempsterCombine(andWeighted) * maxOf(orWeighted))
	}
}

// dempsterCombine folds weighted beliefs with Dempster's combination rule
// (§4.5-P3's And case, and testable property 7).
func dempsterCombine(weighted []float64) float64 {
	if len(weighted) == 0 {
		return 0
	}
	b := weighted[0]
	for _, be := range weighted[1:] {
		k := b*(1-be) + (1-b)*be
		if k >= 1 {
			return 0
		}
		b = (b * be) / (1 - k)
	}
	return b
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func clampUnit(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// #endregion p3

// #region p4

// p4BackwardRetrospection is §4.5-P4: within each layer, a worklist of
// currently-triggered effects pulls their Horizontal causes toward
// Triggered or Undetermined via determineCauseState.
func p4BackwardRetrospection(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance) {
	for layerIdx := 0; layerIdx < sg.Height(); layerIdx++ {
		order, err := sg.Layer(layerIdx).TopologicalSort()
		if err != nil {
			continue
		}
		reverse(order)

		worklist := make([]int64, 0, len(order))
		inWorklist := make(map[int64]bool)
		for _, id := range order {
			if scratch[id].State == evolution.Triggered {
				worklist = append(worklist, id)
				inWorklist[id] = true
			}
		}

		for len(worklist) > 0 {
			e := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			inWorklist[e] = false

			node, ok := sg.Node(e)
			if !ok {
				continue
			}
			for _, c := range node.Causes {
				rel, ok := sg.Relation(c, e)
				if !ok || rel.Kind != graph.Horizontal {
					continue
				}
				cInst := scratch[c]
				switch cInst.State {
				case evolution.Untriggered:
					result := determineCauseState(sg, scratch, c, e)
					cInst.StateBuffer = append(cInst.StateBuffer, result)
					scratch[c] = cInst
					if result == evolution.Triggered && !inWorklist[c] {
						worklist = append(worklist, c)
						inWorklist[c] = true
					}
				case evolution.Triggered:
					if !inWorklist[c] {
						worklist = append(worklist, c)
						inWorklist[c] = true
					}
				}
			}
		}
	}
}

// determineCauseState implements §4.5-P4's helper: c becomes Triggered
// when e (already Triggered) is explained solely by c, or every one of
// c's Horizontal effects is an Or-gate, or every one is an And-gate and
// every other Horizontal effect of c is Untriggered.
func determineCauseState(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance, c, e int64) evolution.State {
	if scratch[e].State != evolution.Triggered {
		return evolution.Undetermined
	}

	eNode, _ := sg.Node(e)
	if eNode != nil && len(eNode.Causes) == 1 {
		return evolution.Triggered
	}

	outgoing := sg.OutgoingRelations(c)
	allOr, allAnd := true, true
	var effects []int64
	for dest, rel := range outgoing {
		if rel.Kind != graph.Horizontal {
			continue
		}
		effects = append(effects, dest)
		if rel.Logic != graph.Or {
			allOr = false
		}
		if rel.Logic != graph.And {
			allAnd = false
		}
	}
	if allOr {
		return evolution.Triggered
	}
	if allAnd {
		for _, other := range effects {
			if other == e {
				continue
			}
			if scratch[other].State != evolution.Untriggered {
				return evolution.Undetermined
			}
		}
		return evolution.Triggered
	}
	return evolution.Undetermined
}

// #endregion p4

// #region p5

// p5DownwardRetrospection is §4.5-P5: a single worklist spans every
// layer top-down; popping a triggered parent pulls its Vertical children
// toward Triggered or Undetermined via determineChildState.
func p5DownwardRetrospection(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance) {
	worklist := make([]int64, 0)
	inWorklist := make(map[int64]bool)
	for layerIdx := 0; layerIdx < sg.Height(); layerIdx++ {
		for _, id := range sg.Layer(layerIdx).Vertices() {
			if scratch[id].State == evolution.Triggered && !inWorklist[id] {
				worklist = append(worklist, id)
				inWorklist[id] = true
			}
		}
	}

	for len(worklist) > 0 {
		p := worklist[0]
		worklist = worklist[1:]
		inWorklist[p] = false

		node, ok := sg.Node(p)
		if !ok {
			continue
		}
		for _, c := range node.Evidences {
			rel, ok := sg.Relation(p, c)
			if !ok || rel.Kind != graph.Vertical {
				continue
			}
			result := determineChildState(sg, scratch, p, c)
			cInst := scratch[c]
			cInst.StateBuffer = append(cInst.StateBuffer, result)
			scratch[c] = cInst
			if result == evolution.Triggered && !inWorklist[c] {
				worklist = append(worklist, c)
				inWorklist[c] = true
			}
		}
	}
}

// determineChildState implements §4.5-P5's helper.
func determineChildState(sg *graph.SituationGraph, scratch map[int64]evolution.SituationInstance, p, c int64) evolution.State {
	if scratch[p].State != evolution.Triggered {
		return evolution.Undetermined
	}

	pNode, _ := sg.Node(p)
	if pNode != nil && len(pNode.Evidences) == 1 {
		return evolution.Triggered
	}

	outgoing := sg.OutgoingRelations(p)
	allOr, allAnd := true, true
	for _, rel := range outgoing {
		if rel.Kind != graph.Vertical {
			continue
		}
		if rel.Logic != graph.Or {
			allOr = false
		}
		if rel.Logic != graph.And {
			allAnd = false
		}
	}

	siblingState := func(want evolution.State) bool {
		for dest, rel := range outgoing {
			if rel.Kind != graph.Vertical || dest == c {
				continue
			}
			if scratch[dest].State != want {
				return false
			}
		}
		return true
	}

	if allOr && siblingState(evolution.Untriggered) {
		return evolution.Triggered
	}
	if allAnd && siblingState(evolution.Triggered) {
		return evolution.Triggered
	}
	return evolution.Undetermined
}

// #endregion p5

// #region p6

// p6StateCombination is §4.5-P6: fold each instance's state_buffer left
// through evolution.Combine and clear it.
func p6StateCombination(scratch map[int64]evolution.SituationInstance) {
	for id, inst := range scratch {
		if len(inst.StateBuffer) == 0 {
			continue
		}
		combined := inst.StateBuffer[0]
		for _, s := range inst.StateBuffer[1:] {
			combined = evolution.Combine(combined, s)
		}
		inst.State = combined
		inst.StateBuffer = nil
		scratch[id] = inst
	}
}

// #endregion p6

// #region p7-p8

// p7BayesianRefinement is §4.5-P7: run the Bayesian engine against the
// whole graph; it only touches instances still Undetermined after P6.
func p7BayesianRefinement(sg *graph.SituationGraph, engine *bayes.Engine, scratch map[int64]evolution.SituationInstance, current time.Duration) {
	tmp := evolution.NewStore()
	tmp.Commit(scratch)
	engine.Refine(sg, tmp, current)
	for id, inst := range tmp.Snapshot() {
		scratch[id] = inst
	}
}

// p8Decay is §4.5-P8: a triggered instance whose lifetime has elapsed
// reverts to Untriggered. Counters are never touched.
func p8Decay(scratch map[int64]evolution.SituationInstance, current time.Duration) {
	for id, inst := range scratch {
		if inst.NextStart+inst.Duration <= current {
			inst.State = evolution.Untriggered
			scratch[id] = inst
		}
	}
}

func reverse(ids []int64) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// #endregion p7-p8
