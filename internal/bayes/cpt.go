package bayes

import (
	"sort"

	"github.com/sitosync/reasoner/internal/graph"
)

// #region bags

// parentWeight pairs a parent node id with its relation weight.
type parentWeight struct {
	id     int64
	weight float64
}

// parentBags partitions a node's parents by relation logic, per §4.3.
type parentBags struct {
	and  []parentWeight
	or   []parentWeight
	sole []parentWeight
}

// partitionParents gathers node id's Bayesian-network parents: its
// Horizontal causes (the graph's literal incoming H-relations, cause →
// effect in both the graph and the network) plus its Vertical children
// (the graph's outgoing V-relations; a Vertical relation is stored
// parent → child for hierarchy bookkeeping, but evidentially a child
// situation is what makes its parent believable, so the network edge
// runs child → parent — the reverse of the stored direction). This
// matches §4.3's worked CPT cases, which condition an abstract node's
// truth on its children's OR/AND combination, not the other way round.
func partitionParents(sg *graph.SituationGraph, id int64) parentBags {
	var bags parentBags
	add := func(parentID int64, rel *graph.SituationRelation) {
		pw := parentWeight{id: parentID, weight: rel.Weight}
		switch rel.Logic {
		case graph.And:
			bags.and = append(bags.and, pw)
		case graph.Or:
			bags.or = append(bags.or, pw)
		default:
			bags.sole = append(bags.sole, pw)
		}
	}
	for src, rel := range sg.IncomingRelations(id) {
		if rel.Kind == graph.Horizontal {
			add(src, rel)
		}
	}
	for dest, rel := range sg.OutgoingRelations(id) {
		if rel.Kind == graph.Vertical {
			add(dest, rel)
		}
	}
	sortByID(bags.and)
	sortByID(bags.or)
	sortByID(bags.sole)
	return bags
}

func sortByID(pws []parentWeight) {
	sort.Slice(pws, func(i, j int) bool { return pws[i].id < pws[j].id })
}

// #endregion bags

// #region classification

type caseKind int

const (
	caseNoParents caseKind = iota
	caseSingleSole
	caseAllAnd
	caseAllOr
	caseMixed
)

// classify determines which of the five §4.3 cases applies and returns
// the effective bags to use: lone Sole parents are folded into the And
// bag for every case except the literal single-Sole-parent case.
func classify(bags parentBags) (caseKind, parentBags, parentWeight) {
	total := len(bags.and) + len(bags.or) + len(bags.sole)
	if total == 0 {
		return caseNoParents, bags, parentWeight{}
	}
	if total == 1 && len(bags.sole) == 1 {
		return caseSingleSole, bags, bags.sole[0]
	}

	effective := parentBags{
		and: append(append([]parentWeight{}, bags.and...), bags.sole...),
		or:  bags.or,
	}
	sortByID(effective.and)

	switch {
	case len(effective.or) == 0:
		return caseAllAnd, effective, parentWeight{}
	case len(effective.and) == 0:
		return caseAllOr, effective, parentWeight{}
	default:
		return caseMixed, effective, parentWeight{}
	}
}

// #endregion classification

// #region cpt

// CPT is the conditional-probability table for one node, represented not
// as an explicit 2^k entry table but as the closed-form case logic of
// §4.3 — which node this is, which case classification applies, and the
// weighted parent bags needed to evaluate P(v=1 | parent activations).
type CPT struct {
	nodeID    int64
	kind      caseKind
	effective parentBags
	sole      parentWeight
	parentIDs []int64
}

// BuildCPT partitions id's parents and classifies the resulting case.
func BuildCPT(sg *graph.SituationGraph, id int64) *CPT {
	bags := partitionParents(sg, id)
	kind, effective, sole := classify(bags)

	ids := make([]int64, 0, len(bags.and)+len(bags.or)+len(bags.sole))
	for _, pw := range bags.and {
		ids = append(ids, pw.id)
	}
	for _, pw := range bags.or {
		ids = append(ids, pw.id)
	}
	for _, pw := range bags.sole {
		ids = append(ids, pw.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &CPT{nodeID: id, kind: kind, effective: effective, sole: sole, parentIDs: ids}
}

// ParentIDs returns the ids of every parent this CPT is conditioned on.
func (c *CPT) ParentIDs() []int64 {
	return c.parentIDs
}

// TrueProbability evaluates P(v=1 | activation) where activation maps a
// parent id to its activation level. Pass 0.0/1.0 for a literal boolean
// assignment (used to exercise the case definitions directly); pass a
// fractional marginal to obtain the expected value of the CPT under
// independent parents — which is exactly the one-pass forward message the
// inference engine propagates (see engine.go).
//
// Missing activation entries are treated as 0.5 (§4.3 failure handling)
// without being logged; TrueProbability itself never fails.
func (c *CPT) TrueProbability(activation map[int64]float64) float64 {
	return trueProbability(c.kind, c.effective, c.sole, activation)
}

func trueProbability(kind caseKind, eff parentBags, sole parentWeight, activation map[int64]float64) float64 {
	switch kind {
	case caseNoParents:
		return 0
	case caseSingleSole:
		return act(activation, sole.id) * sole.weight
	case caseAllAnd:
		product := 1.0
		for _, pw := range eff.and {
			product *= act(activation, pw.id) * pw.weight
		}
		return product
	case caseAllOr:
		product := 1.0
		for _, pw := range eff.or {
			product *= 1 - act(activation, pw.id)*pw.weight
		}
		return 1 - product
	case caseMixed:
		sAnd := trueProbability(caseAllAnd, parentBags{and: eff.and}, parentWeight{}, activation)
		sOr := trueProbability(caseAllOr, parentBags{or: eff.or}, parentWeight{}, activation)
		return sAnd * sOr
	default:
		return 0.5
	}
}

func act(activation map[int64]float64, id int64) float64 {
	v, ok := activation[id]
	if !ok {
		return 0.5
	}
	return v
}

// clamp restricts p to [eps, 1-eps] per §9's numerical-stability rule.
func clamp(p float64) float64 {
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// eps is the bound clamp applies. TrueProbability returns unclamped
// values, so a case that yields exactly 0 or 1 reports exactly 0 or 1.
const eps = 1e-6

// #endregion cpt
