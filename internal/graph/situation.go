package graph

// #region situation-graph

// SituationGraph is the multi-layer causal graph: an ordered sequence of
// per-layer DAGs (layer 0 is the top, the last layer is operational), the
// node and relation maps, and the precomputed reachability bitmatrix.
// It is built once at load time and is immutable and process-wide
// read-mostly thereafter (§3 Lifecycle).
type SituationGraph struct {
	layers    []*DirectedGraph
	nodes     map[int64]*SituationNode
	relations map[edgeID]*SituationRelation
	reach     [][]bool
}

// Height returns the number of layers.
func (sg *SituationGraph) Height() int {
	return len(sg.layers)
}

// Layer returns the per-layer DAG at index i (layer 0 is the top).
func (sg *SituationGraph) Layer(i int) *DirectedGraph {
	return sg.layers[i]
}

// Node returns the static description of the node with the given id.
func (sg *SituationGraph) Node(id int64) (*SituationNode, bool) {
	n, ok := sg.nodes[id]
	return n, ok
}

// NumNodes returns the total node count across all layers.
func (sg *SituationGraph) NumNodes() int {
	return len(sg.nodes)
}

// Relation returns the relation from src to dest, if one exists.
func (sg *SituationGraph) Relation(src, dest int64) (*SituationRelation, bool) {
	r, ok := sg.relations[edgeID{src, dest}]
	return r, ok
}

// OutgoingRelations returns every relation whose source is id, keyed by
// destination. A fresh map is built per call.
func (sg *SituationGraph) OutgoingRelations(id int64) map[int64]*SituationRelation {
	out := make(map[int64]*SituationRelation)
	for key, rel := range sg.relations {
		if key.src == id {
			out[key.dest] = rel
		}
	}
	return out
}

// IncomingRelations returns every relation whose destination is id, keyed
// by source. Used by the Bayesian engine to enumerate a node's parents.
func (sg *SituationGraph) IncomingRelations(id int64) map[int64]*SituationRelation {
	in := make(map[int64]*SituationRelation)
	for key, rel := range sg.relations {
		if key.dest == id {
			in[key.src] = rel
		}
	}
	return in
}

// AllRelations returns every relation in the graph, in no particular order.
// Used by the Bayesian engine to build its binary network from the full
// H+V edge set (§4.3: "For every relation r = (u → v) in G.relations, add
// a directed edge u → v in B").
func (sg *SituationGraph) AllRelations() []*SituationRelation {
	out := make([]*SituationRelation, 0, len(sg.relations))
	for _, rel := range sg.relations {
		out = append(out, rel)
	}
	return out
}

// AllNodeIDs returns every node id, in no particular order.
func (sg *SituationGraph) AllNodeIDs() []int64 {
	ids := make([]int64, 0, len(sg.nodes))
	for id := range sg.nodes {
		ids = append(ids, id)
	}
	return ids
}

// IsReachable reports whether dest is reachable from src via the combined
// H+V edge set.
func (sg *SituationGraph) IsReachable(src, dest int64) bool {
	s, ok := sg.nodes[src]
	if !ok {
		return false
	}
	d, ok := sg.nodes[dest]
	if !ok {
		return false
	}
	return sg.reach[s.Index][d.Index]
}

// OperationalSituations returns the ids of the bottom layer in topological
// order — every leaf situation directly observable via a sensor event.
func (sg *SituationGraph) OperationalSituations() ([]int64, error) {
	if len(sg.layers) == 0 {
		return nil, nil
	}
	return sg.layers[len(sg.layers)-1].TopologicalSort()
}

// OperationalSituationsUnder walks Evidences from topID down to the
// leaves (nodes with no further evidences) via DFS.
func (sg *SituationGraph) OperationalSituationsUnder(topID int64) []int64 {
	var result []int64
	stack := []int64{topID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := sg.nodes[id]
		if !ok {
			continue
		}
		if len(node.Evidences) == 0 {
			result = append(result, id)
			continue
		}
		for _, e := range node.Evidences {
			stack = append(stack, e)
		}
	}
	return result
}

// #endregion situation-graph
