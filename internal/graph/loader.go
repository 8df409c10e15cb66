package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// #region wire-format

// InstanceRegistrar is the subset of the Situation Evolution Store (C3)
// the loader needs: registering one instance per node as §4.2 step 1
// requires. Accepting an interface here (rather than importing the
// evolution package directly) keeps the loader decoupled from how
// instances are stored.
type InstanceRegistrar interface {
	AddInstance(id int64, kind NodeKind, duration, cycle time.Duration) error
}

// cycleMS decodes the wire "Cycle" field, which is either an integer number
// of milliseconds or the literal string "null" (§4.2, §6).
type cycleMS struct {
	ms     float64
	isNull bool
}

func (c *cycleMS) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "null" {
			c.isNull = true
			return nil
		}
		return fmt.Errorf("unrecognised Cycle string %q", s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("Cycle must be a number or \"null\": %w", err)
	}
	c.ms = f
	return nil
}

func (c *cycleMS) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!str" && value.Value == "null" {
		c.isNull = true
		return nil
	}
	var f float64
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("Cycle must be a number or \"null\": %w", err)
	}
	c.ms = f
	return nil
}

type rawRelation struct {
	ID       int64   `json:"ID" yaml:"ID"`
	Relation int     `json:"Relation" yaml:"Relation"`
	WeightX  float64 `json:"Weight-x" yaml:"Weight-x"`
	WeightY  float64 `json:"Weight-y" yaml:"Weight-y"`
}

type rawNode struct {
	ID           int64         `json:"ID" yaml:"ID"`
	Type         int           `json:"type" yaml:"type"`
	Duration     float64       `json:"Duration" yaml:"Duration"`
	Cycle        cycleMS       `json:"Cycle" yaml:"Cycle"`
	Threshold    float64       `json:"threshold" yaml:"threshold"`
	Predecessors []rawRelation `json:"Predecessors" yaml:"Predecessors"`
	Children     []rawRelation `json:"Children" yaml:"Children"`
}

type rawDocument struct {
	Layers [][]rawNode `json:"layers" yaml:"layers"`
}

// #endregion wire-format

// #region loader

// LoadJSON parses a situation graph described in the §6 JSON format,
// registering every node with registrar and returning the fully built,
// immutable SituationGraph.
func LoadJSON(data []byte, registrar InstanceRegistrar) (*SituationGraph, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &GraphLoadError{Reason: fmt.Sprintf("parse json: %v", err)}
	}
	return build(doc, registrar)
}

// LoadYAML parses the same node shape encoded as YAML — an alternate
// declarative format offered alongside the mandated JSON loader.
func LoadYAML(data []byte, registrar InstanceRegistrar) (*SituationGraph, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &GraphLoadError{Reason: fmt.Sprintf("parse yaml: %v", err)}
	}
	return build(doc, registrar)
}

func build(doc rawDocument, registrar InstanceRegistrar) (*SituationGraph, error) {
	sg := &SituationGraph{
		nodes:     make(map[int64]*SituationNode),
		relations: make(map[edgeID]*SituationRelation),
	}

	nextIndex := 0
	incoming := make(map[int64]int)
	vertices := make(map[int64]bool)
	var edgeList []edgeID

	// Pass 1: create every node (across all layers) so Predecessor/Children
	// references can be validated regardless of declaration order within
	// the document.
	for _, layer := range doc.Layers {
		for _, rn := range layer {
			if _, exists := sg.nodes[rn.ID]; exists {
				return nil, &GraphLoadError{Reason: fmt.Sprintf("duplicate node id %d", rn.ID)}
			}
			kind := Normal
			if rn.Type == 1 {
				kind = Hidden
			}
			sg.nodes[rn.ID] = &SituationNode{
				ID:        rn.ID,
				Index:     nextIndex,
				Threshold: rn.Threshold,
				Kind:      kind,
			}
			nextIndex++
			vertices[rn.ID] = true

			durationSec := time.Duration(rn.Duration * float64(time.Millisecond))
			var cycleSec time.Duration
			if !rn.Cycle.isNull {
				cycleSec = time.Duration(rn.Cycle.ms * float64(time.Millisecond))
			}
			if err := registrar.AddInstance(rn.ID, kind, durationSec, cycleSec); err != nil {
				return nil, &GraphLoadError{Reason: fmt.Sprintf("register instance %d: %v", rn.ID, err)}
			}
		}
	}

	// Pass 2: wire relations and per-layer DAGs now that every id is known.
	layers := make([]*DirectedGraph, 0, len(doc.Layers))
	for layerIdx, layer := range doc.Layers {
		layerGraph := NewDirectedGraph()
		for _, rn := range layer {
			node := sg.nodes[rn.ID]
			layerGraph.AddVertex(rn.ID)

			for _, pred := range rn.Predecessors {
				if _, ok := sg.nodes[pred.ID]; !ok {
					return nil, &GraphLoadError{Reason: fmt.Sprintf("node %d predecessor %d not declared", rn.ID, pred.ID)}
				}
				rel := &SituationRelation{
					Src:    pred.ID,
					Dest:   rn.ID,
					Kind:   Horizontal,
					Logic:  relationCodeToLogic(pred.Relation),
					Weight: pred.WeightX,
				}
				key := edgeID{pred.ID, rn.ID}
				sg.relations[key] = rel
				node.Causes = append(node.Causes, pred.ID)
				layerGraph.AddEdge(pred.ID, rn.ID)
				incoming[rn.ID]++
				edgeList = append(edgeList, key)
			}

			for _, child := range rn.Children {
				if _, ok := sg.nodes[child.ID]; !ok {
					return nil, &GraphLoadError{Reason: fmt.Sprintf("node %d child %d not declared", rn.ID, child.ID)}
				}
				rel := &SituationRelation{
					Src:    rn.ID,
					Dest:   child.ID,
					Kind:   Vertical,
					Logic:  relationCodeToLogic(child.Relation),
					Weight: child.WeightY,
				}
				key := edgeID{rn.ID, child.ID}
				sg.relations[key] = rel
				node.Evidences = append(node.Evidences, child.ID)
				incoming[rn.ID]++
				edgeList = append(edgeList, key)
			}
		}

		// Validate the layer is acyclic; the loader must guarantee this
		// per §4.1.
		if _, err := layerGraph.TopologicalSort(); err != nil {
			return nil, &GraphLoadError{Reason: fmt.Sprintf("layer %d: %v", layerIdx, err)}
		}
		layers = append(layers, layerGraph)
	}

	for id, count := range incoming {
		if count > 32 {
			return nil, &CapacityExceeded{ParentsOf: id, Count: count}
		}
	}

	sg.layers = layers
	sg.reach = buildReachability(vertices, edgeList, sg.nodes)
	return sg, nil
}

// #endregion loader
