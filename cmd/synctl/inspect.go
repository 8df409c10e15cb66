package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [graph-file]",
	Short: "load a situation graph and print its layer/node/relation counts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := cfgHolder.GraphPath
	if len(args) == 1 {
		path = args[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph file: %w", err)
	}
	store := evolution.NewStore()
	sg, err := graph.LoadJSON(data, store)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	fmt.Printf("graph: %s\n", path)
	fmt.Printf("layers: %d\n", sg.Height())
	fmt.Printf("nodes: %d\n", sg.NumNodes())
	fmt.Printf("relations: %d\n", len(sg.AllRelations()))
	fmt.Printf("instances loaded: %d\n", store.Len())

	for i := 0; i < sg.Height(); i++ {
		ids, err := sg.Layer(i).TopologicalSort()
		if err != nil {
			fmt.Printf("layer %d: topological sort failed: %v\n", i, err)
			continue
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		fmt.Printf("layer %d: %d nodes %v\n", i, len(ids), ids)
	}

	ops, err := sg.OperationalSituations()
	if err != nil {
		return fmt.Errorf("resolve operational situations: %w", err)
	}
	fmt.Printf("operational situations (bottom layer): %v\n", ops)

	return nil
}
