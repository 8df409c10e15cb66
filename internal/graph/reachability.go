package graph

// #region reachability

// buildReachability computes the transitive closure of the combined H+V
// edge set by iterated boolean matrix multiplication, per §4.2 step 5.
func buildReachability(vertices map[int64]bool, edges []edgeID, nodes map[int64]*SituationNode) [][]bool {
	size := len(vertices)
	adjacency := make([][]bool, size)
	for i := range adjacency {
		adjacency[i] = make([]bool, size)
	}
	for _, e := range edges {
		adjacency[nodes[e.src].Index][nodes[e.dest].Index] = true
	}

	reach := make([][]bool, size)
	for i := range reach {
		reach[i] = make([]bool, size)
	}

	power := adjacency
	for n := 1; n <= size; n++ {
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				reach[i][j] = reach[i][j] || power[i][j]
			}
		}
		if n < size {
			power = boolMatMul(power, adjacency)
		}
	}
	return reach
}

// boolMatMul computes the boolean product of two equally-sized square
// matrices: result[i][j] = OR over m of (a[i][m] AND b[m][j]).
func boolMatMul(a, b [][]bool) [][]bool {
	size := len(a)
	result := make([][]bool, size)
	for i := range result {
		result[i] = make([]bool, size)
		for j := 0; j < size; j++ {
			var v bool
			for m := 0; m < size; m++ {
				if a[i][m] && b[m][j] {
					v = true
					break
				}
			}
			result[i][j] = v
		}
	}
	return result
}

// #endregion reachability
