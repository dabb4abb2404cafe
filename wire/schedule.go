// schedule.go - topological ordering of a FlatCircuit's combinational
// nodes via Kahn's algorithm, per §4.5.
//
// DFF and RAM/ROM outputs are "feedback wires": their value at the start
// of a step is last cycle's latched state, not something a combinational
// pass needs to wait on. Excluding them from in-degree counting is what
// lets circuits like a counter (whose next-state logic reads its own
// flip-flop output) schedule at all — without the exclusion every such
// circuit would present a cycle. A genuine combinational cycle (one not
// broken by a DFF/RAM/ROM boundary) is recorded in HasCycles rather than
// rejected: the evaluator still runs the circuit, just with no
// correctness guarantee for the wires caught in the cycle, which mirrors
// how real gate-level tools treat latch inference as a warning.
package wire

// Schedule is the node evaluation order computed for a FlatCircuit.
type Schedule struct {
	Order     []int // indices into FlatCircuit.Nodes, combinational pass order
	HasCycles bool
}

// feedbackWires returns the set of wire indices written by a DFF, RAM or
// ROM node — these never gate the in-degree of a consumer.
func feedbackWires(fc *FlatCircuit) map[int]bool {
	fb := make(map[int]bool)
	for _, i := range fc.DFFNodes {
		fb[fc.Nodes[i].Out] = true
	}
	for _, i := range fc.RAMNodes {
		fb[fc.Nodes[i].Out] = true
	}
	for _, i := range fc.ROMNodes {
		fb[fc.Nodes[i].Out] = true
	}
	return fb
}

// nodeInputs returns every wire index a node reads, excluding its own
// output (DFF/RAM/ROM nodes read their clock/address/etc inputs too —
// those are ordinary wires and do participate in ordering; only the
// *outputs* of sequential elements are feedback).
func nodeInputs(n FlatNode) []int {
	switch n.Kind {
	case NodeConst:
		return nil
	case NodeNand:
		return []int{n.A, n.B}
	case NodeDFF:
		return []int{n.A, n.B}
	case NodeIndex, NodeSlice:
		return []int{n.Input}
	case NodeConcat:
		return n.Inputs
	case NodeRAM:
		return []int{n.Addr, n.Data, n.Write, n.Clk}
	case NodeROM:
		return []int{n.Addr}
	default:
		return nil
	}
}

// BuildSchedule computes a combinational evaluation order over every node in
// fc using Kahn's algorithm. DFF/RAM/ROM output wires are treated as
// already available (pseudo-inputs) so cycles through sequential state
// do not block scheduling.
func BuildSchedule(fc *FlatCircuit) *Schedule {
	fb := feedbackWires(fc)
	n := len(fc.Nodes)

	// producer[w] = index of the node (if any) whose Out == w.
	producer := make(map[int]int, n)
	for i, node := range fc.Nodes {
		producer[node.Out] = i
	}

	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, node := range fc.Nodes {
		for _, in := range nodeInputs(node) {
			if fb[in] {
				continue // feedback: value already available at step start
			}
			srcIdx, ok := producer[in]
			if !ok || srcIdx == i {
				continue // primary input or self
			}
			indegree[i]++
			dependents[srcIdx] = append(dependents[srcIdx], i)
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	sched := &Schedule{Order: order}
	if len(order) != n {
		sched.HasCycles = true
		// Append whatever never reached zero in-degree, in node-index
		// order, so every node still gets evaluated exactly once.
		seen := make(map[int]bool, len(order))
		for _, i := range order {
			seen[i] = true
		}
		for i := 0; i < n; i++ {
			if !seen[i] {
				sched.Order = append(sched.Order, i)
			}
		}
	}
	return sched
}
