package lowering

import (
	"github.com/oleiade/lane"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

// TrimGraph kills every node unreachable from End, so that reachable nodes
// only have reachable uses. It returns the number of killed nodes.
func TrimGraph(g *ir.Graph, tracer *iselapi.Tracer) int {
	live := make([]bool, g.NodeCount())
	stack := lane.NewStack()
	for stack.Push(g.End()); !stack.Empty(); {
		n := stack.Pop().(*ir.Node)
		if live[n.ID()] {
			continue
		}
		live[n.ID()] = true
		for _, in := range n.Inputs() {
			if in != nil && !live[in.ID()] {
				stack.Push(in)
			}
		}
	}

	var garbage []*ir.Node
	for id := range live {
		n := g.NodeByID(ir.NodeID(id))
		if !live[id] && !n.IsDead() && n != g.Start() {
			garbage = append(garbage, n)
		}
	}
	// Disconnect all the garbage first since it may use itself.
	for _, n := range garbage {
		n.TrimInputCount(0)
	}
	for _, n := range garbage {
		n.Kill()
	}
	tracer.Printf("trimmed %d nodes", len(garbage))
	return len(garbage)
}
