// Package ir implements the sea-of-nodes program graph: nodes connected by
// value, effect and control edges, the operators they carry, the type lattice
// the typer computes over them, and structural verification.
package ir

import (
	"fmt"
	"math"

	"github.com/tetratelabs/isel/internal/zone"
)

// Graph owns the nodes of one compilation. Nodes are allocated from the
// graph zone and die with it.
type Graph struct {
	zone  *zone.Zone
	gen   uint32
	nodes *zone.Pool[Node]

	start, end, dead *Node
	// position is stamped on every new node.
	position SourcePosition

	int32s    map[int32]*Node
	int64s    map[int64]*Node
	float64s  map[uint64]*Node
	numbers   map[uint64]*Node
	externals map[string]*Node
}

// NewGraph returns an empty graph allocating from z.
func NewGraph(z *zone.Zone) *Graph {
	return &Graph{
		zone:      z,
		gen:       z.Generation(),
		nodes:     zone.NewPool[Node](z, nil),
		position:  UnknownSourcePosition,
		int32s:    map[int32]*Node{},
		int64s:    map[int64]*Node{},
		float64s:  map[uint64]*Node{},
		numbers:   map[uint64]*Node{},
		externals: map[string]*Node{},
	}
}

// Zone returns the zone the nodes are allocated from.
func (g *Graph) Zone() *zone.Zone { return g.zone }

// NewNode creates a node. The number of inputs must match the operator.
func (g *Graph) NewNode(op Operator, inputs ...*Node) *Node {
	if want := op.InputCount(); want != len(inputs) {
		panic(fmt.Sprintf("BUG: %s takes %d inputs but got %d", op.String(), want, len(inputs)))
	}
	id := g.nodes.Allocated()
	n := g.nodes.Allocate()
	*n = Node{id: NodeID(id), op: op, pos: g.position}
	n.inputs = make([]*Node, len(inputs))
	for i, in := range inputs {
		if in == nil {
			panic(fmt.Sprintf("BUG: nil input %d of %s", i, op.String()))
		}
		n.inputs[i] = in
		in.uses = append(in.uses, Use{User: n, Index: i})
	}
	return n
}

// CloneNode creates a copy of n with the same operator and inputs.
func (g *Graph) CloneNode(n *Node) *Node {
	return g.NewNode(n.op, n.inputs...)
}

// NodeCount returns the number of nodes ever created, dead ones included.
func (g *Graph) NodeCount() int { return g.nodes.Allocated() }

// NodeByID returns the node with the given id. It panics if the graph zone
// has been destroyed since the graph was created.
func (g *Graph) NodeByID(id NodeID) *Node {
	g.zone.Check(g.gen)
	if int(id) >= g.nodes.Allocated() {
		panic(fmt.Sprintf("BUG: node id %d out of range", id))
	}
	return g.nodes.View(int(id))
}

// Start returns the Start node.
func (g *Graph) Start() *Node { return g.start }

// SetStart sets the Start node.
func (g *Graph) SetStart(n *Node) { g.start = n }

// End returns the End node.
func (g *Graph) End() *Node { return g.end }

// SetEnd sets the End node.
func (g *Graph) SetEnd(n *Node) { g.end = n }

// SourcePosition returns the position stamped on new nodes.
func (g *Graph) SourcePosition() SourcePosition { return g.position }

// SetSourcePosition sets the position stamped on new nodes.
func (g *Graph) SetSourcePosition(p SourcePosition) { g.position = p }

// Dead returns the graph's Dead node.
func (g *Graph) Dead() *Node {
	if g.dead == nil || g.dead.IsDead() {
		g.dead = g.NewNode(Op(OpcodeDead))
	}
	return g.dead
}

// Int32Constant returns the canonical Int32Constant node of v.
func (g *Graph) Int32Constant(v int32) *Node {
	return cached(g, g.int32s, v, Int32Constant(v))
}

// Int64Constant returns the canonical Int64Constant node of v.
func (g *Graph) Int64Constant(v int64) *Node {
	return cached(g, g.int64s, v, Int64Constant(v))
}

// Float64Constant returns the canonical Float64Constant node of v.
func (g *Graph) Float64Constant(v float64) *Node {
	return cached(g, g.float64s, math.Float64bits(v), Float64Constant(v))
}

// NumberConstant returns the canonical NumberConstant node of v.
func (g *Graph) NumberConstant(v float64) *Node {
	return cached(g, g.numbers, math.Float64bits(v), NumberConstant(v))
}

// ExternalConstant returns the canonical ExternalConstant node of name.
func (g *Graph) ExternalConstant(name string) *Node {
	return cached(g, g.externals, name, ExternalConstant(name))
}

// Float32Constant returns a new Float32Constant node.
func (g *Graph) Float32Constant(v float32) *Node {
	return g.NewNode(Float32Constant(v))
}

// OptimizedOut returns a new OptimizedOut node.
func (g *Graph) OptimizedOut() *Node {
	return g.NewNode(Op(OpcodeOptimizedOut))
}

func cached[K comparable](g *Graph, m map[K]*Node, key K, op Operator) *Node {
	if n, ok := m[key]; ok && !n.IsDead() {
		return n
	}
	n := g.NewNode(op)
	m[key] = n
	return n
}

// VisitReachable calls fn once for every node reachable from End through
// inputs, in depth-first postorder.
func (g *Graph) VisitReachable(fn func(n *Node)) {
	if g.end == nil {
		return
	}
	visited := make([]bool, g.NodeCount())
	type frame struct {
		n    *Node
		next int
	}
	stack := []frame{{n: g.end}}
	visited[g.end.id] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.n.inputs) {
			in := top.n.inputs[top.next]
			top.next++
			if in != nil && !visited[in.id] {
				visited[in.id] = true
				stack = append(stack, frame{n: in})
			}
			continue
		}
		n := top.n
		stack = stack[:len(stack)-1]
		fn(n)
	}
}

// Reachable returns a per-id table of the nodes reachable from End.
func (g *Graph) Reachable() []bool {
	ret := make([]bool, g.NodeCount())
	g.VisitReachable(func(n *Node) { ret[n.id] = true })
	return ret
}

// FindProjection returns the Projection of index i of n, or nil.
func FindProjection(n *Node, i int) *Node {
	for _, u := range n.uses {
		if u.User.Opcode() == OpcodeProjection && u.User.op.Index() == i {
			return u.User
		}
	}
	return nil
}

// ReplaceWithValue replaces every use of n: value uses by value, effect uses
// by effect and control uses by control. A nil effect or control means n has
// no such uses.
func ReplaceWithValue(n, value, effect, control *Node) {
	uses := append([]Use(nil), n.uses...)
	for _, u := range uses {
		var by *Node
		switch {
		case u.User.IsValueEdge(u.Index):
			by = value
		case u.User.IsEffectEdge(u.Index):
			by = effect
		default:
			by = control
		}
		if by == nil {
			panic(fmt.Sprintf("BUG: %s has a use by %s with no replacement", n, u.User))
		}
		u.User.ReplaceInput(u.Index, by)
	}
}
