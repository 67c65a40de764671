// Package reducer implements the worklist graph-rewriting framework and the
// generic reducers the pipeline runs to a fixpoint.
package reducer

import (
	"fmt"

	"github.com/oleiade/lane"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

// Reduction is the result of Reducer.Reduce.
type Reduction struct {
	replacement *ir.Node
}

// NoChange is the Reduction of a node left untouched.
func NoChange() Reduction { return Reduction{} }

// Replace returns a Reduction replacing the reduced node with n.
func Replace(n *ir.Node) Reduction { return Reduction{replacement: n} }

// Changed returns a Reduction recording that n was modified in place.
func Changed(n *ir.Node) Reduction { return Reduction{replacement: n} }

// Changed returns true unless this is NoChange.
func (r Reduction) Changed() bool { return r.replacement != nil }

// Replacement returns the node replacing the reduced one, which is the reduced
// node itself for in-place changes.
func (r Reduction) Replacement() *ir.Node { return r.replacement }

// Reducer rewrites single nodes.
type Reducer interface {
	// Name is used in traces.
	Name() string
	// Reduce tries to simplify n.
	Reduce(n *ir.Node) Reduction
}

// Editor is how reducers edit the graph beyond the node they are reducing.
type Editor interface {
	// Graph returns the graph being reduced.
	Graph() *ir.Graph
	// Revisit schedules n for another reduction.
	Revisit(n *ir.Node)
	// Replace replaces every use of n with by and kills n.
	Replace(n, by *ir.Node)
	// ReplaceWithValue replaces value, effect and control uses of n. A nil
	// effect or control defaults to the corresponding input of n.
	ReplaceWithValue(n, value, effect, control *ir.Node)
}

type nodeState byte

const (
	stateUnvisited nodeState = iota
	stateQueued
	stateVisited
)

// GraphReducer applies a set of reducers to every node reachable from End
// until none of them changes anything.
type GraphReducer struct {
	g        *ir.Graph
	reducers []Reducer
	queue    *lane.Queue
	state    []nodeState
	tracer   *iselapi.Tracer
	// reductions counts the successful reductions of the last ReduceGraph.
	reductions int
}

// NewGraphReducer returns a GraphReducer over g.
func NewGraphReducer(g *ir.Graph, tracer *iselapi.Tracer) *GraphReducer {
	return &GraphReducer{g: g, queue: lane.NewQueue(), tracer: tracer}
}

// AddReducer appends r to the reducers run on every node.
func (r *GraphReducer) AddReducer(red Reducer) {
	r.reducers = append(r.reducers, red)
}

// Graph implements Editor.Graph.
func (r *GraphReducer) Graph() *ir.Graph { return r.g }

// Reductions returns the number of reductions done by the last ReduceGraph.
func (r *GraphReducer) Reductions() int { return r.reductions }

// ReduceGraph seeds the worklist with every reachable node, inputs before
// users, and reduces until the worklist is empty.
func (r *GraphReducer) ReduceGraph() {
	r.reductions = 0
	r.state = make([]nodeState, r.g.NodeCount())
	r.g.VisitReachable(r.Revisit)
	for !r.queue.Empty() {
		n := r.queue.Dequeue().(*ir.Node)
		r.setState(n, stateVisited)
		if n.IsDead() {
			continue
		}
		r.reduce(n)
	}
	r.tracer.Printf("reduced %d nodes with %d reducers", r.reductions, len(r.reducers))
}

func (r *GraphReducer) reduce(n *ir.Node) {
	for changed := true; changed; {
		changed = false
		for _, red := range r.reducers {
			if n.IsDead() {
				return
			}
			res := red.Reduce(n)
			if !res.Changed() {
				continue
			}
			r.reductions++
			if iselapi.ReducerLoggingEnabled {
				fmt.Printf("[%s] %s => %s\n", red.Name(), n, res.Replacement())
			}
			if res.Replacement() == n {
				// In-place change: users may now simplify, and so may n itself.
				r.revisitUsers(n)
				changed = true
				break
			}
			r.Replace(n, res.Replacement())
			return
		}
	}
}

// Revisit implements Editor.Revisit.
func (r *GraphReducer) Revisit(n *ir.Node) {
	if n.IsDead() || r.getState(n) == stateQueued {
		return
	}
	r.setState(n, stateQueued)
	r.queue.Enqueue(n)
}

func (r *GraphReducer) revisitUsers(n *ir.Node) {
	for _, u := range n.Uses() {
		r.Revisit(u.User)
	}
}

// Replace implements Editor.Replace.
func (r *GraphReducer) Replace(n, by *ir.Node) {
	if n == by {
		return
	}
	r.revisitUsers(n)
	n.ReplaceUses(by)
	if r.getState(by) == stateUnvisited {
		r.Revisit(by)
	}
	if n != r.g.End() && n != r.g.Start() {
		n.Kill()
	}
}

// ReplaceWithValue implements Editor.ReplaceWithValue.
func (r *GraphReducer) ReplaceWithValue(n, value, effect, control *ir.Node) {
	if effect == nil && n.Op().EffectInputCount() > 0 {
		effect = n.EffectInput(0)
	}
	if control == nil && n.Op().ControlInputCount() > 0 {
		control = n.ControlInput(0)
	}
	r.revisitUsers(n)
	ir.ReplaceWithValue(n, value, effect, control)
}

func (r *GraphReducer) getState(n *ir.Node) nodeState {
	if int(n.ID()) >= len(r.state) {
		return stateUnvisited
	}
	return r.state[n.ID()]
}

func (r *GraphReducer) setState(n *ir.Node, s nodeState) {
	for int(n.ID()) >= len(r.state) {
		r.state = append(r.state, stateUnvisited)
	}
	r.state[n.ID()] = s
}
