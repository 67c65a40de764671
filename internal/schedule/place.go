package schedule

import (
	"fmt"

	"github.com/oleiade/lane"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

// scheduleNodes places every reachable node into a block and orders the
// nodes of each block.
//
// Nodes tied to control are placed first. Pure nodes then float: they go to
// the common dominator of their uses, hoisted out of loops as far as their
// inputs allow.
func (s *Schedule) scheduleNodes() {
	var postorder []*ir.Node
	s.g.VisitReachable(func(n *ir.Node) { postorder = append(postorder, n) })

	floating := make([]bool, s.g.NodeCount())
	for _, n := range postorder {
		if b := s.fixedBlock(n); b != nil {
			s.nodeBlocks[n.ID()] = b
		} else {
			floating[n.ID()] = true
		}
	}

	// Schedule early: the deepest block of the inputs. Inputs precede their
	// users in postorder, and floating nodes only form cycles through phis.
	early := make([]*BasicBlock, s.g.NodeCount())
	pending := make([]int, s.g.NodeCount())
	for _, n := range postorder {
		if !floating[n.ID()] {
			continue
		}
		e := s.start
		for _, in := range n.Inputs() {
			ib := early[in.ID()]
			if !floating[in.ID()] {
				ib = s.nodeBlocks[in.ID()]
			}
			if ib.dominatorDepth > e.dominatorDepth {
				e = ib
			}
			if floating[in.ID()] {
				pending[in.ID()]++
			}
		}
		early[n.ID()] = e
	}

	// Schedule late, users before inputs.
	q := lane.NewQueue()
	for i := len(postorder) - 1; i >= 0; i-- {
		if n := postorder[i]; floating[n.ID()] && pending[n.ID()] == 0 {
			q.Enqueue(n)
		}
	}
	for !q.Empty() {
		n := q.Dequeue().(*ir.Node)
		var late *BasicBlock
		for _, u := range n.Uses() {
			ub := s.useBlock(u)
			if ub == nil {
				continue
			}
			if late == nil {
				late = ub
			} else {
				late = commonDominator(late, ub)
			}
		}
		if late == nil {
			late = early[n.ID()]
		}
		s.nodeBlocks[n.ID()] = hoist(late, early[n.ID()])
		if iselapi.SchedulerLoggingEnabled {
			fmt.Printf("%s: early %s late %s placed %s\n", n, early[n.ID()], late, s.nodeBlocks[n.ID()])
		}
		for _, in := range n.Inputs() {
			if floating[in.ID()] {
				if pending[in.ID()]--; pending[in.ID()] == 0 {
					q.Enqueue(in)
				}
			}
		}
	}

	s.orderNodes(postorder)
}

// fixedBlock returns the block n is tied to, or nil if n floats.
func (s *Schedule) fixedBlock(n *ir.Node) *BasicBlock {
	op := n.Op()
	switch {
	case n == s.g.End():
		return s.end
	case n.Opcode() == ir.OpcodePhi || n.Opcode() == ir.OpcodeEffectPhi:
		return s.controlBlock(n.ControlInput(0))
	case op.ControlOutputCount() > 0 || n.Opcode().IsBlockStart():
		return s.controlBlock(n)
	case op.ControlInputCount() > 0:
		return s.controlBlock(n.ControlInput(0))
	case !n.Opcode().IsPure():
		panic(fmt.Sprintf("BUG: %s is neither pure nor tied to control", n))
	}
	return nil
}

// useBlock returns the block where u needs the value, or nil for uses that
// are not scheduled. A phi needs its i-th input at the end of the i-th
// predecessor of its merge.
func (s *Schedule) useBlock(u ir.Use) *BasicBlock {
	b := s.nodeBlocks[u.User.ID()]
	if b == nil {
		return nil
	}
	if u.User.Opcode() == ir.OpcodePhi && u.User.IsValueEdge(u.Index) {
		return b.preds[u.Index]
	}
	return b
}

// hoist walks the dominator chain from late up to early and returns the
// block with the smallest loop depth, the latest one on ties.
func hoist(late, early *BasicBlock) *BasicBlock {
	best := late
	for b := late; b != early && b.dominator != nil; {
		b = b.dominator
		if b.loopDepth < best.loopDepth {
			best = b
		}
	}
	return best
}

// orderNodes fills the node lists of the blocks. The block start and phis
// come first, then the other nodes of the block in a depth-first postorder
// of their inputs, so every node follows the inputs scheduled in its block.
func (s *Schedule) orderNodes(postorder []*ir.Node) {
	members := make([][]*ir.Node, len(s.blocks))
	for _, n := range postorder {
		b := s.nodeBlocks[n.ID()]
		if b == nil || b == s.end || b.controlInput == n {
			continue
		}
		members[b.id] = append(members[b.id], n)
	}

	visited := make([]bool, s.g.NodeCount())
	type frame struct {
		n    *ir.Node
		next int
	}
	var stack []frame
	for _, b := range s.rpo {
		nodes := b.nodes[:0]
		if b.start != nil {
			nodes = append(nodes, b.start)
			visited[b.start.ID()] = true
		}
		for _, n := range members[b.id] {
			if op := n.Opcode(); op == ir.OpcodePhi || op == ir.OpcodeEffectPhi {
				nodes = append(nodes, n)
				visited[n.ID()] = true
			}
		}

		visit := func(root *ir.Node) {
			if visited[root.ID()] || s.nodeBlocks[root.ID()] != b || b.controlInput == root {
				return
			}
			visited[root.ID()] = true
			for stack = append(stack[:0], frame{n: root}); len(stack) > 0; {
				top := &stack[len(stack)-1]
				if top.next < top.n.InputCount() {
					in := top.n.InputAt(top.next)
					top.next++
					if !visited[in.ID()] && s.nodeBlocks[in.ID()] == b && b.controlInput != in {
						visited[in.ID()] = true
						stack = append(stack, frame{n: in})
					}
					continue
				}
				nodes = append(nodes, top.n)
				stack = stack[:len(stack)-1]
			}
		}
		if c := b.controlInput; c != nil {
			for _, in := range c.Inputs() {
				visit(in)
			}
		}
		for _, n := range members[b.id] {
			visit(n)
		}
		b.nodes = nodes
	}
}
