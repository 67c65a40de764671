package schedule

import (
	"fmt"

	"github.com/oleiade/lane"
	"golang.org/x/exp/slices"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

type loop struct {
	header *BasicBlock
	// members is indexed by BasicBlockID and includes the header.
	members         []bool
	size, remaining int
	parent          *loop
	depth           int
}

func (l *loop) contains(b *BasicBlock) bool { return l.members[b.id] }

// computeSpecialRPO orders the blocks so that every block follows its
// forward predecessors and the blocks of every loop are contiguous,
// starting at the loop header.
func (s *Schedule) computeSpecialRPO() error {
	reached, backEdges, isBack := s.findBackEdges()
	for _, b := range s.blocks {
		if !reached[b.id] {
			continue
		}
		for _, p := range b.preds {
			if !reached[p.id] {
				return fmt.Errorf("BUG: %s has an unreachable predecessor", b.start)
			}
		}
	}

	innermost, err := s.computeLoops(backEdges)
	if err != nil {
		return err
	}

	indegree := make([]int, len(s.blocks))
	for _, b := range s.blocks {
		if !reached[b.id] {
			continue
		}
		for i, succ := range b.succs {
			if !isBack(b, i) {
				indegree[succ.id]++
			}
		}
	}

	// Kahn's algorithm restricted to the innermost open loop. The ready list
	// is used as a stack so the first successor of a block is placed next.
	ready := []*BasicBlock{s.start}
	var open []*loop
	for len(ready) > 0 {
		for len(open) > 0 && open[len(open)-1].remaining == 0 {
			open = open[:len(open)-1]
		}
		pick := len(ready) - 1
		if len(open) > 0 {
			current := open[len(open)-1]
			for pick >= 0 && !current.contains(ready[pick]) {
				pick--
			}
			if pick < 0 {
				return iselapi.Bailoutf("irreducible control flow in loop at %s", current.header.start)
			}
		}
		b := ready[pick]
		ready = slices.Delete(ready, pick, pick+1)

		b.rpo = len(s.rpo)
		s.rpo = append(s.rpo, b)
		for l := innermost[b.id]; l != nil; l = l.parent {
			l.remaining--
		}
		if l := innermost[b.id]; l != nil && l.header == b {
			open = append(open, l)
		}
		for i := len(b.succs) - 1; i >= 0; i-- {
			if isBack(b, i) {
				continue
			}
			succ := b.succs[i]
			if indegree[succ.id]--; indegree[succ.id] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	for _, l := range s.loops {
		l.header.loopEnd = l.header.rpo + l.size
		for _, b := range s.rpo[l.header.rpo:l.header.loopEnd] {
			if !l.contains(b) {
				return fmt.Errorf("BUG: loop at %s is not contiguous", l.header)
			}
		}
	}
	for _, b := range s.rpo {
		if l := innermost[b.id]; l != nil {
			b.loop = l.header
			b.loopDepth = l.depth
		}
	}
	return nil
}

// findBackEdges runs a depth-first search from the start block and reports
// the edges reaching a block still on the search stack.
func (s *Schedule) findBackEdges() (reached []bool, backEdges [][2]*BasicBlock, isBack func(b *BasicBlock, succ int) bool) {
	reached = make([]bool, len(s.blocks))
	onStack := make([]bool, len(s.blocks))
	back := make([][]bool, len(s.blocks))

	type frame struct {
		b    *BasicBlock
		next int
	}
	stack := []frame{{b: s.start}}
	reached[s.start.id], onStack[s.start.id] = true, true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		b := top.b
		if top.next < len(b.succs) {
			i := top.next
			top.next++
			succ := b.succs[i]
			switch {
			case onStack[succ.id]:
				if back[b.id] == nil {
					back[b.id] = make([]bool, len(b.succs))
				}
				back[b.id][i] = true
				backEdges = append(backEdges, [2]*BasicBlock{b, succ})
			case !reached[succ.id]:
				reached[succ.id], onStack[succ.id] = true, true
				stack = append(stack, frame{b: succ})
			}
			continue
		}
		onStack[b.id] = false
		stack = stack[:len(stack)-1]
	}
	isBack = func(b *BasicBlock, succ int) bool {
		return back[b.id] != nil && back[b.id][succ]
	}
	return
}

// computeLoops collects the natural loop of every back edge and nests the
// loops. It returns the innermost loop of every block.
func (s *Schedule) computeLoops(backEdges [][2]*BasicBlock) ([]*loop, error) {
	byHeader := make([]*loop, len(s.blocks))
	for _, e := range backEdges {
		src, h := e[0], e[1]
		if h.start == nil || h.start.Opcode() != ir.OpcodeLoop {
			return nil, iselapi.Bailoutf("irreducible control flow into %s", h.start)
		}
		l := byHeader[h.id]
		if l == nil {
			l = &loop{header: h, members: make([]bool, len(s.blocks)), size: 1}
			l.members[h.id] = true
			byHeader[h.id] = l
			h.loopHeader = true
			s.loops = append(s.loops, l)
		}

		st := lane.NewStack()
		for st.Push(src); !st.Empty(); {
			b := st.Pop().(*BasicBlock)
			if l.members[b.id] {
				continue
			}
			if b == s.start {
				return nil, iselapi.Bailoutf("loop at %s does not dominate its back edge", h.start)
			}
			l.members[b.id] = true
			l.size++
			for _, p := range b.preds {
				if !l.members[p.id] {
					st.Push(p)
				}
			}
		}
	}

	// Outer loops are larger, so after sorting the parent of a loop is the
	// closest preceding loop containing its header.
	slices.SortStableFunc(s.loops, func(a, b *loop) int { return b.size - a.size })
	innermost := make([]*loop, len(s.blocks))
	for i, l := range s.loops {
		l.remaining = l.size
		for j := i - 1; j >= 0; j-- {
			if s.loops[j].contains(l.header) {
				l.parent = s.loops[j]
				break
			}
		}
		l.depth = 1
		if l.parent != nil {
			l.depth = l.parent.depth + 1
		}
		for id, member := range l.members {
			if member {
				innermost[id] = l
			}
		}
	}
	return innermost, nil
}

// computeDominators computes the immediate dominators over the RPO with the
// algorithm of "A Simple, Fast Dominance Algorithm" by Cooper, Harvey and Kennedy.
func (s *Schedule) computeDominators() {
	entry := s.rpo[0]
	entry.dominator = entry
	for changed := true; changed; {
		changed = false
		for _, b := range s.rpo[1:] {
			var u *BasicBlock
			for _, p := range b.preds {
				// Not processed yet, which happens for back edges.
				if p.dominator == nil {
					continue
				}
				if u == nil {
					u = p
				} else {
					u = intersect(u, p)
				}
			}
			if b.dominator != u {
				b.dominator = u
				changed = true
			}
		}
	}
	entry.dominator = nil
	for _, b := range s.rpo[1:] {
		b.dominatorDepth = b.dominator.dominatorDepth + 1
	}
}

func intersect(finger1, finger2 *BasicBlock) *BasicBlock {
	for finger1 != finger2 {
		for finger1.rpo > finger2.rpo {
			finger1 = finger1.dominator
		}
		for finger2.rpo > finger1.rpo {
			finger2 = finger2.dominator
		}
	}
	return finger1
}

// commonDominator returns the deepest block dominating both a and b.
func commonDominator(a, b *BasicBlock) *BasicBlock {
	for a != b {
		if a.dominatorDepth < b.dominatorDepth {
			b = b.dominator
		} else {
			a = a.dominator
		}
	}
	return a
}

// markDeferredBlocks marks the blocks only reached against a branch hint and
// the blocks that can only end in a deoptimization or a throw.
func (s *Schedule) markDeferredBlocks() {
	for _, b := range s.rpo[1:] {
		if b == s.end {
			continue
		}
		if unlikely(b.start) {
			b.deferred = true
			continue
		}
		b.deferred = len(b.preds) > 0
		for _, p := range b.preds {
			b.deferred = b.deferred && p.deferred
		}
	}
	for i := len(s.rpo) - 1; i > 0; i-- {
		b := s.rpo[i]
		if b == s.end || b.deferred {
			continue
		}
		switch b.control {
		case BlockDeoptimize, BlockThrow:
			b.deferred = true
			continue
		case BlockReturn, BlockTailCall:
			continue
		}
		b.deferred = len(b.succs) > 0
		for _, succ := range b.succs {
			b.deferred = b.deferred && succ.deferred
		}
	}
}

func unlikely(start *ir.Node) bool {
	switch start.Opcode() {
	case ir.OpcodeIfTrue:
		return start.ControlInput(0).Op().BranchHint() == ir.BranchHintFalse
	case ir.OpcodeIfFalse:
		return start.ControlInput(0).Op().BranchHint() == ir.BranchHintTrue
	}
	return false
}
