package schedule

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/zone"
)

func newGraph(params int) (*ir.Graph, *ir.Node, []*ir.Node) {
	g := ir.NewGraph(zone.New("schedule"))
	start := g.NewNode(ir.Start(params))
	g.SetStart(start)
	ps := make([]*ir.Node, params)
	for i := range ps {
		ps[i] = g.NewNode(ir.Parameter(i), start)
	}
	return g, start, ps
}

func newReturn(g *ir.Graph, v, effect, control *ir.Node) *ir.Node {
	return g.NewNode(ir.Return(1), v, effect, control)
}

func compute(t *testing.T, g *ir.Graph) *Schedule {
	s, err := ComputeSchedule(g, zone.New("test"), nil)
	require.NoError(t, err)
	requireInputsFirst(t, s)
	return s
}

// requireInputsFirst checks that every node follows the inputs scheduled in
// the same block, phis excepted.
func requireInputsFirst(t *testing.T, s *Schedule) {
	for _, b := range s.RPO() {
		pos := map[*ir.Node]int{}
		for i, n := range b.Nodes() {
			pos[n] = i
		}
		for i, n := range b.Nodes() {
			require.Equal(t, b, s.BlockOf(n), n.String())
			if n.Opcode() == ir.OpcodePhi || n.Opcode() == ir.OpcodeEffectPhi {
				continue
			}
			for _, in := range n.Inputs() {
				if j, ok := pos[in]; ok {
					require.Less(t, j, i, "%s before %s", in, n)
				}
			}
		}
	}
}

func TestComputeSchedule_diamond(t *testing.T) {
	g, start, ps := newGraph(2)
	cond := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), ps[0], ps[1])
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), cond, start)
	ifTrue := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
	ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
	merge := g.NewNode(ir.Merge(2), ifTrue, ifFalse)
	one, two := g.Int32Constant(1), g.Int32Constant(2)
	phi := g.NewNode(ir.Phi(machine.RepWord32, 2), one, two, merge)
	r := newReturn(g, phi, start, merge)
	g.SetEnd(g.NewNode(ir.End(1), r))

	s := compute(t, g)
	require.Equal(t, 5, s.BlockCount())
	rpo := s.RPO()
	require.Equal(t, start, rpo[0].StartNode())
	require.Equal(t, ifTrue, rpo[1].StartNode())
	require.Equal(t, ifFalse, rpo[2].StartNode())
	require.Equal(t, merge, rpo[3].StartNode())
	require.Equal(t, s.End(), rpo[4])

	require.Equal(t, BlockBranch, s.Start().Control())
	require.Equal(t, branch, s.Start().ControlInput())
	require.Equal(t, []*BasicBlock{rpo[1], rpo[2]}, s.Start().Successors())
	require.Equal(t, []*BasicBlock{rpo[1], rpo[2]}, rpo[3].Predecessors())
	require.Equal(t, 1, rpo[3].PredecessorIndexOf(rpo[2]))
	require.Equal(t, BlockReturn, rpo[3].Control())
	require.Equal(t, r, rpo[3].ControlInput())

	require.Equal(t, s.Start(), rpo[3].Dominator())
	require.Equal(t, rpo[3], s.End().Dominator())
	require.Equal(t, 2, s.End().DominatorDepth())
	require.True(t, s.Start().Dominates(s.End()))
	require.False(t, rpo[1].Dominates(rpo[3]))

	require.Equal(t, s.Start(), s.BlockOf(cond))
	require.Equal(t, rpo[3], s.BlockOf(phi))
	// Phi inputs are needed at the end of the matching predecessor.
	require.Equal(t, rpo[1], s.BlockOf(one))
	require.Equal(t, rpo[2], s.BlockOf(two))
	require.Equal(t, []*ir.Node{merge, phi}, rpo[3].Nodes())
	for _, b := range rpo {
		require.False(t, b.IsDeferred(), b.String())
		require.Equal(t, 0, b.LoopDepth())
	}
}

func TestComputeSchedule_loop(t *testing.T) {
	g, start, ps := newGraph(1)
	loop := g.NewNode(ir.Loop(2), start, start)
	phi := g.NewNode(ir.Phi(machine.RepWord32, 2), g.Int32Constant(0), g.Int32Constant(0), loop)
	invariant := g.NewNode(ir.Op(ir.OpcodeInt32Mul), ps[0], ps[0])
	add := g.NewNode(ir.Op(ir.OpcodeInt32Add), phi, invariant)
	phi.ReplaceInput(1, add)
	cond := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), phi, ps[0])
	branch := g.NewNode(ir.Branch(ir.BranchHintTrue), cond, loop)
	body := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
	loop.ReplaceInput(1, body)
	exit := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
	g.SetEnd(g.NewNode(ir.End(1), newReturn(g, phi, start, exit)))

	s := compute(t, g)
	rpo := s.RPO()
	require.Equal(t, 5, len(rpo))
	header := rpo[1]
	require.Equal(t, loop, header.StartNode())
	require.True(t, header.IsLoopHeader())
	require.Equal(t, 3, header.LoopEnd())
	require.Equal(t, []*BasicBlock{s.Start(), rpo[2]}, header.Predecessors())
	require.Equal(t, body, rpo[2].StartNode())
	require.Equal(t, exit, rpo[3].StartNode())

	require.Equal(t, 1, header.LoopDepth())
	require.Equal(t, 1, rpo[2].LoopDepth())
	require.Equal(t, header, rpo[2].LoopHeader())
	require.Equal(t, 0, rpo[3].LoopDepth())
	require.Nil(t, rpo[3].LoopHeader())
	require.Equal(t, header, rpo[3].Dominator())

	require.Equal(t, s.Start(), s.BlockOf(invariant), "loop invariant code is hoisted")
	require.Equal(t, rpo[2], s.BlockOf(add))
	require.Equal(t, header, s.BlockOf(cond))
	require.Equal(t, []*ir.Node{loop, phi}, header.Nodes()[:2])
	require.Contains(t, s.String(), "B1 (loop up to B3) <- B0, B2\n")
	// The exit is reached against the branch hint.
	require.True(t, rpo[3].IsDeferred())
}

func TestComputeSchedule_nestedLoops(t *testing.T) {
	g, start, ps := newGraph(2)
	c1 := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), ps[0], ps[1])
	c2 := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), ps[1], ps[0])

	outer := g.NewNode(ir.Loop(2), start, start)
	b1 := g.NewNode(ir.Branch(ir.BranchHintNone), c1, outer)
	t1 := g.NewNode(ir.Op(ir.OpcodeIfTrue), b1)
	f1 := g.NewNode(ir.Op(ir.OpcodeIfFalse), b1)
	inner := g.NewNode(ir.Loop(2), t1, t1)
	b2 := g.NewNode(ir.Branch(ir.BranchHintNone), c2, inner)
	t2 := g.NewNode(ir.Op(ir.OpcodeIfTrue), b2)
	f2 := g.NewNode(ir.Op(ir.OpcodeIfFalse), b2)
	inner.ReplaceInput(1, t2)
	outer.ReplaceInput(1, f2)
	g.SetEnd(g.NewNode(ir.End(1), newReturn(g, ps[0], start, f1)))

	s := compute(t, g)
	var starts []*ir.Node
	for _, b := range s.RPO() {
		starts = append(starts, b.StartNode())
	}
	require.Equal(t, []*ir.Node{start, outer, t1, inner, t2, f2, f1, nil}, starts)

	rpo := s.RPO()
	require.Equal(t, 6, rpo[1].LoopEnd())
	require.Equal(t, 5, rpo[3].LoopEnd())
	for i, depth := range []int{0, 1, 1, 2, 2, 1, 0, 0} {
		require.Equal(t, depth, rpo[i].LoopDepth(), rpo[i].String())
	}
	require.Equal(t, rpo[3], rpo[4].LoopHeader())
	require.Equal(t, rpo[1], rpo[5].LoopHeader())
	require.Equal(t, rpo[1], rpo[6].Dominator())

	// Both conditions only depend on parameters.
	require.Equal(t, s.Start(), s.BlockOf(c1))
	require.Equal(t, s.Start(), s.BlockOf(c2))
}

func TestComputeSchedule_deferred(t *testing.T) {
	for _, tc := range []struct {
		name          string
		hint          ir.BranchHint
		deoptimize    bool
		trueDeferred  bool
		falseDeferred bool
	}{
		{name: "no hint"},
		{name: "hint true", hint: ir.BranchHintTrue, falseDeferred: true},
		{name: "hint false", hint: ir.BranchHintFalse, trueDeferred: true},
		{name: "deoptimize", deoptimize: true, falseDeferred: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g, start, ps := newGraph(1)
			branch := g.NewNode(ir.Branch(tc.hint), ps[0], start)
			ifTrue := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
			ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
			var falseExit *ir.Node
			if tc.deoptimize {
				empty := g.NewNode(ir.StateValues(0))
				fs := g.NewNode(ir.FrameState(&ir.FrameStateInfo{Name: "f"}, false),
					empty, empty, empty, g.OptimizedOut(), g.OptimizedOut())
				falseExit = g.NewNode(ir.Deoptimize(ir.DeoptimizeEager, ir.DeoptReasonUnknown), fs, start, ifFalse)
			} else {
				falseExit = newReturn(g, ps[0], start, ifFalse)
			}
			g.SetEnd(g.NewNode(ir.End(2), newReturn(g, ps[0], start, ifTrue), falseExit))

			s := compute(t, g)
			require.Equal(t, tc.trueDeferred, s.BlockOf(ifTrue).IsDeferred())
			require.Equal(t, tc.falseDeferred, s.BlockOf(ifFalse).IsDeferred())
			require.False(t, s.Start().IsDeferred())
			if tc.deoptimize {
				require.Equal(t, BlockDeoptimize, s.BlockOf(ifFalse).Control())
			}
		})
	}
}

func TestComputeSchedule_effectChain(t *testing.T) {
	g, start, ps := newGraph(1)
	load := g.NewNode(ir.Load(machine.Int32), ps[0], g.Int64Constant(8), start, start)
	store := g.NewNode(ir.Store(machine.RepWord32), ps[0], g.Int64Constant(16), load, load, start)
	g.SetEnd(g.NewNode(ir.End(1), newReturn(g, load, store, start)))

	s := compute(t, g)
	require.Equal(t, 2, s.BlockCount())
	nodes := s.Start().Nodes()
	require.Equal(t, start, nodes[0])
	require.Less(t, indexOf(nodes, load), indexOf(nodes, store))
}

func indexOf(nodes []*ir.Node, n *ir.Node) int {
	for i, m := range nodes {
		if m == n {
			return i
		}
	}
	return -1
}

func TestComputeSchedule_callWithHandler(t *testing.T) {
	g, start, ps := newGraph(1)
	convention := &linkage.Convention{IntArgs: []int{7}, IntResults: []int{0}}
	sig := &linkage.Signature{Params: []machine.Type{machine.Int32}, Returns: []machine.Type{machine.Int32}}
	d := convention.NewCallDescriptor(linkage.CallCodeObject, sig, 0, "callee")
	call := g.NewNode(ir.Call(d), g.NewNode(ir.HeapConstant(0, "callee")), ps[0], start, start)
	success := g.NewNode(ir.Op(ir.OpcodeIfSuccess), call)
	// The exception projection reads the call as both effect and control.
	exception := g.NewNode(ir.Op(ir.OpcodeIfException), call, call)
	g.SetEnd(g.NewNode(ir.End(2),
		newReturn(g, call, call, success),
		newReturn(g, exception, exception, exception)))

	s := compute(t, g)
	require.Equal(t, 4, s.BlockCount())
	b := s.BlockOf(call)
	require.Equal(t, s.Start(), b)
	require.Equal(t, BlockCallWithHandler, b.Control())
	require.Equal(t, call, b.ControlInput())
	require.Equal(t, []*BasicBlock{s.BlockOf(success), s.BlockOf(exception)}, b.Successors())
	require.Equal(t, success, s.BlockOf(success).StartNode())
	require.Equal(t, exception, s.BlockOf(exception).StartNode())
	require.Equal(t, BlockReturn, s.BlockOf(success).Control())
	require.Equal(t, BlockReturn, s.BlockOf(exception).Control())
}

func TestComputeSchedule_irreducible(t *testing.T) {
	g, start, ps := newGraph(1)
	merge := g.NewNode(ir.Merge(2), start, start)
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), ps[0], merge)
	merge.ReplaceInput(1, g.NewNode(ir.Op(ir.OpcodeIfTrue), branch))
	ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
	g.SetEnd(g.NewNode(ir.End(1), newReturn(g, ps[0], start, ifFalse)))

	_, err := ComputeSchedule(g, zone.New("test"), nil)
	require.ErrorIs(t, err, iselapi.ErrBailout)
}

func TestComputeSchedule_trace(t *testing.T) {
	g, start, ps := newGraph(1)
	g.SetEnd(g.NewNode(ir.End(1), newReturn(g, ps[0], start, start)))

	var buf bytes.Buffer
	_, err := ComputeSchedule(g, zone.New("test"), iselapi.NewTracer(&buf))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "scheduled 2 blocks, 0 loops")
	require.Contains(t, buf.String(), "B0\n")
	require.Contains(t, buf.String(), "return")
}
