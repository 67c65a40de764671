package x64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
	"github.com/tetratelabs/isel/internal/zone"
)

func newGraph(params int) (*ir.Graph, *ir.Node, []*ir.Node) {
	g := ir.NewGraph(zone.New("x64"))
	start := g.NewNode(ir.Start(params))
	g.SetStart(start)
	ps := make([]*ir.Node, params)
	for i := range ps {
		ps[i] = g.NewNode(ir.Parameter(i), start)
	}
	return g, start, ps
}

func signature(ret machine.Type, params ...machine.Type) *linkage.Signature {
	return &linkage.Signature{Params: params, Returns: []machine.Type{ret}}
}

// returnValue ends g with a single Return of v.
func returnValue(g *ir.Graph, start, v *ir.Node) {
	g.SetEnd(g.NewNode(ir.End(1), g.NewNode(ir.Return(1), v, start, start)))
}

func selectGraph(t *testing.T, target *Target, g *ir.Graph, sig *linkage.Signature) *backend.InstructionSequence {
	sched, err := schedule.ComputeSchedule(g, zone.New("schedule"), nil)
	require.NoError(t, err)
	seq := backend.NewInstructionSequence(zone.New("sequence"), sched, target.OpcodeName)
	l := linkage.New(convention.NewCallDescriptor(linkage.CallCodeObject, sig, 0, "test"))
	s := backend.NewInstructionSelector(target, l, seq, sched, backend.NewFrame(0), backend.SelectorOptions{}, nil)
	require.NoError(t, s.SelectInstructions())
	require.NoError(t, backend.Verify(seq), seq.String())
	return seq
}

func only(t *testing.T, seq *backend.InstructionSequence, o backend.ArchOpcode) *backend.Instruction {
	var found []*backend.Instruction
	for _, instr := range seq.Instructions() {
		if instr.ArchOpcode() == o {
			found = append(found, instr)
		}
	}
	require.Len(t, found, 1, seq.String())
	return found[0]
}

// parameterVReg returns the virtual register of parameter i.
func parameterVReg(t *testing.T, seq *backend.InstructionSequence, i int) backend.VReg {
	for _, instr := range seq.Instructions() {
		if instr.ArchOpcode() != backend.ArchNop || instr.OutputCount() != 1 {
			continue
		}
		out := instr.Output()
		if out.HasFixedPolicy() && out.Policy() == backend.PolicyFixedRegister && out.FixedIndex() == convention.IntArgs[i] {
			return out.VirtualRegister()
		}
		if out.HasFixedPolicy() && out.Policy() == backend.PolicyFixedFPRegister && out.FixedIndex() == convention.FloatArgs[i] {
			return out.VirtualRegister()
		}
	}
	t.Fatalf("no parameter %d in\n%s", i, seq)
	return backend.VRegInvalid
}

var allFeatures = Features{POPCNT: true, BMI1: true}

func TestSelector_binop(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		g, start, ps := newGraph(1)
		returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeInt32Add), ps[0], g.Int32Constant(5)))
		seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32))

		add := only(t, seq, x64Add32)
		require.Equal(t, backend.PolicySameAsFirst, add.Output().Policy())
		require.Equal(t, parameterVReg(t, seq, 0), add.InputAt(0).VirtualRegister())
		require.True(t, add.InputAt(1).IsImmediate())
		require.Equal(t, int32(5), add.InputAt(1).InlineValue())
	})
	t.Run("constant on the left of a commutative operation", func(t *testing.T) {
		g, start, ps := newGraph(1)
		returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeInt32Mul), g.Int32Constant(3), ps[0]))
		seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32))

		mul := only(t, seq, x64Imul32)
		require.Equal(t, parameterVReg(t, seq, 0), mul.InputAt(0).VirtualRegister())
		require.Equal(t, int32(3), mul.InputAt(1).InlineValue())
	})
	t.Run("same input twice", func(t *testing.T) {
		g, start, ps := newGraph(1)
		returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeWord32Xor), ps[0], ps[0]))
		seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32))

		xor := only(t, seq, x64Xor32)
		require.Equal(t, *xor.InputAt(0), *xor.InputAt(1))
		require.Equal(t, backend.PolicyRegister, xor.InputAt(0).Policy())
	})
	t.Run("covered load", func(t *testing.T) {
		g, start, ps := newGraph(2)
		load := g.NewNode(ir.Load(machine.Int32), ps[1], g.Int32Constant(16), start, start)
		// The load stays off the effect chain so that add is its only user.
		returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeInt32Add), ps[0], load))
		seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32, machine.Pointer))

		instr := only(t, seq, x64Add32)
		require.Equal(t, modeMRI, instr.AddressingMode())
		require.Equal(t, 3, instr.InputCount())
		require.Equal(t, parameterVReg(t, seq, 0), instr.InputAt(0).VirtualRegister())
		require.Equal(t, parameterVReg(t, seq, 1), instr.InputAt(1).VirtualRegister())
		require.Equal(t, int32(16), instr.InputAt(2).InlineValue())
		for _, i := range seq.Instructions() {
			require.NotEqual(t, backend.ArchOpcode(x64Movl), i.ArchOpcode(), "the load is folded")
		}
	})
}

func TestSelector_load(t *testing.T) {
	for _, tc := range []struct {
		name  string
		index func(g *ir.Graph, p *ir.Node) *ir.Node
		mode  backend.AddressingMode
	}{
		{name: "base only", index: func(g *ir.Graph, _ *ir.Node) *ir.Node { return g.Int64Constant(0) }, mode: modeMR},
		{name: "index", index: func(_ *ir.Graph, p *ir.Node) *ir.Node { return p }, mode: modeMR1},
		{
			name: "scaled index",
			index: func(g *ir.Graph, p *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeWord64Shl), p, g.Int64Constant(3))
			},
			mode: modeMR8,
		},
		{
			name: "scaled index with displacement",
			index: func(g *ir.Graph, p *ir.Node) *ir.Node {
				shl := g.NewNode(ir.Op(ir.OpcodeWord64Shl), p, g.Int64Constant(2))
				return g.NewNode(ir.Op(ir.OpcodeInt64Add), shl, g.Int64Constant(24))
			},
			mode: modeMR4I,
		},
		{
			name: "shift too large",
			index: func(g *ir.Graph, p *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeWord64Shl), p, g.Int64Constant(4))
			},
			mode: modeMR1,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g, start, ps := newGraph(2)
			load := g.NewNode(ir.Load(machine.Int64), ps[0], tc.index(g, ps[1]), start, start)
			g.SetEnd(g.NewNode(ir.End(1), g.NewNode(ir.Return(1), load, load, start)))
			seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int64, machine.Pointer, machine.Int64))

			instr := only(t, seq, x64Movq)
			require.Equal(t, tc.mode, instr.AddressingMode())
			require.Equal(t, memoryInputCount(tc.mode), instr.InputCount())
			require.Equal(t, parameterVReg(t, seq, 0), instr.InputAt(0).VirtualRegister())
		})
	}
}

func TestSelector_store(t *testing.T) {
	g, start, ps := newGraph(2)
	store := g.NewNode(ir.Store(machine.RepWord8), ps[0], g.Int64Constant(4), g.Int32Constant(-1), start, start)
	g.SetEnd(g.NewNode(ir.End(1), g.NewNode(ir.Return(1), ps[1], store, start)))
	seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Pointer, machine.Int32))

	instr := only(t, seq, x64Movb)
	require.Equal(t, 0, instr.OutputCount())
	require.Equal(t, modeMRI, instr.AddressingMode())
	require.Equal(t, int32(4), instr.InputAt(1).InlineValue())
	require.Equal(t, int32(-1), instr.InputAt(2).InlineValue())
}

func TestSelector_compare(t *testing.T) {
	for _, tc := range []struct {
		name       string
		left       func(g *ir.Graph, ps []*ir.Node) *ir.Node
		right      func(g *ir.Graph, ps []*ir.Node) *ir.Node
		expCond    backend.FlagsCondition
		immediate  bool
		paramFirst bool
	}{
		{
			name:      "immediate on the right",
			left:      func(_ *ir.Graph, ps []*ir.Node) *ir.Node { return ps[0] },
			right:     func(g *ir.Graph, _ []*ir.Node) *ir.Node { return g.Int32Constant(10) },
			expCond:   backend.CondSignedLessThan,
			immediate: true,
		},
		{
			name:      "immediate on the left commutes",
			left:      func(g *ir.Graph, _ []*ir.Node) *ir.Node { return g.Int32Constant(10) },
			right:     func(_ *ir.Graph, ps []*ir.Node) *ir.Node { return ps[0] },
			expCond:   backend.CondSignedGreaterThan,
			immediate: true,
		},
		{
			name:    "registers",
			left:    func(_ *ir.Graph, ps []*ir.Node) *ir.Node { return ps[0] },
			right:   func(_ *ir.Graph, ps []*ir.Node) *ir.Node { return ps[1] },
			expCond: backend.CondSignedLessThan,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			g, start, ps := newGraph(2)
			lt := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), tc.left(g, ps), tc.right(g, ps))
			branch := g.NewNode(ir.Branch(ir.BranchHintNone), lt, start)
			ifTrue := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
			ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
			g.SetEnd(g.NewNode(ir.End(2),
				g.NewNode(ir.Return(1), ps[0], start, ifTrue),
				g.NewNode(ir.Return(1), ps[1], start, ifFalse)))
			seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32, machine.Int32))

			cmp := only(t, seq, x64Cmp32)
			require.Equal(t, backend.FlagsModeBranch, cmp.FlagsMode())
			require.Equal(t, tc.expCond, cmp.FlagsCondition())
			// Two labels follow the compared operands.
			require.Equal(t, 4, cmp.InputCount())
			require.Equal(t, tc.immediate, cmp.InputAt(1).IsImmediate())
			require.Equal(t, parameterVReg(t, seq, 0), cmp.InputAt(0).VirtualRegister())
		})
	}
}

func TestSelector_branchOnEqualZero(t *testing.T) {
	g, start, ps := newGraph(2)
	and := g.NewNode(ir.Op(ir.OpcodeWord32And), ps[0], ps[1])
	eq := g.NewNode(ir.Op(ir.OpcodeWord32Equal), and, g.Int32Constant(0))
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), eq, start)
	ifTrue := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
	ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
	g.SetEnd(g.NewNode(ir.End(2),
		g.NewNode(ir.Return(1), ps[0], start, ifTrue),
		g.NewNode(ir.Return(1), ps[1], start, ifFalse)))
	seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32, machine.Int32))

	test := only(t, seq, x64Test32)
	require.Equal(t, backend.FlagsModeBranch, test.FlagsMode())
	// Branching on x == 0 tests for equality.
	require.Equal(t, backend.CondEqual, test.FlagsCondition())
	for _, i := range seq.Instructions() {
		require.NotEqual(t, backend.ArchOpcode(x64And32), i.ArchOpcode())
	}
}

func TestSelector_floatCompare(t *testing.T) {
	for _, tc := range []struct {
		op      ir.Opcode
		expCond backend.FlagsCondition
		swapped bool
	}{
		{op: ir.OpcodeFloat64Equal, expCond: backend.CondUnorderedEqual},
		{op: ir.OpcodeFloat64LessThan, expCond: backend.CondFloatGreaterThan, swapped: true},
		{op: ir.OpcodeFloat64LessThanOrEqual, expCond: backend.CondFloatGreaterThanOrEqual, swapped: true},
	} {
		tc := tc
		t.Run(tc.op.String(), func(t *testing.T) {
			g, start, ps := newGraph(2)
			returnValue(g, start, g.NewNode(ir.Op(tc.op), ps[0], ps[1]))
			seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Float64, machine.Float64))

			cmp := only(t, seq, x64Float64Cmp)
			require.Equal(t, backend.FlagsModeSet, cmp.FlagsMode())
			require.Equal(t, tc.expCond, cmp.FlagsCondition())
			left := parameterVReg(t, seq, 0)
			if tc.swapped {
				left = parameterVReg(t, seq, 1)
			}
			require.Equal(t, left, cmp.InputAt(0).VirtualRegister())
		})
	}
}

func TestSelector_division(t *testing.T) {
	for _, tc := range []struct {
		op        ir.Opcode
		exp       backend.ArchOpcode
		out, temp int
	}{
		{op: ir.OpcodeInt32Div, exp: x64Idiv32, out: rax, temp: rdx},
		{op: ir.OpcodeUint32Div, exp: x64Udiv32, out: rax, temp: rdx},
		{op: ir.OpcodeInt32Mod, exp: x64Imod32, out: rdx, temp: rax},
		{op: ir.OpcodeUint32Mod, exp: x64Umod32, out: rdx, temp: rax},
	} {
		tc := tc
		t.Run(tc.op.String(), func(t *testing.T) {
			g, start, ps := newGraph(2)
			returnValue(g, start, g.NewNode(ir.Op(tc.op), ps[0], ps[1]))
			seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32, machine.Int32))

			div := only(t, seq, tc.exp)
			require.Equal(t, tc.out, div.Output().FixedIndex())
			require.Equal(t, rax, div.InputAt(0).FixedIndex())
			require.Equal(t, backend.PolicyRegister, div.InputAt(1).Policy())
			require.False(t, div.InputAt(1).IsUsedAtStart())
			require.Equal(t, 1, div.TempCount())
			require.Equal(t, tc.temp, div.TempAt(0).FixedIndex())
		})
	}
}

func TestSelector_shift(t *testing.T) {
	t.Run("by register", func(t *testing.T) {
		g, start, ps := newGraph(2)
		returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeWord32Shl), ps[0], ps[1]))
		seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32, machine.Int32))
		shl := only(t, seq, x64Shl32)
		require.Equal(t, rcx, shl.InputAt(1).FixedIndex())
	})
	t.Run("immediate is masked", func(t *testing.T) {
		g, start, ps := newGraph(1)
		returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeWord32Sar), ps[0], g.Int32Constant(33)))
		seq := selectGraph(t, NewTarget(allFeatures), g, signature(machine.Int32, machine.Int32))
		sar := only(t, seq, x64Sar32)
		require.Equal(t, int32(1), sar.InputAt(1).InlineValue())
	})
}

func TestSelector_features(t *testing.T) {
	t.Run("ctz", func(t *testing.T) {
		for _, tc := range []struct {
			features Features
			exp      backend.ArchOpcode
		}{
			{features: Features{BMI1: true}, exp: x64Tzcnt32},
			{features: Features{}, exp: x64Bsf32},
		} {
			g, start, ps := newGraph(1)
			returnValue(g, start, g.NewNode(ir.Op(ir.OpcodeWord32Ctz), ps[0]))
			seq := selectGraph(t, NewTarget(tc.features), g, signature(machine.Int32, machine.Int32))
			only(t, seq, tc.exp)
		}
	})
	t.Run("popcnt", func(t *testing.T) {
		g, _, ps := newGraph(1)
		popcnt := g.NewNode(ir.Op(ir.OpcodeWord32Popcnt), ps[0])
		require.NoError(t, NewTarget(allFeatures).CheckSupport(popcnt))
		err := NewTarget(Features{}).CheckSupport(popcnt)
		require.ErrorIs(t, err, iselapi.ErrBailout)
	})
	t.Run("String", func(t *testing.T) {
		require.Equal(t, "baseline", Features{}.String())
		require.Equal(t, "popcnt,bmi1", allFeatures.String())
	})
}

func TestTarget_OpcodeName(t *testing.T) {
	target := NewTarget(Features{})
	require.Equal(t, "X64Add32", target.OpcodeName(x64Add32))
	require.Equal(t, "SSEFloat64Cmp", target.OpcodeName(x64Float64Cmp))
	require.Equal(t, "X64Opcode(511)", target.OpcodeName(511))
	for o := backend.ArchOpcodeTargetBase; o < x64OpcodeEnd; o++ {
		require.NotEmpty(t, opcodeNames[o-backend.ArchOpcodeTargetBase], o)
	}
}
