package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/zone"
)

// newSimpleGraph builds Return(Int32Add(p0, 1)).
func newSimpleGraph(t *testing.T) (*Graph, *Node) {
	g := NewGraph(zone.New("graph"))
	start := g.NewNode(Start(1))
	g.SetStart(start)
	p0 := g.NewNode(Parameter(0), start)
	add := g.NewNode(Op(OpcodeInt32Add), p0, g.Int32Constant(1))
	ret := g.NewNode(Return(1), add, start, start)
	g.SetEnd(g.NewNode(End(1), ret))
	require.NoError(t, Verify(g))
	return g, add
}

func TestOpcodeTable(t *testing.T) {
	for o := OpcodeInvalid + 1; o < opcodeEnd; o++ {
		info := o.info()
		require.NotEmpty(t, info.name, int(o))
		require.NotEqual(t, categoryInvalid, info.category, o.String())
		if o.IsMachine() && o != OpcodeLoad && o != OpcodeStore {
			require.NotEqual(t, machine.RepNone, o.MachineInput(), o.String())
			require.NotEqual(t, machine.None, o.MachineOutput(), o.String())
		}
	}
	require.Equal(t, int(opcodeEnd)-1, OpcodeCount)
	require.Equal(t, "invalid(0)", OpcodeInvalid.String())
	require.True(t, OpcodeInt32Add.IsPure())
	require.False(t, OpcodeLoad.IsPure())
	require.False(t, OpcodePhi.IsPure())
	require.True(t, OpcodeWord32Equal.IsComparison())
	require.True(t, OpcodeInt32Constant.IsConstant())
}

func TestOp_needsParameters(t *testing.T) {
	for _, o := range []Opcode{OpcodePhi, OpcodeLoad, OpcodeCall, OpcodeInt32Constant, OpcodeSwitch, OpcodeMerge} {
		require.Panics(t, func() { Op(o) }, o.String())
	}
	require.NotPanics(t, func() { Op(OpcodeOptimizedOut) })
}

func TestOperator(t *testing.T) {
	for _, tc := range []struct {
		op                   Operator
		exp                  string
		values, effects, cts int
	}{
		{op: Int32Constant(-5), exp: "Int32Constant[-5]"},
		{op: Phi(machine.RepFloat64, 2), exp: "Phi[float64, 2]", values: 2, cts: 1},
		{op: EffectPhi(3), exp: "EffectPhi[3]", effects: 3, cts: 1},
		{op: Load(machine.Int32), exp: "Load[int32|word32]", values: 2, effects: 1, cts: 1},
		{op: Return(1), exp: "Return[1]", values: 1, effects: 1, cts: 1},
		{op: FrameState(&FrameStateInfo{Name: "f", BailoutID: 3, ParameterCount: 1}, true), exp: "FrameState[f@3:p1,l0]", values: 6},
		{op: DeoptimizeIf(DeoptimizeEager, DeoptReasonOverflow), exp: "DeoptimizeIf[Eager, overflow]", values: 2, effects: 1, cts: 1},
		{op: Float64Constant(1.5), exp: "Float64Constant[1.5]"},
		{op: IfValue(-1), exp: "IfValue[-1]", cts: 1},
	} {
		t.Run(tc.exp, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.op.String())
			require.Equal(t, tc.values, tc.op.ValueInputCount())
			require.Equal(t, tc.effects, tc.op.EffectInputCount())
			require.Equal(t, tc.cts, tc.op.ControlInputCount())
		})
	}
	ifValue := IfValue(-1)
	require.Equal(t, int32(-1), ifValue.CaseValue())
	deoptimizeIf := DeoptimizeIf(DeoptimizeEager, DeoptReasonUnknown)
	require.Equal(t, 1, deoptimizeIf.FrameStateInputIndex())
	a, b := Int32Constant(3), Int32Constant(3)
	require.True(t, a.Equal(&b))
}

func TestGraph_NewNode(t *testing.T) {
	g, add := newSimpleGraph(t)
	require.Panics(t, func() { g.NewNode(Op(OpcodeInt32Add), add) })
	require.Equal(t, 1, add.UseCount())
	require.Equal(t, OpcodeReturn, add.Uses()[0].User.Opcode())
	require.Same(t, g.Int32Constant(1), add.InputAt(1))
	require.Same(t, add, g.NodeByID(add.ID()))
	require.Equal(t, "#3:Int32Add(#1, #2)", add.String())
}

func TestGraph_NodeByIDAfterDestroy(t *testing.T) {
	g, add := newSimpleGraph(t)
	g.Zone().Destroy()
	require.Panics(t, func() { g.NodeByID(add.ID()) })
}

func TestNode_InputEditing(t *testing.T) {
	g := NewGraph(zone.New("graph"))
	a, b, c := g.Int32Constant(1), g.Int32Constant(2), g.Int32Constant(3)
	start := g.NewNode(Start(0))
	merge := g.NewNode(Merge(2), start, start)
	phi := g.NewNode(Phi(machine.RepWord32, 2), a, b, merge)

	phi.InsertInput(1, c)
	require.Equal(t, []*Node{a, c, b, merge}, phi.Inputs())
	require.Equal(t, []Use{{User: phi, Index: 2}}, b.Uses())
	require.Equal(t, []Use{{User: phi, Index: 3}}, merge.Uses()[len(merge.Uses())-1:])

	phi.RemoveInput(0)
	require.Equal(t, []*Node{c, b, merge}, phi.Inputs())
	require.False(t, a.HasUses())
	require.Equal(t, []Use{{User: phi, Index: 1}}, b.Uses())

	phi.ReplaceInput(0, a)
	require.False(t, c.HasUses())
	require.True(t, a.OwnedBy(phi))

	phi.TrimInputCount(1)
	require.Equal(t, 1, phi.InputCount())
	require.False(t, merge.HasUses())

	a.ReplaceUses(c)
	require.Same(t, c, phi.InputAt(0))
	require.True(t, c.OwnedBy(phi))
	require.Panics(t, func() { c.Kill() })
	phi.Kill()
	require.True(t, phi.IsDead())
	require.False(t, c.HasUses())
}

func TestReplaceWithValue(t *testing.T) {
	g := NewGraph(zone.New("graph"))
	start := g.NewNode(Start(0))
	base := g.Int64Constant(0)
	load := g.NewNode(Load(machine.Int32), base, base, start, start)
	ret := g.NewNode(Return(1), load, load, start)
	v := g.Int32Constant(7)
	ReplaceWithValue(load, v, start, start)
	require.Equal(t, []*Node{v, start, start}, ret.Inputs())
	require.False(t, load.HasUses())
}

func TestGraph_constantCache(t *testing.T) {
	g := NewGraph(zone.New("graph"))
	require.Same(t, g.Int32Constant(1), g.Int32Constant(1))
	require.NotSame(t, g.Int32Constant(1), g.Int32Constant(2))
	require.Same(t, g.Float64Constant(0.5), g.Float64Constant(0.5))
	require.NotSame(t, g.Float64Constant(0), g.Float64Constant(math.Copysign(0, -1)))
	require.NotSame(t, g.Float64Constant(1), g.NumberConstant(1))
	c := g.Int32Constant(9)
	c.Kill()
	require.NotSame(t, c, g.Int32Constant(9))
	d := g.Dead()
	require.Same(t, d, g.Dead())
}

func TestVerify(t *testing.T) {
	for _, tc := range []struct {
		name   string
		build  func(g *Graph)
		expErr string
	}{
		{
			name: "no end",
			build: func(g *Graph) {
				g.SetStart(g.NewNode(Start(0)))
			},
			expErr: "graph without start or end",
		},
		{
			name: "value input without value",
			build: func(g *Graph) {
				start := g.NewNode(Start(0))
				g.SetStart(start)
				merge := g.NewNode(Merge(1), start)
				ret := g.NewNode(Return(1), merge, start, start)
				g.SetEnd(g.NewNode(End(1), ret))
			},
			expErr: "#2:Return[1](#1, #0, #0): value input 0 is #1:Merge[1](#0) which produces no value",
		},
		{
			name: "phi arity",
			build: func(g *Graph) {
				start := g.NewNode(Start(0))
				g.SetStart(start)
				merge := g.NewNode(Merge(2), start, start)
				one := g.Int32Constant(1)
				phi := g.NewNode(Phi(machine.RepWord32, 1), one, merge)
				ret := g.NewNode(Return(1), phi, start, merge)
				g.SetEnd(g.NewNode(End(1), ret))
			},
			expErr: "#3:Phi[word32, 1](#2, #1): 1 inputs but #1:Merge[2](#0, #0) has 2 predecessors",
		},
		{
			name: "projection out of range",
			build: func(g *Graph) {
				start := g.NewNode(Start(0))
				g.SetStart(start)
				one := g.Int32Constant(1)
				add := g.NewNode(Op(OpcodeInt32Add), one, one)
				proj := g.NewNode(Projection(1), add)
				ret := g.NewNode(Return(1), proj, start, start)
				g.SetEnd(g.NewNode(End(1), ret))
			},
			expErr: "#3:Projection[1](#2): projects output 1 of #2:Int32Add(#1, #1)",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGraph(zone.New("graph"))
			tc.build(g)
			err := Verify(g)
			require.EqualError(t, err, tc.expErr)
		})
	}
}

func TestGraph_String(t *testing.T) {
	g, add := newSimpleGraph(t)
	add.SetType(IntegerRange(1, 10))
	add.SetSourcePosition(42)
	require.Equal(t, `#0:Start[1]()
#1:Parameter[0](#0)
#2:Int32Constant[1]()
#3:Int32Add(#1, #2) : Range(1, 10) @42
#4:Return[1](#3, #0, #0)
#5:End[1](#4)
`, g.String())
}

func TestBinopMatcher(t *testing.T) {
	g := NewGraph(zone.New("graph"))
	p := g.NewNode(Parameter(0), g.NewNode(Start(1)))
	one := g.Int32Constant(1)
	add := g.NewNode(Op(OpcodeInt32Add), one, p)
	m := MatchBinop(add)
	require.Same(t, p, m.Left)
	v, ok := m.RightInt32()
	require.True(t, ok)
	require.Equal(t, int32(1), v)
	require.Same(t, one, add.InputAt(0))
	m.SwapInputs()
	require.Same(t, p, add.InputAt(0))
	require.Same(t, one, add.InputAt(1))

	sub := g.NewNode(Op(OpcodeInt32Sub), one, p)
	m = MatchBinop(sub)
	require.Same(t, one, m.Left)
	require.Panics(t, func() { m.SwapInputs() })
	require.False(t, m.IsFoldable())
}

func TestType(t *testing.T) {
	for _, tc := range []struct {
		name     string
		a, b     Type
		is       bool
		union    string
		signed32 bool
	}{
		{name: "range in range", a: IntegerRange(1, 2), b: IntegerRange(0, 5), is: true, union: "Range(0, 5)", signed32: true},
		{name: "range out of range", a: IntegerRange(-1, 2), b: IntegerRange(0, 5), union: "Range(-1, 5)", signed32: true},
		{name: "nan", a: ConstantType(math.NaN()), b: TypeNumber, is: true, union: "Range(-Inf, +Inf)|OtherNumber|MinusZero|NaN"},
		{name: "minus zero", a: ConstantType(math.Copysign(0, -1)), b: TypeSigned32, union: "Range(-2.147483648e+09, 2.147483647e+09)|MinusZero"},
		{name: "none", a: TypeNone, b: TypeBoolean, is: true, union: "Boolean"},
		{name: "big", a: ConstantType(1 << 40), b: TypeSigned32, union: "Range(-2.147483648e+09, 1.099511627776e+12)"},
		{name: "fraction", a: ConstantType(0.5), b: TypeAny, is: true, union: "Any"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.is, tc.a.Is(tc.b))
			require.Equal(t, tc.union, tc.a.Union(tc.b).String())
			require.Equal(t, tc.signed32, tc.a.IsSigned32())
		})
	}
	require.Equal(t, "Constant(3)", ConstantType(3).String())
	require.Panics(t, func() { IntegerRange(2, 1) })
}
