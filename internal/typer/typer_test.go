package typer

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/zone"
)

func newGraph() (*ir.Graph, *ir.Node, *ir.Node, *ir.Node) {
	g := ir.NewGraph(zone.New("typer"))
	start := g.NewNode(ir.Start(2))
	g.SetStart(start)
	return g, start, g.NewNode(ir.Parameter(0), start), g.NewNode(ir.Parameter(1), start)
}

func ret(g *ir.Graph, v, effect, control *ir.Node) {
	r := g.NewNode(ir.Return(1), v, effect, control)
	g.SetEnd(g.NewNode(ir.End(1), r))
}

func TestTyper_binops(t *testing.T) {
	for _, tc := range []struct {
		name   string
		params []machine.Type
		build  func(g *ir.Graph, p0, p1 *ir.Node) *ir.Node
		exp    ir.Type
	}{
		{
			name: "constant add",
			build: func(g *ir.Graph, _, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberAdd), g.NumberConstant(2), g.NumberConstant(40))
			},
			exp: ir.ConstantType(42),
		},
		{
			name:   "signed32 add",
			params: []machine.Type{machine.Int32, machine.Int32},
			build: func(g *ir.Graph, p0, p1 *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberAdd), p0, p1)
			},
			exp: ir.IntegerRange(2*math.MinInt32, 2*math.MaxInt32),
		},
		{
			name:   "float add",
			params: []machine.Type{machine.Float64, machine.Int32},
			build: func(g *ir.Graph, p0, p1 *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberAdd), p0, p1)
			},
			exp: ir.TypeNumber,
		},
		{
			name:   "multiply may produce minus zero",
			params: []machine.Type{machine.Int32, machine.Int32},
			build: func(g *ir.Graph, p0, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberMultiply), p0, g.NumberConstant(-2))
			},
			exp: ir.IntegerRange(-2*math.MaxInt32, -2*math.MinInt32).Union(ir.ConstantType(math.Copysign(0, -1))),
		},
		{
			name:   "multiply unsigned",
			params: []machine.Type{machine.Uint32, machine.Int32},
			build: func(g *ir.Graph, p0, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberMultiply), p0, g.NumberConstant(2))
			},
			exp: ir.IntegerRange(0, 2*math.MaxUint32),
		},
		{
			name:   "and with mask",
			params: []machine.Type{machine.Int32, machine.Int32},
			build: func(g *ir.Graph, p0, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberBitwiseAnd), p0, g.NumberConstant(255))
			},
			exp: ir.IntegerRange(0, 255),
		},
		{
			name:   "shift right logical",
			params: []machine.Type{machine.Int32, machine.Int32},
			build: func(g *ir.Graph, p0, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberShiftRightLogical), p0, g.NumberConstant(1))
			},
			exp: ir.TypeUnsigned32,
		},
		{
			name: "shift right",
			build: func(g *ir.Graph, _, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberShiftRight), g.NumberConstant(-8), g.NumberConstant(2))
			},
			exp: ir.ConstantType(-2),
		},
		{
			name:   "modulus of unsigned",
			params: []machine.Type{machine.Uint32, machine.Int32},
			build: func(g *ir.Graph, p0, _ *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberModulus), p0, g.NumberConstant(10))
			},
			exp: ir.IntegerRange(0, 9),
		},
		{
			name:   "comparison",
			params: []machine.Type{machine.Float64, machine.Float64},
			build: func(g *ir.Graph, p0, p1 *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberLessThan), p0, p1)
			},
			exp: ir.TypeBoolean,
		},
		{
			name:   "machine op",
			params: []machine.Type{machine.Int32, machine.Int32},
			build: func(g *ir.Graph, p0, p1 *ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeUint32Div), p0, p1)
			},
			exp: ir.TypeUnsigned32,
		},
		{
			name: "untyped parameter",
			build: func(_ *ir.Graph, p0, _ *ir.Node) *ir.Node {
				return p0
			},
			exp: ir.TypeAny,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, start, p0, p1 := newGraph()
			v := tc.build(g, p0, p1)
			ret(g, v, start, start)
			New(g, tc.params, nil).Run()
			require.True(t, v.IsTyped())
			require.Equal(t, tc.exp, v.Type(), v.Type().String())
		})
	}
}

func TestTyper_checkedAdd(t *testing.T) {
	g, start, p0, _ := newGraph()
	empty := g.NewNode(ir.StateValues(0))
	fs := g.NewNode(ir.FrameState(&ir.FrameStateInfo{Name: "f"}, false), empty, empty, empty, g.OptimizedOut(), g.OptimizedOut())
	add := g.NewNode(ir.CheckedInt32Add(), p0, g.NumberConstant(1), fs, start, start)
	ret(g, add, add, add)
	New(g, []machine.Type{machine.Int32}, nil).Run()
	require.Equal(t, ir.IntegerRange(math.MinInt32+1, math.MaxInt32), add.Type())
}

func TestTyper_phi(t *testing.T) {
	g, start, p0, p1 := newGraph()
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), p0, start)
	ifTrue := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
	ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
	merge := g.NewNode(ir.Merge(2), ifTrue, ifFalse)
	phi := g.NewNode(ir.Phi(machine.RepTagged, 2), g.NumberConstant(3), p1, merge)
	ret(g, phi, start, merge)
	New(g, []machine.Type{machine.Int32, machine.Uint32}, nil).Run()
	require.Equal(t, ir.TypeUnsigned32, phi.Type())
	require.False(t, branch.IsTyped())
}

func TestTyper_loopPhiWidening(t *testing.T) {
	g, start, _, _ := newGraph()
	loop := g.NewNode(ir.Loop(2), start, start)
	phi := g.NewNode(ir.Phi(machine.RepTagged, 2), g.NumberConstant(0), g.NumberConstant(0), loop)
	inc := g.NewNode(ir.Op(ir.OpcodeNumberAdd), phi, g.NumberConstant(1))
	phi.ReplaceInput(1, inc)
	cond := g.NewNode(ir.Op(ir.OpcodeNumberLessThan), phi, g.NumberConstant(100))
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), cond, loop)
	loop.ReplaceInput(1, g.NewNode(ir.Op(ir.OpcodeIfTrue), branch))
	ret(g, phi, start, g.NewNode(ir.Op(ir.OpcodeIfFalse), branch))

	var buf bytes.Buffer
	New(g, nil, iselapi.NewTracer(&buf)).Run()
	require.Equal(t, ir.IntegerRange(0, math.Inf(1)), phi.Type())
	require.Equal(t, ir.IntegerRange(1, math.Inf(1)), inc.Type())
	require.Equal(t, ir.TypeBoolean, cond.Type())
	require.Contains(t, buf.String(), "typed ")
}

func TestWiden(t *testing.T) {
	for _, tc := range []struct {
		old, cur, exp ir.Type
	}{
		{old: ir.ConstantType(0), cur: ir.IntegerRange(0, 1), exp: ir.IntegerRange(0, math.MaxInt32)},
		{old: ir.ConstantType(0), cur: ir.IntegerRange(-1, 0), exp: ir.IntegerRange(-1, 0)},
		{old: ir.ConstantType(0), cur: ir.IntegerRange(-2, 0), exp: ir.IntegerRange(math.MinInt32, 0)},
		{old: ir.TypeSigned32, cur: ir.IntegerRange(math.MinInt32, math.MaxInt32+1), exp: ir.IntegerRange(math.MinInt32, math.MaxUint32)},
		{old: ir.ConstantType(5), cur: ir.ConstantType(5), exp: ir.ConstantType(5)},
		{old: ir.TypeNaN, cur: ir.TypeNumber, exp: ir.TypeNumber},
	} {
		require.Equal(t, tc.exp, widen(tc.old, tc.cur), tc.cur.String())
	}
}

func TestFromMachineType(t *testing.T) {
	require.Equal(t, ir.TypeSigned32, FromMachineType(machine.Int32))
	require.Equal(t, ir.TypeUnsigned32, FromMachineType(machine.Uint32))
	require.Equal(t, ir.IntegerRange(0, 255), FromMachineType(machine.Uint8))
	require.Equal(t, ir.TypeNumber, FromMachineType(machine.Float64))
	require.Equal(t, ir.TypeBoolean, FromMachineType(machine.Bool))
	require.Equal(t, ir.TypeAny, FromMachineType(machine.AnyTagged))
}
