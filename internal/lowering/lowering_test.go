package lowering

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/reducer"
	"github.com/tetratelabs/isel/internal/typer"
	"github.com/tetratelabs/isel/internal/zone"
)

var testConvention = &linkage.Convention{
	IntArgs:            []int{7, 6, 2, 1},
	FloatArgs:          []int{0, 1},
	IntResults:         []int{0},
	FloatResults:       []int{0},
	JSFunctionRegister: 7,
}

func newGraph(params int) (*ir.Graph, *ir.Node, []*ir.Node) {
	g := ir.NewGraph(zone.New("lowering"))
	start := g.NewNode(ir.Start(params))
	g.SetStart(start)
	ps := make([]*ir.Node, params)
	for i := range ps {
		ps[i] = g.NewNode(ir.Parameter(i), start)
	}
	return g, start, ps
}

func ret(g *ir.Graph, v, effect, control *ir.Node) *ir.Node {
	r := g.NewNode(ir.Return(1), v, effect, control)
	g.SetEnd(g.NewNode(ir.End(1), r))
	return r
}

func emptyFrameState(g *ir.Graph, name string) *ir.Node {
	empty := g.NewNode(ir.StateValues(0))
	return g.NewNode(ir.FrameState(&ir.FrameStateInfo{Name: name}, false),
		empty, empty, empty, g.OptimizedOut(), g.OptimizedOut())
}

func reduceWith(g *ir.Graph, extra ...func(r *reducer.GraphReducer) reducer.Reducer) {
	r := reducer.NewGraphReducer(g, nil)
	r.AddReducer(reducer.NewDeadCodeElimination(r))
	for _, e := range extra {
		r.AddReducer(e(r))
	}
	r.AddReducer(reducer.NewCommonOperatorReducer(r))
	r.ReduceGraph()
}

func TestDeconstructOSR(t *testing.T) {
	g, start, ps := newGraph(1)
	normal := g.NewNode(ir.Op(ir.OpcodeOsrNormalEntry), start, start)
	entry := g.NewNode(ir.Op(ir.OpcodeOsrLoopEntry), start, start)
	merge := g.NewNode(ir.Merge(2), normal, entry)
	effect := g.NewNode(ir.EffectPhi(2), normal, entry, merge)
	osrValue := g.NewNode(ir.OsrValue(0), entry)
	init := g.NewNode(ir.Phi(machine.RepWord32, 2), g.Int32Constant(0), osrValue, merge)
	loop := g.NewNode(ir.Loop(2), merge, merge)
	phi := g.NewNode(ir.Phi(machine.RepWord32, 2), init, init, loop)
	phi.ReplaceInput(1, g.NewNode(ir.Op(ir.OpcodeInt32Add), phi, g.Int32Constant(1)))
	cond := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), phi, ps[0])
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), cond, loop)
	loop.ReplaceInput(1, g.NewNode(ir.Op(ir.OpcodeIfTrue), branch))
	r := ret(g, phi, effect, g.NewNode(ir.Op(ir.OpcodeIfFalse), branch))
	require.NoError(t, ir.Verify(g))

	require.NoError(t, DeconstructOSR(g, 1))
	reduceWith(g)
	require.NoError(t, ir.Verify(g))

	require.Equal(t, 2, start.Op().Count())
	require.Same(t, start, loop.ControlInput(0))
	require.Same(t, osrValue, phi.ValueInput(0))
	require.Equal(t, ir.OpcodeParameter, osrValue.Opcode())
	require.Equal(t, 1, osrValue.Op().Index())
	require.Same(t, start, r.EffectInput(0))
}

func TestDeconstructOSR_noLoopEntry(t *testing.T) {
	g, start, ps := newGraph(1)
	ret(g, ps[0], start, start)
	err := DeconstructOSR(g, 1)
	require.ErrorIs(t, err, iselapi.ErrBailout)
}

func buildAdd(g *ir.Graph) error {
	start := g.NewNode(ir.Start(2))
	g.SetStart(start)
	a := g.NewNode(ir.Parameter(0), start)
	b := g.NewNode(ir.Parameter(1), start)
	sum := g.NewNode(ir.CheckedInt32Add(), a, b, emptyFrameState(g, "add"), start, start)
	r := g.NewNode(ir.Return(1), sum, sum, sum)
	g.SetEnd(g.NewNode(ir.End(1), r))
	return nil
}

func buildPick(g *ir.Graph) error {
	start := g.NewNode(ir.Start(2))
	g.SetStart(start)
	a := g.NewNode(ir.Parameter(0), start)
	b := g.NewNode(ir.Parameter(1), start)
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), a, start)
	r1 := g.NewNode(ir.Return(1), a, start, g.NewNode(ir.Op(ir.OpcodeIfTrue), branch))
	r2 := g.NewNode(ir.Return(1), b, start, g.NewNode(ir.Op(ir.OpcodeIfFalse), branch))
	g.SetEnd(g.NewNode(ir.End(2), r1, r2))
	return nil
}

func TestInliner(t *testing.T) {
	sig := &linkage.Signature{
		Params:  []machine.Type{machine.Int32, machine.Int32},
		Returns: []machine.Type{machine.Int32},
	}
	newCall := func(g *ir.Graph, start *ir.Node, ps []*ir.Node, flags linkage.CallFlags) *ir.Node {
		desc := testConvention.NewCallDescriptor(linkage.CallJSFunction, sig, flags|linkage.FlagNeedsFrameState, "f")
		return g.NewNode(ir.Call(desc), g.NewNode(ir.HeapConstant(3, "f")), ps[0], ps[1],
			emptyFrameState(g, "caller"), start, start)
	}

	t.Run("single return", func(t *testing.T) {
		g, start, ps := newGraph(2)
		call := newCall(g, start, ps, 0)
		r := ret(g, call, call, call)
		var inl *Inliner
		reduceWith(g, func(r *reducer.GraphReducer) reducer.Reducer {
			inl = NewInliner(r, map[int]*Inlinee{3: {Name: "add", ParameterCount: 2, Build: buildAdd}}, 100)
			return inl
		})
		require.NoError(t, inl.Err())
		require.Equal(t, 1, inl.Inlined())
		require.True(t, call.IsDead())
		require.NoError(t, ir.Verify(g))

		sum := r.ValueInput(0)
		require.Equal(t, ir.OpcodeCheckedInt32Add, sum.Opcode())
		require.Equal(t, []*ir.Node{ps[0], ps[1]}, sum.Inputs()[:2])
		require.Same(t, sum, r.EffectInput(0))
		require.Same(t, start, sum.EffectInput(0))
		fs := sum.FrameStateInput()
		require.True(t, fs.Op().HasOuterState())
		require.Equal(t, "caller", fs.InputAt(ir.FrameStateOuterStateInput).Op().FrameStateInfo().Name)
	})
	t.Run("multiple returns", func(t *testing.T) {
		g, start, ps := newGraph(2)
		call := newCall(g, start, ps, 0)
		r := ret(g, call, call, call)
		reduceWith(g, func(r *reducer.GraphReducer) reducer.Reducer {
			return NewInliner(r, map[int]*Inlinee{3: {Name: "pick", ParameterCount: 2, Build: buildPick}}, 100)
		})
		require.NoError(t, ir.Verify(g))
		phi := r.ValueInput(0)
		require.Equal(t, ir.OpcodePhi, phi.Opcode())
		require.Equal(t, machine.RepWord32, phi.Op().Representation())
		require.Equal(t, []*ir.Node{ps[0], ps[1], r.ControlInput(0)}, phi.Inputs())
		require.Equal(t, ir.OpcodeMerge, r.ControlInput(0).Opcode())
		require.Same(t, start, r.EffectInput(0))
	})
	for _, tc := range []struct {
		name   string
		flags  linkage.CallFlags
		budget int
		index  int
	}{
		{name: "over budget", budget: 5, index: 3},
		{name: "exception handler", flags: linkage.FlagHasExceptionHandler, budget: 100, index: 3},
		{name: "unknown target", budget: 100, index: 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, start, ps := newGraph(2)
			call := newCall(g, start, ps, tc.flags)
			r := ret(g, call, call, call)
			var inl *Inliner
			reduceWith(g, func(r *reducer.GraphReducer) reducer.Reducer {
				inl = NewInliner(r, map[int]*Inlinee{tc.index: {Name: "add", ParameterCount: 2, Build: buildAdd}}, tc.budget)
				return inl
			})
			require.Equal(t, 0, inl.Inlined())
			require.Same(t, call, r.ValueInput(0))
			TrimGraph(g, nil)
			require.NoError(t, ir.Verify(g))
		})
	}
}

// lowerTyped types the graph and runs typed lowering.
func lowerTyped(g *ir.Graph, params []machine.Type, typed bool) {
	if typed {
		typer.New(g, params, nil).Run()
	}
	r := reducer.NewGraphReducer(g, nil)
	r.AddReducer(NewTypedLowering())
	r.ReduceGraph()
}

func TestTypedLowering(t *testing.T) {
	for _, tc := range []struct {
		name        string
		params      []machine.Type
		op          ir.Opcode
		rhs         float64
		untyped     bool
		constantRHS bool
		exp         ir.Opcode
	}{
		{name: "small add", params: []machine.Type{machine.Int16, machine.Int16}, op: ir.OpcodeNumberAdd, exp: ir.OpcodeInt32Add},
		{name: "int32 add may overflow", params: []machine.Type{machine.Int32, machine.Int32}, op: ir.OpcodeNumberAdd, exp: ir.OpcodeFloat64Add},
		{name: "untyped add", params: []machine.Type{machine.Int16, machine.Int16}, op: ir.OpcodeNumberAdd, untyped: true, exp: ir.OpcodeFloat64Add},
		{name: "sub", params: []machine.Type{machine.Uint8, machine.Uint8}, op: ir.OpcodeNumberSubtract, exp: ir.OpcodeInt32Sub},
		{name: "mul minus zero", params: []machine.Type{machine.Int16, machine.Int16}, op: ir.OpcodeNumberMultiply, exp: ir.OpcodeFloat64Mul},
		{name: "mul", params: []machine.Type{machine.Uint8, machine.Uint8}, op: ir.OpcodeNumberMultiply, exp: ir.OpcodeInt32Mul},
		{name: "div", params: []machine.Type{machine.Uint8, machine.Uint8}, op: ir.OpcodeNumberDivide, exp: ir.OpcodeFloat64Div},
		{name: "signed compare", params: []machine.Type{machine.Int32, machine.Int32}, op: ir.OpcodeNumberLessThan, exp: ir.OpcodeInt32LessThan},
		{name: "unsigned compare", params: []machine.Type{machine.Uint32, machine.Uint32}, op: ir.OpcodeNumberLessThanOrEqual, exp: ir.OpcodeUint32LessThanOrEqual},
		{name: "mixed compare", params: []machine.Type{machine.Int32, machine.Uint32}, op: ir.OpcodeNumberLessThan, exp: ir.OpcodeFloat64LessThan},
		{name: "equal", params: []machine.Type{machine.Uint32, machine.Uint32}, op: ir.OpcodeNumberEqual, exp: ir.OpcodeWord32Equal},
		{name: "float equal", params: []machine.Type{machine.Float64, machine.Int32}, op: ir.OpcodeNumberEqual, exp: ir.OpcodeFloat64Equal},
		{name: "shift", params: []machine.Type{machine.Float64, machine.Int32}, op: ir.OpcodeNumberShiftRightLogical, exp: ir.OpcodeWord32Shr},
		{name: "safe modulus", params: []machine.Type{machine.Uint8, machine.Int32}, op: ir.OpcodeNumberModulus, constantRHS: true, rhs: 10, exp: ir.OpcodeInt32Mod},
		{name: "modulus by zero", params: []machine.Type{machine.Uint8, machine.Int32}, op: ir.OpcodeNumberModulus, constantRHS: true, rhs: 0, exp: ir.OpcodeNumberModulus},
		{name: "signed modulus", params: []machine.Type{machine.Int32, machine.Int32}, op: ir.OpcodeNumberModulus, exp: ir.OpcodeNumberModulus},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, start, ps := newGraph(2)
			rhs := ps[1]
			if tc.constantRHS {
				rhs = g.NumberConstant(tc.rhs)
			}
			n := g.NewNode(ir.Op(tc.op), ps[0], rhs)
			ret(g, n, start, start)
			lowerTyped(g, tc.params, !tc.untyped)
			require.Equal(t, tc.exp, n.Opcode())
		})
	}
}

func TestSimplifiedLowering(t *testing.T) {
	for _, tc := range []struct {
		name   string
		sig    *linkage.Signature
		build  func(g *ir.Graph, ps []*ir.Node) *ir.Node
		exp    func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node)
		expErr bool
	}{
		{
			name: "int32 to float64",
			sig:  &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Float64}, Returns: []machine.Type{machine.Float64}},
			build: func(g *ir.Graph, ps []*ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberAdd), ps[0], ps[1])
			},
			exp: func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node) {
				require.Equal(t, ir.OpcodeFloat64Add, v.Opcode())
				change := v.InputAt(0)
				require.Equal(t, ir.OpcodeChangeInt32ToFloat64, change.Opcode())
				require.Same(t, ps[0], change.InputAt(0))
				require.Same(t, ps[1], v.InputAt(1))
			},
		},
		{
			name: "uint32 return as float64",
			sig:  &linkage.Signature{Params: []machine.Type{machine.Uint32, machine.Int32}, Returns: []machine.Type{machine.Float64}},
			build: func(_ *ir.Graph, ps []*ir.Node) *ir.Node {
				return ps[0]
			},
			exp: func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node) {
				require.Equal(t, ir.OpcodeChangeUint32ToFloat64, v.Opcode())
				require.Same(t, ps[0], v.InputAt(0))
			},
		},
		{
			name: "truncated return",
			sig:  &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Int32}, Returns: []machine.Type{machine.Int32}},
			build: func(g *ir.Graph, ps []*ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberAdd), ps[0], g.NumberConstant(1))
			},
			exp: func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node) {
				require.Equal(t, ir.OpcodeTruncateFloat64ToWord32, v.Opcode())
				add := v.InputAt(0)
				require.Equal(t, ir.OpcodeFloat64Add, add.Opcode())
				require.Equal(t, ir.OpcodeChangeInt32ToFloat64, add.InputAt(0).Opcode())
				require.Same(t, g.Float64Constant(1), add.InputAt(1))
			},
		},
		{
			name: "constant operand",
			sig:  &linkage.Signature{Params: []machine.Type{machine.Uint8, machine.Int32}, Returns: []machine.Type{machine.Int32}},
			build: func(g *ir.Graph, ps []*ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberBitwiseOr), ps[0], g.NumberConstant(4294967295))
			},
			exp: func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node) {
				require.Equal(t, ir.OpcodeWord32Or, v.Opcode())
				require.Same(t, ps[0], v.InputAt(0))
				require.Same(t, g.Int32Constant(-1), v.InputAt(1))
			},
		},
		{
			name: "bit return",
			sig:  &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Int32}, Returns: []machine.Type{machine.Bool}},
			build: func(_ *ir.Graph, ps []*ir.Node) *ir.Node {
				return ps[0]
			},
			exp: func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node) {
				require.Equal(t, ir.OpcodeWord32Equal, v.Opcode())
				inner := v.InputAt(0)
				require.Equal(t, ir.OpcodeWord32Equal, inner.Opcode())
				require.Equal(t, []*ir.Node{ps[0], g.Int32Constant(0)}, inner.Inputs())
				require.Same(t, g.Int32Constant(0), v.InputAt(1))
			},
		},
		{
			name: "word64 return",
			sig:  &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Int32}, Returns: []machine.Type{machine.Int64}},
			build: func(g *ir.Graph, ps []*ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberBitwiseAnd), ps[0], ps[1])
			},
			exp: func(t *testing.T, g *ir.Graph, ps []*ir.Node, v *ir.Node) {
				require.Equal(t, ir.OpcodeChangeInt32ToInt64, v.Opcode())
				require.Equal(t, ir.OpcodeWord32And, v.InputAt(0).Opcode())
			},
		},
		{
			name: "tagged parameter",
			sig:  &linkage.Signature{Params: []machine.Type{machine.AnyTagged, machine.Int32}, Returns: []machine.Type{machine.Int32}},
			build: func(g *ir.Graph, ps []*ir.Node) *ir.Node {
				return g.NewNode(ir.Op(ir.OpcodeNumberBitwiseAnd), ps[0], ps[1])
			},
			expErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, start, ps := newGraph(2)
			r := ret(g, tc.build(g, ps), start, start)
			lowerTyped(g, tc.sig.Params, true)
			var buf bytes.Buffer
			err := NewSimplifiedLowering(g, tc.sig, iselapi.NewTracer(&buf)).Run()
			if tc.expErr {
				require.ErrorIs(t, err, iselapi.ErrBailout)
				return
			}
			require.NoError(t, err)
			require.Contains(t, buf.String(), "conversions")
			require.NoError(t, ir.Verify(g))
			tc.exp(t, g, ps, r.ValueInput(0))
		})
	}
}

func TestSimplifiedLowering_phi(t *testing.T) {
	g, start, ps := newGraph(2)
	branch := g.NewNode(ir.Branch(ir.BranchHintNone), ps[0], start)
	merge := g.NewNode(ir.Merge(2),
		g.NewNode(ir.Op(ir.OpcodeIfTrue), branch), g.NewNode(ir.Op(ir.OpcodeIfFalse), branch))
	phi := g.NewNode(ir.Phi(machine.RepTagged, 2), ps[0], g.NumberConstant(7), merge)
	r := ret(g, phi, start, merge)
	sig := &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Float64}, Returns: []machine.Type{machine.Float64}}
	lowerTyped(g, sig.Params, true)
	require.NoError(t, NewSimplifiedLowering(g, sig, nil).Run())

	require.Equal(t, machine.RepWord32, phi.Op().Representation())
	require.Same(t, g.Int32Constant(7), phi.ValueInput(1))
	require.Equal(t, ir.OpcodeChangeInt32ToFloat64, r.ValueInput(0).Opcode())
	require.Same(t, phi, r.ValueInput(0).InputAt(0))
}

func TestGenericLowering(t *testing.T) {
	t.Run("checked add", func(t *testing.T) {
		g, start, ps := newGraph(2)
		sum := g.NewNode(ir.CheckedInt32Add(), ps[0], ps[1], emptyFrameState(g, "f"), start, start)
		r := ret(g, sum, sum, sum)
		l := NewGenericLowering(g, nil)
		require.NoError(t, l.Run())
		require.Equal(t, 1, l.Lowered())
		require.NoError(t, ir.Verify(g))

		value := r.ValueInput(0)
		require.Equal(t, ir.OpcodeProjection, value.Opcode())
		ovf := value.InputAt(0)
		require.Equal(t, ir.OpcodeInt32AddWithOverflow, ovf.Opcode())
		deopt := r.EffectInput(0)
		require.Same(t, deopt, r.ControlInput(0))
		require.Equal(t, ir.OpcodeDeoptimizeIf, deopt.Opcode())
		require.Equal(t, ir.DeoptReasonOverflow, deopt.Op().DeoptimizeReason())
		require.Same(t, ir.FindProjection(ovf, 1), deopt.ValueInput(0))
	})
	t.Run("modulus", func(t *testing.T) {
		g, start, ps := newGraph(2)
		mod := g.NewNode(ir.Op(ir.OpcodeNumberModulus), ps[0], ps[1])
		ret(g, mod, start, start)
		require.NoError(t, NewGenericLowering(g, nil).Run())
		require.Equal(t, ir.OpcodeFloat64Mod, mod.Opcode())
	})
	t.Run("anchored select", func(t *testing.T) {
		g, start, ps := newGraph(2)
		sel := g.NewNode(ir.Select(machine.RepWord32, ir.BranchHintTrue), ps[0], ps[1], g.Int32Constant(3))
		r := ret(g, sel, start, start)
		require.NoError(t, NewGenericLowering(g, nil).Run())
		require.NoError(t, ir.Verify(g))
		require.True(t, sel.IsDead())

		phi := r.ValueInput(0)
		require.Equal(t, ir.OpcodePhi, phi.Opcode())
		merge := r.ControlInput(0)
		require.Equal(t, []*ir.Node{ps[1], g.Int32Constant(3), merge}, phi.Inputs())
		branch := merge.InputAt(0).InputAt(0)
		require.Equal(t, ir.OpcodeBranch, branch.Opcode())
		require.Equal(t, ir.BranchHintTrue, branch.Op().BranchHint())
		require.Equal(t, []*ir.Node{ps[0], start}, branch.Inputs())
	})
	t.Run("floating select", func(t *testing.T) {
		g, start, ps := newGraph(2)
		sel := g.NewNode(ir.Select(machine.RepWord32, ir.BranchHintNone), ps[0], ps[1], g.Int32Constant(3))
		add := g.NewNode(ir.Op(ir.OpcodeInt32Add), sel, sel)
		ret(g, add, start, start)
		require.NoError(t, NewGenericLowering(g, nil).Run())
		require.Equal(t, ir.OpcodeSelect, sel.Opcode())
	})
	t.Run("unlowered", func(t *testing.T) {
		g, start, ps := newGraph(2)
		ret(g, g.NewNode(ir.Op(ir.OpcodeNumberAdd), ps[0], ps[1]), start, start)
		require.ErrorIs(t, NewGenericLowering(g, nil).Run(), iselapi.ErrBailout)
	})
}

func TestTrimGraph(t *testing.T) {
	g, start, ps := newGraph(2)
	dangling := g.NewNode(ir.Op(ir.OpcodeInt32Add), ps[0], ps[0])
	ret(g, ps[0], start, start)
	require.Equal(t, 3, ps[0].UseCount())

	var buf bytes.Buffer
	require.Equal(t, 2, TrimGraph(g, iselapi.NewTracer(&buf)))
	require.True(t, dangling.IsDead())
	require.True(t, ps[1].IsDead())
	require.Equal(t, 1, ps[0].UseCount())
	require.Equal(t, "trimmed 2 nodes\n", buf.String())
}
