// Package testcases holds graphs shared by the tests of the pipeline and
// the iseldump command.
package testcases

import (
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
)

// TestCase is a function whose graph is built against a calling convention,
// which outgoing calls need.
type TestCase struct {
	Name        string
	Description string
	Signature   *linkage.Signature
	Build       func(g *ir.Graph, conv *linkage.Convention) error
}

// Builder returns the graph builder of tc for conv.
func (tc *TestCase) Builder(conv *linkage.Convention) func(g *ir.Graph) error {
	return func(g *ir.Graph) error { return tc.Build(g, conv) }
}

var (
	i32_i32     = &linkage.Signature{Params: []machine.Type{machine.Int32}, Returns: []machine.Type{machine.Int32}}
	i32i32_i32  = &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Int32}, Returns: []machine.Type{machine.Int32}}
	f64f64_i32  = &linkage.Signature{Params: []machine.Type{machine.Float64, machine.Float64}, Returns: []machine.Type{machine.Int32}}
	f64i32_f64  = &linkage.Signature{Params: []machine.Type{machine.Float64, machine.Int32}, Returns: []machine.Type{machine.Float64}}
	tagged_any  = &linkage.Signature{Params: []machine.Type{machine.AnyTagged}, Returns: []machine.Type{machine.AnyTagged}}
	i32i32_void = &linkage.Signature{Params: []machine.Type{machine.Int32, machine.Int32}}
)

var (
	AddConstant = TestCase{
		Name:        "add",
		Description: "return p0 + 1",
		Signature:   i32_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 1)
			add := g.NewNode(ir.Op(ir.OpcodeInt32Add), ps[0], g.Int32Constant(1))
			end(g, g.NewNode(ir.Return(1), add, start, start))
			return nil
		},
	}
	BranchOnSub = TestCase{
		Name:        "branch_on_sub",
		Description: "if p0 - p1 == 0 return p0 else return p1; the comparison fuses into the branch",
		Signature:   i32i32_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 2)
			sub := g.NewNode(ir.Op(ir.OpcodeInt32Sub), ps[0], ps[1])
			eq := g.NewNode(ir.Op(ir.OpcodeWord32Equal), sub, g.Int32Constant(0))
			ifTrue, ifFalse := branch(g, eq, start)
			end(g,
				g.NewNode(ir.Return(1), ps[0], start, ifTrue),
				g.NewNode(ir.Return(1), ps[1], start, ifFalse))
			return nil
		},
	}
	SubReused = TestCase{
		Name:        "sub_reused",
		Description: "d := p0 - p1; if d == 0 return p1 else return d; the subtraction stays",
		Signature:   i32i32_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 2)
			sub := g.NewNode(ir.Op(ir.OpcodeInt32Sub), ps[0], ps[1])
			eq := g.NewNode(ir.Op(ir.OpcodeWord32Equal), sub, g.Int32Constant(0))
			ifTrue, ifFalse := branch(g, eq, start)
			end(g,
				g.NewNode(ir.Return(1), ps[1], start, ifTrue),
				g.NewNode(ir.Return(1), sub, start, ifFalse))
			return nil
		},
	}
	Diamond = TestCase{
		Name:        "diamond",
		Description: "return p0 < p1 ? p1 - p0 : p0 - p1 through a phi",
		Signature:   i32i32_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 2)
			lt := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), ps[0], ps[1])
			ifTrue, ifFalse := branch(g, lt, start)
			merge := g.NewNode(ir.Merge(2), ifTrue, ifFalse)
			phi := g.NewNode(ir.Phi(machine.RepWord32, 2),
				g.NewNode(ir.Op(ir.OpcodeInt32Sub), ps[1], ps[0]),
				g.NewNode(ir.Op(ir.OpcodeInt32Sub), ps[0], ps[1]),
				merge)
			end(g, g.NewNode(ir.Return(1), phi, start, merge))
			return nil
		},
	}
	Loop = TestCase{
		Name:        "loop",
		Description: "sum := 0; for i := 0; i < p0; i++ { sum += i }; return sum",
		Signature:   i32_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 1)
			zero, one := g.Int32Constant(0), g.Int32Constant(1)
			loop := g.NewNode(ir.Loop(2), start, start)
			i := g.NewNode(ir.Phi(machine.RepWord32, 2), zero, zero, loop)
			sum := g.NewNode(ir.Phi(machine.RepWord32, 2), zero, zero, loop)
			cond := g.NewNode(ir.Op(ir.OpcodeInt32LessThan), i, ps[0])
			body, exit := branch(g, cond, loop)
			i.ReplaceInput(1, g.NewNode(ir.Op(ir.OpcodeInt32Add), i, one))
			sum.ReplaceInput(1, g.NewNode(ir.Op(ir.OpcodeInt32Add), sum, i))
			loop.ReplaceInput(1, body)
			end(g, g.NewNode(ir.Return(1), sum, start, exit))
			return nil
		},
	}
	FloatEqual = TestCase{
		Name:        "float_equal",
		Description: "return p0 == p1 ? 1 : 0 on float64, false when either is NaN",
		Signature:   f64f64_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 2)
			eq := g.NewNode(ir.Op(ir.OpcodeFloat64Equal), ps[0], ps[1])
			ifTrue, ifFalse := branch(g, eq, start)
			end(g,
				g.NewNode(ir.Return(1), g.Int32Constant(1), start, ifTrue),
				g.NewNode(ir.Return(1), g.Int32Constant(0), start, ifFalse))
			return nil
		},
	}
	FloatMix = TestCase{
		Name:        "float_mix",
		Description: "return p0 * 0.5 + float64(p1)",
		Signature:   f64i32_f64,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 2)
			half := g.NewNode(ir.Op(ir.OpcodeFloat64Mul), ps[0], g.Float64Constant(0.5))
			conv := g.NewNode(ir.Op(ir.OpcodeChangeInt32ToFloat64), ps[1])
			end(g, g.NewNode(ir.Return(1), g.NewNode(ir.Op(ir.OpcodeFloat64Add), half, conv), start, start))
			return nil
		},
	}
	CallAcross = TestCase{
		Name:        "call_across",
		Description: "return p1 + callee(p0); p1 lives across the call",
		Signature:   i32i32_i32,
		Build: func(g *ir.Graph, conv *linkage.Convention) error {
			start, ps := begin(g, 2)
			d := conv.NewCallDescriptor(linkage.CallAddress, i32_i32, 0, "callee")
			call := g.NewNode(ir.Call(d), g.ExternalConstant("callee"), ps[0], start, start)
			add := g.NewNode(ir.Op(ir.OpcodeInt32Add), ps[1], call)
			end(g, g.NewNode(ir.Return(1), add, call, call))
			return nil
		},
	}
	TaggedCall = TestCase{
		Name:        "tagged_call",
		Description: "calls f(p0) and returns p0; the reference is recorded at the safepoint",
		Signature:   tagged_any,
		Build: func(g *ir.Graph, conv *linkage.Convention) error {
			start, ps := begin(g, 1)
			d := conv.NewCallDescriptor(linkage.CallCodeObject, tagged_any, 0, "f")
			call := g.NewNode(ir.Call(d), g.NewNode(ir.HeapConstant(1, "f")), ps[0], start, start)
			end(g, g.NewNode(ir.Return(1), ps[0], call, call))
			return nil
		},
	}
	CheckedAdd = TestCase{
		Name:        "checked_add",
		Description: "return p0 + p1, deoptimizing on overflow",
		Signature:   i32i32_i32,
		Build: func(g *ir.Graph, _ *linkage.Convention) error {
			start, ps := begin(g, 2)
			empty := g.NewNode(ir.StateValues(0))
			info := &ir.FrameStateInfo{BailoutID: 1, ParameterCount: 2, Name: "checked_add"}
			state := g.NewNode(ir.FrameState(info, false),
				g.NewNode(ir.StateValues(2), ps[0], ps[1]), empty, empty, g.OptimizedOut(), g.OptimizedOut())
			sum := g.NewNode(ir.CheckedInt32Add(), ps[0], ps[1], state, start, start)
			end(g, g.NewNode(ir.Return(1), sum, sum, sum))
			return nil
		},
	}
	Pressure = TestCase{
		Name:        "pressure",
		Description: "sixteen products of p0 and p1 summed after all are computed",
		Signature:   i32i32_void,
		Build: func(g *ir.Graph, conv *linkage.Convention) error {
			start, ps := begin(g, 2)
			var values []*ir.Node
			for k := int32(0); k < 16; k++ {
				values = append(values, g.NewNode(ir.Op(ir.OpcodeInt32Mul), ps[k%2], g.Int32Constant(k+3)))
			}
			// A call between the products and the sum keeps them all live at once.
			d := conv.NewCallDescriptor(linkage.CallAddress, &linkage.Signature{}, 0, "barrier")
			effect := start
			for _, v := range values {
				effect = g.NewNode(ir.Store(machine.RepWord32), g.ExternalConstant("sink"), g.Int64Constant(0), v, effect, start)
			}
			call := g.NewNode(ir.Call(d), g.ExternalConstant("barrier"), effect, start)
			sum := values[0]
			for _, v := range values[1:] {
				sum = g.NewNode(ir.Op(ir.OpcodeInt32Add), sum, v)
			}
			store := g.NewNode(ir.Store(machine.RepWord32), g.ExternalConstant("sink"), g.Int64Constant(0), sum, call, call)
			end(g, g.NewNode(ir.Return(0), store, call))
			return nil
		},
	}
)

// All lists every test case.
var All = []*TestCase{
	&AddConstant, &BranchOnSub, &SubReused, &Diamond, &Loop,
	&FloatEqual, &FloatMix, &CallAcross, &TaggedCall, &CheckedAdd, &Pressure,
}

// Lookup returns the test case called name.
func Lookup(name string) (*TestCase, bool) {
	for _, tc := range All {
		if tc.Name == name {
			return tc, true
		}
	}
	return nil, false
}

func begin(g *ir.Graph, params int) (*ir.Node, []*ir.Node) {
	start := g.NewNode(ir.Start(params))
	g.SetStart(start)
	ps := make([]*ir.Node, params)
	for i := range ps {
		ps[i] = g.NewNode(ir.Parameter(i), start)
	}
	return start, ps
}

func branch(g *ir.Graph, cond, control *ir.Node) (ifTrue, ifFalse *ir.Node) {
	b := g.NewNode(ir.Branch(ir.BranchHintNone), cond, control)
	return g.NewNode(ir.Op(ir.OpcodeIfTrue), b), g.NewNode(ir.Op(ir.OpcodeIfFalse), b)
}

func end(g *ir.Graph, terminators ...*ir.Node) {
	g.SetEnd(g.NewNode(ir.End(len(terminators)), terminators...))
}
