package lowering

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/reducer"
)

// Inlinee is a function that calls may be replaced with.
type Inlinee struct {
	Name           string
	ParameterCount int
	// Build adds the callee's graph to g, setting its own Start and End.
	// Parameter(i) of the callee receives the i-th argument of the call.
	Build func(g *ir.Graph) error
}

// Inliner replaces JS calls to a known HeapConstant target with the body
// of the corresponding Inlinee.
type Inliner struct {
	editor   reducer.Editor
	inlinees map[int]*Inlinee
	// budget is the number of nodes inlining may still add.
	budget   int
	rejected map[*ir.Node]struct{}
	inlined  int
	err      error
}

// NewInliner returns an Inliner resolving HeapConstant indices through
// inlinees and adding at most budget nodes to the graph.
func NewInliner(editor reducer.Editor, inlinees map[int]*Inlinee, budget int) *Inliner {
	return &Inliner{editor: editor, inlinees: inlinees, budget: budget, rejected: map[*ir.Node]struct{}{}}
}

// Name implements reducer.Reducer.
func (in *Inliner) Name() string { return "Inliner" }

// Inlined returns the number of inlined calls.
func (in *Inliner) Inlined() int { return in.inlined }

// Err returns the first error returned by an Inlinee's Build.
func (in *Inliner) Err() error { return in.err }

// Reduce implements reducer.Reducer.
func (in *Inliner) Reduce(n *ir.Node) reducer.Reduction {
	if n.Opcode() != ir.OpcodeCall || in.err != nil {
		return reducer.NoChange()
	}
	if _, ok := in.rejected[n]; ok {
		return reducer.NoChange()
	}
	callee := in.determineCallee(n)
	if callee == nil {
		return reducer.NoChange()
	}
	res, ok := in.inline(n, callee)
	if !ok {
		in.rejected[n] = struct{}{}
		return reducer.NoChange()
	}
	in.inlined++
	return res
}

func (in *Inliner) determineCallee(call *ir.Node) *Inlinee {
	desc := call.Op().CallDescriptor()
	if desc.Kind() != linkage.CallJSFunction || desc.Flags()&linkage.FlagHasExceptionHandler != 0 {
		return nil
	}
	if desc.ReturnCount() > 1 {
		return nil
	}
	target := call.ValueInput(0)
	if target.Opcode() != ir.OpcodeHeapConstant {
		return nil
	}
	callee, ok := in.inlinees[target.Op().Index()]
	if !ok || callee.ParameterCount != desc.ParameterCount() {
		return nil
	}
	return callee
}

func (in *Inliner) inline(call *ir.Node, callee *Inlinee) (reducer.Reduction, bool) {
	g := in.editor.Graph()
	start, end := g.Start(), g.End()
	first := g.NodeCount()
	err := callee.Build(g)
	calleeStart, calleeEnd := g.Start(), g.End()
	g.SetStart(start)
	g.SetEnd(end)
	if err != nil {
		in.err = fmt.Errorf("building inlinee %s: %w", callee.Name, err)
		return reducer.NoChange(), false
	}
	if calleeStart == start || calleeEnd == end {
		in.err = fmt.Errorf("inlinee %s did not set its start and end", callee.Name)
		return reducer.NoChange(), false
	}
	// Nodes from a rejected build stay unreachable and are trimmed later.
	added := g.NodeCount() - first
	if added > in.budget {
		return reducer.NoChange(), false
	}
	for _, t := range calleeEnd.Inputs() {
		if t.Opcode() == ir.OpcodeTailCall {
			return reducer.NoChange(), false
		}
	}
	in.budget -= added

	desc := call.Op().CallDescriptor()
	effect, control := call.EffectInput(0), call.ControlInput(0)

	// Wire the callee's parameters and entry.
	for _, u := range append([]ir.Use(nil), calleeStart.Uses()...) {
		p := u.User
		if p.Opcode() != ir.OpcodeParameter {
			continue
		}
		p.ReplaceUses(call.ValueInput(p.Op().Index() + 1))
		p.Kill()
	}
	ir.ReplaceWithValue(calleeStart, nil, effect, control)
	calleeStart.Kill()

	if desc.NeedsFrameState() {
		outer := call.FrameStateInput()
		for id := first; id < g.NodeCount(); id++ {
			n := g.NodeByID(ir.NodeID(id))
			if n.IsDead() || n.Opcode() != ir.OpcodeFrameState || n.Op().HasOuterState() {
				continue
			}
			n.ChangeOp(ir.FrameState(n.Op().FrameStateInfo(), true))
			n.AppendInput(outer)
		}
	}

	var values, effects, controls, terminators []*ir.Node
	for _, t := range calleeEnd.Inputs() {
		switch t.Opcode() {
		case ir.OpcodeReturn:
			if t.ValueInputCount() != desc.ReturnCount() {
				panic(fmt.Sprintf("BUG: %s returns %d values from a call with %d", callee.Name, t.ValueInputCount(), desc.ReturnCount()))
			}
			if desc.ReturnCount() > 0 {
				values = append(values, t.ValueInput(0))
			}
			effects = append(effects, t.EffectInput(0))
			controls = append(controls, t.ControlInput(0))
		default:
			terminators = append(terminators, t)
		}
	}
	returns := append([]*ir.Node(nil), calleeEnd.Inputs()...)
	calleeEnd.Kill()
	for _, r := range returns {
		if r.Opcode() == ir.OpcodeReturn {
			r.Kill()
		}
	}
	for _, t := range terminators {
		end.AppendInput(t)
	}
	end.ChangeOp(ir.End(end.InputCount()))

	var value *ir.Node
	switch len(controls) {
	case 0:
		dead := g.Dead()
		value, effect, control = dead, dead, dead
	case 1:
		effect, control = effects[0], controls[0]
		if len(values) > 0 {
			value = values[0]
		}
	default:
		control = g.NewNode(ir.Merge(len(controls)), controls...)
		effect = g.NewNode(ir.EffectPhi(len(effects)), append(effects, control)...)
		if len(values) > 0 {
			rep := desc.GetReturnType(0).Rep
			value = g.NewNode(ir.Phi(rep, len(values)), append(values, control)...)
		}
	}
	for id := first; id < g.NodeCount(); id++ {
		if n := g.NodeByID(ir.NodeID(id)); !n.IsDead() {
			in.editor.Revisit(n)
		}
	}
	if iselapi.ReducerLoggingEnabled {
		fmt.Printf("[Inliner] %s at %s (%d nodes)\n", callee.Name, call, added)
	}
	in.editor.ReplaceWithValue(call, value, effect, control)
	if value == nil {
		value = control
	}
	return reducer.Replace(value), true
}
