package ir

import "fmt"

// Verify checks the structural soundness of every node reachable from End:
// input arities, input kinds and the agreement between phis and their merge.
func Verify(g *Graph) error {
	if g.start == nil || g.end == nil {
		return fmt.Errorf("graph without start or end")
	}
	if g.start.Opcode() != OpcodeStart || g.end.Opcode() != OpcodeEnd {
		return fmt.Errorf("bad start %s or end %s", g.start, g.end)
	}
	var err error
	g.VisitReachable(func(n *Node) {
		if err == nil {
			err = verifyNode(n)
		}
	})
	return err
}

func verifyNode(n *Node) error {
	if n.IsDead() {
		return fmt.Errorf("%s: killed node is reachable", n)
	}
	op := n.Op()
	if want := op.InputCount(); want != len(n.inputs) {
		return fmt.Errorf("%s: want %d inputs but got %d", n, want, len(n.inputs))
	}
	for i, in := range n.inputs {
		if in == nil {
			return fmt.Errorf("%s: input %d is nil", n, i)
		}
		if in.Opcode() == OpcodeDead {
			continue
		}
		switch {
		case n.IsValueEdge(i):
			if in.op.ValueOutputCount() == 0 {
				return fmt.Errorf("%s: value input %d is %s which produces no value", n, i, in)
			}
		case n.IsEffectEdge(i):
			if in.op.EffectOutputCount() == 0 {
				return fmt.Errorf("%s: effect input %d is %s which produces no effect", n, i, in)
			}
		default:
			if in.op.ControlOutputCount() == 0 {
				return fmt.Errorf("%s: control input %d is %s which produces no control", n, i, in)
			}
		}
	}
	switch n.Opcode() {
	case OpcodePhi, OpcodeEffectPhi:
		merge := n.ControlInput(0)
		if merge.Opcode() != OpcodeMerge && merge.Opcode() != OpcodeLoop {
			return fmt.Errorf("%s: control input is %s, not a merge", n, merge)
		}
		inputs := op.ValueInputCount() + op.EffectInputCount()
		if inputs != merge.InputCount() {
			return fmt.Errorf("%s: %d inputs but %s has %d predecessors", n, inputs, merge, merge.InputCount())
		}
	case OpcodeProjection:
		in := n.ValueInput(0)
		if op.Index() >= in.op.ValueOutputCount() {
			return fmt.Errorf("%s: projects output %d of %s", n, op.Index(), in)
		}
	case OpcodeBranch:
		var t, f int
		for _, u := range n.uses {
			switch u.User.Opcode() {
			case OpcodeIfTrue:
				t++
			case OpcodeIfFalse:
				f++
			}
		}
		if t != 1 || f != 1 {
			return fmt.Errorf("%s: needs exactly one IfTrue and one IfFalse", n)
		}
	case OpcodeParameter:
		if n.ControlInput(0).Opcode() != OpcodeStart {
			return fmt.Errorf("%s: parameter not projected from start", n)
		}
	case OpcodeFrameState:
		for _, i := range []int{FrameStateParametersInput, FrameStateLocalsInput, FrameStateStackInput} {
			if in := n.ValueInput(i); in.Opcode() != OpcodeStateValues {
				return fmt.Errorf("%s: input %d is %s, not state values", n, i, in)
			}
		}
		info := op.FrameStateInfo()
		if got := n.ValueInput(FrameStateParametersInput).ValueInputCount(); got != info.ParameterCount {
			return fmt.Errorf("%s: %d parameters recorded but %d declared", n, got, info.ParameterCount)
		}
		if got := n.ValueInput(FrameStateLocalsInput).ValueInputCount(); got != info.LocalCount {
			return fmt.Errorf("%s: %d locals recorded but %d declared", n, got, info.LocalCount)
		}
		if op.HasOuterState() {
			if outer := n.ValueInput(FrameStateOuterStateInput); outer.Opcode() != OpcodeFrameState {
				return fmt.Errorf("%s: outer state is %s", n, outer)
			}
		}
	}
	if i := op.FrameStateInputIndex(); i >= 0 {
		if fs := n.inputs[i]; fs.Opcode() != OpcodeFrameState && fs.Opcode() != OpcodeDead {
			return fmt.Errorf("%s: frame state input is %s", n, fs)
		}
	}
	return nil
}
