package reducer

import "github.com/tetratelabs/isel/internal/ir"

// CommonOperatorReducer simplifies control flow and phis: branches and
// deoptimizations on constant conditions, redundant phis, selects on
// constants and empty diamonds.
type CommonOperatorReducer struct {
	editor Editor
}

// NewCommonOperatorReducer returns a CommonOperatorReducer editing through editor.
func NewCommonOperatorReducer(editor Editor) *CommonOperatorReducer {
	return &CommonOperatorReducer{editor: editor}
}

// Name implements Reducer.Name.
func (c *CommonOperatorReducer) Name() string { return "CommonOperatorReducer" }

// Reduce implements Reducer.Reduce.
func (c *CommonOperatorReducer) Reduce(n *ir.Node) Reduction {
	switch n.Opcode() {
	case ir.OpcodeBranch:
		return c.reduceBranch(n)
	case ir.OpcodeDeoptimizeIf, ir.OpcodeDeoptimizeUnless:
		return c.reduceDeoptimizeConditional(n)
	case ir.OpcodeMerge:
		return c.reduceMerge(n)
	case ir.OpcodePhi:
		return c.reducePhi(n)
	case ir.OpcodeEffectPhi:
		return c.reduceEffectPhi(n)
	case ir.OpcodeSelect:
		return c.reduceSelect(n)
	}
	return NoChange()
}

// decideCondition returns whether cond is a known truth value.
func decideCondition(cond *ir.Node) (value, known bool) {
	switch cond.Opcode() {
	case ir.OpcodeInt32Constant:
		return cond.Op().Int32Value() != 0, true
	case ir.OpcodeInt64Constant:
		return cond.Op().Int64Value() != 0, true
	}
	return false, false
}

func (c *CommonOperatorReducer) reduceBranch(branch *ir.Node) Reduction {
	value, known := decideCondition(branch.ValueInput(0))
	if !known {
		return NoChange()
	}
	g := c.editor.Graph()
	control := branch.ControlInput(0)
	for _, u := range append([]ir.Use(nil), branch.Uses()...) {
		switch u.User.Opcode() {
		case ir.OpcodeIfTrue:
			if value {
				c.editor.Replace(u.User, control)
			} else {
				c.editor.Replace(u.User, g.Dead())
			}
		case ir.OpcodeIfFalse:
			if value {
				c.editor.Replace(u.User, g.Dead())
			} else {
				c.editor.Replace(u.User, control)
			}
		}
	}
	return Replace(g.Dead())
}

func (c *CommonOperatorReducer) reduceDeoptimizeConditional(n *ir.Node) Reduction {
	value, known := decideCondition(n.ValueInput(0))
	if !known {
		return NoChange()
	}
	g := c.editor.Graph()
	effect, control := n.EffectInput(0), n.ControlInput(0)
	if value == (n.Opcode() == ir.OpcodeDeoptimizeUnless) {
		// Never taken.
		c.editor.ReplaceWithValue(n, g.Dead(), effect, control)
		return Replace(g.Dead())
	}
	op := n.Op()
	deopt := g.NewNode(ir.Deoptimize(op.DeoptimizeKind(), op.DeoptimizeReason()), n.FrameStateInput(), effect, control)
	mergeControlToEnd(g, deopt)
	c.editor.Revisit(g.End())
	c.editor.ReplaceWithValue(n, g.Dead(), g.Dead(), g.Dead())
	return Replace(g.Dead())
}

// mergeControlToEnd makes the terminator n an input of End.
func mergeControlToEnd(g *ir.Graph, n *ir.Node) {
	end := g.End()
	end.AppendInput(n)
	end.ChangeOp(ir.End(end.InputCount()))
}

// reduceMerge removes a diamond with nothing in it: a Merge of both
// projections of one Branch with no phis.
func (c *CommonOperatorReducer) reduceMerge(merge *ir.Node) Reduction {
	if merge.InputCount() != 2 {
		return NoChange()
	}
	for _, u := range merge.Uses() {
		if op := u.User.Opcode(); op == ir.OpcodePhi || op == ir.OpcodeEffectPhi {
			return NoChange()
		}
	}
	a, b := merge.InputAt(0), merge.InputAt(1)
	if a.Opcode() == ir.OpcodeIfFalse {
		a, b = b, a
	}
	if a.Opcode() != ir.OpcodeIfTrue || b.Opcode() != ir.OpcodeIfFalse {
		return NoChange()
	}
	branch := a.ControlInput(0)
	if b.ControlInput(0) != branch || !a.OwnedBy(merge) || !b.OwnedBy(merge) {
		return NoChange()
	}
	control := branch.ControlInput(0)
	g := c.editor.Graph()
	c.editor.Replace(a, g.Dead())
	c.editor.Replace(b, g.Dead())
	c.editor.Replace(branch, g.Dead())
	return Replace(control)
}

func (c *CommonOperatorReducer) reducePhi(phi *ir.Node) Reduction {
	merge := phi.ControlInput(0)
	values := phi.Op().ValueInputCount()
	var same *ir.Node
	for i := 0; i < values; i++ {
		in := phi.ValueInput(i)
		if in == phi {
			// Loop phis may refer to themselves on back edges.
			continue
		}
		if same != nil && in != same {
			return NoChange()
		}
		same = in
	}
	if same == nil || merge.Opcode() == ir.OpcodeDead {
		return NoChange()
	}
	return Replace(same)
}

func (c *CommonOperatorReducer) reduceEffectPhi(phi *ir.Node) Reduction {
	effects := phi.Op().EffectInputCount()
	var same *ir.Node
	for i := 0; i < effects; i++ {
		in := phi.EffectInput(i)
		if in == phi {
			continue
		}
		if same != nil && in != same {
			return NoChange()
		}
		same = in
	}
	if same == nil {
		return NoChange()
	}
	return Replace(same)
}

func (c *CommonOperatorReducer) reduceSelect(sel *ir.Node) Reduction {
	cond, t, f := sel.ValueInput(0), sel.ValueInput(1), sel.ValueInput(2)
	if t == f {
		return Replace(t)
	}
	if value, known := decideCondition(cond); known {
		if value {
			return Replace(t)
		}
		return Replace(f)
	}
	return NoChange()
}
