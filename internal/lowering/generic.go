package lowering

import (
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

// GenericLowering replaces the remaining high-level operators with machine
// operators and control flow:
//
//   - CheckedInt32Add/Sub become Int32AddWithOverflow/SubWithOverflow
//     followed by a DeoptimizeIf on the overflow bit.
//   - NumberModulus becomes Float64Mod.
//   - a Select whose only user is pinned to a control point becomes a
//     Branch/Merge diamond with a Phi right before that point. Other selects
//     are left for the instruction selector.
type GenericLowering struct {
	g       *ir.Graph
	tracer  *iselapi.Tracer
	lowered int
}

// NewGenericLowering returns a GenericLowering over g.
func NewGenericLowering(g *ir.Graph, tracer *iselapi.Tracer) *GenericLowering {
	return &GenericLowering{g: g, tracer: tracer}
}

// Lowered returns the number of nodes rewritten by Run.
func (l *GenericLowering) Lowered() int { return l.lowered }

// Run lowers every reachable node.
func (l *GenericLowering) Run() error {
	var nodes []*ir.Node
	l.g.VisitReachable(func(n *ir.Node) { nodes = append(nodes, n) })
	for _, n := range nodes {
		if n.IsDead() {
			continue
		}
		switch n.Opcode() {
		case ir.OpcodeCheckedInt32Add:
			l.lowerChecked(n, ir.OpcodeInt32AddWithOverflow)
		case ir.OpcodeCheckedInt32Sub:
			l.lowerChecked(n, ir.OpcodeInt32SubWithOverflow)
		case ir.OpcodeNumberModulus:
			n.ChangeOp(ir.Op(ir.OpcodeFloat64Mod))
			l.lowered++
		case ir.OpcodeSelect:
			l.lowerSelect(n)
		default:
			if n.Opcode().IsSimplified() {
				return iselapi.Bailoutf("%s reached generic lowering", n)
			}
		}
	}
	l.tracer.Printf("lowered %d nodes", l.lowered)
	return nil
}

func (l *GenericLowering) lowerChecked(n *ir.Node, op ir.Opcode) {
	g := l.g
	pos := g.SourcePosition()
	g.SetSourcePosition(n.SourcePosition())
	defer g.SetSourcePosition(pos)

	ovf := g.NewNode(ir.Op(op), n.ValueInput(0), n.ValueInput(1))
	value := g.NewNode(ir.Projection(0), ovf)
	overflow := g.NewNode(ir.Projection(1), ovf)
	deopt := g.NewNode(ir.DeoptimizeIf(ir.DeoptimizeEager, ir.DeoptReasonOverflow),
		overflow, n.FrameStateInput(), n.EffectInput(0), n.ControlInput(0))
	ir.ReplaceWithValue(n, value, deopt, deopt)
	n.Kill()
	l.lowered++
}

// selectAnchor returns the single user of sel if it has a control input
// the diamond can be placed in front of.
func selectAnchor(sel *ir.Node) *ir.Node {
	var anchor *ir.Node
	for _, u := range sel.Uses() {
		if anchor != nil && u.User != anchor {
			return nil
		}
		anchor = u.User
	}
	if anchor == nil || anchor.Op().ControlInputCount() != 1 {
		return nil
	}
	switch anchor.Opcode() {
	case ir.OpcodePhi, ir.OpcodeEffectPhi, ir.OpcodeMerge, ir.OpcodeLoop, ir.OpcodeEnd:
		return nil
	}
	return anchor
}

func (l *GenericLowering) lowerSelect(sel *ir.Node) {
	anchor := selectAnchor(sel)
	if anchor == nil {
		return
	}
	g := l.g
	pos := g.SourcePosition()
	g.SetSourcePosition(sel.SourcePosition())
	defer g.SetSourcePosition(pos)

	controlIndex := anchor.Op().ValueInputCount() + anchor.Op().EffectInputCount()
	branch := g.NewNode(ir.Branch(sel.Op().BranchHint()), sel.ValueInput(0), anchor.InputAt(controlIndex))
	ifTrue := g.NewNode(ir.Op(ir.OpcodeIfTrue), branch)
	ifFalse := g.NewNode(ir.Op(ir.OpcodeIfFalse), branch)
	merge := g.NewNode(ir.Merge(2), ifTrue, ifFalse)
	phi := g.NewNode(ir.Phi(sel.Op().Representation(), 2), sel.ValueInput(1), sel.ValueInput(2), merge)
	anchor.ReplaceInput(controlIndex, merge)
	sel.ReplaceUses(phi)
	sel.Kill()
	l.lowered++
}
