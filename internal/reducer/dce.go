package reducer

import "github.com/tetratelabs/isel/internal/ir"

// DeadCodeElimination propagates Dead through the graph: nodes controlled by
// dead code die, merges drop their dead predecessors and merges left with a
// single predecessor disappear.
type DeadCodeElimination struct {
	editor Editor
}

// NewDeadCodeElimination returns a DeadCodeElimination editing through editor.
func NewDeadCodeElimination(editor Editor) *DeadCodeElimination {
	return &DeadCodeElimination{editor: editor}
}

// Name implements Reducer.Name.
func (d *DeadCodeElimination) Name() string { return "DeadCodeElimination" }

// Reduce implements Reducer.Reduce.
func (d *DeadCodeElimination) Reduce(n *ir.Node) Reduction {
	switch n.Opcode() {
	case ir.OpcodeDead, ir.OpcodeStart:
		return NoChange()
	case ir.OpcodeEnd:
		return d.reduceEnd(n)
	case ir.OpcodeLoop, ir.OpcodeMerge:
		return d.reduceMerge(n)
	case ir.OpcodePhi, ir.OpcodeEffectPhi:
		if isDead(n.ControlInput(0)) {
			return Replace(d.editor.Graph().Dead())
		}
		return NoChange()
	}
	for _, in := range n.Inputs() {
		if isDead(in) {
			return Replace(d.editor.Graph().Dead())
		}
	}
	return NoChange()
}

func isDead(n *ir.Node) bool { return n.Opcode() == ir.OpcodeDead }

func (d *DeadCodeElimination) reduceEnd(end *ir.Node) Reduction {
	live := 0
	for i := 0; i < end.InputCount(); {
		if isDead(end.InputAt(i)) {
			end.RemoveInput(i)
			continue
		}
		live++
		i++
	}
	if live == end.Op().Count() {
		return NoChange()
	}
	end.ChangeOp(ir.End(live))
	return Changed(end)
}

func (d *DeadCodeElimination) reduceMerge(merge *ir.Node) Reduction {
	g := d.editor.Graph()
	if merge.Opcode() == ir.OpcodeLoop && isDead(merge.InputAt(0)) {
		// A loop whose entry is dead never runs.
		return Replace(g.Dead())
	}
	removed := false
	for i := 0; i < merge.InputCount(); {
		if !isDead(merge.InputAt(i)) {
			i++
			continue
		}
		removed = true
		merge.RemoveInput(i)
		for _, u := range append([]ir.Use(nil), merge.Uses()...) {
			phi := u.User
			switch phi.Opcode() {
			case ir.OpcodePhi:
				phi.RemoveInput(i)
				phi.ChangeOp(ir.Phi(phi.Op().Representation(), phi.Op().Count()-1))
				d.editor.Revisit(phi)
			case ir.OpcodeEffectPhi:
				phi.RemoveInput(i)
				phi.ChangeOp(ir.EffectPhi(phi.Op().Count() - 1))
				d.editor.Revisit(phi)
			}
		}
	}
	live := merge.InputCount()
	switch {
	case live == 0:
		return Replace(g.Dead())
	case live == 1:
		// A single predecessor: phis become their only input.
		for _, u := range append([]ir.Use(nil), merge.Uses()...) {
			phi := u.User
			switch phi.Opcode() {
			case ir.OpcodePhi, ir.OpcodeEffectPhi:
				d.editor.Replace(phi, phi.InputAt(0))
			}
		}
		return Replace(merge.InputAt(0))
	case removed:
		if merge.Opcode() == ir.OpcodeLoop {
			merge.ChangeOp(ir.Loop(live))
		} else {
			merge.ChangeOp(ir.Merge(live))
		}
		return Changed(merge)
	}
	return NoChange()
}
