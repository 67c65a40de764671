package ir

import (
	"fmt"
	"strings"
)

// NodeID is the dense index of a Node within its Graph.
type NodeID int32

// SourcePosition is an opaque position in the source program.
type SourcePosition int32

// UnknownSourcePosition is the position of nodes with no source counterpart.
const UnknownSourcePosition SourcePosition = -1

// IsKnown returns true if p is not UnknownSourcePosition.
func (p SourcePosition) IsKnown() bool { return p != UnknownSourcePosition }

// String implements fmt.Stringer.
func (p SourcePosition) String() string {
	if !p.IsKnown() {
		return "pos(?)"
	}
	return fmt.Sprintf("pos(%d)", int32(p))
}

// Use is an edge from User's Index-th input to the node owning the Use.
type Use struct {
	User  *Node
	Index int
}

// Node is an operation in the graph. Inputs are laid out as values first,
// then effects, then controls.
type Node struct {
	id     NodeID
	op     Operator
	inputs []*Node
	uses   []Use
	typ    Type
	typed  bool
	pos    SourcePosition
	dead   bool
}

// ID returns the id of this node.
func (n *Node) ID() NodeID { return n.id }

// Op returns the operator of this node.
func (n *Node) Op() *Operator { return &n.op }

// Opcode returns the opcode of this node.
func (n *Node) Opcode() Opcode { return n.op.opcode }

// InputCount returns the number of inputs.
func (n *Node) InputCount() int { return len(n.inputs) }

// InputAt returns the i-th input.
func (n *Node) InputAt(i int) *Node { return n.inputs[i] }

// Inputs returns the inputs. The slice must not be modified.
func (n *Node) Inputs() []*Node { return n.inputs }

// ValueInputCount returns the number of value inputs.
func (n *Node) ValueInputCount() int { return n.op.ValueInputCount() }

// ValueInput returns the i-th value input.
func (n *Node) ValueInput(i int) *Node {
	if i >= n.op.ValueInputCount() {
		panic(fmt.Sprintf("BUG: %s has no value input %d", n, i))
	}
	return n.inputs[i]
}

// EffectInput returns the i-th effect input.
func (n *Node) EffectInput(i int) *Node {
	if i >= n.op.EffectInputCount() {
		panic(fmt.Sprintf("BUG: %s has no effect input %d", n, i))
	}
	return n.inputs[n.op.ValueInputCount()+i]
}

// ControlInput returns the i-th control input.
func (n *Node) ControlInput(i int) *Node {
	if i >= n.op.ControlInputCount() {
		panic(fmt.Sprintf("BUG: %s has no control input %d", n, i))
	}
	return n.inputs[n.op.ValueInputCount()+n.op.EffectInputCount()+i]
}

// FrameStateInput returns the frame state of deoptimizing nodes, or nil.
func (n *Node) FrameStateInput() *Node {
	if i := n.op.FrameStateInputIndex(); i >= 0 {
		return n.inputs[i]
	}
	return nil
}

// IsValueEdge returns true if the index-th input of n is a value input.
func (n *Node) IsValueEdge(index int) bool { return index < n.op.ValueInputCount() }

// IsEffectEdge returns true if the index-th input of n is an effect input.
func (n *Node) IsEffectEdge(index int) bool {
	v := n.op.ValueInputCount()
	return index >= v && index < v+n.op.EffectInputCount()
}

// IsControlEdge returns true if the index-th input of n is a control input.
func (n *Node) IsControlEdge(index int) bool {
	return index >= n.op.ValueInputCount()+n.op.EffectInputCount()
}

// Uses returns the use edges of this node. The slice must not be modified.
func (n *Node) Uses() []Use { return n.uses }

// UseCount returns the number of use edges.
func (n *Node) UseCount() int { return len(n.uses) }

// HasUses returns true if any node uses n.
func (n *Node) HasUses() bool { return len(n.uses) > 0 }

// OwnedBy returns true if owner is the only user of n through a single edge.
func (n *Node) OwnedBy(owner *Node) bool {
	return len(n.uses) == 1 && n.uses[0].User == owner
}

// ReplaceInput sets the i-th input to by.
func (n *Node) ReplaceInput(i int, by *Node) {
	old := n.inputs[i]
	if old == by {
		return
	}
	if old != nil {
		old.removeUse(n, i)
	}
	n.inputs[i] = by
	if by != nil {
		by.uses = append(by.uses, Use{User: n, Index: i})
	}
}

// AppendInput adds by as the last input. The caller is responsible for
// changing the operator accordingly.
func (n *Node) AppendInput(by *Node) {
	n.inputs = append(n.inputs, by)
	by.uses = append(by.uses, Use{User: n, Index: len(n.inputs) - 1})
}

// InsertInput inserts by at index, shifting the following inputs.
func (n *Node) InsertInput(index int, by *Node) {
	tail := n.detachFrom(index)
	n.inputs = append(n.inputs, by)
	by.uses = append(by.uses, Use{User: n, Index: index})
	for _, in := range tail {
		n.AppendInput(in)
	}
}

// RemoveInput removes the index-th input, shifting the following inputs.
func (n *Node) RemoveInput(index int) {
	tail := n.detachFrom(index)
	for _, in := range tail[1:] {
		n.AppendInput(in)
	}
}

// TrimInputCount drops every input from index count on.
func (n *Node) TrimInputCount(count int) {
	n.detachFrom(count)
}

// detachFrom removes the inputs starting at index and returns them.
func (n *Node) detachFrom(index int) []*Node {
	tail := make([]*Node, len(n.inputs)-index)
	copy(tail, n.inputs[index:])
	for i, in := range tail {
		if in != nil {
			in.removeUse(n, index+i)
		}
	}
	n.inputs = n.inputs[:index]
	return tail
}

func (n *Node) removeUse(user *Node, index int) {
	for i, u := range n.uses {
		if u.User == user && u.Index == index {
			last := len(n.uses) - 1
			n.uses[i] = n.uses[last]
			n.uses = n.uses[:last]
			return
		}
	}
	panic(fmt.Sprintf("BUG: %s does not use %s at %d", user, n, index))
}

// ReplaceUses redirects every use of n to by.
func (n *Node) ReplaceUses(by *Node) {
	if n == by {
		return
	}
	uses := n.uses
	n.uses = nil
	for _, u := range uses {
		u.User.inputs[u.Index] = by
		by.uses = append(by.uses, u)
	}
}

// ChangeOp replaces the operator in place. The inputs must already match the new operator.
func (n *Node) ChangeOp(op Operator) {
	n.op = op
}

// Kill disconnects n from its inputs and marks it dead. Uses of n must have
// been replaced before.
func (n *Node) Kill() {
	if n.HasUses() {
		panic(fmt.Sprintf("BUG: killing %s which still has uses", n))
	}
	n.detachFrom(0)
	n.dead = true
}

// IsDead returns true once Kill has been called.
func (n *Node) IsDead() bool { return n.dead }

// Type returns the type computed by the typer.
func (n *Node) Type() Type { return n.typ }

// IsTyped returns true if SetType has been called.
func (n *Node) IsTyped() bool { return n.typed }

// SetType sets the type of n.
func (n *Node) SetType(t Type) {
	n.typ = t
	n.typed = true
}

// SourcePosition returns the source position of n.
func (n *Node) SourcePosition() SourcePosition { return n.pos }

// SetSourcePosition sets the source position of n.
func (n *Node) SetSourcePosition(p SourcePosition) { n.pos = p }

// String implements fmt.Stringer.
func (n *Node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d:%s(", n.id, n.op.String())
	for i, in := range n.inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		if in == nil {
			b.WriteString("nil")
		} else {
			fmt.Fprintf(&b, "#%d", in.id)
		}
	}
	b.WriteByte(')')
	return b.String()
}
