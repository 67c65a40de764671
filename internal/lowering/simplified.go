package lowering

import (
	"math"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/reducer"
)

// SimplifiedLowering makes every value edge agree on a representation. It
// chooses the representation of phis and selects from their types, then
// inserts a conversion on every edge whose input produces a representation
// other than the one its user consumes. Numeric constants are re-emitted in
// the wanted representation instead.
type SimplifiedLowering struct {
	g           *ir.Graph
	sig         *linkage.Signature
	tracer      *iselapi.Tracer
	conversions map[conversionKey]*ir.Node
	inserted    int
}

type conversionKey struct {
	from *ir.Node
	to   machine.Representation
}

// NewSimplifiedLowering returns a SimplifiedLowering for the function of g,
// whose incoming parameters and returns are typed by sig.
func NewSimplifiedLowering(g *ir.Graph, sig *linkage.Signature, tracer *iselapi.Tracer) *SimplifiedLowering {
	return &SimplifiedLowering{g: g, sig: sig, tracer: tracer, conversions: map[conversionKey]*ir.Node{}}
}

// Inserted returns the number of conversion nodes added by Run.
func (l *SimplifiedLowering) Inserted() int { return l.inserted }

// Run lowers the graph. It fails with an error wrapping
// iselapi.ErrBailout when a tagged value would need a conversion.
func (l *SimplifiedLowering) Run() error {
	var nodes []*ir.Node
	l.g.VisitReachable(func(n *ir.Node) { nodes = append(nodes, n) })
	for _, n := range nodes {
		switch n.Opcode() {
		case ir.OpcodePhi:
			if rep := l.phiRepresentation(n); rep != n.Op().Representation() {
				n.ChangeOp(ir.Phi(rep, n.Op().Count()))
			}
		case ir.OpcodeSelect:
			if rep := l.phiRepresentation(n); rep != n.Op().Representation() {
				n.ChangeOp(ir.Select(rep, n.Op().BranchHint()))
			}
		}
	}
	for _, n := range nodes {
		for i := 0; i < n.ValueInputCount(); i++ {
			to, ok, err := l.useRepresentation(n, i)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := l.convertInput(n, i, to); err != nil {
				return err
			}
		}
	}
	l.tracer.Printf("inserted %d conversions", l.inserted)
	return nil
}

// phiRepresentation picks the representation of a Phi or Select. A
// representation other than tagged chosen by the graph builder is kept.
func (l *SimplifiedLowering) phiRepresentation(n *ir.Node) machine.Representation {
	current := n.Op().Representation()
	if current != machine.RepTagged {
		return current
	}
	if n.IsTyped() {
		t := n.Type()
		switch {
		case t.Is(ir.TypeBoolean), t.IsSigned32(), t.IsUnsigned32():
			return machine.RepWord32
		case t.IsNumber():
			return machine.RepFloat64
		}
		return current
	}
	first := 0
	if n.Opcode() == ir.OpcodeSelect {
		first = 1
	}
	ret := machine.RepNone
	for i := first; i < n.ValueInputCount(); i++ {
		in := n.ValueInput(i)
		if in.Opcode().IsConstant() {
			continue
		}
		rep := l.outputType(in).Rep
		if rep.IsWord32Compatible() {
			rep = machine.RepWord32
		}
		switch {
		case ret == machine.RepNone || ret == rep:
			ret = rep
		case ret.IsFloatingPoint() && rep == machine.RepWord32, ret == machine.RepWord32 && rep.IsFloatingPoint():
			ret = machine.RepFloat64
		default:
			return current
		}
	}
	if ret == machine.RepNone {
		return current
	}
	return ret
}

// outputType returns the machine type n produces.
func (l *SimplifiedLowering) outputType(n *ir.Node) machine.Type {
	op := n.Op()
	switch n.Opcode() {
	case ir.OpcodeParameter:
		if i := op.Index(); i < len(l.sig.Params) {
			return l.sig.Params[i]
		}
		return machine.AnyTagged
	case ir.OpcodePhi, ir.OpcodeSelect:
		sem := machine.SemNone
		if n.IsTyped() {
			switch t := n.Type(); {
			case t.IsSigned32():
				sem = machine.SemInt32
			case t.IsUnsigned32():
				sem = machine.SemUint32
			case t.IsNumber():
				sem = machine.SemNumber
			}
		}
		return machine.Type{Rep: op.Representation(), Sem: sem}
	case ir.OpcodeProjection:
		in := n.ValueInput(0)
		switch in.Opcode() {
		case ir.OpcodeCall:
			return in.Op().CallDescriptor().GetReturnType(op.Index())
		case ir.OpcodeInt32AddWithOverflow, ir.OpcodeInt32SubWithOverflow:
			if op.Index() == 0 {
				return machine.Int32
			}
			return machine.Bool
		}
		return machine.AnyTagged
	case ir.OpcodeCall:
		if d := op.CallDescriptor(); d.ReturnCount() > 0 {
			return d.GetReturnType(0)
		}
		return machine.None
	case ir.OpcodeLoad:
		return op.MachineType()
	case ir.OpcodeNumberModulus:
		return machine.Float64
	}
	return n.Opcode().MachineOutput()
}

func (l *SimplifiedLowering) isUnsigned(n *ir.Node) bool {
	if n.IsTyped() {
		t := n.Type()
		return t.IsUnsigned32() && !t.IsSigned32()
	}
	return l.outputType(n).Sem == machine.SemUint32
}

// useRepresentation returns the representation the index-th value input of
// user must have, or false if any representation is accepted.
func (l *SimplifiedLowering) useRepresentation(user *ir.Node, index int) (machine.Representation, bool, error) {
	op := user.Op()
	switch user.Opcode() {
	case ir.OpcodePhi:
		return op.Representation(), true, nil
	case ir.OpcodeSelect:
		if index == 0 {
			return machine.RepWord32, true, nil
		}
		return op.Representation(), true, nil
	case ir.OpcodeReturn:
		return l.sig.Returns[index].Rep, true, nil
	case ir.OpcodeCall, ir.OpcodeTailCall:
		d := op.CallDescriptor()
		if index == 0 || index >= d.InputCount() {
			return machine.RepNone, false, nil
		}
		return d.GetInputType(index).Rep, true, nil
	case ir.OpcodeBranch, ir.OpcodeSwitch, ir.OpcodeDeoptimizeIf, ir.OpcodeDeoptimizeUnless:
		if index == 0 {
			return machine.RepWord32, true, nil
		}
		return machine.RepNone, false, nil
	case ir.OpcodeLoad:
		return machine.RepWord64, true, nil
	case ir.OpcodeStore:
		if index < 2 {
			return machine.RepWord64, true, nil
		}
		return op.Representation(), true, nil
	case ir.OpcodeCheckedInt32Add, ir.OpcodeCheckedInt32Sub:
		if index < 2 {
			return machine.RepWord32, true, nil
		}
		return machine.RepNone, false, nil
	case ir.OpcodeNumberModulus:
		return machine.RepFloat64, true, nil
	}
	if user.Opcode().IsSimplified() {
		return machine.RepNone, false, iselapi.Bailoutf("%s reached simplified lowering", user)
	}
	if user.Opcode().IsMachine() {
		return user.Opcode().MachineInput(), true, nil
	}
	return machine.RepNone, false, nil
}

func compatible(from, to machine.Representation) bool {
	switch {
	case from == to:
		return true
	case to == machine.RepWord32 || to == machine.RepWord16 || to == machine.RepWord8:
		return from.IsWord32Compatible()
	}
	return false
}

func (l *SimplifiedLowering) convertInput(user *ir.Node, index int, to machine.Representation) error {
	in := user.ValueInput(index)
	if compatible(l.outputType(in).Rep, to) {
		return nil
	}
	var by *ir.Node
	if c, ok := l.constant(in, to); ok {
		by = c
	} else {
		var err error
		if by, err = l.change(in, to); err != nil {
			return err
		}
	}
	user.ReplaceInput(index, by)
	return nil
}

// constant returns a numeric constant equal to n in the representation to.
func (l *SimplifiedLowering) constant(n *ir.Node, to machine.Representation) (*ir.Node, bool) {
	var v float64
	switch n.Opcode() {
	case ir.OpcodeInt32Constant:
		v = float64(n.Op().Int32Value())
	case ir.OpcodeInt64Constant:
		v = float64(n.Op().Int64Value())
	case ir.OpcodeFloat32Constant, ir.OpcodeFloat64Constant, ir.OpcodeNumberConstant:
		v, _ = ir.Float64Value(n)
	default:
		return nil, false
	}
	switch to {
	case machine.RepBit:
		if v != 0 && !math.IsNaN(v) {
			return l.g.Int32Constant(1), true
		}
		return l.g.Int32Constant(0), true
	case machine.RepWord8, machine.RepWord16, machine.RepWord32:
		if n.Opcode() == ir.OpcodeInt64Constant {
			return l.g.Int32Constant(int32(n.Op().Int64Value())), true
		}
		return l.g.Int32Constant(reducer.DoubleToInt32(v)), true
	case machine.RepWord64:
		if n.Opcode() == ir.OpcodeInt64Constant {
			return n, true
		}
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return nil, false
		}
		return l.g.Int64Constant(int64(v)), true
	case machine.RepFloat32:
		return l.g.Float32Constant(float32(v)), true
	case machine.RepFloat64:
		return l.g.Float64Constant(v), true
	case machine.RepTagged:
		return l.g.NumberConstant(v), true
	}
	return nil, false
}

// change returns a node converting the value of n to the representation to.
// Conversions are shared between the uses of n.
func (l *SimplifiedLowering) change(n *ir.Node, to machine.Representation) (*ir.Node, error) {
	key := conversionKey{from: n, to: to}
	if c, ok := l.conversions[key]; ok {
		return c, nil
	}
	from := l.outputType(n).Rep
	if from == machine.RepTagged || to == machine.RepTagged || from == machine.RepNone {
		return nil, iselapi.Bailoutf("cannot change %s from %s to %s", n, from, to)
	}

	var ret *ir.Node
	var err error
	switch to {
	case machine.RepBit:
		w := n
		if !from.IsWord32Compatible() {
			if w, err = l.change(n, machine.RepWord32); err != nil {
				return nil, err
			}
		}
		zero := l.g.Int32Constant(0)
		isZero := l.newConversion(n, ir.OpcodeWord32Equal, w, zero)
		ret = l.newConversion(n, ir.OpcodeWord32Equal, isZero, zero)
	case machine.RepWord8, machine.RepWord16, machine.RepWord32:
		switch from {
		case machine.RepFloat64:
			ret = l.newConversion(n, l.float64ToWord32(n), n)
		case machine.RepFloat32:
			f, err := l.change(n, machine.RepFloat64)
			if err != nil {
				return nil, err
			}
			ret = l.newConversion(n, l.float64ToWord32(n), f)
		case machine.RepWord64:
			ret = l.newConversion(n, ir.OpcodeTruncateInt64ToInt32, n)
		}
	case machine.RepWord64:
		w := n
		if !from.IsWord32Compatible() {
			if w, err = l.change(n, machine.RepWord32); err != nil {
				return nil, err
			}
		}
		if l.isUnsigned(w) {
			ret = l.newConversion(n, ir.OpcodeChangeUint32ToUint64, w)
		} else {
			ret = l.newConversion(n, ir.OpcodeChangeInt32ToInt64, w)
		}
	case machine.RepFloat64:
		switch {
		case from.IsWord32Compatible():
			if l.isUnsigned(n) {
				ret = l.newConversion(n, ir.OpcodeChangeUint32ToFloat64, n)
			} else {
				ret = l.newConversion(n, ir.OpcodeChangeInt32ToFloat64, n)
			}
		case from == machine.RepFloat32:
			ret = l.newConversion(n, ir.OpcodeChangeFloat32ToFloat64, n)
		case from == machine.RepWord64:
			w, err := l.change(n, machine.RepWord32)
			if err != nil {
				return nil, err
			}
			ret = l.newConversion(n, ir.OpcodeChangeInt32ToFloat64, w)
		}
	case machine.RepFloat32:
		f := n
		if from != machine.RepFloat64 {
			if f, err = l.change(n, machine.RepFloat64); err != nil {
				return nil, err
			}
		}
		ret = l.newConversion(n, ir.OpcodeTruncateFloat64ToFloat32, f)
	}
	if ret == nil {
		return nil, iselapi.Bailoutf("cannot change %s from %s to %s", n, from, to)
	}
	l.conversions[key] = ret
	return ret, nil
}

func (l *SimplifiedLowering) float64ToWord32(n *ir.Node) ir.Opcode {
	if n.IsTyped() {
		switch t := n.Type(); {
		case t.IsSigned32():
			return ir.OpcodeChangeFloat64ToInt32
		case t.IsUnsigned32():
			return ir.OpcodeChangeFloat64ToUint32
		}
	}
	return ir.OpcodeTruncateFloat64ToWord32
}

func (l *SimplifiedLowering) newConversion(of *ir.Node, op ir.Opcode, inputs ...*ir.Node) *ir.Node {
	l.inserted++
	c := l.g.NewNode(ir.Op(op), inputs...)
	c.SetSourcePosition(of.SourcePosition())
	return c
}
