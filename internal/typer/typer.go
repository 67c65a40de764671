// Package typer computes a type lattice value for every reachable value node.
package typer

import (
	"fmt"
	"math"

	"github.com/oleiade/lane"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
)

// Typer runs a worklist fixpoint over the graph. Types only grow; loop phis
// are widened to a small set of bounds so that induction variables converge.
type Typer struct {
	g      *ir.Graph
	params []machine.Type
	tracer *iselapi.Tracer
	queue  *lane.Queue
	queued []bool
	// iterations counts the nodes typed by the last Run.
	iterations int
}

// New returns a Typer for g whose parameters have the given machine types.
func New(g *ir.Graph, params []machine.Type, tracer *iselapi.Tracer) *Typer {
	return &Typer{g: g, params: params, tracer: tracer}
}

// Run types every reachable value node.
func (t *Typer) Run() {
	t.queue = lane.NewQueue()
	t.queued = make([]bool, t.g.NodeCount())
	t.iterations = 0
	t.g.VisitReachable(t.enqueue)
	for !t.queue.Empty() {
		n := t.queue.Dequeue().(*ir.Node)
		t.queued[n.ID()] = false
		typ, ok := t.typeNode(n)
		if !ok {
			continue
		}
		if n.IsTyped() {
			if isLoopPhi(n) {
				typ = widen(n.Type(), n.Type().Union(typ))
			}
			if typ == n.Type() {
				continue
			}
		}
		t.iterations++
		n.SetType(typ)
		for _, u := range n.Uses() {
			t.enqueue(u.User)
		}
	}
	t.tracer.Printf("typed %d nodes", t.iterations)
}

func (t *Typer) enqueue(n *ir.Node) {
	if n.IsDead() || int(n.ID()) >= len(t.queued) || t.queued[n.ID()] {
		return
	}
	t.queued[n.ID()] = true
	t.queue.Enqueue(n)
}

func isLoopPhi(n *ir.Node) bool {
	return n.Opcode() == ir.OpcodePhi && n.ControlInput(0).Opcode() == ir.OpcodeLoop
}

// wideningBounds are the values loop phi ranges snap to.
var wideningBounds = []float64{
	math.Inf(-1), math.MinInt32, -1, 0, math.MaxInt32, math.MaxUint32, math.Inf(1),
}

func widen(old, cur ir.Type) ir.Type {
	if !cur.Maybe(ir.TypeBitInteger) || !old.Maybe(ir.TypeBitInteger) {
		return cur
	}
	lo, hi := cur.Min(), cur.Max()
	if lo < old.Min() {
		for i := len(wideningBounds) - 1; i >= 0; i-- {
			if wideningBounds[i] <= lo {
				lo = wideningBounds[i]
				break
			}
		}
	}
	if hi > old.Max() {
		for _, b := range wideningBounds {
			if b >= hi {
				hi = b
				break
			}
		}
	}
	return ir.IntegerRange(lo, hi).Union(cur.Without(ir.TypeBitInteger))
}

var minusZero = ir.ConstantType(math.Copysign(0, -1))

// FromMachineType returns the type of values of the machine type mt.
func FromMachineType(mt machine.Type) ir.Type {
	switch mt.Sem {
	case machine.SemBool:
		return ir.TypeBoolean
	case machine.SemInt32:
		switch mt.Rep {
		case machine.RepWord8:
			return ir.IntegerRange(math.MinInt8, math.MaxInt8)
		case machine.RepWord16:
			return ir.IntegerRange(math.MinInt16, math.MaxInt16)
		}
		return ir.TypeSigned32
	case machine.SemUint32:
		switch mt.Rep {
		case machine.RepWord8:
			return ir.IntegerRange(0, math.MaxUint8)
		case machine.RepWord16:
			return ir.IntegerRange(0, math.MaxUint16)
		}
		return ir.TypeUnsigned32
	case machine.SemInt64:
		return ir.IntegerRange(math.MinInt64, math.MaxInt64)
	case machine.SemUint64:
		return ir.IntegerRange(0, math.MaxUint64)
	case machine.SemNumber:
		return ir.TypeNumber
	case machine.SemNone:
		return ir.TypeNone
	}
	return ir.TypeAny
}

// typeNode returns the type of n computed from its inputs' current types, or
// false for nodes that produce no value.
func (t *Typer) typeNode(n *ir.Node) (ir.Type, bool) {
	op := n.Op()
	switch n.Opcode() {
	case ir.OpcodeInt32Constant:
		return ir.ConstantType(float64(op.Int32Value())), true
	case ir.OpcodeInt64Constant:
		return ir.ConstantType(float64(op.Int64Value())), true
	case ir.OpcodeFloat32Constant:
		return ir.ConstantType(float64(op.Float32Value())), true
	case ir.OpcodeFloat64Constant, ir.OpcodeNumberConstant:
		return ir.ConstantType(op.Float64Value()), true
	case ir.OpcodeHeapConstant:
		return ir.TypeOther, true
	case ir.OpcodeExternalConstant:
		return FromMachineType(machine.Pointer), true
	case ir.OpcodeParameter:
		if i := op.Index(); i < len(t.params) {
			return FromMachineType(t.params[i]), true
		}
		return ir.TypeAny, true
	case ir.OpcodeOsrValue, ir.OpcodeIfException:
		return ir.TypeAny, true
	case ir.OpcodePhi:
		ret := ir.TypeNone
		for i := 0; i < op.ValueInputCount(); i++ {
			ret = ret.Union(inputType(n, i))
		}
		return ret, true
	case ir.OpcodeSelect:
		return inputType(n, 1).Union(inputType(n, 2)), true
	case ir.OpcodeProjection:
		return t.typeProjection(n)
	case ir.OpcodeCall:
		d := op.CallDescriptor()
		if d.ReturnCount() == 0 {
			return ir.TypeNone, false
		}
		return FromMachineType(d.GetReturnType(0)), true
	case ir.OpcodeLoad:
		return FromMachineType(op.MachineType()), true
	case ir.OpcodeNumberAdd:
		return addRanges(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberSubtract:
		return subtractRanges(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberMultiply:
		return multiplyRanges(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberDivide:
		return numberOrNone(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberModulus:
		return modulusRanges(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberEqual, ir.OpcodeNumberLessThan, ir.OpcodeNumberLessThanOrEqual:
		return ir.TypeBoolean, true
	case ir.OpcodeNumberBitwiseAnd:
		return bitwiseAnd(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberBitwiseOr, ir.OpcodeNumberBitwiseXor, ir.OpcodeNumberShiftLeft:
		return signed32OrNone(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberShiftRight:
		return shiftRight(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeNumberShiftRightLogical:
		return shiftRightLogical(inputType(n, 0), inputType(n, 1)), true
	case ir.OpcodeCheckedInt32Add:
		return intersectSigned32(addRanges(inputType(n, 0), inputType(n, 1))), true
	case ir.OpcodeCheckedInt32Sub:
		return intersectSigned32(subtractRanges(inputType(n, 0), inputType(n, 1))), true
	}
	if n.Opcode().IsMachine() && op.ValueOutputCount() > 0 {
		return FromMachineType(n.Opcode().MachineOutput()), true
	}
	return ir.TypeNone, false
}

func (t *Typer) typeProjection(n *ir.Node) (ir.Type, bool) {
	in := n.ValueInput(0)
	index := n.Op().Index()
	switch in.Opcode() {
	case ir.OpcodeInt32AddWithOverflow, ir.OpcodeInt32SubWithOverflow:
		if index == 0 {
			return ir.TypeSigned32, true
		}
		return ir.TypeBoolean, true
	case ir.OpcodeCall:
		return FromMachineType(in.Op().CallDescriptor().GetReturnType(index)), true
	}
	panic(fmt.Sprintf("BUG: projection of %s", in))
}

// inputType returns the current type of the i-th value input; untyped
// inputs are None until the worklist reaches them.
func inputType(n *ir.Node, i int) ir.Type {
	in := n.ValueInput(i)
	if !in.IsTyped() {
		return ir.TypeNone
	}
	return in.Type()
}

func numberOrNone(a, b ir.Type) ir.Type {
	if a.IsNone() || b.IsNone() {
		return ir.TypeNone
	}
	return ir.TypeNumber
}

func signed32OrNone(a, b ir.Type) ir.Type {
	if a.IsNone() || b.IsNone() {
		return ir.TypeNone
	}
	return ir.TypeSigned32
}

func addRanges(a, b ir.Type) ir.Type {
	if !a.IsIntegerRange() || !b.IsIntegerRange() {
		return numberOrNone(a, b)
	}
	return ir.IntegerRange(a.Min()+b.Min(), a.Max()+b.Max())
}

func subtractRanges(a, b ir.Type) ir.Type {
	if !a.IsIntegerRange() || !b.IsIntegerRange() {
		return numberOrNone(a, b)
	}
	return ir.IntegerRange(a.Min()-b.Max(), a.Max()-b.Min())
}

func multiplyRanges(a, b ir.Type) ir.Type {
	if !a.IsIntegerRange() || !b.IsIntegerRange() {
		return numberOrNone(a, b)
	}
	products := [4]float64{a.Min() * b.Min(), a.Min() * b.Max(), a.Max() * b.Min(), a.Max() * b.Max()}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range products {
		if math.IsNaN(p) {
			// 0 * Inf.
			return ir.TypeNumber
		}
		lo, hi = math.Min(lo, p), math.Max(hi, p)
	}
	ret := ir.IntegerRange(lo, hi)
	// -0 arises when zero meets a negative value.
	if (a.Min() <= 0 && 0 <= a.Max() && b.Min() < 0) || (b.Min() <= 0 && 0 <= b.Max() && a.Min() < 0) {
		ret = ret.Union(minusZero)
	}
	return ret
}

func modulusRanges(a, b ir.Type) ir.Type {
	if !a.IsIntegerRange() || !b.IsIntegerRange() {
		return numberOrNone(a, b)
	}
	bound := math.Max(math.Abs(b.Min()), math.Abs(b.Max())) - 1
	if bound < 0 {
		// x % 0
		return ir.TypeNaN
	}
	var ret ir.Type
	if a.Min() >= 0 {
		ret = ir.IntegerRange(0, math.Min(a.Max(), bound))
	} else {
		ret = ir.IntegerRange(-bound, math.Min(math.Max(a.Max(), 0), bound)).Union(minusZero)
	}
	if b.Min() <= 0 && 0 <= b.Max() {
		ret = ret.Union(ir.TypeNaN)
	}
	return ret
}

func bitwiseAnd(a, b ir.Type) ir.Type {
	if a.IsNone() || b.IsNone() {
		return ir.TypeNone
	}
	switch {
	case a.IsSigned32() && a.Min() >= 0 && b.IsSigned32() && b.Min() >= 0:
		return ir.IntegerRange(0, math.Min(a.Max(), b.Max()))
	case a.IsSigned32() && a.Min() >= 0:
		return ir.IntegerRange(0, a.Max())
	case b.IsSigned32() && b.Min() >= 0:
		return ir.IntegerRange(0, b.Max())
	}
	return ir.TypeSigned32
}

// shiftAmount returns the constant shift count of b, if any.
func shiftAmount(b ir.Type) (uint, bool) {
	if !b.IsIntegerRange() || b.Min() != b.Max() || b.Min() < 0 || b.Min() > 31 {
		return 0, false
	}
	return uint(b.Min()), true
}

func shiftRight(a, b ir.Type) ir.Type {
	if a.IsNone() || b.IsNone() {
		return ir.TypeNone
	}
	k, ok := shiftAmount(b)
	if !ok || !a.IsSigned32() {
		return ir.TypeSigned32
	}
	return ir.IntegerRange(float64(int32(a.Min())>>k), float64(int32(a.Max())>>k))
}

func shiftRightLogical(a, b ir.Type) ir.Type {
	if a.IsNone() || b.IsNone() {
		return ir.TypeNone
	}
	k, ok := shiftAmount(b)
	if !ok || !a.IsSigned32() || a.Min() < 0 {
		return ir.TypeUnsigned32
	}
	return ir.IntegerRange(float64(uint32(a.Min())>>k), float64(uint32(a.Max())>>k))
}

func intersectSigned32(t ir.Type) ir.Type {
	if !t.IsIntegerRange() {
		if t.IsNone() {
			return t
		}
		return ir.TypeSigned32
	}
	lo, hi := math.Max(t.Min(), math.MinInt32), math.Min(t.Max(), math.MaxInt32)
	if lo > hi {
		// Always overflows.
		return ir.TypeNone
	}
	return ir.IntegerRange(lo, hi)
}
