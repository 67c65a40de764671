package lowering

import (
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/reducer"
)

// TypedLowering rewrites simplified number operators into machine
// operators, picking int32 / uint32 forms when the types of the inputs and
// the result prove them exact and float64 forms otherwise. Untyped nodes are
// treated as arbitrary numbers.
//
// The inputs keep their representation; SimplifiedLowering inserts the
// conversions afterwards.
type TypedLowering struct{}

// NewTypedLowering returns a TypedLowering.
func NewTypedLowering() *TypedLowering { return &TypedLowering{} }

// Name implements reducer.Reducer.
func (l *TypedLowering) Name() string { return "TypedLowering" }

// Reduce implements reducer.Reducer.
func (l *TypedLowering) Reduce(n *ir.Node) reducer.Reduction {
	op, ok := l.lower(n)
	if !ok {
		return reducer.NoChange()
	}
	n.ChangeOp(ir.Op(op))
	return reducer.Changed(n)
}

func typeOf(n *ir.Node) ir.Type {
	if !n.IsTyped() {
		return ir.TypeNumber
	}
	return n.Type()
}

func (l *TypedLowering) lower(n *ir.Node) (ir.Opcode, bool) {
	if !n.Opcode().IsSimplified() || n.Opcode() == ir.OpcodeCheckedInt32Add || n.Opcode() == ir.OpcodeCheckedInt32Sub {
		return 0, false
	}
	lhs, rhs := typeOf(n.ValueInput(0)), typeOf(n.ValueInput(1))
	result := typeOf(n)
	bothSigned32 := lhs.IsSigned32() && rhs.IsSigned32()
	bothUnsigned32 := lhs.IsUnsigned32() && rhs.IsUnsigned32()

	switch n.Opcode() {
	case ir.OpcodeNumberAdd:
		if bothSigned32 && result.IsSigned32() {
			return ir.OpcodeInt32Add, true
		}
		return ir.OpcodeFloat64Add, true
	case ir.OpcodeNumberSubtract:
		if bothSigned32 && result.IsSigned32() {
			return ir.OpcodeInt32Sub, true
		}
		return ir.OpcodeFloat64Sub, true
	case ir.OpcodeNumberMultiply:
		if bothSigned32 && result.IsSigned32() {
			return ir.OpcodeInt32Mul, true
		}
		return ir.OpcodeFloat64Mul, true
	case ir.OpcodeNumberDivide:
		return ir.OpcodeFloat64Div, true
	case ir.OpcodeNumberModulus:
		// Int32Mod is exact for a non-negative dividend and a non-zero divisor;
		// everything else is left to generic lowering.
		if bothSigned32 && lhs.Min() >= 0 && (rhs.Min() > 0 || rhs.Max() < 0) {
			return ir.OpcodeInt32Mod, true
		}
		return 0, false
	case ir.OpcodeNumberEqual:
		if bothSigned32 || bothUnsigned32 {
			return ir.OpcodeWord32Equal, true
		}
		return ir.OpcodeFloat64Equal, true
	case ir.OpcodeNumberLessThan:
		switch {
		case bothSigned32:
			return ir.OpcodeInt32LessThan, true
		case bothUnsigned32:
			return ir.OpcodeUint32LessThan, true
		}
		return ir.OpcodeFloat64LessThan, true
	case ir.OpcodeNumberLessThanOrEqual:
		switch {
		case bothSigned32:
			return ir.OpcodeInt32LessThanOrEqual, true
		case bothUnsigned32:
			return ir.OpcodeUint32LessThanOrEqual, true
		}
		return ir.OpcodeFloat64LessThanOrEqual, true
	case ir.OpcodeNumberBitwiseAnd:
		return ir.OpcodeWord32And, true
	case ir.OpcodeNumberBitwiseOr:
		return ir.OpcodeWord32Or, true
	case ir.OpcodeNumberBitwiseXor:
		return ir.OpcodeWord32Xor, true
	case ir.OpcodeNumberShiftLeft:
		return ir.OpcodeWord32Shl, true
	case ir.OpcodeNumberShiftRight:
		return ir.OpcodeWord32Sar, true
	case ir.OpcodeNumberShiftRightLogical:
		return ir.OpcodeWord32Shr, true
	}
	return 0, false
}
