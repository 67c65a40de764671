package x64

import (
	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
)

// floatRelation is the relation a floating point comparison node tests.
type floatRelation byte

const (
	floatEqual floatRelation = iota
	floatLessThan
	floatLessThanOrEqual
)

// condition returns the flags condition testing r after the operands were
// placed by visitFloatCompare. Less-than relations are tested as
// greater-than on swapped operands, which is false on unordered inputs
// without a parity check.
func (r floatRelation) condition() backend.FlagsCondition {
	switch r {
	case floatEqual:
		return backend.CondUnorderedEqual
	case floatLessThan:
		return backend.CondFloatGreaterThan
	default:
		return backend.CondFloatGreaterThanOrEqual
	}
}

func compareOpcode(op ir.Opcode) backend.ArchOpcode {
	switch op {
	case ir.OpcodeWord64Equal, ir.OpcodeInt64LessThan, ir.OpcodeInt64LessThanOrEqual,
		ir.OpcodeUint64LessThan, ir.OpcodeUint64LessThanOrEqual, ir.OpcodeInt64Sub:
		return x64Cmp64
	}
	return x64Cmp32
}

func compare(cond backend.FlagsCondition) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		cont := backend.ForSet(cond, n)
		if n.Opcode() == ir.OpcodeWord32Equal {
			if m := ir.MatchBinop(n); ir.IsInt32Constant(m.Right, 0) {
				visitWordCompareZero(s, n, m.Left, &cont)
				return
			}
		}
		visitWordCompare(s, n, compareOpcode(n.Opcode()), &cont)
	}
}

// visitWordCompare emits opcode comparing the inputs of n. Immediates and
// covered loads go on the right, commuting the condition if needed.
func visitWordCompare(s *backend.InstructionSelector, n *ir.Node, opcode backend.ArchOpcode, cont *backend.FlagsContinuation) {
	g := newOperandGenerator(s)
	left, right := n.ValueInput(0), n.ValueInput(1)
	if (g.CanBeImmediate(left) && !g.CanBeImmediate(right)) ||
		(g.CanBeMemoryOperand(opcode, n, left) && !g.CanBeMemoryOperand(opcode, n, right) && !g.CanBeImmediate(right)) {
		left, right = right, left
		cont.Commute()
	}
	visitCompare(s, n, opcode, left, right, cont)
}

func visitCompare(s *backend.InstructionSelector, n *ir.Node, opcode backend.ArchOpcode, left, right *ir.Node, cont *backend.FlagsContinuation) {
	g := newOperandGenerator(s)
	code := backend.NewInstructionCode(opcode)
	var inputs []backend.Operand
	switch {
	case left == right:
		reg := g.UseRegister(left)
		inputs = []backend.Operand{reg, reg}
	case g.CanBeImmediate(right):
		inputs = []backend.Operand{g.UseAny(left), g.UseRegisterOrImmediate(right)}
	case g.CanBeMemoryOperand(opcode, n, right):
		var mode backend.AddressingMode
		mode, inputs = g.MemoryOperand(right, []backend.Operand{g.UseRegister(left)})
		code = code.WithAddressingMode(mode)
	default:
		inputs = []backend.Operand{g.UseRegister(left), g.UseAny(right)}
	}
	s.EmitWithContinuation(code, nil, inputs, cont)
}

func floatCompare(rel floatRelation) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		cont := backend.ForSet(rel.condition(), n)
		visitFloatCompare(s, n, rel, &cont)
	}
}

// visitFloatCompare emits the comparison of the inputs of n for rel, whose
// condition cont already holds.
func visitFloatCompare(s *backend.InstructionSelector, n *ir.Node, rel floatRelation, cont *backend.FlagsContinuation) {
	opcode := x64Float64Cmp
	switch n.Opcode() {
	case ir.OpcodeFloat32Equal, ir.OpcodeFloat32LessThan, ir.OpcodeFloat32LessThanOrEqual:
		opcode = x64Float32Cmp
	}
	left, right := n.ValueInput(0), n.ValueInput(1)
	if rel != floatEqual {
		left, right = right, left
	}
	g := newOperandGenerator(s)
	code := backend.NewInstructionCode(opcode)
	var inputs []backend.Operand
	if left != right && g.CanBeMemoryOperand(opcode, n, right) {
		var mode backend.AddressingMode
		mode, inputs = g.MemoryOperand(right, []backend.Operand{g.UseRegister(left)})
		code = code.WithAddressingMode(mode)
	} else {
		inputs = []backend.Operand{g.UseRegister(left), g.UseAny(right)}
	}
	s.EmitWithContinuation(code, nil, inputs, cont)
}

func floatRelationOf(op ir.Opcode) (floatRelation, bool) {
	switch op {
	case ir.OpcodeFloat32Equal, ir.OpcodeFloat64Equal:
		return floatEqual, true
	case ir.OpcodeFloat32LessThan, ir.OpcodeFloat64LessThan:
		return floatLessThan, true
	case ir.OpcodeFloat32LessThanOrEqual, ir.OpcodeFloat64LessThanOrEqual:
		return floatLessThanOrEqual, true
	}
	return 0, false
}

func integerConditionOf(op ir.Opcode) (backend.FlagsCondition, bool) {
	switch op {
	case ir.OpcodeWord32Equal, ir.OpcodeWord64Equal:
		return backend.CondEqual, true
	case ir.OpcodeInt32LessThan, ir.OpcodeInt64LessThan:
		return backend.CondSignedLessThan, true
	case ir.OpcodeInt32LessThanOrEqual, ir.OpcodeInt64LessThanOrEqual:
		return backend.CondSignedLessThanOrEqual, true
	case ir.OpcodeUint32LessThan, ir.OpcodeUint64LessThan:
		return backend.CondUnsignedLessThan, true
	case ir.OpcodeUint32LessThanOrEqual, ir.OpcodeUint64LessThanOrEqual:
		return backend.CondUnsignedLessThanOrEqual, true
	}
	return 0, false
}

// VisitWordCompareZero implements backend.Target.
func (t *Target) VisitWordCompareZero(s *backend.InstructionSelector, user, value *ir.Node, cont *backend.FlagsContinuation) {
	visitWordCompareZero(s, user, value, cont)
}

func visitWordCompareZero(s *backend.InstructionSelector, user, value *ir.Node, cont *backend.FlagsContinuation) {
	// Strip "x == 0" by negating the continuation.
	for value.Opcode() == ir.OpcodeWord32Equal && s.CanCover(user, value) {
		m := ir.MatchBinop(value)
		if !ir.IsInt32Constant(m.Right, 0) {
			break
		}
		user, value = value, m.Left
		cont.Negate()
	}

	if s.CanCover(user, value) {
		op := value.Opcode()
		if cond, ok := integerConditionOf(op); ok {
			cont.OverwriteAndNegateIfEqual(cond)
			visitWordCompare(s, value, compareOpcode(op), cont)
			return
		}
		if rel, ok := floatRelationOf(op); ok {
			cont.OverwriteAndNegateIfEqual(rel.condition())
			visitFloatCompare(s, value, rel, cont)
			return
		}
		switch op {
		case ir.OpcodeProjection:
			// The overflow bit of an arithmetic operation.
			if value.Op().Index() != 1 {
				break
			}
			node := value.InputAt(0)
			var opcode backend.ArchOpcode
			switch node.Opcode() {
			case ir.OpcodeInt32AddWithOverflow:
				opcode = x64Add32
			case ir.OpcodeInt32SubWithOverflow:
				opcode = x64Sub32
			}
			// The operation is only emitted here once the uses of its value
			// projection are, so its register is defined in time.
			if result := ir.FindProjection(node, 0); opcode != 0 && (result == nil || s.IsDefined(result)) {
				cont.OverwriteAndNegateIfEqual(backend.CondOverflow)
				visitBinop(s, node, opcode, cont)
				return
			}
		case ir.OpcodeInt32Sub:
			visitWordCompare(s, value, x64Cmp32, cont)
			return
		case ir.OpcodeInt64Sub:
			visitWordCompare(s, value, x64Cmp64, cont)
			return
		case ir.OpcodeWord32And:
			visitWordCompare(s, value, x64Test32, cont)
			return
		case ir.OpcodeWord64And:
			visitWordCompare(s, value, x64Test64, cont)
			return
		}
	}

	// Branch could not be combined with a compare, compare against 0.
	g := newOperandGenerator(s)
	reg := g.UseRegister(value)
	opcode := x64Test32
	if is64Bit(value) {
		opcode = x64Test64
	}
	s.EmitWithContinuation(backend.NewInstructionCode(opcode), nil, []backend.Operand{reg, reg}, cont)
}

// is64Bit returns true if the value of n occupies the full register.
func is64Bit(n *ir.Node) bool {
	var rep machine.Representation
	switch n.Opcode() {
	case ir.OpcodeLoad:
		rep = n.Op().MachineType().Rep
	case ir.OpcodePhi, ir.OpcodeSelect:
		rep = n.Op().Representation()
	default:
		rep = n.Opcode().MachineOutput().Rep
	}
	return rep == machine.RepWord64 || rep == machine.RepTagged
}
