package x64

import (
	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
)

// operandGenerator adds x64 immediates and memory operands to
// backend.OperandGenerator.
type operandGenerator struct {
	backend.OperandGenerator
}

func newOperandGenerator(s *backend.InstructionSelector) operandGenerator {
	return operandGenerator{OperandGenerator: s.OperandGenerator()}
}

// CanBeImmediate returns true if n is an integer constant encodable as a
// sign-extended 32-bit immediate.
func (g operandGenerator) CanBeImmediate(n *ir.Node) bool {
	_, ok := immediateValue(n)
	return ok
}

func immediateValue(n *ir.Node) (int32, bool) {
	switch n.Opcode() {
	case ir.OpcodeInt32Constant:
		return n.Op().Int32Value(), true
	case ir.OpcodeInt64Constant:
		v := n.Op().Int64Value()
		if v == int64(int32(v)) {
			return int32(v), true
		}
	}
	return 0, false
}

// UseRegisterOrImmediate encodes n as an immediate when it can be, else uses
// it in a register.
func (g operandGenerator) UseRegisterOrImmediate(n *ir.Node) backend.Operand {
	if v, ok := immediateValue(n); ok {
		return g.TempImmediate(v)
	}
	return g.UseRegister(n)
}

// UseAnyOrImmediate encodes n as an immediate when it can be, else uses it in
// a register or a stack slot.
func (g operandGenerator) UseAnyOrImmediate(n *ir.Node) backend.Operand {
	if v, ok := immediateValue(n); ok {
		return g.TempImmediate(v)
	}
	return g.UseAny(n)
}

// CanBeBetterLeftOperand returns true if n dies at its only use, so the
// two-address form may overwrite its register.
func (g operandGenerator) CanBeBetterLeftOperand(n *ir.Node) bool {
	return n.UseCount() <= 1
}

// CanBeMemoryOperand returns true if the load n may be folded into the
// instruction opcode of user.
func (g operandGenerator) CanBeMemoryOperand(opcode backend.ArchOpcode, user, n *ir.Node) bool {
	if n.Opcode() != ir.OpcodeLoad || !g.Selector().CanCoverLoad(user, n) {
		return false
	}
	rep := n.Op().MachineType().Rep
	switch opcode {
	case x64Add32, x64Sub32, x64And32, x64Or32, x64Xor32, x64Cmp32, x64Test32, x64Imul32:
		return rep == machine.RepWord32
	case x64Add64, x64Sub64, x64And64, x64Or64, x64Xor64, x64Cmp64, x64Test64, x64Imul64:
		return rep == machine.RepWord64 || rep == machine.RepTagged
	case x64Float64Add, x64Float64Sub, x64Float64Mul, x64Float64Div, x64Float64Cmp:
		return rep == machine.RepFloat64
	case x64Float32Add, x64Float32Sub, x64Float32Mul, x64Float32Div, x64Float32Cmp:
		return rep == machine.RepFloat32
	}
	return false
}

// MemoryOperand appends the inputs addressing what the load n reads and
// returns their addressing mode.
func (g operandGenerator) MemoryOperand(n *ir.Node, inputs []backend.Operand) (backend.AddressingMode, []backend.Operand) {
	return g.EffectiveAddress(n, n.ValueInput(0), n.ValueInput(1), inputs)
}

// EffectiveAddress appends the inputs of [base + index] and returns their
// addressing mode. Constant indices become displacements and coverable
// additions of a constant and shifts by up to 3 are folded into the operand.
// Indices are zero-extended, so 32-bit ones must be non-negative.
func (g operandGenerator) EffectiveAddress(user, base, index *ir.Node, inputs []backend.Operand) (backend.AddressingMode, []backend.Operand) {
	s := g.Selector()
	inputs = append(inputs, g.UseRegister(base))
	if disp, ok := immediateValue(index); ok {
		if disp == 0 {
			return modeMR, inputs
		}
		return modeMRI, append(inputs, g.TempImmediate(disp))
	}

	var disp int32
	hasDisp := false
	holder := user
	switch index.Opcode() {
	case ir.OpcodeInt32Add, ir.OpcodeInt64Add:
		if !s.CanCover(user, index) {
			break
		}
		m := ir.MatchBinop(index)
		if v, ok := immediateValue(m.Right); ok {
			holder, index, disp, hasDisp = index, m.Left, v, true
		}
	}

	shift := 0
	switch index.Opcode() {
	case ir.OpcodeWord32Shl, ir.OpcodeWord64Shl:
		if !s.CanCover(holder, index) {
			break
		}
		m := ir.MatchBinop(index)
		if v, ok := immediateValue(m.Right); ok && v >= 0 && v <= 3 {
			index, shift = m.Left, int(v)
		}
	}

	inputs = append(inputs, g.UseRegister(index))
	if hasDisp {
		inputs = append(inputs, g.TempImmediate(disp))
	}
	return scaledMode(shift, hasDisp), inputs
}
