package backend

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
)

// OperandGenerator builds the operands of the instructions the selector
// emits. Define* operands mark their node defined, Use* operands mark their
// node used, so the node gets visited later in the backward walk.
type OperandGenerator struct {
	s *InstructionSelector
}

// OperandGenerator returns a generator bound to s.
func (s *InstructionSelector) OperandGenerator() OperandGenerator {
	return OperandGenerator{s: s}
}

// Selector returns the selector the generator is bound to.
func (g OperandGenerator) Selector() *InstructionSelector { return g.s }

// NoOutput returns the invalid operand.
func (g OperandGenerator) NoOutput() Operand { return Operand{} }

// DefineAsRegister defines n in any register.
func (g OperandGenerator) DefineAsRegister(n *ir.Node) Operand {
	return g.define(n, NewUnallocated(PolicyRegister, UsedAtEnd, g.s.GetVirtualRegister(n)))
}

// DefineSameAsFirst defines n in the register of the first input.
func (g OperandGenerator) DefineSameAsFirst(n *ir.Node) Operand {
	return g.define(n, NewUnallocated(PolicySameAsFirst, UsedAtEnd, g.s.GetVirtualRegister(n)))
}

// DefineAsFixed defines n in the general purpose register code.
func (g OperandGenerator) DefineAsFixed(n *ir.Node, code int) Operand {
	return g.define(n, NewFixed(PolicyFixedRegister, code, g.s.GetVirtualRegister(n)))
}

// DefineAsFixedFP defines n in the floating point register code.
func (g OperandGenerator) DefineAsFixedFP(n *ir.Node, code int) Operand {
	return g.define(n, NewFixed(PolicyFixedFPRegister, code, g.s.GetVirtualRegister(n)))
}

// DefineAsConstant binds n to its constant value. The defining instruction
// produces no code.
func (g OperandGenerator) DefineAsConstant(n *ir.Node) Operand {
	g.s.MarkAsDefined(n)
	vreg := g.s.GetVirtualRegister(n)
	g.s.sequence.AddConstant(vreg, g.ToConstant(n))
	return NewConstantOperand(vreg)
}

// DefineAsLocation defines n at a linkage location.
func (g OperandGenerator) DefineAsLocation(n *ir.Node, loc linkage.Location, rep machine.Representation) Operand {
	return g.define(n, g.toUnallocated(loc, rep, g.s.GetVirtualRegister(n)))
}

func (g OperandGenerator) define(n *ir.Node, op Operand) Operand {
	if iselapi.SelectorValidationEnabled && g.s.IsDefined(n) {
		panic(fmt.Sprintf("BUG: %s defined twice", n))
	}
	g.s.MarkAsDefined(n)
	return op
}

// Use uses n in any location, read at the start of the instruction.
func (g OperandGenerator) Use(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicyNone, UsedAtStart, g.s.GetVirtualRegister(n)))
}

// UseAny uses n in a register or a stack slot.
func (g OperandGenerator) UseAny(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicyAny, UsedAtStart, g.s.GetVirtualRegister(n)))
}

// UseAnyAtEnd uses n in a register or a stack slot kept alive until the
// instruction ends.
func (g OperandGenerator) UseAnyAtEnd(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicyAny, UsedAtEnd, g.s.GetVirtualRegister(n)))
}

// UseRegister uses n in a register.
func (g OperandGenerator) UseRegister(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicyRegister, UsedAtStart, g.s.GetVirtualRegister(n)))
}

// UseUnique uses n in a location no output of the instruction shares.
func (g OperandGenerator) UseUnique(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicyNone, UsedAtEnd, g.s.GetVirtualRegister(n)))
}

// UseUniqueRegister uses n in a register no output of the instruction shares.
func (g OperandGenerator) UseUniqueRegister(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicyRegister, UsedAtEnd, g.s.GetVirtualRegister(n)))
}

// UseUniqueSlot uses n in a stack slot that survives the instruction.
func (g OperandGenerator) UseUniqueSlot(n *ir.Node) Operand {
	return g.use(n, NewUnallocated(PolicySlot, UsedAtEnd, g.s.GetVirtualRegister(n)))
}

// UseFixed uses n in the general purpose register code.
func (g OperandGenerator) UseFixed(n *ir.Node, code int) Operand {
	return g.use(n, NewFixed(PolicyFixedRegister, code, g.s.GetVirtualRegister(n)))
}

// UseFixedFP uses n in the floating point register code.
func (g OperandGenerator) UseFixedFP(n *ir.Node, code int) Operand {
	return g.use(n, NewFixed(PolicyFixedFPRegister, code, g.s.GetVirtualRegister(n)))
}

// UseImmediate encodes the constant n into the instruction.
func (g OperandGenerator) UseImmediate(n *ir.Node) Operand {
	return g.s.sequence.AddImmediate(g.ToConstant(n))
}

// UseLocation uses n at a linkage location.
func (g OperandGenerator) UseLocation(n *ir.Node, loc linkage.Location, rep machine.Representation) Operand {
	return g.use(n, g.toUnallocated(loc, rep, g.s.GetVirtualRegister(n)))
}

func (g OperandGenerator) use(n *ir.Node, op Operand) Operand {
	g.s.MarkAsUsed(n)
	return op
}

// TempRegister returns a scratch register live during the instruction.
func (g OperandGenerator) TempRegister() Operand {
	return NewUnallocated(PolicyRegister, UsedAtStart, g.s.sequence.NextVirtualRegister())
}

// TempFixedRegister returns the general purpose register code as scratch.
func (g OperandGenerator) TempFixedRegister(code int) Operand {
	return NewFixed(PolicyFixedRegister, code, g.s.sequence.NextVirtualRegister())
}

// TempFixedFPRegister returns the floating point register code as scratch.
func (g OperandGenerator) TempFixedFPRegister(code int) Operand {
	vreg := g.s.sequence.NextVirtualRegister()
	g.s.sequence.MarkAsRepresentation(machine.RepFloat64, vreg)
	return NewFixed(PolicyFixedFPRegister, code, vreg)
}

// TempImmediate returns an inline immediate.
func (g OperandGenerator) TempImmediate(v int32) Operand { return NewImmediate(v) }

// TempLocation returns a fresh virtual register at a linkage location.
func (g OperandGenerator) TempLocation(loc linkage.Location, rep machine.Representation) Operand {
	vreg := g.s.sequence.NextVirtualRegister()
	g.s.sequence.MarkAsRepresentation(rep, vreg)
	return g.toUnallocated(loc, rep, vreg)
}

// Label returns the immediate naming block as a jump target.
func (g OperandGenerator) Label(block *schedule.BasicBlock) Operand {
	return g.s.sequence.AddImmediate(NewRPONumberConstant(block.RPONumber()))
}

func (g OperandGenerator) toUnallocated(loc linkage.Location, rep machine.Representation, vreg VReg) Operand {
	switch loc.Kind {
	case linkage.LocationKindAnyRegister:
		return NewUnallocated(PolicyRegister, UsedAtStart, vreg)
	case linkage.LocationKindCallerFrameSlot:
		// Caller frame slots get negative indices.
		return NewFixed(PolicyFixedSlot, -loc.Index-1, vreg)
	case linkage.LocationKindCalleeFrameSlot:
		return NewFixed(PolicyFixedSlot, loc.Index, vreg)
	case linkage.LocationKindRegister:
		if rep.IsFloatingPoint() {
			return NewFixed(PolicyFixedFPRegister, loc.Index, vreg)
		}
		return NewFixed(PolicyFixedRegister, loc.Index, vreg)
	}
	panic("BUG: unknown location " + loc.String())
}

// ToConstant returns the value of a constant node.
func (g OperandGenerator) ToConstant(n *ir.Node) Constant {
	op := n.Op()
	switch n.Opcode() {
	case ir.OpcodeInt32Constant:
		return NewInt32Constant(op.Int32Value())
	case ir.OpcodeInt64Constant:
		return NewInt64Constant(op.Int64Value())
	case ir.OpcodeFloat32Constant:
		return NewFloat32Constant(op.Float32Value())
	case ir.OpcodeFloat64Constant, ir.OpcodeNumberConstant:
		return NewFloat64Constant(op.Float64Value())
	case ir.OpcodeExternalConstant:
		return NewExternalReference(op.Name())
	case ir.OpcodeHeapConstant:
		return NewHeapObject(op.Index(), op.Name())
	}
	panic("BUG: not a constant: " + n.String())
}
