package x64

import (
	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
)

// float64ModFunction is the external function computing Float64Mod.
const float64ModFunction = "isel_float64_mod"

func loadOpcode(t machine.Type) backend.ArchOpcode {
	switch t.Rep {
	case machine.RepBit:
		return x64Movzxbl
	case machine.RepWord8:
		if t.IsSigned() {
			return x64Movsxbl
		}
		return x64Movzxbl
	case machine.RepWord16:
		if t.IsSigned() {
			return x64Movsxwl
		}
		return x64Movzxwl
	case machine.RepWord32:
		return x64Movl
	case machine.RepWord64, machine.RepTagged:
		return x64Movq
	case machine.RepFloat32:
		return x64Movss
	case machine.RepFloat64:
		return x64Movsd
	}
	panic("BUG: load of " + t.String())
}

func storeOpcode(rep machine.Representation) backend.ArchOpcode {
	switch rep {
	case machine.RepBit, machine.RepWord8:
		return x64Movb
	case machine.RepWord16:
		return x64Movw
	case machine.RepWord32:
		return x64Movl
	case machine.RepWord64, machine.RepTagged:
		return x64Movq
	case machine.RepFloat32:
		return x64Movss
	case machine.RepFloat64:
		return x64Movsd
	}
	panic("BUG: store of " + rep.String())
}

func visitLoad(s *backend.InstructionSelector, n *ir.Node) {
	g := newOperandGenerator(s)
	mode, inputs := g.MemoryOperand(n, nil)
	code := backend.NewInstructionCode(loadOpcode(n.Op().MachineType())).WithAddressingMode(mode)
	s.Emit(code, []backend.Operand{g.DefineAsRegister(n)}, inputs, nil)
}

func visitStore(s *backend.InstructionSelector, n *ir.Node) {
	g := newOperandGenerator(s)
	rep := n.Op().Representation()
	mode, inputs := g.EffectiveAddress(n, n.ValueInput(0), n.ValueInput(1), nil)
	value := n.ValueInput(2)
	if rep.IsFloatingPoint() {
		inputs = append(inputs, g.UseRegister(value))
	} else {
		inputs = append(inputs, g.UseRegisterOrImmediate(value))
	}
	code := backend.NewInstructionCode(storeOpcode(rep)).WithAddressingMode(mode)
	s.Emit(code, nil, inputs, nil)
}

func binop(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		var cont backend.FlagsContinuation
		visitBinop(s, n, opcode, &cont)
	}
}

// visitBinop emits the two-address form of opcode. The right operand is an
// immediate, a covered load or any location.
func visitBinop(s *backend.InstructionSelector, n *ir.Node, opcode backend.ArchOpcode, cont *backend.FlagsContinuation) {
	g := newOperandGenerator(s)
	m := ir.MatchBinop(n)
	left, right := m.Left, m.Right
	code := backend.NewInstructionCode(opcode)

	var inputs []backend.Operand
	if left == right {
		// Both inputs in one register keeps the register allocator from
		// needing a copy.
		reg := g.UseRegister(left)
		inputs = []backend.Operand{reg, reg}
	} else {
		if n.Opcode().IsCommutative() && g.CanBeBetterLeftOperand(right) &&
			(!g.CanBeBetterLeftOperand(left) || !g.CanBeMemoryOperand(opcode, n, right)) && !g.CanBeImmediate(right) {
			left, right = right, left
		}
		inputs = append(inputs, g.UseRegister(left))
		switch {
		case g.CanBeImmediate(right):
			inputs = append(inputs, g.UseRegisterOrImmediate(right))
		case g.CanBeMemoryOperand(opcode, n, right):
			var mode backend.AddressingMode
			mode, inputs = g.MemoryOperand(right, inputs)
			code = code.WithAddressingMode(mode)
		default:
			inputs = append(inputs, g.UseAny(right))
		}
	}
	outputs := []backend.Operand{g.DefineSameAsFirst(n)}
	s.EmitWithContinuation(code, outputs, inputs, cont)
}

// visitWithOverflow selects an arithmetic operation whose overflow
// projection, if used, is materialized from the flags.
func visitWithOverflow(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		if ovf := ir.FindProjection(n, 1); ovf != nil && s.IsUsed(ovf) {
			cont := backend.ForSet(backend.CondOverflow, ovf)
			visitBinop(s, n, opcode, &cont)
			return
		}
		var cont backend.FlagsContinuation
		visitBinop(s, n, opcode, &cont)
	}
}

// visitDiv selects a division. The dividend and quotient live in rax, rdx is
// clobbered.
func visitDiv(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		g := newOperandGenerator(s)
		s.Emit(backend.NewInstructionCode(opcode),
			[]backend.Operand{g.DefineAsFixed(n, rax)},
			[]backend.Operand{g.UseFixed(n.ValueInput(0), rax), g.UseUniqueRegister(n.ValueInput(1))},
			[]backend.Operand{g.TempFixedRegister(rdx)})
	}
}

// visitMod selects a remainder. The dividend lives in rax, the remainder in
// rdx, rax is clobbered.
func visitMod(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		g := newOperandGenerator(s)
		s.Emit(backend.NewInstructionCode(opcode),
			[]backend.Operand{g.DefineAsFixed(n, rdx)},
			[]backend.Operand{g.UseFixed(n.ValueInput(0), rax), g.UseUniqueRegister(n.ValueInput(1))},
			[]backend.Operand{g.TempFixedRegister(rax)})
	}
}

// visitShift selects a shift by an immediate, or by cl.
func visitShift(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		g := newOperandGenerator(s)
		left, right := n.ValueInput(0), n.ValueInput(1)
		mask := int64(31)
		switch opcode {
		case x64Shl64, x64Shr64, x64Sar64:
			mask = 63
		}
		var count backend.Operand
		if v, ok := ir.Int64Value(right); ok {
			count = g.TempImmediate(int32(v & mask))
		} else {
			count = g.UseFixed(right, rcx)
		}
		s.Emit(backend.NewInstructionCode(opcode), []backend.Operand{g.DefineSameAsFirst(n)},
			[]backend.Operand{g.UseRegister(left), count}, nil)
	}
}

func unop(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		g := newOperandGenerator(s)
		s.Emit(backend.NewInstructionCode(opcode), []backend.Operand{g.DefineAsRegister(n)},
			[]backend.Operand{g.UseAny(n.ValueInput(0))}, nil)
	}
}

func floatBinop(opcode backend.ArchOpcode) backend.Pattern {
	return func(s *backend.InstructionSelector, n *ir.Node) {
		g := newOperandGenerator(s)
		left, right := n.ValueInput(0), n.ValueInput(1)
		code := backend.NewInstructionCode(opcode)
		inputs := []backend.Operand{g.UseRegister(left)}
		if left != right && g.CanBeMemoryOperand(opcode, n, right) {
			var mode backend.AddressingMode
			mode, inputs = g.MemoryOperand(right, inputs)
			code = code.WithAddressingMode(mode)
		} else {
			inputs = append(inputs, g.UseAny(right))
		}
		s.Emit(code, []backend.Operand{g.DefineSameAsFirst(n)}, inputs, nil)
	}
}

// visitFloat64Mod calls out to fmod. Every allocatable register is clobbered.
func visitFloat64Mod(s *backend.InstructionSelector, n *ir.Node) {
	g := newOperandGenerator(s)
	instr := s.Emit(backend.NewInstructionCode(x64Float64Mod),
		[]backend.Operand{g.DefineAsFixedFP(n, xmm0)},
		[]backend.Operand{g.UseFixedFP(n.ValueInput(0), xmm0), g.UseFixedFP(n.ValueInput(1), xmm1)}, nil)
	instr.MarkAsCall()
	s.Frame().MarkHasCalls()
}

// EmitPrepareArguments implements backend.Target. C functions get their
// stack area claimed at once and filled by slot; other calls push their
// arguments, last first. The area is padded to keep rsp 16-byte aligned.
func (t *Target) EmitPrepareArguments(s *backend.InstructionSelector, args []backend.PushParameter, d *linkage.CallDescriptor, _ *ir.Node) {
	if len(args) == 0 {
		return
	}
	g := newOperandGenerator(s)
	if d.IsCFunctionCall() {
		claim := roundUpToEven(len(args)) * 8
		s.Emit(backend.NewInstructionCode(x64StackClaim), nil, []backend.Operand{g.TempImmediate(int32(claim))}, nil)
		for slot, arg := range args {
			if arg.Node == nil {
				continue
			}
			var value backend.Operand
			if arg.Type.Rep.IsFloatingPoint() {
				value = g.UseRegister(arg.Node)
			} else {
				value = g.UseRegisterOrImmediate(arg.Node)
			}
			s.Emit(backend.NewInstructionCode(x64Poke), nil, []backend.Operand{g.TempImmediate(int32(slot)), value}, nil)
		}
		return
	}

	if len(args)%2 != 0 {
		s.Emit(backend.NewInstructionCode(x64StackClaim), nil, []backend.Operand{g.TempImmediate(8)}, nil)
	}
	for i := len(args) - 1; i >= 0; i-- {
		arg := args[i]
		var value backend.Operand
		switch {
		case arg.Node == nil:
			value = g.TempImmediate(0)
		case arg.Type.Rep.IsFloatingPoint():
			value = g.UseAny(arg.Node)
		default:
			value = g.UseAnyOrImmediate(arg.Node)
		}
		s.Emit(backend.NewInstructionCode(x64Push), nil, []backend.Operand{value}, nil)
	}
}

func roundUpToEven(n int) int { return (n + 1) &^ 1 }
