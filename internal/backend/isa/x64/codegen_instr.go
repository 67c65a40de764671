package x64

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/isel/internal/asm"
	"github.com/tetratelabs/isel/internal/backend"
)

// twoAddressInstructions are the instructions of the opcodes computing
// "output op= right", where the output shares the register of the left input.
var twoAddressInstructions = map[backend.ArchOpcode]obj.As{
	x64Add32:      x86.AADDL,
	x64Add64:      x86.AADDQ,
	x64Sub32:      x86.ASUBL,
	x64Sub64:      x86.ASUBQ,
	x64And32:      x86.AANDL,
	x64And64:      x86.AANDQ,
	x64Or32:       x86.AORL,
	x64Or64:       x86.AORQ,
	x64Xor32:      x86.AXORL,
	x64Xor64:      x86.AXORQ,
	x64Imul32:     x86.AIMULL,
	x64Imul64:     x86.AIMULQ,
	x64Shl32:      x86.ASHLL,
	x64Shr32:      x86.ASHRL,
	x64Sar32:      x86.ASARL,
	x64Shl64:      x86.ASHLQ,
	x64Shr64:      x86.ASHRQ,
	x64Sar64:      x86.ASARQ,
	x64Float32Add: x86.AADDSS,
	x64Float32Sub: x86.ASUBSS,
	x64Float32Mul: x86.AMULSS,
	x64Float32Div: x86.ADIVSS,
	x64Float64Add: x86.AADDSD,
	x64Float64Sub: x86.ASUBSD,
	x64Float64Mul: x86.AMULSD,
	x64Float64Div: x86.ADIVSD,
}

// unaryInstructions read their input and write their output.
var unaryInstructions = map[backend.ArchOpcode]obj.As{
	x64Tzcnt32:          x86.ATZCNTL,
	x64Popcnt32:         x86.APOPCNTL,
	x64Float64Sqrt:      x86.ASQRTSD,
	x64Int32ToFloat64:   x86.ACVTSL2SD,
	x64Float64ToInt32:   x86.ACVTTSD2SL,
	x64Float64ToInt64:   x86.ACVTTSD2SQ,
	x64Float32ToFloat64: x86.ACVTSS2SD,
	x64Float64ToFloat32: x86.ACVTSD2SS,
}

// moveInstructions load with a memory input, store without output and
// convert between registers otherwise.
var moveInstructions = map[backend.ArchOpcode]obj.As{
	x64Movsxbl: x86.AMOVBLSX,
	x64Movzxbl: x86.AMOVBLZX,
	x64Movsxwl: x86.AMOVWLSX,
	x64Movzxwl: x86.AMOVWLZX,
	x64Movsxlq: x86.AMOVLQSX,
	x64Movb:    x86.AMOVB,
	x64Movw:    x86.AMOVW,
	x64Movl:    x86.AMOVL,
	x64Movq:    x86.AMOVQ,
	x64Movss:   x86.AMOVSS,
	x64Movsd:   x86.AMOVSD,
}

func (c *codeGenerator) assembleTargetInstruction(instr *backend.Instruction) error {
	op := instr.ArchOpcode()
	if as, ok := twoAddressInstructions[op]; ok {
		c.emit(as, c.rightOperand(instr), c.location(instr.Output()))
		return nil
	}
	if as, ok := unaryInstructions[op]; ok {
		c.emit(as, c.input(instr.InputAt(0)), c.location(instr.Output()))
		return nil
	}
	if as, ok := moveInstructions[op]; ok {
		c.assembleMoveInstruction(instr, as)
		return nil
	}

	switch op {
	case x64Cmp32:
		c.emit(x86.ACMPL, c.input(instr.InputAt(0)), c.rightOperand(instr))
	case x64Cmp64:
		c.emit(x86.ACMPQ, c.input(instr.InputAt(0)), c.rightOperand(instr))
	case x64Test32:
		c.emit(x86.ATESTL, c.rightOperand(instr), c.input(instr.InputAt(0)))
	case x64Test64:
		c.emit(x86.ATESTQ, c.rightOperand(instr), c.input(instr.InputAt(0)))
	case x64Float32Cmp:
		// UCOMISS sets the flags comparing its destination with its source.
		c.emit(x86.AUCOMISS, c.rightOperand(instr), regAddr(c.fpReg(instr.InputAt(0))))
	case x64Float64Cmp:
		c.emit(x86.AUCOMISD, c.rightOperand(instr), regAddr(c.fpReg(instr.InputAt(0))))
	case x64Idiv32, x64Udiv32:
		c.assembleDiv(instr, op == x64Idiv32)
	case x64Imod32, x64Umod32:
		c.assembleMod(instr, op == x64Imod32)
	case x64Lzcnt32:
		out := c.location(instr.Output())
		c.emit(x86.ABSRL, c.input(instr.InputAt(0)), out)
		c.emit(x86.AMOVL, constAddr(63), regAddr(x86.REG_R10))
		c.emit(x86.ACMOVLEQ, regAddr(x86.REG_R10), out)
		c.emit(x86.AXORL, constAddr(31), out)
	case x64Bsf32:
		out := c.location(instr.Output())
		c.emit(x86.ABSFL, c.input(instr.InputAt(0)), out)
		c.emit(x86.AMOVL, constAddr(32), regAddr(x86.REG_R10))
		c.emit(x86.ACMOVLEQ, regAddr(x86.REG_R10), out)
	case x64Uint32ToFloat64:
		c.emit(x86.AMOVL, c.input(instr.InputAt(0)), regAddr(x86.REG_R10))
		c.emit(x86.ACVTSQ2SD, regAddr(x86.REG_R10), c.location(instr.Output()))
	case x64Float64Mod:
		c.assembleRelocatedAddress(backend.RelocationExternalReference, float64ModFunction, x86.REG_R10)
		c.emit(obj.ACALL, obj.Addr{}, regAddr(x86.REG_R10))
		c.recordSafepoint(instr, pendingSafepoint{stateID: -1, handler: -1})
	case x64Push:
		c.assemblePush(instr.InputAt(0))
	case x64Poke:
		slot := memAddr(x86.REG_SP, 8*int64(c.immediate(instr.InputAt(0))))
		value := c.input(instr.InputAt(1))
		if isFPAddr(value) {
			c.emit(x86.AMOVSD, value, slot)
		} else {
			c.emit(x86.AMOVQ, value, slot)
		}
	case x64StackClaim:
		c.emit(x86.ASUBQ, constAddr(int64(c.immediate(instr.InputAt(0)))), regAddr(x86.REG_SP))
	default:
		return fmt.Errorf("BUG: unknown opcode %s", opcodeNames[op-backend.ArchOpcodeTargetBase])
	}
	return nil
}

// rightOperand returns the second operand of a two-address instruction: a
// memory operand, an immediate or a location.
func (c *codeGenerator) rightOperand(instr *backend.Instruction) obj.Addr {
	if instr.AddressingMode() != backend.AddressingModeNone {
		return c.memoryOperand(instr, 1)
	}
	return c.input(instr.InputAt(1))
}

// memoryOperand forms the memory operand whose inputs start at first.
func (c *codeGenerator) memoryOperand(instr *backend.Instruction, first int) obj.Addr {
	hasIndex, hasDisplacement, scale := modeLayout(instr.AddressingMode())
	addr := obj.Addr{Type: obj.TYPE_MEM, Reg: c.gpReg(instr.InputAt(first))}
	next := first + 1
	if hasIndex {
		addr.Index = c.gpReg(instr.InputAt(next))
		addr.Scale = scale
		next++
	}
	if hasDisplacement {
		addr.Offset = int64(c.immediate(instr.InputAt(next)))
	}
	return addr
}

func (c *codeGenerator) assembleMoveInstruction(instr *backend.Instruction, as obj.As) {
	switch {
	case instr.AddressingMode() == backend.AddressingModeNone:
		c.emit(as, c.input(instr.InputAt(0)), c.location(instr.Output()))
	case instr.OutputCount() > 0:
		c.emit(as, c.memoryOperand(instr, 0), c.location(instr.Output()))
	default:
		value := instr.InputAt(instr.InputCount() - 1)
		var src obj.Addr
		if value.IsImmediate() {
			v := int64(c.immediate(value))
			switch as {
			case x86.AMOVB:
				v = int64(int8(v))
			case x86.AMOVW:
				v = int64(int16(v))
			}
			src = constAddr(v)
		} else {
			src = c.input(value)
		}
		c.emit(as, src, c.memoryOperand(instr, 0))
	}
}

// assembleDiv divides rax by the second input. Division by zero yields zero
// and the signed division of any value by -1 is its negation, so neither
// traps.
func (c *codeGenerator) assembleDiv(instr *backend.Instruction, signed bool) {
	divisor := regAddr(c.gpReg(instr.InputAt(1)))
	rax, rdx := regAddr(x86.REG_AX), regAddr(x86.REG_DX)

	c.emit(x86.ATESTL, divisor, divisor)
	nonZero := c.forwardJump(x86.AJNE)
	c.emit(x86.AXORL, rax, rax)
	zeroDone := c.forwardJump(obj.AJMP)
	c.SetJumpTargetOnNext(nonZero)
	if !signed {
		c.emit(x86.AXORL, rdx, rdx)
		c.emit(x86.ADIVL, divisor, obj.Addr{})
		c.SetJumpTargetOnNext(zeroDone)
		return
	}
	c.emit(x86.ACMPL, divisor, constAddr(-1))
	notMinusOne := c.forwardJump(x86.AJNE)
	c.emit(x86.ANEGL, obj.Addr{}, rax)
	negated := c.forwardJump(obj.AJMP)
	c.SetJumpTargetOnNext(notMinusOne)
	c.emit(x86.ACDQ, obj.Addr{}, obj.Addr{})
	c.emit(x86.AIDIVL, divisor, obj.Addr{})
	c.SetJumpTargetOnNext(zeroDone, negated)
}

// assembleMod leaves the remainder of rax by the second input in rdx. The
// remainder by zero and, for signed operations, by -1 is zero.
func (c *codeGenerator) assembleMod(instr *backend.Instruction, signed bool) {
	divisor := regAddr(c.gpReg(instr.InputAt(1)))
	rdx := regAddr(x86.REG_DX)

	c.emit(x86.ATESTL, divisor, divisor)
	toZero := []asm.Node{c.forwardJump(x86.AJEQ)}
	if signed {
		c.emit(x86.ACMPL, divisor, constAddr(-1))
		toZero = append(toZero, c.forwardJump(x86.AJEQ))
		c.emit(x86.ACDQ, obj.Addr{}, obj.Addr{})
		c.emit(x86.AIDIVL, divisor, obj.Addr{})
	} else {
		c.emit(x86.AXORL, rdx, rdx)
		c.emit(x86.ADIVL, divisor, obj.Addr{})
	}
	done := c.forwardJump(obj.AJMP)
	c.SetJumpTargetOnNext(toZero...)
	c.emit(x86.AXORL, rdx, rdx)
	c.SetJumpTargetOnNext(done)
}

// assemblePush pushes a call argument. Floating point registers have no
// push instruction.
func (c *codeGenerator) assemblePush(value *backend.Operand) {
	src := c.input(value)
	if isFPAddr(src) {
		c.emit(x86.ASUBQ, constAddr(8), regAddr(x86.REG_SP))
		c.emit(x86.AMOVSD, src, memAddr(x86.REG_SP, 0))
		return
	}
	c.emit(x86.APUSHQ, src, obj.Addr{})
}

// isFPAddr returns true if a is an xmm register.
func isFPAddr(a obj.Addr) bool {
	return a.Type == obj.TYPE_REG && a.Reg >= x86.REG_X0 && a.Reg <= x86.REG_X15
}

// parityFix tells how a condition treats unordered operands, which set the
// parity flag, when the x86 condition alone gets it wrong.
type parityFix byte

const (
	parityNone parityFix = iota
	// parityFalse conditions do not hold on unordered operands.
	parityFalse
	// parityTrue conditions hold on unordered operands.
	parityTrue
)

type conditionInstructions struct {
	jump, set obj.As
	parity    parityFix
}

// conditions maps the flags conditions to x86. UCOMISS and UCOMISD set ZF,
// PF and CF on unordered operands, so below or equal holds and above does
// not.
var conditions = [...]conditionInstructions{
	backend.CondEqual:                              {x86.AJEQ, x86.ASETEQ, parityNone},
	backend.CondNotEqual:                           {x86.AJNE, x86.ASETNE, parityNone},
	backend.CondSignedLessThan:                     {x86.AJLT, x86.ASETLT, parityNone},
	backend.CondSignedGreaterThanOrEqual:           {x86.AJGE, x86.ASETGE, parityNone},
	backend.CondSignedLessThanOrEqual:              {x86.AJLE, x86.ASETLE, parityNone},
	backend.CondSignedGreaterThan:                  {x86.AJGT, x86.ASETGT, parityNone},
	backend.CondUnsignedLessThan:                   {x86.AJCS, x86.ASETCS, parityNone},
	backend.CondUnsignedGreaterThanOrEqual:         {x86.AJCC, x86.ASETCC, parityNone},
	backend.CondUnsignedLessThanOrEqual:            {x86.AJLS, x86.ASETLS, parityNone},
	backend.CondUnsignedGreaterThan:                {x86.AJHI, x86.ASETHI, parityNone},
	backend.CondFloatLessThanOrUnordered:           {x86.AJCS, x86.ASETCS, parityNone},
	backend.CondFloatGreaterThanOrEqual:            {x86.AJCC, x86.ASETCC, parityNone},
	backend.CondFloatLessThanOrEqual:               {x86.AJLS, x86.ASETLS, parityFalse},
	backend.CondFloatGreaterThanOrUnordered:        {x86.AJHI, x86.ASETHI, parityTrue},
	backend.CondFloatLessThan:                      {x86.AJCS, x86.ASETCS, parityFalse},
	backend.CondFloatGreaterThanOrEqualOrUnordered: {x86.AJCC, x86.ASETCC, parityTrue},
	backend.CondFloatLessThanOrEqualOrUnordered:    {x86.AJLS, x86.ASETLS, parityNone},
	backend.CondFloatGreaterThan:                   {x86.AJHI, x86.ASETHI, parityNone},
	backend.CondUnorderedEqual:                     {x86.AJEQ, x86.ASETEQ, parityFalse},
	backend.CondUnorderedNotEqual:                  {x86.AJNE, x86.ASETNE, parityTrue},
	backend.CondOverflow:                           {x86.AJOS, x86.ASETOS, parityNone},
	backend.CondNotOverflow:                        {x86.AJOC, x86.ASETOC, parityNone},
	backend.CondPositiveOrZero:                     {x86.AJPL, x86.ASETPL, parityNone},
	backend.CondNegative:                           {x86.AJMI, x86.ASETMI, parityNone},
}

// assembleFlags consumes the flags set by instr as its flags mode says.
func (c *codeGenerator) assembleFlags(instr *backend.Instruction) {
	cond := instr.FlagsCondition()
	switch instr.FlagsMode() {
	case backend.FlagsModeBranch:
		n := instr.InputCount()
		c.assembleBranch(cond, c.labelOf(instr.InputAt(n-2)), c.labelOf(instr.InputAt(n-1)))
	case backend.FlagsModeDeoptimize:
		exit := c.newDeoptimizationExit(instr, instr.Code().Misc())
		c.jumpIf(cond, &exit.label)
	case backend.FlagsModeSet:
		c.assembleSet(cond, regAddr(c.gpReg(instr.OutputAt(instr.OutputCount()-1))))
	}
}

// assembleBranch falls through to whichever target is assembled next.
func (c *codeGenerator) assembleBranch(cond backend.FlagsCondition, ifTrue, ifFalse int) {
	if ifTrue == c.next {
		cond, ifTrue, ifFalse = cond.Negate(), ifFalse, ifTrue
	}
	c.jumpIf(cond, &c.blockLabels[ifTrue])
	c.jumpToBlock(ifFalse)
}

func (c *codeGenerator) jumpIf(cond backend.FlagsCondition, l *label) {
	ci := conditions[cond]
	switch ci.parity {
	case parityFalse:
		unordered := c.forwardJump(x86.AJPS)
		c.jumpTo(ci.jump, l)
		c.SetJumpTargetOnNext(unordered)
	case parityTrue:
		c.jumpTo(x86.AJPS, l)
		c.jumpTo(ci.jump, l)
	default:
		c.jumpTo(ci.jump, l)
	}
}

// assembleSet materializes cond as 0 or 1 in out.
func (c *codeGenerator) assembleSet(cond backend.FlagsCondition, out obj.Addr) {
	ci := conditions[cond]
	c.emit(ci.set, obj.Addr{}, out)
	switch ci.parity {
	case parityFalse:
		c.emit(x86.ASETPC, obj.Addr{}, regAddr(x86.REG_R10))
		c.emit(x86.AANDL, regAddr(x86.REG_R10), out)
	case parityTrue:
		c.emit(x86.ASETPS, obj.Addr{}, regAddr(x86.REG_R10))
		c.emit(x86.AORL, regAddr(x86.REG_R10), out)
	}
	c.emit(x86.AMOVBLZX, out, out)
}
