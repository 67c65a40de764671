package backend

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/isel/internal/zone"
)

// GapPosition selects one of the two parallel moves of an Instruction.
type GapPosition byte

const (
	// GapStart moves run before the instruction reads its inputs.
	GapStart GapPosition = iota
	// GapEnd moves run after GapStart, still before the instruction.
	GapEnd
)

// MoveOperands is a single move of a ParallelMove.
type MoveOperands struct {
	Source, Destination Operand
}

// IsEliminated returns true once the move has been dropped.
func (m *MoveOperands) IsEliminated() bool { return m.Source.IsInvalid() }

// Eliminate drops the move.
func (m *MoveOperands) Eliminate() { *m = MoveOperands{} }

// IsRedundant returns true if the move does nothing.
func (m *MoveOperands) IsRedundant() bool {
	return m.IsEliminated() || m.Source.EqualsCanonicalized(m.Destination)
}

// String implements fmt.Stringer.
func (m *MoveOperands) String() string {
	return fmt.Sprintf("%s = %s", m.Destination, m.Source)
}

// ParallelMove is a set of moves performed simultaneously: every source is
// read before any destination is written.
type ParallelMove []*MoveOperands

// AddMove appends a move.
func (p *ParallelMove) AddMove(src, dst Operand) *MoveOperands {
	m := &MoveOperands{Source: src, Destination: dst}
	*p = append(*p, m)
	return m
}

// IsRedundant returns true if every move is redundant.
func (p ParallelMove) IsRedundant() bool {
	for _, m := range p {
		if !m.IsRedundant() {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (p ParallelMove) String() string {
	var parts []string
	for _, m := range p {
		if !m.IsEliminated() {
			parts = append(parts, m.String())
		}
	}
	return strings.Join(parts, "; ")
}

// ReferenceMap lists the locations holding tagged values live at a safepoint.
type ReferenceMap struct {
	references []Operand
}

// RecordReference records a tagged location.
func (r *ReferenceMap) RecordReference(op Operand) {
	if !op.IsAnyStackSlot() && !op.IsRegister() {
		panic(fmt.Sprintf("BUG: reference in %s", op))
	}
	r.references = append(r.references, op)
}

// References returns the recorded locations.
func (r *ReferenceMap) References() []Operand { return r.references }

// Instruction is a selected machine instruction. Its operands are laid out as
// outputs, then inputs, then temps.
type Instruction struct {
	code                               InstructionCode
	operands                           []Operand
	outputCount, inputCount, tempCount int
	isCall                             bool
	referenceMap                       *ReferenceMap
	gaps                               [2]ParallelMove
	block                              int
}

// NewInstruction allocates an instruction from pool.
func NewInstruction(pool *zone.Pool[Instruction], code InstructionCode, outputs, inputs, temps []Operand) *Instruction {
	instr := pool.Allocate()
	instr.code = code
	instr.outputCount, instr.inputCount, instr.tempCount = len(outputs), len(inputs), len(temps)
	instr.operands = make([]Operand, 0, len(outputs)+len(inputs)+len(temps))
	instr.operands = append(instr.operands, outputs...)
	instr.operands = append(instr.operands, inputs...)
	instr.operands = append(instr.operands, temps...)
	return instr
}

func resetInstruction(i *Instruction) { *i = Instruction{block: -1} }

// Code returns the instruction code.
func (i *Instruction) Code() InstructionCode { return i.code }

// ArchOpcode returns the opcode.
func (i *Instruction) ArchOpcode() ArchOpcode { return i.code.ArchOpcode() }

// AddressingMode returns the addressing mode.
func (i *Instruction) AddressingMode() AddressingMode { return i.code.AddressingMode() }

// FlagsMode returns the flags mode.
func (i *Instruction) FlagsMode() FlagsMode { return i.code.FlagsMode() }

// FlagsCondition returns the flags condition.
func (i *Instruction) FlagsCondition() FlagsCondition { return i.code.FlagsCondition() }

// OutputCount returns the number of outputs.
func (i *Instruction) OutputCount() int { return i.outputCount }

// InputCount returns the number of inputs.
func (i *Instruction) InputCount() int { return i.inputCount }

// TempCount returns the number of temps.
func (i *Instruction) TempCount() int { return i.tempCount }

// OutputAt returns the i-th output, to be rewritten by register allocation.
func (i *Instruction) OutputAt(index int) *Operand {
	if index >= i.outputCount {
		panic(fmt.Sprintf("BUG: output %d of %d", index, i.outputCount))
	}
	return &i.operands[index]
}

// Output returns the first output.
func (i *Instruction) Output() *Operand { return i.OutputAt(0) }

// InputAt returns the i-th input.
func (i *Instruction) InputAt(index int) *Operand {
	if index >= i.inputCount {
		panic(fmt.Sprintf("BUG: input %d of %d", index, i.inputCount))
	}
	return &i.operands[i.outputCount+index]
}

// TempAt returns the i-th temp.
func (i *Instruction) TempAt(index int) *Operand {
	if index >= i.tempCount {
		panic(fmt.Sprintf("BUG: temp %d of %d", index, i.tempCount))
	}
	return &i.operands[i.outputCount+i.inputCount+index]
}

// IsCall returns true for instructions clobbering every allocatable register.
func (i *Instruction) IsCall() bool { return i.isCall }

// MarkAsCall marks the instruction as a call with a reference map.
func (i *Instruction) MarkAsCall() {
	i.isCall = true
	i.referenceMap = &ReferenceMap{}
}

// ReferenceMap returns the reference map of a call, or nil.
func (i *Instruction) ReferenceMap() *ReferenceMap { return i.referenceMap }

// GetOrCreateParallelMove returns the parallel move at pos.
func (i *Instruction) GetOrCreateParallelMove(pos GapPosition) *ParallelMove {
	return &i.gaps[pos]
}

// ParallelMove returns the moves at pos, possibly empty.
func (i *Instruction) ParallelMove(pos GapPosition) ParallelMove { return i.gaps[pos] }

// AreMovesRedundant returns true if both gaps are redundant.
func (i *Instruction) AreMovesRedundant() bool {
	return i.gaps[GapStart].IsRedundant() && i.gaps[GapEnd].IsRedundant()
}

// OverwriteWithNop turns the instruction into a nop without gap moves.
func (i *Instruction) OverwriteWithNop() {
	i.code = NewInstructionCode(ArchNop)
	i.operands = nil
	i.outputCount, i.inputCount, i.tempCount = 0, 0, 0
	i.gaps = [2]ParallelMove{}
}

// Block returns the RPO number of the block holding the instruction.
func (i *Instruction) Block() int { return i.block }

// IsNop returns true for ArchNop without operands.
func (i *Instruction) IsNop() bool { return i.ArchOpcode() == ArchNop && len(i.operands) == 0 }

// IsJump returns true for unconditional jumps.
func (i *Instruction) IsJump() bool { return i.ArchOpcode() == ArchJmp }

// IsRet returns true for returns.
func (i *Instruction) IsRet() bool { return i.ArchOpcode() == ArchRet }

// IsTailCall returns true for tail calls.
func (i *Instruction) IsTailCall() bool { return i.ArchOpcode().IsTailCall() }

// IsDeoptimizeCall returns true for instructions that may leave to the deoptimizer.
func (i *Instruction) IsDeoptimizeCall() bool {
	return i.ArchOpcode() == ArchDeoptimize || i.FlagsMode() == FlagsModeDeoptimize
}

// IsThrow returns true for throws.
func (i *Instruction) IsThrow() bool { return i.ArchOpcode() == ArchThrow }

// IsTerminator returns true for instructions ending a block.
func (i *Instruction) IsTerminator() bool {
	return i.ArchOpcode().IsTerminator() || i.FlagsMode() == FlagsModeBranch
}

// Format writes the instruction using names for target opcodes.
func (i *Instruction) Format(sb *strings.Builder, names func(ArchOpcode) string) {
	for pos := GapStart; pos <= GapEnd; pos++ {
		if !i.gaps[pos].IsRedundant() {
			fmt.Fprintf(sb, "(%s) ", i.gaps[pos])
		}
	}
	if i.outputCount > 1 {
		sb.WriteByte('(')
	}
	for j := 0; j < i.outputCount; j++ {
		if j > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(i.operands[j].String())
	}
	if i.outputCount > 1 {
		sb.WriteByte(')')
	}
	if i.outputCount > 0 {
		sb.WriteString(" = ")
	}
	sb.WriteString(FormatArchOpcode(i.ArchOpcode(), names))
	if mode := i.AddressingMode(); mode != AddressingModeNone {
		fmt.Fprintf(sb, " : MODE%d", mode)
	}
	if mode := i.FlagsMode(); mode != FlagsModeNone {
		fmt.Fprintf(sb, " && %s if %s", mode, i.FlagsCondition())
	}
	if misc := i.code.Misc(); misc != 0 {
		fmt.Fprintf(sb, " : misc %d", misc)
	}
	for j := 0; j < i.inputCount; j++ {
		sb.WriteByte(' ')
		sb.WriteString(i.InputAt(j).String())
	}
	if i.tempCount > 0 {
		sb.WriteString(" |")
		for j := 0; j < i.tempCount; j++ {
			sb.WriteByte(' ')
			sb.WriteString(i.TempAt(j).String())
		}
	}
}

// String implements fmt.Stringer.
func (i *Instruction) String() string {
	var sb strings.Builder
	i.Format(&sb, nil)
	return sb.String()
}
