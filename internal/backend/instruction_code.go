package backend

import "fmt"

// InstructionCode packs an ArchOpcode with the addressing mode, flags mode,
// flags condition and a target-defined misc field:
//
//	bits  0-8:  ArchOpcode
//	bits  9-13: AddressingMode
//	bits 14-15: FlagsMode
//	bits 16-20: FlagsCondition
//	bits 21-31: misc
type InstructionCode uint32

const (
	archOpcodeBits     = 9
	addressingModeBits = 5
	flagsModeBits      = 2
	flagsConditionBits = 5
	miscBits           = 11

	addressingModeShift = archOpcodeBits
	flagsModeShift      = addressingModeShift + addressingModeBits
	flagsConditionShift = flagsModeShift + flagsModeBits
	miscShift           = flagsConditionShift + flagsConditionBits

	// MaxMisc is the largest value the misc field can hold.
	MaxMisc = 1<<miscBits - 1
)

// ArchOpcode identifies an instruction. Values below ArchOpcodeTargetBase are
// shared by every target, the others belong to the target.
type ArchOpcode uint16

const (
	ArchNop ArchOpcode = iota
	// ArchJmp jumps to the block label in its single input.
	ArchJmp
	// ArchBinarySearchSwitch takes (value, default label, case value, case label...).
	ArchBinarySearchSwitch
	// ArchTableSwitch takes (value, lowest case value, default label, label...).
	ArchTableSwitch
	// ArchRet takes the pop count followed by the return values.
	ArchRet
	// ArchDeoptimize takes the state id followed by the frame state values.
	ArchDeoptimize
	ArchThrow
	ArchCallCodeObject
	ArchCallAddress
	ArchCallJSFunction
	ArchTailCallCodeObject
	ArchTailCallAddress
	ArchTailCallJSFunction
	// ArchLazyBailout records a safepoint with a frame state without calling.
	ArchLazyBailout
	// ArchSelect takes (if false, if true, condition) and outputs into the register
	// of its first input.
	ArchSelect
	// ArchStackSlot defines the address of a frame slot.
	ArchStackSlot

	// ArchOpcodeTargetBase is the first target-specific opcode.
	ArchOpcodeTargetBase ArchOpcode = 32
	// MaxArchOpcode is the largest opcode the 9-bit field can hold.
	MaxArchOpcode ArchOpcode = 1<<archOpcodeBits - 1
)

var archOpcodeNames = [...]string{
	ArchNop:                "ArchNop",
	ArchJmp:                "ArchJmp",
	ArchBinarySearchSwitch: "ArchBinarySearchSwitch",
	ArchTableSwitch:        "ArchTableSwitch",
	ArchRet:                "ArchRet",
	ArchDeoptimize:         "ArchDeoptimize",
	ArchThrow:              "ArchThrow",
	ArchCallCodeObject:     "ArchCallCodeObject",
	ArchCallAddress:        "ArchCallAddress",
	ArchCallJSFunction:     "ArchCallJSFunction",
	ArchTailCallCodeObject: "ArchTailCallCodeObject",
	ArchTailCallAddress:    "ArchTailCallAddress",
	ArchTailCallJSFunction: "ArchTailCallJSFunction",
	ArchLazyBailout:        "ArchLazyBailout",
	ArchSelect:             "ArchSelect",
	ArchStackSlot:          "ArchStackSlot",
}

// IsArchCommon returns true for the opcodes shared by every target.
func (o ArchOpcode) IsArchCommon() bool { return o < ArchOpcodeTargetBase }

// IsCall returns true for the call opcodes, tail calls excluded.
func (o ArchOpcode) IsCall() bool {
	switch o {
	case ArchCallCodeObject, ArchCallAddress, ArchCallJSFunction:
		return true
	}
	return false
}

// IsTailCall returns true for the tail call opcodes.
func (o ArchOpcode) IsTailCall() bool {
	switch o {
	case ArchTailCallCodeObject, ArchTailCallAddress, ArchTailCallJSFunction:
		return true
	}
	return false
}

// IsTerminator returns true for opcodes ending a block.
func (o ArchOpcode) IsTerminator() bool {
	switch o {
	case ArchJmp, ArchBinarySearchSwitch, ArchTableSwitch, ArchRet, ArchDeoptimize, ArchThrow:
		return true
	}
	return o.IsTailCall()
}

// AddressingMode tells how a target instruction forms a memory operand from
// its inputs. The meaning of the values is target-defined, zero is none.
type AddressingMode byte

// AddressingModeNone means the instruction has no memory operand.
const AddressingModeNone AddressingMode = 0

// FlagsMode is what an instruction does with the condition flags it sets.
type FlagsMode byte

const (
	FlagsModeNone FlagsMode = iota
	FlagsModeBranch
	FlagsModeDeoptimize
	FlagsModeSet
)

// String implements fmt.Stringer.
func (m FlagsMode) String() string {
	switch m {
	case FlagsModeNone:
		return "none"
	case FlagsModeBranch:
		return "branch"
	case FlagsModeDeoptimize:
		return "deoptimize"
	case FlagsModeSet:
		return "set"
	}
	panic(fmt.Sprintf("BUG: unknown flags mode %d", m))
}

// NewInstructionCode returns the code of opcode with every other field zero.
func NewInstructionCode(opcode ArchOpcode) InstructionCode {
	if opcode > MaxArchOpcode {
		panic(fmt.Sprintf("BUG: arch opcode %d out of range", opcode))
	}
	return InstructionCode(opcode)
}

// ArchOpcode returns the opcode field.
func (c InstructionCode) ArchOpcode() ArchOpcode {
	return ArchOpcode(c & (1<<archOpcodeBits - 1))
}

// AddressingMode returns the addressing mode field.
func (c InstructionCode) AddressingMode() AddressingMode {
	return AddressingMode(c >> addressingModeShift & (1<<addressingModeBits - 1))
}

// FlagsMode returns the flags mode field.
func (c InstructionCode) FlagsMode() FlagsMode {
	return FlagsMode(c >> flagsModeShift & (1<<flagsModeBits - 1))
}

// FlagsCondition returns the flags condition field.
func (c InstructionCode) FlagsCondition() FlagsCondition {
	return FlagsCondition(c >> flagsConditionShift & (1<<flagsConditionBits - 1))
}

// Misc returns the misc field.
func (c InstructionCode) Misc() int {
	return int(c >> miscShift)
}

// WithAddressingMode returns c with the addressing mode field set to m.
func (c InstructionCode) WithAddressingMode(m AddressingMode) InstructionCode {
	if m >= 1<<addressingModeBits {
		panic(fmt.Sprintf("BUG: addressing mode %d out of range", m))
	}
	c &^= (1<<addressingModeBits - 1) << addressingModeShift
	return c | InstructionCode(m)<<addressingModeShift
}

// WithFlags returns c with the flags mode and condition fields set.
func (c InstructionCode) WithFlags(mode FlagsMode, cond FlagsCondition) InstructionCode {
	c &^= (1<<flagsModeBits-1)<<flagsModeShift | (1<<flagsConditionBits-1)<<flagsConditionShift
	return c | InstructionCode(mode)<<flagsModeShift | InstructionCode(cond)<<flagsConditionShift
}

// WithMisc returns c with the misc field set to v.
func (c InstructionCode) WithMisc(v int) InstructionCode {
	if v < 0 || v > MaxMisc {
		panic(fmt.Sprintf("BUG: misc %d out of range", v))
	}
	c &^= MaxMisc << miscShift
	return c | InstructionCode(v)<<miscShift
}

// FormatArchOpcode returns the name of a shared opcode, or formats a target
// opcode with the names table.
func FormatArchOpcode(o ArchOpcode, targetNames func(ArchOpcode) string) string {
	if o.IsArchCommon() {
		if int(o) < len(archOpcodeNames) && archOpcodeNames[o] != "" {
			return archOpcodeNames[o]
		}
		return fmt.Sprintf("ArchOpcode(%d)", o)
	}
	if targetNames != nil {
		return targetNames(o)
	}
	return fmt.Sprintf("ArchOpcode(%d)", o)
}
