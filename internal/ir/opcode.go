package ir

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/machine"
)

// Properties are static facts about an Opcode.
type Properties uint8

const (
	// PropCommutative marks binary operations whose value inputs may be swapped.
	PropCommutative Properties = 1 << iota
	// PropConstant marks leaf operations whose value is known at compile time.
	PropConstant
)

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if o == OpcodeInvalid || o >= opcodeEnd {
		return fmt.Sprintf("invalid(%d)", uint16(o))
	}
	return opcodeInfos[o].name
}

func (o Opcode) info() *opcodeInfo {
	if o == OpcodeInvalid || o >= opcodeEnd {
		panic(fmt.Sprintf("BUG: invalid opcode %d", uint16(o)))
	}
	return &opcodeInfos[o]
}

// IsControl returns true for opcodes forming the control-flow skeleton.
func (o Opcode) IsControl() bool { return o.info().category == categoryControl }

// IsCommon returns true for the opcodes every compilation level shares:
// parameters, constants, phis, projections, calls and frame states.
func (o Opcode) IsCommon() bool { return o.info().category == categoryCommon }

// IsSimplified returns true for representation-agnostic opcodes which must be
// lowered before instruction selection.
func (o Opcode) IsSimplified() bool { return o.info().category == categorySimplified }

// IsMachine returns true for opcodes with a direct machine counterpart.
func (o Opcode) IsMachine() bool { return o.info().category == categoryMachine }

// IsCommutative returns true if the two value inputs can be swapped.
func (o Opcode) IsCommutative() bool { return o.info().props&PropCommutative != 0 }

// IsConstant returns true for constant leaves.
func (o Opcode) IsConstant() bool { return o.info().props&PropConstant != 0 }

// IsPure returns true if the opcode neither reads nor writes the effect chain
// and is not tied to control, so it can be placed anywhere its inputs dominate.
func (o Opcode) IsPure() bool {
	i := o.info()
	return i.category != categoryControl && i.effectIn == 0 && i.controlIn == 0 && i.effectOut == 0
}

// IsBlockStart returns true for control opcodes that begin a basic block.
func (o Opcode) IsBlockStart() bool {
	switch o {
	case OpcodeStart, OpcodeLoop, OpcodeMerge, OpcodeIfTrue, OpcodeIfFalse, OpcodeIfValue,
		OpcodeIfDefault, OpcodeIfSuccess, OpcodeIfException, OpcodeOsrLoopEntry:
		return true
	}
	return false
}

// IsTerminator returns true for opcodes that end a function path and are
// collected by End.
func (o Opcode) IsTerminator() bool {
	switch o {
	case OpcodeReturn, OpcodeTailCall, OpcodeDeoptimize, OpcodeThrow:
		return true
	}
	return false
}

// IsComparison returns true for machine opcodes producing a boolean from two operands.
func (o Opcode) IsComparison() bool {
	return o.IsMachine() && o.info().out == machine.Bool
}

// MachineOutput returns the machine type of the single value output of a
// machine or constant opcode.
func (o Opcode) MachineOutput() machine.Type { return o.info().out }

// MachineInput returns the representation machine opcodes require of every
// value input. Load and Store have mixed inputs and return RepNone.
func (o Opcode) MachineInput() machine.Representation { return o.info().in }
