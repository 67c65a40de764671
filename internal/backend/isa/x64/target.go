// Package x64 is the x86-64 target: its registers, calling convention,
// instruction patterns and code generator.
package x64

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/linkage"
)

// Target implements backend.Target for x86-64.
type Target struct {
	features Features
	patterns map[ir.Opcode]backend.Pattern
}

var _ backend.Target = (*Target)(nil)

// NewTarget returns the target generating code for a CPU with features.
func NewTarget(features Features) *Target {
	t := &Target{features: features}
	t.patterns = t.patternTable()
	return t
}

// Features returns the CPU features code is generated for.
func (t *Target) Features() Features { return t.features }

// Name implements backend.Target.
func (t *Target) Name() string { return "x64" }

// OpcodeName implements backend.Target.
func (t *Target) OpcodeName(o backend.ArchOpcode) string {
	if o >= backend.ArchOpcodeTargetBase && o < x64OpcodeEnd {
		return opcodeNames[o-backend.ArchOpcodeTargetBase]
	}
	return fmt.Sprintf("X64Opcode(%d)", o)
}

// Convention implements backend.Target.
func (t *Target) Convention() *linkage.Convention { return convention }

// Registers implements backend.Target.
func (t *Target) Registers() *backend.RegisterConfig { return registerConfig }

// CheckSupport implements backend.Target.
func (t *Target) CheckSupport(n *ir.Node) error {
	if n.Opcode() == ir.OpcodeWord32Popcnt && !t.features.POPCNT {
		return iselapi.Bailoutf("%s needs POPCNT", n.Opcode())
	}
	return nil
}

// Pattern implements backend.Target.
func (t *Target) Pattern(op ir.Opcode) backend.Pattern { return t.patterns[op] }

func (t *Target) patternTable() map[ir.Opcode]backend.Pattern {
	ctz := x64Bsf32
	if t.features.BMI1 {
		ctz = x64Tzcnt32
	}
	return map[ir.Opcode]backend.Pattern{
		ir.OpcodeLoad:  visitLoad,
		ir.OpcodeStore: visitStore,

		ir.OpcodeWord32And: binop(x64And32),
		ir.OpcodeWord32Or:  binop(x64Or32),
		ir.OpcodeWord32Xor: binop(x64Xor32),
		ir.OpcodeWord64And: binop(x64And64),
		ir.OpcodeWord64Or:  binop(x64Or64),
		ir.OpcodeWord64Xor: binop(x64Xor64),
		ir.OpcodeInt32Add:  binop(x64Add32),
		ir.OpcodeInt32Sub:  binop(x64Sub32),
		ir.OpcodeInt64Add:  binop(x64Add64),
		ir.OpcodeInt64Sub:  binop(x64Sub64),
		ir.OpcodeInt32Mul:  binop(x64Imul32),
		ir.OpcodeInt64Mul:  binop(x64Imul64),

		ir.OpcodeInt32AddWithOverflow: visitWithOverflow(x64Add32),
		ir.OpcodeInt32SubWithOverflow: visitWithOverflow(x64Sub32),

		ir.OpcodeInt32Div:  visitDiv(x64Idiv32),
		ir.OpcodeUint32Div: visitDiv(x64Udiv32),
		ir.OpcodeInt32Mod:  visitMod(x64Imod32),
		ir.OpcodeUint32Mod: visitMod(x64Umod32),

		ir.OpcodeWord32Shl: visitShift(x64Shl32),
		ir.OpcodeWord32Shr: visitShift(x64Shr32),
		ir.OpcodeWord32Sar: visitShift(x64Sar32),
		ir.OpcodeWord64Shl: visitShift(x64Shl64),
		ir.OpcodeWord64Shr: visitShift(x64Shr64),
		ir.OpcodeWord64Sar: visitShift(x64Sar64),

		ir.OpcodeWord32Clz:    unop(x64Lzcnt32),
		ir.OpcodeWord32Ctz:    unop(ctz),
		ir.OpcodeWord32Popcnt: unop(x64Popcnt32),

		ir.OpcodeWord32Equal:           compare(backend.CondEqual),
		ir.OpcodeInt32LessThan:         compare(backend.CondSignedLessThan),
		ir.OpcodeInt32LessThanOrEqual:  compare(backend.CondSignedLessThanOrEqual),
		ir.OpcodeUint32LessThan:        compare(backend.CondUnsignedLessThan),
		ir.OpcodeUint32LessThanOrEqual: compare(backend.CondUnsignedLessThanOrEqual),
		ir.OpcodeWord64Equal:           compare(backend.CondEqual),
		ir.OpcodeInt64LessThan:         compare(backend.CondSignedLessThan),
		ir.OpcodeInt64LessThanOrEqual:  compare(backend.CondSignedLessThanOrEqual),
		ir.OpcodeUint64LessThan:        compare(backend.CondUnsignedLessThan),
		ir.OpcodeUint64LessThanOrEqual: compare(backend.CondUnsignedLessThanOrEqual),

		ir.OpcodeFloat32Add: floatBinop(x64Float32Add),
		ir.OpcodeFloat32Sub: floatBinop(x64Float32Sub),
		ir.OpcodeFloat32Mul: floatBinop(x64Float32Mul),
		ir.OpcodeFloat32Div: floatBinop(x64Float32Div),
		ir.OpcodeFloat64Add: floatBinop(x64Float64Add),
		ir.OpcodeFloat64Sub: floatBinop(x64Float64Sub),
		ir.OpcodeFloat64Mul: floatBinop(x64Float64Mul),
		ir.OpcodeFloat64Div: floatBinop(x64Float64Div),
		ir.OpcodeFloat64Sqrt: func(s *backend.InstructionSelector, n *ir.Node) {
			g := newOperandGenerator(s)
			s.Emit(backend.NewInstructionCode(x64Float64Sqrt), []backend.Operand{g.DefineAsRegister(n)},
				[]backend.Operand{g.UseAny(n.ValueInput(0))}, nil)
		},
		ir.OpcodeFloat64Mod: visitFloat64Mod,

		ir.OpcodeFloat32Equal:           floatCompare(floatEqual),
		ir.OpcodeFloat32LessThan:        floatCompare(floatLessThan),
		ir.OpcodeFloat32LessThanOrEqual: floatCompare(floatLessThanOrEqual),
		ir.OpcodeFloat64Equal:           floatCompare(floatEqual),
		ir.OpcodeFloat64LessThan:        floatCompare(floatLessThan),
		ir.OpcodeFloat64LessThanOrEqual: floatCompare(floatLessThanOrEqual),

		ir.OpcodeChangeInt32ToFloat64:     unop(x64Int32ToFloat64),
		ir.OpcodeChangeUint32ToFloat64:    unop(x64Uint32ToFloat64),
		ir.OpcodeChangeFloat64ToInt32:     unop(x64Float64ToInt32),
		ir.OpcodeChangeFloat64ToUint32:    unop(x64Float64ToInt64),
		ir.OpcodeTruncateFloat64ToWord32:  unop(x64Float64ToInt64),
		ir.OpcodeChangeFloat32ToFloat64:   unop(x64Float32ToFloat64),
		ir.OpcodeTruncateFloat64ToFloat32: unop(x64Float64ToFloat32),
		ir.OpcodeChangeInt32ToInt64:       unop(x64Movsxlq),
		ir.OpcodeChangeUint32ToUint64:     unop(x64Movl),
		ir.OpcodeTruncateInt64ToInt32:     unop(x64Movl),
	}
}
