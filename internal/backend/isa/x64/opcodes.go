package x64

import "github.com/tetratelabs/isel/internal/backend"

// Target-specific arch opcodes.
const (
	x64Add32 = backend.ArchOpcodeTargetBase + iota
	x64Add64
	x64Sub32
	x64Sub64
	x64And32
	x64And64
	x64Or32
	x64Or64
	x64Xor32
	x64Xor64
	x64Cmp32
	x64Cmp64
	x64Test32
	x64Test64
	x64Imul32
	x64Imul64
	x64Idiv32
	x64Udiv32
	x64Imod32
	x64Umod32
	x64Shl32
	x64Shr32
	x64Sar32
	x64Shl64
	x64Shr64
	x64Sar64
	x64Lzcnt32
	x64Tzcnt32
	x64Bsf32
	x64Popcnt32
	x64Movsxbl
	x64Movzxbl
	x64Movsxwl
	x64Movzxwl
	x64Movsxlq
	x64Movb
	x64Movw
	x64Movl
	x64Movq
	x64Movss
	x64Movsd
	x64Float32Add
	x64Float32Sub
	x64Float32Mul
	x64Float32Div
	x64Float32Cmp
	x64Float64Add
	x64Float64Sub
	x64Float64Mul
	x64Float64Div
	x64Float64Sqrt
	x64Float64Mod
	x64Float64Cmp
	x64Int32ToFloat64
	x64Uint32ToFloat64
	x64Float64ToInt32
	x64Float64ToInt64
	x64Float32ToFloat64
	x64Float64ToFloat32
	x64Push
	x64Poke
	x64StackClaim

	x64OpcodeEnd
)

var opcodeNames = [...]string{
	x64Add32 - backend.ArchOpcodeTargetBase:            "X64Add32",
	x64Add64 - backend.ArchOpcodeTargetBase:            "X64Add",
	x64Sub32 - backend.ArchOpcodeTargetBase:            "X64Sub32",
	x64Sub64 - backend.ArchOpcodeTargetBase:            "X64Sub",
	x64And32 - backend.ArchOpcodeTargetBase:            "X64And32",
	x64And64 - backend.ArchOpcodeTargetBase:            "X64And",
	x64Or32 - backend.ArchOpcodeTargetBase:             "X64Or32",
	x64Or64 - backend.ArchOpcodeTargetBase:             "X64Or",
	x64Xor32 - backend.ArchOpcodeTargetBase:            "X64Xor32",
	x64Xor64 - backend.ArchOpcodeTargetBase:            "X64Xor",
	x64Cmp32 - backend.ArchOpcodeTargetBase:            "X64Cmp32",
	x64Cmp64 - backend.ArchOpcodeTargetBase:            "X64Cmp",
	x64Test32 - backend.ArchOpcodeTargetBase:           "X64Test32",
	x64Test64 - backend.ArchOpcodeTargetBase:           "X64Test",
	x64Imul32 - backend.ArchOpcodeTargetBase:           "X64Imul32",
	x64Imul64 - backend.ArchOpcodeTargetBase:           "X64Imul",
	x64Idiv32 - backend.ArchOpcodeTargetBase:           "X64Idiv32",
	x64Udiv32 - backend.ArchOpcodeTargetBase:           "X64Udiv32",
	x64Imod32 - backend.ArchOpcodeTargetBase:           "X64Imod32",
	x64Umod32 - backend.ArchOpcodeTargetBase:           "X64Umod32",
	x64Shl32 - backend.ArchOpcodeTargetBase:            "X64Shl32",
	x64Shr32 - backend.ArchOpcodeTargetBase:            "X64Shr32",
	x64Sar32 - backend.ArchOpcodeTargetBase:            "X64Sar32",
	x64Shl64 - backend.ArchOpcodeTargetBase:            "X64Shl",
	x64Shr64 - backend.ArchOpcodeTargetBase:            "X64Shr",
	x64Sar64 - backend.ArchOpcodeTargetBase:            "X64Sar",
	x64Lzcnt32 - backend.ArchOpcodeTargetBase:          "X64Lzcnt32",
	x64Tzcnt32 - backend.ArchOpcodeTargetBase:          "X64Tzcnt32",
	x64Bsf32 - backend.ArchOpcodeTargetBase:            "X64Bsf32",
	x64Popcnt32 - backend.ArchOpcodeTargetBase:         "X64Popcnt32",
	x64Movsxbl - backend.ArchOpcodeTargetBase:          "X64Movsxbl",
	x64Movzxbl - backend.ArchOpcodeTargetBase:          "X64Movzxbl",
	x64Movsxwl - backend.ArchOpcodeTargetBase:          "X64Movsxwl",
	x64Movzxwl - backend.ArchOpcodeTargetBase:          "X64Movzxwl",
	x64Movsxlq - backend.ArchOpcodeTargetBase:          "X64Movsxlq",
	x64Movb - backend.ArchOpcodeTargetBase:             "X64Movb",
	x64Movw - backend.ArchOpcodeTargetBase:             "X64Movw",
	x64Movl - backend.ArchOpcodeTargetBase:             "X64Movl",
	x64Movq - backend.ArchOpcodeTargetBase:             "X64Movq",
	x64Movss - backend.ArchOpcodeTargetBase:            "X64Movss",
	x64Movsd - backend.ArchOpcodeTargetBase:            "X64Movsd",
	x64Float32Add - backend.ArchOpcodeTargetBase:       "SSEFloat32Add",
	x64Float32Sub - backend.ArchOpcodeTargetBase:       "SSEFloat32Sub",
	x64Float32Mul - backend.ArchOpcodeTargetBase:       "SSEFloat32Mul",
	x64Float32Div - backend.ArchOpcodeTargetBase:       "SSEFloat32Div",
	x64Float32Cmp - backend.ArchOpcodeTargetBase:       "SSEFloat32Cmp",
	x64Float64Add - backend.ArchOpcodeTargetBase:       "SSEFloat64Add",
	x64Float64Sub - backend.ArchOpcodeTargetBase:       "SSEFloat64Sub",
	x64Float64Mul - backend.ArchOpcodeTargetBase:       "SSEFloat64Mul",
	x64Float64Div - backend.ArchOpcodeTargetBase:       "SSEFloat64Div",
	x64Float64Sqrt - backend.ArchOpcodeTargetBase:      "SSEFloat64Sqrt",
	x64Float64Mod - backend.ArchOpcodeTargetBase:       "SSEFloat64Mod",
	x64Float64Cmp - backend.ArchOpcodeTargetBase:       "SSEFloat64Cmp",
	x64Int32ToFloat64 - backend.ArchOpcodeTargetBase:   "SSEInt32ToFloat64",
	x64Uint32ToFloat64 - backend.ArchOpcodeTargetBase:  "SSEUint32ToFloat64",
	x64Float64ToInt32 - backend.ArchOpcodeTargetBase:   "SSEFloat64ToInt32",
	x64Float64ToInt64 - backend.ArchOpcodeTargetBase:   "SSEFloat64ToInt64",
	x64Float32ToFloat64 - backend.ArchOpcodeTargetBase: "SSEFloat32ToFloat64",
	x64Float64ToFloat32 - backend.ArchOpcodeTargetBase: "SSEFloat64ToFloat32",
	x64Push - backend.ArchOpcodeTargetBase:             "X64Push",
	x64Poke - backend.ArchOpcodeTargetBase:             "X64Poke",
	x64StackClaim - backend.ArchOpcodeTargetBase:       "X64StackClaim",
}

// Addressing modes of memory operands. The inputs of the memory operand are
// the base register, then the index register if any, then the displacement
// immediate if any.
const (
	modeMR   backend.AddressingMode = iota + 1 // [base]
	modeMRI                                    // [base + disp]
	modeMR1                                    // [base + index]
	modeMR2                                    // [base + index*2]
	modeMR4                                    // [base + index*4]
	modeMR8                                    // [base + index*8]
	modeMR1I                                   // [base + index + disp]
	modeMR2I                                   // [base + index*2 + disp]
	modeMR4I                                   // [base + index*4 + disp]
	modeMR8I                                   // [base + index*8 + disp]
)

var addressingModeNames = [...]string{
	modeMR: "MR", modeMRI: "MRI",
	modeMR1: "MR1", modeMR2: "MR2", modeMR4: "MR4", modeMR8: "MR8",
	modeMR1I: "MR1I", modeMR2I: "MR2I", modeMR4I: "MR4I", modeMR8I: "MR8I",
}

// scaledMode returns the mode of [base + index<<shift (+ disp)].
func scaledMode(shift int, withDisplacement bool) backend.AddressingMode {
	if withDisplacement {
		return modeMR1I + backend.AddressingMode(shift)
	}
	return modeMR1 + backend.AddressingMode(shift)
}

// modeLayout returns whether mode has an index and a displacement, and the
// scale of the index.
func modeLayout(mode backend.AddressingMode) (hasIndex, hasDisplacement bool, scale int16) {
	switch mode {
	case modeMR:
		return false, false, 0
	case modeMRI:
		return false, true, 0
	case modeMR1, modeMR2, modeMR4, modeMR8:
		return true, false, 1 << (mode - modeMR1)
	case modeMR1I, modeMR2I, modeMR4I, modeMR8I:
		return true, true, 1 << (mode - modeMR1I)
	}
	panic("BUG: unknown addressing mode")
}

// memoryInputCount returns the number of inputs forming a mode operand.
func memoryInputCount(mode backend.AddressingMode) int {
	hasIndex, hasDisplacement, _ := modeLayout(mode)
	count := 1
	if hasIndex {
		count++
	}
	if hasDisplacement {
		count++
	}
	return count
}
