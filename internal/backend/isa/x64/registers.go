package x64

import (
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/isel/internal/asm"
	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/linkage"
)

// General purpose register codes, in encoding order.
const (
	rax = iota
	rcx
	rdx
	rbx
	rsp
	rbp
	rsi
	rdi
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
)

// Floating point register codes.
const (
	xmm0 = iota
	xmm1
	xmm2
	xmm3
	xmm4
	xmm5
	xmm6
	xmm7
	xmm8
	xmm9
	xmm10
	xmm11
	xmm12
	xmm13
	xmm14
	xmm15
)

var generalNames = []string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var fpNames = []string{
	"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
	"xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15",
}

// Scratch registers of the code generator. They never hold allocated values.
const (
	scratchGeneral = r10
	scratchFP      = xmm15
)

var registerConfig = &backend.RegisterConfig{
	GeneralNames:       generalNames,
	FPNames:            fpNames,
	AllocatableGeneral: []int{rax, rbx, rcx, rdx, rsi, rdi, r8, r9, r12, r14},
	AllocatableFP:      []int{xmm0, xmm1, xmm2, xmm3, xmm4, xmm5, xmm6, xmm7, xmm8, xmm9, xmm10, xmm11, xmm12},
	ScratchGeneral:     scratchGeneral,
	ScratchFP:          scratchFP,
	FixupGeneral:       []int{r11, r13, r15},
	FixupFP:            []int{xmm13, xmm14},
}

// convention follows the System V AMD64 ABI for the register arguments.
var convention = &linkage.Convention{
	IntArgs:            []int{rdi, rsi, rdx, rcx, r8, r9},
	FloatArgs:          []int{xmm0, xmm1, xmm2, xmm3, xmm4, xmm5, xmm6, xmm7},
	IntResults:         []int{rax, rdx},
	FloatResults:       []int{xmm0, xmm1},
	JSFunctionRegister: rdi,
}

// castAsGolangAsmRegister maps the general purpose register codes to golang-asm specific register values.
var castAsGolangAsmRegister = [...]asm.Register{
	rax: x86.REG_AX,
	rcx: x86.REG_CX,
	rdx: x86.REG_DX,
	rbx: x86.REG_BX,
	rsp: x86.REG_SP,
	rbp: x86.REG_BP,
	rsi: x86.REG_SI,
	rdi: x86.REG_DI,
	r8:  x86.REG_R8,
	r9:  x86.REG_R9,
	r10: x86.REG_R10,
	r11: x86.REG_R11,
	r12: x86.REG_R12,
	r13: x86.REG_R13,
	r14: x86.REG_R14,
	r15: x86.REG_R15,
}

// castAsGolangAsmFPRegister maps the floating point register codes to golang-asm specific register values.
var castAsGolangAsmFPRegister = [...]asm.Register{
	xmm0:  x86.REG_X0,
	xmm1:  x86.REG_X1,
	xmm2:  x86.REG_X2,
	xmm3:  x86.REG_X3,
	xmm4:  x86.REG_X4,
	xmm5:  x86.REG_X5,
	xmm6:  x86.REG_X6,
	xmm7:  x86.REG_X7,
	xmm8:  x86.REG_X8,
	xmm9:  x86.REG_X9,
	xmm10: x86.REG_X10,
	xmm11: x86.REG_X11,
	xmm12: x86.REG_X12,
	xmm13: x86.REG_X13,
	xmm14: x86.REG_X14,
	xmm15: x86.REG_X15,
}
