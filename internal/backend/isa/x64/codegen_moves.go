package x64

import (
	"math"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/machine"
)

var _ backend.MoveAssembler = (*codeGenerator)(nil)

// AssembleMove implements backend.MoveAssembler. r10 carries values between
// stack slots.
func (c *codeGenerator) AssembleMove(src, dst *backend.Operand) {
	to := c.location(dst)
	switch {
	case src.IsConstant():
		c.assembleConstantMove(c.seq.GetConstant(src.VirtualRegister()), to)
	case src.IsImmediate():
		c.assembleConstantMove(c.seq.GetImmediate(src), to)
	case src.IsAnyStackSlot() && dst.IsAnyStackSlot():
		c.emit(x86.AMOVQ, c.location(src), regAddr(x86.REG_R10))
		c.emit(x86.AMOVQ, regAddr(x86.REG_R10), to)
	case src.IsFPRegister() && dst.IsFPRegister():
		c.emit(x86.AMOVAPS, c.location(src), to)
	case src.IsFPRegister():
		c.emit(fpMove(src.Representation()), c.location(src), to)
	case dst.IsFPRegister():
		c.emit(fpMove(dst.Representation()), c.location(src), to)
	default:
		c.emit(x86.AMOVQ, c.location(src), to)
	}
}

// AssembleSwap implements backend.MoveAssembler. Swaps go through r10 and
// xmm15.
func (c *codeGenerator) AssembleSwap(src, dst *backend.Operand) {
	a, b := c.location(src), c.location(dst)
	r10, x15 := regAddr(x86.REG_R10), regAddr(castAsGolangAsmFPRegister[scratchFP])
	switch {
	case src.IsRegister() && dst.IsRegister():
		c.emit(x86.AXCHGQ, a, b)
	case src.IsFPRegister() && dst.IsFPRegister():
		c.emit(x86.AMOVAPS, a, x15)
		c.emit(x86.AMOVAPS, b, a)
		c.emit(x86.AMOVAPS, x15, b)
	case src.IsAnyStackSlot() && dst.IsAnyStackSlot():
		c.emit(x86.AMOVQ, a, r10)
		c.emit(x86.AMOVSD, b, x15)
		c.emit(x86.AMOVQ, r10, b)
		c.emit(x86.AMOVSD, x15, a)
	case src.IsRegister() || dst.IsRegister():
		if dst.IsRegister() {
			a, b = b, a
		}
		// a is the register, b the slot.
		c.emit(x86.AMOVQ, a, r10)
		c.emit(x86.AMOVQ, b, a)
		c.emit(x86.AMOVQ, r10, b)
	default:
		if dst.IsFPRegister() {
			a, b = b, a
		}
		c.emit(x86.AMOVAPS, a, x15)
		c.emit(x86.AMOVSD, b, a)
		c.emit(x86.AMOVSD, x15, b)
	}
}

// fpMove returns the move between an xmm register and memory for rep.
func fpMove(rep machine.Representation) obj.As {
	if rep == machine.RepFloat32 {
		return x86.AMOVSS
	}
	return x86.AMOVSD
}

// assembleConstantMove loads k into the register or stack slot dst.
func (c *codeGenerator) assembleConstantMove(k backend.Constant, dst obj.Addr) {
	r10 := regAddr(x86.REG_R10)
	toRegister := dst.Type == obj.TYPE_REG && !isFPAddr(dst)
	switch k.Kind() {
	case backend.ConstantInt32:
		if toRegister {
			// Writing the low half zeroes the high one.
			c.emit(x86.AMOVL, constAddr(int64(k.ToInt32())), dst)
		} else {
			c.emit(x86.AMOVQ, constAddr(int64(k.ToInt32())), dst)
		}
	case backend.ConstantInt64:
		if toRegister || k.FitsInt32() {
			c.emit(x86.AMOVQ, constAddr(k.ToInt64()), dst)
			return
		}
		c.emit(x86.AMOVQ, constAddr(k.ToInt64()), r10)
		c.emit(x86.AMOVQ, r10, dst)
	case backend.ConstantFloat32, backend.ConstantFloat64:
		var bits uint64
		if k.Kind() == backend.ConstantFloat32 {
			bits = uint64(math.Float32bits(k.ToFloat32()))
		} else {
			bits = math.Float64bits(k.ToFloat64())
		}
		if bits == 0 && isFPAddr(dst) {
			c.emit(x86.AXORPS, dst, dst)
			return
		}
		c.emit(x86.AMOVQ, constAddr(int64(bits)), r10)
		c.emit(x86.AMOVQ, r10, dst)
	case backend.ConstantExternalReference, backend.ConstantHeapObject:
		kind := backend.RelocationExternalReference
		if k.Kind() == backend.ConstantHeapObject {
			kind = backend.RelocationCodeObject
		}
		if toRegister {
			c.assembleRelocatedAddress(kind, k.Name(), dst.Reg)
			return
		}
		c.assembleRelocatedAddress(kind, k.Name(), x86.REG_R10)
		c.emit(x86.AMOVQ, r10, dst)
	default:
		panic("BUG: moving " + k.String())
	}
}
