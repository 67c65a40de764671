package asm

import (
	"fmt"
	"math"
)

// Register represents architecture-specific registers, in the numbering of
// the underlying assembler.
type Register = int16

// ConstantValue represents a constant value used in an instruction.
type ConstantValue = int64

// NodeOffsetInBinary represents an offset of this node in the final binary.
type NodeOffsetInBinary = uint64

// JumpTableMaximumOffset represents the limit on the size of jump tables in bytes.
// When users try loading an extremely large function, we might fail to encode
// the offsets into 32-bit signed integers.
const JumpTableMaximumOffset = math.MaxInt32

// Node represents a node in the linked list of assembled operations.
type Node interface {
	fmt.Stringer

	// AssignJumpTarget assigns the given target node as the destination of
	// jump instruction for this Node.
	AssignJumpTarget(target Node)

	// AssignDestinationConstant assigns the given constant as the destination
	// of the instruction for this node.
	AssignDestinationConstant(value ConstantValue)

	// AssignSourceConstant assigns the given constant as the source
	// of the instruction for this node.
	AssignSourceConstant(value ConstantValue)

	// OffsetInBinary returns the offset of this node in the assembled binary.
	OffsetInBinary() NodeOffsetInBinary
}

// AssemblerBase is the common interface for assemblers among multiple architectures.
//
// Note: some of them can be implemented in an arch-independent way, but not all can be
// implemented as such. However, we intentionally put such arch-dependant methods here
// in order to provide the common documentation interface.
type AssemblerBase interface {
	// Assemble produces the final binary for the assembled operations,
	// followed by the static constants referenced from the code.
	Assemble() ([]byte, error)

	// SetJumpTargetOnNext instructs the assembler that the next node must be
	// assigned to the given node's jump destination.
	SetJumpTargetOnNext(nodes ...Node)

	// BuildJumpTable calculates the offsets between the table and each
	// label's first node, and writes them as 32-bit signed integers into
	// table once the code is assembled.
	BuildJumpTable(table *StaticConst, labelInitialInstructions []Node)

	// AddOnGenerateCallBack registers a callback invoked on the assembled
	// binary, after the static constants got their offsets.
	AddOnGenerateCallBack(cb func([]byte) error)
}

// StaticConst represents a constant value placed after the code, such as a
// jump table.
type StaticConst struct {
	Raw []byte
	// OffsetInBinary is the offset of this static const in the result binary.
	OffsetInBinary uint64
	// offsetFinalizedCallbacks holds callbacks which are called when .OffsetInBinary is finalized by assembler implementation.
	offsetFinalizedCallbacks []func(offsetOfConstInBinary uint64)
}

// NewStaticConst returns the pointer to the new NewStaticConst for given bytes.
func NewStaticConst(raw []byte) *StaticConst {
	return &StaticConst{Raw: raw}
}

// AddOffsetFinalizedCallback adds a callback into offsetFinalizedCallbacks.
func (s *StaticConst) AddOffsetFinalizedCallback(cb func(offsetOfConstInBinary uint64)) {
	s.offsetFinalizedCallbacks = append(s.offsetFinalizedCallbacks, cb)
}

// SetOffsetInBinary finalizes the offset of this StaticConst, and invokes the callbacks.
func (s *StaticConst) SetOffsetInBinary(offset uint64) {
	s.OffsetInBinary = offset
	for _, cb := range s.offsetFinalizedCallbacks {
		cb(offset)
	}
}

// StaticConstPool holds a bulk of StaticConst which are yet to be emitted into the binary.
type StaticConstPool struct {
	// FirstUseOffsetInBinary holds the offset of the first instruction which accesses this const pool.
	FirstUseOffsetInBinary *NodeOffsetInBinary
	Consts                 []*StaticConst
	// addedConsts is used to deduplicate the consts to reduce the final size of binary.
	// Note: we can use map on .consts field and remove this field,
	// but we have the separate field for deduplication in order to have deterministic assembling behavior.
	addedConsts map[*StaticConst]struct{}
	// PoolSizeInBytes is the current size of the pool in bytes.
	PoolSizeInBytes int
}

// NewStaticConstPool returns the pointer to a new StaticConstPool.
func NewStaticConstPool() StaticConstPool {
	return StaticConstPool{addedConsts: map[*StaticConst]struct{}{}}
}

// AddConst adds a *StaticConst into the pool if it's not already added.
func (p *StaticConstPool) AddConst(c *StaticConst, useOffset NodeOffsetInBinary) {
	if _, ok := p.addedConsts[c]; ok {
		return
	}

	if p.FirstUseOffsetInBinary == nil {
		p.FirstUseOffsetInBinary = &useOffset
	}

	p.Consts = append(p.Consts, c)
	p.PoolSizeInBytes += len(c.Raw)
	p.addedConsts[c] = struct{}{}
}

// Flush appends the constants of the pool to code, aligning each of them on
// 8 bytes, finalizes their offsets and empties the pool.
func (p *StaticConstPool) Flush(code []byte) []byte {
	for _, c := range p.Consts {
		for len(code)%8 != 0 {
			code = append(code, 0)
		}
		c.SetOffsetInBinary(uint64(len(code)))
		code = append(code, c.Raw...)
	}
	*p = NewStaticConstPool()
	return code
}
