package asm

import (
	"encoding/binary"
	"fmt"
)

// BaseAssemblerImpl includes code common to all architectures.
//
// Note: When possible, add code here instead of in architecture-specific files to reduce drift:
// As this is internal, exporting symbols only to reduce duplication is ok.
type BaseAssemblerImpl struct {
	// SetBranchTargetOnNextNodes holds branch kind instructions (BR, conditional BR, etc.)
	// where we want to set the next coming instruction as the destination of these BR instructions.
	SetBranchTargetOnNextNodes []Node

	// OnGenerateCallbacks holds the callbacks which are called after generating native code.
	OnGenerateCallbacks []func(code []byte) error

	JumpTableEntries []JumpTableEntry

	// Pool holds the static constants placed after the code.
	Pool StaticConstPool
}

// JumpTableEntry is a jump table and the first nodes of its labels.
type JumpTableEntry struct {
	T                        *StaticConst
	LabelInitialInstructions []Node
}

// NewBaseAssemblerImpl returns an empty BaseAssemblerImpl.
func NewBaseAssemblerImpl() BaseAssemblerImpl {
	return BaseAssemblerImpl{Pool: NewStaticConstPool()}
}

// SetJumpTargetOnNext implements AssemblerBase.SetJumpTargetOnNext
func (a *BaseAssemblerImpl) SetJumpTargetOnNext(nodes ...Node) {
	a.SetBranchTargetOnNextNodes = append(a.SetBranchTargetOnNextNodes, nodes...)
}

// AddOnGenerateCallBack implements AssemblerBase.AddOnGenerateCallBack
func (a *BaseAssemblerImpl) AddOnGenerateCallBack(cb func([]byte) error) {
	a.OnGenerateCallbacks = append(a.OnGenerateCallbacks, cb)
}

// BuildJumpTable implements AssemblerBase.BuildJumpTable
func (a *BaseAssemblerImpl) BuildJumpTable(table *StaticConst, labelInitialInstructions []Node) {
	a.JumpTableEntries = append(a.JumpTableEntries, JumpTableEntry{
		T:                        table,
		LabelInitialInstructions: labelInitialInstructions,
	})
	a.Pool.AddConst(table, 0)
}

// FinalizeJumpTableEntry writes the offset of each label relative to the
// start of its table. The tables must already be placed in code.
func (a *BaseAssemblerImpl) FinalizeJumpTableEntry(code []byte) error {
	for i := range a.JumpTableEntries {
		ent := &a.JumpTableEntries[i]
		table := ent.T
		base := int64(table.OffsetInBinary)
		for j, label := range ent.LabelInitialInstructions {
			offset := int64(label.OffsetInBinary()) - base
			if offset < -JumpTableMaximumOffset || offset > JumpTableMaximumOffset {
				return fmt.Errorf("too large jump table offset %d", offset)
			}
			binary.LittleEndian.PutUint32(code[table.OffsetInBinary+uint64(j*4):], uint32(int32(offset)))
		}
	}
	return nil
}

// Finalize places the static constants after code, fills the jump tables
// and runs the callbacks registered with AddOnGenerateCallBack.
func (a *BaseAssemblerImpl) Finalize(code []byte) ([]byte, error) {
	code = a.Pool.Flush(code)
	if err := a.FinalizeJumpTableEntry(code); err != nil {
		return nil, err
	}
	for _, cb := range a.OnGenerateCallbacks {
		if err := cb(code); err != nil {
			return nil, err
		}
	}
	return code, nil
}
