package asm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStaticConstPool(t *testing.T) {
	p := NewStaticConstPool()
	require.NotNil(t, p.addedConsts)
}

func TestStaticConst_AddOffsetFinalizedCallback(t *testing.T) {
	p := NewStaticConstPool()
	const firstUseOffset uint64 = 100

	// Add first const.
	c := NewStaticConst([]byte{1})
	p.AddConst(c, firstUseOffset)
	require.Equal(t, firstUseOffset, *p.FirstUseOffsetInBinary)
	require.Equal(t, 1, len(p.Consts))
	require.Equal(t, 1, len(p.addedConsts))

	// Adding the same *StaticConst doesn't affect the state.
	p.AddConst(c, firstUseOffset+10000)
	require.Equal(t, firstUseOffset, *p.FirstUseOffsetInBinary)
	require.Equal(t, 1, len(p.Consts))
	require.Equal(t, 1, len(p.addedConsts))

	// Add another const.
	c2 := NewStaticConst([]byte{1, 2})
	p.AddConst(c2, firstUseOffset+100)
	require.Equal(t, firstUseOffset, *p.FirstUseOffsetInBinary) // first use doesn't change!
	require.Equal(t, 2, len(p.Consts))
	require.Equal(t, 2, len(p.addedConsts))
	require.Equal(t, 3, p.PoolSizeInBytes)
}

func TestStaticConst_SetOffsetInBinary(t *testing.T) {
	sc := NewStaticConst([]byte{1})
	const offset uint64 = 100
	var called bool
	sc.AddOffsetFinalizedCallback(func(offsetOfConstInBinary uint64) {
		require.Equal(t, offset, offsetOfConstInBinary)
		called = true
	})
	sc.SetOffsetInBinary(offset)
	require.True(t, called)
}

func TestStaticConstPool_Flush(t *testing.T) {
	p := NewStaticConstPool()
	c1, c2 := NewStaticConst([]byte{0xa, 0xb}), NewStaticConst([]byte{0xc})
	p.AddConst(c1, 0)
	p.AddConst(c2, 0)

	code := p.Flush([]byte{0x90, 0x90, 0x90})
	require.Equal(t, uint64(8), c1.OffsetInBinary)
	require.Equal(t, uint64(16), c2.OffsetInBinary)
	require.Equal(t, []byte{0x90, 0x90, 0x90, 0, 0, 0, 0, 0, 0xa, 0xb, 0, 0, 0, 0, 0, 0, 0xc}, code)
	require.Empty(t, p.Consts)
}

// fixedNode is a Node with a known offset.
type fixedNode NodeOffsetInBinary

func (n fixedNode) String() string                         { return "fixed" }
func (n fixedNode) AssignJumpTarget(Node)                  {}
func (n fixedNode) AssignDestinationConstant(ConstantValue) {}
func (n fixedNode) AssignSourceConstant(ConstantValue)     {}
func (n fixedNode) OffsetInBinary() NodeOffsetInBinary     { return NodeOffsetInBinary(n) }

func TestBaseAssemblerImpl_Finalize(t *testing.T) {
	a := NewBaseAssemblerImpl()
	table := NewStaticConst(make([]byte, 8))
	a.BuildJumpTable(table, []Node{fixedNode(2), fixedNode(5)})
	var seen []byte
	a.AddOnGenerateCallBack(func(code []byte) error {
		seen = code
		return nil
	})

	code, err := a.Finalize(make([]byte, 6))
	require.NoError(t, err)
	require.Equal(t, code, seen)
	require.Equal(t, uint64(8), table.OffsetInBinary)
	require.Len(t, code, 16)
	require.Equal(t, int32(2-8), int32(binary.LittleEndian.Uint32(code[8:])))
	require.Equal(t, int32(5-8), int32(binary.LittleEndian.Uint32(code[12:])))
}
