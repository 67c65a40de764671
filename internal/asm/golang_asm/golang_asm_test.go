package golang_asm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/isel/internal/asm"
)

func newAssembler(t *testing.T) *GolangAsmBaseAssembler {
	a, err := NewGolangAsmBaseAssembler("amd64")
	require.NoError(t, err)
	return a
}

func ret(a *GolangAsmBaseAssembler) asm.Node {
	p := a.NewProg()
	p.As = obj.ARET
	return a.AddInstruction(p)
}

func TestGolangAsmBaseAssembler_OnNext(t *testing.T) {
	a := newAssembler(t)
	require.False(t, a.HasPending())

	var got []*obj.Prog
	a.OnNext(func(next *obj.Prog) { got = append(got, next) })
	a.OnNext(func(next *obj.Prog) { got = append(got, next) })
	require.True(t, a.HasPending())

	n := ret(a)
	require.False(t, a.HasPending())
	require.Equal(t, []*obj.Prog{n.(*GolangAsmNode).Prog(), n.(*GolangAsmNode).Prog()}, got)

	// Callbacks only see the next instruction.
	ret(a)
	require.Len(t, got, 2)
}

func TestGolangAsmBaseAssembler_Assemble(t *testing.T) {
	t.Run("forward jump", func(t *testing.T) {
		a := newAssembler(t)
		jmp := a.NewProg()
		jmp.As = obj.AJMP
		jmp.To.Type = obj.TYPE_BRANCH
		a.SetJumpTargetOnNext(a.AddInstruction(jmp))
		target := ret(a)

		code, err := a.Assemble()
		require.NoError(t, err)
		require.Equal(t, []byte{0xeb, 0x00, 0xc3}, code)
		require.Equal(t, asm.NodeOffsetInBinary(2), target.OffsetInBinary())
	})
	t.Run("pending jump", func(t *testing.T) {
		a := newAssembler(t)
		jmp := a.NewProg()
		jmp.As = obj.AJMP
		jmp.To.Type = obj.TYPE_BRANCH
		a.SetJumpTargetOnNext(a.AddInstruction(jmp))

		_, err := a.Assemble()
		require.Error(t, err)
	})
	t.Run("pending callback", func(t *testing.T) {
		a := newAssembler(t)
		ret(a)
		a.OnNext(func(*obj.Prog) {})

		_, err := a.Assemble()
		require.Error(t, err)
	})
}

func TestGolangAsmBaseAssembler_CompileReadStaticConstAddress(t *testing.T) {
	a := newAssembler(t)
	c := asm.NewStaticConst([]byte{0xaa, 0xbb})
	a.CompileReadStaticConstAddress(x86.REG_R10, c)
	ret(a)

	code, err := a.Assemble()
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x4c, 0x8d, 0x15, 0x01, 0x00, 0x00, 0x00, // LEAQ 1(RIP), R10
		0xc3,                                     // RET
		0xaa, 0xbb,                               // the constant, 8 byte aligned
	}, code)
	require.Equal(t, uint64(8), c.OffsetInBinary)
}

func TestGolangAsmNode(t *testing.T) {
	a := newAssembler(t)
	p := a.NewProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_CONST
	p.To.Type = obj.TYPE_CONST
	n := a.AddInstruction(p)

	n.AssignSourceConstant(10)
	n.AssignDestinationConstant(20)
	require.Equal(t, int64(10), p.From.Offset)
	require.Equal(t, int64(20), p.To.Offset)
}
