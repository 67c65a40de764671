package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// diamond returns a builder over
//
//	  B0
//	 /  \
//	B1  B2
//	 \  /
//	  B3
func diamond() *sequenceBuilder {
	return newSequenceBuilder(
		testBlock{succs: []int{1, 2}, dominator: -1},
		testBlock{preds: []int{0}, succs: []int{3}, dominator: 0},
		testBlock{preds: []int{0}, succs: []int{3}, dominator: 0},
		testBlock{preds: []int{1, 2}, dominator: 0},
	)
}

func TestVerify(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(b *sequenceBuilder)
		err   string
	}{
		{
			name: "valid",
			build: func(b *sequenceBuilder) {
				b.start(0)
				_, v0 := b.def()
				b.branch(1, 2)
				b.end()
				b.start(1)
				_, v1 := b.def()
				b.jump(3)
				b.end()
				b.start(2)
				_, v2 := b.def()
				b.jump(3)
				b.end()
				phi := NewPhiInstruction(b.seq.NextVirtualRegister(), 2)
				phi.SetInput(0, v1)
				phi.SetInput(1, v2)
				b.seq.InstructionBlockAt(3).AddPhi(phi)
				b.start(3)
				b.use(v0, phi.VirtualRegister())
				b.ret()
				b.end()
			},
		},
		{
			name: "use before definition",
			build: func(b *sequenceBuilder) {
				b.start(0)
				b.use(0)
				_, _ = b.def()
				b.branch(1, 2)
				b.end()
				for _, rpo := range []int{1, 2, 3} {
					b.start(rpo)
					b.ret()
					b.end()
				}
			},
			err: "v0 used at 0 before its definition in B0 at 1",
		},
		{
			name: "use in a sibling",
			build: func(b *sequenceBuilder) {
				b.start(0)
				b.branch(1, 2)
				b.end()
				b.start(1)
				_, v := b.def()
				b.jump(3)
				b.end()
				b.start(2)
				b.use(v)
				b.jump(3)
				b.end()
				b.start(3)
				b.ret()
				b.end()
			},
			err: "v0 used at 3 before its definition in B1 at 1",
		},
		{
			name: "double definition",
			build: func(b *sequenceBuilder) {
				b.start(0)
				_, v := b.def()
				b.emit(mockAdd, []Operand{NewUnallocated(PolicyRegister, UsedAtEnd, v)}, nil)
				b.branch(1, 2)
				b.end()
				for _, rpo := range []int{1, 2, 3} {
					b.start(rpo)
					b.ret()
					b.end()
				}
			},
			err: "v0 defined in B0 at 0 and in B0 at 1",
		},
		{
			name: "undefined",
			build: func(b *sequenceBuilder) {
				b.start(0)
				b.use(7)
				b.branch(1, 2)
				b.end()
				for _, rpo := range []int{1, 2, 3} {
					b.start(rpo)
					b.ret()
					b.end()
				}
			},
			err: "v7 used at 0 but never defined",
		},
		{
			name: "phi input from the wrong side",
			build: func(b *sequenceBuilder) {
				b.start(0)
				b.branch(1, 2)
				b.end()
				b.start(1)
				_, v1 := b.def()
				b.jump(3)
				b.end()
				b.start(2)
				_, v2 := b.def()
				b.jump(3)
				b.end()
				phi := NewPhiInstruction(b.seq.NextVirtualRegister(), 2)
				phi.SetInput(0, v2)
				phi.SetInput(1, v1)
				b.seq.InstructionBlockAt(3).AddPhi(phi)
				b.start(3)
				b.ret()
				b.end()
			},
			err: "phi v2 input v1 does not reach the end of B1",
		},
		{
			name: "blocks out of order",
			build: func(b *sequenceBuilder) {
				for _, rpo := range []int{0, 2, 1, 3} {
					b.start(rpo)
					b.ret()
					b.end()
				}
			},
			err: "B1 spans [2, 3), want it to start at 1",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b := diamond()
			tc.build(b)
			err := Verify(b.seq)
			if tc.err == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.err)
		})
	}
}

func TestInstructionSequence_EndBlock_empty(t *testing.T) {
	b := diamond()
	require.Panics(t, func() {
		b.start(0)
		b.end()
	})
}
