package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/zone"
)

// testBlock describes a block of a hand-built sequence.
type testBlock struct {
	preds, succs []int
	dominator    int
	deferred     bool
}

// sequenceBuilder builds an InstructionSequence without a schedule.
type sequenceBuilder struct {
	seq     *InstructionSequence
	current int
}

func newSequenceBuilder(blocks ...testBlock) *sequenceBuilder {
	seq := &InstructionSequence{
		instructionPool: zone.NewPool[Instruction](zone.New("test"), resetInstruction),
		constants:       map[VReg]Constant{},
		sourcePositions: map[*Instruction]ir.SourcePosition{},
	}
	for i, tb := range blocks {
		seq.blocks = append(seq.blocks, &InstructionBlock{
			rpo:        i,
			preds:      tb.preds,
			succs:      tb.succs,
			dominator:  tb.dominator,
			deferred:   tb.deferred,
			loopHeader: -1,
			loopEnd:    -1,
			codeStart:  -1,
			codeEnd:    -1,
		})
	}
	seq.computeAssemblyOrder()
	return &sequenceBuilder{seq: seq, current: -1}
}

func (b *sequenceBuilder) start(rpo int) *sequenceBuilder {
	b.current = rpo
	b.seq.StartBlock(rpo)
	return b
}

func (b *sequenceBuilder) end() *sequenceBuilder {
	b.seq.EndBlock(b.current)
	return b
}

func (b *sequenceBuilder) emit(opcode ArchOpcode, outputs, inputs []Operand) *Instruction {
	instr := NewInstruction(b.seq.instructionPool, NewInstructionCode(opcode), outputs, inputs, nil)
	b.seq.AddInstruction(b.current, instr)
	return instr
}

func (b *sequenceBuilder) jump(rpo int) *Instruction {
	return b.emit(ArchJmp, nil, []Operand{b.seq.AddImmediate(NewRPONumberConstant(rpo))})
}

func (b *sequenceBuilder) branch(t, f int) *Instruction {
	code := NewInstructionCode(mockCmp).WithFlags(FlagsModeBranch, CondEqual)
	instr := NewInstruction(b.seq.instructionPool, code, nil, []Operand{
		NewImmediate(0), NewImmediate(0),
		b.seq.AddImmediate(NewRPONumberConstant(t)),
		b.seq.AddImmediate(NewRPONumberConstant(f)),
	}, nil)
	b.seq.AddInstruction(b.current, instr)
	return instr
}

func (b *sequenceBuilder) def() (*Instruction, VReg) {
	v := b.seq.NextVirtualRegister()
	return b.emit(mockAdd, []Operand{NewUnallocated(PolicyRegister, UsedAtEnd, v)}, nil), v
}

func (b *sequenceBuilder) use(vregs ...VReg) *Instruction {
	var inputs []Operand
	for _, v := range vregs {
		inputs = append(inputs, NewUnallocated(PolicyAny, UsedAtStart, v))
	}
	return b.emit(mockStore, nil, inputs)
}

func (b *sequenceBuilder) ret() *Instruction {
	return b.emit(ArchRet, nil, []Operand{NewImmediate(0)})
}

func TestInstructionSequence_MarkAsRepresentation(t *testing.T) {
	seq := newSequenceBuilder().seq
	v0, v1, v2 := seq.NextVirtualRegister(), seq.NextVirtualRegister(), seq.NextVirtualRegister()
	seq.MarkAsRepresentation(machine.RepBit, v0)
	seq.MarkAsRepresentation(machine.RepFloat64, v2)

	require.Equal(t, machine.RepWord32, seq.GetRepresentation(v0))
	require.Equal(t, machine.RepWord64, seq.GetRepresentation(v1))
	require.True(t, seq.IsFP(v2))
	require.False(t, seq.IsReference(v2))

	// Marking again with the same representation is fine.
	seq.MarkAsRepresentation(machine.RepWord16, v0)
	require.Panics(t, func() { seq.MarkAsRepresentation(machine.RepTagged, v0) })
	require.Panics(t, func() { seq.MarkAsRepresentation(machine.RepNone, v1) })
}

func TestInstructionSequence_constantsAndImmediates(t *testing.T) {
	seq := newSequenceBuilder().seq
	v := seq.NextVirtualRegister()
	seq.AddConstant(v, NewFloat64Constant(1.5))
	require.True(t, seq.IsConstant(v))
	require.Equal(t, 1.5, seq.GetConstant(v).ToFloat64())
	require.Panics(t, func() { seq.AddConstant(v, NewInt32Constant(1)) })
	require.Panics(t, func() { seq.GetConstant(v + 1) })

	inline := seq.AddImmediate(NewInt32Constant(-3))
	require.Equal(t, ImmediateInline, inline.ImmediateKind())
	require.Equal(t, NewInt32Constant(-3), seq.GetImmediate(&inline))

	indexed := seq.AddImmediate(NewInt64Constant(1 << 40))
	require.Equal(t, ImmediateIndexed, indexed.ImmediateKind())
	require.Equal(t, int64(1<<40), seq.GetImmediate(&indexed).ToInt64())
	require.Panics(t, func() { seq.GetImmediate(&Operand{}) })
}

func TestInstructionSequence_assemblyOrder(t *testing.T) {
	b := newSequenceBuilder(
		testBlock{succs: []int{1, 2}, dominator: -1},
		testBlock{preds: []int{0}, dominator: 0, deferred: true},
		testBlock{preds: []int{0}, dominator: 0},
	)
	var aos []int
	for _, blk := range b.seq.AssemblyOrder() {
		aos = append(aos, blk.RPONumber())
	}
	require.Equal(t, []int{0, 2, 1}, aos)
	require.Equal(t, 2, b.seq.InstructionBlockAt(1).AONumber())
}

func TestInstructionSequence_String(t *testing.T) {
	b := newSequenceBuilder(
		testBlock{succs: []int{1}, dominator: -1},
		testBlock{preds: []int{0}, dominator: 0},
	)
	b.seq.opcodeNames = (&mockTarget{}).OpcodeName
	c := b.seq.NextVirtualRegister()
	b.seq.AddConstant(c, NewInt32Constant(42))
	b.start(0)
	d, v := b.def()
	b.seq.SetSourcePosition(d, 3)
	b.jump(1)
	b.end()
	b.start(1)
	b.use(v, c)
	b.ret()
	b.end()

	out := b.seq.String()
	require.Contains(t, out, "CST#0: v0 = 42")
	require.Contains(t, out, "B1: AO#1")
	require.Contains(t, out, "predecessors: B0")
	require.Contains(t, out, "@pos(3)")
	require.Contains(t, out, "-> B1")
}
