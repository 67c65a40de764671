package backend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
	"github.com/tetratelabs/isel/internal/zone"
)

const (
	mockAdd = ArchOpcodeTargetBase + iota
	mockSub
	mockMul
	mockCmp
	mockTest
	mockPush
	mockLoad
	mockStore
)

var mockOpcodeNames = map[ArchOpcode]string{
	mockAdd:   "add",
	mockSub:   "sub",
	mockMul:   "mul",
	mockCmp:   "cmp",
	mockTest:  "test",
	mockPush:  "push",
	mockLoad:  "load",
	mockStore: "store",
}

var mockConvention = &linkage.Convention{
	IntArgs:            []int{7, 6, 2, 1},
	FloatArgs:          []int{0, 1},
	IntResults:         []int{0},
	FloatResults:       []int{0},
	JSFunctionRegister: 7,
}

// mockTarget selects a handful of 32-bit integer operations with two-operand
// instructions taking either a register or an immediate on the right.
type mockTarget struct {
	prepared [][]PushParameter
}

func (m *mockTarget) Name() string { return "mock" }

func (m *mockTarget) OpcodeName(o ArchOpcode) string {
	if name, ok := mockOpcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("mock%d", o)
}

func (m *mockTarget) Convention() *linkage.Convention { return mockConvention }

func (m *mockTarget) Registers() *RegisterConfig {
	return &RegisterConfig{
		GeneralNames:       []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7"},
		FPNames:            []string{"f0", "f1", "f2", "f3"},
		AllocatableGeneral: []int{0, 1, 2, 3, 6, 7},
		AllocatableFP:      []int{0, 1, 2},
		ScratchGeneral:     4,
		ScratchFP:          3,
		FixupGeneral:       []int{5},
	}
}

func (m *mockTarget) CheckSupport(*ir.Node) error { return nil }

func (m *mockTarget) Pattern(op ir.Opcode) Pattern {
	switch op {
	case ir.OpcodeInt32Add:
		return mockBinop(mockAdd)
	case ir.OpcodeInt32Sub:
		return mockBinop(mockSub)
	case ir.OpcodeInt32Mul:
		return mockBinop(mockMul)
	case ir.OpcodeWord32Equal:
		return func(s *InstructionSelector, n *ir.Node) {
			cont := ForSet(CondEqual, n)
			mockCompare(s, n, &cont)
		}
	case ir.OpcodeInt32LessThan:
		return func(s *InstructionSelector, n *ir.Node) {
			cont := ForSet(CondSignedLessThan, n)
			mockCompare(s, n, &cont)
		}
	case ir.OpcodeLoad:
		return func(s *InstructionSelector, n *ir.Node) {
			g := s.OperandGenerator()
			s.Emit(NewInstructionCode(mockLoad), []Operand{g.DefineAsRegister(n)},
				[]Operand{g.UseRegister(n.ValueInput(0)), g.UseRegister(n.ValueInput(1))}, nil)
		}
	case ir.OpcodeStore:
		return func(s *InstructionSelector, n *ir.Node) {
			g := s.OperandGenerator()
			s.Emit(NewInstructionCode(mockStore), nil,
				[]Operand{g.UseRegister(n.ValueInput(0)), g.UseRegister(n.ValueInput(1)), g.UseRegister(n.ValueInput(2))}, nil)
		}
	}
	return nil
}

// mockRight uses the right operand as an immediate when it is a constant.
func mockRight(s *InstructionSelector, n *ir.Node) Operand {
	g := s.OperandGenerator()
	if _, ok := ir.Int32Value(n); ok {
		return g.UseImmediate(n)
	}
	return g.UseRegister(n)
}

func mockBinop(opcode ArchOpcode) Pattern {
	return func(s *InstructionSelector, n *ir.Node) {
		g := s.OperandGenerator()
		m := ir.MatchBinop(n)
		s.Emit(NewInstructionCode(opcode), []Operand{g.DefineAsRegister(n)},
			[]Operand{g.UseRegister(m.Left), mockRight(s, m.Right)}, nil)
	}
}

func mockCompare(s *InstructionSelector, n *ir.Node, cont *FlagsContinuation) {
	mockFlagsBinop(s, n, mockCmp, cont)
}

// mockFlagsBinop emits opcode for its flags only.
func mockFlagsBinop(s *InstructionSelector, n *ir.Node, opcode ArchOpcode, cont *FlagsContinuation) {
	g := s.OperandGenerator()
	m := ir.MatchBinop(n)
	s.EmitWithContinuation(NewInstructionCode(opcode), nil,
		[]Operand{g.UseRegister(m.Left), mockRight(s, m.Right)}, cont)
}

func (m *mockTarget) VisitWordCompareZero(s *InstructionSelector, user, value *ir.Node, cont *FlagsContinuation) {
	g := s.OperandGenerator()
	// Strip "x == 0" by negating the continuation.
	for value.Opcode() == ir.OpcodeWord32Equal && s.CanCover(user, value) {
		mb := ir.MatchBinop(value)
		if !ir.IsInt32Constant(mb.Right, 0) {
			break
		}
		user, value = value, mb.Left
		cont.Negate()
	}
	if s.CanCover(user, value) {
		switch value.Opcode() {
		case ir.OpcodeWord32Equal:
			cont.OverwriteAndNegateIfEqual(CondEqual)
			mockCompare(s, value, cont)
			return
		case ir.OpcodeInt32LessThan:
			cont.OverwriteAndNegateIfEqual(CondSignedLessThan)
			mockCompare(s, value, cont)
			return
		case ir.OpcodeInt32Sub:
			mockFlagsBinop(s, value, mockSub, cont)
			return
		}
	}
	s.EmitWithContinuation(NewInstructionCode(mockCmp), nil, []Operand{g.UseRegister(value), g.TempImmediate(0)}, cont)
}

func (m *mockTarget) EmitPrepareArguments(s *InstructionSelector, args []PushParameter, d *linkage.CallDescriptor, call *ir.Node) {
	m.prepared = append(m.prepared, args)
	g := s.OperandGenerator()
	for i := len(args) - 1; i >= 0; i-- {
		s.Emit(NewInstructionCode(mockPush), nil, []Operand{g.UseAny(args[i].Node)}, nil)
	}
}

func (m *mockTarget) GenerateCode(in *CodeGenInput) (*GeneratedCode, error) {
	return &GeneratedCode{Listing: in.Sequence.String()}, nil
}

func newTestGraph(params int) (*ir.Graph, *ir.Node, []*ir.Node) {
	g := ir.NewGraph(zone.New("backend"))
	start := g.NewNode(ir.Start(params))
	g.SetStart(start)
	ps := make([]*ir.Node, params)
	for i := range ps {
		ps[i] = g.NewNode(ir.Parameter(i), start)
	}
	return g, start, ps
}

func int32Signature(params, returns int) *linkage.Signature {
	sig := &linkage.Signature{}
	for i := 0; i < params; i++ {
		sig.Params = append(sig.Params, machine.Int32)
	}
	for i := 0; i < returns; i++ {
		sig.Returns = append(sig.Returns, machine.Int32)
	}
	return sig
}

// selectorFor returns a selector over g compiled with sig, instructions not
// yet selected.
func selectorFor(t *testing.T, g *ir.Graph, sig *linkage.Signature, opts SelectorOptions) (*InstructionSelector, *mockTarget) {
	sched, err := schedule.ComputeSchedule(g, zone.New("schedule"), nil)
	require.NoError(t, err)
	target := &mockTarget{}
	seq := NewInstructionSequence(zone.New("sequence"), sched, target.OpcodeName)
	l := linkage.New(mockConvention.NewCallDescriptor(linkage.CallCodeObject, sig, 0, "test"))
	return NewInstructionSelector(target, l, seq, sched, NewFrame(0), opts, nil), target
}

// selectAll selects g and verifies the resulting sequence.
func selectAll(t *testing.T, g *ir.Graph, sig *linkage.Signature, opts SelectorOptions) (*InstructionSequence, *InstructionSelector) {
	s, _ := selectorFor(t, g, sig, opts)
	require.NoError(t, s.SelectInstructions())
	seq := s.Sequence()
	require.NoError(t, Verify(seq), seq.String())
	return seq, s
}

// instructionsOf returns the instructions with the given opcode.
func instructionsOf(seq *InstructionSequence, o ArchOpcode) (ret []*Instruction) {
	for _, instr := range seq.Instructions() {
		if instr.ArchOpcode() == o {
			ret = append(ret, instr)
		}
	}
	return
}

// definitionOf returns the instruction defining vreg.
func definitionOf(seq *InstructionSequence, vreg VReg) *Instruction {
	for _, instr := range seq.Instructions() {
		for i := 0; i < instr.OutputCount(); i++ {
			if out := instr.OutputAt(i); out.HasVirtualRegister() && out.VirtualRegister() == vreg {
				return instr
			}
		}
	}
	return nil
}
