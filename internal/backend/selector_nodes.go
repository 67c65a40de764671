package backend

import (
	"fmt"
	"math"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
)

// visitKind classifies how VisitNode handles an opcode.
type visitKind byte

const (
	visitUnknown visitKind = iota
	// visitNothing is for graph artifacts which produce no code.
	visitNothing
	// visitBlockControl is for nodes only ever visited as block control.
	visitBlockControl
	visitCommon
	visitMachine
	// visitUnlowered is for simplified opcodes, which must be gone by now.
	visitUnlowered
)

// visitKindOf classifies op. Every valid opcode has a kind other than
// visitUnknown.
func visitKindOf(op ir.Opcode) visitKind {
	switch op {
	case ir.OpcodeStart, ir.OpcodeEnd, ir.OpcodeLoop, ir.OpcodeMerge, ir.OpcodeBranch, ir.OpcodeSwitch,
		ir.OpcodeIfTrue, ir.OpcodeIfFalse, ir.OpcodeIfValue, ir.OpcodeIfDefault, ir.OpcodeIfSuccess,
		ir.OpcodeEffectPhi, ir.OpcodeFrameState, ir.OpcodeStateValues, ir.OpcodeOptimizedOut:
		return visitNothing
	case ir.OpcodeReturn, ir.OpcodeTailCall, ir.OpcodeDeoptimize, ir.OpcodeThrow,
		ir.OpcodeOsrNormalEntry, ir.OpcodeOsrLoopEntry, ir.OpcodeDead:
		return visitBlockControl
	case ir.OpcodeIfException, ir.OpcodeDeoptimizeIf, ir.OpcodeDeoptimizeUnless,
		ir.OpcodeParameter, ir.OpcodeOsrValue, ir.OpcodeInt32Constant, ir.OpcodeInt64Constant,
		ir.OpcodeFloat32Constant, ir.OpcodeFloat64Constant, ir.OpcodeNumberConstant, ir.OpcodeHeapConstant,
		ir.OpcodeExternalConstant, ir.OpcodePhi, ir.OpcodeSelect, ir.OpcodeProjection, ir.OpcodeCall:
		return visitCommon
	}
	switch {
	case op.IsSimplified():
		return visitUnlowered
	case op.IsMachine():
		return visitMachine
	}
	return visitUnknown
}

// VisitNode selects the instructions of a data node.
func (s *InstructionSelector) VisitNode(n *ir.Node) {
	op := n.Opcode()
	switch visitKindOf(op) {
	case visitNothing:
	case visitBlockControl:
		panic(fmt.Sprintf("BUG: %s scheduled as a data node", n))
	case visitUnlowered:
		panic(fmt.Sprintf("BUG: %s reached instruction selection", n))
	case visitCommon:
		s.visitCommon(n)
	case visitMachine:
		if op != ir.OpcodeStore {
			s.MarkAsRepresentation(s.outputType(n).Rep, n)
		}
		if err := s.target.CheckSupport(n); err != nil {
			s.Fail(err)
			return
		}
		pattern := s.target.Pattern(op)
		if pattern == nil {
			s.Fail(iselapi.Bailoutf("%s is not supported on %s", op, s.target.Name()))
			return
		}
		pattern(s, n)
	default:
		panic(fmt.Sprintf("BUG: unknown opcode %s", op))
	}
}

func (s *InstructionSelector) visitCommon(n *ir.Node) {
	g := s.OperandGenerator()
	switch n.Opcode() {
	case ir.OpcodeParameter:
		index := n.Op().Index()
		typ := s.linkage.GetParameterType(index)
		s.MarkAsRepresentation(typ.Rep, n)
		s.Emit(NewInstructionCode(ArchNop), []Operand{g.DefineAsLocation(n, s.linkage.GetParameterLocation(index), typ.Rep)}, nil, nil)
	case ir.OpcodeOsrValue:
		s.Fail(iselapi.Bailoutf("%s survived OSR deconstruction", n))
	case ir.OpcodeIfException:
		// The exception arrives in the first result register.
		s.MarkAsRepresentation(machine.RepTagged, n)
		loc := linkage.Register(s.target.Convention().IntResults[0])
		s.Emit(NewInstructionCode(ArchNop), []Operand{g.DefineAsLocation(n, loc, machine.RepTagged)}, nil, nil)
	case ir.OpcodeInt32Constant, ir.OpcodeInt64Constant, ir.OpcodeFloat32Constant, ir.OpcodeFloat64Constant,
		ir.OpcodeNumberConstant, ir.OpcodeHeapConstant, ir.OpcodeExternalConstant:
		s.MarkAsRepresentation(s.outputType(n).Rep, n)
		// The register allocator needs a defining instruction for every vreg.
		s.Emit(NewInstructionCode(ArchNop), []Operand{g.DefineAsConstant(n)}, nil, nil)
	case ir.OpcodePhi:
		s.visitPhi(n)
	case ir.OpcodeSelect:
		s.MarkAsRepresentation(n.Op().Representation(), n)
		cond, ifTrue, ifFalse := n.ValueInput(0), n.ValueInput(1), n.ValueInput(2)
		s.Emit(NewInstructionCode(ArchSelect), []Operand{g.DefineSameAsFirst(n)},
			[]Operand{g.UseRegister(ifFalse), g.UseRegister(ifTrue), g.UseRegister(cond)}, nil)
	case ir.OpcodeProjection:
		s.visitProjection(n)
	case ir.OpcodeCall:
		s.VisitCall(n, nil)
	case ir.OpcodeDeoptimizeIf:
		cont := ForDeoptimize(CondNotEqual, n.Op().DeoptimizeKind(), n.Op().DeoptimizeReason(), n.ValueInput(1))
		s.target.VisitWordCompareZero(s, n, n.ValueInput(0), &cont)
	case ir.OpcodeDeoptimizeUnless:
		cont := ForDeoptimize(CondEqual, n.Op().DeoptimizeKind(), n.Op().DeoptimizeReason(), n.ValueInput(1))
		s.target.VisitWordCompareZero(s, n, n.ValueInput(0), &cont)
	default:
		panic("BUG: not a common opcode: " + n.String())
	}
}

func (s *InstructionSelector) visitPhi(n *ir.Node) {
	s.MarkAsRepresentation(n.Op().Representation(), n)
	block := s.sequence.InstructionBlockAt(s.currentBlock.RPONumber())
	phi := NewPhiInstruction(s.GetVirtualRegister(n), n.ValueInputCount())
	for i := 0; i < n.ValueInputCount(); i++ {
		input := n.ValueInput(i)
		s.MarkAsUsed(input)
		phi.SetInput(i, s.GetVirtualRegister(input))
	}
	block.AddPhi(phi)
	s.MarkAsDefined(n)
}

func (s *InstructionSelector) visitProjection(n *ir.Node) {
	g := s.OperandGenerator()
	value := n.InputAt(0)
	switch value.Opcode() {
	case ir.OpcodeInt32AddWithOverflow, ir.OpcodeInt32SubWithOverflow:
		if n.Op().Index() == 0 {
			s.MarkAsRepresentation(machine.RepWord32, n)
			s.Emit(NewInstructionCode(ArchNop), []Operand{g.DefineSameAsFirst(n)}, []Operand{g.Use(value)}, nil)
		} else {
			// The overflow bit is defined by the instruction of value.
			s.MarkAsUsed(value)
		}
	}
	// Call projections are defined by the call.
}

func (s *InstructionSelector) visitControl(b *schedule.BasicBlock) {
	input := b.ControlInput()
	succs := b.Successors()
	switch b.Control() {
	case schedule.BlockNone:
		// The end block has no control.
	case schedule.BlockGoto:
		s.VisitGoto(succs[0])
	case schedule.BlockBranch:
		s.VisitBranch(input, succs[0], succs[1])
	case schedule.BlockSwitch:
		s.VisitSwitch(input, succs)
	case schedule.BlockReturn:
		s.VisitReturn(input)
	case schedule.BlockDeoptimize:
		s.VisitDeoptimize(input)
	case schedule.BlockThrow:
		s.Emit(NewInstructionCode(ArchThrow), nil, nil, nil)
	case schedule.BlockTailCall:
		s.VisitTailCall(input)
	case schedule.BlockCallWithHandler:
		s.VisitCall(input, succs[1])
		s.VisitGoto(succs[0])
	default:
		panic(fmt.Sprintf("BUG: unknown control %s of %s", b.Control(), b))
	}
}

// VisitGoto emits a jump to target.
func (s *InstructionSelector) VisitGoto(target *schedule.BasicBlock) {
	g := s.OperandGenerator()
	s.Emit(NewInstructionCode(ArchJmp), nil, []Operand{g.Label(target)}, nil)
}

// VisitBranch emits the compare-and-branch of branch.
func (s *InstructionSelector) VisitBranch(branch *ir.Node, ifTrue, ifFalse *schedule.BasicBlock) {
	cont := ForBranch(CondNotEqual, ifTrue, ifFalse)
	s.target.VisitWordCompareZero(s, branch, branch.ValueInput(0), &cont)
}

// VisitReturn moves the return values to their ABI locations and returns.
func (s *InstructionSelector) VisitReturn(ret *ir.Node) {
	g := s.OperandGenerator()
	inputs := make([]Operand, 0, 1+ret.ValueInputCount())
	// Stack parameters are popped by the caller.
	inputs = append(inputs, g.TempImmediate(0))
	for i := 0; i < ret.ValueInputCount(); i++ {
		typ := s.linkage.GetReturnType(i)
		inputs = append(inputs, g.UseLocation(ret.ValueInput(i), s.linkage.GetReturnLocation(i), typ.Rep))
	}
	s.Emit(NewInstructionCode(ArchRet), nil, inputs, nil)
}

// VisitDeoptimize emits an unconditional deoptimization exit.
func (s *InstructionSelector) VisitDeoptimize(n *ir.Node) {
	s.EmitDeoptimize(NewInstructionCode(ArchDeoptimize), nil, nil, n.Op().DeoptimizeKind(), n.Op().DeoptimizeReason(), n.ValueInput(0))
}

// switchCase is a case of a Switch with its target block.
type switchCase struct {
	value int32
	block *schedule.BasicBlock
}

// VisitSwitch emits a jump table or a binary search over the cases. succs
// lists the case blocks by increasing value, then the default block.
func (s *InstructionSelector) VisitSwitch(sw *ir.Node, succs []*schedule.BasicBlock) {
	g := s.OperandGenerator()
	defaultBlock := succs[len(succs)-1]
	cases := make([]switchCase, len(succs)-1)
	for i, b := range succs[:len(succs)-1] {
		cases[i] = switchCase{value: b.StartNode().Op().CaseValue(), block: b}
	}
	if len(cases) == 0 {
		s.VisitGoto(defaultBlock)
		return
	}
	value := g.UseRegister(sw.ValueInput(0))

	minValue, maxValue := cases[0].value, cases[len(cases)-1].value
	valueRange := int64(maxValue) - int64(minValue) + 1
	if s.opts.EnableSwitchJumpTable && useJumpTable(len(cases), valueRange, minValue) {
		inputs := make([]Operand, 0, 3+valueRange)
		inputs = append(inputs, value, g.TempImmediate(minValue), g.Label(defaultBlock))
		next := 0
		for v := int64(minValue); v <= int64(maxValue); v++ {
			if cases[next].value == int32(v) {
				inputs = append(inputs, g.Label(cases[next].block))
				next++
			} else {
				inputs = append(inputs, g.Label(defaultBlock))
			}
		}
		s.Emit(NewInstructionCode(ArchTableSwitch), nil, inputs, nil)
		return
	}

	inputs := make([]Operand, 0, 2+2*len(cases))
	inputs = append(inputs, value, g.Label(defaultBlock))
	for _, c := range cases {
		inputs = append(inputs, g.TempImmediate(c.value), g.Label(c.block))
	}
	s.Emit(NewInstructionCode(ArchBinarySearchSwitch), nil, inputs, nil)
}

// maxTableSwitchValueRange bounds the size of jump tables.
const maxTableSwitchValueRange = 2 << 16

// useJumpTable weighs the space and time of a jump table against a binary
// search, time counting three times as much.
func useJumpTable(caseCount int, valueRange int64, minValue int32) bool {
	tableSpaceCost := 4 + valueRange
	tableTimeCost := int64(3)
	lookupSpaceCost := int64(3 + 2*caseCount)
	lookupTimeCost := int64(caseCount)
	return caseCount > 4 &&
		tableSpaceCost+3*tableTimeCost <= lookupSpaceCost+3*lookupTimeCost &&
		minValue > math.MinInt32 &&
		valueRange <= maxTableSwitchValueRange
}
