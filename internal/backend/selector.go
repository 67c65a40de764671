package backend

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
)

// SelectorOptions tune the InstructionSelector.
type SelectorOptions struct {
	// AllSourcePositions attaches source positions to every node, not only calls.
	AllSourcePositions bool
	// EnableSwitchJumpTable lets dense switches become jump tables.
	EnableSwitchJumpTable bool
	// MaxVirtualRegisters bounds the virtual registers of the function.
	// Non-positive means no bound.
	MaxVirtualRegisters int
}

// InstructionSelector lowers a scheduled graph into an InstructionSequence.
//
// Blocks are visited in postorder and the nodes of a block backwards, so an
// operation is visited after all of its uses and can tell whether covering
// its inputs is sound. Instructions of a node are emitted forwards and then
// reversed, which leaves the whole selector list in reverse program order;
// the final pass walks every block backwards into the sequence.
type InstructionSelector struct {
	target   Target
	linkage  *linkage.Linkage
	sequence *InstructionSequence
	schedule *schedule.Schedule
	frame    *Frame
	opts     SelectorOptions
	tracer   *iselapi.Tracer

	currentBlock *schedule.BasicBlock
	instructions []*Instruction
	// Indexed by node id.
	defined, used []bool
	effectLevel   []int
	vregs         []VReg
	err           error
}

// NewInstructionSelector returns a selector filling sequence.
func NewInstructionSelector(target Target, l *linkage.Linkage, sequence *InstructionSequence, sched *schedule.Schedule,
	frame *Frame, opts SelectorOptions, tracer *iselapi.Tracer,
) *InstructionSelector {
	nodeCount := sched.Graph().NodeCount()
	s := &InstructionSelector{
		target:      target,
		linkage:     l,
		sequence:    sequence,
		schedule:    sched,
		frame:       frame,
		opts:        opts,
		tracer:      tracer,
		defined:     make([]bool, nodeCount),
		used:        make([]bool, nodeCount),
		effectLevel: make([]int, nodeCount),
		vregs:       make([]VReg, nodeCount),
	}
	for i := range s.vregs {
		s.vregs[i] = VRegInvalid
	}
	return s
}

// Target returns the target being selected for.
func (s *InstructionSelector) Target() Target { return s.target }

// Sequence returns the sequence being filled.
func (s *InstructionSelector) Sequence() *InstructionSequence { return s.sequence }

// Linkage returns the linkage of the function.
func (s *InstructionSelector) Linkage() *linkage.Linkage { return s.linkage }

// Frame returns the frame of the function.
func (s *InstructionSelector) Frame() *Frame { return s.frame }

// SelectInstructions fills the sequence. It returns an error wrapping
// iselapi.ErrBailout when the function exceeds a resource limit.
func (s *InstructionSelector) SelectInstructions() error {
	rpo := s.schedule.RPO()

	// Phis of loop headers are visited before the back edge inputs are, so
	// mark those inputs used up front.
	for _, b := range rpo {
		if !b.IsLoopHeader() {
			continue
		}
		for _, n := range b.Nodes() {
			if n.Opcode() != ir.OpcodePhi {
				continue
			}
			for i := 0; i < n.ValueInputCount(); i++ {
				s.MarkAsUsed(n.ValueInput(i))
			}
		}
	}

	for i := len(rpo) - 1; i >= 0; i-- {
		s.visitBlock(rpo[i])
		if s.err != nil {
			return s.err
		}
	}

	for _, b := range rpo {
		ib := s.sequence.InstructionBlockAt(b.RPONumber())
		start, end := ib.codeStart, ib.codeEnd
		s.sequence.StartBlock(b.RPONumber())
		for start > end {
			start--
			s.sequence.AddInstruction(b.RPONumber(), s.instructions[start])
		}
		s.sequence.EndBlock(b.RPONumber())
	}

	if iselapi.PrintSelectedInstructions {
		fmt.Println(s.sequence)
	}
	s.tracer.Printf("selected %d instructions, %d virtual registers", s.sequence.InstructionCount(), s.sequence.VirtualRegisterCount())
	s.tracer.Section("instructions", s.sequence)
	return nil
}

func (s *InstructionSelector) visitBlock(b *schedule.BasicBlock) {
	s.currentBlock = b
	blockEnd := len(s.instructions)

	// Loads may only be covered by users with the same effect level.
	level := 0
	for _, n := range b.Nodes() {
		s.effectLevel[n.ID()] = level
		switch n.Opcode() {
		case ir.OpcodeStore, ir.OpcodeCall:
			level++
		}
	}
	if c := b.ControlInput(); c != nil {
		s.effectLevel[c.ID()] = level
	}

	finish := func(n *ir.Node, start int) {
		if len(s.instructions) == start {
			return
		}
		// Reversing leaves the first instruction of n at the end of the list.
		slices.Reverse(s.instructions[start:])
		if n == nil {
			return
		}
		if pos := n.SourcePosition(); pos.IsKnown() && (s.opts.AllSourcePositions || isCallOpcode(n.Opcode())) {
			s.sequence.SetSourcePosition(s.instructions[len(s.instructions)-1], pos)
		}
	}

	start := len(s.instructions)
	s.visitControl(b)
	finish(b.ControlInput(), start)

	nodes := b.Nodes()
	for i := len(nodes) - 1; i >= 0 && s.err == nil; i-- {
		n := nodes[i]
		if !s.IsUsed(n) || s.IsDefined(n) {
			continue
		}
		start := len(s.instructions)
		s.VisitNode(n)
		finish(n, start)
	}
	if s.err != nil {
		return
	}

	if len(s.instructions) == blockEnd {
		s.Emit(NewInstructionCode(ArchNop), nil, nil, nil)
	}

	ib := s.sequence.InstructionBlockAt(b.RPONumber())
	ib.codeStart, ib.codeEnd = len(s.instructions), blockEnd
	if iselapi.SelectorValidationEnabled && ib.codeStart < ib.codeEnd {
		panic(fmt.Sprintf("BUG: %s has code start %d before code end %d", ib, ib.codeStart, ib.codeEnd))
	}
}

func isCallOpcode(op ir.Opcode) bool {
	return op == ir.OpcodeCall || op == ir.OpcodeTailCall
}

// Fail aborts selection with err, typically wrapping iselapi.ErrBailout.
// The first error wins.
func (s *InstructionSelector) Fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Emit appends an instruction to the current node.
func (s *InstructionSelector) Emit(code InstructionCode, outputs, inputs, temps []Operand) *Instruction {
	instr := NewInstruction(s.sequence.InstructionPool(), code, outputs, inputs, temps)
	s.instructions = append(s.instructions, instr)
	return instr
}

// EmitWithContinuation emits an instruction whose flags feed cont.
func (s *InstructionSelector) EmitWithContinuation(code InstructionCode, outputs, inputs []Operand, cont *FlagsContinuation) *Instruction {
	g := s.OperandGenerator()
	switch {
	case cont.IsBranch():
		code = cont.Encode(code)
		inputs = append(inputs, g.Label(cont.TrueBlock()), g.Label(cont.FalseBlock()))
	case cont.IsDeoptimize():
		// misc records where the frame state starts.
		code = cont.Encode(code).WithMisc(len(inputs))
		return s.EmitDeoptimize(code, outputs, inputs, cont.DeoptimizeKind(), cont.DeoptimizeReason(), cont.FrameState())
	case cont.IsSet():
		code = cont.Encode(code)
		s.MarkAsRepresentation(machine.RepWord32, cont.Result())
		outputs = append(outputs, g.DefineAsRegister(cont.Result()))
	}
	return s.Emit(code, outputs, inputs, nil)
}

// EmitDeoptimize emits an instruction followed by the state id and the
// encoded values of frameState.
func (s *InstructionSelector) EmitDeoptimize(code InstructionCode, outputs, inputs []Operand, kind ir.DeoptimizeKind, reason ir.DeoptimizeReason, frameState *ir.Node) *Instruction {
	g := s.OperandGenerator()
	d := s.frameStateDescriptor(frameState)
	stateID := s.sequence.AddDeoptimizationEntry(d, kind, reason)
	args := make([]Operand, 0, len(inputs)+1+d.TotalSize())
	args = append(args, inputs...)
	args = append(args, g.TempImmediate(int32(stateID)))
	args = s.addFrameStateInputs(d, frameState, args, frameStateInputAny)
	s.frame.MarkHasDeoptimizations()
	return s.Emit(code, outputs, args, nil)
}

// GetVirtualRegister returns the virtual register of n, allocating it on
// first request.
func (s *InstructionSelector) GetVirtualRegister(n *ir.Node) VReg {
	if v := s.vregs[n.ID()]; v != VRegInvalid {
		return v
	}
	v := s.sequence.NextVirtualRegister()
	if limit := s.opts.MaxVirtualRegisters; limit > 0 && int(v) >= limit {
		s.Fail(iselapi.Bailoutf("too many virtual registers (limit %d)", limit))
	}
	s.vregs[n.ID()] = v
	return v
}

// IsDefined returns true if an instruction defining n was emitted.
func (s *InstructionSelector) IsDefined(n *ir.Node) bool { return s.defined[n.ID()] }

// MarkAsDefined records that n got its defining instruction.
func (s *InstructionSelector) MarkAsDefined(n *ir.Node) { s.defined[n.ID()] = true }

// IsUsed returns true if n must be visited: it is used by an emitted
// instruction or it has side effects.
func (s *InstructionSelector) IsUsed(n *ir.Node) bool {
	if !isEliminatable(n.Opcode()) {
		return true
	}
	return s.used[n.ID()]
}

// MarkAsUsed records that an emitted instruction reads n.
func (s *InstructionSelector) MarkAsUsed(n *ir.Node) { s.used[n.ID()] = true }

func isEliminatable(op ir.Opcode) bool {
	switch op {
	case ir.OpcodeParameter, ir.OpcodeOsrValue, ir.OpcodePhi, ir.OpcodeLoad:
		return true
	}
	return op.IsPure()
}

// MarkAsRepresentation records the representation of the value of n.
func (s *InstructionSelector) MarkAsRepresentation(rep machine.Representation, n *ir.Node) {
	s.sequence.MarkAsRepresentation(rep, s.GetVirtualRegister(n))
}

// CurrentBlock returns the block being visited.
func (s *InstructionSelector) CurrentBlock() *schedule.BasicBlock { return s.currentBlock }

// CanCover returns true if user may fold node into its own instructions:
// user is the only user of node and both are in the same block.
func (s *InstructionSelector) CanCover(user, node *ir.Node) bool {
	if s.schedule.BlockOf(node) != s.currentBlock {
		return false
	}
	if node.UseCount() != 1 {
		return false
	}
	use := node.Uses()[0]
	return use.User == user && user.IsValueEdge(use.Index)
}

// CanCoverLoad is CanCover for effectful nodes such as loads: no store or
// call may sit between node and user.
func (s *InstructionSelector) CanCoverLoad(user, node *ir.Node) bool {
	if !s.CanCover(user, node) {
		return false
	}
	return s.effectLevel[node.ID()] == s.effectLevel[user.ID()]
}

// IsOnlyUserOfNodeInSameBlock is CanCover without the single use
// requirement on the other users: every other use of node lives elsewhere
// or is user itself.
func (s *InstructionSelector) IsOnlyUserOfNodeInSameBlock(user, node *ir.Node) bool {
	if s.schedule.BlockOf(node) != s.currentBlock {
		return false
	}
	for _, u := range node.Uses() {
		if u.User != user && s.schedule.BlockOf(u.User) == s.currentBlock {
			return false
		}
	}
	return true
}

// outputType returns the machine type of the value of n.
func (s *InstructionSelector) outputType(n *ir.Node) machine.Type {
	switch op := n.Opcode(); op {
	case ir.OpcodeParameter:
		return s.linkage.GetParameterType(n.Op().Index())
	case ir.OpcodePhi:
		return typeOfRepresentation(n.Op().Representation())
	case ir.OpcodeSelect:
		return typeOfRepresentation(n.Op().Representation())
	case ir.OpcodeLoad:
		return n.Op().MachineType()
	case ir.OpcodeProjection:
		input := n.InputAt(0)
		switch input.Opcode() {
		case ir.OpcodeCall:
			return input.Op().CallDescriptor().GetReturnType(n.Op().Index())
		case ir.OpcodeInt32AddWithOverflow, ir.OpcodeInt32SubWithOverflow:
			if n.Op().Index() == 1 {
				return machine.Bool
			}
			return machine.Int32
		}
		return machine.AnyTagged
	case ir.OpcodeCall:
		if d := n.Op().CallDescriptor(); d.ReturnCount() > 0 {
			return d.GetReturnType(0)
		}
		return machine.None
	case ir.OpcodeNumberConstant:
		return machine.Float64
	default:
		if t := op.MachineOutput(); t.Rep != machine.RepNone {
			return t
		}
		return machine.AnyTagged
	}
}

func typeOfRepresentation(rep machine.Representation) machine.Type {
	switch rep {
	case machine.RepBit:
		return machine.Bool
	case machine.RepWord8:
		return machine.Int8
	case machine.RepWord16:
		return machine.Int16
	case machine.RepWord32:
		return machine.Int32
	case machine.RepWord64:
		return machine.Int64
	case machine.RepFloat32:
		return machine.Float32
	case machine.RepFloat64:
		return machine.Float64
	case machine.RepTagged:
		return machine.AnyTagged
	}
	return machine.None
}
