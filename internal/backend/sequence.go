package backend

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
	"github.com/tetratelabs/isel/internal/zone"
)

// PhiInstruction is a phi of an InstructionBlock. Its i-th input flows in
// from the i-th predecessor.
type PhiInstruction struct {
	vreg   VReg
	inputs []VReg
}

// NewPhiInstruction returns a phi defining vreg with inputCount inputs.
func NewPhiInstruction(vreg VReg, inputCount int) *PhiInstruction {
	p := &PhiInstruction{vreg: vreg, inputs: make([]VReg, inputCount)}
	for i := range p.inputs {
		p.inputs[i] = VRegInvalid
	}
	return p
}

// VirtualRegister returns the defined virtual register.
func (p *PhiInstruction) VirtualRegister() VReg { return p.vreg }

// Inputs returns the input virtual registers in predecessor order.
func (p *PhiInstruction) Inputs() []VReg { return p.inputs }

// SetInput sets the input flowing in from the i-th predecessor.
func (p *PhiInstruction) SetInput(i int, vreg VReg) { p.inputs[i] = vreg }

// String implements fmt.Stringer.
func (p *PhiInstruction) String() string {
	return fmt.Sprintf("phi %s = %v", p.vreg, p.inputs)
}

// InstructionBlock is the instruction-level image of a schedule.BasicBlock.
// It refers to other blocks by RPO number only, so it outlives the graph zone.
type InstructionBlock struct {
	rpo, ao int
	preds   []int
	succs   []int
	// loopHeader is the RPO number of the innermost enclosing loop header, -1 if none.
	loopHeader, loopEnd int
	dominator           int
	isLoopHeader        bool
	deferred            bool
	// codeStart and codeEnd delimit the block in the sequence. During
	// selection they index the reversed per-selector list instead.
	codeStart, codeEnd int
	phis               []*PhiInstruction
	needsFrame         bool
	// mustConstructFrame and mustDeconstructFrame are set by frame elision.
	mustConstructFrame, mustDeconstructFrame bool
}

// RPONumber returns the reverse post order number.
func (b *InstructionBlock) RPONumber() int { return b.rpo }

// AONumber returns the position in assembly order.
func (b *InstructionBlock) AONumber() int { return b.ao }

// Predecessors returns the RPO numbers of the predecessors.
func (b *InstructionBlock) Predecessors() []int { return b.preds }

// Successors returns the RPO numbers of the successors.
func (b *InstructionBlock) Successors() []int { return b.succs }

// PredecessorIndexOf returns the index of rpo in the predecessors, or -1.
func (b *InstructionBlock) PredecessorIndexOf(rpo int) int {
	for i, p := range b.preds {
		if p == rpo {
			return i
		}
	}
	return -1
}

// IsLoopHeader returns true if the block heads a loop.
func (b *InstructionBlock) IsLoopHeader() bool { return b.isLoopHeader }

// LoopHeader returns the RPO number of the innermost loop containing the
// block, -1 if there is none. A loop header is its own loop header.
func (b *InstructionBlock) LoopHeader() int { return b.loopHeader }

// LoopEnd returns the RPO number one past the last block of the loop headed
// by this block.
func (b *InstructionBlock) LoopEnd() int {
	if !b.isLoopHeader {
		panic(fmt.Sprintf("BUG: B%d is not a loop header", b.rpo))
	}
	return b.loopEnd
}

// Dominator returns the RPO number of the immediate dominator, -1 for the
// start block.
func (b *InstructionBlock) Dominator() int { return b.dominator }

// IsDeferred returns true for blocks laid out after the hot code.
func (b *InstructionBlock) IsDeferred() bool { return b.deferred }

// CodeStart returns the index of the first instruction.
func (b *InstructionBlock) CodeStart() int { return b.codeStart }

// CodeEnd returns the index one past the last instruction.
func (b *InstructionBlock) CodeEnd() int { return b.codeEnd }

// LastInstructionIndex returns the index of the last instruction.
func (b *InstructionBlock) LastInstructionIndex() int { return b.codeEnd - 1 }

// Phis returns the phis of the block.
func (b *InstructionBlock) Phis() []*PhiInstruction { return b.phis }

// AddPhi appends a phi.
func (b *InstructionBlock) AddPhi(p *PhiInstruction) {
	if len(p.inputs) != len(b.preds) {
		panic(fmt.Sprintf("BUG: phi %s with %d inputs in B%d with %d predecessors", p.vreg, len(p.inputs), b.rpo, len(b.preds)))
	}
	b.phis = append(b.phis, p)
}

// NeedsFrame returns true if the block runs inside a constructed frame.
func (b *InstructionBlock) NeedsFrame() bool { return b.needsFrame }

// MarkNeedsFrame records that the block runs inside a constructed frame.
func (b *InstructionBlock) MarkNeedsFrame() { b.needsFrame = true }

// MustConstructFrame returns true if the frame is built on entry to the block.
func (b *InstructionBlock) MustConstructFrame() bool { return b.mustConstructFrame }

// MustDeconstructFrame returns true if the frame is torn down at the end of the block.
func (b *InstructionBlock) MustDeconstructFrame() bool { return b.mustDeconstructFrame }

// String implements fmt.Stringer.
func (b *InstructionBlock) String() string { return fmt.Sprintf("B%d", b.rpo) }

// InstructionSequence is the output of instruction selection and the unit of
// work of the register allocator and the code generator.
type InstructionSequence struct {
	instructionPool *zone.Pool[Instruction]
	instructions    []*Instruction
	blocks          []*InstructionBlock
	// assemblyOrder lists the blocks with the deferred ones moved to the end.
	assemblyOrder   []*InstructionBlock
	nextVReg        VReg
	representations []machine.Representation
	constants       map[VReg]Constant
	immediates      []Constant
	deoptEntries    []DeoptimizationEntry
	sourcePositions map[*Instruction]ir.SourcePosition
	opcodeNames     func(ArchOpcode) string
}

// NewInstructionSequence returns an empty sequence over the blocks of sched.
// Everything it allocates lives in z, so the schedule and the graph may be
// released once selection is done. names formats target opcodes.
func NewInstructionSequence(z *zone.Zone, sched *schedule.Schedule, names func(ArchOpcode) string) *InstructionSequence {
	seq := &InstructionSequence{
		instructionPool: zone.NewPool[Instruction](z, resetInstruction),
		constants:       map[VReg]Constant{},
		sourcePositions: map[*Instruction]ir.SourcePosition{},
		opcodeNames:     names,
	}
	seq.blocks = instructionBlocksFromSchedule(sched)
	seq.computeAssemblyOrder()
	return seq
}

func instructionBlocksFromSchedule(sched *schedule.Schedule) []*InstructionBlock {
	rpo := sched.RPO()
	blocks := make([]*InstructionBlock, len(rpo))
	for i, b := range rpo {
		ib := &InstructionBlock{
			rpo:        b.RPONumber(),
			ao:         -1,
			loopHeader: -1,
			loopEnd:    -1,
			dominator:  -1,
			deferred:   b.IsDeferred(),
			codeStart:  -1,
			codeEnd:    -1,
		}
		for _, p := range b.Predecessors() {
			ib.preds = append(ib.preds, p.RPONumber())
		}
		for _, s := range b.Successors() {
			ib.succs = append(ib.succs, s.RPONumber())
		}
		if b.IsLoopHeader() {
			ib.isLoopHeader = true
			ib.loopEnd = b.LoopEnd()
		}
		if h := b.LoopHeader(); h != nil {
			ib.loopHeader = h.RPONumber()
		}
		if d := b.Dominator(); d != nil {
			ib.dominator = d.RPONumber()
		}
		blocks[i] = ib
	}
	return blocks
}

func (s *InstructionSequence) computeAssemblyOrder() {
	s.assemblyOrder = s.assemblyOrder[:0]
	for _, deferred := range []bool{false, true} {
		for _, b := range s.blocks {
			if b.deferred == deferred {
				b.ao = len(s.assemblyOrder)
				s.assemblyOrder = append(s.assemblyOrder, b)
			}
		}
	}
}

// InstructionPool returns the pool instructions of this sequence come from.
func (s *InstructionSequence) InstructionPool() *zone.Pool[Instruction] { return s.instructionPool }

// NextVirtualRegister allocates a fresh virtual register.
func (s *InstructionSequence) NextVirtualRegister() VReg {
	v := s.nextVReg
	s.nextVReg++
	return v
}

// VirtualRegisterCount returns the number of virtual registers allocated so far.
func (s *InstructionSequence) VirtualRegisterCount() int { return int(s.nextVReg) }

// MarkAsRepresentation records the representation of vreg. Sub-word integer
// representations are widened to word32. A vreg keeps its first
// representation.
func (s *InstructionSequence) MarkAsRepresentation(rep machine.Representation, vreg VReg) {
	switch rep {
	case machine.RepBit, machine.RepWord8, machine.RepWord16:
		rep = machine.RepWord32
	case machine.RepNone:
		panic(fmt.Sprintf("BUG: %s marked with no representation", vreg))
	}
	for int(vreg) >= len(s.representations) {
		s.representations = append(s.representations, machine.RepNone)
	}
	if prev := s.representations[vreg]; prev != machine.RepNone && prev != rep {
		panic(fmt.Sprintf("BUG: %s marked %s but was %s", vreg, rep, prev))
	}
	s.representations[vreg] = rep
}

// GetRepresentation returns the representation of vreg. Unmarked virtual
// registers are pointer-sized words.
func (s *InstructionSequence) GetRepresentation(vreg VReg) machine.Representation {
	if int(vreg) < len(s.representations) {
		if rep := s.representations[vreg]; rep != machine.RepNone {
			return rep
		}
	}
	return machine.RepWord64
}

// IsFP returns true if vreg lives in a floating point register.
func (s *InstructionSequence) IsFP(vreg VReg) bool {
	return s.GetRepresentation(vreg).IsFloatingPoint()
}

// IsReference returns true if vreg holds a tagged value the garbage collector
// must see.
func (s *InstructionSequence) IsReference(vreg VReg) bool {
	return s.GetRepresentation(vreg) == machine.RepTagged
}

// AddConstant binds vreg to a constant.
func (s *InstructionSequence) AddConstant(vreg VReg, c Constant) {
	if _, ok := s.constants[vreg]; ok {
		panic(fmt.Sprintf("BUG: constant %s defined twice", vreg))
	}
	s.constants[vreg] = c
}

// IsConstant returns true if vreg is bound to a constant.
func (s *InstructionSequence) IsConstant(vreg VReg) bool {
	_, ok := s.constants[vreg]
	return ok
}

// GetConstant returns the constant bound to vreg.
func (s *InstructionSequence) GetConstant(vreg VReg) Constant {
	c, ok := s.constants[vreg]
	if !ok {
		panic(fmt.Sprintf("BUG: %s is not a constant", vreg))
	}
	return c
}

// AddImmediate returns an immediate operand for c: inline when c is an int32,
// indexed into the immediates table otherwise.
func (s *InstructionSequence) AddImmediate(c Constant) Operand {
	if c.Kind() == ConstantInt32 {
		return NewImmediate(c.ToInt32())
	}
	s.immediates = append(s.immediates, c)
	return NewIndexedImmediate(len(s.immediates) - 1)
}

// GetImmediate returns the value of an immediate operand.
func (s *InstructionSequence) GetImmediate(op *Operand) Constant {
	if !op.IsImmediate() {
		panic("BUG: not an immediate: " + op.String())
	}
	if op.ImmediateKind() == ImmediateInline {
		return NewInt32Constant(op.InlineValue())
	}
	return s.immediates[op.ImmediateIndex()]
}

// AddDeoptimizationEntry registers a deoptimization exit and returns its state id.
func (s *InstructionSequence) AddDeoptimizationEntry(d *FrameStateDescriptor, kind ir.DeoptimizeKind, reason ir.DeoptimizeReason) int {
	s.deoptEntries = append(s.deoptEntries, DeoptimizationEntry{Descriptor: d, Kind: kind, Reason: reason})
	return len(s.deoptEntries) - 1
}

// GetDeoptimizationEntry returns the entry of a state id.
func (s *InstructionSequence) GetDeoptimizationEntry(stateID int) *DeoptimizationEntry {
	return &s.deoptEntries[stateID]
}

// DeoptimizationEntries returns the deoptimization table.
func (s *InstructionSequence) DeoptimizationEntries() []DeoptimizationEntry { return s.deoptEntries }

// SetSourcePosition attaches pos to instr.
func (s *InstructionSequence) SetSourcePosition(instr *Instruction, pos ir.SourcePosition) {
	s.sourcePositions[instr] = pos
}

// GetSourcePosition returns the position attached to instr.
func (s *InstructionSequence) GetSourcePosition(instr *Instruction) (ir.SourcePosition, bool) {
	pos, ok := s.sourcePositions[instr]
	return pos, ok
}

// StartBlock opens block rpo at the current end of the sequence.
func (s *InstructionSequence) StartBlock(rpo int) {
	s.blocks[rpo].codeStart = len(s.instructions)
}

// EndBlock closes block rpo after its last instruction.
func (s *InstructionSequence) EndBlock(rpo int) {
	b := s.blocks[rpo]
	end := len(s.instructions)
	if end <= b.codeStart {
		panic(fmt.Sprintf("BUG: %s is empty", b))
	}
	b.codeEnd = end
}

// AddInstruction appends instr to the block being built and returns its index.
func (s *InstructionSequence) AddInstruction(rpo int, instr *Instruction) int {
	instr.block = rpo
	s.instructions = append(s.instructions, instr)
	return len(s.instructions) - 1
}

// Instructions returns every instruction in program order.
func (s *InstructionSequence) Instructions() []*Instruction { return s.instructions }

// InstructionCount returns the number of instructions.
func (s *InstructionSequence) InstructionCount() int { return len(s.instructions) }

// InstructionAt returns the instruction at index.
func (s *InstructionSequence) InstructionAt(index int) *Instruction { return s.instructions[index] }

// InstructionBlocks returns the blocks in RPO.
func (s *InstructionSequence) InstructionBlocks() []*InstructionBlock { return s.blocks }

// InstructionBlockCount returns the number of blocks.
func (s *InstructionSequence) InstructionBlockCount() int { return len(s.blocks) }

// InstructionBlockAt returns the block with RPO number rpo.
func (s *InstructionSequence) InstructionBlockAt(rpo int) *InstructionBlock { return s.blocks[rpo] }

// GetInstructionBlock returns the block owning the instruction at index.
func (s *InstructionSequence) GetInstructionBlock(index int) *InstructionBlock {
	return s.blocks[s.instructions[index].block]
}

// AssemblyOrder returns the blocks in the order the code generator lays them out.
func (s *InstructionSequence) AssemblyOrder() []*InstructionBlock { return s.assemblyOrder }

// OpcodeName formats an opcode with the target names.
func (s *InstructionSequence) OpcodeName(o ArchOpcode) string {
	return FormatArchOpcode(o, s.opcodeNames)
}
