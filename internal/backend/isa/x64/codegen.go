package x64

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/isel/internal/asm"
	"github.com/tetratelabs/isel/internal/asm/golang_asm"
	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/iselapi"
)

// Runtime functions called by generated code.
const (
	deoptimizeFunctionPrefix = "isel_deoptimize_"
	throwFunction            = "isel_throw"
)

// relocationPlaceholder is loaded by the MOVQ instructions whose immediate
// is relocated. It does not fit in 32 bits, so the 10-byte form holding the
// immediate at offset 2 is always chosen.
const relocationPlaceholder = math.MaxInt64

// label is a code position jumps may target before it is bound.
type label struct {
	prog    *obj.Prog
	pending []*obj.Prog
}

// labelNode exposes a label to asm.BaseAssemblerImpl.BuildJumpTable.
type labelNode struct{ l *label }

var _ asm.Node = labelNode{}

func (n labelNode) String() string { return n.l.prog.String() }

func (n labelNode) AssignJumpTarget(asm.Node) { panic("BUG: labels do not jump") }

func (n labelNode) AssignDestinationConstant(asm.ConstantValue) { panic("BUG: labels have no operand") }

func (n labelNode) AssignSourceConstant(asm.ConstantValue) { panic("BUG: labels have no operand") }

func (n labelNode) OffsetInBinary() asm.NodeOffsetInBinary {
	return asm.NodeOffsetInBinary(n.l.prog.Pc)
}

type pendingRelocation struct {
	prog *obj.Prog
	kind backend.RelocationKind
	name string
}

type pendingSafepoint struct {
	// returnAddress is the instruction following the call.
	returnAddress *obj.Prog
	slots         []int
	stateID       int
	values        []backend.Operand
	handler       int
}

type pendingPosition struct {
	prog     *obj.Prog
	position ir.SourcePosition
}

// deoptimizationExit is the out-of-line code calling the deoptimizer for
// an eager or soft deoptimization.
type deoptimizationExit struct {
	label   label
	stateID int
	values  []backend.Operand
}

// codeGenerator assembles a register-allocated instruction sequence with
// golang-asm.
type codeGenerator struct {
	*golang_asm.GolangAsmBaseAssembler
	seq    *backend.InstructionSequence
	frame  *backend.Frame
	tracer *iselapi.Tracer
	gaps   *backend.GapResolver

	blockLabels []label
	// next is the block assembled after the current one, -1 after the last.
	next int

	first       *obj.Prog
	relocations []pendingRelocation
	safepoints  []pendingSafepoint
	positions   []pendingPosition
	exits       []*deoptimizationExit
}

// GenerateCode implements backend.Target.
func (t *Target) GenerateCode(in *backend.CodeGenInput) (*backend.GeneratedCode, error) {
	base, err := golang_asm.NewGolangAsmBaseAssembler("amd64")
	if err != nil {
		return nil, err
	}
	c := &codeGenerator{
		GolangAsmBaseAssembler: base,
		seq:                    in.Sequence,
		frame:                  in.Frame,
		tracer:                 in.Tracer,
		blockLabels:            make([]label, in.Sequence.InstructionBlockCount()),
	}
	c.gaps = backend.NewGapResolver(c)
	c.OnNext(func(p *obj.Prog) { c.first = p })

	order := c.seq.AssemblyOrder()
	for i, b := range order {
		c.next = -1
		if i+1 < len(order) {
			c.next = order[i+1].RPONumber()
		}
		c.bind(&c.blockLabels[b.RPONumber()])
		if b.MustConstructFrame() && !c.frame.IsElided() {
			c.assemblePrologue()
		}
		for index := b.CodeStart(); index < b.CodeEnd(); index++ {
			if err := c.assembleInstruction(b, c.seq.InstructionAt(index)); err != nil {
				return nil, err
			}
		}
	}
	c.assembleDeoptimizationExits()
	if c.first == nil || c.HasPending() {
		// Labels bound at the very end get a trap to point at.
		c.emit(x86.AUD2, obj.Addr{}, obj.Addr{})
	}

	code, err := c.Assemble()
	if err != nil {
		return nil, fmt.Errorf("assembling: %w", err)
	}
	out := c.finish(code)
	if c.tracer.Enabled() {
		c.tracer.Section("code", stringer(out.Listing))
	}
	return out, nil
}

type stringer string

func (s stringer) String() string { return string(s) }

// finish resolves the code offsets recorded while assembling.
func (c *codeGenerator) finish(code []byte) *backend.GeneratedCode {
	out := &backend.GeneratedCode{Code: code}
	for _, r := range c.relocations {
		offset := int(r.prog.Pc) + 2
		binary.LittleEndian.PutUint64(code[offset:], 0)
		out.Relocations = append(out.Relocations, backend.Relocation{Kind: r.kind, Offset: offset, Name: r.name})
	}
	for _, s := range c.safepoints {
		handler := -1
		if s.handler >= 0 {
			handler = int(c.blockLabels[s.handler].prog.Pc)
		}
		out.Safepoints = append(out.Safepoints, backend.Safepoint{
			Offset:  int(s.returnAddress.Pc),
			Slots:   s.slots,
			StateID: s.stateID,
			Values:  s.values,
			Handler: handler,
		})
	}
	for _, e := range c.exits {
		out.Deoptimizations = append(out.Deoptimizations, backend.DeoptimizationExit{
			StateID: e.stateID,
			Offset:  int(e.label.prog.Pc),
			Values:  e.values,
		})
	}
	for _, p := range c.positions {
		out.SourcePositions = append(out.SourcePositions, backend.SourcePositionEntry{Offset: int(p.prog.Pc), Position: p.position})
	}

	var sb strings.Builder
	for p := c.first; p != nil; p = p.Link {
		fmt.Fprintf(&sb, "%#06x  %s\n", p.Pc, p.InstructionString())
	}
	out.Listing = sb.String()
	return out
}

// bind makes the next instruction the target of l.
func (c *codeGenerator) bind(l *label) {
	c.OnNext(func(p *obj.Prog) {
		l.prog = p
		for _, j := range l.pending {
			j.To.SetTarget(p)
		}
		l.pending = nil
	})
}

// jumpTo emits the jump as to l.
func (c *codeGenerator) jumpTo(as obj.As, l *label) {
	p := c.NewProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	c.AddInstruction(p)
	if l.prog != nil {
		p.To.SetTarget(l.prog)
	} else {
		l.pending = append(l.pending, p)
	}
}

// jumpToBlock jumps to block rpo unless it is assembled next.
func (c *codeGenerator) jumpToBlock(rpo int) {
	if rpo == c.next {
		return
	}
	c.jumpTo(obj.AJMP, &c.blockLabels[rpo])
}

// forwardJump emits the jump as to the instruction assembled next.
func (c *codeGenerator) forwardJump(as obj.As) asm.Node {
	p := c.NewProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	return c.AddInstruction(p)
}

func (c *codeGenerator) emit(as obj.As, from, to obj.Addr) *obj.Prog {
	p := c.NewProg()
	p.As = as
	p.From = from
	p.To = to
	c.AddInstruction(p)
	return p
}

func regAddr(reg int16) obj.Addr { return obj.Addr{Type: obj.TYPE_REG, Reg: reg} }

func constAddr(v int64) obj.Addr { return obj.Addr{Type: obj.TYPE_CONST, Offset: v} }

func memAddr(base int16, offset int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: base, Offset: offset}
}

// assemblePrologue builds the frame: rbp points at the saved rbp and the
// spill slots are below it.
func (c *codeGenerator) assemblePrologue() {
	c.emit(x86.APUSHQ, regAddr(x86.REG_BP), obj.Addr{})
	c.emit(x86.AMOVQ, regAddr(x86.REG_SP), regAddr(x86.REG_BP))
	if size := c.frame.FrameSize(); size > 0 {
		c.emit(x86.ASUBQ, constAddr(int64(size)), regAddr(x86.REG_SP))
	}
}

func (c *codeGenerator) assembleEpilogue(b *backend.InstructionBlock) {
	if !b.MustDeconstructFrame() || c.frame.IsElided() {
		return
	}
	c.emit(x86.AMOVQ, regAddr(x86.REG_BP), regAddr(x86.REG_SP))
	c.emit(x86.APOPQ, obj.Addr{}, regAddr(x86.REG_BP))
}

func (c *codeGenerator) assembleInstruction(b *backend.InstructionBlock, instr *backend.Instruction) error {
	for _, pos := range []backend.GapPosition{backend.GapStart, backend.GapEnd} {
		if moves := instr.ParallelMove(pos); len(moves) > 0 {
			c.gaps.Resolve(moves)
		}
	}
	if pos, ok := c.seq.GetSourcePosition(instr); ok {
		c.OnNext(func(p *obj.Prog) {
			c.positions = append(c.positions, pendingPosition{prog: p, position: pos})
		})
	}
	if instr.ArchOpcode().IsArchCommon() {
		return c.assembleArchInstruction(b, instr)
	}
	if err := c.assembleTargetInstruction(instr); err != nil {
		return err
	}
	c.assembleFlags(instr)
	return nil
}

func (c *codeGenerator) assembleArchInstruction(b *backend.InstructionBlock, instr *backend.Instruction) error {
	switch op := instr.ArchOpcode(); op {
	case backend.ArchNop:
	case backend.ArchJmp:
		c.jumpToBlock(c.labelOf(instr.InputAt(0)))
	case backend.ArchRet:
		if pop := c.immediate(instr.InputAt(0)); pop != 0 {
			return fmt.Errorf("BUG: returning with %d stack slots to pop", pop)
		}
		c.assembleEpilogue(b)
		c.emit(obj.ARET, obj.Addr{}, obj.Addr{})
	case backend.ArchDeoptimize:
		exit := c.newDeoptimizationExit(instr, 0)
		c.jumpTo(obj.AJMP, &exit.label)
	case backend.ArchThrow:
		c.assembleRelocatedAddress(backend.RelocationExternalReference, throwFunction, x86.REG_R10)
		c.emit(obj.ACALL, obj.Addr{}, regAddr(x86.REG_R10))
		c.emit(x86.AUD2, obj.Addr{}, obj.Addr{})
	case backend.ArchCallCodeObject, backend.ArchCallAddress, backend.ArchCallJSFunction, backend.ArchLazyBailout:
		c.assembleCall(instr)
	case backend.ArchTailCallCodeObject, backend.ArchTailCallAddress, backend.ArchTailCallJSFunction:
		target := c.callTarget(instr.InputAt(0))
		c.assembleEpilogue(b)
		c.emit(obj.AJMP, obj.Addr{}, target)
	case backend.ArchSelect:
		c.assembleSelect(instr)
	case backend.ArchStackSlot:
		slot := c.immediate(instr.InputAt(0))
		c.emit(x86.ALEAQ, c.slotAddr(int(slot)), regAddr(c.gpReg(instr.Output())))
	case backend.ArchTableSwitch:
		c.assembleTableSwitch(instr)
	case backend.ArchBinarySearchSwitch:
		c.assembleBinarySearchSwitch(instr)
	default:
		return fmt.Errorf("BUG: unknown arch opcode %s", backend.FormatArchOpcode(op, nil))
	}
	return nil
}

// callTarget returns the operand of an indirect call or jump to callee.
// Relocated immediates and stack slots are loaded into r10, so tail calls
// may tear the frame down afterwards.
func (c *codeGenerator) callTarget(callee *backend.Operand) obj.Addr {
	switch {
	case callee.IsAnyStackSlot():
		c.emit(x86.AMOVQ, c.location(callee), regAddr(x86.REG_R10))
		return regAddr(x86.REG_R10)
	case !callee.IsImmediate():
		return c.location(callee)
	}
	k := c.seq.GetImmediate(callee)
	kind := backend.RelocationExternalReference
	if k.Kind() == backend.ConstantHeapObject {
		kind = backend.RelocationCodeObject
	}
	c.assembleRelocatedAddress(kind, k.Name(), x86.REG_R10)
	return regAddr(x86.REG_R10)
}

// assembleCall emits a call and records its safepoint. The inputs are the
// callee, then the state id and the frame state values if the call has a
// frame state, then the register arguments and the exception handler label.
func (c *codeGenerator) assembleCall(instr *backend.Instruction) {
	code := instr.Code()
	next := 0
	if instr.ArchOpcode() != backend.ArchLazyBailout {
		c.emit(obj.ACALL, obj.Addr{}, c.callTarget(instr.InputAt(0)))
		next = 1
	}

	sp := pendingSafepoint{stateID: -1, handler: -1}
	if backend.CallHasFrameState(code) {
		sp.stateID = int(c.immediate(instr.InputAt(next)))
		size := c.seq.GetDeoptimizationEntry(sp.stateID).Descriptor.TotalSize()
		sp.values = c.operands(instr, next+1, next+1+size)
	}
	if backend.CallHasExceptionHandler(code) {
		sp.handler = c.labelOf(instr.InputAt(instr.InputCount() - 1))
	}
	c.recordSafepoint(instr, sp)

	if n := backend.CallStackParameterCount(code); n > 0 {
		c.emit(x86.AADDQ, constAddr(int64(roundUpToEven(n)*8)), regAddr(x86.REG_SP))
	}
}

// recordSafepoint records the tagged stack slots of instr at the return
// address of the call just emitted.
func (c *codeGenerator) recordSafepoint(instr *backend.Instruction, sp pendingSafepoint) {
	for _, ref := range instr.ReferenceMap().References() {
		if ref.IsAnyStackSlot() {
			sp.slots = append(sp.slots, ref.Index())
		}
	}
	c.safepoints = append(c.safepoints, sp)
	index := len(c.safepoints) - 1
	c.OnNext(func(p *obj.Prog) { c.safepoints[index].returnAddress = p })
}

func (c *codeGenerator) operands(instr *backend.Instruction, from, to int) []backend.Operand {
	ret := make([]backend.Operand, 0, to-from)
	for i := from; i < to; i++ {
		ret = append(ret, *instr.InputAt(i))
	}
	return ret
}

// newDeoptimizationExit registers the exit of a deoptimizing instruction
// whose state id is input first.
func (c *codeGenerator) newDeoptimizationExit(instr *backend.Instruction, first int) *deoptimizationExit {
	exit := &deoptimizationExit{
		stateID: int(c.immediate(instr.InputAt(first))),
		values:  c.operands(instr, first+1, instr.InputCount()),
	}
	c.exits = append(c.exits, exit)
	return exit
}

// assembleDeoptimizationExits emits the exits after the code of the blocks.
// Each passes its state id in r10 to the deoptimizer of its kind.
func (c *codeGenerator) assembleDeoptimizationExits() {
	for _, e := range c.exits {
		c.bind(&e.label)
		kind := c.seq.GetDeoptimizationEntry(e.stateID).Kind
		c.emit(x86.AMOVQ, constAddr(int64(e.stateID)), regAddr(x86.REG_R10))
		c.assembleRelocatedAddress(backend.RelocationExternalReference,
			deoptimizeFunctionPrefix+strings.ToLower(kind.String()), x86.REG_R11)
		c.emit(obj.ACALL, obj.Addr{}, regAddr(x86.REG_R11))
	}
}

// assembleRelocatedAddress loads the 64-bit address of name into reg. The
// embedder patches the immediate.
func (c *codeGenerator) assembleRelocatedAddress(kind backend.RelocationKind, name string, reg int16) {
	p := c.emit(x86.AMOVQ, constAddr(relocationPlaceholder), regAddr(reg))
	c.relocations = append(c.relocations, pendingRelocation{prog: p, kind: kind, name: name})
}

// assembleSelect moves the second input over the first, which is also the
// output, if the condition is non-zero.
func (c *codeGenerator) assembleSelect(instr *backend.Instruction) {
	out := instr.Output()
	cond := c.gpReg(instr.InputAt(2))
	c.emit(x86.ATESTL, regAddr(cond), regAddr(cond))
	if out.IsFPRegister() {
		skip := c.forwardJump(x86.AJEQ)
		c.emit(x86.AMOVAPS, regAddr(c.fpReg(instr.InputAt(1))), regAddr(c.fpReg(out)))
		c.SetJumpTargetOnNext(skip)
		return
	}
	c.emit(x86.ACMOVQNE, regAddr(c.gpReg(instr.InputAt(1))), regAddr(c.gpReg(out)))
}

// assembleTableSwitch jumps through a table of 32-bit offsets relative to
// the table itself, placed after the code.
func (c *codeGenerator) assembleTableSwitch(instr *backend.Instruction) {
	value := c.gpReg(instr.InputAt(0))
	lowest := c.immediate(instr.InputAt(1))
	defaultBlock := c.labelOf(instr.InputAt(2))
	count := instr.InputCount() - 3

	c.emit(x86.AMOVL, regAddr(value), regAddr(x86.REG_R10))
	if lowest != 0 {
		c.emit(x86.ASUBL, constAddr(int64(lowest)), regAddr(x86.REG_R10))
	}
	c.emit(x86.ACMPL, regAddr(x86.REG_R10), constAddr(int64(count)))
	c.jumpTo(x86.AJCC, &c.blockLabels[defaultBlock])

	table := asm.NewStaticConst(make([]byte, 4*count))
	c.CompileReadStaticConstAddress(x86.REG_R11, table)
	c.emit(x86.AMOVLQSX, obj.Addr{Type: obj.TYPE_MEM, Reg: x86.REG_R11, Index: x86.REG_R10, Scale: 4}, regAddr(x86.REG_R10))
	c.emit(x86.AADDQ, regAddr(x86.REG_R11), regAddr(x86.REG_R10))
	c.emit(obj.AJMP, obj.Addr{}, regAddr(x86.REG_R10))

	targets := make([]asm.Node, count)
	for i := range targets {
		targets[i] = labelNode{l: &c.blockLabels[c.labelOf(instr.InputAt(3+i))]}
	}
	c.BuildJumpTable(table, targets)
}

type switchCase struct {
	value int32
	block int
}

// assembleBinarySearchSwitch compares the value against the sorted cases.
func (c *codeGenerator) assembleBinarySearchSwitch(instr *backend.Instruction) {
	value := c.gpReg(instr.InputAt(0))
	defaultBlock := c.labelOf(instr.InputAt(1))
	cases := make([]switchCase, 0, (instr.InputCount()-2)/2)
	for i := 2; i < instr.InputCount(); i += 2 {
		cases = append(cases, switchCase{value: c.immediate(instr.InputAt(i)), block: c.labelOf(instr.InputAt(i + 1))})
	}
	c.assembleSearch(value, cases, defaultBlock)
}

// binarySearchLinearLimit is the case count compared one by one.
const binarySearchLinearLimit = 4

func (c *codeGenerator) assembleSearch(value int16, cases []switchCase, defaultBlock int) {
	if len(cases) <= binarySearchLinearLimit {
		for _, sc := range cases {
			c.emit(x86.ACMPL, regAddr(value), constAddr(int64(sc.value)))
			c.jumpTo(x86.AJEQ, &c.blockLabels[sc.block])
		}
		c.jumpTo(obj.AJMP, &c.blockLabels[defaultBlock])
		return
	}
	mid := len(cases) / 2
	var upper label
	c.emit(x86.ACMPL, regAddr(value), constAddr(int64(cases[mid].value)))
	c.jumpTo(x86.AJGE, &upper)
	c.assembleSearch(value, cases[:mid], defaultBlock)
	c.bind(&upper)
	c.assembleSearch(value, cases[mid:], defaultBlock)
}

// labelOf returns the block of a label immediate.
func (c *codeGenerator) labelOf(op *backend.Operand) int {
	return c.seq.GetImmediate(op).ToRPONumber()
}

// immediate returns the value of an int32 immediate.
func (c *codeGenerator) immediate(op *backend.Operand) int32 {
	return c.seq.GetImmediate(op).ToInt32()
}

func (c *codeGenerator) gpReg(op *backend.Operand) int16 {
	if !op.IsRegister() {
		panic("BUG: expected a general purpose register but got " + op.String())
	}
	return castAsGolangAsmRegister[op.Index()]
}

func (c *codeGenerator) fpReg(op *backend.Operand) int16 {
	if !op.IsFPRegister() {
		panic("BUG: expected a floating point register but got " + op.String())
	}
	return castAsGolangAsmFPRegister[op.Index()]
}

// slotAddr returns the address of a frame slot. Negative indices are caller
// frame slots. Without a frame rbp is not set up, but nothing was pushed
// either: caller frame slots start right above the return address.
func (c *codeGenerator) slotAddr(index int) obj.Addr {
	if index >= 0 {
		return memAddr(x86.REG_BP, int64(-8*(index+1)))
	}
	callerSlot := int64(-index - 1)
	if c.frame.IsElided() {
		return memAddr(x86.REG_SP, 8+8*callerSlot)
	}
	return memAddr(x86.REG_BP, 16+8*callerSlot)
}

// location returns a register or stack slot operand as an instruction
// operand. Int32 immediates are returned as constants.
func (c *codeGenerator) location(op *backend.Operand) obj.Addr {
	switch {
	case op.IsRegister():
		return regAddr(castAsGolangAsmRegister[op.Index()])
	case op.IsFPRegister():
		return regAddr(castAsGolangAsmFPRegister[op.Index()])
	case op.IsAnyStackSlot():
		return c.slotAddr(op.Index())
	case op.IsImmediate():
		return constAddr(int64(c.immediate(op)))
	}
	panic("BUG: unexpected operand " + op.String())
}

// input returns op as an instruction operand. Constants are materialized
// in the scratch register of their class.
func (c *codeGenerator) input(op *backend.Operand) obj.Addr {
	if !op.IsConstant() {
		return c.location(op)
	}
	k := c.seq.GetConstant(op.VirtualRegister())
	dst := regAddr(x86.REG_R10)
	if isFloatConstant(k) {
		dst = regAddr(castAsGolangAsmFPRegister[scratchFP])
	}
	c.assembleConstantMove(k, dst)
	return dst
}

func isFloatConstant(k backend.Constant) bool {
	return k.Kind() == backend.ConstantFloat32 || k.Kind() == backend.ConstantFloat64
}
