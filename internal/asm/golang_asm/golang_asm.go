package golang_asm

import (
	"encoding/binary"
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/isel/internal/asm"
)

// GolangAsmNode implements Node for golang-asm library.
type GolangAsmNode struct {
	prog *obj.Prog
}

// NewGolangAsmNode returns the Node of p.
func NewGolangAsmNode(p *obj.Prog) asm.Node {
	return &GolangAsmNode{prog: p}
}

// Prog returns the wrapped instruction.
func (n *GolangAsmNode) Prog() *obj.Prog { return n.prog }

// String implements fmt.Stringer.
func (n *GolangAsmNode) String() string {
	return n.prog.String()
}

// OffsetInBinary implements Node.OffsetInBinary.
func (n *GolangAsmNode) OffsetInBinary() asm.NodeOffsetInBinary {
	return asm.NodeOffsetInBinary(n.prog.Pc)
}

// AssignJumpTarget implements Node.AssignJumpTarget.
func (n *GolangAsmNode) AssignJumpTarget(target asm.Node) {
	b := target.(*GolangAsmNode)
	n.prog.To.SetTarget(b.prog)
}

// AssignDestinationConstant implements Node.AssignDestinationConstant.
func (n *GolangAsmNode) AssignDestinationConstant(value asm.ConstantValue) {
	n.prog.To.Offset = value
}

// AssignSourceConstant implements Node.AssignSourceConstant.
func (n *GolangAsmNode) AssignSourceConstant(value asm.ConstantValue) {
	n.prog.From.Offset = value
}

// GolangAsmBaseAssembler implements *part of* AssemblerBase for golang-asm library.
type GolangAsmBaseAssembler struct {
	asm.BaseAssemblerImpl
	b *goasm.Builder
	// onNextCallbacks are invoked with the next added instruction.
	onNextCallbacks []func(next *obj.Prog)
}

// NewGolangAsmBaseAssembler returns an assembler for arch, "amd64" or "arm64".
func NewGolangAsmBaseAssembler(arch string) (*GolangAsmBaseAssembler, error) {
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	return &GolangAsmBaseAssembler{BaseAssemblerImpl: asm.NewBaseAssemblerImpl(), b: b}, nil
}

// Assemble implements AssemblerBase.Assemble
func (a *GolangAsmBaseAssembler) Assemble() ([]byte, error) {
	if a.HasPending() {
		return nil, fmt.Errorf("%d jumps target the end of the code", len(a.SetBranchTargetOnNextNodes))
	}
	return a.Finalize(a.b.Assemble())
}

// OnNext registers cb to be invoked with the next added instruction.
func (a *GolangAsmBaseAssembler) OnNext(cb func(next *obj.Prog)) {
	a.onNextCallbacks = append(a.onNextCallbacks, cb)
}

// HasPending returns true if jumps or callbacks wait for the next instruction.
func (a *GolangAsmBaseAssembler) HasPending() bool {
	return len(a.SetBranchTargetOnNextNodes) > 0 || len(a.onNextCallbacks) > 0
}

// AddInstruction is used in architecture specific assembler implementation for golang-asm.
func (a *GolangAsmBaseAssembler) AddInstruction(next *obj.Prog) asm.Node {
	a.b.AddInstruction(next)
	for _, node := range a.SetBranchTargetOnNextNodes {
		n := node.(*GolangAsmNode)
		n.prog.To.SetTarget(next)
	}
	a.SetBranchTargetOnNextNodes = a.SetBranchTargetOnNextNodes[:0]
	for _, cb := range a.onNextCallbacks {
		cb(next)
	}
	a.onNextCallbacks = a.onNextCallbacks[:0]
	return NewGolangAsmNode(next)
}

// NewProg is used in architecture specific assembler implementation for golang-asm.
func (a *GolangAsmBaseAssembler) NewProg() (prog *obj.Prog) {
	prog = a.b.NewProg()
	return
}

// CompileReadStaticConstAddress emits "LEAQ c(RIP), destination" on amd64.
func (a *GolangAsmBaseAssembler) CompileReadStaticConstAddress(destination asm.Register, c *asm.StaticConst) {
	lea := a.NewProg()
	lea.As = x86.ALEAQ
	lea.To.Type = obj.TYPE_REG
	lea.To.Reg = destination
	lea.From.Type = obj.TYPE_MEM
	// Since the assembler cannot directly emit "LEA destination [RIP + offset]", we use
	// BP as the base with a 32-bit placeholder displacement: the encoding is then the
	// same as the RIP-relative one except the most significant bit of the ModRM byte,
	// which is cleared once the code is generated.
	lea.From.Reg = x86.REG_BP
	lea.From.Offset = 0xffff
	a.AddInstruction(lea)
	a.Pool.AddConst(c, 0)

	a.AddOnGenerateCallBack(func(code []byte) error {
		// RIP points to the instruction right after LEA, which is 7 bytes long.
		offset := int64(c.OffsetInBinary) - (lea.Pc + 7)
		binary.LittleEndian.PutUint32(code[lea.Pc+3:], uint32(int32(offset)))
		code[lea.Pc+2] &= 0b01111111
		return nil
	})
}
