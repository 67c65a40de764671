package regalloc

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/iselapi"
)

// MeetRegisterConstraints rewrites the operands the allocator can not place
// freely. Fixed inputs and outputs become explicit locations reached through
// gap moves, a same-as-first output takes over its first input, constants
// used in registers or slots are copied into fresh virtual registers and
// fixed temps are assigned directly.
func (a *Allocator) MeetRegisterConstraints() error {
	for _, b := range a.seq.InstructionBlocks() {
		for i := b.CodeStart(); i < b.CodeEnd(); i++ {
			if err := a.meetConstraints(b, i); err != nil {
				return err
			}
		}
	}
	if iselapi.RegAllocLoggingEnabled {
		fmt.Printf("after meeting constraints:\n%s\n", a.seq)
	}
	return nil
}

func (a *Allocator) meetConstraints(b *backend.InstructionBlock, i int) error {
	instr := a.seq.InstructionAt(i)
	end := instr.GetOrCreateParallelMove(backend.GapEnd)

	first := 0
	if instr.OutputCount() > 0 {
		if out := instr.Output(); out.IsUnallocated() && out.Policy() == backend.PolicySameAsFirst {
			w := out.VirtualRegister()
			in := instr.InputAt(0)
			end.AddMove(a.gapSource(in.VirtualRegister()), a.gapOperand(w))
			*in = backend.NewUnallocated(backend.PolicyRegister, backend.UsedAtStart, w)
			*out = backend.NewUnallocated(backend.PolicyRegister, backend.UsedAtEnd, w)
			first = 1
		}
	}

	for j := first; j < instr.InputCount(); j++ {
		in := instr.InputAt(j)
		if !in.IsUnallocated() {
			continue
		}
		v := in.VirtualRegister()
		switch {
		case a.seq.IsConstant(v) && in.HasFixedPolicy():
			loc := a.fixedLocation(*in, v)
			end.AddMove(backend.NewConstantOperand(v), loc)
			a.blockLocation(loc, at(i, posEndDef), at(i, posOutput))
			*in = loc
		case a.seq.IsConstant(v):
			switch in.Policy() {
			case backend.PolicyRegister, backend.PolicySlot:
				fresh := a.seq.NextVirtualRegister()
				a.seq.MarkAsRepresentation(a.seq.GetRepresentation(v), fresh)
				end.AddMove(backend.NewConstantOperand(v), a.gapOperand(fresh))
				if in.Policy() == backend.PolicySlot {
					a.mustSpill[fresh] = true
				}
				*in = backend.NewUnallocated(in.Policy(), in.Lifetime(), fresh)
			default:
				*in = backend.NewConstantOperand(v)
			}
		case in.HasFixedPolicy():
			loc := a.fixedLocation(*in, v)
			end.AddMove(a.gapOperand(v), loc)
			a.hint(v, loc)
			a.blockLocation(loc, at(i, posEndDef), at(i, posOutput))
			*in = loc
		case in.Policy() == backend.PolicySlot:
			a.mustSpill[v] = true
		}
	}

	for j := 0; j < instr.TempCount(); j++ {
		temp := instr.TempAt(j)
		if temp.IsUnallocated() && temp.HasFixedPolicy() {
			loc := a.fixedLocation(*temp, temp.VirtualRegister())
			a.blockLocation(loc, at(i, posInput), at(i, posOutput))
			*temp = loc
		}
	}

	for j := 0; j < instr.OutputCount(); j++ {
		out := instr.OutputAt(j)
		if !out.IsUnallocated() {
			continue
		}
		v := out.VirtualRegister()
		if out.Policy() == backend.PolicySlot {
			a.mustSpill[v] = true
		}
		if !out.HasFixedPolicy() {
			continue
		}
		loc := a.fixedLocation(*out, v)
		*out = loc
		a.hint(v, loc)
		if instr.InputCount() == 0 && instr.ArchOpcode() == backend.ArchNop {
			// Parameters and exception values are live from the block entry.
			a.blockLocation(loc, blockStart(b.CodeStart()), at(i, posOutput))
		}
		if err := a.moveAfter(b, i, loc, a.gapOperand(v)); err != nil {
			return err
		}
	}
	return nil
}

// moveAfter adds the move from the fixed location src to dst right after
// instruction i, which may be the last of b.
func (a *Allocator) moveAfter(b *backend.InstructionBlock, i int, src, dst backend.Operand) error {
	if i < b.LastInstructionIndex() {
		a.seq.InstructionAt(i+1).GetOrCreateParallelMove(backend.GapStart).AddMove(src, dst)
		a.blockLocation(src, at(i, posOutput), at(i+1, posStartUse))
		return nil
	}
	for _, rpo := range b.Successors() {
		succ := a.seq.InstructionBlockAt(rpo)
		if len(succ.Predecessors()) != 1 {
			return iselapi.Bailoutf("output %s of %s flows into the merge %s", dst, b, succ)
		}
		a.seq.InstructionAt(succ.CodeStart()).GetOrCreateParallelMove(backend.GapStart).AddMove(src, dst)
		a.blockLocation(src, at(i, posOutput), blockEnd(b.CodeEnd()))
		a.blockLocation(src, blockStart(succ.CodeStart()), at(succ.CodeStart(), posStartUse))
	}
	return nil
}

// ResolvePhis replaces phis by moves at the end of each predecessor. The
// predecessors of a block with phis must have a single successor.
func (a *Allocator) ResolvePhis() error {
	for _, b := range a.seq.InstructionBlocks() {
		for _, phi := range b.Phis() {
			for k, in := range phi.Inputs() {
				pred := a.seq.InstructionBlockAt(b.Predecessors()[k])
				if len(pred.Successors()) != 1 {
					return iselapi.Bailoutf("phi %s of %s on the critical edge from %s", phi.VirtualRegister(), b, pred)
				}
				last := a.seq.InstructionAt(pred.LastInstructionIndex())
				last.GetOrCreateParallelMove(backend.GapEnd).AddMove(a.gapSource(in), a.gapOperand(phi.VirtualRegister()))
				a.hintPhi(phi.VirtualRegister(), in)
			}
		}
	}
	return nil
}

// gapSource returns the operand reading v in a gap move.
func (a *Allocator) gapSource(v backend.VReg) backend.Operand {
	if a.seq.IsConstant(v) {
		return backend.NewConstantOperand(v)
	}
	return a.gapOperand(v)
}

// gapOperand returns the operand of v in a gap move, wherever v lives.
func (a *Allocator) gapOperand(v backend.VReg) backend.Operand {
	return backend.NewUnallocated(backend.PolicyAny, backend.UsedAtStart, v)
}

// fixedLocation returns the location a fixed operand of v names.
func (a *Allocator) fixedLocation(op backend.Operand, v backend.VReg) backend.Operand {
	rep := a.seq.GetRepresentation(v)
	switch op.Policy() {
	case backend.PolicyFixedRegister:
		return backend.NewExplicit(backend.LocationRegister, rep, op.FixedIndex())
	case backend.PolicyFixedFPRegister:
		return backend.NewExplicit(backend.LocationFPRegister, rep, op.FixedIndex())
	}
	if rep.IsFloatingPoint() {
		return backend.NewExplicit(backend.LocationFPStackSlot, rep, op.FixedIndex())
	}
	return backend.NewExplicit(backend.LocationStackSlot, rep, op.FixedIndex())
}

// blockLocation reserves the register loc from start to end.
func (a *Allocator) blockLocation(loc backend.Operand, start, end Position) {
	if loc.IsAnyRegister() {
		a.block(register{fp: loc.IsFPRegister(), code: loc.Index()}, start, end)
	}
}

func (a *Allocator) hint(v backend.VReg, loc backend.Operand) {
	if !loc.IsAnyRegister() {
		return
	}
	if _, ok := a.hints[v]; !ok {
		a.hints[v] = register{fp: loc.IsFPRegister(), code: loc.Index()}
	}
}

// hintPhi lets a phi prefer the register its input got a hint for.
func (a *Allocator) hintPhi(phi, in backend.VReg) {
	if r, ok := a.hints[in]; ok {
		if _, ok := a.hints[phi]; !ok {
			a.hints[phi] = r
		}
	}
}
