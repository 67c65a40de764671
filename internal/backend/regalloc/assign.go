package regalloc

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/machine"
)

// AssignSpillSlots gives every spilled range a frame slot. Ranges that do not
// overlap share a slot when they agree on holding references.
func (a *Allocator) AssignSpillSlots() error {
	var spilled []*LiveRange
	for _, r := range a.Ranges() {
		if r.Spilled {
			spilled = append(spilled, r)
		}
	}
	slices.SortFunc(spilled, func(x, y *LiveRange) int {
		if x.Start != y.Start {
			return int(x.Start - y.Start)
		}
		return int(x.VReg - y.VReg)
	})

	type slot struct {
		index     int
		tagged    bool
		freeAfter Position
	}
	var slots []*slot
	for _, r := range spilled {
		tagged := a.seq.IsReference(r.VReg)
		var s *slot
		for _, c := range slots {
			if c.tagged == tagged && c.freeAfter < r.Start {
				s = c
				break
			}
		}
		if s == nil {
			index, err := a.frame.AllocateSpillSlot(tagged)
			if err != nil {
				return err
			}
			s = &slot{index: index, tagged: tagged}
			slots = append(slots, s)
		}
		// Output fixups store into the slot in the start gap of the next
		// instruction.
		s.freeAfter = r.End + positionStride
		r.Slot = s.index
	}
	return nil
}

// location returns where v lives.
func (a *Allocator) location(v backend.VReg) backend.Operand {
	r := a.Range(v)
	if r == nil {
		panic(fmt.Sprintf("BUG: %s has no live range", v))
	}
	rep := a.seq.GetRepresentation(v)
	if r.Spilled {
		return backend.StackSlotOperand(rep, r.Slot)
	}
	return backend.RegisterOperand(rep, r.Register)
}

// CommitAssignment replaces the unallocated operands of the instructions by
// their locations. Spilled operands that must be in a register go through
// the fixup registers: inputs are loaded in the end gap, outputs stored in
// the start gap of the next instruction.
func (a *Allocator) CommitAssignment() error {
	for _, b := range a.seq.InstructionBlocks() {
		for i := b.CodeStart(); i < b.CodeEnd(); i++ {
			if err := a.commit(b, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func needsRegister(op *backend.Operand) bool {
	return op.Policy() == backend.PolicyRegister || op.Policy() == backend.PolicySameAsFirst
}

func (a *Allocator) commit(b *backend.InstructionBlock, i int) error {
	instr := a.seq.InstructionAt(i)
	free := [2][]int{a.regs.FixupGeneral, a.regs.FixupFP}
	taken := map[backend.VReg]backend.Operand{}
	fixup := func(v backend.VReg) (reg backend.Operand, loaded bool, err error) {
		if reg, ok := taken[v]; ok {
			return reg, true, nil
		}
		class := a.classOf(v)
		if len(free[class]) == 0 {
			return backend.Operand{}, false, iselapi.Bailoutf("instruction %d needs more than %d fixup registers", i, len(a.fixups(class)))
		}
		reg = backend.RegisterOperand(a.seq.GetRepresentation(v), free[class][0])
		free[class] = free[class][1:]
		taken[v] = reg
		return reg, false, nil
	}

	end := instr.GetOrCreateParallelMove(backend.GapEnd)
	for j := 0; j < instr.InputCount(); j++ {
		in := instr.InputAt(j)
		if !in.IsUnallocated() {
			continue
		}
		v := in.VirtualRegister()
		if !a.ranges[v].Spilled || !needsRegister(in) {
			*in = a.location(v)
			continue
		}
		reg, loaded, err := fixup(v)
		if err != nil {
			return err
		}
		if !loaded {
			end.AddMove(loadSource(*end, v), reg)
		}
		*in = reg
	}

	for j := 0; j < instr.TempCount(); j++ {
		temp := instr.TempAt(j)
		if !temp.IsUnallocated() {
			continue
		}
		v := temp.VirtualRegister()
		if !a.ranges[v].Spilled || !needsRegister(temp) {
			*temp = a.location(v)
			continue
		}
		reg, _, err := fixup(v)
		if err != nil {
			return err
		}
		*temp = reg
	}

	for j := 0; j < instr.OutputCount(); j++ {
		out := instr.OutputAt(j)
		if !out.IsUnallocated() {
			continue
		}
		v := out.VirtualRegister()
		if !a.ranges[v].Spilled || !needsRegister(out) {
			*out = a.location(v)
			continue
		}
		reg, _, err := fixup(v)
		if err != nil {
			return err
		}
		*out = reg
		if err := a.storeAfter(b, i, reg, a.location(v)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Allocator) fixups(class int) []int {
	if class == 1 {
		return a.regs.FixupFP
	}
	return a.regs.FixupGeneral
}

// loadSource returns where a fixup load of v reads from. A value written by
// the same gap is read from the source of that move.
func loadSource(gap backend.ParallelMove, v backend.VReg) backend.Operand {
	for _, m := range gap {
		if m.Destination.IsUnallocated() && m.Destination.VirtualRegister() == v {
			return m.Source
		}
	}
	return backend.NewUnallocated(backend.PolicyAny, backend.UsedAtStart, v)
}

// storeAfter adds the store of a fixup register right after instruction i.
func (a *Allocator) storeAfter(b *backend.InstructionBlock, i int, src, dst backend.Operand) error {
	if i < b.LastInstructionIndex() {
		a.seq.InstructionAt(i+1).GetOrCreateParallelMove(backend.GapStart).AddMove(src, dst)
		return nil
	}
	for _, rpo := range b.Successors() {
		succ := a.seq.InstructionBlockAt(rpo)
		if len(succ.Predecessors()) != 1 {
			return iselapi.Bailoutf("spilled output of %s flows into the merge %s", b, succ)
		}
		a.seq.InstructionAt(succ.CodeStart()).GetOrCreateParallelMove(backend.GapStart).AddMove(src, dst)
	}
	return nil
}

// PopulateReferenceMaps records, at every call, the spill slots of the
// references live across it. Calls clobber every register, so no register
// holds a live reference.
func (a *Allocator) PopulateReferenceMaps() error {
	for i, instr := range a.seq.Instructions() {
		if !instr.IsCall() {
			continue
		}
		for _, r := range a.Ranges() {
			if !r.Spilled || !a.seq.IsReference(r.VReg) {
				continue
			}
			if r.Start <= at(i, posInput) && r.End >= at(i+1, posStartUse) {
				instr.ReferenceMap().RecordReference(backend.StackSlotOperand(machine.RepTagged, r.Slot))
			}
		}
	}
	return nil
}

// ConnectRanges replaces the unallocated operands of gap moves by their
// locations.
func (a *Allocator) ConnectRanges() error {
	for _, instr := range a.seq.Instructions() {
		for _, pos := range []backend.GapPosition{backend.GapStart, backend.GapEnd} {
			for _, m := range instr.ParallelMove(pos) {
				if m.Source.IsUnallocated() {
					m.Source = a.location(m.Source.VirtualRegister())
				}
				if m.Destination.IsUnallocated() {
					m.Destination = a.location(m.Destination.VirtualRegister())
				}
			}
		}
	}
	return nil
}

// ResolveControlFlow checks the edges of the control flow graph. A value
// keeps one location for its whole lifetime, so no edge needs moves: every
// value live into a block must be live at the end of each predecessor.
func (a *Allocator) ResolveControlFlow() error {
	if !iselapi.RegAllocValidationEnabled {
		return nil
	}
	for _, b := range a.seq.InstructionBlocks() {
		for _, v := range a.LiveIn(b.RPONumber()) {
			r := a.ranges[v]
			for _, rpo := range b.Predecessors() {
				pred := a.seq.InstructionBlockAt(rpo)
				if r.Start > blockEnd(pred.CodeEnd()) || r.End < blockEnd(pred.CodeEnd()) {
					return fmt.Errorf("BUG: %s live into %s but not out of %s", r, b, pred)
				}
			}
		}
	}
	for i, instr := range a.seq.Instructions() {
		for j := 0; j < instr.OutputCount()+instr.InputCount()+instr.TempCount(); j++ {
			var op *backend.Operand
			switch {
			case j < instr.OutputCount():
				op = instr.OutputAt(j)
			case j < instr.OutputCount()+instr.InputCount():
				op = instr.InputAt(j - instr.OutputCount())
			default:
				op = instr.TempAt(j - instr.OutputCount() - instr.InputCount())
			}
			if op.IsUnallocated() {
				return fmt.Errorf("BUG: operand %s of instruction %d left unallocated", op, i)
			}
		}
	}
	return nil
}

// OptimizeMoves drops redundant moves and merges the start gap into the end
// gap when no end move depends on a start move.
func (a *Allocator) OptimizeMoves() error {
	for _, instr := range a.seq.Instructions() {
		start := instr.GetOrCreateParallelMove(backend.GapStart)
		end := instr.GetOrCreateParallelMove(backend.GapEnd)
		compact(start)
		compact(end)
		if len(*start) == 0 || !independent(*start, *end) {
			continue
		}
		*end = append(append(backend.ParallelMove{}, *start...), *end...)
		*start = nil
	}
	return nil
}

func compact(p *backend.ParallelMove) {
	kept := (*p)[:0]
	for _, m := range *p {
		if !m.IsRedundant() {
			kept = append(kept, m)
		}
	}
	*p = kept
}

// independent returns true if no move of second reads or writes a location
// first writes.
func independent(first, second backend.ParallelMove) bool {
	for _, s := range second {
		for _, f := range first {
			if s.Source.EqualsCanonicalized(f.Destination) || s.Destination.EqualsCanonicalized(f.Destination) {
				return false
			}
		}
	}
	return true
}
