package regalloc

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/iselapi"
)

// BuildLiveRanges computes the live-in and live-out sets of every block and
// the live range of every virtual register. It also blocks every allocatable
// register at the output position of calls.
func (a *Allocator) BuildLiveRanges() error {
	n := a.seq.VirtualRegisterCount()
	if limit := a.cfg.MaxVirtualRegisters; limit > 0 && n > limit {
		return iselapi.Bailoutf("%d virtual registers (limit %d)", n, limit)
	}
	a.ranges = make([]*LiveRange, n)

	blocks := a.seq.InstructionBlocks()
	a.liveIns = make([]vrSet, len(blocks))
	a.liveOuts = make([]vrSet, len(blocks))
	// gens are the registers used before any definition in the block, kills
	// the ones defined in it.
	gens, kills := make([]vrSet, len(blocks)), make([]vrSet, len(blocks))
	for k, b := range blocks {
		gen, kill := &gens[k], &kills[k]
		a.forEachOccurrence(b, func(v backend.VReg, p Position, def bool) {
			a.extend(v, p)
			if def {
				kill.insert(int(v))
			} else if !kill.contains(int(v)) {
				gen.insert(int(v))
			}
		})
	}

	for changed := true; changed; {
		changed = false
		for k := len(blocks) - 1; k >= 0; k-- {
			in, out := &a.liveIns[k], &a.liveOuts[k]
			for _, succ := range blocks[k].Successors() {
				if out.unionWith(&a.liveIns[succ]) {
					changed = true
				}
			}
			if in.unionWith(&gens[k]) {
				changed = true
			}
			kill := &kills[k]
			out.Range(func(v int) {
				if !kill.contains(v) && !in.contains(v) {
					in.insert(v)
					changed = true
				}
			})
		}
	}

	if iselapi.RegAllocValidationEnabled && len(blocks) > 0 {
		var undefined []int
		a.liveIns[0].Range(func(v int) { undefined = append(undefined, v) })
		if len(undefined) > 0 {
			return fmt.Errorf("BUG: virtual registers %v are used before their definition", undefined)
		}
	}

	for k, b := range blocks {
		a.liveIns[k].Range(func(v int) { a.extend(backend.VReg(v), blockStart(b.CodeStart())) })
		a.liveOuts[k].Range(func(v int) { a.extend(backend.VReg(v), blockEnd(b.CodeEnd())) })
		for i := b.CodeStart(); i < b.CodeEnd(); i++ {
			if !a.seq.InstructionAt(i).IsCall() {
				continue
			}
			for class, set := range a.allocatable {
				set.Range(func(code int) {
					a.block(register{fp: class == 1, code: code}, at(i, posOutput), at(i, posOutput))
				})
			}
		}
	}

	if iselapi.RegAllocLoggingEnabled {
		for k := range blocks {
			fmt.Printf("B%d: live-in %v live-out %v\n", k, a.liveIns[k].members(), a.liveOuts[k].members())
		}
	}
	a.dump("live ranges")
	return nil
}

// LiveIn returns the virtual registers live on entry to block rpo.
func (a *Allocator) LiveIn(rpo int) []backend.VReg { return a.liveIns[rpo].members() }

// LiveOut returns the virtual registers live on exit from block rpo.
func (a *Allocator) LiveOut(rpo int) []backend.VReg { return a.liveOuts[rpo].members() }

func (s *vrSet) members() []backend.VReg {
	var ret []backend.VReg
	s.Range(func(v int) { ret = append(ret, backend.VReg(v)) })
	return ret
}

// forEachOccurrence calls f for every unallocated operand of b in position
// order, uses before definitions at the same position.
func (a *Allocator) forEachOccurrence(b *backend.InstructionBlock, f func(v backend.VReg, p Position, def bool)) {
	gap := func(moves backend.ParallelMove, use, def Position) {
		for _, m := range moves {
			if m.Source.IsUnallocated() {
				f(m.Source.VirtualRegister(), use, false)
			}
		}
		for _, m := range moves {
			if m.Destination.IsUnallocated() {
				f(m.Destination.VirtualRegister(), def, true)
			}
		}
	}
	for i := b.CodeStart(); i < b.CodeEnd(); i++ {
		instr := a.seq.InstructionAt(i)
		gap(instr.ParallelMove(backend.GapStart), at(i, posStartUse), at(i, posStartDef))
		gap(instr.ParallelMove(backend.GapEnd), at(i, posEndUse), at(i, posEndDef))
		for j := 0; j < instr.InputCount(); j++ {
			if in := instr.InputAt(j); in.IsUnallocated() {
				p := at(i, posOutput)
				if in.IsUsedAtStart() {
					p = at(i, posInput)
				}
				f(in.VirtualRegister(), p, false)
			}
		}
		for j := 0; j < instr.TempCount(); j++ {
			if temp := instr.TempAt(j); temp.IsUnallocated() {
				f(temp.VirtualRegister(), at(i, posInput), true)
				f(temp.VirtualRegister(), at(i, posOutput), false)
			}
		}
		for j := 0; j < instr.OutputCount(); j++ {
			if out := instr.OutputAt(j); out.IsUnallocated() {
				f(out.VirtualRegister(), at(i, posOutput), true)
			}
		}
	}
}

// extend grows the live range of v to cover p.
func (a *Allocator) extend(v backend.VReg, p Position) {
	r := a.ranges[v]
	if r == nil {
		a.ranges[v] = &LiveRange{VReg: v, Start: p, End: p, FP: a.seq.IsFP(v), Register: -1, Slot: -1}
		return
	}
	if p < r.Start {
		r.Start = p
	}
	if p > r.End {
		r.End = p
	}
}
