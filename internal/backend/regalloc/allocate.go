package regalloc

import (
	"fmt"

	"github.com/oleiade/lane"
	"golang.org/x/exp/slices"

	"github.com/tetratelabs/isel/internal/iselapi"
)

// maxEvictions bounds how often the greedy strategy requeues a live range
// before spilling it.
const maxEvictions = 4

// AllocateRegisters assigns a register to each live range or marks it
// spilled, using the configured strategy. Ranges of virtual registers read
// from stack slots are spilled up front.
func (a *Allocator) AllocateRegisters() error {
	var ranges []*LiveRange
	for _, r := range a.Ranges() {
		if a.mustSpill[r.VReg] {
			a.spill(r)
			continue
		}
		ranges = append(ranges, r)
	}
	switch a.cfg.Algorithm {
	case LinearScan:
		a.linearScan(ranges)
	case Greedy:
		a.greedy(ranges)
	default:
		return fmt.Errorf("BUG: unknown allocation strategy %s", a.cfg.Algorithm)
	}
	a.dump("allocation (" + a.cfg.Algorithm.String() + ")")
	return nil
}

func (a *Allocator) spill(r *LiveRange) {
	r.Spilled, r.Register = true, -1
	if iselapi.RegAllocLoggingEnabled {
		fmt.Printf("spilled %s\n", r)
	}
}

func (a *Allocator) assign(r *LiveRange, reg register) {
	r.Register = reg.code
	if iselapi.RegAllocLoggingEnabled {
		fmt.Printf("assigned %s to %s\n", a.registerName(reg), r.VReg)
	}
}

// preferences returns the registers r may take, the hinted one first.
func (a *Allocator) preferences(r *LiveRange) []register {
	codes := a.regs.AllocatableGeneral
	if r.FP {
		codes = a.regs.AllocatableFP
	}
	ret := make([]register, 0, len(codes)+1)
	if h, ok := a.hints[r.VReg]; ok && h.fp == r.FP && a.allocatable[classIndex(h.fp)].has(h.code) {
		ret = append(ret, h)
	}
	for _, code := range codes {
		ret = append(ret, register{fp: r.FP, code: code})
	}
	return ret
}

// linearScan walks the ranges by increasing start. When no register is free
// the range of the same class ending last loses its register, or the current
// one is spilled if it ends last.
func (a *Allocator) linearScan(ranges []*LiveRange) {
	slices.SortFunc(ranges, func(x, y *LiveRange) int {
		if x.Start != y.Start {
			return int(x.Start - y.Start)
		}
		return int(x.VReg - y.VReg)
	})

	var active []*LiveRange
	for _, cur := range ranges {
		kept := active[:0]
		for _, r := range active {
			if r.End >= cur.Start {
				kept = append(kept, r)
			}
		}
		active = kept

		var inUse [2]RegSet
		for _, r := range active {
			inUse[classIndex(r.FP)] = inUse[classIndex(r.FP)].add(r.Register)
		}
		free := false
		for _, reg := range a.preferences(cur) {
			if !inUse[classIndex(reg.fp)].has(reg.code) && !a.isBlocked(reg, cur) {
				a.assign(cur, reg)
				active = append(active, cur)
				free = true
				break
			}
		}
		if free {
			continue
		}

		victim := -1
		for k, r := range active {
			if r.FP != cur.FP || r.End <= cur.End || a.isBlocked(register{fp: r.FP, code: r.Register}, cur) {
				continue
			}
			if victim < 0 || r.End > active[victim].End {
				victim = k
			}
		}
		if victim < 0 {
			a.spill(cur)
			continue
		}
		a.assign(cur, register{fp: cur.FP, code: active[victim].Register})
		a.spill(active[victim])
		active[victim] = cur
	}
}

// greedy assigns the longest ranges first. A range finding every register
// taken evicts the strictly lighter ranges of the register where they weigh
// least; evicted ranges go back to the queue.
func (a *Allocator) greedy(ranges []*LiveRange) {
	q := lane.NewPQueue(lane.MAXPQ)
	for _, r := range ranges {
		q.Push(r, r.Length())
	}
	assigned := map[register][]*LiveRange{}

	for q.Size() > 0 {
		item, _ := q.Pop()
		cur := item.(*LiveRange)

		var (
			best          register
			bestConflicts []*LiveRange
			bestWeight    = -1
			done          bool
		)
		for _, reg := range a.preferences(cur) {
			if a.isBlocked(reg, cur) {
				continue
			}
			conflicts, weight := conflictsWith(assigned[reg], cur)
			if len(conflicts) == 0 {
				a.assign(cur, reg)
				assigned[reg] = append(assigned[reg], cur)
				done = true
				break
			}
			if weight < cur.Length() && (bestWeight < 0 || weight < bestWeight) {
				best, bestConflicts, bestWeight = reg, conflicts, weight
			}
		}
		if done {
			continue
		}
		if bestWeight < 0 {
			a.spill(cur)
			continue
		}

		kept := assigned[best][:0]
		for _, r := range assigned[best] {
			if !slices.Contains(bestConflicts, r) {
				kept = append(kept, r)
			}
		}
		assigned[best] = append(kept, cur)
		a.assign(cur, best)
		for _, r := range bestConflicts {
			r.Register = -1
			if r.evictions++; r.evictions > maxEvictions {
				a.spill(r)
				continue
			}
			q.Push(r, r.Length())
		}
	}
}

// conflictsWith returns the ranges overlapping r and the length of the
// longest of them.
func conflictsWith(ranges []*LiveRange, r *LiveRange) (conflicts []*LiveRange, weight int) {
	for _, o := range ranges {
		if o.overlaps(r) {
			conflicts = append(conflicts, o)
			if l := o.Length(); l > weight {
				weight = l
			}
		}
	}
	return
}
