// Package regalloc assigns registers and spill slots to the virtual registers
// of an InstructionSequence. The phases run in a fixed order:
//
//	MeetRegisterConstraints, ResolvePhis, BuildLiveRanges,
//	AllocateRegisters, AssignSpillSlots, CommitAssignment,
//	PopulateReferenceMaps, ConnectRanges, ResolveControlFlow, OptimizeMoves.
//
// Every virtual register gets one live range, the hull of its definitions and
// uses, and one location for its whole lifetime: a register or a spill slot.
package regalloc

// References:
// * https://dl.acm.org/doi/10.1145/330249.330250 (linear scan)
// * https://blog.llvm.org/2011/09/greedy-register-allocation-in-llvm-30.html
// * https://pfalcon.github.io/ssabook/latest/book-full.pdf: Chapter 9. for liveness analysis.

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/iselapi"
)

// Algorithm selects the strategy of AllocateRegisters.
type Algorithm byte

const (
	// LinearScan walks the live ranges in start order and spills the one
	// ending furthest away.
	LinearScan Algorithm = iota
	// Greedy assigns the longest live ranges first, evicting lighter ones.
	Greedy
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case LinearScan:
		return "linear-scan"
	case Greedy:
		return "greedy"
	}
	return fmt.Sprintf("Algorithm(%d)", byte(a))
}

// Config tunes an Allocator.
type Config struct {
	Algorithm Algorithm
	// MaxVirtualRegisters bails out of sequences with more virtual registers.
	// Zero means no limit.
	MaxVirtualRegisters int
	Tracer              *iselapi.Tracer
}

type (
	// Allocator holds the state shared by the allocation phases of one sequence.
	Allocator struct {
		seq    *backend.InstructionSequence
		frame  *backend.Frame
		regs   *backend.RegisterConfig
		cfg    Config
		tracer *iselapi.Tracer

		allocatable [2]RegSet
		// ranges is indexed by virtual register, nil for constants and
		// numbers never used.
		ranges []*LiveRange
		// blocked lists the spans where a fixed operand or a call owns a
		// register.
		blocked map[register][]span
		// hints maps virtual registers to the register a fixed move
		// connects them with.
		hints map[backend.VReg]register
		// mustSpill marks virtual registers used by a stack slot operand.
		mustSpill map[backend.VReg]bool
		liveIns   []vrSet
		liveOuts  []vrSet
	}

	// LiveRange is the lifetime of one virtual register. Both ends are
	// inclusive positions.
	LiveRange struct {
		VReg       backend.VReg
		Start, End Position
		FP         bool
		// Register is the code assigned, meaningful unless Spilled.
		Register int
		Spilled  bool
		// Slot is the spill slot of a spilled range.
		Slot      int
		evictions int
	}

	// register names an allocatable register of a class.
	register struct {
		fp   bool
		code int
	}

	span struct{ start, end Position }
)

// New returns an Allocator for seq. Spill slots are allocated from frame.
func New(seq *backend.InstructionSequence, frame *backend.Frame, regs *backend.RegisterConfig, cfg Config) *Allocator {
	return &Allocator{
		seq:         seq,
		frame:       frame,
		regs:        regs,
		cfg:         cfg,
		tracer:      cfg.Tracer.WithPrefix("regalloc"),
		allocatable: [2]RegSet{NewRegSet(regs.AllocatableGeneral...), NewRegSet(regs.AllocatableFP...)},
		blocked:     map[register][]span{},
		hints:       map[backend.VReg]register{},
		mustSpill:   map[backend.VReg]bool{},
	}
}

// Run performs every phase in order. optimizeMoves enables OptimizeMoves.
func (a *Allocator) Run(optimizeMoves bool) error {
	phases := []struct {
		name string
		run  func() error
	}{
		{"meet-register-constraints", a.MeetRegisterConstraints},
		{"resolve-phis", a.ResolvePhis},
		{"build-live-ranges", a.BuildLiveRanges},
		{"allocate-registers", a.AllocateRegisters},
		{"assign-spill-slots", a.AssignSpillSlots},
		{"commit-assignment", a.CommitAssignment},
		{"populate-reference-maps", a.PopulateReferenceMaps},
		{"connect-ranges", a.ConnectRanges},
		{"resolve-control-flow", a.ResolveControlFlow},
	}
	if optimizeMoves {
		phases = append(phases, struct {
			name string
			run  func() error
		}{"optimize-moves", a.OptimizeMoves})
	}
	for _, p := range phases {
		if err := p.run(); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

// Ranges returns the live ranges in virtual register order.
func (a *Allocator) Ranges() []*LiveRange {
	ret := make([]*LiveRange, 0, len(a.ranges))
	for _, r := range a.ranges {
		if r != nil {
			ret = append(ret, r)
		}
	}
	return ret
}

// Range returns the live range of v, or nil.
func (a *Allocator) Range(v backend.VReg) *LiveRange {
	if int(v) < len(a.ranges) {
		return a.ranges[v]
	}
	return nil
}

// Sequence returns the sequence being allocated.
func (a *Allocator) Sequence() *backend.InstructionSequence { return a.seq }

func (a *Allocator) registerName(r register) string {
	if r.fp {
		return a.regs.FPNames[r.code]
	}
	return a.regs.GeneralNames[r.code]
}

func (a *Allocator) classOf(v backend.VReg) int {
	if a.seq.IsFP(v) {
		return 1
	}
	return 0
}

// String implements fmt.Stringer.
func (r *LiveRange) String() string {
	loc := "unassigned"
	switch {
	case r.Spilled:
		loc = fmt.Sprintf("slot %d", r.Slot)
	case r.Register >= 0:
		loc = fmt.Sprintf("reg %d", r.Register)
	}
	return fmt.Sprintf("%s [%s, %s] %s", r.VReg, r.Start, r.End, loc)
}

// Length returns the number of positions covered by r.
func (r *LiveRange) Length() int { return int(r.End-r.Start) + 1 }

func (r *LiveRange) overlaps(o *LiveRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (s span) overlaps(r *LiveRange) bool {
	return s.start <= r.End && r.Start <= s.end
}

// isBlocked returns true if a fixed operand or a call owns reg somewhere in r.
func (a *Allocator) isBlocked(reg register, r *LiveRange) bool {
	for _, s := range a.blocked[reg] {
		if s.overlaps(r) {
			return true
		}
	}
	return false
}

func (a *Allocator) block(reg register, start, end Position) {
	if !a.allocatable[classIndex(reg.fp)].has(reg.code) {
		return
	}
	a.blocked[reg] = append(a.blocked[reg], span{start: start, end: end})
}

func classIndex(fp bool) int {
	if fp {
		return 1
	}
	return 0
}

// dump writes the live ranges to the tracer.
func (a *Allocator) dump(title string) {
	if !a.tracer.Enabled() {
		return
	}
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true, DisableMethods: true}
	var sb strings.Builder
	for _, r := range a.Ranges() {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	sb.WriteString(cfg.Sdump(a.blocked))
	a.tracer.Section(title, stringer(sb.String()))
}

type stringer string

func (s stringer) String() string { return string(s) }
