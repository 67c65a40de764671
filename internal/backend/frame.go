package backend

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/iselapi"
)

// Frame is the stack frame layout of the compiled function. Slots are 8
// bytes wide. Slot i of the frame lives at fp-8*(i+1); caller frame slot j
// (operand index -j-1) lives at fp+16+8*j, above the return address and the
// saved frame pointer.
type Frame struct {
	spillSlotCount int
	maxSpillSlots  int
	// taggedSlots marks spill slots holding references.
	taggedSlots []bool
	hasCalls    bool
	hasDeopts   bool
	elided      bool
}

// NewFrame returns an empty frame allowing at most maxSpillSlots spill slots.
// A non-positive limit means no limit.
func NewFrame(maxSpillSlots int) *Frame {
	return &Frame{maxSpillSlots: maxSpillSlots}
}

// AllocateSpillSlot reserves a new spill slot. tagged marks slots the
// garbage collector must scan.
func (f *Frame) AllocateSpillSlot(tagged bool) (int, error) {
	if f.maxSpillSlots > 0 && f.spillSlotCount >= f.maxSpillSlots {
		return 0, iselapi.Bailoutf("too many spill slots (limit %d)", f.maxSpillSlots)
	}
	f.spillSlotCount++
	f.taggedSlots = append(f.taggedSlots, tagged)
	return f.spillSlotCount - 1, nil
}

// SpillSlotCount returns the number of spill slots.
func (f *Frame) SpillSlotCount() int { return f.spillSlotCount }

// IsTaggedSlot returns true if spill slot i holds a reference.
func (f *Frame) IsTaggedSlot(i int) bool { return f.taggedSlots[i] }

// FrameSize returns the number of bytes reserved below the frame pointer,
// rounded up to keep the stack pointer 16-byte aligned.
func (f *Frame) FrameSize() int {
	size := f.spillSlotCount * 8
	return (size + 15) &^ 15
}

// MarkHasCalls records that the function calls out.
func (f *Frame) MarkHasCalls() { f.hasCalls = true }

// HasCalls returns true if the function calls out.
func (f *Frame) HasCalls() bool { return f.hasCalls }

// MarkHasDeoptimizations records that the function has deoptimization exits.
func (f *Frame) MarkHasDeoptimizations() { f.hasDeopts = true }

// NeedsFrame returns true if the function must build a frame.
func (f *Frame) NeedsFrame() bool {
	return f.spillSlotCount > 0 || f.hasCalls || f.hasDeopts
}

// MarkElided records that no frame is built.
func (f *Frame) MarkElided() {
	if f.NeedsFrame() {
		panic("BUG: eliding a frame that is needed")
	}
	f.elided = true
}

// IsElided returns true if no frame is built.
func (f *Frame) IsElided() bool { return f.elided }

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("frame(spill slots: %d, size: %d, elided: %t)", f.spillSlotCount, f.FrameSize(), f.elided)
}
