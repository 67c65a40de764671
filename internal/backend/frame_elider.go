package backend

// ElideFrame decides whether the function builds a frame and marks the
// blocks accordingly. A function without spill slots, calls or
// deoptimization exits runs frameless when elision is enabled; otherwise the
// entry block constructs the frame and every block leaving the function
// through a return or a tail call deconstructs it.
func ElideFrame(seq *InstructionSequence, frame *Frame, enabled bool) {
	if enabled && !frame.NeedsFrame() {
		frame.MarkElided()
		for _, b := range seq.blocks {
			b.needsFrame, b.mustConstructFrame, b.mustDeconstructFrame = false, false, false
		}
		return
	}
	for _, b := range seq.blocks {
		b.needsFrame = true
		b.mustConstructFrame = b.rpo == 0
		b.mustDeconstructFrame = false
		if b.codeEnd > b.codeStart {
			last := seq.instructions[b.codeEnd-1]
			b.mustDeconstructFrame = last.IsRet() || last.IsTailCall()
		}
	}
}
