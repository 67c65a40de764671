package backend

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// String implements fmt.Stringer.
func (s *InstructionSequence) String() string {
	var sb strings.Builder
	if len(s.constants) > 0 {
		vregs := make([]VReg, 0, len(s.constants))
		for v := range s.constants {
			vregs = append(vregs, v)
		}
		slices.Sort(vregs)
		for _, v := range vregs {
			fmt.Fprintf(&sb, "CST#%d: v%d = %s\n", v, v, s.constants[v])
		}
	}
	for _, b := range s.blocks {
		s.formatBlock(&sb, b)
	}
	return sb.String()
}

func (s *InstructionSequence) formatBlock(sb *strings.Builder, b *InstructionBlock) {
	fmt.Fprintf(sb, "B%d: AO#%d", b.rpo, b.ao)
	if b.deferred {
		sb.WriteString(" (deferred)")
	}
	if b.isLoopHeader {
		fmt.Fprintf(sb, " loop blocks: [%d, %d)", b.rpo, b.loopEnd)
	}
	if !b.needsFrame {
		sb.WriteString(" (no frame)")
	}
	if b.mustConstructFrame {
		sb.WriteString(" (construct frame)")
	}
	if b.mustDeconstructFrame {
		sb.WriteString(" (deconstruct frame)")
	}
	fmt.Fprintf(sb, "  instructions: [%d, %d)\n", b.codeStart, b.codeEnd)
	if len(b.preds) > 0 {
		sb.WriteString("  predecessors:")
		for _, p := range b.preds {
			fmt.Fprintf(sb, " B%d", p)
		}
		sb.WriteByte('\n')
	}
	for _, phi := range b.phis {
		fmt.Fprintf(sb, "     phi: %s =", phi.vreg)
		for _, in := range phi.inputs {
			fmt.Fprintf(sb, " %s", in)
		}
		sb.WriteByte('\n')
	}
	for i := b.codeStart; i >= 0 && i < b.codeEnd; i++ {
		fmt.Fprintf(sb, "%5d: ", i)
		instr := s.instructions[i]
		instr.Format(sb, s.opcodeNames)
		if pos, ok := s.sourcePositions[instr]; ok {
			fmt.Fprintf(sb, " @%s", pos)
		}
		sb.WriteByte('\n')
	}
	for _, succ := range b.succs {
		fmt.Fprintf(sb, "     -> B%d\n", succ)
	}
}
