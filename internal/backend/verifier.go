package backend

import "fmt"

// definition is where a virtual register gets its value. index is -1 for
// phis, which are defined on entry to their block.
type definition struct {
	block, index int
}

// Verify checks an unallocated sequence: blocks are contiguous and in order,
// every virtual register has exactly one definition and every use is
// dominated by it.
func Verify(seq *InstructionSequence) error {
	next := 0
	for _, b := range seq.blocks {
		if b.codeStart != next || b.codeEnd <= b.codeStart {
			return fmt.Errorf("%s spans [%d, %d), want it to start at %d", b, b.codeStart, b.codeEnd, next)
		}
		next = b.codeEnd
		for i := b.codeStart; i < b.codeEnd; i++ {
			if got := seq.instructions[i].block; got != b.rpo {
				return fmt.Errorf("instruction %d belongs to B%d but sits in %s", i, got, b)
			}
		}
	}
	if next != len(seq.instructions) {
		return fmt.Errorf("%d instructions outside of any block", len(seq.instructions)-next)
	}

	defs := make(map[VReg]definition, seq.VirtualRegisterCount())
	define := func(v VReg, d definition) error {
		if prev, ok := defs[v]; ok {
			return fmt.Errorf("%s defined in B%d at %d and in B%d at %d", v, prev.block, prev.index, d.block, d.index)
		}
		defs[v] = d
		return nil
	}
	for _, b := range seq.blocks {
		for _, phi := range b.phis {
			if err := define(phi.vreg, definition{block: b.rpo, index: -1}); err != nil {
				return err
			}
		}
		for i := b.codeStart; i < b.codeEnd; i++ {
			instr := seq.instructions[i]
			for j := 0; j < instr.OutputCount(); j++ {
				out := instr.OutputAt(j)
				if !out.HasVirtualRegister() {
					continue
				}
				if err := define(out.VirtualRegister(), definition{block: b.rpo, index: i}); err != nil {
					return err
				}
			}
		}
	}

	for _, b := range seq.blocks {
		for i := b.codeStart; i < b.codeEnd; i++ {
			instr := seq.instructions[i]
			for j := 0; j < instr.InputCount(); j++ {
				in := instr.InputAt(j)
				if !in.HasVirtualRegister() {
					continue
				}
				d, ok := defs[in.VirtualRegister()]
				if !ok {
					return fmt.Errorf("%s used at %d but never defined", in.VirtualRegister(), i)
				}
				if !seq.definitionReaches(d, b, i) {
					return fmt.Errorf("%s used at %d before its definition in B%d at %d", in.VirtualRegister(), i, d.block, d.index)
				}
			}
		}
		for _, phi := range b.phis {
			for k, v := range phi.inputs {
				d, ok := defs[v]
				if !ok {
					return fmt.Errorf("phi %s input %s never defined", phi.vreg, v)
				}
				pred := seq.blocks[b.preds[k]]
				if !seq.definitionReaches(d, pred, pred.codeEnd) {
					return fmt.Errorf("phi %s input %s does not reach the end of %s", phi.vreg, v, pred)
				}
			}
		}
	}
	return nil
}

// definitionReaches returns true if d dominates position index of b.
func (s *InstructionSequence) definitionReaches(d definition, b *InstructionBlock, index int) bool {
	if d.block == b.rpo {
		return d.index < index
	}
	for dom := b.dominator; dom >= 0; dom = s.blocks[dom].dominator {
		if dom == d.block {
			return true
		}
	}
	return false
}
