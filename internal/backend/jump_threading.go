package backend

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/iselapi"
)

// ComputeForwarding returns, for each block, the block jumps to it can be
// redirected to: the final target of a chain of blocks doing nothing but
// jump. Blocks which do something forward to themselves. It reports false
// when nothing can be forwarded.
func ComputeForwarding(seq *InstructionSequence) ([]int, bool) {
	const (
		unvisited = -1
		onStack   = -2
	)
	result := make([]int, len(seq.blocks))
	for i := range result {
		result[i] = unvisited
	}

	var chain []int
	found := false
	for _, b := range seq.blocks {
		if result[b.rpo] != unvisited {
			continue
		}
		chain = chain[:0]
		cur := b.rpo
		for {
			if result[cur] >= 0 {
				break
			}
			if result[cur] == onStack {
				// A cycle of empty jumps: stop at its entry.
				result[cur] = cur
				break
			}
			target, ok := seq.emptyJumpTarget(seq.blocks[cur])
			if !ok {
				result[cur] = cur
				break
			}
			result[cur] = onStack
			chain = append(chain, cur)
			cur = target
		}
		final := result[cur]
		for _, c := range chain {
			if result[c] == onStack {
				result[c] = final
				if final != c {
					found = true
				}
			}
		}
	}

	if iselapi.PipelineLoggingEnabled {
		for i, f := range result {
			if f != i {
				fmt.Printf("jump threading: B%d -> B%d\n", i, f)
			}
		}
	}
	return result, found
}

// emptyJumpTarget returns the target of b if b does nothing but jump. The
// entry block is never empty since code starts there.
func (s *InstructionSequence) emptyJumpTarget(b *InstructionBlock) (int, bool) {
	if b.rpo == 0 {
		return 0, false
	}
	for i := b.codeStart; i < b.codeEnd; i++ {
		instr := s.instructions[i]
		if !instr.AreMovesRedundant() {
			return 0, false
		}
		switch {
		case instr.IsNop():
		case instr.IsJump() && i == b.codeEnd-1:
			return s.GetImmediate(instr.InputAt(0)).ToRPONumber(), true
		default:
			return 0, false
		}
	}
	return 0, false
}

// ApplyForwarding redirects every jump through forwarding and turns the
// skipped blocks into nops.
func ApplyForwarding(seq *InstructionSequence, forwarding []int) {
	for _, b := range seq.blocks {
		skipped := forwarding[b.rpo] != b.rpo
		for i := b.codeStart; i < b.codeEnd; i++ {
			instr := seq.instructions[i]
			if skipped {
				instr.OverwriteWithNop()
				continue
			}
			for j := 0; j < instr.InputCount(); j++ {
				in := instr.InputAt(j)
				if !in.IsImmediate() || in.ImmediateKind() != ImmediateIndexed {
					continue
				}
				c := &seq.immediates[in.ImmediateIndex()]
				if c.Kind() == ConstantRPONumber {
					*c = NewRPONumberConstant(forwarding[c.ToRPONumber()])
				}
			}
		}
	}
}
