package schedule

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/isel/internal/ir"
)

// BasicBlockID is the creation index of a BasicBlock.
type BasicBlockID int32

// BlockControl is how control leaves a BasicBlock.
type BlockControl byte

const (
	// BlockNone is the control of the end block.
	BlockNone BlockControl = iota
	BlockGoto
	BlockBranch
	BlockSwitch
	BlockReturn
	BlockDeoptimize
	BlockThrow
	BlockTailCall
	// BlockCallWithHandler ends with a call whose successors are its
	// IfSuccess and IfException continuations, in that order.
	BlockCallWithHandler
)

// String implements fmt.Stringer.
func (c BlockControl) String() string {
	switch c {
	case BlockNone:
		return "none"
	case BlockGoto:
		return "goto"
	case BlockBranch:
		return "branch"
	case BlockSwitch:
		return "switch"
	case BlockReturn:
		return "return"
	case BlockDeoptimize:
		return "deoptimize"
	case BlockThrow:
		return "throw"
	case BlockTailCall:
		return "tailcall"
	case BlockCallWithHandler:
		return "call"
	}
	panic(fmt.Sprintf("BUG: unknown block control %d", c))
}

// BasicBlock is a maximal straight-line sequence of scheduled nodes.
type BasicBlock struct {
	id  BasicBlockID
	rpo int
	// start is the node beginning the block: Start, Merge, Loop or a
	// branch projection. Nil for the end block.
	start        *ir.Node
	preds, succs []*BasicBlock
	control      BlockControl
	controlInput *ir.Node
	// nodes are the scheduled nodes in program order. The block start node
	// and phis come first.
	nodes []*ir.Node

	loopHeader bool
	// loopEnd is the RPO number following the last block of the loop headed by this block.
	loopEnd int
	// loop is the header of the innermost loop containing this block.
	loop      *BasicBlock
	loopDepth int

	dominator      *BasicBlock
	dominatorDepth int
	deferred       bool
}

// ID returns the creation index of b.
func (b *BasicBlock) ID() BasicBlockID { return b.id }

// RPONumber returns the position of b in the reverse postorder.
func (b *BasicBlock) RPONumber() int { return b.rpo }

// Predecessors returns the predecessors, ordered like the inputs of the block's Merge or Loop.
func (b *BasicBlock) Predecessors() []*BasicBlock { return b.preds }

// Successors returns the successors. For branches the true successor comes first.
func (b *BasicBlock) Successors() []*BasicBlock { return b.succs }

// PredecessorIndexOf returns the index of pred in b's predecessors.
func (b *BasicBlock) PredecessorIndexOf(pred *BasicBlock) int {
	for i, p := range b.preds {
		if p == pred {
			return i
		}
	}
	panic(fmt.Sprintf("BUG: %s is not a predecessor of %s", pred, b))
}

// StartNode returns the node beginning the block.
func (b *BasicBlock) StartNode() *ir.Node { return b.start }

// Control returns how control leaves b.
func (b *BasicBlock) Control() BlockControl { return b.control }

// ControlInput returns the node ending b, nil for BlockGoto.
func (b *BasicBlock) ControlInput() *ir.Node { return b.controlInput }

// Nodes returns the scheduled nodes of b in program order, the control input excluded.
func (b *BasicBlock) Nodes() []*ir.Node { return b.nodes }

// IsLoopHeader returns true if b is the target of a back edge.
func (b *BasicBlock) IsLoopHeader() bool { return b.loopHeader }

// LoopEnd returns the RPO number right after the loop headed by b.
func (b *BasicBlock) LoopEnd() int { return b.loopEnd }

// LoopHeader returns the header of the innermost loop containing b, b itself for headers.
func (b *BasicBlock) LoopHeader() *BasicBlock { return b.loop }

// LoopDepth returns the number of loops containing b.
func (b *BasicBlock) LoopDepth() int { return b.loopDepth }

// Dominator returns the immediate dominator, nil for the start block.
func (b *BasicBlock) Dominator() *BasicBlock { return b.dominator }

// DominatorDepth returns the depth of b in the dominator tree.
func (b *BasicBlock) DominatorDepth() int { return b.dominatorDepth }

// IsDeferred returns true for blocks expected to run rarely.
func (b *BasicBlock) IsDeferred() bool { return b.deferred }

// Dominates returns true if b dominates other.
func (b *BasicBlock) Dominates(other *BasicBlock) bool {
	for other != nil && other.dominatorDepth > b.dominatorDepth {
		other = other.dominator
	}
	return other == b
}

// String implements fmt.Stringer.
func (b *BasicBlock) String() string {
	return fmt.Sprintf("B%d", b.rpo)
}

func (b *BasicBlock) addSuccessor(succ *BasicBlock) {
	b.succs = append(b.succs, succ)
	succ.preds = append(succ.preds, b)
}

func (b *BasicBlock) format(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s", b)
	if b.deferred {
		sb.WriteString(" (deferred)")
	}
	if b.loopHeader {
		fmt.Fprintf(sb, " (loop up to B%d)", b.loopEnd)
	}
	if len(b.preds) > 0 {
		sb.WriteString(" <- ")
		for i, p := range b.preds {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
	}
	sb.WriteString("\n")
	for _, n := range b.nodes {
		fmt.Fprintf(sb, "  %s\n", n)
	}
	if b.control != BlockNone {
		sb.WriteString("  ")
		sb.WriteString(b.control.String())
		if b.controlInput != nil {
			fmt.Fprintf(sb, " %s", b.controlInput)
		}
		if len(b.succs) > 0 {
			sb.WriteString(" -> ")
			for i, s := range b.succs {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(s.String())
			}
		}
		sb.WriteString("\n")
	}
}
