package schedule

import (
	"fmt"

	"github.com/oleiade/lane"
	"golang.org/x/exp/slices"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
)

// buildCFG creates a block per block-start node and connects the blocks by
// walking the control nodes backwards from End.
func (s *Schedule) buildCFG() error {
	end := s.g.End()
	s.end = s.newBlock(nil)
	s.nodeBlocks[end.ID()] = s.end
	s.start = s.newBlock(s.g.Start())

	queued := make([]bool, s.g.NodeCount())
	q := lane.NewQueue()
	for q.Enqueue(end); !q.Empty(); {
		n := q.Dequeue().(*ir.Node)
		if err := s.connect(n); err != nil {
			return err
		}
		for i := 0; i < n.Op().ControlInputCount(); i++ {
			in := n.ControlInput(i)
			if !queued[in.ID()] {
				queued[in.ID()] = true
				q.Enqueue(in)
			}
		}
	}
	return nil
}

// controlBlock returns the block control node n belongs to: its own block
// for block starts, else the block of its control input.
func (s *Schedule) controlBlock(n *ir.Node) *BasicBlock {
	var chain []*ir.Node
	var b *BasicBlock
	for {
		if b = s.nodeBlocks[n.ID()]; b != nil {
			break
		}
		if n.Opcode().IsBlockStart() {
			b = s.newBlock(n)
			break
		}
		chain = append(chain, n)
		n = n.ControlInput(0)
	}
	for _, c := range chain {
		s.nodeBlocks[c.ID()] = b
	}
	return b
}

// setControl ends the block of n's control input with n.
func (s *Schedule) setControl(n *ir.Node, control BlockControl) (*BasicBlock, error) {
	b := s.controlBlock(n.ControlInput(0))
	if b.control != BlockNone {
		return nil, fmt.Errorf("BUG: %s already ends with %s %v", b, b.control, b.controlInput)
	}
	b.control = control
	b.controlInput = n
	s.nodeBlocks[n.ID()] = b
	return b, nil
}

// projections returns the distinct users of n with one of opcodes. A user
// reading n through both its effect and control inputs is returned once.
func projections(n *ir.Node, opcodes ...ir.Opcode) []*ir.Node {
	var ret []*ir.Node
	for _, u := range n.Uses() {
		if slices.Contains(opcodes, u.User.Opcode()) && !slices.Contains(ret, u.User) {
			ret = append(ret, u.User)
		}
	}
	return ret
}

func (s *Schedule) connect(n *ir.Node) error {
	switch n.Opcode() {
	case ir.OpcodeEnd:
		for _, t := range n.Inputs() {
			var control BlockControl
			switch t.Opcode() {
			case ir.OpcodeReturn:
				control = BlockReturn
			case ir.OpcodeDeoptimize:
				control = BlockDeoptimize
			case ir.OpcodeThrow:
				control = BlockThrow
			case ir.OpcodeTailCall:
				control = BlockTailCall
			default:
				return iselapi.Bailoutf("unsupported End input %s", t)
			}
			b, err := s.setControl(t, control)
			if err != nil {
				return err
			}
			b.addSuccessor(s.end)
		}
	case ir.OpcodeMerge, ir.OpcodeLoop:
		mb := s.controlBlock(n)
		for _, c := range n.Inputs() {
			pb := s.controlBlock(c)
			if pb.control != BlockNone {
				return fmt.Errorf("BUG: %s already ends with %s", pb, pb.control)
			}
			pb.control = BlockGoto
			pb.addSuccessor(mb)
		}
	case ir.OpcodeBranch:
		b, err := s.setControl(n, BlockBranch)
		if err != nil {
			return err
		}
		ifTrue, ifFalse := projections(n, ir.OpcodeIfTrue), projections(n, ir.OpcodeIfFalse)
		if len(ifTrue) != 1 || len(ifFalse) != 1 {
			return fmt.Errorf("BUG: %s without both projections", n)
		}
		b.addSuccessor(s.controlBlock(ifTrue[0]))
		b.addSuccessor(s.controlBlock(ifFalse[0]))
	case ir.OpcodeSwitch:
		b, err := s.setControl(n, BlockSwitch)
		if err != nil {
			return err
		}
		cases := projections(n, ir.OpcodeIfValue)
		slices.SortFunc(cases, func(a, b *ir.Node) int {
			return int(a.Op().CaseValue()) - int(b.Op().CaseValue())
		})
		def := projections(n, ir.OpcodeIfDefault)
		if len(def) != 1 {
			return fmt.Errorf("BUG: %s without default", n)
		}
		for _, c := range append(cases, def[0]) {
			b.addSuccessor(s.controlBlock(c))
		}
	case ir.OpcodeCall:
		success := projections(n, ir.OpcodeIfSuccess)
		if len(success) == 0 {
			return nil
		}
		exception := projections(n, ir.OpcodeIfException)
		if len(success) != 1 || len(exception) != 1 {
			return fmt.Errorf("BUG: %s without both handler projections", n)
		}
		b, err := s.setControl(n, BlockCallWithHandler)
		if err != nil {
			return err
		}
		b.addSuccessor(s.controlBlock(success[0]))
		b.addSuccessor(s.controlBlock(exception[0]))
	}
	return nil
}
