// Package schedule builds the control-flow graph of a sea-of-nodes graph and
// assigns every reachable node to a basic block in an executable order.
package schedule

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/zone"
)

// Schedule is the result of scheduling a graph: basic blocks in reverse
// postorder with loops contiguous, and the block of every reachable node.
type Schedule struct {
	g          *ir.Graph
	blocksPool *zone.Pool[BasicBlock]
	blocks     []*BasicBlock
	rpo        []*BasicBlock
	start, end *BasicBlock
	// nodeBlocks maps node ids to their block.
	nodeBlocks []*BasicBlock
	loops      []*loop
}

// ComputeSchedule schedules g. Blocks are allocated in z. An irreducible
// control-flow graph is reported as an error wrapping iselapi.ErrBailout.
func ComputeSchedule(g *ir.Graph, z *zone.Zone, tracer *iselapi.Tracer) (*Schedule, error) {
	s := &Schedule{
		g:          g,
		blocksPool: zone.NewPool[BasicBlock](z, resetBasicBlock),
		nodeBlocks: make([]*BasicBlock, g.NodeCount()),
	}
	if err := s.buildCFG(); err != nil {
		return nil, err
	}
	if err := s.computeSpecialRPO(); err != nil {
		return nil, err
	}
	s.computeDominators()
	s.markDeferredBlocks()
	s.scheduleNodes()
	tracer.Printf("scheduled %d blocks, %d loops", len(s.rpo), len(s.loops))
	tracer.Section("schedule", s)
	if iselapi.PrintSchedule {
		fmt.Printf("[[[schedule of %d nodes]]]\n%s", g.NodeCount(), s)
	}
	return s, nil
}

func resetBasicBlock(b *BasicBlock) {
	*b = BasicBlock{rpo: -1, preds: b.preds[:0], succs: b.succs[:0], nodes: b.nodes[:0]}
}

// Graph returns the scheduled graph.
func (s *Schedule) Graph() *ir.Graph { return s.g }

// RPO returns the reachable blocks in reverse postorder.
func (s *Schedule) RPO() []*BasicBlock { return s.rpo }

// BlockCount returns the number of reachable blocks.
func (s *Schedule) BlockCount() int { return len(s.rpo) }

// Start returns the entry block.
func (s *Schedule) Start() *BasicBlock { return s.start }

// End returns the exit block every terminator jumps to.
func (s *Schedule) End() *BasicBlock { return s.end }

// BlockOf returns the block n is scheduled in, or nil.
func (s *Schedule) BlockOf(n *ir.Node) *BasicBlock {
	if int(n.ID()) >= len(s.nodeBlocks) {
		return nil
	}
	return s.nodeBlocks[n.ID()]
}

// String implements fmt.Stringer.
func (s *Schedule) String() string {
	var sb strings.Builder
	for _, b := range s.rpo {
		b.format(&sb)
	}
	return sb.String()
}

func (s *Schedule) newBlock(start *ir.Node) *BasicBlock {
	b := s.blocksPool.Allocate()
	b.id = BasicBlockID(len(s.blocks))
	b.rpo = -1
	b.start = start
	s.blocks = append(s.blocks, b)
	if start != nil {
		s.nodeBlocks[start.ID()] = b
	}
	return b
}
