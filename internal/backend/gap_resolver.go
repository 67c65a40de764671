package backend

// MoveAssembler emits the moves a GapResolver decides on.
type MoveAssembler interface {
	// AssembleMove copies src to dst.
	AssembleMove(src, dst *Operand)
	// AssembleSwap exchanges src and dst. Neither is a constant.
	AssembleSwap(src, dst *Operand)
}

// GapResolver sequentializes parallel moves.
type GapResolver struct {
	assembler MoveAssembler
	// pending holds the destinations of the moves being performed.
	pending map[*MoveOperands]Operand
}

// NewGapResolver returns a resolver emitting through a.
func NewGapResolver(a MoveAssembler) *GapResolver {
	return &GapResolver{assembler: a, pending: map[*MoveOperands]Operand{}}
}

// Resolve emits moves equivalent to the parallel move. Moves are eliminated
// as they are performed.
func (r *GapResolver) Resolve(moves ParallelMove) {
	for _, m := range moves {
		if m.IsRedundant() {
			m.Eliminate()
		}
	}
	for _, m := range moves {
		if !m.IsEliminated() {
			r.performMove(moves, m)
		}
	}
}

func (r *GapResolver) isPending(m *MoveOperands) bool {
	_, ok := r.pending[m]
	return ok
}

// blocks returns true if m reads the location dst.
func blocks(m *MoveOperands, dst Operand) bool {
	return !m.IsEliminated() && m.Source.EqualsCanonicalized(dst)
}

// performMove emits move after every move reading its destination, which
// yields a depth-first traversal of the move graph. Cycles end in a swap.
func (r *GapResolver) performMove(moves ParallelMove, move *MoveOperands) {
	dst := move.Destination
	r.pending[move] = dst
	move.Destination = Operand{}

	for _, other := range moves {
		if other != move && blocks(other, dst) && !r.isPending(other) {
			r.performMove(moves, other)
		}
	}

	delete(r.pending, move)
	move.Destination = dst

	// A swap inside the cycle may have turned this move into a no-op.
	if move.Source.EqualsCanonicalized(dst) {
		move.Eliminate()
		return
	}

	var blocker *MoveOperands
	for _, other := range moves {
		if other != move && blocks(other, dst) {
			blocker = other
			break
		}
	}
	if blocker == nil {
		r.assembler.AssembleMove(&move.Source, &move.Destination)
		move.Eliminate()
		return
	}

	// blocker is pending: swap, then redirect the moves reading either side.
	src := move.Source
	r.assembler.AssembleSwap(&move.Source, &move.Destination)
	move.Eliminate()
	for _, other := range moves {
		if other.IsEliminated() {
			continue
		}
		switch {
		case other.Source.EqualsCanonicalized(src):
			relocate(&other.Source, dst)
		case other.Source.EqualsCanonicalized(dst):
			relocate(&other.Source, src)
		}
	}
}

// relocate points op at the storage of to, keeping its representation.
func relocate(op *Operand, to Operand) {
	op.kind, op.location, op.index = to.kind, to.location, to.index
}
