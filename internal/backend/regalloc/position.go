package regalloc

import "fmt"

// Position is an opaque index into the sequence. Each instruction owns
// positionStride consecutive positions, in execution order.
type Position int32

const (
	// posStartUse reads the sources of the start gap.
	posStartUse Position = iota
	// posStartDef writes the destinations of the start gap.
	posStartDef
	posEndUse
	posEndDef
	// posInput reads the used-at-start inputs.
	posInput
	// posOutput writes the outputs and reads the used-at-end inputs.
	posOutput
	positionStride
)

// at returns the position offset of instruction index.
func at(index int, offset Position) Position {
	return Position(index)*positionStride + offset
}

// InstructionIndex returns the instruction p belongs to.
func (p Position) InstructionIndex() int { return int(p / positionStride) }

// String implements fmt.Stringer.
func (p Position) String() string {
	names := [...]string{"gs", "gs'", "ge", "ge'", "in", "out"}
	return fmt.Sprintf("%d.%s", p.InstructionIndex(), names[p%positionStride])
}

func blockStart(codeStart int) Position { return at(codeStart, posStartUse) }

func blockEnd(codeEnd int) Position { return at(codeEnd, posStartUse) - 1 }
