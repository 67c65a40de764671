// Package pipeline sequences the phases turning a graph into machine code:
// graph building, graph optimization and lowering, scheduling, instruction
// selection, register allocation and code generation.
package pipeline

import (
	"io"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/backend/regalloc"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/lowering"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
	"github.com/tetratelabs/isel/internal/zone"
)

// DefaultInlineBudget is the number of nodes inlining may add to a function
// when Options.InlineBudget is zero.
const DefaultInlineBudget = 200

// Options select the optional phases and the limits of a compilation.
type Options struct {
	Target    backend.Target
	Allocator regalloc.Algorithm

	Typing             bool
	Inlining           bool
	InlineBudget       int
	FrameElision       bool
	JumpThreading      bool
	MoveOptimization   bool
	SwitchJumpTables   bool
	AllSourcePositions bool
	// Verification runs the graph and instruction verifiers between phases.
	Verification bool

	// MaxVirtualRegisters and MaxSpillSlots bail out of functions needing
	// more. Zero means no limit.
	MaxVirtualRegisters int
	MaxSpillSlots       int

	Tracer *iselapi.Tracer
	// AllocationSVG receives the live ranges once registers are allocated.
	AllocationSVG io.Writer
}

// Function is a function to compile.
type Function struct {
	Name      string
	Signature *linkage.Signature
	// Build adds the graph of the function to g, setting its Start and End.
	Build func(g *ir.Graph) error
	// OSR marks graphs entered at a loop: OSRValues are the types of the
	// OsrValue nodes, passed after the parameters of Signature.
	OSR       bool
	OSRValues []machine.Type
	// Inlinees resolves the HeapConstant targets of calls the inliner may
	// replace, by heap object index.
	Inlinees map[int]*lowering.Inlinee
}

// Data is the state of one compilation shared by its phases. Nothing in it
// is shared between compilations.
type Data struct {
	opts *Options
	fn   *Function
	// signature is the incoming signature, OSR values included.
	signature *linkage.Signature

	graphZone       *zone.Zone
	instructionZone *zone.Zone

	graph     *ir.Graph
	schedule  *schedule.Schedule
	linkage   *linkage.Linkage
	sequence  *backend.InstructionSequence
	frame     *backend.Frame
	allocator *regalloc.Allocator
	code      *backend.GeneratedCode

	// failed is sticky: once a phase fails no later phase runs.
	failed bool
	err    error
	phases []string
}

func (d *Data) fail(err error) {
	if d.failed {
		return
	}
	d.failed, d.err = true, err
}

// Failed returns true if a phase failed.
func (d *Data) Failed() bool { return d.failed }

// Err returns the error of the first failed phase.
func (d *Data) Err() error { return d.err }

// Phases returns the names of the phases run so far, in order.
func (d *Data) Phases() []string { return d.phases }

func (d *Data) tracer() *iselapi.Tracer { return d.opts.Tracer }
