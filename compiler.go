// Package isel compiles sea-of-nodes graphs to x86-64 machine code through
// scheduling, instruction selection and register allocation.
//
// Graphs are built with the operators of internal/ir, so Function is only
// constructed by packages of this module such as cmd/iseldump. The results
// in CompiledCode use the types declared here and can be read by anyone.
package isel

import (
	"context"
	"errors"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/backend/isa/x64"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/lowering"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/pipeline"
)

// ErrBailout is wrapped by the errors of functions the compiler gives up
// on: resource limits, or nodes the target can not compile.
var ErrBailout = iselapi.ErrBailout

type (
	// Graph is the sea-of-nodes graph of a function.
	Graph = ir.Graph
	// Signature lists the parameter and return types of a function.
	Signature = linkage.Signature
	// Inlinee is a function the inliner may substitute for calls to it.
	Inlinee = lowering.Inlinee
	// Type is a machine type of a value.
	Type = machine.Type

	// Relocation is a spot in Code the embedder must patch.
	Relocation = backend.Relocation
	// RelocationKind is the kind of a Relocation.
	RelocationKind = backend.RelocationKind
	// Safepoint records the spill slots holding references at a call.
	Safepoint = backend.Safepoint
	// DeoptimizationExit is the code of a deoptimization point.
	DeoptimizationExit = backend.DeoptimizationExit
	// SourcePositionEntry maps a code offset to a position in the source.
	SourcePositionEntry = backend.SourcePositionEntry
	// Operand locates a value recorded by a Safepoint or DeoptimizationExit.
	Operand = backend.Operand
)

const (
	// RelocationExternalReference is the 64-bit address of an external symbol.
	RelocationExternalReference = backend.RelocationExternalReference
	// RelocationCodeObject is the 64-bit address of a heap object.
	RelocationCodeObject = backend.RelocationCodeObject
)

// Function is a function to compile.
type Function struct {
	Name      string
	Signature *Signature
	// Build adds the graph of the function to g, setting its Start and End.
	Build func(g *Graph) error
	// OSR marks graphs entered at a loop. OSRValues are the types of the
	// values live at the loop, passed after the parameters.
	OSR       bool
	OSRValues []Type
	// Inlinees are the functions calls may be replaced with, by the heap
	// object index of the call target.
	Inlinees map[int]*Inlinee
}

// CompiledCode is the machine code of a function and its metadata.
type CompiledCode struct {
	Code []byte
	// Listing is the assembly of Code.
	Listing string
	// FrameSize is the number of bytes of spill slots in the frame.
	FrameSize       int
	FrameElided     bool
	Relocations     []Relocation
	Safepoints      []Safepoint
	Deoptimizations []DeoptimizationExit
	SourcePositions []SourcePositionEntry
	// Phases lists the phases run, in order.
	Phases []string
}

// Compiler compiles functions. It is safe for concurrent use.
type Compiler interface {
	// Compile compiles fn. ctx is checked between phases: once it is done
	// no further phase runs and its error is returned.
	//
	// Errors of functions the compiler gives up on wrap ErrBailout.
	Compile(ctx context.Context, fn *Function) (*CompiledCode, error)
}

// NewCompiler returns a Compiler configured by config. A nil config uses
// NewCompilerConfig.
func NewCompiler(config CompilerConfig) Compiler {
	if config == nil {
		config = NewCompilerConfig()
	}
	c := config.(*compilerConfig).clone()
	if c.target == nil {
		c.target = x64.NewTarget(x64.DetectFeatures())
	}
	return &compiler{config: c}
}

type compiler struct {
	config *compilerConfig
}

// Compile implements Compiler.Compile
func (c *compiler) Compile(ctx context.Context, fn *Function) (*CompiledCode, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	p := pipeline.New(&pipeline.Function{
		Name:      fn.Name,
		Signature: fn.Signature,
		Build:     fn.Build,
		OSR:       fn.OSR,
		OSRValues: fn.OSRValues,
		Inlinees:  fn.Inlinees,
	}, c.options())
	res, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &CompiledCode{
		Code:            res.Code.Code,
		Listing:         res.Code.Listing,
		FrameSize:       res.Frame.FrameSize(),
		FrameElided:     res.Frame.IsElided(),
		Relocations:     res.Code.Relocations,
		Safepoints:      res.Code.Safepoints,
		Deoptimizations: res.Code.Deoptimizations,
		SourcePositions: res.Code.SourcePositions,
		Phases:          res.Phases,
	}, nil
}

func (c *compiler) options() *pipeline.Options {
	cfg := c.config
	opts := &pipeline.Options{
		Target:              cfg.target,
		Allocator:           cfg.allocator,
		Typing:              cfg.typing,
		Inlining:            cfg.inlining,
		FrameElision:        cfg.frameElision,
		JumpThreading:       cfg.jumpThreading,
		MoveOptimization:    cfg.moveOptimization,
		SwitchJumpTables:    cfg.switchJumpTables,
		AllSourcePositions:  cfg.allSourcePositions,
		Verification:        cfg.verification,
		MaxVirtualRegisters: cfg.maxVRegs,
		MaxSpillSlots:       cfg.maxSpillSlots,
		AllocationSVG:       cfg.allocationSVG,
	}
	if cfg.trace != nil {
		opts.Tracer = iselapi.NewTracer(cfg.trace)
	}
	return opts
}
