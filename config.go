package isel

import (
	"io"

	"github.com/tetratelabs/isel/internal/backend"
	"github.com/tetratelabs/isel/internal/backend/isa/x64"
	"github.com/tetratelabs/isel/internal/backend/regalloc"
)

// Allocator selects the register allocation algorithm.
type Allocator = regalloc.Algorithm

const (
	// AllocatorLinearScan allocates live ranges in start order, spilling the
	// one ending last when registers run out.
	AllocatorLinearScan Allocator = regalloc.LinearScan
	// AllocatorGreedy allocates the longest live ranges first, evicting
	// lighter ones.
	AllocatorGreedy Allocator = regalloc.Greedy
)

// CPUFeatures are the optional x86-64 extensions the code generator may use.
type CPUFeatures = x64.Features

// CompilerConfig controls the phases and limits of compilations, with the
// default implementation as NewCompilerConfig.
//
// Note: CompilerConfig is immutable. Each WithXXX function returns a new
// instance including the corresponding change.
type CompilerConfig interface {
	// WithTarget sets the target to generate code for. Defaults to x86-64
	// using the features of the host CPU.
	WithTarget(backend.Target) CompilerConfig

	// WithCPUFeatures sets the x86-64 target with the given features instead
	// of those detected on the host. This overrides WithTarget.
	WithCPUFeatures(CPUFeatures) CompilerConfig

	// WithAllocator selects the register allocator. Defaults to
	// AllocatorLinearScan.
	WithAllocator(Allocator) CompilerConfig

	// WithTyping runs the typer before lowering. Defaults to true.
	WithTyping(enabled bool) CompilerConfig

	// WithInlining replaces calls to Function.Inlinees with their bodies.
	// Defaults to true.
	WithInlining(enabled bool) CompilerConfig

	// WithFrameElision skips the frame of functions without spill slots,
	// calls or deoptimizations. Defaults to true.
	WithFrameElision(enabled bool) CompilerConfig

	// WithJumpThreading forwards jumps to blocks that only jump. Defaults to
	// true.
	WithJumpThreading(enabled bool) CompilerConfig

	// WithMoveOptimization merges the gap moves left by register allocation.
	// Defaults to true.
	WithMoveOptimization(enabled bool) CompilerConfig

	// WithVerification verifies the graph and the instruction sequence
	// between phases. Defaults to false.
	WithVerification(enabled bool) CompilerConfig

	// WithAllSourcePositions records the source position of every selected
	// node, not only those of calls and deoptimization points.
	WithAllSourcePositions(enabled bool) CompilerConfig

	// WithSwitchJumpTables lowers dense switches to jump tables.
	WithSwitchJumpTables(enabled bool) CompilerConfig

	// WithTraceWriter writes the phases and the intermediate graphs,
	// schedules and listings of each compilation to w. Nil disables tracing.
	//
	// Note: compilations sharing w must not run concurrently.
	WithTraceWriter(w io.Writer) CompilerConfig

	// WithAllocationSVG writes the live ranges of each compilation to w as
	// SVG once registers are allocated.
	WithAllocationSVG(w io.Writer) CompilerConfig

	// WithMaxVirtualRegisters bails out of functions needing more virtual
	// registers. Zero means no limit.
	WithMaxVirtualRegisters(n int) CompilerConfig

	// WithMaxSpillSlots bails out of functions needing more spill slots.
	// Zero means no limit.
	WithMaxSpillSlots(n int) CompilerConfig
}

// NewCompilerConfig returns the default CompilerConfig.
func NewCompilerConfig() CompilerConfig {
	return configDefault.clone()
}

type compilerConfig struct {
	target             backend.Target
	allocator          Allocator
	typing             bool
	inlining           bool
	frameElision       bool
	jumpThreading      bool
	moveOptimization   bool
	verification       bool
	allSourcePositions bool
	switchJumpTables   bool
	trace              io.Writer
	allocationSVG      io.Writer
	maxVRegs           int
	maxSpillSlots      int
}

// configDefault helps avoid copy/pasting the wrong defaults.
var configDefault = &compilerConfig{
	allocator:        AllocatorLinearScan,
	typing:           true,
	inlining:         true,
	frameElision:     true,
	jumpThreading:    true,
	moveOptimization: true,
	switchJumpTables: true,
}

// clone makes a deep copy of this compiler config.
func (c *compilerConfig) clone() *compilerConfig {
	ret := *c
	return &ret
}

// WithTarget implements CompilerConfig.WithTarget
func (c *compilerConfig) WithTarget(target backend.Target) CompilerConfig {
	ret := c.clone()
	ret.target = target
	return ret
}

// WithCPUFeatures implements CompilerConfig.WithCPUFeatures
func (c *compilerConfig) WithCPUFeatures(features CPUFeatures) CompilerConfig {
	ret := c.clone()
	ret.target = x64.NewTarget(features)
	return ret
}

// WithAllocator implements CompilerConfig.WithAllocator
func (c *compilerConfig) WithAllocator(allocator Allocator) CompilerConfig {
	ret := c.clone()
	ret.allocator = allocator
	return ret
}

// WithTyping implements CompilerConfig.WithTyping
func (c *compilerConfig) WithTyping(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.typing = enabled
	return ret
}

// WithInlining implements CompilerConfig.WithInlining
func (c *compilerConfig) WithInlining(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.inlining = enabled
	return ret
}

// WithFrameElision implements CompilerConfig.WithFrameElision
func (c *compilerConfig) WithFrameElision(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.frameElision = enabled
	return ret
}

// WithJumpThreading implements CompilerConfig.WithJumpThreading
func (c *compilerConfig) WithJumpThreading(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.jumpThreading = enabled
	return ret
}

// WithMoveOptimization implements CompilerConfig.WithMoveOptimization
func (c *compilerConfig) WithMoveOptimization(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.moveOptimization = enabled
	return ret
}

// WithVerification implements CompilerConfig.WithVerification
func (c *compilerConfig) WithVerification(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.verification = enabled
	return ret
}

// WithAllSourcePositions implements CompilerConfig.WithAllSourcePositions
func (c *compilerConfig) WithAllSourcePositions(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.allSourcePositions = enabled
	return ret
}

// WithSwitchJumpTables implements CompilerConfig.WithSwitchJumpTables
func (c *compilerConfig) WithSwitchJumpTables(enabled bool) CompilerConfig {
	ret := c.clone()
	ret.switchJumpTables = enabled
	return ret
}

// WithTraceWriter implements CompilerConfig.WithTraceWriter
func (c *compilerConfig) WithTraceWriter(w io.Writer) CompilerConfig {
	ret := c.clone()
	ret.trace = w
	return ret
}

// WithAllocationSVG implements CompilerConfig.WithAllocationSVG
func (c *compilerConfig) WithAllocationSVG(w io.Writer) CompilerConfig {
	ret := c.clone()
	ret.allocationSVG = w
	return ret
}

// WithMaxVirtualRegisters implements CompilerConfig.WithMaxVirtualRegisters
func (c *compilerConfig) WithMaxVirtualRegisters(n int) CompilerConfig {
	ret := c.clone()
	ret.maxVRegs = n
	return ret
}

// WithMaxSpillSlots implements CompilerConfig.WithMaxSpillSlots
func (c *compilerConfig) WithMaxSpillSlots(n int) CompilerConfig {
	ret := c.clone()
	ret.maxSpillSlots = n
	return ret
}
