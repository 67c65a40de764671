package backend

import (
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
)

// Pattern selects the instructions of one machine opcode.
type Pattern func(s *InstructionSelector, n *ir.Node)

// RegisterConfig describes the register files of a target.
type RegisterConfig struct {
	// GeneralNames and FPNames are indexed by register code.
	GeneralNames, FPNames []string
	// AllocatableGeneral and AllocatableFP list the codes the register
	// allocator may assign, in preference order.
	AllocatableGeneral, AllocatableFP []int
	// ScratchGeneral and ScratchFP break move cycles in the gap resolver.
	ScratchGeneral, ScratchFP int
	// FixupGeneral and FixupFP load spilled operands of instructions which
	// need them in registers.
	FixupGeneral, FixupFP []int
}

// Target is what the selector and the later phases need from an
// architecture. Targets are stateless and safe for concurrent use.
type Target interface {
	// Name returns the architecture name.
	Name() string
	// OpcodeName names target-specific opcodes.
	OpcodeName(o ArchOpcode) string
	// Convention returns the calling convention functions are compiled with.
	Convention() *linkage.Convention
	// Registers returns the register configuration.
	Registers() *RegisterConfig
	// CheckSupport returns an error wrapping iselapi.ErrBailout if n can not
	// be selected on this target, e.g. because of a missing CPU feature.
	CheckSupport(n *ir.Node) error
	// Pattern returns the selection routine of a machine opcode, or nil.
	Pattern(op ir.Opcode) Pattern
	// VisitWordCompareZero selects the instructions comparing value against
	// zero on behalf of user, combining the comparison into cont when
	// value is a coverable comparison.
	VisitWordCompareZero(s *InstructionSelector, user, value *ir.Node, cont *FlagsContinuation)
	// EmitPrepareArguments moves the stack arguments of call into place.
	// args is indexed by caller frame slot.
	EmitPrepareArguments(s *InstructionSelector, args []PushParameter, d *linkage.CallDescriptor, call *ir.Node)
	// GenerateCode assembles a register-allocated sequence.
	GenerateCode(in *CodeGenInput) (*GeneratedCode, error)
}

// CodeGenInput is everything the code generator reads.
type CodeGenInput struct {
	Sequence *InstructionSequence
	Frame    *Frame
	Linkage  *linkage.Linkage
	Tracer   *iselapi.Tracer
}

// RelocationKind is the kind of a Relocation.
type RelocationKind byte

const (
	// RelocationExternalReference is the 64-bit address of an external symbol.
	RelocationExternalReference RelocationKind = iota
	// RelocationCodeObject is the 64-bit address of a heap object.
	RelocationCodeObject
)

// Relocation is a spot in the code the embedder must patch.
type Relocation struct {
	Kind RelocationKind
	// Offset is the byte offset of the patched field.
	Offset int
	Name   string
}

// Safepoint is a call return address with the tagged stack slots live across it.
type Safepoint struct {
	Offset int
	Slots  []int
	// StateID is the deoptimization entry of the call, -1 if it has none.
	StateID int
	// Values locates the frame state values of StateID.
	Values []Operand
	// Handler is the code offset of the exception handler, -1 if none.
	Handler int
}

// DeoptimizationExit is the code offset of the exit of a deoptimization entry.
type DeoptimizationExit struct {
	StateID int
	Offset  int
	// Values locates the frame state values, laid out as the descriptor of
	// the entry.
	Values []Operand
}

// SourcePositionEntry maps a code offset to a position in the source.
type SourcePositionEntry struct {
	Offset   int
	Position ir.SourcePosition
}

// GeneratedCode is the output of the code generator.
type GeneratedCode struct {
	Code            []byte
	Listing         string
	Relocations     []Relocation
	Safepoints      []Safepoint
	Deoptimizations []DeoptimizationExit
	SourcePositions []SourcePositionEntry
}
