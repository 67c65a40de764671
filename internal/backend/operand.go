package backend

import (
	"fmt"

	"github.com/tetratelabs/isel/internal/machine"
)

// VReg is a virtual register number, allocated by the InstructionSequence.
type VReg int32

// VRegInvalid marks the absence of a virtual register.
const VRegInvalid VReg = -1

// String implements fmt.Stringer.
func (v VReg) String() string {
	if v == VRegInvalid {
		return "v?"
	}
	return fmt.Sprintf("v%d", int32(v))
}

// OperandKind is the flavor of an Operand.
type OperandKind byte

const (
	OperandInvalid OperandKind = iota
	// OperandUnallocated refers to a virtual register with a placement policy.
	OperandUnallocated
	// OperandConstant refers to the virtual register of a constant node.
	OperandConstant
	// OperandImmediate is an inline int32 or an index into the immediates table.
	OperandImmediate
	// OperandExplicit is a location fixed before allocation, invisible to the allocator.
	OperandExplicit
	// OperandAllocated is a location chosen by the register allocator.
	OperandAllocated
)

// Policy is where the register allocator may place an unallocated operand.
type Policy byte

const (
	PolicyNone Policy = iota
	PolicyAny
	PolicyRegister
	PolicySlot
	PolicyFixedRegister
	PolicyFixedFPRegister
	PolicyFixedSlot
	PolicySameAsFirst
)

var policyNames = [...]string{
	PolicyNone:            "none",
	PolicyAny:             "any",
	PolicyRegister:        "R",
	PolicySlot:            "S",
	PolicyFixedRegister:   "fixed-r",
	PolicyFixedFPRegister: "fixed-fp",
	PolicyFixedSlot:       "fixed-s",
	PolicySameAsFirst:     "same",
}

// Lifetime tells whether an input is only read at the start of an
// instruction, so its register may be reused by an output or a temp.
type Lifetime byte

const (
	UsedAtEnd Lifetime = iota
	UsedAtStart
)

// LocationKind is the storage class of an explicit or allocated operand.
type LocationKind byte

const (
	LocationRegister LocationKind = iota
	LocationFPRegister
	LocationStackSlot
	LocationFPStackSlot
)

// ImmediateKind tells how an immediate operand stores its value.
type ImmediateKind byte

const (
	ImmediateInline ImmediateKind = iota
	ImmediateIndexed
)

// Operand is an input, output or temp of an Instruction. It is a comparable
// value type.
type Operand struct {
	kind     OperandKind
	policy   Policy
	lifetime Lifetime
	location LocationKind
	imm      ImmediateKind
	rep      machine.Representation
	vreg     VReg
	// index is the fixed register or slot of an unallocated operand, the
	// value or table index of an immediate, or the register code or slot
	// index of a location.
	index int32
}

// NewUnallocated returns an operand for vreg with a non-fixed policy.
func NewUnallocated(policy Policy, lifetime Lifetime, vreg VReg) Operand {
	switch policy {
	case PolicyFixedRegister, PolicyFixedFPRegister, PolicyFixedSlot:
		panic("BUG: fixed policy without index")
	}
	return Operand{kind: OperandUnallocated, policy: policy, lifetime: lifetime, vreg: vreg}
}

// NewFixed returns an operand for vreg fixed to a register, fp register or slot.
func NewFixed(policy Policy, index int, vreg VReg) Operand {
	switch policy {
	case PolicyFixedRegister, PolicyFixedFPRegister, PolicyFixedSlot:
	default:
		panic(fmt.Sprintf("BUG: %s is not a fixed policy", policyNames[policy]))
	}
	return Operand{kind: OperandUnallocated, policy: policy, lifetime: UsedAtEnd, vreg: vreg, index: int32(index)}
}

// NewConstantOperand returns the operand of a constant virtual register.
func NewConstantOperand(vreg VReg) Operand {
	return Operand{kind: OperandConstant, vreg: vreg}
}

// NewImmediate returns an inline immediate.
func NewImmediate(v int32) Operand {
	return Operand{kind: OperandImmediate, imm: ImmediateInline, vreg: VRegInvalid, index: v}
}

// NewIndexedImmediate returns an immediate stored at index in the immediates table.
func NewIndexedImmediate(index int) Operand {
	return Operand{kind: OperandImmediate, imm: ImmediateIndexed, vreg: VRegInvalid, index: int32(index)}
}

// NewExplicit returns a location operand fixed before register allocation.
func NewExplicit(kind LocationKind, rep machine.Representation, index int) Operand {
	return Operand{kind: OperandExplicit, location: kind, rep: rep, vreg: VRegInvalid, index: int32(index)}
}

// NewAllocated returns a location operand chosen by the register allocator.
func NewAllocated(kind LocationKind, rep machine.Representation, index int) Operand {
	return Operand{kind: OperandAllocated, location: kind, rep: rep, vreg: VRegInvalid, index: int32(index)}
}

// RegisterOperand returns the allocated register or fp register for rep.
func RegisterOperand(rep machine.Representation, code int) Operand {
	if rep.IsFloatingPoint() {
		return NewAllocated(LocationFPRegister, rep, code)
	}
	return NewAllocated(LocationRegister, rep, code)
}

// StackSlotOperand returns the allocated stack slot or fp stack slot for rep.
func StackSlotOperand(rep machine.Representation, slot int) Operand {
	if rep.IsFloatingPoint() {
		return NewAllocated(LocationFPStackSlot, rep, slot)
	}
	return NewAllocated(LocationStackSlot, rep, slot)
}

// Kind returns the flavor of o.
func (o Operand) Kind() OperandKind { return o.kind }

// IsInvalid returns true for the zero Operand.
func (o Operand) IsInvalid() bool { return o.kind == OperandInvalid }

// IsUnallocated returns true for operands waiting for register allocation.
func (o Operand) IsUnallocated() bool { return o.kind == OperandUnallocated }

// IsConstant returns true for constant operands.
func (o Operand) IsConstant() bool { return o.kind == OperandConstant }

// IsImmediate returns true for immediates.
func (o Operand) IsImmediate() bool { return o.kind == OperandImmediate }

// IsExplicit returns true for explicit locations.
func (o Operand) IsExplicit() bool { return o.kind == OperandExplicit }

// IsAllocated returns true for allocated locations.
func (o Operand) IsAllocated() bool { return o.kind == OperandAllocated }

// IsLocation returns true for explicit and allocated operands.
func (o Operand) IsLocation() bool { return o.kind == OperandExplicit || o.kind == OperandAllocated }

// IsRegister returns true for general purpose register locations.
func (o Operand) IsRegister() bool { return o.IsLocation() && o.location == LocationRegister }

// IsFPRegister returns true for floating point register locations.
func (o Operand) IsFPRegister() bool { return o.IsLocation() && o.location == LocationFPRegister }

// IsAnyRegister returns true for register and fp register locations.
func (o Operand) IsAnyRegister() bool { return o.IsRegister() || o.IsFPRegister() }

// IsStackSlot returns true for general purpose stack slots.
func (o Operand) IsStackSlot() bool { return o.IsLocation() && o.location == LocationStackSlot }

// IsFPStackSlot returns true for floating point stack slots.
func (o Operand) IsFPStackSlot() bool { return o.IsLocation() && o.location == LocationFPStackSlot }

// IsAnyStackSlot returns true for stack slot and fp stack slot locations.
func (o Operand) IsAnyStackSlot() bool { return o.IsStackSlot() || o.IsFPStackSlot() }

// VirtualRegister returns the virtual register of an unallocated or constant operand.
func (o Operand) VirtualRegister() VReg {
	if o.kind != OperandUnallocated && o.kind != OperandConstant {
		panic(fmt.Sprintf("BUG: %s has no virtual register", o))
	}
	return o.vreg
}

// HasVirtualRegister returns true for unallocated and constant operands.
func (o Operand) HasVirtualRegister() bool {
	return o.kind == OperandUnallocated || o.kind == OperandConstant
}

// Policy returns the policy of an unallocated operand.
func (o Operand) Policy() Policy { return o.policy }

// Lifetime returns the lifetime of an unallocated operand.
func (o Operand) Lifetime() Lifetime { return o.lifetime }

// IsUsedAtStart returns true for inputs only read at the start of the instruction.
func (o Operand) IsUsedAtStart() bool { return o.lifetime == UsedAtStart }

// HasFixedPolicy returns true for fixed register, fp register and slot policies.
func (o Operand) HasFixedPolicy() bool {
	switch o.policy {
	case PolicyFixedRegister, PolicyFixedFPRegister, PolicyFixedSlot:
		return o.kind == OperandUnallocated
	}
	return false
}

// FixedIndex returns the register code or slot of a fixed unallocated operand.
func (o Operand) FixedIndex() int {
	if !o.HasFixedPolicy() {
		panic(fmt.Sprintf("BUG: %s is not fixed", o))
	}
	return int(o.index)
}

// LocationKind returns the storage class of a location operand.
func (o Operand) LocationKind() LocationKind { return o.location }

// Index returns the register code or slot index of a location operand.
func (o Operand) Index() int {
	if !o.IsLocation() {
		panic(fmt.Sprintf("BUG: %s is not a location", o))
	}
	return int(o.index)
}

// Representation returns the representation of a location operand.
func (o Operand) Representation() machine.Representation { return o.rep }

// ImmediateKind returns how an immediate stores its value.
func (o Operand) ImmediateKind() ImmediateKind { return o.imm }

// InlineValue returns the value of an inline immediate.
func (o Operand) InlineValue() int32 {
	if o.kind != OperandImmediate || o.imm != ImmediateInline {
		panic(fmt.Sprintf("BUG: %s is not an inline immediate", o))
	}
	return o.index
}

// ImmediateIndex returns the immediates table index of an indexed immediate.
func (o Operand) ImmediateIndex() int {
	if o.kind != OperandImmediate || o.imm != ImmediateIndexed {
		panic(fmt.Sprintf("BUG: %s is not an indexed immediate", o))
	}
	return int(o.index)
}

// EqualsCanonicalized returns true if both operands denote the same storage,
// ignoring the explicit or allocated flavor and the representation.
func (o Operand) EqualsCanonicalized(other Operand) bool {
	if o.IsLocation() && other.IsLocation() {
		return o.canonicalLocation() == other.canonicalLocation() && o.index == other.index
	}
	return o == other
}

func (o Operand) canonicalLocation() LocationKind {
	// Stack slots share one index space whatever the representation.
	if o.location == LocationFPStackSlot {
		return LocationStackSlot
	}
	return o.location
}

// String implements fmt.Stringer.
func (o Operand) String() string {
	switch o.kind {
	case OperandInvalid:
		return "(-)"
	case OperandUnallocated:
		var s string
		switch o.policy {
		case PolicyFixedRegister:
			s = fmt.Sprintf("(=r%d)", o.index)
		case PolicyFixedFPRegister:
			s = fmt.Sprintf("(=d%d)", o.index)
		case PolicyFixedSlot:
			s = fmt.Sprintf("(=S%d)", o.index)
		case PolicyNone:
			s = ""
		default:
			s = "(" + policyNames[o.policy] + ")"
		}
		if o.lifetime == UsedAtStart {
			s += "|s"
		}
		return o.vreg.String() + s
	case OperandConstant:
		return fmt.Sprintf("[constant:%d]", o.vreg)
	case OperandImmediate:
		if o.imm == ImmediateInline {
			return fmt.Sprintf("#%d", o.index)
		}
		return fmt.Sprintf("[immediate:%d]", o.index)
	}
	prefix := ""
	if o.kind == OperandExplicit {
		prefix = "E"
	}
	switch o.location {
	case LocationRegister:
		return fmt.Sprintf("[%sr%d|%s]", prefix, o.index, o.rep)
	case LocationFPRegister:
		return fmt.Sprintf("[%sd%d|%s]", prefix, o.index, o.rep)
	case LocationStackSlot:
		return fmt.Sprintf("[%sstack:%d|%s]", prefix, o.index, o.rep)
	default:
		return fmt.Sprintf("[%sfp_stack:%d|%s]", prefix, o.index, o.rep)
	}
}
