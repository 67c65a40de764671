// Package linkage describes calling conventions: where the arguments and
// results of a call live, and how the compiled function itself receives its
// parameters.
package linkage

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/isel/internal/machine"
)

// LocationKind is the kind of a Location.
type LocationKind byte

const (
	// LocationKindRegister is a specific register, identified by its code in
	// the register file matching the value representation.
	LocationKindRegister LocationKind = iota
	// LocationKindCallerFrameSlot is a slot in the caller's outgoing argument
	// area; slot 0 is the one closest to the return address.
	LocationKindCallerFrameSlot
	// LocationKindCalleeFrameSlot is a slot in the callee's own frame.
	LocationKindCalleeFrameSlot
	// LocationKindAnyRegister lets the register allocator pick.
	LocationKindAnyRegister
)

// String implements fmt.Stringer.
func (k LocationKind) String() string {
	switch k {
	case LocationKindRegister:
		return "reg"
	case LocationKindCallerFrameSlot:
		return "caller-slot"
	case LocationKindCalleeFrameSlot:
		return "callee-slot"
	case LocationKindAnyRegister:
		return "any-reg"
	default:
		panic("BUG")
	}
}

// Location is where a parameter, return value or call target lives at the
// call boundary.
type Location struct {
	Kind LocationKind
	// Index is the register code for LocationKindRegister and the slot index
	// for frame slots.
	Index int
}

// Register returns the location of the register with the given code.
func Register(code int) Location {
	return Location{Kind: LocationKindRegister, Index: code}
}

// CallerFrameSlot returns the location of the slot-th stack argument.
func CallerFrameSlot(slot int) Location {
	return Location{Kind: LocationKindCallerFrameSlot, Index: slot}
}

// CalleeFrameSlot returns the location of the slot-th slot of the callee frame.
func CalleeFrameSlot(slot int) Location {
	return Location{Kind: LocationKindCalleeFrameSlot, Index: slot}
}

// AnyRegister returns a location satisfied by any register.
func AnyRegister() Location {
	return Location{Kind: LocationKindAnyRegister}
}

// IsRegister returns true if this is a fixed register.
func (l Location) IsRegister() bool { return l.Kind == LocationKindRegister }

// IsCallerFrameSlot returns true if this is a stack argument slot.
func (l Location) IsCallerFrameSlot() bool { return l.Kind == LocationKindCallerFrameSlot }

// IsCalleeFrameSlot returns true if this is a slot of the callee's frame.
func (l Location) IsCalleeFrameSlot() bool { return l.Kind == LocationKindCalleeFrameSlot }

// IsAnyRegister returns true if any register will do.
func (l Location) IsAnyRegister() bool { return l.Kind == LocationKindAnyRegister }

// String implements fmt.Stringer.
func (l Location) String() string {
	if l.IsAnyRegister() {
		return l.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", l.Kind, l.Index)
}

// Signature is the machine-level type of a function.
type Signature struct {
	Params, Returns []machine.Type
}

// String implements fmt.Stringer.
func (s *Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range s.Returns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}
