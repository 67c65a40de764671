// Package machine defines the machine-level representations values take once
// lowered, and the machine types combining a representation with the
// semantic interpretation of its bits.
package machine

import "fmt"

// Representation is the storage class of a value.
type Representation byte

const (
	RepNone Representation = iota
	// RepBit is a boolean held in a word32 as 0 or 1.
	RepBit
	RepWord8
	RepWord16
	RepWord32
	RepWord64
	RepFloat32
	RepFloat64
	// RepTagged is a pointer-sized reference the garbage collector must see.
	RepTagged
)

// String implements fmt.Stringer.
func (r Representation) String() string {
	switch r {
	case RepNone:
		return "none"
	case RepBit:
		return "bit"
	case RepWord8:
		return "word8"
	case RepWord16:
		return "word16"
	case RepWord32:
		return "word32"
	case RepWord64:
		return "word64"
	case RepFloat32:
		return "float32"
	case RepFloat64:
		return "float64"
	case RepTagged:
		return "tagged"
	}
	panic(fmt.Sprintf("BUG: unknown representation %d", r))
}

// IsFloatingPoint returns true for RepFloat32 and RepFloat64.
func (r Representation) IsFloatingPoint() bool {
	return r == RepFloat32 || r == RepFloat64
}

// IsWord32Compatible returns true when the value lives in the low 32 bits of a
// general purpose register.
func (r Representation) IsWord32Compatible() bool {
	switch r {
	case RepBit, RepWord8, RepWord16, RepWord32:
		return true
	}
	return false
}

// ByteWidth returns the number of bytes a value of this representation
// occupies in a stack slot or in memory.
func (r Representation) ByteWidth() int {
	switch r {
	case RepBit, RepWord8:
		return 1
	case RepWord16:
		return 2
	case RepWord32, RepFloat32:
		return 4
	case RepWord64, RepFloat64, RepTagged:
		return 8
	}
	return 0
}

// Semantic is how the bits of a representation are interpreted.
type Semantic byte

const (
	SemNone Semantic = iota
	SemBool
	SemInt32
	SemUint32
	SemInt64
	SemUint64
	SemNumber
	SemAny
)

// String implements fmt.Stringer.
func (s Semantic) String() string {
	switch s {
	case SemNone:
		return "none"
	case SemBool:
		return "bool"
	case SemInt32:
		return "int32"
	case SemUint32:
		return "uint32"
	case SemInt64:
		return "int64"
	case SemUint64:
		return "uint64"
	case SemNumber:
		return "number"
	case SemAny:
		return "any"
	}
	panic(fmt.Sprintf("BUG: unknown semantic %d", s))
}

// Type is a machine representation plus its semantic.
type Type struct {
	Rep Representation
	Sem Semantic
}

var (
	None      = Type{RepNone, SemNone}
	Bool      = Type{RepBit, SemBool}
	Int8      = Type{RepWord8, SemInt32}
	Uint8     = Type{RepWord8, SemUint32}
	Int16     = Type{RepWord16, SemInt32}
	Uint16    = Type{RepWord16, SemUint32}
	Int32     = Type{RepWord32, SemInt32}
	Uint32    = Type{RepWord32, SemUint32}
	Int64     = Type{RepWord64, SemInt64}
	Uint64    = Type{RepWord64, SemUint64}
	Float32   = Type{RepFloat32, SemNumber}
	Float64   = Type{RepFloat64, SemNumber}
	AnyTagged = Type{RepTagged, SemAny}

	// Pointer is an untagged native pointer.
	Pointer = Type{RepWord64, SemUint64}
)

// IsSigned returns true for signed integer semantics.
func (t Type) IsSigned() bool {
	return t.Sem == SemInt32 || t.Sem == SemInt64
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t.Rep == RepNone {
		return "none"
	}
	return t.Sem.String() + "|" + t.Rep.String()
}
