package ir

import (
	"fmt"
	"math"
	"strings"
)

// TypeBits is the bitset part of a Type.
type TypeBits uint8

const (
	TypeBitBoolean TypeBits = 1 << iota
	// TypeBitInteger is the set of integral numbers within the range of the Type.
	TypeBitInteger
	// TypeBitOtherNumber covers non-integral and out of range numbers, infinities included.
	TypeBitOtherNumber
	TypeBitMinusZero
	TypeBitNaN
	// TypeBitOther is any tagged value which is not a number.
	TypeBitOther

	typeBitsNumber = TypeBitInteger | TypeBitOtherNumber | TypeBitMinusZero | TypeBitNaN
	typeBitsAll    = TypeBitBoolean | typeBitsNumber | TypeBitOther
)

// Type is an element of the type lattice: a bitset plus, when the
// TypeBitInteger bit is set, the inclusive integer range [Min, Max].
type Type struct {
	bits     TypeBits
	min, max float64
}

var (
	// TypeNone is the bottom of the lattice.
	TypeNone       = Type{}
	TypeBoolean    = Type{bits: TypeBitBoolean}
	TypeSigned32   = IntegerRange(math.MinInt32, math.MaxInt32)
	TypeUnsigned32 = IntegerRange(0, math.MaxUint32)
	// TypeInteger is every integral number.
	TypeInteger = IntegerRange(math.Inf(-1), math.Inf(1))
	TypeNumber  = Type{bits: typeBitsNumber, min: math.Inf(-1), max: math.Inf(1)}
	TypeNaN     = Type{bits: TypeBitNaN}
	TypeAny     = Type{bits: typeBitsAll, min: math.Inf(-1), max: math.Inf(1)}
	TypeOther   = Type{bits: TypeBitOther}
)

// IntegerRange returns the type of the integers in [min, max].
func IntegerRange(min, max float64) Type {
	if min > max {
		panic(fmt.Sprintf("BUG: empty range [%v, %v]", min, max))
	}
	return Type{bits: TypeBitInteger, min: min, max: max}
}

// ConstantType returns the most precise type of the number v.
func ConstantType(v float64) Type {
	switch {
	case math.IsNaN(v):
		return TypeNaN
	case v == 0 && math.Signbit(v):
		return Type{bits: TypeBitMinusZero}
	case v == math.Trunc(v) && !math.IsInf(v, 0):
		return IntegerRange(v, v)
	default:
		return Type{bits: TypeBitOtherNumber}
	}
}

// Bits returns the bitset of t.
func (t Type) Bits() TypeBits { return t.bits }

// Min returns the lower bound of the integer range.
func (t Type) Min() float64 { return t.min }

// Max returns the upper bound of the integer range.
func (t Type) Max() float64 { return t.max }

// IsNone returns true for the empty type.
func (t Type) IsNone() bool { return t.bits == 0 }

// Maybe returns true if t may contain any value of bits.
func (t Type) Maybe(bits TypeBits) bool { return t.bits&bits != 0 }

// IsIntegerRange returns true if t only contains integers.
func (t Type) IsIntegerRange() bool { return t.bits == TypeBitInteger }

// Is returns true if t is a subtype of other.
func (t Type) Is(other Type) bool {
	if t.bits&^other.bits != 0 {
		return false
	}
	if t.bits&TypeBitInteger != 0 {
		return other.min <= t.min && t.max <= other.max
	}
	return true
}

// Union returns the least upper bound of t and other.
func (t Type) Union(other Type) Type {
	ret := Type{bits: t.bits | other.bits}
	switch {
	case t.bits&TypeBitInteger != 0 && other.bits&TypeBitInteger != 0:
		ret.min, ret.max = math.Min(t.min, other.min), math.Max(t.max, other.max)
	case t.bits&TypeBitInteger != 0:
		ret.min, ret.max = t.min, t.max
	case other.bits&TypeBitInteger != 0:
		ret.min, ret.max = other.min, other.max
	}
	return ret
}

// Without returns t with bits removed.
func (t Type) Without(bits TypeBits) Type {
	ret := Type{bits: t.bits &^ bits}
	if ret.bits&TypeBitInteger != 0 {
		ret.min, ret.max = t.min, t.max
	}
	return ret
}

// IsSigned32 returns true if every value of t fits an int32.
func (t Type) IsSigned32() bool { return !t.IsNone() && t.Is(TypeSigned32) }

// IsUnsigned32 returns true if every value of t fits an uint32.
func (t Type) IsUnsigned32() bool { return !t.IsNone() && t.Is(TypeUnsigned32) }

// IsNumber returns true if t only contains numbers.
func (t Type) IsNumber() bool { return !t.IsNone() && t.Is(TypeNumber) }

// String implements fmt.Stringer.
func (t Type) String() string {
	if t.IsNone() {
		return "None"
	}
	if t.bits == typeBitsAll {
		return "Any"
	}
	var parts []string
	if t.Maybe(TypeBitBoolean) {
		parts = append(parts, "Boolean")
	}
	if t.Maybe(TypeBitInteger) {
		if t.min == t.max {
			parts = append(parts, fmt.Sprintf("Constant(%v)", t.min))
		} else {
			parts = append(parts, fmt.Sprintf("Range(%v, %v)", t.min, t.max))
		}
	}
	if t.Maybe(TypeBitOtherNumber) {
		parts = append(parts, "OtherNumber")
	}
	if t.Maybe(TypeBitMinusZero) {
		parts = append(parts, "MinusZero")
	}
	if t.Maybe(TypeBitNaN) {
		parts = append(parts, "NaN")
	}
	if t.Maybe(TypeBitOther) {
		parts = append(parts, "Other")
	}
	return strings.Join(parts, "|")
}
