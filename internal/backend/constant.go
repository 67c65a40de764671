package backend

import (
	"fmt"
	"math"
)

// ConstantKind is the flavor of a Constant.
type ConstantKind byte

const (
	ConstantInt32 ConstantKind = iota
	ConstantInt64
	ConstantFloat32
	ConstantFloat64
	// ConstantExternalReference is the address of a named external symbol, resolved through a relocation.
	ConstantExternalReference
	// ConstantHeapObject is a tagged reference to the heap constant at an index of the compilation.
	ConstantHeapObject
	// ConstantRPONumber is the address of a block label.
	ConstantRPONumber
)

// Constant is the value of a constant virtual register or of an indexed immediate.
type Constant struct {
	kind ConstantKind
	bits int64
	name string
}

// NewInt32Constant returns an int32 constant.
func NewInt32Constant(v int32) Constant { return Constant{kind: ConstantInt32, bits: int64(v)} }

// NewInt64Constant returns an int64 constant.
func NewInt64Constant(v int64) Constant { return Constant{kind: ConstantInt64, bits: v} }

// NewFloat32Constant returns a float32 constant.
func NewFloat32Constant(v float32) Constant {
	return Constant{kind: ConstantFloat32, bits: int64(math.Float32bits(v))}
}

// NewFloat64Constant returns a float64 constant.
func NewFloat64Constant(v float64) Constant {
	return Constant{kind: ConstantFloat64, bits: int64(math.Float64bits(v))}
}

// NewExternalReference returns the address of the external symbol name.
func NewExternalReference(name string) Constant {
	return Constant{kind: ConstantExternalReference, name: name}
}

// NewHeapObject returns the heap constant at index.
func NewHeapObject(index int, name string) Constant {
	return Constant{kind: ConstantHeapObject, bits: int64(index), name: name}
}

// NewRPONumberConstant returns the label of the block with the given RPO number.
func NewRPONumberConstant(rpo int) Constant {
	return Constant{kind: ConstantRPONumber, bits: int64(rpo)}
}

// Kind returns the flavor of c.
func (c Constant) Kind() ConstantKind { return c.kind }

// FitsInt32 returns true for integer constants representable as int32.
func (c Constant) FitsInt32() bool {
	switch c.kind {
	case ConstantInt32:
		return true
	case ConstantInt64:
		return c.bits == int64(int32(c.bits))
	}
	return false
}

// ToInt32 returns the value of an integer constant fitting in int32.
func (c Constant) ToInt32() int32 {
	if !c.FitsInt32() {
		panic(fmt.Sprintf("BUG: %s does not fit in int32", c))
	}
	return int32(c.bits)
}

// ToInt64 returns the value of an integer constant.
func (c Constant) ToInt64() int64 {
	if c.kind != ConstantInt32 && c.kind != ConstantInt64 {
		panic(fmt.Sprintf("BUG: %s is not an integer", c))
	}
	return c.bits
}

// ToFloat32 returns the value of a float32 constant.
func (c Constant) ToFloat32() float32 {
	if c.kind != ConstantFloat32 {
		panic(fmt.Sprintf("BUG: %s is not a float32", c))
	}
	return math.Float32frombits(uint32(c.bits))
}

// ToFloat64 returns the value of a float constant.
func (c Constant) ToFloat64() float64 {
	switch c.kind {
	case ConstantFloat32:
		return float64(c.ToFloat32())
	case ConstantFloat64:
		return math.Float64frombits(uint64(c.bits))
	}
	panic(fmt.Sprintf("BUG: %s is not a float", c))
}

// Name returns the symbol of an external reference or the name of a heap object.
func (c Constant) Name() string { return c.name }

// HeapObjectIndex returns the index of a heap object.
func (c Constant) HeapObjectIndex() int {
	if c.kind != ConstantHeapObject {
		panic(fmt.Sprintf("BUG: %s is not a heap object", c))
	}
	return int(c.bits)
}

// ToRPONumber returns the block of a label constant.
func (c Constant) ToRPONumber() int {
	if c.kind != ConstantRPONumber {
		panic(fmt.Sprintf("BUG: %s is not a label", c))
	}
	return int(c.bits)
}

// String implements fmt.Stringer.
func (c Constant) String() string {
	switch c.kind {
	case ConstantInt32:
		return fmt.Sprintf("%d", int32(c.bits))
	case ConstantInt64:
		return fmt.Sprintf("%dl", c.bits)
	case ConstantFloat32:
		return fmt.Sprintf("%gf", c.ToFloat32())
	case ConstantFloat64:
		return fmt.Sprintf("%g", c.ToFloat64())
	case ConstantExternalReference:
		return "&" + c.name
	case ConstantHeapObject:
		return fmt.Sprintf("heap(%d:%s)", c.bits, c.name)
	case ConstantRPONumber:
		return fmt.Sprintf("B%d", c.bits)
	}
	panic(fmt.Sprintf("BUG: unknown constant kind %d", c.kind))
}
