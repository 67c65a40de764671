package ir

import (
	"fmt"
	"math"

	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
)

// Operator is an Opcode plus its immutable parameters. Since Go doesn't have
// union types, every parameter kind shares this flattened struct and the
// meaning of each field depends on the opcode.
type Operator struct {
	opcode Opcode
	// count is the variadic input count: controls of Loop, Merge and End,
	// values of Phi, Return, StateValues and FrameState, effects of
	// EffectPhi, successors of Switch and parameters of Start.
	count int32
	// bits holds constant payloads, parameter and projection indices and
	// switch case values.
	bits  uint64
	rep   machine.Representation
	mtype machine.Type
	hint  BranchHint
	kind  DeoptimizeKind
	// reason is why a deoptimization happens.
	reason DeoptimizeReason
	call   *linkage.CallDescriptor
	state  *FrameStateInfo
	name   string
}

// BranchHint is the expected direction of a Branch or Select.
type BranchHint byte

const (
	BranchHintNone BranchHint = iota
	BranchHintTrue
	BranchHintFalse
)

// String implements fmt.Stringer.
func (h BranchHint) String() string {
	switch h {
	case BranchHintNone:
		return "None"
	case BranchHintTrue:
		return "True"
	case BranchHintFalse:
		return "False"
	}
	panic("BUG")
}

// DeoptimizeKind selects how the deoptimizer treats the bailout.
type DeoptimizeKind byte

const (
	DeoptimizeEager DeoptimizeKind = iota
	DeoptimizeSoft
	DeoptimizeLazy
)

// String implements fmt.Stringer.
func (k DeoptimizeKind) String() string {
	switch k {
	case DeoptimizeEager:
		return "Eager"
	case DeoptimizeSoft:
		return "Soft"
	case DeoptimizeLazy:
		return "Lazy"
	}
	panic("BUG")
}

// DeoptimizeReason is recorded in deoptimization entries for diagnostics.
type DeoptimizeReason byte

const (
	DeoptReasonUnknown DeoptimizeReason = iota
	DeoptReasonOverflow
	DeoptReasonLostPrecision
	DeoptReasonMinusZero
	DeoptReasonDivisionByZero
	DeoptReasonInsufficientFeedback
	DeoptReasonWrongCallTarget
)

// String implements fmt.Stringer.
func (r DeoptimizeReason) String() string {
	switch r {
	case DeoptReasonUnknown:
		return "unknown"
	case DeoptReasonOverflow:
		return "overflow"
	case DeoptReasonLostPrecision:
		return "lost precision"
	case DeoptReasonMinusZero:
		return "minus zero"
	case DeoptReasonDivisionByZero:
		return "division by zero"
	case DeoptReasonInsufficientFeedback:
		return "insufficient feedback"
	case DeoptReasonWrongCallTarget:
		return "wrong call target"
	}
	panic("BUG")
}

// FrameStateKind is the kind of frame a FrameState describes.
type FrameStateKind byte

const (
	// FrameStateInterpreted is an ordinary interpreter frame.
	FrameStateInterpreted FrameStateKind = iota
	// FrameStateArgumentsAdaptor records the actual arguments of an inlined
	// call whose argument count differs from the callee's parameter count.
	FrameStateArgumentsAdaptor
)

// FrameStateInfo describes the frame a FrameState node reconstructs.
type FrameStateInfo struct {
	Kind FrameStateKind
	// BailoutID is the resume point inside the function.
	BailoutID int32
	// ParameterCount and LocalCount size the parameters and locals inputs.
	ParameterCount, LocalCount int
	// HasContext is false for frames whose context slot is not materialized.
	HasContext bool
	// Name is the function name, used in listings.
	Name string
}

// String implements fmt.Stringer.
func (f *FrameStateInfo) String() string {
	return fmt.Sprintf("%s@%d:p%d,l%d", f.Name, f.BailoutID, f.ParameterCount, f.LocalCount)
}

// Opcode returns the opcode of this operator.
func (o *Operator) Opcode() Opcode { return o.opcode }

// ValueInputCount returns the number of value inputs of nodes with this operator.
func (o *Operator) ValueInputCount() int {
	switch o.opcode {
	case OpcodeCall, OpcodeTailCall:
		return o.call.InputCount() + o.call.FrameStateCount()
	}
	return o.resolve(o.opcode.info().valueIn)
}

// EffectInputCount returns the number of effect inputs.
func (o *Operator) EffectInputCount() int { return o.resolve(o.opcode.info().effectIn) }

// ControlInputCount returns the number of control inputs.
func (o *Operator) ControlInputCount() int { return o.resolve(o.opcode.info().controlIn) }

// InputCount returns the total number of inputs.
func (o *Operator) InputCount() int {
	return o.ValueInputCount() + o.EffectInputCount() + o.ControlInputCount()
}

// ValueOutputCount returns the number of values produced.
func (o *Operator) ValueOutputCount() int {
	if o.opcode == OpcodeCall {
		return o.call.ReturnCount()
	}
	return o.resolve(o.opcode.info().valueOut)
}

// EffectOutputCount returns the number of effects produced.
func (o *Operator) EffectOutputCount() int { return int(o.opcode.info().effectOut) }

// ControlOutputCount returns the number of controls produced.
func (o *Operator) ControlOutputCount() int { return int(o.opcode.info().controlOut) }

func (o *Operator) resolve(c int8) int {
	if c == variadic {
		return int(o.count)
	}
	return int(c)
}

// FrameStateInputIndex returns the index of the frame state value input, or
// -1 if nodes with this operator have none.
func (o *Operator) FrameStateInputIndex() int {
	switch o.opcode {
	case OpcodeDeoptimize:
		return 0
	case OpcodeDeoptimizeIf, OpcodeDeoptimizeUnless:
		return 1
	case OpcodeCheckedInt32Add, OpcodeCheckedInt32Sub:
		return 2
	case OpcodeCall:
		if o.call.NeedsFrameState() {
			return o.call.InputCount()
		}
	}
	return -1
}

// Count returns the variadic count the operator was built with.
func (o *Operator) Count() int { return int(o.count) }

// Index returns the index of Parameter, OsrValue, Projection and HeapConstant operators.
func (o *Operator) Index() int {
	switch o.opcode {
	case OpcodeParameter, OpcodeOsrValue, OpcodeProjection, OpcodeHeapConstant:
		return int(o.bits)
	}
	panic("BUG: " + o.opcode.String() + " has no index")
}

// Int32Value returns the value of an Int32Constant.
func (o *Operator) Int32Value() int32 {
	o.mustBe(OpcodeInt32Constant)
	return int32(o.bits)
}

// Int64Value returns the value of an Int64Constant.
func (o *Operator) Int64Value() int64 {
	o.mustBe(OpcodeInt64Constant)
	return int64(o.bits)
}

// Float32Value returns the value of a Float32Constant.
func (o *Operator) Float32Value() float32 {
	o.mustBe(OpcodeFloat32Constant)
	return math.Float32frombits(uint32(o.bits))
}

// Float64Value returns the value of a Float64Constant or a NumberConstant.
func (o *Operator) Float64Value() float64 {
	if o.opcode != OpcodeNumberConstant {
		o.mustBe(OpcodeFloat64Constant)
	}
	return math.Float64frombits(o.bits)
}

// CaseValue returns the case of an IfValue.
func (o *Operator) CaseValue() int32 {
	o.mustBe(OpcodeIfValue)
	return int32(o.bits)
}

// Representation returns the representation of Phi, Select and Store.
func (o *Operator) Representation() machine.Representation {
	switch o.opcode {
	case OpcodePhi, OpcodeSelect, OpcodeStore:
		return o.rep
	}
	panic("BUG: " + o.opcode.String() + " has no representation")
}

// MachineType returns the loaded type of Load.
func (o *Operator) MachineType() machine.Type {
	o.mustBe(OpcodeLoad)
	return o.mtype
}

// BranchHint returns the hint of Branch and Select.
func (o *Operator) BranchHint() BranchHint { return o.hint }

// DeoptimizeKind returns the kind of deoptimizing operators.
func (o *Operator) DeoptimizeKind() DeoptimizeKind { return o.kind }

// DeoptimizeReason returns the reason of deoptimizing operators.
func (o *Operator) DeoptimizeReason() DeoptimizeReason { return o.reason }

// CallDescriptor returns the descriptor of Call and TailCall.
func (o *Operator) CallDescriptor() *linkage.CallDescriptor {
	if o.call == nil {
		panic("BUG: " + o.opcode.String() + " has no call descriptor")
	}
	return o.call
}

// FrameStateInfo returns the frame description of FrameState.
func (o *Operator) FrameStateInfo() *FrameStateInfo {
	o.mustBe(OpcodeFrameState)
	return o.state
}

// HasOuterState returns true if a FrameState has an outer frame state input.
func (o *Operator) HasOuterState() bool {
	o.mustBe(OpcodeFrameState)
	return o.count == frameStateInputsWithOuter
}

// Name returns the symbol of ExternalConstant and HeapConstant.
func (o *Operator) Name() string { return o.name }

func (o *Operator) mustBe(op Opcode) {
	if o.opcode != op {
		panic("BUG: expected " + op.String() + " but got " + o.opcode.String())
	}
}

// Equal returns true if both operators are the same opcode with the same parameters.
func (o *Operator) Equal(other *Operator) bool {
	return *o == *other
}

// String implements fmt.Stringer.
func (o *Operator) String() string {
	name := o.opcode.String()
	switch o.opcode {
	case OpcodeStart, OpcodeEnd, OpcodeLoop, OpcodeMerge, OpcodeSwitch, OpcodeReturn, OpcodeEffectPhi, OpcodeStateValues:
		return fmt.Sprintf("%s[%d]", name, o.count)
	case OpcodeBranch:
		return fmt.Sprintf("%s[%s]", name, o.hint)
	case OpcodeIfValue:
		return fmt.Sprintf("%s[%d]", name, o.CaseValue())
	case OpcodeParameter, OpcodeOsrValue, OpcodeProjection:
		return fmt.Sprintf("%s[%d]", name, o.bits)
	case OpcodeInt32Constant:
		return fmt.Sprintf("%s[%d]", name, o.Int32Value())
	case OpcodeInt64Constant:
		return fmt.Sprintf("%s[%d]", name, o.Int64Value())
	case OpcodeFloat32Constant:
		return fmt.Sprintf("%s[%v]", name, o.Float32Value())
	case OpcodeFloat64Constant, OpcodeNumberConstant:
		return fmt.Sprintf("%s[%v]", name, o.Float64Value())
	case OpcodeHeapConstant:
		return fmt.Sprintf("%s[%d:%s]", name, o.bits, o.name)
	case OpcodeExternalConstant:
		return fmt.Sprintf("%s[%s]", name, o.name)
	case OpcodePhi:
		return fmt.Sprintf("%s[%s, %d]", name, o.rep, o.count)
	case OpcodeSelect:
		return fmt.Sprintf("%s[%s, %s]", name, o.rep, o.hint)
	case OpcodeLoad:
		return fmt.Sprintf("%s[%s]", name, o.mtype)
	case OpcodeStore:
		return fmt.Sprintf("%s[%s]", name, o.rep)
	case OpcodeCall, OpcodeTailCall:
		return fmt.Sprintf("%s[%s]", name, o.call)
	case OpcodeDeoptimize, OpcodeDeoptimizeIf, OpcodeDeoptimizeUnless, OpcodeCheckedInt32Add, OpcodeCheckedInt32Sub:
		return fmt.Sprintf("%s[%s, %s]", name, o.kind, o.reason)
	case OpcodeFrameState:
		return fmt.Sprintf("%s[%s]", name, o.state)
	}
	return name
}

// Value input counts of FrameState.
const (
	frameStateInputs          = 5
	frameStateInputsWithOuter = 6
)

// Indices of the FrameState value inputs.
const (
	FrameStateParametersInput = iota
	FrameStateLocalsInput
	FrameStateStackInput
	FrameStateContextInput
	FrameStateFunctionInput
	FrameStateOuterStateInput
)

// Op returns the operator of an opcode without parameters.
func Op(opcode Opcode) Operator {
	info := opcode.info()
	if info.valueIn == variadic || info.effectIn == variadic || info.controlIn == variadic || info.valueOut == variadic {
		panic("BUG: " + opcode.String() + " needs parameters")
	}
	switch opcode {
	case OpcodeSwitch, OpcodeIfValue, OpcodeParameter, OpcodeOsrValue, OpcodeProjection, OpcodeSelect,
		OpcodeLoad, OpcodeStore, OpcodeFrameState, OpcodeBranch, OpcodeDeoptimize, OpcodeDeoptimizeIf,
		OpcodeDeoptimizeUnless, OpcodeCheckedInt32Add, OpcodeCheckedInt32Sub, OpcodeHeapConstant, OpcodeExternalConstant:
		panic("BUG: " + opcode.String() + " needs parameters")
	}
	if info.props&PropConstant != 0 && opcode != OpcodeOptimizedOut {
		panic("BUG: " + opcode.String() + " needs parameters")
	}
	return Operator{opcode: opcode}
}

// Start returns the Start operator of a function with paramCount parameters.
func Start(paramCount int) Operator {
	return Operator{opcode: OpcodeStart, count: int32(paramCount)}
}

// End returns an End operator collecting n terminators.
func End(n int) Operator { return Operator{opcode: OpcodeEnd, count: int32(n)} }

// Loop returns a Loop operator with n control inputs.
func Loop(n int) Operator { return Operator{opcode: OpcodeLoop, count: int32(n)} }

// Merge returns a Merge operator with n control inputs.
func Merge(n int) Operator { return Operator{opcode: OpcodeMerge, count: int32(n)} }

// Branch returns a Branch operator.
func Branch(hint BranchHint) Operator { return Operator{opcode: OpcodeBranch, hint: hint} }

// Switch returns a Switch operator with successors cases plus the default.
func Switch(successors int) Operator {
	return Operator{opcode: OpcodeSwitch, count: int32(successors)}
}

// IfValue returns the projection of a Switch taken when the input equals v.
func IfValue(v int32) Operator { return Operator{opcode: OpcodeIfValue, bits: uint64(uint32(v))} }

// Return returns a Return operator with n values.
func Return(n int) Operator { return Operator{opcode: OpcodeReturn, count: int32(n)} }

// TailCall returns a TailCall operator.
func TailCall(d *linkage.CallDescriptor) Operator {
	if d.NeedsFrameState() {
		panic("BUG: tail calls can not deoptimize lazily")
	}
	return Operator{opcode: OpcodeTailCall, call: d}
}

// Deoptimize returns an unconditional deoptimization.
func Deoptimize(kind DeoptimizeKind, reason DeoptimizeReason) Operator {
	return Operator{opcode: OpcodeDeoptimize, kind: kind, reason: reason}
}

// DeoptimizeIf returns a deoptimization taken when its condition is true.
func DeoptimizeIf(kind DeoptimizeKind, reason DeoptimizeReason) Operator {
	return Operator{opcode: OpcodeDeoptimizeIf, kind: kind, reason: reason}
}

// DeoptimizeUnless returns a deoptimization taken when its condition is false.
func DeoptimizeUnless(kind DeoptimizeKind, reason DeoptimizeReason) Operator {
	return Operator{opcode: OpcodeDeoptimizeUnless, kind: kind, reason: reason}
}

// Parameter returns the index-th parameter operator.
func Parameter(index int) Operator { return Operator{opcode: OpcodeParameter, bits: uint64(index)} }

// OsrValue returns the operator of the index-th value live at an OSR entry.
func OsrValue(index int) Operator { return Operator{opcode: OpcodeOsrValue, bits: uint64(index)} }

// Int32Constant returns an Int32Constant operator.
func Int32Constant(v int32) Operator {
	return Operator{opcode: OpcodeInt32Constant, bits: uint64(int64(v))}
}

// Int64Constant returns an Int64Constant operator.
func Int64Constant(v int64) Operator { return Operator{opcode: OpcodeInt64Constant, bits: uint64(v)} }

// Float32Constant returns a Float32Constant operator.
func Float32Constant(v float32) Operator {
	return Operator{opcode: OpcodeFloat32Constant, bits: uint64(math.Float32bits(v))}
}

// Float64Constant returns a Float64Constant operator.
func Float64Constant(v float64) Operator {
	return Operator{opcode: OpcodeFloat64Constant, bits: math.Float64bits(v)}
}

// NumberConstant returns a tagged number constant.
func NumberConstant(v float64) Operator {
	return Operator{opcode: OpcodeNumberConstant, bits: math.Float64bits(v)}
}

// HeapConstant returns a reference to the index-th heap object of the compilation.
func HeapConstant(index int, name string) Operator {
	return Operator{opcode: OpcodeHeapConstant, bits: uint64(index), name: name}
}

// ExternalConstant returns the address of the named native symbol.
func ExternalConstant(name string) Operator {
	return Operator{opcode: OpcodeExternalConstant, name: name}
}

// Phi returns a Phi of n values of the given representation.
func Phi(rep machine.Representation, n int) Operator {
	return Operator{opcode: OpcodePhi, rep: rep, count: int32(n)}
}

// EffectPhi returns an EffectPhi of n effects.
func EffectPhi(n int) Operator { return Operator{opcode: OpcodeEffectPhi, count: int32(n)} }

// Select returns a Select of values of the given representation.
func Select(rep machine.Representation, hint BranchHint) Operator {
	return Operator{opcode: OpcodeSelect, rep: rep, hint: hint}
}

// Projection returns the projection of the index-th output of a multi-value node.
func Projection(index int) Operator { return Operator{opcode: OpcodeProjection, bits: uint64(index)} }

// Call returns a Call operator.
func Call(d *linkage.CallDescriptor) Operator { return Operator{opcode: OpcodeCall, call: d} }

// FrameState returns a FrameState operator.
func FrameState(info *FrameStateInfo, hasOuter bool) Operator {
	n := int32(frameStateInputs)
	if hasOuter {
		n = frameStateInputsWithOuter
	}
	return Operator{opcode: OpcodeFrameState, state: info, count: n}
}

// StateValues returns a StateValues operator grouping n values.
func StateValues(n int) Operator { return Operator{opcode: OpcodeStateValues, count: int32(n)} }

// CheckedInt32Add returns an int32 addition deoptimizing on overflow.
func CheckedInt32Add() Operator {
	return Operator{opcode: OpcodeCheckedInt32Add, kind: DeoptimizeEager, reason: DeoptReasonOverflow}
}

// CheckedInt32Sub returns an int32 subtraction deoptimizing on overflow.
func CheckedInt32Sub() Operator {
	return Operator{opcode: OpcodeCheckedInt32Sub, kind: DeoptimizeEager, reason: DeoptReasonOverflow}
}

// Load returns a Load of the given machine type.
func Load(t machine.Type) Operator { return Operator{opcode: OpcodeLoad, mtype: t} }

// Store returns a Store of the given representation.
func Store(rep machine.Representation) Operator { return Operator{opcode: OpcodeStore, rep: rep} }
