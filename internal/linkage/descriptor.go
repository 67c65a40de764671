package linkage

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/isel/internal/machine"
)

// CallKind classifies the callee of a call.
type CallKind byte

const (
	// CallCodeObject calls a compiled code object.
	CallCodeObject CallKind = iota
	// CallAddress calls a raw native address, typically a C function.
	CallAddress
	// CallJSFunction calls a function object through its code entry.
	CallJSFunction
	// CallLazyBailout is a call placeholder whose only purpose is to carry a
	// lazy deoptimization point.
	CallLazyBailout
)

// String implements fmt.Stringer.
func (k CallKind) String() string {
	switch k {
	case CallCodeObject:
		return "Code"
	case CallAddress:
		return "Addr"
	case CallJSFunction:
		return "JS"
	case CallLazyBailout:
		return "LazyBailout"
	default:
		panic("BUG")
	}
}

// CallFlags are properties of a call site.
type CallFlags uint16

const (
	FlagNeedsFrameState CallFlags = 1 << iota
	FlagHasExceptionHandler
	FlagHasLocalCatchHandler
	// FlagNoAllocate marks calls that can not trigger a garbage collection,
	// so they need no reference map.
	FlagNoAllocate
)

// CallDescriptor describes the calling convention of one call target.
type CallDescriptor struct {
	kind       CallKind
	targetType machine.Type
	targetLoc  Location
	sig        *Signature
	params     []Location
	returns    []Location
	// stackParameterCount is the number of caller frame slots the parameters need.
	stackParameterCount int
	flags               CallFlags
	debugName           string
}

// Kind returns the callee classification.
func (d *CallDescriptor) Kind() CallKind { return d.kind }

// Flags returns the call flags.
func (d *CallDescriptor) Flags() CallFlags { return d.flags }

// Signature returns the machine signature of the callee.
func (d *CallDescriptor) Signature() *Signature { return d.sig }

// DebugName returns the name given at construction.
func (d *CallDescriptor) DebugName() string { return d.debugName }

// InputCount returns the number of value inputs of the call, including the
// target but excluding the frame state.
func (d *CallDescriptor) InputCount() int { return 1 + len(d.params) }

// ParameterCount returns the number of parameters, excluding the target.
func (d *CallDescriptor) ParameterCount() int { return len(d.params) }

// ReturnCount returns the number of values the callee returns.
func (d *CallDescriptor) ReturnCount() int { return len(d.returns) }

// StackParameterCount returns the number of stack slots used by parameters.
func (d *CallDescriptor) StackParameterCount() int { return d.stackParameterCount }

// NeedsFrameState returns true if the call carries a lazy deoptimization point.
func (d *CallDescriptor) NeedsFrameState() bool { return d.flags&FlagNeedsFrameState != 0 }

// FrameStateCount returns the number of frame state inputs of the call node.
func (d *CallDescriptor) FrameStateCount() int {
	if d.NeedsFrameState() {
		return 1
	}
	return 0
}

// IsCFunctionCall returns true for calls following the native C convention.
func (d *CallDescriptor) IsCFunctionCall() bool { return d.kind == CallAddress }

// CParameterCount returns the number of parameters passed to a C function.
func (d *CallDescriptor) CParameterCount() int { return len(d.params) }

// GetInputLocation returns the location of the i-th input; input 0 is the target.
func (d *CallDescriptor) GetInputLocation(i int) Location {
	if i == 0 {
		return d.targetLoc
	}
	return d.params[i-1]
}

// GetInputType returns the machine type of the i-th input; input 0 is the target.
func (d *CallDescriptor) GetInputType(i int) machine.Type {
	if i == 0 {
		return d.targetType
	}
	return d.sig.Params[i-1]
}

// GetReturnLocation returns the location of the i-th return value.
func (d *CallDescriptor) GetReturnLocation(i int) Location { return d.returns[i] }

// GetReturnType returns the machine type of the i-th return value.
func (d *CallDescriptor) GetReturnType(i int) machine.Type { return d.sig.Returns[i] }

// WithFlags returns a copy of d with flags replaced.
func (d *CallDescriptor) WithFlags(flags CallFlags) *CallDescriptor {
	ret := *d
	ret.flags = flags
	return &ret
}

// String implements fmt.Stringer.
func (d *CallDescriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:", d.kind, d.debugName)
	fmt.Fprintf(&b, "t=%s", d.targetLoc)
	for i, p := range d.params {
		fmt.Fprintf(&b, ",p%d=%s", i, p)
	}
	for i, r := range d.returns {
		fmt.Fprintf(&b, ",r%d=%s", i, r)
	}
	return b.String()
}
