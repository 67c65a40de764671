package linkage

import "github.com/tetratelabs/isel/internal/machine"

// Convention is a target calling convention: which registers carry integer
// and floating point parameters and results. Register lists hold codes in
// the register file matching the value representation.
type Convention struct {
	IntArgs, FloatArgs       []int
	IntResults, FloatResults []int
	// JSFunctionRegister holds the callee of CallJSFunction calls, whose
	// parameters are all passed on the stack.
	JSFunctionRegister int
}

// NewCallDescriptor assigns a location to every parameter and return value
// of sig according to kind.
func (c *Convention) NewCallDescriptor(kind CallKind, sig *Signature, flags CallFlags, name string) *CallDescriptor {
	d := &CallDescriptor{kind: kind, sig: sig, flags: flags, debugName: name}
	switch kind {
	case CallCodeObject:
		d.targetType, d.targetLoc = machine.AnyTagged, AnyRegister()
		d.params, d.stackParameterCount = c.assign(sig.Params, c.IntArgs, c.FloatArgs)
	case CallAddress:
		d.targetType, d.targetLoc = machine.Pointer, AnyRegister()
		d.params, d.stackParameterCount = c.assign(sig.Params, c.IntArgs, c.FloatArgs)
	case CallJSFunction:
		d.targetType, d.targetLoc = machine.AnyTagged, Register(c.JSFunctionRegister)
		d.params, d.stackParameterCount = c.assign(sig.Params, nil, nil)
	case CallLazyBailout:
		d.targetType, d.targetLoc = machine.AnyTagged, AnyRegister()
		if len(sig.Params) != 0 {
			panic("BUG: lazy bailout takes no parameters")
		}
	default:
		panic("BUG: unknown call kind")
	}
	var stack int
	d.returns, stack = c.assign(sig.Returns, c.IntResults, c.FloatResults)
	if stack != 0 {
		panic("BUG: return values must fit in result registers")
	}
	return d
}

// assign gives each type the next free register of its class, falling back
// to consecutive caller frame slots once the registers run out.
func (c *Convention) assign(types []machine.Type, ints, floats []int) (locs []Location, stackSlots int) {
	il, fl := len(ints), len(floats)
	intIndex, floatIndex := 0, 0
	locs = make([]Location, len(types))
	for i, typ := range types {
		if typ.Rep.IsFloatingPoint() {
			if floatIndex < fl {
				locs[i] = Register(floats[floatIndex])
				floatIndex++
				continue
			}
		} else if intIndex < il {
			locs[i] = Register(ints[intIndex])
			intIndex++
			continue
		}
		// All stack slots are 8 bytes wide.
		locs[i] = CallerFrameSlot(stackSlots)
		stackSlots++
	}
	return
}

// Linkage is the calling convention of the function being compiled, seen
// from the inside.
type Linkage struct {
	incoming *CallDescriptor
}

// New returns a Linkage for a function called through incoming.
func New(incoming *CallDescriptor) *Linkage {
	return &Linkage{incoming: incoming}
}

// GetIncomingDescriptor returns the descriptor the function is called with.
func (l *Linkage) GetIncomingDescriptor() *CallDescriptor { return l.incoming }

// ParameterCount returns the number of parameters of the function.
func (l *Linkage) ParameterCount() int { return l.incoming.ParameterCount() }

// GetParameterLocation returns where the index-th parameter arrives.
func (l *Linkage) GetParameterLocation(index int) Location {
	return l.incoming.GetInputLocation(index + 1)
}

// GetParameterType returns the machine type of the index-th parameter.
func (l *Linkage) GetParameterType(index int) machine.Type {
	return l.incoming.GetInputType(index + 1)
}

// GetReturnLocation returns where the index-th result must be placed.
func (l *Linkage) GetReturnLocation(index int) Location {
	return l.incoming.GetReturnLocation(index)
}

// GetReturnType returns the machine type of the index-th result.
func (l *Linkage) GetReturnType(index int) machine.Type {
	return l.incoming.GetReturnType(index)
}
