package backend

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/machine"
)

// ImpossibleValue is the immediate standing in for optimized-out frame state
// slots. The deoptimizer never reads it.
const ImpossibleValue = 0xdead

// StateValueKind tells how the deoptimizer materializes a frame state slot.
type StateValueKind byte

const (
	// StateValuePlain is read from its operand.
	StateValuePlain StateValueKind = iota
	// StateValueOptimizedOut has no value.
	StateValueOptimizedOut
)

// StateValueDescriptor is one slot of a FrameStateDescriptor.
type StateValueDescriptor struct {
	Kind StateValueKind
	Type machine.Type
}

// FrameStateDescriptor describes the frames a deoptimization rebuilds. Its
// values are laid out as function, parameters, context (if any), locals and
// stack, and the outer frame, if any, comes first in the encoding.
type FrameStateDescriptor struct {
	info       *ir.FrameStateInfo
	stackCount int
	values     []StateValueDescriptor
	outer      *FrameStateDescriptor
}

// NewFrameStateDescriptor returns a descriptor of a frame with stackCount
// operand stack values nested in outer, which may be nil.
func NewFrameStateDescriptor(info *ir.FrameStateInfo, stackCount int, outer *FrameStateDescriptor) *FrameStateDescriptor {
	d := &FrameStateDescriptor{info: info, stackCount: stackCount, outer: outer}
	d.values = make([]StateValueDescriptor, 0, d.Size())
	return d
}

// Info returns the frame this descriptor rebuilds.
func (d *FrameStateDescriptor) Info() *ir.FrameStateInfo { return d.info }

// BailoutID returns the resume point of the frame.
func (d *FrameStateDescriptor) BailoutID() int32 { return d.info.BailoutID }

// ParameterCount returns the number of parameter slots.
func (d *FrameStateDescriptor) ParameterCount() int { return d.info.ParameterCount }

// LocalCount returns the number of local slots.
func (d *FrameStateDescriptor) LocalCount() int { return d.info.LocalCount }

// StackCount returns the number of operand stack slots.
func (d *FrameStateDescriptor) StackCount() int { return d.stackCount }

// HasContext returns true if the context slot is encoded.
func (d *FrameStateDescriptor) HasContext() bool { return d.info.HasContext }

// Outer returns the enclosing frame, nil for the outermost one.
func (d *FrameStateDescriptor) Outer() *FrameStateDescriptor { return d.outer }

// Size returns the number of values of this frame alone, the function
// included.
func (d *FrameStateDescriptor) Size() int {
	size := 1 + d.ParameterCount() + d.LocalCount() + d.stackCount
	if d.HasContext() {
		size++
	}
	return size
}

// TotalSize returns the number of values of this frame and all outer frames.
func (d *FrameStateDescriptor) TotalSize() int {
	total := 0
	for f := d; f != nil; f = f.outer {
		total += f.Size()
	}
	return total
}

// FrameCount returns the number of frames, this one included.
func (d *FrameStateDescriptor) FrameCount() int {
	count := 0
	for f := d; f != nil; f = f.outer {
		count++
	}
	return count
}

// Values returns the slots of this frame in encoding order.
func (d *FrameStateDescriptor) Values() []StateValueDescriptor { return d.values }

func (d *FrameStateDescriptor) addValue(kind StateValueKind, typ machine.Type) {
	d.values = append(d.values, StateValueDescriptor{Kind: kind, Type: typ})
}

// String implements fmt.Stringer.
func (d *FrameStateDescriptor) String() string {
	var sb strings.Builder
	for f := d; f != nil; f = f.outer {
		if f != d {
			sb.WriteString(" <- ")
		}
		fmt.Fprintf(&sb, "%s[", f.info)
		for i, v := range f.values {
			if i > 0 {
				sb.WriteString(", ")
			}
			if v.Kind == StateValueOptimizedOut {
				sb.WriteString("(optimized out)")
			} else {
				sb.WriteString(v.Type.String())
			}
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// DeoptimizationEntry is a row of the deoptimization table. Its index in the
// InstructionSequence is the state id encoded as the first frame state input.
type DeoptimizationEntry struct {
	Descriptor *FrameStateDescriptor
	Kind       ir.DeoptimizeKind
	Reason     ir.DeoptimizeReason
}

// frameStateInputKind selects the operand policy of frame state values.
type frameStateInputKind byte

const (
	// frameStateInputAny is used by eager deoptimizations, whose values are
	// read while the deoptimizing instruction is still running.
	frameStateInputAny frameStateInputKind = iota
	// frameStateInputStackSlot is used by calls, which clobber every register.
	frameStateInputStackSlot
)

// frameStateDescriptor builds the descriptor of a FrameState node, outer
// states first.
func (s *InstructionSelector) frameStateDescriptor(state *ir.Node) *FrameStateDescriptor {
	if state.Opcode() != ir.OpcodeFrameState {
		panic("BUG: expected a FrameState but got " + state.String())
	}
	var outer *FrameStateDescriptor
	if state.Op().HasOuterState() {
		outer = s.frameStateDescriptor(state.InputAt(ir.FrameStateOuterStateInput))
	}
	stack := state.InputAt(ir.FrameStateStackInput)
	return NewFrameStateDescriptor(state.Op().FrameStateInfo(), stack.InputCount(), outer)
}

// addFrameStateInputs appends the encoded values of state to inputs:
//
//	[outer...][function][parameters...][context?][locals...][stack...]
func (s *InstructionSelector) addFrameStateInputs(d *FrameStateDescriptor, state *ir.Node, inputs []Operand, kind frameStateInputKind) []Operand {
	if d.outer != nil {
		inputs = s.addFrameStateInputs(d.outer, state.InputAt(ir.FrameStateOuterStateInput), inputs, kind)
	}

	params := state.InputAt(ir.FrameStateParametersInput)
	locals := state.InputAt(ir.FrameStateLocalsInput)
	stack := state.InputAt(ir.FrameStateStackInput)
	if params.InputCount() != d.ParameterCount() || locals.InputCount() != d.LocalCount() {
		panic(fmt.Sprintf("BUG: %s does not match %s", state, d.info))
	}

	inputs = s.addFrameStateValue(d, state.InputAt(ir.FrameStateFunctionInput), inputs, kind)
	for _, v := range params.Inputs() {
		inputs = s.addFrameStateValue(d, v, inputs, kind)
	}
	if d.HasContext() {
		inputs = s.addFrameStateValue(d, state.InputAt(ir.FrameStateContextInput), inputs, kind)
	}
	for _, v := range locals.Inputs() {
		inputs = s.addFrameStateValue(d, v, inputs, kind)
	}
	for _, v := range stack.Inputs() {
		inputs = s.addFrameStateValue(d, v, inputs, kind)
	}
	return inputs
}

func (s *InstructionSelector) addFrameStateValue(d *FrameStateDescriptor, v *ir.Node, inputs []Operand, kind frameStateInputKind) []Operand {
	g := s.OperandGenerator()
	switch op := v.Opcode(); {
	case op == ir.OpcodeOptimizedOut || op == ir.OpcodeDead:
		d.addValue(StateValueOptimizedOut, machine.None)
		return append(inputs, g.TempImmediate(ImpossibleValue))
	case op.IsConstant():
		d.addValue(StateValuePlain, s.outputType(v))
		return append(inputs, g.UseImmediate(v))
	}
	d.addValue(StateValuePlain, s.outputType(v))
	if kind == frameStateInputStackSlot {
		return append(inputs, g.UseUniqueSlot(v))
	}
	return append(inputs, g.UseAnyAtEnd(v))
}
