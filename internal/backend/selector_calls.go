package backend

import (
	"github.com/tetratelabs/isel/internal/iselapi"
	"github.com/tetratelabs/isel/internal/ir"
	"github.com/tetratelabs/isel/internal/linkage"
	"github.com/tetratelabs/isel/internal/machine"
	"github.com/tetratelabs/isel/internal/schedule"
)

// Misc field layout of call instructions: the stack parameter count, a bit
// telling that the callee is followed by a frame state, and a bit telling
// that the last input is the label of an exception handler.
const (
	callMiscHandlerBit    = 1 << 10
	callMiscFrameStateBit = 1 << 9
	callMiscStackParams   = callMiscFrameStateBit - 1
)

// CallStackParameterCount returns the number of stack arguments pushed
// before a call instruction.
func CallStackParameterCount(code InstructionCode) int { return code.Misc() & callMiscStackParams }

// CallHasFrameState returns true if the inputs of a call instruction
// following the callee are a state id and its frame state values.
func CallHasFrameState(code InstructionCode) bool { return code.Misc()&callMiscFrameStateBit != 0 }

// CallHasExceptionHandler returns true if the last input of a call
// instruction is the label of its exception handler.
func CallHasExceptionHandler(code InstructionCode) bool { return code.Misc()&callMiscHandlerBit != 0 }

// PushParameter is a call argument passed on the stack.
type PushParameter struct {
	Node *ir.Node
	Type machine.Type
}

// CallBuffer collects the operands of a call.
type CallBuffer struct {
	Descriptor *linkage.CallDescriptor
	// FrameState is the descriptor of the lazy deoptimization point, if any.
	FrameState *FrameStateDescriptor
	// OutputNodes holds the node of each return value, nil for unused ones.
	OutputNodes []*ir.Node
	Outputs     []Operand
	// InstructionArgs holds the callee, the frame state and the register
	// arguments.
	InstructionArgs []Operand
	// PushedNodes holds the stack arguments indexed by caller frame slot.
	PushedNodes []PushParameter
}

// InitializeCallBuffer fills buffer with the operands of call.
// callCodeImmediate and callAddressImmediate let constant callees be encoded
// as immediates.
func (s *InstructionSelector) InitializeCallBuffer(call *ir.Node, buffer *CallBuffer, callCodeImmediate, callAddressImmediate bool) {
	g := s.OperandGenerator()
	d := buffer.Descriptor

	// Outputs.
	buffer.OutputNodes = make([]*ir.Node, d.ReturnCount())
	if d.ReturnCount() == 1 && call.Opcode() == ir.OpcodeCall && hasValueUses(call) {
		buffer.OutputNodes[0] = call
	} else {
		for i := range buffer.OutputNodes {
			buffer.OutputNodes[i] = ir.FindProjection(call, i)
		}
	}
	needed := 0
	if d.NeedsFrameState() && d.ReturnCount() > 0 {
		// The deoptimizer reads the result of the call.
		needed = 1
	}
	for i, out := range buffer.OutputNodes {
		if out == nil && i >= needed {
			continue
		}
		loc, typ := d.GetReturnLocation(i), d.GetReturnType(i)
		if out == nil {
			buffer.Outputs = append(buffer.Outputs, g.TempLocation(loc, typ.Rep))
			continue
		}
		s.MarkAsRepresentation(typ.Rep, out)
		buffer.Outputs = append(buffer.Outputs, g.DefineAsLocation(out, loc, typ.Rep))
	}

	// The callee.
	callee := call.ValueInput(0)
	switch d.Kind() {
	case linkage.CallCodeObject:
		if callCodeImmediate && callee.Opcode() == ir.OpcodeHeapConstant {
			buffer.InstructionArgs = append(buffer.InstructionArgs, g.UseImmediate(callee))
		} else {
			buffer.InstructionArgs = append(buffer.InstructionArgs, g.UseRegister(callee))
		}
	case linkage.CallAddress:
		if callAddressImmediate && callee.Opcode() == ir.OpcodeExternalConstant {
			buffer.InstructionArgs = append(buffer.InstructionArgs, g.UseImmediate(callee))
		} else {
			buffer.InstructionArgs = append(buffer.InstructionArgs, g.UseRegister(callee))
		}
	case linkage.CallJSFunction:
		buffer.InstructionArgs = append(buffer.InstructionArgs,
			g.UseLocation(callee, d.GetInputLocation(0), d.GetInputType(0).Rep))
	case linkage.CallLazyBailout:
		// Nothing is called.
	}

	// The frame state follows the callee.
	if d.NeedsFrameState() {
		state := call.ValueInput(call.Op().FrameStateInputIndex())
		buffer.FrameState = s.frameStateDescriptor(state)
		stateID := s.sequence.AddDeoptimizationEntry(buffer.FrameState, ir.DeoptimizeLazy, ir.DeoptReasonUnknown)
		buffer.InstructionArgs = append(buffer.InstructionArgs, g.TempImmediate(int32(stateID)))
		buffer.InstructionArgs = s.addFrameStateInputs(buffer.FrameState, state, buffer.InstructionArgs, frameStateInputStackSlot)
	}

	// Arguments.
	buffer.PushedNodes = make([]PushParameter, d.StackParameterCount())
	for i := 1; i < d.InputCount(); i++ {
		arg := call.ValueInput(i)
		loc, typ := d.GetInputLocation(i), d.GetInputType(i)
		if loc.IsCallerFrameSlot() {
			buffer.PushedNodes[loc.Index] = PushParameter{Node: arg, Type: typ}
			continue
		}
		buffer.InstructionArgs = append(buffer.InstructionArgs, g.UseLocation(arg, loc, typ.Rep))
	}
}

func hasValueUses(n *ir.Node) bool {
	for _, u := range n.Uses() {
		if u.User.IsValueEdge(u.Index) && u.User.Opcode() != ir.OpcodeProjection {
			return true
		}
	}
	return false
}

// VisitCall selects a call. handler is the exception handler block of calls
// ending a block, nil otherwise.
func (s *InstructionSelector) VisitCall(call *ir.Node, handler *schedule.BasicBlock) {
	g := s.OperandGenerator()
	d := call.Op().CallDescriptor()
	if d.StackParameterCount() > callMiscStackParams {
		s.Fail(iselapi.Bailoutf("%s has too many stack arguments", d))
		return
	}

	buffer := CallBuffer{Descriptor: d}
	s.InitializeCallBuffer(call, &buffer, true, true)
	s.target.EmitPrepareArguments(s, buffer.PushedNodes, d, call)

	misc := d.StackParameterCount()
	if d.NeedsFrameState() {
		misc |= callMiscFrameStateBit
	}
	if handler != nil {
		misc |= callMiscHandlerBit
		buffer.InstructionArgs = append(buffer.InstructionArgs, g.Label(handler))
	}

	var opcode ArchOpcode
	switch d.Kind() {
	case linkage.CallCodeObject:
		opcode = ArchCallCodeObject
	case linkage.CallAddress:
		opcode = ArchCallAddress
	case linkage.CallJSFunction:
		opcode = ArchCallJSFunction
	case linkage.CallLazyBailout:
		opcode = ArchLazyBailout
	}
	instr := s.Emit(NewInstructionCode(opcode).WithMisc(misc), buffer.Outputs, buffer.InstructionArgs, nil)
	instr.MarkAsCall()
	s.frame.MarkHasCalls()
}

// VisitTailCall selects a tail call. Tail calls passing arguments on the
// stack are not supported.
func (s *InstructionSelector) VisitTailCall(call *ir.Node) {
	d := call.Op().CallDescriptor()
	if d.StackParameterCount() > 0 || d.NeedsFrameState() {
		s.Fail(iselapi.Bailoutf("tail call to %s with stack arguments", d))
		return
	}
	buffer := CallBuffer{Descriptor: d}
	s.InitializeCallBuffer(call, &buffer, true, true)

	var opcode ArchOpcode
	switch d.Kind() {
	case linkage.CallCodeObject:
		opcode = ArchTailCallCodeObject
	case linkage.CallAddress:
		opcode = ArchTailCallAddress
	case linkage.CallJSFunction:
		opcode = ArchTailCallJSFunction
	default:
		panic("BUG: tail call of kind " + d.Kind().String())
	}
	s.Emit(NewInstructionCode(opcode), nil, buffer.InstructionArgs, nil)
}
